package starboard

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	log "github.com/sirupsen/logrus"

	"github.com/strawberry-py/strawberry-boards/internal/common"
	"github.com/strawberry-py/strawberry-boards/internal/platform"
)

const (
	embedColor      = 0xFEE75C // жёлтый
	maxTitleLength  = 254
	maxEmbedLength  = 5800
	maxContentChars = 2000
	maxFiles        = 10
	spoilerPrefix   = "SPOILER_"
)

var urlRegex = regexp.MustCompile(`https?://\S+`)

var imageExtensions = map[string]bool{
	"png":  true,
	"jpg":  true,
	"jpeg": true,
	"gif":  true,
	"webp": true,
}

// downloader скачивает вложения.
type downloader interface {
	Download(ctx context.Context, att platform.Attachment) (*platform.File, error)
}

// buildPosts собирает основной пост (embed с картинкой) и, если нужно, дополнительный
// с остальными вложениями и ссылками. secondary == nil, если доп. поста нет.
func buildPosts(ctx context.Context, dl downloader, msg *platform.Message) (primary, secondary *platform.Post) {
	embed := &platform.Embed{
		Title:         reactionTitle(msg.Reactions),
		Color:         embedColor,
		Timestamp:     msg.CreatedAt,
		AuthorName:    msg.AuthorName,
		AuthorIconURL: msg.AuthorAvatarURL,
		Fields: []platform.EmbedField{{
			Name: "Link:",
			Value: fmt.Sprintf("[Original](%s) - %s",
				common.JumpURL(msg.GuildID, msg.ChannelID, msg.ID),
				common.ChannelMention(msg.ChannelID)),
		}},
	}
	primary = &platform.Post{Embed: embed}

	var (
		files []*platform.File
		urls  []string
	)

	for _, att := range msg.Attachments {
		f, err := dl.Download(ctx, att)
		if err != nil {
			log.WithError(err).WithField("url", att.URL).Debug("Не удалось скачать вложение")
			continue
		}
		if embed.ImageURL == "" && isImage(att) && !strings.HasPrefix(att.Filename, spoilerPrefix) {
			embed.ImageURL = "attachment://" + f.Name
			primary.Files = append(primary.Files, f)
			continue
		}
		files = append(files, f)
	}

	for _, u := range urlRegex.FindAllString(msg.Content, -1) {
		if embed.ImageURL == "" && hasImageExtension(u) {
			embed.ImageURL = u
			continue
		}
		urls = append(urls, u)
	}

	text := strings.TrimSpace(urlRegex.ReplaceAllString(msg.Content, ""))
	if text != "" && embedLength(embed)+utf8.RuneCountInString(text) < maxEmbedLength {
		embed.Fields = append(embed.Fields, platform.EmbedField{Name: "Text:", Value: text})
	}

	if len(files) == 0 && len(urls) == 0 {
		return primary, nil
	}

	secondary = &platform.Post{}
	if len(files) > maxFiles {
		files = files[:maxFiles]
	}
	secondary.Files = files
	if len(urls) > 0 {
		content := urls[0]
		for _, u := range urls[1:] {
			if len(content)+len(u) >= maxContentChars {
				break
			}
			content += "\n" + u
		}
		secondary.Content = content
	}
	return primary, secondary
}

// reactionTitle собирает заголовок вида " 👍5 🍓3", не длиннее maxTitleLength.
func reactionTitle(reactions []platform.Reaction) string {
	var b strings.Builder
	for _, r := range reactions {
		part := fmt.Sprintf("%s%d", r.Emoji.String(), r.Count)
		if utf8.RuneCountInString(b.String())+utf8.RuneCountInString(part) > maxTitleLength {
			break
		}
		b.WriteString(" ")
		b.WriteString(part)
	}
	return b.String()
}

func isImage(att platform.Attachment) bool {
	return strings.HasPrefix(att.ContentType, "image/")
}

func hasImageExtension(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	ext := strings.TrimPrefix(path.Ext(u.Path), ".")
	return imageExtensions[strings.ToLower(ext)]
}

// embedLength — длина embed по правилам лимитов Discord (title, author, поля).
func embedLength(e *platform.Embed) int {
	n := utf8.RuneCountInString(e.Title) + utf8.RuneCountInString(e.AuthorName)
	for _, f := range e.Fields {
		n += utf8.RuneCountInString(f.Name) + utf8.RuneCountInString(f.Value)
	}
	return n
}
