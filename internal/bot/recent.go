package bot

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/strawberry-py/strawberry-boards/internal/platform"
)

// RecentMessages помнит последние сообщения, чтобы при удалении знать
// их автора и канал: событие удаления приходит только с ID.
// Хранится лишь то, что нужно статистике, без текста и вложений.
//
// Пока индекс не заполнен, запоминается каждое сообщение. После заполнения
// политика допуска ristretto (TinyLFU) может отклонить новое сообщение
// в пользу старого, и его удаление не будет вычтено из статистики.
// RECENT_MESSAGES_MAX стоит выбирать с запасом к потоку сообщений.
type RecentMessages struct {
	cache *ristretto.Cache[int64, *platform.Message]
}

// NewRecentMessages создаёт индекс примерно на capacity сообщений.
func NewRecentMessages(capacity int) (*RecentMessages, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("размер индекса сообщений должен быть > 0")
	}
	c, err := ristretto.NewCache(&ristretto.Config[int64, *platform.Message]{
		NumCounters: int64(capacity) * 10,
		MaxCost:     int64(capacity),
		BufferItems: 64,

		// стоимость записи — одно сообщение
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания индекса сообщений: %w", err)
	}
	return &RecentMessages{cache: c}, nil
}

// Remember запоминает сообщение.
func (r *RecentMessages) Remember(msg *platform.Message) {
	r.cache.Set(msg.ID, &platform.Message{
		ID:            msg.ID,
		ChannelID:     msg.ChannelID,
		GuildID:       msg.GuildID,
		GuildName:     msg.GuildName,
		ChannelName:   msg.ChannelName,
		AuthorID:      msg.AuthorID,
		AuthorName:    msg.AuthorName,
		AuthorBot:     msg.AuthorBot,
		WebhookID:     msg.WebhookID,
		CreatedAt:     msg.CreatedAt,
		ThreadStarter: msg.ThreadStarter,
	}, 1)
}

// Take возвращает и забывает сообщение.
func (r *RecentMessages) Take(messageID int64) (*platform.Message, bool) {
	msg, ok := r.cache.Get(messageID)
	if ok {
		r.cache.Del(messageID)
	}
	return msg, ok
}

// Wait дожидается применения всех Remember.
func (r *RecentMessages) Wait() {
	r.cache.Wait()
}

// Close освобождает фоновые горутины кэша.
func (r *RecentMessages) Close() {
	r.cache.Close()
}
