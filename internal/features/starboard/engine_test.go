package starboard

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strawberry-py/strawberry-boards/internal/common"
	"github.com/strawberry-py/strawberry-boards/internal/platform"
	"github.com/strawberry-py/strawberry-boards/internal/platform/platformtest"
)

// memStore — in-memory реализация Store.
type memStore struct {
	mu       sync.Mutex
	channels []*Channel
	messages []*Message
	nextID   int64
	failBy   error
}

func newMemStore() *memStore {
	return &memStore{}
}

func (s *memStore) AllChannels(_ context.Context) ([]*Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Channel(nil), s.channels...), nil
}

func (s *memStore) Channels(_ context.Context, guildID int64) ([]*Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Channel
	for _, c := range s.channels {
		if c.GuildID == guildID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memStore) GetChannel(_ context.Context, guildID, sourceChannelID int64) (*Channel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.channels {
		if c.GuildID == guildID && c.SourceChannelID == sourceChannelID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, common.ErrNotFound
}

func (s *memStore) AddChannel(_ context.Context, c *Channel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	c.ID = s.nextID
	s.channels = append(s.channels, c)
	return nil
}

func (s *memStore) RemoveChannel(_ context.Context, guildID, sourceChannelID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.channels {
		if c.GuildID == guildID && c.SourceChannelID == sourceChannelID {
			s.channels = append(s.channels[:i:i], s.channels[i+1:]...)
			return nil
		}
	}
	return common.ErrNotConfigured
}

func (s *memStore) BySource(_ context.Context, guildID, sourceMessageID int64) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failBy != nil {
		return nil, s.failBy
	}
	var out []*Message
	for _, m := range s.messages {
		if m.GuildID == guildID && m.SourceMessageID == sourceMessageID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) ByTarget(_ context.Context, guildID, targetMessageID int64) ([]*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Message
	for _, m := range s.messages {
		if m.GuildID == guildID && m.TargetMessageID == targetMessageID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memStore) AddMessage(_ context.Context, m *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.messages {
		if existing.SourceMessageID == m.SourceMessageID && existing.TargetMessageID == m.TargetMessageID {
			return nil
		}
	}
	s.nextID++
	cp := *m
	cp.ID = s.nextID
	s.messages = append(s.messages, &cp)
	return nil
}

func (s *memStore) AuthorCounts(_ context.Context, guildID, targetChannelID int64) ([]AuthorCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sources := make(map[int64]map[int64]bool)
	for _, m := range s.messages {
		if m.GuildID != guildID || (targetChannelID != 0 && m.TargetChannelID != targetChannelID) {
			continue
		}
		if sources[m.AuthorID] == nil {
			sources[m.AuthorID] = make(map[int64]bool)
		}
		sources[m.AuthorID][m.SourceMessageID] = true
	}
	var out []AuthorCount
	for author, msgs := range sources {
		out = append(out, AuthorCount{AuthorID: author, Count: len(msgs)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].AuthorID < out[j].AuthorID
	})
	return out, nil
}

func (s *memStore) AuthorStats(_ context.Context, guildID, authorID int64) ([]ChannelCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sources := make(map[int64]map[int64]bool)
	for _, m := range s.messages {
		if m.GuildID != guildID || m.AuthorID != authorID {
			continue
		}
		if sources[m.TargetChannelID] == nil {
			sources[m.TargetChannelID] = make(map[int64]bool)
		}
		sources[m.TargetChannelID][m.SourceMessageID] = true
	}
	var out []ChannelCount
	for ch, msgs := range sources {
		out = append(out, ChannelCount{ChannelID: ch, Count: len(msgs)})
	}
	return out, nil
}

func (s *memStore) AuthorTotal(_ context.Context, guildID, authorID int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[int64]bool)
	for _, m := range s.messages {
		if m.GuildID == guildID && m.AuthorID == authorID {
			seen[m.SourceMessageID] = true
		}
	}
	return len(seen), nil
}

func (s *memStore) records() []*Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Message(nil), s.messages...)
}

type karmaCall struct {
	added   bool
	author  int64
	reactor int64
	value   int
}

// fakeKarma запоминает переносы кармы.
type fakeKarma struct {
	mu      sync.Mutex
	values  map[platform.Emoji]int
	ignored map[int64]bool
	calls   []karmaCall
}

func newFakeKarma() *fakeKarma {
	return &fakeKarma{
		values:  map[platform.Emoji]int{thumbsUp: 1, thumbsDown: -1},
		ignored: make(map[int64]bool),
	}
}

func (k *fakeKarma) IsIgnored(_ context.Context, _, channelID int64) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ignored[channelID]
}

func (k *fakeKarma) ignore(channelID int64) {
	k.mu.Lock()
	k.ignored[channelID] = true
	k.mu.Unlock()
}

func (k *fakeKarma) EmojiValue(_ context.Context, _ int64, emoji platform.Emoji) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.values[emoji]
}

func (k *fakeKarma) ReactionAdded(_, authorID, reactorID int64, value int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls = append(k.calls, karmaCall{added: true, author: authorID, reactor: reactorID, value: value})
}

func (k *fakeKarma) ReactionRemoved(_, authorID, reactorID int64, value int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.calls = append(k.calls, karmaCall{added: false, author: authorID, reactor: reactorID, value: value})
}

func (k *fakeKarma) snapshot() []karmaCall {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]karmaCall(nil), k.calls...)
}

// balance — сумма value, перенесённая автору.
func (k *fakeKarma) balance(author int64) int {
	total := 0
	for _, c := range k.snapshot() {
		if c.author != author {
			continue
		}
		if c.added {
			total += c.value
		} else {
			total -= c.value
		}
	}
	return total
}

const (
	guildID   = int64(1)
	sourceCh  = int64(100)
	targetCh  = int64(200)
	otherCh   = int64(300)
	messageID = int64(500)
	authorA   = int64(10)
	userB     = int64(21)
	userC     = int64(22)
	userD     = int64(23)
	userE     = int64(30)
)

var (
	thumbsUp   = platform.Emoji{Name: "👍"}
	thumbsDown = platform.Emoji{Name: "👎"}
	neutral    = platform.Emoji{ID: 777, Name: "meh"}
)

type fixture struct {
	store  *memStore
	client *platformtest.Client
	karma  *fakeKarma
	engine *Engine
}

func newFixture(t *testing.T, threshold int) *fixture {
	t.Helper()

	f := &fixture{
		store:  newMemStore(),
		client: platformtest.NewClient(),
		karma:  newFakeKarma(),
	}
	channels := NewChannelSet()
	svc := NewService(f.store, f.client, nil, channels)
	_, err := svc.SetChannel(context.Background(), guildID, sourceCh, targetCh, threshold)
	require.NoError(t, err)

	f.engine = NewEngine(f.store, f.client, f.karma, channels)
	f.client.AddMessage(&platform.Message{
		ID:         messageID,
		ChannelID:  sourceCh,
		GuildID:    guildID,
		AuthorID:   authorA,
		AuthorName: "A",
		Content:    "hello",
	})
	return f
}

// react ставит реакцию и отдаёт событие движку.
func (f *fixture) react(channelID, msgID, userID int64, emoji platform.Emoji) bool {
	f.client.React(channelID, msgID, userID, emoji)
	return f.engine.OnReactionAdd(context.Background(), platform.ReactionEvent{
		GuildID: guildID, ChannelID: channelID, MessageID: msgID, UserID: userID, Emoji: emoji,
	})
}

func (f *fixture) unreact(channelID, msgID, userID int64, emoji platform.Emoji) bool {
	f.client.Unreact(channelID, msgID, userID, emoji)
	return f.engine.OnReactionRemove(context.Background(), platform.ReactionEvent{
		GuildID: guildID, ChannelID: channelID, MessageID: msgID, UserID: userID, Emoji: emoji,
	})
}

// repostID возвращает ID основного репоста.
func (f *fixture) repostID(t *testing.T) int64 {
	t.Helper()
	sent := f.client.Sent()
	require.NotEmpty(t, sent)
	return sent[0].MessageID
}

func TestEngine_RepostAtThreshold(t *testing.T) {
	f := newFixture(t, 3)

	assert.False(t, f.react(sourceCh, messageID, userB, thumbsUp))
	assert.False(t, f.react(sourceCh, messageID, userC, thumbsUp))
	assert.Empty(t, f.client.Sent())

	assert.False(t, f.react(sourceCh, messageID, userD, thumbsUp))

	sent := f.client.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, targetCh, sent[0].ChannelID)
	require.NotNil(t, sent[0].Post.Embed)

	records := f.store.records()
	require.Len(t, records, 1)
	assert.Equal(t, messageID, records[0].SourceMessageID)
	assert.Equal(t, sent[0].MessageID, records[0].TargetMessageID)
	assert.Equal(t, authorA, records[0].AuthorID)
	assert.Equal(t, guildID, records[0].GuildID)

	// реакция E на репост переносится в карму A ровно один раз
	assert.True(t, f.react(targetCh, sent[0].MessageID, userE, thumbsUp))
	assert.Equal(t, []karmaCall{{added: true, author: authorA, reactor: userE, value: 1}}, f.karma.snapshot())
}

func TestEngine_RepostedMessageIsNeverRepostedAgain(t *testing.T) {
	f := newFixture(t, 1)

	assert.False(t, f.react(sourceCh, messageID, userB, thumbsUp))
	require.Len(t, f.client.Sent(), 1)

	// дальнейшие реакции на исходное сообщение идут в перенос кармы
	assert.True(t, f.react(sourceCh, messageID, userC, thumbsUp))
	assert.True(t, f.react(sourceCh, messageID, userD, thumbsUp))

	assert.Len(t, f.client.Sent(), 1)
	assert.Len(t, f.store.records(), 1)
	assert.Equal(t, 2, f.karma.balance(authorA))
}

func TestEngine_NonPositiveReactionsDoNotTriggerRepost(t *testing.T) {
	f := newFixture(t, 2)
	f.karma.values[neutral] = 0

	f.react(sourceCh, messageID, userB, thumbsDown)
	f.react(sourceCh, messageID, userC, thumbsDown)
	f.react(sourceCh, messageID, userB, neutral)
	f.react(sourceCh, messageID, userC, neutral)

	assert.Empty(t, f.client.Sent())
	assert.Empty(t, f.store.records())
}

func TestEngine_WithoutKarmaAnyReactionCounts(t *testing.T) {
	f := newFixture(t, 2)
	channels := NewChannelSet()
	channels.Add(&Channel{GuildID: guildID, SourceChannelID: sourceCh, TargetChannelID: targetCh, Threshold: 2})
	f.engine = NewEngine(f.store, f.client, nil, channels)

	f.react(sourceCh, messageID, userB, thumbsDown)
	f.react(sourceCh, messageID, userC, thumbsDown)

	assert.Len(t, f.client.Sent(), 1)
}

func TestEngine_SingleFlight(t *testing.T) {
	f := newFixture(t, 1)
	f.client.React(sourceCh, messageID, userB, thumbsUp)

	entered := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	f.client.OnFetch = func(id int64) {
		if id == messageID && calls.Add(1) == 1 {
			close(entered)
			<-release
		}
	}

	ev := platform.ReactionEvent{GuildID: guildID, ChannelID: sourceCh, MessageID: messageID, UserID: userB, Emoji: thumbsUp}

	done := make(chan struct{})
	go func() {
		f.engine.OnReactionAdd(context.Background(), ev)
		close(done)
	}()

	<-entered
	// второе событие видит пометку и сразу выходит
	f.engine.OnReactionAdd(context.Background(), ev)
	assert.Equal(t, int32(1), calls.Load())

	close(release)
	<-done

	assert.Len(t, f.client.Sent(), 1)
	assert.Len(t, f.store.records(), 1)
}

func TestEngine_ConcurrentEventsRepostOnce(t *testing.T) {
	f := newFixture(t, 1)
	f.client.React(sourceCh, messageID, userB, thumbsUp)

	ev := platform.ReactionEvent{GuildID: guildID, ChannelID: sourceCh, MessageID: messageID, UserID: userB, Emoji: thumbsUp}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.engine.OnReactionAdd(context.Background(), ev)
		}()
	}
	wg.Wait()

	assert.Len(t, f.client.Sent(), 1)
	assert.Len(t, f.store.records(), 1)

	f.engine.mu.Lock()
	assert.Empty(t, f.engine.processing)
	f.engine.mu.Unlock()
}

func TestEngine_FetchFailureClearsMarker(t *testing.T) {
	f := newFixture(t, 1)
	f.client.FailFetch(messageID, errors.New("timeout"))

	f.react(sourceCh, messageID, userB, thumbsUp)
	assert.Empty(t, f.client.Sent())

	f.engine.mu.Lock()
	assert.Empty(t, f.engine.processing)
	f.engine.mu.Unlock()
}

func TestEngine_DeletedMessageIsDropped(t *testing.T) {
	f := newFixture(t, 1)

	assert.False(t, f.engine.OnReactionAdd(context.Background(), platform.ReactionEvent{
		GuildID: guildID, ChannelID: sourceCh, MessageID: 404, UserID: userB, Emoji: thumbsUp,
	}))
	assert.Empty(t, f.client.Sent())
}

func TestEngine_SendFailureRecordsNothingAndRetries(t *testing.T) {
	f := newFixture(t, 1)
	f.client.SendErr = errors.New("discord down")

	f.react(sourceCh, messageID, userB, thumbsUp)
	assert.Empty(t, f.store.records())

	f.client.SendErr = nil
	f.react(sourceCh, messageID, userC, thumbsUp)
	assert.Len(t, f.client.Sent(), 1)
	assert.Len(t, f.store.records(), 1)
}

func TestEngine_SecondaryPostIsRecorded(t *testing.T) {
	f := newFixture(t, 1)
	f.client.AddMessage(&platform.Message{
		ID:        messageID,
		ChannelID: sourceCh,
		GuildID:   guildID,
		AuthorID:  authorA,
		Content:   "https://example.com/page",
	})

	f.react(sourceCh, messageID, userB, thumbsUp)

	sent := f.client.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, "https://example.com/page", sent[1].Post.Content)

	records := f.store.records()
	require.Len(t, records, 2)
	assert.Equal(t, records[0].SourceMessageID, records[1].SourceMessageID)
	assert.NotEqual(t, records[0].TargetMessageID, records[1].TargetMessageID)
}

func TestEngine_SelfReactionOnRepostIsIgnored(t *testing.T) {
	f := newFixture(t, 1)
	f.react(sourceCh, messageID, userB, thumbsUp)
	repost := f.repostID(t)

	assert.True(t, f.react(targetCh, repost, authorA, thumbsUp))
	assert.True(t, f.unreact(targetCh, repost, authorA, thumbsUp))

	assert.Empty(t, f.karma.snapshot())
}

func TestEngine_IgnoredChannelIsNotRelayed(t *testing.T) {
	f := newFixture(t, 1)
	f.karma.ignore(sourceCh)
	f.react(sourceCh, messageID, userB, thumbsUp)
	repost := f.repostID(t)

	// реакция на репостнутое сообщение в игнорируемом канале забирается, но не считается
	assert.True(t, f.react(sourceCh, messageID, userC, thumbsUp))
	assert.Empty(t, f.karma.snapshot())

	// в starboard-канале карма включена
	assert.True(t, f.react(targetCh, repost, userE, thumbsUp))
	assert.Equal(t, []karmaCall{{added: true, author: authorA, reactor: userE, value: 1}}, f.karma.snapshot())
}

func TestEngine_ZeroValueIsNotRelayed(t *testing.T) {
	f := newFixture(t, 1)
	f.react(sourceCh, messageID, userB, thumbsUp)
	repost := f.repostID(t)

	assert.True(t, f.react(targetCh, repost, userE, neutral))
	assert.Empty(t, f.karma.snapshot())
}

func TestEngine_DedupSymmetry(t *testing.T) {
	f := newFixture(t, 1)
	f.react(sourceCh, messageID, userB, thumbsUp)
	repost := f.repostID(t)

	// E ставит 👍 на репост, затем на оригинал: карма один раз
	f.react(targetCh, repost, userE, thumbsUp)
	f.react(sourceCh, messageID, userE, thumbsUp)
	assert.Equal(t, 1, f.karma.balance(authorA))

	// снятие первой реакции не меняет баланс, снятие второй возвращает его к нулю
	f.unreact(targetCh, repost, userE, thumbsUp)
	assert.Equal(t, 1, f.karma.balance(authorA))

	f.unreact(sourceCh, messageID, userE, thumbsUp)
	assert.Equal(t, 0, f.karma.balance(authorA))
}

func TestEngine_DedupAgainstReactionBeforeRepost(t *testing.T) {
	f := newFixture(t, 1)

	// реакция B до репоста не забирается starboard, её считает обычная карма
	assert.False(t, f.react(sourceCh, messageID, userB, thumbsUp))
	repost := f.repostID(t)

	// та же реакция B на репосте — дубликат
	assert.True(t, f.react(targetCh, repost, userB, thumbsUp))
	assert.Empty(t, f.karma.snapshot())

	// снятие с репоста — тоже дубликат, на оригинале реакция осталась
	assert.True(t, f.unreact(targetCh, repost, userB, thumbsUp))
	assert.Empty(t, f.karma.snapshot())

	// снятие с оригинала: на репосте реакции B нет, перенос -1 балансирует +1 обычной кармы
	assert.True(t, f.unreact(sourceCh, messageID, userB, thumbsUp))
	assert.Equal(t, []karmaCall{{added: false, author: authorA, reactor: userB, value: 1}}, f.karma.snapshot())
}

func TestEngine_DifferentEmojiIsNotDuplicate(t *testing.T) {
	f := newFixture(t, 1)
	f.react(sourceCh, messageID, userB, thumbsUp)
	repost := f.repostID(t)

	f.react(sourceCh, messageID, userE, thumbsDown)
	f.react(targetCh, repost, userE, thumbsUp)

	calls := f.karma.snapshot()
	require.Len(t, calls, 2)
	assert.Equal(t, -1, calls[0].value)
	assert.Equal(t, 1, calls[1].value)
}

func TestEngine_RelatedFetchFailureFailsOpen(t *testing.T) {
	f := newFixture(t, 1)
	f.react(sourceCh, messageID, userB, thumbsUp)
	repost := f.repostID(t)

	// E уже стоит на оригинале, но оригинал не получить: перенос всё равно выполняется
	f.client.React(sourceCh, messageID, userE, thumbsUp)
	f.client.FailFetch(messageID, errors.New("timeout"))

	assert.True(t, f.react(targetCh, repost, userE, thumbsUp))
	assert.Equal(t, 1, f.karma.balance(authorA))
}

func TestEngine_Routing(t *testing.T) {
	f := newFixture(t, 5)
	ctx := context.Background()

	// чужой канал
	assert.False(t, f.engine.OnReactionAdd(ctx, platform.ReactionEvent{
		GuildID: guildID, ChannelID: otherCh, MessageID: 1, UserID: userB, Emoji: thumbsUp,
	}))
	// сообщение в starboard-канале, не являющееся репостом
	assert.False(t, f.engine.OnReactionAdd(ctx, platform.ReactionEvent{
		GuildID: guildID, ChannelID: targetCh, MessageID: 2, UserID: userB, Emoji: thumbsUp,
	}))
	// снятие реакции с нерепостнутого сообщения источника
	assert.False(t, f.engine.OnReactionRemove(ctx, platform.ReactionEvent{
		GuildID: guildID, ChannelID: sourceCh, MessageID: messageID, UserID: userB, Emoji: thumbsUp,
	}))
	assert.Zero(t, f.client.Fetches())
}

func TestEngine_StoreErrorConsumesEvent(t *testing.T) {
	f := newFixture(t, 1)
	f.store.failBy = errors.New("db down")

	assert.True(t, f.react(sourceCh, messageID, userB, thumbsUp))
	assert.Empty(t, f.client.Sent())
}
