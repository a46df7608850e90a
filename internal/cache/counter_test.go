package cache

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type key struct {
	guild int64
	user  int64
}

type call struct {
	acc   string
	key   key
	delta int64
}

// memSink запоминает все вызовы Increment и суммирует их.
type memSink struct {
	mu     sync.Mutex
	calls  []call
	totals map[string]map[key]int64
	fail   func(acc string, k key) bool

	// block, если задан, держит Increment до закрытия канала.
	block   chan struct{}
	entered chan struct{}
}

func newMemSink() *memSink {
	return &memSink{totals: make(map[string]map[key]int64)}
}

func (s *memSink) Increment(_ context.Context, acc string, k key, delta int64) error {
	if s.entered != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
	}
	if s.block != nil {
		<-s.block
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.fail != nil && s.fail(acc, k) {
		return errors.New("db down")
	}
	s.calls = append(s.calls, call{acc: acc, key: k, delta: delta})
	if s.totals[acc] == nil {
		s.totals[acc] = make(map[key]int64)
	}
	s.totals[acc][k] += delta
	return nil
}

func (s *memSink) total(acc string, k key) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals[acc][k]
}

func (s *memSink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestCounter_CoalescesDeltasIntoOneWrite(t *testing.T) {
	sink := newMemSink()
	c := NewCounter[string, key]("test", sink)

	k := key{guild: 1, user: 2}
	c.Apply("value", k, 1)
	c.Apply("value", k, 1)
	c.Apply("value", k, -1)
	c.Apply("value", k, 1)

	res := c.Flush(context.Background())

	assert.False(t, res.Skipped)
	assert.Equal(t, 1, res.Written)
	require.Len(t, sink.calls, 1)
	assert.Equal(t, call{acc: "value", key: k, delta: 2}, sink.calls[0])
	assert.Equal(t, 0, c.Pending())
}

func TestCounter_ZeroDeltaIsNoop(t *testing.T) {
	sink := newMemSink()
	c := NewCounter[string, key]("test", sink)

	c.Apply("value", key{1, 1}, 0)

	assert.Equal(t, 0, c.Pending())
	res := c.Flush(context.Background())
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, 0, sink.callCount())
}

func TestCounter_ZeroSumIsSkipped(t *testing.T) {
	sink := newMemSink()
	c := NewCounter[string, key]("test", sink)

	c.Apply("value", key{1, 1}, 3)
	c.Apply("value", key{1, 1}, -3)

	res := c.Flush(context.Background())
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, 0, sink.callCount())
}

func TestCounter_AccumulatorsAreIndependent(t *testing.T) {
	sink := newMemSink()
	c := NewCounter[string, key]("test", sink)

	author := key{1, 10}
	reactor := key{1, 20}
	c.Apply("value", author, 1)
	c.Apply("given", reactor, 1)
	c.Apply("taken", reactor, 2)

	res := c.Flush(context.Background())

	assert.Equal(t, 3, res.Written)
	assert.Equal(t, int64(1), sink.total("value", author))
	assert.Equal(t, int64(1), sink.total("given", reactor))
	assert.Equal(t, int64(2), sink.total("taken", reactor))
	assert.Equal(t, int64(0), sink.total("value", reactor))
}

func TestCounter_SecondFlushWritesNothing(t *testing.T) {
	sink := newMemSink()
	c := NewCounter[string, key]("test", sink)

	c.Apply("value", key{1, 1}, 5)
	c.Flush(context.Background())
	res := c.Flush(context.Background())

	assert.Equal(t, 0, res.Written)
	assert.Equal(t, 1, sink.callCount())
}

func TestCounter_StoreErrorDropsEntryAndContinues(t *testing.T) {
	sink := newMemSink()
	bad := key{1, 1}
	good := key{1, 2}
	sink.fail = func(_ string, k key) bool { return k == bad }

	c := NewCounter[string, key]("test", sink)
	c.Apply("value", bad, 4)
	c.Apply("value", good, 7)

	res := c.Flush(context.Background())

	assert.Equal(t, 1, res.Written)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, int64(7), sink.total("value", good))

	// Потерянное значение не возвращается в кэш.
	assert.Equal(t, 0, c.Pending())
	sink.fail = nil
	res = c.Flush(context.Background())
	assert.Equal(t, 0, res.Written)
	assert.Equal(t, int64(0), sink.total("value", bad))
}

func TestCounter_ConcurrentFlushIsSkipped(t *testing.T) {
	sink := newMemSink()
	sink.block = make(chan struct{})
	sink.entered = make(chan struct{}, 1)

	c := NewCounter[string, key]("test", sink)
	c.Apply("value", key{1, 1}, 1)

	done := make(chan FlushResult)
	go func() { done <- c.Flush(context.Background()) }()

	<-sink.entered
	res := c.Flush(context.Background())
	assert.True(t, res.Skipped)

	close(sink.block)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, 1, first.Written)
}

func TestCounter_DeltasDuringFlushAreNotLost(t *testing.T) {
	sink := newMemSink()
	sink.block = make(chan struct{})
	sink.entered = make(chan struct{}, 1)

	c := NewCounter[string, key]("test", sink)
	k := key{1, 1}
	c.Apply("value", k, 1)

	done := make(chan FlushResult)
	go func() { done <- c.Flush(context.Background()) }()

	<-sink.entered
	c.Apply("value", k, 10)
	assert.Equal(t, 1, c.Pending())

	close(sink.block)
	<-done
	sink.block = nil

	c.Flush(context.Background())
	assert.Equal(t, int64(11), sink.total("value", k))
}

func TestCounter_DrainWaitsForRunningFlush(t *testing.T) {
	sink := newMemSink()
	sink.block = make(chan struct{})
	sink.entered = make(chan struct{}, 1)

	c := NewCounter[string, key]("test", sink)
	k := key{1, 1}
	c.Apply("value", k, 1)

	flushDone := make(chan struct{})
	go func() {
		c.Flush(context.Background())
		close(flushDone)
	}()
	<-sink.entered

	c.Apply("value", k, 2)

	drainDone := make(chan FlushResult)
	go func() { drainDone <- c.Drain(context.Background()) }()

	close(sink.block)
	<-flushDone
	res := <-drainDone

	assert.False(t, res.Skipped)
	assert.Equal(t, 1, res.Written)
	assert.Equal(t, int64(3), sink.total("value", k))
}

func TestCounter_ConcurrentApply(t *testing.T) {
	sink := newMemSink()
	c := NewCounter[string, key]("test", sink)
	k := key{1, 1}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Apply("value", k, 1)
			}
		}()
	}
	wg.Wait()

	c.Flush(context.Background())
	assert.Equal(t, int64(5000), sink.total("value", k))
}

func TestSinkFunc(t *testing.T) {
	var got int64
	sink := SinkFunc[string, key](func(_ context.Context, _ string, _ key, delta int64) error {
		got += delta
		return nil
	})
	c := NewCounter[string, key]("func", sink)
	c.Apply("a", key{1, 1}, 9)
	c.Flush(context.Background())
	assert.Equal(t, int64(9), got)
}
