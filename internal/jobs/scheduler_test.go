package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strawberry-py/strawberry-boards/internal/cache"
)

type fakeFlusher struct {
	name string

	mu      sync.Mutex
	flushes int
	drains  int
	ctxErr  error
}

func (f *fakeFlusher) Name() string { return f.name }

func (f *fakeFlusher) Flush(ctx context.Context) cache.FlushResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	f.ctxErr = ctx.Err()
	return cache.FlushResult{Written: 1}
}

func (f *fakeFlusher) Drain(context.Context) cache.FlushResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
	return cache.FlushResult{}
}

func (f *fakeFlusher) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flushes, f.drains
}

func TestRegister_RejectsNonPositiveInterval(t *testing.T) {
	s := NewScheduler()
	assert.Error(t, s.Register(&fakeFlusher{name: "karma"}, 0))
	assert.Empty(t, s.flushers)
}

func TestStop_DrainsEveryCacheOnce(t *testing.T) {
	s := NewScheduler()
	karma := &fakeFlusher{name: "karma"}
	points := &fakeFlusher{name: "points"}
	require.NoError(t, s.Register(karma, time.Hour))
	require.NoError(t, s.Register(points, time.Hour))

	s.Start(context.Background())
	s.Stop(context.Background())
	s.Stop(context.Background())

	_, drains := karma.counts()
	assert.Equal(t, 1, drains)
	_, drains = points.counts()
	assert.Equal(t, 1, drains)
}

func TestRun_IgnoresCancelledStartContext(t *testing.T) {
	s := NewScheduler()
	f := &fakeFlusher{name: "messages"}
	require.NoError(t, s.Register(f, time.Hour))

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	defer s.Stop(context.Background())
	cancel()

	s.run(f)
	flushes, _ := f.counts()
	assert.Equal(t, 1, flushes)
	assert.NoError(t, f.ctxErr)
}

func TestScheduler_FlushesPeriodically(t *testing.T) {
	if testing.Short() {
		t.Skip("ждёт срабатывания cron")
	}
	s := NewScheduler()
	f := &fakeFlusher{name: "messages"}
	require.NoError(t, s.Register(f, time.Second))

	s.Start(context.Background())
	defer s.Stop(context.Background())

	assert.Eventually(t, func() bool {
		flushes, _ := f.counts()
		return flushes > 0
	}, 5*time.Second, 50*time.Millisecond)
}
