package points

import (
	"sync"
	"time"
)

// cleanupInterval — как часто Cooldown забывает истёкшие записи.
const cleanupInterval = 2 * time.Minute

// Cooldown пропускает не больше одного события на ключ за период.
type Cooldown struct {
	mu     sync.Mutex
	last   map[Key]time.Time
	period time.Duration
	now    func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewCooldown создаёт Cooldown и запускает фоновую очистку.
func NewCooldown(period time.Duration) *Cooldown {
	c := &Cooldown{
		last:   make(map[Key]time.Time),
		period: period,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	go c.cleanup()
	return c
}

// Close останавливает фоновую горутину очистки.
func (c *Cooldown) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Allow возвращает true и запоминает время, если с прошлого
// разрешённого события прошло не меньше периода.
func (c *Cooldown) Allow(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if t, ok := c.last[key]; ok && now.Sub(t) < c.period {
		return false
	}
	c.last[key] = now
	return true
}

// Len возвращает число запомненных ключей.
func (c *Cooldown) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}

func (c *Cooldown) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

// sweep удаляет ключи, период которых уже истёк.
func (c *Cooldown) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, t := range c.last {
		if now.Sub(t) >= c.period {
			delete(c.last, key)
		}
	}
}
