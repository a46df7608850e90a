package starboard

import "sync"

// ChannelSet — in-memory копия настроек каналов для маршрутизации событий.
// Читается на каждую реакцию, поэтому в БД за ней не ходим.
type ChannelSet struct {
	mu      sync.RWMutex
	sources map[int64]int64              // источник → starboard
	targets map[int64]map[int64]struct{} // starboard → его источники
}

// NewChannelSet создаёт пустой набор.
func NewChannelSet() *ChannelSet {
	return &ChannelSet{
		sources: make(map[int64]int64),
		targets: make(map[int64]map[int64]struct{}),
	}
}

// Load заменяет содержимое набора.
func (s *ChannelSet) Load(channels []*Channel) {
	sources := make(map[int64]int64, len(channels))
	targets := make(map[int64]map[int64]struct{}, len(channels))
	for _, c := range channels {
		sources[c.SourceChannelID] = c.TargetChannelID
		addSource(targets, c.TargetChannelID, c.SourceChannelID)
	}

	s.mu.Lock()
	s.sources = sources
	s.targets = targets
	s.mu.Unlock()
}

// Add добавляет пару каналов.
func (s *ChannelSet) Add(c *Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[c.SourceChannelID] = c.TargetChannelID
	addSource(s.targets, c.TargetChannelID, c.SourceChannelID)
}

// Remove удаляет пару каналов по источнику. Starboard-канал перестаёт
// быть starboard только когда у него не остаётся источников.
func (s *ChannelSet) Remove(sourceChannelID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.sources[sourceChannelID]
	if !ok {
		return
	}
	delete(s.sources, sourceChannelID)
	if srcs := s.targets[target]; srcs != nil {
		delete(srcs, sourceChannelID)
		if len(srcs) == 0 {
			delete(s.targets, target)
		}
	}
}

func addSource(targets map[int64]map[int64]struct{}, target, source int64) {
	srcs, ok := targets[target]
	if !ok {
		srcs = make(map[int64]struct{})
		targets[target] = srcs
	}
	srcs[source] = struct{}{}
}

// IsSource проверяет, что канал настроен как источник.
func (s *ChannelSet) IsSource(channelID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.sources[channelID]
	return ok
}

// IsTarget проверяет, что канал является starboard-каналом.
func (s *ChannelSet) IsTarget(channelID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.targets[channelID]
	return ok
}

// InUse проверяет, занят ли канал как источник или как starboard.
func (s *ChannelSet) InUse(channelID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, src := s.sources[channelID]
	_, dst := s.targets[channelID]
	return src || dst
}
