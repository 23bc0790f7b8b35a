package sfu

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// RelayManager owns the relays of one pipeline.
type RelayManager struct {
	mu     sync.RWMutex
	relays map[Key]*Relay
}

func NewRelayManager() *RelayManager {
	return &RelayManager{
		relays: make(map[Key]*Relay),
	}
}

func (m *RelayManager) getOrCreate(key Key) *Relay {
	m.mu.RLock()
	relay, ok := m.relays[key]
	m.mu.RUnlock()
	if ok {
		return relay
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if relay, ok := m.relays[key]; ok {
		return relay
	}
	logger := log.With().
		Str("module", "sfu.relay").
		Str("source", key.Source).
		Str("kind", key.Kind.String()).
		Logger()
	relay = NewRelay(key, logger)
	m.relays[key] = relay
	return relay
}

// Start feeds the relay of key from src. A previous source of the same key
// stops.
func (m *RelayManager) Start(ctx context.Context, key Key, src RTPReader) {
	m.getOrCreate(key).start(ctx, src)
}

// AddSubscriber attaches w to the relay of key under sink.
func (m *RelayManager) AddSubscriber(key Key, sink string, w RTPWriter) {
	m.getOrCreate(key).AddOutTrack(sink, NewOutTrack(w))
}

// RemoveSubscriber detaches sink from every relay.
func (m *RelayManager) RemoveSubscriber(sink string) {
	m.mu.RLock()
	relays := lo.Values(m.relays)
	m.mu.RUnlock()
	for _, r := range relays {
		r.removeOutTrack(sink)
	}
}

// StopSource stops and forgets every relay fed by source.
func (m *RelayManager) StopSource(source string) {
	m.mu.Lock()
	var stopped []*Relay
	for key, r := range m.relays {
		if key.Source == source {
			stopped = append(stopped, r)
			delete(m.relays, key)
		}
	}
	m.mu.Unlock()
	for _, r := range stopped {
		r.stop()
	}
}

// Subscribers reports how many sinks the relay of key feeds.
func (m *RelayManager) Subscribers(key Key) int {
	m.mu.RLock()
	relay, ok := m.relays[key]
	m.mu.RUnlock()
	if !ok {
		return 0
	}
	return relay.Len()
}

func (m *RelayManager) Close() {
	m.mu.Lock()
	relays := lo.Values(m.relays)
	clear(m.relays)
	m.mu.Unlock()
	for _, r := range relays {
		r.stop()
	}
}
