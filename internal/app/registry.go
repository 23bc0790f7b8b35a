package app

import (
	"sync"

	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry maps a live connection to its participant and a (room, name)
// identity back to the participant. Both indexes change under one lock.
type Registry struct {
	mu     sync.RWMutex
	byConn map[core.ConnID]*core.Participant
	byName map[domain.ParticipantKey]*core.Participant
}

func NewRegistry() *Registry {
	return &Registry{
		byConn: make(map[core.ConnID]*core.Participant),
		byName: make(map[domain.ParticipantKey]*core.Participant),
	}
}

func (r *Registry) Register(cid core.ConnID, p *core.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byConn[cid]; ok && old != p {
		r.dropName(old)
	}
	r.byConn[cid] = p
	r.byName[p.Key()] = p
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("participant", p.Key().String()).Msg("registered participant")
}

func (r *Registry) GetByConn(cid core.ConnID) (*core.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byConn[cid]
	return p, ok
}

func (r *Registry) GetByName(room domain.RoomName, name domain.ParticipantName) (*core.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[domain.ParticipantKey{Room: room, Name: name}]
	return p, ok
}

// RemoveByConn deregisters the connection and returns its participant.
// The name index is only cleared if it still points at that participant, so
// a fast rejoin under the same name keeps its newer registration.
func (r *Registry) RemoveByConn(cid core.ConnID) (*core.Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byConn[cid]
	if !ok {
		return nil, false
	}
	delete(r.byConn, cid)
	r.dropName(p)
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("participant", p.Key().String()).Msg("deregistered participant")
	return p, true
}

func (r *Registry) dropName(p *core.Participant) {
	if cur, ok := r.byName[p.Key()]; ok && cur == p {
		delete(r.byName, p.Key())
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byConn)
}
