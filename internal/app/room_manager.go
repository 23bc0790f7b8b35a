package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/groupcall/internal/core"
	"github.com/dkeye/groupcall/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// RoomManager is the room directory. It creates rooms on first reference and
// forgets them only when asked to; it never evicts on its own.
type RoomManager struct {
	engine core.MediaEngine

	mu    sync.RWMutex
	rooms map[domain.RoomName]*core.Room
}

func NewRoomManager(engine core.MediaEngine) *RoomManager {
	return &RoomManager{
		engine: engine,
		rooms:  make(map[domain.RoomName]*core.Room),
	}
}

// GetOrCreate returns the room called name, creating it and its pipeline if
// absent. The pipeline is created outside the lock; a creation race is
// settled by releasing the losing pipeline.
func (f *RoomManager) GetOrCreate(ctx context.Context, name domain.RoomName) (*core.Room, error) {
	if room, ok := f.Get(name); ok {
		return room, nil
	}

	pipeline, err := f.engine.CreatePipeline(ctx)
	if err != nil {
		return nil, fmt.Errorf("create pipeline for room %s: %w", name, err)
	}

	f.mu.Lock()
	if room, ok := f.rooms[name]; ok {
		f.mu.Unlock()
		f.engine.ReleasePipeline(pipeline, func(err error) {
			if err != nil {
				log.Warn().Err(err).Str("module", "app.rooms").Str("room", string(name)).Msg("could not release spare pipeline")
			}
		})
		return room, nil
	}
	room := core.NewRoom(name, f.engine, pipeline)
	f.rooms[name] = room
	f.mu.Unlock()
	return room, nil
}

func (f *RoomManager) Get(name domain.RoomName) (*core.Room, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[name]
	return room, ok
}

// RemoveRoom destroys room if it is still the registered room of its name and
// has no participants. It reports whether the room was destroyed.
func (f *RoomManager) RemoveRoom(room *core.Room) bool {
	f.mu.Lock()
	if cur, ok := f.rooms[room.Name()]; !ok || cur != room || !room.CloseIfEmpty() {
		f.mu.Unlock()
		return false
	}
	delete(f.rooms, room.Name())
	f.mu.Unlock()

	room.Close()
	log.Info().Str("module", "app.rooms").Str("room", string(room.Name())).Msg("room removed")
	return true
}

func (f *RoomManager) List() []core.RoomInfo {
	f.mu.RLock()
	rooms := lo.Values(f.rooms)
	f.mu.RUnlock()
	return lo.Map(rooms, func(r *core.Room, _ int) core.RoomInfo { return r.Info() })
}

// CloseAll destroys every room regardless of membership. Used on shutdown.
func (f *RoomManager) CloseAll() {
	f.mu.Lock()
	rooms := lo.Values(f.rooms)
	clear(f.rooms)
	f.mu.Unlock()

	for _, r := range rooms {
		r.Close()
	}
	log.Info().Str("module", "app.rooms").Int("rooms", len(rooms)).Msg("all rooms closed")
}
