package core

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dkeye/groupcall/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const chatTimeLayout = "15:04:05"

// Room is a named set of participants sharing one media pipeline.
// mu guards membership only and is never held across a send or a media
// engine call.
type Room struct {
	name     domain.RoomName
	engine   MediaEngine
	pipeline Pipeline
	logger   zerolog.Logger
	now      func() time.Time

	mu           sync.Mutex
	participants map[domain.ParticipantName]*Participant
	closed       bool

	closeOnce sync.Once
}

func NewRoom(name domain.RoomName, engine MediaEngine, pipeline Pipeline) *Room {
	r := &Room{
		name:         name,
		engine:       engine,
		pipeline:     pipeline,
		now:          time.Now,
		participants: make(map[domain.ParticipantName]*Participant),
		logger:       log.With().Str("module", "core.room").Str("room", string(name)).Logger(),
	}
	r.logger.Info().Str("pipeline", pipeline.ID()).Msg("room created")
	return r
}

func (r *Room) Name() domain.RoomName { return r.name }
func (r *Room) Pipeline() Pipeline    { return r.pipeline }

// Join creates a participant session and adds it to the room. The first
// participant of an empty room becomes admin and visible. Prior members are
// told about the newcomer, and the newcomer receives the prior members.
func (r *Room) Join(ctx context.Context, name domain.ParticipantName, conn SignalConnection) (*Participant, error) {
	r.logger.Info().Str("participant", string(name)).Msg("adding participant")

	if r.isClosed() {
		return nil, domain.ErrRoomClosed
	}
	p, err := NewParticipant(ctx, r.engine, r.pipeline, r.name, name, conn)
	if err != nil {
		// The pipeline may have been released under us.
		if r.isClosed() {
			return nil, domain.ErrRoomClosed
		}
		return nil, fmt.Errorf("join %s: %w", name, err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		p.Close()
		return nil, domain.ErrRoomClosed
	}
	if _, ok := r.participants[name]; ok {
		r.mu.Unlock()
		p.Close()
		return nil, fmt.Errorf("join %s: %w", name, domain.ErrNameTaken)
	}
	if len(r.participants) == 0 {
		p.setRights(true, true)
	}
	prior := sortedByName(lo.Values(r.participants))
	r.participants[name] = p
	r.mu.Unlock()

	r.notifyArrival(p, prior)
	r.sendParticipantNames(p, prior)
	return p, nil
}

func (r *Room) notifyArrival(newcomer *Participant, recipients []*Participant) {
	r.logger.Debug().Str("participant", string(newcomer.Name())).Msg("notifying other participants of new participant")
	msg := NewParticipantArrived{ID: MsgNewParticipantArrived, ParticipantInfo: newcomer.Info()}
	for _, rp := range recipients {
		if err := rp.SendMessage(msg); err != nil {
			r.logger.Debug().Err(err).Str("participant", string(rp.Name())).Msg("participant could not be notified")
		}
	}
}

func (r *Room) sendParticipantNames(p *Participant, others []*Participant) {
	data := make([]ParticipantInfo, 0, len(others))
	for _, o := range others {
		if o.Equal(p) {
			continue
		}
		data = append(data, o.Info())
	}
	info := p.Info()
	r.logger.Debug().Str("participant", string(p.Name())).Int("count", len(data)).Msg("sending list of participants")
	if err := p.SendMessage(ExistingParticipants{
		ID:               MsgExistingParticipants,
		IsNewUserAdmin:   info.IsAdmin,
		IsNewUserVisible: info.IsVisible,
		Data:             data,
	}); err != nil {
		r.logger.Debug().Err(err).Str("participant", string(p.Name())).Msg("participant list could not be sent")
	}
}

// Leave removes p, makes every remaining participant drop its incoming
// endpoint for p, tells them p left, and releases p's endpoints.
// No new admin is promoted when an admin leaves.
func (r *Room) Leave(p *Participant) {
	r.logger.Debug().Str("participant", string(p.Name())).Msg("participant leaving room")

	r.mu.Lock()
	cur, ok := r.participants[p.Name()]
	member := ok && cur == p
	if member {
		delete(r.participants, p.Name())
	}
	remaining := lo.Values(r.participants)
	r.mu.Unlock()

	// Closed before the others cancel, so a negotiation racing this leave
	// sees a closed sender once its endpoint is in place.
	p.Close()
	if member {
		msg := ParticipantLeft{ID: MsgParticipantLeft, Name: p.Name()}
		var unnotified []domain.ParticipantName
		for _, rp := range remaining {
			rp.CancelVideoFrom(p.Name())
			if err := rp.SendMessage(msg); err != nil {
				unnotified = append(unnotified, rp.Name())
			}
		}
		if len(unnotified) > 0 {
			r.logger.Debug().
				Str("participant", string(p.Name())).
				Interface("unnotified", unnotified).
				Msg("participants could not be notified of leave")
		}
	}
}

// UpdateVisibilityFor flips p's visible flag and tells every participant,
// p included.
func (r *Room) UpdateVisibilityFor(p *Participant) bool {
	visible := p.ToggleVisible()
	r.logger.Debug().Str("participant", string(p.Name())).Bool("visible", visible).Msg("visibility updated")
	r.broadcast(UpdateVisibility{ID: MsgUpdateVisibility, User: p.Name(), Visibility: visible})
	return visible
}

// DistributeChatMessage relays text to every participant, sender included.
func (r *Room) DistributeChatMessage(sender *Participant, text string) {
	at := r.now().Format(chatTimeLayout)
	for _, rp := range r.Participants() {
		msg := ChatMessageReceived{
			ID:     MsgChatMessageReceived,
			Sender: sender.Name(),
			Text:   text,
			Time:   at,
			IsYou:  rp.Equal(sender),
		}
		if err := rp.SendMessage(msg); err != nil {
			r.logger.Debug().Err(err).Str("participant", string(rp.Name())).Msg("chat message could not be delivered")
		}
	}
}

// ReleaseFirstSinkOf releases the first (in name order) incoming endpoint
// another participant holds for sender. It reports who held it.
func (r *Room) ReleaseFirstSinkOf(sender *Participant) (domain.ParticipantName, bool) {
	for _, rp := range r.Participants() {
		if rp.Equal(sender) {
			continue
		}
		if _, ok := rp.IncomingFrom(sender.Name()); ok {
			rp.CancelVideoFrom(sender.Name())
			r.logger.Info().Str("sender", string(sender.Name())).Str("sink_owner", string(rp.Name())).Msg("released media sink")
			return rp.Name(), true
		}
	}
	return "", false
}

func (r *Room) broadcast(msg any) {
	for _, rp := range r.Participants() {
		if err := rp.SendMessage(msg); err != nil {
			r.logger.Warn().Err(err).Str("participant", string(rp.Name())).Msg("broadcast delivery failed")
		}
	}
}

func (r *Room) Participant(name domain.ParticipantName) (*Participant, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[name]
	return p, ok
}

// Participants returns a name-ordered snapshot of the membership.
func (r *Room) Participants() []*Participant {
	r.mu.Lock()
	ps := lo.Values(r.participants)
	r.mu.Unlock()
	return sortedByName(ps)
}

func (r *Room) ParticipantsInfo() []ParticipantInfo {
	return lo.Map(r.Participants(), func(p *Participant, _ int) ParticipantInfo { return p.Info() })
}

func (r *Room) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.participants)
}

func (r *Room) Info() RoomInfo {
	return RoomInfo{Name: r.name, ParticipantCount: r.Len()}
}

func (r *Room) isClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// CloseIfEmpty marks an empty room closed so that no one joins it anymore.
func (r *Room) CloseIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.participants) > 0 {
		return false
	}
	r.closed = true
	return true
}

// Close closes every participant, clears membership and releases the
// pipeline. The release outcome is only logged.
func (r *Room) Close() {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		ps := lo.Values(r.participants)
		clear(r.participants)
		r.mu.Unlock()

		for _, p := range ps {
			p.Close()
		}

		r.engine.ReleasePipeline(r.pipeline, func(err error) {
			if err != nil {
				r.logger.Warn().Err(err).Msg("could not release pipeline")
				return
			}
			r.logger.Trace().Msg("released pipeline")
		})
		r.logger.Debug().Msg("room closed")
	})
}

func sortedByName(ps []*Participant) []*Participant {
	slices.SortFunc(ps, func(a, b *Participant) int { return cmp.Compare(a.Name(), b.Name()) })
	return ps
}
