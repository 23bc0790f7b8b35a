package core

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/groupcall/internal/domain"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Participant is the per-participant session of a room: one outgoing endpoint
// carrying the participant's own stream and one incoming endpoint per remote
// participant it receives from.
// It never owns the signal connection.
type Participant struct {
	name     domain.ParticipantName
	roomName domain.RoomName
	conn     SignalConnection
	engine   MediaEngine
	pipeline Pipeline
	outgoing Endpoint
	logger   zerolog.Logger

	mu       sync.Mutex
	incoming map[domain.ParticipantName]Endpoint
	admin    bool
	visible  bool
	closed   bool
}

// NewParticipant creates the session and its outgoing endpoint.
func NewParticipant(
	ctx context.Context,
	engine MediaEngine,
	pipeline Pipeline,
	roomName domain.RoomName,
	name domain.ParticipantName,
	conn SignalConnection,
) (*Participant, error) {
	outgoing, err := engine.CreateEndpoint(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("create outgoing endpoint: %w", err)
	}
	return &Participant{
		name:     name,
		roomName: roomName,
		conn:     conn,
		engine:   engine,
		pipeline: pipeline,
		outgoing: outgoing,
		incoming: make(map[domain.ParticipantName]Endpoint),
		logger: log.With().
			Str("module", "core.participant").
			Str("room", string(roomName)).
			Str("participant", string(name)).
			Logger(),
	}, nil
}

func (p *Participant) Name() domain.ParticipantName { return p.name }
func (p *Participant) RoomName() domain.RoomName    { return p.roomName }
func (p *Participant) Outgoing() Endpoint           { return p.outgoing }
func (p *Participant) Conn() SignalConnection       { return p.conn }

func (p *Participant) Key() domain.ParticipantKey {
	return domain.ParticipantKey{Room: p.roomName, Name: p.name}
}

// Equal compares by (name, room), not by connection.
func (p *Participant) Equal(other *Participant) bool {
	if other == nil {
		return false
	}
	return p.Key() == other.Key()
}

func (p *Participant) IsAdmin() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.admin
}

func (p *Participant) IsVisible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.visible
}

func (p *Participant) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Participant) Info() ParticipantInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return ParticipantInfo{Name: p.name, IsAdmin: p.admin, IsVisible: p.visible}
}

func (p *Participant) setRights(admin, visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.admin = admin
	p.visible = visible
}

// ToggleVisible flips the visible flag and returns the new value.
func (p *Participant) ToggleVisible() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visible = !p.visible
	return p.visible
}

// IncomingFrom returns the endpoint used to receive sender's stream, if any.
func (p *Participant) IncomingFrom(sender domain.ParticipantName) (Endpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.incoming[sender]
	return ep, ok
}

// IncomingSenders lists, in name order, the senders this participant receives from.
func (p *Participant) IncomingSenders() []domain.ParticipantName {
	p.mu.Lock()
	names := lo.Keys(p.incoming)
	p.mu.Unlock()
	slices.SortFunc(names, func(a, b domain.ParticipantName) int { return cmp.Compare(a, b) })
	return names
}

// ReceiveVideoFrom negotiates reception of sender's stream and answers the
// requester only.
func (p *Participant) ReceiveVideoFrom(ctx context.Context, sender *Participant, sdpOffer string) error {
	p.logger.Info().Str("sender", string(sender.Name())).Msg("connecting with sender")
	p.logger.Trace().Str("sender", string(sender.Name())).Str("sdp_offer", sdpOffer).Msg("sdp offer")

	ep, err := p.endpointFor(ctx, sender)
	if err != nil {
		return err
	}

	answer, err := p.engine.ProcessOffer(ctx, ep, sdpOffer)
	if err != nil {
		if !p.Equal(sender) {
			// Drop the endpoint so the next request starts from a fresh one.
			p.CancelVideoFrom(sender.Name())
		}
		return fmt.Errorf("process offer from %s: %w", sender.Name(), err)
	}
	p.logger.Trace().Str("sender", string(sender.Name())).Str("sdp_answer", answer).Msg("sdp answer")

	return p.SendMessage(ReceiveVideoAnswer{
		ID:        MsgReceiveVideoAnswer,
		Name:      sender.Name(),
		SdpAnswer: answer,
	})
}

// endpointFor returns the loopback (own outgoing) endpoint when sender is
// this participant, otherwise the incoming endpoint for sender, creating and
// connecting it on first use.
func (p *Participant) endpointFor(ctx context.Context, sender *Participant) (Endpoint, error) {
	if p.Equal(sender) {
		p.logger.Debug().Msg("configuring loopback")
		return p.outgoing, nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, domain.ErrParticipantClosed
	}
	if ep, ok := p.incoming[sender.Name()]; ok {
		p.mu.Unlock()
		p.logger.Debug().Str("sender", string(sender.Name())).Msg("reusing incoming endpoint")
		return ep, nil
	}
	p.mu.Unlock()

	p.logger.Debug().Str("sender", string(sender.Name())).Msg("creating incoming endpoint")
	ep, err := p.engine.CreateEndpoint(ctx, p.pipeline)
	if err != nil {
		return nil, fmt.Errorf("create incoming endpoint for %s: %w", sender.Name(), err)
	}
	if err := p.engine.Connect(ctx, sender.Outgoing(), ep); err != nil {
		p.release(ep, "incoming", sender.Name())
		return nil, fmt.Errorf("connect %s to %s: %w", sender.Name(), p.name, err)
	}

	p.mu.Lock()
	switch existing, ok := p.incoming[sender.Name()]; {
	case p.closed:
		p.mu.Unlock()
		p.release(ep, "incoming", sender.Name())
		return nil, domain.ErrParticipantClosed
	case ok:
		// A concurrent request won the race.
		p.mu.Unlock()
		p.release(ep, "incoming", sender.Name())
		return existing, nil
	default:
		p.incoming[sender.Name()] = ep
		p.mu.Unlock()
	}

	if sender.IsClosed() {
		p.CancelVideoFrom(sender.Name())
		return nil, fmt.Errorf("%s: %w", sender.Name(), domain.ErrSenderNotFound)
	}
	return ep, nil
}

// CancelVideoFrom removes and releases the incoming endpoint for senderName.
// It is a no-op when there is none.
func (p *Participant) CancelVideoFrom(senderName domain.ParticipantName) {
	p.mu.Lock()
	ep, ok := p.incoming[senderName]
	delete(p.incoming, senderName)
	p.mu.Unlock()

	if !ok {
		p.logger.Debug().Str("sender", string(senderName)).Msg("no incoming endpoint to cancel")
		return
	}
	p.logger.Debug().Str("sender", string(senderName)).Msg("canceling video reception")
	p.release(ep, "incoming", senderName)
}

// Close releases every incoming endpoint and the outgoing one. Releases are
// fire-and-forget; repeated calls are no-ops.
func (p *Participant) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	incoming := p.incoming
	p.incoming = make(map[domain.ParticipantName]Endpoint)
	p.mu.Unlock()

	p.logger.Debug().Int("incoming", len(incoming)).Msg("releasing resources")
	for sender, ep := range incoming {
		p.release(ep, "incoming", sender)
	}
	p.release(p.outgoing, "outgoing", "")
}

func (p *Participant) release(ep Endpoint, kind string, sender domain.ParticipantName) {
	p.engine.ReleaseEndpoint(ep, func(err error) {
		ev := p.logger.Trace()
		msg := "released endpoint"
		if err != nil {
			ev = p.logger.Warn().Err(err)
			msg = "could not release endpoint"
		}
		ev.Str("endpoint", ep.ID()).Str("kind", kind)
		if sender != "" {
			ev.Str("sender", string(sender))
		}
		ev.Msg(msg)
	})
}

// SendMessage encodes v and queues it on the connection. A closed connection
// is a soft no-op.
func (p *Participant) SendMessage(v any) error {
	if p.conn.IsClosed() {
		p.logger.Debug().Msg("skip send on closed connection")
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	p.logger.Debug().RawJSON("message", b).Msg("sending message")
	return p.conn.TrySend(b)
}
