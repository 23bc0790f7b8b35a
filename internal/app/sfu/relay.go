package sfu

import (
	"context"
	"maps"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// RTPReader is the source side of a relay, usually a *webrtc.TrackRemote.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Key identifies the relay of one media kind published by one endpoint.
type Key struct {
	Source string
	Kind   webrtc.RTPCodecType
}

// Relay fans the packets of one source track out to every sink track
// connected to it. Sinks can be attached before the source track arrives.
type Relay struct {
	key    Key
	logger zerolog.Logger

	mu        sync.RWMutex
	outTracks map[string]*OutTrack
	cancel    context.CancelFunc
}

func NewRelay(key Key, logger zerolog.Logger) *Relay {
	return &Relay{
		key:       key,
		logger:    logger,
		outTracks: make(map[string]*OutTrack),
	}
}

// start replaces the running source loop, if any, with one reading src.
func (r *Relay) start(ctx context.Context, src RTPReader) {
	loopCtx, cancel := context.WithCancel(ctx)
	r.mu.Lock()
	if r.cancel != nil {
		r.logger.Info().Msg("replacing relay source")
		r.cancel()
	}
	r.cancel = cancel
	r.mu.Unlock()

	go r.loop(loopCtx, src)
}

// loop reads RTP packets from the source track and forwards them to all OutTracks.
func (r *Relay) loop(ctx context.Context, src RTPReader) {
	r.logger.Info().Msg("starting relay loop")
	for {
		select {
		case <-ctx.Done():
			r.logger.Debug().Msg("relay ctx done")
			return
		default:
		}
		pkt, _, err := src.ReadRTP()
		if err != nil {
			if ctx.Err() == nil {
				r.logger.Info().Err(err).Msg("relay source ended")
			}
			return
		}
		r.forward(pkt)
	}
}

func (r *Relay) forward(pkt *rtp.Packet) {
	r.mu.RLock()
	snapshot := maps.Clone(r.outTracks)
	r.mu.RUnlock()

	var dirty []string
	for sink, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, sink)
		case TrackStateOk:
			if err := ot.Writer.WriteRTP(pkt); err != nil {
				r.logger.Error().
					Err(err).
					Str("sink", sink).
					Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, sink)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *Relay) cleanupDeleted(dirty []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sink := range dirty {
		if ot, ok := r.outTracks[sink]; ok && ot.GetState() == TrackStateDelete {
			delete(r.outTracks, sink)
		}
	}
}

func (r *Relay) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
		r.cancel = nil
	}
	for _, ot := range r.outTracks {
		ot.MarkDelete()
	}
	clear(r.outTracks)
}

func (r *Relay) AddOutTrack(sink string, ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.outTracks[sink]; ok {
		old.MarkDelete()
	}
	r.outTracks[sink] = ot
}

func (r *Relay) removeOutTrack(sink string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ot, ok := r.outTracks[sink]
	if !ok {
		return false
	}
	ot.MarkDelete()
	delete(r.outTracks, sink)
	return true
}

func (r *Relay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outTracks)
}
