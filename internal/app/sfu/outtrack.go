package sfu

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateDelete
)

// RTPWriter is the sink side of a relay, usually a *webrtc.TrackLocalStaticRTP.
type RTPWriter interface {
	WriteRTP(p *rtp.Packet) error
}

// OutTrack represents a single outgoing track to a sink endpoint.
type OutTrack struct {
	Writer RTPWriter
	state  atomic.Int32 // Zero by default (TrackStateOk)
}

func NewOutTrack(w RTPWriter) *OutTrack {
	return &OutTrack{Writer: w}
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}
