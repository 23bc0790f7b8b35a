// Package rtc implements the media engine on pion/webrtc: every endpoint is a
// server-side PeerConnection and connecting two endpoints forwards the RTP of
// the source to the sink through an sfu relay.
package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dkeye/groupcall/internal/app/sfu"
	"github.com/dkeye/groupcall/internal/core"
	"github.com/google/uuid"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"
)

var (
	ErrUnknownPipeline = errors.New("unknown pipeline")
	ErrUnknownEndpoint = errors.New("unknown endpoint")
	ErrForeignHandle   = errors.New("handle not created by this engine")
)

var (
	videoCodec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	audioCodec = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
)

type Config struct {
	ICEServers  []string
	PLIInterval time.Duration
}

type Engine struct {
	api         *webrtc.API
	config      webrtc.Configuration
	pliInterval time.Duration

	mu        sync.Mutex
	pipelines map[string]*Pipeline
}

var _ core.MediaEngine = (*Engine)(nil)

func NewEngine(cfg Config) (*Engine, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{RTPCodecCapability: videoCodec, PayloadType: 96}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register video codec: %w", err)
	}
	if err := m.RegisterCodec(webrtc.RTPCodecParameters{RTPCodecCapability: audioCodec, PayloadType: 111}, webrtc.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register audio codec: %w", err)
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	s := webrtc.SettingEngine{LoggerFactory: loggerFactory{}}

	return &Engine{
		api:         webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i), webrtc.WithSettingEngine(s)),
		config:      WebRTCConfig(cfg.ICEServers),
		pliInterval: cfg.PLIInterval,
		pipelines:   make(map[string]*Pipeline),
	}, nil
}

// Pipeline groups the endpoints of one room and the relays between them.
type Pipeline struct {
	id     string
	relays *sfu.RelayManager
	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	endpoints map[string]*Endpoint
}

func (p *Pipeline) ID() string { return p.id }

func (p *Pipeline) endpoint(id string) (*Endpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ep, ok := p.endpoints[id]
	return ep, ok
}

type Endpoint struct {
	id       string
	pipeline *Pipeline
	conn     *WebRTCConnection
}

func (e *Endpoint) ID() string { return e.id }

func (e *Engine) CreatePipeline(_ context.Context) (core.Pipeline, error) {
	// Pipelines outlive the request that created them.
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		id:        uuid.NewString(),
		relays:    sfu.NewRelayManager(),
		ctx:       ctx,
		cancel:    cancel,
		endpoints: make(map[string]*Endpoint),
	}
	e.mu.Lock()
	e.pipelines[p.id] = p
	e.mu.Unlock()
	log.Debug().Str("module", "rtc").Str("pipeline", p.id).Msg("pipeline created")
	return p, nil
}

func (e *Engine) pipeline(h core.Pipeline) (*Pipeline, error) {
	p, ok := h.(*Pipeline)
	if !ok {
		return nil, ErrForeignHandle
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pipelines[p.id]; !ok {
		return nil, fmt.Errorf("%s: %w", p.id, ErrUnknownPipeline)
	}
	return p, nil
}

func (e *Engine) endpoint(h core.Endpoint) (*Endpoint, error) {
	ep, ok := h.(*Endpoint)
	if !ok {
		return nil, ErrForeignHandle
	}
	if _, ok := ep.pipeline.endpoint(ep.id); !ok {
		return nil, fmt.Errorf("%s: %w", ep.id, ErrUnknownEndpoint)
	}
	return ep, nil
}

func (e *Engine) CreateEndpoint(_ context.Context, h core.Pipeline) (core.Endpoint, error) {
	p, err := e.pipeline(h)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	conn, err := NewWebRTCConnection(e.api, e.config, id)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	ep := &Endpoint{id: id, pipeline: p, conn: conn}
	conn.OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		p.relays.Start(ctx, sfu.Key{Source: id, Kind: track.Kind()}, track)
		if track.Kind() == webrtc.RTPCodecTypeVideo {
			go e.requestKeyframes(ctx, conn, track)
		}
	})
	conn.Start(p.ctx)

	p.mu.Lock()
	p.endpoints[id] = ep
	p.mu.Unlock()
	log.Debug().Str("module", "rtc").Str("pipeline", p.id).Str("endpoint", id).Msg("endpoint created")
	return ep, nil
}

// requestKeyframes sends a PLI for track every pliInterval so that sinks
// connected mid-stream get a decodable picture.
func (e *Engine) requestKeyframes(ctx context.Context, conn *WebRTCConnection, track *webrtc.TrackRemote) {
	if e.pliInterval <= 0 {
		return
	}
	ticker := time.NewTicker(e.pliInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := conn.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}})
			if errors.Is(err, io.ErrClosedPipe) {
				return
			}
			if err != nil {
				log.Debug().Err(err).Str("module", "rtc").Str("endpoint", conn.id).Msg("PLI write failed")
			}
		}
	}
}

func (e *Engine) ProcessOffer(ctx context.Context, h core.Endpoint, sdpOffer string) (string, error) {
	ep, err := e.endpoint(h)
	if err != nil {
		return "", err
	}
	answer, err := ep.conn.ApplyOfferAndCreateAnswer(ctx, webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdpOffer})
	if err != nil {
		return "", fmt.Errorf("negotiate endpoint %s: %w", ep.id, err)
	}
	return answer.SDP, nil
}

// Connect adds one local track per media kind to sink and feeds them from
// the relays of src.
func (e *Engine) Connect(_ context.Context, srcH, sinkH core.Endpoint) error {
	src, err := e.endpoint(srcH)
	if err != nil {
		return err
	}
	sink, err := e.endpoint(sinkH)
	if err != nil {
		return err
	}
	if src.pipeline != sink.pipeline {
		return fmt.Errorf("connect %s to %s: endpoints belong to different pipelines", src.id, sink.id)
	}

	kinds := []struct {
		kind  webrtc.RTPCodecType
		codec webrtc.RTPCodecCapability
	}{
		{webrtc.RTPCodecTypeAudio, audioCodec},
		{webrtc.RTPCodecTypeVideo, videoCodec},
	}
	for _, k := range kinds {
		track, err := webrtc.NewTrackLocalStaticRTP(k.codec, k.kind.String(), src.id)
		if err != nil {
			return fmt.Errorf("new %s track: %w", k.kind, err)
		}
		sender, err := sink.conn.AddLocalTrack(track)
		if err != nil {
			return fmt.Errorf("add %s track: %w", k.kind, err)
		}
		go drainRTCP(sender)
		src.pipeline.relays.AddSubscriber(sfu.Key{Source: src.id, Kind: k.kind}, sink.id, track)
	}
	log.Debug().Str("module", "rtc").Str("src", src.id).Str("sink", sink.id).Msg("endpoints connected")
	return nil
}

// drainRTCP reads incoming RTCP so the interceptors keep working.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (e *Engine) ReleaseEndpoint(h core.Endpoint, done core.ReleaseFunc) {
	go func() {
		var err error
		if r := panics.Try(func() { err = e.releaseEndpoint(h) }); r != nil {
			err = r.AsError()
		}
		done(err)
	}()
}

func (e *Engine) releaseEndpoint(h core.Endpoint) error {
	ep, ok := h.(*Endpoint)
	if !ok {
		return ErrForeignHandle
	}
	p := ep.pipeline
	p.mu.Lock()
	_, ok = p.endpoints[ep.id]
	delete(p.endpoints, ep.id)
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", ep.id, ErrUnknownEndpoint)
	}
	p.relays.StopSource(ep.id)
	p.relays.RemoveSubscriber(ep.id)
	return ep.conn.Close()
}

func (e *Engine) ReleasePipeline(h core.Pipeline, done core.ReleaseFunc) {
	go func() {
		var err error
		if r := panics.Try(func() { err = e.releasePipeline(h) }); r != nil {
			err = r.AsError()
		}
		done(err)
	}()
}

func (e *Engine) releasePipeline(h core.Pipeline) error {
	p, err := e.pipeline(h)
	if err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.pipelines, p.id)
	e.mu.Unlock()

	p.mu.Lock()
	endpoints := lo.Values(p.endpoints)
	clear(p.endpoints)
	p.mu.Unlock()

	p.relays.Close()
	var wg conc.WaitGroup
	for _, ep := range endpoints {
		ep := ep // per-iteration copy (go 1.21 loop semantics)
		wg.Go(func() { _ = ep.conn.Close() })
	}
	r := wg.WaitAndRecover()
	p.cancel()
	log.Debug().Str("module", "rtc").Str("pipeline", p.id).Int("endpoints", len(endpoints)).Msg("pipeline released")
	if r != nil {
		return r.AsError()
	}
	return nil
}
