// Package memory provides a media engine that only does bookkeeping. It lets
// the signaling server run without a media plane.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/groupcall/internal/core"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownPipeline = errors.New("unknown pipeline")
	ErrUnknownEndpoint = errors.New("unknown endpoint")
)

type handle string

func (h handle) ID() string { return string(h) }

// Connection records a Connect call.
type Connection struct {
	Src  string
	Sink string
}

type Engine struct {
	mu        sync.Mutex
	pipelines map[string]map[string]struct{}
	endpoints map[string]string // endpoint -> pipeline
	offers    map[string]int
	conns     []Connection
	released  []string
}

var _ core.MediaEngine = (*Engine)(nil)

func NewEngine() *Engine {
	return &Engine{
		pipelines: make(map[string]map[string]struct{}),
		endpoints: make(map[string]string),
		offers:    make(map[string]int),
	}
}

func (e *Engine) CreatePipeline(_ context.Context) (core.Pipeline, error) {
	id := "pipeline-" + uuid.NewString()
	e.mu.Lock()
	e.pipelines[id] = make(map[string]struct{})
	e.mu.Unlock()
	return handle(id), nil
}

func (e *Engine) CreateEndpoint(_ context.Context, p core.Pipeline) (core.Endpoint, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	eps, ok := e.pipelines[p.ID()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", p.ID(), ErrUnknownPipeline)
	}
	id := "endpoint-" + uuid.NewString()
	eps[id] = struct{}{}
	e.endpoints[id] = p.ID()
	return handle(id), nil
}

// ProcessOffer answers with a placeholder; the answer names the endpoint and
// the negotiation round.
func (e *Engine) ProcessOffer(_ context.Context, ep core.Endpoint, sdpOffer string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.endpoints[ep.ID()]; !ok {
		return "", fmt.Errorf("%s: %w", ep.ID(), ErrUnknownEndpoint)
	}
	e.offers[ep.ID()]++
	return fmt.Sprintf("answer:%s:%d", ep.ID(), e.offers[ep.ID()]), nil
}

func (e *Engine) Connect(_ context.Context, src, sink core.Endpoint) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, id := range []string{src.ID(), sink.ID()} {
		if _, ok := e.endpoints[id]; !ok {
			return fmt.Errorf("%s: %w", id, ErrUnknownEndpoint)
		}
	}
	e.conns = append(e.conns, Connection{Src: src.ID(), Sink: sink.ID()})
	return nil
}

func (e *Engine) ReleaseEndpoint(ep core.Endpoint, done core.ReleaseFunc) {
	go func() {
		done(e.releaseEndpoint(ep.ID()))
	}()
}

func (e *Engine) releaseEndpoint(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	pid, ok := e.endpoints[id]
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownEndpoint)
	}
	delete(e.endpoints, id)
	delete(e.pipelines[pid], id)
	e.released = append(e.released, id)
	return nil
}

func (e *Engine) ReleasePipeline(p core.Pipeline, done core.ReleaseFunc) {
	go func() {
		e.mu.Lock()
		eps, ok := e.pipelines[p.ID()]
		if !ok {
			e.mu.Unlock()
			done(fmt.Errorf("%s: %w", p.ID(), ErrUnknownPipeline))
			return
		}
		for id := range eps {
			delete(e.endpoints, id)
			e.released = append(e.released, id)
		}
		delete(e.pipelines, p.ID())
		e.released = append(e.released, p.ID())
		e.mu.Unlock()
		log.Debug().Str("module", "memory").Str("pipeline", p.ID()).Int("endpoints", len(eps)).Msg("pipeline released")
		done(nil)
	}()
}

// Live reports whether a pipeline or endpoint is still held.
func (e *Engine) Live(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.endpoints[id]; ok {
		return true
	}
	_, ok := e.pipelines[id]
	return ok
}

func (e *Engine) EndpointCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.endpoints)
}

func (e *Engine) PipelineCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pipelines)
}

func (e *Engine) Connections() []Connection {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Connection(nil), e.conns...)
}

func (e *Engine) Offers(ep core.Endpoint) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offers[ep.ID()]
}
