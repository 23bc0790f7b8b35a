//go:generate go run go.uber.org/mock/mockgen -source=media_iface.go -destination=../mocks/mock_media.go -package=mocks
package core

import "context"

// Endpoint is an opaque media engine resource carrying one stream
// attachment of a participant.
type Endpoint interface {
	ID() string
}

// Pipeline groups all endpoints belonging to one room.
type Pipeline interface {
	ID() string
}

// ReleaseFunc is called once, out of band, when a release completes.
// A nil error means the resource was released.
type ReleaseFunc func(err error)

// MediaEngine is the capability the signaling core drives. It never
// exposes codecs or transport details.
type MediaEngine interface {
	CreatePipeline(ctx context.Context) (Pipeline, error)
	CreateEndpoint(ctx context.Context, pipeline Pipeline) (Endpoint, error)
	// ProcessOffer negotiates sdpOffer against ep and returns the SDP answer.
	// Every call issues a fresh negotiation.
	ProcessOffer(ctx context.Context, ep Endpoint, sdpOffer string) (string, error)
	// Connect feeds the media received by src into sink.
	Connect(ctx context.Context, src, sink Endpoint) error
	ReleaseEndpoint(ep Endpoint, done ReleaseFunc)
	ReleasePipeline(pipeline Pipeline, done ReleaseFunc)
}
