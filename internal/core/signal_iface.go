package core

// Frame is a raw text payload of one signaling message.
type Frame []byte

// ConnID identifies one live transport connection.
type ConnID string

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	// IsClosed reports whether the peer went away; sends to a closed
	// connection are skipped by callers.
	IsClosed() bool
	Close()
}
