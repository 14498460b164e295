package core

// Frame is a raw text payload.
type Frame []byte

// SignalConnection abstracts a socket endpoint.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
