package registry

// Frame is a raw marshaled signaling event.
type Frame []byte

// SignalConnection abstracts a client's messaging transport. Owned by the
// adapter; the adapter must Close() it. TrySend must not block.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
