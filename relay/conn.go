package relay

// Conn is a live connection as seen by the relay. The transport owns it;
// the relay only keeps references.
type Conn interface {
	// ID is unique per connection for the lifetime of the process.
	ID() string
	// Send queues an encoded frame without blocking. It reports false when
	// the frame was dropped.
	Send(frame []byte) bool
}
