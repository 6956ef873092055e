package transport

import "github.com/dreamware/varys/internal/wire"

// PeerEventKind distinguishes the synthetic lifecycle events a mailbox
// owner can observe about a peer connection, standing in for the
// "watch" relationship between coordinator, agents, and clients: rather
// than blocking on a peer's liveness, the owner is told about it as
// just another message in its inbox.
type PeerEventKind int

const (
	// PeerConnected is posted once a freshly accepted or dialed
	// connection has been handed to a mailbox's serve loop.
	PeerConnected PeerEventKind = iota
	// PeerDisconnected is posted when a peer's connection is closed or
	// errors out, whether by remote hangup or local Close.
	PeerDisconnected
	// PeerShutdown is posted by an owner into its own mailbox to unwind
	// its serve loop cleanly.
	PeerShutdown
)

// Envelope is the single unit a Mailbox delivers: either an application
// message (Tag/Payload/Conn populated) or a synthetic peer event
// (IsEvent true, Event populated).
type Envelope struct {
	IsEvent bool
	Event   PeerEventKind

	Tag     wire.Tag
	Payload []byte
	Conn    *Conn
}

// Mailbox is a single-consumer inbox: every connection this component
// owns feeds frames and lifecycle events into the same channel, so the
// owner's goroutine processes them one at a time in arrival order
// instead of coordinating shared state across per-connection
// goroutines.
type Mailbox struct {
	ch chan Envelope
}

// NewMailbox allocates a mailbox with the given buffer depth.
func NewMailbox(buffer int) *Mailbox {
	return &Mailbox{ch: make(chan Envelope, buffer)}
}

// C exposes the receive side for a range/select loop.
func (m *Mailbox) C() <-chan Envelope {
	return m.ch
}

// PostMessage enqueues an application message from conn.
func (m *Mailbox) PostMessage(tag wire.Tag, payload []byte, conn *Conn) {
	m.ch <- Envelope{Tag: tag, Payload: payload, Conn: conn}
}

// PostEvent enqueues a synthetic lifecycle event about conn. conn may
// be nil for a self-directed PeerShutdown.
func (m *Mailbox) PostEvent(kind PeerEventKind, conn *Conn) {
	m.ch <- Envelope{IsEvent: true, Event: kind, Conn: conn}
}

// Close releases the channel. Callers must stop posting before calling
// Close; the serve loop should exit on a PeerShutdown event instead of
// relying on channel closure.
func (m *Mailbox) Close() {
	close(m.ch)
}

// ServeConn reads frames from conn until it errors or is closed,
// posting each as a message and finishing with a PeerDisconnected
// event. It is meant to run in its own goroutine per accepted or
// dialed connection, feeding a single owning Mailbox.
func ServeConn(conn *Conn, mb *Mailbox) {
	mb.PostEvent(PeerConnected, conn)
	for {
		tag, payload, err := conn.RecvRaw()
		if err != nil {
			mb.PostEvent(PeerDisconnected, conn)
			return
		}
		mb.PostMessage(tag, payload, conn)
	}
}
