// Package transport provides the framed TCP connection, dial helper, and
// mailbox dispatch loop shared by the coordinator, agent, and client
// control-plane endpoints.
package transport

import (
	"net"
	"time"

	"github.com/dreamware/varys/internal/varyserr"
	"github.com/dreamware/varys/internal/wire"
)

// Conn wraps a net.Conn with the framed control-plane codec: every
// message sent or received is a single wire.Tag + CBOR payload frame.
type Conn struct {
	raw net.Conn
}

// NewConn adopts an already-established net.Conn.
func NewConn(raw net.Conn) *Conn {
	return &Conn{raw: raw}
}

// Dial opens a new control-plane connection to addr ("host:port").
func Dial(addr string) (*Conn, error) {
	raw, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, varyserr.WrapConnectivity(err, "dial %s", addr)
	}
	return &Conn{raw: raw}, nil
}

// Send marshals msg and writes it as a single tagged frame.
func (c *Conn) Send(tag wire.Tag, msg any) error {
	return wire.WriteMessage(c.raw, tag, msg)
}

// Recv reads one frame and decodes its payload into out.
func (c *Conn) Recv(out any) (wire.Tag, error) {
	return wire.ReadMessage(c.raw, out)
}

// RecvRaw reads one frame without decoding the payload.
func (c *Conn) RecvRaw() (wire.Tag, []byte, error) {
	return wire.ReadFrame(c.raw)
}

// RemoteAddr exposes the peer address for logging.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// Close closes the underlying socket.
func (c *Conn) Close() error {
	return c.raw.Close()
}

// SetDeadline forwards to the underlying socket, used by callers that
// need a read/write timeout around a single RPC.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.raw.SetDeadline(t)
}
