package transport

import (
	"net"

	"github.com/dreamware/varys/internal/varyserr"
)

// Listener accepts framed control-plane connections.
type Listener struct {
	raw net.Listener
}

// Listen opens a TCP listener on addr ("host:port" or ":port").
func Listen(addr string) (*Listener, error) {
	raw, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, varyserr.WrapConnectivity(err, "listen %s", addr)
	}
	return &Listener{raw: raw}, nil
}

// Accept blocks for the next inbound connection.
func (l *Listener) Accept() (*Conn, error) {
	raw, err := l.raw.Accept()
	if err != nil {
		return nil, varyserr.WrapConnectivity(err, "accept")
	}
	return &Conn{raw: raw}, nil
}

// Addr reports the bound address, useful when addr was ":0".
func (l *Listener) Addr() net.Addr {
	return l.raw.Addr()
}

// Close stops accepting new connections.
func (l *Listener) Close() error {
	return l.raw.Close()
}
