package client

import (
	"net"

	"go.uber.org/zap"

	"github.com/dreamware/varys/internal/varyserr"
	"github.com/dreamware/varys/internal/wire"
)

// serveObjects answers the data-plane GetRequest protocol for this
// client's own INMEMORY flows, reading each request's bytes straight
// out of objects.
func serveObjects(l net.Listener, objects *ObjectStore, log *zap.SugaredLogger) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return varyserr.WrapConnectivity(err, "object data-plane accept")
		}
		go func() {
			defer conn.Close()
			desc, err := wire.ReadGetRequest(conn)
			if err != nil {
				log.Warnw("object request read failed", "error", err)
				return
			}
			data, err := objects.Get(desc.DataID)
			if err != nil {
				_ = wire.WriteOptionalBytes(conn, nil, false)
				return
			}
			if err := wire.WriteOptionalBytes(conn, data, true); err != nil {
				log.Warnw("object response write failed", "flow", desc.DataID, "error", err)
			}
		}()
	}
}
