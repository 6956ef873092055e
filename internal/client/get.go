package client

import (
	"io"
	"net"
	"strconv"
	"time"

	"github.com/dreamware/varys/internal/cluster"
	"github.com/dreamware/varys/internal/throttle"
	"github.com/dreamware/varys/internal/varyserr"
	"github.com/dreamware/varys/internal/wire"
)

// Get resolves desc's current bytes from whichever peer originates
// it — another client's object server for INMEMORY, or an agent's
// data server for ONDISK/FAKE — applying this flow's current
// coordinator-assigned rate, if any, while reading. The socket itself
// is read through the throttle, not an already-buffered copy, so the
// configured rate bounds the wire transfer and not just a post-hoc
// memcpy.
func (c *Client) Get(desc cluster.FlowDescription) ([]byte, error) {
	addr := net.JoinHostPort(desc.OriginHost, strconv.Itoa(int(desc.OriginPort)))
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, varyserr.WrapConnectivity(err, "dial flow origin %s", addr)
	}
	defer conn.Close()

	if err := wire.WriteGetRequest(conn, desc); err != nil {
		return nil, err
	}
	length, present, err := wire.ReadOptionalBytesHeader(conn)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, varyserr.NewNotFound("flow %s/%s at %s", desc.DataID.CoflowID, desc.DataID.FlowID, addr)
	}

	limiter := c.limiterFor(desc.DataID, io.LimitReader(conn, int64(length)))
	buf := make([]byte, length)
	if _, err := limiter.ReadFull(buf); err != nil {
		return nil, varyserr.WrapConnectivity(err, "throttled read")
	}
	return buf, nil
}

// limiterFor returns this flow's throttle.Limiter rebound to r,
// creating one at its currently known rate (0/unlimited if no
// UpdatedRates has arrived for it yet) the first time it is fetched.
// Reusing the same Limiter across repeated Get calls for a flow keeps
// its token bucket state — and thus the long-run rate it enforces —
// continuous across calls instead of resetting on every fetch.
func (c *Client) limiterFor(id cluster.DataIdentifier, r io.Reader) *throttle.Limiter {
	c.rateMu.Lock()
	defer c.rateMu.Unlock()

	if t, ok := c.flowToThrottle[id]; ok {
		t.Rebind(r)
		return t
	}
	t := throttle.NewLimiter(r, c.flowToRate[id])
	c.flowToThrottle[id] = t
	return t
}

// handleGet implements spec §4.3's handleGet(id, expectedType, cfid):
// resolve the flow at the coordinator (GetFlow also notifies the local
// agent so it can account for this receiver), validate its DataType
// against what the caller asked for, then fetch and throttle its bytes.
func (c *Client) handleGet(coflowID, flowID string, expected cluster.DataType) ([]byte, error) {
	desc, err := c.GetFlow(coflowID, flowID)
	if err != nil {
		return nil, err
	}
	if desc.DataType != expected {
		return nil, varyserr.NewType("flow %s/%s is %s, not %s", coflowID, flowID, desc.DataType, expected)
	}
	return c.Get(desc)
}

// GetObject resolves and fetches an INMEMORY flow published by
// PutObject.
func (c *Client) GetObject(coflowID, flowID string) ([]byte, error) {
	return c.handleGet(coflowID, flowID, cluster.InMemory)
}

// GetFile resolves and fetches an ONDISK flow published by PutFile.
func (c *Client) GetFile(coflowID, flowID string) ([]byte, error) {
	return c.handleGet(coflowID, flowID, cluster.OnDisk)
}

// GetFake resolves and fetches a FAKE flow published by PutFake.
func (c *Client) GetFake(coflowID, flowID string) ([]byte, error) {
	return c.handleGet(coflowID, flowID, cluster.Fake)
}
