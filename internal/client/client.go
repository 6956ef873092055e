// Package client implements the Varys client library: the API an
// application embeds to register coflows, publish flows (in-memory,
// on-disk, or synthetic), fetch other clients' flows, and stay
// subscribed to the coordinator's rate updates for the lifetime of a
// coflow.
package client

import (
	"context"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/varys/internal/cluster"
	"github.com/dreamware/varys/internal/throttle"
	"github.com/dreamware/varys/internal/transport"
	"github.com/dreamware/varys/internal/varyserr"
	"github.com/dreamware/varys/internal/wire"
)

// Config names the client's identity, addressing, and the coordinator
// it registers with.
type Config struct {
	Name            string
	Host            string
	CommPort        uint16
	CoordinatorAddr string
	AskTimeout      time.Duration
}

// Client is a live, registered connection to the coordinator. Build
// one with New, then call Connect before any other method.
type Client struct {
	cfg Config
	log *zap.SugaredLogger

	objects *ObjectStore

	conn    *transport.Conn
	mailbox *transport.Mailbox

	callMu  sync.Mutex
	pending chan frame

	rateMu         sync.Mutex
	flowToRate     map[cluster.DataIdentifier]uint64
	flowToThrottle map[cluster.DataIdentifier]*throttle.Limiter

	clientID string
	slaveID  string
	slaveURL string
}

type frame struct {
	tag     wire.Tag
	payload []byte
}

// New builds a Client. Call Connect to register it.
func New(cfg Config, log *zap.SugaredLogger) *Client {
	if cfg.AskTimeout == 0 {
		cfg.AskTimeout = 5 * time.Second
	}
	return &Client{
		cfg:            cfg,
		log:            log,
		objects:        NewObjectStore(),
		mailbox:        transport.NewMailbox(32),
		pending:        make(chan frame, 1),
		flowToRate:     make(map[cluster.DataIdentifier]uint64),
		flowToThrottle: make(map[cluster.DataIdentifier]*throttle.Limiter),
	}
}

// Connect dials the coordinator, registers, and starts this client's
// own object data server. It blocks until registration completes or
// fails — the registration barrier every other method depends on.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := transport.Dial(c.cfg.CoordinatorAddr)
	if err != nil {
		return varyserr.WrapConnectivity(err, "dial coordinator at %s", c.cfg.CoordinatorAddr)
	}
	c.conn = conn
	go transport.ServeConn(conn, c.mailbox)
	go c.dispatchLoop(ctx)

	if err := c.waitForRegistration(); err != nil {
		return err
	}

	l, err := net.Listen("tcp", ":"+strconv.Itoa(int(c.cfg.CommPort)))
	if err != nil {
		return varyserr.WrapConnectivity(err, "listen object data-plane port %d", c.cfg.CommPort)
	}
	go func() {
		if err := serveObjects(l, c.objects, c.log); err != nil && ctx.Err() == nil {
			c.log.Warnw("object server stopped", "error", err)
		}
	}()
	return nil
}

// waitForRegistration sends RegisterClient and blocks for the
// coordinator's reply, populating clientID/slaveID/slaveURL.
func (c *Client) waitForRegistration() error {
	_, payload, err := c.call(wire.TagRegisterClient, wire.RegisterClient{
		Name:     c.cfg.Name,
		Host:     c.cfg.Host,
		CommPort: c.cfg.CommPort,
	})
	if err != nil {
		return err
	}
	var ack wire.RegisteredClient
	if err := wire.Unmarshal(payload, &ack); err != nil {
		return err
	}
	c.clientID = ack.ClientID
	c.slaveID = ack.SlaveID
	c.slaveURL = ack.SlaveURL
	c.log.Infow("registered with coordinator", "clientId", c.clientID, "slaveId", c.slaveID)
	return nil
}

// dispatchLoop is this client's single consumer of its coordinator
// connection: pushed messages (UpdatedRates, StopClient) are applied
// immediately, everything else is handed to whichever call() is
// currently waiting on a reply.
func (c *Client) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-c.mailbox.C():
			if !ok {
				return
			}
			if env.IsEvent {
				if env.Event == transport.PeerDisconnected {
					c.log.Warnw("lost connection to coordinator")
				}
				continue
			}
			switch env.Tag {
			case wire.TagUpdatedRates:
				c.onUpdatedRates(env.Payload)
			case wire.TagStopClient:
				c.log.Infow("coordinator requested shutdown")
			default:
				c.pending <- frame{tag: env.Tag, payload: env.Payload}
			}
		}
	}
}

// call serializes one request/response round trip over the
// coordinator connection: synchronous calls never overlap, so replies
// always correspond to the most recently sent request.
func (c *Client) call(tag wire.Tag, msg any) (wire.Tag, []byte, error) {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	if err := c.conn.Send(tag, msg); err != nil {
		return 0, nil, err
	}
	select {
	case f := <-c.pending:
		return f.tag, f.payload, nil
	case <-time.After(c.cfg.AskTimeout):
		return 0, nil, varyserr.NewTimeout("waiting for reply to %s", tag)
	}
}

func (c *Client) onUpdatedRates(payload []byte) {
	var msg wire.UpdatedRates
	if err := wire.Unmarshal(payload, &msg); err != nil {
		c.log.Warnw("UpdatedRates decode failed", "error", err)
		return
	}

	c.rateMu.Lock()
	defer c.rateMu.Unlock()
	for _, u := range msg.Updates {
		c.flowToRate[u.Desc.DataID] = u.Bps
		if t, ok := c.flowToThrottle[u.Desc.DataID]; ok {
			t.SetRate(u.Bps)
		}
	}
}

// sendAgent dials this client's bound agent and sends msg as a
// fire-and-forget notification — a one-shot connection, closed as soon
// as the write completes, distinct from the persistent coordinator
// link c.conn.
func (c *Client) sendAgent(tag wire.Tag, msg any) error {
	addr, err := cluster.ParsePeerURL(c.slaveURL)
	if err != nil {
		return err
	}
	agentConn, err := transport.Dial(net.JoinHostPort(addr.Host, strconv.Itoa(int(addr.Port))))
	if err != nil {
		return err
	}
	defer agentConn.Close()
	return agentConn.Send(tag, msg)
}

// RegisterCoflow publishes coflow metadata and returns the
// coordinator-assigned coflow id. Per spec §4.3, once the coordinator
// acknowledges, the local agent is told too.
func (c *Client) RegisterCoflow(desc cluster.CoflowDescription) (string, error) {
	_, payload, err := c.call(wire.TagRegisterCoflow, wire.RegisterCoflow{ClientID: c.clientID, Desc: desc})
	if err != nil {
		return "", err
	}
	var ack wire.RegisteredCoflow
	if err := wire.Unmarshal(payload, &ack); err != nil {
		return "", err
	}
	if err := c.sendAgent(wire.TagRegisteredCoflow, ack); err != nil {
		c.log.Warnw("RegisteredCoflow relay to agent failed", "error", err)
	}
	return ack.CoflowID, nil
}

// UnregisterCoflow removes a coflow and every flow published under
// it. Fire-and-forget to both the coordinator and the local agent —
// neither acknowledges.
func (c *Client) UnregisterCoflow(coflowID string) error {
	msg := wire.UnregisterCoflow{CoflowID: coflowID}
	if err := c.conn.Send(wire.TagUnregisterCoflow, msg); err != nil {
		return err
	}
	if err := c.sendAgent(wire.TagUnregisterCoflow, msg); err != nil {
		c.log.Warnw("UnregisterCoflow relay to agent failed", "error", err)
	}
	return nil
}

// GetBestRxMachines asks the coordinator to rank agents by spare
// ingress capacity.
func (c *Client) GetBestRxMachines(n int, adjustBytes uint64) ([]string, error) {
	_, payload, err := c.call(wire.TagRequestBestRxMachines, wire.RequestBestRxMachines{N: n, AdjustBytes: adjustBytes})
	if err != nil {
		return nil, err
	}
	var ack wire.BestRxMachines
	if err := wire.Unmarshal(payload, &ack); err != nil {
		return nil, err
	}
	return ack.Hosts, nil
}

// GetBestTxMachines is the egress symmetric of GetBestRxMachines.
func (c *Client) GetBestTxMachines(n int, adjustBytes uint64) ([]string, error) {
	_, payload, err := c.call(wire.TagRequestBestTxMachines, wire.RequestBestTxMachines{N: n, AdjustBytes: adjustBytes})
	if err != nil {
		return nil, err
	}
	var ack wire.BestTxMachines
	if err := wire.Unmarshal(payload, &ack); err != nil {
		return nil, err
	}
	return ack.Hosts, nil
}

// GetFlow resolves a flow descriptor from the coordinator's catalog,
// then tells the local agent the same request so it can account for
// this receiver (spec §4.3). NotFoundError is returned when the coflow
// or flow is unknown; the agent is not notified in that case.
func (c *Client) GetFlow(coflowID, flowID string) (cluster.FlowDescription, error) {
	msg := wire.GetFlow{
		FlowID:   flowID,
		CoflowID: coflowID,
		ClientID: c.clientID,
		SlaveID:  c.slaveID,
	}
	_, payload, err := c.call(wire.TagGetFlow, msg)
	if err != nil {
		return cluster.FlowDescription{}, err
	}
	var ack wire.GotFlowDesc
	if err := wire.Unmarshal(payload, &ack); err != nil {
		return cluster.FlowDescription{}, err
	}
	if !ack.Found {
		return cluster.FlowDescription{}, varyserr.NewNotFound("flow %s/%s", coflowID, flowID)
	}
	if err := c.sendAgent(wire.TagGetFlow, msg); err != nil {
		c.log.Warnw("GetFlow relay to agent failed", "error", err)
	}
	return ack.Desc, nil
}

// DeleteFlow removes a single flow. Local bytes (if any, for an
// INMEMORY flow this client published) are dropped too. Per spec
// §4.3 this is a fire-and-forget notification to the local agent only
// — the agent's own onDeleteFlow handler relays it on to the
// coordinator.
func (c *Client) DeleteFlow(id cluster.DataIdentifier) error {
	c.objects.Delete(id)
	c.rateMu.Lock()
	delete(c.flowToRate, id)
	delete(c.flowToThrottle, id)
	c.rateMu.Unlock()
	return c.sendAgent(wire.TagDeleteFlow, wire.DeleteFlow{FlowID: id.FlowID, CoflowID: id.CoflowID})
}

// Close disconnects from the coordinator.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
