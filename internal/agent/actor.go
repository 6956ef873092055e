package agent

import (
	"context"
	"net"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/varys/internal/cluster"
	"github.com/dreamware/varys/internal/transport"
	"github.com/dreamware/varys/internal/varyserr"
	"github.com/dreamware/varys/internal/wire"
)

// Config names the agent's identity and addressing, assembled by
// cmd/agent/main.go from its environment.
type Config struct {
	SlaveID           string
	Host              string
	PublicHost        string
	Port              uint16 // local control listener: client -> agent flow-hosting requests
	CommPort          uint16 // data-plane listener: peer -> agent GetRequest traffic
	WebUIPort         uint16
	CoordinatorAddr   string
	HeartbeatInterval time.Duration
	NIC               string
	// WorkDir is the agent's local work directory (VARYS_SLAVE_DIR),
	// created if missing and used to resolve relative ONDISK paths.
	WorkDir string
}

// Agent is the per-host worker: it registers with the coordinator,
// heartbeats measured NIC throughput, hosts ONDISK/FAKE flows on
// behalf of clients running on its machine, and serves their bytes to
// whichever peer asks.
type Agent struct {
	cfg Config
	log *zap.SugaredLogger

	state      *stateBox
	sampler    *Sampler
	dataServer *DataServer

	coordConn *transport.Conn

	controlListener *transport.Listener
	controlMailbox  *transport.Mailbox
}

// New builds an Agent. Call Run to dial the coordinator and start
// serving.
func New(cfg Config, log *zap.SugaredLogger) *Agent {
	return &Agent{
		cfg:            cfg,
		log:            log,
		state:          newStateBox(StateStarting),
		sampler:        NewSampler(cfg.NIC),
		dataServer:     NewDataServer(log, cfg.WorkDir),
		controlMailbox: transport.NewMailbox(64),
	}
}

// State reports the agent's current lifecycle state.
func (a *Agent) State() State {
	return a.state.get()
}

// Run dials the coordinator, registers, and serves until ctx is
// cancelled.
func (a *Agent) Run(ctx context.Context) error {
	if a.cfg.WorkDir != "" {
		if err := os.MkdirAll(a.cfg.WorkDir, 0o755); err != nil {
			return varyserr.NewConfiguration("create work dir %s: %v", a.cfg.WorkDir, err)
		}
	}

	a.state.set(StateConnecting)
	conn, err := transport.Dial(a.cfg.CoordinatorAddr)
	if err != nil {
		return varyserr.WrapConnectivity(err, "dial coordinator at %s", a.cfg.CoordinatorAddr)
	}
	a.coordConn = conn

	if err := a.register(); err != nil {
		return err
	}
	a.state.set(StateRegistered)

	dataListener, err := net.Listen("tcp", portAddr(a.cfg.CommPort))
	if err != nil {
		return varyserr.WrapConnectivity(err, "listen data-plane port %d", a.cfg.CommPort)
	}
	defer dataListener.Close()
	go func() {
		if err := a.dataServer.Serve(dataListener); err != nil && ctx.Err() == nil {
			a.log.Warnw("data server stopped", "error", err)
		}
	}()

	controlListener, err := transport.Listen(portAddr(a.cfg.Port))
	if err != nil {
		return err
	}
	a.controlListener = controlListener
	defer controlListener.Close()
	go a.acceptControl(ctx)

	go a.heartbeatLoop(ctx)

	a.state.set(StateRunning)
	for {
		select {
		case <-ctx.Done():
			a.state.set(StateTerminated)
			return nil
		case env, ok := <-a.controlMailbox.C():
			if !ok {
				a.state.set(StateTerminated)
				return nil
			}
			a.handleControl(env)
		}
	}
}

func (a *Agent) register() error {
	msg := wire.RegisterSlave{
		SlaveID:    a.cfg.SlaveID,
		Host:       a.cfg.Host,
		Port:       a.cfg.Port,
		WebUIPort:  a.cfg.WebUIPort,
		CommPort:   a.cfg.CommPort,
		PublicHost: a.cfg.PublicHost,
	}
	if err := a.coordConn.Send(wire.TagRegisterSlave, msg); err != nil {
		return err
	}

	tag, payload, err := a.coordConn.RecvRaw()
	if err != nil {
		return err
	}
	if tag == wire.TagRegisterSlaveFailed {
		var failed wire.RegisterSlaveFailed
		if err := wire.Unmarshal(payload, &failed); err != nil {
			return err
		}
		return varyserr.NewConnectivity("registration rejected: %s", failed.Message)
	}
	var ack wire.RegisteredSlave
	if err := wire.Unmarshal(payload, &ack); err != nil {
		return err
	}
	a.log.Infow("registered with coordinator", "slaveId", a.cfg.SlaveID, "webui", ack.WebUIURL)
	return nil
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.state.set(StateHeartbeating)
			rx, tx, err := a.sampler.Sample()
			if err != nil {
				a.log.Warnw("NIC sample failed", "error", err)
			}
			if err := a.coordConn.Send(wire.TagHeartbeat, wire.Heartbeat{SlaveID: a.cfg.SlaveID, RxBps: rx, TxBps: tx}); err != nil {
				a.log.Warnw("heartbeat send failed", "error", err)
			}
			a.state.set(StateRunning)
		}
	}
}

func (a *Agent) acceptControl(ctx context.Context) {
	for {
		conn, err := a.controlListener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.log.Warnw("control accept failed", "error", err)
			continue
		}
		go transport.ServeConn(conn, a.controlMailbox)
	}
}

func (a *Agent) handleControl(env transport.Envelope) {
	if env.IsEvent {
		return
	}

	switch env.Tag {
	case wire.TagAddFlow:
		a.onAddFlow(env)
	case wire.TagDeleteFlow:
		a.onDeleteFlow(env)
	case wire.TagGetFlow:
		a.onGetFlow(env)
	case wire.TagRegisteredCoflow:
		a.onRegisteredCoflow(env)
	case wire.TagUnregisterCoflow:
		a.onUnregisterCoflow(env)
	case wire.TagRequestSlaveState:
		a.onRequestSlaveState(env)
	default:
		a.log.Warnw("unhandled control tag", "tag", env.Tag.String())
	}
}

// onAddFlow is reached when a local client publishes a flow. For an
// ONDISK or FAKE flow the agent rewrites the flow's origin to itself
// — so every future fetch lands on the agent's data server, not the
// client's process — and registers it locally. It then republishes the
// descriptor to the coordinator; an INMEMORY descriptor is forwarded
// unchanged.
func (a *Agent) onAddFlow(env transport.Envelope) {
	var msg wire.AddFlow
	if err := wire.Unmarshal(env.Payload, &msg); err != nil {
		a.log.Warnw("AddFlow decode failed", "error", err)
		return
	}

	desc := msg.Desc
	if desc.DataType != cluster.InMemory {
		desc.OriginHost = a.cfg.PublicHost
		desc.OriginPort = a.cfg.CommPort
		a.dataServer.Register(desc)
	}

	if err := a.coordConn.Send(wire.TagAddFlow, wire.AddFlow{Desc: desc}); err != nil {
		a.log.Warnw("AddFlow relay failed", "error", err)
	}
}

func (a *Agent) onDeleteFlow(env transport.Envelope) {
	var msg wire.DeleteFlow
	if err := wire.Unmarshal(env.Payload, &msg); err != nil {
		a.log.Warnw("DeleteFlow decode failed", "error", err)
		return
	}
	a.dataServer.Forget(cluster.DataIdentifier{CoflowID: msg.CoflowID, FlowID: msg.FlowID})
	if err := a.coordConn.Send(wire.TagDeleteFlow, msg); err != nil {
		a.log.Warnw("DeleteFlow relay failed", "error", err)
	}
}

// onGetFlow is reached when a local client fetches a flow, relayed
// here purely for receiver-side accounting visibility — the agent does
// not answer it, the client already has the descriptor from the
// coordinator.
func (a *Agent) onGetFlow(env transport.Envelope) {
	var msg wire.GetFlow
	if err := wire.Unmarshal(env.Payload, &msg); err != nil {
		a.log.Warnw("GetFlow decode failed", "error", err)
		return
	}
	a.log.Debugw("local client fetching flow", "coflowId", msg.CoflowID, "flowId", msg.FlowID, "clientId", msg.ClientID)
}

// onRegisteredCoflow is reached after a local client's RegisterCoflow
// is acknowledged by the coordinator.
func (a *Agent) onRegisteredCoflow(env transport.Envelope) {
	var msg wire.RegisteredCoflow
	if err := wire.Unmarshal(env.Payload, &msg); err != nil {
		a.log.Warnw("RegisteredCoflow decode failed", "error", err)
		return
	}
	a.log.Infow("local client registered coflow", "coflowId", msg.CoflowID)
}

// onUnregisterCoflow purges every flow this agent hosts under the
// unregistered coflow, so it stops serving bytes for it.
func (a *Agent) onUnregisterCoflow(env transport.Envelope) {
	var msg wire.UnregisterCoflow
	if err := wire.Unmarshal(env.Payload, &msg); err != nil {
		a.log.Warnw("UnregisterCoflow decode failed", "error", err)
		return
	}
	n := a.dataServer.ForgetCoflow(msg.CoflowID)
	a.log.Infow("purged locally hosted flows for unregistered coflow", "coflowId", msg.CoflowID, "count", n)
}

func (a *Agent) onRequestSlaveState(env transport.Envelope) {
	_ = env.Conn.Send(wire.TagSlaveState, wire.SlaveState{SlaveID: a.cfg.SlaveID, State: string(a.state.get())})
}

func portAddr(port uint16) string {
	return ":" + strconv.Itoa(int(port))
}
