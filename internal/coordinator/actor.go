package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dreamware/varys/internal/cluster"
	"github.com/dreamware/varys/internal/policy"
	"github.com/dreamware/varys/internal/transport"
	"github.com/dreamware/varys/internal/varyserr"
	"github.com/dreamware/varys/internal/wire"
)

// Coordinator is the single mailbox actor at the center of the star
// topology: every agent and client dials in, and every control message
// — registration, heartbeats, coflow and flow bookkeeping, ranking
// queries — is processed one at a time off Mailbox, so the Catalog
// never needs locking discipline beyond its own mutex.
type Coordinator struct {
	catalog           *Catalog
	policy            policy.Policy
	heartbeatInterval time.Duration
	policyInterval    time.Duration
	log               *zap.SugaredLogger

	listener *transport.Listener
	mailbox  *transport.Mailbox

	connMu      sync.Mutex
	agentConns  map[string]*transport.Conn
	clientConns map[string]*transport.Conn
	connSlave   map[*transport.Conn]string
	connClient  map[*transport.Conn]string
	// subs tracks, per clientID, the set of flows it has an active
	// GetFlow on — populated in onGetFlow, consulted by dispatchRates
	// so rate updates go only to clients actually fetching a flow
	// (spec §4.1), not broadcast to every connected client.
	subs map[string]map[cluster.DataIdentifier]struct{}
}

// New builds a Coordinator bound to an already-listening socket. pol
// may be nil, in which case policy.Identity is used.
func New(listener *transport.Listener, pol policy.Policy, heartbeatInterval, policyInterval time.Duration, log *zap.SugaredLogger) *Coordinator {
	if pol == nil {
		pol = policy.Identity
	}
	return &Coordinator{
		catalog:           NewCatalog(heartbeatInterval),
		policy:            pol,
		heartbeatInterval: heartbeatInterval,
		policyInterval:    policyInterval,
		log:               log,
		listener:          listener,
		mailbox:           transport.NewMailbox(256),
		agentConns:        make(map[string]*transport.Conn),
		clientConns:       make(map[string]*transport.Conn),
		connSlave:         make(map[*transport.Conn]string),
		connClient:        make(map[*transport.Conn]string),
		subs:              make(map[string]map[cluster.DataIdentifier]struct{}),
	}
}

// Run accepts connections and processes the mailbox until ctx is
// cancelled.
func (co *Coordinator) Run(ctx context.Context) error {
	go co.acceptLoop(ctx)
	go co.reapLoop(ctx)
	go co.policyLoop(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case env, ok := <-co.mailbox.C():
			if !ok {
				return nil
			}
			co.handle(env)
		}
	}
}

func (co *Coordinator) acceptLoop(ctx context.Context) {
	for {
		conn, err := co.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			co.log.Warnw("accept failed", "error", err)
			continue
		}
		go transport.ServeConn(conn, co.mailbox)
	}
}

func (co *Coordinator) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(co.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, slaveID := range co.catalog.ReapDeadAgents(time.Now()) {
				co.log.Infow("reaped dead agent", "slaveId", slaveID)
				co.connMu.Lock()
				delete(co.connSlave, co.agentConns[slaveID])
				delete(co.agentConns, slaveID)
				co.connMu.Unlock()
			}
		}
	}
}

func (co *Coordinator) policyLoop(ctx context.Context) {
	ticker := time.NewTicker(co.policyInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			co.dispatchRates()
		}
	}
}

// dispatchRates sends each connected client the rate updates for the
// flows it is actively fetching, per spec §4.1: a zero/absent rate
// from the policy means "no throttling", not "stop at zero", so it is
// never sent; and a client that never called GetFlow for a given flow
// never hears about its rate.
func (co *Coordinator) dispatchRates() {
	snap := co.catalog.Snapshot(time.Now())
	rates := co.policy(snap)
	if len(rates) == 0 {
		return
	}

	flowsByID := make(map[cluster.DataIdentifier]cluster.FlowDescription)
	for _, cf := range snap.Coflows {
		for _, f := range cf.Flows {
			flowsByID[f.DataID] = f
		}
	}

	co.connMu.Lock()
	defer co.connMu.Unlock()
	for clientID, conn := range co.clientConns {
		subscribed := co.subs[clientID]
		if len(subscribed) == 0 {
			continue
		}
		var updates []wire.RateUpdate
		for id := range subscribed {
			bps, ok := rates[id]
			if !ok || bps == 0 {
				continue
			}
			f, ok := flowsByID[id]
			if !ok {
				continue
			}
			updates = append(updates, wire.RateUpdate{Desc: f, Bps: bps})
		}
		if len(updates) == 0 {
			continue
		}
		if err := conn.Send(wire.TagUpdatedRates, wire.UpdatedRates{Updates: updates}); err != nil {
			co.log.Warnw("rate update send failed", "clientId", clientID, "error", err)
		}
	}
}

func (co *Coordinator) handle(env transport.Envelope) {
	if env.IsEvent {
		if env.Event == transport.PeerDisconnected {
			co.handleDisconnect(env.Conn)
		}
		return
	}

	var err error
	switch env.Tag {
	case wire.TagRegisterSlave:
		err = co.onRegisterSlave(env)
	case wire.TagHeartbeat:
		err = co.onHeartbeat(env)
	case wire.TagRegisterClient:
		err = co.onRegisterClient(env)
	case wire.TagRegisterCoflow:
		err = co.onRegisterCoflow(env)
	case wire.TagUnregisterCoflow:
		err = co.onUnregisterCoflow(env)
	case wire.TagAddFlow:
		err = co.onAddFlow(env)
	case wire.TagGetFlow:
		err = co.onGetFlow(env)
	case wire.TagDeleteFlow:
		err = co.onDeleteFlow(env)
	case wire.TagRequestBestRxMachines:
		err = co.onRequestBestRxMachines(env)
	case wire.TagRequestBestTxMachines:
		err = co.onRequestBestTxMachines(env)
	case wire.TagRequestSlaveState:
		err = co.onRequestSlaveState(env)
	default:
		co.log.Warnw("unhandled tag", "tag", env.Tag.String())
	}
	if err != nil {
		co.log.Warnw("message handling failed", "tag", env.Tag.String(), "error", err)
	}
}

func (co *Coordinator) handleDisconnect(conn *transport.Conn) {
	co.connMu.Lock()
	defer co.connMu.Unlock()
	if slaveID, ok := co.connSlave[conn]; ok {
		delete(co.agentConns, slaveID)
		delete(co.connSlave, conn)
		co.log.Infow("agent disconnected", "slaveId", slaveID)
	}
	if clientID, ok := co.connClient[conn]; ok {
		delete(co.clientConns, clientID)
		delete(co.connClient, conn)
		delete(co.subs, clientID)
		co.catalog.RemoveClient(clientID)
		co.log.Infow("client disconnected", "clientId", clientID)
	}
}

func (co *Coordinator) onRegisterSlave(env transport.Envelope) error {
	var msg wire.RegisterSlave
	if err := wire.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	rec := cluster.AgentRecord{
		SlaveID:    msg.SlaveID,
		Host:       msg.Host,
		Port:       msg.Port,
		WebUIPort:  msg.WebUIPort,
		CommPort:   msg.CommPort,
		PublicHost: msg.PublicHost,
	}
	if err := co.catalog.RegisterAgent(rec, time.Now()); err != nil {
		return env.Conn.Send(wire.TagRegisterSlaveFailed, wire.RegisterSlaveFailed{Message: err.Error()})
	}

	co.connMu.Lock()
	co.agentConns[msg.SlaveID] = env.Conn
	co.connSlave[env.Conn] = msg.SlaveID
	co.connMu.Unlock()

	webuiURL := cluster.FormatPeerURL(cluster.PeerAddr{Host: msg.PublicHost, Port: msg.WebUIPort})
	return env.Conn.Send(wire.TagRegisteredSlave, wire.RegisteredSlave{WebUIURL: webuiURL})
}

func (co *Coordinator) onHeartbeat(env transport.Envelope) error {
	var msg wire.Heartbeat
	if err := wire.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	return co.catalog.Heartbeat(msg.SlaveID, msg.RxBps, msg.TxBps, time.Now())
}

func (co *Coordinator) onRegisterClient(env transport.Envelope) error {
	var msg wire.RegisterClient
	if err := wire.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}

	slaveID, slaveURL, err := co.nearestAgent(msg.Host)
	if err != nil {
		return err
	}

	clientID := uuid.NewString()
	co.catalog.RegisterClient(cluster.ClientRecord{
		ClientID: clientID,
		Name:     msg.Name,
		Host:     msg.Host,
		CommPort: msg.CommPort,
		SlaveID:  slaveID,
	})

	co.connMu.Lock()
	co.clientConns[clientID] = env.Conn
	co.connClient[env.Conn] = clientID
	co.connMu.Unlock()

	return env.Conn.Send(wire.TagRegisteredClient, wire.RegisteredClient{
		ClientID: clientID,
		SlaveID:  slaveID,
		SlaveURL: slaveURL,
	})
}

// nearestAgent picks the agent running on the same host as the client
// when one exists, else falls back to the best (lowest-rx) live agent.
// Either way the client gets a slaveId + varys:// URL to its agent's
// control port, used to relay ONDISK/FAKE flow-hosting requests — not
// its data-plane CommPort, which only ever answers GetRequest traffic.
func (co *Coordinator) nearestAgent(host string) (slaveID, slaveURL string, err error) {
	live := co.catalog.LiveAgents(time.Now())
	if len(live) == 0 {
		return "", "", varyserr.NewConnectivity("no live agents registered")
	}
	for _, a := range live {
		if a.Host == host {
			return a.SlaveID, cluster.FormatPeerURL(cluster.PeerAddr{Host: a.PublicHost, Port: a.Port}), nil
		}
	}
	best := live[0]
	for _, a := range live[1:] {
		if a.LastRxBps < best.LastRxBps {
			best = a
		}
	}
	return best.SlaveID, cluster.FormatPeerURL(cluster.PeerAddr{Host: best.PublicHost, Port: best.Port}), nil
}

func (co *Coordinator) onRegisterCoflow(env transport.Envelope) error {
	var msg wire.RegisterCoflow
	if err := wire.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	coflowID := uuid.NewString()
	co.catalog.RegisterCoflow(coflowID, msg.ClientID, msg.Desc)
	return env.Conn.Send(wire.TagRegisteredCoflow, wire.RegisteredCoflow{CoflowID: coflowID})
}

func (co *Coordinator) onUnregisterCoflow(env transport.Envelope) error {
	var msg wire.UnregisterCoflow
	if err := wire.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	return co.catalog.UnregisterCoflow(msg.CoflowID)
}

func (co *Coordinator) onAddFlow(env transport.Envelope) error {
	var msg wire.AddFlow
	if err := wire.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	return co.catalog.AddFlow(msg.Desc)
}

func (co *Coordinator) onGetFlow(env transport.Envelope) error {
	var msg wire.GetFlow
	if err := wire.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	desc, found := co.catalog.GetFlow(msg.CoflowID, msg.FlowID)
	if found {
		co.connMu.Lock()
		if co.subs[msg.ClientID] == nil {
			co.subs[msg.ClientID] = make(map[cluster.DataIdentifier]struct{})
		}
		co.subs[msg.ClientID][desc.DataID] = struct{}{}
		co.connMu.Unlock()
	}
	return env.Conn.Send(wire.TagGotFlowDesc, wire.GotFlowDesc{Found: found, Desc: desc})
}

func (co *Coordinator) onDeleteFlow(env transport.Envelope) error {
	var msg wire.DeleteFlow
	if err := wire.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	return co.catalog.DeleteFlow(msg.CoflowID, msg.FlowID)
}

func (co *Coordinator) onRequestBestRxMachines(env transport.Envelope) error {
	var msg wire.RequestBestRxMachines
	if err := wire.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	hosts := co.catalog.BestRxMachines(msg.N, msg.AdjustBytes, time.Now())
	return env.Conn.Send(wire.TagBestRxMachines, wire.BestRxMachines{Hosts: hosts})
}

func (co *Coordinator) onRequestBestTxMachines(env transport.Envelope) error {
	var msg wire.RequestBestTxMachines
	if err := wire.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	hosts := co.catalog.BestTxMachines(msg.N, msg.AdjustBytes, time.Now())
	return env.Conn.Send(wire.TagBestTxMachines, wire.BestTxMachines{Hosts: hosts})
}

func (co *Coordinator) onRequestSlaveState(env transport.Envelope) error {
	var msg wire.RequestSlaveState
	if err := wire.Unmarshal(env.Payload, &msg); err != nil {
		return err
	}
	state := "UNKNOWN"
	co.connMu.Lock()
	if _, ok := co.agentConns[msg.SlaveID]; ok {
		state = "REGISTERED"
	}
	co.connMu.Unlock()
	return env.Conn.Send(wire.TagSlaveState, wire.SlaveState{SlaveID: msg.SlaveID, State: state})
}
