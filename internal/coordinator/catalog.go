package coordinator

import (
	"sync"
	"time"

	"github.com/dreamware/varys/internal/cluster"
	"github.com/dreamware/varys/internal/policy"
	"github.com/dreamware/varys/internal/varyserr"
)

// coflowEntry is the coordinator's internal record of one registered
// coflow: its metadata, lifecycle state, owning client, and the flows
// published under it so far.
type coflowEntry struct {
	id        string
	clientID  string
	desc      cluster.CoflowDescription
	state     cluster.CoflowState
	flows     map[string]cluster.FlowDescription // keyed by FlowID
	receivers map[string]uint32                  // flowID -> successful GetFlow count so far
}

// Catalog is the coordinator's authoritative in-memory state: every
// registered agent, client, and coflow, and the invariants spec §3
// requires of them (an agent is live only while heartbeats stay
// recent; a coflow disappears, with all its flows, on unregister; a
// client's departure removes its own record and every coflow it
// owns). All access is serialized through a single mutex: the
// coordinator's mailbox goroutine, its agent-reaping loop and its
// policy loop all touch the catalog.
type Catalog struct {
	mu       sync.Mutex
	agents   map[string]*cluster.AgentRecord
	clients  map[string]*cluster.ClientRecord
	coflows  map[string]*coflowEntry
	heartbeatInterval time.Duration
}

// NewCatalog builds an empty catalog. heartbeatInterval is the
// interval agents are expected to heartbeat at, used to judge liveness
// (spec §3: live iff now - lastHeartbeatAt <= 3*heartbeatInterval).
func NewCatalog(heartbeatInterval time.Duration) *Catalog {
	return &Catalog{
		agents:            make(map[string]*cluster.AgentRecord),
		clients:           make(map[string]*cluster.ClientRecord),
		coflows:           make(map[string]*coflowEntry),
		heartbeatInterval: heartbeatInterval,
	}
}

// RegisterAgent admits a new agent, returning an error if an agent
// with the same slaveId is already registered or another agent already
// holds that host:commPort pair.
func (c *Catalog) RegisterAgent(rec cluster.AgentRecord, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for id, other := range c.agents {
		if id == rec.SlaveID {
			return varyserr.NewConfiguration("agent %s already registered", id)
		}
		if other.Host == rec.Host && other.CommPort == rec.CommPort {
			return varyserr.NewConfiguration("agent address %s:%d already registered as %s", rec.Host, rec.CommPort, id)
		}
	}
	rec.LastHeartbeatAt = now
	c.agents[rec.SlaveID] = &rec
	return nil
}

// Heartbeat records a fresh RX/TX sample for slaveID, returning
// NotFoundError if the agent was never registered (or has been
// reaped).
func (c *Catalog) Heartbeat(slaveID string, rxBps, txBps uint64, now time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	a, ok := c.agents[slaveID]
	if !ok {
		return varyserr.NewNotFound("agent %s", slaveID)
	}
	a.LastRxBps = rxBps
	a.LastTxBps = txBps
	a.LastHeartbeatAt = now
	return nil
}

// ReapDeadAgents removes every agent whose last heartbeat has aged out
// and returns their slaveIds, so callers can react (e.g. log, notify
// clients bound to them).
func (c *Catalog) ReapDeadAgents(now time.Time) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var dead []string
	for id, a := range c.agents {
		if !a.Live(now, c.heartbeatInterval) {
			dead = append(dead, id)
			delete(c.agents, id)
		}
	}
	return dead
}

// RegisterClient admits a client, binding it to slaveID (the agent
// running on the same host that will relay its data-plane traffic).
func (c *Catalog) RegisterClient(rec cluster.ClientRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clients[rec.ClientID] = &rec
}

// RemoveClient deletes a client's own record and cascades to
// unregister every coflow it owns, per spec §3 invariant 2 ("client
// unregistration cascades to unregister all its coflows").
func (c *Catalog) RemoveClient(clientID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.clients, clientID)
	for id, cf := range c.coflows {
		if cf.clientID == clientID {
			delete(c.coflows, id)
		}
	}
}

// Client looks up a registered client by id.
func (c *Catalog) Client(clientID string) (cluster.ClientRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.clients[clientID]
	if !ok {
		return cluster.ClientRecord{}, false
	}
	return *rec, true
}

// RegisterCoflow creates a new coflow entry under coflowID, owned by
// clientID. The caller chooses the id.
func (c *Catalog) RegisterCoflow(coflowID, clientID string, desc cluster.CoflowDescription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.coflows[coflowID] = &coflowEntry{
		id:        coflowID,
		clientID:  clientID,
		desc:      desc,
		state:     cluster.CoflowRegistered,
		flows:     make(map[string]cluster.FlowDescription),
		receivers: make(map[string]uint32),
	}
}

// UnregisterCoflow removes a coflow and every flow published under it.
func (c *Catalog) UnregisterCoflow(coflowID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.coflows[coflowID]; !ok {
		return varyserr.NewNotFound("coflow %s", coflowID)
	}
	delete(c.coflows, coflowID)
	return nil
}

// AddFlow publishes or idempotently republishes a flow under its
// coflow, transitioning the coflow to Running on its first flow.
func (c *Catalog) AddFlow(desc cluster.FlowDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	cf, ok := c.coflows[desc.DataID.CoflowID]
	if !ok {
		return varyserr.NewNotFound("coflow %s", desc.DataID.CoflowID)
	}
	cf.flows[desc.DataID.FlowID] = desc
	if cf.state == cluster.CoflowRegistered {
		cf.state = cluster.CoflowRunning
	}
	return nil
}

// GetFlow resolves a flow descriptor and, on success, increments that
// flow's receiver counter — marking the owning coflow Finished once
// every published flow has reached its NumReceivers count. The counter
// goes up on every successful call; repeated calls from the same
// client are not told apart and each one counts. found is false when the
// coflow or flow is unknown — the caller (the coordinator actor)
// reports that back to the asking client as an empty GotFlowDesc rather
// than an error, per spec §6.1's GetFlow/GotFlowDesc contract.
func (c *Catalog) GetFlow(coflowID, flowID string) (desc cluster.FlowDescription, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cf, ok := c.coflows[coflowID]
	if !ok {
		return cluster.FlowDescription{}, false
	}
	desc, ok = cf.flows[flowID]
	if !ok {
		return cluster.FlowDescription{}, false
	}

	cf.receivers[flowID]++
	if cf.receivers[flowID] >= desc.NumReceivers && allFlowsReceived(cf) {
		cf.state = cluster.CoflowFinished
	}
	return desc, true
}

// allFlowsReceived reports whether every flow currently published
// under cf has reached its own NumReceivers count.
func allFlowsReceived(cf *coflowEntry) bool {
	for flowID, f := range cf.flows {
		if cf.receivers[flowID] < f.NumReceivers {
			return false
		}
	}
	return true
}

// DeleteFlow removes a single flow from its coflow without affecting
// the coflow itself or its other flows.
func (c *Catalog) DeleteFlow(coflowID, flowID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cf, ok := c.coflows[coflowID]
	if !ok {
		return varyserr.NewNotFound("coflow %s", coflowID)
	}
	delete(cf.flows, flowID)
	return nil
}


// Snapshot renders the catalog's coflows into the shape internal/policy
// consumes, decoupling the policy package from the catalog's own
// locking and storage layout.
func (c *Catalog) Snapshot(now time.Time) policy.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := policy.Snapshot{Now: now.UnixNano()}
	for _, cf := range c.coflows {
		cs := policy.CoflowSnapshot{
			CoflowID: cf.id,
			Desc:     cf.desc,
			State:    cf.state,
			Flows:    make([]cluster.FlowDescription, 0, len(cf.flows)),
		}
		for _, f := range cf.flows {
			cs.Flows = append(cs.Flows, f)
		}
		snap.Coflows = append(snap.Coflows, cs)
	}
	return snap
}

// LiveAgents returns every agent currently considered live.
func (c *Catalog) LiveAgents(now time.Time) []cluster.AgentRecord {
	c.mu.Lock()
	defer c.mu.Unlock()

	live := make([]cluster.AgentRecord, 0, len(c.agents))
	for _, a := range c.agents {
		if a.Live(now, c.heartbeatInterval) {
			live = append(live, *a)
		}
	}
	return live
}

// ClientsBoundTo returns the ids of every client bound to slaveID.
func (c *Catalog) ClientsBoundTo(slaveID string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []string
	for id, cl := range c.clients {
		if cl.SlaveID == slaveID {
			ids = append(ids, id)
		}
	}
	return ids
}
