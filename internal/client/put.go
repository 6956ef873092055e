package client

import (
	"github.com/dreamware/varys/internal/cluster"
	"github.com/dreamware/varys/internal/wire"
)

// PutObject publishes data as an in-memory flow. This client's own
// object data server answers every fetch for it directly — the local
// agent only relays the descriptor to the coordinator unchanged (it
// never rewrites an INMEMORY origin, see internal/agent.onAddFlow).
func (c *Client) PutObject(coflowID, flowID, className string, data []byte, numReceivers uint32) (cluster.FlowDescription, error) {
	id := cluster.DataIdentifier{CoflowID: coflowID, FlowID: flowID}
	desc := cluster.NewObjectDescription(id, className, uint64(len(data)), numReceivers, c.cfg.Host, c.cfg.CommPort)

	c.objects.Put(id, data)
	return desc, c.relayToAgent(desc)
}

// PutFile publishes a byte range of a local file as an on-disk flow.
// The descriptor is relayed through this client's local agent, which
// rewrites its origin to itself and serves the bytes from then on. The
// relay is a one-way notification: the agent sends no acknowledgement.
// The returned descriptor still names this client as origin; the
// rewritten one is what GetFlow resolves at the coordinator.
func (c *Client) PutFile(coflowID, flowID, path string, offset, length uint64, numReceivers uint32) (cluster.FlowDescription, error) {
	id := cluster.DataIdentifier{CoflowID: coflowID, FlowID: flowID}
	desc := cluster.NewFileDescription(id, path, offset, length, numReceivers, c.cfg.Host, c.cfg.CommPort)
	return desc, c.relayToAgent(desc)
}

// PutFake publishes a synthetic, deterministically-generated flow of
// size bytes, relayed to the local agent the same way as PutFile.
func (c *Client) PutFake(coflowID, flowID string, size uint64, numReceivers uint32) (cluster.FlowDescription, error) {
	id := cluster.DataIdentifier{CoflowID: coflowID, FlowID: flowID}
	desc := cluster.NewFakeDescription(id, size, numReceivers, c.cfg.Host, c.cfg.CommPort)
	return desc, c.relayToAgent(desc)
}

// relayToAgent asks this client's bound agent to host desc.
func (c *Client) relayToAgent(desc cluster.FlowDescription) error {
	return c.sendAgent(wire.TagAddFlow, wire.AddFlow{Desc: desc})
}
