package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/varys/internal/cluster"
)

func TestRegisterAgentRejectsAddressConflict(t *testing.T) {
	c := NewCatalog(time.Second)
	now := time.Now()

	require.NoError(t, c.RegisterAgent(cluster.AgentRecord{SlaveID: "a1", Host: "h1", CommPort: 9001}, now))
	err := c.RegisterAgent(cluster.AgentRecord{SlaveID: "a2", Host: "h1", CommPort: 9001}, now)
	assert.Error(t, err)
}

func TestHeartbeatUnknownAgent(t *testing.T) {
	c := NewCatalog(time.Second)
	err := c.Heartbeat("missing", 1, 1, time.Now())
	assert.Error(t, err)
}

func TestReapDeadAgents(t *testing.T) {
	c := NewCatalog(time.Second)
	now := time.Now()
	require.NoError(t, c.RegisterAgent(cluster.AgentRecord{SlaveID: "a1", Host: "h1", CommPort: 9001}, now))

	dead := c.ReapDeadAgents(now.Add(10 * time.Second))
	assert.Equal(t, []string{"a1"}, dead)
	assert.Empty(t, c.LiveAgents(now.Add(10*time.Second)))
}

func TestCoflowLifecycle(t *testing.T) {
	c := NewCatalog(time.Second)
	c.RegisterCoflow("cf1", "client1", cluster.CoflowDescription{Name: "test"})

	id := cluster.DataIdentifier{CoflowID: "cf1", FlowID: "f1"}
	desc := cluster.NewFakeDescription(id, 100, 1, "h1", 9001)
	require.NoError(t, c.AddFlow(desc))

	got, found := c.GetFlow("cf1", "f1")
	require.True(t, found)
	assert.Equal(t, desc, got)

	require.NoError(t, c.DeleteFlow("cf1", "f1"))
	_, found = c.GetFlow("cf1", "f1")
	assert.False(t, found)

	require.NoError(t, c.UnregisterCoflow("cf1"))
	assert.Error(t, c.UnregisterCoflow("cf1"))
}

func TestAddFlowUnknownCoflow(t *testing.T) {
	c := NewCatalog(time.Second)
	id := cluster.DataIdentifier{CoflowID: "missing", FlowID: "f1"}
	err := c.AddFlow(cluster.NewFakeDescription(id, 1, 1, "h1", 9001))
	assert.Error(t, err)
}

func TestRemoveClientCascadesCoflows(t *testing.T) {
	c := NewCatalog(time.Second)
	c.RegisterClient(cluster.ClientRecord{ClientID: "c1", SlaveID: "a1"})
	c.RegisterCoflow("cf1", "c1", cluster.CoflowDescription{Name: "test"})

	c.RemoveClient("c1")
	_, ok := c.Client("c1")
	assert.False(t, ok)

	err := c.AddFlow(cluster.NewFakeDescription(cluster.DataIdentifier{CoflowID: "cf1", FlowID: "f1"}, 1, 1, "h1", 1))
	assert.Error(t, err, "coflow should have been removed along with its owning client")
}

func TestGetFlowMarksCoflowFinishedAfterAllReceivers(t *testing.T) {
	c := NewCatalog(time.Second)
	c.RegisterCoflow("cf1", "c1", cluster.CoflowDescription{Name: "test"})
	id := cluster.DataIdentifier{CoflowID: "cf1", FlowID: "f1"}
	require.NoError(t, c.AddFlow(cluster.NewFakeDescription(id, 100, 2, "h1", 9001)))

	_, found := c.GetFlow("cf1", "f1")
	require.True(t, found)
	snap := c.Snapshot(time.Now())
	require.Len(t, snap.Coflows, 1)
	assert.Equal(t, cluster.CoflowRunning, snap.Coflows[0].State)

	_, found = c.GetFlow("cf1", "f1")
	require.True(t, found)
	snap = c.Snapshot(time.Now())
	assert.Equal(t, cluster.CoflowFinished, snap.Coflows[0].State)
}

func TestSnapshotIncludesFlows(t *testing.T) {
	c := NewCatalog(time.Second)
	c.RegisterCoflow("cf1", "c1", cluster.CoflowDescription{Name: "test"})
	id := cluster.DataIdentifier{CoflowID: "cf1", FlowID: "f1"}
	require.NoError(t, c.AddFlow(cluster.NewFakeDescription(id, 1, 1, "h1", 1)))

	snap := c.Snapshot(time.Now())
	require.Len(t, snap.Coflows, 1)
	assert.Equal(t, cluster.CoflowRunning, snap.Coflows[0].State)
	assert.Len(t, snap.Coflows[0].Flows, 1)
}
