package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/varys/internal/cluster"
)

func TestBestRxMachinesOrdersBySpareCapacity(t *testing.T) {
	c := NewCatalog(time.Second)
	now := time.Now()

	require.NoError(t, c.RegisterAgent(cluster.AgentRecord{SlaveID: "a1", Host: "h1", PublicHost: "h1", CommPort: 1, LastRxBps: 500}, now))
	require.NoError(t, c.RegisterAgent(cluster.AgentRecord{SlaveID: "a2", Host: "h2", PublicHost: "h2", CommPort: 2, LastRxBps: 100}, now))
	require.NoError(t, c.RegisterAgent(cluster.AgentRecord{SlaveID: "a3", Host: "h3", PublicHost: "h3", CommPort: 3, LastRxBps: 300}, now))

	hosts := c.BestRxMachines(2, 0, now)
	assert.Equal(t, []string{"h2", "h3"}, hosts)
}

func TestBestRxMachinesBreaksTiesBySlaveID(t *testing.T) {
	c := NewCatalog(time.Second)
	now := time.Now()
	require.NoError(t, c.RegisterAgent(cluster.AgentRecord{SlaveID: "b", Host: "hb", PublicHost: "hb", CommPort: 1, LastRxBps: 100}, now))
	require.NoError(t, c.RegisterAgent(cluster.AgentRecord{SlaveID: "a", Host: "ha", PublicHost: "ha", CommPort: 2, LastRxBps: 100}, now))

	hosts := c.BestRxMachines(2, 0, now)
	assert.Equal(t, []string{"ha", "hb"}, hosts)
}

func TestBestRxMachinesExcludesDeadAgents(t *testing.T) {
	c := NewCatalog(time.Second)
	now := time.Now()
	require.NoError(t, c.RegisterAgent(cluster.AgentRecord{SlaveID: "a1", Host: "h1", PublicHost: "h1", CommPort: 1}, now))

	hosts := c.BestRxMachines(5, 0, now.Add(time.Hour))
	assert.Empty(t, hosts)
}

func TestBestRxMachinesAppliesAdjustOverHeartbeatInterval(t *testing.T) {
	c := NewCatalog(2 * time.Second)
	now := time.Now()
	require.NoError(t, c.RegisterAgent(cluster.AgentRecord{SlaveID: "a1", Host: "h1", PublicHost: "h1", CommPort: 1, LastRxBps: 100}, now))
	require.NoError(t, c.RegisterAgent(cluster.AgentRecord{SlaveID: "a2", Host: "h2", PublicHost: "h2", CommPort: 2, LastRxBps: 140}, now))

	// adjustBytes/interval shifts every candidate's effective rate by the
	// same amount (50 bps, over the 2s heartbeat interval here), so it
	// never changes their relative order — only the absolute values a
	// caller compares against some external threshold would see it.
	hosts := c.BestRxMachines(2, 100, now)
	assert.Equal(t, []string{"h1", "h2"}, hosts)
}

func TestBestTxMachinesUsesTxBps(t *testing.T) {
	c := NewCatalog(time.Second)
	now := time.Now()
	require.NoError(t, c.RegisterAgent(cluster.AgentRecord{SlaveID: "a1", Host: "h1", PublicHost: "h1", CommPort: 1, LastTxBps: 900}, now))
	require.NoError(t, c.RegisterAgent(cluster.AgentRecord{SlaveID: "a2", Host: "h2", PublicHost: "h2", CommPort: 2, LastTxBps: 10}, now))

	hosts := c.BestTxMachines(1, 0, now)
	assert.Equal(t, []string{"h2"}, hosts)
}
