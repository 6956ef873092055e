// Package integration drives full coordinator+agent+client binaries as
// subprocesses, the same black-box style the original cluster tests
// used, adapted to the binary control-plane protocol: build the
// binaries once, launch a coordinator and one or more agents, then
// drive the system through the internal/client library rather than
// HTTP, since the wire protocol is no longer JSON-over-HTTP.
package integration

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamware/varys/internal/client"
	"github.com/dreamware/varys/internal/cluster"
)

// testCluster launches one coordinator and N agents as real
// subprocesses, binding to high loopback ports to avoid collisions
// with anything else running on the test host.
type testCluster struct {
	t         *testing.T
	coord     *exec.Cmd
	agents    []*exec.Cmd
	coordAddr string
	agentHost string
}

func newTestCluster(t *testing.T, numAgents int) *testCluster {
	t.Helper()
	buildBinaries(t)

	tc := &testCluster{t: t, coordAddr: "127.0.0.1:18090", agentHost: "127.0.0.1"}

	tc.coord = exec.Command("./bin/coordinator")
	tc.coord.Env = append(os.Environ(),
		"VARYS_COORDINATOR_ADDR="+tc.coordAddr,
		"VARYS_HEARTBEAT_INTERVAL=200ms",
		"VARYS_POLICY_INTERVAL=200ms",
	)
	tc.coord.Stdout, tc.coord.Stderr = os.Stdout, os.Stderr
	require.NoError(t, tc.coord.Start())
	waitForPort(t, tc.coordAddr)

	for i := 0; i < numAgents; i++ {
		controlPort := 18100 + i*10
		commPort := controlPort + 1
		webuiPort := controlPort + 2

		a := exec.Command("./bin/agent")
		a.Env = append(os.Environ(),
			fmt.Sprintf("VARYS_SLAVE_ID=agent-%d", i+1),
			fmt.Sprintf("VARYS_SLAVE_PORT=%d", controlPort),
			fmt.Sprintf("VARYS_SLAVE_COMM_PORT=%d", commPort),
			fmt.Sprintf("VARYS_SLAVE_WEBUI_PORT=%d", webuiPort),
			"VARYS_PUBLIC_DNS="+tc.agentHost,
			"VARYS_COORDINATOR_ADDR="+tc.coordAddr,
			"VARYS_HEARTBEAT_INTERVAL=200ms",
		)
		a.Stdout, a.Stderr = os.Stdout, os.Stderr
		require.NoError(t, a.Start())
		tc.agents = append(tc.agents, a)
	}

	// Give agents time to register before any test dials the coordinator.
	time.Sleep(500 * time.Millisecond)
	return tc
}

func (tc *testCluster) stop() {
	for _, a := range tc.agents {
		_ = a.Process.Kill()
	}
	if tc.coord != nil {
		_ = tc.coord.Process.Kill()
	}
}

func buildBinaries(t *testing.T) {
	t.Helper()
	if _, err := os.Stat("./bin/coordinator"); os.IsNotExist(err) {
		require.NoError(t, exec.Command("go", "build", "-o", "bin/coordinator", "../../cmd/coordinator").Run())
	}
	if _, err := os.Stat("./bin/agent"); os.IsNotExist(err) {
		require.NoError(t, exec.Command("go", "build", "-o", "bin/agent", "../../cmd/agent").Run())
	}
}

// waitForPort polls addr with a bare TCP dial; the full registration
// handshake is exercised separately by each scenario.
func waitForPort(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", addr)
}

func newClient(t *testing.T, coordAddr, name string, commPort uint16) *client.Client {
	t.Helper()
	c := client.New(client.Config{
		Name:            name,
		Host:            "127.0.0.1",
		CommPort:        commPort,
		CoordinatorAddr: coordAddr,
		AskTimeout:      3 * time.Second,
	}, zap.NewNop().Sugar())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	return c
}

func TestBasicInMemoryPutGet(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns real subprocesses; skipped in -short")
	}
	tc := newTestCluster(t, 1)
	defer tc.stop()

	publisher := newClient(t, tc.coordAddr, "publisher", 19001)
	defer publisher.Close()
	fetcher := newClient(t, tc.coordAddr, "fetcher", 19002)
	defer fetcher.Close()

	coflowID, err := publisher.RegisterCoflow(cluster.CoflowDescription{Name: "basic-put-get"})
	require.NoError(t, err)

	desc, err := publisher.PutObject(coflowID, "flow-1", "bytes", []byte("hello, varys"), 1)
	require.NoError(t, err)

	resolved, err := fetcher.GetFlow(coflowID, "flow-1")
	require.NoError(t, err)
	require.Equal(t, desc.DataID, resolved.DataID)

	data, err := fetcher.Get(resolved)
	require.NoError(t, err)
	require.Equal(t, []byte("hello, varys"), data)
}

func TestFakeFlowServedByAgent(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns real subprocesses; skipped in -short")
	}
	tc := newTestCluster(t, 1)
	defer tc.stop()

	publisher := newClient(t, tc.coordAddr, "publisher", 19011)
	defer publisher.Close()
	fetcher := newClient(t, tc.coordAddr, "fetcher", 19012)
	defer fetcher.Close()

	coflowID, err := publisher.RegisterCoflow(cluster.CoflowDescription{Name: "fake-flow"})
	require.NoError(t, err)

	desc, err := publisher.PutFake(coflowID, "flow-1", 4096, 1)
	require.NoError(t, err)
	require.Equal(t, cluster.Fake, desc.DataType)

	resolved, err := fetcher.GetFlow(coflowID, "flow-1")
	require.NoError(t, err)

	data, err := fetcher.Get(resolved)
	require.NoError(t, err)
	require.Len(t, data, 4096)
	require.Equal(t, byte(0), data[0])
	require.Equal(t, byte(1), data[1])
}

func TestUnregisterCoflowRemovesFlows(t *testing.T) {
	if testing.Short() {
		t.Skip("spawns real subprocesses; skipped in -short")
	}
	tc := newTestCluster(t, 1)
	defer tc.stop()

	c := newClient(t, tc.coordAddr, "solo", 19021)
	defer c.Close()

	coflowID, err := c.RegisterCoflow(cluster.CoflowDescription{Name: "cascade"})
	require.NoError(t, err)
	_, err = c.PutObject(coflowID, "flow-1", "bytes", []byte("x"), 1)
	require.NoError(t, err)

	require.NoError(t, c.UnregisterCoflow(coflowID))
	time.Sleep(200 * time.Millisecond)

	_, err = c.GetFlow(coflowID, "flow-1")
	require.Error(t, err)
}
