package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamware/varys/internal/cluster"
	"github.com/dreamware/varys/internal/policy"
	"github.com/dreamware/varys/internal/transport"
	"github.com/dreamware/varys/internal/wire"
)

// fixedRatePolicy reports a constant bps for every flow in the
// snapshot, letting a test force dispatchRates to have something to
// dispatch without depending on a real scheduling policy.
func fixedRatePolicy(bps uint64) policy.Policy {
	return func(snap policy.Snapshot) map[cluster.DataIdentifier]uint64 {
		rates := make(map[cluster.DataIdentifier]uint64)
		for _, cf := range snap.Coflows {
			for _, f := range cf.Flows {
				rates[f.DataID] = bps
			}
		}
		return rates
	}
}

func startActorTestCoordinator(t *testing.T, pol policy.Policy) (addr string, stop func()) {
	t.Helper()
	l, err := transport.Listen("127.0.0.1:0")
	require.NoError(t, err)

	co := New(l, pol, 50*time.Millisecond, 20*time.Millisecond, zap.NewNop().Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	go co.Run(ctx)

	return l.Addr().String(), func() {
		cancel()
		l.Close()
	}
}

func registerTestAgent(t *testing.T, coordAddr, slaveID, host string) *transport.Conn {
	t.Helper()
	conn, err := transport.Dial(coordAddr)
	require.NoError(t, err)
	require.NoError(t, conn.Send(wire.TagRegisterSlave, wire.RegisterSlave{
		SlaveID: slaveID, Host: host, Port: 1, WebUIPort: 2, CommPort: 3, PublicHost: host,
	}))
	tag, _, err := conn.RecvRaw()
	require.NoError(t, err)
	require.Equal(t, wire.TagRegisteredSlave, tag)
	return conn
}

func registerTestClient(t *testing.T, coordAddr, host string) (clientID string, conn *transport.Conn) {
	t.Helper()
	conn, err := transport.Dial(coordAddr)
	require.NoError(t, err)
	require.NoError(t, conn.Send(wire.TagRegisterClient, wire.RegisterClient{Name: "c", Host: host, CommPort: 9}))
	var ack wire.RegisteredClient
	tag, err := conn.Recv(&ack)
	require.NoError(t, err)
	require.Equal(t, wire.TagRegisteredClient, tag)
	return ack.ClientID, conn
}

// TestDispatchRatesOnlyNotifiesSubscribedClients exercises spec §4.1's
// delivery filter: a client only hears UpdatedRates for flows it has
// an active GetFlow on, and only when the policy assigns a nonzero
// rate.
func TestDispatchRatesOnlyNotifiesSubscribedClients(t *testing.T) {
	coordAddr, stop := startActorTestCoordinator(t, fixedRatePolicy(500))
	defer stop()

	agentConn := registerTestAgent(t, coordAddr, "a1", "127.0.0.1")
	defer agentConn.Close()

	subscriberID, subscriberConn := registerTestClient(t, coordAddr, "127.0.0.1")
	defer subscriberConn.Close()
	bystanderID, bystanderConn := registerTestClient(t, coordAddr, "127.0.0.1")
	defer bystanderConn.Close()
	_ = bystanderID

	require.NoError(t, subscriberConn.Send(wire.TagRegisterCoflow, wire.RegisterCoflow{ClientID: subscriberID, Desc: cluster.CoflowDescription{Name: "cf"}}))
	var regAck wire.RegisteredCoflow
	_, err := subscriberConn.Recv(&regAck)
	require.NoError(t, err)

	id := cluster.DataIdentifier{CoflowID: regAck.CoflowID, FlowID: "f1"}
	desc := cluster.NewFakeDescription(id, 100, 5, "127.0.0.1", 9001)
	require.NoError(t, subscriberConn.Send(wire.TagAddFlow, wire.AddFlow{Desc: desc}))

	// Only the subscriber calls GetFlow — only it should subscribe.
	require.NoError(t, subscriberConn.Send(wire.TagGetFlow, wire.GetFlow{FlowID: "f1", CoflowID: regAck.CoflowID, ClientID: subscriberID}))
	var gotFlow wire.GotFlowDesc
	_, err = subscriberConn.Recv(&gotFlow)
	require.NoError(t, err)
	require.True(t, gotFlow.Found)

	require.NoError(t, subscriberConn.SetDeadline(time.Now().Add(2*time.Second)))
	var updates wire.UpdatedRates
	tag, err := subscriberConn.Recv(&updates)
	require.NoError(t, err)
	assert.Equal(t, wire.TagUpdatedRates, tag)
	require.Len(t, updates.Updates, 1)
	assert.Equal(t, id, updates.Updates[0].Desc.DataID)
	assert.Equal(t, uint64(500), updates.Updates[0].Bps)

	require.NoError(t, bystanderConn.SetDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = bystanderConn.RecvRaw()
	assert.Error(t, err, "a client that never called GetFlow should not receive rate updates")
}
