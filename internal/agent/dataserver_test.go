package agent

import (
	"net"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dreamware/varys/internal/cluster"
	"github.com/dreamware/varys/internal/wire"
)

func TestDataServerServesFakeFlow(t *testing.T) {
	d := NewDataServer(zap.NewNop().Sugar(), "")
	id := cluster.DataIdentifier{CoflowID: "cf1", FlowID: "f1"}
	desc := cluster.NewFakeDescription(id, 16, 1, "h1", 9001)
	d.Register(desc)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go d.Serve(l)

	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, wire.WriteGetRequest(conn, desc))
	data, present, err := wire.ReadOptionalBytes(conn)
	require.NoError(t, err)
	require.True(t, present)
	assert.Equal(t, fakePattern(16), data)
}

func TestDataServerUnknownFlowReturnsAbsent(t *testing.T) {
	d := NewDataServer(zap.NewNop().Sugar(), "")
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	go d.Serve(l)

	conn, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	id := cluster.DataIdentifier{CoflowID: "missing", FlowID: "f1"}
	desc := cluster.NewFakeDescription(id, 16, 1, "h1", 9001)
	require.NoError(t, wire.WriteGetRequest(conn, desc))
	_, present, err := wire.ReadOptionalBytes(conn)
	require.NoError(t, err)
	assert.False(t, present)
}

func TestDataServerResolvesRelativePathAgainstWorkDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/payload.bin", []byte("0123456789"), 0o644))

	d := NewDataServer(zap.NewNop().Sugar(), dir)
	id := cluster.DataIdentifier{CoflowID: "cf1", FlowID: "f1"}
	desc := cluster.NewFileDescription(id, "payload.bin", 2, 5, 1, "h1", 9001)
	d.Register(desc)

	data, err := d.read(desc)
	require.NoError(t, err)
	assert.Equal(t, []byte("23456"), data)
}

func TestDataServerForgetCoflowRemovesMatchingFlows(t *testing.T) {
	d := NewDataServer(zap.NewNop().Sugar(), "")
	d.Register(cluster.NewFakeDescription(cluster.DataIdentifier{CoflowID: "cf1", FlowID: "f1"}, 1, 1, "h1", 1))
	d.Register(cluster.NewFakeDescription(cluster.DataIdentifier{CoflowID: "cf1", FlowID: "f2"}, 1, 1, "h1", 1))
	d.Register(cluster.NewFakeDescription(cluster.DataIdentifier{CoflowID: "cf2", FlowID: "f1"}, 1, 1, "h1", 1))

	n := d.ForgetCoflow("cf1")
	assert.Equal(t, 2, n)

	_, ok := d.lookup(cluster.DataIdentifier{CoflowID: "cf1", FlowID: "f1"})
	assert.False(t, ok)
	_, ok = d.lookup(cluster.DataIdentifier{CoflowID: "cf2", FlowID: "f1"})
	assert.True(t, ok)
}

func TestReadFileRangeRespectsBounds(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "varys-test")
	require.NoError(t, err)
	_, err = f.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	data, err := readFileRange(f.Name(), 2, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte("23456"), data)

	_, err = readFileRange(f.Name(), 5, 100)
	assert.Error(t, err)
}
