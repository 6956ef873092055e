package agent

import (
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/dreamware/varys/internal/cluster"
	"github.com/dreamware/varys/internal/varyserr"
	"github.com/dreamware/varys/internal/wire"
)

// DataServer answers the data-plane GetRequest protocol for every
// ONDISK and FAKE flow this agent has been told to host. INMEMORY
// flows are never registered here — those are served directly by the
// publishing client's own process.
type DataServer struct {
	log     *zap.SugaredLogger
	workDir string

	mu    sync.Mutex
	flows map[cluster.DataIdentifier]cluster.FlowDescription
}

// NewDataServer builds an empty DataServer. workDir (the agent's
// VARYS_SLAVE_DIR) resolves relative ONDISK PathToFile values; an
// empty workDir leaves such paths resolved against the process's own
// working directory, as before.
func NewDataServer(log *zap.SugaredLogger, workDir string) *DataServer {
	return &DataServer{log: log, workDir: workDir, flows: make(map[cluster.DataIdentifier]cluster.FlowDescription)}
}

// Register makes desc servable. Called once a client has asked its
// local agent to host an ONDISK or FAKE flow on its behalf, after the
// agent has rewritten the flow's origin host/port to itself.
func (d *DataServer) Register(desc cluster.FlowDescription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flows[desc.DataID] = desc
}

// Forget removes a flow, called once DeleteFlow has been observed.
func (d *DataServer) Forget(id cluster.DataIdentifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.flows, id)
}

func (d *DataServer) lookup(id cluster.DataIdentifier) (cluster.FlowDescription, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	desc, ok := d.flows[id]
	return desc, ok
}

// ForgetCoflow removes every locally hosted flow under coflowID, once
// this agent has been told the coflow was unregistered. It returns the
// number of flows removed, for logging.
func (d *DataServer) ForgetCoflow(coflowID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for id := range d.flows {
		if id.CoflowID == coflowID {
			delete(d.flows, id)
			n++
		}
	}
	return n
}

// resolvePath joins a relative PathToFile against the agent's work
// directory, so ONDISK flows may name paths relative to it instead of
// always requiring an absolute path on the host.
func (d *DataServer) resolvePath(path string) string {
	if d.workDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(d.workDir, path)
}

// Serve accepts connections on l and answers each with a single
// GetRequest/Option<bytes> exchange before closing it, per the
// one-request-per-socket data-plane protocol.
func (d *DataServer) Serve(l net.Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return varyserr.WrapConnectivity(err, "data-plane accept")
		}
		go d.handle(conn)
	}
}

func (d *DataServer) handle(conn net.Conn) {
	defer conn.Close()

	desc, err := wire.ReadGetRequest(conn)
	if err != nil {
		d.log.Warnw("data-plane request read failed", "error", err)
		return
	}

	data, err := d.read(desc)
	if err != nil {
		d.log.Warnw("data-plane read failed", "flow", desc.DataID, "error", err)
		_ = wire.WriteOptionalBytes(conn, nil, false)
		return
	}
	if data == nil {
		_ = wire.WriteOptionalBytes(conn, nil, false)
		return
	}
	if err := wire.WriteOptionalBytes(conn, data, true); err != nil {
		d.log.Warnw("data-plane response write failed", "flow", desc.DataID, "error", err)
	}
}

func (d *DataServer) read(requested cluster.FlowDescription) ([]byte, error) {
	desc, ok := d.lookup(requested.DataID)
	if !ok {
		return nil, nil
	}

	switch desc.DataType {
	case cluster.Fake:
		return fakePattern(desc.SizeInBytes), nil
	case cluster.OnDisk:
		return readFileRange(d.resolvePath(desc.PathToFile), desc.Offset, desc.Length)
	default:
		return nil, varyserr.NewType("agent data server cannot serve data type %s", desc.DataType)
	}
}

// fakePattern produces the deterministic byte sequence used for
// synthetic flows: b[i] = i mod 256. No storage is involved — the
// bytes are generated on demand, letting a FAKE coflow exercise
// transfer scheduling and throttling without any real payload.
func fakePattern(size uint64) []byte {
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = byte(i % 256)
	}
	return buf
}

// readFileRange reads exactly length bytes starting at offset from
// path, the ONDISK serving path. Bounds are validated against the
// actual file size rather than trusted from the descriptor.
func readFileRange(path string, offset, length uint64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, varyserr.WrapConnectivity(err, "open %s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, varyserr.WrapConnectivity(err, "stat %s", path)
	}
	if offset+length > uint64(info.Size()) {
		return nil, varyserr.NewProtocol("range [%d,%d) exceeds file size %d for %s", offset, offset+length, info.Size(), path)
	}

	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, int64(offset)); err != nil && err != io.EOF {
		return nil, varyserr.WrapConnectivity(err, "read %s", path)
	}
	return buf, nil
}
