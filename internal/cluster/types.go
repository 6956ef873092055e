package cluster

import "time"

// DataType identifies where a flow's bytes originate.
type DataType string

const (
	// InMemory flows are served by the publishing client's own in-process
	// data server.
	InMemory DataType = "INMEMORY"
	// OnDisk flows are served by the local host agent, which reads a
	// byte range of a file into memory with ReadAt; the file is not
	// memory-mapped.
	OnDisk DataType = "ONDISK"
	// Fake flows are synthesized by the serving agent, a deterministic
	// pattern of the requested length, used for benchmarking coflow
	// scheduling without real payloads.
	Fake DataType = "FAKE"
)

// DataIdentifier is the globally unique name of a flow: the coflow it
// belongs to, and the flow's own id within that coflow.
type DataIdentifier struct {
	CoflowID string `cbor:"1,keyasint"`
	FlowID   string `cbor:"2,keyasint"`
}

// FlowDescription is the central record of the data model: a handle
// naming a piece of data, where it lives, and how big it is. The origin
// host/port is rewritten by the host agent before registration for any
// non-INMEMORY flow, so that the agent — not the publishing client —
// serves the bytes (see internal/agent).
type FlowDescription struct {
	DataID       DataIdentifier `cbor:"1,keyasint"`
	DataType     DataType       `cbor:"2,keyasint"`
	SizeInBytes  uint64         `cbor:"3,keyasint"`
	NumReceivers uint32         `cbor:"4,keyasint"`
	OriginHost   string         `cbor:"5,keyasint"`
	OriginPort   uint16         `cbor:"6,keyasint"`

	// PathToFile, Offset, Length are populated only when DataType is OnDisk.
	PathToFile string `cbor:"7,keyasint,omitempty"`
	Offset     uint64 `cbor:"8,keyasint,omitempty"`
	Length     uint64 `cbor:"9,keyasint,omitempty"`

	// ClassName is populated only when DataType is InMemory. It is opaque
	// to the core — carried for callers that want to record the
	// serialized object's Go type, never interpreted on the wire.
	ClassName string `cbor:"10,keyasint,omitempty"`
}

// NewObjectDescription builds the FlowDescription for an in-memory put.
// The bytes themselves are not carried here — they live in the
// publishing client's object table (internal/client) and are served
// directly by that client's data server.
func NewObjectDescription(id DataIdentifier, className string, size uint64, numReceivers uint32, host string, port uint16) FlowDescription {
	return FlowDescription{
		DataID:       id,
		DataType:     InMemory,
		SizeInBytes:  size,
		NumReceivers: numReceivers,
		OriginHost:   host,
		OriginPort:   port,
		ClassName:    className,
	}
}

// NewFileDescription builds the FlowDescription for an on-disk put.
func NewFileDescription(id DataIdentifier, path string, offset, length uint64, numReceivers uint32, host string, port uint16) FlowDescription {
	return FlowDescription{
		DataID:       id,
		DataType:     OnDisk,
		SizeInBytes:  length,
		NumReceivers: numReceivers,
		OriginHost:   host,
		OriginPort:   port,
		PathToFile:   path,
		Offset:       offset,
		Length:       length,
	}
}

// NewFakeDescription builds the FlowDescription for a synthetic payload.
func NewFakeDescription(id DataIdentifier, size uint64, numReceivers uint32, host string, port uint16) FlowDescription {
	return FlowDescription{
		DataID:       id,
		DataType:     Fake,
		SizeInBytes:  size,
		NumReceivers: numReceivers,
		OriginHost:   host,
		OriginPort:   port,
	}
}

// CoflowDescription is user-supplied metadata attached at registration
// time. The coordinator stores it verbatim; nothing in the core
// interprets priority or deadline hints — a rate-allocation policy
// (internal/policy) may.
type CoflowDescription struct {
	Name              string        `cbor:"1,keyasint"`
	PriorityHint      int           `cbor:"2,keyasint,omitempty"`
	ExpectedSizeBytes uint64        `cbor:"3,keyasint,omitempty"`
	DeadlineHint      time.Duration `cbor:"4,keyasint,omitempty"`
}

// CoflowState is the lifecycle state of a coordinator-tracked coflow.
type CoflowState string

const (
	CoflowRegistered CoflowState = "REGISTERED"
	CoflowRunning    CoflowState = "RUNNING"
	CoflowFinished   CoflowState = "FINISHED"
)

// ClientRecord is what the coordinator remembers about a registered
// client: its identity, address, and the single agent it is bound to.
type ClientRecord struct {
	ClientID string
	Name     string
	Host     string
	CommPort uint16
	SlaveID  string
}

// AgentRecord is what the coordinator remembers about a registered host
// agent: its identity, addresses, and the last throughput/heartbeat
// samples used for liveness and ranking.
type AgentRecord struct {
	SlaveID         string
	Host            string
	Port            uint16
	WebUIPort       uint16
	CommPort        uint16
	PublicHost      string
	LastRxBps       uint64
	LastTxBps       uint64
	LastHeartbeatAt time.Time
}

// Live reports whether the agent's last heartbeat is recent enough,
// per the catalog invariant: live iff now - lastHeartbeatAt <=
// 3*heartbeatInterval.
func (a AgentRecord) Live(now time.Time, heartbeatInterval time.Duration) bool {
	return now.Sub(a.LastHeartbeatAt) <= 3*heartbeatInterval
}
