package wire

import "github.com/dreamware/varys/internal/cluster"

// RegisterSlave is sent agent -> coordinator on agent startup.
type RegisterSlave struct {
	SlaveID    string `cbor:"1,keyasint"`
	Host       string `cbor:"2,keyasint"`
	Port       uint16 `cbor:"3,keyasint"`
	WebUIPort  uint16 `cbor:"4,keyasint"`
	CommPort   uint16 `cbor:"5,keyasint"`
	PublicHost string `cbor:"6,keyasint"`
}

// RegisteredSlave acknowledges a successful RegisterSlave.
type RegisteredSlave struct {
	WebUIURL string `cbor:"1,keyasint"`
}

// RegisterSlaveFailed rejects a RegisterSlave (duplicate slaveId or
// host:port conflict).
type RegisterSlaveFailed struct {
	Message string `cbor:"1,keyasint"`
}

// RegisterClient is sent client -> coordinator, directly, on client
// startup.
type RegisterClient struct {
	Name     string `cbor:"1,keyasint"`
	Host     string `cbor:"2,keyasint"`
	CommPort uint16 `cbor:"3,keyasint"`
}

// RegisteredClient acknowledges a successful RegisterClient, naming the
// client's assigned id and bound agent.
type RegisteredClient struct {
	ClientID string `cbor:"1,keyasint"`
	SlaveID  string `cbor:"2,keyasint"`
	SlaveURL string `cbor:"3,keyasint"`
}

// Heartbeat is sent agent -> coordinator every heartbeat interval.
type Heartbeat struct {
	SlaveID string `cbor:"1,keyasint"`
	RxBps   uint64 `cbor:"2,keyasint"`
	TxBps   uint64 `cbor:"3,keyasint"`
}

// RegisterCoflow is sent client -> coordinator to publish coflow
// metadata.
type RegisterCoflow struct {
	ClientID string                    `cbor:"1,keyasint"`
	Desc     cluster.CoflowDescription `cbor:"2,keyasint"`
}

// RegisteredCoflow returns the coordinator-assigned coflow id.
type RegisteredCoflow struct {
	CoflowID string `cbor:"1,keyasint"`
}

// UnregisterCoflow removes a coflow and all its flows.
type UnregisterCoflow struct {
	CoflowID string `cbor:"1,keyasint"`
}

// AddFlow publishes (or idempotently republishes) a flow descriptor.
type AddFlow struct {
	Desc cluster.FlowDescription `cbor:"1,keyasint"`
}

// GetFlow resolves a flow descriptor and accounts a receiver against it.
type GetFlow struct {
	FlowID   string `cbor:"1,keyasint"`
	CoflowID string `cbor:"2,keyasint"`
	ClientID string `cbor:"3,keyasint"`
	SlaveID  string `cbor:"4,keyasint"`
}

// GotFlowDesc answers GetFlow. Found is false when the flow is unknown
// (coordinator reply is "None" in spec terms); Desc is meaningful only
// when Found is true.
type GotFlowDesc struct {
	Found bool                    `cbor:"1,keyasint"`
	Desc  cluster.FlowDescription `cbor:"2,keyasint"`
}

// DeleteFlow is a fire-and-forget notification that a flow is no longer
// needed locally.
type DeleteFlow struct {
	FlowID   string `cbor:"1,keyasint"`
	CoflowID string `cbor:"2,keyasint"`
}

// RateUpdate is one entry of an UpdatedRates broadcast.
type RateUpdate struct {
	Desc cluster.FlowDescription `cbor:"1,keyasint"`
	Bps  uint64                  `cbor:"2,keyasint"`
}

// UpdatedRates is sent coordinator -> client on a policy tick, carrying
// the positive rates of the flows that client has fetched via GetFlow.
type UpdatedRates struct {
	Updates []RateUpdate `cbor:"1,keyasint"`
}

// RequestBestRxMachines asks the coordinator to rank agents by measured
// ingress throughput.
type RequestBestRxMachines struct {
	N           int    `cbor:"1,keyasint"`
	AdjustBytes uint64 `cbor:"2,keyasint"`
}

// BestRxMachines answers RequestBestRxMachines with hosts in ascending
// rxBps + adjustBytes/heartbeatInterval order.
type BestRxMachines struct {
	Hosts []string `cbor:"1,keyasint"`
}

// RequestBestTxMachines is the egress symmetric of RequestBestRxMachines.
type RequestBestTxMachines struct {
	N           int    `cbor:"1,keyasint"`
	AdjustBytes uint64 `cbor:"2,keyasint"`
}

// BestTxMachines answers RequestBestTxMachines.
type BestTxMachines struct {
	Hosts []string `cbor:"1,keyasint"`
}

// StopClient asks a client to shut down gracefully.
type StopClient struct{}

// RequestSlaveState asks an agent to report its state machine status.
type RequestSlaveState struct {
	SlaveID string `cbor:"1,keyasint"`
}

// SlaveState answers RequestSlaveState.
type SlaveState struct {
	SlaveID string `cbor:"1,keyasint"`
	State   string `cbor:"2,keyasint"`
}
