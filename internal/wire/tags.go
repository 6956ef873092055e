// Package wire implements the Varys control-plane binary protocol: a fixed
// tag enumeration, a length-prefixed frame codec, and the CBOR-encoded
// payload structs exchanged between coordinator, agent, and client.
//
// Every control message on the wire is a Frame{Tag, Payload}. The tag
// enumeration below is stable for wire compatibility — never renumber an
// existing entry, only append.
package wire

// Tag identifies the type of a control-plane message.
type Tag uint16

const (
	TagRegisterSlave Tag = 0x01
	TagRegisterClient Tag = 0x02
	TagHeartbeat      Tag = 0x03
	TagRegisterCoflow Tag = 0x04
	TagUnregisterCoflow Tag = 0x05
	TagAddFlow        Tag = 0x06
	TagGetFlow        Tag = 0x07
	TagDeleteFlow     Tag = 0x08
	TagUpdatedRates   Tag = 0x09
	TagRequestBestRxMachines Tag = 0x0A
	TagRequestBestTxMachines Tag = 0x0B
	TagStopClient     Tag = 0x0C
	TagRequestSlaveState Tag = 0x0D

	TagRegisteredSlave Tag = 0x11
	TagRegisterSlaveFailed Tag = 0x12
	TagRegisteredClient Tag = 0x13
	TagRegisteredCoflow Tag = 0x14
	TagGotFlowDesc    Tag = 0x17
	TagBestRxMachines Tag = 0x1A
	TagBestTxMachines Tag = 0x1B
	TagSlaveState     Tag = 0x1D
)

// String renders a tag's mnemonic name for logging.
func (t Tag) String() string {
	switch t {
	case TagRegisterSlave:
		return "RegisterSlave"
	case TagRegisterClient:
		return "RegisterClient"
	case TagHeartbeat:
		return "Heartbeat"
	case TagRegisterCoflow:
		return "RegisterCoflow"
	case TagUnregisterCoflow:
		return "UnregisterCoflow"
	case TagAddFlow:
		return "AddFlow"
	case TagGetFlow:
		return "GetFlow"
	case TagDeleteFlow:
		return "DeleteFlow"
	case TagUpdatedRates:
		return "UpdatedRates"
	case TagRequestBestRxMachines:
		return "RequestBestRxMachines"
	case TagRequestBestTxMachines:
		return "RequestBestTxMachines"
	case TagStopClient:
		return "StopClient"
	case TagRequestSlaveState:
		return "RequestSlaveState"
	case TagRegisteredSlave:
		return "RegisteredSlave"
	case TagRegisterSlaveFailed:
		return "RegisterSlaveFailed"
	case TagRegisteredClient:
		return "RegisteredClient"
	case TagRegisteredCoflow:
		return "RegisteredCoflow"
	case TagGotFlowDesc:
		return "GotFlowDesc"
	case TagBestRxMachines:
		return "BestRxMachines"
	case TagBestTxMachines:
		return "BestTxMachines"
	case TagSlaveState:
		return "SlaveState"
	default:
		return "Unknown"
	}
}
