package agent

import "sync/atomic"

// State is the agent's lifecycle state, advanced strictly in order
// except for the Running/Heartbeating oscillation once registered.
type State string

const (
	StateStarting     State = "STARTING"
	StateConnecting   State = "CONNECTING"
	StateRegistered   State = "REGISTERED"
	StateRunning      State = "RUNNING"
	StateHeartbeating State = "HEARTBEATING"
	StateTerminated   State = "TERMINATED"
)

// stateBox is an atomically-swappable State, read by the slave-state
// query handler without touching the agent's other locks.
type stateBox struct {
	v atomic.Value
}

func newStateBox(initial State) *stateBox {
	b := &stateBox{}
	b.v.Store(initial)
	return b
}

func (b *stateBox) set(s State) {
	b.v.Store(s)
}

func (b *stateBox) get() State {
	return b.v.Load().(State)
}
