// Package policy defines the pluggable rate-allocation strategy the
// coordinator consults on each policy tick: given a snapshot of every
// active coflow and its flows, decide the bits-per-second rate each
// flow's receivers should throttle to.
package policy

import "github.com/dreamware/varys/internal/cluster"

// CoflowSnapshot is one coordinator-tracked coflow and its currently
// registered flows, as seen by a Policy at dispatch time.
type CoflowSnapshot struct {
	CoflowID string
	Desc     cluster.CoflowDescription
	State    cluster.CoflowState
	Flows    []cluster.FlowDescription
}

// Snapshot is the coordinator's entire live coflow catalog at the
// moment a policy runs. Policies must not mutate it.
type Snapshot struct {
	Coflows []CoflowSnapshot
	// Now is the wall-clock time the snapshot was taken, passed
	// explicitly so a policy's decisions stay deterministic and
	// testable rather than reading time.Now() itself.
	Now int64
}

// Policy computes the rate, in bits per second, each flow's receivers
// should be throttled to. A rate of 0 means no throttling: the
// coordinator does not dispatch it. A flow with rate 0, or absent from
// the returned map, is left at its previously assigned rate (unlimited
// if it never had one).
type Policy func(Snapshot) map[cluster.DataIdentifier]uint64

// Identity is the default policy: every flow is assigned rate 0
// (unlimited), so the coordinator's periodic dispatch loop runs but
// sends no UpdatedRates and never constrains a transfer. It is
// the starting point for a deployment to layer a real scheduling
// policy — fair-share, deadline-aware, priority-weighted — on top of,
// without changing anything else in the dispatch loop.
func Identity(snap Snapshot) map[cluster.DataIdentifier]uint64 {
	rates := make(map[cluster.DataIdentifier]uint64, len(snap.Coflows))
	for _, cf := range snap.Coflows {
		for _, f := range cf.Flows {
			rates[f.DataID] = 0
		}
	}
	return rates
}
