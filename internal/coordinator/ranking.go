package coordinator

import (
	"strings"
	"time"

	"golang.org/x/exp/slices"
)

// BestRxMachines ranks live agents by ascending
// (lastRxBps + adjust/heartbeatInterval), returning up to n hosts — the agents with the most *spare* ingress
// capacity sort first. Ties break on slaveId, lexicographically, so
// the ranking is deterministic for tests and for clients comparing
// repeated calls.
func (c *Catalog) BestRxMachines(n int, adjust uint64, now time.Time) []string {
	return c.rankMachines(n, adjust, now, func(load agentLoad) uint64 { return load.rx })
}

// BestTxMachines is the egress symmetric of BestRxMachines.
func (c *Catalog) BestTxMachines(n int, adjust uint64, now time.Time) []string {
	return c.rankMachines(n, adjust, now, func(load agentLoad) uint64 { return load.tx })
}

type agentLoad struct {
	slaveID string
	host    string
	rx      uint64
	tx      uint64
}

func (c *Catalog) rankMachines(n int, adjust uint64, now time.Time, key func(agentLoad) uint64) []string {
	live := c.LiveAgents(now)
	loads := make([]agentLoad, 0, len(live))
	for _, a := range live {
		loads = append(loads, agentLoad{slaveID: a.SlaveID, host: a.PublicHost, rx: a.LastRxBps, tx: a.LastTxBps})
	}

	// adjustBps converts adjustBytes — the size of a pending transfer the
	// caller is about to initiate — into a per-second rate over one
	// heartbeat interval, per spec §4.1's "lastRxBps + adjustBytes/interval".
	adjustBps := uint64(float64(adjust) / c.heartbeatInterval.Seconds())

	slices.SortFunc(loads, func(a, b agentLoad) int {
		ka, kb := key(a)+adjustBps, key(b)+adjustBps
		switch {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		default:
			return strings.Compare(a.slaveID, b.slaveID)
		}
	})

	if n > len(loads) {
		n = len(loads)
	}
	hosts := make([]string, 0, n)
	for _, l := range loads[:n] {
		hosts = append(hosts, l.host)
	}
	return hosts
}
