package agent

import (
	"strings"
	"sync"
	"time"

	gopsutilnet "github.com/shirou/gopsutil/v3/net"

	"github.com/dreamware/varys/internal/varyserr"
)

// Sampler turns the host's cumulative NIC counters into a windowed
// bytes-per-second rate, the figure an agent reports on every
// heartbeat and the coordinator ranks agents by.
type Sampler struct {
	iface string

	mu     sync.Mutex
	lastRx uint64
	lastTx uint64
	lastAt time.Time
}

// NewSampler builds a Sampler for the named interface. An empty iface
// sums the per-interface counters of every non-loopback interface.
func NewSampler(iface string) *Sampler {
	return &Sampler{iface: iface}
}

// Sample reports the bytes-per-second received and transmitted since
// the previous call. The first call establishes a baseline and
// reports zero for both. A counter that appears to have decreased
// (interface reset, counter wraparound) is clamped to a zero delta
// rather than reported as negative.
func (s *Sampler) Sample() (rxBps, txBps uint64, err error) {
	counters, err := gopsutilnet.IOCounters(true)
	if err != nil {
		return 0, 0, varyserr.WrapConnectivity(err, "read NIC counters")
	}

	var rx, tx uint64
	found := false
	for _, c := range counters {
		if s.iface == "" && isLoopback(c.Name) {
			continue
		}
		if s.iface == "" || c.Name == s.iface {
			rx += c.BytesRecv
			tx += c.BytesSent
			found = true
		}
	}
	if !found {
		return 0, 0, varyserr.NewConfiguration("no NIC counters for interface %q", s.iface)
	}

	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastAt.IsZero() {
		s.lastRx, s.lastTx, s.lastAt = rx, tx, now
		return 0, 0, nil
	}

	dt := now.Sub(s.lastAt).Seconds()
	if dt <= 0 {
		return 0, 0, nil
	}

	rxBps = deltaPerSecond(s.lastRx, rx, dt)
	txBps = deltaPerSecond(s.lastTx, tx, dt)
	s.lastRx, s.lastTx, s.lastAt = rx, tx, now
	return rxBps, txBps, nil
}

// isLoopback reports whether name looks like a loopback interface, so
// the "all interfaces" aggregate (spec §4.2: "all non-loopback
// interfaces") excludes it without requiring the caller to name every
// real NIC explicitly.
func isLoopback(name string) bool {
	return name == "lo" || name == "lo0" || strings.HasPrefix(name, "Loopback")
}

func deltaPerSecond(prev, cur uint64, dtSeconds float64) uint64 {
	if cur <= prev {
		return 0
	}
	return uint64(float64(cur-prev) / dtSeconds)
}
