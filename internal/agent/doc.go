// Package agent implements the Varys host agent: the per-machine
// worker that registers with the coordinator, reports measured NIC
// throughput on every heartbeat, and serves ONDISK/FAKE flow bytes to
// whichever client asks, on behalf of the clients running on its
// host.
package agent
