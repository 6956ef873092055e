// Package coordinator implements the Varys coordinator: the single
// rendezvous point every agent and client registers with, the
// catalog of live coflows/flows/agents/clients, and the mailbox actor
// that serializes every control-plane message against that catalog.
//
// The coordinator never touches flow bytes. It hands out flow
// descriptors, ranks agents by measured throughput, tracks agent
// liveness from heartbeats, and periodically runs a rate-allocation
// policy (internal/policy) over the live coflow set, sending each client
// the positive rates of the flows it is fetching as UpdatedRates.
package coordinator
