// Package cluster defines the Varys data model shared by coordinator,
// agent, and client: data identifiers, flow and coflow descriptors, the
// client and agent membership records, and the varys:// peer URL format.
//
// None of the types here know how to talk to a peer — internal/wire
// encodes them onto the control-plane frame protocol and internal/
// transport carries the frames. cluster is the vocabulary every other
// package shares.
package cluster
