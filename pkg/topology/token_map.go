// Package topology holds the token map snapshot the processor consumes
// but never builds. Construction of the keyspace -> token ring ->
// replica set mapping belongs to the cluster-metadata subsystem, not
// to the processor.
package topology

import "github.com/cuemby/meridian/pkg/types"

// TokenMap is an immutable snapshot a load-balancing policy and a
// request handler can consult to find the replicas owning a token.
// Implementations are replaced wholesale by the processor (see
// Processor.NotifyTokenMapUpdate); a TokenMap value is never mutated
// once published.
type TokenMap interface {
	// ReplicasForToken returns, in ring order, the hosts that own the
	// given partition token in the given keyspace. A nil or empty
	// return means the keyspace/token is unknown to this snapshot.
	ReplicasForToken(keyspace string, token int64) []*types.Host
}

// Empty is a TokenMap with no replica knowledge. It is a valid initial
// snapshot before the first real one arrives.
type Empty struct{}

// ReplicasForToken always returns nil.
func (Empty) ReplicasForToken(string, int64) []*types.Host { return nil }

// Static is a TokenMap snapshot built from a single fixed replica
// assignment per keyspace. It exists for tests and the bench CLI,
// which do not run a real token-ring implementation.
type Static struct {
	Replicas map[string][]*types.Host
}

// ReplicasForToken ignores token and returns the keyspace's fixed
// replica set, since Static does not model a ring.
func (s Static) ReplicasForToken(keyspace string, _ int64) []*types.Host {
	return s.Replicas[keyspace]
}
