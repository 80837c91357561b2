package policy

import (
	"math/rand"

	"github.com/cuemby/meridian/pkg/topology"
	"github.com/cuemby/meridian/pkg/types"
)

// QueryPlan is a finite, ordered, non-restartable sequence of
// candidate hosts for one request. Next returns false once the plan
// is exhausted; it must never be called again afterward.
type QueryPlan interface {
	Next() (*types.Host, bool)
}

// Request carries the per-request context a policy needs to build a
// plan: the keyspace the request runs against and, for token-aware
// plans, the routing token it hashes to. RoutingToken is nil when the
// request carries no routing key.
type Request struct {
	Keyspace     string
	RoutingToken *int64
}

// LoadBalancingPolicy is the capability interface every execution
// profile's routing policy implements. It is initialized once with
// the full host set and a known-connected host, then receives
// incremental on_add/on_up/on_down/on_remove notifications for the
// rest of its life.
type LoadBalancingPolicy interface {
	// Init seeds the policy with the initial host view. random is the
	// shared random source the processor was constructed with, so
	// plans are reproducible given the same seed across policies.
	Init(connected *types.Host, hosts types.HostMap, random *rand.Rand)

	// Distance classifies host relative to this policy. The processor
	// consults this before delivering OnAdd, OnUp and OnDown; OnRemove
	// is delivered regardless of distance.
	Distance(host *types.Host) types.HostDistance

	OnAdd(host *types.Host)
	OnUp(host *types.Host)
	OnDown(host *types.Host)
	OnRemove(host *types.Host)

	// NewQueryPlan produces a plan for one request. Called on the
	// processor goroutine from RequestHandler.Execute(); tm is the
	// token map snapshot in effect at dispatch time.
	NewQueryPlan(req Request, tm topology.TokenMap) QueryPlan

	// RegisterHandles/CloseHandles bracket any per-loop resource a
	// policy needs (e.g. a periodic reconnection timer). Most policies
	// have none and implement both as no-ops.
	RegisterHandles()
	CloseHandles()
}

// slicePlan is a QueryPlan over a pre-computed, already-ordered slice.
// Nearly every policy in this package builds its plan this way.
type slicePlan struct {
	hosts []*types.Host
	i     int
}

func (p *slicePlan) Next() (*types.Host, bool) {
	if p.i >= len(p.hosts) {
		return nil, false
	}
	h := p.hosts[p.i]
	p.i++
	return h, true
}
