package policy

import (
	"math/rand"

	"github.com/cuemby/meridian/pkg/log"
	"github.com/cuemby/meridian/pkg/topology"
	"github.com/cuemby/meridian/pkg/types"
)

// TokenAwarePolicy puts a request's token-owning replicas first in the
// plan, then falls back to Child's plan for everything else (and for
// any request carrying no routing token at all).
type TokenAwarePolicy struct {
	Child LoadBalancingPolicy

	logger func(msg string)
}

// NewTokenAwarePolicy wraps child, which must be initialized the same
// way TokenAwarePolicy itself is (Init/OnAdd/... are forwarded to it).
func NewTokenAwarePolicy(child LoadBalancingPolicy) *TokenAwarePolicy {
	l := log.WithComponent("policy.token-aware")
	return &TokenAwarePolicy{
		Child:  child,
		logger: func(msg string) { l.Debug().Msg(msg) },
	}
}

func (p *TokenAwarePolicy) Init(connected *types.Host, hosts types.HostMap, random *rand.Rand) {
	p.Child.Init(connected, hosts, random)
}

func (p *TokenAwarePolicy) Distance(host *types.Host) types.HostDistance {
	return p.Child.Distance(host)
}

func (p *TokenAwarePolicy) OnAdd(host *types.Host)    { p.Child.OnAdd(host) }
func (p *TokenAwarePolicy) OnUp(host *types.Host)     { p.Child.OnUp(host) }
func (p *TokenAwarePolicy) OnDown(host *types.Host)   { p.Child.OnDown(host) }
func (p *TokenAwarePolicy) OnRemove(host *types.Host) { p.Child.OnRemove(host) }

// NewQueryPlan lists the token's replicas (as reported by tm) first,
// excluding any the child policy classifies Ignore, then appends the
// child's own plan for the remaining hosts.
func (p *TokenAwarePolicy) NewQueryPlan(req Request, tm topology.TokenMap) QueryPlan {
	childPlan := p.Child.NewQueryPlan(req, tm)

	if req.RoutingToken == nil || tm == nil {
		return childPlan
	}

	replicas := tm.ReplicasForToken(req.Keyspace, *req.RoutingToken)
	if len(replicas) == 0 {
		return childPlan
	}

	seen := make(map[types.Address]bool, len(replicas))
	ordered := make([]*types.Host, 0, len(replicas))
	for _, h := range replicas {
		if p.Child.Distance(h) == types.HostDistanceIgnore {
			continue
		}
		if seen[h.Address] {
			continue
		}
		seen[h.Address] = true
		ordered = append(ordered, h)
	}

	p.logger("token-aware plan: routing to replica set before child plan")

	for {
		h, ok := childPlan.Next()
		if !ok {
			break
		}
		if !seen[h.Address] {
			seen[h.Address] = true
			ordered = append(ordered, h)
		}
	}

	return &slicePlan{hosts: ordered}
}

func (p *TokenAwarePolicy) RegisterHandles() { p.Child.RegisterHandles() }
func (p *TokenAwarePolicy) CloseHandles()    { p.Child.CloseHandles() }
