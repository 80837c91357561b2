package policy

import (
	"math/rand"
	"sync"
	"sync/atomic"

	"github.com/cuemby/meridian/pkg/topology"
	"github.com/cuemby/meridian/pkg/types"
)

// RoundRobinPolicy cycles through every host not classified Ignore,
// starting from a different offset each plan so load spreads evenly.
// Distance is Local for every host the policy has not been told to
// ignore; pass addresses to NewRoundRobinPolicy to carve out hosts this
// profile should never route to (e.g. a remote datacenter).
type RoundRobinPolicy struct {
	ignore map[types.Address]bool

	mu     sync.RWMutex
	hosts  []*types.Host
	offset atomic.Uint64
}

// NewRoundRobinPolicy constructs a policy that ignores the given
// addresses (commonly hosts outside the local datacenter).
func NewRoundRobinPolicy(ignoreAddresses ...types.Address) *RoundRobinPolicy {
	ignore := make(map[types.Address]bool, len(ignoreAddresses))
	for _, a := range ignoreAddresses {
		ignore[a] = true
	}
	return &RoundRobinPolicy{ignore: ignore}
}

// Init seeds the policy's host list. connected is not treated
// specially by round robin, but is accepted to satisfy the interface
// and to mirror every other policy's constructor shape.
func (p *RoundRobinPolicy) Init(_ *types.Host, hosts types.HostMap, _ *rand.Rand) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hosts = p.hosts[:0]
	for _, h := range hosts {
		if !p.ignore[h.Address] {
			p.hosts = append(p.hosts, h)
		}
	}
}

// Distance returns Ignore for addresses supplied at construction and
// Local for everything else.
func (p *RoundRobinPolicy) Distance(host *types.Host) types.HostDistance {
	if p.ignore[host.Address] {
		return types.HostDistanceIgnore
	}
	return types.HostDistanceLocal
}

func (p *RoundRobinPolicy) OnAdd(host *types.Host) {
	if p.ignore[host.Address] {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, h := range p.hosts {
		if h.Address == host.Address {
			return
		}
	}
	p.hosts = append(p.hosts, host)
}

func (p *RoundRobinPolicy) OnUp(host *types.Host) {
	p.OnAdd(host)
}

func (p *RoundRobinPolicy) OnDown(host *types.Host) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, h := range p.hosts {
		if h.Address == host.Address {
			p.hosts = append(p.hosts[:i], p.hosts[i+1:]...)
			return
		}
	}
}

func (p *RoundRobinPolicy) OnRemove(host *types.Host) {
	p.OnDown(host)
}

// NewQueryPlan returns every known host starting at the next
// round-robin offset, wrapping around once.
func (p *RoundRobinPolicy) NewQueryPlan(_ Request, _ topology.TokenMap) QueryPlan {
	p.mu.RLock()
	defer p.mu.RUnlock()

	n := len(p.hosts)
	if n == 0 {
		return &slicePlan{}
	}
	start := int(p.offset.Add(1) % uint64(n))
	ordered := make([]*types.Host, n)
	for i := 0; i < n; i++ {
		ordered[i] = p.hosts[(start+i)%n]
	}
	return &slicePlan{hosts: ordered}
}

func (p *RoundRobinPolicy) RegisterHandles() {}
func (p *RoundRobinPolicy) CloseHandles()    {}
