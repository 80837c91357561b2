package policy

import (
	"testing"

	"github.com/cuemby/meridian/pkg/topology"
	"github.com/cuemby/meridian/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestTokenAwarePrefersOwningReplica(t *testing.T) {
	hosts := hostMap("a", "b", "c")
	child := NewRoundRobinPolicy()
	child.Init(nil, hosts, nil)
	p := NewTokenAwarePolicy(child)

	owner := hosts[types.Address{Host: "c", Port: 9042}]
	tm := topology.Static{Replicas: map[string][]*types.Host{"ks": {owner}}}
	token := int64(42)

	plan := p.NewQueryPlan(Request{Keyspace: "ks", RoutingToken: &token}, tm)
	first, ok := plan.Next()
	assert.True(t, ok)
	assert.Equal(t, owner.Address, first.Address)

	seen := map[types.Address]bool{first.Address: true}
	for {
		h, ok := plan.Next()
		if !ok {
			break
		}
		assert.False(t, seen[h.Address], "host %v repeated in plan", h.Address)
		seen[h.Address] = true
	}
	assert.Len(t, seen, 3)
}

func TestTokenAwareFallsBackWithoutRoutingToken(t *testing.T) {
	hosts := hostMap("a", "b")
	child := NewRoundRobinPolicy()
	child.Init(nil, hosts, nil)
	p := NewTokenAwarePolicy(child)

	plan := p.NewQueryPlan(Request{Keyspace: "ks"}, topology.Empty{})
	count := 0
	for {
		_, ok := plan.Next()
		if !ok {
			break
		}
		count++
	}
	assert.Equal(t, 2, count)
}
