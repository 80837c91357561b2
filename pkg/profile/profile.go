// Package profile defines execution profiles: named bundles of
// per-request routing and timeout knobs. Each profile builds its
// load-balancing policy lazily and profiles with no policy of their
// own are back-filled from the default.
package profile

import (
	"time"

	"github.com/cuemby/meridian/pkg/policy"
)

// Factory builds a fresh LoadBalancingPolicy for a profile. It is
// called at most once per profile, by BuildLoadBalancingPolicy.
type Factory func() policy.LoadBalancingPolicy

// ExecutionProfile is a named bundle of {load-balancing policy,
// consistency level, request timeout, speculative execution config}.
// It carries no retry policy.
// Profiles are immutable after BuildLoadBalancingPolicy has run.
type ExecutionProfile struct {
	Name             string
	ConsistencyLevel string
	RequestTimeout   time.Duration
	Speculative      *SpeculativeExecutionPolicy

	factory             Factory
	loadBalancingPolicy policy.LoadBalancingPolicy
}

// SpeculativeExecutionPolicy configures whether and when the driver
// issues a speculative retry against the next host in a plan while
// the first attempt is still outstanding. Its internals are a retry
// policy concern this profile doesn't implement; it only carries the
// knob a request handler reads.
type SpeculativeExecutionPolicy struct {
	Delay       time.Duration
	MaxAttempts int
}

// New constructs a profile that will build its policy from factory
// the first time BuildLoadBalancingPolicy runs.
func New(name string, factory Factory) *ExecutionProfile {
	return &ExecutionProfile{Name: name, factory: factory}
}

// BuildLoadBalancingPolicy builds the profile's policy if it has a
// factory and none has been built yet. Profiles constructed without a
// factory are expected to be back-filled via SetLoadBalancingPolicy
// (see ResolvePolicies).
func (p *ExecutionProfile) BuildLoadBalancingPolicy() {
	if p.loadBalancingPolicy == nil && p.factory != nil {
		p.loadBalancingPolicy = p.factory()
	}
}

// LoadBalancingPolicy returns the profile's policy, or nil if none has
// been built or back-filled yet.
func (p *ExecutionProfile) LoadBalancingPolicy() policy.LoadBalancingPolicy {
	return p.loadBalancingPolicy
}

// SetLoadBalancingPolicy back-fills a profile that built no policy of
// its own, pointing it at another profile's (normally the default's).
func (p *ExecutionProfile) SetLoadBalancingPolicy(pol policy.LoadBalancingPolicy) {
	p.loadBalancingPolicy = pol
}

// Map is the name -> profile lookup table alongside the default
// profile; see Settings in pkg/config.
type Map map[string]*ExecutionProfile

// ResolvePolicies builds every profile's own policy, then back-fills
// any profile left without one from defaultProfile's policy. It
// returns the distinct set of policies in construction order, which is
// what the processor initializes and registers handles for.
func ResolvePolicies(defaultProfile *ExecutionProfile, profiles Map) []policy.LoadBalancingPolicy {
	defaultProfile.BuildLoadBalancingPolicy()
	distinct := []policy.LoadBalancingPolicy{defaultProfile.LoadBalancingPolicy()}

	for _, p := range profiles {
		p.BuildLoadBalancingPolicy()
		lbp := p.LoadBalancingPolicy()
		if lbp == nil {
			p.SetLoadBalancingPolicy(defaultProfile.LoadBalancingPolicy())
			continue
		}
		seen := false
		for _, d := range distinct {
			if d == lbp {
				seen = true
				break
			}
		}
		if !seen {
			distinct = append(distinct, lbp)
		}
	}

	return distinct
}
