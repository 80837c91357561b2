// Package prepareall fans a PREPARE out to every up host besides the
// one it already succeeded on, and waits for every fan-out attempt to
// settle before reporting completion. A reference-counted callback
// would decrement a shared remaining-count from a destructor on every
// exit path; Go has no destructors, so Callback here exposes an
// explicit Done that every code path must call exactly once instead
// (see DESIGN.md for the reasoning).
package prepareall

import (
	"sync"
	"sync/atomic"

	"github.com/cuemby/meridian/pkg/types"
)

// Prepare issues PREPARE for query against host and calls cb.Done
// exactly once, regardless of outcome, when that attempt settles.
type Prepare func(host *types.Host, query string, cb *Callback)

// Callback is handed to each in-flight PREPARE attempt. Calling Done
// more than once, or not at all, is a caller bug; Handler's own
// bookkeeping only relies on exactly-once delivery.
type Callback struct {
	remaining *atomic.Int32
	onZero    func()
	once      sync.Once
}

// Done marks this attempt settled. When it is the last outstanding
// attempt, onZero runs.
func (c *Callback) Done() {
	c.once.Do(func() {
		if c.remaining.Add(-1) == 0 {
			c.onZero()
		}
	})
}

// Handler runs one prepare-on-all-hosts fan-out.
type Handler struct {
	prepare Prepare
}

// New returns a Handler that issues PREPARE via prepare.
func New(prepare Prepare) *Handler {
	return &Handler{prepare: prepare}
}

// Run issues PREPARE for query against every host in hosts except
// excludeHost, and calls onDone exactly once after every attempt has
// called its Callback's Done. If hosts (after excluding excludeHost)
// is empty, onDone runs immediately.
func (h *Handler) Run(hosts []*types.Host, excludeHost *types.Host, query string, onDone func()) {
	targets := make([]*types.Host, 0, len(hosts))
	for _, host := range hosts {
		if excludeHost != nil && host.Address == excludeHost.Address {
			continue
		}
		targets = append(targets, host)
	}

	if len(targets) == 0 {
		onDone()
		return
	}

	var remaining atomic.Int32
	remaining.Store(int32(len(targets)))

	for _, host := range targets {
		h.prepare(host, query, &Callback{remaining: &remaining, onZero: onDone})
	}
}
