package pool

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/meridian/pkg/types"
)

// fakeConn is a PooledConnection with no real transport, for tests
// that exercise dispatch and lifecycle logic without a network.
type fakeConn struct {
	addr   types.Address
	mu     sync.Mutex
	closed bool
	refuse bool
	writes []WriteCallback
}

func (c *fakeConn) Address() types.Address { return c.addr }

func (c *fakeConn) Write(cb WriteCallback) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.refuse {
		return false
	}
	c.writes = append(c.writes, cb)
	return true
}

func (c *fakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Fake is an in-memory Manager for tests. Connect always succeeds
// unless the host's address is listed in FailAddresses.
type Fake struct {
	mu            sync.Mutex
	conns         map[types.Address]*fakeConn
	events        chan Event
	FailAddresses map[types.Address]bool
	RefuseWrites  map[types.Address]bool
}

// NewFake returns a ready-to-use Fake manager.
func NewFake() *Fake {
	return &Fake{
		conns:         make(map[types.Address]*fakeConn),
		events:        make(chan Event, 64),
		FailAddresses: make(map[types.Address]bool),
		RefuseWrites:  make(map[types.Address]bool),
	}
}

func (f *Fake) Connect(_ context.Context, host *types.Host) error {
	if f.FailAddresses[host.Address] {
		err := fmt.Errorf("pool: fake connect failure for %s", host.Address)
		f.publish(Event{Host: host, Up: false, Critical: true, Err: err})
		return err
	}
	f.mu.Lock()
	f.conns[host.Address] = &fakeConn{addr: host.Address, refuse: f.RefuseWrites[host.Address]}
	f.mu.Unlock()
	f.publish(Event{Host: host, Up: true})
	return nil
}

// WritesTo returns every payload written to host's connection, for
// test assertions. Returns nil if host was never connected.
func (f *Fake) WritesTo(host *types.Host) []WriteCallback {
	f.mu.Lock()
	c, ok := f.conns[host.Address]
	f.mu.Unlock()
	if !ok {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]WriteCallback(nil), c.writes...)
}

func (f *Fake) Disconnect(host *types.Host) {
	f.mu.Lock()
	c, ok := f.conns[host.Address]
	delete(f.conns, host.Address)
	f.mu.Unlock()
	if ok {
		c.Close()
	}
	f.publish(Event{Host: host, Up: false})
}

func (f *Fake) Borrow(host *types.Host) (PooledConnection, error) {
	f.mu.Lock()
	c, ok := f.conns[host.Address]
	f.mu.Unlock()
	if !ok || c.IsClosed() {
		return nil, fmt.Errorf("pool: no connection to %s", host.Address)
	}
	return c, nil
}

func (f *Fake) Events() <-chan Event { return f.events }

func (f *Fake) Close() {
	f.mu.Lock()
	f.conns = nil
	f.mu.Unlock()
	close(f.events)
}

func (f *Fake) publish(e Event) {
	select {
	case f.events <- e:
	default:
	}
}
