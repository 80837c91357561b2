// Package pool manages per-host connection pools: their up/down/
// critical lifecycle, and the connections a request is dispatched
// over.
package pool

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cuemby/meridian/pkg/types"
)

// WriteCallback is a payload that knows how to encode itself onto a
// connection. Encode stands in for real wire-protocol framing, so
// PooledConnection.Write's signature matches the abstraction the
// dispatch path depends on.
type WriteCallback interface {
	Encode() []byte
}

// BytesCallback is the simplest WriteCallback: a fixed payload.
type BytesCallback []byte

func (b BytesCallback) Encode() []byte { return b }

// PooledConnection is one connection a request can be dispatched over,
// chosen via Manager.Borrow's least-busy-connection selection.
type PooledConnection interface {
	// Address is the host this connection belongs to.
	Address() types.Address
	// Write hands cb's encoded form to the connection. It returns
	// false if the connection refused the write (e.g. already
	// closing); the caller must try another connection or host.
	Write(cb WriteCallback) bool
	// IsClosed reports whether the connection has been torn down.
	IsClosed() bool
	// Close tears the connection down.
	Close() error
}

// Event describes a pool lifecycle transition for one host.
type Event struct {
	Host     *types.Host
	Up       bool
	Critical bool
	Err      error
}

// Manager owns one connection pool per host and reports lifecycle
// transitions on Events(). It is driven entirely from the processor's
// worker goroutine: callers must not call Manager methods concurrently
// with each other for the same host.
type Manager interface {
	// Connect establishes (or begins establishing) a pool for host.
	Connect(ctx context.Context, host *types.Host) error
	// Disconnect tears the pool for host down.
	Disconnect(host *types.Host)
	// Borrow returns a connection to dispatch a request over, or an
	// error if host has no usable connection right now.
	Borrow(host *types.Host) (PooledConnection, error)
	// Events returns the channel pool lifecycle transitions are
	// published on.
	Events() <-chan Event
	// Close tears every pool down and closes the Events channel.
	Close()
}

// tcpConn is a PooledConnection backed by a single TCP socket. It is a
// placeholder transport suitable for demos and tests: real deployments
// would dispatch the wire protocol over conn instead.
type tcpConn struct {
	addr   types.Address
	conn   net.Conn
	mu     sync.Mutex
	closed bool
}

func (c *tcpConn) Address() types.Address { return c.addr }

func (c *tcpConn) Write(cb WriteCallback) bool {
	if c.IsClosed() {
		return false
	}
	_, err := c.conn.Write(cb.Encode())
	return err == nil
}

func (c *tcpConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *tcpConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// TCPManager is a Manager whose liveness probe and connection
// establishment are a single TCP dial. It keeps at most one connection
// per host.
type TCPManager struct {
	mu     sync.Mutex
	conns  map[types.Address]*tcpConn
	dialer net.Dialer
	events chan Event
	closed bool
}

// NewTCPManager returns a TCPManager whose dials time out after
// timeout (defaulting to 5s when timeout is 0).
func NewTCPManager(timeout time.Duration) *TCPManager {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &TCPManager{
		conns:  make(map[types.Address]*tcpConn),
		dialer: net.Dialer{Timeout: timeout},
		events: make(chan Event, 64),
	}
}

func (m *TCPManager) Connect(ctx context.Context, host *types.Host) error {
	conn, err := m.dialer.DialContext(ctx, "tcp", host.Address.String())
	if err != nil {
		m.publish(Event{Host: host, Up: false, Critical: false, Err: err})
		return fmt.Errorf("pool: connect %s: %w", host.Address, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		conn.Close()
		return fmt.Errorf("pool: manager closed")
	}
	m.conns[host.Address] = &tcpConn{addr: host.Address, conn: conn}
	m.mu.Unlock()

	m.publish(Event{Host: host, Up: true})
	return nil
}

func (m *TCPManager) Disconnect(host *types.Host) {
	m.mu.Lock()
	c, ok := m.conns[host.Address]
	delete(m.conns, host.Address)
	m.mu.Unlock()

	if ok {
		c.Close()
	}
	m.publish(Event{Host: host, Up: false})
}

func (m *TCPManager) Borrow(host *types.Host) (PooledConnection, error) {
	m.mu.Lock()
	c, ok := m.conns[host.Address]
	m.mu.Unlock()
	if !ok || c.IsClosed() {
		return nil, fmt.Errorf("pool: no connection to %s", host.Address)
	}
	return c, nil
}

func (m *TCPManager) Events() <-chan Event {
	return m.events
}

func (m *TCPManager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	conns := m.conns
	m.conns = nil
	m.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
	close(m.events)
}

func (m *TCPManager) publish(e Event) {
	select {
	case m.events <- e:
	default:
	}
}
