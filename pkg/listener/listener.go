// Package listener defines the callback surface the processor fans
// notable events out through: keyspace changes, prepared-statement
// metadata updates, and per-pool lifecycle transitions. It is a plain
// Go interface rather than a broadcast channel bus: the processor has
// at most one listener (the owning session), so a direct method-call
// contract avoids the buffering and drop-on-full tradeoffs a pub/sub
// broker accepts for many independent subscribers.
package listener

import "github.com/cuemby/meridian/pkg/types"

// PreparedMetadataEntry describes one statement's result metadata, as
// learned from a PREPARE response and cached for reuse by later
// EXECUTE requests against the same query string.
type PreparedMetadataEntry struct {
	QueryHash      string
	Keyspace       string
	ResultMetadata []byte
	VariablesCount int
}

// Listener receives the events a RequestProcessor produces outside the
// direct request/response path.
type Listener interface {
	// OnKeyspaceUpdate is called when a response sets the connection's
	// current keyspace, so the owning session can keep its own view in
	// sync with what new connections should USE on connect.
	OnKeyspaceUpdate(keyspace string)

	// OnPreparedMetadataUpdate is called when a PREPARE response
	// carries result metadata newer than what's cached for its query.
	OnPreparedMetadataUpdate(entry PreparedMetadataEntry)

	// OnPoolUp is called when a host's connection pool transitions to
	// fully connected.
	OnPoolUp(host *types.Host)

	// OnPoolDown is called when a host's connection pool loses its
	// last connection without a critical error.
	OnPoolDown(host *types.Host)

	// OnPoolCriticalError is called when a host's pool fails for a
	// reason that should stop the load-balancing policies from
	// retrying it until the next topology event (e.g. auth failure,
	// protocol mismatch).
	OnPoolCriticalError(host *types.Host, err error)
}

// Nop implements Listener with no-op methods, for processors that have
// no owning session to notify (benchmarks, tests).
type Nop struct{}

func (Nop) OnKeyspaceUpdate(string)                        {}
func (Nop) OnPreparedMetadataUpdate(PreparedMetadataEntry) {}
func (Nop) OnPoolUp(*types.Host)                           {}
func (Nop) OnPoolDown(*types.Host)                         {}
func (Nop) OnPoolCriticalError(*types.Host, error)         {}
