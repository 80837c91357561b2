// Package handler implements RequestHandler: the reference-counted
// object that tracks one request from dispatch to completion, and the
// Callbacks surface it uses to ask the owning processor to do
// orchestration work outside the request/response path (wait for
// schema agreement, prepare a statement on every host). Each handler
// gets an ID-per-unit-of-work (uuid.New().String()) and constructs its
// own zerolog component logger, matching the convention every
// component in this codebase follows.
package handler

import (
	"sync/atomic"

	"github.com/cuemby/meridian/pkg/log"
	"github.com/cuemby/meridian/pkg/policy"
	"github.com/cuemby/meridian/pkg/pool"
	"github.com/cuemby/meridian/pkg/profile"
	"github.com/cuemby/meridian/pkg/topology"
	"github.com/cuemby/meridian/pkg/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrorCode classifies why a request failed in a way callers can
// branch on without string-matching an error message.
type ErrorCode int

const (
	// ErrorNone indicates success.
	ErrorNone ErrorCode = iota
	// ErrorExecutionProfileInvalid means the request named an
	// execution profile that doesn't exist.
	ErrorExecutionProfileInvalid
	// ErrorNoHostsAvailable means the query plan produced no host
	// with an acceptable distance and a live connection.
	ErrorNoHostsAvailable
	// ErrorSchemaAgreementTimeout means OnWaitForSchemaAgreement did
	// not observe agreement before MaxSchemaWaitTime elapsed.
	ErrorSchemaAgreementTimeout
	// ErrorConnectionClosed means the connection the request was
	// dispatched over closed before a response arrived.
	ErrorConnectionClosed
	// ErrorQueueFull means the request was rejected before dispatch
	// because the processor's request queue was at capacity.
	ErrorQueueFull
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorNone:
		return "none"
	case ErrorExecutionProfileInvalid:
		return "execution_profile_invalid"
	case ErrorNoHostsAvailable:
		return "no_hosts_available"
	case ErrorSchemaAgreementTimeout:
		return "schema_agreement_timeout"
	case ErrorConnectionClosed:
		return "connection_closed"
	case ErrorQueueFull:
		return "queue_full"
	default:
		return "unknown"
	}
}

// Error is returned by a RequestHandler's completion with a code a
// caller can branch on.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string { return e.Code.String() + ": " + e.Message }

// Callbacks is the subset of processor behavior a RequestHandler (and
// the orchestration helpers it starts) may call back into. Expressing
// this as an interface rather than a concrete *processor.Processor
// pointer breaks the import cycle handler/processor would otherwise
// have, and keeps handler testable without a real processor.
type Callbacks interface {
	// IsHostUp reports whether host currently has a usable pool.
	IsHostUp(host *types.Host) bool
	// OnWaitForSchemaAgreement starts (or joins) the pending
	// schema-agreement wait; onDone is called exactly once when
	// agreement is observed or the wait times out.
	OnWaitForSchemaAgreement(onDone func(timedOut bool))
	// OnPrepareAll fans a PREPARE for query out to every currently-up
	// host besides the one it already succeeded on; onDone is called
	// exactly once after every fan-out attempt completes (success or
	// failure, each path must call Done on the prepareall.Callback it
	// is given exactly once).
	OnPrepareAll(query string, excludeHost *types.Host, onDone func())
}

// TimestampGenerator supplies client-side monotonic write timestamps;
// the processor hands the handler the implementation it was
// constructed with (processor.Params.Timestamps).
type TimestampGenerator interface {
	Next() int64
}

// DispatchParams is what the processor supplies to Init before calling
// Execute: the resolved profile, the pool manager, the current token
// map snapshot, the timestamp generator, and the processor's callback
// surface.
type DispatchParams struct {
	Profile     *profile.ExecutionProfile
	PoolManager pool.Manager
	TokenMap    topology.TokenMap
	Timestamps  TimestampGenerator
	Callbacks   Callbacks
}

// RequestHandler tracks one request from dispatch to completion. It
// is reference counted: Retain/Release let orchestration helpers
// (schema agreement wait, prepare-all fan-out) keep it alive past the
// point the original caller stops waiting on it.
type RequestHandler struct {
	ID           string
	Keyspace     string
	Query        string
	Profile      string
	RoutingToken *int64

	logger  zerolog.Logger
	refs    atomic.Int32
	done    atomic.Bool
	result  atomic.Pointer[Error]
	onFinal func(*Error)

	params DispatchParams
}

// New returns a RequestHandler with one implicit reference. A handler
// passed to the processor's Enqueue hands that reference over: the
// processor calls Release once it has dispatched the handler.
func New(keyspace, query, profile string, onFinal func(*Error)) *RequestHandler {
	id := uuid.New().String()
	logger := log.WithComponent("handler")
	logger = log.WithRequestID(logger, id)
	if keyspace != "" {
		logger = log.WithKeyspace(logger, keyspace)
	}

	h := &RequestHandler{
		ID:       id,
		Keyspace: keyspace,
		Query:    query,
		Profile:  profile,
		logger:   logger,
		onFinal:  onFinal,
	}
	h.refs.Store(1)
	return h
}

// Retain adds a reference. Must be paired with a later Release.
func (h *RequestHandler) Retain() {
	h.refs.Add(1)
}

// Release drops a reference. When the count reaches zero the handler
// is considered fully settled and logs at debug level; it does not
// itself call onFinal again if Complete already ran (Complete and the
// zero-refs transition are independent: Complete fires the caller's
// result callback once a response or error exists, while refs track
// how many in-flight orchestration helpers still touch the handler).
func (h *RequestHandler) Release() {
	if n := h.refs.Add(-1); n == 0 {
		h.logger.Debug().Msg("request handler fully released")
	} else if n < 0 {
		h.logger.Error().Msg("request handler released more times than retained")
	}
}

// Complete runs the handler's completion callback exactly once,
// regardless of how many times Complete is called (the first call
// wins; later calls are no-ops so a late orchestration callback can't
// override an already-delivered result).
func (h *RequestHandler) Complete(err *Error) {
	if !h.done.CompareAndSwap(false, true) {
		return
	}
	h.result.Store(err)
	if h.onFinal != nil {
		h.onFinal(err)
	}
}

// Done reports whether Complete has already run.
func (h *RequestHandler) Done() bool {
	return h.done.Load()
}

// Result returns the error Complete settled with, or nil for success
// or for a handler that hasn't completed yet.
func (h *RequestHandler) Result() *Error {
	return h.result.Load()
}

// Init stores the context the processor resolved for this dispatch.
// Must be called before Execute.
func (h *RequestHandler) Init(params DispatchParams) {
	h.params = params
}

// SetError completes the handler with a processor-observed error
// without ever calling Execute (used when the named profile doesn't
// exist).
func (h *RequestHandler) SetError(code ErrorCode, message string) {
	h.Complete(&Error{Code: code, Message: message})
}

// Execute asks the handler's profile for a query plan and writes the
// request to the first host whose connection accepts the write,
// trying hosts in plan order. It completes the handler with
// ErrorNoHostsAvailable if the plan is exhausted without an accepted
// write. The processor only supplies context (Init); iterating the
// plan is the handler's own responsibility.
func (h *RequestHandler) Execute() {
	lbp := h.params.Profile.LoadBalancingPolicy()
	plan := lbp.NewQueryPlan(policy.Request{
		Keyspace:     h.Keyspace,
		RoutingToken: h.RoutingToken,
	}, h.params.TokenMap)

	for {
		host, ok := plan.Next()
		if !ok {
			h.Complete(&Error{Code: ErrorNoHostsAvailable, Message: "query plan exhausted"})
			return
		}

		hostLogger := log.WithHost(h.logger, host.Address.String())

		conn, err := h.params.PoolManager.Borrow(host)
		if err != nil {
			hostLogger.Debug().Err(err).Msg("no connection to host, trying next plan entry")
			continue
		}
		if conn.Write(pool.BytesCallback(h.Query)) {
			h.Complete(nil)
			return
		}
		hostLogger.Debug().Msg("write refused, trying next plan entry")
	}
}
