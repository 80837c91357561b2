// Package processor implements the request processor: the single
// goroutine per worker that owns one request queue, one view of the
// cluster topology, and one connection pool manager, and drives every
// request dispatched to it from enqueue through completion. It runs a
// single select loop over channels in place of an event-loop plus
// posted-task objects.
package processor

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/meridian/pkg/config"
	"github.com/cuemby/meridian/pkg/handler"
	"github.com/cuemby/meridian/pkg/listener"
	"github.com/cuemby/meridian/pkg/metrics"
	"github.com/cuemby/meridian/pkg/policy"
	"github.com/cuemby/meridian/pkg/pool"
	"github.com/cuemby/meridian/pkg/preparedcache"
	"github.com/cuemby/meridian/pkg/profile"
	"github.com/cuemby/meridian/pkg/queue"
	"github.com/cuemby/meridian/pkg/schemaagreement"
	"github.com/cuemby/meridian/pkg/topology"
	"github.com/cuemby/meridian/pkg/types"

	"github.com/cuemby/meridian/pkg/log"
	"github.com/rs/zerolog"
)

// Params are the inputs New needs to construct a Processor.
type Params struct {
	// PoolManager owns every per-host connection pool. Required.
	PoolManager pool.Manager
	// ConnectedHost is the host the control connection is already on,
	// handed to every policy's Init so plans can prefer it.
	ConnectedHost *types.Host
	// Hosts is the initial cluster view.
	Hosts types.HostMap
	// TokenMap is the initial token-ownership snapshot.
	TokenMap topology.TokenMap
	// Listener receives keyspace, prepared-metadata, and pool lifecycle
	// events. Defaults to listener.Nop{} if nil.
	Listener listener.Listener
	// Settings is the processor's tunable configuration.
	Settings config.Settings
	// Rand seeds every policy's query-plan shuffling; shared across
	// policies so plans are reproducible given the same seed.
	Rand *rand.Rand
	// Queue is the bounded request queue producers push onto. Required.
	Queue *queue.Queue[*handler.RequestHandler]
	// Timestamps supplies client-side write timestamps, handed through
	// to every dispatched handler.
	Timestamps handler.TimestampGenerator
	// PreparedCache persists prepared-statement metadata across
	// restarts. Optional; nil disables persistence.
	PreparedCache *preparedcache.Cache
	// DefaultProfile is used whenever a request names no profile. A
	// request naming one not present in Profiles is completed with
	// ErrorExecutionProfileInvalid.
	DefaultProfile *profile.ExecutionProfile
	// Profiles is the name -> settings table for every non-default
	// execution profile.
	Profiles profile.Map
	// SchemaAgreementChecker reports whether every up host currently
	// agrees on schema. Defaults to an always-agreed checker, suitable
	// for deployments with no schema-version source wired in yet.
	SchemaAgreementChecker schemaagreement.Checker
}

// Processor is the request processor. Every field except the atomics
// and the channels it selects on is owned exclusively by its worker
// goroutine and must never be touched from any other goroutine; the
// Notify*/Enqueue/Close/Closed/SetKeyspace/HostCounts methods are the
// only safe cross-goroutine entry points.
type Processor struct {
	queue         *queue.Queue[*handler.RequestHandler]
	poolManager   pool.Manager
	poolEvents    <-chan pool.Event
	listener      listener.Listener
	preparedCache *preparedcache.Cache

	hosts         types.HostMap
	tokenMap      topology.TokenMap
	connectedHost *types.Host
	policies      []policy.LoadBalancingPolicy

	defaultProfile *profile.ExecutionProfile
	profiles       profile.Map

	settings   config.Settings
	rand       *rand.Rand
	timestamps handler.TimestampGenerator

	schemaAgreementChecker schemaagreement.Checker

	taskCh  chan task
	queryCh chan hostCountQuery
	timer   *time.Timer

	isClosing atomic.Bool
	closeOnce sync.Once
	closedCh  chan struct{}

	logger zerolog.Logger
}

// New builds a Processor and resolves every execution profile's
// load-balancing policy. It does not start the worker goroutine; call
// Start for that.
func New(p Params) *Processor {
	if p.Listener == nil {
		p.Listener = listener.Nop{}
	}
	if p.Rand == nil {
		p.Rand = rand.New(rand.NewSource(1))
	}
	if p.SchemaAgreementChecker == nil {
		p.SchemaAgreementChecker = func() (bool, error) { return true, nil }
	}
	if p.Hosts == nil {
		p.Hosts = types.HostMap{}
	}
	if p.TokenMap == nil {
		p.TokenMap = topology.Empty{}
	}

	policies := profile.ResolvePolicies(p.DefaultProfile, p.Profiles)
	for _, pol := range policies {
		pol.Init(p.ConnectedHost, p.Hosts.Clone(), p.Rand)
		pol.RegisterHandles()
	}

	return &Processor{
		queue:                  p.Queue,
		poolManager:            p.PoolManager,
		poolEvents:             p.PoolManager.Events(),
		listener:               p.Listener,
		preparedCache:          p.PreparedCache,
		hosts:                  p.Hosts,
		tokenMap:               p.TokenMap,
		connectedHost:          p.ConnectedHost,
		policies:               policies,
		defaultProfile:         p.DefaultProfile,
		profiles:               p.Profiles,
		settings:               p.Settings,
		rand:                   p.Rand,
		timestamps:             p.Timestamps,
		schemaAgreementChecker: p.SchemaAgreementChecker,
		taskCh:                 make(chan task, 64),
		queryCh:                make(chan hostCountQuery),
		closedCh:               make(chan struct{}),
		logger:                 log.WithComponent("processor"),
	}
}

// Start launches the worker goroutine. Must be called at most once.
func (p *Processor) Start() {
	go p.run()
}

// Closed returns a channel closed once the worker has finished its
// final flush and exited, for callers that want to wait out Close.
func (p *Processor) Closed() <-chan struct{} {
	return p.closedCh
}

func (p *Processor) run() {
	p.logger.Debug().Msg("processor worker starting")
	for {
		var timerC <-chan time.Time
		if p.timer != nil {
			timerC = p.timer.C
		}

		select {
		case <-p.queue.Wake():
			if p.internalFlushRequests() {
				return
			}
		case <-timerC:
			p.timer = nil
			if p.internalFlushRequests() {
				return
			}
		case t := <-p.taskCh:
			p.handleTask(t)
		case q := <-p.queryCh:
			q.reply <- p.hostCounts()
		case ev, ok := <-p.poolEvents:
			if !ok {
				p.poolEvents = nil
				continue
			}
			p.handlePoolEvent(ev)
		}
	}
}

// internalFlushRequests drains at most as many requests as were
// queued when the flush began and dispatches each one, then either
// rearms the pacing timer, self-signals for an immediate re-entry, or
// goes idle, per the 90/10 flush-ratio formula. It returns true once
// the worker should stop, which only happens after
// a close task has been handled and the queue has been drained one
// final time.
func (p *Processor) internalFlushRequests() bool {
	metrics.QueueDepth.Set(float64(p.queue.Len()))
	timer := metrics.NewTimer()
	n := p.queue.Drain(func(h *handler.RequestHandler) bool {
		p.dispatch(h)
		return true
	})
	timer.ObserveDuration(metrics.FlushDuration)
	metrics.FlushCyclesTotal.Inc()
	metrics.FlushedRequestsTotal.Add(float64(n))

	if p.isClosing.Load() {
		p.stopTimer()
		close(p.closedCh)
		return true
	}

	if p.queue.Len() == 0 {
		return false
	}

	flushDuration := timer.Duration()
	ratio := int64(p.settings.FlushRatio)
	processingBudget := time.Duration(int64(flushDuration) * (100 - ratio) / ratio)

	if processingBudget >= time.Millisecond {
		p.armTimer(processingBudget)
	} else {
		p.queue.Nudge()
	}
	return false
}

func (p *Processor) armTimer(d time.Duration) {
	ms := time.Duration(math.Round(float64(d)/float64(time.Millisecond))) * time.Millisecond
	if ms < time.Millisecond {
		ms = time.Millisecond
	}
	p.timer = time.NewTimer(ms)
}

func (p *Processor) stopTimer() {
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
}

// dispatch resolves h's execution profile and hands the handler
// everything it needs to pick a host and write its own request. The
// processor's own involvement ends at Init/Execute; iterating the
// query plan and borrowing a connection is the handler's job
// (pkg/handler.RequestHandler.Execute).
func (p *Processor) dispatch(h *handler.RequestHandler) {
	defer h.Release()

	timer := metrics.NewTimer()
	defer func() {
		code := handler.ErrorNone
		if result := h.Result(); result != nil {
			code = result.Code
		}
		metrics.DispatchTotal.WithLabelValues(code.String()).Inc()
		timer.ObserveDurationVec(metrics.DispatchDuration, code.String())
	}()

	prof := p.defaultProfile
	if name := h.Profile; name != "" {
		found, ok := p.profiles[name]
		if !ok {
			h.SetError(handler.ErrorExecutionProfileInvalid, "execution profile "+name+" does not exist")
			return
		}
		prof = found
	}

	h.Init(handler.DispatchParams{
		Profile:     prof,
		PoolManager: p.poolManager,
		TokenMap:    p.tokenMap,
		Timestamps:  p.timestamps,
		Callbacks:   p,
	})
	h.Execute()
}

// publishHostMetrics recomputes the host-count gauge from the worker's
// own view; called inline from the worker goroutine after every
// topology or pool-lifecycle change, so it never races p.hosts.
func (p *Processor) publishHostMetrics() {
	for _, state := range []types.HostState{types.HostAdded, types.HostUp, types.HostDown, types.HostRemoved} {
		metrics.HostsTotal.WithLabelValues(state.String()).Set(0)
	}
	for _, h := range p.hosts {
		metrics.HostsTotal.WithLabelValues(h.State.String()).Add(1)
	}
}

// Enqueue pushes h onto the request queue, which itself raises the
// worker's wakeup signal (pkg/queue.Queue.Push already folds "enqueue"
// and "notify" into one call, so there is no separate notify step).
// If the queue is full, Enqueue completes h with ErrorQueueFull (which
// runs h's completion callback) and then returns the queue's error.
// It may be called from any goroutine.
func (p *Processor) Enqueue(h *handler.RequestHandler) error {
	if err := p.queue.Push(h); err != nil {
		h.SetError(handler.ErrorQueueFull, "request queue is at capacity")
		return err
	}
	return nil
}

// NotifyHostAdd posts a host-added topology task. Safe from any goroutine.
func (p *Processor) NotifyHostAdd(host *types.Host) {
	p.taskCh <- task{kind: taskHostAdd, host: host}
}

// NotifyHostRemove posts a host-removed topology task. Safe from any goroutine.
func (p *Processor) NotifyHostRemove(host *types.Host) {
	p.taskCh <- task{kind: taskHostRemove, host: host}
}

// NotifyTokenMapUpdate posts a token-map replacement. Safe from any goroutine.
func (p *Processor) NotifyTokenMapUpdate(tm topology.TokenMap) {
	p.taskCh <- task{kind: taskTokenMapUpdate, tokenMap: tm}
}

// SetKeyspace is a pass-through to the pool manager, the one
// user-callable mutation that bypasses the task queue entirely: the
// pool manager is responsible for making every future connection USE
// the new keyspace, and for its own internal synchronization.
func (p *Processor) SetKeyspace(keyspace string) {
	if ks, ok := p.poolManager.(keyspaceSetter); ok {
		ks.SetKeyspace(keyspace)
	}
}

type keyspaceSetter interface {
	SetKeyspace(keyspace string)
}

// Close posts a close task and returns without waiting for the
// worker's final flush; use Closed() to wait for it. Idempotent.
func (p *Processor) Close() {
	p.closeOnce.Do(func() {
		p.taskCh <- task{kind: taskClose}
	})
}

func (p *Processor) handleTask(t task) {
	switch t.kind {
	case taskHostAdd:
		p.hosts[t.host.Address] = t.host
		if err := p.poolManager.Connect(context.Background(), t.host); err != nil {
			p.logger.Debug().Str("host", t.host.Address.String()).Err(err).Msg("initial connect failed, pool will keep retrying")
		}
		p.fanOutOnAdd(t.host)
		p.publishHostMetrics()
	case taskHostRemove:
		delete(p.hosts, t.host.Address)
		p.poolManager.Disconnect(t.host)
		for _, pol := range p.policies {
			pol.OnRemove(t.host)
		}
		p.publishHostMetrics()
	case taskTokenMapUpdate:
		p.tokenMap = t.tokenMap
	case taskClose:
		p.poolManager.Close()
		for _, pol := range p.policies {
			pol.CloseHandles()
		}
		p.isClosing.Store(true)
		p.queue.Nudge()
	}
}

// fanOutOnAdd delivers OnAdd to every policy that doesn't classify
// host as Ignore. A host every policy ignores never reaches any plan,
// so lifecycle events for it are dropped at the source instead of
// accumulating state no policy will ever consult (the "ignore gate").
func (p *Processor) fanOutOnAdd(host *types.Host) {
	reached := false
	for _, pol := range p.policies {
		if pol.Distance(host) == types.HostDistanceIgnore {
			continue
		}
		reached = true
		pol.OnAdd(host)
	}
	if !reached {
		p.logger.Debug().Str("host", host.Address.String()).Msg("host ignored by every policy")
	}
}

// hostCountQuery asks the worker goroutine for a snapshot of host
// counts by state, the only way to read HostMap from outside it
// safely (pkg/types' "mutated only from the processor goroutine"
// invariant covers reads too, since a concurrent read could race a
// lifecycle-driven write).
type hostCountQuery struct {
	reply chan map[types.HostState]int
}

func (p *Processor) hostCounts() map[types.HostState]int {
	counts := make(map[types.HostState]int, 4)
	for _, h := range p.hosts {
		counts[h.State]++
	}
	return counts
}

// HostCounts returns a snapshot of how many known hosts are in each
// state, for metrics collection. Safe from any goroutine; returns nil
// if the processor has already closed.
func (p *Processor) HostCounts() map[types.HostState]int {
	reply := make(chan map[types.HostState]int, 1)
	select {
	case p.queryCh <- hostCountQuery{reply: reply}:
	case <-p.closedCh:
		return nil
	}
	select {
	case counts := <-reply:
		return counts
	case <-p.closedCh:
		return nil
	}
}

func (p *Processor) handlePoolEvent(ev pool.Event) {
	host := ev.Host
	if known, ok := p.hosts[ev.Host.Address]; ok {
		host = known
	}
	defer p.publishHostMetrics()

	if ev.Up {
		host.State = types.HostUp
		for _, pol := range p.policies {
			if pol.Distance(host) != types.HostDistanceIgnore {
				pol.OnUp(host)
			}
		}
		p.listener.OnPoolUp(host)
		return
	}

	host.State = types.HostDown
	for _, pol := range p.policies {
		if pol.Distance(host) != types.HostDistanceIgnore {
			pol.OnDown(host)
		}
	}
	if ev.Critical {
		p.listener.OnPoolCriticalError(host, ev.Err)
	} else {
		p.listener.OnPoolDown(host)
	}
}
