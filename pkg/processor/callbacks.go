package processor

import (
	"context"
	"time"

	"github.com/cuemby/meridian/pkg/listener"
	"github.com/cuemby/meridian/pkg/metrics"
	"github.com/cuemby/meridian/pkg/pool"
	"github.com/cuemby/meridian/pkg/prepareall"
	"github.com/cuemby/meridian/pkg/schemaagreement"
	"github.com/cuemby/meridian/pkg/types"
)

// Processor implements handler.Callbacks: the post-response
// orchestration a RequestHandler asks for outside the direct
// request/response path.

// IsHostUp reports whether host currently has a usable pool.
func (p *Processor) IsHostUp(host *types.Host) bool {
	known, ok := p.hosts[host.Address]
	return ok && known.State == types.HostUp
}

// OnWaitForSchemaAgreement starts a bounded wait for every up host to
// agree on schema, reporting the result back on its own goroutine so
// the caller (a RequestHandler processing a DDL response) never blocks
// the worker.
func (p *Processor) OnWaitForSchemaAgreement(onDone func(timedOut bool)) {
	h := schemaagreement.New(p.schemaAgreementChecker, 200*time.Millisecond, p.settings.MaxSchemaWaitTime)
	h.WaitAsync(context.Background(), func(timedOut bool, err error) {
		outcome := "agreed"
		switch {
		case err != nil:
			p.logger.Debug().Err(err).Msg("schema agreement check failed")
			outcome = "error"
		case timedOut:
			outcome = "timeout"
		}
		metrics.SchemaAgreementTotal.WithLabelValues(outcome).Inc()
		onDone(timedOut)
	})
}

// OnPrepareAll fans a PREPARE for query out to every up host besides
// excludeHost, skipped entirely when PrepareOnAllHosts is off.
func (p *Processor) OnPrepareAll(query string, excludeHost *types.Host, onDone func()) {
	if !p.settings.PrepareOnAllHosts {
		onDone()
		return
	}
	metrics.PrepareAllTotal.Inc()

	hosts := make([]*types.Host, 0, len(p.hosts))
	for _, h := range p.hosts {
		if h.State == types.HostUp {
			hosts = append(hosts, h)
		}
	}

	runner := prepareall.New(func(host *types.Host, q string, cb *prepareall.Callback) {
		conn, err := p.poolManager.Borrow(host)
		if err != nil {
			cb.Done()
			return
		}
		conn.Write(pool.BytesCallback(q))
		cb.Done()
	})
	runner.Run(hosts, excludeHost, query, onDone)
}

// NotifyPreparedMetadataUpdate persists entry (if persistence is
// configured) and forwards it to the listener.
func (p *Processor) NotifyPreparedMetadataUpdate(entry listener.PreparedMetadataEntry) {
	if p.preparedCache != nil {
		if err := p.preparedCache.Put(entry); err != nil {
			p.logger.Error().Err(err).Str("query_hash", entry.QueryHash).Msg("failed to persist prepared metadata")
		}
	}
	p.listener.OnPreparedMetadataUpdate(entry)
}

// NotifyKeyspaceUpdate forwards a keyspace change observed on a
// response to the listener.
func (p *Processor) NotifyKeyspaceUpdate(keyspace string) {
	p.listener.OnKeyspaceUpdate(keyspace)
}
