package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"carelink/internal/audit"
	"carelink/internal/cursor"
	"carelink/internal/domain"
	"carelink/internal/feed"
	"carelink/internal/sync/metrics"
)

// ErrUnknownEndpoint is returned for a cycle request naming an endpoint the
// runner was not built with.
var ErrUnknownEndpoint = errors.New("unknown endpoint")

// EndpointRuntime bundles everything one endpoint's cycles need.
type EndpointRuntime struct {
	Endpoint     domain.Endpoint
	Pager        *feed.Pager
	Synchronizer *Synchronizer
}

// Runner executes poll cycles: one full feed traversal per endpoint, entries
// applied sequentially, cursor advanced all-or-nothing. Independent
// endpoints run concurrently; cycles for the same endpoint are serialized by
// the locker.
type Runner struct {
	endpoints map[string]*EndpointRuntime
	cursors   cursor.Store
	locks     Locker
	audit     *audit.Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
}

func NewRunner(
	endpoints []*EndpointRuntime,
	cursors cursor.Store,
	locks Locker,
	auditPub *audit.Publisher,
	m *metrics.Metrics,
	log *zap.Logger,
) *Runner {
	byID := make(map[string]*EndpointRuntime, len(endpoints))
	for _, runtime := range endpoints {
		byID[runtime.Endpoint.ID] = runtime
	}
	return &Runner{
		endpoints: byID,
		cursors:   cursors,
		locks:     locks,
		audit:     auditPub,
		metrics:   m,
		log:       log,
	}
}

// Endpoint returns the runtime for an endpoint id.
func (r *Runner) Endpoint(id string) (*EndpointRuntime, bool) {
	runtime, ok := r.endpoints[id]
	return runtime, ok
}

// RunCycle executes one poll cycle for the endpoint. Page-fetch failure
// aborts the whole cycle without touching the cursor; per-entry failures are
// logged and the cycle continues.
func (r *Runner) RunCycle(ctx context.Context, endpointID string) error {
	runtime, ok := r.endpoints[endpointID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEndpoint, endpointID)
	}
	ep := runtime.Endpoint

	release, err := r.locks.Acquire(ctx, ep.ID)
	if err != nil {
		return err
	}
	defer release()

	start := time.Now()
	log := r.log.With(zap.String("endpoint_id", ep.ID), zap.String("domain", ep.Domain))

	cur, err := r.cursors.Get(ctx, ep.ID)
	if err != nil {
		return fmt.Errorf("read cursor: %w", err)
	}

	entries, next, err := runtime.Pager.Poll(ctx, cur)
	if err != nil {
		r.metrics.IncrementCycle(ep.ID, "aborted")
		r.metrics.IncrementFault(string(domain.FaultTransport))
		r.emitCycle(ctx, ep, audit.ActionCycleAborted, err.Error())
		log.Warn("cycle aborted, cursor untouched", zap.Error(err))
		fault := domain.NewFault(domain.FaultTransport, ep.ID, ep.Domain, "", "poll feed")
		fault.Err = err
		return fault
	}

	// The traversal succeeded, so the cursor advances exactly once, both
	// fields together, before entry processing: entry outcomes never
	// influence poll progress.
	if err := r.cursors.Put(ctx, ep.ID, next); err != nil {
		r.metrics.IncrementCycle(ep.ID, "aborted")
		r.emitCycle(ctx, ep, audit.ActionCycleAborted, "cursor write: "+err.Error())
		return fmt.Errorf("write cursor: %w", err)
	}

	var submitted, skipped, faulted int
	for _, entry := range entries {
		outcome, err := runtime.Synchronizer.ProcessEntry(ctx, entry)
		switch outcome {
		case OutcomeSubmitted:
			submitted++
		case OutcomeSkipped:
			skipped++
		case OutcomeFaulted:
			faulted++
			log.Warn("entry faulted, continuing cycle",
				zap.String("patient_uuid", entry.PatientUUID),
				zap.Error(err),
			)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	r.metrics.IncrementCycle(ep.ID, "completed")
	r.metrics.ObserveCycleDuration(time.Since(start))
	r.emitCycle(ctx, ep, audit.ActionCycleCompleted,
		fmt.Sprintf("entries=%d submitted=%d skipped=%d faulted=%d",
			len(entries), submitted, skipped, faulted))
	log.Info("cycle completed",
		zap.Int("entries", len(entries)),
		zap.Int("submitted", submitted),
		zap.Int("skipped", skipped),
		zap.Int("faulted", faulted),
		zap.Duration("duration", time.Since(start)),
	)
	return nil
}

// RunAll runs one cycle for every enabled endpoint, concurrently. A failing
// endpoint does not stop the others; the first error is reported after all
// cycles finish.
func (r *Runner) RunAll(ctx context.Context) error {
	g := new(errgroup.Group)
	for id, runtime := range r.endpoints {
		if !runtime.Endpoint.Enabled {
			continue
		}
		endpointID := id
		g.Go(func() error {
			err := r.RunCycle(ctx, endpointID)
			if errors.Is(err, ErrCycleInProgress) {
				r.log.Info("skipping endpoint, cycle already running",
					zap.String("endpoint_id", endpointID))
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// Start polls every enabled endpoint on the interval until the context is
// cancelled. The scheduler itself never fails; cycle errors are already
// logged and surfaced through metrics and audit.
func (r *Runner) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.RunAll(ctx); err != nil {
				r.log.Warn("scheduled poll finished with errors", zap.Error(err))
			}
		}
	}
}

func (r *Runner) emitCycle(ctx context.Context, ep domain.Endpoint, action audit.Action, detail string) {
	err := r.audit.Emit(ctx, audit.Event{
		EndpointID: ep.ID,
		Domain:     ep.Domain,
		Action:     action,
		Detail:     detail,
	})
	if err != nil {
		r.log.Warn("audit emit failed", zap.String("action", string(action)), zap.Error(err))
	}
}
