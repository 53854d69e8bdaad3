// Package pipeline runs detection cycles: enumerate targets, capture each
// one, compare with its previous capture, persist, and notify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sneakpeak/pkg/db"
	"sneakpeak/pkg/differ"
	"sneakpeak/pkg/domain"
	"sneakpeak/pkg/fetcher"
	"sneakpeak/pkg/logger"
	"sneakpeak/pkg/metrics"
	"sneakpeak/pkg/notify"
	"sneakpeak/pkg/report"
	"sneakpeak/pkg/worker"
)

var (
	// ErrEnumerate wraps a failure to list targets. It is the only error a
	// detection cycle returns.
	ErrEnumerate = errors.New("enumerate targets")
	// ErrRunInProgress is returned when a cycle is triggered while another
	// one is still running.
	ErrRunInProgress = errors.New("detection cycle already running")
)

// PageFetcher captures the normalised text of a page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Page, error)
}

// ContentDiffer compares two captures of the same page.
type ContentDiffer interface {
	Diff(oldText, newText string) differ.Result
}

// Config wires the orchestrator dependencies.
type Config struct {
	Store    db.Store
	Fetcher  PageFetcher
	Differ   ContentDiffer
	Notifier notify.Notifier
	// Recipient receives the digest.
	Recipient string
	// Workers bounds concurrent targets. Values below 1 mean sequential.
	Workers int
	Logger  logger.Logger
	Metrics *metrics.Metrics
	// Clock stamps RunResult; defaults to time.Now.
	Clock func() time.Time
}

// Orchestrator runs detection cycles. At most one cycle runs at a time.
type Orchestrator struct {
	store     db.Store
	fetcher   PageFetcher
	differ    ContentDiffer
	notifier  notify.Notifier
	recipient string
	manager   *worker.Manager
	log       logger.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	running sync.Mutex
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg.Differ == nil {
		cfg.Differ = differ.New()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.NewLogNotifier(cfg.Logger)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Orchestrator{
		store:     cfg.Store,
		fetcher:   cfg.Fetcher,
		differ:    cfg.Differ,
		notifier:  cfg.Notifier,
		recipient: cfg.Recipient,
		manager:   worker.NewManager(cfg.Workers, cfg.Logger),
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		now:       cfg.Clock,
	}, nil
}

// RunDetectionCycle performs one full pass over every target.
//
// Failures of a single target (fetch, persistence, diff, panic) are logged
// and counted in the result; they never abort the cycle or surface as an
// error. Only a failure to enumerate targets returns an error, wrapped in
// ErrEnumerate. Notification errors are logged.
func (o *Orchestrator) RunDetectionCycle(ctx context.Context) (*domain.RunResult, error) {
	if !o.running.TryLock() {
		o.metrics.SkippedRun()
		return nil, ErrRunInProgress
	}
	defer o.running.Unlock()

	result := &domain.RunResult{StartedAt: o.now()}
	o.log.Info("Starting detection cycle")

	targets, err := o.store.ListTargets(ctx)
	if err != nil {
		result.FinishedAt = o.now()
		o.metrics.ObserveRun(metrics.OutcomeError, result.Duration())
		o.log.Error("Failed to enumerate targets", logger.Error(err))
		return nil, fmt.Errorf("%w: %w", ErrEnumerate, err)
	}
	result.Targets = len(targets)

	if len(targets) == 0 {
		o.log.Info("No targets to process")
		result.FinishedAt = o.now()
		o.metrics.ObserveRun(metrics.OutcomeSuccess, result.Duration())
		return result, nil
	}

	o.log.Info("Processing targets",
		logger.Int("targets", len(targets)),
		logger.Int("workers", o.manager.WorkerCount()),
	)

	agg := report.NewAggregator()
	counts := &tally{}
	processor := &targetProcessor{
		store:   o.store,
		fetcher: o.fetcher,
		differ:  o.differ,
		agg:     agg,
		tally:   counts,
		log:     o.log,
		metrics: o.metrics,
	}

	stats := o.manager.Process(ctx, len(targets), func(ctx context.Context, _ int, index int) error {
		return processor.process(ctx, index, targets[index])
	})
	for index, err := range stats.Errors {
		var panicErr *worker.PanicError
		switch {
		case errors.As(err, &panicErr):
			counts.panicked(index)
			o.log.Error("Target processing panicked",
				logger.String("url", targets[index].Target.URL),
				logger.Any("panic", panicErr.Value),
				logger.String("stack", string(panicErr.Stack)),
			)
		case err != nil:
			counts.failed(index)
			o.log.Warn("Target skipped",
				logger.String("url", targets[index].Target.URL),
				logger.Error(err),
			)
		}
	}

	counts.fill(result)
	result.Entries = agg.Entries()

	if len(result.Entries) > 0 {
		if err := o.notifier.Notify(ctx, result.Entries, o.recipient); err != nil {
			o.log.Error("Failed to send digest", logger.Error(err))
		} else {
			result.Notified = true
		}
	}

	result.FinishedAt = o.now()
	o.metrics.ObserveRun(metrics.OutcomeSuccess, result.Duration())
	o.log.Info("Detection cycle complete",
		logger.Int("targets", result.Targets),
		logger.Int("succeeded", result.Succeeded),
		logger.Int("failed", result.Failed),
		logger.Int("persist_failures", result.PersistFailures),
		logger.Int("changes", result.Changes),
		logger.Bool("notified", result.Notified),
		logger.Duration("duration", result.Duration()),
	)
	return result, nil
}

// tally holds the per-run counters shared by workers. Fetch outcomes are
// tracked per target index so a later panic can reclassify them.
type tally struct {
	mu              sync.Mutex
	outcome         map[int]bool
	persistFailures int
	changes         int
}

func (t *tally) record(index int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outcome == nil {
		t.outcome = make(map[int]bool)
	}
	t.outcome[index] = ok
}

func (t *tally) succeededFetch(index int) { t.record(index, true) }

func (t *tally) failed(index int) { t.record(index, false) }

// panicked reclassifies a target whose processing panicked as failed.
func (t *tally) panicked(index int) { t.record(index, false) }

func (t *tally) persistFailure() {
	t.mu.Lock()
	t.persistFailures++
	t.mu.Unlock()
}

func (t *tally) change() {
	t.mu.Lock()
	t.changes++
	t.mu.Unlock()
}

func (t *tally) fill(r *domain.RunResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, ok := range t.outcome {
		if ok {
			r.Succeeded++
		} else {
			r.Failed++
		}
	}
	r.PersistFailures = t.persistFailures
	r.Changes = t.changes
}
