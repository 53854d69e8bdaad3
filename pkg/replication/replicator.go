// Package replication copies the monitored target tree between store
// backends, e.g. from a Mongo deployment into Postgres.
package replication

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sneakpeak/pkg/db"
	"sneakpeak/pkg/domain"
	"sneakpeak/pkg/logger"
	"sneakpeak/pkg/worker"
)

const (
	defaultBatchSize = 20
	defaultWorkers   = 1
)

// Destination receives replicated projects.
type Destination interface {
	db.TargetRepository
	db.Seeder
}

// Config wires the replication dependencies.
type Config struct {
	Source      db.TargetRepository
	Destination Destination
	Logger      logger.Logger
	// BatchSize is the number of projects written per SeedProjects call.
	BatchSize int
	// Workers bounds concurrent batch writes. SQLite destinations need 1.
	Workers int
}

// Result summarises one replication.
type Result struct {
	Projects int
	Targets  int
	// Inserted counts source targets that were missing from the destination.
	Inserted int
	Batches  int
}

// Replicator copies projects, competitors and targets from one store to
// another. Snapshots and changes are not copied.
type Replicator struct {
	source    db.TargetRepository
	dest      Destination
	log       logger.Logger
	batchSize int
	manager   *worker.Manager
}

func NewReplicator(cfg Config) (*Replicator, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("source store is required")
	}
	if cfg.Destination == nil {
		return nil, fmt.Errorf("destination store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &Replicator{
		source:    cfg.Source,
		dest:      cfg.Destination,
		log:       cfg.Logger,
		batchSize: cfg.BatchSize,
		manager:   worker.NewManager(cfg.Workers, cfg.Logger),
	}, nil
}

// Replicate copies every project that has at least one target the
// destination does not know yet. Projects are written whole, so existing
// rows are left to the destination's upsert semantics.
func (r *Replicator) Replicate(ctx context.Context) (*Result, error) {
	refs, err := r.source.ListTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list source targets: %w", err)
	}
	existingRefs, err := r.dest.ListTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list destination targets: %w", err)
	}

	existing := make(map[string]bool, len(existingRefs))
	for _, ref := range existingRefs {
		existing[ref.Target.ID] = true
	}

	projects := treeFromRefs(refs)
	toWrite, inserted := r.filterNewProjects(projects, existing)
	result := &Result{Projects: len(toWrite), Targets: len(refs), Inserted: inserted}

	r.log.Info("Loaded source targets",
		logger.Int("targets", len(refs)),
		logger.Int("projects", len(projects)),
		logger.Int("projects_to_write", len(toWrite)),
	)
	if len(toWrite) == 0 {
		return result, nil
	}

	batches := splitBatches(toWrite, r.batchSize)
	result.Batches = len(batches)

	var mu sync.Mutex
	written := 0
	stats := r.manager.Process(ctx, len(batches), func(ctx context.Context, _ int, index int) error {
		if err := r.dest.SeedProjects(ctx, batches[index]); err != nil {
			return fmt.Errorf("write batch %d: %w", index, err)
		}
		mu.Lock()
		written += len(batches[index])
		r.log.Info("Replicated batch", logger.Int("batch", index), logger.Int("projects_written", written))
		mu.Unlock()
		return nil
	})
	if stats.Failed > 0 {
		errs := make([]error, 0, stats.Failed)
		for _, err := range stats.Errors {
			if err != nil {
				errs = append(errs, err)
			}
		}
		return result, errors.Join(errs...)
	}

	r.log.Info("Replication complete",
		logger.Int("projects", result.Projects),
		logger.Int("inserted_targets", result.Inserted),
	)
	return result, nil
}

// filterNewProjects keeps projects with at least one unknown target and
// returns the number of unknown targets.
func (r *Replicator) filterNewProjects(projects []domain.Project, existing map[string]bool) ([]domain.Project, int) {
	out := make([]domain.Project, 0, len(projects))
	inserted := 0
	for _, p := range projects {
		missing := 0
		for _, c := range p.Competitors {
			for _, t := range c.Targets {
				if !existing[t.ID] {
					missing++
				}
			}
		}
		if missing == 0 {
			continue
		}
		inserted += missing
		out = append(out, p)
	}
	return out, inserted
}

// treeFromRefs rebuilds the Project → Competitor → Target tree, keeping the
// enumeration order.
func treeFromRefs(refs []domain.TargetRef) []domain.Project {
	var projects []domain.Project
	projectIdx := make(map[string]int)
	competitorIdx := make(map[string]int)

	for _, ref := range refs {
		pi, ok := projectIdx[ref.ProjectID]
		if !ok {
			pi = len(projects)
			projectIdx[ref.ProjectID] = pi
			projects = append(projects, domain.Project{ID: ref.ProjectID, Name: ref.ProjectName})
		}
		p := &projects[pi]

		ci, ok := competitorIdx[ref.CompetitorID]
		if !ok {
			ci = len(p.Competitors)
			competitorIdx[ref.CompetitorID] = ci
			p.Competitors = append(p.Competitors, domain.Competitor{
				ID:        ref.CompetitorID,
				Name:      ref.CompetitorName,
				ProjectID: ref.ProjectID,
			})
		}
		c := &p.Competitors[ci]

		t := ref.Target
		t.CompetitorID = ref.CompetitorID
		c.Targets = append(c.Targets, t)
	}
	return projects
}

func splitBatches(projects []domain.Project, size int) [][]domain.Project {
	var batches [][]domain.Project
	for start := 0; start < len(projects); start += size {
		end := min(start+size, len(projects))
		batches = append(batches, projects[start:end])
	}
	return batches
}
