package pipeline

import (
	"context"

	"sneakpeak/pkg/db"
	"sneakpeak/pkg/domain"
	"sneakpeak/pkg/logger"
	"sneakpeak/pkg/metrics"
	"sneakpeak/pkg/report"
)

// targetProcessor runs the capture/compare/persist steps for one target.
type targetProcessor struct {
	store   db.Store
	fetcher PageFetcher
	differ  ContentDiffer
	agg     *report.Aggregator
	tally   *tally
	log     logger.Logger
	metrics *metrics.Metrics
}

// process never returns target-level failures as errors; they are logged and
// counted. index is the target's position in the enumeration.
func (p *targetProcessor) process(ctx context.Context, index int, ref domain.TargetRef) error {
	t := ref.Target
	log := p.log.With(
		logger.String("target_id", t.ID),
		logger.String("url", t.URL),
		logger.String("project", ref.ProjectName),
		logger.String("competitor", ref.CompetitorName),
	)

	// Read the baseline before inserting so the new snapshot is never its own prior.
	prior, err := p.store.GetLatestSuccessfulSnapshot(ctx, t.ID)
	if err != nil {
		log.Warn("Failed to load previous snapshot, treating as first capture", logger.Error(err))
		prior = nil
	}

	page, fetchErr := p.fetcher.Fetch(ctx, t.URL)
	status := domain.SnapshotSuccess
	var content *string
	if fetchErr != nil {
		status = domain.SnapshotFailed
		p.tally.failed(index)
		log.Warn("Failed to fetch target", logger.Error(fetchErr))
	} else {
		text := page.Text
		content = &text
		p.tally.succeededFetch(index)
	}

	snap, err := p.store.InsertSnapshot(ctx, t.ID, content, status)
	if err != nil {
		p.tally.persistFailure()
		p.metrics.PersistFailure()
		log.Error("Failed to store snapshot", logger.String("status", string(status)), logger.Error(err))
		return nil
	}
	p.metrics.Snapshot(status)

	if fetchErr != nil {
		return nil
	}
	if prior == nil {
		log.Info("Stored first snapshot")
		return nil
	}

	res := p.differ.Diff(prior.Text(), *content)
	if !res.HasChanges {
		log.Debug("No changes detected")
		return nil
	}

	if _, err := p.store.InsertChange(ctx, snap.ID, res.Summary); err != nil {
		p.tally.persistFailure()
		p.metrics.PersistFailure()
		log.Error("Failed to store change", logger.String("snapshot_id", snap.ID), logger.Error(err))
	} else {
		p.metrics.Change()
	}

	p.tally.change()
	p.agg.AddAt(index, domain.ReportEntry{
		ProjectName:    ref.ProjectName,
		CompetitorName: ref.CompetitorName,
		URL:            t.URL,
		PageType:       t.PageType,
		DiffContent:    res.Summary,
	})
	log.Info("Change detected", logger.Int("added", res.Added), logger.Int("removed", res.Removed))
	return nil
}
