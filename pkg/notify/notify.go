/*
Package notify delivers the per-run digest of detected changes.
*/
package notify

import (
	"context"

	"sneakpeak/pkg/domain"
	"sneakpeak/pkg/logger"
	"sneakpeak/pkg/report"
)

// DigestSubject is the subject line of every digest.
const DigestSubject = "Sneakpeak Daily Digest"

// Notifier delivers a digest. Implementations treat missing configuration as
// a no-op; a returned error means an attempted delivery failed.
type Notifier interface {
	Notify(ctx context.Context, entries []domain.ReportEntry, recipient string) error
}

// LogNotifier writes the digest to the logger instead of sending it.
type LogNotifier struct {
	log logger.Logger
}

// NewLogNotifier creates a notifier that logs every entry.
func NewLogNotifier(log logger.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs one line per changed page.
func (n *LogNotifier) Notify(_ context.Context, entries []domain.ReportEntry, recipient string) error {
	if len(entries) == 0 {
		return nil
	}
	n.log.Info(DigestSubject,
		logger.String("recipient", recipient),
		logger.Int("changes", len(entries)),
	)
	for _, project := range report.Group(entries) {
		for _, competitor := range project.Competitors {
			for _, e := range competitor.Entries {
				n.log.Info("Change detected",
					logger.String("project", project.Name),
					logger.String("competitor", competitor.Name),
					logger.String("page_type", string(e.PageType)),
					logger.String("url", e.URL),
					logger.String("diff", e.DiffContent),
				)
			}
		}
	}
	return nil
}
