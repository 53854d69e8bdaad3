package cmd

import (
	"sneakpeak/pkg/config"
	"sneakpeak/pkg/content"
	"sneakpeak/pkg/db"
	"sneakpeak/pkg/differ"
	"sneakpeak/pkg/fetcher"
	"sneakpeak/pkg/httpclient"
	"sneakpeak/pkg/logger"
	"sneakpeak/pkg/metrics"
	"sneakpeak/pkg/notify"
	"sneakpeak/pkg/pipeline"
)

// newNotifier returns the SMTP notifier, or a log-only one when dryRun is set.
func newNotifier(cfg config.EmailConfig, log logger.Logger, dryRun bool) notify.Notifier {
	if dryRun {
		return notify.NewLogNotifier(log)
	}
	if !cfg.Enabled() {
		log.Warn("Email delivery disabled, digests will not be sent",
			logger.Bool("smtp_host_set", cfg.Host != ""),
			logger.Bool("recipient_set", cfg.Recipient != ""),
		)
	}
	return notify.NewEmailNotifier(notify.EmailConfig{
		SMTPServer: cfg.Host,
		SMTPPort:   cfg.Port,
		SMTPUser:   cfg.User,
		SMTPPass:   cfg.Pass,
		FromEmail:  cfg.From,
	}, log)
}

// newOrchestrator wires the pipeline from configuration.
func newOrchestrator(cfg *config.Config, store db.Store, notifier notify.Notifier, m *metrics.Metrics, log logger.Logger) (*pipeline.Orchestrator, error) {
	return pipeline.New(pipeline.Config{
		Store: store,
		Fetcher: fetcher.New(fetcher.Config{
			Timeout:    cfg.Fetch.Timeout,
			MaxBytes:   cfg.Fetch.MaxBytes,
			Mode:       content.ParseMode(cfg.Fetch.TextMode),
			ClientType: httpclient.ClientType(cfg.Fetch.Client),
		}),
		Differ:    differ.New(differ.WithGranularity(differ.ParseGranularity(cfg.Diff.Granularity))),
		Notifier:  notifier,
		Recipient: cfg.Email.Recipient,
		Workers:   cfg.Pipeline.Workers,
		Logger:    log,
		Metrics:   m,
	})
}
