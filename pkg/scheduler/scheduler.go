// Package scheduler triggers detection cycles on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"

	"sneakpeak/pkg/domain"
	"sneakpeak/pkg/logger"
	"sneakpeak/pkg/pipeline"
)

// Runner runs one detection cycle.
type Runner interface {
	RunDetectionCycle(ctx context.Context) (*domain.RunResult, error)
}

// Scheduler runs a Runner on a cron schedule. A tick that fires while the
// previous cycle is still running is skipped.
type Scheduler struct {
	log     logger.Logger
	runner  Runner
	cron    *cron.Cron
	entryID cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

// Parser accepts standard 5-field specs (minute hour day month weekday) and
// descriptors such as @daily.
var Parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New validates spec and prepares a stopped scheduler.
func New(spec string, runner Runner, log logger.Logger) (*Scheduler, error) {
	if log == nil {
		log = logger.NewNop()
	}
	schedule, err := Parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", spec, err)
	}

	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithParser(Parser),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		log:    log,
		runner: runner,
		cron:   c,
		ctx:    ctx,
		cancel: cancel,
	}
	s.entryID = c.Schedule(schedule, cron.FuncJob(s.run))
	return s, nil
}

// Start begins firing in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Scheduler started", logger.Any("next_run", s.cron.Entry(s.entryID).Next))
}

// Stop cancels a running cycle and waits for it to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

func (s *Scheduler) run() {
	result, err := s.runner.RunDetectionCycle(s.ctx)
	switch {
	case errors.Is(err, pipeline.ErrRunInProgress):
		s.log.Info("Skipping scheduled run, a cycle is already running")
	case err != nil:
		s.log.Error("Scheduled detection cycle failed", logger.Error(err))
	default:
		s.log.Info("Scheduled detection cycle finished",
			logger.Int("changes", result.Changes),
			logger.Int("failed", result.Failed),
		)
	}
}

// cronLogger adapts logger.Logger to cron.Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, fields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(fields(keysAndValues), logger.Error(err))...)
}

func fields(keysAndValues []any) []logger.Field {
	out := make([]logger.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		out = append(out, logger.Any(key, keysAndValues[i+1]))
	}
	return out
}
