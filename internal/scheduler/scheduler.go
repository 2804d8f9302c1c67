package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/nbeconnect/internal/poller"
)

// Runner runs a single poll cycle
type Runner interface {
	Run(ctx context.Context) (poller.CycleReport, error)
}

type Scheduler struct {
	ctx      context.Context
	runner   Runner
	logger   *logrus.Entry
	cron     *cron.Cron
	job      cron.Job
	interval time.Duration
}

func NewScheduler(ctx context.Context, runner Runner, interval time.Duration, logger *logrus.Entry) *Scheduler {
	cl := cronLogger{logger}
	s := &Scheduler{
		ctx:      ctx,
		runner:   runner,
		logger:   logger,
		cron:     cron.New(cron.WithLogger(cl)),
		interval: interval,
	}
	// A tick that arrives while a cycle is still running is dropped
	s.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).Then(cron.FuncJob(s.collectData))
	return s
}

// Start the scheduler
func (s *Scheduler) Start() error {
	_, err := s.cron.AddJob(fmt.Sprintf("@every %s", s.interval), s.job)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithField("interval", s.interval.String()).Info("scheduler started")
	return nil
}

// RunNow runs one cycle synchronously, used for the initial refresh
func (s *Scheduler) RunNow() {
	s.job.Run()
}

// collectData runs one cycle and logs how it ended. Errors never stop the
// schedule, the next tick simply tries again.
func (s *Scheduler) collectData() {
	report, err := s.runner.Run(s.ctx)
	log := s.logger.WithField("cycle_id", report.ID)

	switch {
	case err == nil:
		return
	case errors.Is(err, poller.ErrCycleInProgress):
		s.logger.Debug("previous cycle still running, skipping tick")
	case errors.Is(err, poller.ErrCycleTimeout):
		log.Debug("timeout fetching data, will retry next interval")
	case errors.Is(err, poller.ErrCycleFailed):
		log.WithError(err).Warn("no data fetched this interval")
	default:
		log.WithError(err).Error("error fetching data")
	}
}

// Stop the scheduler and wait for a running cycle to finish
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// cronLogger adapts a logrus entry to cron.Logger
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).WithError(err).Error(msg)
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		f[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return f
}
