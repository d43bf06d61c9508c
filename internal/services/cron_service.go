package services

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DefaultSweepSchedule runs the idle-session sweep every five minutes
const DefaultSweepSchedule = "0 */5 * * * *"

// SessionSweeper is the part of the registry the cron jobs maintain
type SessionSweeper interface {
	SweepIdle(cutoff time.Time) int
	Len() int
}

// CronService manages scheduled background jobs
type CronService struct {
	cron     *cron.Cron
	sessions SessionSweeper
	schedule string
	idleFor  time.Duration
	now      func() time.Time
	logger   *logrus.Logger
}

// NewCronService creates a new CronService. Sessions unused for idleFor are
// released on every run of schedule (cron format with seconds).
func NewCronService(sessions SessionSweeper, schedule string, idleFor time.Duration, logger *logrus.Logger) *CronService {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &CronService{
		cron:     cron.New(cron.WithSeconds()),
		sessions: sessions,
		schedule: schedule,
		idleFor:  idleFor,
		now:      time.Now,
		logger:   logger,
	}
}

// Start schedules the jobs and starts the scheduler
func (s *CronService) Start() error {
	if _, err := s.cron.AddFunc(s.schedule, s.sweepIdleSessionsJob); err != nil {
		return fmt.Errorf("failed to schedule idle session sweep: %w", err)
	}
	s.logger.WithFields(logrus.Fields{
		"schedule": s.schedule,
		"idle_for": s.idleFor.String(),
	}).Info("Scheduled: idle booking session sweep")

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (s *CronService) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// RunSweepNow runs the idle-session sweep immediately and returns how many
// sessions were released
func (s *CronService) RunSweepNow() int {
	return s.sweep()
}

func (s *CronService) sweepIdleSessionsJob() {
	s.sweep()
}

func (s *CronService) sweep() int {
	start := s.now()
	released := s.sessions.SweepIdle(start.Add(-s.idleFor))

	entry := s.logger.WithFields(logrus.Fields{
		"released":    released,
		"remaining":   s.sessions.Len(),
		"duration_ms": time.Since(start).Milliseconds(),
	})
	if released > 0 {
		entry.Info("Released idle booking sessions")
	} else {
		entry.Debug("No idle booking sessions")
	}
	return released
}
