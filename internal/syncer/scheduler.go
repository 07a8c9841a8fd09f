package syncer

import (
	"context"
	"log"
	"os"

	"github.com/robfig/cron/v3"
)

// Scheduler re-triggers sync runs on a cron schedule so mutations that
// failed their replay retry even without a connectivity transition.
type Scheduler struct {
	spec    string
	service *Service
	cron    *cron.Cron
	logger  *log.Logger
}

// NewScheduler creates a scheduler for the given cron spec
// (e.g. "@every 5m").
func NewScheduler(spec string, service *Service, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = log.New(os.Stderr, "[scheduler] ", log.LstdFlags)
	}
	return &Scheduler{
		spec:    spec,
		service: service,
		cron:    cron.New(),
		logger:  logger,
	}
}

// Start begins periodic triggering. Runs overlap-gate on the coordinator: a
// tick that lands while a sync span is open is skipped.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if s.service.Syncing() {
			s.logger.Printf("Sync already running, skipping scheduled run")
			return
		}
		if err := s.service.SyncNow(context.Background()); err != nil {
			s.logger.Printf("Scheduled sync failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Printf("Scheduler started (%s)", s.spec)
	return nil
}

// Stop halts periodic triggering, waiting for an in-flight run to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Printf("Scheduler stopped")
}
