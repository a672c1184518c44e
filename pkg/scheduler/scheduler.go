// Package scheduler runs the engine's background jobs on a cron: the
// expiry sweeper that cancels stale WAITING_CLIENT reservations, and the
// nightly slot regeneration that keeps every active professional's
// horizon of AVAILABLE slots materialized.
package scheduler

import (
	"context"
	"time"

	"github.com/revitek/scheduling-engine/internal/availability"
	"github.com/revitek/scheduling-engine/internal/lifecycle"
	"github.com/revitek/scheduling-engine/internal/repository"
	"github.com/revitek/scheduling-engine/pkg/logger"
	"github.com/robfig/cron/v3"
)

// regenHorizonDays is how far ahead the nightly job materializes slots.
const regenHorizonDays = 30

// Scheduler owns the cron and its jobs.
type Scheduler struct {
	cron       *cron.Cron
	controller *lifecycle.Controller
	generator  *availability.Generator
	profRepo   *repository.ProfessionalRepository
	logger     *logger.Logger
}

// New creates a scheduler.
func New(
	controller *lifecycle.Controller,
	generator *availability.Generator,
	profRepo *repository.ProfessionalRepository,
	logger *logger.Logger,
) *Scheduler {
	return &Scheduler{
		cron:       cron.New(),
		controller: controller,
		generator:  generator,
		profRepo:   profRepo,
		logger:     logger,
	}
}

// Start registers the jobs and starts the cron.
func (s *Scheduler) Start() {
	s.logger.Info("Starting background scheduler")

	// Token expiry is minute-granular; sweeping every minute keeps the
	// WAITING_CLIENT window honest.
	s.cron.AddFunc("@every 1m", func() {
		s.controller.SweepExpired(context.Background())
	})

	// Nightly horizon refresh, early morning local time.
	s.cron.AddFunc("15 3 * * *", func() {
		s.regenerateHorizon()
	})

	s.cron.Start()
}

// Stop stops the scheduler.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	s.cron.Stop()
}

// regenerateHorizon refreshes the slot horizon for every professional
// accepting reservations. Per-professional failures are logged and
// skipped inside RegenerateRange.
func (s *Scheduler) regenerateHorizon() {
	ctx := context.Background()
	professionals, err := s.profRepo.ListActive(ctx)
	if err != nil {
		s.logger.Error("Horizon regeneration: listing professionals failed", "error", err)
		return
	}

	start := time.Now()
	for _, prof := range professionals {
		s.generator.RegenerateRange(ctx, prof.ID, start, regenHorizonDays)
	}
	s.logger.Info("Horizon regeneration complete",
		"professionals", len(professionals), "days", regenHorizonDays)
}
