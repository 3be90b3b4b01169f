/**
 * @description
 * Cron scheduler for the recurring payout jobs: the earnings calculation run
 * and the dispute-resolution reconcile sweep.
 */
package app

import (
	"context"
	"log"

	"github.com/robfig/cron/v3"
)

// Scheduler manages the recurring background jobs.
type Scheduler struct {
	cron    *cron.Cron
	service *Service

	earningsSchedule  string
	reconcileSchedule string
}

// NewScheduler creates a scheduler running the earnings calculator and the
// dispute reconcile job on the given cron expressions.
func NewScheduler(service *Service, earningsSchedule, reconcileSchedule string) *Scheduler {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	return &Scheduler{
		cron:              c,
		service:           service,
		earningsSchedule:  earningsSchedule,
		reconcileSchedule: reconcileSchedule,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() {
	if _, err := s.cron.AddFunc(s.earningsSchedule, s.runEarnings); err != nil {
		log.Printf("level=error component=scheduler msg=\"failed to schedule earnings job\" schedule=%q err=%v", s.earningsSchedule, err)
	} else {
		log.Printf("level=info component=scheduler msg=\"scheduled earnings job\" schedule=%q", s.earningsSchedule)
	}

	if _, err := s.cron.AddFunc(s.reconcileSchedule, s.runReconcile); err != nil {
		log.Printf("level=error component=scheduler msg=\"failed to schedule dispute reconcile job\" schedule=%q err=%v", s.reconcileSchedule, err)
	} else {
		log.Printf("level=info component=scheduler msg=\"scheduled dispute reconcile job\" schedule=%q", s.reconcileSchedule)
	}

	s.cron.Start()
}

func (s *Scheduler) runEarnings() {
	credited, err := s.service.CalculateEarnings(context.Background(), nil)
	if err != nil {
		log.Printf("level=error component=scheduler msg=\"earnings job failed\" err=%v", err)
		return
	}
	log.Printf("level=info component=scheduler msg=\"earnings job finished\" credited=%d", credited)
}

func (s *Scheduler) runReconcile() {
	redriven, err := s.service.ReconcileResolvedDisputes(context.Background())
	if err != nil {
		log.Printf("level=error component=scheduler msg=\"dispute reconcile job failed\" err=%v", err)
		return
	}
	if redriven > 0 {
		log.Printf("level=info component=scheduler msg=\"dispute reconcile re-drove resolutions\" count=%d", redriven)
	}
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
