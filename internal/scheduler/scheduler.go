// Package scheduler runs Salesloop's recurring maintenance on cron
// expressions: compliance window resets, counter reconciliation, and stale
// claim recovery.
package scheduler

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field cron parser (min, hour, dom, month, dow) with panic recovery.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// Guard is the compliance surface the maintenance jobs drive.
type Guard interface {
	ResetHourlyWindows()
	ResetDailyWindow()
}

// MaintenanceStore is the store surface the maintenance jobs drive.
type MaintenanceStore interface {
	ReconcileCadenceCounters() error
	RequeueStaleClaims(staleBefore time.Time) (int, error)
}

// RegisterMaintenance wires the standard recurring jobs: hourly and daily
// rate-window resets, and a periodic sweep that reconciles cadence counters
// and requeues claims older than staleThreshold.
func RegisterMaintenance(s *Scheduler, guard Guard, store MaintenanceStore, staleThreshold time.Duration) error {
	if err := s.AddJob("0 * * * *", guard.ResetHourlyWindows); err != nil {
		return err
	}
	if err := s.AddJob("0 0 * * *", guard.ResetDailyWindow); err != nil {
		return err
	}
	return s.AddJob("*/10 * * * *", func() {
		if err := store.ReconcileCadenceCounters(); err != nil {
			slog.Error("Scheduler: counter reconciliation failed", "error", err)
		}
		if n, err := store.RequeueStaleClaims(time.Now().Add(-staleThreshold)); err != nil {
			slog.Error("Scheduler: stale claim sweep failed", "error", err)
		} else if n > 0 {
			slog.Warn("Scheduler: requeued stale claims", "count", n)
		}
	})
}
