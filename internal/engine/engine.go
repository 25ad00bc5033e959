// Package engine implements the cadence dispatch loop: claiming due
// enrollments on a tick, rendering and sending their next step through the
// channel adapters, and advancing the enrollment state machine with
// compare-and-set writes so a step is dispatched at most once even with
// concurrent pollers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/salesloop/salesloop/internal/channel"
	"github.com/salesloop/salesloop/internal/compliance"
	"github.com/salesloop/salesloop/internal/models"
	"github.com/salesloop/salesloop/internal/render"
	"github.com/salesloop/salesloop/internal/store"
	"golang.org/x/sync/errgroup"
)

// Defaults for engine timing knobs.
const (
	DefaultTickInterval     = 30 * time.Second
	DefaultWorkers          = 4
	DefaultSendTimeout      = 30 * time.Second
	DefaultClaimLimit       = 100
	DefaultStaleThreshold   = 10 * time.Minute
	DefaultRateLimitDefer   = 15 * time.Minute
	DefaultRetryBackoffBase = time.Hour
)

// Engine drives cadence dispatch.
type Engine struct {
	store    store.Store
	guard    *compliance.Guard
	adapters channel.Registry

	tickInterval     time.Duration
	workers          int
	sendTimeout      time.Duration
	claimLimit       int
	staleThreshold   time.Duration
	rateLimitDefer   time.Duration
	retryBackoffBase time.Duration

	// now is a test seam.
	now func() time.Time
}

// Opts holds engine configuration.
type Opts struct {
	TickInterval     time.Duration
	Workers          int
	SendTimeout      time.Duration
	ClaimLimit       int
	StaleThreshold   time.Duration
	RateLimitDefer   time.Duration
	RetryBackoffBase time.Duration
}

// Option defines a configuration option for the engine.
type Option func(*Opts)

// WithTickInterval sets how often the engine polls for due enrollments.
func WithTickInterval(d time.Duration) Option {
	return func(o *Opts) { o.TickInterval = d }
}

// WithWorkers bounds how many enrollments are processed concurrently per tick.
func WithWorkers(n int) Option {
	return func(o *Opts) { o.Workers = n }
}

// WithSendTimeout bounds a single adapter send.
func WithSendTimeout(d time.Duration) Option {
	return func(o *Opts) { o.SendTimeout = d }
}

// WithClaimLimit bounds how many enrollments one tick claims.
func WithClaimLimit(n int) Option {
	return func(o *Opts) { o.ClaimLimit = n }
}

// WithStaleThreshold sets how old a claim must be before crash recovery
// releases it.
func WithStaleThreshold(d time.Duration) Option {
	return func(o *Opts) { o.StaleThreshold = d }
}

// WithRateLimitDefer sets how far a rate-limited send is pushed out.
func WithRateLimitDefer(d time.Duration) Option {
	return func(o *Opts) { o.RateLimitDefer = d }
}

// WithRetryBackoffBase sets the base of the exponential soft-bounce backoff.
func WithRetryBackoffBase(d time.Duration) Option {
	return func(o *Opts) { o.RetryBackoffBase = d }
}

// New creates a dispatch engine.
func New(st store.Store, guard *compliance.Guard, adapters channel.Registry, opts ...Option) *Engine {
	cfg := Opts{
		TickInterval:     DefaultTickInterval,
		Workers:          DefaultWorkers,
		SendTimeout:      DefaultSendTimeout,
		ClaimLimit:       DefaultClaimLimit,
		StaleThreshold:   DefaultStaleThreshold,
		RateLimitDefer:   DefaultRateLimitDefer,
		RetryBackoffBase: DefaultRetryBackoffBase,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Engine{
		store:            st,
		guard:            guard,
		adapters:         adapters,
		tickInterval:     cfg.TickInterval,
		workers:          cfg.Workers,
		sendTimeout:      cfg.SendTimeout,
		claimLimit:       cfg.ClaimLimit,
		staleThreshold:   cfg.StaleThreshold,
		rateLimitDefer:   cfg.RateLimitDefer,
		retryBackoffBase: cfg.RetryBackoffBase,
		now:              time.Now,
	}
}

// Run recovers stale claims and then ticks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if n, err := e.store.RequeueStaleClaims(e.now().Add(-e.staleThreshold)); err != nil {
		slog.Error("Engine.Run: stale claim recovery failed", "error", err)
	} else if n > 0 {
		slog.Info("Engine.Run: recovered stale claims", "count", n)
	}

	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()
	slog.Info("Engine.Run: dispatch loop started", "tickInterval", e.tickInterval, "workers", e.workers)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Engine.Run: dispatch loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := e.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("Engine.Run: tick failed", "error", err)
			}
		}
	}
}

// Tick claims due enrollments and processes them on a bounded worker pool.
func (e *Engine) Tick(ctx context.Context) error {
	now := e.now()
	claimed, err := e.store.ClaimDueEnrollments(now, e.claimLimit)
	if err != nil {
		return fmt.Errorf("claim due enrollments failed: %w", err)
	}
	if len(claimed) == 0 {
		return nil
	}
	slog.Debug("Engine.Tick: claimed enrollments", "count", len(claimed))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for i := range claimed {
		enr := claimed[i]
		g.Go(func() error {
			e.process(gctx, now, enr)
			return nil
		})
	}
	return g.Wait()
}

// process dispatches the next step of one claimed enrollment. Every path
// either writes the enrollment through a CAS (which releases the claim) or
// releases the claim explicitly; a claim is never left behind.
func (e *Engine) process(ctx context.Context, now time.Time, enr models.CadenceEnrollment) {
	release := func() {
		if err := e.store.ReleaseClaim(enr.ID); err != nil {
			slog.Error("Engine.process: release claim failed", "enrollmentID", enr.ID, "error", err)
		}
	}

	cadence, err := e.store.GetCadence(enr.CadenceID)
	if err != nil {
		slog.Error("Engine.process: cadence lookup failed", "enrollmentID", enr.ID, "error", err)
		release()
		return
	}
	if cadence == nil {
		slog.Warn("Engine.process: cadence missing, releasing", "enrollmentID", enr.ID, "cadenceID", enr.CadenceID)
		release()
		return
	}
	// A paused/draft/archived cadence suspends dispatch without touching
	// enrollment state; the row stays due and fires when the cadence
	// reactivates.
	if cadence.Status != models.CadenceStatusActive {
		release()
		return
	}

	step := cadence.StepAt(enr.CurrentStep + 1)
	if step == nil {
		enr.Status = models.EnrollmentStatusCompleted
		enr.NextStepDue = nil
		e.commit(enr, models.EnrollmentStatusActive)
		return
	}

	kind, subjectID := enr.SubjectKey()
	subject, err := e.store.GetSubject(kind, subjectID)
	if err != nil {
		slog.Error("Engine.process: subject lookup failed", "enrollmentID", enr.ID, "error", err)
		release()
		return
	}
	if subject == nil {
		slog.Warn("Engine.process: subject missing, bouncing", "enrollmentID", enr.ID, "kind", kind, "subjectID", subjectID)
		enr.Status = models.EnrollmentStatusBounced
		enr.NextStepDue = nil
		e.commit(enr, models.EnrollmentStatusActive)
		return
	}

	// Skip conditions run against the subject's data as it is now, not as it
	// was at enrollment, and before any compliance check: a skipped step never
	// reaches the guard. A skipped step advances exactly like a sent one, and
	// a malformed condition is a no-op skip so one bad step cannot stall the
	// enrollment.
	if step.ConditionSkip != nil {
		match, evalErr := step.ConditionSkip.Evaluate(*subject)
		if evalErr != nil {
			slog.Warn("Engine.process: malformed skip condition, skipping step",
				"enrollmentID", enr.ID, "step", step.StepOrder, "error", evalErr)
			e.advance(now, &enr, cadence, step)
			e.commit(enr, models.EnrollmentStatusActive)
			return
		}
		if match {
			slog.Debug("Engine.process: step skipped by condition", "enrollmentID", enr.ID, "step", step.StepOrder)
			e.advance(now, &enr, cadence, step)
			e.commit(enr, models.EnrollmentStatusActive)
			return
		}
	}

	if err := e.guard.Approve(subject); err != nil {
		if errors.Is(err, compliance.ErrBlocklisted) {
			enr.Status = models.EnrollmentStatusUnsubscribed
			enr.NextStepDue = nil
			e.commit(enr, models.EnrollmentStatusActive)
			return
		}
		slog.Error("Engine.process: compliance check failed", "enrollmentID", enr.ID, "error", err)
		release()
		return
	}

	adapter, err := e.adapters.For(step.Channel)
	if err != nil {
		slog.Error("Engine.process: no adapter for step channel", "enrollmentID", enr.ID, "channel", step.Channel)
		release()
		return
	}

	// Live email sends draw against the rate-limit budget before dispatch.
	reserved := false
	if step.Channel == models.ChannelEmail && !adapter.Simulated() {
		if err := e.guard.ReserveEmailSend(subject.Email); err != nil {
			if errors.Is(err, compliance.ErrRateLimited) {
				due := now.Add(e.rateLimitDefer)
				enr.NextStepDue = &due
				slog.Info("Engine.process: rate limited, deferring", "enrollmentID", enr.ID, "until", due)
				e.commit(enr, models.EnrollmentStatusActive)
				return
			}
			slog.Error("Engine.process: reservation failed", "enrollmentID", enr.ID, "error", err)
			release()
			return
		}
		reserved = true
	}

	renderedSubject, renderedBody := render.Step(*step, *subject)
	sendCtx, cancel := context.WithTimeout(channel.WithEnrollmentID(ctx, enr.ID), e.sendTimeout)
	_, sendErr := e.send(sendCtx, adapter, subject, channel.RenderedStep{
		Step:    *step,
		Subject: renderedSubject,
		Body:    renderedBody,
	})
	cancel()

	if sendErr == nil {
		e.advance(now, &enr, cadence, step)
		e.commit(enr, models.EnrollmentStatusActive)
		return
	}

	// A failed send hands its reservation back so the failure does not
	// consume quota.
	if reserved {
		e.guard.ReleaseEmailSend(subject.Email)
	}

	if !channel.IsRetryable(sendErr) {
		slog.Info("Engine.process: permanent delivery failure, bouncing",
			"enrollmentID", enr.ID, "step", step.StepOrder, "error", sendErr)
		enr.Status = models.EnrollmentStatusBounced
		enr.NextStepDue = nil
		e.commit(enr, models.EnrollmentStatusActive)
		return
	}

	enr.RetryCount++
	if enr.RetryCount > e.guard.SoftBounceRetryCount() {
		slog.Info("Engine.process: retries exhausted, bouncing",
			"enrollmentID", enr.ID, "step", step.StepOrder, "retries", enr.RetryCount)
		enr.Status = models.EnrollmentStatusBounced
		enr.NextStepDue = nil
		e.commit(enr, models.EnrollmentStatusActive)
		return
	}
	due := now.Add(e.retryBackoff(enr.RetryCount))
	enr.NextStepDue = &due
	slog.Info("Engine.process: transient delivery failure, retrying",
		"enrollmentID", enr.ID, "step", step.StepOrder, "retry", enr.RetryCount, "nextAttempt", due, "error", sendErr)
	e.commit(enr, models.EnrollmentStatusActive)
}

// send invokes the adapter, converting a panic into a transient error so one
// misbehaving provider SDK cannot take the worker down.
func (e *Engine) send(ctx context.Context, adapter channel.Adapter, subject *models.Subject, step channel.RenderedStep) (res *channel.SendResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = channel.Transient(fmt.Errorf("adapter panic: %v", r))
		}
	}()
	return adapter.Send(ctx, subject, step)
}

// advance records a successful (or skipped) dispatch of step and schedules
// the one after it, completing the enrollment when none remains.
func (e *Engine) advance(now time.Time, enr *models.CadenceEnrollment, cadence *models.Cadence, step *models.CadenceStep) {
	enr.CurrentStep = step.StepOrder
	t := now
	enr.LastStepAt = &t
	enr.RetryCount = 0
	if next := cadence.StepAt(step.StepOrder + 1); next != nil {
		due := now.Add(next.Delay())
		enr.NextStepDue = &due
		enr.Status = models.EnrollmentStatusActive
		return
	}
	enr.Status = models.EnrollmentStatusCompleted
	enr.NextStepDue = nil
}

// commit writes the enrollment if its status is still expected. Losing the
// race (a reply or user action landed first) just drops this dispatch's
// write; the claim was already cleared by whichever write won.
func (e *Engine) commit(enr models.CadenceEnrollment, expected models.EnrollmentStatus) {
	ok, err := e.store.UpdateEnrollmentCAS(enr, expected)
	if err != nil {
		slog.Error("Engine.commit: enrollment update failed", "enrollmentID", enr.ID, "error", err)
		if relErr := e.store.ReleaseClaim(enr.ID); relErr != nil {
			slog.Error("Engine.commit: release claim failed", "enrollmentID", enr.ID, "error", relErr)
		}
		return
	}
	if !ok {
		slog.Info("Engine.commit: enrollment changed concurrently, dropping update", "enrollmentID", enr.ID)
		if relErr := e.store.ReleaseClaim(enr.ID); relErr != nil {
			slog.Error("Engine.commit: release claim failed", "enrollmentID", enr.ID, "error", relErr)
		}
	}
}

// retryBackoff doubles per attempt: base, 2*base, 4*base, ...
func (e *Engine) retryBackoff(retry int) time.Duration {
	d := e.retryBackoffBase
	for i := 1; i < retry; i++ {
		d *= 2
	}
	return d
}
