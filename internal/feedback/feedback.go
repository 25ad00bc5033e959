// Package feedback applies reply classifications to enrollments. Replies are
// ingested and recorded by the API; this processor polls the unprocessed
// backlog and drives the resulting enrollment transitions, so a reply takes
// effect even when it raced an in-flight dispatch.
package feedback

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/salesloop/salesloop/internal/models"
	"github.com/salesloop/salesloop/internal/store"
)

// Defaults for the feedback processor.
const (
	DefaultPollInterval = 15 * time.Second
	DefaultBatchSize    = 50
)

// Processor consumes unprocessed reply classifications.
type Processor struct {
	store        store.Store
	pollInterval time.Duration
	batchSize    int
}

// Opts holds processor configuration.
type Opts struct {
	PollInterval time.Duration
	BatchSize    int
}

// Option defines a configuration option for the processor.
type Option func(*Opts)

// WithPollInterval sets how often the backlog is polled.
func WithPollInterval(d time.Duration) Option {
	return func(o *Opts) { o.PollInterval = d }
}

// WithBatchSize bounds how many classifications one poll handles.
func WithBatchSize(n int) Option {
	return func(o *Opts) { o.BatchSize = n }
}

// NewProcessor creates a feedback processor.
func NewProcessor(st store.Store, opts ...Option) *Processor {
	cfg := Opts{PollInterval: DefaultPollInterval, BatchSize: DefaultBatchSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Processor{store: st, pollInterval: cfg.PollInterval, batchSize: cfg.BatchSize}
}

// Run polls the backlog until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	slog.Info("Processor.Run: feedback loop started", "pollInterval", p.pollInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("Processor.Run: feedback loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.ProcessPending(); err != nil {
				slog.Error("Processor.Run: poll failed", "error", err)
			}
		}
	}
}

// ProcessPending applies one batch of unprocessed classifications.
func (p *Processor) ProcessPending() error {
	pending, err := p.store.ListUnprocessedClassifications(p.batchSize)
	if err != nil {
		return fmt.Errorf("list unprocessed classifications failed: %w", err)
	}
	for i := range pending {
		if err := p.Apply(&pending[i]); err != nil {
			slog.Error("Processor.ProcessPending: apply failed",
				"classificationID", pending[i].ID, "error", err)
		}
	}
	return nil
}

// Apply drives one classification's enrollment transition. A compare-and-set
// conflict leaves the record unprocessed so the next poll retries it; every
// other outcome marks it processed.
func (p *Processor) Apply(rc *models.ReplyClassification) error {
	enr, err := p.store.GetEnrollment(rc.EnrollmentID)
	if err != nil {
		return fmt.Errorf("enrollment lookup failed: %w", err)
	}
	if enr == nil {
		slog.Warn("Processor.Apply: enrollment missing, discarding", "classificationID", rc.ID, "enrollmentID", rc.EnrollmentID)
		return p.markProcessed(rc)
	}
	// Terminal enrollments are immutable; the reply is recorded but changes
	// nothing.
	if enr.Status.Terminal() {
		return p.markProcessed(rc)
	}

	switch {
	case rc.Classification == models.ReplyUnsubscribe:
		if err := p.blocklistSubject(enr, rc); err != nil {
			return err
		}
		upd := *enr
		upd.Status = models.EnrollmentStatusUnsubscribed
		upd.NextStepDue = nil
		if applied, err := p.transition(upd, enr.Status); err != nil || !applied {
			return err
		}
	case rc.Classification.EndsEngagement():
		upd := *enr
		upd.Status = models.EnrollmentStatusReplied
		upd.NextStepDue = nil
		if applied, err := p.transition(upd, enr.Status); err != nil || !applied {
			return err
		}
		slog.Info("Processor.Apply: enrollment replied",
			"enrollmentID", enr.ID, "classification", rc.Classification)
	default:
		// out_of_office and other leave the cadence running.
	}
	return p.markProcessed(rc)
}

// transition runs the CAS. A conflict (false, nil) means another writer moved
// the enrollment; the caller leaves the classification pending and the next
// poll re-reads the fresh status.
func (p *Processor) transition(upd models.CadenceEnrollment, expected models.EnrollmentStatus) (bool, error) {
	ok, err := p.store.UpdateEnrollmentCAS(upd, expected)
	if err != nil {
		return false, fmt.Errorf("enrollment transition failed: %w", err)
	}
	if !ok {
		slog.Debug("Processor.transition: conflict, retrying next poll", "enrollmentID", upd.ID)
	}
	return ok, nil
}

// blocklistSubject records the subject's contact details on the opt-out list.
func (p *Processor) blocklistSubject(enr *models.CadenceEnrollment, rc *models.ReplyClassification) error {
	kind, subjectID := enr.SubjectKey()
	subject, err := p.store.GetSubject(kind, subjectID)
	if err != nil {
		return fmt.Errorf("subject lookup failed: %w", err)
	}
	if subject == nil || (subject.Email == "" && subject.Phone == "") {
		return nil
	}
	entry := &models.BlocklistEntry{
		Email:  subject.Email,
		Phone:  subject.Phone,
		Reason: "unsubscribe reply",
		Source: rc.ID,
	}
	if err := p.store.AddBlocklistEntry(entry); err != nil {
		return fmt.Errorf("blocklist entry failed: %w", err)
	}
	return nil
}

func (p *Processor) markProcessed(rc *models.ReplyClassification) error {
	if err := p.store.MarkClassificationProcessed(rc.ID); err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}
