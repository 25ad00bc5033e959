package engine

import (
	"fmt"
	"log/slog"

	"github.com/salesloop/salesloop/internal/models"
)

// Enroll starts the subject named by req in the cadence. The first step is
// scheduled relative to enrollment time, so a zero-delay first step is due
// immediately.
func (e *Engine) Enroll(cadenceID string, req models.EnrollmentRequest) (*models.CadenceEnrollment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	cadence, err := e.store.GetCadence(cadenceID)
	if err != nil {
		return nil, fmt.Errorf("cadence lookup failed: %w", err)
	}
	if cadence == nil {
		return nil, models.ErrCadenceNotFound
	}
	if cadence.Status != models.CadenceStatusActive {
		return nil, models.ErrCadenceNotActive
	}
	first := cadence.StepAt(1)
	if first == nil {
		return nil, models.ErrNoSteps
	}

	now := e.now()
	due := now.Add(first.Delay())
	enr := &models.CadenceEnrollment{
		CadenceID:   cadenceID,
		LeadID:      req.LeadID,
		ContactID:   req.ContactID,
		CurrentStep: 0,
		Status:      models.EnrollmentStatusActive,
		StartedAt:   now,
		NextStepDue: &due,
	}
	if err := e.store.CreateEnrollment(enr); err != nil {
		return nil, err
	}
	slog.Info("Engine.Enroll: enrollment created", "enrollmentID", enr.ID, "cadenceID", cadenceID, "firstStepDue", due)
	return enr, nil
}

// Pause suspends an active enrollment, remembering how much of the pending
// step's delay remains so Resume can reschedule it the same distance out.
func (e *Engine) Pause(id string) (*models.CadenceEnrollment, error) {
	enr, err := e.store.GetEnrollment(id)
	if err != nil {
		return nil, fmt.Errorf("enrollment lookup failed: %w", err)
	}
	if enr == nil {
		return nil, models.ErrEnrollmentNotFound
	}
	if enr.Status != models.EnrollmentStatusActive {
		return nil, models.ErrEnrollmentConflict
	}

	now := e.now()
	upd := *enr
	upd.Status = models.EnrollmentStatusPaused
	if enr.NextStepDue != nil {
		if remaining := enr.NextStepDue.Sub(now); remaining > 0 {
			upd.PausedRemaining = remaining
		} else {
			upd.PausedRemaining = 0
		}
	}
	ok, err := e.store.UpdateEnrollmentCAS(upd, models.EnrollmentStatusActive)
	if err != nil {
		return nil, fmt.Errorf("pause update failed: %w", err)
	}
	if !ok {
		return nil, models.ErrEnrollmentConflict
	}
	slog.Info("Engine.Pause: enrollment paused", "enrollmentID", id, "remaining", upd.PausedRemaining)
	return &upd, nil
}

// Resume reactivates a paused enrollment. The pending step comes due the
// remembered remaining-delay from now: an overdue step fires immediately, a
// pending one keeps its outstanding wait.
func (e *Engine) Resume(id string) (*models.CadenceEnrollment, error) {
	enr, err := e.store.GetEnrollment(id)
	if err != nil {
		return nil, fmt.Errorf("enrollment lookup failed: %w", err)
	}
	if enr == nil {
		return nil, models.ErrEnrollmentNotFound
	}
	if enr.Status != models.EnrollmentStatusPaused {
		return nil, models.ErrEnrollmentConflict
	}

	now := e.now()
	upd := *enr
	upd.Status = models.EnrollmentStatusActive
	due := now.Add(enr.PausedRemaining)
	upd.NextStepDue = &due
	upd.PausedRemaining = 0
	ok, err := e.store.UpdateEnrollmentCAS(upd, models.EnrollmentStatusPaused)
	if err != nil {
		return nil, fmt.Errorf("resume update failed: %w", err)
	}
	if !ok {
		return nil, models.ErrEnrollmentConflict
	}
	slog.Info("Engine.Resume: enrollment resumed", "enrollmentID", id, "nextStepDue", due)
	return &upd, nil
}
