package models

import (
	"time"
)

// EnrollmentStatus represents the lifecycle state of a cadence enrollment.
type EnrollmentStatus string

const (
	// EnrollmentStatusActive indicates the enrollment is eligible for dispatch.
	EnrollmentStatusActive EnrollmentStatus = "active"
	// EnrollmentStatusPaused indicates dispatch is suspended by user action.
	EnrollmentStatusPaused EnrollmentStatus = "paused"
	// EnrollmentStatusCompleted indicates all steps were dispatched or skipped.
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	// EnrollmentStatusReplied indicates an inbound reply ended automatic dispatch.
	EnrollmentStatusReplied EnrollmentStatus = "replied"
	// EnrollmentStatusBounced indicates delivery failed permanently.
	EnrollmentStatusBounced EnrollmentStatus = "bounced"
	// EnrollmentStatusUnsubscribed indicates the subject opted out.
	EnrollmentStatusUnsubscribed EnrollmentStatus = "unsubscribed"
)

// IsValidEnrollmentStatus checks if the given enrollment status is valid.
func IsValidEnrollmentStatus(status EnrollmentStatus) bool {
	switch status {
	case EnrollmentStatusActive, EnrollmentStatusPaused, EnrollmentStatusCompleted,
		EnrollmentStatusReplied, EnrollmentStatusBounced, EnrollmentStatusUnsubscribed:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status permits no further transition of any
// kind. Replied is semi-terminal: it stops automatic dispatch but is not
// included here because a human may still act on the enrollment.
func (s EnrollmentStatus) Terminal() bool {
	switch s {
	case EnrollmentStatusCompleted, EnrollmentStatusBounced, EnrollmentStatusUnsubscribed:
		return true
	default:
		return false
	}
}

// StopsDispatch reports whether the scheduler must never dispatch a step for
// an enrollment in this status.
func (s EnrollmentStatus) StopsDispatch() bool {
	return s != EnrollmentStatusActive
}

// CadenceEnrollment binds one subject (lead XOR contact) to one cadence and
// tracks progress. CurrentStep is 0 before the first dispatch, otherwise the
// order of the last dispatched (or skipped) step. NextStepDue is nil once the
// enrollment can never dispatch again.
type CadenceEnrollment struct {
	ID          string           `json:"id"`
	CadenceID   string           `json:"cadence_id"`
	LeadID      string           `json:"lead_id,omitempty"`
	ContactID   string           `json:"contact_id,omitempty"`
	CurrentStep int              `json:"current_step"`
	Status      EnrollmentStatus `json:"status"`
	RetryCount  int              `json:"retry_count"`
	StartedAt   time.Time        `json:"started_at"`
	LastStepAt  *time.Time       `json:"last_step_at,omitempty"`
	NextStepDue *time.Time       `json:"next_step_due,omitempty"`
	// PausedRemaining is the portion of the current step's delay still
	// outstanding when the enrollment was paused. Resume schedules the step
	// this far from "now" so a step that was already due never re-fires
	// instantly and a pending step is never skipped.
	PausedRemaining time.Duration `json:"paused_remaining,omitempty"`
	ClaimedAt       *time.Time    `json:"claimed_at,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// SubjectKey identifies the enrolled subject for lookups and uniqueness checks.
func (e *CadenceEnrollment) SubjectKey() (SubjectKind, string) {
	if e.LeadID != "" {
		return SubjectKindLead, e.LeadID
	}
	return SubjectKindContact, e.ContactID
}

// Validate checks structural invariants of an enrollment record.
func (e *CadenceEnrollment) Validate() error {
	if e.LeadID == "" && e.ContactID == "" {
		return ErrNoSubject
	}
	if e.LeadID != "" && e.ContactID != "" {
		return ErrBothSubjects
	}
	if !IsValidEnrollmentStatus(e.Status) {
		return ErrInvalidEnrollmentStatus
	}
	return nil
}

// EnrollmentRequest represents the payload for enrolling a subject.
type EnrollmentRequest struct {
	LeadID    string `json:"lead_id,omitempty"`
	ContactID string `json:"contact_id,omitempty"`
}

// Validate validates an EnrollmentRequest.
func (r *EnrollmentRequest) Validate() error {
	if r.LeadID == "" && r.ContactID == "" {
		return ErrNoSubject
	}
	if r.LeadID != "" && r.ContactID != "" {
		return ErrBothSubjects
	}
	return nil
}
