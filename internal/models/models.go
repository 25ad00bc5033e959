// Package models defines the core data structures for Salesloop.
//
// It includes types for cadences, enrollments, reply classifications, and the
// shared API response envelope used across modules.
package models

import (
	"errors"
	"time"
)

// Channel identifies the delivery channel of a cadence step.
type Channel string

const (
	// ChannelEmail delivers the step over SMTP.
	ChannelEmail Channel = "email"
	// ChannelWhatsApp delivers the step via the WhatsApp Business API.
	ChannelWhatsApp Channel = "whatsapp"
	// ChannelCall records a call reminder task for a human to complete.
	ChannelCall Channel = "call"
	// ChannelTask records a generic to-do task for a human to complete.
	ChannelTask Channel = "task"
	// ChannelLinkedInManual records a manual LinkedIn outreach task.
	ChannelLinkedInManual Channel = "linkedin_manual"
)

// IsValidChannel checks if the given channel is supported.
func IsValidChannel(c Channel) bool {
	switch c {
	case ChannelEmail, ChannelWhatsApp, ChannelCall, ChannelTask, ChannelLinkedInManual:
		return true
	default:
		return false
	}
}

// ManualChannel reports whether dispatching the channel records a task for a
// human rather than sending anything externally.
func (c Channel) Manual() bool {
	switch c {
	case ChannelCall, ChannelTask, ChannelLinkedInManual:
		return true
	default:
		return false
	}
}

// Validation constants for input validation
const (
	// MaxCadenceNameLength defines the maximum allowed length for a cadence name
	MaxCadenceNameLength = 200
	// MaxTemplateBodyLength defines the maximum allowed length for step template bodies
	MaxTemplateBodyLength = 8192
	// MaxTemplateSubjectLength defines the maximum allowed length for email subjects
	MaxTemplateSubjectLength = 255
	// MaxCadenceSteps defines the maximum number of steps in one cadence
	MaxCadenceSteps = 50
)

// Error variables for better error handling and testability
var (
	ErrEmptyCadenceName       = errors.New("cadence name cannot be empty")
	ErrCadenceNameTooLong     = errors.New("cadence name exceeds maximum length")
	ErrInvalidCadenceStatus   = errors.New("invalid cadence status")
	ErrNoSteps                = errors.New("cadence requires at least one step")
	ErrTooManySteps           = errors.New("cadence exceeds maximum step count")
	ErrStepOrderNotContiguous = errors.New("step order must be contiguous from 1 with no gaps or duplicates")
	ErrNegativeDelay          = errors.New("step delay cannot be negative")
	ErrInvalidChannel         = errors.New("invalid step channel")
	ErrEmptyTemplateBody      = errors.New("step template body cannot be empty")
	ErrTemplateBodyTooLong    = errors.New("step template body exceeds maximum length")
	ErrSubjectOnNonEmailStep  = errors.New("template subject is only valid for email steps")
	ErrTemplateSubjectTooLong = errors.New("step template subject exceeds maximum length")
	ErrInvalidSkipCondition   = errors.New("invalid skip condition")

	ErrNoSubject               = errors.New("enrollment requires a lead or a contact")
	ErrBothSubjects            = errors.New("enrollment cannot reference both a lead and a contact")
	ErrInvalidEnrollmentStatus = errors.New("invalid enrollment status")
	ErrAlreadyEnrolled         = errors.New("subject already has a non-terminal enrollment in this cadence")
	ErrCadenceNotActive        = errors.New("cadence is not active")
	ErrEnrollmentConflict      = errors.New("enrollment state changed concurrently")
	ErrEnrollmentNotFound      = errors.New("enrollment not found")
	ErrCadenceNotFound         = errors.New("cadence not found")

	ErrInvalidClassification = errors.New("invalid reply classification category")
)

// SubjectKind distinguishes the two CRM record types a cadence can sequence.
type SubjectKind string

const (
	// SubjectKindLead marks a subject backed by a lead record.
	SubjectKindLead SubjectKind = "lead"
	// SubjectKindContact marks a subject backed by a contact record.
	SubjectKindContact SubjectKind = "contact"
)

// Subject is the prospect a cadence enrollment sequences: a lead or a contact.
// Fields holds any additional CRM attributes referenced by step templates.
type Subject struct {
	ID        string            `json:"id"`
	Kind      SubjectKind       `json:"kind"`
	Name      string            `json:"name,omitempty"`
	Company   string            `json:"company,omitempty"`
	Email     string            `json:"email,omitempty"`
	Phone     string            `json:"phone,omitempty"`
	Title     string            `json:"title,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// Field returns the named subject attribute, or the empty string when the
// subject does not carry it. Template rendering relies on the empty-string
// fallback: a missing field never fails a render.
func (s Subject) Field(name string) string {
	switch name {
	case "name":
		return s.Name
	case "company":
		return s.Company
	case "email":
		return s.Email
	case "phone":
		return s.Phone
	case "title":
		return s.Title
	default:
		return s.Fields[name]
	}
}

// BlocklistEntry records an opted-out recipient consulted by the compliance guard.
type BlocklistEntry struct {
	ID        string    `json:"id"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Source    string    `json:"source,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ManualTask is what dispatching a call/task/linkedin_manual step produces: a
// reminder for a human. Recording the task is the delivery; there is no
// external send to fail.
type ManualTask struct {
	ID           string    `json:"id"`
	CadenceID    string    `json:"cadence_id"`
	EnrollmentID string    `json:"enrollment_id"`
	Channel      Channel   `json:"channel"`
	Title        string    `json:"title"`
	Notes        string    `json:"notes,omitempty"`
	Done         bool      `json:"done"`
	CreatedAt    time.Time `json:"created_at"`
}

// ComplianceConfig holds the rate-limit and retry policy consulted before sends.
type ComplianceConfig struct {
	Enabled                   bool `json:"enabled"`
	MaxEmailsPerHourPerDomain int  `json:"max_emails_per_hour_per_domain"`
	MaxEmailsPerDay           int  `json:"max_emails_per_day"`
	SoftBounceRetryCount      int  `json:"soft_bounce_retry_count"`
}

// OverviewStats is the read-side summary derived from the enrollment store.
type OverviewStats struct {
	ActiveCadences int     `json:"active_cadences"`
	TotalEnrolled  int     `json:"total_enrolled"`
	TotalActive    int     `json:"total_active"`
	TotalReplied   int     `json:"total_replied"`
	TotalCompleted int     `json:"total_completed"`
	ReplyRate      float64 `json:"reply_rate"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
