package models

import (
	"fmt"
	"strings"
	"time"
)

// CadenceStatus represents the lifecycle state of a cadence definition.
type CadenceStatus string

const (
	// CadenceStatusDraft indicates the cadence is being edited and never dispatches.
	CadenceStatusDraft CadenceStatus = "draft"
	// CadenceStatusActive indicates the cadence dispatches due enrollments.
	CadenceStatusActive CadenceStatus = "active"
	// CadenceStatusPaused indicates dispatch is suspended for all enrollments.
	CadenceStatusPaused CadenceStatus = "paused"
	// CadenceStatusArchived indicates the cadence is retired.
	CadenceStatusArchived CadenceStatus = "archived"
)

// IsValidCadenceStatus checks if the given cadence status is valid.
func IsValidCadenceStatus(status CadenceStatus) bool {
	switch status {
	case CadenceStatusDraft, CadenceStatusActive, CadenceStatusPaused, CadenceStatusArchived:
		return true
	default:
		return false
	}
}

// SkipOp is the comparison operator of a step skip condition.
type SkipOp string

const (
	// SkipOpEquals skips when the field equals the value.
	SkipOpEquals SkipOp = "equals"
	// SkipOpNotEquals skips when the field differs from the value.
	SkipOpNotEquals SkipOp = "not_equals"
	// SkipOpContains skips when the field contains the value as a substring.
	SkipOpContains SkipOp = "contains"
	// SkipOpSet skips when the field is non-empty.
	SkipOpSet SkipOp = "set"
	// SkipOpNotSet skips when the field is empty.
	SkipOpNotSet SkipOp = "not_set"
)

// SkipCondition is an optional predicate evaluated against the subject's live
// data at dispatch time. When it matches, the step is skipped without sending
// and the enrollment advances immediately.
type SkipCondition struct {
	Field string `json:"field"`
	Op    SkipOp `json:"op"`
	Value string `json:"value,omitempty"`
}

// Validate checks the condition's shape without evaluating it.
func (c SkipCondition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("%w: empty field", ErrInvalidSkipCondition)
	}
	switch c.Op {
	case SkipOpEquals, SkipOpNotEquals, SkipOpContains, SkipOpSet, SkipOpNotSet:
		return nil
	default:
		return fmt.Errorf("%w: unknown op %q", ErrInvalidSkipCondition, c.Op)
	}
}

// Evaluate applies the condition to the subject. A malformed condition returns
// an error; callers treat that as a no-op skip rather than a fatal failure.
func (c SkipCondition) Evaluate(subject Subject) (bool, error) {
	if c.Field == "" {
		return false, fmt.Errorf("%w: empty field", ErrInvalidSkipCondition)
	}
	got := subject.Field(c.Field)
	switch c.Op {
	case SkipOpEquals:
		return got == c.Value, nil
	case SkipOpNotEquals:
		return got != c.Value, nil
	case SkipOpContains:
		return c.Value != "" && strings.Contains(got, c.Value), nil
	case SkipOpSet:
		return got != "", nil
	case SkipOpNotSet:
		return got == "", nil
	default:
		return false, fmt.Errorf("%w: unknown op %q", ErrInvalidSkipCondition, c.Op)
	}
}

// CadenceStep is one channel action in a cadence. Delay fields are relative to
// the previous step's completion, or to enrollment start for step 1.
type CadenceStep struct {
	ID              string         `json:"id"`
	CadenceID       string         `json:"cadence_id"`
	StepOrder       int            `json:"step_order"`
	DelayDays       int            `json:"delay_days"`
	DelayHours      int            `json:"delay_hours"`
	Channel         Channel        `json:"channel"`
	TemplateSubject string         `json:"template_subject,omitempty"` // email only
	TemplateBody    string         `json:"template_body"`
	ConditionSkip   *SkipCondition `json:"condition_skip,omitempty"`
}

// Delay returns the step's configured delay as a duration.
func (s CadenceStep) Delay() time.Duration {
	return time.Duration(s.DelayDays)*24*time.Hour + time.Duration(s.DelayHours)*time.Hour
}

// Cadence is a named, ordered sequence of outbound steps. The Total* counters
// are a cached read-model reconcilable from the enrollment store; they are
// never the sole source of truth.
type Cadence struct {
	ID             string        `json:"id"`
	Name           string        `json:"name"`
	Description    string        `json:"description,omitempty"`
	Status         CadenceStatus `json:"status"`
	CreatedBy      string        `json:"created_by,omitempty"`
	Steps          []CadenceStep `json:"steps"`
	TotalEnrolled  int           `json:"total_enrolled"`
	TotalCompleted int           `json:"total_completed"`
	TotalReplied   int           `json:"total_replied"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// StepAt returns the step with the given order, or nil if no such step exists.
func (c *Cadence) StepAt(order int) *CadenceStep {
	for i := range c.Steps {
		if c.Steps[i].StepOrder == order {
			return &c.Steps[i]
		}
	}
	return nil
}

// Validate performs comprehensive validation on a Cadence and its steps.
// The step-order invariant (contiguous 1..N, no gaps, no duplicates) is
// enforced here, on every save.
func (c *Cadence) Validate() error {
	if c.Name == "" {
		return ErrEmptyCadenceName
	}
	if len(c.Name) > MaxCadenceNameLength {
		return ErrCadenceNameTooLong
	}
	if !IsValidCadenceStatus(c.Status) {
		return ErrInvalidCadenceStatus
	}
	if len(c.Steps) == 0 {
		return ErrNoSteps
	}
	if len(c.Steps) > MaxCadenceSteps {
		return ErrTooManySteps
	}

	seen := make(map[int]bool, len(c.Steps))
	for i := range c.Steps {
		step := &c.Steps[i]
		if step.StepOrder < 1 || step.StepOrder > len(c.Steps) || seen[step.StepOrder] {
			return ErrStepOrderNotContiguous
		}
		seen[step.StepOrder] = true
		if err := step.validate(); err != nil {
			return err
		}
	}
	return nil
}

// validate checks a single step's fields.
func (s *CadenceStep) validate() error {
	if s.DelayDays < 0 || s.DelayHours < 0 {
		return ErrNegativeDelay
	}
	if !IsValidChannel(s.Channel) {
		return ErrInvalidChannel
	}
	if s.TemplateBody == "" {
		return ErrEmptyTemplateBody
	}
	if len(s.TemplateBody) > MaxTemplateBodyLength {
		return ErrTemplateBodyTooLong
	}
	if s.TemplateSubject != "" && s.Channel != ChannelEmail {
		return ErrSubjectOnNonEmailStep
	}
	if len(s.TemplateSubject) > MaxTemplateSubjectLength {
		return ErrTemplateSubjectTooLong
	}
	if s.ConditionSkip != nil {
		if err := s.ConditionSkip.Validate(); err != nil {
			return err
		}
	}
	return nil
}
