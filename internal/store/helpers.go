package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/salesloop/salesloop/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfZeroTime returns nil if t is nil, otherwise the dereferenced time.
func nilIfZeroTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

// marshalSkipCondition serializes a skip condition for a nullable JSON column.
func marshalSkipCondition(c *models.SkipCondition) (interface{}, error) {
	if c == nil {
		return nil, nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal skip condition failed: %w", err)
	}
	return string(data), nil
}

// unmarshalSkipCondition deserializes a skip condition column. Malformed JSON
// yields nil rather than an error so one bad row cannot stall reads.
func unmarshalSkipCondition(raw sql.NullString) *models.SkipCondition {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var c models.SkipCondition
	if err := json.Unmarshal([]byte(raw.String), &c); err != nil {
		return nil
	}
	return &c
}

// marshalFields serializes a subject's extra fields for a nullable JSON column.
func marshalFields(fields map[string]string) (interface{}, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("marshal subject fields failed: %w", err)
	}
	return string(data), nil
}

// unmarshalFields deserializes a subject's extra fields column.
func unmarshalFields(raw sql.NullString) map[string]string {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	fields := make(map[string]string)
	if err := json.Unmarshal([]byte(raw.String), &fields); err != nil {
		return nil
	}
	return fields
}

// rowScanner abstracts sql.Row and sql.Rows for shared scan helpers.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanEnrollment scans an enrollment row in the canonical column order:
// id, cadence_id, lead_id, contact_id, current_step, status, retry_count,
// started_at, last_step_at, next_step_due, paused_remaining_secs, claimed_at,
// created_at, updated_at.
func scanEnrollment(r rowScanner) (models.CadenceEnrollment, error) {
	var e models.CadenceEnrollment
	var leadID, contactID sql.NullString
	var lastStepAt, nextStepDue, claimedAt sql.NullTime
	var pausedSecs int64
	err := r.Scan(
		&e.ID, &e.CadenceID, &leadID, &contactID, &e.CurrentStep, &e.Status, &e.RetryCount,
		&e.StartedAt, &lastStepAt, &nextStepDue, &pausedSecs, &claimedAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return e, err
	}
	e.LeadID = leadID.String
	e.ContactID = contactID.String
	e.PausedRemaining = time.Duration(pausedSecs) * time.Second
	if lastStepAt.Valid {
		e.LastStepAt = &lastStepAt.Time
	}
	if nextStepDue.Valid {
		e.NextStepDue = &nextStepDue.Time
	}
	if claimedAt.Valid {
		e.ClaimedAt = &claimedAt.Time
	}
	return e, nil
}

// scanCadence scans a cadence row without its steps.
func scanCadence(r rowScanner) (models.Cadence, error) {
	var c models.Cadence
	var description, createdBy sql.NullString
	err := r.Scan(
		&c.ID, &c.Name, &description, &c.Status, &createdBy,
		&c.TotalEnrolled, &c.TotalCompleted, &c.TotalReplied,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return c, err
	}
	c.Description = description.String
	c.CreatedBy = createdBy.String
	return c, nil
}

// scanStep scans a cadence step row.
func scanStep(r rowScanner) (models.CadenceStep, error) {
	var s models.CadenceStep
	var subject, skip sql.NullString
	err := r.Scan(
		&s.ID, &s.CadenceID, &s.StepOrder, &s.DelayDays, &s.DelayHours,
		&s.Channel, &subject, &s.TemplateBody, &skip,
	)
	if err != nil {
		return s, err
	}
	s.TemplateSubject = subject.String
	s.ConditionSkip = unmarshalSkipCondition(skip)
	return s, nil
}

// scanClassification scans a reply classification row.
func scanClassification(r rowScanner) (models.ReplyClassification, error) {
	var rc models.ReplyClassification
	var reasoning, body sql.NullString
	err := r.Scan(
		&rc.ID, &rc.EnrollmentID, &rc.Classification, &rc.Confidence,
		&reasoning, &body, &rc.Processed, &rc.CreatedAt,
	)
	if err != nil {
		return rc, err
	}
	rc.AIReasoning = reasoning.String
	rc.MessageBody = body.String
	return rc, nil
}

// scanBlocklistEntry scans a blocklist row.
func scanBlocklistEntry(r rowScanner) (models.BlocklistEntry, error) {
	var b models.BlocklistEntry
	var email, phone, reason, source sql.NullString
	err := r.Scan(&b.ID, &email, &phone, &reason, &source, &b.CreatedAt)
	if err != nil {
		return b, err
	}
	b.Email = email.String
	b.Phone = phone.String
	b.Reason = reason.String
	b.Source = source.String
	return b, nil
}

// scanManualTask scans a manual task row.
func scanManualTask(r rowScanner) (models.ManualTask, error) {
	var t models.ManualTask
	var notes sql.NullString
	err := r.Scan(&t.ID, &t.CadenceID, &t.EnrollmentID, &t.Channel, &t.Title, &notes, &t.Done, &t.CreatedAt)
	if err != nil {
		return t, err
	}
	t.Notes = notes.String
	return t, nil
}
