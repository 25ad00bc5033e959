package feedback

import (
	"testing"
	"time"

	"github.com/salesloop/salesloop/internal/models"
	"github.com/salesloop/salesloop/internal/store"
)

type fixture struct {
	store     *store.InMemoryStore
	processor *Processor
	cadence   *models.Cadence
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewInMemoryStore()
	c := &models.Cadence{
		Name:   "Outreach",
		Status: models.CadenceStatusActive,
		Steps: []models.CadenceStep{
			{StepOrder: 1, Channel: models.ChannelEmail, TemplateSubject: "Hi", TemplateBody: "Hello"},
		},
	}
	if err := st.CreateCadence(c); err != nil {
		t.Fatalf("CreateCadence failed: %v", err)
	}
	if err := st.UpsertSubject(models.Subject{
		Kind: models.SubjectKindLead, ID: "lead-1", Email: "ada@acme.com", Phone: "15551234",
	}); err != nil {
		t.Fatalf("UpsertSubject failed: %v", err)
	}
	return &fixture{store: st, processor: NewProcessor(st), cadence: c}
}

func (f *fixture) enroll(t *testing.T, status models.EnrollmentStatus) *models.CadenceEnrollment {
	t.Helper()
	now := time.Now()
	enr := &models.CadenceEnrollment{
		CadenceID: f.cadence.ID,
		LeadID:    "lead-1",
		Status:    models.EnrollmentStatusActive,
		StartedAt: now, NextStepDue: &now,
	}
	if err := f.store.CreateEnrollment(enr); err != nil {
		t.Fatalf("CreateEnrollment failed: %v", err)
	}
	if status != models.EnrollmentStatusActive {
		upd := *enr
		upd.Status = status
		if ok, err := f.store.UpdateEnrollmentCAS(upd, models.EnrollmentStatusActive); err != nil || !ok {
			t.Fatalf("status setup CAS = %v, %v", ok, err)
		}
	}
	return enr
}

func (f *fixture) classify(t *testing.T, enrollmentID string, category models.ReplyCategory) *models.ReplyClassification {
	t.Helper()
	rc := &models.ReplyClassification{
		EnrollmentID:   enrollmentID,
		Classification: category,
		Confidence:     0.9,
		MessageBody:    "reply body",
	}
	if err := f.store.AddReplyClassification(rc); err != nil {
		t.Fatalf("AddReplyClassification failed: %v", err)
	}
	return rc
}

func (f *fixture) pendingCount(t *testing.T) int {
	t.Helper()
	pending, err := f.store.ListUnprocessedClassifications(100)
	if err != nil {
		t.Fatalf("ListUnprocessedClassifications failed: %v", err)
	}
	return len(pending)
}

func TestEngagingReplyTransitionsToReplied(t *testing.T) {
	for _, category := range []models.ReplyCategory{
		models.ReplyInterested, models.ReplyNotInterested,
		models.ReplyMeetingRequest, models.ReplyProposalRequest,
	} {
		t.Run(string(category), func(t *testing.T) {
			f := newFixture(t)
			enr := f.enroll(t, models.EnrollmentStatusActive)
			f.classify(t, enr.ID, category)

			if err := f.processor.ProcessPending(); err != nil {
				t.Fatalf("ProcessPending failed: %v", err)
			}
			got, _ := f.store.GetEnrollment(enr.ID)
			if got.Status != models.EnrollmentStatusReplied {
				t.Errorf("status = %s, want replied", got.Status)
			}
			if got.NextStepDue != nil {
				t.Error("replied enrollment should have no next due time")
			}
			if f.pendingCount(t) != 0 {
				t.Error("classification not marked processed")
			}
			c, _ := f.store.GetCadence(f.cadence.ID)
			if c.TotalReplied != 1 {
				t.Errorf("TotalReplied = %d, want 1", c.TotalReplied)
			}
		})
	}
}

func TestUnsubscribeBlocklistsAndTransitions(t *testing.T) {
	f := newFixture(t)
	enr := f.enroll(t, models.EnrollmentStatusActive)
	f.classify(t, enr.ID, models.ReplyUnsubscribe)

	if err := f.processor.ProcessPending(); err != nil {
		t.Fatalf("ProcessPending failed: %v", err)
	}
	got, _ := f.store.GetEnrollment(enr.ID)
	if got.Status != models.EnrollmentStatusUnsubscribed {
		t.Errorf("status = %s, want unsubscribed", got.Status)
	}
	blocked, err := f.store.IsBlocklisted("ada@acme.com", "")
	if err != nil || !blocked {
		t.Errorf("subject not blocklisted after unsubscribe: %v, %v", blocked, err)
	}
	if f.pendingCount(t) != 0 {
		t.Error("classification not marked processed")
	}
}

func TestNeutralRepliesLeaveCadenceRunning(t *testing.T) {
	for _, category := range []models.ReplyCategory{models.ReplyOutOfOffice, models.ReplyOther} {
		t.Run(string(category), func(t *testing.T) {
			f := newFixture(t)
			enr := f.enroll(t, models.EnrollmentStatusActive)
			f.classify(t, enr.ID, category)

			if err := f.processor.ProcessPending(); err != nil {
				t.Fatalf("ProcessPending failed: %v", err)
			}
			got, _ := f.store.GetEnrollment(enr.ID)
			if got.Status != models.EnrollmentStatusActive {
				t.Errorf("status = %s, want still active", got.Status)
			}
			if f.pendingCount(t) != 0 {
				t.Error("neutral classification should still be marked processed")
			}
		})
	}
}

func TestTerminalEnrollmentUnchanged(t *testing.T) {
	f := newFixture(t)
	enr := f.enroll(t, models.EnrollmentStatusBounced)
	f.classify(t, enr.ID, models.ReplyInterested)

	if err := f.processor.ProcessPending(); err != nil {
		t.Fatalf("ProcessPending failed: %v", err)
	}
	got, _ := f.store.GetEnrollment(enr.ID)
	if got.Status != models.EnrollmentStatusBounced {
		t.Errorf("terminal enrollment mutated: %s", got.Status)
	}
	if f.pendingCount(t) != 0 {
		t.Error("classification against terminal enrollment should be marked processed")
	}
}

func TestPausedEnrollmentStillReplies(t *testing.T) {
	f := newFixture(t)
	enr := f.enroll(t, models.EnrollmentStatusPaused)
	f.classify(t, enr.ID, models.ReplyInterested)

	if err := f.processor.ProcessPending(); err != nil {
		t.Fatalf("ProcessPending failed: %v", err)
	}
	got, _ := f.store.GetEnrollment(enr.ID)
	if got.Status != models.EnrollmentStatusReplied {
		t.Errorf("paused enrollment should still transition to replied, got %s", got.Status)
	}
}

func TestMissingEnrollmentDiscarded(t *testing.T) {
	f := newFixture(t)
	f.classify(t, "enr_ghost", models.ReplyInterested)

	if err := f.processor.ProcessPending(); err != nil {
		t.Fatalf("ProcessPending failed: %v", err)
	}
	if f.pendingCount(t) != 0 {
		t.Error("orphan classification should be marked processed")
	}
}
