package store

import (
	"path/filepath"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/salesloop/salesloop/internal/models"
)

func testCadence() *models.Cadence {
	return &models.Cadence{
		Name:   "Test Outreach",
		Status: models.CadenceStatusActive,
		Steps: []models.CadenceStep{
			{StepOrder: 1, Channel: models.ChannelEmail, TemplateSubject: "Hi {{name}}", TemplateBody: "Hello {{name}}"},
			{StepOrder: 2, DelayDays: 2, Channel: models.ChannelEmail, TemplateSubject: "Re: Hi", TemplateBody: "Following up"},
		},
	}
}

func activeEnrollment(cadenceID, leadID string, due time.Time) *models.CadenceEnrollment {
	return &models.CadenceEnrollment{
		CadenceID:   cadenceID,
		LeadID:      leadID,
		Status:      models.EnrollmentStatusActive,
		StartedAt:   due,
		NextStepDue: &due,
	}
}

// runStoreSuite exercises the behavior every backend must share.
func runStoreSuite(t *testing.T, s Store) {
	t.Helper()

	c := testCadence()
	if err := s.CreateCadence(c); err != nil {
		t.Fatalf("CreateCadence failed: %v", err)
	}
	if c.ID == "" {
		t.Fatal("CreateCadence did not assign an ID")
	}

	got, err := s.GetCadence(c.ID)
	if err != nil {
		t.Fatalf("GetCadence failed: %v", err)
	}
	if got == nil || got.Name != "Test Outreach" || len(got.Steps) != 2 {
		t.Fatalf("GetCadence returned %+v", got)
	}
	if got.Steps[0].StepOrder != 1 || got.Steps[1].DelayDays != 2 {
		t.Errorf("steps not round-tripped: %+v", got.Steps)
	}

	missing, err := s.GetCadence("cad_missing")
	if err != nil || missing != nil {
		t.Errorf("GetCadence for missing id = %v, %v; want nil, nil", missing, err)
	}

	// Enrollment creation increments the cached counter and enforces the
	// one-non-terminal-enrollment rule.
	due := time.Now().Add(-time.Minute)
	e := activeEnrollment(c.ID, "lead-1", due)
	if err := s.CreateEnrollment(e); err != nil {
		t.Fatalf("CreateEnrollment failed: %v", err)
	}
	dup := activeEnrollment(c.ID, "lead-1", due)
	if err := s.CreateEnrollment(dup); err != models.ErrAlreadyEnrolled {
		t.Errorf("duplicate enrollment error = %v, want ErrAlreadyEnrolled", err)
	}
	other := activeEnrollment(c.ID, "lead-2", due)
	if err := s.CreateEnrollment(other); err != nil {
		t.Fatalf("second subject enrollment failed: %v", err)
	}

	got, err = s.GetCadence(c.ID)
	if err != nil {
		t.Fatalf("GetCadence failed: %v", err)
	}
	if got.TotalEnrolled != 2 {
		t.Errorf("TotalEnrolled = %d, want 2", got.TotalEnrolled)
	}

	// Claiming removes rows from the due pool until released.
	claimed, err := s.ClaimDueEnrollments(time.Now(), 10)
	if err != nil {
		t.Fatalf("ClaimDueEnrollments failed: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("claimed %d enrollments, want 2", len(claimed))
	}
	again, err := s.ClaimDueEnrollments(time.Now(), 10)
	if err != nil {
		t.Fatalf("second ClaimDueEnrollments failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("second claim returned %d rows, want 0", len(again))
	}

	if err := s.ReleaseClaim(e.ID); err != nil {
		t.Fatalf("ReleaseClaim failed: %v", err)
	}
	again, err = s.ClaimDueEnrollments(time.Now(), 10)
	if err != nil {
		t.Fatalf("post-release claim failed: %v", err)
	}
	if len(again) != 1 || again[0].ID != e.ID {
		t.Errorf("post-release claim = %+v, want the released enrollment", again)
	}

	// CAS succeeds only from the expected status and clears the claim.
	upd := *e
	upd.Status = models.EnrollmentStatusCompleted
	upd.CurrentStep = 2
	upd.NextStepDue = nil
	ok, err := s.UpdateEnrollmentCAS(upd, models.EnrollmentStatusActive)
	if err != nil {
		t.Fatalf("UpdateEnrollmentCAS failed: %v", err)
	}
	if !ok {
		t.Fatal("CAS from active should succeed")
	}
	ok, err = s.UpdateEnrollmentCAS(upd, models.EnrollmentStatusActive)
	if err != nil {
		t.Fatalf("second UpdateEnrollmentCAS failed: %v", err)
	}
	if ok {
		t.Error("CAS should fail once the status moved on")
	}

	stored, err := s.GetEnrollment(e.ID)
	if err != nil {
		t.Fatalf("GetEnrollment failed: %v", err)
	}
	if stored.Status != models.EnrollmentStatusCompleted || stored.CurrentStep != 2 {
		t.Errorf("enrollment after CAS = %+v", stored)
	}
	if stored.ClaimedAt != nil {
		t.Error("CAS should clear the claim marker")
	}
	if stored.NextStepDue != nil {
		t.Error("completed enrollment should have no next due time")
	}

	got, _ = s.GetCadence(c.ID)
	if got.TotalCompleted != 1 {
		t.Errorf("TotalCompleted = %d, want 1", got.TotalCompleted)
	}

	// Stale claim recovery.
	requeued, err := s.RequeueStaleClaims(time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("RequeueStaleClaims failed: %v", err)
	}
	if requeued != 1 {
		t.Errorf("requeued %d claims, want 1 (the still-claimed lead-2 row)", requeued)
	}

	// Overview stats derive from enrollment rows, not cached counters.
	stats, err := s.OverviewStats()
	if err != nil {
		t.Fatalf("OverviewStats failed: %v", err)
	}
	if stats.TotalEnrolled != 2 || stats.TotalCompleted != 1 || stats.TotalActive != 1 {
		t.Errorf("OverviewStats = %+v", stats)
	}
	if stats.ActiveCadences != 1 {
		t.Errorf("ActiveCadences = %d, want 1", stats.ActiveCadences)
	}

	// Classifications.
	rc := &models.ReplyClassification{
		EnrollmentID:   e.ID,
		Classification: models.ReplyInterested,
		Confidence:     0.93,
		MessageBody:    "sounds great, send details",
	}
	if err := s.AddReplyClassification(rc); err != nil {
		t.Fatalf("AddReplyClassification failed: %v", err)
	}
	pending, err := s.ListUnprocessedClassifications(10)
	if err != nil {
		t.Fatalf("ListUnprocessedClassifications failed: %v", err)
	}
	if len(pending) != 1 || pending[0].Classification != models.ReplyInterested {
		t.Fatalf("unprocessed classifications = %+v", pending)
	}
	if err := s.MarkClassificationProcessed(rc.ID); err != nil {
		t.Fatalf("MarkClassificationProcessed failed: %v", err)
	}
	pending, _ = s.ListUnprocessedClassifications(10)
	if len(pending) != 0 {
		t.Errorf("still %d unprocessed after marking", len(pending))
	}
	recent, err := s.ListRecentClassifications(10)
	if err != nil || len(recent) != 1 {
		t.Errorf("recent classifications = %+v, %v", recent, err)
	}

	// Blocklist.
	if err := s.AddBlocklistEntry(&models.BlocklistEntry{Email: "optout@example.com", Reason: "unsubscribe"}); err != nil {
		t.Fatalf("AddBlocklistEntry failed: %v", err)
	}
	blocked, err := s.IsBlocklisted("optout@example.com", "")
	if err != nil || !blocked {
		t.Errorf("IsBlocklisted(optout@example.com) = %v, %v; want true", blocked, err)
	}
	blocked, err = s.IsBlocklisted("clean@example.com", "")
	if err != nil || blocked {
		t.Errorf("IsBlocklisted(clean@example.com) = %v, %v; want false", blocked, err)
	}
	blocked, err = s.IsBlocklisted("", "")
	if err != nil || blocked {
		t.Errorf("IsBlocklisted with empty keys = %v, %v; want false", blocked, err)
	}

	// Manual tasks.
	task := &models.ManualTask{CadenceID: c.ID, EnrollmentID: e.ID, Channel: models.ChannelCall, Title: "Call lead-1"}
	if err := s.AddManualTask(task); err != nil {
		t.Fatalf("AddManualTask failed: %v", err)
	}
	tasks, err := s.ListManualTasksByCadence(c.ID)
	if err != nil || len(tasks) != 1 || tasks[0].Title != "Call lead-1" {
		t.Errorf("manual tasks = %+v, %v", tasks, err)
	}

	// Counter reconciliation recomputes the caches from enrollment rows.
	if err := s.ReconcileCadenceCounters(); err != nil {
		t.Fatalf("ReconcileCadenceCounters failed: %v", err)
	}
	fixed, err := s.GetCadence(c.ID)
	if err != nil {
		t.Fatalf("GetCadence after reconcile failed: %v", err)
	}
	if fixed.TotalEnrolled != 2 || fixed.TotalCompleted != 1 {
		t.Errorf("after reconcile: enrolled=%d completed=%d, want 2/1", fixed.TotalEnrolled, fixed.TotalCompleted)
	}
}

func TestInMemoryStore(t *testing.T) {
	s := NewInMemoryStore()
	defer s.Close()
	runStoreSuite(t, s)
}

func TestSQLiteStore(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "salesloop.db")
	s, err := NewSQLiteStore(WithSQLiteDSN(dsn))
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	defer s.Close()
	runStoreSuite(t, s)
}

func TestPostgresStore(t *testing.T) {
	// Requires a running PostgreSQL instance. Set DATABASE_URL to run.
	connStr := getenvOrSkip(t, "DATABASE_URL")
	s, err := NewPostgresStore(WithPostgresDSN(connStr))
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	defer s.Close()
	for _, table := range []string{"manual_tasks", "blocklist", "reply_classifications", "enrollments", "cadence_steps", "cadences"} {
		s.db.Exec("DELETE FROM " + table)
	}
	runStoreSuite(t, s)
}

func getenvOrSkip(t *testing.T, key string) string {
	v := ""
	if val, ok := syscall.Getenv(key); ok {
		v = val
	}
	if v == "" {
		t.Skipf("env %s not set", key)
	}
	return v
}

// Concurrent claimers must never hand the same enrollment to two workers.
func TestClaimDueEnrollmentsConcurrent(t *testing.T) {
	s := NewInMemoryStore()
	defer s.Close()

	c := testCadence()
	if err := s.CreateCadence(c); err != nil {
		t.Fatalf("CreateCadence failed: %v", err)
	}
	due := time.Now().Add(-time.Second)
	const n = 50
	for i := 0; i < n; i++ {
		e := activeEnrollment(c.ID, "lead-"+string(rune('a'+i%26))+string(rune('a'+i/26)), due)
		if err := s.CreateEnrollment(e); err != nil {
			t.Fatalf("CreateEnrollment %d failed: %v", i, err)
		}
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := s.ClaimDueEnrollments(time.Now(), 7)
				if err != nil {
					t.Errorf("ClaimDueEnrollments failed: %v", err)
					return
				}
				if len(claimed) == 0 {
					return
				}
				mu.Lock()
				for _, e := range claimed {
					seen[e.ID]++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("claimed %d distinct enrollments, want %d", len(seen), n)
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("enrollment %s claimed %d times", id, count)
		}
	}
}

func TestDetectDSNType(t *testing.T) {
	cases := map[string]string{
		"postgres://u:p@localhost/db":        "postgres",
		"postgresql://u:p@localhost/db":      "postgres",
		"host=localhost dbname=salesloop":    "postgres",
		"/var/lib/salesloop/salesloop.db":    "sqlite",
		"file:salesloop.db?_busy_timeout=50": "sqlite",
	}
	for dsn, want := range cases {
		if got := DetectDSNType(dsn); got != want {
			t.Errorf("DetectDSNType(%q) = %q, want %q", dsn, got, want)
		}
	}
}
