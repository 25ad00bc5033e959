package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
	"github.com/salesloop/salesloop/internal/models"
	"github.com/salesloop/salesloop/internal/util"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateCadence(c *models.Cadence) error {
	if c.ID == "" {
		c.ID = util.GenerateCadenceID()
	}
	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("create cadence begin failed: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO cadences (id, name, description, status, created_by, total_enrolled, total_completed, total_replied, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.Name, nilIfEmpty(c.Description), c.Status, nilIfEmpty(c.CreatedBy),
		c.TotalEnrolled, c.TotalCompleted, c.TotalReplied, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cadence failed: %w", err)
	}
	if err := insertStepsSQLite(tx, c); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create cadence commit failed: %w", err)
	}
	slog.Debug("SQLiteStore.CreateCadence", "id", c.ID, "steps", len(c.Steps))
	return nil
}

func insertStepsSQLite(tx *sql.Tx, c *models.Cadence) error {
	for i := range c.Steps {
		step := &c.Steps[i]
		if step.ID == "" {
			step.ID = util.GenerateStepID()
		}
		step.CadenceID = c.ID
		skip, err := marshalSkipCondition(step.ConditionSkip)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO cadence_steps (id, cadence_id, step_order, delay_days, delay_hours, channel, template_subject, template_body, condition_skip)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			step.ID, c.ID, step.StepOrder, step.DelayDays, step.DelayHours,
			step.Channel, nilIfEmpty(step.TemplateSubject), step.TemplateBody, skip,
		)
		if err != nil {
			return fmt.Errorf("insert cadence step failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) GetCadence(id string) (*models.Cadence, error) {
	row := s.db.QueryRow(
		`SELECT id, name, description, status, created_by, total_enrolled, total_completed, total_replied, created_at, updated_at
		 FROM cadences WHERE id = ?`, id,
	)
	c, err := scanCadence(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cadence failed: %w", err)
	}
	if err := s.loadSteps(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *SQLiteStore) loadSteps(c *models.Cadence) error {
	rows, err := s.db.Query(
		`SELECT id, cadence_id, step_order, delay_days, delay_hours, channel, template_subject, template_body, condition_skip
		 FROM cadence_steps WHERE cadence_id = ? ORDER BY step_order ASC`, c.ID,
	)
	if err != nil {
		return fmt.Errorf("query cadence steps failed: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		step, err := scanStep(rows)
		if err != nil {
			return fmt.Errorf("scan cadence step failed: %w", err)
		}
		c.Steps = append(c.Steps, step)
	}
	return rows.Err()
}

func (s *SQLiteStore) ListCadences() ([]models.Cadence, error) {
	rows, err := s.db.Query(
		`SELECT id, name, description, status, created_by, total_enrolled, total_completed, total_replied, created_at, updated_at
		 FROM cadences ORDER BY created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query cadences failed: %w", err)
	}
	defer rows.Close()

	var cadences []models.Cadence
	for rows.Next() {
		c, err := scanCadence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cadence failed: %w", err)
		}
		cadences = append(cadences, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cadences failed: %w", err)
	}
	for i := range cadences {
		if err := s.loadSteps(&cadences[i]); err != nil {
			return nil, err
		}
	}
	return cadences, nil
}

func (s *SQLiteStore) UpdateCadence(c *models.Cadence) error {
	c.UpdatedAt = time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("update cadence begin failed: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE cadences SET name = ?, description = ?, status = ?, updated_at = ? WHERE id = ?`,
		c.Name, nilIfEmpty(c.Description), c.Status, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update cadence failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrCadenceNotFound
	}
	// Steps are replaced wholesale; the order invariant was validated on save.
	if _, err := tx.Exec(`DELETE FROM cadence_steps WHERE cadence_id = ?`, c.ID); err != nil {
		return fmt.Errorf("delete cadence steps failed: %w", err)
	}
	if err := insertStepsSQLite(tx, c); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update cadence commit failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteCadence(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("delete cadence begin failed: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM cadence_steps WHERE cadence_id = ?`, id); err != nil {
		return fmt.Errorf("delete cadence steps failed: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM cadences WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete cadence failed: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStore) ReconcileCadenceCounters() error {
	_, err := s.db.Exec(`
		UPDATE cadences SET
			total_enrolled = (SELECT COUNT(*) FROM enrollments WHERE enrollments.cadence_id = cadences.id),
			total_completed = (SELECT COUNT(*) FROM enrollments WHERE enrollments.cadence_id = cadences.id AND status = 'completed'),
			total_replied = (SELECT COUNT(*) FROM enrollments WHERE enrollments.cadence_id = cadences.id AND status = 'replied')`)
	if err != nil {
		return fmt.Errorf("reconcile cadence counters failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpsertSubject(subj models.Subject) error {
	fields, err := marshalFields(subj.Fields)
	if err != nil {
		return err
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO subjects (kind, id, name, company, email, phone, title, fields, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (kind, id) DO UPDATE SET
			name = excluded.name, company = excluded.company, email = excluded.email,
			phone = excluded.phone, title = excluded.title, fields = excluded.fields,
			updated_at = excluded.updated_at`,
		subj.Kind, subj.ID, nilIfEmpty(subj.Name), nilIfEmpty(subj.Company), nilIfEmpty(subj.Email),
		nilIfEmpty(subj.Phone), nilIfEmpty(subj.Title), fields, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert subject failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSubject(kind models.SubjectKind, id string) (*models.Subject, error) {
	var subj models.Subject
	var name, company, email, phone, title, fields sql.NullString
	err := s.db.QueryRow(
		`SELECT kind, id, name, company, email, phone, title, fields, created_at, updated_at
		 FROM subjects WHERE kind = ? AND id = ?`, kind, id,
	).Scan(&subj.Kind, &subj.ID, &name, &company, &email, &phone, &title, &fields, &subj.CreatedAt, &subj.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subject failed: %w", err)
	}
	subj.Name = name.String
	subj.Company = company.String
	subj.Email = email.String
	subj.Phone = phone.String
	subj.Title = title.String
	subj.Fields = unmarshalFields(fields)
	return &subj, nil
}

func (s *SQLiteStore) CreateEnrollment(e *models.CadenceEnrollment) error {
	if e.ID == "" {
		e.ID = util.GenerateEnrollmentID()
	}
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("create enrollment begin failed: %w", err)
	}
	defer tx.Rollback()

	// One non-terminal enrollment per (cadence, subject). Replied counts as
	// non-terminal: a human may still be working the reply.
	var existingID string
	err = tx.QueryRow(
		`SELECT id FROM enrollments
		 WHERE cadence_id = ? AND COALESCE(lead_id, '') = ? AND COALESCE(contact_id, '') = ?
		   AND status NOT IN ('completed', 'bounced', 'unsubscribed')`,
		e.CadenceID, e.LeadID, e.ContactID,
	).Scan(&existingID)
	if err == nil {
		return models.ErrAlreadyEnrolled
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("enrollment uniqueness check failed: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO enrollments (id, cadence_id, lead_id, contact_id, current_step, status, retry_count,
			started_at, last_step_at, next_step_due, paused_remaining_secs, claimed_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?, ?)`,
		e.ID, e.CadenceID, nilIfEmpty(e.LeadID), nilIfEmpty(e.ContactID), e.CurrentStep, e.Status, e.RetryCount,
		e.StartedAt, nilIfZeroTime(e.LastStepAt), nilIfZeroTime(e.NextStepDue),
		int64(e.PausedRemaining/time.Second), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert enrollment failed: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE cadences SET total_enrolled = total_enrolled + 1, updated_at = ? WHERE id = ?`,
		now, e.CadenceID,
	); err != nil {
		return fmt.Errorf("increment total_enrolled failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create enrollment commit failed: %w", err)
	}
	slog.Debug("SQLiteStore.CreateEnrollment", "id", e.ID, "cadenceID", e.CadenceID)
	return nil
}

const enrollmentColumns = `id, cadence_id, lead_id, contact_id, current_step, status, retry_count,
	started_at, last_step_at, next_step_due, paused_remaining_secs, claimed_at, created_at, updated_at`

func (s *SQLiteStore) GetEnrollment(id string) (*models.CadenceEnrollment, error) {
	row := s.db.QueryRow(`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = ?`, id)
	e, err := scanEnrollment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment failed: %w", err)
	}
	return &e, nil
}

func (s *SQLiteStore) ListEnrollmentsByCadence(cadenceID string) ([]models.CadenceEnrollment, error) {
	rows, err := s.db.Query(
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE cadence_id = ? ORDER BY created_at ASC`, cadenceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query enrollments failed: %w", err)
	}
	defer rows.Close()

	var enrollments []models.CadenceEnrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan enrollment failed: %w", err)
		}
		enrollments = append(enrollments, e)
	}
	return enrollments, rows.Err()
}

func (s *SQLiteStore) ClaimDueEnrollments(now time.Time, limit int) ([]models.CadenceEnrollment, error) {
	rows, err := s.db.Query(
		`SELECT `+enrollmentColumns+` FROM enrollments
		 WHERE status = 'active' AND claimed_at IS NULL AND next_step_due IS NOT NULL AND next_step_due <= ?
		 ORDER BY next_step_due ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due enrollments query failed: %w", err)
	}
	defer rows.Close()

	var candidates []models.CadenceEnrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due enrollment failed: %w", err)
		}
		candidates = append(candidates, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim due enrollments iteration failed: %w", err)
	}

	// Claim each candidate with a conditional update. A row a concurrent
	// worker claimed (or a status that changed) between the select and the
	// update simply drops out.
	var claimed []models.CadenceEnrollment
	for i := range candidates {
		res, err := s.db.Exec(
			`UPDATE enrollments SET claimed_at = ?, updated_at = ?
			 WHERE id = ? AND claimed_at IS NULL AND status = 'active'`,
			now, now, candidates[i].ID,
		)
		if err != nil {
			return nil, fmt.Errorf("claim enrollment failed: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 1 {
			claimedAt := now
			candidates[i].ClaimedAt = &claimedAt
			claimed = append(claimed, candidates[i])
		}
	}
	return claimed, nil
}

func (s *SQLiteStore) ReleaseClaim(id string) error {
	_, err := s.db.Exec(`UPDATE enrollments SET claimed_at = NULL, updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("release claim failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RequeueStaleClaims(staleBefore time.Time) (int, error) {
	result, err := s.db.Exec(
		`UPDATE enrollments SET claimed_at = NULL, updated_at = ? WHERE claimed_at IS NOT NULL AND claimed_at < ?`,
		time.Now(), staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale claims failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.RequeueStaleClaims", "requeued", n)
	}
	return int(n), nil
}

func (s *SQLiteStore) UpdateEnrollmentCAS(e models.CadenceEnrollment, expected models.EnrollmentStatus) (bool, error) {
	now := time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("enrollment CAS begin failed: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE enrollments SET status = ?, current_step = ?, retry_count = ?, last_step_at = ?,
			next_step_due = ?, paused_remaining_secs = ?, claimed_at = NULL, updated_at = ?
		 WHERE id = ? AND status = ?`,
		e.Status, e.CurrentStep, e.RetryCount, nilIfZeroTime(e.LastStepAt),
		nilIfZeroTime(e.NextStepDue), int64(e.PausedRemaining/time.Second), now,
		e.ID, expected,
	)
	if err != nil {
		return false, fmt.Errorf("enrollment CAS update failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	// Cached cadence counters move in the same transaction as the transition.
	if expected != e.Status {
		var counterSQL string
		switch e.Status {
		case models.EnrollmentStatusCompleted:
			counterSQL = `UPDATE cadences SET total_completed = total_completed + 1, updated_at = ? WHERE id = ?`
		case models.EnrollmentStatusReplied:
			counterSQL = `UPDATE cadences SET total_replied = total_replied + 1, updated_at = ? WHERE id = ?`
		}
		if counterSQL != "" {
			if _, err := tx.Exec(counterSQL, now, e.CadenceID); err != nil {
				return false, fmt.Errorf("cadence counter update failed: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("enrollment CAS commit failed: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) OverviewStats() (*models.OverviewStats, error) {
	stats := &models.OverviewStats{}
	err := s.db.QueryRow(`SELECT COUNT(*) FROM cadences WHERE status = 'active'`).Scan(&stats.ActiveCadences)
	if err != nil {
		return nil, fmt.Errorf("count active cadences failed: %w", err)
	}
	err = s.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'replied' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0)
		FROM enrollments`).Scan(&stats.TotalEnrolled, &stats.TotalActive, &stats.TotalReplied, &stats.TotalCompleted)
	if err != nil {
		return nil, fmt.Errorf("enrollment overview query failed: %w", err)
	}
	return stats, nil
}

func (s *SQLiteStore) AddReplyClassification(rc *models.ReplyClassification) error {
	if rc.ID == "" {
		rc.ID = util.GenerateClassificationID()
	}
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO reply_classifications (id, enrollment_id, classification, confidence, ai_reasoning, message_body, processed, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rc.ID, rc.EnrollmentID, rc.Classification, rc.Confidence,
		nilIfEmpty(rc.AIReasoning), nilIfEmpty(rc.MessageBody), rc.Processed, rc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert classification failed: %w", err)
	}
	return nil
}

const classificationColumns = `id, enrollment_id, classification, confidence, ai_reasoning, message_body, processed, created_at`

func (s *SQLiteStore) ListRecentClassifications(limit int) ([]models.ReplyClassification, error) {
	return s.queryClassifications(
		`SELECT `+classificationColumns+` FROM reply_classifications ORDER BY created_at DESC LIMIT ?`, limit)
}

func (s *SQLiteStore) ListUnprocessedClassifications(limit int) ([]models.ReplyClassification, error) {
	return s.queryClassifications(
		`SELECT `+classificationColumns+` FROM reply_classifications WHERE processed = 0 ORDER BY created_at ASC LIMIT ?`, limit)
}

func (s *SQLiteStore) queryClassifications(query string, args ...interface{}) ([]models.ReplyClassification, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query classifications failed: %w", err)
	}
	defer rows.Close()

	var out []models.ReplyClassification
	for rows.Next() {
		rc, err := scanClassification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan classification failed: %w", err)
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkClassificationProcessed(id string) error {
	_, err := s.db.Exec(`UPDATE reply_classifications SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark classification processed failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddBlocklistEntry(entry *models.BlocklistEntry) error {
	if entry.ID == "" {
		entry.ID = util.GenerateBlocklistID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO blocklist (id, email, phone, reason, source, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, nilIfEmpty(entry.Email), nilIfEmpty(entry.Phone),
		nilIfEmpty(entry.Reason), nilIfEmpty(entry.Source), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert blocklist entry failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) IsBlocklisted(email, phone string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM blocklist WHERE (email = ? AND ? != '') OR (phone = ? AND ? != '')`,
		email, email, phone, phone,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("blocklist lookup failed: %w", err)
	}
	return count > 0, nil
}

func (s *SQLiteStore) ListBlocklist() ([]models.BlocklistEntry, error) {
	rows, err := s.db.Query(`SELECT id, email, phone, reason, source, created_at FROM blocklist ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query blocklist failed: %w", err)
	}
	defer rows.Close()

	var out []models.BlocklistEntry
	for rows.Next() {
		b, err := scanBlocklistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan blocklist entry failed: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) AddManualTask(task *models.ManualTask) error {
	if task.ID == "" {
		task.ID = util.GenerateTaskID()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO manual_tasks (id, cadence_id, enrollment_id, channel, title, notes, done, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.CadenceID, task.EnrollmentID, task.Channel, task.Title,
		nilIfEmpty(task.Notes), task.Done, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert manual task failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListManualTasksByCadence(cadenceID string) ([]models.ManualTask, error) {
	rows, err := s.db.Query(
		`SELECT id, cadence_id, enrollment_id, channel, title, notes, done, created_at
		 FROM manual_tasks WHERE cadence_id = ? ORDER BY created_at ASC`, cadenceID,
	)
	if err != nil {
		return nil, fmt.Errorf("query manual tasks failed: %w", err)
	}
	defer rows.Close()

	var out []models.ManualTask
	for rows.Next() {
		t, err := scanManualTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan manual task failed: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
