package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/salesloop/salesloop/internal/models"
	"github.com/salesloop/salesloop/internal/util"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// Close closes the PostgreSQL database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateCadence(c *models.Cadence) error {
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
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.Name, nilIfEmpty(c.Description), c.Status, nilIfEmpty(c.CreatedBy),
		c.TotalEnrolled, c.TotalCompleted, c.TotalReplied, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert cadence failed: %w", err)
	}
	if err := insertStepsPostgres(tx, c); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create cadence commit failed: %w", err)
	}
	return nil
}

func insertStepsPostgres(tx *sql.Tx, c *models.Cadence) error {
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
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			step.ID, c.ID, step.StepOrder, step.DelayDays, step.DelayHours,
			step.Channel, nilIfEmpty(step.TemplateSubject), step.TemplateBody, skip,
		)
		if err != nil {
			return fmt.Errorf("insert cadence step failed: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) GetCadence(id string) (*models.Cadence, error) {
	row := s.db.QueryRow(
		`SELECT id, name, description, status, created_by, total_enrolled, total_completed, total_replied, created_at, updated_at
		 FROM cadences WHERE id = $1`, id,
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

func (s *PostgresStore) loadSteps(c *models.Cadence) error {
	rows, err := s.db.Query(
		`SELECT id, cadence_id, step_order, delay_days, delay_hours, channel, template_subject, template_body, condition_skip
		 FROM cadence_steps WHERE cadence_id = $1 ORDER BY step_order ASC`, c.ID,
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

func (s *PostgresStore) ListCadences() ([]models.Cadence, error) {
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

func (s *PostgresStore) UpdateCadence(c *models.Cadence) error {
	c.UpdatedAt = time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("update cadence begin failed: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE cadences SET name = $1, description = $2, status = $3, updated_at = $4 WHERE id = $5`,
		c.Name, nilIfEmpty(c.Description), c.Status, c.UpdatedAt, c.ID,
	)
	if err != nil {
		return fmt.Errorf("update cadence failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrCadenceNotFound
	}
	if _, err := tx.Exec(`DELETE FROM cadence_steps WHERE cadence_id = $1`, c.ID); err != nil {
		return fmt.Errorf("delete cadence steps failed: %w", err)
	}
	if err := insertStepsPostgres(tx, c); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update cadence commit failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteCadence(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("delete cadence begin failed: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.Exec(`DELETE FROM cadence_steps WHERE cadence_id = $1`, id); err != nil {
		return fmt.Errorf("delete cadence steps failed: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM cadences WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete cadence failed: %w", err)
	}
	return tx.Commit()
}

func (s *PostgresStore) ReconcileCadenceCounters() error {
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

func (s *PostgresStore) UpsertSubject(subj models.Subject) error {
	fields, err := marshalFields(subj.Fields)
	if err != nil {
		return err
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO subjects (kind, id, name, company, email, phone, title, fields, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (kind, id) DO UPDATE SET
			name = EXCLUDED.name, company = EXCLUDED.company, email = EXCLUDED.email,
			phone = EXCLUDED.phone, title = EXCLUDED.title, fields = EXCLUDED.fields,
			updated_at = EXCLUDED.updated_at`,
		subj.Kind, subj.ID, nilIfEmpty(subj.Name), nilIfEmpty(subj.Company), nilIfEmpty(subj.Email),
		nilIfEmpty(subj.Phone), nilIfEmpty(subj.Title), fields, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert subject failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSubject(kind models.SubjectKind, id string) (*models.Subject, error) {
	var subj models.Subject
	var name, company, email, phone, title, fields sql.NullString
	err := s.db.QueryRow(
		`SELECT kind, id, name, company, email, phone, title, fields, created_at, updated_at
		 FROM subjects WHERE kind = $1 AND id = $2`, kind, id,
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

func (s *PostgresStore) CreateEnrollment(e *models.CadenceEnrollment) error {
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

	var existingID string
	err = tx.QueryRow(
		`SELECT id FROM enrollments
		 WHERE cadence_id = $1 AND COALESCE(lead_id, '') = $2 AND COALESCE(contact_id, '') = $3
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
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NULL, $12, $13)`,
		e.ID, e.CadenceID, nilIfEmpty(e.LeadID), nilIfEmpty(e.ContactID), e.CurrentStep, e.Status, e.RetryCount,
		e.StartedAt, nilIfZeroTime(e.LastStepAt), nilIfZeroTime(e.NextStepDue),
		int64(e.PausedRemaining/time.Second), e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert enrollment failed: %w", err)
	}
	if _, err := tx.Exec(
		`UPDATE cadences SET total_enrolled = total_enrolled + 1, updated_at = $1 WHERE id = $2`,
		now, e.CadenceID,
	); err != nil {
		return fmt.Errorf("increment total_enrolled failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create enrollment commit failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetEnrollment(id string) (*models.CadenceEnrollment, error) {
	row := s.db.QueryRow(`SELECT `+enrollmentColumns+` FROM enrollments WHERE id = $1`, id)
	e, err := scanEnrollment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get enrollment failed: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) ListEnrollmentsByCadence(cadenceID string) ([]models.CadenceEnrollment, error) {
	rows, err := s.db.Query(
		`SELECT `+enrollmentColumns+` FROM enrollments WHERE cadence_id = $1 ORDER BY created_at ASC`, cadenceID,
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

func (s *PostgresStore) ClaimDueEnrollments(now time.Time, limit int) ([]models.CadenceEnrollment, error) {
	// Claim and return in one statement. The subquery's FOR UPDATE SKIP
	// LOCKED keeps concurrent pollers from claiming the same rows.
	rows, err := s.db.Query(
		`UPDATE enrollments SET claimed_at = $1, updated_at = $1
		 WHERE id IN (
			SELECT id FROM enrollments
			WHERE status = 'active' AND claimed_at IS NULL AND next_step_due IS NOT NULL AND next_step_due <= $1
			ORDER BY next_step_due ASC LIMIT $2
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+enrollmentColumns,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due enrollments failed: %w", err)
	}
	defer rows.Close()

	var claimed []models.CadenceEnrollment
	for rows.Next() {
		e, err := scanEnrollment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claimed enrollment failed: %w", err)
		}
		claimed = append(claimed, e)
	}
	return claimed, rows.Err()
}

func (s *PostgresStore) ReleaseClaim(id string) error {
	_, err := s.db.Exec(`UPDATE enrollments SET claimed_at = NULL, updated_at = $1 WHERE id = $2`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("release claim failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) RequeueStaleClaims(staleBefore time.Time) (int, error) {
	result, err := s.db.Exec(
		`UPDATE enrollments SET claimed_at = NULL, updated_at = $1 WHERE claimed_at IS NOT NULL AND claimed_at < $2`,
		time.Now(), staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale claims failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("PostgresStore.RequeueStaleClaims", "requeued", n)
	}
	return int(n), nil
}

func (s *PostgresStore) UpdateEnrollmentCAS(e models.CadenceEnrollment, expected models.EnrollmentStatus) (bool, error) {
	now := time.Now()

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("enrollment CAS begin failed: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE enrollments SET status = $1, current_step = $2, retry_count = $3, last_step_at = $4,
			next_step_due = $5, paused_remaining_secs = $6, claimed_at = NULL, updated_at = $7
		 WHERE id = $8 AND status = $9`,
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

	if expected != e.Status {
		var counterSQL string
		switch e.Status {
		case models.EnrollmentStatusCompleted:
			counterSQL = `UPDATE cadences SET total_completed = total_completed + 1, updated_at = $1 WHERE id = $2`
		case models.EnrollmentStatusReplied:
			counterSQL = `UPDATE cadences SET total_replied = total_replied + 1, updated_at = $1 WHERE id = $2`
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

func (s *PostgresStore) OverviewStats() (*models.OverviewStats, error) {
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

func (s *PostgresStore) AddReplyClassification(rc *models.ReplyClassification) error {
	if rc.ID == "" {
		rc.ID = util.GenerateClassificationID()
	}
	if rc.CreatedAt.IsZero() {
		rc.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO reply_classifications (id, enrollment_id, classification, confidence, ai_reasoning, message_body, processed, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rc.ID, rc.EnrollmentID, rc.Classification, rc.Confidence,
		nilIfEmpty(rc.AIReasoning), nilIfEmpty(rc.MessageBody), rc.Processed, rc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert classification failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecentClassifications(limit int) ([]models.ReplyClassification, error) {
	return s.queryClassifications(
		`SELECT `+classificationColumns+` FROM reply_classifications ORDER BY created_at DESC LIMIT $1`, limit)
}

func (s *PostgresStore) ListUnprocessedClassifications(limit int) ([]models.ReplyClassification, error) {
	return s.queryClassifications(
		`SELECT `+classificationColumns+` FROM reply_classifications WHERE processed = FALSE ORDER BY created_at ASC LIMIT $1`, limit)
}

func (s *PostgresStore) queryClassifications(query string, args ...interface{}) ([]models.ReplyClassification, error) {
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

func (s *PostgresStore) MarkClassificationProcessed(id string) error {
	_, err := s.db.Exec(`UPDATE reply_classifications SET processed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark classification processed failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddBlocklistEntry(entry *models.BlocklistEntry) error {
	if entry.ID == "" {
		entry.ID = util.GenerateBlocklistID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO blocklist (id, email, phone, reason, source, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, nilIfEmpty(entry.Email), nilIfEmpty(entry.Phone),
		nilIfEmpty(entry.Reason), nilIfEmpty(entry.Source), entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert blocklist entry failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsBlocklisted(email, phone string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM blocklist WHERE (email = $1 AND $1 != '') OR (phone = $2 AND $2 != '')`,
		email, phone,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("blocklist lookup failed: %w", err)
	}
	return count > 0, nil
}

func (s *PostgresStore) ListBlocklist() ([]models.BlocklistEntry, error) {
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

func (s *PostgresStore) AddManualTask(task *models.ManualTask) error {
	if task.ID == "" {
		task.ID = util.GenerateTaskID()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO manual_tasks (id, cadence_id, enrollment_id, channel, title, notes, done, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		task.ID, task.CadenceID, task.EnrollmentID, task.Channel, task.Title,
		nilIfEmpty(task.Notes), task.Done, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert manual task failed: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListManualTasksByCadence(cadenceID string) ([]models.ManualTask, error) {
	rows, err := s.db.Query(
		`SELECT id, cadence_id, enrollment_id, channel, title, notes, done, created_at
		 FROM manual_tasks WHERE cadence_id = $1 ORDER BY created_at ASC`, cadenceID,
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
