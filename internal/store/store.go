// Package store provides storage backends for Salesloop.
//
// It includes an in-memory store for tests and demos, plus SQLite and
// PostgreSQL backends for persistent deployments. All backends implement the
// same Store interface, including the claim and compare-and-set primitives
// the dispatch engine relies on for at-most-once step delivery.
package store

import (
	"strings"
	"time"

	"github.com/salesloop/salesloop/internal/models"
)

// Store is the persistence contract shared by all backends.
type Store interface {
	// Cadence definitions
	CreateCadence(c *models.Cadence) error
	GetCadence(id string) (*models.Cadence, error)
	ListCadences() ([]models.Cadence, error)
	UpdateCadence(c *models.Cadence) error
	DeleteCadence(id string) error
	// ReconcileCadenceCounters recomputes the cached cadence counters from the
	// enrollment rows. The cached values are a read-model, never authoritative.
	ReconcileCadenceCounters() error

	// Subjects (leads and contacts)
	UpsertSubject(s models.Subject) error
	GetSubject(kind models.SubjectKind, id string) (*models.Subject, error)

	// Enrollments
	CreateEnrollment(e *models.CadenceEnrollment) error
	GetEnrollment(id string) (*models.CadenceEnrollment, error)
	ListEnrollmentsByCadence(cadenceID string) ([]models.CadenceEnrollment, error)

	// ClaimDueEnrollments marks up to limit active enrollments whose
	// next_step_due <= now as claimed and returns them. A row already claimed
	// by a concurrent worker is never returned twice.
	ClaimDueEnrollments(now time.Time, limit int) ([]models.CadenceEnrollment, error)

	// ReleaseClaim clears the claim marker without changing any other field.
	ReleaseClaim(id string) error

	// RequeueStaleClaims releases claims held since before staleBefore
	// (crash recovery).
	RequeueStaleClaims(staleBefore time.Time) (int, error)

	// UpdateEnrollmentCAS applies e's mutable fields (status, current step,
	// retry count, timestamps) if and only if the stored status still equals
	// expected, releasing any claim in the same write. It returns false when
	// the status changed underneath, in which case nothing was written.
	// Transitions into completed or replied update the parent cadence's
	// cached counters in the same transaction.
	UpdateEnrollmentCAS(e models.CadenceEnrollment, expected models.EnrollmentStatus) (bool, error)

	// OverviewStats derives the reporting counters from the enrollment rows.
	OverviewStats() (*models.OverviewStats, error)

	// Reply classifications
	AddReplyClassification(rc *models.ReplyClassification) error
	ListRecentClassifications(limit int) ([]models.ReplyClassification, error)
	ListUnprocessedClassifications(limit int) ([]models.ReplyClassification, error)
	MarkClassificationProcessed(id string) error

	// Opt-out blocklist
	AddBlocklistEntry(entry *models.BlocklistEntry) error
	IsBlocklisted(email, phone string) (bool, error)
	ListBlocklist() ([]models.BlocklistEntry, error)

	// Manual tasks produced by call/task/linkedin_manual steps
	AddManualTask(task *models.ManualTask) error
	ListManualTasksByCadence(cadenceID string) ([]models.ManualTask, error)

	Close() error
}

// Opts holds configuration options for store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for store backends.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType determines whether a DSN refers to PostgreSQL or SQLite.
// PostgreSQL DSNs use URL or key=value forms; anything else is treated as a
// SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}
