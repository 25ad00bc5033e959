// Package compliance enforces outbound sending policy: the opt-out blocklist
// and per-domain/per-day email rate limits. The engine consults the guard
// before every dispatch; a denial is policy, not an error in the send path.
package compliance

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/salesloop/salesloop/internal/models"
)

var (
	// ErrBlocklisted indicates the subject opted out of all outreach.
	ErrBlocklisted = errors.New("subject is blocklisted")
	// ErrRateLimited indicates an email send would exceed the configured window.
	ErrRateLimited = errors.New("email rate limit reached")
)

// BlocklistChecker is the slice of the store the guard needs.
type BlocklistChecker interface {
	IsBlocklisted(email, phone string) (bool, error)
}

// Guard applies the compliance policy. Rate counters are per-process and
// in-memory; the cron scheduler resets them on window boundaries.
type Guard struct {
	cfg   models.ComplianceConfig
	store BlocklistChecker

	mu          sync.Mutex
	hourlySends map[string]int // recipient domain -> sends this hour
	dailySends  int
}

// NewGuard creates a compliance guard backed by the given blocklist store.
func NewGuard(cfg models.ComplianceConfig, store BlocklistChecker) *Guard {
	return &Guard{
		cfg:         cfg,
		store:       store,
		hourlySends: make(map[string]int),
	}
}

// Approve checks the subject against the opt-out blocklist. It returns
// ErrBlocklisted when the subject's email or phone has opted out.
func (g *Guard) Approve(subject *models.Subject) error {
	if !g.cfg.Enabled {
		return nil
	}
	if subject.Email == "" && subject.Phone == "" {
		return nil
	}
	blocked, err := g.store.IsBlocklisted(subject.Email, subject.Phone)
	if err != nil {
		return fmt.Errorf("blocklist lookup failed: %w", err)
	}
	if blocked {
		slog.Info("Guard.Approve: subject blocklisted", "kind", subject.Kind, "subjectID", subject.ID)
		return ErrBlocklisted
	}
	return nil
}

// ReserveEmailSend increments the hourly and daily counters for the
// recipient's domain, rolling back and returning ErrRateLimited if either
// window is already full. A successful reservation must be paired with
// ReleaseEmailSend if the send subsequently fails.
func (g *Guard) ReserveEmailSend(email string) error {
	if !g.cfg.Enabled {
		return nil
	}
	domain := emailDomain(email)

	g.mu.Lock()
	defer g.mu.Unlock()

	g.hourlySends[domain]++
	g.dailySends++
	if g.cfg.MaxEmailsPerHourPerDomain > 0 && g.hourlySends[domain] > g.cfg.MaxEmailsPerHourPerDomain {
		g.hourlySends[domain]--
		g.dailySends--
		slog.Debug("Guard.ReserveEmailSend: hourly domain limit reached", "domain", domain)
		return ErrRateLimited
	}
	if g.cfg.MaxEmailsPerDay > 0 && g.dailySends > g.cfg.MaxEmailsPerDay {
		g.hourlySends[domain]--
		g.dailySends--
		slog.Debug("Guard.ReserveEmailSend: daily limit reached", "sends", g.dailySends)
		return ErrRateLimited
	}
	return nil
}

// ReleaseEmailSend returns a reservation after a failed send so the failure
// does not consume quota.
func (g *Guard) ReleaseEmailSend(email string) {
	if !g.cfg.Enabled {
		return
	}
	domain := emailDomain(email)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.hourlySends[domain] > 0 {
		g.hourlySends[domain]--
	}
	if g.dailySends > 0 {
		g.dailySends--
	}
}

// ResetHourlyWindows clears the per-domain hourly counters.
func (g *Guard) ResetHourlyWindows() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hourlySends = make(map[string]int)
	slog.Debug("Guard.ResetHourlyWindows: counters cleared")
}

// ResetDailyWindow clears the daily send counter.
func (g *Guard) ResetDailyWindow() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dailySends = 0
	slog.Debug("Guard.ResetDailyWindow: counter cleared")
}

// SoftBounceRetryCount exposes the configured retry ceiling.
func (g *Guard) SoftBounceRetryCount() int {
	return g.cfg.SoftBounceRetryCount
}

func emailDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return strings.ToLower(email[i+1:])
	}
	return strings.ToLower(email)
}
