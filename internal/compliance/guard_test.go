package compliance

import (
	"sync"
	"testing"

	"github.com/salesloop/salesloop/internal/models"
)

type fakeBlocklist struct {
	blocked map[string]bool
}

func (f *fakeBlocklist) IsBlocklisted(email, phone string) (bool, error) {
	return f.blocked[email] || f.blocked[phone], nil
}

func enabledConfig() models.ComplianceConfig {
	return models.ComplianceConfig{
		Enabled:                   true,
		MaxEmailsPerHourPerDomain: 2,
		MaxEmailsPerDay:           3,
		SoftBounceRetryCount:      3,
	}
}

func TestApproveBlocklisted(t *testing.T) {
	bl := &fakeBlocklist{blocked: map[string]bool{"optout@example.com": true}}
	g := NewGuard(enabledConfig(), bl)

	err := g.Approve(&models.Subject{ID: "l1", Email: "optout@example.com"})
	if err != ErrBlocklisted {
		t.Errorf("Approve blocklisted = %v, want ErrBlocklisted", err)
	}
	if err := g.Approve(&models.Subject{ID: "l2", Email: "clean@example.com"}); err != nil {
		t.Errorf("Approve clean subject = %v, want nil", err)
	}
	// No contact details means nothing to match against.
	if err := g.Approve(&models.Subject{ID: "l3"}); err != nil {
		t.Errorf("Approve subject without contact info = %v, want nil", err)
	}
}

func TestApproveDisabledBypassesBlocklist(t *testing.T) {
	bl := &fakeBlocklist{blocked: map[string]bool{"optout@example.com": true}}
	g := NewGuard(models.ComplianceConfig{Enabled: false}, bl)
	if err := g.Approve(&models.Subject{Email: "optout@example.com"}); err != nil {
		t.Errorf("disabled guard should approve everything, got %v", err)
	}
}

func TestReserveEmailSendHourlyDomainLimit(t *testing.T) {
	g := NewGuard(enabledConfig(), &fakeBlocklist{})

	if err := g.ReserveEmailSend("a@acme.com"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := g.ReserveEmailSend("b@acme.com"); err != nil {
		t.Fatalf("second send: %v", err)
	}
	if err := g.ReserveEmailSend("c@acme.com"); err != ErrRateLimited {
		t.Errorf("third send to same domain = %v, want ErrRateLimited", err)
	}
	// Other domains still have headroom within the daily budget.
	if err := g.ReserveEmailSend("a@other.com"); err != nil {
		t.Errorf("send to different domain = %v, want nil", err)
	}
	// Daily budget of 3 is now exhausted.
	if err := g.ReserveEmailSend("b@other.com"); err != ErrRateLimited {
		t.Errorf("fourth overall send = %v, want ErrRateLimited", err)
	}
}

func TestReleaseEmailSendReturnsQuota(t *testing.T) {
	g := NewGuard(enabledConfig(), &fakeBlocklist{})
	g.ReserveEmailSend("a@acme.com")
	g.ReserveEmailSend("b@acme.com")
	if err := g.ReserveEmailSend("c@acme.com"); err != ErrRateLimited {
		t.Fatalf("expected hourly limit, got %v", err)
	}
	g.ReleaseEmailSend("a@acme.com")
	if err := g.ReserveEmailSend("c@acme.com"); err != nil {
		t.Errorf("send after release = %v, want nil", err)
	}
}

func TestWindowResets(t *testing.T) {
	g := NewGuard(enabledConfig(), &fakeBlocklist{})
	g.ReserveEmailSend("a@acme.com")
	g.ReserveEmailSend("b@acme.com")

	g.ResetHourlyWindows()
	if err := g.ReserveEmailSend("c@acme.com"); err != nil {
		t.Errorf("send after hourly reset = %v, want nil", err)
	}
	// Daily counter survived the hourly reset: 3 sends so far.
	if err := g.ReserveEmailSend("a@other.com"); err != ErrRateLimited {
		t.Errorf("send past daily budget = %v, want ErrRateLimited", err)
	}
	g.ResetDailyWindow()
	if err := g.ReserveEmailSend("a@other.com"); err != nil {
		t.Errorf("send after daily reset = %v, want nil", err)
	}
}

// Reservations must stay within budget under concurrent callers.
func TestReserveEmailSendConcurrent(t *testing.T) {
	cfg := models.ComplianceConfig{Enabled: true, MaxEmailsPerHourPerDomain: 10, MaxEmailsPerDay: 10}
	g := NewGuard(cfg, &fakeBlocklist{})

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.ReserveEmailSend("x@acme.com"); err == nil {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if granted != 10 {
		t.Errorf("granted %d reservations, want exactly 10", granted)
	}
}

func TestEmailDomain(t *testing.T) {
	cases := map[string]string{
		"User@Acme.COM": "acme.com",
		"plainstring":   "plainstring",
		"a@b@c.com":     "c.com",
	}
	for in, want := range cases {
		if got := emailDomain(in); got != want {
			t.Errorf("emailDomain(%q) = %q, want %q", in, got, want)
		}
	}
}
