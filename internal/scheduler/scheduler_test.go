package scheduler

import (
	"testing"
	"time"
)

func TestSchedulerAddJob(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := s.AddJob("* * * * *", func() {}); err != nil {
		t.Errorf("Expected no error adding job, got %v", err)
	}
	if err := s.AddJob("not a cron expr", func() {}); err == nil {
		t.Error("Expected error for invalid cron expression")
	}
}

type fakeGuard struct{}

func (fakeGuard) ResetHourlyWindows() {}
func (fakeGuard) ResetDailyWindow()   {}

type fakeMaintStore struct{}

func (fakeMaintStore) ReconcileCadenceCounters() error           { return nil }
func (fakeMaintStore) RequeueStaleClaims(time.Time) (int, error) { return 0, nil }

func TestRegisterMaintenance(t *testing.T) {
	s := NewScheduler()
	defer s.Stop()
	if err := RegisterMaintenance(s, fakeGuard{}, fakeMaintStore{}, 10*time.Minute); err != nil {
		t.Errorf("RegisterMaintenance failed: %v", err)
	}
}
