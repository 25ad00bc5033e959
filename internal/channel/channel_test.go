package channel

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"

	"github.com/salesloop/salesloop/internal/models"
	"github.com/salesloop/salesloop/internal/whatsapp"
)

func TestIsRetryable(t *testing.T) {
	if IsRetryable(Permanent(errors.New("bounce"))) {
		t.Error("permanent error should not be retryable")
	}
	if !IsRetryable(Transient(errors.New("timeout"))) {
		t.Error("transient error should be retryable")
	}
	// Unknown errors default to retryable.
	if !IsRetryable(errors.New("something else")) {
		t.Error("unknown error should default to retryable")
	}
	wrapped := fmt.Errorf("send failed: %w", Permanent(errors.New("bounce")))
	if IsRetryable(wrapped) {
		t.Error("wrapped permanent error should not be retryable")
	}
}

func TestEmailAdapterSimulated(t *testing.T) {
	a := NewEmailAdapter(SMTPConfig{})
	if !a.Simulated() {
		t.Fatal("adapter without SMTP host should be simulated")
	}
	res, err := a.Send(context.Background(), &models.Subject{ID: "l1", Email: "x@example.com"},
		RenderedStep{Subject: "Hi", Body: "Hello"})
	if err != nil {
		t.Fatalf("simulated send failed: %v", err)
	}
	if res.ExternalID != "" {
		t.Error("simulated send should not fabricate a message id")
	}
}

func TestEmailAdapterMissingAddress(t *testing.T) {
	a := NewEmailAdapter(SMTPConfig{})
	_, err := a.Send(context.Background(), &models.Subject{ID: "l1"}, RenderedStep{Body: "hi"})
	if err == nil || IsRetryable(err) {
		t.Errorf("missing address should be a permanent failure, got %v", err)
	}
}

func TestEmailAdapterSMTPErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		sendErr   error
		retryable bool
	}{
		{"hard bounce", &textproto.Error{Code: 550, Msg: "no such user"}, false},
		{"mailbox busy", &textproto.Error{Code: 450, Msg: "try again"}, true},
		{"connection refused", errors.New("dial tcp: connection refused"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewEmailAdapter(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "sdr@example.com"})
			a.sendMail = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
				return tc.sendErr
			}
			_, err := a.Send(context.Background(), &models.Subject{ID: "l1", Email: "x@example.com"},
				RenderedStep{Subject: "Hi", Body: "Hello"})
			if err == nil {
				t.Fatal("expected send error")
			}
			if got := IsRetryable(err); got != tc.retryable {
				t.Errorf("retryable = %v, want %v", got, tc.retryable)
			}
		})
	}
}

func TestEmailAdapterSendsHeaders(t *testing.T) {
	a := NewEmailAdapter(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "sdr@example.com"})
	var gotTo []string
	var gotMsg []byte
	a.sendMail = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		gotTo = to
		gotMsg = msg
		return nil
	}
	res, err := a.Send(context.Background(), &models.Subject{ID: "l1", Email: "x@example.com"},
		RenderedStep{Subject: "Quick question", Body: "Hello there"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if res.ExternalID == "" {
		t.Error("real send should carry a message id")
	}
	if len(gotTo) != 1 || gotTo[0] != "x@example.com" {
		t.Errorf("to = %v", gotTo)
	}
	msg := string(gotMsg)
	for _, want := range []string{"Subject: Quick question", "To: x@example.com", "Hello there"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestWhatsAppAdapter(t *testing.T) {
	mock := whatsapp.NewMockClient()
	a := NewWhatsAppAdapter(mock)
	if a.Simulated() {
		t.Error("adapter with a sender should not be simulated")
	}
	_, err := a.Send(context.Background(), &models.Subject{ID: "l1", Phone: "15551234"},
		RenderedStep{Body: "hello"})
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(mock.Sent) != 1 || mock.Sent[0] != "15551234" {
		t.Errorf("sent = %v", mock.Sent)
	}

	_, err = a.Send(context.Background(), &models.Subject{ID: "l2"}, RenderedStep{Body: "hello"})
	if err == nil || IsRetryable(err) {
		t.Errorf("missing phone should be permanent, got %v", err)
	}
}

type fakeTaskStore struct {
	tasks []*models.ManualTask
	err   error
}

func (f *fakeTaskStore) AddManualTask(task *models.ManualTask) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, task)
	return nil
}

func TestTaskAdapterRecordsTask(t *testing.T) {
	ts := &fakeTaskStore{}
	a := NewTaskAdapter(models.ChannelCall, ts)

	ctx := WithEnrollmentID(context.Background(), "enr_1")
	step := RenderedStep{
		Step: models.CadenceStep{CadenceID: "cad_1", StepOrder: 2, Channel: models.ChannelCall},
		Body: "Call about renewal",
	}
	_, err := a.Send(ctx, &models.Subject{ID: "l1", Name: "Ada"}, step)
	if err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if len(ts.tasks) != 1 {
		t.Fatalf("recorded %d tasks, want 1", len(ts.tasks))
	}
	task := ts.tasks[0]
	if task.CadenceID != "cad_1" || task.EnrollmentID != "enr_1" || task.Channel != models.ChannelCall {
		t.Errorf("task = %+v", task)
	}
	if task.Notes != "Call about renewal" {
		t.Errorf("notes = %q", task.Notes)
	}
}

func TestTaskAdapterStoreError(t *testing.T) {
	ts := &fakeTaskStore{err: errors.New("db down")}
	a := NewTaskAdapter(models.ChannelTask, ts)
	_, err := a.Send(context.Background(), &models.Subject{ID: "l1"}, RenderedStep{})
	if err == nil || !IsRetryable(err) {
		t.Errorf("store failure should be transient, got %v", err)
	}
}

func TestRegistry(t *testing.T) {
	email := NewEmailAdapter(SMTPConfig{})
	r := NewRegistry(email, NewTaskAdapter(models.ChannelCall, &fakeTaskStore{}))

	a, err := r.For(models.ChannelEmail)
	if err != nil || a.Channel() != models.ChannelEmail {
		t.Errorf("For(email) = %v, %v", a, err)
	}
	if _, err := r.For(models.ChannelWhatsApp); err == nil {
		t.Error("unregistered channel should error")
	}
}
