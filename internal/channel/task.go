package channel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/salesloop/salesloop/internal/models"
)

// TaskRecorder is the slice of the store the manual-channel adapter needs.
type TaskRecorder interface {
	AddManualTask(task *models.ManualTask) error
}

// TaskAdapter handles the manual channels (call, task, linkedin_manual).
// Dispatching a manual step means recording a task for a human; recording
// the task is the delivery.
type TaskAdapter struct {
	channel models.Channel
	tasks   TaskRecorder
}

// NewTaskAdapter creates an adapter for one manual channel.
func NewTaskAdapter(ch models.Channel, tasks TaskRecorder) *TaskAdapter {
	return &TaskAdapter{channel: ch, tasks: tasks}
}

func (a *TaskAdapter) Channel() models.Channel {
	return a.channel
}

func (a *TaskAdapter) Simulated() bool {
	return false
}

func (a *TaskAdapter) Send(ctx context.Context, subject *models.Subject, step RenderedStep) (*SendResult, error) {
	task := &models.ManualTask{
		CadenceID:    step.Step.CadenceID,
		Channel:      a.channel,
		Title:        fmt.Sprintf("%s: %s", a.channel, subject.Name),
		Notes:        step.Body,
		EnrollmentID: enrollmentIDFromContext(ctx),
	}
	if err := a.tasks.AddManualTask(task); err != nil {
		return nil, Transient(fmt.Errorf("failed to record manual task: %w", err))
	}
	slog.Debug("TaskAdapter.Send recorded task", "channel", a.channel, "taskID", task.ID)
	return &SendResult{ExternalID: task.ID}, nil
}

type contextKey string

const enrollmentIDKey contextKey = "enrollmentID"

// WithEnrollmentID tags the send context with the enrollment being
// dispatched so manual tasks can reference it.
func WithEnrollmentID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, enrollmentIDKey, id)
}

func enrollmentIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(enrollmentIDKey).(string); ok {
		return v
	}
	return ""
}
