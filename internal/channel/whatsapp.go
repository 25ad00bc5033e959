package channel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/salesloop/salesloop/internal/models"
	"github.com/salesloop/salesloop/internal/whatsapp"
)

// WhatsAppAdapter delivers whatsapp steps through any Sender (a live
// whatsmeow session or the Twilio client). A nil sender runs simulated.
type WhatsAppAdapter struct {
	sender whatsapp.Sender
}

func NewWhatsAppAdapter(sender whatsapp.Sender) *WhatsAppAdapter {
	return &WhatsAppAdapter{sender: sender}
}

func (a *WhatsAppAdapter) Channel() models.Channel {
	return models.ChannelWhatsApp
}

func (a *WhatsAppAdapter) Simulated() bool {
	return a.sender == nil
}

func (a *WhatsAppAdapter) Send(ctx context.Context, subject *models.Subject, step RenderedStep) (*SendResult, error) {
	if subject.Phone == "" {
		return nil, Permanent(fmt.Errorf("subject %s has no phone number", subject.ID))
	}
	if a.sender == nil {
		slog.Info("WhatsAppAdapter.Send: simulated delivery", "to", subject.Phone)
		return &SendResult{}, nil
	}
	if err := a.sender.SendMessage(ctx, subject.Phone, step.Body); err != nil {
		return nil, Transient(fmt.Errorf("whatsapp delivery failed: %w", err))
	}
	return &SendResult{}, nil
}
