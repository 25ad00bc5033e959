package render

import (
	"testing"

	"github.com/salesloop/salesloop/internal/models"
)

func TestRender_Substitution(t *testing.T) {
	subject := models.Subject{Name: "Ada", Company: "Initech", Fields: map[string]string{"industry": "software"}}

	got := Render("Hi {{name}}, saw {{company}} is hiring in {{industry}}.", subject)
	want := "Hi Ada, saw Initech is hiring in software."
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestRender_MissingFieldsRenderEmpty(t *testing.T) {
	got := Render("Hello {{name}}{{nickname}}!", models.Subject{Name: "Ada"})
	if got != "Hello Ada!" {
		t.Errorf("expected missing field to render empty, got %q", got)
	}
}

func TestRender_NoPlaceholders(t *testing.T) {
	body := "plain text with no fields"
	if got := Render(body, models.Subject{}); got != body {
		t.Errorf("expected passthrough, got %q", got)
	}
}

func TestRender_WhitespaceInsidePlaceholder(t *testing.T) {
	if got := Render("{{ name }}", models.Subject{Name: "Ada"}); got != "Ada" {
		t.Errorf("expected whitespace-tolerant placeholder, got %q", got)
	}
}

func TestStep(t *testing.T) {
	step := models.CadenceStep{
		Channel:         models.ChannelEmail,
		TemplateSubject: "Quick question, {{name}}",
		TemplateBody:    "Is {{company}} still evaluating?",
	}
	subj, body := Step(step, models.Subject{Name: "Ada", Company: "Initech"})
	if subj != "Quick question, Ada" {
		t.Errorf("unexpected subject %q", subj)
	}
	if body != "Is Initech still evaluating?" {
		t.Errorf("unexpected body %q", body)
	}
}
