package models

import (
	"errors"
	"testing"
	"time"
)

func validCadence() Cadence {
	return Cadence{
		ID:     "cad_1",
		Name:   "New Lead Follow-up",
		Status: CadenceStatusActive,
		Steps: []CadenceStep{
			{StepOrder: 1, Channel: ChannelEmail, TemplateSubject: "Hi {{name}}", TemplateBody: "Hello {{name}} from {{company}}"},
			{StepOrder: 2, DelayDays: 2, Channel: ChannelWhatsApp, TemplateBody: "Following up"},
			{StepOrder: 3, DelayDays: 1, Channel: ChannelCall, TemplateBody: "Call {{name}}"},
		},
	}
}

func TestCadenceValidate_OK(t *testing.T) {
	c := validCadence()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid cadence, got %v", err)
	}
}

func TestCadenceValidate_StepOrderInvariant(t *testing.T) {
	cases := []struct {
		name   string
		orders []int
	}{
		{"gap", []int{1, 3, 4}},
		{"duplicate", []int{1, 2, 2}},
		{"zero", []int{0, 1, 2}},
	}
	for _, tc := range cases {
		c := validCadence()
		for i, o := range tc.orders {
			c.Steps[i].StepOrder = o
		}
		if err := c.Validate(); !errors.Is(err, ErrStepOrderNotContiguous) {
			t.Errorf("%s: expected ErrStepOrderNotContiguous, got %v", tc.name, err)
		}
	}
}

func TestCadenceValidate_StepFields(t *testing.T) {
	c := validCadence()
	c.Steps[1].DelayHours = -1
	if err := c.Validate(); !errors.Is(err, ErrNegativeDelay) {
		t.Errorf("expected ErrNegativeDelay, got %v", err)
	}

	c = validCadence()
	c.Steps[1].TemplateSubject = "not allowed"
	if err := c.Validate(); !errors.Is(err, ErrSubjectOnNonEmailStep) {
		t.Errorf("expected ErrSubjectOnNonEmailStep, got %v", err)
	}

	c = validCadence()
	c.Steps[0].Channel = "carrier_pigeon"
	if err := c.Validate(); !errors.Is(err, ErrInvalidChannel) {
		t.Errorf("expected ErrInvalidChannel, got %v", err)
	}

	c = validCadence()
	c.Steps = nil
	if err := c.Validate(); !errors.Is(err, ErrNoSteps) {
		t.Errorf("expected ErrNoSteps, got %v", err)
	}
}

func TestStepDelay(t *testing.T) {
	s := CadenceStep{DelayDays: 2, DelayHours: 3}
	want := 51 * time.Hour
	if got := s.Delay(); got != want {
		t.Errorf("expected delay %v, got %v", want, got)
	}
}

func TestStepAt(t *testing.T) {
	c := validCadence()
	if s := c.StepAt(2); s == nil || s.Channel != ChannelWhatsApp {
		t.Errorf("expected whatsapp step at order 2, got %+v", s)
	}
	if s := c.StepAt(4); s != nil {
		t.Errorf("expected nil for missing order, got %+v", s)
	}
}

func TestEnrollmentValidate_SubjectXOR(t *testing.T) {
	e := CadenceEnrollment{Status: EnrollmentStatusActive}
	if err := e.Validate(); !errors.Is(err, ErrNoSubject) {
		t.Errorf("expected ErrNoSubject, got %v", err)
	}
	e = CadenceEnrollment{LeadID: "l1", ContactID: "c1", Status: EnrollmentStatusActive}
	if err := e.Validate(); !errors.Is(err, ErrBothSubjects) {
		t.Errorf("expected ErrBothSubjects, got %v", err)
	}
	e = CadenceEnrollment{LeadID: "l1", Status: EnrollmentStatusActive}
	if err := e.Validate(); err != nil {
		t.Errorf("expected valid enrollment, got %v", err)
	}
}

func TestEnrollmentStatusTerminal(t *testing.T) {
	terminal := []EnrollmentStatus{EnrollmentStatusCompleted, EnrollmentStatusBounced, EnrollmentStatusUnsubscribed}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	// Replied stops dispatch but is not terminal: a human may still act.
	if EnrollmentStatusReplied.Terminal() {
		t.Error("replied must not be terminal")
	}
	if !EnrollmentStatusReplied.StopsDispatch() {
		t.Error("replied must stop dispatch")
	}
	if EnrollmentStatusActive.StopsDispatch() {
		t.Error("active must allow dispatch")
	}
}

func TestSkipConditionEvaluate(t *testing.T) {
	subject := Subject{Name: "Ada", Company: "Initech", Fields: map[string]string{"stage": "qualified"}}

	cases := []struct {
		cond SkipCondition
		want bool
	}{
		{SkipCondition{Field: "stage", Op: SkipOpEquals, Value: "qualified"}, true},
		{SkipCondition{Field: "stage", Op: SkipOpNotEquals, Value: "qualified"}, false},
		{SkipCondition{Field: "company", Op: SkipOpContains, Value: "tech"}, true},
		{SkipCondition{Field: "email", Op: SkipOpSet}, false},
		{SkipCondition{Field: "email", Op: SkipOpNotSet}, true},
	}
	for i, tc := range cases {
		got, err := tc.cond.Evaluate(subject)
		if err != nil {
			t.Fatalf("case %d: unexpected error: %v", i, err)
		}
		if got != tc.want {
			t.Errorf("case %d: expected %v, got %v", i, tc.want, got)
		}
	}
}

func TestSkipConditionEvaluate_Malformed(t *testing.T) {
	if _, err := (SkipCondition{Field: "stage", Op: "between"}).Evaluate(Subject{}); !errors.Is(err, ErrInvalidSkipCondition) {
		t.Errorf("expected ErrInvalidSkipCondition for unknown op, got %v", err)
	}
	if _, err := (SkipCondition{Op: SkipOpSet}).Evaluate(Subject{}); !errors.Is(err, ErrInvalidSkipCondition) {
		t.Errorf("expected ErrInvalidSkipCondition for empty field, got %v", err)
	}
}

func TestStepValidateRejectsMalformedSkipCondition(t *testing.T) {
	step := CadenceStep{StepOrder: 1, Channel: ChannelEmail, TemplateBody: "Hello"}

	step.ConditionSkip = &SkipCondition{Field: "stage", Op: "between"}
	c := Cadence{Name: "Outreach", Status: CadenceStatusDraft, Steps: []CadenceStep{step}}
	if err := c.Validate(); !errors.Is(err, ErrInvalidSkipCondition) {
		t.Errorf("expected ErrInvalidSkipCondition for unknown op, got %v", err)
	}

	step.ConditionSkip = &SkipCondition{Op: SkipOpSet}
	c.Steps = []CadenceStep{step}
	if err := c.Validate(); !errors.Is(err, ErrInvalidSkipCondition) {
		t.Errorf("expected ErrInvalidSkipCondition for empty field, got %v", err)
	}

	step.ConditionSkip = &SkipCondition{Field: "stage", Op: SkipOpEquals, Value: "qualified"}
	c.Steps = []CadenceStep{step}
	if err := c.Validate(); err != nil {
		t.Errorf("expected valid step with well-formed condition, got %v", err)
	}
}

func TestReplyCategoryEndsEngagement(t *testing.T) {
	ending := []ReplyCategory{ReplyInterested, ReplyNotInterested, ReplyMeetingRequest, ReplyProposalRequest}
	for _, c := range ending {
		if !c.EndsEngagement() {
			t.Errorf("expected %s to end engagement", c)
		}
	}
	for _, c := range []ReplyCategory{ReplyOutOfOffice, ReplyUnsubscribe, ReplyOther} {
		if c.EndsEngagement() {
			t.Errorf("expected %s not to end engagement", c)
		}
	}
}

func TestSubjectField(t *testing.T) {
	s := Subject{Name: "Ada", Fields: map[string]string{"industry": "software"}}
	if s.Field("name") != "Ada" {
		t.Error("expected built-in field lookup")
	}
	if s.Field("industry") != "software" {
		t.Error("expected custom field lookup")
	}
	if s.Field("missing") != "" {
		t.Error("expected empty string for unknown field")
	}
}
