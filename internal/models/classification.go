package models

import (
	"time"
)

// ReplyCategory is the AI-derived label assigned to an inbound reply.
type ReplyCategory string

const (
	// ReplyInterested indicates the prospect expressed interest.
	ReplyInterested ReplyCategory = "interested"
	// ReplyNotInterested indicates the prospect declined.
	ReplyNotInterested ReplyCategory = "not_interested"
	// ReplyMeetingRequest indicates the prospect asked for a meeting.
	ReplyMeetingRequest ReplyCategory = "meeting_request"
	// ReplyProposalRequest indicates the prospect asked for a proposal or pricing.
	ReplyProposalRequest ReplyCategory = "proposal_request"
	// ReplyOutOfOffice indicates an automatic out-of-office response.
	ReplyOutOfOffice ReplyCategory = "out_of_office"
	// ReplyUnsubscribe indicates the prospect asked to stop receiving messages.
	ReplyUnsubscribe ReplyCategory = "unsubscribe"
	// ReplyOther covers replies that fit no specific category.
	ReplyOther ReplyCategory = "other"
)

// IsValidReplyCategory checks if the given category is supported.
func IsValidReplyCategory(c ReplyCategory) bool {
	switch c {
	case ReplyInterested, ReplyNotInterested, ReplyMeetingRequest,
		ReplyProposalRequest, ReplyOutOfOffice, ReplyUnsubscribe, ReplyOther:
		return true
	default:
		return false
	}
}

// EndsEngagement reports whether the category transitions the enrollment to
// replied, stopping automatic dispatch. Out-of-office and other replies leave
// the cadence running; unsubscribe has its own transition.
func (c ReplyCategory) EndsEngagement() bool {
	switch c {
	case ReplyInterested, ReplyNotInterested, ReplyMeetingRequest, ReplyProposalRequest:
		return true
	default:
		return false
	}
}

// ReplyClassification is a classification record for one inbound reply,
// produced by the AI classifier and consumed by the feedback component. The
// core stores it for audit and UI display but never mutates the verdict.
type ReplyClassification struct {
	ID             string        `json:"id"`
	EnrollmentID   string        `json:"enrollment_id"`
	Classification ReplyCategory `json:"classification"`
	Confidence     float64       `json:"confidence"`
	AIReasoning    string        `json:"ai_reasoning,omitempty"`
	MessageBody    string        `json:"message_body,omitempty"`
	Processed      bool          `json:"processed"`
	CreatedAt      time.Time     `json:"created_at"`
}

// InboundReplyRequest represents the payload for ingesting an inbound reply.
// Classification may be left empty when a classifier is configured server-side.
type InboundReplyRequest struct {
	EnrollmentID   string        `json:"enrollment_id"`
	MessageBody    string        `json:"message_body"`
	Classification ReplyCategory `json:"classification,omitempty"`
	Confidence     float64       `json:"confidence,omitempty"`
	AIReasoning    string        `json:"ai_reasoning,omitempty"`
}

// Validate validates an InboundReplyRequest.
func (r *InboundReplyRequest) Validate() error {
	if r.EnrollmentID == "" {
		return ErrEnrollmentNotFound
	}
	if r.Classification != "" && !IsValidReplyCategory(r.Classification) {
		return ErrInvalidClassification
	}
	return nil
}
