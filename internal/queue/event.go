// Package queue defines message payloads exchanged over the message broker
// and the worker that consumes them.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/union-registry/internal/model"
)

// Queue names double as event types.
const (
	EventMemberRegistered  = "member.registered"
	EventMemberDeactivated = "member.deactivated"
)

// QueueNames lists every queue the registry publishes to.
func QueueNames() []string {
	return []string{EventMemberRegistered, EventMemberDeactivated}
}

// MemberEvent is published after a member lifecycle change has been
// committed.  It carries enough of the record for the notice worker to
// address the member without querying the primary database.
type MemberEvent struct {
	EventID           string `json:"event_id"`
	Type              string `json:"type"`
	MemberRef         uint64 `json:"member_ref"`
	MemberID          string `json:"member_id"`
	FullName          string `json:"full_name"`
	Email             string `json:"email"`
	CompanyName       string `json:"company_name"`
	Department        string `json:"department"`
	MembershipEndDate string `json:"membership_end_date,omitempty"`
	OccurredAt        string `json:"occurred_at"`
}

// NewMemberEvent builds an event of the given type for m.
func NewMemberEvent(eventType string, m *model.Member, at time.Time) MemberEvent {
	ev := MemberEvent{
		EventID:     uuid.NewString(),
		Type:        eventType,
		MemberRef:   m.ID,
		MemberID:    m.MemberID,
		FullName:    m.FullName,
		Email:       m.Email,
		CompanyName: m.CompanyName,
		Department:  m.Department,
		OccurredAt:  at.UTC().Format(time.RFC3339),
	}
	if m.MembershipEndDate != nil {
		ev.MembershipEndDate = m.MembershipEndDate.Format(model.DateLayout)
	}
	return ev
}
