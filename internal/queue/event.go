// Package queue defines the security-event payload exchanged over the
// message broker and the consumer that writes it to the audit log.
package queue

import (
	"time"

	"github.com/iliyamo/recipe-box/internal/auth"
)

// AuthEventsQueue is the durable queue security events are routed to.
const AuthEventsQueue = "auth.events"

// SecurityEvent is the wire form of auth.Event.
type SecurityEvent struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	PrincipalID uint64 `json:"principal_id,omitempty"`
	Identifier  string `json:"identifier,omitempty"`
	Detail      string `json:"detail,omitempty"`
	OccurredAt  string `json:"occurred_at"`
}

// NewSecurityEvent converts ev and stamps it with a fresh id.
func NewSecurityEvent(ev auth.Event) SecurityEvent {
	at := ev.OccurredAt
	if at.IsZero() {
		at = time.Now()
	}
	return SecurityEvent{
		ID:          auth.NewID(),
		Type:        ev.Type,
		PrincipalID: ev.PrincipalID,
		Identifier:  ev.Identifier,
		Detail:      ev.Detail,
		OccurredAt:  at.UTC().Format(time.RFC3339),
	}
}
