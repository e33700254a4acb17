package auth

import (
	"context"
	"time"
)

// Security event types.
const (
	EventLoginSucceeded = "login.succeeded"
	EventLoginFailed    = "login.failed"
	EventAccountLocked  = "account.locked"
	EventAccountUnlock  = "account.unlocked"
	EventTokenRefreshed = "token.refreshed"
	EventSessionEnded   = "session.ended"
)

// Event describes a security-relevant outcome. It never carries passwords
// or token values.
type Event struct {
	Type        string    `json:"type"`
	PrincipalID uint64    `json:"principal_id,omitempty"`
	Identifier  string    `json:"identifier,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// EventPublisher receives security events. Publishing is best-effort: a
// failure is logged and never fails the operation that produced the event.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, Event) error { return nil }
