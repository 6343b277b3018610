// Package audit writes one structured audit line per committed state change.
package audit

import (
	"context"
	"errors"
	"strings"

	"github.com/sirupsen/logrus"

	"allot.org/internal/alloc"
	"allot.org/internal/auth"
	"allot.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with request and user context.
func LogEvent(ctx context.Context, event string, fields logrus.Fields) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := obs.Logger().WithFields(logrus.Fields{
		"type":  "audit",
		"event": event,
	})
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry = entry.WithField("request_id", rid)
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		entry = entry.WithField("user_id", id.UserID)
	}
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Info("audit")
	return nil
}

// Hook records every committed engine event.
type Hook struct{}

var _ alloc.Hook = Hook{}

func (Hook) AfterCommit(ctx context.Context, evt alloc.Event) error {
	fields := logrus.Fields{
		"tenant_id": evt.TenantID,
		"entity_id": evt.EntityID,
	}
	if evt.ActorID != "" {
		fields["actor_id"] = evt.ActorID
	}
	if evt.UnitID != "" {
		fields["unit_id"] = evt.UnitID
	}
	if evt.OccupantID != "" {
		fields["occupant_id"] = evt.OccupantID
	}
	if evt.Status != "" {
		fields["status"] = evt.Status
	}
	if evt.UnitStatus != "" {
		fields["unit_status"] = string(evt.UnitStatus)
	}
	return LogEvent(ctx, evt.Type, fields)
}
