package shared

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// AuditLog describes one operator action on a catalog resource.
type AuditLog struct {
	Actor     string
	Action    string
	Entity    string
	EntityID  string
	RequestID string
	Meta      map[string]any
	At        time.Time
}

// AuditLogger writes audit records as structured log lines under the
// "audit" group so they can be routed separately from application logs.
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger returns a new AuditLogger.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger, now: time.Now}
}

// Record emits the entry. Actor defaults to the operator stored in ctx.
func (l *AuditLogger) Record(ctx context.Context, log AuditLog) error {
	if l == nil {
		return errors.New("audit logger not initialised")
	}
	if log.Action == "" || log.Entity == "" || log.EntityID == "" {
		return errors.New("audit log requires action/entity/entity_id")
	}
	if log.Actor == "" {
		log.Actor = OperatorFromContext(ctx)
	}
	if log.At.IsZero() {
		log.At = l.now()
	}
	attrs := []any{
		slog.String("actor", log.Actor),
		slog.String("action", log.Action),
		slog.String("entity", log.Entity),
		slog.String("entity_id", log.EntityID),
		slog.Time("at", log.At.UTC()),
	}
	if log.RequestID != "" {
		attrs = append(attrs, slog.String("request_id", log.RequestID))
	}
	if len(log.Meta) > 0 {
		attrs = append(attrs, slog.Any("meta", log.Meta))
	}
	l.logger.LogAttrs(ctx, slog.LevelInfo, "audit", slog.Group("audit", attrs...))
	return nil
}
