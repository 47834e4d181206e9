package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/leadops/crm-api/internal/store"
)

type Writer interface {
	InsertAuditLog(ctx context.Context, arg store.InsertAuditLogParams) error
}

type Logger struct {
	w      Writer
	logger *slog.Logger
}

func NewLogger(w Writer, logger *slog.Logger) *Logger {
	return &Logger{w: w, logger: logger}
}

type Entry struct {
	UserID     *uuid.UUID
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	RequestID  string
	Metadata   map[string]any
}

func (l *Logger) Log(ctx context.Context, entry Entry) error {
	metadata := []byte("{}")
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = encoded
	}

	params := store.InsertAuditLogParams{
		UserID:     entry.UserID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   metadata,
	}
	if entry.RequestID != "" {
		params.RequestID = &entry.RequestID
	}

	if err := l.w.InsertAuditLog(ctx, params); err != nil {
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}

// Record logs the entry and reports failures to the application log instead
// of the caller. The audited action has already happened by then.
func (l *Logger) Record(ctx context.Context, entry Entry) {
	if l == nil {
		return
	}
	if err := l.Log(context.WithoutCancel(ctx), entry); err != nil && l.logger != nil {
		l.logger.Warn("audit_write_failed", "action", entry.Action, "error", err)
	}
}
