package portalauth

import (
	"context"
	"errors"
	"time"

	"github.com/medportal/portalauth/session"
)

type AuditErrorCode string

const (
	auditErrAuthExpired AuditErrorCode = "auth_expired"
	auditErrValidation  AuditErrorCode = "validation"
	auditErrNetwork     AuditErrorCode = "network"
	auditErrStorage     AuditErrorCode = "session_storage"
	auditErrInternal    AuditErrorCode = "internal_error"
)

func (c *Client) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	role string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if c == nil || c.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Role:      role,
		Success:   success,
		Metadata:  metadata,
	}
	if metadata != nil {
		event.RequestID = metadata["request_id"]
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	c.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrAuthExpired):
		return auditErrAuthExpired
	case errors.Is(err, ErrValidation):
		return auditErrValidation
	case errors.Is(err, ErrNetwork):
		return auditErrNetwork
	case errors.Is(err, session.ErrIncompleteSession),
		errors.Is(err, session.ErrRedisUnavailable),
		errors.Is(err, session.ErrNoSession):
		return auditErrStorage
	default:
		return auditErrInternal
	}
}
