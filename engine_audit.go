package goGuard

import (
	"context"
	"errors"

	"github.com/MrEthical07/goGuard/internal"
)

const (
	auditEventActionDenied         = "action_denied"
	auditEventActionUnavailable    = "action_unavailable"
	auditEventRecoveryRequest      = "recovery_request"
	auditEventRecoveryConsume      = "recovery_consume"
	auditEventRecoveryCheck        = "recovery_check"
	auditEventRecoveryNotifyFailed = "recovery_notify_failed"
	auditEventRecoverySweep        = "recovery_sweep"
	auditEventRateLimitTriggered   = "rate_limit_triggered"
)

// AuditErrorCode is the stable string recorded in AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrPolicyDenied     AuditErrorCode = "policy_denied"
	auditErrRateLimited      AuditErrorCode = "rate_limited"
	auditErrInvalidToken     AuditErrorCode = "invalid_token"
	auditErrExpiredToken     AuditErrorCode = "expired_token"
	auditErrConfig           AuditErrorCode = "config_error"
	auditErrUnknownPackage   AuditErrorCode = "unknown_auth_package"
	auditErrSubjectNotFound  AuditErrorCode = "subject_not_found"
	auditErrCredentialPolicy AuditErrorCode = "credential_policy"
	auditErrUnavailable      AuditErrorCode = "backend_unavailable"
	auditErrInternal         AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subjectID string,
	action string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	now := e.now()
	id, idErr := internal.NewID(now)
	if idErr != nil {
		id = ""
	}

	event := AuditEvent{
		ID:        id,
		Timestamp: now,
		EventType: eventType,
		SubjectID: subjectID,
		Action:    action,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(
	ctx context.Context,
	scope string,
	metadataBuilder func() map[string]string,
) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", ErrRecoveryRateLimited, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrPolicyDenied):
		return auditErrPolicyDenied
	case errors.Is(err, ErrRateLimited),
		errors.Is(err, ErrRecoveryRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenExpired):
		return auditErrExpiredToken
	case errors.Is(err, ErrTokenInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrConfigMissing),
		errors.Is(err, ErrConfigInvalid):
		return auditErrConfig
	case errors.Is(err, ErrUnknownAuthPackage):
		return auditErrUnknownPackage
	case errors.Is(err, ErrSubjectNotFound):
		return auditErrSubjectNotFound
	case errors.Is(err, ErrCredentialPolicy):
		return auditErrCredentialPolicy
	case errors.Is(err, ErrRecoveryUnavailable),
		errors.Is(err, ErrActivityUnavailable),
		errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
