package guardian

import (
	"context"

	"github.com/lockshift/guardian/internal/audit"
)

// Audit sink types callers can hand to WithAuditSink.
type (
	// AuditSink receives engine audit events.
	AuditSink = audit.Sink
	// AuditEvent is the canonical audit record.
	AuditEvent = audit.Event
)

// NewChannelAuditSink returns a sink backed by a buffered channel.
func NewChannelAuditSink(buffer int) *audit.ChannelSink {
	return audit.NewChannelSink(buffer)
}

// Behavior actions recorded on the audit trail.
const (
	actionLoginSuccess  = "login_success"
	actionLoginFailed   = "login_failed"
	actionTokenRefresh  = "token_refresh"
	actionQuotaCheck    = "quota_check"
	actionAccessDenied  = "access_denied"
	actionLogout        = "logout"
	actionOtpIssued     = "otp_issued"
	actionOtpVerified   = "otp_verified"
	actionPasswordReset = "password_reset"
)

type behaviorEvent struct {
	action    string
	userID    string
	sessionID string
	ip        string
	device    string
	success   bool
	err       error
	meta      map[string]string
}

func (e *Engine) emitBehavior(ctx context.Context, ev behaviorEvent) {
	event := audit.Event{
		Timestamp: e.now(),
		Kind:      audit.KindBehavior,
		Action:    ev.action,
		UserID:    ev.userID,
		SessionID: ev.sessionID,
		IP:        ev.ip,
		Device:    ev.device,
		Success:   ev.success,
		Metadata:  ev.meta,
	}
	if ev.err != nil {
		event.Error = ev.err.Error()
	}
	e.audit.Emit(ctx, event)
}

func (e *Engine) emitMutation(ctx context.Context, table, operation, recordID string, before, after map[string]any) {
	e.audit.Emit(ctx, audit.Event{
		Timestamp: e.now(),
		Kind:      audit.KindMutation,
		Table:     table,
		Operation: operation,
		RecordID:  recordID,
		Before:    before,
		After:     after,
		Success:   true,
	})
}

func (e *Engine) emitExternalCall(ctx context.Context, target string, err error, meta map[string]string) {
	event := audit.Event{
		Timestamp: e.now(),
		Kind:      audit.KindExternalCall,
		Target:    target,
		Success:   err == nil,
		Metadata:  meta,
	}
	if err != nil {
		event.Error = err.Error()
	}
	e.audit.Emit(ctx, event)
}

// mutationRecorder adapts the dispatcher to the quota engine's Recorder.
type mutationRecorder struct {
	engine *Engine
}

func (r mutationRecorder) RecordMutation(ctx context.Context, table, operation, recordID string, before, after map[string]any) {
	r.engine.emitMutation(ctx, table, operation, recordID, before, after)
}
