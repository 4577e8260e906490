// Package audit writes security events as structured log lines for SIEM ingestion.
package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/pkg/logging"
)

// SecurityEventType categorizes security-relevant events for filtering and alerting.
type SecurityEventType string

const (
	// EventBlockedQuery is logged when the mutation gate refuses a statement.
	EventBlockedQuery SecurityEventType = "blocked_query"
	// EventSQLInjectionAttempt is logged when libinjection flags text bound for a prompt.
	EventSQLInjectionAttempt SecurityEventType = "sql_injection_attempt"
)

// Stages at which a statement can be blocked.
const (
	StageGenerate = "generate"
	StageRepair   = "repair"
	StageExecute  = "execute"
)

// SecurityEvent is the JSON document embedded in each audit line.
type SecurityEvent struct {
	Timestamp time.Time         `json:"timestamp"`
	EventType SecurityEventType `json:"event_type"`
	TenantID  uuid.UUID         `json:"tenant_id"`
	UserID    string            `json:"user_id,omitempty"`
	Details   any               `json:"details"`
	Severity  string            `json:"severity"` // info, warning, critical
}

// BlockedQueryDetails describes a statement refused by the mutation gate.
type BlockedQueryDetails struct {
	Stage   string `json:"stage"`
	Keyword string `json:"keyword"`
	SQL     string `json:"sql"` // sanitized and truncated
}

// InjectionDetails describes text flagged by libinjection.
type InjectionDetails struct {
	Field       string `json:"field"`
	Value       string `json:"value"` // truncated
	Fingerprint string `json:"fingerprint"`
}

// SecurityAuditor logs security events under the "security_audit" logger name.
type SecurityAuditor struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewSecurityAuditor(logger *zap.Logger) *SecurityAuditor {
	return &SecurityAuditor{
		logger: logger.Named("security_audit"),
		now:    time.Now,
	}
}

// LogBlockedQuery records a statement refused by the mutation gate.
// Generated statements are logged at warn; client-submitted ones at error,
// since a client sending DDL to the execution endpoint is not a model mistake.
func (a *SecurityAuditor) LogBlockedQuery(tenantID uuid.UUID, userID string, details BlockedQueryDetails) {
	details.SQL = logging.SanitizeQuery(details.SQL)

	severity := "warning"
	if details.Stage == StageExecute {
		severity = "critical"
	}

	event := a.event(EventBlockedQuery, tenantID, userID, details, severity)
	fields := []zap.Field{
		zap.String("event_json", marshal(event)),
		zap.String("tenant_id", tenantID.String()),
		zap.String("user_id", userID),
		zap.String("stage", details.Stage),
		zap.String("keyword", details.Keyword),
		zap.String("severity", severity),
	}

	if severity == "critical" {
		a.logger.Error("Blocked mutating query", fields...)
		return
	}
	a.logger.Warn("Blocked mutating query", fields...)
}

// LogInjectionAttempt records text that libinjection flagged.
func (a *SecurityAuditor) LogInjectionAttempt(tenantID uuid.UUID, userID string, details InjectionDetails) {
	details.Value = logging.TruncateString(details.Value, logging.MaxQueryLogLength)

	event := a.event(EventSQLInjectionAttempt, tenantID, userID, details, "critical")
	a.logger.Error("SQL injection attempt detected",
		zap.String("event_json", marshal(event)),
		zap.String("tenant_id", tenantID.String()),
		zap.String("user_id", userID),
		zap.String("field", details.Field),
		zap.String("fingerprint", details.Fingerprint),
		zap.String("severity", "critical"),
	)
}

func (a *SecurityAuditor) event(t SecurityEventType, tenantID uuid.UUID, userID string, details any, severity string) SecurityEvent {
	return SecurityEvent{
		Timestamp: a.now().UTC(),
		EventType: t,
		TenantID:  tenantID,
		UserID:    userID,
		Details:   details,
		Severity:  severity,
	}
}

func marshal(event SecurityEvent) string {
	// Known field types; marshaling cannot fail.
	out, _ := json.Marshal(event)
	return string(out)
}
