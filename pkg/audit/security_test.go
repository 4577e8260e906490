package audit

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// setupTestLogger creates a test logger with an observer to capture log entries.
func setupTestLogger(t *testing.T) (*zap.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, recorded := observer.New(zapcore.DebugLevel)
	return zap.New(core), recorded
}

func decodeEvent(t *testing.T, entry observer.LoggedEntry) SecurityEvent {
	t.Helper()
	raw, ok := entry.ContextMap()["event_json"].(string)
	require.True(t, ok, "event_json field missing")

	var event SecurityEvent
	require.NoError(t, json.Unmarshal([]byte(raw), &event))
	return event
}

func TestLogBlockedQuery_GeneratedIsWarning(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	auditor.now = func() time.Time { return fixed }

	tenantID := uuid.New()
	auditor.LogBlockedQuery(tenantID, "user-1", BlockedQueryDetails{
		Stage:   StageGenerate,
		Keyword: "DROP",
		SQL:     "DROP TABLE orders",
	})

	entries := recorded.All()
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "security_audit", entry.LoggerName)
	assert.Equal(t, "DROP", entry.ContextMap()["keyword"])
	assert.Equal(t, "generate", entry.ContextMap()["stage"])

	event := decodeEvent(t, entry)
	assert.Equal(t, EventBlockedQuery, event.EventType)
	assert.Equal(t, tenantID, event.TenantID)
	assert.Equal(t, "user-1", event.UserID)
	assert.Equal(t, "warning", event.Severity)
	assert.True(t, fixed.Equal(event.Timestamp))

	details := event.Details.(map[string]any)
	assert.Equal(t, "DROP TABLE orders", details["sql"])
}

func TestLogBlockedQuery_ExecuteIsCritical(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	auditor.LogBlockedQuery(uuid.New(), "user-2", BlockedQueryDetails{
		Stage:   StageExecute,
		Keyword: "DELETE",
		SQL:     "DELETE FROM users WHERE password = 'hunter2'" + strings.Repeat(" ", 300),
	})

	entries := recorded.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)

	event := decodeEvent(t, entries[0])
	assert.Equal(t, "critical", event.Severity)
	sql := event.Details.(map[string]any)["sql"].(string)
	assert.LessOrEqual(t, len([]rune(sql)), 203)
}

func TestLogInjectionAttempt(t *testing.T) {
	logger, recorded := setupTestLogger(t)
	auditor := NewSecurityAuditor(logger)

	tenantID := uuid.New()
	auditor.LogInjectionAttempt(tenantID, "", InjectionDetails{
		Field:       "public.users.name",
		Value:       "'; DROP TABLE users--",
		Fingerprint: "s;Tn",
	})

	entries := recorded.FilterMessage("SQL injection attempt detected").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, "public.users.name", entries[0].ContextMap()["field"])

	event := decodeEvent(t, entries[0])
	assert.Equal(t, EventSQLInjectionAttempt, event.EventType)
	assert.Equal(t, tenantID, event.TenantID)
	assert.Empty(t, event.UserID)
}
