package sql

import (
	libinjection "github.com/corazawaf/libinjection-go"
)

// InjectionCheckResult describes a value that libinjection flagged.
type InjectionCheckResult struct {
	Field       string // which input carried the value, e.g. "orders.status"
	Value       string
	Fingerprint string // libinjection token fingerprint
}

// CheckForInjection runs libinjection over free text that will later be
// embedded in a model prompt. Returns nil for clean input.
func CheckForInjection(field, value string) *InjectionCheckResult {
	if value == "" {
		return nil
	}
	isSQLi, fingerprint := libinjection.IsSQLi(value)
	if !isSQLi {
		return nil
	}
	return &InjectionCheckResult{
		Field:       field,
		Value:       value,
		Fingerprint: string(fingerprint),
	}
}
