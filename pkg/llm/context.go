package llm

import "context"

type contextKey string

const purposeKey contextKey = "llm_purpose"

// WithPurpose labels calls made with ctx, e.g. "classify" or "repair".
// The label is used for metrics only.
func WithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeKey, purpose)
}

// PurposeFrom returns the label set by WithPurpose, or "unspecified".
func PurposeFrom(ctx context.Context) string {
	if p, ok := ctx.Value(purposeKey).(string); ok && p != "" {
		return p
	}
	return "unspecified"
}
