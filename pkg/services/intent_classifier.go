package services

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/pkg/jsonutil"
	"github.com/ekaya-inc/datagenie/pkg/llm"
	"github.com/ekaya-inc/datagenie/pkg/logging"
	"github.com/ekaya-inc/datagenie/pkg/metrics"
	"github.com/ekaya-inc/datagenie/pkg/models"
	"github.com/ekaya-inc/datagenie/pkg/prompts"
)

// LLMSettings are the call parameters shared by every model call of a service.
type LLMSettings struct {
	Temperature float64
	// Timeout bounds each call. Zero means no extra deadline.
	Timeout time.Duration
}

func (s LLMSettings) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.Timeout)
}

// IntentClassifier decides whether a turn needs schema grounding and SQL.
type IntentClassifier interface {
	// Classify never fails. An unusable model answer yields
	// models.ConservativeClassification.
	Classify(ctx context.Context, prompt string, priorTurns []models.Turn, schemaText string) models.Classification
}

type intentClassifier struct {
	llm      llm.Client
	settings LLMSettings
	logger   *zap.Logger
}

// NewIntentClassifier creates a classifier backed by client.
func NewIntentClassifier(client llm.Client, settings LLMSettings, logger *zap.Logger) IntentClassifier {
	return &intentClassifier{
		llm:      client,
		settings: settings,
		logger:   logger.Named("intent-classifier"),
	}
}

var _ IntentClassifier = (*intentClassifier)(nil)

// classifierReply is the JSON object the model is asked for. Fields are
// loosely typed because models quote booleans more often than one would like.
type classifierReply struct {
	Intent         jsonutil.FlexibleString `json:"intent"`
	RequiresSchema jsonutil.FlexibleBool   `json:"requires_schema"`
	NeedsSQL       jsonutil.FlexibleBool   `json:"needs_sql"`
}

func (c *intentClassifier) Classify(ctx context.Context, prompt string, priorTurns []models.Turn, schemaText string) models.Classification {
	systemMessage, err := prompts.BuildClassifierSystemPrompt()
	if err != nil {
		return c.failOpen("prompt", err)
	}

	callCtx, cancel := c.settings.withTimeout(llm.WithPurpose(ctx, "classify"))
	defer cancel()

	resp, err := c.llm.GenerateResponse(callCtx,
		prompts.BuildClassifierUserPrompt(prompt, priorTurns, schemaText),
		systemMessage,
		c.settings.Temperature)
	if err != nil {
		return c.failOpen("llm", err)
	}

	reply, err := llm.ParseJSONResponse[classifierReply](resp.Content)
	if err != nil {
		return c.failOpen("parse", err)
	}

	result := models.Classification{
		Intent:         normalizeIntent(string(reply.Intent)),
		RequiresSchema: reply.RequiresSchema.Or(true),
		NeedsSQL:       reply.NeedsSQL.Or(true),
	}
	// SQL cannot be written without the schema.
	if result.NeedsSQL && !result.RequiresSchema {
		result.RequiresSchema = true
	}

	c.logger.Debug("Classified prompt",
		zap.String("intent", string(result.Intent)),
		zap.Bool("requires_schema", result.RequiresSchema),
		zap.Bool("needs_sql", result.NeedsSQL))
	return result
}

func (c *intentClassifier) failOpen(stage string, err error) models.Classification {
	metrics.ClassifierFailOpen.Inc()
	c.logger.Warn("Classification failed, using conservative default",
		zap.String("stage", stage),
		zap.String("error", logging.SanitizeError(err)))
	return models.ConservativeClassification()
}

// normalizeIntent maps spelling variants onto the two intents. Anything
// unrecognized is treated as a fresh question.
func normalizeIntent(raw string) models.Intent {
	switch strings.NewReplacer("-", "_", " ", "_").Replace(strings.ToLower(strings.TrimSpace(raw))) {
	case "follow_up", "followup":
		return models.IntentFollowUp
	default:
		return models.IntentFresh
	}
}
