package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/datagenie/pkg/adapters/datasource"
	"github.com/ekaya-inc/datagenie/pkg/apperrors"
	"github.com/ekaya-inc/datagenie/pkg/audit"
	"github.com/ekaya-inc/datagenie/pkg/llm"
	"github.com/ekaya-inc/datagenie/pkg/logging"
	"github.com/ekaya-inc/datagenie/pkg/metrics"
	"github.com/ekaya-inc/datagenie/pkg/models"
	"github.com/ekaya-inc/datagenie/pkg/prompts"
	sqlutil "github.com/ekaya-inc/datagenie/pkg/sql"
)

// User-facing messages for terminal generation states.
const (
	MessageBlocked         = "This action is blocked because it modifies the database structure or data."
	MessageRepairedBlocked = "Corrected SQL still contains destructive actions. Access denied."
	MessageRejected        = "The generated SQL seems incorrect. Please rephrase your query."
)

// SQLGenerator turns a natural-language turn into an answer or a validated query.
type SQLGenerator interface {
	// Generate runs the classify, generate, gate, plan, repair state machine.
	// Blocked and rejected candidates are results, not errors.
	Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerationResult, error)
}

// SQLGeneratorConfig tunes the generator.
type SQLGeneratorConfig struct {
	LLM LLMSettings
	// PlannerTimeout bounds each dry-run. Zero means no extra deadline.
	PlannerTimeout time.Duration
}

type sqlGenerator struct {
	router     ConnectionRouter
	formatter  SchemaFormatter
	classifier IntentClassifier
	llm        llm.Client
	history    QueryHistoryService
	auditor    *audit.SecurityAuditor
	cfg        SQLGeneratorConfig
	logger     *zap.Logger
}

// NewSQLGenerator creates the generator.
func NewSQLGenerator(
	router ConnectionRouter,
	formatter SchemaFormatter,
	classifier IntentClassifier,
	client llm.Client,
	history QueryHistoryService,
	auditor *audit.SecurityAuditor,
	cfg SQLGeneratorConfig,
	logger *zap.Logger,
) SQLGenerator {
	return &sqlGenerator{
		router:     router,
		formatter:  formatter,
		classifier: classifier,
		llm:        client,
		history:    history,
		auditor:    auditor,
		cfg:        cfg,
		logger:     logger.Named("sql-generator"),
	}
}

var _ SQLGenerator = (*sqlGenerator)(nil)

// generation carries one request through the state machine.
type generation struct {
	req      models.GenerateRequest
	tenantID uuid.UUID
	// endpoint is the tenant's active endpoint; nil when it has none, in
	// which case endpointErr says why.
	endpoint    *models.Endpoint
	endpointErr error
	schemaText  string
	turns      []models.Turn
	result     *models.GenerationResult
}

func (g *sqlGenerator) Generate(ctx context.Context, req models.GenerateRequest) (*models.GenerationResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, fmt.Errorf("%w: prompt is required", apperrors.ErrInvalidRequest)
	}

	tenantID, err := g.router.TenantForUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	// The schema text and the planner must see the same endpoint, so it is
	// picked once here. A tenant without one can still be answered directly.
	endpoint, endpointErr := g.router.ActiveEndpoint(ctx, tenantID)
	if endpointErr != nil && !errors.Is(endpointErr, apperrors.ErrTenantNotFound) {
		return nil, endpointErr
	}

	var schemaText string
	if endpoint != nil {
		schemaText, err = g.formatter.Format(ctx, tenantID, endpoint.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to format schema: %w", err)
		}
	}

	cls := g.classifier.Classify(ctx, req.Prompt, req.PriorTurns, schemaText)

	gen := &generation{
		req:         req,
		tenantID:    tenantID,
		endpoint:    endpoint,
		endpointErr: endpointErr,
		schemaText:  schemaText,
		turns:       req.PriorTurns,
		result: &models.GenerationResult{
			Intent:         cls.Intent,
			RequiresSchema: cls.RequiresSchema,
			NeedsSQL:       cls.NeedsSQL,
		},
	}
	if cls.Intent == models.IntentFresh {
		gen.turns = nil
	}

	switch {
	case !cls.RequiresSchema:
		err = g.answerDirectly(ctx, gen)
	case !cls.NeedsSQL:
		err = g.answerFromSchema(ctx, gen)
	default:
		err = g.generateSQL(ctx, gen)
	}
	if err != nil {
		return nil, err
	}

	metrics.GenerationOutcomes.WithLabelValues(string(gen.result.Outcome)).Inc()
	g.logger.Info("Generation finished",
		zap.String("tenant_id", tenantID.String()),
		zap.String("user_id", req.UserID),
		zap.String("outcome", string(gen.result.Outcome)),
		zap.String("intent", string(cls.Intent)),
		zap.Bool("classifier_failed_open", cls.FailedOpen),
		zap.Bool("repaired", gen.result.Repaired))

	return gen.result, nil
}

func (g *sqlGenerator) answerDirectly(ctx context.Context, gen *generation) error {
	content, err := g.complete(ctx, "direct",
		prompts.BuildDirectAnswerPrompt(gen.req.Prompt, gen.turns),
		prompts.DirectAnswerSystemMessage)
	if err != nil {
		return err
	}
	gen.result.Outcome = models.OutcomeAnswered
	gen.result.Message = strings.TrimSpace(llm.StripThinking(content))
	return nil
}

func (g *sqlGenerator) answerFromSchema(ctx context.Context, gen *generation) error {
	content, err := g.complete(ctx, "schema_prose",
		prompts.BuildSchemaQuestionPrompt(gen.req.Prompt, gen.schemaText, gen.turns),
		prompts.SchemaQuestionSystemMessage)
	if err != nil {
		return err
	}
	gen.result.Outcome = models.OutcomeAnswered
	gen.result.Message = strings.TrimSpace(llm.StripThinking(content))
	return nil
}

func (g *sqlGenerator) generateSQL(ctx context.Context, gen *generation) error {
	if gen.endpoint == nil {
		return gen.endpointErr
	}
	// Connect first: an unreachable tenant should fail before spending a model call.
	conn, err := g.router.Connect(ctx, gen.endpoint)
	if err != nil {
		return err
	}
	defer conn.Close()
	dialect := conn.Dialect()
	systemMessage := prompts.GenerationSystemMessage(dialect)
	prompt := prompts.BuildGenerationPrompt(prompts.GenerationInput{
		Dialect:    dialect,
		SchemaText: gen.schemaText,
		Prompt:     gen.req.Prompt,
		PriorTurns: gen.turns,
	})

	content, err := g.complete(ctx, "generate", prompt, systemMessage)
	if err != nil {
		// A timeout or other transient model failure is the one case where the
		// repair budget buys a second generation instead of a correction.
		if !llm.IsRetryable(err) || ctx.Err() != nil {
			return err
		}
		return g.regenerate(ctx, gen, conn, prompt, systemMessage, err)
	}

	reply, parseErr := prompts.ParseGenerationReply(llm.StripThinking(content))
	gen.result.Explanation = reply.Explanation
	candidate := reply.SQL

	if g.blocked(ctx, gen, audit.StageGenerate, candidate, MessageBlocked) {
		return nil
	}

	// A missing SQL section fails validation here without reaching the planner.
	planErr := parseErr
	if planErr == nil {
		planErr = g.plan(ctx, conn, candidate)
	}
	if planErr == nil {
		g.accept(ctx, gen, candidate)
		return nil
	}

	g.logger.Info("Candidate failed validation, attempting repair",
		zap.String("tenant_id", gen.tenantID.String()),
		zap.String("sql", logging.SanitizeQuery(candidate)),
		zap.String("error", logging.SanitizeError(planErr)))

	return g.repair(ctx, gen, conn, candidate, planErr)
}

// repair makes the single correction attempt. Every path out of it is terminal.
func (g *sqlGenerator) repair(ctx context.Context, gen *generation, conn datasource.TenantConnection, candidate string, planErr error) error {
	metrics.RepairAttempts.Inc()
	gen.result.Repaired = true
	dialect := conn.Dialect()

	content, err := g.complete(ctx, "repair",
		prompts.BuildRepairPrompt(dialect, gen.req.Prompt, candidate, repairReason(planErr)),
		prompts.GenerationSystemMessage(dialect))
	if err != nil {
		g.reject(ctx, gen, candidate, err)
		return nil
	}

	fixed, err := prompts.ParseRepairReply(llm.StripThinking(content))
	if err != nil {
		g.reject(ctx, gen, candidate, err)
		return nil
	}

	if g.blocked(ctx, gen, audit.StageRepair, fixed, MessageRepairedBlocked) {
		return nil
	}

	if err := g.plan(ctx, conn, fixed); err != nil {
		g.reject(ctx, gen, fixed, err)
		return nil
	}

	g.accept(ctx, gen, fixed)
	return nil
}

// regenerate spends the single repair on repeating a generation call that
// failed transiently. Every path out of it is terminal.
func (g *sqlGenerator) regenerate(ctx context.Context, gen *generation, conn datasource.TenantConnection, prompt, systemMessage string, cause error) error {
	metrics.RepairAttempts.Inc()
	gen.result.Repaired = true
	g.logger.Info("Generation call failed transiently, retrying once",
		zap.String("tenant_id", gen.tenantID.String()),
		zap.String("error", logging.SanitizeError(cause)))

	content, err := g.complete(ctx, "regenerate", prompt, systemMessage)
	if err != nil {
		g.reject(ctx, gen, "", err)
		return nil
	}

	reply, err := prompts.ParseGenerationReply(llm.StripThinking(content))
	gen.result.Explanation = reply.Explanation

	if g.blocked(ctx, gen, audit.StageRepair, reply.SQL, MessageBlocked) {
		return nil
	}
	if err == nil {
		err = g.plan(ctx, conn, reply.SQL)
	}
	if err != nil {
		g.reject(ctx, gen, reply.SQL, err)
		return nil
	}

	g.accept(ctx, gen, reply.SQL)
	return nil
}

// blocked applies the mutation gate. On a hit it finalizes the result and
// records the attempt.
func (g *sqlGenerator) blocked(ctx context.Context, gen *generation, stage, candidate, message string) bool {
	keyword, hit := sqlutil.CheckMutation(candidate)
	if !hit {
		return false
	}

	metrics.BlockedQueries.WithLabelValues(stage, keyword).Inc()
	g.auditor.LogBlockedQuery(gen.tenantID, gen.req.UserID, audit.BlockedQueryDetails{
		Stage:   stage,
		Keyword: keyword,
		SQL:     candidate,
	})

	gen.result.Outcome = models.OutcomeBlocked
	gen.result.Blocked = true
	gen.result.Message = message
	gen.result.SQL = ""
	g.record(ctx, gen, candidate, models.HistoryBlocked)
	return true
}

func (g *sqlGenerator) accept(ctx context.Context, gen *generation, sql string) {
	gen.result.Outcome = models.OutcomeAcceptedSQL
	gen.result.SQL = sql
	g.record(ctx, gen, sql, models.HistoryAcceptedSQL)
}

func (g *sqlGenerator) reject(ctx context.Context, gen *generation, sql string, cause error) {
	err := fmt.Errorf("%w: %w", apperrors.ErrGenerationFailed, cause)
	g.logger.Warn("Repair failed, rejecting request",
		zap.String("tenant_id", gen.tenantID.String()),
		zap.String("sql", logging.SanitizeQuery(sql)),
		zap.String("error", logging.SanitizeError(err)))

	gen.result.Outcome = models.OutcomeRejected
	gen.result.Error = true
	gen.result.Message = MessageRejected
	gen.result.SQL = ""
	g.record(ctx, gen, sql, models.HistoryRejected)
}

func (g *sqlGenerator) record(ctx context.Context, gen *generation, sql, outcome string) {
	if g.history == nil {
		return
	}
	g.history.Record(ctx, &models.QueryHistoryEntry{
		TenantID:     gen.tenantID,
		UserID:       gen.req.UserID,
		Prompt:       gen.req.Prompt,
		GeneratedSQL: sql,
		Outcome:      outcome,
	})
}

// plan dry-runs sql under the planner timeout.
func (g *sqlGenerator) plan(ctx context.Context, conn datasource.TenantConnection, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return &apperrors.PlanError{SQL: sql, Cause: apperrors.ErrUnparsableModelReply}
	}

	planCtx := ctx
	if g.cfg.PlannerTimeout > 0 {
		var cancel context.CancelFunc
		planCtx, cancel = context.WithTimeout(ctx, g.cfg.PlannerTimeout)
		defer cancel()
	}

	if err := conn.Explain(planCtx, sql); err != nil {
		return &apperrors.PlanError{SQL: sql, Cause: err}
	}
	return nil
}

// complete runs one model call labeled with purpose. Failures become
// apperrors.ErrGenerationFailed wrapping the classified llm.Error.
func (g *sqlGenerator) complete(ctx context.Context, purpose, prompt, systemMessage string) (string, error) {
	callCtx, cancel := g.cfg.LLM.withTimeout(llm.WithPurpose(ctx, purpose))
	defer cancel()

	resp, err := g.llm.GenerateResponse(callCtx, prompt, systemMessage, g.cfg.LLM.Temperature)
	if err != nil {
		return "", fmt.Errorf("%w: %s call failed: %w", apperrors.ErrGenerationFailed, purpose, llm.ClassifyError(err))
	}
	return resp.Content, nil
}

// repairReason is the error text shown to the model.
func repairReason(err error) string {
	if errors.Is(err, apperrors.ErrUnparsableModelReply) {
		return "The previous reply did not contain a SQL section."
	}
	var planErr *apperrors.PlanError
	if errors.As(err, &planErr) {
		return logging.SanitizeError(planErr.Cause)
	}
	return logging.SanitizeError(err)
}
