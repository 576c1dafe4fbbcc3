package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/llm"
	"github.com/askdb-inc/askdb-engine/pkg/models"
	"github.com/askdb-inc/askdb-engine/pkg/prompt"
)

// State is one phase of the drafting/validation/repair cycle. Terminal
// outcomes live on the session as SessionStatus; State only covers the
// in-flight phases.
type State string

const (
	StateDrafting   State = "drafting"
	StateValidating State = "validating"
	StateExecuting  State = "executing"
	StateRepairing  State = "repairing"
)

// Executor runs a validated statement. Implementations never retry; the
// repair loop owns retries.
type Executor interface {
	Execute(ctx context.Context, sqlQuery string) (*models.ResultSet, *models.FailureReason)
}

// Engine drives a query session from question to terminal status.
type Engine interface {
	Run(ctx context.Context, session *models.QuerySession, retrieved *models.RetrievalResult, history []prompt.Turn) error
}

type engine struct {
	client      llm.LLMClient
	composer    *prompt.Composer
	validator   *Validator
	executor    Executor
	maxAttempts int
	temperature float64
	logger      *zap.Logger
}

// NewEngine creates the generation Engine. maxAttempts bounds the repair
// loop; temperature is passed through to the model on every draft.
func NewEngine(client llm.LLMClient, composer *prompt.Composer, validator *Validator, executor Executor, maxAttempts int, temperature float64, logger *zap.Logger) Engine {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &engine{
		client:      client,
		composer:    composer,
		validator:   validator,
		executor:    executor,
		maxAttempts: maxAttempts,
		temperature: temperature,
		logger:      logger.Named("generation"),
	}
}

// NewSession creates a pending session bound to the given schema snapshot.
func NewSession(question string, snapshot *models.SchemaDescriptor) *models.QuerySession {
	return &models.QuerySession{
		ID:        uuid.New(),
		Question:  question,
		Schema:    snapshot,
		Status:    models.SessionPending,
		CreatedAt: time.Now(),
	}
}

// Run executes the state machine until a terminal status is reached:
//
//	Drafting -> Validating -> Executing -> Succeeded
//	               |
//	               v
//	        recoverable failure -> Repairing -> Drafting (next attempt)
//	        non-recoverable failure -> Rejected
//	        budget spent -> Exhausted
//
// Parse and schema-validation failures are repaired up to the budget.
// Execution failures and service outages end the session without a retry
// (the caller may start a new session); the one carve-out is a timeout,
// from the model or the database, which counts against the budget like any
// recoverable failure. Context cancellation aborts immediately and leaves
// the session pending; the caller decides what to surface.
func (e *engine) Run(ctx context.Context, session *models.QuerySession, retrieved *models.RetrievalResult, history []prompt.Turn) error {
	var repair *prompt.RepairContext

	for attemptIdx := 0; attemptIdx < e.maxAttempts; attemptIdx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		failure, done := e.attempt(ctx, session, retrieved, history, repair, attemptIdx)
		if done {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if !failure.Recoverable {
			session.Status = models.SessionRejected
			session.Failure = failure
			e.logger.Warn("Session ended by non-recoverable failure",
				zap.String("session_id", session.ID.String()),
				zap.String("kind", string(failure.Kind)),
				zap.String("reason", failure.Message))
			return nil
		}

		e.transition(session, StateRepairing, attemptIdx)
		prior := session.Attempts[len(session.Attempts)-1].SQL
		if prior == "" {
			prior = session.Attempts[len(session.Attempts)-1].RawOutput
		}
		repair = &prompt.RepairContext{PriorSQL: prior, Failure: failure.Message}
	}

	session.Status = models.SessionExhausted
	session.Failure = &models.FailureReason{
		Kind:        models.FailureBudgetExhausted,
		Message:     fmt.Sprintf("no valid statement after %d attempts", len(session.Attempts)),
		Recoverable: false,
	}
	e.logger.Warn("Session exhausted",
		zap.String("session_id", session.ID.String()),
		zap.Int("attempts", len(session.Attempts)))
	return nil
}

// attempt runs one Drafting -> Validating -> Executing pass. It returns the
// failure to repair from, or done=true when the session reached Succeeded.
func (e *engine) attempt(ctx context.Context, session *models.QuerySession, retrieved *models.RetrievalResult, history []prompt.Turn, repair *prompt.RepairContext, attemptIdx int) (*models.FailureReason, bool) {
	e.transition(session, StateDrafting, attemptIdx)

	request := e.composer.Compose(session.Question, retrieved, history, repair)
	promptText := request.Render()

	attempt := models.GenerationAttempt{
		Index:  attemptIdx,
		Prompt: promptText,
	}

	raw, err := e.client.GenerateResponse(ctx, promptText, request.System, e.temperature)
	if err != nil {
		attempt.Failure = classifyModelError(err)
		session.Attempts = append(session.Attempts, attempt)
		return attempt.Failure, false
	}
	attempt.RawOutput = raw

	e.transition(session, StateValidating, attemptIdx)

	sqlQuery, failure := Parse(raw)
	if failure == nil {
		sqlQuery, failure = e.validator.Validate(ctx, sqlQuery, session.Schema)
	}
	if failure != nil {
		attempt.Failure = failure
		session.Attempts = append(session.Attempts, attempt)
		return failure, false
	}
	attempt.SQL = sqlQuery

	e.transition(session, StateExecuting, attemptIdx)

	result, execFailure := e.executor.Execute(ctx, sqlQuery)
	if execFailure != nil {
		attempt.Failure = execFailure
		session.Attempts = append(session.Attempts, attempt)
		return execFailure, false
	}

	attempt.Result = result
	session.Attempts = append(session.Attempts, attempt)
	session.FinalSQL = sqlQuery
	session.Result = result
	session.Status = models.SessionSucceeded

	e.logger.Info("Session succeeded",
		zap.String("session_id", session.ID.String()),
		zap.Int("attempts", len(session.Attempts)),
		zap.Int("rows", result.RowCount))
	return nil, true
}

func (e *engine) transition(session *models.QuerySession, state State, attemptIdx int) {
	e.logger.Debug("State transition",
		zap.String("session_id", session.ID.String()),
		zap.String("state", string(state)),
		zap.Int("attempt", attemptIdx))
}

// classifyModelError maps model client errors onto the failure taxonomy.
// Only a per-call timeout is recoverable and counts against the budget;
// outages, rate limits, and auth failures end the session so a down service
// is not hammered with the remaining attempts.
func classifyModelError(err error) *models.FailureReason {
	message := "model service unavailable: " + err.Error()

	var llmErr *llm.Error
	if errors.As(err, &llmErr) {
		message = "model service unavailable: " + llmErr.Message
	}

	timedOut := errors.Is(err, context.DeadlineExceeded) ||
		llm.GetErrorType(err) == llm.ErrorTypeTimeout

	return &models.FailureReason{
		Kind:        models.FailureServiceDown,
		Message:     message,
		Recoverable: timedOut,
	}
}
