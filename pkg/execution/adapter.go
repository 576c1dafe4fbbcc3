package execution

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/adapters/datasource"
	"github.com/askdb-inc/askdb-engine/pkg/config"
	"github.com/askdb-inc/askdb-engine/pkg/logging"
	"github.com/askdb-inc/askdb-engine/pkg/models"
	"github.com/askdb-inc/askdb-engine/pkg/sqlcheck"
)

// ErrorClass categorizes an execution error for logging and repair hints.
type ErrorClass string

const (
	ErrorTimeout      ErrorClass = "timeout"
	ErrorConstraint   ErrorClass = "constraint"
	ErrorConnectivity ErrorClass = "connectivity"
	ErrorOther        ErrorClass = "other"
)

// Adapter runs validated statements against the target database. It enforces
// the statement allow-list a second time before dispatch, bounds every call
// with a timeout and a row cap, and never retries.
type Adapter struct {
	connector datasource.Connector
	policy    sqlcheck.Policy
	timeout   time.Duration
	maxRows   int
	logger    *zap.Logger
}

// NewAdapter creates an execution Adapter.
func NewAdapter(connector datasource.Connector, policy sqlcheck.Policy, cfg config.ExecutionConfig, logger *zap.Logger) *Adapter {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxRows := cfg.MaxRows
	if maxRows <= 0 || maxRows > datasource.MaxQueryLimit {
		maxRows = datasource.MaxQueryLimit
	}
	return &Adapter{
		connector: connector,
		policy:    policy,
		timeout:   timeout,
		maxRows:   maxRows,
		logger:    logger.Named("execution"),
	}
}

// Execute runs one statement and returns the normalized result set. The
// allow-list check is repeated here so the adapter is safe even when called
// outside the validation chain.
func (a *Adapter) Execute(ctx context.Context, sqlQuery string) (*models.ResultSet, *models.FailureReason) {
	if _, err := a.policy.Check(sqlQuery); err != nil {
		return nil, &models.FailureReason{
			Kind:        models.FailurePolicyRejection,
			Message:     err.Error(),
			Recoverable: false,
		}
	}

	execCtx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	result, err := a.connector.Query(execCtx, sqlQuery, a.maxRows)
	elapsed := time.Since(start)

	if err != nil {
		class := classify(err)
		a.logger.Warn("Query execution failed",
			zap.String("class", string(class)),
			zap.String("query", logging.SanitizeQuery(sqlQuery)),
			zap.Duration("elapsed", elapsed),
			zap.String("error", logging.SanitizeError(err)))
		return nil, failureFor(class, err)
	}

	a.logger.Debug("Query executed",
		zap.Int("rows", result.RowCount),
		zap.Duration("elapsed", elapsed))
	return result, nil
}

// classify buckets an execution error. Constraint and syntax problems come
// back from PostgreSQL with SQLSTATE codes; SQL Server and transport errors
// fall through to string matching.
func classify(err error) ErrorClass {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTimeout
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "23"): // integrity constraint violation
			return ErrorConstraint
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception
			return ErrorConnectivity
		}
		return ErrorOther
	}

	message := strings.ToLower(err.Error())
	switch {
	case strings.Contains(message, "timeout"), strings.Contains(message, "deadline"):
		return ErrorTimeout
	case strings.Contains(message, "constraint"), strings.Contains(message, "violates"):
		return ErrorConstraint
	case strings.Contains(message, "connection refused"),
		strings.Contains(message, "connection reset"),
		strings.Contains(message, "broken pipe"),
		strings.Contains(message, "no such host"):
		return ErrorConnectivity
	default:
		return ErrorOther
	}
}

// failureFor maps an error class onto the failure taxonomy. Only timeouts are
// recoverable: a slow query can be repaired into a more selective one and the
// timeout counts against the session's retry budget. Connectivity problems
// and other execution errors end the session; the caller decides whether to
// start a new one.
func failureFor(class ErrorClass, err error) *models.FailureReason {
	switch class {
	case ErrorConnectivity:
		return &models.FailureReason{
			Kind:        models.FailureServiceDown,
			Message:     "target database unreachable: " + err.Error(),
			Recoverable: false,
		}
	case ErrorTimeout:
		return &models.FailureReason{
			Kind:        models.FailureExecution,
			Message:     "query timed out; generate a more selective query",
			Recoverable: true,
		}
	default:
		return &models.FailureReason{
			Kind:        models.FailureExecution,
			Message:     "query failed: " + err.Error(),
			Recoverable: false,
		}
	}
}
