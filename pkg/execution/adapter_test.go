package execution

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/config"
	"github.com/askdb-inc/askdb-engine/pkg/models"
	"github.com/askdb-inc/askdb-engine/pkg/sqlcheck"
)

type fakeConnector struct {
	result    *models.ResultSet
	err       error
	calls     int
	lastLimit int
	lastSQL   string
}

func (f *fakeConnector) DescribeSchema(ctx context.Context) ([]models.Table, error) {
	return nil, nil
}

func (f *fakeConnector) Query(ctx context.Context, sqlQuery string, limit int) (*models.ResultSet, error) {
	f.calls++
	f.lastSQL = sqlQuery
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeConnector) PrepareOnly(ctx context.Context, sqlQuery string) error { return nil }
func (f *fakeConnector) Dialect() string                                        { return "postgres" }
func (f *fakeConnector) Close() error                                           { return nil }

func newTestAdapter(connector *fakeConnector, cfg config.ExecutionConfig) *Adapter {
	return NewAdapter(connector, sqlcheck.DefaultPolicy(), cfg, zap.NewNop())
}

func TestAdapter_Execute(t *testing.T) {
	connector := &fakeConnector{
		result: &models.ResultSet{
			Columns:  []models.ColumnInfo{{Name: "count", Type: "int8"}},
			Rows:     []map[string]any{{"count": int64(42)}},
			RowCount: 1,
		},
	}
	adapter := newTestAdapter(connector, config.ExecutionConfig{TimeoutSeconds: 30, MaxRows: 100})

	result, failure := adapter.Execute(context.Background(), "SELECT COUNT(*) FROM customers")
	require.Nil(t, failure)
	require.NotNil(t, result)
	assert.Equal(t, 1, result.RowCount)
	assert.Equal(t, "SELECT COUNT(*) FROM customers", connector.lastSQL)
	assert.Equal(t, 100, connector.lastLimit)
}

func TestAdapter_PolicyRecheck(t *testing.T) {
	connector := &fakeConnector{}
	adapter := newTestAdapter(connector, config.ExecutionConfig{})

	_, failure := adapter.Execute(context.Background(), "DELETE FROM customers")
	require.NotNil(t, failure)
	assert.Equal(t, models.FailurePolicyRejection, failure.Kind)
	assert.False(t, failure.Recoverable)
	assert.Zero(t, connector.calls, "a disallowed statement must never reach the connector")
}

func TestAdapter_FailureMapping(t *testing.T) {
	tests := []struct {
		name            string
		err             error
		wantKind        models.FailureKind
		wantMessage     string
		wantRecoverable bool
	}{
		{
			name:            "deadline exceeded",
			err:             context.DeadlineExceeded,
			wantKind:        models.FailureExecution,
			wantMessage:     "query timed out",
			wantRecoverable: true,
		},
		{
			name:        "pg constraint violation",
			err:         &pgconn.PgError{Code: "23505", Message: "duplicate key value"},
			wantKind:    models.FailureExecution,
			wantMessage: "query failed",
		},
		{
			name:        "pg connection exception",
			err:         &pgconn.PgError{Code: "08006", Message: "connection failure"},
			wantKind:    models.FailureServiceDown,
			wantMessage: "target database unreachable",
		},
		{
			name:        "pg undefined function",
			err:         &pgconn.PgError{Code: "42883", Message: "function does not exist"},
			wantKind:    models.FailureExecution,
			wantMessage: "query failed",
		},
		{
			name:            "string matched timeout",
			err:             errors.New("mssql: query timeout expired"),
			wantKind:        models.FailureExecution,
			wantMessage:     "query timed out",
			wantRecoverable: true,
		},
		{
			name:        "string matched connectivity",
			err:         errors.New("dial tcp 10.0.0.5:1433: connection refused"),
			wantKind:    models.FailureServiceDown,
			wantMessage: "target database unreachable",
		},
		{
			name:        "anything else",
			err:         errors.New("division by zero"),
			wantKind:    models.FailureExecution,
			wantMessage: "query failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter := newTestAdapter(&fakeConnector{err: tt.err}, config.ExecutionConfig{})

			_, failure := adapter.Execute(context.Background(), "SELECT 1")
			require.NotNil(t, failure)
			assert.Equal(t, tt.wantKind, failure.Kind)
			// Only timeouts feed the repair loop; everything else ends the session.
			assert.Equal(t, tt.wantRecoverable, failure.Recoverable)
			assert.Contains(t, failure.Message, tt.wantMessage)
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: ErrorTimeout},
		{name: "wrapped deadline", err: errors.New("context deadline exceeded"), want: ErrorTimeout},
		{name: "pg constraint", err: &pgconn.PgError{Code: "23503"}, want: ErrorConstraint},
		{name: "pg connection", err: &pgconn.PgError{Code: "08001"}, want: ErrorConnectivity},
		{name: "pg syntax", err: &pgconn.PgError{Code: "42601"}, want: ErrorOther},
		{name: "violates text", err: errors.New(`new row violates check constraint "positive_total"`), want: ErrorConstraint},
		{name: "broken pipe", err: errors.New("write: broken pipe"), want: ErrorConnectivity},
		{name: "unknown", err: errors.New("something odd"), want: ErrorOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}
}

func TestNewAdapter_Defaults(t *testing.T) {
	adapter := newTestAdapter(&fakeConnector{}, config.ExecutionConfig{})

	assert.Equal(t, 30*time.Second, adapter.timeout)
	assert.Equal(t, 1000, adapter.maxRows)

	capped := newTestAdapter(&fakeConnector{}, config.ExecutionConfig{MaxRows: 50000})
	assert.Equal(t, 1000, capped.maxRows)
}
