package generation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/models"
	"github.com/askdb-inc/askdb-engine/pkg/sqlcheck"
)

type fakeDryRunner struct {
	err   error
	calls int
	last  string
}

func (f *fakeDryRunner) PrepareOnly(ctx context.Context, sqlQuery string) error {
	f.calls++
	f.last = sqlQuery
	if f.err != nil {
		return f.err
	}
	return ctx.Err()
}

func validatorSnapshot() *models.SchemaDescriptor {
	return models.NewSchemaDescriptor([]models.Table{
		{
			Schema: "public",
			Name:   "customers",
			Columns: []models.Column{
				{Name: "id", DataType: "integer", IsPrimary: true},
				{Name: "name", DataType: "text"},
			},
		},
		{
			Schema: "public",
			Name:   "orders",
			Columns: []models.Column{
				{Name: "id", DataType: "integer", IsPrimary: true},
				{Name: "customer_id", DataType: "integer"},
				{Name: "total", DataType: "numeric"},
			},
		},
	})
}

func newTestValidator(dryRun DryRunner) *Validator {
	return NewValidator(sqlcheck.DefaultPolicy(), dryRun, zap.NewNop())
}

func TestValidator_AcceptsValidStatements(t *testing.T) {
	tests := []struct {
		name string
		sql  string
		want string
	}{
		{
			name: "simple select",
			sql:  "SELECT id, name FROM customers",
			want: "SELECT id, name FROM customers",
		},
		{
			name: "trailing semicolon normalized away",
			sql:  "SELECT id FROM customers;",
			want: "SELECT id FROM customers",
		},
		{
			name: "join with aliases",
			sql:  "SELECT c.name, o.total FROM customers c JOIN orders o ON o.customer_id = c.id",
			want: "SELECT c.name, o.total FROM customers c JOIN orders o ON o.customer_id = c.id",
		},
		{
			name: "cte names are exempt",
			sql:  "WITH big AS (SELECT customer_id FROM orders WHERE total > 100) SELECT * FROM big",
			want: "WITH big AS (SELECT customer_id FROM orders WHERE total > 100) SELECT * FROM big",
		},
		{
			name: "schema qualified table",
			sql:  "SELECT id FROM public.customers",
			want: "SELECT id FROM public.customers",
		},
	}

	validator := newTestValidator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, failure := validator.Validate(context.Background(), tt.sql, validatorSnapshot())
			require.Nil(t, failure)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestValidator_MultiStatementIsRecoverableParseFailure(t *testing.T) {
	validator := newTestValidator(nil)

	_, failure := validator.Validate(context.Background(), "SELECT 1; SELECT 2", validatorSnapshot())
	require.NotNil(t, failure)
	assert.Equal(t, models.FailureParse, failure.Kind)
	assert.True(t, failure.Recoverable)
	assert.Contains(t, failure.Message, "exactly one statement")
}

func TestValidator_PolicyRejectionIsNonRecoverable(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{name: "delete", sql: "DELETE FROM customers"},
		{name: "update", sql: "UPDATE customers SET name = 'x'"},
		{name: "drop", sql: "DROP TABLE customers"},
		{name: "modifying cte", sql: "WITH gone AS (DELETE FROM orders RETURNING id) SELECT * FROM gone"},
	}

	validator := newTestValidator(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, failure := validator.Validate(context.Background(), tt.sql, validatorSnapshot())
			require.NotNil(t, failure)
			assert.Equal(t, models.FailurePolicyRejection, failure.Kind)
			assert.False(t, failure.Recoverable)
		})
	}
}

func TestValidator_UnknownTable(t *testing.T) {
	validator := newTestValidator(nil)

	_, failure := validator.Validate(context.Background(), "SELECT id FROM employees", validatorSnapshot())
	require.NotNil(t, failure)
	assert.Equal(t, models.FailureSchemaValidation, failure.Kind)
	assert.True(t, failure.Recoverable)
	assert.Contains(t, failure.Message, `unknown table "employees"`)
}

func TestValidator_UnknownColumn(t *testing.T) {
	validator := newTestValidator(nil)

	tests := []struct {
		name    string
		sql     string
		message string
	}{
		{
			name:    "bare column",
			sql:     "SELECT salary FROM customers",
			message: `unknown column "salary"`,
		},
		{
			name:    "qualified column",
			sql:     "SELECT c.salary FROM customers c",
			message: `unknown column "c.salary"`,
		},
		{
			name:    "unknown alias",
			sql:     "SELECT x.id FROM customers c",
			message: `unknown table or alias "x"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, failure := validator.Validate(context.Background(), tt.sql, validatorSnapshot())
			require.NotNil(t, failure)
			assert.Equal(t, models.FailureSchemaValidation, failure.Kind)
			assert.True(t, failure.Recoverable)
			assert.Contains(t, failure.Message, tt.message)
		})
	}
}

func TestValidator_DryRunRejection(t *testing.T) {
	dryRun := &fakeDryRunner{err: errors.New(`syntax error at or near "FORM"`)}
	validator := newTestValidator(dryRun)

	// Identifier extraction passes, the database does not.
	_, failure := validator.Validate(context.Background(), "SELECT id FROM customers GROUP BY", validatorSnapshot())
	require.NotNil(t, failure)
	assert.Equal(t, models.FailureSchemaValidation, failure.Kind)
	assert.True(t, failure.Recoverable)
	assert.Contains(t, failure.Message, "database rejected the statement")
	assert.Equal(t, 1, dryRun.calls)
}

func TestValidator_DryRunTimeout(t *testing.T) {
	dryRun := &fakeDryRunner{err: context.DeadlineExceeded}
	validator := newTestValidator(dryRun)

	_, failure := validator.Validate(context.Background(), "SELECT id FROM customers", validatorSnapshot())
	require.NotNil(t, failure)
	assert.Equal(t, models.FailureServiceDown, failure.Kind)
	assert.True(t, failure.Recoverable)
}

func TestValidator_DryRunSkippedWhenDisabled(t *testing.T) {
	validator := newTestValidator(nil)

	normalized, failure := validator.Validate(context.Background(), "SELECT id FROM customers", validatorSnapshot())
	require.Nil(t, failure)
	assert.Equal(t, "SELECT id FROM customers", normalized)
}

func TestValidator_DryRunReceivesNormalizedSQL(t *testing.T) {
	dryRun := &fakeDryRunner{}
	validator := newTestValidator(dryRun)

	_, failure := validator.Validate(context.Background(), "SELECT id FROM customers;", validatorSnapshot())
	require.Nil(t, failure)
	assert.Equal(t, "SELECT id FROM customers", dryRun.last)
}
