package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/models"
	"github.com/askdb-inc/askdb-engine/pkg/sqlcheck"
)

// DryRunner validates a statement against the live database without
// executing it.
type DryRunner interface {
	PrepareOnly(ctx context.Context, sqlQuery string) error
}

// Validator runs the static validation chain on a parsed statement:
// normalization, multi-statement detection, statement-type policy, schema
// validation against the session's frozen snapshot, and an optional database
// dry-run.
type Validator struct {
	policy sqlcheck.Policy
	dryRun DryRunner // nil disables the dry-run step
	logger *zap.Logger
}

// NewValidator creates a Validator. Pass a nil DryRunner to skip the
// database round-trip.
func NewValidator(policy sqlcheck.Policy, dryRun DryRunner, logger *zap.Logger) *Validator {
	return &Validator{
		policy: policy,
		dryRun: dryRun,
		logger: logger.Named("validator"),
	}
}

// Validate returns the normalized statement, or the failure that stopped it.
// Policy rejections are non-recoverable; everything else feeds the repair
// loop.
func (v *Validator) Validate(ctx context.Context, sqlQuery string, snapshot *models.SchemaDescriptor) (string, *models.FailureReason) {
	result := sqlcheck.ValidateAndNormalize(sqlQuery)
	if result.Error != nil {
		return "", &models.FailureReason{
			Kind:        models.FailureParse,
			Message:     "generate exactly one statement: " + result.Error.Error(),
			Recoverable: true,
		}
	}
	normalized := result.NormalizedSQL

	if _, err := v.policy.Check(normalized); err != nil {
		var policyErr *sqlcheck.PolicyError
		message := err.Error()
		if errors.As(err, &policyErr) {
			message = fmt.Sprintf("statement type %s is not allowed: %s", policyErr.Type, policyErr.Message)
		}
		return "", &models.FailureReason{
			Kind:        models.FailurePolicyRejection,
			Message:     message,
			Recoverable: false,
		}
	}

	if failure := v.checkSchema(normalized, snapshot); failure != nil {
		return "", failure
	}

	if v.dryRun != nil {
		if err := v.dryRun.PrepareOnly(ctx, normalized); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
				return "", &models.FailureReason{
					Kind:        models.FailureServiceDown,
					Message:     "database validation timed out",
					Recoverable: true,
				}
			}
			return "", &models.FailureReason{
				Kind:        models.FailureSchemaValidation,
				Message:     "database rejected the statement: " + err.Error(),
				Recoverable: true,
			}
		}
	}

	return normalized, nil
}

// checkSchema verifies every referenced table and column against the frozen
// snapshot. Names the statement defines itself (CTEs, aliases) are exempt.
func (v *Validator) checkSchema(sqlQuery string, snapshot *models.SchemaDescriptor) *models.FailureReason {
	ids := sqlcheck.ExtractIdentifiers(sqlQuery)

	// alias -> table name, for resolving qualified column references.
	aliases := make(map[string]string, len(ids.Tables))

	for _, table := range ids.Tables {
		if ids.DefinedNames[strings.ToLower(table.Name)] {
			continue
		}
		if _, ok := snapshot.FindTable(table.Name); !ok {
			return &models.FailureReason{
				Kind:        models.FailureSchemaValidation,
				Message:     fmt.Sprintf("unknown table %q; use only tables from the provided schema", table.Name),
				Recoverable: true,
			}
		}
		if table.Alias != "" {
			aliases[strings.ToLower(table.Alias)] = table.Name
		}
	}

	for _, column := range ids.Columns {
		if failure := v.checkColumn(column, ids, aliases, snapshot); failure != nil {
			return failure
		}
	}
	return nil
}

func (v *Validator) checkColumn(column sqlcheck.ColumnRef, ids sqlcheck.Identifiers, aliases map[string]string, snapshot *models.SchemaDescriptor) *models.FailureReason {
	unknownColumn := func() *models.FailureReason {
		name := column.Name
		if column.Qualifier != "" {
			name = column.Qualifier + "." + column.Name
		}
		return &models.FailureReason{
			Kind:        models.FailureSchemaValidation,
			Message:     fmt.Sprintf("unknown column %q; use only columns from the provided schema", name),
			Recoverable: true,
		}
	}

	if column.Qualifier == "" {
		if ids.DefinedNames[strings.ToLower(column.Name)] {
			return nil
		}
		if !snapshot.HasColumn(column.Name) {
			return unknownColumn()
		}
		return nil
	}

	qualifier := strings.ToLower(column.Qualifier)

	// Extraction reports schema-qualified table references as qualifier.name
	// pairs too; skip those that resolve to a table.
	if _, ok := snapshot.FindTable(column.Qualifier + "." + column.Name); ok {
		return nil
	}

	// A qualifier that names a CTE or subquery alias cannot be checked.
	if ids.DefinedNames[qualifier] {
		return nil
	}

	tableName := column.Qualifier
	if resolved, ok := aliases[qualifier]; ok {
		tableName = resolved
	}

	table, ok := snapshot.FindTable(tableName)
	if !ok {
		// Qualifier is neither a known table nor a defined name.
		return &models.FailureReason{
			Kind:        models.FailureSchemaValidation,
			Message:     fmt.Sprintf("unknown table or alias %q; use only tables from the provided schema", column.Qualifier),
			Recoverable: true,
		}
	}

	if !snapshot.TableHasColumn(table.Name, column.Name) {
		return unknownColumn()
	}
	return nil
}
