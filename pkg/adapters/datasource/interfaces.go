package datasource

import (
	"context"

	"github.com/askdb-inc/askdb-engine/pkg/models"
)

// MaxQueryLimit is the hard cap on rows returned by Connector.Query.
// Protects the engine against unbounded result sets.
const MaxQueryLimit = 1000

// Connector is a live connection to a target database. Implementations own
// their connection pool and must be closed when done.
type Connector interface {
	// DescribeSchema returns every user table with its columns and foreign
	// keys, excluding system schemas.
	DescribeSchema(ctx context.Context) ([]models.Table, error)

	// Query runs a SELECT statement and returns bounded results. The query
	// is always wrapped with a dialect-specific limit:
	//   - PostgreSQL: SELECT * FROM (query) AS _limited LIMIT n
	//   - SQL Server: SELECT TOP (n) * FROM (query) AS _limited
	// limit <= 0 or limit > MaxQueryLimit uses MaxQueryLimit.
	Query(ctx context.Context, sqlQuery string, limit int) (*models.ResultSet, error)

	// PrepareOnly checks that a statement is syntactically valid and
	// resolvable against the live database without executing it.
	PrepareOnly(ctx context.Context, sqlQuery string) error

	// Dialect returns the connector's dialect name ("postgres", "mssql").
	Dialect() string

	// Close releases the connection pool.
	Close() error
}

// EffectiveLimit clamps a requested row limit to (0, MaxQueryLimit].
func EffectiveLimit(limit int) int {
	if limit <= 0 || limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
