package sqlcheck

import (
	"regexp"
	"strings"
)

// StatementType represents the type of SQL statement.
type StatementType string

const (
	StatementSelect  StatementType = "SELECT"
	StatementInsert  StatementType = "INSERT"
	StatementUpdate  StatementType = "UPDATE"
	StatementDelete  StatementType = "DELETE"
	StatementCall    StatementType = "CALL"
	StatementDDL     StatementType = "DDL"     // CREATE, ALTER, DROP, TRUNCATE
	StatementUnknown StatementType = "UNKNOWN" // Unrecognized or blocked statement types
)

// modifyingCTEPattern matches CTEs that contain data-modifying operations.
// Example: WITH deleted AS (DELETE FROM ...) SELECT * FROM deleted
var modifyingCTEPattern = regexp.MustCompile(`(?i)\bAS\s*\(\s*(INSERT|UPDATE|DELETE)\b`)

// DetectStatementType determines the type of SQL statement based on the first keyword.
// Returns StatementDDL for DDL statements (CREATE, ALTER, DROP, TRUNCATE) which
// are never allowed, and StatementUnknown for unrecognized statements or
// data-modifying CTEs.
func DetectStatementType(sql string) StatementType {
	normalized := strings.ToUpper(strings.TrimSpace(sql))

	switch {
	case strings.HasPrefix(normalized, "SELECT"):
		return StatementSelect

	case strings.HasPrefix(normalized, "WITH"):
		// CTEs starting with WITH could be a pure SELECT or a data-modifying
		// CTE such as WITH deleted AS (DELETE FROM ...) SELECT * FROM deleted.
		// Data-modifying CTEs are blocked.
		if modifyingCTEPattern.MatchString(sql) {
			return StatementUnknown
		}
		return StatementSelect

	case strings.HasPrefix(normalized, "INSERT"):
		return StatementInsert

	case strings.HasPrefix(normalized, "UPDATE"):
		return StatementUpdate

	case strings.HasPrefix(normalized, "DELETE"):
		return StatementDelete

	case strings.HasPrefix(normalized, "CALL"):
		return StatementCall

	// DDL statements - blocked entirely
	case strings.HasPrefix(normalized, "CREATE"),
		strings.HasPrefix(normalized, "ALTER"),
		strings.HasPrefix(normalized, "DROP"),
		strings.HasPrefix(normalized, "TRUNCATE"):
		return StatementDDL

	// Transaction control - blocked (the pipeline never orchestrates transactions)
	case strings.HasPrefix(normalized, "BEGIN"),
		strings.HasPrefix(normalized, "COMMIT"),
		strings.HasPrefix(normalized, "ROLLBACK"),
		strings.HasPrefix(normalized, "SAVEPOINT"):
		return StatementUnknown

	default:
		return StatementUnknown
	}
}

// IsModifyingStatement returns true if the SQL statement type can modify data.
func IsModifyingStatement(t StatementType) bool {
	switch t {
	case StatementInsert, StatementUpdate, StatementDelete, StatementCall:
		return true
	default:
		return false
	}
}

// PolicyError reports a statement blocked by the statement-type policy.
type PolicyError struct {
	Type    StatementType
	Message string
}

func (e *PolicyError) Error() string {
	return e.Message
}

// Policy is the configurable statement allow-list. The zero value allows
// nothing; DefaultPolicy allows only SELECT, which is the read-only default
// documented in the configuration reference.
type Policy struct {
	Allowed map[StatementType]bool
}

// DefaultPolicy returns the read-only policy: SELECT statements (including
// pure-SELECT CTEs) only.
func DefaultPolicy() Policy {
	return Policy{Allowed: map[StatementType]bool{StatementSelect: true}}
}

// NewPolicy builds a policy from configured statement names. DDL can never be
// allowed; unknown names are ignored.
func NewPolicy(statements []string) Policy {
	allowed := make(map[StatementType]bool, len(statements))
	for _, s := range statements {
		t := StatementType(strings.ToUpper(strings.TrimSpace(s)))
		switch t {
		case StatementSelect, StatementInsert, StatementUpdate, StatementDelete, StatementCall:
			allowed[t] = true
		}
	}
	return Policy{Allowed: allowed}
}

// Check validates the statement type against the allow-list.
//
// Rules:
//   - DDL statements (CREATE, ALTER, DROP, TRUNCATE) are never allowed
//   - Unknown statement types (including data-modifying CTEs and transaction
//     control) are never allowed
//   - Everything else must be in the allow-list
func (p Policy) Check(sql string) (StatementType, error) {
	t := DetectStatementType(sql)

	if t == StatementDDL {
		return t, &PolicyError{
			Type:    t,
			Message: "DDL statements (CREATE, ALTER, DROP, TRUNCATE) are not allowed",
		}
	}

	if t == StatementUnknown {
		return t, &PolicyError{
			Type:    t,
			Message: "unrecognized or blocked SQL statement type",
		}
	}

	if !p.Allowed[t] {
		return t, &PolicyError{
			Type:    t,
			Message: "statement type " + string(t) + " is not in the allow-list",
		}
	}

	return t, nil
}
