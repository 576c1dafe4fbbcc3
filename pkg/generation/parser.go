package generation

import (
	"regexp"
	"strings"

	"github.com/askdb-inc/askdb-engine/pkg/models"
)

// thinkTagPattern matches reasoning blocks some models emit before the answer.
var thinkTagPattern = regexp.MustCompile(`(?s)<think>.*?</think>`)

// statementHeads are the keywords a candidate statement may start with. The
// parse step only requires a recognizable head; whether the statement type is
// allowed is the policy's decision.
var statementHeads = []string{
	"SELECT", "WITH", "INSERT", "UPDATE", "DELETE", "CALL",
	"CREATE", "ALTER", "DROP", "TRUNCATE",
	"BEGIN", "COMMIT", "ROLLBACK", "SAVEPOINT",
	"EXPLAIN", "SHOW",
}

// Parse extracts a candidate SQL statement from raw model output. Models are
// instructed to answer with bare SQL but routinely wrap it in markdown fences
// or prepend reasoning; both are stripped before the statement head check.
//
// Returns the cleaned statement, or a recoverable parse failure that feeds
// the repair loop.
func Parse(raw string) (string, *models.FailureReason) {
	cleaned := thinkTagPattern.ReplaceAllString(raw, "")
	cleaned = stripFences(cleaned)
	cleaned = strings.TrimSpace(cleaned)
	// A fence opened as ```sql on a single line leaves the tag behind.
	if rest, ok := strings.CutPrefix(cleaned, "sql"); ok {
		cleaned = strings.TrimSpace(rest)
	}

	if cleaned == "" {
		return "", &models.FailureReason{
			Kind:        models.FailureParse,
			Message:     "model output contained no SQL statement",
			Recoverable: true,
		}
	}

	upper := strings.ToUpper(cleaned)
	for _, head := range statementHeads {
		if strings.HasPrefix(upper, head) {
			return cleaned, nil
		}
	}

	return "", &models.FailureReason{
		Kind:        models.FailureParse,
		Message:     "model output does not start with a SQL statement; respond with the SQL query only",
		Recoverable: true,
	}
}

// stripFences removes markdown code fences. When a fenced block is present
// its content replaces the whole output, since models often surround the
// fence with prose.
func stripFences(text string) string {
	start := strings.Index(text, "```")
	if start == -1 {
		return text
	}

	rest := text[start+3:]
	// Drop an optional language tag on the fence line.
	if newline := strings.IndexByte(rest, '\n'); newline != -1 {
		firstLine := strings.TrimSpace(rest[:newline])
		if firstLine == "sql" || firstLine == "SQL" || firstLine == "" {
			rest = rest[newline+1:]
		}
	}

	if end := strings.Index(rest, "```"); end != -1 {
		return rest[:end]
	}
	return rest
}
