package schema

import (
	"sort"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/askdb-inc/askdb-engine/pkg/models"
)

// FragmentSelector ranks tables of a snapshot by lexical relevance to a
// question and returns the top fragments for prompt composition.
//
// Scoring is token overlap between the question and the table metadata, with
// singular/plural folding so "customers" in a question still matches a
// "customer" table. Table name hits weigh more than column hits.
type FragmentSelector struct {
	maxFragments int
}

// NewFragmentSelector creates a FragmentSelector returning at most
// maxFragments fragments per question.
func NewFragmentSelector(maxFragments int) *FragmentSelector {
	if maxFragments <= 0 {
		maxFragments = 8
	}
	return &FragmentSelector{maxFragments: maxFragments}
}

const (
	tableNameWeight  = 3.0
	columnNameWeight = 1.0
	foreignKeyWeight = 1.5
)

// Select returns the fragments of the snapshot relevant to the question,
// ordered by descending score. Tables with no overlap at all are omitted; an
// unrelated question yields an empty slice rather than the whole schema.
func (s *FragmentSelector) Select(snapshot *models.SchemaDescriptor, question string) []models.SchemaFragment {
	if snapshot == nil || len(snapshot.Tables) == 0 {
		return nil
	}

	questionTokens := foldTokens(tokenizeText(question))
	if len(questionTokens) == 0 {
		return nil
	}

	fragments := make([]models.SchemaFragment, 0, len(snapshot.Tables))
	for _, table := range snapshot.Tables {
		score := scoreTable(&table, questionTokens)
		if score <= 0 {
			continue
		}
		fragments = append(fragments, models.SchemaFragment{Table: table, Score: score})
	}

	sort.SliceStable(fragments, func(i, j int) bool {
		return fragments[i].Score > fragments[j].Score
	})

	if len(fragments) > s.maxFragments {
		fragments = fragments[:s.maxFragments]
	}
	return fragments
}

func scoreTable(table *models.Table, questionTokens map[string]bool) float64 {
	score := 0.0

	for token := range foldTokens(tokenizeText(table.Name)) {
		if questionTokens[token] {
			score += tableNameWeight
		}
	}

	for _, column := range table.Columns {
		for token := range foldTokens(tokenizeText(column.Name)) {
			if questionTokens[token] {
				score += columnNameWeight
			}
		}
	}

	// A referenced table mentioned in the question makes the referencing
	// table useful for joins too.
	for _, fk := range table.ForeignKeys {
		for token := range foldTokens(tokenizeText(fk.ReferencedTable)) {
			if questionTokens[token] {
				score += foreignKeyWeight
			}
		}
	}

	return score
}

// tokenizeText splits text on non-alphanumeric runes, lowercased. Snake and
// camel case identifiers split into their words.
func tokenizeText(text string) []string {
	var tokens []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 1 {
			tokens = append(tokens, strings.ToLower(current.String()))
		}
		current.Reset()
	}

	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			current.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			if current.Len() > 0 {
				last := current.String()[current.Len()-1]
				if last >= 'a' && last <= 'z' {
					flush()
				}
			}
			current.WriteRune(r)
		default:
			flush()
		}
	}
	flush()
	return tokens
}

// foldTokens maps every token to its singular form so plural question words
// match singular table names and vice versa.
func foldTokens(tokens []string) map[string]bool {
	folded := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		folded[inflection.Singular(token)] = true
	}
	return folded
}
