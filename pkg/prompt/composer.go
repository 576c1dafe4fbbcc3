package prompt

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/models"
)

// SectionKind classifies a prompt section for truncation ordering.
type SectionKind string

const (
	SectionSchema       SectionKind = "schema"
	SectionExample      SectionKind = "example"
	SectionConversation SectionKind = "conversation"
	SectionRepair       SectionKind = "repair"
)

// Section is one block of prompt context.
type Section struct {
	Kind  SectionKind
	Title string
	Body  string
	// Score orders sections of the same kind during truncation. Higher is
	// more relevant.
	Score float64
}

// Request is the structured prompt handed to the model client.
type Request struct {
	System   string
	Sections []Section
	Question string
}

// systemPrompt follows the original directive style: context names only,
// bare SQL output, no markdown.
const systemPrompt = `You are a SQL generation expert. Your task is to generate a single, valid SQL query based on a user's question and the provided context.

Follow these rules strictly:
1. The context contains table schemas, similar solved queries, and prior conversation. It is your only source of truth.
2. Use the table and column names exactly as provided in the context. Do not invent or assume table or column names.
3. Generate exactly one statement. Do not generate multiple statements.
4. Do not add any explanation, comments, or markdown. Your output must be only the SQL query.`

// Render flattens the request into a single user message.
func (r *Request) Render() string {
	var b strings.Builder
	if len(r.Sections) > 0 {
		b.WriteString("CONTEXT:\n")
		for _, section := range r.Sections {
			b.WriteString("-- ")
			b.WriteString(section.Title)
			b.WriteString("\n")
			b.WriteString(section.Body)
			b.WriteString("\n\n")
		}
	}
	b.WriteString("USER QUESTION:\n")
	b.WriteString(r.Question)
	b.WriteString("\n\nSQL QUERY:\n")
	return b.String()
}

// EstimatedTokens approximates the request size as chars/4.
func (r *Request) EstimatedTokens() int {
	chars := len(r.System) + len(r.Question)
	for _, section := range r.Sections {
		chars += len(section.Title) + len(section.Body)
	}
	return chars / 4
}

// Turn is one prior question/answer pair of the conversation.
type Turn struct {
	Question string
	SQL      string
}

// RepairContext carries the failed draft into the next attempt.
type RepairContext struct {
	PriorSQL string
	Failure  string
}

// Composer builds prompt requests under an approximate token budget.
type Composer struct {
	budget int
	logger *zap.Logger
}

// NewComposer creates a Composer with the given token budget.
func NewComposer(budgetTokens int, logger *zap.Logger) *Composer {
	if budgetTokens <= 0 {
		budgetTokens = 6000
	}
	return &Composer{budget: budgetTokens, logger: logger.Named("prompt")}
}

// Compose builds the prompt for one generation attempt. When the request is
// over budget, sections are dropped in priority order: oldest conversation
// turns first, then lowest-similarity examples, then least-relevant schema
// fragments. The question and any repair context are never dropped.
func (c *Composer) Compose(question string, retrieved *models.RetrievalResult, history []Turn, repair *RepairContext) *Request {
	if retrieved == nil {
		retrieved = &models.RetrievalResult{}
	}

	request := &Request{
		System:   systemPrompt,
		Question: question,
	}

	for _, fragment := range retrieved.Fragments {
		request.Sections = append(request.Sections, Section{
			Kind:  SectionSchema,
			Title: "Table Schema: " + fragment.Table.QualifiedName(),
			Body:  renderTable(&fragment.Table),
			Score: fragment.Score,
		})
	}

	for _, example := range retrieved.Examples {
		request.Sections = append(request.Sections, Section{
			Kind:  SectionExample,
			Title: "Similar Query",
			Body:  fmt.Sprintf("Question: %s\nSQL: %s", example.Example.Question, example.Example.SQL),
			Score: example.Score,
		})
	}

	// Newer turns matter more.
	for i, turn := range history {
		request.Sections = append(request.Sections, Section{
			Kind:  SectionConversation,
			Title: "Earlier In This Conversation",
			Body:  fmt.Sprintf("Question: %s\nSQL: %s", turn.Question, turn.SQL),
			Score: float64(i),
		})
	}

	if repair != nil {
		request.Sections = append(request.Sections, Section{
			Kind:  SectionRepair,
			Title: "Previous Attempt Failed",
			Body: fmt.Sprintf("This SQL was rejected:\n%s\n\nReason: %s\nGenerate a corrected query.",
				repair.PriorSQL, repair.Failure),
		})
	}

	c.truncate(request)
	return request
}

// truncate drops sections until the request fits the budget. Drop order is
// conversation, then examples, then schema fragments, each lowest score
// first. Repair sections are kept.
func (c *Composer) truncate(request *Request) {
	for _, kind := range []SectionKind{SectionConversation, SectionExample, SectionSchema} {
		for request.EstimatedTokens() > c.budget {
			if !dropLowest(request, kind) {
				break
			}
		}
	}

	if over := request.EstimatedTokens() - c.budget; over > 0 {
		c.logger.Warn("Prompt still over budget after truncation", zap.Int("over_tokens", over))
	}
}

func dropLowest(request *Request, kind SectionKind) bool {
	lowest := -1
	for i, section := range request.Sections {
		if section.Kind != kind {
			continue
		}
		if lowest == -1 || section.Score < request.Sections[lowest].Score {
			lowest = i
		}
	}
	if lowest == -1 {
		return false
	}
	request.Sections = append(request.Sections[:lowest], request.Sections[lowest+1:]...)
	return true
}

// renderTable formats one table as a compact DDL-like description.
func renderTable(table *models.Table) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", table.QualifiedName())

	for i, column := range table.Columns {
		b.WriteString("  ")
		b.WriteString(column.Name)
		b.WriteString(" ")
		b.WriteString(column.DataType)
		if column.IsPrimary {
			b.WriteString(" PRIMARY KEY")
		} else if !column.IsNullable {
			b.WriteString(" NOT NULL")
		}
		if i < len(table.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")

	for _, fk := range table.ForeignKeys {
		fmt.Fprintf(&b, "\n-- %s references %s(%s)", fk.Column, fk.ReferencedTable, fk.ReferencedColumn)
	}
	return b.String()
}
