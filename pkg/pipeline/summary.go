package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/askdb-inc/askdb-engine/pkg/llm"
	"github.com/askdb-inc/askdb-engine/pkg/models"
)

// summaryRowLimit bounds how many result rows are sent to the model.
const summaryRowLimit = 50

// summaryTemperature is higher than generation's: summaries should read
// naturally, not deterministically.
const summaryTemperature = 0.3

const summarySystemPrompt = "You are a helpful assistant that explains query results in plain language. " +
	"Answer concisely and mention concrete numbers from the data."

// Summarizer produces a short natural-language summary of an execution
// result.
type Summarizer struct {
	client llm.LLMClient
	logger *zap.Logger
}

// NewSummarizer creates a Summarizer.
func NewSummarizer(client llm.LLMClient, logger *zap.Logger) *Summarizer {
	return &Summarizer{client: client, logger: logger.Named("summary")}
}

// Summarize describes the result of a succeeded query in plain language. At
// most summaryRowLimit rows are shown to the model; the summary notes when
// rows were held back.
func (s *Summarizer) Summarize(ctx context.Context, question, sqlQuery string, result *models.ResultSet) (string, error) {
	if result == nil || result.RowCount == 0 {
		return "The query ran successfully but returned no matching rows.", nil
	}

	sample := result.Rows
	truncated := false
	if len(sample) > summaryRowLimit {
		sample = sample[:summaryRowLimit]
		truncated = true
	}

	sampleJSON, err := json.Marshal(sample)
	if err != nil {
		return "", fmt.Errorf("failed to encode result sample: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The user asked: %s\n\n", question)
	fmt.Fprintf(&b, "This SQL query answered it:\n%s\n\n", sqlQuery)
	fmt.Fprintf(&b, "The query returned %d rows.", result.RowCount)
	if truncated {
		fmt.Fprintf(&b, " Here are the first %d:\n", summaryRowLimit)
	} else {
		b.WriteString(" Here they are:\n")
	}
	b.Write(sampleJSON)
	b.WriteString("\n\nSummarize these results for the user in a short paragraph.")

	summary, err := s.client.GenerateResponse(ctx, b.String(), summarySystemPrompt, summaryTemperature)
	if err != nil {
		return "", fmt.Errorf("summary generation failed: %w", err)
	}
	return strings.TrimSpace(summary), nil
}
