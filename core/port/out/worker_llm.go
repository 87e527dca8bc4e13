package out

import (
	"context"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
)

// AnalyzeInput feeds the classification stage.
type AnalyzeInput struct {
	From      string
	Subject   string
	Body      string
	PastSlugs []string
	// Override replaces the built-in instructions when non-empty.
	Override string
}

// DecideInput feeds the decision stage.
type DecideInput struct {
	From          string
	Subject       string
	Analysis      domain.Analysis
	Catalog       domain.LabelCatalog
	MemoryContext string
	Override      string
}

// Classifier runs the classification stage.
type Classifier interface {
	Analyze(ctx context.Context, in AnalyzeInput) (domain.Analysis, error)
}

// Decider runs the decision stage.
type Decider interface {
	Decide(ctx context.Context, in DecideInput) (domain.Decision, error)
}

// TextGenerator produces free text, used for memories and wrapups.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
