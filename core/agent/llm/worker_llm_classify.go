package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
)

const analysisSchemaName = "email_analysis"

const defaultAnalyzePrompt = `You are an email classification assistant. Analyze the email and provide a JSON response with:
1. A snake_case_slug that categorizes this type of email (e.g., "marketing_newsletter", "invoice_due", "meeting_request")
2. An array of 3-5 keywords that describe the email content
3. A single line summary (max 100 chars)

Respond ONLY with valid JSON in this format:
{"slug": "example_slug", "keywords": ["word1", "word2", "word3"], "summary": "Brief summary here"}`

var analysisSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"slug": {
			Type:        jsonschema.String,
			Description: "A snake_case_slug categorizing the email type",
		},
		"keywords": {
			Type:        jsonschema.Array,
			Items:       &jsonschema.Definition{Type: jsonschema.String},
			Description: "3-5 keywords describing the email content",
		},
		"summary": {
			Type:        jsonschema.String,
			Description: "Single line summary (max 100 chars)",
		},
	},
	Required:             []string{"slug", "keywords", "summary"},
	AdditionalProperties: false,
}

// Analyze runs the classification stage.
func (c *Client) Analyze(ctx context.Context, in out.AnalyzeInput) (domain.Analysis, error) {
	systemPrompt := in.Override
	if systemPrompt == "" {
		systemPrompt = defaultAnalyzePrompt
	}
	userPrompt := analyzeUserPrompt(in)

	c.logPrompts("AnalyzeEmail", systemPrompt, userPrompt)

	resp, err := c.complete(ctx, analysisSchemaName, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:        analysisSchemaName,
				Description: "Email content analysis with slug, keywords, and summary",
				Schema:      &analysisSchema,
				Strict:      true,
			},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return domain.Analysis{}, err
	}

	var analysis domain.Analysis
	if err := decodeStrict(analysisSchemaName, resp, analysisSchema.Required, &analysis); err != nil {
		return domain.Analysis{}, err
	}
	return analysis, nil
}

func analyzeUserPrompt(in out.AnalyzeInput) string {
	return fmt.Sprintf(`From: %s
Subject: %s

Body:
%s

Past slugs used from this sender: %v

Analyze this email and provide the slug, keywords, and summary.`, in.From, in.Subject, domain.TruncateBody(in.Body), in.PastSlugs)
}
