package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
)

const actionsSchemaName = "email_actions"

const defaultActionsPrompt = `You are an email automation assistant. Based on the email analysis and past learnings, determine what actions to take and respond with JSON.

Available labels:
%s

Decide:
1. Which labels to apply (use exact label names from the list above, only when they clearly match)
2. Whether to bypass the inbox (archive immediately)
3. Brief reasoning for your decisions

Use the learnings from past email processing (provided below) to make better decisions about labeling and archiving.`

// actionsSchema restricts label items to the catalog when one exists.
func actionsSchema(catalog domain.LabelCatalog) jsonschema.Definition {
	items := jsonschema.Definition{Type: jsonschema.String}
	if len(catalog) > 0 {
		items.Enum = catalog.Names()
	}
	return jsonschema.Definition{
		Type: jsonschema.Object,
		Properties: map[string]jsonschema.Definition{
			"labels": {
				Type:        jsonschema.Array,
				Items:       &items,
				Description: "Array of label names to apply",
			},
			"bypass_inbox": {
				Type:        jsonschema.Boolean,
				Description: "Whether to archive the email immediately",
			},
			"reasoning": {
				Type:        jsonschema.String,
				Description: "Brief explanation of the decision",
			},
		},
		Required:             []string{"labels", "bypass_inbox", "reasoning"},
		AdditionalProperties: false,
	}
}

// Decide runs the decision stage. The returned labels are not yet filtered
// against the catalog.
func (c *Client) Decide(ctx context.Context, in out.DecideInput) (domain.Decision, error) {
	systemPrompt := decideSystemPrompt(in.Override, in.Catalog)
	userPrompt := decideUserPrompt(in)

	c.logPrompts("DetermineActions", systemPrompt, userPrompt)

	schema := actionsSchema(in.Catalog)
	resp, err := c.complete(ctx, actionsSchemaName, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:        actionsSchemaName,
				Description: "Email automation actions including labels and inbox bypass",
				Schema:      &schema,
				Strict:      true,
			},
		},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return domain.Decision{}, err
	}

	var decision domain.Decision
	if err := decodeStrict(actionsSchemaName, resp, schema.Required, &decision); err != nil {
		return domain.Decision{}, err
	}
	return decision, nil
}

// decideSystemPrompt injects the catalog into the default prompt, or appends
// it to an override so it is never lost.
func decideSystemPrompt(override string, catalog domain.LabelCatalog) string {
	rendered := catalog.Render()
	if override == "" {
		return fmt.Sprintf(defaultActionsPrompt, rendered)
	}
	return override + "\n\nAvailable labels:\n" + rendered
}

func decideUserPrompt(in out.DecideInput) string {
	return fmt.Sprintf(`From: %s
Subject: %s
Slug: %s
Keywords: %v
Summary: %s

%sWhat actions should be taken for this email?`,
		in.From, in.Subject, in.Analysis.Slug, in.Analysis.Keywords, in.Analysis.Summary, in.MemoryContext)
}
