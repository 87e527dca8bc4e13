package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
)

type fakeChat struct {
	content  string
	refusal  string
	err      error
	requests []openai.ChatCompletionRequest
}

func (f *fakeChat) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Content: f.content, Refusal: f.refusal},
			FinishReason: openai.FinishReasonStop,
		}},
	}, nil
}

func newTestClient(f *fakeChat) *Client {
	return newClient(f, ClientConfig{Model: "test-model", MaxConcurrent: 2})
}

func TestAnalyze(t *testing.T) {
	f := &fakeChat{content: `{"slug":"Invoice Due","keywords":["invoice"," acme ","","billing"],"summary":"Acme invoice #42 due Friday"}`}
	c := newTestClient(f)

	got, err := c.Analyze(context.Background(), out.AnalyzeInput{
		From:      "billing@acme.com",
		Subject:   "Invoice #42",
		Body:      strings.Repeat("x", 2500),
		PastSlugs: []string{"invoice_due"},
	})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got.Slug != "invoice_due" {
		t.Errorf("Slug = %q", got.Slug)
	}
	if len(got.Keywords) != 3 {
		t.Errorf("Keywords = %v", got.Keywords)
	}

	req := f.requests[0]
	if req.ResponseFormat == nil || req.ResponseFormat.JSONSchema == nil || req.ResponseFormat.JSONSchema.Name != "email_analysis" {
		t.Fatalf("missing email_analysis schema: %+v", req.ResponseFormat)
	}
	if !req.ResponseFormat.JSONSchema.Strict {
		t.Error("schema should be strict")
	}
	user := req.Messages[1].Content
	if !strings.Contains(user, "Past slugs used from this sender: [invoice_due]") {
		t.Errorf("user prompt missing past slugs:\n%s", user)
	}
	if strings.Contains(user, strings.Repeat("x", 2001)) {
		t.Error("body was not truncated")
	}
	if req.Messages[0].Content != defaultAnalyzePrompt {
		t.Error("default system prompt expected")
	}
}

func TestAnalyzeOverride(t *testing.T) {
	f := &fakeChat{content: `{"slug":"a","keywords":["b"],"summary":"c"}`}
	c := newTestClient(f)

	if _, err := c.Analyze(context.Background(), out.AnalyzeInput{Override: "custom instructions"}); err != nil {
		t.Fatal(err)
	}
	if got := f.requests[0].Messages[0].Content; got != "custom instructions" {
		t.Errorf("system prompt = %q", got)
	}
}

func TestAnalyzeMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
		refusal string
	}{
		{"empty", "", ""},
		{"refusal", "", "I can't help with that"},
		{"not json", "sure, here you go", ""},
		{"fenced", "```json\n{\"slug\":\"a\",\"keywords\":[\"b\"],\"summary\":\"c\"}\n```", ""},
		{"unknown field", `{"slug":"a","keywords":["b"],"summary":"c","priority":1}`, ""},
		{"missing field", `{"slug":"a","keywords":["b"]}`, ""},
		{"empty slug", `{"slug":"  ","keywords":["b"],"summary":"c"}`, ""},
		{"no keywords", `{"slug":"a","keywords":[],"summary":"c"}`, ""},
		{"trailing data", `{"slug":"a","keywords":["b"],"summary":"c"} {}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(&fakeChat{content: tt.content, refusal: tt.refusal})
			_, err := c.Analyze(context.Background(), out.AnalyzeInput{From: "a@b.c"})
			if !apperr.IsKind(err, apperr.CodeMalformedModelResponse) {
				t.Errorf("err = %v, want malformed model response", err)
			}
		})
	}
}

func TestDecide(t *testing.T) {
	catalog := domain.LabelCatalog{
		{Name: "Finance", Description: "Bills and invoices", Reasons: []string{"invoice", "receipt"}},
		{Name: "Newsletters"},
	}
	f := &fakeChat{content: `{"labels":["Finance"],"bypass_inbox":false,"reasoning":"An invoice from a known vendor"}`}
	c := newTestClient(f)

	got, err := c.Decide(context.Background(), out.DecideInput{
		From:          "billing@acme.com",
		Subject:       "Invoice #42",
		Analysis:      domain.Analysis{Slug: "invoice_due", Keywords: []string{"invoice"}, Summary: "due Friday"},
		Catalog:       catalog,
		MemoryContext: "Past learnings from email processing:\n\n",
	})
	if err != nil {
		t.Fatalf("Decide() error = %v", err)
	}
	if len(got.Labels) != 1 || got.Labels[0] != "Finance" || got.BypassInbox {
		t.Errorf("Decide() = %+v", got)
	}

	req := f.requests[0]
	if !strings.Contains(req.Messages[0].Content, `- "Finance": Bills and invoices (e.g. invoice, receipt)`) {
		t.Errorf("catalog not rendered into system prompt:\n%s", req.Messages[0].Content)
	}
	if !strings.Contains(req.Messages[1].Content, "Past learnings from email processing:") {
		t.Error("memory context missing from user prompt")
	}
	if req.ResponseFormat.JSONSchema.Name != "email_actions" {
		t.Errorf("schema = %s", req.ResponseFormat.JSONSchema.Name)
	}
}

func TestDecideRequiresReasoning(t *testing.T) {
	c := newTestClient(&fakeChat{content: `{"labels":[],"bypass_inbox":false,"reasoning":""}`})
	_, err := c.Decide(context.Background(), out.DecideInput{})
	if !apperr.IsKind(err, apperr.CodeMalformedModelResponse) {
		t.Errorf("err = %v, want malformed model response", err)
	}
}

func TestDecideSystemPromptOverride(t *testing.T) {
	catalog := domain.LabelCatalog{{Name: "Work"}}
	got := decideSystemPrompt("Be terse.", catalog)
	want := "Be terse.\n\nAvailable labels:\n- \"Work\""
	if got != want {
		t.Errorf("decideSystemPrompt() = %q, want %q", got, want)
	}
}

func TestActionsSchemaEnum(t *testing.T) {
	if s := actionsSchema(nil); len(s.Properties["labels"].Items.Enum) != 0 {
		t.Error("empty catalog should not constrain labels")
	}
	s := actionsSchema(domain.LabelCatalog{{Name: "Work"}, {Name: "Home"}})
	if enum := s.Properties["labels"].Items.Enum; len(enum) != 2 || enum[0] != "Work" {
		t.Errorf("enum = %v", enum)
	}
}

func TestProviderErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"rate limited", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, apperr.CodeTransientProvider},
		{"server error", &openai.APIError{HTTPStatusCode: http.StatusBadGateway}, apperr.CodeTransientProvider},
		{"network", errors.New("connection reset"), apperr.CodeTransientProvider},
		{"bad request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest}, apperr.CodeExternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(&fakeChat{err: tt.err})
			_, err := c.Generate(context.Background(), "s", "u")
			if !apperr.IsKind(err, tt.code) {
				t.Errorf("err = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestGenerate(t *testing.T) {
	f := &fakeChat{content: "- Invoices from acme go to Finance"}
	c := newTestClient(f)

	got, err := c.Generate(context.Background(), "system", "user")
	if err != nil || got != "- Invoices from acme go to Finance" {
		t.Errorf("Generate() = %q, %v", got, err)
	}
	if f.requests[0].ResponseFormat != nil {
		t.Error("free text generation should not request a schema")
	}
}
