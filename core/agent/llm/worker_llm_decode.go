package llm

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/goccy/go-json"
	openai "github.com/sashabaranov/go-openai"

	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
)

// messageContent returns the first choice's text, rejecting refusals and
// empty answers.
func messageContent(schema string, resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 {
		return "", apperr.MalformedModelResponse(schema, errors.New("no choices returned"))
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return "", apperr.MalformedModelResponse(schema, fmt.Errorf("model refused: %s", choice.Message.Refusal))
	}
	if choice.Message.Content == "" {
		return "", apperr.MalformedModelResponse(schema, fmt.Errorf("empty content (finish_reason: %s)", choice.FinishReason))
	}
	return choice.Message.Content, nil
}

// normalizer is implemented by stage outputs that validate themselves.
type normalizer interface {
	Normalize() error
}

// decodeStrict decodes the response into dest. Missing required fields,
// unknown fields, trailing data and failed normalization are all malformed
// responses. Nothing is repaired beyond what Normalize does.
func decodeStrict(schema string, resp openai.ChatCompletionResponse, required []string, dest normalizer) error {
	content, err := messageContent(schema, resp)
	if err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(content), &fields); err != nil {
		return apperr.MalformedModelResponse(schema, fmt.Errorf("decode %q: %w", content, err))
	}
	for _, name := range required {
		if _, ok := fields[name]; !ok {
			return apperr.MalformedModelResponse(schema, fmt.Errorf("missing field %q", name))
		}
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(content)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		return apperr.MalformedModelResponse(schema, fmt.Errorf("decode %q: %w", content, err))
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return apperr.MalformedModelResponse(schema, fmt.Errorf("trailing data after object in %q", content))
	}
	if err := dest.Normalize(); err != nil {
		return apperr.MalformedModelResponse(schema, err)
	}
	return nil
}
