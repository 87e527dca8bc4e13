package provider

import (
	"encoding/base64"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"google.golang.org/api/gmail/v1"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
)

var (
	// strips all markup, keeping text content
	stripPolicy = bluemonday.StrictPolicy()

	blockBreak = regexp.MustCompile(`(?i)<\s*(br\s*/?|/p|/div|/tr|/li|/h[1-6])\s*>`)
	dropBlocks = regexp.MustCompile(`(?is)<\s*(style|script|head)[^>]*>.*?<\s*/\s*(style|script|head)\s*>`)
	spaceRun   = regexp.MustCompile(`[ \t\f\v]+`)
	blankRun   = regexp.MustCompile(`\n{3,}`)
)

func convertMessage(msg *gmail.Message) *domain.MailMessage {
	out := &domain.MailMessage{
		ID:       msg.Id,
		ThreadID: msg.ThreadId,
		LabelIDs: msg.LabelIds,
	}
	if msg.InternalDate > 0 {
		out.Date = time.UnixMilli(msg.InternalDate).UTC()
	}
	if msg.Payload == nil {
		return out
	}

	out.From = getHeader(msg.Payload.Headers, "From")
	out.Subject = getHeader(msg.Payload.Headers, "Subject")

	var b messageBody
	extractBody(msg.Payload, &b)
	switch {
	case strings.TrimSpace(b.text) != "":
		out.Body = b.text
	case b.html != "":
		out.Body = htmlToText(b.html)
	default:
		out.Body = msg.Snippet
	}
	return out
}

type messageBody struct {
	text string
	html string
}

// extractBody keeps the first text/plain and text/html parts, skipping attachments.
func extractBody(part *gmail.MessagePart, body *messageBody) {
	if part == nil {
		return
	}

	if part.Filename == "" && part.Body != nil && part.Body.Data != "" {
		switch part.MimeType {
		case "text/plain":
			if body.text == "" {
				body.text = decodePart(part.Body.Data)
			}
		case "text/html":
			if body.html == "" {
				body.html = decodePart(part.Body.Data)
			}
		}
	}

	for _, p := range part.Parts {
		extractBody(p, body)
	}
}

// decodePart accepts padded and unpadded base64url.
func decodePart(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "=")); err == nil {
		return string(b)
	}
	return ""
}

func htmlToText(s string) string {
	s = dropBlocks.ReplaceAllString(s, "")
	s = blockBreak.ReplaceAllString(s, "\n")
	s = html.UnescapeString(stripPolicy.Sanitize(s))

	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(l, " "))
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankRun.ReplaceAllString(s, "\n\n"))
}

func getHeader(headers []*gmail.MessagePartHeader, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}
