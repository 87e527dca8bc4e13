package domain

import "time"

// ProcessedMessage is the immutable outcome of triaging one message.
// Only HumanFeedback changes after creation.
type ProcessedMessage struct {
	AccountID     int64     `json:"account_id"`
	MessageID     string    `json:"message_id"`
	FromAddress   string    `json:"from_address"`
	Subject       string    `json:"subject"`
	Slug          string    `json:"slug"`
	Keywords      []string  `json:"keywords"`
	Summary       string    `json:"summary"`
	LabelsApplied []string  `json:"labels_applied"`
	BypassedInbox bool      `json:"bypassed_inbox"`
	Reasoning     string    `json:"reasoning"`
	HumanFeedback string    `json:"human_feedback,omitempty"`
	ProcessedAt   time.Time `json:"processed_at"`
}

// MailMessage is the provider view of an incoming message.
type MailMessage struct {
	ID       string
	ThreadID string
	From     string
	Subject  string
	Body     string
	LabelIDs []string
	Date     time.Time
}

const maxBodyChars = 2000

// TruncateBody caps body text before it is sent to the model.
func TruncateBody(body string) string {
	r := []rune(body)
	if len(r) <= maxBodyChars {
		return body
	}
	return string(r[:maxBodyChars]) + "..."
}
