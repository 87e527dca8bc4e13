package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
	"github.com/denwilliams/gmail-triage-assistant/core/port/out"
	"github.com/denwilliams/gmail-triage-assistant/pkg/apperr"
)

type staticTokens struct{}

func (staticTokens) TokenSource(ctx context.Context, account *domain.Account) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token", TokenType: "Bearer"})
}

func newTestProvider(t *testing.T, handler http.HandlerFunc) out.MailProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	f := NewGmailFactory(staticTokens{}, option.WithEndpoint(srv.URL+"/"))
	p, err := f.ForAccount(context.Background(), &domain.Account{ID: 1, Email: "me@example.com"})
	if err != nil {
		t.Fatalf("ForAccount() error = %v", err)
	}
	return p
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func apiError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": map[string]any{"code": code, "message": msg}})
}

func TestListNewMessageIDsPagesAndDedupes(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/me/history") {
			apiError(w, 404, "unexpected path "+r.URL.Path)
			return
		}
		q := r.URL.Query()
		if q.Get("startHistoryId") != "100" || q.Get("labelId") != "INBOX" || q.Get("historyTypes") != "messageAdded" {
			apiError(w, 400, "bad query "+r.URL.RawQuery)
			return
		}
		if q.Get("pageToken") == "" {
			writeJSON(w, 200, map[string]any{
				"history": []any{
					map[string]any{"messagesAdded": []any{map[string]any{"message": map[string]any{"id": "m1"}}}},
					map[string]any{"messagesAdded": []any{map[string]any{"message": map[string]any{"id": "m2"}}}},
				},
				"historyId":     "140",
				"nextPageToken": "p2",
			})
			return
		}
		writeJSON(w, 200, map[string]any{
			"history": []any{
				map[string]any{"messagesAdded": []any{
					map[string]any{"message": map[string]any{"id": "m2"}},
					map[string]any{"message": map[string]any{"id": "m3"}},
				}},
			},
			"historyId": "150",
		})
	})

	ids, cursor, err := p.ListNewMessageIDs(context.Background(), 100)
	if err != nil {
		t.Fatalf("ListNewMessageIDs() error = %v", err)
	}
	if got := strings.Join(ids, ","); got != "m1,m2,m3" {
		t.Errorf("ids = %s, want m1,m2,m3", got)
	}
	if cursor != 150 {
		t.Errorf("cursor = %d, want 150", cursor)
	}
}

func TestListNewMessageIDsExpiredCursor(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		apiError(w, 404, "Requested entity was not found.")
	})

	_, _, err := p.ListNewMessageIDs(context.Background(), 7)
	var perr *out.ProviderError
	if !errors.As(err, &perr) || perr.Code != out.ProviderErrSyncRequired {
		t.Fatalf("error = %v, want sync required", err)
	}
	if !apperr.IsSkip(err) {
		t.Error("expired cursor should classify as not found")
	}
}

func TestGetMessageFallsBackToHTML(t *testing.T) {
	htmlBody := base64.URLEncoding.EncodeToString([]byte(
		`<html><head><style>p{color:red}</style></head><body><p>Your order &amp; receipt</p><div>Total: $42</div></body></html>`))

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("format") != "full" {
			apiError(w, 400, "want full format")
			return
		}
		writeJSON(w, 200, map[string]any{
			"id":           "m9",
			"threadId":     "t9",
			"internalDate": "1736150400000",
			"payload": map[string]any{
				"mimeType": "multipart/alternative",
				"headers": []any{
					map[string]any{"name": "From", "value": "Shop <orders@shop.example>"},
					map[string]any{"name": "Subject", "value": "Receipt"},
				},
				"parts": []any{
					map[string]any{"mimeType": "text/html", "body": map[string]any{"data": htmlBody}},
				},
			},
		})
	})

	msg, err := p.GetMessage(context.Background(), "m9")
	if err != nil {
		t.Fatalf("GetMessage() error = %v", err)
	}
	if msg.From != "Shop <orders@shop.example>" || msg.Subject != "Receipt" {
		t.Errorf("headers = %q / %q", msg.From, msg.Subject)
	}
	if msg.Body != "Your order & receipt\nTotal: $42" {
		t.Errorf("Body = %q", msg.Body)
	}
	if !msg.Date.Equal(time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)) {
		t.Errorf("Date = %v", msg.Date)
	}
}

func TestGetMessageNotFound(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		apiError(w, 404, "Not Found")
	})

	_, err := p.GetMessage(context.Background(), "gone")
	if !apperr.IsSkip(err) {
		t.Fatalf("error = %v, want not found", err)
	}
}

func TestCreateLabelReturnsExisting(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			apiError(w, 409, "Label name exists or conflicts")
		default:
			writeJSON(w, 200, map[string]any{"labels": []any{
				map[string]any{"id": "INBOX", "name": "INBOX"},
				map[string]any{"id": "Label_7", "name": "Receipts"},
			}})
		}
	})

	label, err := p.CreateLabel(context.Background(), "receipts")
	if err != nil {
		t.Fatalf("CreateLabel() error = %v", err)
	}
	if label.ID != "Label_7" {
		t.Errorf("label = %+v, want Label_7", label)
	}
}

func TestArchiveRemovesInbox(t *testing.T) {
	var body gmail.ModifyMessageRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			apiError(w, 400, err.Error())
			return
		}
		writeJSON(w, 200, map[string]any{"id": "m1"})
	})

	if err := p.Archive(context.Background(), "m1"); err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	if len(body.RemoveLabelIds) != 1 || body.RemoveLabelIds[0] != "INBOX" || len(body.AddLabelIds) != 0 {
		t.Errorf("modify request = %+v", body)
	}
}

func TestWrapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want out.ProviderErrorCode
	}{
		{"401", &googleapi.Error{Code: 401}, out.ProviderErrTokenExpired},
		{"403 rate", &googleapi.Error{Code: 403, Message: "User Rate Limit Exceeded"}, out.ProviderErrRateLimit},
		{"403 reason", &googleapi.Error{Code: 403, Errors: []googleapi.ErrorItem{{Reason: "userRateLimitExceeded"}}}, out.ProviderErrRateLimit},
		{"403", &googleapi.Error{Code: 403, Message: "Forbidden"}, out.ProviderErrAuth},
		{"404", &googleapi.Error{Code: 404}, out.ProviderErrNotFound},
		{"429", &googleapi.Error{Code: 429}, out.ProviderErrRateLimit},
		{"503", &googleapi.Error{Code: 503}, out.ProviderErrServer},
		{"wrapped 500", fmt.Errorf("call: %w", &googleapi.Error{Code: 500}), out.ProviderErrServer},
		{"deadline", context.DeadlineExceeded, out.ProviderErrNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var perr *out.ProviderError
			if err := wrapError(tt.err, "x"); !errors.As(err, &perr) || perr.Code != tt.want {
				t.Errorf("wrapError() = %v, want code %s", err, tt.want)
			}
		})
	}
}

func TestWrapErrorKeepsAppErrors(t *testing.T) {
	revoked := apperr.AuthExpired("gmail", errors.New("invalid_grant"))
	err := wrapError(fmt.Errorf("Get: %w", revoked), "x")
	if !apperr.IsKind(err, apperr.CodeAuthExpired) {
		t.Errorf("wrapError() = %v, want auth expired kept", err)
	}
}

func TestExtractBodyPrefersPlainText(t *testing.T) {
	enc := func(s string) string { return base64.RawURLEncoding.EncodeToString([]byte(s)) }
	payload := &gmail.MessagePart{
		MimeType: "multipart/mixed",
		Parts: []*gmail.MessagePart{
			{
				MimeType: "multipart/alternative",
				Parts: []*gmail.MessagePart{
					{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: enc("<b>hi</b>")}},
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: enc("hi there")}},
				},
			},
			{MimeType: "text/plain", Filename: "notes.txt", Body: &gmail.MessagePartBody{Data: enc("attachment")}},
		},
	}

	msg := convertMessage(&gmail.Message{Id: "x", Payload: payload})
	if msg.Body != "hi there" {
		t.Errorf("Body = %q, want plain text part", msg.Body)
	}
}
