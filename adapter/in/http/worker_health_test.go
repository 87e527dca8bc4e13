package http

import (
	nethttp "net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"

	"github.com/denwilliams/gmail-triage-assistant/core/domain"
)

func TestHealthReportsWebhookCounters(t *testing.T) {
	accounts := &fakeAccounts{byEmail: map[string]*domain.Account{
		"a@example.com": {ID: 1, Email: "a@example.com", IsActive: true},
	}}
	app, webhook := newWebhookApp(accounts, &fakePublisher{})
	NewHealthHandler(nil, nil).
		WithStatus(func() map[string]any {
			return map[string]any{"webhook": webhook.GetMetrics()}
		}).
		Register(app)

	post(t, app, "/webhook/gmail?token=s3cret", pushBody(t, `{"emailAddress":"a@example.com","historyId":9}`))
	post(t, app, "/webhook/gmail?token=s3cret", pushBody(t, `{"emailAddress":"a@example.com","historyId":9}`))

	resp, err := app.Test(httptest.NewRequest(nethttp.MethodGet, "/health", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string         `json:"status"`
		Webhook WebhookMetrics `json:"webhook"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" {
		t.Errorf("status = %q", body.Status)
	}
	want := WebhookMetrics{Received: 2, Queued: 1, Duplicates: 1}
	if body.Webhook != want {
		t.Errorf("webhook = %+v, want %+v", body.Webhook, want)
	}
}
