package notifications

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/leadscout/leadscout/internal/models"
)

// Webhook request headers
const (
	SignatureHeader = "X-Leadscout-Signature"
	EventHeader     = "X-Leadscout-Event"
)

// WebhookPayload is the JSON body posted to a search's webhook URL
type WebhookPayload struct {
	Event      EventKind   `json:"event"`
	SearchID   string      `json:"search_id"`
	SearchName string      `json:"search_name"`
	SentAt     time.Time   `json:"sent_at"`
	Data       interface{} `json:"data"`
}

// WebhookNotifier posts events to the webhook URL configured on each search
type WebhookNotifier struct {
	client *resty.Client
	secret string
	now    func() time.Time
}

// NewWebhookNotifier creates a webhook channel. With a non-empty secret every
// request carries an HMAC-SHA256 signature of its body.
func NewWebhookNotifier(secret string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		client: resty.New().SetTimeout(timeout),
		secret: secret,
		now:    time.Now,
	}
}

// Ensure WebhookNotifier implements Channel
var _ Channel = (*WebhookNotifier)(nil)

func (w *WebhookNotifier) Name() string { return "webhook" }

// Accepts every event for searches that have a webhook URL
func (w *WebhookNotifier) Accepts(spec *models.KeywordSearchSpec, event EventKind) bool {
	return spec != nil && spec.WebhookURL != ""
}

func (w *WebhookNotifier) Send(ctx context.Context, spec *models.KeywordSearchSpec, event EventKind, payload interface{}) error {
	body, err := json.Marshal(WebhookPayload{
		Event:      event,
		SearchID:   spec.ID,
		SearchName: spec.Name,
		SentAt:     w.now().UTC(),
		Data:       payload,
	})
	if err != nil {
		return fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	req := w.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader(EventHeader, string(event)).
		SetBody(body)
	if w.secret != "" {
		req.SetHeader(SignatureHeader, Sign(w.secret, body))
	}

	resp, err := req.Post(spec.WebhookURL)
	if err != nil {
		return fmt.Errorf("failed to post webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode())
	}

	return nil
}

// Sign returns the signature header value for body: "sha256=<hex hmac>"
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
