package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// WebhookNotifier POSTs each event as JSON to the configured endpoint.
// Delivery is best-effort from the worker's point of view.
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    *zap.Logger
}

func NewWebhookNotifier(url string, timeout time.Duration, log *zap.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

var _ Notifier = (*WebhookNotifier)(nil)

func (n *WebhookNotifier) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned %d", resp.StatusCode)
	}

	n.log.Debug("notification delivered",
		zap.String("type", ev.Type),
		zap.String("job_id", ev.JobID),
	)
	return nil
}
