package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/hazz-dev/uptimewatch/internal/monitor"
)

// Webhook posts a JSON document describing the event to a URL.
type Webhook struct {
	url     string
	mention string
	client  *http.Client
}

// NewWebhook returns nil when url is empty.
func NewWebhook(url, mention string) *Webhook {
	if url == "" {
		return nil
	}
	return &Webhook{
		url:     url,
		mention: mention,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	EventID         string  `json:"event_id"`
	Monitor         string  `json:"monitor"`
	URL             string  `json:"url"`
	Status          string  `json:"status"`
	PreviousStatus  string  `json:"previous_status"`
	Error           string  `json:"error,omitempty"`
	ResponseTimeMs  float64 `json:"response_time_ms"`
	DowntimeSeconds float64 `json:"downtime_seconds,omitempty"`
	Failures        int     `json:"failures,omitempty"`
	Threshold       int     `json:"threshold,omitempty"`
	OccurredAt      string  `json:"occurred_at"`
	Message         string  `json:"message"`
	Source          string  `json:"source"`
}

func newWebhookPayload(ev monitor.Event, mention string) webhookPayload {
	p := webhookPayload{
		EventID:    ev.ID,
		Monitor:    ev.Monitor,
		URL:        ev.URL,
		OccurredAt: ev.OccurredAt.UTC().Format(time.RFC3339),
		Message:    Format(ev, mention).String(),
		Source:     "uptimewatch",
	}
	if ev.Kind == monitor.EventDown {
		p.Status, p.PreviousStatus = "down", "up"
		p.Error = ev.Error
		p.Failures = ev.Failures
		p.Threshold = ev.Threshold
	} else {
		p.Status, p.PreviousStatus = "up", "down"
		p.ResponseTimeMs = ev.LatencyMs
		p.DowntimeSeconds = ev.Downtime.Seconds()
	}
	return p
}

func (w *Webhook) Notify(ctx context.Context, ev monitor.Event) error {
	body, err := json.Marshal(newWebhookPayload(ev, w.mention))
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
