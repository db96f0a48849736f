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

// Slack posts to an incoming-webhook URL.
type Slack struct {
	webhook string
	mention string
	client  *http.Client
}

// NewSlack returns nil when webhook is empty.
func NewSlack(webhook, mention string) *Slack {
	if webhook == "" {
		return nil
	}
	return &Slack{
		webhook: webhook,
		mention: mention,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

func (s *Slack) Notify(ctx context.Context, ev monitor.Event) error {
	msg := Format(ev, slackMention(s.mention))
	body, err := json.Marshal(slackPayload{Text: "*" + msg.Title + "*\n" + msg.Text()})
	if err != nil {
		return fmt.Errorf("marshaling slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhook, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending slack message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("slack returned status %d", resp.StatusCode)
	}
	return nil
}

// slackMention maps the generic @everyone role to Slack's channel-wide
// mention syntax.
func slackMention(m string) string {
	switch m {
	case "@everyone", "@channel":
		return "<!channel>"
	case "@here":
		return "<!here>"
	}
	return m
}
