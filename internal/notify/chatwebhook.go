package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/opsrelay/opsrelay/internal/alert"
	"github.com/opsrelay/opsrelay/internal/config"
)

// ChatWebhook posts alerts to a Slack-compatible incoming webhook URL.
type ChatWebhook struct {
	name       string
	webhookURL string
	room       string // optional channel/room override
	client     *http.Client
}

func newChatWebhook(cfg config.ChannelConfig) (*ChatWebhook, error) {
	url := cfg.Options["webhook_url"]
	if url == "" {
		return nil, fmt.Errorf("chat-webhook requires webhook_url")
	}
	return &ChatWebhook{
		name:       cfg.Name,
		webhookURL: url,
		room:       cfg.Options["room"],
		client:     newHTTPClient(),
	}, nil
}

func (c *ChatWebhook) Name() string { return c.name }
func (c *ChatWebhook) Kind() string { return KindChatWebhook }

func (c *ChatWebhook) Send(ctx context.Context, a *alert.Alert) error {
	fields := []map[string]any{
		{"title": "Message", "value": a.Message, "short": false},
		{"title": "Source", "value": a.Source, "short": true},
		{"title": "Severity", "value": strings.ToUpper(a.Severity.String()), "short": true},
		{"title": "Time", "value": a.Timestamp.Format("2006-01-02 15:04:05"), "short": true},
	}
	if len(a.Details) > 0 {
		details, err := json.MarshalIndent(a.Details, "", "  ")
		if err == nil {
			fields = append(fields, map[string]any{
				"title": "Details", "value": "```" + string(details) + "```", "short": false,
			})
		}
	}
	if len(a.Tags) > 0 {
		fields = append(fields, map[string]any{
			"title": "Tags", "value": strings.Join(a.Tags, ", "), "short": true,
		})
	}

	payload := map[string]any{
		"text": "*" + a.Title + "*",
		"attachments": []map[string]any{{
			"color":  severityColor(a.Severity),
			"fields": fields,
			"footer": "opsrelay",
			"ts":     a.Timestamp.Unix(),
		}},
	}
	if c.room != "" {
		payload["channel"] = c.room
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chat webhook returned %d", resp.StatusCode)
	}
	return nil
}

func severityColor(sev alert.Severity) string {
	switch sev {
	case alert.SeverityCritical:
		return "#F44336"
	case alert.SeverityError:
		return "#FF5722"
	case alert.SeverityWarning:
		return "#FFC107"
	default:
		return "#2196F3"
	}
}
