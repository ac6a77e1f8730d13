package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/opsrelay/opsrelay/internal/alert"
	"github.com/opsrelay/opsrelay/internal/config"
)

// defaultIncidentURL is the events-API enqueue endpoint used when the channel
// config does not override it.
const defaultIncidentURL = "https://events.pagerduty.com/v2/enqueue"

// IncidentAPI triggers incidents via an events-style API. The alert's dedupe
// key is passed through so the incident service collapses repeats on its side
// as well.
type IncidentAPI struct {
	name       string
	routingKey string
	apiURL     string
	client     *http.Client
}

func newIncidentAPI(cfg config.ChannelConfig) (*IncidentAPI, error) {
	key := cfg.Options["routing_key"]
	if key == "" {
		return nil, fmt.Errorf("incident-api requires routing_key")
	}
	url := cfg.Options["api_url"]
	if url == "" {
		url = defaultIncidentURL
	}
	return &IncidentAPI{
		name:       cfg.Name,
		routingKey: key,
		apiURL:     url,
		client:     newHTTPClient(),
	}, nil
}

func (i *IncidentAPI) Name() string { return i.name }
func (i *IncidentAPI) Kind() string { return KindIncidentAPI }

func (i *IncidentAPI) Send(ctx context.Context, a *alert.Alert) error {
	custom := map[string]any{"message": a.Message}
	for k, v := range a.Details {
		custom[k] = v
	}
	payload := map[string]any{
		"routing_key":  i.routingKey,
		"event_action": "trigger",
		"dedup_key":    a.DedupeKey,
		"payload": map[string]any{
			"summary":        a.Title,
			"source":         a.Source,
			"severity":       a.Severity.String(),
			"timestamp":      a.Timestamp.Format(time.RFC3339),
			"component":      a.Source,
			"group":          "opsrelay",
			"class":          "alert",
			"custom_details": custom,
		},
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.apiURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := i.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// The events API acknowledges accepted events with 202.
	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("incident API returned %d", resp.StatusCode)
	}
	return nil
}
