package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/opsrelay/opsrelay/internal/alert"
	"github.com/opsrelay/opsrelay/internal/config"
)

// Webhook posts the full alert JSON to a generic HTTP endpoint, with optional
// HMAC-SHA256 signing when a shared secret is configured.
type Webhook struct {
	name   string
	url    string
	secret string
	client *http.Client
}

func newWebhook(cfg config.ChannelConfig) (*Webhook, error) {
	url := cfg.Options["url"]
	if url == "" {
		return nil, fmt.Errorf("generic-webhook requires url")
	}
	return &Webhook{
		name:   cfg.Name,
		url:    url,
		secret: cfg.Options["secret"],
		client: newHTTPClient(),
	}, nil
}

func (w *Webhook) Name() string { return w.name }
func (w *Webhook) Kind() string { return KindGenericWebhook }

func (w *Webhook) Send(ctx context.Context, a *alert.Alert) error {
	b, err := json.Marshal(a)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if w.secret != "" {
		mac := hmac.New(sha256.New, []byte(w.secret))
		mac.Write(b)
		req.Header.Set("X-Opsrelay-Signature", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
