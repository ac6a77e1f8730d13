// Package notify implements the delivery adapters behind the alert manager:
// one sender per configured channel kind, plus the enable/filter routing
// rules that decide which channels receive a given alert.
package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/opsrelay/opsrelay/internal/alert"
	"github.com/opsrelay/opsrelay/internal/config"
)

// Channel kinds accepted in configuration.
const (
	KindChatWebhook    = "chat-webhook"
	KindIncidentAPI    = "incident-api"
	KindEmail          = "email"
	KindGenericWebhook = "generic-webhook"
)

// sendTimeout bounds every outbound notification request.
const sendTimeout = 5 * time.Second

// Sender delivers one alert to one transport. Implementations return an
// error for transport failures; the manager converts that to a failed
// delivery, it is never propagated further.
type Sender interface {
	Name() string
	Kind() string
	Send(ctx context.Context, a *alert.Alert) error
}

// Filter holds the routing restrictions of one channel. A nil/empty slice
// means no restriction on that axis.
type Filter struct {
	Enabled    bool
	Severities []alert.Severity
	Sources    []string
	Tags       []string
}

// Matches reports whether the channel should receive the alert: the channel
// is enabled and every configured filter admits it (tag filter matches on
// any intersection).
func (f Filter) Matches(a *alert.Alert) bool {
	if !f.Enabled {
		return false
	}
	if len(f.Severities) > 0 && !containsSeverity(f.Severities, a.Severity) {
		return false
	}
	if len(f.Sources) > 0 && !contains(f.Sources, a.Source) {
		return false
	}
	if len(f.Tags) > 0 {
		for _, t := range f.Tags {
			if a.HasTag(t) {
				return true
			}
		}
		return false
	}
	return true
}

// Channel binds a sender to its routing filter. It satisfies alert.Channel.
type Channel struct {
	Sender
	filter Filter
}

func (c *Channel) Matches(a *alert.Alert) bool { return c.filter.Matches(a) }

// Build constructs a routed channel from its static configuration. Unknown
// kinds and missing kind-specific settings are configuration errors and abort
// startup.
func Build(cfg config.ChannelConfig) (*Channel, error) {
	filter, err := buildFilter(cfg)
	if err != nil {
		return nil, err
	}

	var sender Sender
	switch cfg.Kind {
	case KindChatWebhook:
		sender, err = newChatWebhook(cfg)
	case KindIncidentAPI:
		sender, err = newIncidentAPI(cfg)
	case KindEmail:
		sender, err = newEmail(cfg)
	case KindGenericWebhook:
		sender, err = newWebhook(cfg)
	default:
		return nil, fmt.Errorf("channel %q: unknown kind %q", cfg.Name, cfg.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("channel %q: %w", cfg.Name, err)
	}

	return &Channel{Sender: withBreaker(sender), filter: filter}, nil
}

func buildFilter(cfg config.ChannelConfig) (Filter, error) {
	f := Filter{
		Enabled: cfg.Enabled,
		Sources: cfg.SourceFilter,
		Tags:    cfg.TagFilter,
	}
	for _, raw := range cfg.SeverityFilter {
		sev, err := alert.ParseSeverity(raw)
		if err != nil {
			return Filter{}, fmt.Errorf("channel %q: severity filter: %w", cfg.Name, err)
		}
		f.Severities = append(f.Severities, sev)
	}
	return f, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: sendTimeout}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsSeverity(list []alert.Severity, v alert.Severity) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
