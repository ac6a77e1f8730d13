package alert

import (
	"fmt"
	"hash/fnv"
	"time"
)

// Severity classifies how urgent an alert is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Weight returns a numeric weight for ordering (higher = more severe).
func (s Severity) Weight() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

func (s Severity) String() string { return string(s) }

// ParseSeverity validates a severity string from config or the wire.
func ParseSeverity(raw string) (Severity, error) {
	switch Severity(raw) {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return Severity(raw), nil
	default:
		return "", fmt.Errorf("unknown alert severity %q", raw)
	}
}

// Alert is a single notification instance. Identity fields (ID, DedupeKey,
// Title, Source, ...) are fixed at creation; Delivered and DeliveryAttempts
// are delivery state owned by the Manager and must only be touched under its
// lock.
type Alert struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Severity  Severity       `json:"severity"`
	Source    string         `json:"source"`
	Timestamp time.Time      `json:"timestamp"`
	Details   map[string]any `json:"details"`
	Tags      []string       `json:"tags"`
	DedupeKey string         `json:"dedupe_key"`

	DeliveryAttempts int  `json:"delivery_attempts"`
	Delivered        bool `json:"delivered"`
}

// Option customises alert construction.
type Option func(*Alert)

// WithTimestamp overrides the creation timestamp (default: now).
func WithTimestamp(ts time.Time) Option {
	return func(a *Alert) { a.Timestamp = ts }
}

// WithDedupeKey overrides the derived deduplication key.
func WithDedupeKey(key string) Option {
	return func(a *Alert) { a.DedupeKey = key }
}

// WithDetails attaches structured context to the alert.
func WithDetails(details map[string]any) Option {
	return func(a *Alert) { a.Details = details }
}

// WithTags attaches categorisation tags.
func WithTags(tags ...string) Option {
	return func(a *Alert) { a.Tags = tags }
}

// New builds an Alert. The dedupe key defaults to
// "source:title:<minute-truncated timestamp>" so repeats of the same
// condition inside one minute collapse to one key, and the ID is derived from
// the dedupe key so it is stable for a given alert instance.
func New(title, message string, severity Severity, source string, opts ...Option) *Alert {
	a := &Alert{
		Title:     title,
		Message:   message,
		Severity:  severity,
		Source:    source,
		Timestamp: time.Now(),
		Details:   map[string]any{},
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.DedupeKey == "" {
		a.DedupeKey = fmt.Sprintf("%s:%s:%s", source, title, a.Timestamp.Format("200601021504"))
	}
	a.ID = deriveID(a.DedupeKey, a.Timestamp)
	return a
}

// HasTag reports whether the alert carries the given tag.
func (a *Alert) HasTag(tag string) bool {
	for _, t := range a.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func deriveID(dedupeKey string, ts time.Time) string {
	h := fnv.New32a()
	h.Write([]byte(dedupeKey))
	return fmt.Sprintf("alert-%d-%04d", ts.Unix(), h.Sum32()%10000)
}
