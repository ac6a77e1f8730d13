package config

// Config is the root configuration structure for opsrelay.
// Serialised to ~/.opsrelay/config.json.
type Config struct {
	Database    DatabaseConfig    `mapstructure:"database"    json:"database"`
	Alerting    AlertingConfig    `mapstructure:"alerting"    json:"alerting"    validate:"required"`
	Remediation RemediationConfig `mapstructure:"remediation" json:"remediation"`
}

// DatabaseConfig controls the audit-store backend. An empty driver disables
// persistence entirely; alert and remediation history stay in memory.
type DatabaseConfig struct {
	// Driver is "", "sqlite" or "mysql".
	Driver string `mapstructure:"driver" json:"driver" validate:"omitempty,oneof=sqlite sqlite3 mysql"`
	// Path is the SQLite file path (expanded at runtime).
	Path string `mapstructure:"path"   json:"path"`
	// DSN is the MySQL data source name (used when Driver == "mysql").
	DSN string `mapstructure:"dsn"    json:"dsn"`
}

// AlertingConfig controls deduplication, rate limiting, retry, and the
// configured notification channels and templates.
type AlertingConfig struct {
	DedupeWindowSeconds    int `mapstructure:"dedupe_window_seconds"     json:"dedupe_window_seconds"     validate:"min=1"`
	RateLimit              int `mapstructure:"rate_limit"                json:"rate_limit"                validate:"min=1"`
	RateLimitWindowSeconds int `mapstructure:"rate_limit_window_seconds" json:"rate_limit_window_seconds" validate:"min=1"`
	RetryIntervalSeconds   int `mapstructure:"retry_interval_seconds"    json:"retry_interval_seconds"    validate:"min=1"`
	MaxRetries             int `mapstructure:"max_retries"               json:"max_retries"               validate:"min=0"`
	// HistoryLimit bounds the in-memory alert history.
	HistoryLimit int `mapstructure:"history_limit" json:"history_limit" validate:"min=1"`

	Channels  []ChannelConfig  `mapstructure:"channels"  json:"channels"  validate:"dive"`
	Templates []TemplateConfig `mapstructure:"templates" json:"templates" validate:"dive"`
}

// ChannelConfig describes one notification destination. Options carries the
// kind-specific settings (webhook_url, routing_key, smtp_host, ...).
type ChannelConfig struct {
	Kind    string            `mapstructure:"kind"    json:"kind"    validate:"required,oneof=chat-webhook incident-api email generic-webhook"`
	Name    string            `mapstructure:"name"    json:"name"    validate:"required"`
	Enabled bool              `mapstructure:"enabled" json:"enabled"`
	Options map[string]string `mapstructure:"options" json:"options"`

	// Absent filter = no restriction on that axis.
	SeverityFilter []string `mapstructure:"severity_filter" json:"severity_filter,omitempty" validate:"dive,oneof=info warning error critical"`
	SourceFilter   []string `mapstructure:"source_filter"   json:"source_filter,omitempty"`
	TagFilter      []string `mapstructure:"tag_filter"      json:"tag_filter,omitempty"`
}

// TemplateConfig describes one named alert template.
type TemplateConfig struct {
	Name     string   `mapstructure:"name"     json:"name"     validate:"required"`
	Title    string   `mapstructure:"title"    json:"title"    validate:"required"`
	Message  string   `mapstructure:"message"  json:"message"  validate:"required"`
	Severity string   `mapstructure:"severity" json:"severity" validate:"required,oneof=info warning error critical"`
	Tags     []string `mapstructure:"tags"     json:"tags"`
}

// RemediationConfig wires the remediation orchestrator to its external
// collaborators.
type RemediationConfig struct {
	Workload       WorkloadConfig       `mapstructure:"workload"        json:"workload"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker" json:"circuit_breaker"`
}

// WorkloadConfig points at the workload-orchestrator control plane used for
// scaling deployments and deleting pods.
type WorkloadConfig struct {
	URL   string `mapstructure:"url"   json:"url" validate:"omitempty,url"`
	Token string `mapstructure:"token" json:"token"`
}

// CircuitBreakerConfig points at the external breaker-control API. The
// circuit-breaker action is only registered when APIURL is set.
type CircuitBreakerConfig struct {
	APIURL string `mapstructure:"api_url" json:"api_url" validate:"omitempty,url"`
	APIKey string `mapstructure:"api_key" json:"api_key"`
}
