package models

import "time"

// URL health statuses persisted in the URL-state store.
const (
	StatusOK             = "ok"
	StatusNotFound       = "not_found"
	StatusForbidden      = "forbidden"
	StatusRateLimited    = "rate_limited"
	StatusServerError    = "server_error"
	StatusTimeout        = "timeout"
	StatusParseError     = "parse_error"
	StatusRobotsDisallow = "robots_disallow"
	StatusUnknown        = "unknown"
)

// UrlState is the per-URL fetch memory: validators for conditional GET, the
// last body hash, and the last observed health.
type UrlState struct {
	URL          string    `json:"url"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	ContentHash  string    `json:"content_hash,omitempty"`
	LastSeen     time.Time `json:"last_seen"`
	Status       string    `json:"status"`
	HTTPCode     int       `json:"http_code,omitempty"`
}

// SourceHealth tracks per-source reliability across runs. A source whose
// consecutive failure count reaches the configured ceiling is auto-disabled
// until someone re-enables it.
type SourceHealth struct {
	URL                 string    `json:"url"`
	Name                string    `json:"name"`
	SourceType          string    `json:"source_type"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalAttempts       int       `json:"total_attempts"`
	TotalSuccesses      int       `json:"total_successes"`
	LastStatus          string    `json:"last_status,omitempty"`
	LastHTTPCode        int       `json:"last_http_code,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	LastChecked         time.Time `json:"last_checked"`
	AutoDisabled        bool      `json:"auto_disabled"`
	DisabledReason      string    `json:"disabled_reason,omitempty"`
}
