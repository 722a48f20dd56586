package fetch

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	"github.com/david/scholarship-scout/internal/models"
)

// LinkHealth classifies the terminal result of a fetch. Only NotFound is
// treated as true dead; every other non-ok class is transient.
type LinkHealth string

const (
	HealthOK          LinkHealth = "ok"
	HealthRedirect    LinkHealth = "redirect"
	HealthNotFound    LinkHealth = "not_found"
	HealthForbidden   LinkHealth = "forbidden"
	HealthRateLimited LinkHealth = "rate_limited"
	HealthServerError LinkHealth = "server_error"
	HealthTimeout     LinkHealth = "timeout"
	HealthUnknown     LinkHealth = "unknown"
)

// TrueDead reports whether the URL is confirmed gone (404 or 410 on a GET).
func (h LinkHealth) TrueDead() bool { return h == HealthNotFound }

// Transient reports whether the failure class may clear up on its own.
func (h LinkHealth) Transient() bool {
	switch h {
	case HealthRateLimited, HealthServerError, HealthTimeout, HealthForbidden, HealthRedirect, HealthUnknown:
		return true
	}
	return false
}

// ClassifyStatus maps an HTTP status code to a LinkHealth. 304 is handled
// before this is consulted; it is a conditional success, not a redirect.
func ClassifyStatus(code int) LinkHealth {
	switch {
	case code >= 200 && code < 300:
		return HealthOK
	case code == 404 || code == 410:
		return HealthNotFound
	case code == 403:
		return HealthForbidden
	case code == 429:
		return HealthRateLimited
	case code >= 500:
		return HealthServerError
	case code >= 300 && code < 400:
		return HealthRedirect
	}
	return HealthUnknown
}

// Outcome is the classified result of a fetch. The fetch layer never returns
// an error; every terminal path produces one of these.
type Outcome struct {
	URL         string
	FinalURL    string // set when redirects landed somewhere else
	StatusCode  int
	Health      LinkHealth
	Body        []byte
	Headers     http.Header
	ContentType string
	NotModified bool // 304 against stored validators
	FetchedAt   time.Time
	Err         string
}

// OK reports whether the fetch produced usable content or confirmed that the
// stored copy is still current.
func (o *Outcome) OK() bool {
	return o.Health == HealthOK
}

// StateStatusForCode maps a bare HTTP code onto the URL-state vocabulary,
// for callers that have a code but no Outcome.
func StateStatusForCode(code int) string {
	o := Outcome{Health: ClassifyStatus(code)}
	return o.StateStatus()
}

// StateStatus maps the outcome onto the URL-state status vocabulary.
func (o *Outcome) StateStatus() string {
	switch o.Health {
	case HealthOK:
		return models.StatusOK
	case HealthNotFound:
		return models.StatusNotFound
	case HealthForbidden:
		return models.StatusForbidden
	case HealthRateLimited:
		return models.StatusRateLimited
	case HealthServerError:
		return models.StatusServerError
	case HealthTimeout:
		return models.StatusTimeout
	}
	return models.StatusUnknown
}

// ApplyTo folds the outcome into a URL-state record: status and code always,
// validators and content hash only when a fresh body came back. On 304 the
// stored validators and hash are already correct and stay untouched.
func (o *Outcome) ApplyTo(st *models.UrlState) {
	st.URL = o.URL
	st.Status = o.StateStatus()
	st.HTTPCode = o.StatusCode

	if o.NotModified {
		return
	}
	if o.Health != HealthOK {
		return
	}

	if etag := o.Headers.Get("ETag"); etag != "" {
		st.ETag = etag
	}
	if lm := o.Headers.Get("Last-Modified"); lm != "" {
		st.LastModified = lm
	}
	if len(o.Body) > 0 {
		sum := sha256.Sum256(o.Body)
		st.ContentHash = hex.EncodeToString(sum[:])
	}
}

// ConditionalHeaders builds the validators for a conditional GET from stored
// state. Nil state or missing validators yield an empty header set.
func ConditionalHeaders(st *models.UrlState) http.Header {
	h := http.Header{}
	if st == nil {
		return h
	}
	if st.ETag != "" {
		h.Set("If-None-Match", st.ETag)
	}
	if st.LastModified != "" {
		h.Set("If-Modified-Since", st.LastModified)
	}
	return h
}
