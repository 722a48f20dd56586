package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/david/scholarship-scout/internal/models"
)

const (
	// MaxRetries bounds re-attempts on transient statuses; the first try is
	// not a retry.
	MaxRetries = 2

	maxRedirects  = 5
	maxBodyBytes  = 10 << 20
	backoffCap    = 10 * time.Second
	retryAfterCap = 60 * time.Second

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

var retryStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

var blockedPrefixes = func() []netip.Prefix {
	raw := []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	}
	prefixes := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		if p, err := netip.ParsePrefix(s); err == nil {
			prefixes = append(prefixes, p)
		}
	}
	return prefixes
}()

// Client is the polite HTTP layer every component fetches through. It keeps
// one rate limiter per host, retries transient statuses with backoff, and
// classifies every terminal result instead of returning errors.
type Client struct {
	HTTP      *http.Client
	UserAgent string

	perHostRPS float64
	mu         sync.Mutex
	limiters   map[string]*rate.Limiter
}

func NewClient() *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           safeDialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Client{
		HTTP: &http.Client{
			Timeout:       20 * time.Second,
			Transport:     transport,
			CheckRedirect: safeCheckRedirect,
		},
		UserAgent:  defaultUserAgent,
		perHostRPS: 1.0,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// NewClientWithRPS returns a client with a custom per-host request rate.
// Anything above the polite default of 1 req/s should only be pointed at
// hosts you control.
func NewClientWithRPS(rps float64) *Client {
	c := NewClient()
	if rps > 0 {
		c.perHostRPS = rps
	}
	return c
}

// Fetch performs a full conditional GET. Validators from state are attached
// when present; a 304 comes back as an ok outcome with NotModified set, and
// the caller reuses its stored content without re-parsing.
func (c *Client) Fetch(ctx context.Context, rawURL string, state *models.UrlState) *Outcome {
	return c.do(ctx, http.MethodGet, rawURL, ConditionalHeaders(state))
}

// Check probes liveness cheaply: HEAD first, then a ranged GET when the HEAD
// was inconclusive. A 404/410 seen on HEAD is confirmed with the GET before
// it counts as dead.
func (c *Client) Check(ctx context.Context, rawURL string) *Outcome {
	out := c.do(ctx, http.MethodHead, rawURL, nil)
	if !headConclusive(out) {
		hdr := http.Header{}
		hdr.Set("Range", "bytes=0-1023")
		return c.do(ctx, http.MethodGet, rawURL, hdr)
	}
	return out
}

func headConclusive(out *Outcome) bool {
	if out.Err != "" {
		return false // connect/timeout errors fall back to GET
	}
	switch out.StatusCode {
	case http.StatusForbidden, http.StatusNotFound, http.StatusMethodNotAllowed,
		http.StatusGone, http.StatusTooManyRequests:
		return false
	}
	return out.StatusCode < 500
}

func (c *Client) do(ctx context.Context, method, rawURL string, extra http.Header) *Outcome {
	out := &Outcome{URL: rawURL, Health: HealthUnknown, Headers: http.Header{}, FetchedAt: time.Now()}

	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		out.Err = fmt.Sprintf("invalid url: %v", err)
		return out
	}
	if err := c.limiterFor(parsed.Host).Wait(ctx); err != nil {
		out.Err = err.Error()
		out.Health = HealthTimeout
		return out
	}

	var lastOut *Outcome
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			if lastOut != nil {
				if ra := retryAfterDelay(lastOut.Headers); ra > 0 {
					backoff = ra
				}
			}
			if backoff > backoffCap {
				backoff = backoffCap
			}
			jitter := time.Duration(rand.Intn(200)) * time.Millisecond
			select {
			case <-ctx.Done():
				out.Err = ctx.Err().Error()
				out.Health = HealthTimeout
				return out
			case <-time.After(backoff + jitter):
			}
		}

		attemptOut := c.once(ctx, method, rawURL, extra)
		lastOut = attemptOut

		if attemptOut.Err != "" {
			if attemptOut.Health == HealthTimeout {
				continue // timeouts are worth another try
			}
			return attemptOut
		}
		if retryStatus[attemptOut.StatusCode] {
			continue
		}
		return attemptOut
	}

	return lastOut
}

func (c *Client) once(ctx context.Context, method, rawURL string, extra http.Header) *Outcome {
	out := &Outcome{URL: rawURL, Health: HealthUnknown, Headers: http.Header{}, FetchedAt: time.Now()}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		out.Err = fmt.Sprintf("failed to create request: %v", err)
		return out
	}

	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		out.Err = err.Error()
		out.Health = classifyRequestError(err)
		return out
	}
	defer resp.Body.Close()

	out.StatusCode = resp.StatusCode
	out.Headers = resp.Header
	out.ContentType = resp.Header.Get("Content-Type")
	if final := resp.Request.URL.String(); final != rawURL {
		out.FinalURL = final
	}

	if resp.StatusCode == http.StatusNotModified {
		out.NotModified = true
		out.Health = HealthOK
		return out
	}

	out.Health = ClassifyStatus(resp.StatusCode)
	if method != http.MethodHead {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if readErr != nil {
			out.Err = fmt.Sprintf("body read failed: %v", readErr)
			out.Health = classifyRequestError(readErr)
			return out
		}
		out.Body = body
	}

	return out
}

func classifyRequestError(err error) LinkHealth {
	if errors.Is(err, context.DeadlineExceeded) {
		return HealthTimeout
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return HealthTimeout
	}
	if strings.Contains(err.Error(), "stopped after") {
		return HealthRedirect
	}
	return HealthUnknown
}

// retryAfterDelay parses a Retry-After header as delta seconds or HTTP date.
// Values above the cap are ignored; the normal backoff applies instead.
func retryAfterDelay(h http.Header) time.Duration {
	raw := h.Get("Retry-After")
	if raw == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
		d := time.Duration(secs) * time.Second
		if d >= 0 && d <= retryAfterCap {
			return d
		}
		return 0
	}
	if when, err := http.ParseTime(raw); err == nil {
		d := time.Until(when)
		if d > 0 && d <= retryAfterCap {
			return d
		}
	}
	return 0
}

func (c *Client) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim, ok := c.limiters[host]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(c.perHostRPS), 2)
		c.limiters[host] = lim
	}
	return lim
}

func safeDialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, err
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return nil, fmt.Errorf("blocked private IP: %s", ip)
		}
	}

	return d.DialContext(ctx, network, addr)
}

func isPrivateIP(ip net.IP) bool {
	if ip == nil {
		return true
	}
	if ip.IsLoopback() || ip.IsLinkLocalMulticast() || ip.IsLinkLocalUnicast() || ip.IsMulticast() || ip.IsPrivate() || ip.IsUnspecified() {
		return true
	}
	if addr, ok := netip.AddrFromSlice(ip); ok {
		for _, prefix := range blockedPrefixes {
			if prefix.Contains(addr.Unmap()) {
				return true
			}
		}
	}
	return false
}

func safeCheckRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return fmt.Errorf("stopped after %d redirects", maxRedirects)
	}
	if req.URL == nil {
		return fmt.Errorf("invalid redirect URL")
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return fmt.Errorf("redirect scheme blocked")
	}

	host := req.URL.Hostname()
	if host == "" {
		return fmt.Errorf("redirect host missing")
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".local") {
		return fmt.Errorf("redirect to internal host blocked")
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return err
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("redirect to private IP blocked: %s", ip)
		}
	}

	return nil
}
