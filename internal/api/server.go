// Package api serves the triaged lead set over HTTP: filtered listings,
// per-lead lookup by entity key, stats, user accounts with saved leads, and
// admin endpoints that drive pipeline runs and enrichment.
package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/david/scholarship-scout/internal/auth"
	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/fetch"
	"github.com/david/scholarship-scout/internal/leads"
	"github.com/david/scholarship-scout/internal/models"
	"github.com/david/scholarship-scout/internal/pipeline"
	"github.com/david/scholarship-scout/internal/scrape"
	"github.com/david/scholarship-scout/internal/track"
	"github.com/david/scholarship-scout/internal/triage"
)

// runTimeout is the hard stop for an admin-triggered pipeline run.
const runTimeout = 45 * time.Minute

type Server struct {
	Paths  config.Paths
	Auth   *auth.Service
	Echo   *echo.Echo
	Client *fetch.Client

	// Lead set cache, reloaded when leads.json changes on disk.
	leadMu   sync.Mutex
	leads    []models.Lead
	leadKeys map[string]int
	leadTime time.Time

	// Background job tracking
	jobMu      sync.Mutex
	runningJob *backgroundJob
}

type backgroundJob struct {
	ID        string             `json:"id"`
	Status    string             `json:"status"` // running, completed, failed
	StartedAt time.Time          `json:"started_at"`
	EndedAt   time.Time          `json:"ended_at,omitempty"`
	Result    any                `json:"result,omitempty"`
	Error     string             `json:"error,omitempty"`
	Cancel    context.CancelFunc `json:"-"`
}

var (
	adminSecretOnce    sync.Once
	adminSecretRuntime string
	adminSecretErr     error
)

func NewServer(paths config.Paths, authService *auth.Service) *Server {
	e := echo.New()
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	// CORS: allow frontend origins from env or default to localhost
	allowedOrigins := []string{"http://localhost:4200"}
	if extra := os.Getenv("CORS_ORIGINS"); extra != "" {
		for _, o := range strings.Split(extra, ",") {
			o = strings.TrimSpace(o)
			if o != "" {
				allowedOrigins = append(allowedOrigins, o)
			}
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: allowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
	}))

	s := &Server{
		Paths:  paths,
		Auth:   authService,
		Echo:   e,
		Client: fetch.NewClient(),
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleLiveness)
	api := s.Echo.Group("/api/v1")
	api.GET("/leads", s.handleListLeads)
	api.GET("/leads/:key", s.handleGetLead)
	api.GET("/stats", s.handleStats)
	api.GET("/health", s.handleHealth)

	// Auth Routes
	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	// Protected Routes (Saved Leads)
	saved := api.Group("/me/saved")
	saved.Use(auth.Middleware)
	saved.GET("", s.handleListSaved)
	saved.POST("/:key", s.handleSaveLead)
	saved.DELETE("/:key", s.handleUnsaveLead)

	// Admin Routes
	admin := api.Group("/admin")
	admin.Use(s.adminMiddleware)
	admin.POST("/run", s.handleRunPipeline)
	admin.GET("/jobs/:id", s.handleJobStatus)
	admin.POST("/enrich", s.handleEnrich)
}

// leadSet returns the persisted lead set, its entity-key index, and the
// file's last write time. A missing leads.json is an empty set, not an
// error; the cache refreshes whenever the pipeline rewrites the file.
func (s *Server) leadSet() ([]models.Lead, map[string]int, time.Time, error) {
	s.leadMu.Lock()
	defer s.leadMu.Unlock()

	info, err := os.Stat(s.Paths.Leads())
	if os.IsNotExist(err) {
		return nil, nil, time.Time{}, nil
	}
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	if s.leads != nil && info.ModTime().Equal(s.leadTime) {
		return s.leads, s.leadKeys, s.leadTime, nil
	}

	ls, err := track.LoadLeads(s.Paths.Leads())
	if err != nil {
		return nil, nil, time.Time{}, err
	}
	if ls == nil {
		ls = []models.Lead{}
	}
	keys := make(map[string]int, len(ls))
	for i := range ls {
		key := leads.EntityKey(&ls[i])
		if _, taken := keys[key]; !taken {
			keys[key] = i
		}
	}
	s.leads = ls
	s.leadKeys = keys
	s.leadTime = info.ModTime()
	return ls, keys, s.leadTime, nil
}

// LeadPage is one page of the filtered lead listing.
type LeadPage struct {
	Total  int           `json:"total"`
	Count  int           `json:"count"`
	Offset int           `json:"offset"`
	Leads  []models.Lead `json:"leads"`
}

func (s *Server) handleListLeads(c echo.Context) error {
	ls, _, _, err := s.leadSet()
	if err != nil {
		c.Logger().Errorf("Failed to load lead set: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	buckets := splitCSV(c.QueryParam("bucket"))
	sourceTypes := splitCSV(c.QueryParam("source_type"))
	tiers := splitCSV(c.QueryParam("tier"))
	q := strings.TrimSpace(c.QueryParam("q"))

	var watchlist *bool
	if raw := c.QueryParam("watchlist"); raw != "" {
		val := raw == "true"
		watchlist = &val
	}

	limit := 20
	offset := 0
	if l, err := strconv.Atoi(c.QueryParam("limit")); err == nil && l > 0 && l <= 100 {
		limit = l
	}
	if o, err := strconv.Atoi(c.QueryParam("offset")); err == nil && o >= 0 {
		offset = o
	}

	var filtered []models.Lead
	for i := range ls {
		l := &ls[i]
		if !matchesAny(l.Bucket, buckets) || !matchesAny(l.SourceType, sourceTypes) || !matchesAny(l.TrustTier, tiers) {
			continue
		}
		if watchlist != nil && l.Watchlist != *watchlist {
			continue
		}
		if q != "" && !matchesQuery(l, q) {
			continue
		}
		filtered = append(filtered, *l)
	}

	// Triage order: action bucket first, then deadline urgency.
	triage.SortLeads(filtered, time.Now())

	total := len(filtered)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	page := filtered[offset:end]
	if len(page) == 0 {
		page = []models.Lead{}
	}

	return c.JSON(http.StatusOK, LeadPage{Total: total, Count: len(page), Offset: offset, Leads: page})
}

func (s *Server) handleGetLead(c echo.Context) error {
	ls, keys, _, err := s.leadSet()
	if err != nil {
		c.Logger().Errorf("Failed to load lead set: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	idx, ok := keys[keyParam(c)]
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}
	return c.JSON(http.StatusOK, ls[idx])
}

// keyParam returns the :key path parameter with any percent-encoding undone.
// Entity keys carry pipes and spaces, which clients usually escape.
func keyParam(c echo.Context) string {
	raw := c.Param("key")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		return unescaped
	}
	return raw
}

func (s *Server) handleStats(c echo.Context) error {
	ls, _, mtime, err := s.leadSet()
	if err != nil {
		c.Logger().Errorf("Failed to load lead set: %v", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	buckets := map[string]int{}
	tiers := map[string]int{}
	sources := map[string]int{}
	watchlist := 0
	for i := range ls {
		l := &ls[i]
		bucket := l.Bucket
		if bucket == "" {
			bucket = "unbucketed"
		}
		buckets[bucket]++
		if l.TrustTier != "" {
			tiers[l.TrustTier]++
		}
		if l.Source != "" {
			sources[l.Source]++
		}
		if l.Watchlist {
			watchlist++
		}
	}

	resp := map[string]interface{}{
		"total":     len(ls),
		"buckets":   buckets,
		"tiers":     tiers,
		"sources":   sources,
		"watchlist": watchlist,
	}
	if !mtime.IsZero() {
		resp["updated_at"] = mtime.UTC()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleLiveness(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := map[string]interface{}{"status": "ok"}
	ls, _, mtime, err := s.leadSet()
	if err != nil {
		resp["status"] = "degraded"
		resp["error"] = err.Error()
		return c.JSON(http.StatusOK, resp)
	}
	resp["lead_count"] = len(ls)
	if !mtime.IsZero() {
		resp["lead_set_updated_at"] = mtime.UTC()
		resp["lead_set_age"] = time.Since(mtime).Round(time.Second).String()
	}
	return c.JSON(http.StatusOK, resp)
}

// splitCSV splits a comma-separated query parameter into trimmed non-empty strings.
func splitCSV(s string) []string {
	var result []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// matchesAny reports whether v matches one of the allowed values; an empty
// allow list matches everything.
func matchesAny(v string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return true
		}
	}
	return false
}

func matchesQuery(l *models.Lead, q string) bool {
	q = strings.ToLower(q)
	for _, field := range []string{l.Name, l.Notes, l.Source, l.SourceDomain} {
		if strings.Contains(strings.ToLower(field), q) {
			return true
		}
	}
	for _, e := range l.Eligibility {
		if strings.Contains(strings.ToLower(e), q) {
			return true
		}
	}
	return false
}

// Auth Handlers

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}
	if msg := validateSignup(req); msg != "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
	}

	resp, err := s.Auth.Signup(req)
	if err != nil {
		if err == auth.ErrUserExists {
			return c.JSON(http.StatusConflict, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusCreated, resp)
}

func validateSignup(req auth.SignupRequest) string {
	email := auth.NormalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return "a valid email is required"
	}
	if len(req.Password) < 8 {
		return "password must be at least 8 characters"
	}
	return ""
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request"})
	}

	resp, err := s.Auth.Login(req)
	if err != nil {
		if err == auth.ErrInvalidCreds {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, resp)
}

// Protected Handlers

func (s *Server) handleSaveLead(c echo.Context) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	key := keyParam(c)
	_, keys, _, err := s.leadSet()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}
	if _, ok := keys[key]; !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Not found"})
	}

	if err := s.Auth.SaveLead(userID, key); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to save lead"})
	}
	return c.NoContent(http.StatusOK)
}

func (s *Server) handleUnsaveLead(c echo.Context) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	if err := s.Auth.UnsaveLead(userID, keyParam(c)); err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to unsave lead"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "unsaved"})
}

func (s *Server) handleListSaved(c echo.Context) error {
	userID, err := auth.UserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	savedKeys, err := s.Auth.SavedKeys(userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Failed to fetch saved leads"})
	}

	ls, keys, _, err := s.leadSet()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal Server Error"})
	}

	// Bookmarks whose lead has since left the set drop out of the listing.
	saved := []models.Lead{}
	for _, key := range savedKeys {
		if idx, ok := keys[key]; ok {
			saved = append(saved, ls[idx])
		}
	}
	return c.JSON(http.StatusOK, saved)
}

// Admin Handlers

func (s *Server) handleRunPipeline(c echo.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == "running" {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]interface{}{
			"error":  "a pipeline run is already in progress",
			"job_id": job.ID,
		})
	}

	opts := pipeline.Options{
		Source:        strings.TrimSpace(c.QueryParam("source")),
		SkipDiscovery: strings.EqualFold(c.QueryParam("skip_discovery"), "true"),
	}
	if raw := strings.TrimSpace(c.QueryParam("max_sources")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			opts.MaxSources = parsed
		}
	}

	// context.WithoutCancel detaches the run from the HTTP lifecycle but
	// preserves trace values. The timeout is the run's hard stop.
	jobCtx, jobCancel := context.WithTimeout(
		context.WithoutCancel(c.Request().Context()), runTimeout,
	)

	jobID := uuid.New().String()[:8]
	job := &backgroundJob{
		ID:        jobID,
		Status:    "running",
		StartedAt: time.Now(),
		Cancel:    jobCancel,
	}
	s.runningJob = job
	s.jobMu.Unlock()

	// Run in background goroutine; the request returns 202 immediately.
	go func() {
		defer jobCancel()

		pc, cleanup, err := pipeline.BuildContext(s.Paths)
		if err != nil {
			s.finishJob(job, nil, err)
			return
		}
		meta, err := pipeline.Run(jobCtx, pc, opts)
		cleanup()
		if err != nil {
			s.finishJob(job, nil, err)
			return
		}
		s.finishJob(job, meta, nil)
		log.Printf("[run-job %s] completed: %d leads, %d errors", jobID, meta.LeadCount, len(meta.Errors))
	}()

	return c.JSON(http.StatusAccepted, map[string]interface{}{
		"message": "pipeline run started",
		"job_id":  jobID,
		"poll":    fmt.Sprintf("/api/v1/admin/jobs/%s", jobID),
	})
}

func (s *Server) finishJob(job *backgroundJob, result any, err error) {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()
	job.EndedAt = time.Now()
	if err != nil {
		job.Status = "failed"
		job.Error = err.Error()
		log.Printf("[run-job %s] failed: %v", job.ID, err)
		return
	}
	job.Status = "completed"
	job.Result = result
}

func (s *Server) handleJobStatus(c echo.Context) error {
	queried := c.Param("id")
	s.jobMu.Lock()
	job := s.runningJob
	s.jobMu.Unlock()

	if job == nil || job.ID != queried {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job not found"})
	}

	s.jobMu.Lock()
	resp := map[string]interface{}{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	s.jobMu.Unlock()

	return c.JSON(http.StatusOK, resp)
}

// handleEnrich re-runs the official-page extraction over leads that are
// still index-only or whose confidence sits under the threshold, optionally
// narrowed to one source domain. Runs synchronously; the caller bounds the
// batch with max_items.
func (s *Server) handleEnrich(c echo.Context) error {
	ctx := c.Request().Context()

	domain := strings.ToLower(strings.TrimSpace(c.QueryParam("domain")))

	confidenceThreshold := 0.6
	if raw := strings.TrimSpace(c.QueryParam("confidence_threshold")); raw != "" {
		if parsed, err := strconv.ParseFloat(raw, 64); err == nil && parsed >= 0 && parsed <= 1 {
			confidenceThreshold = parsed
		}
	}

	maxItems := 50
	if raw := strings.TrimSpace(c.QueryParam("max_items")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 1000 {
			maxItems = parsed
		}
	}

	criteria, err := config.LoadCriteria(s.Paths.CriteriaFile())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	sources, err := config.LoadSources(s.Paths.SourcesFile())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	endpoints, err := track.LoadAPIEndpoints(s.Paths.APIEndpoints())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	ls, err := track.LoadLeads(s.Paths.Leads())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	deps := &scrape.Deps{
		Client:    s.Client,
		Keywords:  criteria.Keywords,
		Profile:   criteria.Profile,
		Limits:    sources.Limits,
		Endpoints: endpoints,
	}

	eligible, enriched, failed := 0, 0, 0
	for i := range ls {
		l := &ls[i]
		if domain != "" && !domainMatches(l.SourceDomain, domain) {
			continue
		}
		if !l.IsIndexOnly && l.Confidence >= confidenceThreshold {
			continue
		}
		eligible++
		if enriched+failed >= maxItems {
			continue
		}
		if l.OfficialSourceURL == "" {
			// Direct leads re-verify against their own page.
			l.OfficialSourceURL = l.URL
		}
		if scrape.EnrichFromOfficial(ctx, deps, l) {
			// Cleared so the next triage pass rescores with the fresh data.
			l.Confidence = 0
			enriched++
		} else {
			failed++
		}
	}

	if enriched > 0 {
		if err := track.SaveLeads(s.Paths.Leads(), ls); err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":              "enrichment complete",
		"domain":               domain,
		"confidence_threshold": confidenceThreshold,
		"max_items":            maxItems,
		"items_eligible":       eligible,
		"items_enriched":       enriched,
		"items_failed":         failed,
		"lead_count":           len(ls),
	})
}

func domainMatches(sourceDomain, domain string) bool {
	sourceDomain = strings.ToLower(sourceDomain)
	return sourceDomain == domain || strings.HasSuffix(sourceDomain, "."+domain)
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := adminSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server admin configuration error"})
		}

		// Check X-Admin-Secret header or Bearer token
		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader == secret {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			if authHeader[7:] == secret {
				return next(c)
			}
		}

		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func adminSecret() (string, error) {
	adminSecretOnce.Do(func() {
		secret := strings.TrimSpace(os.Getenv("ADMIN_SECRET"))
		if secret != "" {
			adminSecretRuntime = secret
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			adminSecretErr = fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
			return
		}

		adminSecretRuntime = base64.RawURLEncoding.EncodeToString(buf)
		log.Print("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if adminSecretErr != nil {
		return "", adminSecretErr
	}
	if adminSecretRuntime == "" {
		return "", fmt.Errorf("admin secret unavailable")
	}

	return adminSecretRuntime, nil
}
