package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/david/scholarship-scout/internal/auth"
	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/fetch"
	"github.com/david/scholarship-scout/internal/leads"
	"github.com/david/scholarship-scout/internal/models"
	"github.com/david/scholarship-scout/internal/track"
)

const testAdminSecret = "test-admin-secret"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	paths := config.NewPaths(t.TempDir())
	if err := paths.EnsureDirs(); err != nil {
		t.Fatalf("ensure dirs: %v", err)
	}
	authService, err := auth.Open(paths.UsersDB())
	if err != nil {
		t.Fatalf("open user store: %v", err)
	}
	t.Cleanup(func() { authService.Close() })
	return NewServer(paths, authService)
}

func seedLeads(t *testing.T, s *Server, ls []models.Lead) {
	t.Helper()
	if err := track.SaveLeads(s.Paths.Leads(), ls); err != nil {
		t.Fatalf("seed leads: %v", err)
	}
}

func sampleLeads() []models.Lead {
	return []models.Lead{
		{
			Name: "Chevening Scholarship", URL: "https://www.chevening.org/apply",
			SourceDomain: "www.chevening.org", Source: "Chevening", SourceType: models.SourceGovernment,
			TrustTier: models.TierS, Bucket: models.BucketApply, DeadlineDate: "2026-11-03",
			MatchScore: 40, Confidence: 0.9,
		},
		{
			Name: "Clarendon Fund", URL: "https://www.ox.ac.uk/clarendon",
			SourceDomain: "www.ox.ac.uk", Source: "Oxford", SourceType: models.SourceUniversity,
			TrustTier: models.TierS, Bucket: models.BucketPrepare, Deadline: "TBD",
			Watchlist: true, Confidence: 0.8,
		},
		{
			Name: "Aggregator Listing", URL: "https://scholarshipdb.example/listing",
			SourceDomain: "scholarshipdb.example", Source: "ScholarshipDB", SourceType: models.SourceThirdParty,
			TrustTier: models.TierB, Bucket: models.BucketRejected, Confidence: 0.7,
		},
	}
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

func getJSON(t *testing.T, s *Server, path string, out any) *httptest.ResponseRecorder {
	t.Helper()
	rec := do(s, httptest.NewRequest(http.MethodGet, path, nil))
	if rec.Code == http.StatusOK && out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s: %v\n%s", path, err, rec.Body.String())
		}
	}
	return rec
}

func postJSON(s *Server, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return do(s, req)
}

func TestListLeadsFiltersAndPages(t *testing.T) {
	s := newTestServer(t)
	seedLeads(t, s, sampleLeads())

	var page LeadPage
	rec := getJSON(t, s, "/api/v1/leads", &page)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if page.Total != 3 || page.Count != 3 {
		t.Fatalf("expected total 3 count 3, got %d/%d", page.Total, page.Count)
	}
	if page.Leads[0].Name != "Chevening Scholarship" {
		t.Fatalf("expected bucket A lead first, got %q", page.Leads[0].Name)
	}

	cases := []struct {
		query string
		want  int
		name  string
	}{
		{"bucket=A", 1, "Chevening Scholarship"},
		{"tier=S", 2, ""},
		{"source_type=third_party", 1, "Aggregator Listing"},
		{"watchlist=true", 1, "Clarendon Fund"},
		{"q=clarendon", 1, "Clarendon Fund"},
		{"bucket=A,B", 2, ""},
		{"bucket=A&q=aggregator", 0, ""},
	}
	for _, tc := range cases {
		var got LeadPage
		rec := getJSON(t, s, "/api/v1/leads?"+tc.query, &got)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", tc.query, rec.Code)
		}
		if got.Total != tc.want {
			t.Fatalf("%s: expected %d leads, got %d", tc.query, tc.want, got.Total)
		}
		if tc.name != "" && got.Leads[0].Name != tc.name {
			t.Fatalf("%s: expected %q, got %q", tc.query, tc.name, got.Leads[0].Name)
		}
	}

	var paged LeadPage
	getJSON(t, s, "/api/v1/leads?limit=2&offset=2", &paged)
	if paged.Total != 3 || paged.Count != 1 || paged.Offset != 2 {
		t.Fatalf("expected total 3 count 1 offset 2, got %d/%d/%d", paged.Total, paged.Count, paged.Offset)
	}
}

func TestListLeadsEmptySetIsNotAnError(t *testing.T) {
	s := newTestServer(t)

	var page LeadPage
	rec := getJSON(t, s, "/api/v1/leads", &page)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with no lead set, got %d", rec.Code)
	}
	if page.Total != 0 {
		t.Fatalf("expected empty page, got %d", page.Total)
	}
	if !strings.Contains(rec.Body.String(), `"leads":[]`) {
		t.Fatalf("expected empty array, got %s", rec.Body.String())
	}
}

func TestGetLeadByEntityKey(t *testing.T) {
	s := newTestServer(t)
	ls := sampleLeads()
	seedLeads(t, s, ls)

	key := leads.EntityKey(&ls[0])
	var got models.Lead
	rec := getJSON(t, s, "/api/v1/leads/"+url.PathEscape(key), &got)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if got.Name != "Chevening Scholarship" {
		t.Fatalf("expected Chevening lead, got %q", got.Name)
	}

	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/v1/leads/"+url.PathEscape("no|such|key"), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown key, got %d", rec.Code)
	}
}

func TestStatsCountsBucketsTiersSources(t *testing.T) {
	s := newTestServer(t)
	seedLeads(t, s, sampleLeads())

	var stats struct {
		Total     int            `json:"total"`
		Buckets   map[string]int `json:"buckets"`
		Tiers     map[string]int `json:"tiers"`
		Sources   map[string]int `json:"sources"`
		Watchlist int            `json:"watchlist"`
	}
	rec := getJSON(t, s, "/api/v1/stats", &stats)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if stats.Total != 3 {
		t.Fatalf("expected total 3, got %d", stats.Total)
	}
	if stats.Buckets[models.BucketApply] != 1 || stats.Buckets[models.BucketPrepare] != 1 || stats.Buckets[models.BucketRejected] != 1 {
		t.Fatalf("unexpected bucket counts: %v", stats.Buckets)
	}
	if stats.Tiers[models.TierS] != 2 || stats.Tiers[models.TierB] != 1 {
		t.Fatalf("unexpected tier counts: %v", stats.Tiers)
	}
	if stats.Sources["Chevening"] != 1 {
		t.Fatalf("unexpected source counts: %v", stats.Sources)
	}
	if stats.Watchlist != 1 {
		t.Fatalf("expected 1 watchlist lead, got %d", stats.Watchlist)
	}
}

func TestHealthReportsLeadSetAge(t *testing.T) {
	s := newTestServer(t)
	seedLeads(t, s, sampleLeads())

	var health struct {
		Status     string `json:"status"`
		LeadCount  int    `json:"lead_count"`
		LeadSetAge string `json:"lead_set_age"`
	}
	rec := getJSON(t, s, "/api/v1/health", &health)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if health.Status != "ok" || health.LeadCount != 3 {
		t.Fatalf("expected ok with 3 leads, got %+v", health)
	}
	if health.LeadSetAge == "" {
		t.Fatal("expected a lead-set age")
	}

	rec = do(s, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "OK" {
		t.Fatalf("expected liveness OK, got %d %q", rec.Code, rec.Body.String())
	}
}

func TestLeadCacheReloadsWhenFileChanges(t *testing.T) {
	s := newTestServer(t)
	seedLeads(t, s, sampleLeads())

	var page LeadPage
	getJSON(t, s, "/api/v1/leads", &page)
	if page.Total != 3 {
		t.Fatalf("expected 3 leads, got %d", page.Total)
	}

	// Rewrite the file with a different set and a newer mtime.
	time.Sleep(10 * time.Millisecond)
	seedLeads(t, s, sampleLeads()[:1])
	now := time.Now()
	if err := os.Chtimes(s.Paths.Leads(), now, now); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	getJSON(t, s, "/api/v1/leads", &page)
	if page.Total != 1 {
		t.Fatalf("expected reload to see 1 lead, got %d", page.Total)
	}
}

func TestSignupLoginAndSavedLeads(t *testing.T) {
	s := newTestServer(t)
	ls := sampleLeads()
	seedLeads(t, s, ls)

	rec := postJSON(s, "/api/v1/auth/signup", `{"email":"anna@example.com","password":"tiny"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short password, got %d", rec.Code)
	}

	rec = postJSON(s, "/api/v1/auth/signup", `{"email":"anna@example.com","password":"long-enough"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var signup auth.AuthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &signup); err != nil {
		t.Fatalf("decode signup: %v", err)
	}
	if signup.Token == "" {
		t.Fatal("expected a token")
	}

	rec = postJSON(s, "/api/v1/auth/signup", `{"email":"anna@example.com","password":"long-enough"}`, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for duplicate signup, got %d", rec.Code)
	}

	rec = postJSON(s, "/api/v1/auth/login", `{"email":"anna@example.com","password":"wrong-password"}`, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad login, got %d", rec.Code)
	}
	rec = postJSON(s, "/api/v1/auth/login", `{"email":"anna@example.com","password":"long-enough"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 login, got %d", rec.Code)
	}

	// Saved leads need the bearer token.
	rec = do(s, httptest.NewRequest(http.MethodGet, "/api/v1/me/saved", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	bearer := map[string]string{"Authorization": "Bearer " + signup.Token}
	key := leads.EntityKey(&ls[0])

	rec = postJSON(s, "/api/v1/me/saved/"+url.PathEscape("no|such|key"), "", bearer)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 saving unknown key, got %d", rec.Code)
	}

	rec = postJSON(s, "/api/v1/me/saved/"+url.PathEscape(key), "", bearer)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 saving lead, got %d: %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/saved", nil)
	req.Header.Set("Authorization", "Bearer "+signup.Token)
	rec = do(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 listing saved, got %d", rec.Code)
	}
	var saved []models.Lead
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatalf("decode saved: %v", err)
	}
	if len(saved) != 1 || saved[0].Name != "Chevening Scholarship" {
		t.Fatalf("expected the saved Chevening lead, got %+v", saved)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/v1/me/saved/"+url.PathEscape(key), nil)
	req.Header.Set("Authorization", "Bearer "+signup.Token)
	rec = do(s, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 unsaving, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/me/saved", nil)
	req.Header.Set("Authorization", "Bearer "+signup.Token)
	rec = do(s, req)
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatalf("decode saved after unsave: %v", err)
	}
	if len(saved) != 0 {
		t.Fatalf("expected no saved leads left, got %d", len(saved))
	}
}

func TestAdminRoutesRequireSecret(t *testing.T) {
	t.Setenv("ADMIN_SECRET", testAdminSecret)
	s := newTestServer(t)

	rec := postJSON(s, "/api/v1/admin/enrich", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without secret, got %d", rec.Code)
	}
	rec = postJSON(s, "/api/v1/admin/enrich", "", map[string]string{"X-Admin-Secret": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong secret, got %d", rec.Code)
	}
}

func TestEnrichSkipsConfidentLeads(t *testing.T) {
	t.Setenv("ADMIN_SECRET", testAdminSecret)
	s := newTestServer(t)
	seedLeads(t, s, sampleLeads())

	rec := postJSON(s, "/api/v1/admin/enrich", "", map[string]string{"X-Admin-Secret": testAdminSecret})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Eligible int `json:"items_eligible"`
		Enriched int `json:"items_enriched"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Eligible != 0 || resp.Enriched != 0 {
		t.Fatalf("expected nothing eligible above threshold, got %+v", resp)
	}
}

func TestEnrichReextractsLowConfidenceLead(t *testing.T) {
	t.Setenv("ADMIN_SECRET", testAdminSecret)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Global Futures Scholarship</title></head>
<body><h1>Global Futures Scholarship</h1>
<p>Award: £15,000 stipend. Deadline: 2026-12-01. Open to international students.</p>
</body></html>`)
	}))
	defer srv.Close()

	s := newTestServer(t)
	s.Client = testClient()
	seedLeads(t, s, []models.Lead{{
		Name: "Global Futures Scholarship", URL: srv.URL + "/scholarship",
		SourceDomain: "uni.example", Source: "Uni", SourceType: models.SourceUniversity,
		TrustTier: models.TierS, Confidence: 0.1,
	}})

	rec := postJSON(s, "/api/v1/admin/enrich?domain=uni.example", "", map[string]string{"X-Admin-Secret": testAdminSecret})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Eligible int `json:"items_eligible"`
		Enriched int `json:"items_enriched"`
		Failed   int `json:"items_failed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Eligible != 1 || resp.Enriched != 1 || resp.Failed != 0 {
		t.Fatalf("expected one enriched lead, got %+v", resp)
	}

	reloaded, err := track.LoadLeads(s.Paths.Leads())
	if err != nil {
		t.Fatalf("reload leads: %v", err)
	}
	if len(reloaded) != 1 {
		t.Fatalf("expected 1 lead, got %d", len(reloaded))
	}
	l := reloaded[0]
	if l.Confidence != 0 {
		t.Fatalf("expected confidence cleared for rescoring, got %v", l.Confidence)
	}
	if l.CheckCount != 1 {
		t.Fatalf("expected check count bumped, got %d", l.CheckCount)
	}
	if l.HTTPStatus != http.StatusOK {
		t.Fatalf("expected http status recorded, got %d", l.HTTPStatus)
	}
}

// testClient swaps the hardened transport for a plain one so httptest
// servers on loopback are reachable.
func testClient() *fetch.Client {
	c := fetch.NewClientWithRPS(1000)
	c.HTTP = &http.Client{Timeout: 5 * time.Second}
	return c
}

func TestRunPipelineJobLifecycle(t *testing.T) {
	t.Setenv("ADMIN_SECRET", testAdminSecret)
	s := newTestServer(t)

	// No enabled sources and no leads keeps the run off the network.
	if err := os.MkdirAll(s.Paths.ConfigDir(), 0o755); err != nil {
		t.Fatalf("mkdir config: %v", err)
	}
	if err := os.WriteFile(s.Paths.SourcesFile(), []byte("sources: []\n"), 0o644); err != nil {
		t.Fatalf("write sources: %v", err)
	}

	rec := do(s, httptest.NewRequest(http.MethodGet, "/api/v1/admin/jobs/nope", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for job status without secret, got %d", rec.Code)
	}

	admin := map[string]string{"X-Admin-Secret": testAdminSecret}
	rec = postJSON(s, "/api/v1/admin/run?skip_discovery=true", "", admin)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	var started struct {
		JobID string `json:"job_id"`
		Poll  string `json:"poll"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode run response: %v", err)
	}
	if started.JobID == "" {
		t.Fatal("expected a job id")
	}

	deadline := time.Now().Add(30 * time.Second)
	var status map[string]any
	for {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/jobs/"+started.JobID, nil)
		req.Header.Set("X-Admin-Secret", testAdminSecret)
		rec = do(s, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 polling job, got %d", rec.Code)
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
			t.Fatalf("decode job status: %v", err)
		}
		if status["status"] != "running" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("job did not finish in time")
		}
		time.Sleep(50 * time.Millisecond)
	}
	if status["status"] != "completed" {
		t.Fatalf("expected completed job, got %v", status)
	}
	if status["result"] == nil {
		t.Fatal("expected the run record as job result")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/jobs/unknown", nil)
	req.Header.Set("X-Admin-Secret", testAdminSecret)
	rec = do(s, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown job, got %d", rec.Code)
	}
}

func TestRunPipelineConflictsWithRunningJob(t *testing.T) {
	t.Setenv("ADMIN_SECRET", testAdminSecret)
	s := newTestServer(t)
	s.runningJob = &backgroundJob{ID: "busy", Status: "running", StartedAt: time.Now()}

	rec := postJSON(s, "/api/v1/admin/run", "", map[string]string{"X-Admin-Secret": testAdminSecret})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 while a run is active, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "busy") {
		t.Fatalf("expected the running job id in the response, got %s", rec.Body.String())
	}
}
