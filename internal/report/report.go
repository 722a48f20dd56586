// Package report renders one production directory per pipeline run: lead
// tables in text, Markdown and HTML, the per-bucket triage views, dead-link
// and summary digests, and the machine-readable audit and run records.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/scholarship-scout/internal/leads"
	"github.com/david/scholarship-scout/internal/models"
	"github.com/david/scholarship-scout/internal/rules"
	"github.com/david/scholarship-scout/internal/triage"
)

// reportBuckets is the section order for triage views.
var reportBuckets = []string{
	models.BucketApply,
	models.BucketPrepare,
	models.BucketRejected,
	models.BucketMissed,
}

func bucketLabel(bucket string) string {
	switch bucket {
	case models.BucketApply:
		return "Apply Now"
	case models.BucketPrepare:
		return "Prepare"
	case models.BucketRejected:
		return "Rejected"
	case models.BucketMissed:
		return "Missed"
	}
	return "Unbucketed"
}

// Writer renders production directories under Root/scripts/productions.
// Now is fixed in tests; zero means wall clock.
type Writer struct {
	Root string
	Now  time.Time
}

func NewWriter(root string) *Writer {
	return &Writer{Root: root}
}

func (w *Writer) now() time.Time {
	if w.Now.IsZero() {
		return time.Now().UTC()
	}
	return w.Now
}

// Dir creates and returns the production directory for this run.
func (w *Writer) Dir() (string, error) {
	dir := filepath.Join(w.Root, "scripts", "productions", w.now().UTC().Format("20060102-150405"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create production dir %s: %w", dir, err)
	}
	return dir, nil
}

// WriteAll renders every report into a fresh production directory and
// returns its path. Leads are written in the order given, so run triage
// sorting first.
func (w *Writer) WriteAll(ls []models.Lead, audit []rules.AuditEntry, health []models.SourceHealth) (string, error) {
	dir, err := w.Dir()
	if err != nil {
		return "", err
	}
	now := w.now()

	main := leadTable(ls, now)
	files := map[string]string{
		"report.txt":   main.Render(),
		"report.md":    fmt.Sprintf("# Scholarship report %s\n\n%s", now.Format(time.RFC3339), main.RenderMarkdown()),
		"report.html":  main.RenderHTML(),
		"triage.md":    renderTriageMarkdown(ls, now),
		"triage.csv":   csvTable(ls, now).RenderCSV(),
		"deadlinks.md": renderDeadlinks(ls, health, now),
		"summary.txt":  renderSummary(ls, health, now),
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content+"\n"), 0o644); err != nil {
			return "", fmt.Errorf("failed to write %s: %w", name, err)
		}
	}
	if err := writeRulesAudit(dir, audit); err != nil {
		return "", err
	}
	return dir, nil
}

func writeRulesAudit(dir string, audit []rules.AuditEntry) error {
	if audit == nil {
		audit = []rules.AuditEntry{}
	}
	data, err := json.MarshalIndent(audit, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode rules audit: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "rules_audit.json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to write rules audit: %w", err)
	}
	return nil
}

func leadTable(ls []models.Lead, now time.Time) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Bucket", "Name", "Amount", "Deadline", "Days", "Conf", "Score", "Effort", "Tier", "Watch", "URL"})
	for i := range ls {
		l := &ls[i]
		t.AppendRow(table.Row{
			l.Bucket,
			clip(l.Name, 48),
			valueOr(l.Amount, "-"),
			valueOr(displayDeadline(l), "-"),
			daysLabel(l, now),
			fmt.Sprintf("%.2f", l.Confidence),
			fmt.Sprintf("%.0f", triage.ComprehensiveScore(l, now)),
			l.EffortScore,
			valueOr(l.TrustTier, "-"),
			watchMark(l.Watchlist),
			l.URL,
		})
	}
	return t
}

func csvTable(ls []models.Lead, now time.Time) table.Writer {
	t := table.NewWriter()
	t.AppendHeader(table.Row{
		"bucket", "name", "url", "amount", "deadline_date", "days_until",
		"confidence", "match_score", "effort_score", "trust_tier", "source_type",
		"watchlist", "match_reasons", "hard_fail_reasons", "soft_flags",
	})
	for i := range ls {
		l := &ls[i]
		t.AppendRow(table.Row{
			l.Bucket, l.Name, l.URL, l.Amount, l.DeadlineDate, daysLabel(l, now),
			fmt.Sprintf("%.2f", l.Confidence), l.MatchScore, l.EffortScore,
			l.TrustTier, l.SourceType, l.Watchlist,
			strings.Join(l.MatchReasons, "; "),
			strings.Join(l.HardFailReasons, "; "),
			strings.Join(l.SoftFlags, "; "),
		})
	}
	return t
}

func renderTriageMarkdown(ls []models.Lead, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Triage %s\n", now.Format(time.RFC3339))
	for _, bucket := range reportBuckets {
		var in []models.Lead
		for _, l := range ls {
			if l.Bucket == bucket {
				in = append(in, l)
			}
		}
		fmt.Fprintf(&b, "\n## %s (%s): %d leads\n\n", bucketLabel(bucket), bucket, len(in))
		if len(in) == 0 {
			b.WriteString("None.\n")
			continue
		}
		t := table.NewWriter()
		t.AppendHeader(table.Row{"Name", "Amount", "Deadline", "Days", "Conf", "Reasons", "URL"})
		for i := range in {
			l := &in[i]
			t.AppendRow(table.Row{
				clip(l.Name, 40),
				valueOr(l.Amount, "-"),
				valueOr(displayDeadline(l), "-"),
				daysLabel(l, now),
				fmt.Sprintf("%.2f", l.Confidence),
				clip(reasonsOf(l), 90),
				l.URL,
			})
		}
		b.WriteString(t.RenderMarkdown())
		b.WriteString("\n")
	}
	return b.String()
}

// reasonsOf picks the most decision-relevant reason strings for a lead.
func reasonsOf(l *models.Lead) string {
	if len(l.HardFailReasons) > 0 {
		return strings.Join(l.HardFailReasons, "; ")
	}
	all := append(append([]string{}, l.SoftFlags...), l.MatchReasons...)
	return strings.Join(all, "; ")
}

func displayDeadline(l *models.Lead) string {
	if l.DeadlineDate != "" {
		return l.DeadlineDate
	}
	return l.Deadline
}

func daysLabel(l *models.Lead, now time.Time) string {
	deadline, ok := leads.DeadlineOf(l.DeadlineDate, l.Deadline)
	if !ok {
		return "-"
	}
	return strconv.Itoa(leads.DaysUntil(deadline, now))
}

func watchMark(watch bool) string {
	if watch {
		return "yes"
	}
	return "-"
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
