package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/david/scholarship-scout/internal/models"
)

// renderDeadlinks separates pages that are really gone from ones that only
// failed this run. A 404 or 410 means the URL should be retired; anything
// else above 400 is worth retrying before giving up.
func renderDeadlinks(ls []models.Lead, health []models.SourceHealth, now time.Time) string {
	var dead, transient []models.Lead
	for _, l := range ls {
		switch {
		case l.HTTPStatus == 404 || l.HTTPStatus == 410:
			dead = append(dead, l)
		case l.HTTPStatus >= 400:
			transient = append(transient, l)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Dead links %s\n", now.Format(time.RFC3339))

	b.WriteString("\n## True dead (404/410)\n\n")
	writeLinkTable(&b, dead)

	b.WriteString("\n## Transient failures\n\n")
	writeLinkTable(&b, transient)

	var failing []models.SourceHealth
	for _, h := range health {
		if h.ConsecutiveFailures > 0 || h.AutoDisabled {
			failing = append(failing, h)
		}
	}
	b.WriteString("\n## Failing sources\n\n")
	if len(failing) == 0 {
		b.WriteString("None.\n")
		return b.String()
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Source", "Status", "Failures", "Last Error", "URL"})
	for _, h := range failing {
		status := h.LastStatus
		if h.AutoDisabled {
			status = "auto-disabled"
		}
		t.AppendRow(table.Row{h.Name, status, h.ConsecutiveFailures, clip(h.LastError, 60), h.URL})
	}
	b.WriteString(t.RenderMarkdown())
	b.WriteString("\n")
	return b.String()
}

func writeLinkTable(b *strings.Builder, ls []models.Lead) {
	if len(ls) == 0 {
		b.WriteString("None.\n")
		return
	}
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Name", "HTTP", "URL"})
	for i := range ls {
		t.AppendRow(table.Row{clip(ls[i].Name, 48), ls[i].HTTPStatus, ls[i].URL})
	}
	b.WriteString(t.RenderMarkdown())
	b.WriteString("\n")
}
