package report

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/david/scholarship-scout/internal/models"
)

const topLeadCount = 5

// Channel reports whether a notification target has credentials in the
// environment. Delivery itself happens out of process; the summary only
// records what a delivery hook would find.
type Channel struct {
	Name       string
	Configured bool
}

func Channels() []Channel {
	return []Channel{
		{Name: "telegram", Configured: os.Getenv("TELEGRAM_BOT_TOKEN") != "" && os.Getenv("TELEGRAM_CHAT_ID") != ""},
		{Name: "slack", Configured: os.Getenv("SLACK_WEBHOOK_URL") != ""},
		{Name: "discord", Configured: os.Getenv("DISCORD_WEBHOOK_URL") != ""},
	}
}

func renderSummary(ls []models.Lead, health []models.SourceHealth, now time.Time) string {
	counts := map[string]int{}
	watch := 0
	for _, l := range ls {
		counts[l.Bucket]++
		if l.Watchlist {
			watch++
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Scholarship scout run %s\n\n", now.Format(time.RFC3339))
	fmt.Fprintf(&b, "Leads: %d total (A=%d B=%d C=%d X=%d, watchlist=%d)\n",
		len(ls),
		counts[models.BucketApply], counts[models.BucketPrepare],
		counts[models.BucketRejected], counts[models.BucketMissed], watch)

	b.WriteString("\nTop leads:\n")
	top := 0
	for i := range ls {
		l := &ls[i]
		if l.Bucket != models.BucketApply && l.Bucket != models.BucketPrepare {
			continue
		}
		top++
		fmt.Fprintf(&b, "  %d. [%s] %s, %s, due %s\n",
			top, l.Bucket, l.Name,
			valueOr(l.Amount, "amount unknown"),
			valueOr(displayDeadline(l), "date unknown"))
		if top == topLeadCount {
			break
		}
	}
	if top == 0 {
		b.WriteString("  none\n")
	}

	okCount, failing, disabled := 0, 0, 0
	for _, h := range health {
		switch {
		case h.AutoDisabled:
			disabled++
		case h.ConsecutiveFailures > 0:
			failing++
		default:
			okCount++
		}
	}
	fmt.Fprintf(&b, "\nSources: %d tracked, %d ok, %d failing, %d auto-disabled\n",
		len(health), okCount, failing, disabled)

	b.WriteString("\nNotification channels:\n")
	for _, ch := range Channels() {
		state := "not configured"
		if ch.Configured {
			state = "configured"
		}
		fmt.Fprintf(&b, "  %s: %s\n", ch.Name, state)
	}
	return b.String()
}
