package scrape

import (
	"context"
	"time"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/models"
)

// BrowserStrategy covers sources that are known to render nothing without
// JavaScript. It does not fetch anything itself; it just hands the URL to
// the browser queue for the external renderer.
type BrowserStrategy struct{}

func (s *BrowserStrategy) Scrape(ctx context.Context, src config.Source, deps *Deps) ScrapeResult {
	entry := models.BrowserQueueEntry{
		URL:             src.URL,
		SourceID:        src.Name,
		SourceName:      src.Name,
		DiscoveredAt:    time.Now().UTC(),
		DetectionReason: "configured_browser_source",
		Priority:        src.Priority,
	}
	return ScrapeResult{
		Status:       models.StatusOK,
		QueueEntries: []models.BrowserQueueEntry{entry},
	}
}
