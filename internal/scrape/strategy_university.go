package scrape

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/david/scholarship-scout/internal/config"
	"github.com/david/scholarship-scout/internal/discover"
	"github.com/david/scholarship-scout/internal/fetch"
	"github.com/david/scholarship-scout/internal/models"
)

const maxUniversityPages = 40

// UniversityStrategy crawls an official university site breadth-first,
// following only links that look like funding pages, and extracts a lead
// from every page it lands on. Directory pages contribute links, detail
// pages contribute leads.
type UniversityStrategy struct{}

func (s *UniversityStrategy) Scrape(ctx context.Context, src config.Source, deps *Deps) ScrapeResult {
	parsed, err := url.Parse(src.URL)
	if err != nil || parsed.Host == "" {
		return ScrapeResult{Status: models.StatusParseError, ErrorMessage: fmt.Sprintf("invalid source url %q", src.URL)}
	}

	maxDepth := src.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 2
	}
	delay := deps.CrawlDelay
	if delay <= 0 {
		delay = time.Second
	}

	c := colly.NewCollector(
		colly.UserAgent(deps.Client.UserAgent),
		colly.AllowedDomains(parsed.Hostname()),
		colly.MaxDepth(maxDepth+1),
		colly.MaxBodySize(10*1024*1024),
		colly.DetectCharset(),
	)
	c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 2,
		Delay:       delay,
		RandomDelay: delay / 2,
	})
	c.SetRequestTimeout(30 * time.Second)

	var res ScrapeResult
	var requested int
	var errCode int

	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil || requested >= maxUniversityPages {
			r.Abort()
			return
		}
		requested++
	})

	c.OnHTML("a[href]", func(e *colly.HTMLElement) {
		abs := e.Request.AbsoluteURL(e.Attr("href"))
		if abs == "" {
			return
		}
		if !discover.FundingPath(abs) && !deps.fundingText(e.Text) {
			return
		}
		_ = e.Request.Visit(abs)
	})

	c.OnResponse(func(r *colly.Response) {
		pageURL := r.Request.URL.String()
		if res.HTTPCode == 0 {
			res.HTTPCode = r.StatusCode
		}
		lead, entry := pageLead(string(r.Body), pageURL, src, r.StatusCode)
		if lead != nil {
			res.Leads = append(res.Leads, *lead)
		}
		if entry != nil {
			res.QueueEntries = append(res.QueueEntries, *entry)
		}
	})

	c.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 && errCode == 0 {
			errCode = r.StatusCode
		}
		if res.ErrorMessage == "" && err != nil {
			res.ErrorMessage = err.Error()
		}
	})

	visitErr := c.Visit(src.URL)
	c.Wait()

	switch {
	case errors.Is(visitErr, colly.ErrRobotsTxtBlocked):
		res.Status = models.StatusRobotsDisallow
		res.ErrorMessage = visitErr.Error()
	case res.HTTPCode != 0:
		res.Status = models.StatusOK
	case errCode != 0:
		res.Status = fetch.StateStatusForCode(errCode)
		res.HTTPCode = errCode
	case visitErr != nil:
		res.Status = models.StatusUnknown
		res.ErrorMessage = visitErr.Error()
	default:
		res.Status = models.StatusUnknown
	}

	log.Printf("[scrape] %s: crawled %d pages, %d leads, %d queued for browser",
		src.Name, requested, len(res.Leads), len(res.QueueEntries))
	return res
}
