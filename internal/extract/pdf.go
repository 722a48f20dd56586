package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"

	rpdf "rsc.io/pdf"

	"github.com/david/scholarship-scout/internal/leads"
	"github.com/david/scholarship-scout/internal/models"
)

// Label hints that mark a date mention as a deadline rather than an event.
var pdfDeadlineHints = []string{
	"deadline", "closing date", "closes", "applications close", "apply by", "due date", "submission",
}

var pdfDateRegexes = []*regexp.Regexp{
	regexp.MustCompile(`\b20\d{2}-\d{2}-\d{2}\b`),
	regexp.MustCompile(`\b\d{1,2}/\d{1,2}/20\d{2}\b`),
	regexp.MustCompile(`(?i)\b\d{1,2}(?:st|nd|rd|th)?\s+(?:January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+20\d{2}\b`),
	regexp.MustCompile(`(?i)\b(?:January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+\d{1,2},?\s+20\d{2}\b`),
}

// ExtractPDFText pulls the text layer out of a PDF. The parser panics on
// some malformed files, so the panic is converted into an error.
func ExtractPDFText(content []byte) (text string, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("pdf parser panic: %v", recovered)
			text = ""
		}
	}()

	reader, err := rpdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		for _, fragment := range page.Content().Text {
			builder.WriteString(fragment.S)
			builder.WriteString(" ")
		}
		builder.WriteString("\n")
	}

	return builder.String(), nil
}

// PDFDeadline is one dated mention found in a document's text.
type PDFDeadline struct {
	DateISO string
	Snippet string
	Label   string
}

// FindPDFDeadlines scans extracted PDF text for dated mentions, earliest
// first, each with a snippet of surrounding context.
func FindPDFDeadlines(text string) []PDFDeadline {
	matches := make(map[string]PDFDeadline)

	for _, expr := range pdfDateRegexes {
		for _, loc := range expr.FindAllStringIndex(text, -1) {
			token := strings.TrimSpace(text[loc[0]:loc[1]])
			parsed, ok := leads.ParseDeadline(token)
			if !ok {
				continue
			}
			iso := parsed.Format("2006-01-02")
			snippet := snippetAround(text, loc[0], loc[1], evidenceRadius)

			label := "date"
			snippetLower := strings.ToLower(snippet)
			for _, hint := range pdfDeadlineHints {
				if strings.Contains(snippetLower, hint) {
					label = "deadline"
					break
				}
			}
			// A labelled mention beats an unlabelled one for the same date.
			if existing, seen := matches[iso]; seen && existing.Label == "deadline" {
				continue
			}
			matches[iso] = PDFDeadline{DateISO: iso, Snippet: snippet, Label: label}
		}
	}

	ordered := make([]PDFDeadline, 0, len(matches))
	for _, m := range matches {
		ordered = append(ordered, m)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].DateISO < ordered[j].DateISO })
	return ordered
}

// EnrichFromPDF fills a lead's deadline from an attached document when the
// page itself had none. Labelled deadline mentions win; otherwise the
// earliest date in the document is taken as an estimate.
func EnrichFromPDF(l *models.Lead, content []byte, pdfURL string) (bool, error) {
	if !models.NeedsValue(l.Deadline) && l.DeadlineDate != "" {
		return false, nil
	}

	text, err := ExtractPDFText(content)
	if err != nil {
		return false, err
	}
	found := FindPDFDeadlines(text)
	if len(found) == 0 {
		return false, nil
	}

	pick := found[0]
	for _, m := range found {
		if m.Label == "deadline" {
			pick = m
			break
		}
	}

	l.Deadline = pick.DateISO
	l.DeadlineDate = pick.DateISO
	if pick.Label == "deadline" {
		l.DeadlineConfidence = models.DeadlineConfirmed
	} else {
		l.DeadlineConfidence = models.DeadlineEstimated
	}
	l.AddEvidence(models.ExtractionEvidence{
		Attribute: "deadline",
		Snippet:   pick.Snippet,
		URL:       pdfURL,
		Method:    models.MethodPDF,
	})
	return true, nil
}
