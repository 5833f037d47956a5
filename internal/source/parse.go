package source

import (
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var (
	dayNamePattern  = regexp.MustCompile(`(?i)(MONDAY|TUESDAY|WEDNESDAY|THURSDAY|FRIDAY|SATURDAY|SUNDAY)`)
	weekdayPrefix   = regexp.MustCompile(`(?i)^(MONDAY|TUESDAY|WEDNESDAY|THURSDAY|FRIDAY|SATURDAY|SUNDAY),?\s*`)
	tickerPattern   = regexp.MustCompile(`^([A-Z0-9]+(?:\s+[A-Z]{2})?)`)
	ideaIDPattern   = regexp.MustCompile(`/idea/[^/]+/(\d+)`)
	dateFormats     = []string{"Jan 2, 2006", "Jan 2 2006", "January 2, 2006", "2006-01-02", "01/02/2006", "2 Jan 2006"}
	shortIdeaMarker = "short"
	shortIdeaLabel  = "short idea"
)

// parseIdeasFeed extracts the most recent day's ideas from the feed page.
// The feed groups entries under date headers; everything between the first
// and second header belongs to the latest day.
func parseIdeasFeed(doc *goquery.Document) []IdeaRecord {
	type pendingEntry struct {
		company  string
		ticker   string
		ideaURL  string
		sourceID string
	}

	var (
		ideas      []IdeaRecord
		pending    *pendingEntry
		postedDate time.Time
		dayCount   int
	)

	doc.Find("#ideas_body p").Each(func(_ int, s *goquery.Selection) {
		switch {
		case s.HasClass("header"):
			if !dayNamePattern.MatchString(s.Text()) {
				return
			}
			dayCount++
			if dayCount == 1 {
				postedDate = parseDate(s.Text())
			}
			pending = nil

		case s.HasClass("entry-header"):
			if dayCount != 1 {
				return
			}
			link := s.Find("a").First()
			company := strings.TrimSpace(link.Text())
			ideaURL, _ := link.Attr("href")

			// Header text reads "Company TICKER • price • market cap";
			// the ticker is the first token after the company name.
			remaining := strings.TrimSpace(strings.Replace(s.Text(), company, "", 1))
			ticker := ""
			if match := tickerPattern.FindStringSubmatch(remaining); match != nil {
				ticker = match[1]
			}

			pending = &pendingEntry{
				company:  company,
				ticker:   ticker,
				ideaURL:  ideaURL,
				sourceID: extractIdeaID(ideaURL),
			}

		case s.HasClass("submitted-by"):
			if dayCount != 1 || pending == nil {
				return
			}
			author := strings.TrimSpace(s.Find("span[title]").AttrOr("title", ""))

			// Only the dedicated "Short Idea" label marks a short; matching
			// the whole line would trip on usernames containing "short".
			position := "long"
			s.Find("span").Each(func(_ int, span *goquery.Selection) {
				if _, isAuthor := span.Attr("title"); isAuthor {
					return
				}
				if strings.Contains(strings.ToLower(span.Text()), shortIdeaLabel) {
					position = "short"
				}
			})

			if author != "" && pending.ticker != "" && !postedDate.IsZero() {
				ideas = append(ideas, IdeaRecord{
					Ticker:       strings.ToUpper(pending.ticker),
					Author:       author,
					CompanyName:  pending.company,
					PostedDate:   postedDate,
					PositionType: position,
					IdeaURL:      pending.ideaURL,
					SourceIdeaID: pending.sourceID,
				})
			}
			pending = nil
		}
	})

	return ideas
}

// parseMemberIdeas extracts every idea row from a member profile's ideas
// table. The profile variant has no company column.
func parseMemberIdeas(doc *goquery.Document, username string) []IdeaRecord {
	var ideas []IdeaRecord

	doc.Find("table.table.itable tr").Each(func(i int, row *goquery.Selection) {
		if i == 0 {
			// header row
			return
		}

		cols := row.Find("td")
		if cols.Length() < 2 {
			return
		}

		titleCell := cols.Eq(0)
		link := titleCell.Find("a").First()
		ideaURL, _ := link.Attr("href")

		ticker := extractRowTicker(titleCell)
		postedDate := parseDate(strings.TrimSpace(cols.Eq(1).Text()))

		if ticker == "" || postedDate.IsZero() {
			return
		}

		position := "long"
		if strings.Contains(strings.ToLower(row.Text()), shortIdeaMarker) {
			position = "short"
		}

		ideas = append(ideas, IdeaRecord{
			Ticker:       strings.ToUpper(ticker),
			Author:       username,
			PostedDate:   postedDate,
			PositionType: position,
			IdeaURL:      ideaURL,
			SourceIdeaID: extractIdeaID(ideaURL),
		})
	})

	return ideas
}

// extractRowTicker takes the last word of the title cell, skipping the
// single-letter short/watchlist tags the forum appends.
func extractRowTicker(cell *goquery.Selection) string {
	text := cell.Text()
	if title := cell.Find(".vich1"); title.Length() > 0 {
		text = title.Text()
	}

	words := strings.Fields(text)
	for i := len(words) - 1; i >= 0; i-- {
		word := words[i]
		if word == "S" || word == "W" {
			continue
		}
		return word
	}
	return ""
}

func extractIdeaID(ideaURL string) string {
	if match := ideaIDPattern.FindStringSubmatch(ideaURL); match != nil {
		return match[1]
	}
	return ""
}

// parseDate tries the date formats the forum renders, ignoring any leading
// weekday name.
func parseDate(raw string) time.Time {
	cleaned := strings.TrimSpace(weekdayPrefix.ReplaceAllString(strings.TrimSpace(raw), ""))
	if cleaned == "" {
		return time.Time{}
	}

	for _, format := range dateFormats {
		if parsed, err := time.Parse(format, cleaned); err == nil {
			return parsed
		}
	}
	return time.Time{}
}
