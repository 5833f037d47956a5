package source

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const feedFixture = `
<html><body><div id="ideas_body">
  <p class="header">WEDNESDAY, Nov 12, 2025</p>
  <p class="entry-header"><a href="https://forum.example/idea/ACME/9001">Acme Corp</a> ACME &bull; 54.00 &bull; $910mn</p>
  <p class="submitted-by">BY <span title="deepvalue">deepvalue</span></p>
  <p class="entry-header"><a href="https://forum.example/idea/BOLT/9002">Bolt Industries</a> BOLT &bull; 12.00 &bull; $120mn</p>
  <p class="submitted-by">BY <span title="contrarian">contrarian</span> &bull; <span>Short Idea</span></p>
  <p class="header">TUESDAY, Nov 11, 2025</p>
  <p class="entry-header"><a href="https://forum.example/idea/OLDCO/8000">Old Co</a> OLDCO &bull; 1.00 &bull; $10mn</p>
  <p class="submitted-by">BY <span title="someone">someone</span></p>
</div></body></html>`

const memberFixture = `
<html><body>
<table class="table itable box-shadow">
  <tr><th>Idea</th><th>Date</th></tr>
  <tr><td><div class="vich1"><a href="/idea/ACME/9001">Acme Corp</a> ACME</div></td><td>Dec 28, 2023</td></tr>
  <tr><td><div class="vich1"><a href="/idea/ZN/777">Zinc Holdings</a> ZN S</div> Short</td><td>Mar 5, 2021</td></tr>
  <tr><td><div class="vich1"><a href="/idea/BAD/1">Broken Row</a> BAD</div></td><td>not a date</td></tr>
</table>
</body></html>`

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func TestParseIdeasFeedLatestDayOnly(t *testing.T) {
	ideas := parseIdeasFeed(mustDoc(t, feedFixture))

	if len(ideas) != 2 {
		t.Fatalf("expected 2 ideas from the latest day, got %d", len(ideas))
	}

	first := ideas[0]
	if first.Ticker != "ACME" || first.Author != "deepvalue" {
		t.Fatalf("unexpected first idea: %+v", first)
	}
	if first.CompanyName != "Acme Corp" {
		t.Fatalf("company name not parsed: %q", first.CompanyName)
	}
	if first.PositionType != "long" {
		t.Fatalf("default position should be long, got %q", first.PositionType)
	}
	if first.SourceIdeaID != "9001" {
		t.Fatalf("source idea id not extracted: %q", first.SourceIdeaID)
	}

	wantDate := time.Date(2025, time.November, 12, 0, 0, 0, 0, time.UTC)
	if !first.PostedDate.Equal(wantDate) {
		t.Fatalf("posted date = %v, want %v", first.PostedDate, wantDate)
	}

	second := ideas[1]
	if second.PositionType != "short" {
		t.Fatalf("short idea marker not detected: %+v", second)
	}
	if second.Author != "contrarian" {
		t.Fatalf("unexpected second author: %q", second.Author)
	}
}

func TestParseIdeasFeedShortMarkerIgnoresUsername(t *testing.T) {
	const fixture = `
<html><body><div id="ideas_body">
  <p class="header">WEDNESDAY, Nov 12, 2025</p>
  <p class="entry-header"><a href="https://forum.example/idea/ACME/9001">Acme Corp</a> ACME &bull; 54.00 &bull; $910mn</p>
  <p class="submitted-by">BY <span title="shortseller">shortseller</span></p>
  <p class="entry-header"><a href="https://forum.example/idea/BOLT/9002">Bolt Industries</a> BOLT &bull; 12.00 &bull; $120mn</p>
  <p class="submitted-by">BY <span title="shortseller">shortseller</span> &bull; <span>Short Idea</span></p>
</div></body></html>`

	ideas := parseIdeasFeed(mustDoc(t, fixture))
	if len(ideas) != 2 {
		t.Fatalf("expected 2 ideas, got %d", len(ideas))
	}
	if ideas[0].PositionType != "long" {
		t.Fatalf("username alone must not mark a short, got %q", ideas[0].PositionType)
	}
	if ideas[1].PositionType != "short" {
		t.Fatalf("labeled entry should be short, got %q", ideas[1].PositionType)
	}
}

func TestParseMemberIdeas(t *testing.T) {
	ideas := parseMemberIdeas(mustDoc(t, memberFixture), "deepvalue")

	if len(ideas) != 2 {
		t.Fatalf("expected 2 parsable rows, got %d", len(ideas))
	}

	if ideas[0].Ticker != "ACME" || ideas[0].Author != "deepvalue" {
		t.Fatalf("unexpected first row: %+v", ideas[0])
	}
	if ideas[0].SourceIdeaID != "9001" {
		t.Fatalf("source idea id not extracted: %q", ideas[0].SourceIdeaID)
	}

	// The single-letter short tag after the ticker must be skipped.
	if ideas[1].Ticker != "ZN" {
		t.Fatalf("ticker should skip the S tag, got %q", ideas[1].Ticker)
	}
	if ideas[1].PositionType != "short" {
		t.Fatalf("short row not detected: %+v", ideas[1])
	}
}

func TestParseDateFormats(t *testing.T) {
	cases := map[string]time.Time{
		"WEDNESDAY, Nov 12, 2025": time.Date(2025, time.November, 12, 0, 0, 0, 0, time.UTC),
		"Dec 28, 2023":            time.Date(2023, time.December, 28, 0, 0, 0, 0, time.UTC),
		"2024-02-29":              time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
		"03/15/2022":              time.Date(2022, time.March, 15, 0, 0, 0, 0, time.UTC),
		"5 Mar 2021":              time.Date(2021, time.March, 5, 0, 0, 0, 0, time.UTC),
	}

	for raw, want := range cases {
		if got := parseDate(raw); !got.Equal(want) {
			t.Fatalf("parseDate(%q) = %v, want %v", raw, got, want)
		}
	}

	if got := parseDate("gibberish"); !got.IsZero() {
		t.Fatalf("unparseable date should be zero, got %v", got)
	}
}
