package calendar

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sentimentpipe/internal/types"
)

const fixtureHTML = `
<table>
<tr class="calendar-row">
  <td class="date">Mon Jun 03</td>
  <td class="time">8:30am</td>
  <td class="currency">USD</td>
  <td class="impact"><span class="icon icon--ff-impact-high"></span></td>
  <td class="event">Non-Farm Payrolls</td>
  <td class="actual">272K</td>
  <td class="forecast">180K</td>
  <td class="previous">165K</td>
</tr>
<tr class="calendar-row">
  <td class="date"></td>
  <td class="time">All Day</td>
  <td class="currency">EUR</td>
  <td class="impact"><span class="icon icon--ff-impact-holiday"></span></td>
  <td class="event">Bank Holiday</td>
  <td class="actual"></td>
  <td class="forecast"></td>
  <td class="previous"></td>
</tr>
<tr class="calendar-row">
  <td class="date"></td>
  <td class="time">2:15pm</td>
  <td class="currency">GBP</td>
  <td class="impact"><span class="icon icon--ff-impact-medium"></span></td>
  <td class="event">Retail Sales</td>
  <td class="actual">0.5%</td>
  <td class="forecast">0.3%</td>
  <td class="previous">-0.1%</td>
</tr>
</table>`

func mustDoc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func TestParseWeekDocument(t *testing.T) {
	doc := mustDoc(t, fixtureHTML)
	anchor := time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)

	events, errs := ParseWeekDocument(doc, anchor)
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	nfp := events[0]
	if nfp.Currency != "USD" || nfp.EventName != "Non-Farm Payrolls" {
		t.Fatalf("unexpected first event: %+v", nfp)
	}
	if nfp.Impact != types.ImpactHigh {
		t.Fatalf("expected high impact, got %s", nfp.Impact)
	}
	if nfp.Actual != "272K" || nfp.Forecast != "180K" || nfp.Previous != "165K" {
		t.Fatalf("unexpected actual/forecast/previous: %+v", nfp)
	}

	holiday := events[1]
	if holiday.Currency != "EUR" || holiday.Impact != types.ImpactHoliday {
		t.Fatalf("expected EUR holiday carried-forward date, got %+v", holiday)
	}
	if holiday.Timestamp.Hour() != 4 && holiday.Timestamp.Hour() != 5 {
		// All Day -> 00:00 Eastern, expressed in UTC (EDT = UTC-4 in June)
		t.Fatalf("expected All Day to map to 00:00 Eastern in UTC, got %v", holiday.Timestamp)
	}

	retail := events[2]
	if retail.Impact != types.ImpactMedium {
		t.Fatalf("expected medium impact, got %s", retail.Impact)
	}
}

func TestParseTimeCell(t *testing.T) {
	cases := []struct {
		in         string
		wantHour   int
		wantMinute int
		wantOK     bool
	}{
		{"8:30am", 8, 30, true},
		{"12:00am", 0, 0, true},
		{"12:00pm", 12, 0, true},
		{"2:15pm", 14, 15, true},
		{"All Day", 0, 0, true},
		{"Tentative", 0, 0, true},
		{"", 0, 0, true},
		{"garbage", 0, 0, false},
	}
	for _, c := range cases {
		h, m, ok := parseTimeCell(c.in)
		if ok != c.wantOK {
			t.Errorf("parseTimeCell(%q) ok = %v, want %v", c.in, ok, c.wantOK)
			continue
		}
		if ok && (h != c.wantHour || m != c.wantMinute) {
			t.Errorf("parseTimeCell(%q) = %d:%d, want %d:%d", c.in, h, m, c.wantHour, c.wantMinute)
		}
	}
}

func TestParseImpactMarkerUnknownDefaultsLow(t *testing.T) {
	if parseImpactMarker("icon icon--mystery") != types.ImpactLow {
		t.Fatalf("unknown impact marker should default to low")
	}
}

func TestWeekAnchorIsMonday(t *testing.T) {
	// A Thursday.
	thu := time.Date(2024, time.June, 6, 15, 0, 0, 0, time.UTC)
	anchor := WeekAnchor(thu)
	if anchor.Weekday() != time.Monday {
		t.Fatalf("expected Monday, got %s", anchor.Weekday())
	}
	if anchor.Day() != 3 {
		t.Fatalf("expected June 3, got %v", anchor)
	}
}
