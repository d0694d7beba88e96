package calendar

import (
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sentimentpipe/internal/types"
)

// rowSelectors are the CSS selectors for one calendar-table row's cells.
// Exposed as a var (not a const) so tests/alternate page layouts can
// override it without forking the parser.
var rowSelectors = struct {
	Row      string
	Date     string
	Time     string
	Currency string
	Impact   string
	Event    string
	Actual   string
	Forecast string
	Previous string
}{
	Row:      "tr.calendar-row",
	Date:     "td.date",
	Time:     "td.time",
	Currency: "td.currency",
	Impact:   "td.impact span",
	Event:    "td.event",
	Actual:   "td.actual",
	Forecast: "td.forecast",
	Previous: "td.previous",
}

// ParseError wraps a per-row parse failure. Rows that fail to parse are
// logged and skipped; the call still returns the remaining events — this
// type exists so the scraper can log structured detail about what was
// skipped.
type ParseError struct {
	RowIndex int
	Reason   string
}

func (e *ParseError) Error() string {
	return "calendar row " + strconv.Itoa(e.RowIndex) + ": " + e.Reason
}

// ParseWeekDocument walks the rendered calendar table and returns one event
// per row, in document order. weekAnchor is the Monday the page was
// requested for; it supplies the year, which date cells omit. A blank date
// cell reuses the date of the preceding row.
func ParseWeekDocument(doc *goquery.Document, weekAnchor time.Time) ([]types.EconomicEvent, []error) {
	var events []types.EconomicEvent
	var parseErrs []error

	lastDateText := ""
	rowIndex := -1

	doc.Find(rowSelectors.Row).Each(func(_ int, row *goquery.Selection) {
		rowIndex++

		dateText := strings.TrimSpace(row.Find(rowSelectors.Date).Text())
		if dateText != "" {
			lastDateText = dateText
		}
		if lastDateText == "" {
			parseErrs = append(parseErrs, &ParseError{RowIndex: rowIndex, Reason: "no date carried forward"})
			return
		}

		day, month, ok := parseDateCell(lastDateText, weekAnchor)
		if !ok {
			parseErrs = append(parseErrs, &ParseError{RowIndex: rowIndex, Reason: "unparseable date cell: " + lastDateText})
			return
		}
		year := weekAnchor.Year()
		if month < weekAnchor.Month() {
			// A week anchored in late December carries early-January rows.
			year++
		}

		currency := strings.TrimSpace(row.Find(rowSelectors.Currency).Text())
		eventName := strings.TrimSpace(row.Find(rowSelectors.Event).Text())
		if currency == "" || eventName == "" {
			parseErrs = append(parseErrs, &ParseError{RowIndex: rowIndex, Reason: "missing currency or event name"})
			return
		}
		if len(eventName) > 255 {
			eventName = eventName[:255]
		}

		timeText := strings.TrimSpace(row.Find(rowSelectors.Time).Text())
		hour, minute, ok := parseTimeCell(timeText)
		if !ok {
			parseErrs = append(parseErrs, &ParseError{RowIndex: rowIndex, Reason: "unparseable time cell: " + timeText})
			return
		}

		impactMarker := strings.TrimSpace(row.Find(rowSelectors.Impact).AttrOr("class", ""))
		impact := parseImpactMarker(impactMarker)

		events = append(events, types.EconomicEvent{
			Timestamp: EasternToUTC(year, month, day, hour, minute),
			Currency:  currency,
			EventName: eventName,
			Impact:    impact,
			Actual:    strings.TrimSpace(row.Find(rowSelectors.Actual).Text()),
			Forecast:  strings.TrimSpace(row.Find(rowSelectors.Forecast).Text()),
			Previous:  strings.TrimSpace(row.Find(rowSelectors.Previous).Text()),
		})
	})

	return events, parseErrs
}

// parseDateCell parses a cell like "Mon Jun 03" into (day, month). The cell
// carries no year: ParseWeekDocument takes it from the week anchor, moving
// to the following year for rows whose month precedes the anchor's.
func parseDateCell(text string, weekAnchor time.Time) (int, time.Month, bool) {
	fields := strings.Fields(text)
	if len(fields) < 3 {
		return 0, 0, false
	}
	monthText := fields[len(fields)-2]
	dayText := strings.TrimSuffix(fields[len(fields)-1], ",")

	month, ok := parseMonthAbbrev(monthText)
	if !ok {
		return 0, 0, false
	}
	day, err := strconv.Atoi(dayText)
	if err != nil || day < 1 || day > 31 {
		return 0, 0, false
	}
	return day, month, true
}

func parseMonthAbbrev(s string) (time.Month, bool) {
	months := map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March,
		"apr": time.April, "may": time.May, "jun": time.June,
		"jul": time.July, "aug": time.August, "sep": time.September,
		"oct": time.October, "nov": time.November, "dec": time.December,
	}
	m, ok := months[strings.ToLower(s)[:min3(len(s))]]
	return m, ok
}

func min3(n int) int {
	if n < 3 {
		return n
	}
	return 3
}

// parseTimeCell handles clock times ("8:30am"/"2:00pm"), the "All Day"
// sentinel (-> 00:00), and the "Tentative" sentinel (-> 00:00, preserved
// with no distinguishing flag per spec's open question).
func parseTimeCell(text string) (hour, minute int, ok bool) {
	normalized := strings.ToLower(strings.TrimSpace(text))
	switch normalized {
	case "", "all day":
		return 0, 0, true
	case "tentative":
		return 0, 0, true
	}

	meridiem := ""
	if strings.HasSuffix(normalized, "am") || strings.HasSuffix(normalized, "pm") {
		meridiem = normalized[len(normalized)-2:]
		normalized = normalized[:len(normalized)-2]
	} else {
		return 0, 0, false
	}

	parts := strings.SplitN(normalized, ":", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 1 || h > 12 || m < 0 || m > 59 {
		return 0, 0, false
	}

	switch {
	case meridiem == "am" && h == 12:
		h = 0
	case meridiem == "pm" && h != 12:
		h += 12
	}
	return h, m, true
}

// parseImpactMarker maps a CSS class blob (e.g. "icon icon--ff-impact-high")
// to the canonical Impact set. Unknown markers default to low.
func parseImpactMarker(classBlob string) types.Impact {
	lower := strings.ToLower(classBlob)
	switch {
	case strings.Contains(lower, "holiday"):
		return types.ImpactHoliday
	case strings.Contains(lower, "high"):
		return types.ImpactHigh
	case strings.Contains(lower, "medium") || strings.Contains(lower, "moderate"):
		return types.ImpactMedium
	case strings.Contains(lower, "low"):
		return types.ImpactLow
	default:
		return types.ImpactLow
	}
}
