package calendar

import (
	"bytes"
	"errors"
	"iter"
	"strings"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/teambition/rrule-go"

	"github.com/room-calendar-sync/backend/internal/storage/models"
)

const (
	defaultMaxOccurrences = 500

	// maxRuleSteps bounds how far a rule is walked from DTSTART looking for
	// occurrences inside the window.
	maxRuleSteps = 100000
)

// Skip reasons reported for incomplete entries.
const (
	SkipMissingStart   = "missing start"
	SkipMissingEnd     = "missing end"
	SkipMissingSummary = "missing summary"
)

// Entry is one item produced by the parser: either a complete event, or an
// incomplete one carrying the reason it must be skipped.
type Entry struct {
	Event      models.FeedEvent
	SkipReason string
}

// Skipped reports whether the entry is incomplete.
func (e Entry) Skipped() bool { return e.SkipReason != "" }

// Parser turns calendar feed text into entries. Recurring events are
// expanded to the occurrences that have not ended yet and start within
// horizon of the current time.
type Parser struct {
	clock          Clock
	horizon        time.Duration
	maxOccurrences int
}

// NewParser creates a parser.
func NewParser(clock Clock, horizon time.Duration) *Parser {
	if clock == nil {
		clock = SystemClock
	}
	if horizon <= 0 {
		horizon = 365 * 24 * time.Hour
	}
	return &Parser{clock: clock, horizon: horizon, maxOccurrences: defaultMaxOccurrences}
}

// Parse validates body and returns a sequence over its entries. The sequence
// is evaluated lazily and can be ranged over more than once.
func (p *Parser) Parse(body []byte) (iter.Seq[Entry], error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if len(trimmed) == 0 {
		return nil, &ParseError{Err: errors.New("empty calendar")}
	}
	if !bytes.HasPrefix(bytes.ToUpper(firstLine(trimmed)), []byte("BEGIN:VCALENDAR")) {
		return nil, &ParseError{Err: errors.New("missing BEGIN:VCALENDAR")}
	}

	cal, err := ics.ParseCalendar(bytes.NewReader(trimmed))
	if err != nil {
		return nil, &ParseError{Err: err}
	}

	now := p.clock.Now()
	until := now.Add(p.horizon)

	return func(yield func(Entry) bool) {
		events := cal.Events()
		overrides := recurrenceOverrides(events)

		for _, ve := range events {
			for entry := range p.entries(ve, overrides, now, until) {
				if !yield(entry) {
					return
				}
			}
		}
	}, nil
}

// entries yields the entry of ve. For a recurring event it yields the
// occurrences that end after now and start no later than until.
func (p *Parser) entries(ve *ics.VEvent, overrides map[string]map[int64]bool, now, until time.Time) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		ev := models.FeedEvent{
			UID:     propValue(ve, ics.ComponentPropertyUniqueId),
			Summary: propValue(ve, ics.ComponentPropertySummary),
		}
		ev.Start = eventTime(ve, ics.ComponentPropertyDtStart)
		ev.End = eventTime(ve, ics.ComponentPropertyDtEnd)

		switch {
		case ev.Start.IsZero():
			yield(Entry{Event: ev, SkipReason: SkipMissingStart})
			return
		case ev.End.IsZero():
			yield(Entry{Event: ev, SkipReason: SkipMissingEnd})
			return
		case strings.TrimSpace(ev.Summary) == "":
			yield(Entry{Event: ev, SkipReason: SkipMissingSummary})
			return
		}

		raw := propValue(ve, ics.ComponentPropertyRrule)
		if raw == "" || ve.GetProperty("RECURRENCE-ID") != nil {
			yield(Entry{Event: ev})
			return
		}

		opt, err := rrule.StrToROption(raw)
		if err != nil {
			yield(Entry{Event: ev})
			return
		}
		opt.Dtstart = ev.Start
		rule, err := rrule.NewRRule(*opt)
		if err != nil {
			yield(Entry{Event: ev})
			return
		}

		excluded := exDates(ve, ev.Start.Location())
		for unix := range overrides[ev.UID] {
			excluded[unix] = true
		}

		duration := ev.End.Sub(ev.Start)
		next := rule.Iterator()
		yielded := 0
		for step := 0; step < maxRuleSteps && yielded < p.maxOccurrences; step++ {
			start, ok := next()
			if !ok || start.After(until) {
				return
			}
			if excluded[start.Unix()] || !start.Add(duration).After(now) {
				continue
			}
			yielded++
			occ := ev
			occ.Start = start
			occ.End = start.Add(duration)
			if !yield(Entry{Event: occ}) {
				return
			}
		}
	}
}

// recurrenceOverrides maps UID to the RECURRENCE-ID instants that have their
// own VEVENT and must not be generated from the rule.
func recurrenceOverrides(events []*ics.VEvent) map[string]map[int64]bool {
	out := make(map[string]map[int64]bool)
	for _, ve := range events {
		prop := ve.GetProperty("RECURRENCE-ID")
		if prop == nil {
			continue
		}
		t := parseDateTime(prop.Value, paramLocation(prop, time.UTC))
		if t.IsZero() {
			continue
		}
		uid := propValue(ve, ics.ComponentPropertyUniqueId)
		if out[uid] == nil {
			out[uid] = make(map[int64]bool)
		}
		out[uid][t.Unix()] = true
	}
	return out
}

func exDates(ve *ics.VEvent, loc *time.Location) map[int64]bool {
	out := make(map[int64]bool)
	for _, prop := range ve.GetProperties(ics.ComponentPropertyExdate) {
		propLoc := paramLocation(prop, loc)
		for _, part := range strings.Split(prop.Value, ",") {
			if t := parseDateTime(strings.TrimSpace(part), propLoc); !t.IsZero() {
				out[t.Unix()] = true
			}
		}
	}
	return out
}

func eventTime(ve *ics.VEvent, prop ics.ComponentProperty) time.Time {
	var (
		t   time.Time
		err error
	)
	switch prop {
	case ics.ComponentPropertyDtStart:
		t, err = ve.GetStartAt()
		if err != nil {
			t, err = ve.GetAllDayStartAt()
		}
	case ics.ComponentPropertyDtEnd:
		t, err = ve.GetEndAt()
		if err != nil {
			t, err = ve.GetAllDayEndAt()
		}
	}
	if err == nil && !t.IsZero() {
		return t
	}

	p := ve.GetProperty(prop)
	if p == nil {
		return time.Time{}
	}
	return parseDateTime(p.Value, paramLocation(p, time.UTC))
}

func propValue(ve *ics.VEvent, prop ics.ComponentProperty) string {
	if p := ve.GetProperty(prop); p != nil {
		return p.Value
	}
	return ""
}

func paramLocation(p *ics.IANAProperty, fallback *time.Location) *time.Location {
	if tz, ok := p.ICalParameters["TZID"]; ok && len(tz) > 0 {
		if loc, err := time.LoadLocation(tz[0]); err == nil {
			return loc
		}
	}
	return fallback
}

// parseDateTime parses an iCal date/time value. Values without a zone are
// read in loc.
func parseDateTime(value string, loc *time.Location) time.Time {
	value = strings.TrimSpace(value)
	if strings.HasSuffix(value, "Z") {
		loc = time.UTC
	}

	formats := []string{
		"20060102T150405Z",     // UTC datetime
		"20060102T150405",      // Local datetime
		"20060102",             // Date only
		"2006-01-02T15:04:05Z", // ISO 8601 with dashes
		"2006-01-02",           // ISO 8601 date
	}

	for _, format := range formats {
		if t, err := time.ParseInLocation(format, value, loc); err == nil {
			return t
		}
	}

	return time.Time{}
}

func firstLine(b []byte) []byte {
	if i := bytes.IndexAny(b, "\r\n"); i >= 0 {
		return b[:i]
	}
	return b
}
