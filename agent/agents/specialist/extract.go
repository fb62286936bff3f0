package specialist

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/schedule"
)

// Details are the appointment facts found in a patient's messages.
type Details struct {
	PatientID      string `json:"patient_id,omitempty"`
	Practitioner   string `json:"practitioner,omitempty"`
	Specialization string `json:"specialization,omitempty"`
	AppointmentID  string `json:"appointment_id,omitempty"`

	// Date is midnight in clinic time; zero when absent.
	Date     time.Time     `json:"date,omitempty"`
	Clock    time.Duration `json:"clock,omitempty"`
	HasClock bool          `json:"has_clock,omitempty"`
}

func (d Details) HasDate() bool {
	return !d.Date.IsZero()
}

// Slot combines Date and Clock.
func (d Details) Slot() (time.Time, bool) {
	if !d.HasDate() || !d.HasClock {
		return time.Time{}, false
	}
	h := int(d.Clock / time.Hour)
	m := int((d.Clock % time.Hour) / time.Minute)
	return time.Date(d.Date.Year(), d.Date.Month(), d.Date.Day(), h, m, 0, 0, d.Date.Location()), true
}

// fill copies the fields d lacks from older.
func (d *Details) fill(older Details) {
	if d.PatientID == "" {
		d.PatientID = older.PatientID
	}
	if d.Practitioner == "" {
		d.Practitioner = older.Practitioner
	}
	if d.Specialization == "" {
		d.Specialization = older.Specialization
	}
	if d.AppointmentID == "" {
		d.AppointmentID = older.AppointmentID
	}
	if !d.HasDate() {
		d.Date = older.Date
	}
	if !d.HasClock && older.HasClock {
		d.Clock, d.HasClock = older.Clock, true
	}
}

// Extractor pulls Details out of one message. now anchors relative dates.
type Extractor interface {
	Extract(ctx context.Context, text string, now time.Time) (Details, error)
}

var (
	uuidPattern      = regexp.MustCompile(`(?i)#?\b([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})\b`)
	hashIDPattern    = regexp.MustCompile(`#([A-Za-z0-9][A-Za-z0-9-]{3,})`)
	patientIDPattern = regexp.MustCompile(`\b(\d{7,8})\b`)

	dmyPattern      = regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2})[-/.](\d{4})\b`)
	isoDatePattern  = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dayMonthPattern = regexp.MustCompile(`\b(\d{1,2})(?:st|nd|rd|th)?\s+(?:of\s+)?(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\b`)
	monthDayPattern = regexp.MustCompile(`\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\s+(\d{1,2})(?:st|nd|rd|th)?\b`)
	weekdayPattern  = regexp.MustCompile(`\b(next\s+|this\s+|on\s+)?(monday|tuesday|wednesday|thursday|friday|saturday|sunday)\b`)

	twelveHourPattern = regexp.MustCompile(`\b(\d{1,2})(?::([0-5]\d))?\s*(am\b|pm\b|a\.m\.|p\.m\.)`)
	clockPattern      = regexp.MustCompile(`\b([01]?\d|2[0-3])[:.h]([0-5]\d)\b`)
	atHourPattern     = regexp.MustCompile(`\bat\s+(\d{1,2})\b`)
	doctorPattern     = regexp.MustCompile(`\b(?:dr|doctor)\.?\s+([a-z][a-z'-]*)(?:\s+([a-z][a-z'-]*))?`)
	withNamePattern   = regexp.MustCompile(`\bwith\s+([a-z][a-z'-]*)`)
)

var months = map[string]time.Month{
	"january": time.January, "jan": time.January,
	"february": time.February, "feb": time.February,
	"march": time.March, "mar": time.March,
	"april": time.April, "apr": time.April,
	"may": time.May,
	"june": time.June, "jun": time.June,
	"july": time.July, "jul": time.July,
	"august": time.August, "aug": time.August,
	"september": time.September, "sep": time.September, "sept": time.September,
	"october": time.October, "oct": time.October,
	"november": time.November, "nov": time.November,
	"december": time.December, "dec": time.December,
}

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// specializationHints maps everyday words onto catalog specializations.
var specializationHints = map[string]string{
	"braces":     "orthodontist",
	"aligners":   "orthodontist",
	"whitening":  "cosmetic_dentist",
	"veneers":    "cosmetic_dentist",
	"implant":    "prosthodontist",
	"implants":   "prosthodontist",
	"denture":    "prosthodontist",
	"dentures":   "prosthodontist",
	"crown":      "prosthodontist",
	"extraction": "oral_surgeon",
	"wisdom":     "oral_surgeon",
	"surgery":    "oral_surgeon",
	"child":      "pediatric_dentist",
	"children":   "pediatric_dentist",
	"kid":        "pediatric_dentist",
	"kids":       "pediatric_dentist",
	"son":        "pediatric_dentist",
	"daughter":   "pediatric_dentist",
	"toothache":  "emergency_dentist",
	"urgent":     "emergency_dentist",
	"emergency":  "emergency_dentist",
}

// RuleExtractor recognises ids, dates, times and practitioner names with
// regular expressions and the practitioner catalog.
type RuleExtractor struct {
	catalog *schedule.Catalog
}

var _ Extractor = (*RuleExtractor)(nil)

func NewRuleExtractor(catalog *schedule.Catalog) *RuleExtractor {
	return &RuleExtractor{catalog: catalog}
}

func (r *RuleExtractor) Extract(_ context.Context, text string, now time.Time) (Details, error) {
	loc := time.UTC
	if r.catalog != nil {
		loc = r.catalog.Location()
	}
	var d Details
	var rest string
	d.AppointmentID, rest = splitAppointmentID(text)
	d.PatientID = patientIDIn(rest)

	if day, ok := parseDay(rest, now.In(loc)); ok {
		d.Date = day
	}
	if clock, ok := parseClock(isoDatePattern.ReplaceAllString(dmyPattern.ReplaceAllString(rest, " "), " ")); ok {
		d.Clock, d.HasClock = clock, true
	}

	if r.catalog != nil {
		d.Practitioner = r.practitioner(rest)
		d.Specialization = r.specialization(rest)
	}
	return d, nil
}

// splitAppointmentID returns the first appointment id in text and the
// lowered text without it.
func splitAppointmentID(text string) (string, string) {
	text = strings.TrimSpace(text)
	lowered := strings.ToLower(text)
	if m := uuidPattern.FindStringSubmatch(lowered); m != nil {
		return m[1], strings.Replace(lowered, m[0], " ", 1)
	}
	if m := hashIDPattern.FindStringSubmatch(text); m != nil && !isDigits(m[1]) {
		return m[1], strings.Replace(lowered, strings.ToLower(m[0]), " ", 1)
	}
	return "", lowered
}

// patientIDIn finds a patient id in text that no longer carries an
// appointment id. Numeric dates are not ids.
func patientIDIn(rest string) string {
	if m := patientIDPattern.FindStringSubmatch(dmyPattern.ReplaceAllString(rest, " ")); m != nil {
		return m[1]
	}
	return ""
}

func (r *RuleExtractor) practitioner(text string) string {
	normalized := " " + strings.Join(strings.Fields(strings.NewReplacer(".", " ", ",", " ", "?", " ", "!", " ").Replace(text)), " ") + " "
	for _, p := range r.catalog.Practitioners() {
		if strings.Contains(normalized, " "+strings.ToLower(p.Name)+" ") {
			return p.Name
		}
	}

	if m := doctorPattern.FindStringSubmatch(text); m != nil {
		if m[2] != "" {
			if p, err := r.catalog.Resolve(m[1] + " " + m[2]); err == nil {
				return p.Name
			}
		}
		return "Dr. " + capitalize(m[1])
	}

	for _, m := range withNamePattern.FindAllStringSubmatch(text, -1) {
		for _, p := range r.catalog.Practitioners() {
			parts := strings.Fields(strings.ToLower(p.Name))
			if len(parts) > 0 && (parts[0] == m[1] || parts[len(parts)-1] == m[1]) {
				return "Dr. " + capitalize(m[1])
			}
		}
	}
	return ""
}

func (r *RuleExtractor) specialization(text string) string {
	words := strings.FieldsFunc(text, func(c rune) bool {
		return !(c >= 'a' && c <= 'z' || c == '-')
	})
	joined := " " + strings.Join(words, " ") + " "

	known := map[string]bool{}
	for _, spec := range r.catalog.Specializations() {
		known[spec] = true
		parts := strings.Split(spec, "_")
		candidates := []string{strings.Join(parts, " ")}
		if len(parts) > 1 {
			if first := parts[0]; first != "general" && first != "oral" {
				candidates = append(candidates, first)
			}
			if last := parts[len(parts)-1]; last != "dentist" {
				candidates = append(candidates, last)
			}
		}
		for _, c := range candidates {
			if strings.Contains(joined, " "+c+" ") {
				return spec
			}
		}
	}
	for _, w := range words {
		if spec, ok := specializationHints[w]; ok && known[spec] {
			return spec
		}
	}
	return ""
}

func parseDay(text string, now time.Time) (time.Time, bool) {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		y, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		dd, _ := strconv.Atoi(m[3])
		if t, ok := validDate(y, time.Month(mo), dd, loc); ok {
			return t, true
		}
	}
	if m := dmyPattern.FindStringSubmatch(text); m != nil {
		dd, _ := strconv.Atoi(m[1])
		mo, _ := strconv.Atoi(m[2])
		y, _ := strconv.Atoi(m[3])
		if t, ok := validDate(y, time.Month(mo), dd, loc); ok {
			return t, true
		}
	}
	if m := dayMonthPattern.FindStringSubmatch(text); m != nil {
		dd, _ := strconv.Atoi(m[1])
		return upcomingDate(today, months[m[2]], dd)
	}
	if m := monthDayPattern.FindStringSubmatch(text); m != nil {
		dd, _ := strconv.Atoi(m[2])
		return upcomingDate(today, months[m[1]], dd)
	}

	switch {
	case strings.Contains(text, "day after tomorrow"):
		return today.AddDate(0, 0, 2), true
	case strings.Contains(text, "tomorrow"):
		return today.AddDate(0, 0, 1), true
	case strings.Contains(text, "today"), strings.Contains(text, "tonight"), strings.Contains(text, "this afternoon"), strings.Contains(text, "this morning"):
		return today, true
	}

	if m := weekdayPattern.FindStringSubmatch(text); m != nil {
		target := weekdayNames[m[2]]
		ahead := (int(target) - int(today.Weekday()) + 7) % 7
		if ahead == 0 && strings.TrimSpace(m[1]) != "this" {
			ahead = 7
		}
		return today.AddDate(0, 0, ahead), true
	}
	return time.Time{}, false
}

func validDate(y int, mo time.Month, d int, loc *time.Location) (time.Time, bool) {
	t := time.Date(y, mo, d, 0, 0, 0, 0, loc)
	if t.Year() != y || t.Month() != mo || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

// upcomingDate picks this year's date, or next year's once it has passed.
func upcomingDate(today time.Time, mo time.Month, d int) (time.Time, bool) {
	t, ok := validDate(today.Year(), mo, d, today.Location())
	if !ok {
		return time.Time{}, false
	}
	if t.Before(today) {
		return validDate(today.Year()+1, mo, d, today.Location())
	}
	return t, true
}

func parseClock(text string) (time.Duration, bool) {
	if m := twelveHourPattern.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h >= 1 && h <= 12 {
			mins := 0
			if m[2] != "" {
				mins, _ = strconv.Atoi(m[2])
			}
			pm := strings.HasPrefix(m[3], "p")
			switch {
			case pm && h != 12:
				h += 12
			case !pm && h == 12:
				h = 0
			}
			return time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute, true
		}
	}
	if strings.Contains(text, "noon") || strings.Contains(text, "midday") {
		return 12 * time.Hour, true
	}
	if m := clockPattern.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		return time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute, true
	}
	if m := atHourPattern.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		if h >= 1 && h <= 23 {
			// "at 3" means the afternoon inside clinic hours
			if h < 7 {
				h += 12
			}
			return time.Duration(h) * time.Hour, true
		}
	}
	return 0, false
}

func isDigits(s string) bool {
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return s != ""
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
