package schedule

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

type Practitioner struct {
	ID             string `yaml:"id" json:"id"`
	Name           string `yaml:"name" json:"name"`
	Specialization string `yaml:"specialization" json:"specialization"`
	Hours          *Hours `yaml:"hours,omitempty" json:"-"`
}

// DisplayName is how answers refer to the practitioner.
func (p Practitioner) DisplayName() string {
	return "Dr. " + lastName(p.Name)
}

// Hours is a daily opening window in clinic-local time.
type Hours struct {
	Open  string   `yaml:"open"`
	Close string   `yaml:"close"`
	Days  []string `yaml:"days"`

	open, close time.Duration
	days        map[time.Weekday]bool
}

type catalogFile struct {
	Timezone      string         `yaml:"timezone"`
	SlotMinutes   int            `yaml:"slot_minutes"`
	Hours         Hours          `yaml:"hours"`
	Practitioners []Practitioner `yaml:"practitioners"`
}

// Catalog is the fixed practitioner list plus the clinic's calendar rules.
type Catalog struct {
	practitioners []Practitioner
	byID          map[string]Practitioner
	hours         Hours
	slot          time.Duration
	loc           *time.Location
}

type CatalogOption func(*Catalog)

// WithSlotDuration overrides the catalog's slot length.
func WithSlotDuration(d time.Duration) CatalogOption {
	return func(c *Catalog) {
		if d > 0 {
			c.slot = d
		}
	}
}

func WithLocation(loc *time.Location) CatalogOption {
	return func(c *Catalog) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// DefaultCatalog returns the embedded clinic catalog.
func DefaultCatalog(opts ...CatalogOption) (*Catalog, error) {
	return LoadCatalog(bytes.NewReader(defaultCatalog), opts...)
}

// LoadCatalogFile reads a catalog from path, or the embedded one when path is empty.
func LoadCatalogFile(path string, opts ...CatalogOption) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultCatalog(opts...)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	defer f.Close()
	return LoadCatalog(f, opts...)
}

func LoadCatalog(r io.Reader, opts ...CatalogOption) (*Catalog, error) {
	var file catalogFile
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if len(file.Practitioners) == 0 {
		return nil, fmt.Errorf("catalog has no practitioners")
	}

	loc := time.UTC
	if tz := strings.TrimSpace(file.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("catalog timezone: %w", err)
		}
		loc = l
	}

	if err := file.Hours.compile(); err != nil {
		return nil, fmt.Errorf("clinic hours: %w", err)
	}

	c := &Catalog{
		practitioners: make([]Practitioner, 0, len(file.Practitioners)),
		byID:          make(map[string]Practitioner, len(file.Practitioners)),
		hours:         file.Hours,
		slot:          time.Duration(file.SlotMinutes) * time.Minute,
		loc:           loc,
	}
	if c.slot <= 0 {
		c.slot = 30 * time.Minute
	}

	for _, p := range file.Practitioners {
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" || strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("practitioner entry needs id and name")
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("duplicate practitioner id=%s", p.ID)
		}
		if p.Hours != nil {
			if err := p.Hours.compile(); err != nil {
				return nil, fmt.Errorf("hours of %s: %w", p.ID, err)
			}
		}
		c.practitioners = append(c.practitioners, p)
		c.byID[p.ID] = p
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

func (c *Catalog) Practitioners() []Practitioner {
	out := make([]Practitioner, len(c.practitioners))
	copy(out, c.practitioners)
	return out
}

func (c *Catalog) Location() *time.Location {
	return c.loc
}

func (c *Catalog) SlotDuration() time.Duration {
	return c.slot
}

func (c *Catalog) ByID(id string) (Practitioner, bool) {
	p, ok := c.byID[id]
	return p, ok
}

// Specializations lists the distinct specializations, sorted.
func (c *Catalog) Specializations() []string {
	seen := make(map[string]bool)
	out := make([]string, 0, 8)
	for _, p := range c.practitioners {
		if !seen[p.Specialization] {
			seen[p.Specialization] = true
			out = append(out, p.Specialization)
		}
	}
	sort.Strings(out)
	return out
}

// BySpecialization accepts "oral_surgeon", "oral surgeon" or "oral-surgeon".
func (c *Catalog) BySpecialization(spec string) []Practitioner {
	want := normalizeSpecialization(spec)
	out := make([]Practitioner, 0, 2)
	for _, p := range c.practitioners {
		if p.Specialization == want {
			out = append(out, p)
		}
	}
	return out
}

var titlePrefix = regexp.MustCompile(`^(dr\.?|doctor)\s+`)

// Resolve maps a user-supplied name ("Dr. Lee", "grace lee", "grace-lee")
// to a practitioner. Matching is case-insensitive on id, full name, surname
// and first name; a partial name shared by several practitioners is
// ambiguous.
func (c *Catalog) Resolve(name string) (Practitioner, error) {
	key := normalizeName(name)
	if key == "" {
		return Practitioner{}, fmt.Errorf("%w: empty name", ErrUnknownPractitioner)
	}
	if p, ok := c.byID[strings.ReplaceAll(key, " ", "-")]; ok {
		return p, nil
	}

	var matches []Practitioner
	for _, p := range c.practitioners {
		full := normalizeName(p.Name)
		if full == key {
			return p, nil
		}
		parts := strings.Fields(full)
		if len(parts) > 0 && (parts[len(parts)-1] == key || parts[0] == key) {
			matches = append(matches, p)
		}
	}
	switch len(matches) {
	case 0:
		return Practitioner{}, fmt.Errorf("%w: %q", ErrUnknownPractitioner, name)
	case 1:
		return matches[0], nil
	default:
		return Practitioner{}, fmt.Errorf("%w: %q matches %d practitioners", ErrAmbiguousPractitioner, name, len(matches))
	}
}

// HoursFor returns the opening window that applies to p.
func (c *Catalog) HoursFor(p Practitioner) Hours {
	if p.Hours != nil {
		return *p.Hours
	}
	return c.hours
}

// CheckSlot verifies that start is aligned to the slot grid and that the
// whole slot falls inside p's working hours on that day.
func (c *Catalog) CheckSlot(p Practitioner, start time.Time) (Slot, error) {
	local := start.In(c.loc)
	slot := Slot{Start: start.UTC(), Duration: c.slot}
	hours := c.HoursFor(p)

	if !hours.openOn(local.Weekday()) {
		return slot, fmt.Errorf("%w: %s does not work on %s", ErrOutsideWorkingHours, p.DisplayName(), local.Weekday())
	}
	offset := sinceMidnight(local)
	if offset < hours.open || offset+c.slot > hours.close {
		return slot, fmt.Errorf("%w: %s works %s-%s", ErrOutsideWorkingHours, p.DisplayName(), hours.Open, hours.Close)
	}
	if (offset-hours.open)%c.slot != 0 {
		return slot, fmt.Errorf("%w: appointments start every %d minutes from %s", ErrOutsideWorkingHours, int(c.slot/time.Minute), hours.Open)
	}
	return slot, nil
}

// SlotsOn lists every slot p could work on day, in clinic-local order.
func (c *Catalog) SlotsOn(p Practitioner, day time.Time) []Slot {
	local := day.In(c.loc)
	hours := c.HoursFor(p)
	if !hours.openOn(local.Weekday()) {
		return nil
	}
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc)
	out := make([]Slot, 0, int((hours.close-hours.open)/c.slot))
	for off := hours.open; off+c.slot <= hours.close; off += c.slot {
		out = append(out, Slot{Start: midnight.Add(off).UTC(), Duration: c.slot})
	}
	return out
}

func (h *Hours) compile() error {
	open, err := parseClock(h.Open)
	if err != nil {
		return err
	}
	closeAt, err := parseClock(h.Close)
	if err != nil {
		return err
	}
	if closeAt <= open {
		return fmt.Errorf("close %s must be after open %s", h.Close, h.Open)
	}
	h.open, h.close = open, closeAt

	h.days = make(map[time.Weekday]bool, 7)
	if len(h.Days) == 0 {
		for d := time.Sunday; d <= time.Saturday; d++ {
			h.days[d] = true
		}
		return nil
	}
	for _, raw := range h.Days {
		d, ok := weekdays[strings.ToLower(strings.TrimSpace(raw))]
		if !ok {
			return fmt.Errorf("unknown weekday %q", raw)
		}
		h.days[d] = true
	}
	return nil
}

func (h Hours) openOn(d time.Weekday) bool {
	return h.days[d]
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "sun": time.Sunday,
	"monday": time.Monday, "mon": time.Monday,
	"tuesday": time.Tuesday, "tue": time.Tuesday,
	"wednesday": time.Wednesday, "wed": time.Wednesday,
	"thursday": time.Thursday, "thu": time.Thursday,
	"friday": time.Friday, "fri": time.Friday,
	"saturday": time.Saturday, "sat": time.Saturday,
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second + time.Duration(t.Nanosecond())
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = titlePrefix.ReplaceAllString(s, "")
	s = strings.NewReplacer(".", " ", ",", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

func normalizeSpecialization(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return s
}

func lastName(full string) string {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return full
	}
	return parts[len(parts)-1]
}
