package specialist

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
	"github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/schedule"
	statex "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/state"
	toolx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/tool"
)

const maxTaskMessages = 6

const (
	apology        = "Sorry, something went wrong on our side. Please try again in a moment or call the front desk."
	systemIsSlow   = "Our scheduling system is not responding right now. Please try again in a few minutes."
	askAppointment = "Which appointment is this about? Please share the confirmation number you received when booking."
)

var mutatingTools = map[string]bool{
	toolx.ToolCreateBooking:     true,
	toolx.ToolCancelBooking:     true,
	toolx.ToolRescheduleBooking: true,
}

// Deps are shared by every specialist.
type Deps struct {
	Catalog   *schedule.Catalog
	Extractor Extractor
	Now       func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Extractor == nil {
		d.Extractor = NewRuleExtractor(d.Catalog)
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

func (d Deps) location() *time.Location {
	return d.Catalog.Location()
}

// gather merges the details of the current task's messages, newest first.
// The patient id falls back to the whole transcript and the inbound id.
func (d Deps) gather(ctx context.Context, conv *statex.Conversation) (Details, error) {
	now := d.Now()
	var out Details
	for _, msg := range taskMessages(conv) {
		found, err := d.Extractor.Extract(ctx, msg, now)
		if err != nil {
			return Details{}, fmt.Errorf("%w: extract details: %v", contractx.ErrSpecialistFailure, err)
		}
		out.fill(found)
	}
	if out.PatientID == "" {
		for _, msg := range conv.UserMessages() {
			_, rest := splitAppointmentID(msg)
			if id := patientIDIn(rest); id != "" {
				out.PatientID = id
				break
			}
		}
	}
	if out.PatientID == "" {
		out.PatientID = strings.TrimSpace(conv.PatientID)
	}
	return out, nil
}

// withOwner scopes an appointment change to the conversation's patient.
func withOwner(args map[string]any, conv *statex.Conversation) map[string]any {
	if id := strings.TrimSpace(conv.PatientID); id != "" {
		args["patient_id"] = id
	}
	return args
}

// taskMessages returns user messages newest first, stopping at the last
// appointment change completed before the latest message.
func taskMessages(conv *statex.Conversation) []string {
	var out []string
	seenUser := false
	for i := len(conv.Turns) - 1; i >= 0; i-- {
		t := conv.Turns[i]
		switch t.Role {
		case statex.RoleUser:
			out = append(out, t.Content)
			seenUser = true
			if len(out) >= maxTaskMessages {
				return out
			}
		case statex.RoleTool:
			if seenUser && !t.Failed && mutatingTools[t.Tool] {
				return out
			}
		}
	}
	return out
}

// knownAppointment returns the appointment this conversation last booked or
// moved, unless it was cancelled since.
func knownAppointment(conv *statex.Conversation) (toolx.BookingResult, bool) {
	var last toolx.BookingResult
	found := false
	for _, t := range conv.ToolTurns() {
		if t.Failed || !mutatingTools[t.Tool] {
			continue
		}
		var r toolx.BookingResult
		if err := json.Unmarshal(t.Payload, &r); err != nil {
			continue
		}
		switch t.Tool {
		case toolx.ToolCreateBooking, toolx.ToolRescheduleBooking:
			last, found = r, true
		case toolx.ToolCancelBooking:
			if found && r.AppointmentID == last.AppointmentID {
				last, found = toolx.BookingResult{}, false
			}
		}
	}
	return last, found
}

// scope is the part of the current turn that belongs to one specialist:
// everything since control was last handed to it.
type scope struct {
	entries     []statex.Turn
	handedOffBy map[contractx.SpecialistKind]bool
}

func scopeFor(conv *statex.Conversation, self contractx.SpecialistKind) scope {
	current := conv.CurrentTurn()
	s := scope{entries: current, handedOffBy: map[contractx.SpecialistKind]bool{}}
	for i, t := range current {
		if t.Role != statex.RoleSpecialist || t.HandoffTo == "" {
			continue
		}
		s.handedOffBy[contractx.SpecialistKind(t.Author)] = true
		if t.HandoffTo == string(self) {
			s.entries = current[i+1:]
		}
	}
	return s
}

func (s scope) lastTool() (statex.Turn, bool) {
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Role == statex.RoleTool {
			return s.entries[i], true
		}
	}
	return statex.Turn{}, false
}

// previousTool returns the tool entry before the latest one.
func (s scope) previousTool() (statex.Turn, bool) {
	seen := false
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Role != statex.RoleTool {
			continue
		}
		if seen {
			return s.entries[i], true
		}
		seen = true
	}
	return statex.Turn{}, false
}

func (s scope) count(tool string, kind contractx.ErrorKind) int {
	n := 0
	for _, t := range s.entries {
		if t.Role == statex.RoleTool && t.Tool == tool && contractx.ErrorKind(t.ErrorKind) == kind {
			n++
		}
	}
	return n
}

func (s scope) called(tool string) bool {
	for _, t := range s.entries {
		if t.Role == statex.RoleTool && t.Tool == tool {
			return true
		}
	}
	return false
}

func decodePayload(t statex.Turn, v any) error {
	if len(t.Payload) == 0 {
		return fmt.Errorf("%w: tool=%s returned no payload", contractx.ErrSpecialistFailure, t.Tool)
	}
	if err := json.Unmarshal(t.Payload, v); err != nil {
		return fmt.Errorf("%w: decode %s result: %v", contractx.ErrSpecialistFailure, t.Tool, err)
	}
	return nil
}

func argString(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// reason strips the tool and sentinel prefixes from a tool error message.
func reason(content string) string {
	if i := strings.LastIndex(content, ": "); i >= 0 {
		return strings.TrimSpace(content[i+2:])
	}
	return strings.TrimSpace(content)
}

// when renders start relative to now: "tomorrow at 3pm".
func when(start, now time.Time, loc *time.Location) string {
	s := start.In(loc)
	return day(s, now.In(loc)) + " at " + clock(s)
}

func day(s, now time.Time) string {
	loc := s.Location()
	a := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	b := time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, loc)
	switch days := int(math.Round(b.Sub(a).Hours() / 24)); {
	case days == 0:
		return "today"
	case days == 1:
		return "tomorrow"
	case days > 1 && days < 7:
		return "on " + s.Weekday().String()
	default:
		return "on " + s.Format("Monday 2 January")
	}
}

func clock(t time.Time) string {
	h := t.Hour()
	suffix := "am"
	if h >= 12 {
		suffix = "pm"
	}
	if h = h % 12; h == 0 {
		h = 12
	}
	if t.Minute() == 0 {
		return fmt.Sprintf("%d%s", h, suffix)
	}
	return fmt.Sprintf("%d:%02d%s", h, t.Minute(), suffix)
}

func clockList(slots []time.Time, loc *time.Location) string {
	parts := make([]string, 0, len(slots))
	for _, s := range slots {
		parts = append(parts, clock(s.In(loc)))
	}
	return joinList(parts)
}

func joinList(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + " and " + parts[len(parts)-1]
	}
}

// roster lists the practitioners for a clarifying question.
func roster(c *schedule.Catalog) string {
	parts := make([]string, 0, len(c.Practitioners()))
	for _, p := range c.Practitioners() {
		parts = append(parts, fmt.Sprintf("%s (%s)", p.DisplayName(), humanize(p.Specialization)))
	}
	return joinList(parts)
}

// describeSlots answers a find_available_slots result.
func describeSlots(res toolx.SlotsResult, now time.Time, loc *time.Location) string {
	if len(res.Practitioners) == 0 {
		return fmt.Sprintf("There are no free slots on %s. Would another day work for you?", res.Date)
	}
	lines := make([]string, 0, len(res.Practitioners))
	for _, p := range res.Practitioners {
		if len(p.Slots) == 0 {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s is free %s at %s.", p.Practitioner, day(p.Slots[0].In(loc), now.In(loc)), clockList(p.Slots, loc)))
	}
	return strings.Join(lines, " ") + " Which time would you like?"
}
