package specialist

import (
	"regexp"
	"strings"

	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
)

type signal struct {
	pattern *regexp.Regexp
	weight  int
}

func sig(expr string, weight int) signal {
	return signal{pattern: regexp.MustCompile(expr), weight: weight}
}

// Task verbs outweigh generic words: "cancel my booking" is a cancellation.
var intentSignals = map[contractx.SpecialistKind][]signal{
	contractx.SpecialistCancellation: {
		sig(`\bcancel`, 2),
		sig(`\bcall (it )?off\b`, 2),
		sig(`\b(can'?t|cannot|won'?t) make it\b`, 2),
		sig(`\bnot (be )?coming\b`, 2),
	},
	contractx.SpecialistRescheduling: {
		sig(`\breschedul`, 3),
		sig(`\bpostpone`, 3),
		sig(`\bmove (my|the|it|our)\b`, 3),
		sig(`\bchange (my|the) (appointment|booking|time|slot|date)\b`, 3),
		sig(`\b(different|another|later|earlier) (time|day|slot|date)\b`, 2),
		sig(`\bpush (it )?back\b`, 2),
		sig(`\bbring (it )?forward\b`, 2),
	},
	contractx.SpecialistBooking: {
		sig(`\bbook\b`, 2),
		sig(`\bschedule\b`, 2),
		sig(`\b(make|new|get) an? (appointment|booking)\b`, 2),
		sig(`\bappointment with\b`, 1),
		sig(`\b(see|visit) (dr|doctor)\b`, 1),
		sig(`\bavailab`, 1),
		sig(`\b(free|open) (slot|time)s?\b`, 1),
		sig(`\bcheck-?up\b`, 1),
	},
	contractx.SpecialistFAQ: {
		sig(`\bhours\b`, 2),
		sig(`\bopen(ing)?\b`, 1),
		sig(`\bclos(e|ing)\b`, 1),
		sig(`\bwhere\b`, 1),
		sig(`\baddress\b`, 2),
		sig(`\blocat(ed|ion)\b`, 2),
		sig(`\bparking\b`, 2),
		sig(`\binsurance\b`, 2),
		sig(`\b(price|prices|cost|costs|fee|fees)\b`, 2),
		sig(`\bpay(ment)?\b`, 2),
		sig(`\bpolicy\b`, 3),
		sig(`\bservices?\b`, 2),
		sig(`\bdo you (offer|treat|accept|take|do)\b`, 2),
		sig(`\bwhat should i bring\b`, 2),
		sig(`\bemergenc`, 1),
	},
}

// Intents scores text against each specialist's keyword signals.
func Intents(text string) map[contractx.SpecialistKind]int {
	lowered := strings.ToLower(text)
	scores := make(map[contractx.SpecialistKind]int, len(intentSignals))
	for kind, sigs := range intentSignals {
		for _, s := range sigs {
			if s.pattern.MatchString(lowered) {
				scores[kind] += s.weight
			}
		}
	}
	return scores
}

// Strongest returns the kinds sharing the highest positive score, in
// routing priority order.
func Strongest(scores map[contractx.SpecialistKind]int) ([]contractx.SpecialistKind, int) {
	best := 0
	for _, s := range scores {
		if s > best {
			best = s
		}
	}
	if best == 0 {
		return nil, 0
	}
	var out []contractx.SpecialistKind
	for _, kind := range contractx.SpecialistKinds {
		if scores[kind] == best {
			out = append(out, kind)
		}
	}
	return out, best
}

// redirect reports the specialist the latest message belongs to when it is
// clearly not self. Specialists that already handed off to self this turn
// are never chosen again.
func redirect(text string, self contractx.SpecialistKind, handedOffBy map[contractx.SpecialistKind]bool) (contractx.SpecialistKind, bool) {
	scores := Intents(text)
	top, best := Strongest(scores)
	if len(top) != 1 || top[0] == self || best <= scores[self] {
		return "", false
	}
	if handedOffBy[top[0]] {
		return "", false
	}
	return top[0], true
}
