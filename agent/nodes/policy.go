package orchestratornode

import (
	contractx "github.com/tanpawarit/Chative-Clinic-Appointment-Agent/agent/contract"
)

// DefaultBudget caps specialist invocations per turn.
const DefaultBudget = 6

const (
	FallbackAnswer = "Sorry, I'm unable to resolve that, please rephrase or contact support."
	ApologyAnswer  = "Sorry, something went wrong while handling your request. Please try again or contact support."
	ClarifyAnswer  = "Could you tell me a little more about what you need?"
)

type Policy struct {
	Budget int
}

func (p Policy) budget() int {
	if p.Budget <= 0 {
		return DefaultBudget
	}
	return p.Budget
}

// handoffGuard counts handoffs per target within one turn. The second
// handoff to the same specialist is a cycle.
type handoffGuard map[contractx.SpecialistKind]int

func (g handoffGuard) allow(target contractx.SpecialistKind) bool {
	g[target]++
	return g[target] <= 1
}
