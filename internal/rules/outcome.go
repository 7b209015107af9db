// Package rules resolves skill checks, combat actions, and inventory
// operations.
//
// Every function here is pure and deterministic given explicit inputs
// plus an injected random source: the same state and the same draws
// always yield the same outcome. Nothing in this package reads or
// writes session state; it computes results and deltas that the state
// machine applies atomically.
package rules

import "github.com/fableguard/fableguard/internal/random"

// Outcome classifies a resolved skill check or combat action.
type Outcome string

const (
	OutcomeCriticalSuccess Outcome = "critical_success"
	OutcomeSuccess         Outcome = "success"
	OutcomeFailure         Outcome = "failure"
	OutcomeCriticalFailure Outcome = "critical_failure"
)

// Succeeded reports whether the outcome counts as a success.
func (o Outcome) Succeeded() bool {
	return o == OutcomeSuccess || o == OutcomeCriticalSuccess
}

// dangerChance is the percent chance of a random danger event per
// eligible turn. The event is surfaced as a structured fact for the
// narrator; it carries no mechanical effect of its own.
const dangerChance = 5

// DangerEvent draws the per-turn danger check from the source.
func DangerEvent(src *random.Source) bool {
	return src.IntN(100) <= dangerChance
}
