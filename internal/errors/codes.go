// Package errors provides structured domain error handling.
//
// Every rejection the core produces carries a machine-readable Code plus
// metadata naming the offending field, so clients can render a clear
// message without parsing error strings.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation errors — malformed requests rejected before any state touch.
	CodeValidationSessionIDEmpty  Code = "VALIDATION_SESSION_ID_EMPTY"
	CodeValidationActorIDEmpty    Code = "VALIDATION_ACTOR_ID_EMPTY"
	CodeValidationKindInvalid     Code = "VALIDATION_ACTION_KIND_INVALID"
	CodeValidationIdempotencyKey  Code = "VALIDATION_IDEMPOTENCY_KEY_EMPTY"
	CodeValidationTargetMissing   Code = "VALIDATION_TARGET_MISSING"
	CodeValidationItemTypeMissing Code = "VALIDATION_ITEM_TYPE_MISSING"

	// Rule violations — well-formed requests the rules engine refuses.
	CodeRuleItemNotInCatalog     Code = "RULE_ITEM_NOT_IN_CATALOG"
	CodeRuleItemNotHeld          Code = "RULE_ITEM_NOT_HELD"
	CodeRuleQuantityUnderflow    Code = "RULE_QUANTITY_UNDERFLOW"
	CodeRuleItemNotEquippable    Code = "RULE_ITEM_NOT_EQUIPPABLE"
	CodeRuleItemNotUsable        Code = "RULE_ITEM_NOT_USABLE"
	CodeRuleInsufficientResource Code = "RULE_INSUFFICIENT_RESOURCE"
	CodeRuleTargetNotHostile     Code = "RULE_TARGET_NOT_HOSTILE"
	CodeRuleTargetDefeated       Code = "RULE_TARGET_DEFEATED"
	CodeRuleActorDefeated        Code = "RULE_ACTOR_DEFEATED"

	// Scheduler errors.
	CodeNotYourTurn        Code = "NOT_YOUR_TURN"
	CodeEncounterResolved  Code = "ENCOUNTER_RESOLVED"
	CodeEncounterNotActive Code = "ENCOUNTER_NOT_ACTIVE"

	// Session state machine errors.
	CodePhaseMismatch          Code = "PHASE_MISMATCH"
	CodeInvalidPhaseTransition Code = "INVALID_PHASE_TRANSITION"
	CodeSessionEnded           Code = "SESSION_ENDED"
	CodeCharacterNotFound      Code = "CHARACTER_NOT_FOUND"
	CodeNoPendingCheck         Code = "NO_PENDING_CHECK"
	CodeCheckAlreadyPending    Code = "CHECK_ALREADY_PENDING"

	// Skill check / dice errors.
	CodeInvalidDifficultyTier Code = "INVALID_DIFFICULTY_TIER"
	CodeInvalidAttribute      Code = "INVALID_ATTRIBUTE"
	CodeDiceInvalidSpec       Code = "DICE_INVALID_SPEC"

	// Storage errors.
	CodeNotFound        Code = "NOT_FOUND"
	CodeVersionConflict Code = "VERSION_CONFLICT"

	// Upstream collaborator errors.
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeValidationSessionIDEmpty,
		CodeValidationActorIDEmpty,
		CodeValidationKindInvalid,
		CodeValidationIdempotencyKey,
		CodeValidationTargetMissing,
		CodeValidationItemTypeMissing,
		CodeInvalidDifficultyTier,
		CodeInvalidAttribute,
		CodeDiceInvalidSpec:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow the operation
	case CodeRuleItemNotInCatalog,
		CodeRuleItemNotHeld,
		CodeRuleQuantityUnderflow,
		CodeRuleItemNotEquippable,
		CodeRuleItemNotUsable,
		CodeRuleInsufficientResource,
		CodeRuleTargetNotHostile,
		CodeRuleTargetDefeated,
		CodeRuleActorDefeated,
		CodeNotYourTurn,
		CodeEncounterResolved,
		CodeEncounterNotActive,
		CodePhaseMismatch,
		CodeInvalidPhaseTransition,
		CodeSessionEnded,
		CodeNoPendingCheck,
		CodeCheckAlreadyPending:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodeNotFound,
		CodeCharacterNotFound:
		return codes.NotFound

	// Aborted - optimistic concurrency failure, safe to retry
	case CodeVersionConflict:
		return codes.Aborted

	// Unavailable - collaborator timed out after retries
	case CodeUpstreamUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
