package quest

import (
	"errors"
)

// Error categories. Every coded error wraps exactly one of them.
var (
	ErrValidation    = errors.New("quest: validation failed")
	ErrStateConflict = errors.New("quest: state conflict")
	ErrUnauthorized  = errors.New("quest: unauthorized")
	ErrArithmetic    = errors.New("quest: arithmetic failure")
)

// Validation.
var (
	ErrRewardTooLow           = newCodedError(ErrValidation, "reward_too_low", "reward below protocol minimum")
	ErrInvalidMaxClaimers     = newCodedError(ErrValidation, "invalid_max_claimers", "max claimers must be in [1, 100]")
	ErrDirectQuestNeedsTarget = newCodedError(ErrValidation, "direct_quest_needs_target", "direct quest requires a target")
	ErrCannotTargetSelf       = newCodedError(ErrValidation, "cannot_target_self", "direct quest cannot target its creator")
	ErrOpenQuestHasTarget     = newCodedError(ErrValidation, "open_quest_has_target", "open quest cannot name a target")
	ErrInvalidTimeLimit       = newCodedError(ErrValidation, "invalid_time_limit", "expiry must be in the future")
	ErrInvalidFeeConfig       = newCodedError(ErrValidation, "invalid_fee_config", "fee and burn rates must be <= 10000 bps")
	ErrStakeTooLow            = newCodedError(ErrValidation, "stake_too_low", "stake below 5% of reward")
	ErrInvalidKind            = newCodedError(ErrValidation, "invalid_kind", "unknown quest kind")
)

// State conflicts.
var (
	ErrQuestNotActive      = newCodedError(ErrStateConflict, "quest_not_active", "quest is not active")
	ErrQuestFull           = newCodedError(ErrStateConflict, "quest_full", "quest is full")
	ErrQuestExpired        = newCodedError(ErrStateConflict, "quest_expired", "quest has expired")
	ErrQuestAlreadyClaimed = newCodedError(ErrStateConflict, "quest_already_claimed", "quest already claimed")
	ErrClaimNotActive      = newCodedError(ErrStateConflict, "claim_not_active", "claim is not active")
	ErrClaimNotSubmitted   = newCodedError(ErrStateConflict, "claim_not_submitted", "claim not submitted")
	ErrProofDeadlinePassed = newCodedError(ErrStateConflict, "proof_deadline_passed", "proof deadline passed")
	ErrDeadlineNotReached  = newCodedError(ErrStateConflict, "deadline_not_reached", "deadline not reached")
	ErrNoReviewDeadline    = newCodedError(ErrStateConflict, "no_review_deadline", "claim has no review deadline")
)

// Authorization.
var (
	ErrNotTargetUser       = newCodedError(ErrUnauthorized, "not_target_user", "not the target user for this quest")
	ErrNotClaimer          = newCodedError(ErrUnauthorized, "not_claimer", "not the claimer")
	ErrNotOracle           = newCodedError(ErrUnauthorized, "not_oracle", "not the protocol authority")
	ErrNotCreator          = newCodedError(ErrUnauthorized, "not_creator", "not the creator")
	ErrCannotClaimOwnQuest = newCodedError(ErrUnauthorized, "cannot_claim_own_quest", "cannot claim own quest")
)

// Arithmetic.
var ErrOverflow = newCodedError(ErrArithmetic, "overflow", "arithmetic overflow")

// Storage and ledger. These are not coded; CodeOf maps them explicitly.
var (
	ErrNotFound             = errors.New("quest: not found")
	ErrNotInitialized       = errors.New("quest: protocol not initialized")
	ErrAlreadyInitialized   = errors.New("quest: protocol already initialized")
	ErrClaimExists          = errors.New("quest: claim already exists")
	ErrQuestExists          = errors.New("quest: quest already exists")
	ErrInsufficientFunds    = errors.New("quest: insufficient funds")
	ErrUnauthorizedTransfer = errors.New("quest: transfer not authorized by account owner")
	ErrInvalidConfig        = errors.New("quest: invalid config")
)

type codedError struct {
	category error
	code     string
	msg      string
}

func newCodedError(category error, code, msg string) *codedError {
	return &codedError{category: category, code: code, msg: msg}
}

func (e *codedError) Error() string { return "quest: " + e.msg }

func (e *codedError) Unwrap() error { return e.category }

// CodeOf returns the stable snake_case code for err, or "internal".
func CodeOf(err error) string {
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrNotInitialized):
		return "not_initialized"
	case errors.Is(err, ErrAlreadyInitialized):
		return "already_initialized"
	case errors.Is(err, ErrClaimExists):
		return "claim_exists"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	default:
		return "internal"
	}
}
