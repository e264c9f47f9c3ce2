package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/juno-intents/quest-escrow/internal/quest"
)

const (
	// DefaultMaxActiveClaims is how many Active claims one claimer may hold at once.
	DefaultMaxActiveClaims = 5

	// DefaultStrikeLimit is the number of recent expired or abandoned claims that
	// blocks a claimer from taking new ones.
	DefaultStrikeLimit = 2

	// DefaultStrikeWindow is how far back strikes are counted.
	DefaultStrikeWindow = 7 * 24 * time.Hour
)

var (
	ErrInvalidConfig    = errors.New("policy: invalid config")
	ErrTooManyActive    = errors.New("policy: too many active claims")
	ErrTooManyStrikes   = errors.New("policy: too many expired or abandoned claims recently")
	ErrForeignClaimList = errors.New("policy: claim list contains another claimer")
)

type AdmissionConfig struct {
	MaxActiveClaims int
	StrikeLimit     int
	StrikeWindow    time.Duration
}

func DefaultAdmissionConfig() AdmissionConfig {
	return AdmissionConfig{
		MaxActiveClaims: DefaultMaxActiveClaims,
		StrikeLimit:     DefaultStrikeLimit,
		StrikeWindow:    DefaultStrikeWindow,
	}
}

// AdmitClaim decides whether claimer may open another claim given its claim
// history. It runs before the core claim operation and never changes state.
//
// Policy:
// - claims in status Active count toward MaxActiveClaims (Submitted claims do not).
// - Expired and Abandoned claims whose ClaimedAt is strictly after now-StrikeWindow are strikes.
// - StrikeLimit or more strikes reject the claim.
func AdmitClaim(now int64, claimer common.Address, history []quest.Claim, cfg AdmissionConfig) error {
	if cfg.MaxActiveClaims <= 0 || cfg.StrikeLimit <= 0 || cfg.StrikeWindow < time.Second {
		return fmt.Errorf("%w: MaxActiveClaims/StrikeLimit must be > 0 and StrikeWindow >= 1s", ErrInvalidConfig)
	}
	since := now - int64(cfg.StrikeWindow/time.Second)

	var active, strikes int
	for _, c := range history {
		if c.Claimer != claimer {
			return ErrForeignClaimList
		}
		switch c.Status {
		case quest.ClaimStatusActive:
			active++
		case quest.ClaimStatusExpired, quest.ClaimStatusAbandoned:
			if c.ClaimedAt > since {
				strikes++
			}
		}
	}
	if active >= cfg.MaxActiveClaims {
		return fmt.Errorf("%w: %d active, max %d", ErrTooManyActive, active, cfg.MaxActiveClaims)
	}
	if strikes >= cfg.StrikeLimit {
		return fmt.Errorf("%w: %d in the last %s", ErrTooManyStrikes, strikes, cfg.StrikeWindow)
	}
	return nil
}
