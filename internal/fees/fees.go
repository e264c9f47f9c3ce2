package fees

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
)

const (
	// BpsDenominator is 100% expressed in basis points.
	BpsDenominator = 10_000

	// MinStakeBps is the minimum claimer stake relative to the quest reward (5%).
	MinStakeBps = 500
)

var (
	ErrOverflow   = errors.New("fees: arithmetic overflow")
	ErrInvalidBps = errors.New("fees: invalid basis points")
)

// ValidateBps rejects rates above 100%.
func ValidateBps(bps uint16) error {
	if bps > BpsDenominator {
		return fmt.Errorf("%w: %d > %d", ErrInvalidBps, bps, BpsDenominator)
	}
	return nil
}

// Compute returns the protocol fee and the net payout for a reward.
//
// Policy:
// - fee = floor(reward * feeBps / 10000)
// - net = reward - fee
//
// The multiplication must fit in 64 bits; a product that does not fails with
// ErrOverflow rather than being computed at wider precision.
func Compute(reward uint64, feeBps uint16) (fee, net uint64, err error) {
	if err := ValidateBps(feeBps); err != nil {
		return 0, 0, err
	}
	fee, err = MulDiv(reward, uint64(feeBps), BpsDenominator)
	if err != nil {
		return 0, 0, err
	}
	net, err = Sub(reward, fee)
	if err != nil {
		return 0, 0, err
	}
	return fee, net, nil
}

// MinStake is floor(reward * MinStakeBps / 10000).
func MinStake(reward uint64) (uint64, error) {
	return MulDiv(reward, MinStakeBps, BpsDenominator)
}

// Burn returns the share of fee earmarked for burning at burnBps.
func Burn(fee uint64, burnBps uint16) (uint64, error) {
	if err := ValidateBps(burnBps); err != nil {
		return 0, err
	}
	return MulDiv(fee, uint64(burnBps), BpsDenominator)
}

// Add returns a+b or ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	z, overflow := new(uint256.Int).AddOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !z.IsUint64() {
		return 0, fmt.Errorf("%w: %d + %d", ErrOverflow, a, b)
	}
	return z.Uint64(), nil
}

// Sub returns a-b or ErrOverflow when b > a.
func Sub(a, b uint64) (uint64, error) {
	z, underflow := new(uint256.Int).SubOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if underflow {
		return 0, fmt.Errorf("%w: %d - %d", ErrOverflow, a, b)
	}
	return z.Uint64(), nil
}

// Mul returns a*b or ErrOverflow.
func Mul(a, b uint64) (uint64, error) {
	z, overflow := new(uint256.Int).MulOverflow(uint256.NewInt(a), uint256.NewInt(b))
	if overflow || !z.IsUint64() {
		return 0, fmt.Errorf("%w: %d * %d", ErrOverflow, a, b)
	}
	return z.Uint64(), nil
}

// MulDiv returns floor(a*b/d). Both the product and the division are checked.
func MulDiv(a, b, d uint64) (uint64, error) {
	if d == 0 {
		return 0, fmt.Errorf("%w: division by zero", ErrOverflow)
	}
	p, err := Mul(a, b)
	if err != nil {
		return 0, err
	}
	return p / d, nil
}
