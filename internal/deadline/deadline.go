package deadline

import (
	"errors"
	"fmt"
	"math"
)

const (
	SecondsPerHour = 3600

	// DefaultProofWindowHours is how long a claimer has to submit proof after claiming.
	DefaultProofWindowHours = 24

	// DefaultReviewWindowHours is how long the arbiter has to answer a submitted proof
	// before anyone may auto-approve it.
	DefaultReviewWindowHours = 24
)

var ErrOverflow = errors.New("deadline: timestamp overflow")

// After returns base + hours, in unix seconds.
func After(base int64, hours uint32) (int64, error) {
	// hours*3600 always fits in int64 for a uint32 hour count.
	d := int64(hours) * SecondsPerHour
	if base > math.MaxInt64-d {
		return 0, fmt.Errorf("%w: %d + %dh", ErrOverflow, base, hours)
	}
	return base + d, nil
}

// ProofDeadline is the last second at which proof may be submitted for a claim
// created at claimedAt.
func ProofDeadline(claimedAt int64, windowHours uint32) (int64, error) {
	return After(claimedAt, windowHours)
}

// ReviewDeadline is the last second the arbiter may act on a proof submitted at submittedAt.
func ReviewDeadline(submittedAt int64, windowHours uint32) (int64, error) {
	return After(submittedAt, windowHours)
}

// QuestExpiry converts a relative time limit into an absolute quest expiry.
// A zero limit means the quest never expires and yields 0.
func QuestExpiry(now int64, limitHours uint32) (int64, error) {
	if limitHours == 0 {
		return 0, nil
	}
	return After(now, limitHours)
}

// Elapsed reports whether now is strictly past deadline.
func Elapsed(now, deadline int64) bool {
	return now > deadline
}
