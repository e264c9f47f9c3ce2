package leases

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidInput = errors.New("leases: invalid input")
	ErrNotFound     = errors.New("leases: not found")
	// ErrLost means the caller's term is no longer current.
	ErrLost = errors.New("leases: lease lost")
)

// Lease is a named, expiring, fenced ownership record.
//
// Term increases every time the lease changes hands, so a holder that slept
// through its expiry cannot renew over a successor.
type Lease struct {
	Name      string
	Holder    string
	Term      uint64
	ExpiresAt time.Time
}

// Held reports whether l is unexpired at now.
func (l Lease) Held(now time.Time) bool {
	return l.ExpiresAt.After(now)
}

// Store provides a fenced compare-and-swap lease API.
//
// Semantics:
//   - TryAcquire succeeds if the lease is absent, expired, or already held by holder.
//     A change of holder bumps Term; re-acquiring an unexpired own lease keeps it.
//   - Renew succeeds only if l.Holder and l.Term still match the stored lease.
//   - Release is idempotent if the lease is absent or already moved to a later term.
type Store interface {
	TryAcquire(ctx context.Context, name, holder string, ttl time.Duration) (Lease, bool, error)
	Renew(ctx context.Context, l Lease, ttl time.Duration) (Lease, error)
	Release(ctx context.Context, l Lease) error
	Get(ctx context.Context, name string) (Lease, error)
}

func validate(name, holder string, ttl time.Duration) error {
	if name == "" || holder == "" || ttl <= 0 {
		return fmt.Errorf("%w: name/holder must be non-empty and ttl must be > 0", ErrInvalidInput)
	}
	return nil
}
