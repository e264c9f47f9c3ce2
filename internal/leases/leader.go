package leases

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// LeaderElector gives "single active worker" semantics on top of a Store.
// Call Tick once per work cycle; only do work when it reports leadership.
type LeaderElector struct {
	store  Store
	name   string
	holder string
	ttl    time.Duration

	held *Lease
}

func NewLeaderElector(store Store, name, holder string, ttl time.Duration) (*LeaderElector, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidInput)
	}
	if err := validate(name, holder, ttl); err != nil {
		return nil, err
	}
	return &LeaderElector{store: store, name: name, holder: holder, ttl: ttl}, nil
}

// Tick renews the held lease or tries to acquire it. The returned term
// increases every time leadership changes hands.
func (l *LeaderElector) Tick(ctx context.Context) (bool, uint64, error) {
	if l.held != nil {
		renewed, err := l.store.Renew(ctx, *l.held, l.ttl)
		switch {
		case err == nil:
			l.held = &renewed
			return true, renewed.Term, nil
		case errors.Is(err, ErrLost), errors.Is(err, ErrNotFound):
			l.held = nil
		default:
			return false, 0, err
		}
	}

	got, ok, err := l.store.TryAcquire(ctx, l.name, l.holder, l.ttl)
	if err != nil {
		return false, 0, err
	}
	if !ok {
		return false, 0, nil
	}
	l.held = &got
	return true, got.Term, nil
}

// Resign releases leadership if held.
func (l *LeaderElector) Resign(ctx context.Context) error {
	if l.held == nil {
		return nil
	}
	err := l.store.Release(ctx, *l.held)
	l.held = nil
	return err
}

// DefaultHolder names this process as hostname-pid.
func DefaultHolder(prefix string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = prefix
	}
	return host + "-" + strconv.Itoa(os.Getpid())
}
