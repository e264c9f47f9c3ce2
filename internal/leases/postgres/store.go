package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juno-intents/quest-escrow/internal/leases"
)

var ErrInvalidConfig = errors.New("leases/postgres: invalid config")

type Store struct {
	pool *pgxpool.Pool
}

var _ leases.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("%w: nil pool", ErrInvalidConfig)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	_, err := s.pool.Exec(ctx, schemaSQL)
	if err != nil {
		return fmt.Errorf("leases/postgres: ensure schema: %w", err)
	}
	return nil
}

func (s *Store) TryAcquire(ctx context.Context, name, holder string, ttl time.Duration) (leases.Lease, bool, error) {
	if s == nil || s.pool == nil {
		return leases.Lease{}, false, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if err := validateInput(name, holder, ttl); err != nil {
		return leases.Lease{}, false, err
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO quest_leases (name, holder, term, expires_at, created_at, updated_at)
		VALUES ($1, $2, 1, now() + ($3::bigint * interval '1 millisecond'), now(), now())
		ON CONFLICT (name) DO UPDATE
		SET holder = EXCLUDED.holder,
			term = CASE
				WHEN quest_leases.holder = EXCLUDED.holder AND quest_leases.expires_at > now() THEN quest_leases.term
				ELSE quest_leases.term + 1
			END,
			expires_at = EXCLUDED.expires_at,
			updated_at = now()
		WHERE quest_leases.expires_at <= now() OR quest_leases.holder = EXCLUDED.holder OR quest_leases.holder = ''
		RETURNING name, holder, term, expires_at
	`, name, holder, ttlMilliseconds(ttl))
	l, err := scanLease(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Held by someone else; report the current lease.
			cur, gerr := s.Get(ctx, name)
			if gerr != nil {
				return leases.Lease{}, false, gerr
			}
			return cur, false, nil
		}
		return leases.Lease{}, false, fmt.Errorf("leases/postgres: try acquire: %w", err)
	}
	return l, true, nil
}

func (s *Store) Renew(ctx context.Context, l leases.Lease, ttl time.Duration) (leases.Lease, error) {
	if s == nil || s.pool == nil {
		return leases.Lease{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if err := validateInput(l.Name, l.Holder, ttl); err != nil {
		return leases.Lease{}, err
	}
	if l.Term > math.MaxInt64 {
		return leases.Lease{}, leases.ErrLost
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE quest_leases
		SET expires_at = now() + ($4::bigint * interval '1 millisecond'),
			updated_at = now()
		WHERE name = $1 AND holder = $2 AND term = $3
		RETURNING name, holder, term, expires_at
	`, l.Name, l.Holder, int64(l.Term), ttlMilliseconds(ttl))
	out, err := scanLease(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, gerr := s.Get(ctx, l.Name); gerr != nil {
				return leases.Lease{}, gerr
			}
			return leases.Lease{}, leases.ErrLost
		}
		return leases.Lease{}, fmt.Errorf("leases/postgres: renew: %w", err)
	}
	return out, nil
}

func (s *Store) Release(ctx context.Context, l leases.Lease) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if l.Name == "" || l.Holder == "" {
		return leases.ErrInvalidInput
	}
	if l.Term > math.MaxInt64 {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		UPDATE quest_leases
		SET holder = '', expires_at = now(), updated_at = now()
		WHERE name = $1 AND holder = $2 AND term = $3
	`, l.Name, l.Holder, int64(l.Term))
	if err != nil {
		return fmt.Errorf("leases/postgres: release: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, name string) (leases.Lease, error) {
	if s == nil || s.pool == nil {
		return leases.Lease{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if name == "" {
		return leases.Lease{}, leases.ErrInvalidInput
	}

	l, err := scanLease(s.pool.QueryRow(ctx, `
		SELECT name, holder, term, expires_at
		FROM quest_leases
		WHERE name = $1 AND holder <> ''
	`, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leases.Lease{}, leases.ErrNotFound
		}
		return leases.Lease{}, fmt.Errorf("leases/postgres: get: %w", err)
	}
	return l, nil
}

func scanLease(row pgx.Row) (leases.Lease, error) {
	var (
		l    leases.Lease
		term int64
	)
	if err := row.Scan(&l.Name, &l.Holder, &term, &l.ExpiresAt); err != nil {
		return leases.Lease{}, err
	}
	if term < 1 {
		return leases.Lease{}, fmt.Errorf("leases/postgres: invalid term %d in db", term)
	}
	l.Term = uint64(term)
	return l, nil
}

func ttlMilliseconds(ttl time.Duration) int64 {
	ms := ttl.Milliseconds()
	if ms <= 0 {
		return 1
	}
	return ms
}

func validateInput(name, holder string, ttl time.Duration) error {
	if name == "" || holder == "" || ttl <= 0 {
		return leases.ErrInvalidInput
	}
	return nil
}
