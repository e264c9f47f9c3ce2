package leases

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps leases in process. Terms survive Release so a released
// name never reissues an old term.
type MemoryStore struct {
	mu     sync.Mutex
	now    func() time.Time
	leases map[string]Lease
	terms  map[string]uint64
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:    now,
		leases: make(map[string]Lease),
		terms:  make(map[string]uint64),
	}
}

func (s *MemoryStore) TryAcquire(_ context.Context, name, holder string, ttl time.Duration) (Lease, bool, error) {
	if err := validate(name, holder, ttl); err != nil {
		return Lease{}, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	l, ok := s.leases[name]
	switch {
	case ok && l.Held(now) && l.Holder != holder:
		return l, false, nil
	case ok && l.Held(now):
		l.ExpiresAt = now.Add(ttl)
	default:
		s.terms[name]++
		l = Lease{Name: name, Holder: holder, Term: s.terms[name], ExpiresAt: now.Add(ttl)}
	}
	s.leases[name] = l
	return l, true, nil
}

func (s *MemoryStore) Renew(_ context.Context, l Lease, ttl time.Duration) (Lease, error) {
	if err := validate(l.Name, l.Holder, ttl); err != nil {
		return Lease{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leases[l.Name]
	if !ok {
		return Lease{}, ErrNotFound
	}
	if cur.Holder != l.Holder || cur.Term != l.Term {
		return Lease{}, ErrLost
	}
	// An expired lease nobody has taken yet may still be renewed by its holder.
	cur.ExpiresAt = s.now().Add(ttl)
	s.leases[l.Name] = cur
	return cur, nil
}

func (s *MemoryStore) Release(_ context.Context, l Lease) error {
	if l.Name == "" || l.Holder == "" {
		return ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.leases[l.Name]
	if !ok || cur.Term != l.Term {
		return nil
	}
	if cur.Holder != l.Holder {
		return ErrLost
	}
	delete(s.leases, l.Name)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, name string) (Lease, error) {
	if name == "" {
		return Lease{}, ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.leases[name]
	if !ok {
		return Lease{}, ErrNotFound
	}
	return l, nil
}
