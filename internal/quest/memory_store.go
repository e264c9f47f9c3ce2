package quest

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/juno-intents/quest-escrow/internal/fees"
)

type balanceKey struct {
	account common.Address
	mint    common.Address
}

type storedEvent struct {
	rec       EventRecord
	published bool
}

// MemoryStore is an in-process Store. InTx holds the store lock for the whole
// callback and buffers writes in an overlay that is merged only on success.
type MemoryStore struct {
	mu sync.Mutex

	config   *Config
	quests   map[uint64]Quest
	claims   map[ClaimRef]Claim
	order    []ClaimRef
	balances map[balanceKey]uint64
	owners   map[common.Address]common.Address
	events   []storedEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quests:   make(map[uint64]Quest),
		claims:   make(map[ClaimRef]Claim),
		balances: make(map[balanceKey]uint64),
		owners:   make(map[common.Address]common.Address),
	}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		s:        s,
		quests:   make(map[uint64]Quest),
		claims:   make(map[ClaimRef]Claim),
		balances: make(map[balanceKey]uint64),
		owners:   make(map[common.Address]common.Address),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

func (s *MemoryStore) Credit(_ context.Context, account, mint common.Address, amount uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.owners[account]; ok {
		return fmt.Errorf("%w: cannot credit escrow account %s", ErrUnauthorizedTransfer, account.Hex())
	}
	k := balanceKey{account: account, mint: mint}
	next, err := fees.Add(s.balances[k], amount)
	if err != nil {
		return fmt.Errorf("%w: credit %s", ErrOverflow, account.Hex())
	}
	s.balances[k] = next
	return nil
}

func (s *MemoryStore) GetConfig(_ context.Context) (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config == nil {
		return Config{}, ErrNotInitialized
	}
	return *s.config, nil
}

func (s *MemoryStore) GetQuest(_ context.Context, id uint64) (Quest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.quests[id]
	if !ok {
		return Quest{}, ErrNotFound
	}
	return q, nil
}

func (s *MemoryStore) GetClaim(_ context.Context, ref ClaimRef) (Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.claims[ref]
	if !ok {
		return Claim{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) ListQuests(_ context.Context, f QuestFilter) ([]Quest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f.Limit <= 0 {
		return nil, nil
	}

	ids := make([]uint64, 0, len(s.quests))
	for id := range s.quests {
		if id >= f.FromID {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)

	out := make([]Quest, 0, min(f.Limit, len(ids)))
	for _, id := range ids {
		q := s.quests[id]
		if f.Status != StatusUnknown && q.Status != f.Status {
			continue
		}
		if f.Creator != (common.Address{}) && q.Creator != f.Creator {
			continue
		}
		out = append(out, q)
		if len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ListClaimsByClaimer(_ context.Context, claimer common.Address, limit int) ([]Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return nil, nil
	}
	var out []Claim
	for i := len(s.order) - 1; i >= 0; i-- {
		ref := s.order[i]
		if ref.Claimer != claimer {
			continue
		}
		out = append(out, s.claims[ref])
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) ListExpirable(_ context.Context, now int64, limit int) ([]ClaimRef, error) {
	return s.listDue(limit, func(c Claim) (int64, bool) {
		return c.ProofDeadline, c.Status == ClaimStatusActive && now > c.ProofDeadline
	})
}

func (s *MemoryStore) ListAutoApprovable(_ context.Context, now int64, limit int) ([]ClaimRef, error) {
	return s.listDue(limit, func(c Claim) (int64, bool) {
		return c.ReviewDeadline, c.Status == ClaimStatusSubmitted && c.ReviewDeadline != 0 && now > c.ReviewDeadline
	})
}

// listDue returns refs of claims selected by due, oldest deadline first.
func (s *MemoryStore) listDue(limit int, due func(Claim) (int64, bool)) ([]ClaimRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return nil, nil
	}

	type item struct {
		ref ClaimRef
		at  int64
	}
	var items []item
	for _, ref := range s.order {
		if at, ok := due(s.claims[ref]); ok {
			items = append(items, item{ref: ref, at: at})
		}
	}
	slices.SortStableFunc(items, func(a, b item) int {
		switch {
		case a.at < b.at:
			return -1
		case a.at > b.at:
			return 1
		default:
			return 0
		}
	})
	if len(items) > limit {
		items = items[:limit]
	}
	out := make([]ClaimRef, 0, len(items))
	for _, it := range items {
		out = append(out, it.ref)
	}
	return out, nil
}

func (s *MemoryStore) Balance(_ context.Context, account, mint common.Address) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.balances[balanceKey{account: account, mint: mint}], nil
}

func (s *MemoryStore) Unpublished(_ context.Context, limit int) ([]EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		return nil, nil
	}
	var out []EventRecord
	for _, e := range s.events {
		if e.published {
			continue
		}
		rec := e.rec
		rec.Payload = append([]byte(nil), rec.Payload...)
		out = append(out, rec)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkPublished(_ context.Context, seqs []uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seq := range seqs {
		// Seq is 1-based and dense.
		if seq == 0 || seq > uint64(len(s.events)) {
			return ErrNotFound
		}
	}
	for _, seq := range seqs {
		s.events[seq-1].published = true
	}
	return nil
}

type memTx struct {
	s *MemoryStore

	config    *Config
	quests    map[uint64]Quest
	claims    map[ClaimRef]Claim
	newClaims []ClaimRef
	balances  map[balanceKey]uint64
	owners    map[common.Address]common.Address
	events    []EventRecord
}

func (t *memTx) Config(_ context.Context) (Config, error) {
	if t.config != nil {
		return *t.config, nil
	}
	if t.s.config == nil {
		return Config{}, ErrNotInitialized
	}
	return *t.s.config, nil
}

func (t *memTx) LockConfig(ctx context.Context) (Config, error) {
	return t.Config(ctx)
}

func (t *memTx) CreateConfig(_ context.Context, cfg Config) error {
	if t.config != nil || t.s.config != nil {
		return ErrAlreadyInitialized
	}
	t.config = &cfg
	return nil
}

func (t *memTx) PutConfig(ctx context.Context, cfg Config) error {
	if _, err := t.Config(ctx); err != nil {
		return err
	}
	t.config = &cfg
	return nil
}

func (t *memTx) Quest(_ context.Context, id uint64) (Quest, error) {
	if q, ok := t.quests[id]; ok {
		return q, nil
	}
	q, ok := t.s.quests[id]
	if !ok {
		return Quest{}, ErrNotFound
	}
	return q, nil
}

func (t *memTx) InsertQuest(ctx context.Context, q Quest) error {
	if _, err := t.Quest(ctx, q.ID); err == nil {
		return ErrQuestExists
	}
	t.quests[q.ID] = q
	return nil
}

func (t *memTx) PutQuest(ctx context.Context, q Quest) error {
	if _, err := t.Quest(ctx, q.ID); err != nil {
		return err
	}
	t.quests[q.ID] = q
	return nil
}

func (t *memTx) Claim(_ context.Context, ref ClaimRef) (Claim, error) {
	if c, ok := t.claims[ref]; ok {
		return c, nil
	}
	c, ok := t.s.claims[ref]
	if !ok {
		return Claim{}, ErrNotFound
	}
	return c, nil
}

func (t *memTx) InsertClaim(ctx context.Context, c Claim) error {
	if _, err := t.Claim(ctx, c.Ref()); err == nil {
		return ErrClaimExists
	}
	t.claims[c.Ref()] = c
	t.newClaims = append(t.newClaims, c.Ref())
	return nil
}

func (t *memTx) PutClaim(ctx context.Context, c Claim) error {
	if _, err := t.Claim(ctx, c.Ref()); err != nil {
		return err
	}
	t.claims[c.Ref()] = c
	return nil
}

func (t *memTx) OpenClaims(_ context.Context, questID uint64) ([]Claim, error) {
	seen := make(map[ClaimRef]bool)
	var out []Claim
	add := func(c Claim) {
		if seen[c.Ref()] {
			return
		}
		seen[c.Ref()] = true
		if c.QuestID == questID && c.Status.Open() {
			out = append(out, c)
		}
	}
	for _, c := range t.claims {
		add(c)
	}
	for _, ref := range t.s.order {
		if ref.QuestID == questID {
			add(t.s.claims[ref])
		}
	}
	slices.SortFunc(out, func(a, b Claim) int {
		return bytes.Compare(a.Claimer[:], b.Claimer[:])
	})
	return out, nil
}

func (t *memTx) owner(account common.Address) common.Address {
	if o, ok := t.owners[account]; ok {
		return o
	}
	if o, ok := t.s.owners[account]; ok {
		return o
	}
	return account
}

func (t *memTx) balance(k balanceKey) uint64 {
	if v, ok := t.balances[k]; ok {
		return v
	}
	return t.s.balances[k]
}

func (t *memTx) OpenEscrow(_ context.Context, escrow, owner common.Address) error {
	if t.owner(escrow) != escrow {
		return fmt.Errorf("%w: escrow %s already open", ErrInvalidConfig, escrow.Hex())
	}
	t.owners[escrow] = owner
	return nil
}

func (t *memTx) Move(_ context.Context, tr Transfer) error {
	if tr.Amount == 0 {
		return nil
	}
	if t.owner(tr.From) != tr.AuthorizedBy {
		return ErrUnauthorizedTransfer
	}

	from := balanceKey{account: tr.From, mint: tr.Mint}
	to := balanceKey{account: tr.To, mint: tr.Mint}

	fb := t.balance(from)
	if fb < tr.Amount {
		return ErrInsufficientFunds
	}
	t.balances[from] = fb - tr.Amount

	tb, err := fees.Add(t.balance(to), tr.Amount)
	if err != nil {
		return fmt.Errorf("%w: credit %s", ErrOverflow, tr.To.Hex())
	}
	t.balances[to] = tb
	return nil
}

func (t *memTx) Append(_ context.Context, rec EventRecord) (uint64, error) {
	rec.Seq = uint64(len(t.s.events) + len(t.events) + 1)
	rec.Payload = append([]byte(nil), rec.Payload...)
	t.events = append(t.events, rec)
	return rec.Seq, nil
}

func (t *memTx) commit() {
	s := t.s
	if t.config != nil {
		cfg := *t.config
		s.config = &cfg
	}
	for id, q := range t.quests {
		s.quests[id] = q
	}
	for ref, c := range t.claims {
		s.claims[ref] = c
	}
	s.order = append(s.order, t.newClaims...)
	for k, v := range t.balances {
		s.balances[k] = v
	}
	for k, v := range t.owners {
		s.owners[k] = v
	}
	for _, rec := range t.events {
		s.events = append(s.events, storedEvent{rec: rec})
	}
}
