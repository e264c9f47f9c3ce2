package quest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/juno-intents/quest-escrow/internal/fees"
)

func addr(b byte) common.Address {
	var a common.Address
	a[19] = b
	return a
}

var (
	authority = addr(0xA1)
	treasury  = addr(0xA2)
	creator   = addr(0xC1)
	alice     = addr(0xB1)
	bob       = addr(0xB2)
	carol     = addr(0xB3)
	mint      = addr(0xEE)
)

type harness struct {
	t     *testing.T
	ctx   context.Context
	store *MemoryStore
	eng   *Engine
	now   time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		t:     t,
		ctx:   context.Background(),
		store: NewMemoryStore(),
		now:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	eng, err := NewEngine(h.store, EngineConfig{Now: func() time.Time { return h.now }}, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	h.eng = eng
	return h
}

func (h *harness) init(feeBps, burnBps uint16) {
	h.t.Helper()
	if _, err := h.eng.Initialize(h.ctx, InitParams{
		Authority: authority,
		Treasury:  treasury,
		FeeBps:    feeBps,
		BurnBps:   burnBps,
	}); err != nil {
		h.t.Fatalf("Initialize: %v", err)
	}
}

func (h *harness) fund(a common.Address, amount uint64) {
	h.t.Helper()
	if err := h.store.Credit(h.ctx, a, mint, amount); err != nil {
		h.t.Fatalf("Credit: %v", err)
	}
}

func (h *harness) balance(a common.Address) uint64 {
	h.t.Helper()
	b, err := h.store.Balance(h.ctx, a, mint)
	if err != nil {
		h.t.Fatalf("Balance: %v", err)
	}
	return b
}

func (h *harness) advance(d time.Duration) { h.now = h.now.Add(d) }

func (h *harness) create(p CreateParams) Quest {
	h.t.Helper()
	if p.RewardMint == (common.Address{}) {
		p.RewardMint = mint
	}
	q, err := h.eng.CreateQuest(h.ctx, creator, p)
	if err != nil {
		h.t.Fatalf("CreateQuest: %v", err)
	}
	return q
}

func (h *harness) openQuest(reward uint64, maxClaimers uint8) Quest {
	h.t.Helper()
	h.fund(creator, reward)
	return h.create(CreateParams{RewardAmount: reward, Kind: KindOpen, MaxClaimers: maxClaimers})
}

func (h *harness) claim(questID uint64, who common.Address, stake uint64) Claim {
	h.t.Helper()
	h.fund(who, stake)
	c, err := h.eng.ClaimQuest(h.ctx, questID, who, stake)
	if err != nil {
		h.t.Fatalf("ClaimQuest(%s): %v", who.Hex(), err)
	}
	return c
}

func (h *harness) quest(id uint64) Quest {
	h.t.Helper()
	q, err := h.store.GetQuest(h.ctx, id)
	if err != nil {
		h.t.Fatalf("GetQuest: %v", err)
	}
	return q
}

func (h *harness) claimOf(ref ClaimRef) Claim {
	h.t.Helper()
	c, err := h.store.GetClaim(h.ctx, ref)
	if err != nil {
		h.t.Fatalf("GetClaim: %v", err)
	}
	return c
}

// checkConservation asserts that every quest's escrow holds exactly the reward
// plus open stakes while live, and nothing once terminal.
func (h *harness) checkConservation() {
	h.t.Helper()
	for id, q := range h.store.quests {
		var want uint64
		if !q.Status.Terminal() {
			want = q.RewardAmount
			var open uint8
			for _, c := range h.store.claims {
				if c.QuestID == id && c.Status.Open() {
					want += c.StakeAmount
					open++
				}
			}
			if open != q.CurrentClaimers {
				h.t.Fatalf("quest %d: open claims %d, CurrentClaimers %d", id, open, q.CurrentClaimers)
			}
		}
		if got := h.balance(q.Escrow); got != want {
			h.t.Fatalf("quest %d (%s): escrow %d want %d", id, q.Status, got, want)
		}
		if q.CurrentClaimers > q.MaxClaimers {
			h.t.Fatalf("quest %d: %d claimers exceed max %d", id, q.CurrentClaimers, q.MaxClaimers)
		}
		if !q.Status.Terminal() && (q.Status == StatusClaimed) != (q.CurrentClaimers == q.MaxClaimers) {
			h.t.Fatalf("quest %d: status %s with %d/%d claimers", id, q.Status, q.CurrentClaimers, q.MaxClaimers)
		}
	}
}

func (h *harness) eventCount() int {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()
	return len(h.store.events)
}

func TestEngine_ScenarioA_ClaimFillsQuest(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.init(500, 0)
	q := h.openQuest(1_000_000, 1)

	c := h.claim(q.ID, alice, 50_000)
	if c.Status != ClaimStatusActive {
		t.Fatalf("claim status: got %s", c.Status)
	}
	if got := h.quest(q.ID); got.Status != StatusClaimed || got.CurrentClaimers != 1 {
		t.Fatalf("quest after claim: status=%s claimers=%d", got.Status, got.CurrentClaimers)
	}
	if got := h.balance(q.Escrow); got != 1_050_000 {
		t.Fatalf("escrow: got %d want 1050000", got)
	}
	wantDeadline := h.now.Unix() + 24*3600
	if c.ProofDeadline != wantDeadline || c.ClaimedAt != h.now.Unix() {
		t.Fatalf("proof deadline: got %d want %d", c.ProofDeadline, wantDeadline)
	}
	h.checkConservation()
}

func TestEngine_ScenarioB_StakeTooLow(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.init(500, 0)
	q := h.openQuest(1_000_000, 1)

	h.fund(alice, 49_999)
	before := h.eventCount()
	if _, err := h.eng.ClaimQuest(h.ctx, q.ID, alice, 49_999); !errors.Is(err, ErrStakeTooLow) {
		t.Fatalf("expected ErrStakeTooLow, got %v", err)
	}
	if !errors.Is(ErrStakeTooLow, ErrValidation) {
		t.Fatalf("ErrStakeTooLow must be a validation error")
	}
	if h.eventCount() != before {
		t.Fatalf("failed operation emitted an event")
	}
	if got := h.balance(alice); got != 49_999 {
		t.Fatalf("alice balance changed: %d", got)
	}
	if got := h.quest(q.ID); got.CurrentClaimers != 0 || got.Status != StatusActive {
		t.Fatalf("quest mutated by failed claim: %+v", got)
	}
}

func TestEngine_ScenarioC_ApprovePaysClaimerAndTreasury(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.init(500, 2_000)
	q := h.openQuest(1_000_000, 1)
	c := h.claim(q.ID, alice, 50_000)

	if _, err := h.eng.SubmitProof(h.ctx, c.Ref(), alice, [32]byte{0x01}); err != nil {
		t.Fatalf("SubmitProof: %v", err)
	}
	if _, err := h.eng.ApproveCompletion(h.ctx, c.Ref(), bob); !errors.Is(err, ErrNotOracle) {
		t.Fatalf("expected ErrNotOracle, got %v", err)
	}

	ev, err := h.eng.ApproveCompletion(h.ctx, c.Ref(), authority)
	if err != nil {
		t.Fatalf("ApproveCompletion: %v", err)
	}
	if ev.NetReward != 950_000 || ev.Fee != 50_000 || ev.Stake != 50_000 || ev.Burn != 10_000 || ev.AutoApproved {
		t.Fatalf("completion event: %+v", ev)
	}
	if got := h.balance(alice); got != 1_000_000 {
		t.Fatalf("claimer balance: got %d want %d", got, 950_000+50_000)
	}
	if got := h.balance(treasury); got != 50_000 {
		t.Fatalf("treasury balance: got %d want 50000", got)
	}
	if got := h.balance(q.Escrow); got != 0 {
		t.Fatalf("escrow not drained: %d", got)
	}
	if got := h.quest(q.ID); got.Status != StatusCompleted {
		t.Fatalf("quest status: got %s", got.Status)
	}
	if got := h.claimOf(c.Ref()); got.Status != ClaimStatusApproved {
		t.Fatalf("claim status: got %s", got.Status)
	}
	h.checkConservation()
}

func TestEngine_ScenarioD_LateProofThenExpire(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.init(500, 0)
	q := h.openQuest(1_000_000, 1)
	c := h.claim(q.ID, alice, 50_000)

	// Exactly at the deadline the proof is still on time and the crank is not yet allowed.
	h.now = time.Unix(c.ProofDeadline, 0).UTC()
	if _, err := h.eng.ExpireClaim(h.ctx, c.Ref()); !errors.Is(err, ErrDeadlineNotReached) {
		t.Fatalf("expected ErrDeadlineNotReached at deadline, got %v", err)
	}

	h.advance(time.Second)
	if _, err := h.eng.SubmitProof(h.ctx, c.Ref(), alice, [32]byte{0x02}); !errors.Is(err, ErrProofDeadlinePassed) {
		t.Fatalf("expected ErrProofDeadlinePassed, got %v", err)
	}

	creatorBefore := h.balance(creator)
	got, err := h.eng.ExpireClaim(h.ctx, c.Ref())
	if err != nil {
		t.Fatalf("ExpireClaim: %v", err)
	}
	if got.Status != ClaimStatusExpired {
		t.Fatalf("claim status: got %s", got.Status)
	}
	if h.balance(creator) != creatorBefore+50_000 {
		t.Fatalf("stake not forfeited to creator")
	}
	qq := h.quest(q.ID)
	if qq.Status != StatusActive || qq.CurrentClaimers != 0 {
		t.Fatalf("quest after expiry: status=%s claimers=%d", qq.Status, qq.CurrentClaimers)
	}
	if h.balance(q.Escrow) != 1_000_000 {
		t.Fatalf("escrow after expiry: %d", h.balance(q.Escrow))
	}
	h.checkConservation()

	// Expiry is not repeatable.
	if _, err := h.eng.ExpireClaim(h.ctx, c.Ref()); !errors.Is(err, ErrClaimNotActive) {
		t.Fatalf("expected ErrClaimNotActive, got %v", err)
	}
}

func TestEngine_ScenarioE_RejectBranches(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name          string
		flagged       bool
		wantCreator   uint64
		wantClaimer   uint64
		wantToCreator uint64
	}{
		{name: "ordinary", flagged: false, wantCreator: 1_050_000, wantClaimer: 0, wantToCreator: 1_050_000},
		{name: "safety_flagged", flagged: true, wantCreator: 1_000_000, wantClaimer: 50_000, wantToCreator: 1_000_000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t)
			h.init(500, 0)
			q := h.openQuest(1_000_000, 1)
			c := h.claim(q.ID, alice, 50_000)
			if _, err := h.eng.SubmitProof(h.ctx, c.Ref(), alice, [32]byte{0x03}); err != nil {
				t.Fatalf("SubmitProof: %v", err)
			}

			ev, err := h.eng.RejectCompletion(h.ctx, c.Ref(), authority, tc.flagged)
			if err != nil {
				t.Fatalf("RejectCompletion: %v", err)
			}
			if ev.Reason != FailReasonRejected || ev.SafetyFlagged != tc.flagged || ev.ToCreator != tc.wantToCreator {
				t.Fatalf("failure event: %+v", ev)
			}
			if got := h.balance(creator); got != tc.wantCreator {
				t.Fatalf("creator: got %d want %d", got, tc.wantCreator)
			}
			if got := h.balance(alice); got != tc.wantClaimer {
				t.Fatalf("claimer: got %d want %d", got, tc.wantClaimer)
			}
			if got := h.balance(treasury); got != 0 {
				t.Fatalf("treasury paid on rejection: %d", got)
			}
			if got := h.quest(q.ID); got.Status != StatusFailed {
				t.Fatalf("quest status: got %s", got.Status)
			}
			if got := h.claimOf(c.Ref()); got.Status != ClaimStatusRejected {
				t.Fatalf("claim status: got %s", got.Status)
			}
			h.checkConservation()
		})
	}
}

func TestEngine_InitializeOnce(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	if _, err := h.eng.CreateQuest(h.ctx, creator, CreateParams{RewardMint: mint, RewardAmount: 1_000, Kind: KindOpen, MaxClaimers: 1}); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := h.eng.Initialize(h.ctx, InitParams{Authority: authority, Treasury: treasury, FeeBps: 10_001}); !errors.Is(err, ErrInvalidFeeConfig) {
		t.Fatalf("expected ErrInvalidFeeConfig for fee, got %v", err)
	}
	if _, err := h.eng.Initialize(h.ctx, InitParams{Authority: authority, Treasury: treasury, BurnBps: 10_001}); !errors.Is(err, ErrInvalidFeeConfig) {
		t.Fatalf("expected ErrInvalidFeeConfig for burn, got %v", err)
	}

	cfg, err := h.eng.Initialize(h.ctx, InitParams{Authority: authority, Treasury: treasury, FeeBps: 10_000, BurnBps: 10_000})
	if err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if cfg.QuestCount != 0 || cfg.ProofWindowHours != 24 || cfg.ReviewWindowHours != 24 {
		t.Fatalf("config defaults: %+v", cfg)
	}
	if _, err := h.eng.Initialize(h.ctx, InitParams{Authority: bob, Treasury: treasury}); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	got, err := h.store.GetConfig(h.ctx)
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if got.Authority != authority {
		t.Fatalf("config overwritten: %+v", got)
	}
}

func TestEngine_CreateQuestValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.init(500, 0)
	h.fund(creator, 10_000_000)
	now := h.now.Unix()

	cases := []struct {
		name string
		p    CreateParams
		want error
	}{
		{name: "reward_too_low", p: CreateParams{RewardAmount: 999, Kind: KindOpen, MaxClaimers: 1}, want: ErrRewardTooLow},
		{name: "zero_claimers", p: CreateParams{RewardAmount: 1_000, Kind: KindOpen, MaxClaimers: 0}, want: ErrInvalidMaxClaimers},
		{name: "too_many_claimers", p: CreateParams{RewardAmount: 1_000, Kind: KindOpen, MaxClaimers: 101}, want: ErrInvalidMaxClaimers},
		{name: "direct_without_target", p: CreateParams{RewardAmount: 1_000, Kind: KindDirect, MaxClaimers: 1}, want: ErrDirectQuestNeedsTarget},
		{name: "direct_self_target", p: CreateParams{RewardAmount: 1_000, Kind: KindDirect, Target: creator, MaxClaimers: 1}, want: ErrCannotTargetSelf},
		{name: "open_with_target", p: CreateParams{RewardAmount: 1_000, Kind: KindOpen, Target: alice, MaxClaimers: 1}, want: ErrOpenQuestHasTarget},
		{name: "expiry_now", p: CreateParams{RewardAmount: 1_000, Kind: KindOpen, MaxClaimers: 1, ExpiresAt: now}, want: ErrInvalidTimeLimit},
		{name: "expiry_past", p: CreateParams{RewardAmount: 1_000, Kind: KindOpen, MaxClaimers: 1, ExpiresAt: now - 1}, want: ErrInvalidTimeLimit},
		{name: "unknown_kind", p: CreateParams{RewardAmount: 1_000, MaxClaimers: 1}, want: ErrInvalidKind},
		{name: "insufficient_funds", p: CreateParams{RewardAmount: 10_000_001, Kind: KindOpen, MaxClaimers: 1}, want: ErrInsufficientFunds},
	}
	for _, tc := range cases {
		tc.p.RewardMint = mint
		if _, err := h.eng.CreateQuest(h.ctx, creator, tc.p); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}

	cfg, _ := h.store.GetConfig(h.ctx)
	if cfg.QuestCount != 0 {
		t.Fatalf("counter advanced by failed creates: %d", cfg.QuestCount)
	}
	if h.eventCount() != 1 {
		t.Fatalf("events: got %d want 1", h.eventCount())
	}
	if h.balance(creator) != 10_000_000 {
		t.Fatalf("creator balance changed: %d", h.balance(creator))
	}

	// Boundary values succeed.
	q0 := h.create(CreateParams{RewardAmount: 1_000, Kind: KindOpen, MaxClaimers: 100, ExpiresAt: now + 1})
	q1 := h.create(CreateParams{RewardAmount: 1_000, Kind: KindDirect, Target: alice, MaxClaimers: 1})
	if q0.ID != 0 || q1.ID != 1 {
		t.Fatalf("ids: got %d, %d", q0.ID, q1.ID)
	}
	if q0.Escrow == q1.Escrow {
		t.Fatalf("quests share an escrow")
	}
	h.checkConservation()
}

func TestEngine_ClaimGuards(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.init(500, 0)
	h.fund(creator, 2_000_000)
	direct := h.create(CreateParams{RewardAmount: 1_000_000, Kind: KindDirect, Target: alice, MaxClaimers: 1})
	expiring := h.create(CreateParams{RewardAmount: 1_000_000, Kind: KindOpen, MaxClaimers: 2, ExpiresAt: h.now.Unix() + 60})

	h.fund(bob, 100_000)
	if _, err := h.eng.ClaimQuest(h.ctx, direct.ID, bob, 50_000); !errors.Is(err, ErrNotTargetUser) {
		t.Fatalf("expected ErrNotTargetUser, got %v", err)
	}
	if _, err := h.eng.ClaimQuest(h.ctx, direct.ID, creator, 50_000); !errors.Is(err, ErrCannotClaimOwnQuest) {
		t.Fatalf("expected ErrCannotClaimOwnQuest, got %v", err)
	}
	if _, err := h.eng.ClaimQuest(h.ctx, 99, bob, 50_000); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	h.claim(direct.ID, alice, 50_000)
	if _, err := h.eng.ClaimQuest(h.ctx, direct.ID, alice, 50_000); !errors.Is(err, ErrQuestNotActive) {
		t.Fatalf("expected ErrQuestNotActive on full quest, got %v", err)
	}

	h.claim(expiring.ID, bob, 50_000)
	if _, err := h.eng.ClaimQuest(h.ctx, expiring.ID, bob, 50_000); !errors.Is(err, ErrClaimExists) {
		t.Fatalf("expected ErrClaimExists, got %v", err)
	}
	h.advance(60 * time.Second)
	h.fund(carol, 50_000)
	if _, err := h.eng.ClaimQuest(h.ctx, expiring.ID, carol, 50_000); !errors.Is(err, ErrQuestExpired) {
		t.Fatalf("expected ErrQuestExpired, got %v", err)
	}

	// Insufficient stake funds abort the whole claim.
	h.fund(creator, 1_000_000)
	open := h.create(CreateParams{RewardAmount: 1_000_000, Kind: KindOpen, MaxClaimers: 1})
	if _, err := h.eng.ClaimQuest(h.ctx, open.ID, carol, 60_000); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if got := h.quest(open.ID); got.CurrentClaimers != 0 {
		t.Fatalf("claimer count changed by failed claim")
	}
	if _, err := h.store.GetClaim(h.ctx, ClaimRef{QuestID: open.ID, Claimer: carol}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("claim persisted by failed claim: %v", err)
	}
	h.checkConservation()
}

func TestEngine_CancelQuest(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.init(500, 0)
	q := h.openQuest(5_000, 2)

	if _, err := h.eng.CancelQuest(h.ctx, q.ID, alice); !errors.Is(err, ErrNotCreator) {
		t.Fatalf("expected ErrNotCreator, got %v", err)
	}
	c := h.claim(q.ID, alice, 250)
	if _, err := h.eng.CancelQuest(h.ctx, q.ID, creator); !errors.Is(err, ErrQuestAlreadyClaimed) {
		t.Fatalf("expected ErrQuestAlreadyClaimed, got %v", err)
	}
	if _, err := h.eng.AbandonClaim(h.ctx, c.Ref(), alice); err != nil {
		t.Fatalf("AbandonClaim: %v", err)
	}

	got, err := h.eng.CancelQuest(h.ctx, q.ID, creator)
	if err != nil {
		t.Fatalf("CancelQuest: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("status: got %s", got.Status)
	}
	// Reward back plus the forfeited stake.
	if h.balance(creator) != 5_250 {
		t.Fatalf("creator balance: got %d want 5250", h.balance(creator))
	}
	h.checkConservation()

	if _, err := h.eng.CancelQuest(h.ctx, q.ID, creator); !errors.Is(err, ErrQuestNotActive) {
		t.Fatalf("expected ErrQuestNotActive, got %v", err)
	}
	if _, err := h.eng.ClaimQuest(h.ctx, q.ID, bob, 250); !errors.Is(err, ErrQuestNotActive) {
		t.Fatalf("expected ErrQuestNotActive on cancelled quest, got %v", err)
	}
}

func TestEngine_AbandonReopensSlot(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.init(500, 0)
	q := h.openQuest(1_000_000, 1)
	c := h.claim(q.ID, alice, 50_000)

	if _, err := h.eng.AbandonClaim(h.ctx, c.Ref(), bob); !errors.Is(err, ErrNotClaimer) {
		t.Fatalf("expected ErrNotClaimer, got %v", err)
	}
	got, err := h.eng.AbandonClaim(h.ctx, c.Ref(), alice)
	if err != nil {
		t.Fatalf("AbandonClaim: %v", err)
	}
	if got.Status != ClaimStatusAbandoned {
		t.Fatalf("claim status: %s", got.Status)
	}
	if qq := h.quest(q.ID); qq.Status != StatusActive || qq.CurrentClaimers != 0 {
		t.Fatalf("quest: status=%s claimers=%d", qq.Status, qq.CurrentClaimers)
	}
	if h.balance(creator) != 50_000 {
		t.Fatalf("creator did not receive forfeited stake")
	}
	if _, err := h.eng.AbandonClaim(h.ctx, c.Ref(), alice); !errors.Is(err, ErrClaimNotActive) {
		t.Fatalf("expected ErrClaimNotActive, got %v", err)
	}
	if _, err := h.eng.SubmitProof(h.ctx, c.Ref(), alice, [32]byte{1}); !errors.Is(err, ErrClaimNotActive) {
		t.Fatalf("expected ErrClaimNotActive on submit, got %v", err)
	}

	// The slot is free for someone else.
	h.claim(q.ID, bob, 50_000)
	if qq := h.quest(q.ID); qq.Status != StatusClaimed {
		t.Fatalf("quest did not refill: %s", qq.Status)
	}
	h.checkConservation()
}

func TestEngine_AutoApproveStrictlyAfterReview(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.init(1_000, 0)
	q := h.openQuest(10_000, 1)
	c := h.claim(q.ID, alice, 500)

	if _, err := h.eng.AutoApprove(h.ctx, c.Ref()); !errors.Is(err, ErrClaimNotSubmitted) {
		t.Fatalf("expected ErrClaimNotSubmitted, got %v", err)
	}

	h.advance(time.Hour)
	sub, err := h.eng.SubmitProof(h.ctx, c.Ref(), alice, [32]byte{0x09})
	if err != nil {
		t.Fatalf("SubmitProof: %v", err)
	}
	if sub.ReviewDeadline != sub.SubmittedAt+24*3600 {
		t.Fatalf("review deadline: %d submitted %d", sub.ReviewDeadline, sub.SubmittedAt)
	}

	h.now = time.Unix(sub.ReviewDeadline, 0).UTC()
	if _, err := h.eng.AutoApprove(h.ctx, c.Ref()); !errors.Is(err, ErrDeadlineNotReached) {
		t.Fatalf("expected ErrDeadlineNotReached at deadline, got %v", err)
	}
	h.advance(time.Second)
	ev, err := h.eng.AutoApprove(h.ctx, c.Ref())
	if err != nil {
		t.Fatalf("AutoApprove: %v", err)
	}
	if !ev.AutoApproved || ev.NetReward != 9_000 || ev.Fee != 1_000 {
		t.Fatalf("event: %+v", ev)
	}
	if h.balance(alice) != 9_500 || h.balance(treasury) != 1_000 {
		t.Fatalf("payouts: alice=%d treasury=%d", h.balance(alice), h.balance(treasury))
	}
	h.checkConservation()

	// Terminal: nothing else may move it.
	if _, err := h.eng.ApproveCompletion(h.ctx, c.Ref(), authority); !errors.Is(err, ErrClaimNotSubmitted) {
		t.Fatalf("expected ErrClaimNotSubmitted after completion, got %v", err)
	}
	if _, err := h.eng.AutoApprove(h.ctx, c.Ref()); !errors.Is(err, ErrClaimNotSubmitted) {
		t.Fatalf("expected ErrClaimNotSubmitted on repeat, got %v", err)
	}
	if _, err := h.eng.CancelQuest(h.ctx, q.ID, creator); !errors.Is(err, ErrQuestNotActive) {
		t.Fatalf("expected ErrQuestNotActive, got %v", err)
	}
}

func TestEngine_ZeroFeeSkipsTreasury(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.init(0, 0)
	q := h.openQuest(1_000, 1)
	c := h.claim(q.ID, alice, 50)
	if _, err := h.eng.SubmitProof(h.ctx, c.Ref(), alice, [32]byte{}); err != nil {
		t.Fatalf("SubmitProof: %v", err)
	}
	ev, err := h.eng.ApproveCompletion(h.ctx, c.Ref(), authority)
	if err != nil {
		t.Fatalf("ApproveCompletion: %v", err)
	}
	if ev.Fee != 0 || ev.NetReward != 1_000 {
		t.Fatalf("event: %+v", ev)
	}
	if h.balance(alice) != 1_050 || h.balance(treasury) != 0 {
		t.Fatalf("payouts: alice=%d treasury=%d", h.balance(alice), h.balance(treasury))
	}
}

func TestEngine_SettlementVoidsSiblingClaims(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.init(500, 0)
	q := h.openQuest(100_000, 3)
	a := h.claim(q.ID, alice, 5_000)
	h.claim(q.ID, bob, 6_000)
	h.claim(q.ID, carol, 7_000)
	if got := h.quest(q.ID); got.Status != StatusClaimed {
		t.Fatalf("quest not full: %s", got.Status)
	}
	if _, err := h.eng.SubmitProof(h.ctx, ClaimRef{QuestID: q.ID, Claimer: carol}, carol, [32]byte{7}); err != nil {
		t.Fatalf("SubmitProof carol: %v", err)
	}
	if _, err := h.eng.SubmitProof(h.ctx, a.Ref(), alice, [32]byte{1}); err != nil {
		t.Fatalf("SubmitProof alice: %v", err)
	}

	ev, err := h.eng.ApproveCompletion(h.ctx, a.Ref(), authority)
	if err != nil {
		t.Fatalf("ApproveCompletion: %v", err)
	}
	if len(ev.Voided) != 2 {
		t.Fatalf("voided: %+v", ev.Voided)
	}
	if h.balance(bob) != 6_000 || h.balance(carol) != 7_000 {
		t.Fatalf("sibling stakes not returned: bob=%d carol=%d", h.balance(bob), h.balance(carol))
	}
	for _, who := range []common.Address{bob, carol} {
		if got := h.claimOf(ClaimRef{QuestID: q.ID, Claimer: who}); got.Status != ClaimStatusVoided {
			t.Fatalf("%s: status %s", who.Hex(), got.Status)
		}
	}
	if h.balance(q.Escrow) != 0 {
		t.Fatalf("escrow not drained: %d", h.balance(q.Escrow))
	}
	if _, err := h.eng.ApproveCompletion(h.ctx, ClaimRef{QuestID: q.ID, Claimer: carol}, authority); !errors.Is(err, ErrClaimNotSubmitted) {
		t.Fatalf("voided claim approved: %v", err)
	}
	h.checkConservation()
}

func TestEngine_EventsOnePerOperation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.init(500, 0)
	q := h.openQuest(1_000_000, 1)
	c := h.claim(q.ID, alice, 50_000)
	if _, err := h.eng.SubmitProof(h.ctx, c.Ref(), alice, [32]byte{0xAB}); err != nil {
		t.Fatalf("SubmitProof: %v", err)
	}
	// Rejected calls leave no trace.
	_, _ = h.eng.ApproveCompletion(h.ctx, c.Ref(), bob)
	_, _ = h.eng.ExpireClaim(h.ctx, c.Ref())
	if _, err := h.eng.ApproveCompletion(h.ctx, c.Ref(), authority); err != nil {
		t.Fatalf("ApproveCompletion: %v", err)
	}

	recs, err := h.store.Unpublished(h.ctx, 100)
	if err != nil {
		t.Fatalf("Unpublished: %v", err)
	}
	want := []string{EventProtocolInitialized, EventQuestCreated, EventQuestClaimed, EventProofSubmitted, EventQuestCompleted}
	if len(recs) != len(want) {
		t.Fatalf("events: got %d want %d", len(recs), len(want))
	}
	for i, rec := range recs {
		if rec.Name != want[i] || rec.Seq != uint64(i+1) {
			t.Fatalf("event %d: got %s seq %d", i, rec.Name, rec.Seq)
		}
		if _, err := DecodeEvent(rec); err != nil {
			t.Fatalf("DecodeEvent(%s): %v", rec.Name, err)
		}
		if i > 0 && (!rec.HasQuest || rec.QuestID != q.ID) {
			t.Fatalf("event %s not keyed to quest", rec.Name)
		}
	}
	ev, _ := DecodeEvent(recs[3])
	if ps, ok := ev.(ProofSubmitted); !ok || ps.ProofHash != (common.Hash{0xAB}) {
		t.Fatalf("decoded ProofSubmitted: %+v", ev)
	}

	if err := h.store.MarkPublished(h.ctx, []uint64{1, 2, 3}); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}
	recs, _ = h.store.Unpublished(h.ctx, 100)
	if len(recs) != 2 || recs[0].Seq != 4 {
		t.Fatalf("unpublished after mark: %+v", recs)
	}
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want string
	}{
		{ErrRewardTooLow, "reward_too_low"},
		{ErrQuestFull, "quest_full"},
		{ErrNotOracle, "not_oracle"},
		{checked(fees.ErrOverflow), "overflow"},
		{ErrNotFound, "not_found"},
		{ErrClaimExists, "claim_exists"},
		{errors.New("boom"), "internal"},
	}
	for _, tc := range cases {
		if got := CodeOf(tc.err); got != tc.want {
			t.Fatalf("CodeOf(%v): got %q want %q", tc.err, got, tc.want)
		}
	}
	if !errors.Is(checked(fees.ErrOverflow), ErrArithmetic) {
		t.Fatalf("overflow must be an arithmetic error")
	}
}

type recordingObserver struct {
	ops   []string
	codes []string
}

func (r *recordingObserver) ObserveOperation(op, code string, _ time.Duration) {
	r.ops = append(r.ops, op)
	r.codes = append(r.codes, code)
}

func TestEngine_ObserverSeesEveryOutcome(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	obs := &recordingObserver{}
	eng, err := NewEngine(store, EngineConfig{Observer: obs}, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()

	if _, err := eng.Initialize(ctx, InitParams{Authority: authority, Treasury: treasury, FeeBps: 250}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if _, err := eng.Initialize(ctx, InitParams{Authority: authority, Treasury: treasury, FeeBps: 250}); err == nil {
		t.Fatalf("expected second Initialize to fail")
	}

	if len(obs.ops) != 2 || obs.ops[0] != "initialize" || obs.ops[1] != "initialize" {
		t.Fatalf("ops: %v", obs.ops)
	}
	if obs.codes[0] != "" || obs.codes[1] != "already_initialized" {
		t.Fatalf("codes: %v", obs.codes)
	}
}
