package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/juno-intents/quest-escrow/internal/quest"
)

var ErrInvalidConfig = errors.New("quest/postgres: invalid config")

// eventLockKey serializes outbox appends so seq order matches commit order.
const eventLockKey int64 = 0x7175657374657674

const (
	maxTxAttempts = 4

	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Store struct {
	pool *pgxpool.Pool
}

var _ quest.Store = (*Store)(nil)

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
		return fmt.Errorf("quest/postgres: ensure schema: %w", err)
	}
	return nil
}

// InTx runs fn in a transaction. A transaction that Postgres aborts as a
// deadlock victim or serialization failure is retried from the start.
func (s *Store) InTx(ctx context.Context, fn func(tx quest.Tx) error) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}

	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.inTx(ctx, fn)
		if err == nil || !retryableTxError(err) || ctx.Err() != nil {
			return err
		}
	}
	return err
}

func (s *Store) inTx(ctx context.Context, fn func(tx quest.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("quest/postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("quest/postgres: commit: %w", err)
	}
	return nil
}

func retryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgDeadlockDetected || pgErr.Code == pgSerializationFailure
}

func (s *Store) Credit(ctx context.Context, account, mint common.Address, amount uint64) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if amount > math.MaxInt64 {
		return fmt.Errorf("%w: credit amount too large", quest.ErrOverflow)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("quest/postgres: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var n int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM ledger_owners WHERE account = $1`, account[:]).Scan(&n); err != nil {
		return fmt.Errorf("quest/postgres: credit owner lookup: %w", err)
	}
	if n != 0 {
		return fmt.Errorf("%w: cannot credit escrow account %s", quest.ErrUnauthorizedTransfer, account.Hex())
	}
	if err := credit(ctx, tx, account, mint, amount); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("quest/postgres: commit: %w", err)
	}
	return nil
}

func (s *Store) GetConfig(ctx context.Context) (quest.Config, error) {
	if s == nil || s.pool == nil {
		return quest.Config{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	return getConfig(ctx, s.pool, "")
}

func (s *Store) GetQuest(ctx context.Context, id uint64) (quest.Quest, error) {
	if s == nil || s.pool == nil {
		return quest.Quest{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	return getQuest(ctx, s.pool, id, "")
}

func (s *Store) GetClaim(ctx context.Context, ref quest.ClaimRef) (quest.Claim, error) {
	if s == nil || s.pool == nil {
		return quest.Claim{}, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	return getClaim(ctx, s.pool, ref, "")
}

func (s *Store) ListQuests(ctx context.Context, f quest.QuestFilter) ([]quest.Quest, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if f.Limit <= 0 {
		return nil, nil
	}
	if f.FromID > math.MaxInt64 {
		return nil, nil
	}

	var creator []byte
	if f.Creator != (common.Address{}) {
		creator = f.Creator[:]
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+questColumns+`
		FROM quests
		WHERE
			id >= $1
			AND ($2 = 0 OR status = $2)
			AND ($3::bytea IS NULL OR creator = $3)
		ORDER BY id ASC
		LIMIT $4
	`, int64(f.FromID), int16(f.Status), creator, f.Limit)
	if err != nil {
		return nil, fmt.Errorf("quest/postgres: list quests: %w", err)
	}
	defer rows.Close()

	out := make([]quest.Quest, 0, f.Limit)
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("quest/postgres: list quests rows: %w", err)
	}
	return out, nil
}

func (s *Store) ListClaimsByClaimer(ctx context.Context, claimer common.Address, limit int) ([]quest.Claim, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if limit <= 0 {
		return nil, nil
	}
	return queryClaims(ctx, s.pool, `
		SELECT `+claimColumns+`
		FROM quest_claims
		WHERE claimer = $1
		ORDER BY seq DESC
		LIMIT $2
	`, claimer[:], limit)
}

func (s *Store) ListExpirable(ctx context.Context, now int64, limit int) ([]quest.ClaimRef, error) {
	return s.listDue(ctx, `
		SELECT quest_id, claimer
		FROM quest_claims
		WHERE status = $1 AND proof_deadline < $2
		ORDER BY proof_deadline ASC, seq ASC
		LIMIT $3
	`, quest.ClaimStatusActive, now, limit)
}

func (s *Store) ListAutoApprovable(ctx context.Context, now int64, limit int) ([]quest.ClaimRef, error) {
	return s.listDue(ctx, `
		SELECT quest_id, claimer
		FROM quest_claims
		WHERE status = $1 AND review_deadline <> 0 AND review_deadline < $2
		ORDER BY review_deadline ASC, seq ASC
		LIMIT $3
	`, quest.ClaimStatusSubmitted, now, limit)
}

func (s *Store) listDue(ctx context.Context, sql string, status quest.ClaimStatus, now int64, limit int) ([]quest.ClaimRef, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, sql, int16(status), now, limit)
	if err != nil {
		return nil, fmt.Errorf("quest/postgres: list due: %w", err)
	}
	defer rows.Close()

	out := make([]quest.ClaimRef, 0, limit)
	for rows.Next() {
		var (
			questID    int64
			claimerRaw []byte
		)
		if err := rows.Scan(&questID, &claimerRaw); err != nil {
			return nil, fmt.Errorf("quest/postgres: scan due row: %w", err)
		}
		claimer, err := toAddress(claimerRaw)
		if err != nil {
			return nil, err
		}
		out = append(out, quest.ClaimRef{QuestID: uint64(questID), Claimer: claimer})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("quest/postgres: list due rows: %w", err)
	}
	return out, nil
}

func (s *Store) Balance(ctx context.Context, account, mint common.Address) (uint64, error) {
	if s == nil || s.pool == nil {
		return 0, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	return balance(ctx, s.pool, account, mint, "")
}

func (s *Store) Unpublished(ctx context.Context, limit int) ([]quest.EventRecord, error) {
	if s == nil || s.pool == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if limit <= 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT seq, name, quest_id, at, payload
		FROM quest_events
		WHERE published_at IS NULL
		ORDER BY seq ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("quest/postgres: unpublished: %w", err)
	}
	defer rows.Close()

	out := make([]quest.EventRecord, 0, limit)
	for rows.Next() {
		var (
			seq     int64
			name    string
			questID *int64
			at      int64
			payload []byte
		)
		if err := rows.Scan(&seq, &name, &questID, &at, &payload); err != nil {
			return nil, fmt.Errorf("quest/postgres: scan event row: %w", err)
		}
		rec := quest.EventRecord{
			Seq:     uint64(seq),
			Name:    name,
			At:      at,
			Payload: append([]byte(nil), payload...),
		}
		if questID != nil {
			rec.QuestID = uint64(*questID)
			rec.HasQuest = true
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("quest/postgres: unpublished rows: %w", err)
	}
	return out, nil
}

func (s *Store) MarkPublished(ctx context.Context, seqs []uint64) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if len(seqs) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(seqs))
	for _, seq := range seqs {
		if seq == 0 || seq > math.MaxInt64 {
			return quest.ErrNotFound
		}
		ids = append(ids, int64(seq))
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE quest_events
		SET published_at = COALESCE(published_at, now())
		WHERE seq = ANY($1)
	`, ids)
	if err != nil {
		return fmt.Errorf("quest/postgres: mark published: %w", err)
	}
	if tag.RowsAffected() != int64(len(uniqueSeqs(ids))) {
		return quest.ErrNotFound
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Config(ctx context.Context) (quest.Config, error) {
	return getConfig(ctx, t.tx, "")
}

func (t *pgTx) LockConfig(ctx context.Context) (quest.Config, error) {
	return getConfig(ctx, t.tx, "FOR UPDATE")
}

func (t *pgTx) CreateConfig(ctx context.Context, cfg quest.Config) error {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO quest_config (
			id, authority, treasury, fee_bps, burn_bps, quest_count, proof_window_hours, review_window_hours
		) VALUES (1,$1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO NOTHING
	`, cfg.Authority[:], cfg.Treasury[:], int32(cfg.FeeBps), int32(cfg.BurnBps), int64(cfg.QuestCount),
		int64(cfg.ProofWindowHours), int64(cfg.ReviewWindowHours))
	if err != nil {
		return fmt.Errorf("quest/postgres: create config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return quest.ErrAlreadyInitialized
	}
	return nil
}

func (t *pgTx) PutConfig(ctx context.Context, cfg quest.Config) error {
	if cfg.QuestCount > math.MaxInt64 {
		return fmt.Errorf("%w: quest count", quest.ErrOverflow)
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE quest_config
		SET quest_count = $1
		WHERE id = 1
	`, int64(cfg.QuestCount))
	if err != nil {
		return fmt.Errorf("quest/postgres: put config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return quest.ErrNotInitialized
	}
	return nil
}

func (t *pgTx) Quest(ctx context.Context, id uint64) (quest.Quest, error) {
	return getQuest(ctx, t.tx, id, "FOR UPDATE")
}

func (t *pgTx) InsertQuest(ctx context.Context, q quest.Quest) error {
	if q.ID > math.MaxInt64 || q.RewardAmount > math.MaxInt64 {
		return fmt.Errorf("%w: quest values exceed storage range", quest.ErrOverflow)
	}
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO quests (
			id, creator, escrow, reward_mint, reward_amount, kind, status, target,
			max_claimers, current_claimers, expires_at, proof_window_hours, review_window_hours,
			description_hash, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (id) DO NOTHING
	`, int64(q.ID), q.Creator[:], q.Escrow[:], q.RewardMint[:], int64(q.RewardAmount),
		int16(q.Kind), int16(q.Status), q.Target[:], int16(q.MaxClaimers), int16(q.CurrentClaimers),
		q.ExpiresAt, int64(q.ProofWindowHours), int64(q.ReviewWindowHours), q.DescriptionHash[:], q.CreatedAt)
	if err != nil {
		return fmt.Errorf("quest/postgres: insert quest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return quest.ErrQuestExists
	}
	return nil
}

func (t *pgTx) PutQuest(ctx context.Context, q quest.Quest) error {
	if q.ID > math.MaxInt64 {
		return quest.ErrNotFound
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE quests
		SET status = $2, current_claimers = $3, updated_at = now()
		WHERE id = $1
	`, int64(q.ID), int16(q.Status), int16(q.CurrentClaimers))
	if err != nil {
		return fmt.Errorf("quest/postgres: put quest: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return quest.ErrNotFound
	}
	return nil
}

func (t *pgTx) Claim(ctx context.Context, ref quest.ClaimRef) (quest.Claim, error) {
	return getClaim(ctx, t.tx, ref, "FOR UPDATE")
}

func (t *pgTx) InsertClaim(ctx context.Context, c quest.Claim) error {
	if c.QuestID > math.MaxInt64 || c.StakeAmount > math.MaxInt64 {
		return fmt.Errorf("%w: claim values exceed storage range", quest.ErrOverflow)
	}
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO quest_claims (
			quest_id, claimer, stake_amount, status, proof_deadline, review_deadline,
			proof_hash, claimed_at, submitted_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (quest_id, claimer) DO NOTHING
	`, int64(c.QuestID), c.Claimer[:], int64(c.StakeAmount), int16(c.Status), c.ProofDeadline,
		c.ReviewDeadline, c.ProofHash[:], c.ClaimedAt, c.SubmittedAt)
	if err != nil {
		return fmt.Errorf("quest/postgres: insert claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return quest.ErrClaimExists
	}
	return nil
}

func (t *pgTx) PutClaim(ctx context.Context, c quest.Claim) error {
	if c.QuestID > math.MaxInt64 {
		return quest.ErrNotFound
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE quest_claims
		SET
			status = $3,
			review_deadline = $4,
			proof_hash = $5,
			submitted_at = $6,
			updated_at = now()
		WHERE quest_id = $1 AND claimer = $2
	`, int64(c.QuestID), c.Claimer[:], int16(c.Status), c.ReviewDeadline, c.ProofHash[:], c.SubmittedAt)
	if err != nil {
		return fmt.Errorf("quest/postgres: put claim: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return quest.ErrNotFound
	}
	return nil
}

func (t *pgTx) OpenClaims(ctx context.Context, questID uint64) ([]quest.Claim, error) {
	if questID > math.MaxInt64 {
		return nil, nil
	}
	return queryClaims(ctx, t.tx, `
		SELECT `+claimColumns+`
		FROM quest_claims
		WHERE quest_id = $1 AND status IN ($2, $3)
		ORDER BY claimer ASC
		FOR UPDATE
	`, int64(questID), int16(quest.ClaimStatusActive), int16(quest.ClaimStatusSubmitted))
}

func (t *pgTx) OpenEscrow(ctx context.Context, escrow, owner common.Address) error {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO ledger_owners (account, owner)
		VALUES ($1,$2)
		ON CONFLICT (account) DO NOTHING
	`, escrow[:], owner[:])
	if err != nil {
		return fmt.Errorf("quest/postgres: open escrow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: escrow %s already open", quest.ErrInvalidConfig, escrow.Hex())
	}
	return nil
}

func (t *pgTx) Move(ctx context.Context, tr quest.Transfer) error {
	if tr.Amount == 0 {
		return nil
	}
	if tr.Amount > math.MaxInt64 {
		return quest.ErrInsufficientFunds
	}

	owner := tr.From
	var ownerRaw []byte
	err := t.tx.QueryRow(ctx, `SELECT owner FROM ledger_owners WHERE account = $1`, tr.From[:]).Scan(&ownerRaw)
	switch {
	case err == nil:
		if owner, err = toAddress(ownerRaw); err != nil {
			return err
		}
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return fmt.Errorf("quest/postgres: owner lookup: %w", err)
	}
	if owner != tr.AuthorizedBy {
		return quest.ErrUnauthorizedTransfer
	}

	tag, err := t.tx.Exec(ctx, `
		UPDATE ledger_balances
		SET amount = amount - $3
		WHERE account = $1 AND mint = $2 AND amount >= $3
	`, tr.From[:], tr.Mint[:], int64(tr.Amount))
	if err != nil {
		return fmt.Errorf("quest/postgres: debit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return quest.ErrInsufficientFunds
	}
	return credit(ctx, t.tx, tr.To, tr.Mint, tr.Amount)
}

func (t *pgTx) Append(ctx context.Context, rec quest.EventRecord) (uint64, error) {
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, eventLockKey); err != nil {
		return 0, fmt.Errorf("quest/postgres: lock outbox: %w", err)
	}

	var questID *int64
	if rec.HasQuest {
		if rec.QuestID > math.MaxInt64 {
			return 0, fmt.Errorf("%w: event quest id", quest.ErrOverflow)
		}
		id := int64(rec.QuestID)
		questID = &id
	}
	var seq int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO quest_events (name, quest_id, at, payload)
		VALUES ($1,$2,$3,$4)
		RETURNING seq
	`, rec.Name, questID, rec.At, rec.Payload).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("quest/postgres: append event: %w", err)
	}
	return uint64(seq), nil
}

func credit(ctx context.Context, q querier, account, mint common.Address, amount uint64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO ledger_balances (account, mint, amount)
		VALUES ($1,$2,$3)
		ON CONFLICT (account, mint) DO UPDATE SET amount = ledger_balances.amount + EXCLUDED.amount
	`, account[:], mint[:], int64(amount))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "22003" {
			return fmt.Errorf("%w: credit %s", quest.ErrOverflow, account.Hex())
		}
		return fmt.Errorf("quest/postgres: credit: %w", err)
	}
	return nil
}

func balance(ctx context.Context, q querier, account, mint common.Address, lock string) (uint64, error) {
	var amount int64
	err := q.QueryRow(ctx, `SELECT amount FROM ledger_balances WHERE account = $1 AND mint = $2 `+lock,
		account[:], mint[:]).Scan(&amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("quest/postgres: balance: %w", err)
	}
	if amount < 0 {
		return 0, fmt.Errorf("quest/postgres: negative balance in db")
	}
	return uint64(amount), nil
}

func getConfig(ctx context.Context, q querier, lock string) (quest.Config, error) {
	var (
		authorityRaw, treasuryRaw []byte
		feeBps, burnBps           int32
		count, proofH, reviewH    int64
	)
	err := q.QueryRow(ctx, `
		SELECT authority, treasury, fee_bps, burn_bps, quest_count, proof_window_hours, review_window_hours
		FROM quest_config
		WHERE id = 1
	`+lock).Scan(&authorityRaw, &treasuryRaw, &feeBps, &burnBps, &count, &proofH, &reviewH)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return quest.Config{}, quest.ErrNotInitialized
		}
		return quest.Config{}, fmt.Errorf("quest/postgres: get config: %w", err)
	}
	authority, err := toAddress(authorityRaw)
	if err != nil {
		return quest.Config{}, err
	}
	treasury, err := toAddress(treasuryRaw)
	if err != nil {
		return quest.Config{}, err
	}
	if count < 0 || proofH < 0 || reviewH < 0 || proofH > math.MaxUint32 || reviewH > math.MaxUint32 {
		return quest.Config{}, fmt.Errorf("quest/postgres: config values out of range in db")
	}
	return quest.Config{
		Authority:         authority,
		Treasury:          treasury,
		FeeBps:            uint16(feeBps),
		BurnBps:           uint16(burnBps),
		QuestCount:        uint64(count),
		ProofWindowHours:  uint32(proofH),
		ReviewWindowHours: uint32(reviewH),
	}, nil
}

const questColumns = `
	id, creator, escrow, reward_mint, reward_amount, kind, status, target,
	max_claimers, current_claimers, expires_at, proof_window_hours, review_window_hours,
	description_hash, created_at`

func getQuest(ctx context.Context, q querier, id uint64, lock string) (quest.Quest, error) {
	if id > math.MaxInt64 {
		return quest.Quest{}, quest.ErrNotFound
	}
	out, err := scanQuest(q.QueryRow(ctx, `SELECT `+questColumns+` FROM quests WHERE id = $1 `+lock, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return quest.Quest{}, quest.ErrNotFound
	}
	return out, err
}

func scanQuest(row pgx.Row) (quest.Quest, error) {
	var (
		id, reward, expiresAt, proofH, reviewH, createdAt int64
		kind, status, maxClaimers, current                int16
		creatorRaw, escrowRaw, mintRaw, targetRaw, descRaw []byte
	)
	if err := row.Scan(&id, &creatorRaw, &escrowRaw, &mintRaw, &reward, &kind, &status, &targetRaw,
		&maxClaimers, &current, &expiresAt, &proofH, &reviewH, &descRaw, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return quest.Quest{}, err
		}
		return quest.Quest{}, fmt.Errorf("quest/postgres: scan quest: %w", err)
	}
	if id < 0 || reward < 0 || proofH < 0 || reviewH < 0 || maxClaimers < 0 || current < 0 {
		return quest.Quest{}, fmt.Errorf("quest/postgres: negative values in db")
	}

	var (
		out quest.Quest
		err error
	)
	if out.Creator, err = toAddress(creatorRaw); err != nil {
		return quest.Quest{}, err
	}
	if out.Escrow, err = toAddress(escrowRaw); err != nil {
		return quest.Quest{}, err
	}
	if out.RewardMint, err = toAddress(mintRaw); err != nil {
		return quest.Quest{}, err
	}
	if out.Target, err = toAddress(targetRaw); err != nil {
		return quest.Quest{}, err
	}
	if out.DescriptionHash, err = to32(descRaw); err != nil {
		return quest.Quest{}, err
	}
	out.ID = uint64(id)
	out.RewardAmount = uint64(reward)
	out.Kind = quest.Kind(kind)
	out.Status = quest.Status(status)
	out.MaxClaimers = uint8(maxClaimers)
	out.CurrentClaimers = uint8(current)
	out.ExpiresAt = expiresAt
	out.ProofWindowHours = uint32(proofH)
	out.ReviewWindowHours = uint32(reviewH)
	out.CreatedAt = createdAt
	return out, nil
}

const claimColumns = `
	quest_id, claimer, stake_amount, status, proof_deadline, review_deadline,
	proof_hash, claimed_at, submitted_at`

func getClaim(ctx context.Context, q querier, ref quest.ClaimRef, lock string) (quest.Claim, error) {
	if ref.QuestID > math.MaxInt64 {
		return quest.Claim{}, quest.ErrNotFound
	}
	out, err := scanClaim(q.QueryRow(ctx, `
		SELECT `+claimColumns+`
		FROM quest_claims
		WHERE quest_id = $1 AND claimer = $2
	`+lock, int64(ref.QuestID), ref.Claimer[:]))
	if errors.Is(err, pgx.ErrNoRows) {
		return quest.Claim{}, quest.ErrNotFound
	}
	return out, err
}

func queryClaims(ctx context.Context, q querier, sql string, args ...any) ([]quest.Claim, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("quest/postgres: query claims: %w", err)
	}
	defer rows.Close()

	var out []quest.Claim
	for rows.Next() {
		c, err := scanClaim(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("quest/postgres: query claims rows: %w", err)
	}
	return out, nil
}

func scanClaim(row pgx.Row) (quest.Claim, error) {
	var (
		questID, stake, proofDeadline, reviewDeadline, claimedAt, submittedAt int64
		status                                                                int16
		claimerRaw, proofHashRaw                                              []byte
	)
	if err := row.Scan(&questID, &claimerRaw, &stake, &status, &proofDeadline, &reviewDeadline,
		&proofHashRaw, &claimedAt, &submittedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return quest.Claim{}, err
		}
		return quest.Claim{}, fmt.Errorf("quest/postgres: scan claim: %w", err)
	}
	if questID < 0 || stake < 0 {
		return quest.Claim{}, fmt.Errorf("quest/postgres: negative values in db")
	}
	claimer, err := toAddress(claimerRaw)
	if err != nil {
		return quest.Claim{}, err
	}
	proofHash, err := to32(proofHashRaw)
	if err != nil {
		return quest.Claim{}, err
	}
	return quest.Claim{
		QuestID:        uint64(questID),
		Claimer:        claimer,
		StakeAmount:    uint64(stake),
		Status:         quest.ClaimStatus(status),
		ProofDeadline:  proofDeadline,
		ReviewDeadline: reviewDeadline,
		ProofHash:      proofHash,
		ClaimedAt:      claimedAt,
		SubmittedAt:    submittedAt,
	}, nil
}

func uniqueSeqs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func to32(b []byte) ([32]byte, error) {
	var out [32]byte
	if len(b) != 32 {
		return out, fmt.Errorf("quest/postgres: expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func toAddress(b []byte) (common.Address, error) {
	var out common.Address
	if len(b) != common.AddressLength {
		return out, fmt.Errorf("quest/postgres: expected 20 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
