package quest

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Transfer instructs the ledger to move value between two accounts of one mint.
type Transfer struct {
	Mint   common.Address
	From   common.Address
	To     common.Address
	Amount uint64

	// AuthorizedBy must own From: the holder itself for user accounts, the
	// quest signer for escrow accounts.
	AuthorizedBy common.Address
}

// Tx is the fixed resource set of one operation. Nothing written through a Tx
// is visible outside it unless the InTx callback returns nil.
//
// Row locks are taken in one order: config, then quest, then claims. Quest and
// Claim lock what they read.
type Tx interface {
	// Config reads the config without locking it. Only QuestCount changes
	// after Initialize.
	Config(ctx context.Context) (Config, error)
	// LockConfig is Config for operations that write QuestCount.
	LockConfig(ctx context.Context) (Config, error)
	// CreateConfig fails with ErrAlreadyInitialized if a config exists.
	CreateConfig(ctx context.Context, cfg Config) error
	PutConfig(ctx context.Context, cfg Config) error

	Quest(ctx context.Context, id uint64) (Quest, error)
	InsertQuest(ctx context.Context, q Quest) error
	PutQuest(ctx context.Context, q Quest) error

	Claim(ctx context.Context, ref ClaimRef) (Claim, error)
	// InsertClaim fails with ErrClaimExists if the (quest, claimer) pair already has a claim.
	InsertClaim(ctx context.Context, c Claim) error
	PutClaim(ctx context.Context, c Claim) error
	// OpenClaims returns the Active and Submitted claims of a quest ordered by claimer.
	OpenClaims(ctx context.Context, questID uint64) ([]Claim, error)

	// OpenEscrow registers owner as the only identity allowed to move funds out of escrow.
	OpenEscrow(ctx context.Context, escrow, owner common.Address) error
	// Move fails with ErrInsufficientFunds or ErrUnauthorizedTransfer. A zero amount is a no-op.
	Move(ctx context.Context, t Transfer) error

	// Append adds a record to the event outbox and returns its sequence number.
	Append(ctx context.Context, rec EventRecord) (uint64, error)
}

type QuestFilter struct {
	// Status filters by status; StatusUnknown matches all.
	Status Status
	// Creator filters by creator; the zero address matches all.
	Creator common.Address
	// FromID is the smallest id returned.
	FromID uint64
	Limit  int
}

type Reader interface {
	GetConfig(ctx context.Context) (Config, error)
	GetQuest(ctx context.Context, id uint64) (Quest, error)
	GetClaim(ctx context.Context, ref ClaimRef) (Claim, error)
	ListQuests(ctx context.Context, f QuestFilter) ([]Quest, error)
	// ListClaimsByClaimer returns the claimer's most recent claims first.
	ListClaimsByClaimer(ctx context.Context, claimer common.Address, limit int) ([]Claim, error)

	// ListExpirable returns Active claims whose proof deadline is strictly before now.
	ListExpirable(ctx context.Context, now int64, limit int) ([]ClaimRef, error)
	// ListAutoApprovable returns Submitted claims whose review deadline is strictly before now.
	ListAutoApprovable(ctx context.Context, now int64, limit int) ([]ClaimRef, error)

	Balance(ctx context.Context, account, mint common.Address) (uint64, error)
}

// EventLog is the consumer side of the outbox.
type EventLog interface {
	Unpublished(ctx context.Context, limit int) ([]EventRecord, error)
	MarkPublished(ctx context.Context, seqs []uint64) error
}

type Store interface {
	Reader
	EventLog

	// InTx may call fn more than once if the backend aborts a transaction
	// on a lock conflict, so fn must not keep state across calls.
	InTx(ctx context.Context, fn func(tx Tx) error) error

	// Credit mints value into a user account. It exists for funding test and
	// development networks and is never called by the engine.
	Credit(ctx context.Context, account, mint common.Address, amount uint64) error
}
