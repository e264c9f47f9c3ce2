package quest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/juno-intents/quest-escrow/internal/deadline"
	"github.com/juno-intents/quest-escrow/internal/derive"
	"github.com/juno-intents/quest-escrow/internal/fees"
)

type EngineConfig struct {
	// Now is read once per operation. Defaults to time.Now.
	Now func() time.Time

	// MinReward overrides the protocol reward floor. Zero selects MinReward.
	MinReward uint64

	// Observer, when set, is told the outcome of every operation.
	Observer Observer
}

// Observer receives one call per engine operation. code is empty on success
// and CodeOf(err) otherwise.
type Observer interface {
	ObserveOperation(op, code string, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, string, time.Duration) {}

// Engine executes the quest lifecycle. Every operation runs in a single store
// transaction and either commits all of its effects plus exactly one event, or
// nothing.
type Engine struct {
	store     Store
	now       func() time.Time
	minReward uint64
	observer  Observer
	log       *slog.Logger
}

func NewEngine(store Store, cfg EngineConfig, log *slog.Logger) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrInvalidConfig)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.MinReward == 0 {
		cfg.MinReward = MinReward
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Engine{
		store:     store,
		now:       cfg.Now,
		minReward: cfg.MinReward,
		observer:  cfg.Observer,
		log:       log,
	}, nil
}

// Store exposes the engine's backing store for read paths.
func (e *Engine) Store() Store { return e.store }

func (e *Engine) Now() int64 { return e.now().Unix() }

// MinReward is the reward floor CreateQuest enforces.
func (e *Engine) MinReward() uint64 { return e.minReward }

// escrowSigner is the only value that can authorize transfers out of a quest
// escrow. It is derived from the quest id and never leaves the engine.
type escrowSigner struct {
	addr common.Address
}

func signerFor(q Quest) escrowSigner {
	return escrowSigner{addr: derive.QuestSignerV1(q.ID)}
}

func (s escrowSigner) pay(ctx context.Context, tx Tx, q Quest, to common.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	return tx.Move(ctx, Transfer{
		Mint:         q.RewardMint,
		From:         q.Escrow,
		To:           to,
		Amount:       amount,
		AuthorizedBy: s.addr,
	})
}

// apply runs fn in a transaction and appends the event it returns.
func (e *Engine) apply(ctx context.Context, op string, now int64, fn func(tx Tx) (Event, error)) error {
	start := time.Now()
	err := e.store.InTx(ctx, func(tx Tx) error {
		ev, err := fn(tx)
		if err != nil {
			return err
		}
		rec, err := newEventRecord(now, ev)
		if err != nil {
			return err
		}
		_, err = tx.Append(ctx, rec)
		return err
	})
	if err != nil {
		code := CodeOf(err)
		e.observer.ObserveOperation(op, code, time.Since(start))
		e.log.Debug("quest operation rejected", "op", op, "code", code, "err", err)
		return err
	}
	e.observer.ObserveOperation(op, "", time.Since(start))
	return nil
}

// checked maps arithmetic failures from the helper packages onto ErrOverflow.
func checked(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, fees.ErrOverflow) || errors.Is(err, deadline.ErrOverflow) {
		return fmt.Errorf("%w: %v", ErrOverflow, err)
	}
	return err
}

func hashOf(b [32]byte) common.Hash { return common.Hash(b) }
