// Package keeper drives the permissionless timeout cranks. It holds no special
// authority: it finds claims whose deadline has passed and calls the same
// operations any other caller could.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/juno-intents/quest-escrow/internal/quest"
)

const (
	ActionExpire      = "expire_claim"
	ActionAutoApprove = "auto_approve"

	OutcomeDone   = "done"
	OutcomeRaced  = "raced"
	OutcomeFailed = "failed"
)

var ErrInvalidConfig = errors.New("keeper: invalid config")

type Cranker interface {
	ExpireClaim(ctx context.Context, ref quest.ClaimRef) (quest.Claim, error)
	AutoApprove(ctx context.Context, ref quest.ClaimRef) (quest.QuestCompleted, error)
}

// Recorder is satisfied by *metrics.Metrics.
type Recorder interface {
	KeeperAction(action, outcome string)
}

type nopRecorder struct{}

func (nopRecorder) KeeperAction(string, string) {}

type Config struct {
	// BatchSize bounds how many claims of each kind one Tick cranks.
	BatchSize int
	// ActionTimeout bounds each crank call. Zero means no extra bound.
	ActionTimeout time.Duration
	Now           func() time.Time
}

type Result struct {
	Expired      int
	AutoApproved int
	Raced        int
	Failed       int
}

type Keeper struct {
	cfg     Config
	reader  quest.Reader
	cranker Cranker
	rec     Recorder
	log     *slog.Logger
}

func New(cfg Config, reader quest.Reader, cranker Cranker, rec Recorder, log *slog.Logger) (*Keeper, error) {
	if reader == nil || cranker == nil {
		return nil, fmt.Errorf("%w: nil reader or cranker", ErrInvalidConfig)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: BatchSize must be > 0", ErrInvalidConfig)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Keeper{cfg: cfg, reader: reader, cranker: cranker, rec: rec, log: log}, nil
}

// Tick cranks every claim that is due at the start of the tick, up to
// BatchSize per kind. A listing failure aborts the tick; individual crank
// failures are counted and logged.
func (k *Keeper) Tick(ctx context.Context) (Result, error) {
	var res Result
	now := k.cfg.Now().Unix()

	expirable, err := k.reader.ListExpirable(ctx, now, k.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("keeper: list expirable: %w", err)
	}
	for _, ref := range expirable {
		err := k.call(ctx, func(ctx context.Context) error {
			_, err := k.cranker.ExpireClaim(ctx, ref)
			return err
		})
		switch k.record(ActionExpire, ref, err) {
		case OutcomeDone:
			res.Expired++
		case OutcomeRaced:
			res.Raced++
		default:
			res.Failed++
		}
	}

	approvable, err := k.reader.ListAutoApprovable(ctx, now, k.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("keeper: list auto-approvable: %w", err)
	}
	for _, ref := range approvable {
		err := k.call(ctx, func(ctx context.Context) error {
			_, err := k.cranker.AutoApprove(ctx, ref)
			return err
		})
		switch k.record(ActionAutoApprove, ref, err) {
		case OutcomeDone:
			res.AutoApproved++
		case OutcomeRaced:
			res.Raced++
		default:
			res.Failed++
		}
	}
	return res, nil
}

func (k *Keeper) call(ctx context.Context, fn func(context.Context) error) error {
	if k.cfg.ActionTimeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, k.cfg.ActionTimeout)
	defer cancel()
	return fn(cctx)
}

// record classifies err. A state conflict means another caller (the oracle, the
// claimer, or another keeper) moved the claim first.
func (k *Keeper) record(action string, ref quest.ClaimRef, err error) string {
	outcome := OutcomeDone
	switch {
	case err == nil:
		k.log.Info("crank applied", "action", action, "claim", ref.String())
	case errors.Is(err, quest.ErrStateConflict), errors.Is(err, quest.ErrNotFound):
		outcome = OutcomeRaced
		k.log.Debug("crank raced", "action", action, "claim", ref.String(), "code", quest.CodeOf(err))
	default:
		outcome = OutcomeFailed
		k.log.Error("crank failed", "action", action, "claim", ref.String(), "err", err)
	}
	k.rec.KeeperAction(action, outcome)
	return outcome
}
