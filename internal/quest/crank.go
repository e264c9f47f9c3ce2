package quest

import (
	"context"

	"github.com/juno-intents/quest-escrow/internal/deadline"
)

// ExpireClaim releases an Active claim whose proof deadline has passed. Anyone may call it.
func (e *Engine) ExpireClaim(ctx context.Context, ref ClaimRef) (Claim, error) {
	now := e.Now()

	var c Claim
	err := e.apply(ctx, "expire_claim", now, func(tx Tx) (Event, error) {
		var (
			q   Quest
			err error
		)
		q, c, err = lockClaim(ctx, tx, ref)
		if err != nil {
			return nil, err
		}
		if c.Status != ClaimStatusActive {
			return nil, ErrClaimNotActive
		}
		if !deadline.Elapsed(now, c.ProofDeadline) {
			return nil, ErrDeadlineNotReached
		}
		if err := e.release(ctx, tx, q, &c, ClaimStatusExpired); err != nil {
			return nil, err
		}
		return ClaimExpired{
			QuestID:        c.QuestID,
			Claimer:        c.Claimer,
			ForfeitedStake: c.StakeAmount,
			Reason:         ReleaseProofTimeout,
		}, nil
	})
	if err != nil {
		return Claim{}, err
	}
	e.log.Info("claim expired", "claim", ref.String(), "forfeited", c.StakeAmount)
	return c, nil
}

// AutoApprove settles a Submitted claim as approved once its review window has
// lapsed without a verdict. Anyone may call it.
func (e *Engine) AutoApprove(ctx context.Context, ref ClaimRef) (QuestCompleted, error) {
	now := e.Now()

	var out QuestCompleted
	err := e.apply(ctx, "auto_approve", now, func(tx Tx) (Event, error) {
		q, c, err := lockClaim(ctx, tx, ref)
		if err != nil {
			return nil, err
		}
		if c.Status != ClaimStatusSubmitted {
			return nil, ErrClaimNotSubmitted
		}
		if c.ReviewDeadline == 0 {
			return nil, ErrNoReviewDeadline
		}
		if !deadline.Elapsed(now, c.ReviewDeadline) {
			return nil, ErrDeadlineNotReached
		}
		cfg, err := tx.Config(ctx)
		if err != nil {
			return nil, err
		}
		out, err = e.settleApproved(ctx, tx, cfg, q, c, true)
		if err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return QuestCompleted{}, err
	}
	e.log.Info("quest auto-approved", "claim", ref.String(), "net", out.NetReward, "fee", out.Fee)
	return out, nil
}
