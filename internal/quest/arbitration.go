package quest

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/juno-intents/quest-escrow/internal/fees"
)

// ApproveCompletion pays out a Submitted claim on the authority's verdict.
func (e *Engine) ApproveCompletion(ctx context.Context, ref ClaimRef, caller common.Address) (QuestCompleted, error) {
	now := e.Now()

	var out QuestCompleted
	err := e.apply(ctx, "approve_completion", now, func(tx Tx) (Event, error) {
		q, c, err := lockClaim(ctx, tx, ref)
		if err != nil {
			return nil, err
		}
		if c.Status != ClaimStatusSubmitted {
			return nil, ErrClaimNotSubmitted
		}
		cfg, err := tx.Config(ctx)
		if err != nil {
			return nil, err
		}
		if caller != cfg.Authority {
			return nil, ErrNotOracle
		}
		out, err = e.settleApproved(ctx, tx, cfg, q, c, false)
		if err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return QuestCompleted{}, err
	}
	e.log.Info("quest completed", "claim", ref.String(), "net", out.NetReward, "fee", out.Fee, "voided", len(out.Voided))
	return out, nil
}

// RejectCompletion fails the quest. Unless safetyFlagged, the claimer's stake is
// forfeited to the creator together with the reward.
func (e *Engine) RejectCompletion(ctx context.Context, ref ClaimRef, caller common.Address, safetyFlagged bool) (QuestFailed, error) {
	now := e.Now()

	var out QuestFailed
	err := e.apply(ctx, "reject_completion", now, func(tx Tx) (Event, error) {
		q, c, err := lockClaim(ctx, tx, ref)
		if err != nil {
			return nil, err
		}
		if c.Status != ClaimStatusSubmitted {
			return nil, ErrClaimNotSubmitted
		}
		cfg, err := tx.Config(ctx)
		if err != nil {
			return nil, err
		}
		if caller != cfg.Authority {
			return nil, ErrNotOracle
		}
		if q.Status.Terminal() {
			return nil, ErrQuestNotActive
		}

		signer := signerFor(q)
		out = QuestFailed{
			QuestID:       q.ID,
			Claimer:       c.Claimer,
			Reason:        FailReasonRejected,
			SafetyFlagged: safetyFlagged,
		}
		if safetyFlagged {
			if err := signer.pay(ctx, tx, q, q.Creator, q.RewardAmount); err != nil {
				return nil, err
			}
			if err := signer.pay(ctx, tx, q, c.Claimer, c.StakeAmount); err != nil {
				return nil, err
			}
			out.ToCreator = q.RewardAmount
			out.StakeReturned = c.StakeAmount
		} else {
			total, err := fees.Add(q.RewardAmount, c.StakeAmount)
			if err != nil {
				return nil, checked(err)
			}
			if err := signer.pay(ctx, tx, q, q.Creator, total); err != nil {
				return nil, err
			}
			out.ToCreator = total
		}

		c.Status = ClaimStatusRejected
		q.Status = StatusFailed
		if err := tx.PutClaim(ctx, c); err != nil {
			return nil, err
		}
		if out.Voided, err = voidSiblings(ctx, tx, signer, q, c.Claimer); err != nil {
			return nil, err
		}
		if err := tx.PutQuest(ctx, q); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return QuestFailed{}, err
	}
	e.log.Info("quest failed", "claim", ref.String(), "safetyFlagged", safetyFlagged, "toCreator", out.ToCreator)
	return out, nil
}

// lockClaim locks the quest before the claim so every operation on one quest
// takes its row locks in the same order.
func lockClaim(ctx context.Context, tx Tx, ref ClaimRef) (Quest, Claim, error) {
	q, err := tx.Quest(ctx, ref.QuestID)
	if err != nil {
		return Quest{}, Claim{}, err
	}
	c, err := tx.Claim(ctx, ref)
	if err != nil {
		return Quest{}, Claim{}, err
	}
	return q, c, nil
}

// settleApproved is shared by ApproveCompletion and AutoApprove. The caller has
// already checked that c is Submitted.
func (e *Engine) settleApproved(ctx context.Context, tx Tx, cfg Config, q Quest, c Claim, auto bool) (QuestCompleted, error) {
	if q.Status.Terminal() {
		return QuestCompleted{}, ErrQuestNotActive
	}

	fee, net, err := fees.Compute(q.RewardAmount, cfg.FeeBps)
	if err != nil {
		return QuestCompleted{}, checked(err)
	}
	payout, err := fees.Add(net, c.StakeAmount)
	if err != nil {
		return QuestCompleted{}, checked(err)
	}
	burn, err := fees.Burn(fee, cfg.BurnBps)
	if err != nil {
		return QuestCompleted{}, checked(err)
	}

	signer := signerFor(q)
	if err := signer.pay(ctx, tx, q, c.Claimer, payout); err != nil {
		return QuestCompleted{}, err
	}
	if err := signer.pay(ctx, tx, q, cfg.Treasury, fee); err != nil {
		return QuestCompleted{}, err
	}

	c.Status = ClaimStatusApproved
	q.Status = StatusCompleted
	if err := tx.PutClaim(ctx, c); err != nil {
		return QuestCompleted{}, err
	}
	voided, err := voidSiblings(ctx, tx, signer, q, c.Claimer)
	if err != nil {
		return QuestCompleted{}, err
	}
	if err := tx.PutQuest(ctx, q); err != nil {
		return QuestCompleted{}, err
	}
	return QuestCompleted{
		QuestID:      q.ID,
		Claimer:      c.Claimer,
		NetReward:    net,
		Fee:          fee,
		Burn:         burn,
		Stake:        c.StakeAmount,
		AutoApproved: auto,
		Voided:       voided,
	}, nil
}

// voidSiblings returns the stake of every other open claim on q to its claimer
// once q has reached a terminal status.
func voidSiblings(ctx context.Context, tx Tx, signer escrowSigner, q Quest, settled common.Address) ([]VoidedClaim, error) {
	open, err := tx.OpenClaims(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	var out []VoidedClaim
	for _, o := range open {
		if o.Claimer == settled {
			continue
		}
		if err := signer.pay(ctx, tx, q, o.Claimer, o.StakeAmount); err != nil {
			return nil, err
		}
		o.Status = ClaimStatusVoided
		if err := tx.PutClaim(ctx, o); err != nil {
			return nil, err
		}
		out = append(out, VoidedClaim{Claimer: o.Claimer, StakeReturned: o.StakeAmount})
	}
	return out, nil
}
