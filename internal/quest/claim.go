package quest

import (
	"context"
	"errors"
	"math"

	"github.com/ethereum/go-ethereum/common"
	"github.com/juno-intents/quest-escrow/internal/deadline"
	"github.com/juno-intents/quest-escrow/internal/fees"
)

// ClaimQuest opens a claim for claimer and escrows its stake next to the reward.
func (e *Engine) ClaimQuest(ctx context.Context, questID uint64, claimer common.Address, stake uint64) (Claim, error) {
	now := e.Now()

	var c Claim
	err := e.apply(ctx, "claim_quest", now, func(tx Tx) (Event, error) {
		q, err := tx.Quest(ctx, questID)
		if err != nil {
			return nil, err
		}
		if q.Status != StatusActive {
			return nil, ErrQuestNotActive
		}
		if q.CurrentClaimers >= q.MaxClaimers {
			return nil, ErrQuestFull
		}
		if claimer == q.Creator {
			return nil, ErrCannotClaimOwnQuest
		}
		if q.Kind == KindDirect && claimer != q.Target {
			return nil, ErrNotTargetUser
		}
		if q.ExpiresAt != 0 && now >= q.ExpiresAt {
			return nil, ErrQuestExpired
		}
		minStake, err := fees.MinStake(q.RewardAmount)
		if err != nil {
			return nil, checked(err)
		}
		if stake < minStake {
			return nil, ErrStakeTooLow
		}

		ref := ClaimRef{QuestID: q.ID, Claimer: claimer}
		if _, err := tx.Claim(ctx, ref); err == nil {
			return nil, ErrClaimExists
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}

		proofDeadline, err := deadline.ProofDeadline(now, q.ProofWindowHours)
		if err != nil {
			return nil, checked(err)
		}
		if q.CurrentClaimers == math.MaxUint8 {
			return nil, ErrOverflow
		}

		if err := tx.Move(ctx, Transfer{
			Mint:         q.RewardMint,
			From:         claimer,
			To:           q.Escrow,
			Amount:       stake,
			AuthorizedBy: claimer,
		}); err != nil {
			return nil, err
		}

		c = Claim{
			QuestID:       q.ID,
			Claimer:       claimer,
			StakeAmount:   stake,
			Status:        ClaimStatusActive,
			ProofDeadline: proofDeadline,
			ClaimedAt:     now,
		}
		if err := tx.InsertClaim(ctx, c); err != nil {
			return nil, err
		}

		q.CurrentClaimers++
		if q.CurrentClaimers == q.MaxClaimers {
			q.Status = StatusClaimed
		}
		if err := tx.PutQuest(ctx, q); err != nil {
			return nil, err
		}
		return QuestClaimed{
			QuestID:       q.ID,
			Claimer:       claimer,
			StakeAmount:   stake,
			ProofDeadline: proofDeadline,
		}, nil
	})
	if err != nil {
		return Claim{}, err
	}
	e.log.Info("quest claimed", "claim", c.Ref().String(), "stake", c.StakeAmount, "proofDeadline", c.ProofDeadline)
	return c, nil
}

// SubmitProof records the claimer's proof commitment and starts the review window.
func (e *Engine) SubmitProof(ctx context.Context, ref ClaimRef, caller common.Address, proofHash [32]byte) (Claim, error) {
	now := e.Now()

	var c Claim
	err := e.apply(ctx, "submit_proof", now, func(tx Tx) (Event, error) {
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
		if caller != c.Claimer {
			return nil, ErrNotClaimer
		}
		if deadline.Elapsed(now, c.ProofDeadline) {
			return nil, ErrProofDeadlinePassed
		}
		reviewDeadline, err := deadline.ReviewDeadline(now, q.ReviewWindowHours)
		if err != nil {
			return nil, checked(err)
		}

		c.ProofHash = proofHash
		c.Status = ClaimStatusSubmitted
		c.SubmittedAt = now
		c.ReviewDeadline = reviewDeadline
		if err := tx.PutClaim(ctx, c); err != nil {
			return nil, err
		}
		return ProofSubmitted{
			QuestID:        c.QuestID,
			Claimer:        c.Claimer,
			ProofHash:      hashOf(proofHash),
			ReviewDeadline: reviewDeadline,
		}, nil
	})
	if err != nil {
		return Claim{}, err
	}
	e.log.Info("proof submitted", "claim", ref.String(), "reviewDeadline", c.ReviewDeadline)
	return c, nil
}

// AbandonClaim gives up an Active claim. The stake is forfeited to the creator.
func (e *Engine) AbandonClaim(ctx context.Context, ref ClaimRef, caller common.Address) (Claim, error) {
	now := e.Now()

	var c Claim
	err := e.apply(ctx, "abandon_claim", now, func(tx Tx) (Event, error) {
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
		if caller != c.Claimer {
			return nil, ErrNotClaimer
		}
		if err := e.release(ctx, tx, q, &c, ClaimStatusAbandoned); err != nil {
			return nil, err
		}
		return ClaimAbandoned{
			QuestID:        c.QuestID,
			Claimer:        c.Claimer,
			ForfeitedStake: c.StakeAmount,
			Reason:         ReleaseAbandoned,
		}, nil
	})
	if err != nil {
		return Claim{}, err
	}
	e.log.Info("claim abandoned", "claim", ref.String(), "forfeited", c.StakeAmount)
	return c, nil
}

// release forfeits an Active claim's stake to the creator and frees its slot.
// q must already be locked.
func (e *Engine) release(ctx context.Context, tx Tx, q Quest, c *Claim, to ClaimStatus) error {
	if q.Status.Terminal() {
		return ErrQuestNotActive
	}

	if err := signerFor(q).pay(ctx, tx, q, q.Creator, c.StakeAmount); err != nil {
		return err
	}
	c.Status = to
	if err := tx.PutClaim(ctx, *c); err != nil {
		return err
	}

	if q.CurrentClaimers > 0 {
		q.CurrentClaimers--
	}
	if q.Status == StatusClaimed {
		q.Status = StatusActive
	}
	return tx.PutQuest(ctx, q)
}
