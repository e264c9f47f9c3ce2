package quest

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/juno-intents/quest-escrow/internal/derive"
	"github.com/juno-intents/quest-escrow/internal/fees"
)

// CreateQuest escrows the reward from creator and registers a new Active quest.
func (e *Engine) CreateQuest(ctx context.Context, creator common.Address, p CreateParams) (Quest, error) {
	now := e.Now()

	if p.RewardAmount < e.minReward {
		return Quest{}, ErrRewardTooLow
	}
	if p.MaxClaimers < 1 || p.MaxClaimers > MaxClaimersLimit {
		return Quest{}, ErrInvalidMaxClaimers
	}
	switch p.Kind {
	case KindDirect:
		if p.Target == (common.Address{}) {
			return Quest{}, ErrDirectQuestNeedsTarget
		}
		if p.Target == creator {
			return Quest{}, ErrCannotTargetSelf
		}
	case KindOpen:
		if p.Target != (common.Address{}) {
			return Quest{}, ErrOpenQuestHasTarget
		}
	default:
		return Quest{}, ErrInvalidKind
	}
	if p.ExpiresAt != 0 && p.ExpiresAt <= now {
		return Quest{}, ErrInvalidTimeLimit
	}

	var q Quest
	err := e.apply(ctx, "create_quest", now, func(tx Tx) (Event, error) {
		cfg, err := tx.LockConfig(ctx)
		if err != nil {
			return nil, err
		}
		id := cfg.QuestCount
		next, err := fees.Add(id, 1)
		if err != nil {
			return nil, checked(err)
		}
		cfg.QuestCount = next

		signer := derive.QuestSignerV1(id)
		q = Quest{
			ID:                id,
			Creator:           creator,
			Escrow:            derive.EscrowV1(signer),
			RewardMint:        p.RewardMint,
			RewardAmount:      p.RewardAmount,
			Kind:              p.Kind,
			Status:            StatusActive,
			Target:            p.Target,
			MaxClaimers:       p.MaxClaimers,
			ExpiresAt:         p.ExpiresAt,
			ProofWindowHours:  cfg.ProofWindowHours,
			ReviewWindowHours: cfg.ReviewWindowHours,
			DescriptionHash:   p.DescriptionHash,
			CreatedAt:         now,
		}

		if err := tx.OpenEscrow(ctx, q.Escrow, signer); err != nil {
			return nil, err
		}
		if err := tx.Move(ctx, Transfer{
			Mint:         q.RewardMint,
			From:         creator,
			To:           q.Escrow,
			Amount:       q.RewardAmount,
			AuthorizedBy: creator,
		}); err != nil {
			return nil, err
		}
		if err := tx.InsertQuest(ctx, q); err != nil {
			return nil, err
		}
		if err := tx.PutConfig(ctx, cfg); err != nil {
			return nil, err
		}
		return QuestCreated{
			QuestID:      q.ID,
			Creator:      q.Creator,
			Escrow:       q.Escrow,
			RewardAmount: q.RewardAmount,
			RewardMint:   q.RewardMint,
			Kind:         q.Kind.String(),
			Target:       q.Target,
			MaxClaimers:  q.MaxClaimers,
			ExpiresAt:    q.ExpiresAt,
			Description:  hashOf(q.DescriptionHash),
		}, nil
	})
	if err != nil {
		return Quest{}, err
	}
	e.log.Info("quest created", "questID", q.ID, "creator", q.Creator.Hex(), "reward", q.RewardAmount, "kind", q.Kind.String())
	return q, nil
}

// CancelQuest refunds the full reward to the creator of a quest nobody holds a claim on.
func (e *Engine) CancelQuest(ctx context.Context, questID uint64, caller common.Address) (Quest, error) {
	now := e.Now()

	var q Quest
	err := e.apply(ctx, "cancel_quest", now, func(tx Tx) (Event, error) {
		var err error
		q, err = tx.Quest(ctx, questID)
		if err != nil {
			return nil, err
		}
		if q.Status != StatusActive {
			return nil, ErrQuestNotActive
		}
		if q.CurrentClaimers != 0 {
			return nil, ErrQuestAlreadyClaimed
		}
		if caller != q.Creator {
			return nil, ErrNotCreator
		}

		if err := signerFor(q).pay(ctx, tx, q, q.Creator, q.RewardAmount); err != nil {
			return nil, err
		}
		q.Status = StatusCancelled
		if err := tx.PutQuest(ctx, q); err != nil {
			return nil, err
		}
		return QuestCancelled{
			QuestID:  q.ID,
			Creator:  q.Creator,
			Refunded: q.RewardAmount,
		}, nil
	})
	if err != nil {
		return Quest{}, err
	}
	e.log.Info("quest cancelled", "questID", q.ID, "refunded", q.RewardAmount)
	return q, nil
}
