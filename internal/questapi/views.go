package questapi

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/juno-intents/quest-escrow/internal/quest"
)

// Amounts are rendered as decimal strings so clients never lose precision.

type ConfigView struct {
	Authority         string `json:"authority"`
	Treasury          string `json:"treasury"`
	FeeBps            uint16 `json:"feeBps"`
	BurnBps           uint16 `json:"burnBps"`
	QuestCount        string `json:"questCount"`
	ProofWindowHours  uint32 `json:"proofWindowHours"`
	ReviewWindowHours uint32 `json:"reviewWindowHours"`
	MinReward         string `json:"minReward"`
}

type QuestView struct {
	ID                string `json:"id"`
	Creator           string `json:"creator"`
	Escrow            string `json:"escrow"`
	RewardMint        string `json:"rewardMint"`
	RewardAmount      string `json:"rewardAmount"`
	MinStake          string `json:"minStake"`
	Kind              string `json:"kind"`
	Status            string `json:"status"`
	Target            string `json:"target,omitempty"`
	MaxClaimers       uint8  `json:"maxClaimers"`
	CurrentClaimers   uint8  `json:"currentClaimers"`
	ExpiresAt         int64  `json:"expiresAt"`
	ProofWindowHours  uint32 `json:"proofWindowHours"`
	ReviewWindowHours uint32 `json:"reviewWindowHours"`
	DescriptionHash   string `json:"descriptionHash"`
	CreatedAt         int64  `json:"createdAt"`
}

type ClaimView struct {
	QuestID        string `json:"questId"`
	Claimer        string `json:"claimer"`
	StakeAmount    string `json:"stakeAmount"`
	Status         string `json:"status"`
	ProofDeadline  int64  `json:"proofDeadline"`
	ReviewDeadline int64  `json:"reviewDeadline"`
	ProofHash      string `json:"proofHash,omitempty"`
	ClaimedAt      int64  `json:"claimedAt"`
	SubmittedAt    int64  `json:"submittedAt"`
}

func configView(c quest.Config, minReward uint64) ConfigView {
	return ConfigView{
		Authority:         c.Authority.Hex(),
		Treasury:          c.Treasury.Hex(),
		FeeBps:            c.FeeBps,
		BurnBps:           c.BurnBps,
		QuestCount:        strconv.FormatUint(c.QuestCount, 10),
		ProofWindowHours:  c.ProofWindowHours,
		ReviewWindowHours: c.ReviewWindowHours,
		MinReward:         strconv.FormatUint(minReward, 10),
	}
}

func questView(q quest.Quest, minStake uint64) QuestView {
	v := QuestView{
		ID:                strconv.FormatUint(q.ID, 10),
		Creator:           q.Creator.Hex(),
		Escrow:            q.Escrow.Hex(),
		RewardMint:        q.RewardMint.Hex(),
		RewardAmount:      strconv.FormatUint(q.RewardAmount, 10),
		MinStake:          strconv.FormatUint(minStake, 10),
		Kind:              q.Kind.String(),
		Status:            q.Status.String(),
		MaxClaimers:       q.MaxClaimers,
		CurrentClaimers:   q.CurrentClaimers,
		ExpiresAt:         q.ExpiresAt,
		ProofWindowHours:  q.ProofWindowHours,
		ReviewWindowHours: q.ReviewWindowHours,
		DescriptionHash:   common.Hash(q.DescriptionHash).Hex(),
		CreatedAt:         q.CreatedAt,
	}
	if q.Target != (common.Address{}) {
		v.Target = q.Target.Hex()
	}
	return v
}

func claimView(c quest.Claim) ClaimView {
	v := ClaimView{
		QuestID:        strconv.FormatUint(c.QuestID, 10),
		Claimer:        c.Claimer.Hex(),
		StakeAmount:    strconv.FormatUint(c.StakeAmount, 10),
		Status:         c.Status.String(),
		ProofDeadline:  c.ProofDeadline,
		ReviewDeadline: c.ReviewDeadline,
		ClaimedAt:      c.ClaimedAt,
		SubmittedAt:    c.SubmittedAt,
	}
	if c.ProofHash != ([32]byte{}) {
		v.ProofHash = common.Hash(c.ProofHash).Hex()
	}
	return v
}
