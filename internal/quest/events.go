package quest

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Event names as they appear in the outbox and on the wire.
const (
	EventProtocolInitialized = "ProtocolInitialized"
	EventQuestCreated        = "QuestCreated"
	EventQuestClaimed        = "QuestClaimed"
	EventProofSubmitted      = "ProofSubmitted"
	EventQuestCompleted      = "QuestCompleted"
	EventQuestFailed         = "QuestFailed"
	EventQuestCancelled      = "QuestCancelled"
	EventClaimAbandoned      = "ClaimAbandoned"
	EventClaimExpired        = "ClaimExpired"
)

// Event is one structured record emitted by a successful operation.
type Event interface {
	EventName() string
}

// EventRecord is an Event as persisted in the append-only outbox.
type EventRecord struct {
	// Seq is assigned by the store and strictly increases in commit order.
	Seq     uint64
	Name    string
	QuestID uint64
	// HasQuest is false only for protocol-level events.
	HasQuest bool
	At       int64
	Payload  []byte
}

type FailReason string

const FailReasonRejected FailReason = "rejected"

// ReleaseReason distinguishes the two ways a claim gives its slot back.
type ReleaseReason string

const (
	ReleaseAbandoned    ReleaseReason = "abandoned"
	ReleaseProofTimeout ReleaseReason = "proof_timeout"
)

type ProtocolInitialized struct {
	Authority         common.Address `json:"authority"`
	Treasury          common.Address `json:"treasury"`
	FeeBps            uint16         `json:"feeBps"`
	BurnBps           uint16         `json:"burnBps"`
	ProofWindowHours  uint32         `json:"proofWindowHours"`
	ReviewWindowHours uint32         `json:"reviewWindowHours"`
}

type QuestCreated struct {
	QuestID      uint64         `json:"questId"`
	Creator      common.Address `json:"creator"`
	Escrow       common.Address `json:"escrow"`
	RewardAmount uint64         `json:"rewardAmount"`
	RewardMint   common.Address `json:"rewardMint"`
	Kind         string         `json:"kind"`
	Target       common.Address `json:"target"`
	MaxClaimers  uint8          `json:"maxClaimers"`
	ExpiresAt    int64          `json:"expiresAt"`
	Description  common.Hash    `json:"descriptionHash"`
}

type QuestClaimed struct {
	QuestID       uint64         `json:"questId"`
	Claimer       common.Address `json:"claimer"`
	StakeAmount   uint64         `json:"stakeAmount"`
	ProofDeadline int64          `json:"proofDeadline"`
}

type ProofSubmitted struct {
	QuestID        uint64         `json:"questId"`
	Claimer        common.Address `json:"claimer"`
	ProofHash      common.Hash    `json:"proofHash"`
	ReviewDeadline int64          `json:"reviewDeadline"`
}

// VoidedClaim is a sibling claim settled alongside a terminal transition.
type VoidedClaim struct {
	Claimer       common.Address `json:"claimer"`
	StakeReturned uint64         `json:"stakeReturned"`
}

type QuestCompleted struct {
	QuestID      uint64         `json:"questId"`
	Claimer      common.Address `json:"claimer"`
	NetReward    uint64         `json:"netReward"`
	Fee          uint64         `json:"fee"`
	Burn         uint64         `json:"burn"`
	Stake        uint64         `json:"stake"`
	AutoApproved bool           `json:"autoApproved"`
	Voided       []VoidedClaim  `json:"voided,omitempty"`
}

type QuestFailed struct {
	QuestID       uint64         `json:"questId"`
	Claimer       common.Address `json:"claimer"`
	Reason        FailReason     `json:"reason"`
	SafetyFlagged bool           `json:"safetyFlagged"`
	// ToCreator is the total moved to the creator (reward, plus the stake unless safety flagged).
	ToCreator     uint64         `json:"toCreator"`
	StakeReturned uint64         `json:"stakeReturned"`
	Voided        []VoidedClaim  `json:"voided,omitempty"`
}

type QuestCancelled struct {
	QuestID  uint64         `json:"questId"`
	Creator  common.Address `json:"creator"`
	Refunded uint64         `json:"refunded"`
}

type ClaimAbandoned struct {
	QuestID        uint64         `json:"questId"`
	Claimer        common.Address `json:"claimer"`
	ForfeitedStake uint64         `json:"forfeitedStake"`
	Reason         ReleaseReason  `json:"reason"`
}

type ClaimExpired struct {
	QuestID        uint64         `json:"questId"`
	Claimer        common.Address `json:"claimer"`
	ForfeitedStake uint64         `json:"forfeitedStake"`
	Reason         ReleaseReason  `json:"reason"`
}

func (ProtocolInitialized) EventName() string { return EventProtocolInitialized }
func (QuestCreated) EventName() string        { return EventQuestCreated }
func (QuestClaimed) EventName() string        { return EventQuestClaimed }
func (ProofSubmitted) EventName() string      { return EventProofSubmitted }
func (QuestCompleted) EventName() string      { return EventQuestCompleted }
func (QuestFailed) EventName() string         { return EventQuestFailed }
func (QuestCancelled) EventName() string      { return EventQuestCancelled }
func (ClaimAbandoned) EventName() string      { return EventClaimAbandoned }
func (ClaimExpired) EventName() string        { return EventClaimExpired }

func newEventRecord(at int64, e Event) (EventRecord, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return EventRecord{}, fmt.Errorf("quest: encode %s event: %w", e.EventName(), err)
	}
	rec := EventRecord{
		Name:    e.EventName(),
		At:      at,
		Payload: payload,
	}
	rec.QuestID, rec.HasQuest = questIDOf(e)
	return rec, nil
}

func questIDOf(e Event) (uint64, bool) {
	switch ev := e.(type) {
	case QuestCreated:
		return ev.QuestID, true
	case QuestClaimed:
		return ev.QuestID, true
	case ProofSubmitted:
		return ev.QuestID, true
	case QuestCompleted:
		return ev.QuestID, true
	case QuestFailed:
		return ev.QuestID, true
	case QuestCancelled:
		return ev.QuestID, true
	case ClaimAbandoned:
		return ev.QuestID, true
	case ClaimExpired:
		return ev.QuestID, true
	default:
		return 0, false
	}
}

// DecodeEvent decodes an outbox record back into its typed event.
func DecodeEvent(rec EventRecord) (Event, error) {
	var (
		e   Event
		err error
	)
	switch rec.Name {
	case EventProtocolInitialized:
		var v ProtocolInitialized
		err = json.Unmarshal(rec.Payload, &v)
		e = v
	case EventQuestCreated:
		var v QuestCreated
		err = json.Unmarshal(rec.Payload, &v)
		e = v
	case EventQuestClaimed:
		var v QuestClaimed
		err = json.Unmarshal(rec.Payload, &v)
		e = v
	case EventProofSubmitted:
		var v ProofSubmitted
		err = json.Unmarshal(rec.Payload, &v)
		e = v
	case EventQuestCompleted:
		var v QuestCompleted
		err = json.Unmarshal(rec.Payload, &v)
		e = v
	case EventQuestFailed:
		var v QuestFailed
		err = json.Unmarshal(rec.Payload, &v)
		e = v
	case EventQuestCancelled:
		var v QuestCancelled
		err = json.Unmarshal(rec.Payload, &v)
		e = v
	case EventClaimAbandoned:
		var v ClaimAbandoned
		err = json.Unmarshal(rec.Payload, &v)
		e = v
	case EventClaimExpired:
		var v ClaimExpired
		err = json.Unmarshal(rec.Payload, &v)
		e = v
	default:
		return nil, fmt.Errorf("quest: unknown event %q", rec.Name)
	}
	if err != nil {
		return nil, fmt.Errorf("quest: decode %s event: %w", rec.Name, err)
	}
	return e, nil
}
