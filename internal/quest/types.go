package quest

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// MinReward is the protocol-wide floor for a quest reward, in reward base units.
	MinReward uint64 = 1_000

	// MaxClaimersLimit bounds Quest.MaxClaimers.
	MaxClaimersLimit = 100
)

type Kind uint8

const (
	KindUnknown Kind = iota
	// KindDirect targets one specific claimer.
	KindDirect
	// KindOpen accepts any eligible claimer.
	KindOpen
)

func (k Kind) String() string {
	switch k {
	case KindDirect:
		return "direct"
	case KindOpen:
		return "open"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	switch s {
	case "direct":
		return KindDirect, true
	case "open":
		return KindOpen, true
	default:
		return KindUnknown, false
	}
}

type Status uint8

const (
	StatusUnknown Status = iota
	StatusActive
	StatusClaimed
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusClaimed:
		return "claimed"
	case StatusCompleted:
		return "completed"
	case StatusFailed:
		return "failed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(s string) (Status, bool) {
	for st := StatusActive; st <= StatusCancelled; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return StatusUnknown, false
}

type ClaimStatus uint8

const (
	ClaimStatusUnknown ClaimStatus = iota
	ClaimStatusActive
	ClaimStatusSubmitted
	ClaimStatusApproved
	ClaimStatusRejected
	ClaimStatusAbandoned
	ClaimStatusExpired
	// ClaimStatusVoided marks a claim that was still open when a sibling claim
	// settled the quest; its stake went back to its claimer.
	ClaimStatusVoided
)

func (s ClaimStatus) String() string {
	switch s {
	case ClaimStatusActive:
		return "active"
	case ClaimStatusSubmitted:
		return "submitted"
	case ClaimStatusApproved:
		return "approved"
	case ClaimStatusRejected:
		return "rejected"
	case ClaimStatusAbandoned:
		return "abandoned"
	case ClaimStatusExpired:
		return "expired"
	case ClaimStatusVoided:
		return "voided"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Open reports whether the claim's stake is still held in escrow.
func (s ClaimStatus) Open() bool {
	return s == ClaimStatusActive || s == ClaimStatusSubmitted
}

// Config is the process-wide protocol configuration. It is created once by
// Initialize; afterwards only QuestCount changes.
type Config struct {
	Authority common.Address
	Treasury  common.Address

	FeeBps  uint16
	BurnBps uint16

	// QuestCount is the id the next created quest receives.
	QuestCount uint64

	// Defaults captured by each quest at creation.
	ProofWindowHours  uint32
	ReviewWindowHours uint32
}

type Quest struct {
	ID         uint64
	Creator    common.Address
	Escrow     common.Address
	RewardMint common.Address

	// RewardAmount is fixed at creation.
	RewardAmount uint64

	Kind   Kind
	Status Status

	// Target is the only eligible claimer of a direct quest; zero for open quests.
	Target common.Address

	MaxClaimers     uint8
	CurrentClaimers uint8

	// ExpiresAt is the absolute expiry in unix seconds; 0 when the quest never expires.
	ExpiresAt int64

	ProofWindowHours  uint32
	ReviewWindowHours uint32

	DescriptionHash [32]byte
	CreatedAt       int64
}

// ClaimRef addresses a claim. At most one claim exists per (quest, claimer).
type ClaimRef struct {
	QuestID uint64
	Claimer common.Address
}

func (r ClaimRef) String() string {
	return fmt.Sprintf("%d/%s", r.QuestID, r.Claimer.Hex())
}

type Claim struct {
	QuestID uint64
	Claimer common.Address

	// StakeAmount is fixed at claim time.
	StakeAmount uint64

	Status ClaimStatus

	ProofDeadline int64
	// ReviewDeadline is 0 until proof is submitted.
	ReviewDeadline int64

	ProofHash   [32]byte
	ClaimedAt   int64
	SubmittedAt int64
}

func (c Claim) Ref() ClaimRef {
	return ClaimRef{QuestID: c.QuestID, Claimer: c.Claimer}
}

// InitParams configures Initialize. Zero windows select the protocol defaults.
type InitParams struct {
	Authority common.Address
	Treasury  common.Address
	FeeBps    uint16
	BurnBps   uint16

	ProofWindowHours  uint32
	ReviewWindowHours uint32
}

// CreateParams are the caller-supplied fields of a new quest.
type CreateParams struct {
	RewardMint   common.Address
	RewardAmount uint64
	Kind         Kind
	Target       common.Address
	MaxClaimers  uint8
	// ExpiresAt is an absolute unix timestamp; 0 for no expiry.
	ExpiresAt       int64
	DescriptionHash [32]byte
}
