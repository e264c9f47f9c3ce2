package derive

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/sha3"
)

const (
	questSignerPrefixV1 = "quest-signer"
	escrowPrefixV1      = "quest-escrow"
)

// QuestSignerV1 computes the identity that authorizes transfers out of a quest's escrow.
//
// Derivation:
//
//	signer = keccak256("quest-signer" || questIdBE64)[12:]
//
// No private key exists for this address; only the quest engine presents it to the ledger.
func QuestSignerV1(questID uint64) common.Address {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], questID)
	return common.BytesToAddress(keccak([]byte(questSignerPrefixV1), id[:]))
}

// EscrowV1 computes the escrow account owned by a quest signer.
//
// Derivation:
//
//	escrow = keccak256("quest-escrow" || signer)[12:]
func EscrowV1(signer common.Address) common.Address {
	return common.BytesToAddress(keccak([]byte(escrowPrefixV1), signer[:]))
}

// ContentHash is the 32-byte commitment used for quest descriptions and proof payloads.
func ContentHash(payload []byte) [32]byte {
	var out [32]byte
	copy(out[:], keccak(payload))
	return out
}

func keccak(parts ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		_, _ = h.Write(p)
	}
	return h.Sum(nil)
}
