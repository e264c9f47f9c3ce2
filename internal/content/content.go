// Package content stores quest descriptions and proof payloads under the
// keccak256 hash that the quest core records as their commitment.
package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/juno-intents/quest-escrow/internal/blobstore"
	"github.com/juno-intents/quest-escrow/internal/derive"
)

type Kind string

const (
	KindDescription Kind = "descriptions"
	KindProof       Kind = "proofs"
)

var (
	ErrInvalidInput = errors.New("content: invalid input")
	ErrNotFound     = errors.New("content: not found")
	ErrCorrupt      = errors.New("content: hash mismatch")
)

type Store struct {
	blobs blobstore.Store
}

func New(blobs blobstore.Store) (*Store, error) {
	if blobs == nil {
		return nil, fmt.Errorf("%w: nil blob store", ErrInvalidInput)
	}
	return &Store{blobs: blobs}, nil
}

// Put stores payload and returns its hash. Storing the same payload twice is
// a no-op.
func (s *Store) Put(ctx context.Context, kind Kind, payload []byte, contentType string) ([32]byte, error) {
	if err := kind.validate(); err != nil {
		return [32]byte{}, err
	}
	if len(payload) == 0 {
		return [32]byte{}, fmt.Errorf("%w: empty payload", ErrInvalidInput)
	}
	hash := derive.ContentHash(payload)
	err := s.blobs.Create(ctx, key(kind, hash), payload, contentType)
	if err != nil && !errors.Is(err, blobstore.ErrExists) {
		return [32]byte{}, fmt.Errorf("content: put %s: %w", kind, err)
	}
	return hash, nil
}

// Get loads a payload and checks it still hashes to hash.
func (s *Store) Get(ctx context.Context, kind Kind, hash [32]byte) (blobstore.Object, error) {
	if err := kind.validate(); err != nil {
		return blobstore.Object{}, err
	}
	obj, err := s.blobs.Get(ctx, key(kind, hash))
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return blobstore.Object{}, fmt.Errorf("%w: %s %s", ErrNotFound, kind, common.Hash(hash).Hex())
		}
		return blobstore.Object{}, fmt.Errorf("content: get %s: %w", kind, err)
	}
	if derive.ContentHash(obj.Data) != hash {
		return blobstore.Object{}, fmt.Errorf("%w: %s %s", ErrCorrupt, kind, common.Hash(hash).Hex())
	}
	return obj, nil
}

// ParseHash accepts a 0x-prefixed or bare 64-char hex hash.
func ParseHash(s string) ([32]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != 64 {
		return [32]byte{}, fmt.Errorf("%w: hash must be 32 bytes hex", ErrInvalidInput)
	}
	b := common.FromHex(s)
	if len(b) != 32 {
		return [32]byte{}, fmt.Errorf("%w: hash must be 32 bytes hex", ErrInvalidInput)
	}
	return common.BytesToHash(b), nil
}

func (k Kind) validate() error {
	switch k {
	case KindDescription, KindProof:
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, string(k))
	}
}

func key(kind Kind, hash [32]byte) string {
	return string(kind) + "/" + strings.TrimPrefix(common.Hash(hash).Hex(), "0x")
}
