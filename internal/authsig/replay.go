package authsig

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const DefaultReplayCacheSize = 100_000

var (
	ErrReplayed        = errors.New("authsig: request already accepted")
	ErrReplayCacheFull = errors.New("authsig: replay cache full")
)

type replayKey struct {
	signer common.Address
	digest common.Hash
}

// ReplayGuard verifies signed requests and accepts each (signer, digest) pair
// at most once. An entry is kept until its timestamp leaves the skew window,
// after which VerifyRequest reports the request as stale anyway.
//
// When the cache is full and nothing has aged out, requests are refused
// rather than evicting live entries.
type ReplayGuard struct {
	maxSkew    time.Duration
	maxEntries int

	mu   sync.Mutex
	seen map[replayKey]int64
}

func NewReplayGuard(maxSkew time.Duration, maxEntries int) *ReplayGuard {
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	if maxEntries <= 0 {
		maxEntries = DefaultReplayCacheSize
	}
	return &ReplayGuard{
		maxSkew:    maxSkew,
		maxEntries: maxEntries,
		seen:       make(map[replayKey]int64),
	}
}

// VerifyRequest is VerifyRequest plus the replay check.
func (g *ReplayGuard) VerifyRequest(r *http.Request, body []byte, now time.Time) (common.Address, error) {
	signer, m, err := verifyRequest(r, body, now, g.maxSkew)
	if err != nil {
		return common.Address{}, err
	}
	if err := g.admit(replayKey{signer: signer, digest: m.Digest()}, m.Timestamp, now); err != nil {
		return common.Address{}, err
	}
	return signer, nil
}

func (g *ReplayGuard) admit(k replayKey, ts int64, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.seen[k]; ok {
		return ErrReplayed
	}
	if len(g.seen) >= g.maxEntries {
		g.sweep(now)
		if len(g.seen) >= g.maxEntries {
			return fmt.Errorf("%w: %d entries", ErrReplayCacheFull, len(g.seen))
		}
	}
	g.seen[k] = ts
	return nil
}

func (g *ReplayGuard) sweep(now time.Time) {
	cutoff := now.Add(-g.maxSkew).Unix()
	for k, ts := range g.seen {
		if ts < cutoff {
			delete(g.seen, k)
		}
	}
}

// Len reports the number of remembered requests.
func (g *ReplayGuard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.seen)
}
