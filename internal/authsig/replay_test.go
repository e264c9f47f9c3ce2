package authsig

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestReplayGuard(t *testing.T) {
	t.Parallel()

	key := mustKey(t)
	signedAt := time.Unix(1_770_000_000, 0)
	signed := func(body string, at time.Time) (*http.Request, []byte) {
		raw := []byte(body)
		req := httptest.NewRequest(http.MethodPost, "/v1/quests", bytes.NewReader(raw))
		if err := SignRequest(req, raw, key, at); err != nil {
			t.Fatalf("SignRequest: %v", err)
		}
		return req, raw
	}

	g := NewReplayGuard(time.Minute, 2)

	req, body := signed(`{"rewardAmount":"1000"}`, signedAt)
	if got, err := g.VerifyRequest(req, body, signedAt); err != nil || got != Address(key) {
		t.Fatalf("first: signer=%s err=%v", got.Hex(), err)
	}
	if _, err := g.VerifyRequest(req, body, signedAt.Add(10*time.Second)); !errors.Is(err, ErrReplayed) {
		t.Fatalf("replay: expected ErrReplayed, got %v", err)
	}

	req2, body2 := signed(`{"rewardAmount":"2000"}`, signedAt)
	if _, err := g.VerifyRequest(req2, body2, signedAt); err != nil {
		t.Fatalf("second: %v", err)
	}
	req3, body3 := signed(`{"rewardAmount":"3000"}`, signedAt)
	if _, err := g.VerifyRequest(req3, body3, signedAt); !errors.Is(err, ErrReplayCacheFull) {
		t.Fatalf("full: expected ErrReplayCacheFull, got %v", err)
	}

	// Entries past the skew window are swept to make room.
	later := signedAt.Add(2 * time.Minute)
	req4, body4 := signed(`{"rewardAmount":"3000"}`, later)
	if _, err := g.VerifyRequest(req4, body4, later); err != nil {
		t.Fatalf("after window: %v", err)
	}
	if g.Len() != 1 {
		t.Fatalf("len after sweep: %d", g.Len())
	}

	// Failed verification records nothing.
	bare := httptest.NewRequest(http.MethodPost, "/v1/quests", nil)
	if _, err := g.VerifyRequest(bare, nil, later); !errors.Is(err, ErrMissingHeaders) {
		t.Fatalf("bare: expected ErrMissingHeaders, got %v", err)
	}
	if g.Len() != 1 {
		t.Fatalf("len after rejected request: %d", g.Len())
	}
}
