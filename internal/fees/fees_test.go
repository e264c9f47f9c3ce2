package fees

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestCompute(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		reward  uint64
		bps     uint16
		wantFee uint64
		wantNet uint64
	}{
		{name: "five_percent", reward: 1_000_000, bps: 500, wantFee: 50_000, wantNet: 950_000},
		{name: "zero_rate", reward: 1_000_000, bps: 0, wantFee: 0, wantNet: 1_000_000},
		{name: "full_rate", reward: 1_000_000, bps: 10_000, wantFee: 1_000_000, wantNet: 0},
		{name: "truncates", reward: 1_999, bps: 1, wantFee: 0, wantNet: 1_999},
		{name: "truncates_partial", reward: 10_001, bps: 3, wantFee: 3, wantNet: 9_998},
		{name: "zero_reward", reward: 0, bps: 250, wantFee: 0, wantNet: 0},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fee, net, err := Compute(tc.reward, tc.bps)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if fee != tc.wantFee || net != tc.wantNet {
				t.Fatalf("got fee=%d net=%d want fee=%d net=%d", fee, net, tc.wantFee, tc.wantNet)
			}
		})
	}
}

func TestCompute_RejectsRateAbove100Percent(t *testing.T) {
	t.Parallel()

	if _, _, err := Compute(1, 10_001); !errors.Is(err, ErrInvalidBps) {
		t.Fatalf("expected ErrInvalidBps, got %v", err)
	}
}

func TestCompute_OverflowIsFatal(t *testing.T) {
	t.Parallel()

	if _, _, err := Compute(math.MaxUint64, 2); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
	// Largest reward whose product with 10000 still fits.
	max := uint64(math.MaxUint64) / BpsDenominator
	if _, _, err := Compute(max, BpsDenominator); err != nil {
		t.Fatalf("Compute(max): %v", err)
	}
	if _, _, err := Compute(max+1, BpsDenominator); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow for max+1, got %v", err)
	}
}

func TestCompute_FeePlusNetEqualsReward(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		reward := r.Uint64() % (math.MaxUint64 / BpsDenominator)
		bps := uint16(r.Intn(BpsDenominator + 1))

		fee, net, err := Compute(reward, bps)
		if err != nil {
			t.Fatalf("Compute(%d, %d): %v", reward, bps, err)
		}
		if fee+net != reward {
			t.Fatalf("fee+net != reward: %d + %d != %d", fee, net, reward)
		}
		if want := reward * uint64(bps) / BpsDenominator; fee != want {
			t.Fatalf("fee: got %d want %d (reward=%d bps=%d)", fee, want, reward, bps)
		}
	}
}

func TestMinStake(t *testing.T) {
	t.Parallel()

	got, err := MinStake(1_000_000)
	if err != nil {
		t.Fatalf("MinStake: %v", err)
	}
	if got != 50_000 {
		t.Fatalf("MinStake: got %d want 50000", got)
	}
	got, err = MinStake(19)
	if err != nil {
		t.Fatalf("MinStake(19): %v", err)
	}
	if got != 0 {
		t.Fatalf("MinStake(19): got %d want 0", got)
	}
	if _, err := MinStake(math.MaxUint64); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected ErrOverflow, got %v", err)
	}
}

func TestBurn(t *testing.T) {
	t.Parallel()

	got, err := Burn(50_000, 2_000)
	if err != nil {
		t.Fatalf("Burn: %v", err)
	}
	if got != 10_000 {
		t.Fatalf("Burn: got %d want 10000", got)
	}
	if _, err := Burn(1, 20_000); !errors.Is(err, ErrInvalidBps) {
		t.Fatalf("expected ErrInvalidBps, got %v", err)
	}
}

func TestCheckedArithmetic(t *testing.T) {
	t.Parallel()

	if _, err := Add(math.MaxUint64, 1); !errors.Is(err, ErrOverflow) {
		t.Fatalf("Add: expected ErrOverflow, got %v", err)
	}
	if v, err := Add(math.MaxUint64-1, 1); err != nil || v != math.MaxUint64 {
		t.Fatalf("Add: got %d, %v", v, err)
	}
	if _, err := Sub(1, 2); !errors.Is(err, ErrOverflow) {
		t.Fatalf("Sub: expected ErrOverflow, got %v", err)
	}
	if v, err := Sub(5, 5); err != nil || v != 0 {
		t.Fatalf("Sub: got %d, %v", v, err)
	}
	if _, err := Mul(math.MaxUint64, 2); !errors.Is(err, ErrOverflow) {
		t.Fatalf("Mul: expected ErrOverflow, got %v", err)
	}
	if _, err := MulDiv(1, 1, 0); !errors.Is(err, ErrOverflow) {
		t.Fatalf("MulDiv: expected ErrOverflow on zero divisor, got %v", err)
	}
}
