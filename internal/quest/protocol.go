package quest

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/juno-intents/quest-escrow/internal/deadline"
	"github.com/juno-intents/quest-escrow/internal/fees"
)

// Initialize creates the protocol config. It succeeds at most once per store.
func (e *Engine) Initialize(ctx context.Context, p InitParams) (Config, error) {
	if fees.ValidateBps(p.FeeBps) != nil || fees.ValidateBps(p.BurnBps) != nil {
		return Config{}, ErrInvalidFeeConfig
	}
	if p.Authority == (common.Address{}) {
		return Config{}, fmt.Errorf("%w: authority must be non-zero", ErrInvalidConfig)
	}
	if p.Treasury == (common.Address{}) {
		return Config{}, fmt.Errorf("%w: treasury must be non-zero", ErrInvalidConfig)
	}
	if p.ProofWindowHours == 0 {
		p.ProofWindowHours = deadline.DefaultProofWindowHours
	}
	if p.ReviewWindowHours == 0 {
		p.ReviewWindowHours = deadline.DefaultReviewWindowHours
	}

	cfg := Config{
		Authority:         p.Authority,
		Treasury:          p.Treasury,
		FeeBps:            p.FeeBps,
		BurnBps:           p.BurnBps,
		ProofWindowHours:  p.ProofWindowHours,
		ReviewWindowHours: p.ReviewWindowHours,
	}

	now := e.Now()
	err := e.apply(ctx, "initialize", now, func(tx Tx) (Event, error) {
		if err := tx.CreateConfig(ctx, cfg); err != nil {
			return nil, err
		}
		return ProtocolInitialized{
			Authority:         cfg.Authority,
			Treasury:          cfg.Treasury,
			FeeBps:            cfg.FeeBps,
			BurnBps:           cfg.BurnBps,
			ProofWindowHours:  cfg.ProofWindowHours,
			ReviewWindowHours: cfg.ReviewWindowHours,
		}, nil
	})
	if err != nil {
		return Config{}, err
	}
	e.log.Info("protocol initialized",
		"authority", cfg.Authority.Hex(),
		"treasury", cfg.Treasury.Hex(),
		"feeBps", cfg.FeeBps,
		"burnBps", cfg.BurnBps,
	)
	return cfg, nil
}
