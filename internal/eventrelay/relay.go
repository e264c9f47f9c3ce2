// Package eventrelay moves committed events from the quest outbox to the queue.
//
// Delivery is at least once: a batch is marked published only after the
// producer accepted all of it, so a crash in between republishes the batch.
// Consumers dedupe on Envelope.Seq.
package eventrelay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/juno-intents/quest-escrow/internal/queue"
	"github.com/juno-intents/quest-escrow/internal/quest"
)

var ErrInvalidConfig = errors.New("eventrelay: invalid config")

// Recorder is satisfied by *metrics.Metrics.
type Recorder interface {
	RelayBatch(published int, newest time.Time, now time.Time)
	RelayFailed()
}

type nopRecorder struct{}

func (nopRecorder) RelayBatch(int, time.Time, time.Time) {}
func (nopRecorder) RelayFailed()                         {}

type Config struct {
	Topic     string
	BatchSize int
	Now       func() time.Time
}

type Relay struct {
	cfg      Config
	events   quest.EventLog
	producer queue.Producer
	rec      Recorder
	log      *slog.Logger
}

func New(cfg Config, events quest.EventLog, producer queue.Producer, rec Recorder, log *slog.Logger) (*Relay, error) {
	if events == nil || producer == nil {
		return nil, fmt.Errorf("%w: nil event log or producer", ErrInvalidConfig)
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("%w: BatchSize must be > 0", ErrInvalidConfig)
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Relay{cfg: cfg, events: events, producer: producer, rec: rec, log: log}, nil
}

// Tick publishes one batch and returns how many events it moved.
func (r *Relay) Tick(ctx context.Context) (int, error) {
	recs, err := r.events.Unpublished(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("eventrelay: read outbox: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	out := make([]queue.Record, 0, len(recs))
	seqs := make([]uint64, 0, len(recs))
	var newest int64
	for _, rec := range recs {
		qr, err := Record(rec)
		if err != nil {
			r.rec.RelayFailed()
			return 0, err
		}
		out = append(out, qr)
		seqs = append(seqs, rec.Seq)
		if rec.At > newest {
			newest = rec.At
		}
	}

	if err := r.producer.Publish(ctx, r.cfg.Topic, out...); err != nil {
		r.rec.RelayFailed()
		return 0, fmt.Errorf("eventrelay: publish %d events: %w", len(out), err)
	}
	if err := r.events.MarkPublished(ctx, seqs); err != nil {
		r.rec.RelayFailed()
		return 0, fmt.Errorf("eventrelay: mark published: %w", err)
	}

	r.rec.RelayBatch(len(out), time.Unix(newest, 0), r.cfg.Now())
	r.log.Info("events published", "count", len(out), "firstSeq", seqs[0], "lastSeq", seqs[len(seqs)-1], "topic", r.cfg.Topic)
	return len(out), nil
}
