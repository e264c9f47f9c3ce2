package eventrelay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/juno-intents/quest-escrow/internal/queue"
	"github.com/juno-intents/quest-escrow/internal/quest"
)

// HandlerFunc receives each event once, in per-quest sequence order.
type HandlerFunc func(ctx context.Context, env Envelope, ev quest.Event) error

// Follower consumes relayed events. Delivery is at least once, so it drops
// any envelope whose seq is not above the last one seen for the same quest.
type Follower struct {
	consumer queue.Consumer
	handle   HandlerFunc
	log      *slog.Logger

	last map[string]uint64
}

func NewFollower(consumer queue.Consumer, handle HandlerFunc, log *slog.Logger) (*Follower, error) {
	if consumer == nil || handle == nil {
		return nil, fmt.Errorf("%w: nil consumer or handler", ErrInvalidConfig)
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return &Follower{consumer: consumer, handle: handle, log: log, last: make(map[string]uint64)}, nil
}

// Run delivers messages until the consumer is drained or ctx ends. A handler
// error stops Run without acking the message so it is redelivered.
func (f *Follower) Run(ctx context.Context) error {
	msgs, errs := f.consumer.Messages(), f.consumer.Errors()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			f.log.Warn("consumer error", "err", err)
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if err := f.deliver(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (f *Follower) deliver(ctx context.Context, msg queue.Message) error {
	env, ev, err := Decode(msg.Value)
	if errors.Is(err, ErrBadEnvelope) {
		f.log.Warn("skipping bad envelope", "topic", msg.Topic, "err", err)
		return msg.Ack(ctx)
	}
	if err != nil {
		return err
	}

	key := protocolKey
	if env.QuestID != nil {
		key = strconv.FormatUint(*env.QuestID, 10)
	}
	if last, seen := f.last[key]; seen && env.Seq <= last {
		f.log.Debug("duplicate event", "seq", env.Seq, "key", key)
		return msg.Ack(ctx)
	}

	if err := f.handle(ctx, env, ev); err != nil {
		return fmt.Errorf("eventrelay: handle seq %d: %w", env.Seq, err)
	}
	f.last[key] = env.Seq
	return msg.Ack(ctx)
}
