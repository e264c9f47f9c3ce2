package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/juno-intents/quest-escrow/internal/eventrelay"
	"github.com/juno-intents/quest-escrow/internal/quest"
	"github.com/juno-intents/quest-escrow/internal/queue"
)

func main() {
	var (
		queueDriver  = flag.String("queue-driver", queue.DriverKafka, "queue driver (kafka|stdio)")
		queueBrokers = flag.String("queue-brokers", "", "queue brokers (comma-separated; required for kafka)")
		queueGroup   = flag.String("queue-group", "quest-event-tail", "kafka consumer group")
		topic        = flag.String("topic", eventrelay.DefaultTopic, "topic to follow")
		maxLineBytes = flag.Int("max-line-bytes", 1<<20, "maximum stdio line size")
		events       = flag.String("events", "", "only print these event names (comma-separated)")
	)
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	brokers := queue.SplitCommaList(*queueBrokers)
	if strings.EqualFold(strings.TrimSpace(*queueDriver), queue.DriverKafka) && len(brokers) == 0 {
		fmt.Fprintln(os.Stderr, "error: --queue-brokers is required for --queue-driver=kafka")
		os.Exit(2)
	}
	if *maxLineBytes <= 0 {
		fmt.Fprintln(os.Stderr, "error: --max-line-bytes must be > 0")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	consumer, err := queue.NewConsumer(ctx, queue.ConsumerConfig{
		Driver:       *queueDriver,
		Brokers:      brokers,
		Group:        *queueGroup,
		Topics:       []string{*topic},
		MaxLineBytes: *maxLineBytes,
	})
	if err != nil {
		log.Error("init queue consumer", "err", err)
		os.Exit(2)
	}
	defer func() { _ = consumer.Close() }()

	f, err := eventrelay.NewFollower(consumer, printer(os.Stdout, queue.SplitCommaList(*events)), log)
	if err != nil {
		log.Error("init follower", "err", err)
		os.Exit(2)
	}
	if err := f.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("follow events", "err", err)
		os.Exit(1)
	}
}

type line struct {
	Seq     uint64      `json:"seq"`
	Event   string      `json:"event"`
	QuestID *uint64     `json:"questId,omitempty"`
	At      int64       `json:"at"`
	Payload quest.Event `json:"payload"`
}

// printer writes one JSON line per event, keeping only names in filter when
// it is non-empty.
func printer(w io.Writer, filter []string) eventrelay.HandlerFunc {
	keep := make(map[string]bool, len(filter))
	for _, name := range filter {
		keep[name] = true
	}
	enc := json.NewEncoder(w)
	return func(_ context.Context, env eventrelay.Envelope, ev quest.Event) error {
		if len(keep) > 0 && !keep[env.Event] {
			return nil
		}
		return enc.Encode(line{Seq: env.Seq, Event: env.Event, QuestID: env.QuestID, At: env.At, Payload: ev})
	}
}
