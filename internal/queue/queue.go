// Package queue carries relay envelopes between the outbox relay and its
// followers, over Kafka in production and line-delimited stdio locally.
package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const (
	DriverKafka = "kafka"
	DriverStdio = "stdio"
)

var ErrInvalidConfig = errors.New("queue: invalid config")

// Record is one message to publish. Records sharing a Key land on the same
// Kafka partition and keep their relative order.
type Record struct {
	Key     []byte
	Value   []byte
	Headers map[string]string
}

// Message is a delivered record. Ack it once it has been handled; an unacked
// Kafka message is redelivered to the group after a restart.
type Message struct {
	Topic string
	Value []byte

	ack func(context.Context) error
}

func (m Message) Ack(ctx context.Context) error {
	if m.ack == nil {
		return nil
	}
	return m.ack(ctx)
}

// Consumer delivers messages until its context ends or Close is called, then
// closes both channels.
type Consumer interface {
	Messages() <-chan Message
	Errors() <-chan error
	Close() error
}

// Producer publishes records. A Publish call either delivers every record or
// returns an error; callers retry the whole batch.
type Producer interface {
	Publish(ctx context.Context, topic string, recs ...Record) error
	Close() error
}

type ConsumerConfig struct {
	Driver string

	Brokers []string
	Group   string
	Topics  []string

	// Reader defaults to os.Stdin for the stdio driver.
	Reader       io.Reader
	MaxLineBytes int
}

type ProducerConfig struct {
	Driver string

	Brokers      []string
	BatchTimeout time.Duration

	// Writer defaults to os.Stdout for the stdio driver.
	Writer io.Writer
}

func NewConsumer(ctx context.Context, cfg ConsumerConfig) (Consumer, error) {
	switch driver(cfg.Driver) {
	case DriverKafka:
		return newKafkaConsumer(ctx, cfg)
	case DriverStdio:
		return newLineConsumer(ctx, cfg), nil
	}
	return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
}

func NewProducer(cfg ProducerConfig) (Producer, error) {
	switch driver(cfg.Driver) {
	case DriverKafka:
		return newKafkaProducer(cfg)
	case DriverStdio:
		return newLineProducer(cfg.Writer), nil
	}
	return nil, fmt.Errorf("%w: unsupported driver %q", ErrInvalidConfig, cfg.Driver)
}

func driver(v string) string {
	if v = strings.ToLower(strings.TrimSpace(v)); v == "" {
		return DriverKafka
	}
	return v
}

// SplitCommaList parses a flag value such as "b1:9092, b2:9092" and drops
// empty entries.
func SplitCommaList(s string) []string {
	return compact(strings.Split(s, ","))
}

func compact(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
