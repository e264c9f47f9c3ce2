package queue

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	envKafkaTLS = "QUEST_QUEUE_KAFKA_TLS"

	kafkaMaxFetchBytes    = 10 << 20
	kafkaDialTimeout      = 10 * time.Second
	defaultKafkaBatchWait = 10 * time.Millisecond
)

// kafkaTLS returns nil unless QUEST_QUEUE_KAFKA_TLS is set to a true value.
func kafkaTLS() *tls.Config {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(envKafkaTLS))) {
	case "1", "true", "yes", "on":
		return &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return nil
}

type kafkaConsumer struct {
	reader *kafka.Reader
	msgs   chan Message
	errs   chan error

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func newKafkaConsumer(parent context.Context, cfg ConsumerConfig) (Consumer, error) {
	brokers, topics := compact(cfg.Brokers), compact(cfg.Topics)
	group := strings.TrimSpace(cfg.Group)
	switch {
	case len(brokers) == 0:
		return nil, fmt.Errorf("%w: kafka consumer needs a broker", ErrInvalidConfig)
	case group == "":
		return nil, fmt.Errorf("%w: kafka consumer needs a group", ErrInvalidConfig)
	case len(topics) == 0:
		return nil, fmt.Errorf("%w: kafka consumer needs a topic", ErrInvalidConfig)
	}

	rc := kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     group,
		GroupTopics: topics,
		MaxBytes:    kafkaMaxFetchBytes,
	}
	if tc := kafkaTLS(); tc != nil {
		rc.Dialer = &kafka.Dialer{Timeout: kafkaDialTimeout, TLS: tc}
	}

	ctx, cancel := context.WithCancel(parent)
	c := &kafkaConsumer{
		reader: kafka.NewReader(rc),
		msgs:   make(chan Message, 64),
		errs:   make(chan error, 8),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go c.fetch(ctx)
	return c, nil
}

// fetchStopped reports whether a FetchMessage error means the reader is gone
// rather than a transient broker failure.
func fetchStopped(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, io.EOF)
}

func (c *kafkaConsumer) fetch(ctx context.Context) {
	defer func() {
		close(c.errs)
		close(c.msgs)
		close(c.done)
	}()

	for {
		km, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if fetchStopped(err) || ctx.Err() != nil {
				return
			}
			if !send(ctx, c.errs, err) {
				return
			}
			continue
		}
		msg := Message{
			Topic: km.Topic,
			Value: km.Value,
			ack: func(ctx context.Context) error {
				return c.reader.CommitMessages(ctx, km)
			},
		}
		if !send(ctx, c.msgs, msg) {
			return
		}
	}
}

func (c *kafkaConsumer) Messages() <-chan Message { return c.msgs }
func (c *kafkaConsumer) Errors() <-chan error     { return c.errs }

func (c *kafkaConsumer) Close() error {
	var err error
	c.once.Do(func() {
		c.cancel()
		err = c.reader.Close()
		<-c.done
	})
	return err
}

type kafkaProducer struct {
	w *kafka.Writer
}

func newKafkaProducer(cfg ProducerConfig) (Producer, error) {
	brokers := compact(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka producer needs a broker", ErrInvalidConfig)
	}
	wait := cfg.BatchTimeout
	if wait <= 0 {
		wait = defaultKafkaBatchWait
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		BatchTimeout: wait,
		RequiredAcks: kafka.RequireAll,
	}
	if tc := kafkaTLS(); tc != nil {
		w.Transport = &kafka.Transport{TLS: tc}
	}
	return &kafkaProducer{w: w}, nil
}

func (p *kafkaProducer) Publish(ctx context.Context, topic string, recs ...Record) error {
	if topic = strings.TrimSpace(topic); topic == "" {
		return fmt.Errorf("%w: topic is required", ErrInvalidConfig)
	}
	if len(recs) == 0 {
		return nil
	}
	msgs := make([]kafka.Message, len(recs))
	for i, r := range recs {
		msgs[i] = kafka.Message{Topic: topic, Key: r.Key, Value: r.Value, Headers: kafkaHeaders(r.Headers)}
	}
	return p.w.WriteMessages(ctx, msgs...)
}

func (p *kafkaProducer) Close() error { return p.w.Close() }

func kafkaHeaders(h map[string]string) []kafka.Header {
	if len(h) == 0 {
		return nil
	}
	out := make([]kafka.Header, 0, len(h))
	for k, v := range h {
		out = append(out, kafka.Header{Key: k, Value: []byte(v)})
	}
	return out
}
