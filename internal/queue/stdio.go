package queue

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"sync"
)

const defaultMaxLineBytes = 1 << 20

// send delivers v unless ctx ends first.
func send[T any](ctx context.Context, ch chan<- T, v T) bool {
	select {
	case ch <- v:
		return true
	case <-ctx.Done():
		return false
	}
}

// lineConsumer turns each non-blank input line into a message, so a relay
// running with the stdio driver can be piped straight into quest-event-tail.
type lineConsumer struct {
	msgs   chan Message
	errs   chan error
	cancel context.CancelFunc
}

func newLineConsumer(parent context.Context, cfg ConsumerConfig) Consumer {
	r := cfg.Reader
	if r == nil {
		r = os.Stdin
	}
	limit := cfg.MaxLineBytes
	if limit <= 0 {
		limit = defaultMaxLineBytes
	}

	ctx, cancel := context.WithCancel(parent)
	c := &lineConsumer{
		msgs:   make(chan Message, 64),
		errs:   make(chan error, 1),
		cancel: cancel,
	}
	go c.scan(ctx, r, limit)
	return c
}

func (c *lineConsumer) scan(ctx context.Context, r io.Reader, limit int) {
	defer close(c.errs)
	defer close(c.msgs)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, min(4096, limit)), limit)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if !send(ctx, c.msgs, Message{Value: bytes.Clone(line)}) {
			return
		}
	}
	if err := sc.Err(); err != nil {
		send(ctx, c.errs, err)
	}
}

func (c *lineConsumer) Messages() <-chan Message { return c.msgs }
func (c *lineConsumer) Errors() <-chan error     { return c.errs }

func (c *lineConsumer) Close() error {
	c.cancel()
	return nil
}

// lineProducer writes each record value as one line. Keys and headers have
// no stdio form and are dropped.
type lineProducer struct {
	mu sync.Mutex
	w  io.Writer
}

func newLineProducer(w io.Writer) Producer {
	if w == nil {
		w = os.Stdout
	}
	return &lineProducer{w: w}
}

func (p *lineProducer) Publish(_ context.Context, _ string, recs ...Record) error {
	var buf bytes.Buffer
	for _, r := range recs {
		buf.Write(r.Value)
		buf.WriteByte('\n')
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, err := p.w.Write(buf.Bytes())
	return err
}

func (p *lineProducer) Close() error { return nil }
