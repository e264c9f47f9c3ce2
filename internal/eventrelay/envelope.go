package eventrelay

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/juno-intents/quest-escrow/internal/queue"
	"github.com/juno-intents/quest-escrow/internal/quest"
)

const (
	Version      = "quest.events.v1"
	DefaultTopic = "quest.events.v1"

	HeaderEvent = "quest-event"
	HeaderSeq   = "quest-seq"

	protocolKey = "protocol"
)

var ErrBadEnvelope = errors.New("eventrelay: bad envelope")

// Envelope is the wire form of one outbox record.
type Envelope struct {
	Version string          `json:"version"`
	Seq     uint64          `json:"seq"`
	Event   string          `json:"event"`
	QuestID *uint64         `json:"questId,omitempty"`
	At      int64           `json:"at"`
	Payload json.RawMessage `json:"payload"`
}

// Record converts an outbox record into a queue record keyed by quest id, so
// events of one quest stay ordered within a partition.
func Record(rec quest.EventRecord) (queue.Record, error) {
	env := Envelope{
		Version: Version,
		Seq:     rec.Seq,
		Event:   rec.Name,
		At:      rec.At,
		Payload: json.RawMessage(rec.Payload),
	}
	key := protocolKey
	if rec.HasQuest {
		id := rec.QuestID
		env.QuestID = &id
		key = strconv.FormatUint(id, 10)
	}
	b, err := json.Marshal(env)
	if err != nil {
		return queue.Record{}, fmt.Errorf("eventrelay: encode seq %d: %w", rec.Seq, err)
	}
	return queue.Record{
		Key:   []byte(key),
		Value: b,
		Headers: map[string]string{
			HeaderEvent: rec.Name,
			HeaderSeq:   strconv.FormatUint(rec.Seq, 10),
		},
	}, nil
}

// Decode parses an envelope and its typed event.
func Decode(b []byte) (Envelope, quest.Event, error) {
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	if env.Version != Version {
		return Envelope{}, nil, fmt.Errorf("%w: version %q", ErrBadEnvelope, env.Version)
	}
	rec := quest.EventRecord{
		Seq:     env.Seq,
		Name:    env.Event,
		At:      env.At,
		Payload: env.Payload,
	}
	if env.QuestID != nil {
		rec.QuestID, rec.HasQuest = *env.QuestID, true
	}
	ev, err := quest.DecodeEvent(rec)
	if err != nil {
		return Envelope{}, nil, fmt.Errorf("%w: %v", ErrBadEnvelope, err)
	}
	return env, ev, nil
}
