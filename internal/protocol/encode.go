package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// EncodeChange builds an EventItem message for item.
func EncodeChange(change ChangeType, item Item, tx string, at time.Time) ([]byte, error) {
	if item == nil {
		return nil, fmt.Errorf("%w: nil item", ErrMalformed)
	}
	return encode(EventItem, Change{
		ChangeType: change,
		ItemType:   item.ItemType(),
		Item:       item,
		Tx:         tx,
		CreatedAt:  at.UTC().Format(time.RFC3339Nano),
	})
}

// EncodeReply builds a command response, or a command error when ok is false.
func EncodeReply(ok bool, reply CommandReply) ([]byte, error) {
	event := EventCommandResponse
	if !ok {
		event = EventCommandError
	}
	return encode(event, reply)
}

func EncodePing(at time.Time) ([]byte, error) {
	return encode(EventPing, Ping{Timestamp: at.UnixMilli()})
}

func encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("protocol: encode %s: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}
