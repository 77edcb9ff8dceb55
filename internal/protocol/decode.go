package protocol

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// Inbound is a decoded envelope; Data stays unparsed until routed.
type Inbound struct {
	Event string
	Data  gjson.Result
}

func Decode(msg []byte) (Inbound, error) {
	if !gjson.ValidBytes(msg) {
		return Inbound{}, ErrMalformed
	}
	root := gjson.ParseBytes(msg)
	if !root.IsObject() {
		return Inbound{}, ErrMalformed
	}
	event := root.Get("event")
	if event.Type != gjson.String || event.Str == "" {
		return Inbound{}, ErrMissingEvent
	}
	return Inbound{Event: event.Str, Data: root.Get("data")}, nil
}

// Command is the data of an EventCommand envelope.
type Command struct {
	// ID is canonical; RawID is what the coordinator sent.
	ID       string
	RawID    string
	Tx       string
	ClientID string
	ActionID string
	TargetID string
	Payload  []byte
}

func ParseCommand(data gjson.Result) (Command, error) {
	raw := strings.TrimSpace(data.Get("commandId").String())
	if raw == "" {
		return Command{}, ErrMissingCommand
	}
	body := data.Get("command")
	cmd := Command{
		ID:    CanonicalCommand(raw),
		RawID: raw,
		Tx:    body.Get("tx").String(),
	}

	switch cmd.ID {
	case CommandSetClientID:
		cmd.ClientID = body.Get("clientId").String()
		if cmd.ClientID == "" {
			return cmd, ErrMissingClient
		}
	case CommandExecAction:
		cmd.ActionID = body.Get("action.id").String()
		cmd.TargetID = body.Get("action.targetId").String()
		if cmd.ActionID == "" {
			return cmd, fmt.Errorf("%w: command %s", ErrMissingAction, raw)
		}
		if cmd.TargetID == "" {
			cmd.TargetID = TargetFromActionID(cmd.ActionID)
		}
		cmd.Payload = []byte("{}")
		if payload := body.Get("data"); payload.Exists() {
			cmd.Payload = []byte(payload.Raw)
		}
	}
	return cmd, nil
}

// TargetFromActionID strips the trailing member name from an action id.
func TargetFromActionID(actionID string) string {
	i := strings.LastIndex(actionID, ":")
	if i <= 0 {
		return ""
	}
	return actionID[:i]
}

// PingTimestamp reads the millisecond timestamp of an EventPing envelope.
func PingTimestamp(data gjson.Result) (int64, bool) {
	ts := data.Get("timestamp")
	if ts.Type != gjson.Number {
		return 0, false
	}
	return ts.Int(), true
}
