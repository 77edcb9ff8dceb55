package protocol

import "encoding/json"

// Event names carried in Envelope.Event.
const (
	EventItem            = "ws:m:event"
	EventPing            = "ws:m:ping"
	EventCommand         = "ws:m:command"
	EventCommandResponse = "ws:m:command-response"
	EventCommandError    = "ws:m:command-error"
)

// Command ids. Older coordinators send the alias form.
const (
	CommandSetClientID    = "client:setId"
	CommandExecAction     = "target:action:exec"
	aliasSetClientID      = "SetClientId"
	aliasExecTargetAction = "ExecTargetAction"
)

// CanonicalCommand maps alias command ids onto their canonical form.
func CanonicalCommand(id string) string {
	switch id {
	case aliasSetClientID:
		return CommandSetClientID
	case aliasExecTargetAction:
		return CommandExecAction
	default:
		return id
	}
}

type ChangeType string

const (
	ChangeSet ChangeType = "SET"
	ChangeDel ChangeType = "DEL"
)

type ItemType string

const (
	ItemMachine      ItemType = "Machine"
	ItemInstance     ItemType = "Instance"
	ItemTarget       ItemType = "Target"
	ItemAction       ItemType = "Action"
	ItemEmitter      ItemType = "Emitter"
	ItemTargetStatus ItemType = "TargetStatus"
	ItemPulse        ItemType = "Pulse"
)

// Envelope is the outer frame of every text message.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Change is the data of an EventItem envelope.
type Change struct {
	ChangeType ChangeType `json:"changeType"`
	ItemType   ItemType   `json:"itemType"`
	Item       Item       `json:"item"`
	Tx         string     `json:"tx"`
	CreatedAt  string     `json:"createdAt"`
}

// CommandReply is the data of a command response or error.
type CommandReply struct {
	CommandID string `json:"commandId"`
	Tx        string `json:"tx"`
	Error     string `json:"error,omitempty"`
}

// Ping is the data of an EventPing envelope. Timestamp is unix milliseconds.
type Ping struct {
	Timestamp int64 `json:"timestamp"`
}
