package protocol

import "encoding/json"

// Item is a record the coordinator stores by id.
type Item interface {
	ItemType() ItemType
	// Key identifies the record for outbound coalescing.
	Key() string
}

const InstanceStatusAvailable = "Available"

const (
	TargetOnline  = "online"
	TargetOffline = "offline"
)

type Machine struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	ExecName  string   `json:"execName"`
	ClientID  string   `json:"clientId"`
	Addresses []string `json:"addresses"`
	Hash      string   `json:"hash"`
}

type Instance struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	ClientID        string `json:"clientId"`
	ClusterID       string `json:"clusterId"`
	ServiceTypeCode string `json:"serviceTypeCode"`
	ServiceID       string `json:"serviceId"`
	MachineID       string `json:"machineId"`
	Status          string `json:"status"`
	Color           string `json:"color"`
	Hash            string `json:"hash"`
}

type Target struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	ServiceID       string   `json:"serviceId"`
	ActionIDs       []string `json:"actionIds"`
	EmitterIDs      []string `json:"emitterIds"`
	FgColor         string   `json:"fgColor"`
	BgColor         string   `json:"bgColor"`
	Category        string   `json:"category"`
	Tags            []string `json:"tags"`
	GroupIDs        []string `json:"groupIds"`
	ParentTargetIDs []string `json:"parentTargetIds"`
	RootLevel       bool     `json:"rootLevel"`
	Hash            string   `json:"hash"`
}

type Action struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	TargetID  string          `json:"targetId"`
	ServiceID string          `json:"serviceId"`
	Schema    json.RawMessage `json:"schema"`
	Hash      string          `json:"hash"`
}

type Emitter struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	TargetID  string          `json:"targetId"`
	ServiceID string          `json:"serviceId"`
	Schema    json.RawMessage `json:"schema"`
	Hash      string          `json:"hash"`
}

type TargetStatus struct {
	ID         string `json:"id"`
	TargetID   string `json:"targetId"`
	InstanceID string `json:"instanceId"`
	Status     string `json:"status"`
	Hash       string `json:"hash"`
}

// Pulse is one emitter firing. Timestamp is unix seconds.
type Pulse struct {
	ID        string         `json:"id"`
	EmitterID string         `json:"emitterId"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
	ClientID  string         `json:"clientId"`
	Hash      string         `json:"hash"`
}

func (Machine) ItemType() ItemType      { return ItemMachine }
func (Instance) ItemType() ItemType     { return ItemInstance }
func (Target) ItemType() ItemType       { return ItemTarget }
func (Action) ItemType() ItemType       { return ItemAction }
func (Emitter) ItemType() ItemType      { return ItemEmitter }
func (TargetStatus) ItemType() ItemType { return ItemTargetStatus }
func (Pulse) ItemType() ItemType        { return ItemPulse }

func (m Machine) Key() string      { return itemKey(ItemMachine, m.ID) }
func (i Instance) Key() string     { return itemKey(ItemInstance, i.ID) }
func (t Target) Key() string       { return itemKey(ItemTarget, t.ID) }
func (a Action) Key() string       { return itemKey(ItemAction, a.ID) }
func (e Emitter) Key() string      { return itemKey(ItemEmitter, e.ID) }
func (s TargetStatus) Key() string { return itemKey(ItemTargetStatus, s.TargetID) }
func (p Pulse) Key() string        { return itemKey(ItemPulse, p.EmitterID) }

func itemKey(t ItemType, id string) string {
	return string(t) + ":" + id
}
