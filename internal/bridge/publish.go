package bridge

import (
	"encoding/json"
	"slices"
	"strings"

	"github.com/danmuck/capbridge/internal/protocol"
	"github.com/danmuck/capbridge/internal/protocol/session"
	"github.com/danmuck/capbridge/internal/registry"
	"github.com/danmuck/capbridge/internal/schema"
	"github.com/rs/zerolog/log"
)

// SendAll publishes the machine, the instance and every registered target.
func (b *Bridge) SendAll() {
	b.publish(protocol.ChangeSet, b.machineRecord(), session.PriorityHigh)
	b.publish(protocol.ChangeSet, b.instanceRecord(), session.PriorityHigh)
	if b.targets == nil {
		return
	}
	views := b.targets.Snapshot()
	for _, v := range views {
		b.SendTarget(v)
	}
	log.Debug().Int("targets", len(views)).Msg("bridge.Bridge.SendAll")
}

// SendTarget publishes v's actions and emitters, then v itself, then marks
// it online.
func (b *Bridge) SendTarget(v registry.TargetView) {
	for _, a := range v.Actions {
		b.publish(protocol.ChangeSet, b.actionRecord(v.ID, a.ID, a.Name, a.Schema), session.PriorityHigh)
	}
	for _, e := range v.Emitters {
		b.publish(protocol.ChangeSet, b.emitterRecord(v.ID, e.ID, e.Name, e.Schema), session.PriorityHigh)
	}
	b.publish(protocol.ChangeSet, b.targetRecord(v), session.PriorityHigh)
	b.publish(protocol.ChangeSet, b.statusRecord(v.ID, protocol.TargetOnline), session.PriorityHigh)
}

// DeleteTarget removes v and its members from the coordinator.
func (b *Bridge) DeleteTarget(v registry.TargetView) {
	for _, a := range v.Actions {
		b.publish(protocol.ChangeDel, b.actionRecord(v.ID, a.ID, a.Name, a.Schema), session.PriorityHigh)
	}
	for _, e := range v.Emitters {
		b.publish(protocol.ChangeDel, b.emitterRecord(v.ID, e.ID, e.Name, e.Schema), session.PriorityHigh)
	}
	b.publish(protocol.ChangeSet, b.statusRecord(v.ID, protocol.TargetOffline), session.PriorityHigh)
	b.publish(protocol.ChangeDel, b.targetRecord(v), session.PriorityHigh)
	log.Debug().Str("target_id", v.ID).Msg("bridge.Bridge.DeleteTarget")
}

// PulseEmitter publishes one emitter firing. Pulses for the same emitter
// coalesce while queued.
func (b *Bridge) PulseEmitter(emitterID string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	b.publish(protocol.ChangeSet, protocol.Pulse{
		ID:        emitterID,
		EmitterID: emitterID,
		Data:      data,
		Timestamp: b.now().Unix(),
		ClientID:  b.ClientID(),
		Hash:      newTx(),
	}, session.PriorityLow)
}

func (b *Bridge) publish(change protocol.ChangeType, item protocol.Item, prio session.Priority) {
	msg, err := protocol.EncodeChange(change, item, newTx(), b.now())
	if err != nil {
		log.Error().Str("key", item.Key()).Err(err).Msg("bridge.Bridge.publish encode")
		return
	}
	b.enqueue(item.Key(), prio, msg)
}

func (b *Bridge) machineRecord() protocol.Machine {
	return protocol.Machine{
		ID:        b.id.MachineID,
		Name:      b.id.MachineID,
		ExecName:  b.id.MachineID,
		ClientID:  b.ClientID(),
		Addresses: slices.Clone(b.id.Addresses),
		Hash:      newTx(),
	}
}

func (b *Bridge) instanceRecord() protocol.Instance {
	return protocol.Instance{
		ID:              b.id.InstanceID,
		Name:            b.id.ServiceID,
		ClientID:        b.ClientID(),
		ClusterID:       b.id.ClusterID,
		ServiceTypeCode: b.cfg.ServiceTypeCode,
		ServiceID:       b.id.ServiceID,
		MachineID:       b.id.MachineID,
		Status:          protocol.InstanceStatusAvailable,
		Color:           b.color(),
		Hash:            newTx(),
	}
}

func (b *Bridge) targetRecord(v registry.TargetView) protocol.Target {
	return protocol.Target{
		ID:              v.ID,
		Name:            v.Name,
		ServiceID:       b.id.ServiceID,
		ActionIDs:       nonNil(v.ActionIDs()),
		EmitterIDs:      nonNil(v.EmitterIDs()),
		FgColor:         b.color(),
		BgColor:         b.color(),
		Category:        v.Metadata.Category,
		Tags:            nonNil(v.Metadata.Tags),
		GroupIDs:        nonNil(v.Metadata.GroupIDs),
		ParentTargetIDs: nonNil(v.Metadata.ParentIDs),
		RootLevel:       len(v.Metadata.ParentIDs) == 0,
		Hash:            newTx(),
	}
}

func (b *Bridge) actionRecord(targetID, id, name string, nodes []schema.Node) protocol.Action {
	return protocol.Action{
		ID:        id,
		Name:      name,
		TargetID:  targetID,
		ServiceID: b.id.ServiceID,
		Schema:    document(id, nodes),
		Hash:      newTx(),
	}
}

func (b *Bridge) emitterRecord(targetID, id, name string, nodes []schema.Node) protocol.Emitter {
	return protocol.Emitter{
		ID:        id,
		Name:      name,
		TargetID:  targetID,
		ServiceID: b.id.ServiceID,
		Schema:    document(id, nodes),
		Hash:      newTx(),
	}
}

func (b *Bridge) statusRecord(targetID, status string) protocol.TargetStatus {
	return protocol.TargetStatus{
		ID:         targetID,
		TargetID:   targetID,
		InstanceID: b.id.InstanceID,
		Status:     status,
		Hash:       newTx(),
	}
}

func (b *Bridge) color() string {
	return strings.ToUpper(b.cfg.Color)
}

func document(id string, nodes []schema.Node) json.RawMessage {
	raw, err := schema.DocumentJSON(nodes)
	if err != nil {
		log.Error().Str("member_id", id).Err(err).Msg("bridge.document")
		return json.RawMessage(`{}`)
	}
	return raw
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
