package bridge

import (
	"context"

	"github.com/danmuck/capbridge/internal/observability"
	"github.com/danmuck/capbridge/internal/protocol"
	"github.com/danmuck/capbridge/internal/protocol/session"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

// handleMessage routes one inbound text message. It runs on the read loop.
func (b *Bridge) handleMessage(ctx context.Context, msg []byte) {
	in, err := protocol.Decode(msg)
	if err != nil {
		log.Warn().Err(err).Int("bytes", len(msg)).Msg("bridge.Bridge.handleMessage drop")
		return
	}
	observability.RecordBridgeMessage("in", in.Event)

	switch in.Event {
	case protocol.EventPing:
		b.handlePing(in.Data)
	case protocol.EventCommand:
		b.handleCommand(ctx, in.Data)
	case protocol.EventItem:
		log.Debug().
			Str("item_type", in.Data.Get("itemType").String()).
			Str("change_type", in.Data.Get("changeType").String()).
			Msg("bridge.Bridge.handleMessage ignore item event")
	default:
		log.Debug().Str("event", in.Event).Msg("bridge.Bridge.handleMessage unhandled")
	}
}

func (b *Bridge) handlePing(data gjson.Result) {
	sent, ok := protocol.PingTimestamp(data)
	if !ok {
		log.Debug().Msg("bridge.Bridge ping without timestamp")
		return
	}
	rtt := b.now().UnixMilli() - sent
	log.Info().Int64("round_trip_ms", rtt).Msg("bridge.Bridge ping")
}

func (b *Bridge) handleCommand(ctx context.Context, data gjson.Result) {
	cmd, err := protocol.ParseCommand(data)
	if err != nil {
		log.Warn().Str("command_id", cmd.RawID).Err(err).Msg("bridge.Bridge.handleCommand")
		if cmd.RawID != "" {
			b.reply(false, cmd, err.Error())
		}
		return
	}

	switch cmd.ID {
	case protocol.CommandSetClientID:
		b.mu.Lock()
		b.clientID = cmd.ClientID
		b.mu.Unlock()
		log.Info().Str("client_id", cmd.ClientID).Msg("bridge.Bridge client id assigned")
		b.SendAll()
		b.reply(true, cmd, "")
	case protocol.CommandExecAction:
		ok := b.targets != nil && b.targets.TakeAction(ctx, cmd.TargetID, cmd.ActionID, cmd.Payload)
		if !ok {
			log.Warn().
				Str("target_id", cmd.TargetID).
				Str("action_id", cmd.ActionID).
				Msg("bridge.Bridge action not taken")
			b.reply(false, cmd, "action not taken")
			return
		}
		b.reply(true, cmd, "")
	default:
		log.Warn().Str("command_id", cmd.RawID).Msg("bridge.Bridge.handleCommand unknown command")
		b.reply(false, cmd, "unknown command")
	}
}

func (b *Bridge) reply(ok bool, cmd protocol.Command, reason string) {
	msg, err := protocol.EncodeReply(ok, protocol.CommandReply{CommandID: cmd.RawID, Tx: cmd.Tx, Error: reason})
	if err != nil {
		log.Error().Str("command_id", cmd.RawID).Err(err).Msg("bridge.Bridge.reply encode")
		return
	}
	// Replies never coalesce.
	b.enqueue("", session.PriorityCritical, msg)
}
