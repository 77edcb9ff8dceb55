package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/capbridge/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestEncodeChangeEnvelope(t *testing.T) {
	testlog.Start(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg, err := EncodeChange(ChangeSet, Target{
		ID:         "svc:Lamp",
		Name:       "Lamp",
		ServiceID:  "svc",
		ActionIDs:  []string{"svc:Lamp:RS_Flash"},
		EmitterIDs: []string{},
		BgColor:    "#FF8800",
		Category:   "default",
		RootLevel:  true,
		Hash:       "h1",
	}, "tx-1", at)
	require.NoError(t, err)

	root := gjson.ParseBytes(msg)
	assert.Equal(t, EventItem, root.Get("event").String())
	assert.Equal(t, "SET", root.Get("data.changeType").String())
	assert.Equal(t, "Target", root.Get("data.itemType").String())
	assert.Equal(t, "tx-1", root.Get("data.tx").String())
	assert.Equal(t, "2026-03-01T12:00:00Z", root.Get("data.createdAt").String())
	assert.Equal(t, "svc:Lamp:RS_Flash", root.Get("data.item.actionIds.0").String())
	assert.True(t, root.Get("data.item.rootLevel").Bool())
}

func TestEncodeChangeNilItem(t *testing.T) {
	testlog.Start(t)
	_, err := EncodeChange(ChangeDel, nil, "tx", time.Now())
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestItemKeys(t *testing.T) {
	testlog.Start(t)
	assert.Equal(t, "Action:svc:Lamp:RS_Flash", Action{ID: "svc:Lamp:RS_Flash"}.Key())
	assert.Equal(t, "TargetStatus:svc:Lamp", TargetStatus{ID: "svc:Lamp", TargetID: "svc:Lamp"}.Key())
	assert.Equal(t, "Pulse:svc:Lamp:RS_Changed", Pulse{ID: "svc:Lamp:RS_Changed", EmitterID: "svc:Lamp:RS_Changed"}.Key())
}

func TestEncodeReply(t *testing.T) {
	testlog.Start(t)
	ok, err := EncodeReply(true, CommandReply{CommandID: "target:action:exec", Tx: "t1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"ws:m:command-response","data":{"commandId":"target:action:exec","tx":"t1"}}`, string(ok))

	failed, err := EncodeReply(false, CommandReply{CommandID: "x", Tx: "t2", Error: "not taken"})
	require.NoError(t, err)
	assert.Equal(t, EventCommandError, gjson.GetBytes(failed, "event").String())
	assert.Equal(t, "not taken", gjson.GetBytes(failed, "data.error").String())
}

func TestPingRoundTrip(t *testing.T) {
	testlog.Start(t)
	at := time.UnixMilli(1_700_000_000_123)
	msg, err := EncodePing(at)
	require.NoError(t, err)

	in, err := Decode(msg)
	require.NoError(t, err)
	assert.Equal(t, EventPing, in.Event)
	ts, ok := PingTimestamp(in.Data)
	require.True(t, ok)
	assert.Equal(t, int64(1_700_000_000_123), ts)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	testlog.Start(t)
	_, err := Decode([]byte(`{"event":`))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = Decode([]byte(`[1,2]`))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = Decode([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, ErrMissingEvent)
}

func TestParseExecCommand(t *testing.T) {
	testlog.Start(t)
	in, err := Decode([]byte(`{"event":"ws:m:command","data":{"commandId":"ExecTargetAction","command":{"tx":"t9","action":{"id":"svc:Lamp:RS_Flash","targetId":"svc:Lamp"},"data":{"Count":3}}}}`))
	require.NoError(t, err)
	cmd, err := ParseCommand(in.Data)
	require.NoError(t, err)
	assert.Equal(t, CommandExecAction, cmd.ID)
	assert.Equal(t, "ExecTargetAction", cmd.RawID)
	assert.Equal(t, "t9", cmd.Tx)
	assert.Equal(t, "svc:Lamp:RS_Flash", cmd.ActionID)
	assert.Equal(t, "svc:Lamp", cmd.TargetID)
	assert.JSONEq(t, `{"Count":3}`, string(cmd.Payload))
}

func TestParseExecCommandDerivesTarget(t *testing.T) {
	testlog.Start(t)
	data := gjson.Parse(`{"commandId":"target:action:exec","command":{"tx":"t","action":{"id":"svc:Lamp:RS_Flash"}}}`)
	cmd, err := ParseCommand(data)
	require.NoError(t, err)
	assert.Equal(t, "svc:Lamp", cmd.TargetID)
	assert.Equal(t, "{}", string(cmd.Payload))

	_, err = ParseCommand(gjson.Parse(`{"commandId":"target:action:exec","command":{"action":{}}}`))
	assert.True(t, errors.Is(err, ErrMissingAction))
}

func TestParseSetClientID(t *testing.T) {
	testlog.Start(t)
	cmd, err := ParseCommand(gjson.Parse(`{"commandId":"SetClientId","command":{"tx":"t","clientId":"c-7"}}`))
	require.NoError(t, err)
	assert.Equal(t, CommandSetClientID, cmd.ID)
	assert.Equal(t, "c-7", cmd.ClientID)

	_, err = ParseCommand(gjson.Parse(`{"commandId":"client:setId","command":{}}`))
	assert.ErrorIs(t, err, ErrMissingClient)
	_, err = ParseCommand(gjson.Parse(`{"command":{}}`))
	assert.ErrorIs(t, err, ErrMissingCommand)
}

func TestPulseRecordJSON(t *testing.T) {
	testlog.Start(t)
	raw, err := json.Marshal(Pulse{ID: "e", EmitterID: "e", Data: map[string]any{"Level": 0.5}, Timestamp: 10})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"e","emitterId":"e","data":{"Level":0.5},"timestamp":10,"clientId":"","hash":""}`, string(raw))
}

func TestTargetFromActionID(t *testing.T) {
	testlog.Start(t)
	assert.Equal(t, "svc:Lamp", TargetFromActionID("svc:Lamp:RS_Flash"))
	assert.Equal(t, "", TargetFromActionID("RS_Flash"))
}
