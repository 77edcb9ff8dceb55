package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/danmuck/capbridge/internal/bridge"
	"github.com/danmuck/capbridge/internal/demo"
	"github.com/danmuck/capbridge/internal/registry"
	"github.com/danmuck/capbridge/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type adminRig struct {
	admin  *Admin
	lamp   *demo.Lamp
	bridge *bridge.Bridge
	dialer *pipeDialer
}

func newAdminRig(t *testing.T) *adminRig {
	t.Helper()
	reg := registry.New(registry.Config{ServiceID: "svc", Policy: registry.DefaultPolicy()}, registry.Inline{})
	dialer := newPipeDialer()
	cfg := bridge.DefaultConfig()
	cfg.ServiceID = "svc"
	b := bridge.New(cfg, reg, dialer)
	reg.SetPublisher(b)
	t.Cleanup(func() { _ = b.Close() })

	lamp, obj, err := demo.NewLamp("Lamp")
	require.NoError(t, err)
	require.True(t, reg.Register(obj))
	return &adminRig{
		admin:  NewAdmin("svc", reg, registry.Inline{}, b, nil),
		lamp:   lamp,
		bridge: b,
		dialer: dialer,
	}
}

func (r *adminRig) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	r.admin.Handler().ServeHTTP(rec, req)
	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestAdminHealthAndReady(t *testing.T) {
	testlog.Start(t)
	rig := newAdminRig(t)

	rec, body := rig.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "svc", body["service"])

	rec, body = rig.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "disconnected", body["bridge"])

	require.NoError(t, rig.bridge.Connect(context.Background()))
	rec, body = rig.do(t, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ready"])
	assert.Equal(t, float64(1), body["targets"])
}

func TestAdminTargets(t *testing.T) {
	testlog.Start(t)
	rig := newAdminRig(t)

	rec, body := rig.do(t, http.MethodGet, "/targets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	targets := body["targets"].([]any)
	require.Len(t, targets, 1)
	assert.Equal(t, "svc:Lamp", targets[0].(map[string]any)["id"])

	rec, body = rig.do(t, http.MethodGet, "/targets/Lamp", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "svc:Lamp", body["id"])
	assert.Len(t, body["actions"], 5)
	assert.Len(t, body["emitters"], 1)

	rec, _ = rig.do(t, http.MethodGet, "/targets/svc:Lamp", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = rig.do(t, http.MethodGet, "/targets/Nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminTakeAction(t *testing.T) {
	testlog.Start(t)
	rig := newAdminRig(t)

	rec, body := rig.do(t, http.MethodPost, "/targets/Lamp/actions/RS_Flash", `{"Count":2}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["taken"])
	assert.Equal(t, "svc:Lamp:RS_Flash", body["action_id"])
	assert.Equal(t, 2, rig.lamp.Flashes())

	rec, _ = rig.do(t, http.MethodPost, "/targets/Lamp/actions/svc:Lamp:RS_Brightness", `{"RS_Brightness":0.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.5, rig.lamp.RS_Brightness, 1e-9)

	rec, body = rig.do(t, http.MethodPost, "/targets/Lamp/actions/RS_Dim", `{"Level":4}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, false, body["taken"])

	rec, _ = rig.do(t, http.MethodPost, "/targets/Lamp/actions/RS_Flash", `{"Count":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = rig.do(t, http.MethodPost, "/targets/Lamp/actions/RS_Nope", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = rig.do(t, http.MethodPost, "/targets/Nope/actions/RS_Flash", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminRescanAndReconnect(t *testing.T) {
	testlog.Start(t)
	rig := newAdminRig(t)

	rec, body := rig.do(t, http.MethodPost, "/targets/Lamp/rescan", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), body["added"])
	rec, _ = rig.do(t, http.MethodPost, "/targets/Nope/rescan", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = rig.do(t, http.MethodPost, "/reconnect", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "connected", body["bridge"])

	rig.dialer.setFail(true)
	rec, _ = rig.do(t, http.MethodPost, "/reconnect", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestAdminMetricsRoute(t *testing.T) {
	testlog.Start(t)
	rig := newAdminRig(t)
	rig.do(t, http.MethodGet, "/health", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	rig.admin.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "capbridge_")
}
