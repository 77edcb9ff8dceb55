package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/danmuck/capbridge/internal/bridge"
	"github.com/danmuck/capbridge/internal/config"
	"github.com/danmuck/capbridge/internal/demo"
	"github.com/danmuck/capbridge/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServiceConfig(dialer bridge.Dialer) ServiceConfig {
	cfg := DefaultServiceConfig()
	cfg.Config.ServiceID = "svc"
	cfg.Config.AdminAddr = "127.0.0.1:0"
	cfg.Config.BackoffInitial = 10 * time.Millisecond
	cfg.Config.BackoffMax = 20 * time.Millisecond
	cfg.Config.BackoffJitter = false
	cfg.Heartbeat = 50 * time.Millisecond
	cfg.Dialer = dialer
	return cfg
}

func TestServiceRequiresHosts(t *testing.T) {
	testlog.Start(t)
	svc := NewService(testServiceConfig(newPipeDialer()))
	err := svc.Serve(context.Background())
	assert.ErrorIs(t, err, ErrNoHosts)
}

func TestServiceServesCommandsAndAdmin(t *testing.T) {
	testlog.Start(t)
	dialer := newPipeDialer()
	svc := NewService(testServiceConfig(dialer))
	lamp, obj, err := demo.NewLamp("Lamp")
	require.NoError(t, err)
	svc.Host(obj)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	select {
	case <-svc.Started():
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(3 * time.Second):
		t.Fatal("service did not start")
	}

	conn := dialer.next(t)
	conn.await(t, "ws:m:ping")
	require.Eventually(t, func() bool {
		return svc.Bridge().Status() == bridge.StatusConnected
	}, 2*time.Second, 10*time.Millisecond)

	conn.in <- []byte(`{"event":"ws:m:command","data":{"commandId":"target:action:exec","command":{"tx":"tx-1","action":{"id":"svc:Lamp:RS_Flash","targetId":"svc:Lamp"},"data":{"Count":2}}}}`)
	reply := conn.await(t, "ws:m:command-response")
	assert.Equal(t, "tx-1", reply.Get("data.tx").String())

	resp, err := http.Get("http://" + svc.AdminAddr().String() + "/ready")
	require.NoError(t, err)
	var ready map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ready))
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "connected", ready["bridge"])

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.Equal(t, 2, lamp.Flashes())
	assert.Equal(t, bridge.StatusClosed, svc.Bridge().Status())
}

func TestServiceRedialsAfterLoss(t *testing.T) {
	testlog.Start(t)
	dialer := newPipeDialer()
	svc := NewService(testServiceConfig(dialer))
	_, obj, err := demo.NewLamp("Lamp")
	require.NoError(t, err)
	svc.Host(obj)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()

	first := dialer.next(t)
	first.await(t, "ws:m:ping")
	require.NoError(t, first.Close())

	second := dialer.next(t)
	second.await(t, "ws:m:ping")

	cancel()
	require.NoError(t, <-done)
}

func TestServiceAppliesCoordinatorURLChange(t *testing.T) {
	testlog.Start(t)
	dialer := newPipeDialer()
	svc := NewService(testServiceConfig(dialer))
	_, obj, err := demo.NewLamp("Lamp")
	require.NoError(t, err)
	svc.Host(obj)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Serve(ctx) }()
	dialer.next(t).await(t, "ws:m:ping")

	old := svc.cfg.Config
	cur := old
	cur.CoordinatorURL = "ws://127.0.0.1:6000/myko"
	svc.applyConfig(old, cur)

	dialer.next(t).await(t, "ws:m:ping")
	assert.Equal(t, cur.CoordinatorURL, svc.Bridge().URL())

	cancel()
	err = <-done
	assert.True(t, err == nil || errors.Is(err, context.Canceled))
}

func TestConfigEqual(t *testing.T) {
	testlog.Start(t)
	a := config.Default()
	b := config.Default()
	assert.True(t, configEqual(a, b))
	b.Lamps = []string{"Desk"}
	assert.False(t, configEqual(a, b))
}
