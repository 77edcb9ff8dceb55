package observability

import (
	"testing"
	"time"

	"github.com/danmuck/capbridge/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)

	RegisterMetrics()
	RegisterMetrics()

	RecordHTTPRequest("capbridge", "GET", "/health", 200, 12*time.Millisecond)
	RecordBridgeMessage("out", "ws:m:event")
	RecordBridgeConnect(false)
	SetOutboxDepth(3)
	RecordPulse()

	before := testutil.ToFloat64(actionsTaken.WithLabelValues("operation", "true"))
	RecordActionTake("operation", true)
	assert.Equal(t, before+1, testutil.ToFloat64(actionsTaken.WithLabelValues("operation", "true")))

	SetTargetsRegistered(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(targetsRegistered))

	SetBridgeConnected(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(bridgeConnected))
	SetBridgeConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(bridgeConnected))
}
