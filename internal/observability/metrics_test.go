package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/chessmcp/internal/engine"
)

func TestNewDisabledReturnsNilWithoutError(t *testing.T) {
	m, err := New(Config{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestNewEnabledRegistersCollectors(t *testing.T) {
	m, err := New(Config{Enabled: true, Namespace: "test"})
	require.NoError(t, err)
	require.NotNil(t, m)

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	assert.Equal(t, 200, rec.Code)
}

func TestNilMetricsMethodsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSessionCreated("Negamax")
		m.RecordSessionEnded("white_wins")
		m.RecordSearch("Negamax", engine.ClassClassical, time.Millisecond, false)
		m.SetEngineLoad("Negamax", 3)
		m.RecordRateLimitDenial("burst")
		m.RecordTransportRequest("stdio", "tools/call", time.Millisecond)
		m.RecordRatchetDecryptFailure()
	})
}

func TestHandlerOnNilMetricsReturnsNotFound(t *testing.T) {
	var m *Metrics
	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	assert.Equal(t, 404, rec.Code)
}

func TestRecordSearchObservesLatencyAndTimeout(t *testing.T) {
	m, err := New(Config{Enabled: true, Namespace: "test2"})
	require.NoError(t, err)
	require.NotNil(t, m)

	assert.NotPanics(t, func() {
		m.RecordSearch("AlphaZero", engine.ClassNeural, 50*time.Millisecond, true)
	})
}
