package observability

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_RecordsOnOwnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg, "test")

	m.CandidateIn("pumpportal_ws")
	m.CandidateIn("pumpportal_ws")
	m.Filtered("low_liq")
	m.Scored(0.7)
	m.EffectiveThreshold(0.62)
	m.EngineRunning(true)
	m.QueueDepth(5)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CandidatesIn.WithLabelValues("pumpportal_ws")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CandidatesFiltered.WithLabelValues("low_liq")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CandidatesScored))
	assert.Equal(t, 0.62, testutil.ToFloat64(m.MinScoreEffective))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EngineUp))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.QueueSize))

	m.EngineRunning(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.EngineUp))
}

func TestHandler_ServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPrometheus(reg, "test")
	m.FreshPass()

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "test_discovery_fresh_pass_total 1"))
}

func TestNop_SatisfiesMetrics(t *testing.T) {
	var m Metrics = Nop{}
	m.Scored(1)
	m.ShortlistPublished(3)
}

func TestNewLogger_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Component(NewLogger(LogOptions{Level: "debug", Output: &buf}), "engine")
	log.Debug().Str("mint", "abc").Msg("scored")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "engine", line["component"])
	assert.Equal(t, "abc", line["mint"])
	assert.Equal(t, "debug", line["level"])
}

func TestNewLogger_DefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(LogOptions{Level: "nonsense", Output: &buf})
	log.Debug().Msg("hidden")
	assert.Empty(t, buf.String())
}
