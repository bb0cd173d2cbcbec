package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c *Collector, name string, labels map[string]string) float64 {
	t.Helper()

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}

		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				if m.GetCounter() != nil {
					return m.GetCounter().GetValue()
				}

				return m.GetGauge().GetValue()
			}
		}
	}

	return 0
}

func matchLabels(m *dto.Metric, want map[string]string) bool {
	got := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}

	for k, v := range want {
		if got[k] != v {
			return false
		}
	}

	return true
}

func TestCollector_ObservePageAndRecords(t *testing.T) {
	c := NewCollector()

	c.ObservePage("original", OutcomeOK, 20*time.Millisecond)
	c.ObservePage("original", OutcomeOK, 10*time.Millisecond)
	c.ObservePage("original", OutcomeFailed, 0)
	c.ObserveRecords("original", VerdictAccepted, 3)
	c.ObserveRecords("original", VerdictDuplicate, 0)
	c.ObserveEarlyExitSignal("original")

	assert.InDelta(t, 2, counterValue(t, c, "bbsharvest_pages_total", map[string]string{"target": "original", "outcome": "ok"}), 0)
	assert.InDelta(t, 1, counterValue(t, c, "bbsharvest_pages_total", map[string]string{"outcome": "failed"}), 0)
	assert.InDelta(t, 3, counterValue(t, c, "bbsharvest_records_total", map[string]string{"verdict": "accepted"}), 0)
	assert.InDelta(t, 1, counterValue(t, c, "bbsharvest_early_exit_signals_total", nil), 0)
}

func TestCollector_ObserveRun(t *testing.T) {
	c := NewCollector()
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

	c.ObserveRun("incremental", nil, 42, at)
	c.ObserveRun("incremental", errors.New("disk full"), -1, at)

	assert.InDelta(t, 1, counterValue(t, c, "bbsharvest_runs_total", map[string]string{"result": "success"}), 0)
	assert.InDelta(t, 1, counterValue(t, c, "bbsharvest_runs_total", map[string]string{"result": "error"}), 0)
	assert.InDelta(t, 42, counterValue(t, c, "bbsharvest_corpus_records", nil), 0)
	assert.InDelta(t, float64(at.Unix()), counterValue(t, c, "bbsharvest_last_successful_run_timestamp_seconds", nil), 0)
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector

	assert.NotPanics(t, func() {
		c.ObservePage("x", OutcomeOK, time.Second)
		c.ObserveRecords("x", VerdictAccepted, 1)
		c.ObserveEarlyExitSignal("x")
		c.ObserveRun("batch", nil, 1, time.Now())
	})
	assert.Nil(t, c.Registry())
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector()
	c.ObservePage("qa", OutcomeMalformed, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), `bbsharvest_pages_total{outcome="malformed",target="qa"} 1`)
}
