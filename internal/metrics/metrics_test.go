package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRegistration(t *testing.T) {
	// Verify all metrics are registered without conflicts
	metrics := []prometheus.Collector{
		CommandsTotal,
		CommandErrorsTotal,
		ScriptExecutionsTotal,

		SpamDetectedTotal,
		SpamPenaltiesTotal,

		BusEventsTotal,
		BusLagTotal,
		AdapterRestartsTotal,
		ConfigReloadsTotal,
		NotificationsTotal,

		HTTPRejectionsTotal,
	}

	for _, metric := range metrics {
		desc := make(chan *prometheus.Desc, 1)
		metric.Describe(desc)
		close(desc)

		require.NotNil(t, <-desc, "metric should have a valid descriptor")
	}
}

func TestCounterMetrics(t *testing.T) {
	tests := []struct {
		name    string
		metric  *prometheus.CounterVec
		labels  prometheus.Labels
		incBy   float64
		wantVal float64
	}{
		{
			name:    "commands counter",
			metric:  CommandsTotal,
			labels:  prometheus.Labels{"platform": "discord", "command": "ping"},
			incBy:   5,
			wantVal: 5,
		},
		{
			name:    "spam detected counter",
			metric:  SpamDetectedTotal,
			labels:  prometheus.Labels{"platform": "twitch"},
			incBy:   3,
			wantVal: 3,
		},
		{
			name:    "config reloads counter",
			metric:  ConfigReloadsTotal,
			labels:  prometheus.Labels{"status": "applied"},
			incBy:   2,
			wantVal: 2,
		},
		{
			name:    "http rejections counter",
			metric:  HTTPRejectionsTotal,
			labels:  prometheus.Labels{"reason": "bad_key"},
			incBy:   4,
			wantVal: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.metric.Reset()

			for i := 0; i < int(tt.incBy); i++ {
				tt.metric.With(tt.labels).Inc()
			}

			val := testutil.ToFloat64(tt.metric.With(tt.labels))
			assert.Equal(t, tt.wantVal, val)
		})
	}
}
