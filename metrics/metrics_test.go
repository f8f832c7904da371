package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.RecordBundleLoad("ok")
	m.RecordBundleLoad("BAD_PASSWORD")
	m.RecordBundleLoad("ok")
	m.RecordValidation(false, []string{"EXPIRED", "WEAK_KEY"}, []string{"INCOMPLETE_CHAIN"})
	m.RecordSignature("ok", 20*time.Millisecond)
	m.RecordVerification("signature_mismatch")
	m.RecordNotification("critical", "emitted")
	m.RecordNotification("critical", "deduplicated")
	m.RecordDedupStoreFailure()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BundleLoads.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BundleLoads.WithLabelValues("BAD_PASSWORD")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Validations.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationFindings.WithLabelValues("error", "WEAK_KEY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ValidationFindings.WithLabelValues("warning", "INCOMPLETE_CHAIN")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Signatures.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Verifications.WithLabelValues("signature_mismatch")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("critical", "deduplicated")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DedupStoreFailures))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["taxsign_signing_duration_seconds"])
	assert.True(t, names["taxsign_dedup_store_failures_total"])
}

func TestMetricsSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		New(nil)
		New(nil)
	})
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordBundleLoad("ok")
		m.RecordValidation(true, nil, nil)
		m.RecordSignature("ok", time.Second)
		m.RecordVerification("valid")
		m.RecordNotification("info", "emitted")
		m.RecordDedupStoreFailure()
	})
}
