package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_Counters(t *testing.T) {
	m := NewManager()

	m.ObserveValidation("ok")
	m.ObserveValidation("ok")
	m.ObserveValidation("HARDWARE_MISMATCH")
	m.ObserveIssuance("live", "completed")
	m.ObserveNotification(false)
	m.ObserveReconcile("fulfilled")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.validations.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.validations.WithLabelValues("HARDWARE_MISMATCH")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.issuances.WithLabelValues("live", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.notifications.WithLabelValues("false")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconciled.WithLabelValues("fulfilled")))
}

func TestManager_Handler(t *testing.T) {
	m := NewManager()
	m.ObserveHTTP("POST", "/api/license/validate", 200, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_request_duration_seconds")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestManager_NilIsSafe(t *testing.T) {
	var m *Manager
	assert.NotPanics(t, func() {
		m.ObserveValidation("ok")
		m.ObserveIssuance("offline", "completed")
		m.ObserveNotification(true)
		m.ObserveReconcile("skipped")
		m.ObserveHTTP("GET", "/", 200, time.Millisecond)
	})
	assert.Nil(t, m.GetRegistry())
}
