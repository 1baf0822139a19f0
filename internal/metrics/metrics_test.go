package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersAndHandler(t *testing.T) {
	m := New()
	m.MessagesSent.WithLabelValues(ResultOK).Inc()
	m.MessagesSent.WithLabelValues(ResultOK).Inc()
	m.Connections.Set(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesSent.WithLabelValues(ResultOK)))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `warelay_messages_sent_total{result="ok"} 2`)
	assert.Contains(t, rec.Body.String(), "warelay_realtime_connections 3")
}
