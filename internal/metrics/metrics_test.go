package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCollector_StaticGauges(t *testing.T) {
	c := NewCollector(8, 10, 2*time.Minute)
	assert.Equal(t, 8.0, testutil.ToFloat64(c.AdvanceRadius))
	assert.Equal(t, 10.0, testutil.ToFloat64(c.CorridorRadius))
	assert.Equal(t, 120.0, testutil.ToFloat64(c.SessionIdleTTL))
}

func TestCollector_PublisherHooks(t *testing.T) {
	c := NewCollector(8, 8, time.Minute)
	c.NATSPublishedInc()
	c.NATSPublishedInc()
	c.NATSPublishErrInc()
	c.NATSReceivedInc()
	c.NATSDecodeErrInc()
	c.PublishObserve(3 * time.Millisecond)
	c.NATSSetConnected(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.NATSPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSPublishErrs))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSReceived))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSDecodeErrs))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.NATSConnected))

	c.NATSSetConnected(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(c.NATSConnected))
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(8, 8, time.Minute)
	c.Errors.WithLabelValues("no_intersection").Inc()
	c.Deviations.WithLabelValues("deviated").Inc()

	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `tracker_errors_total{kind="no_intersection"} 1`)
	assert.Contains(t, string(body), `tracker_deviation_transitions_total{transition="deviated"} 1`)
	assert.Contains(t, string(body), "tracker_advance_radius_meters 8")
}
