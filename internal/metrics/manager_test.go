package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alcyxob/setpad/internal/autosave"
	"alcyxob/setpad/internal/domain"
	"alcyxob/setpad/internal/syncstatus"
)

type staticReporter struct{ status syncstatus.Status }

func (r staticReporter) Status() syncstatus.Status { return r.status }

func TestAutoSaveHooks(t *testing.T) {
	m, _ := NewTestManagerAndRegistry()

	var saved, failed int
	opts := m.AutoSaveHooks(autosave.Options{
		OnSaved: func(domain.LogRecord) { saved++ },
		OnError: func(error) { failed++ },
	})
	opts.OnSaved(domain.LogRecord{})
	opts.OnSaved(domain.LogRecord{})
	opts.OnError(errors.New("offline"))

	assert.Equal(t, 2, saved)
	assert.Equal(t, 1, failed)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CounterAutoSaves.WithLabelValues("ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.CounterAutoSaves.WithLabelValues("error")))

	bare := m.AutoSaveHooks(autosave.Options{})
	assert.NotPanics(t, func() { bare.OnError(errors.New("x")) })
}

func TestWatchSyncStatus(t *testing.T) {
	m, reg := NewTestManagerAndRegistry()
	m.WatchSyncStatus(staticReporter{status: syncstatus.Status{Online: true, PendingSyncs: 4}})

	families, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		if len(f.GetMetric()) == 1 && f.GetMetric()[0].GetGauge() != nil {
			values[f.GetName()] = f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, float64(1), values["setpad_test_server_remote_store_online"])
	assert.Equal(t, float64(4), values["setpad_test_server_pending_syncs"])
}

func TestHandler(t *testing.T) {
	m, _ := NewTestManagerAndRegistry()
	m.CounterHandleRequestPanic.Inc()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "setpad_test_server_handle_request_panic 1")
}
