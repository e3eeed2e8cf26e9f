package datasource

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldlog"
	"github.com/launchdarkly/go-test-helpers/v3/httphelpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const settingsBody = `{"accountId": 12345, "sdkKey": "server-key", "campaigns": [], "features": []}`

func newTestRequestor(serverURL string) *Requestor {
	return NewRequestor(RequestorConfig{
		AccountID:    "12345",
		SDKKey:       "server-key",
		BaseURL:      serverURL,
		IsProduction: true,
		Timeout:      time.Second,
		Loggers:      ldlog.NewDisabledLoggers(),
	})
}

func TestFetchSettings(t *testing.T) {
	handler, requestsCh := httphelpers.RecordingHandler(
		httphelpers.HandlerWithResponse(200, nil, []byte(settingsBody)))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		r := newTestRequestor(server.URL)
		raw, err := r.FetchSettings(false)
		require.NoError(t, err)
		assert.JSONEq(t, settingsBody, string(raw))

		req := <-requestsCh
		assert.Equal(t, "/server-side/v2-settings", req.Request.URL.Path)
		q := req.Request.URL.Query()
		assert.Equal(t, "server-key", q.Get("i"))
		assert.Equal(t, "12345", q.Get("a"))
		assert.Equal(t, "server", q.Get("platform"))
		assert.Equal(t, "1", q.Get("api-version"))
		assert.NotEmpty(t, q.Get("sn"))
		assert.NotEmpty(t, q.Get("sv"))
		assert.NotEmpty(t, q.Get("r"))
		assert.Equal(t, "prod", q.Get("s"))
	})
}

func TestFetchSettingsViaWebhookUsesPullEndpoint(t *testing.T) {
	handler, requestsCh := httphelpers.RecordingHandler(
		httphelpers.HandlerWithResponse(200, nil, []byte(settingsBody)))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		r := newTestRequestor(server.URL)
		_, err := r.FetchSettings(true)
		require.NoError(t, err)

		req := <-requestsCh
		assert.Equal(t, "/server-side/v2-pull", req.Request.URL.Path)
	})
}

func TestFetchSettingsCollectionPrefix(t *testing.T) {
	handler, requestsCh := httphelpers.RecordingHandler(
		httphelpers.HandlerWithResponse(200, nil, []byte(settingsBody)))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		r := NewRequestor(RequestorConfig{
			AccountID:        "12345",
			SDKKey:           "server-key",
			BaseURL:          server.URL,
			CollectionPrefix: "eu01",
			Loggers:          ldlog.NewDisabledLoggers(),
		})
		_, err := r.FetchSettings(false)
		require.NoError(t, err)

		req := <-requestsCh
		assert.Equal(t, "/eu01/server-side/v2-settings", req.Request.URL.Path)
	})
}

func TestFetchSettingsErrorStatuses(t *testing.T) {
	for _, status := range []int{400, 401, 404, 500} {
		httphelpers.WithServer(httphelpers.HandlerWithStatus(status), func(server *httptest.Server) {
			r := newTestRequestor(server.URL)
			_, err := r.FetchSettings(false)
			require.Error(t, err)
			hse, ok := err.(httpStatusError)
			require.True(t, ok)
			assert.Equal(t, status, hse.Code)
		})
	}
}

// sequenceHandler serves each body in turn, repeating the last one.
func sequenceHandler(counter *int32, bodies ...[]byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		n := int(atomic.AddInt32(counter, 1)) - 1
		if n >= len(bodies) {
			n = len(bodies) - 1
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(bodies[n])
	})
}

// errorThenOKHandler fails the first request with a 503 and serves the
// body afterwards.
func errorThenOKHandler(counter *int32, body []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if atomic.AddInt32(counter, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})
}

func TestPollingProcessorDeliversChangedSettings(t *testing.T) {
	bodies := [][]byte{
		[]byte(`{"accountId": 1, "campaigns": [], "rev": 1}`),
		[]byte(`{"accountId": 1, "campaigns": [], "rev": 1}`), // unchanged
		[]byte(`{"accountId": 1, "campaigns": [], "rev": 2}`),
	}
	var requestCount int32
	mux := sequenceHandler(&requestCount, bodies...)
	httphelpers.WithServer(mux, func(server *httptest.Server) {
		r := newTestRequestor(server.URL)

		var updates int32
		pp := NewPollingProcessor(r, 10*time.Millisecond, func(raw []byte) {
			atomic.AddInt32(&updates, 1)
		}, ldlog.NewDisabledLoggers())
		defer pp.Close()

		ready := make(chan struct{})
		pp.Start(ready)
		select {
		case <-ready:
		case <-time.After(time.Second):
			t.Fatal("polling never became ready")
		}
		assert.True(t, pp.IsInitialized())

		require.Eventually(t, func() bool {
			return atomic.LoadInt32(&updates) >= 2
		}, time.Second, 5*time.Millisecond)

		// The identical second document must not have produced an update.
		assert.Equal(t, int32(2), atomic.LoadInt32(&updates))
	})
}

func TestPollingProcessorSurvivesErrors(t *testing.T) {
	var requestCount int32
	handler := errorThenOKHandler(&requestCount, []byte(settingsBody))
	httphelpers.WithServer(handler, func(server *httptest.Server) {
		r := newTestRequestor(server.URL)

		var updates int32
		pp := NewPollingProcessor(r, 10*time.Millisecond, func([]byte) {
			atomic.AddInt32(&updates, 1)
		}, ldlog.NewDisabledLoggers())
		defer pp.Close()

		ready := make(chan struct{})
		pp.Start(ready)
		select {
		case <-ready:
		case <-time.After(time.Second):
			t.Fatal("polling never recovered from the initial error")
		}
		assert.Equal(t, int32(1), atomic.LoadInt32(&updates))
	})
}
