package delivery

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/delento/iot-data-processor/pkg/types"
)

func testPayload() *types.OutputPayload {
	return &types.OutputPayload{
		Header: types.PayloadHeader{MSN: "MSN001", Type: types.PayloadTypeVolume},
		Payload: types.PayloadBody{Data: []types.NormalizedPoint{
			{DT: "1970-01-01 08:00:00", Val: "5000.000"},
		}},
	}
}

func newTestClient(endpoint string) *BillingClient {
	log := logrus.New()
	log.SetOutput(io.Discard)
	c := NewBillingClient(endpoint, log)
	c.baseDelay = time.Millisecond
	c.maxDelay = 5 * time.Millisecond
	return c
}

func TestSendPostsPayloadJSON(t *testing.T) {
	var got types.OutputPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Send(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, *testPayload(), got)
}

func TestSendRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Send(context.Background(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSendDoesNotRetryRejections(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Send(context.Background(), testPayload())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load(), "4xx responses are permanent")
}

func TestSendGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := newTestClient(srv.URL).Send(context.Background(), testPayload())
	require.Error(t, err)
	assert.Equal(t, int32(5), calls.Load())
}
