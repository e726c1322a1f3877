package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	body := []byte(`{"type":"snapshot.completed"}`)
	sig := Sign("s3cret", body)

	assert.Regexp(t, `^sha256=[0-9a-f]{64}$`, sig)
	assert.True(t, Verify("s3cret", body, sig))
	assert.False(t, Verify("other", body, sig))
	assert.False(t, Verify("s3cret", []byte(`{}`), sig))
}

func TestDeliver_SignsBody(t *testing.T) {
	var gotSig, gotType string
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotSig = r.Header.Get(SignatureHeader)
		gotType = r.Header.Get("Content-Type")
		_ = json.Unmarshal(body, &got)
		assert.True(t, Verify("s3cret", body, gotSig))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ev := &Event{Type: EventSnapshotCompleted, BatchID: "b-1", Timestamp: 1, Data: map[string]int{"n": 2}}
	require.NoError(t, Deliver(context.Background(), srv.URL, "s3cret", ev))

	assert.Equal(t, "application/json", gotType)
	assert.NotEmpty(t, gotSig)
	assert.Equal(t, "b-1", got.BatchID)
	assert.Equal(t, EventSnapshotCompleted, got.Type)
}

func TestDeliver_NoSecretNoSignature(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
	}))
	defer srv.Close()

	require.NoError(t, Deliver(context.Background(), srv.URL, "", &Event{Type: EventSnapshotCompleted}))
}

func TestDeliver_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := Deliver(context.Background(), srv.URL, "", &Event{Type: EventSnapshotCompleted})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestDeliverWithRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ok := deliverWithRetry(srv.URL, "", &Event{Type: EventSnapshotCompleted},
		[]time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond})

	assert.True(t, ok)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDeliverWithRetry_Exhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ok := deliverWithRetry(srv.URL, "", &Event{Type: EventSnapshotCompleted}, []time.Duration{0, time.Millisecond})

	assert.False(t, ok)
	assert.Equal(t, int32(2), calls.Load())
}
