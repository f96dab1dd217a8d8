package idempotency

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	reserved, stored, err := s.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, reserved)
	assert.Nil(t, stored)

	reserved, stored, err = s.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, reserved)
	assert.Nil(t, stored, "in flight")

	require.NoError(t, s.Complete(ctx, "k1", Response{Status: 201, Body: []byte("ok")}))
	reserved, stored, err = s.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, reserved)
	require.NotNil(t, stored)
	assert.Equal(t, 201, stored.Status)

	now = now.Add(2 * time.Minute)
	reserved, _, err = s.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, reserved, "expired keys can be reused")

	require.NoError(t, s.Release(ctx, "k1"))
	reserved, _, err = s.Begin(ctx, "k1")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func countingHandler(status int, calls *atomic.Int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"call":` + string(rune('0'+n)) + `}`))
	})
}

func post(h http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/checkout/7", strings.NewReader(`{}`))
	if key != "" {
		req.Header.Set(Header, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddlewareReplaysResponse(t *testing.T) {
	var calls atomic.Int32
	h := Middleware(NewMemoryStore(time.Minute))(countingHandler(http.StatusCreated, &calls))

	first := post(h, "abc")
	second := post(h, "abc")

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))

	post(h, "other")
	post(h, "")
	assert.Equal(t, int32(3), calls.Load())
}

func TestMiddlewareReleasesOnServerError(t *testing.T) {
	var calls atomic.Int32
	h := Middleware(NewMemoryStore(time.Minute))(countingHandler(http.StatusInternalServerError, &calls))

	post(h, "abc")
	post(h, "abc")
	assert.Equal(t, int32(2), calls.Load())
}

func TestMiddlewareRejectsInFlightDuplicate(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	_, _, err := store.Begin(context.Background(), "POST /api/v1/orders/checkout/7 abc")
	require.NoError(t, err)

	var calls atomic.Int32
	rec := post(Middleware(store)(countingHandler(http.StatusCreated, &calls)), "abc")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), `"CONFLICT"`)
	assert.Zero(t, calls.Load())
}

func TestMiddlewareReleasesOnPanic(t *testing.T) {
	var calls atomic.Int32
	h := Middleware(NewMemoryStore(time.Minute))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		w.WriteHeader(http.StatusCreated)
	}))

	assert.PanicsWithValue(t, "boom", func() { post(h, "abc") })

	rec := post(h, "abc")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int32(2), calls.Load())
}
