// Package idempotency makes retried requests that carry an Idempotency-Key
// header run at most once within a TTL.
package idempotency

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const Header = "Idempotency-Key"

const (
	keyPrefix = "idempotency:"
	pending   = "pending"
)

// Response is a stored reply replayed for repeated keys.
type Response struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Store reserves keys and remembers the response produced for them.
type Store interface {
	// Begin reserves key. If the key is taken, it returns the stored response,
	// or nil while the first request is still running.
	Begin(ctx context.Context, key string) (reserved bool, stored *Response, err error)
	Complete(ctx context.Context, key string, resp Response) error
	Release(ctx context.Context, key string) error
}

// RedisStore keeps keys in Redis using SET NX with a TTL.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Begin(ctx context.Context, key string) (bool, *Response, error) {
	ok, err := s.client.SetNX(ctx, keyPrefix+key, pending, s.ttl).Result()
	if err != nil {
		return false, nil, err
	}
	if ok {
		return true, nil, nil
	}

	val, err := s.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.Begin(ctx, key)
	}
	if err != nil {
		return false, nil, err
	}
	if string(val) == pending {
		return false, nil, nil
	}
	var resp Response
	if err := json.Unmarshal(val, &resp); err != nil {
		return false, nil, err
	}
	return false, &resp, nil
}

func (s *RedisStore) Complete(ctx context.Context, key string, resp Response) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+key, b, s.ttl).Err()
}

func (s *RedisStore) Release(ctx context.Context, key string) error {
	return s.client.Del(ctx, keyPrefix+key).Err()
}

type memoryEntry struct {
	resp      *Response
	expiresAt time.Time
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, entries: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Begin(_ context.Context, key string) (bool, *Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expiresAt) {
		return false, e.resp, nil
	}
	s.entries[key] = memoryEntry{expiresAt: now.Add(s.ttl)}
	return true, nil, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, resp Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{resp: &resp, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Release(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

type recorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (r *recorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *recorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.buf.Write(b)
	return r.ResponseWriter.Write(b)
}

var inFlightBody = []byte(`{"success":false,"error":"CONFLICT","message":"a request with this idempotency key is already in progress"}`)

// Middleware replays stored responses for repeated keys. Requests without the
// header pass through. Server errors and panics release the key so the
// client can retry.
// Store failures are logged and the request proceeds unguarded.
func Middleware(store Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get(Header))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Method + " " + r.URL.Path + " " + raw
			ctx := r.Context()

			reserved, stored, err := store.Begin(ctx, key)
			if err != nil {
				slog.Error("Idempotency store unavailable", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !reserved {
				if stored == nil {
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusConflict)
					_, _ = w.Write(inFlightBody)
					return
				}
				w.Header().Set("Content-Type", stored.ContentType)
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(stored.Status)
				_, _ = w.Write(stored.Body)
				return
			}

			rec := &recorder{ResponseWriter: w}
			defer func() {
				if p := recover(); p != nil {
					if err := store.Release(context.WithoutCancel(ctx), key); err != nil {
						slog.Error("Failed to release idempotency key", "err", err)
					}
					panic(p)
				}
			}()
			next.ServeHTTP(rec, r)

			if rec.status >= http.StatusInternalServerError || rec.status == 0 {
				if err := store.Release(context.WithoutCancel(ctx), key); err != nil {
					slog.Error("Failed to release idempotency key", "err", err)
				}
				return
			}
			resp := Response{Status: rec.status, ContentType: w.Header().Get("Content-Type"), Body: rec.buf.Bytes()}
			if err := store.Complete(context.WithoutCancel(ctx), key, resp); err != nil {
				slog.Error("Failed to store idempotent response", "err", err)
			}
		})
	}
}
