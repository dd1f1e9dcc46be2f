package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/foodbridge/foodbridge-backend/pkg/enums"
	pkgerrors "github.com/foodbridge/foodbridge-backend/pkg/errors"
)

type memIdempotencyStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemIdempotencyStore() *memIdempotencyStore {
	return &memIdempotencyStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (s *memIdempotencyStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.data[key]; ok {
		return v, nil
	}
	return "", redis.Nil
}

func (s *memIdempotencyStore) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; ok {
		return false, nil
	}
	s.data[key], s.ttls[key] = value.(string), ttl
	return true, nil
}

func (s *memIdempotencyStore) SetXX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[key]; !ok {
		return false, nil
	}
	s.data[key], s.ttls[key] = value.(string), ttl
	return true, nil
}

func (s *memIdempotencyStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}

func (s *memIdempotencyStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("test:%s:%s", scope, id)
}

func (s *memIdempotencyStore) record(t *testing.T) idempotencyRecord {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) != 1 {
		t.Fatalf("expected one stored record, got %d", len(s.data))
	}
	var rec idempotencyRecord
	for _, raw := range s.data {
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			t.Fatalf("decode record: %v", err)
		}
	}
	return rec
}

func claimRequest(key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/donations/d1/claim", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	return req
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) (string, map[string]any) {
	t.Helper()
	var payload struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return payload.Error.Code, payload.Error.Details
}

func TestIdempotentRequiresKey(t *testing.T) {
	called := false
	handler := Idempotent(newMemIdempotencyStore(), ClaimIdempotencyTTL, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	for _, key := range []string{"", strings.Repeat("k", maxIdempotencyKeyLen+1)} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, claimRequest(key, `{}`))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("key %q: expected 400, got %d", key, rec.Code)
		}
		if _, details := errorCode(t, rec); details["field"] != IdempotencyKeyHeader {
			t.Fatalf("expected field detail, got %v", details)
		}
	}
	if called {
		t.Fatal("handler must not run without a valid key")
	}
}

func TestIdempotentReplaysCompletedResponse(t *testing.T) {
	store := newMemIdempotencyStore()
	calls := 0
	handler := Idempotent(store, ClaimIdempotencyTTL, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"status":"pending"}}`))
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, claimRequest("k1", `{"note":"x"}`))
	if first.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", first.Code)
	}
	if rec := store.record(t); rec.State != stateComplete || rec.Status != http.StatusCreated {
		t.Fatalf("unexpected stored record %+v", rec)
	}
	for key, ttl := range store.ttls {
		if ttl != ClaimIdempotencyTTL {
			t.Fatalf("key %s stored with ttl %v", key, ttl)
		}
	}

	replay := httptest.NewRecorder()
	handler.ServeHTTP(replay, claimRequest("k1", `{"note":"x"}`))
	if replay.Code != http.StatusCreated || replay.Body.String() != `{"data":{"status":"pending"}}` {
		t.Fatalf("unexpected replay %d %s", replay.Code, replay.Body.String())
	}
	if replay.Header().Get("Content-Type") != "application/json" || replay.Header().Get(replayedHeader) != "true" {
		t.Fatalf("unexpected replay headers %v", replay.Header())
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times", calls)
	}
}

func TestIdempotentRejectsReusedKeyWithNewBody(t *testing.T) {
	handler := Idempotent(newMemIdempotencyStore(), 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), claimRequest("k2", `{"a":1}`))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, claimRequest("k2", `{"a":2}`))
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	code, details := errorCode(t, rec)
	if code != string(pkgerrors.CodeConflict) || details["kind"] != "idempotency_key_reused" {
		t.Fatalf("unexpected error %s %v", code, details)
	}
}

func TestIdempotentReportsInFlightDuplicate(t *testing.T) {
	store := newMemIdempotencyStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	handler := Idempotent(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
		w.WriteHeader(http.StatusOK)
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		handler.ServeHTTP(httptest.NewRecorder(), claimRequest("k3", `{}`))
	}()
	<-entered

	dup := httptest.NewRecorder()
	handler.ServeHTTP(dup, claimRequest("k3", `{}`))
	close(release)
	<-done

	if dup.Code != http.StatusConflict || dup.Header().Get("Retry-After") != "1" {
		t.Fatalf("expected 409 with Retry-After, got %d %v", dup.Code, dup.Header())
	}
	if _, details := errorCode(t, dup); details["kind"] != "idempotency_key_in_progress" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestIdempotentReleasesKeyOnServerErrorAndPanic(t *testing.T) {
	store := newMemIdempotencyStore()
	calls := 0
	failing := Idempotent(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	for i := 0; i < 2; i++ {
		failing.ServeHTTP(httptest.NewRecorder(), claimRequest("k4", `{}`))
	}
	if calls != 2 || len(store.data) != 0 {
		t.Fatalf("expected both attempts to run and nothing stored, calls %d data %v", calls, store.data)
	}

	panicking := Idempotent(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	func() {
		defer func() { _ = recover() }()
		panicking.ServeHTTP(httptest.NewRecorder(), claimRequest("k5", `{}`))
	}()
	if len(store.data) != 0 {
		t.Fatalf("panic left key reserved: %v", store.data)
	}
}

func TestIdempotentScopesKeysPerUser(t *testing.T) {
	store := newMemIdempotencyStore()
	calls := 0
	handler := Idempotent(store, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		req := claimRequest("shared", `{}`)
		req = req.WithContext(WithActor(req.Context(), uuid.New(), enums.UserRoleRecipient))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	if calls != 2 {
		t.Fatalf("different users must not share keys, calls %d", calls)
	}
}

func TestIdempotentNilStorePassesThrough(t *testing.T) {
	called := false
	handler := Idempotent(nil, 0, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	handler.ServeHTTP(httptest.NewRecorder(), claimRequest("", `{}`))
	if !called {
		t.Fatal("expected pass through without a store")
	}
}
