package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestGuardEnforcesLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	guard := Guard{
		Window: SlidingWindow{Client: client},
		Scope:  "login",
		Max:    1,
		Per:    time.Second,
	}

	protected := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/login", nil)
	req.RemoteAddr = "10.0.0.1:4000"

	rr1 := httptest.NewRecorder()
	protected.ServeHTTP(rr1, req.Clone(req.Context()))
	if rr1.Code != http.StatusOK {
		t.Fatalf("expected first attempt allowed, got %d", rr1.Code)
	}

	rr2 := httptest.NewRecorder()
	protected.ServeHTTP(rr2, req.Clone(req.Context()))
	if rr2.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second attempt, got %d", rr2.Code)
	}
	if rr2.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestGuardKeysPerClientIP(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer func() { _ = client.Close() }()

	guard := Guard{
		Window: SlidingWindow{Client: client},
		Scope:  "login",
		Max:    1,
		Per:    time.Second,
	}
	protected := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRequest(http.MethodPost, "/login", nil)
	first.RemoteAddr = "10.0.0.1:4000"
	second := httptest.NewRequest(http.MethodPost, "/login", nil)
	second.RemoteAddr = "10.0.0.2:4000"

	rr := httptest.NewRecorder()
	protected.ServeHTTP(rr, first)
	rr = httptest.NewRecorder()
	protected.ServeHTTP(rr, second)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected different IP to have its own budget, got %d", rr.Code)
	}
}

func TestGuardFailsOpenOnRedisError(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer func() { _ = client.Close() }()

	called := false
	guard := Guard{
		Window:  SlidingWindow{Client: client},
		Scope:   "login",
		Max:     1,
		Per:     time.Second,
		OnError: func(error) { called = true },
	}
	protected := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rr := httptest.NewRecorder()
	protected.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/login", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected request to proceed on redis error, got %d", rr.Code)
	}
	if !called {
		t.Fatal("expected OnError callback")
	}
}
