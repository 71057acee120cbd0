package supabase_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cashplanhq/cashplan-api-go/internal/infra/resilience"
	"github.com/cashplanhq/cashplan-api-go/internal/infra/supabase"

	"go.uber.org/zap"
)

func TestClient_LimitsConcurrentRequests(t *testing.T) {
	var inFlight, maxInFlight int64

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		current := atomic.AddInt64(&inFlight, 1)
		for {
			max := atomic.LoadInt64(&maxInFlight)
			if current <= max || atomic.CompareAndSwapInt64(&maxInFlight, max, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&inFlight, -1)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[]"))
	}))
	defer server.Close()

	client := supabase.NewClient(
		server.Client(),
		server.URL,
		"anon-key",
		"service-key",
		resilience.NewCircuitBreaker("test"),
		resilience.Config{MaxConcurrency: 2},
		zap.NewNop(),
	)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := client.ListScenarios(context.Background(), "user-1"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt64(&maxInFlight); got > 2 {
		t.Errorf("expected at most 2 concurrent requests, observed %d", got)
	}
}

func TestClient_AcquireRespectsContext(t *testing.T) {
	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
		w.Write([]byte("[]"))
	}))
	defer server.Close()
	defer close(block)

	client := supabase.NewClient(
		server.Client(),
		server.URL,
		"anon-key",
		"service-key",
		resilience.NewCircuitBreaker("test"),
		resilience.Config{MaxConcurrency: 1},
		zap.NewNop(),
	)

	// Occupy the single slot.
	go client.ListScenarios(context.Background(), "user-1")
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.ListScenarios(ctx, "user-1")
	if err == nil {
		t.Fatal("expected a context error while the slot is held")
	}
}
