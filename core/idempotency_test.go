package core

import (
	"sync"
	"testing"
	"time"
)

func TestIdempotencyStoreAndLookup(t *testing.T) {
	s := NewIdempotencyStore(time.Minute)
	result := &ExecutionResult{RequestID: "r1", Success: true}
	s.StoreResult("alice", "key-00000001", result)

	got, ok := s.Lookup("alice", "key-00000001")
	if !ok || got.RequestID != "r1" {
		t.Fatalf("expected stored result back, got %+v ok=%v", got, ok)
	}
}

func TestIdempotencyKeysScopedToCaller(t *testing.T) {
	s := NewIdempotencyStore(time.Minute)
	s.StoreResult("alice", "shared-key-1", &ExecutionResult{RequestID: "alice-req"})

	if _, ok := s.Lookup("bob", "shared-key-1"); ok {
		t.Fatal("bob must not see alice's result under the same literal key")
	}
}

func TestIdempotencyEmptyKeyNeverStored(t *testing.T) {
	s := NewIdempotencyStore(time.Minute)
	s.StoreResult("alice", "", &ExecutionResult{RequestID: "r1"})
	if _, ok := s.Lookup("alice", ""); ok {
		t.Fatal("empty keys must be ignored")
	}
}

func TestIdempotencyTTLExpiry(t *testing.T) {
	s := NewIdempotencyStore(10 * time.Millisecond)
	s.StoreResult("alice", "expiring-key", &ExecutionResult{RequestID: "r1"})
	time.Sleep(25 * time.Millisecond)

	if _, ok := s.Lookup("alice", "expiring-key"); ok {
		t.Fatal("expired entry must not be returned")
	}
	s.Sweep()
	if len(s.entries) != 0 {
		t.Fatalf("sweep must drop expired entries, %d remain", len(s.entries))
	}
}

func TestIdempotencyConcurrentAccess(t *testing.T) {
	s := NewIdempotencyStore(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := "concurrent-key"
			s.StoreResult("alice", key, &ExecutionResult{RequestID: "shared"})
			if got, ok := s.Lookup("alice", key); ok && got.RequestID != "shared" {
				t.Errorf("unexpected record %q", got.RequestID)
			}
		}(i)
	}
	wg.Wait()
}
