package region

import (
	"bytes"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestStorePutReturnsPrevious(t *testing.T) {
	s := newStore(1 << 20)

	if _, existed := s.put("k", []byte("one"), 0); existed {
		t.Fatalf("first put reported an existing value")
	}
	old, existed := s.put("k", []byte("two"), 0)
	if !existed || string(old) != "one" {
		t.Fatalf("put = %q,%v want one,true", old, existed)
	}
	if s.len() != 1 {
		t.Fatalf("len after overwrite = %d, want 1", s.len())
	}
	if old, ok := s.delete("k"); !ok || string(old) != "two" {
		t.Fatalf("delete = %q,%v want two,true", old, ok)
	}
	if _, ok := s.get("k"); ok {
		t.Fatalf("get ok after delete")
	}
}

func TestStoreTTL(t *testing.T) {
	s := newStore(1 << 20)

	s.put("short", []byte("v"), 40*time.Millisecond)
	if _, ok := s.get("short"); !ok {
		t.Fatalf("fresh key with TTL should be readable")
	}
	time.Sleep(80 * time.Millisecond)
	if _, ok := s.peek("short"); ok {
		t.Fatalf("peek returned an expired key")
	}
	if _, existed := s.put("short", []byte("again"), 0); existed {
		t.Fatalf("expired value reported as previous")
	}
	time.Sleep(50 * time.Millisecond)
	if _, ok := s.get("short"); !ok {
		t.Fatalf("key without TTL unexpectedly missing")
	}
}

func TestStoreGetUpdatesRecency(t *testing.T) {
	s := newStore(100)

	s.put("a", bytes.Repeat([]byte("a"), 40), 0)
	s.put("b", bytes.Repeat([]byte("b"), 40), 0)
	if _, ok := s.get("a"); !ok { // a becomes MRU
		t.Fatalf("precondition: a missing")
	}
	s.put("c", bytes.Repeat([]byte("c"), 40), 0)

	if _, ok := s.get("a"); !ok {
		t.Fatalf("expected a to remain after eviction")
	}
	if _, ok := s.get("b"); ok {
		t.Fatalf("expected b to be evicted")
	}
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := newStore(1 << 20)

	var wg sync.WaitGroup
	const G = 16
	const N = 1000

	errCh := make(chan error, G)
	var stop atomic.Bool

	for gid := range G {
		wg.Add(1)
		go func(gid int) {
			defer wg.Done()
			for i := range N {
				if stop.Load() {
					return
				}
				k := fmt.Sprintf("k-%d-%d", gid, i)
				v := fmt.Appendf(nil, "v-%d", i)
				s.put(k, v, 0)
				got, ok := s.get(k)
				if !ok || !bytes.Equal(got, v) {
					errCh <- fmt.Errorf("key=%s: got %q,%v", k, got, ok)
					stop.Store(true)
					return
				}
				if i%7 == 0 {
					s.delete(k)
				}
			}
		}(gid)
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("concurrency test failed: %v", err)
	}
}
