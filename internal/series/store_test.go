package series

import (
	"fmt"
	"testing"

	"github.com/quantio/quantd/internal/errors"
	quanttest "github.com/quantio/quantd/internal/testing"
)

func TestStorePutGet(t *testing.T) {
	store := NewStore(10)

	sr := New("AAPL", []Point{NewPoint("2024-01-01", 100)})
	handle := store.Put(sr)

	if len(handle) != 8 {
		t.Fatalf("handle %q is not 8 characters", handle)
	}
	for _, c := range handle {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			t.Fatalf("handle %q is not lowercase hex", handle)
		}
	}

	got, err := store.Get(handle)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != sr {
		t.Error("Get returned a different series")
	}
}

func TestStoreUnknownHandle(t *testing.T) {
	store := NewStore(10)

	_, err := store.Get("deadbeef")
	if err == nil {
		t.Fatal("Get on unknown handle should fail")
	}
	if !errors.IsNotFound(err) {
		t.Errorf("error %v should classify as not found", err)
	}
}

func TestStoreHandlesAreUnique(t *testing.T) {
	store := NewStore(100)
	seen := make(map[string]bool)

	for i := 0; i < 50; i++ {
		h := store.Put(New("X", nil))
		if seen[h] {
			t.Fatalf("handle %q issued twice", h)
		}
		seen[h] = true
	}
}

func TestStoreEvictsOldest(t *testing.T) {
	store := NewStore(3)

	first := store.Put(New("A", nil))
	store.Put(New("B", nil))
	store.Put(New("C", nil))
	store.Put(New("D", nil)) // evicts A

	if store.Len() != 3 {
		t.Fatalf("Len = %d, want 3", store.Len())
	}
	if _, err := store.Get(first); err == nil {
		t.Error("oldest entry should have been evicted")
	}
}

func TestStoreConcurrent(t *testing.T) {
	store := NewStore(1000)
	gt := quanttest.NewGoroutineTest(t)
	defer gt.Wait()

	for i := 0; i < 20; i++ {
		i := i
		gt.Go(func() error {
			for j := 0; j < 25; j++ {
				sr := New(fmt.Sprintf("T%d", i), []Point{NewPoint("2024-01-01", float64(j))})
				h := store.Put(sr)
				got, err := store.Get(h)
				if err != nil {
					return fmt.Errorf("worker %d: %w", i, err)
				}
				if got.Ticker != sr.Ticker {
					return fmt.Errorf("worker %d: got ticker %q, want %q", i, got.Ticker, sr.Ticker)
				}
			}
			return nil
		})
	}
}
