package series

import (
	"container/list"
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/quantio/quantd/config"
	"github.com/quantio/quantd/internal/errors"
)

// Store maps opaque handles to immutable series.
//
// It is the process-wide hand-off point between pipeline stages: the
// columnar reader or a transform puts a series in and passes the handle
// on, and a later stage gets the same series back. There is no update
// operation by design - transforms always allocate a new handle - so
// concurrent Get needs no coordination beyond the map lock.
//
// Handles are 8 hex characters drawn from crypto/rand. Collisions at
// issue time are retried; a collision after issue cannot occur because
// issued handles stay in the map until evicted. The store caps its
// entry count and evicts the oldest entry when full, so handles are
// unique for the lifetime of their entry rather than forever - an
// accepted risk, matching the documented handle contract.
//
// Store is safe for concurrent use. Construct one per process (or per
// test) with NewStore; there is no package-level singleton.
type Store struct {
	mu         sync.RWMutex
	entries    map[string]*Series
	order      *list.List // handle strings, oldest at front
	index      map[string]*list.Element
	maxEntries int
}

// NewStore creates a store holding at most maxEntries series.
// maxEntries <= 0 selects the default cap.
func NewStore(maxEntries int) *Store {
	if maxEntries <= 0 {
		maxEntries = config.DefaultMaxSeries
	}
	return &Store{
		entries:    make(map[string]*Series),
		order:      list.New(),
		index:      make(map[string]*list.Element),
		maxEntries: maxEntries,
	}
}

// Put stores a series and returns a fresh handle.
// The caller must not modify the series after handing it over.
func (s *Store) Put(sr *Series) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var handle string
	for {
		handle = newHandle()
		if _, exists := s.entries[handle]; !exists {
			break
		}
	}

	s.entries[handle] = sr
	s.index[handle] = s.order.PushBack(handle)

	for len(s.entries) > s.maxEntries {
		front := s.order.Front()
		oldest := front.Value.(string)
		s.order.Remove(front)
		delete(s.index, oldest)
		delete(s.entries, oldest)
	}

	return handle
}

// Get returns the series for a handle.
func (s *Store) Get(handle string) (*Series, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sr, ok := s.entries[handle]
	if !ok {
		return nil, errors.NewUnknownHandle(handle)
	}
	return sr, nil
}

// Len returns the number of stored series.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// newHandle generates a random 8-hex-character identifier.
func newHandle() string {
	buf := make([]byte, config.HandleLength/2)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in serious trouble.
		panic("series: crypto/rand unavailable: " + err.Error())
	}
	return hex.EncodeToString(buf)
}
