package client

import (
	"sync"

	"github.com/dreamware/varys/internal/cluster"
	"github.com/dreamware/varys/internal/varyserr"
)

// ObjectStore holds the bytes behind every INMEMORY flow this client
// has published. A publishing client serves its own in-memory objects
// directly — the local agent only relays the flow's descriptor to the
// coordinator, it never receives or hosts the bytes themselves.
type ObjectStore struct {
	mu   sync.RWMutex
	data map[cluster.DataIdentifier][]byte
}

// NewObjectStore builds an empty store.
func NewObjectStore() *ObjectStore {
	return &ObjectStore{data: make(map[cluster.DataIdentifier][]byte)}
}

// Put stores a copy of value under id, overwriting any prior value.
func (s *ObjectStore) Put(id cluster.DataIdentifier, value []byte) {
	cp := make([]byte, len(value))
	copy(cp, value)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = cp
}

// Get retrieves a copy of the value stored under id, or NotFoundError
// if it was never published or has since been deleted.
func (s *ObjectStore) Get(id cluster.DataIdentifier) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[id]
	if !ok {
		return nil, varyserr.NewNotFound("object %s/%s", id.CoflowID, id.FlowID)
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// Delete removes id, if present. Deleting an absent id is a no-op.
func (s *ObjectStore) Delete(id cluster.DataIdentifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
}
