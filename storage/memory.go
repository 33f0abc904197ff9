package storage

import (
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/InterCooperative-Network/icn-v2-sub001/cidutil"
)

// MemoryCAS is an in-process content-addressable store.
//
// Safe for concurrent use. Objects are copied on Put and Get so callers can
// never mutate stored bytes.
type MemoryCAS struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryCAS() *MemoryCAS {
	return &MemoryCAS{objects: make(map[string][]byte)}
}

func (m *MemoryCAS) Put(bytes []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(bytes)
	if err != nil {
		return cid.Undef, err
	}
	if !id.Defined() {
		return cid.Undef, ErrInvalidCID
	}
	cp := append([]byte(nil), bytes...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[id.String()]; !ok {
		m.objects[id.String()] = cp
	}
	return id, nil
}

func (m *MemoryCAS) Get(id cid.Cid) ([]byte, error) {
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	m.mu.RLock()
	b, ok := m.objects[id.String()]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b...), nil
}

func (m *MemoryCAS) Has(id cid.Cid) bool {
	if !id.Defined() {
		return false
	}
	m.mu.RLock()
	_, ok := m.objects[id.String()]
	m.mu.RUnlock()
	return ok
}

// Walk visits every stored object. Mutations during a walk are not observed.
func (m *MemoryCAS) Walk(fn func(id cid.Cid, bytes []byte) error) error {
	m.mu.RLock()
	snapshot := make(map[string][]byte, len(m.objects))
	for k, v := range m.objects {
		snapshot[k] = v
	}
	m.mu.RUnlock()

	for k, v := range snapshot {
		id, err := cid.Decode(k)
		if err != nil {
			return ErrInvalidCID
		}
		if err := fn(id, append([]byte(nil), v...)); err != nil {
			return err
		}
	}
	return nil
}

var (
	_ CAS      = (*MemoryCAS)(nil)
	_ Iterable = (*MemoryCAS)(nil)
)
