// Package dagstore implements the durable, append-only node store of the
// federation trust graph.
//
// The store is a thin integrity layer over a pluggable content-addressable
// backend: it validates structure (content id, parent presence, signature)
// and maintains traversal indexes, but performs no authorization checks.
// Authorization is the lineage verifier's job; keeping the store low-level
// makes it a reusable primitive.
package dagstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/ipfs/go-cid"

	"github.com/InterCooperative-Network/icn-v2-sub001/dag"
	"github.com/InterCooperative-Network/icn-v2-sub001/identity"
	"github.com/InterCooperative-Network/icn-v2-sub001/storage"
)

// Store is an append-only DAG node store.
//
// Node envelopes (header + payload + signature) are persisted in the CAS
// under their envelope CID; the store maintains the mapping from node id
// (the content id of the canonical header+payload encoding) to envelope.
// Indexes live in memory and are rebuilt from iterable backends via Reindex.
//
// Safe for concurrent use: appends are single-node atomic and idempotent by
// content id, reads never block on writes beyond index lookup.
type Store struct {
	cas      storage.CAS
	resolver identity.Resolver

	mu       sync.RWMutex
	envelope map[string]cid.Cid  // node id -> envelope CID
	meta     map[string]nodeMeta // node id -> structural fields
	children map[string][]string // node id -> child node ids
	byScope  map[string][]string // scope id -> node ids, append order
}

type nodeMeta struct {
	typ       dag.NodeType
	timestamp int64
	parents   []string
	scopeID   string
}

type Options struct {
	// Resolver resolves author DIDs to public keys. Nil means self-certifying
	// DIDs only.
	Resolver identity.Resolver
}

func New(cas storage.CAS, opts Options) (*Store, error) {
	if cas == nil {
		return nil, dag.NewError(dag.KindStorage, "ICN-STORE-001", "nil CAS backend")
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = identity.SelfCertifying{}
	}
	return &Store{
		cas:      cas,
		resolver: resolver,
		envelope: make(map[string]cid.Cid),
		meta:     make(map[string]nodeMeta),
		children: make(map[string][]string),
		byScope:  make(map[string][]string),
	}, nil
}

// Reindex rebuilds the traversal indexes by walking an iterable backend.
// Envelopes that fail to decode as nodes are ignored (foreign blocks may
// share the CAS); envelopes whose node id fails recomputation are a fatal
// integrity error.
//
// Nodes are indexed parents-first so the parent-presence invariant holds
// throughout the rebuild.
func (s *Store) Reindex() error {
	it, ok := s.cas.(storage.Iterable)
	if !ok {
		return dag.NewError(dag.KindStorage, "ICN-STORE-002", "backend does not support iteration")
	}

	var pending []*dag.Node
	byID := make(map[string]cid.Cid)
	err := it.Walk(func(id cid.Cid, b []byte) error {
		var n dag.Node
		if jerr := json.Unmarshal(b, &n); jerr != nil || n.ID == "" || n.Header.ScopeID == "" {
			return nil
		}
		if verr := dag.VerifyID(&n); verr != nil {
			return verr
		}
		pending = append(pending, &n)
		byID[n.ID] = id
		return nil
	})
	if err != nil {
		return err
	}

	// Deterministic order: timestamp, then node id.
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].Header.Timestamp != pending[j].Header.Timestamp {
			return pending[i].Header.Timestamp < pending[j].Header.Timestamp
		}
		return pending[i].ID < pending[j].ID
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range pending {
		// Already-committed nodes keep their existing index entries;
		// re-indexing them would duplicate children/byScope rows.
		if _, ok := s.envelope[n.ID]; ok {
			continue
		}
		s.indexLocked(n, byID[n.ID])
	}
	return nil
}

// Append validates and durably stores a node.
//
// Validation order is fixed: content id, parent presence, signature.
// Appending a node whose id already exists is a no-op success; content
// addressing makes duplicate submission harmless and expected under
// concurrent writers.
func (s *Store) Append(ctx context.Context, n *dag.Node) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, dag.WrapError(dag.KindTimeout, "ICN-STORE-010", "append canceled", err)
	}
	if n == nil {
		return cid.Undef, dag.NewError(dag.KindStorage, "ICN-STORE-011", "nil node")
	}
	nodeID, err := dag.ParseID(n.ID)
	if err != nil {
		return cid.Undef, err
	}

	// (a) declared id must match the recomputed digest.
	if err := dag.VerifyID(n); err != nil {
		return cid.Undef, err
	}

	// Idempotent fast path.
	s.mu.RLock()
	_, exists := s.envelope[n.ID]
	s.mu.RUnlock()
	if exists {
		return nodeID, nil
	}

	// (b) every declared parent must already be present.
	for _, p := range n.Header.Parents {
		if !s.Has(p) {
			return cid.Undef, dag.NewError(dag.KindMissingParent, "ICN-STORE-012", "missing parent "+p).AtNode(n.ID)
		}
	}

	// (c) the signature must verify over the canonical encoding.
	if err := dag.VerifySignature(n, s.resolver); err != nil {
		return cid.Undef, err
	}

	stored, err := normalize(n)
	if err != nil {
		return cid.Undef, err
	}
	b, err := json.Marshal(stored)
	if err != nil {
		return cid.Undef, dag.WrapError(dag.KindStorage, "ICN-STORE-013", "envelope marshal failed", err)
	}
	envCID, err := s.cas.Put(b)
	if err != nil {
		return cid.Undef, dag.WrapError(dag.KindStorage, "ICN-STORE-014", "backend write failed", err)
	}

	// The node becomes visible only after the durable write completes.
	s.mu.Lock()
	if _, ok := s.envelope[stored.ID]; !ok {
		s.indexLocked(stored, envCID)
	}
	s.mu.Unlock()
	return nodeID, nil
}

// Get returns a fully committed node, or nil if absent.
func (s *Store) Get(ctx context.Context, id string) (*dag.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, dag.WrapError(dag.KindTimeout, "ICN-STORE-020", "get canceled", err)
	}
	s.mu.RLock()
	envCID, ok := s.envelope[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	b, err := s.cas.Get(envCID)
	if err != nil {
		return nil, dag.WrapError(dag.KindStorage, "ICN-STORE-021", "backend read failed", err).AtNode(id)
	}
	var n dag.Node
	if err := json.Unmarshal(b, &n); err != nil {
		return nil, dag.WrapError(dag.KindStorage, "ICN-STORE-022", "envelope decode failed", err).AtNode(id)
	}
	// Verify on read: the backend is untrusted.
	if err := dag.VerifyID(&n); err != nil {
		return nil, err
	}
	return &n, nil
}

// Has reports whether a node id is committed.
func (s *Store) Has(id string) bool {
	s.mu.RLock()
	_, ok := s.envelope[id]
	s.mu.RUnlock()
	return ok
}

// Children returns the ids of nodes naming id as a parent, sorted.
func (s *Store) Children(id string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]string(nil), s.children[id]...)
	sort.Strings(out)
	return out
}

// Roots returns the ids of parentless nodes in a scope, in (timestamp, id)
// order.
func (s *Store) Roots(scopeID string) []string {
	return s.filterScope(scopeID, func(m nodeMeta) bool { return len(m.parents) == 0 })
}

// Heads returns the ids of nodes in a scope that no other node in the store
// names as a parent, in (timestamp, id) order.
func (s *Store) Heads(scopeID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, id := range s.byScope[scopeID] {
		if len(s.children[id]) == 0 {
			out = append(out, id)
		}
	}
	s.sortByMetaLocked(out)
	return out
}

// ByScope returns all node ids in a scope, in (timestamp, id) order.
func (s *Store) ByScope(scopeID string) []string {
	return s.filterScope(scopeID, func(nodeMeta) bool { return true })
}

// ByType returns node ids of one type in a scope, in (timestamp, id) order.
func (s *Store) ByType(scopeID string, typ dag.NodeType) []string {
	return s.filterScope(scopeID, func(m nodeMeta) bool { return m.typ == typ })
}

// Scopes returns every scope id with at least one node, sorted.
func (s *Store) Scopes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.byScope))
	for id := range s.byScope {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of committed nodes.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.envelope)
}

func (s *Store) filterScope(scopeID string, keep func(nodeMeta) bool) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for _, id := range s.byScope[scopeID] {
		if keep(s.meta[id]) {
			out = append(out, id)
		}
	}
	s.sortByMetaLocked(out)
	return out
}

func (s *Store) sortByMetaLocked(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		mi, mj := s.meta[ids[i]], s.meta[ids[j]]
		if mi.timestamp != mj.timestamp {
			return mi.timestamp < mj.timestamp
		}
		return ids[i] < ids[j]
	})
}

func (s *Store) indexLocked(n *dag.Node, envCID cid.Cid) {
	s.envelope[n.ID] = envCID
	s.meta[n.ID] = nodeMeta{
		typ:       n.Header.Type,
		timestamp: n.Header.Timestamp,
		parents:   append([]string(nil), n.Header.Parents...),
		scopeID:   n.Header.ScopeID,
	}
	for _, p := range n.Header.Parents {
		s.children[p] = append(s.children[p], n.ID)
	}
	s.byScope[n.Header.ScopeID] = append(s.byScope[n.Header.ScopeID], n.ID)
}

// normalize returns a copy of n with canonical payload bytes and sorted
// parents, so identical logical nodes serialize to identical envelopes.
func normalize(n *dag.Node) (*dag.Node, error) {
	canonPayload, err := dag.CanonicalJSON(payloadBytes(n))
	if err != nil {
		return nil, err
	}
	cp := *n
	cp.Payload = canonPayload
	parents := append([]string(nil), n.Header.Parents...)
	sort.Strings(parents)
	cp.Header.Parents = parents
	return &cp, nil
}

func payloadBytes(n *dag.Node) []byte {
	if len(n.Payload) == 0 {
		return []byte("{}")
	}
	return n.Payload
}
