package dagstore

import (
	"io"

	"github.com/ipfs/go-cid"

	"github.com/InterCooperative-Network/icn-v2-sub001/dag"
	"github.com/InterCooperative-Network/icn-v2-sub001/storage/bundle"
)

// ExportScope writes a deterministic bundle holding every node envelope in a
// scope, for federation audit snapshots and offline node exchange. The
// bundle's head metadata names the scope's latest head.
func (s *Store) ExportScope(w io.Writer, scopeID string) error {
	s.mu.RLock()
	ids := append([]string(nil), s.byScope[scopeID]...)
	blocks := make([]cid.Cid, 0, len(ids))
	for _, id := range ids {
		blocks = append(blocks, s.envelope[id])
	}
	s.mu.RUnlock()
	if len(blocks) == 0 {
		return dag.NewError(dag.KindStorage, "ICN-STORE-030", "no nodes in scope "+scopeID)
	}

	opts := bundle.ExportOptions{IncludeIndex: true}
	if heads := s.Heads(scopeID); len(heads) > 0 {
		s.mu.RLock()
		opts.Heads = map[string]cid.Cid{scopeID: s.envelope[heads[len(heads)-1]]}
		s.mu.RUnlock()
	}
	return bundle.Export(w, s.cas, blocks, opts)
}

// ImportBundle ingests a bundle's blocks into the backend and reindexes.
// Requires an iterable backend; envelopes already committed keep their index
// entries, so importing overlapping bundles is idempotent.
func (s *Store) ImportBundle(r io.Reader) error {
	if err := bundle.Import(r, s.cas); err != nil {
		return dag.WrapError(dag.KindStorage, "ICN-STORE-031", "bundle import failed", err)
	}
	return s.Reindex()
}
