package storage_test

import (
	"testing"

	"github.com/ipfs/go-cid"

	"github.com/InterCooperative-Network/icn-v2-sub001/storage"
	"github.com/InterCooperative-Network/icn-v2-sub001/storage/testkit"
)

func TestMemoryCASConformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return storage.NewMemoryCAS()
	})
}

func TestMemoryCASWalk(t *testing.T) {
	cas := storage.NewMemoryCAS()
	want := map[string][]byte{}
	for _, b := range [][]byte{[]byte("one"), []byte("two"), []byte("three")} {
		id, err := cas.Put(b)
		if err != nil {
			t.Fatalf("put: %v", err)
		}
		want[id.String()] = b
	}
	seen := 0
	err := cas.Walk(func(id cid.Cid, b []byte) error {
		seen++
		if string(want[id.String()]) != string(b) {
			t.Errorf("walk mismatch for %s", id)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
	if seen != len(want) {
		t.Errorf("walked %d blocks, want %d", seen, len(want))
	}
}
