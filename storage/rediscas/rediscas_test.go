package rediscas_test

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/ipfs/go-cid"
	"github.com/redis/go-redis/v9"

	"github.com/InterCooperative-Network/icn-v2-sub001/storage"
	"github.com/InterCooperative-Network/icn-v2-sub001/storage/rediscas"
	"github.com/InterCooperative-Network/icn-v2-sub001/storage/testkit"
)

func newTestCAS(t *testing.T) *rediscas.CAS {
	t.Helper()
	mr := miniredis.RunT(t)
	return rediscas.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

func TestRedisCASConformance(t *testing.T) {
	testkit.RunCASConformance(t, func(t *testing.T) storage.CAS {
		return newTestCAS(t)
	})
}

func TestRedisCASWalk(t *testing.T) {
	cas := newTestCAS(t)
	want := map[string][]byte{}
	for _, b := range [][]byte{[]byte("a"), []byte("bb"), []byte("ccc")} {
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
