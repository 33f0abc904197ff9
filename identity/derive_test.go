package identity

import (
	"crypto/ed25519"
	"strings"
	"testing"
)

func TestDeriveRoleSeedDeterministic(t *testing.T) {
	root := make([]byte, ed25519.SeedSize)
	for i := range root {
		root[i] = byte(i)
	}

	a, err := DeriveRoleSeed(root, "worker")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	b, err := DeriveRoleSeed(root, "worker")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if string(a) != string(b) {
		t.Fatalf("expected deterministic derivation")
	}

	c, err := DeriveRoleSeed(root, "admin")
	if err != nil {
		t.Fatalf("DeriveRoleSeed: %v", err)
	}
	if string(a) == string(c) {
		t.Fatalf("expected different roles to derive different seeds")
	}
}

func TestDeriveRoleSeedRejectsShortSeed(t *testing.T) {
	if _, err := DeriveRoleSeed([]byte("short"), "worker"); err == nil {
		t.Fatalf("expected error for undersized seed")
	}
}

func TestDIDFromSeedFormat(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = 0x42
	}
	did := DIDFromSeed(seed)
	if !strings.HasPrefix(did, "did:icn:ed25519:") {
		t.Fatalf("unexpected DID %q", did)
	}
	if !Valid(did) {
		t.Fatalf("expected DIDFromSeed output to parse")
	}
	if did != DIDFromSeed(seed) {
		t.Fatalf("expected a stable DID for a fixed seed")
	}
}
