package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"errors"
	"fmt"
)

// DIDFromSeed returns the DID for an Ed25519 seed.
func DIDFromSeed(seed []byte) string {
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	did, _ := FromEd25519(pub)
	return did
}

// DeriveRoleSeed deterministically derives a role-specific Ed25519 seed from
// a root seed. Role subkeys let a member sign dispatch receipts or votes with
// a key scoped to that duty while remaining linkable to the root identity
// through the keystore.
func DeriveRoleSeed(rootSeed []byte, role string) ([]byte, error) {
	if len(rootSeed) != ed25519.SeedSize {
		return nil, fmt.Errorf("root seed must be %d bytes", ed25519.SeedSize)
	}
	if err := CheckRole(role); err != nil {
		return nil, err
	}

	h := sha256.New()
	_, _ = h.Write(rootSeed)
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("icn-dag-kms-lite-v1"))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte("role:"))
	_, _ = h.Write([]byte(role))
	sum := h.Sum(nil)
	if len(sum) < ed25519.SeedSize {
		return nil, errors.New("kdf output too short")
	}
	out := make([]byte, ed25519.SeedSize)
	copy(out, sum[:ed25519.SeedSize])
	return out, nil
}
