package dag

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/InterCooperative-Network/icn-v2-sub001/identity"
)

func newSigner(t *testing.T) (string, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	did, err := identity.FromEd25519(pub)
	if err != nil {
		t.Fatalf("did: %v", err)
	}
	return did, priv
}

func TestBuildAndVerify(t *testing.T) {
	did, priv := newSigner(t)
	h := testHeader()
	h.Author = did

	n, err := Build(h, json.RawMessage(`{"title":"t","action":"a"}`), priv)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if n.ID == "" || n.Signature == "" {
		t.Fatal("missing id or signature")
	}
	if err := VerifyID(n); err != nil {
		t.Errorf("verify id: %v", err)
	}
	if err := VerifySignature(n, identity.SelfCertifying{}); err != nil {
		t.Errorf("verify signature: %v", err)
	}
}

func TestVerifyIDDetectsTamper(t *testing.T) {
	did, priv := newSigner(t)
	h := testHeader()
	h.Author = did

	n, err := Build(h, json.RawMessage(`{"title":"t"}`), priv)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	n.Payload = json.RawMessage(`{"title":"tampered"}`)
	err = VerifyID(n)
	if err == nil {
		t.Fatal("expected id mismatch")
	}
	if !IsKind(err, KindIDMismatch) {
		t.Errorf("expected IdMismatch, got %s", ErrKind(err))
	}
}

func TestVerifySignatureRejectsWrongKey(t *testing.T) {
	did, priv := newSigner(t)
	_, otherPriv := newSigner(t)
	h := testHeader()
	h.Author = did

	n, err := Build(h, nil, otherPriv) // signed with someone else's key
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	_ = priv
	err = VerifySignature(n, identity.SelfCertifying{})
	if err == nil {
		t.Fatal("expected signature failure")
	}
	if !IsKind(err, KindInvalidSignature) {
		t.Errorf("expected InvalidSignature, got %s", ErrKind(err))
	}
}

func TestBuildDilithium3RoundTrip(t *testing.T) {
	pub, priv, err := identity.GenerateDilithium3Keypair(rand.Reader)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal pub: %v", err)
	}
	did, err := identity.FromPublicKey(identity.AlgDilithium3, pubBytes)
	if err != nil {
		t.Fatalf("did: %v", err)
	}

	h := testHeader()
	h.Author = did
	n, err := BuildDilithium3(h, json.RawMessage(`{"title":"pq"}`), priv)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if err := VerifyID(n); err != nil {
		t.Errorf("verify id: %v", err)
	}
	if err := VerifySignature(n, identity.SelfCertifying{}); err != nil {
		t.Errorf("verify signature: %v", err)
	}
}
