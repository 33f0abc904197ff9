package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"io"
	"strings"
	"testing"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

type deterministicReader struct{ b byte }

func (r *deterministicReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
		r.b++
	}
	return len(p), nil
}

func TestVerifyEd25519RoundTrip(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	did := DIDFromSeed(seed)

	msg := []byte("hello")
	sig := SignEd25519SHA256(msg, priv)
	if err := Verify(nil, did, msg, sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := Verify(nil, did, []byte("tampered"), sig); err == nil {
		t.Fatalf("expected verification failure for altered message")
	}
}

func TestVerifyDilithium3RoundTrip(t *testing.T) {
	pk, sk, err := GenerateDilithium3Keypair(io.Reader(&deterministicReader{}))
	if err != nil {
		t.Fatalf("GenerateDilithium3Keypair: %v", err)
	}
	pubBytes, err := pk.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	did, err := FromPublicKey(AlgDilithium3, pubBytes)
	if err != nil {
		t.Fatalf("FromPublicKey: %v", err)
	}

	msg := []byte("hello")
	sig, err := SignDilithium3(msg, "sha256", sk)
	if err != nil {
		t.Fatalf("SignDilithium3: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	if len(raw) != mode3.SignatureSize {
		t.Fatalf("unexpected signature size: got %d want %d", len(raw), mode3.SignatureSize)
	}
	if err := Verify(nil, did, msg, sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestParseRejectsMalformedDIDs(t *testing.T) {
	cases := []string{
		"",
		"did:key:z6Mk",
		"did:icn:ed25519",
		"did:icn:ed25519:!!!not-base64!!!",
		"did:icn:ed25519:" + base64.StdEncoding.EncodeToString([]byte("short")),
		"did:icn:rsa:" + base64.StdEncoding.EncodeToString(make([]byte, 32)),
	}
	for _, did := range cases {
		if _, _, err := Parse(did); err == nil {
			t.Errorf("Parse(%q): expected error", did)
		}
		if Valid(did) {
			t.Errorf("Valid(%q): expected false", did)
		}
	}
}

func TestDigestForUnsupportedAlgorithm(t *testing.T) {
	if _, err := DigestFor("md5", []byte("x")); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported-algorithm error, got %v", err)
	}
}
