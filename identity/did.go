package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// DID syntax: did:icn:<alg>:<base64 public key>.
//
// The identifier is self-certifying: the public key is embedded, so the
// default resolver needs no external directory. Deployments with an identity
// service plug in their own Resolver.
const didPrefix = "did:icn:"

const (
	AlgEd25519    = "ed25519"
	AlgDilithium3 = "dilithium3"
)

// FromPublicKey encodes a public key into a DID string.
func FromPublicKey(alg string, pub []byte) (string, error) {
	switch alg {
	case AlgEd25519:
		if len(pub) != ed25519.PublicKeySize {
			return "", fmt.Errorf("identity: ed25519 public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
		}
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return "", fmt.Errorf("identity: invalid dilithium3 public key: %w", err)
		}
	default:
		return "", fmt.Errorf("identity: unsupported algorithm %q", alg)
	}
	return didPrefix + alg + ":" + base64.StdEncoding.EncodeToString(pub), nil
}

// FromEd25519 encodes an Ed25519 public key into a DID string.
func FromEd25519(pub ed25519.PublicKey) (string, error) {
	return FromPublicKey(AlgEd25519, pub)
}

// Parse splits a DID into algorithm and raw public key bytes.
func Parse(did string) (alg string, pub []byte, err error) {
	rest, ok := strings.CutPrefix(did, didPrefix)
	if !ok {
		return "", nil, fmt.Errorf("identity: not an icn DID: %q", did)
	}
	alg, enc, ok := strings.Cut(rest, ":")
	if !ok {
		return "", nil, errors.New("identity: malformed DID: missing key segment")
	}
	pub, err = base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return "", nil, fmt.Errorf("identity: invalid DID key base64: %w", err)
	}
	switch alg {
	case AlgEd25519:
		if len(pub) != ed25519.PublicKeySize {
			return "", nil, errors.New("identity: invalid ed25519 public key length")
		}
	case AlgDilithium3:
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return "", nil, fmt.Errorf("identity: invalid dilithium3 public key: %w", err)
		}
	default:
		return "", nil, fmt.Errorf("identity: unsupported DID algorithm %q", alg)
	}
	return alg, pub, nil
}

// Valid reports whether did parses as a well-formed identifier.
func Valid(did string) bool {
	_, _, err := Parse(did)
	return err == nil
}

// Resolver resolves a DID to its public key. Resolution is independent of
// the DAG; external identity services implement this interface.
type Resolver interface {
	ResolvePublicKey(did string) (alg string, pub []byte, err error)
}

// SelfCertifying resolves DIDs by decoding the key embedded in the
// identifier itself. It is the default resolver everywhere in this module.
type SelfCertifying struct{}

func (SelfCertifying) ResolvePublicKey(did string) (string, []byte, error) {
	return Parse(did)
}
