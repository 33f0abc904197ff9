package identity

import (
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/sha3"
)

// DigestFor hashes message with the named algorithm.
// hashAlg must be one of: sha256, sha512, sha3-256.
func DigestFor(hashAlg string, message []byte) ([]byte, error) {
	switch hashAlg {
	case "sha256":
		s := sha256.Sum256(message)
		return s[:], nil
	case "sha512":
		s := sha512.Sum512(message)
		return s[:], nil
	case "sha3-256":
		s := sha3.Sum256(message)
		return s[:], nil
	default:
		return nil, fmt.Errorf("identity: unsupported hash algorithm %q", hashAlg)
	}
}

// SignEd25519SHA256 returns a base64 signature over sha256(message).
// This is the v1 signature construction for DAG nodes and quorum proofs.
func SignEd25519SHA256(message []byte, privateKey ed25519.PrivateKey) string {
	digest := sha256.Sum256(message)
	sig := ed25519.Sign(privateKey, digest[:])
	return base64.StdEncoding.EncodeToString(sig)
}

// SignDilithium3 returns a base64 dilithium3 signature over hash(message).
func SignDilithium3(message []byte, hashAlg string, privateKey *mode3.PrivateKey) (string, error) {
	if privateKey == nil {
		return "", errors.New("identity: missing private key")
	}
	digest, err := DigestFor(hashAlg, message)
	if err != nil {
		return "", err
	}
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(privateKey, digest, sig)
	return base64.StdEncoding.EncodeToString(sig), nil
}

// GenerateDilithium3Keypair returns a new Dilithium3 keypair.
func GenerateDilithium3Keypair(rand io.Reader) (*mode3.PublicKey, *mode3.PrivateKey, error) {
	return mode3.GenerateKey(rand)
}

// Verify checks a base64 signature over sha256(message) against the public
// key embedded in (or resolved for) the signer DID.
//
// The signature algorithm is bound to the DID algorithm; a mismatch between
// the two would otherwise allow cross-scheme confusion.
func Verify(resolver Resolver, did string, message []byte, sigB64 string) error {
	if resolver == nil {
		resolver = SelfCertifying{}
	}
	alg, pub, err := resolver.ResolvePublicKey(did)
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return fmt.Errorf("identity: invalid signature base64: %w", err)
	}
	digest := sha256.Sum256(message)
	switch alg {
	case AlgEd25519:
		if len(sig) != ed25519.SignatureSize {
			return errors.New("identity: invalid ed25519 signature length")
		}
		if !ed25519.Verify(ed25519.PublicKey(pub), digest[:], sig) {
			return errors.New("identity: signature invalid")
		}
		return nil
	case AlgDilithium3:
		if len(sig) != mode3.SignatureSize {
			return errors.New("identity: invalid dilithium3 signature length")
		}
		var pk mode3.PublicKey
		if err := pk.UnmarshalBinary(pub); err != nil {
			return fmt.Errorf("identity: invalid dilithium3 public key: %w", err)
		}
		if !mode3.Verify(&pk, digest[:], sig) {
			return errors.New("identity: signature invalid")
		}
		return nil
	default:
		return fmt.Errorf("identity: unsupported DID algorithm %q", alg)
	}
}
