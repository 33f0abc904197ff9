package credential

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"
	"time"

	"github.com/InterCooperative-Network/icn-v2-sub001/authority"
	"github.com/InterCooperative-Network/icn-v2-sub001/dag"
	"github.com/InterCooperative-Network/icn-v2-sub001/dagstore"
	"github.com/InterCooperative-Network/icn-v2-sub001/identity"
	"github.com/InterCooperative-Network/icn-v2-sub001/lineage"
	"github.com/InterCooperative-Network/icn-v2-sub001/storage"
	"github.com/InterCooperative-Network/icn-v2-sub001/trustpolicy"
)

type member struct {
	did  string
	priv ed25519.PrivateKey
}

func newMember(t *testing.T) member {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	did, err := identity.FromEd25519(pub)
	if err != nil {
		t.Fatalf("did: %v", err)
	}
	return member{did: did, priv: priv}
}

type fixture struct {
	store    *dagstore.Store
	verifier *Verifier

	alice, bob, worker member
	rootID             string
	receiptID          string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := dagstore.New(storage.NewMemoryCAS(), dagstore.Options{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	f := &fixture{store: st, alice: newMember(t), bob: newMember(t), worker: newMember(t)}
	trust := &trustpolicy.Policy{
		Trust:     []trustpolicy.Entry{{Identity: f.alice.did, Level: trustpolicy.LevelFull}},
		Bootstrap: []trustpolicy.BootstrapEntry{{Scope: "fed-1", Identity: f.alice.did}},
	}
	auth := authority.New(st, authority.WithTrustPolicy(trust))
	f.verifier = New(auth, lineage.New(st, auth), trust)
	f.verifier.Now = func() time.Time { return time.UnixMilli(10000) }

	root := f.appendNode(t, f.alice, dag.Header{
		Type:         dag.TypeFederationCreation,
		Timestamp:    1000,
		ScopeType:    dag.ScopeFederation,
		ScopeID:      "fed-1",
		FederationID: "fed-1",
	}, dag.FederationCreationPayload{
		Name: "fed one",
		Members: []dag.Member{
			{Identity: f.alice.did, Role: "admin"},
			{Identity: f.bob.did, Role: "admin"},
		},
		Quorum: dag.QuorumRule{Threshold: dag.Threshold{Count: 1}},
	})
	f.rootID = root.ID

	receipt := f.appendNode(t, f.alice, dag.Header{
		Type:         dag.TypeDispatchReceipt,
		Timestamp:    2000,
		Parents:      []string{root.ID},
		ScopeType:    dag.ScopeFederation,
		ScopeID:      "fed-1",
		FederationID: "fed-1",
	}, dag.DispatchReceiptPayload{
		JobID:      "job-42",
		Worker:     f.worker.did,
		Capability: "gpu-compute",
	})
	f.receiptID = receipt.ID
	return f
}

func (f *fixture) appendNode(t *testing.T, signer member, h dag.Header, payload any) *dag.Node {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	h.Author = signer.did
	n, err := dag.Build(h, raw, signer.priv)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, err := f.store.Append(context.Background(), n); err != nil {
		t.Fatalf("append %s: %v", h.Type, err)
	}
	return n
}

func (f *fixture) credential(t *testing.T, mutate func(*Credential)) *Credential {
	t.Helper()
	c := &Credential{
		Format:     Format,
		Issuer:     f.alice.did,
		Subject:    f.worker.did,
		Capability: "gpu-compute",
		ScopeID:    "fed-1",
		AnchorID:   f.receiptID,
		IssuedAt:   2500,
	}
	if mutate != nil {
		mutate(c)
	}
	msg, err := c.SigningBytes()
	if err != nil {
		t.Fatalf("signing bytes: %v", err)
	}
	c.Signature = identity.SignEd25519SHA256(msg, f.alice.priv)
	return c
}

func TestVerifyValidCredential(t *testing.T) {
	f := newFixture(t)
	rep, err := f.verifier.Verify(context.Background(), f.credential(t, nil))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !rep.OverallValid {
		t.Fatalf("expected valid credential, got %+v", rep)
	}
	if !rep.SignatureValid || !rep.IsTrusted || rep.IsRevoked || !rep.CapabilityMatch || !rep.LineageVerified {
		t.Errorf("check flags: %+v", rep)
	}
	if rep.PolicyVersion != 0 {
		t.Errorf("policy version: %d", rep.PolicyVersion)
	}
	if rep.Error != nil {
		t.Errorf("unexpected failure: %+v", rep.Error)
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	f := newFixture(t)
	c := f.credential(t, nil)
	c.Capability = "root-shell" // after signing

	rep, err := f.verifier.Verify(context.Background(), c)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.OverallValid || rep.SignatureValid {
		t.Errorf("tampered credential accepted: %+v", rep)
	}
}

func TestVerifyUntrustedIssuer(t *testing.T) {
	f := newFixture(t)
	outsider := newMember(t)
	c := f.credential(t, func(c *Credential) { c.Issuer = outsider.did })
	msg, _ := c.SigningBytes()
	c.Signature = identity.SignEd25519SHA256(msg, outsider.priv)

	rep, err := f.verifier.Verify(context.Background(), c)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.OverallValid || rep.IsTrusted {
		t.Errorf("untrusted issuer accepted: %+v", rep)
	}
	if !rep.SignatureValid {
		t.Error("signature itself is valid and must be reported as such")
	}
}

func TestVerifyScopeMemberIssuerNotTrusted(t *testing.T) {
	f := newFixture(t)
	// Bob holds an admin role in the scope but has no trust policy entry.
	// The trust policy is authoritative: membership alone must not let him
	// issue credentials.
	c := f.credential(t, func(c *Credential) { c.Issuer = f.bob.did })
	msg, err := c.SigningBytes()
	if err != nil {
		t.Fatalf("signing bytes: %v", err)
	}
	c.Signature = identity.SignEd25519SHA256(msg, f.bob.priv)

	rep, err := f.verifier.Verify(context.Background(), c)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.IsTrusted || rep.OverallValid {
		t.Errorf("scope member without trust entry accepted as issuer: %+v", rep)
	}
	if !rep.SignatureValid {
		t.Error("signature itself is valid and must be reported as such")
	}
	if rep.Error == nil || rep.Error.Kind != dag.KindUnauthorizedCreator {
		t.Errorf("expected UnauthorizedCreator failure, got %+v", rep.Error)
	}
}

func TestVerifyLowTrustLevelIssuerRejected(t *testing.T) {
	f := newFixture(t)
	issuer := newMember(t)
	// Worker-level trust identifies a machine, it does not grant issuing
	// authority. Only Full does.
	f.verifier.Trust.Trust = append(f.verifier.Trust.Trust,
		trustpolicy.Entry{Identity: issuer.did, Level: trustpolicy.LevelWorker})

	c := f.credential(t, func(c *Credential) { c.Issuer = issuer.did })
	msg, err := c.SigningBytes()
	if err != nil {
		t.Fatalf("signing bytes: %v", err)
	}
	c.Signature = identity.SignEd25519SHA256(msg, issuer.priv)

	rep, err := f.verifier.Verify(context.Background(), c)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.IsTrusted || rep.OverallValid {
		t.Errorf("worker-level issuer accepted: %+v", rep)
	}
}

func TestVerifyRevokedSubject(t *testing.T) {
	f := newFixture(t)
	f.appendNode(t, f.alice, dag.Header{
		Type:         dag.TypeRevocation,
		Timestamp:    3000,
		Parents:      []string{f.receiptID},
		ScopeType:    dag.ScopeFederation,
		ScopeID:      "fed-1",
		FederationID: "fed-1",
	}, dag.RevocationPayload{
		TargetKind: dag.RevokeIdentity,
		Target:     f.worker.did,
		Reason:     "key compromise",
	})

	rep, err := f.verifier.Verify(context.Background(), f.credential(t, nil))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.OverallValid || !rep.IsRevoked {
		t.Errorf("revoked credential accepted: %+v", rep)
	}
	if rep.Error == nil || rep.Error.Kind != dag.KindRevokedCredential {
		t.Errorf("expected RevokedCredential failure, got %+v", rep.Error)
	}
}

func TestVerifyFutureRevocationDoesNotApply(t *testing.T) {
	f := newFixture(t)
	// Revocation timestamped after the verifier's clock must not count.
	f.appendNode(t, f.alice, dag.Header{
		Type:         dag.TypeRevocation,
		Timestamp:    20000,
		Parents:      []string{f.receiptID},
		ScopeType:    dag.ScopeFederation,
		ScopeID:      "fed-1",
		FederationID: "fed-1",
	}, dag.RevocationPayload{TargetKind: dag.RevokeIdentity, Target: f.worker.did})

	rep, err := f.verifier.Verify(context.Background(), f.credential(t, nil))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.IsRevoked {
		t.Errorf("future revocation applied: %+v", rep)
	}
}

func TestVerifyCapabilityMismatch(t *testing.T) {
	f := newFixture(t)
	c := f.credential(t, func(c *Credential) { c.Capability = "disk-io" })

	rep, err := f.verifier.Verify(context.Background(), c)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.OverallValid || rep.CapabilityMatch {
		t.Errorf("capability mismatch accepted: %+v", rep)
	}
}

func TestVerifyExpired(t *testing.T) {
	f := newFixture(t)
	c := f.credential(t, func(c *Credential) { c.ExpiresAt = 9000 })

	rep, err := f.verifier.Verify(context.Background(), c)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.OverallValid || !rep.IsExpired {
		t.Errorf("expired credential accepted: %+v", rep)
	}
}

func TestVerifyJSONRejectsForeignFormat(t *testing.T) {
	f := newFixture(t)
	if _, err := f.verifier.VerifyJSON(context.Background(), []byte(`{"format":"other/1"}`)); err == nil {
		t.Fatal("expected format rejection")
	}
	if _, err := f.verifier.VerifyJSON(context.Background(), []byte(`not json`)); err == nil {
		t.Fatal("expected parse rejection")
	}
}
