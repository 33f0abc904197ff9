package lineage

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

	alice, bob member
	rootID     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := dagstore.New(storage.NewMemoryCAS(), dagstore.Options{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	f := &fixture{store: st, alice: newMember(t), bob: newMember(t)}
	trust := &trustpolicy.Policy{
		Bootstrap: []trustpolicy.BootstrapEntry{{Scope: "fed-1", Identity: f.alice.did}},
	}
	auth := authority.New(st, authority.WithTrustPolicy(trust))
	f.verifier = New(st, auth)

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
		Quorum: dag.QuorumRule{
			RequiredRoles: []string{"admin"},
			Threshold:     dag.Threshold{Count: 2},
		},
	})
	f.rootID = root.ID
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

func TestVerifyValidChain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	coop := f.appendNode(t, f.alice, dag.Header{
		Type:         dag.TypeCooperativeCreation,
		Timestamp:    2000,
		Parents:      []string{f.rootID},
		ScopeType:    dag.ScopeCooperative,
		ScopeID:      "coop-a",
		FederationID: "fed-1",
	}, dag.CooperativeCreationPayload{
		Name:         "coop a",
		ParentScopes: []string{"fed-1"},
		Members:      []dag.Member{{Identity: f.bob.did, Role: "operator"}},
		Quorum:       dag.QuorumRule{Threshold: dag.Threshold{Count: 1}},
	})
	policy := f.appendNode(t, f.bob, dag.Header{
		Type:         dag.TypeResourcePolicy,
		Timestamp:    3000,
		Parents:      []string{coop.ID},
		ScopeType:    dag.ScopeCooperative,
		ScopeID:      "coop-a",
		FederationID: "fed-1",
	}, dag.ResourcePolicyPayload{Resource: "compute"})

	rep, err := f.verifier.Verify(ctx, policy.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !rep.Valid {
		t.Fatalf("expected valid lineage, got %+v", rep.Failure)
	}
	if rep.Checked != 3 {
		t.Errorf("expected 3 nodes checked, got %d", rep.Checked)
	}
}

func TestVerifyDeepUnauthorizedAncestor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	outsider := newMember(t)

	// The store accepts outsider-authored nodes (it checks structure, not
	// authority); lineage verification must catch the ancestor.
	rogue := f.appendNode(t, outsider, dag.Header{
		Type:         dag.TypeProposal,
		Timestamp:    2000,
		Parents:      []string{f.rootID},
		ScopeType:    dag.ScopeFederation,
		ScopeID:      "fed-1",
		FederationID: "fed-1",
	}, dag.ProposalPayload{Title: "rogue", Action: "a"})
	child := f.appendNode(t, f.alice, dag.Header{
		Type:         dag.TypeProposal,
		Timestamp:    3000,
		Parents:      []string{rogue.ID},
		ScopeType:    dag.ScopeFederation,
		ScopeID:      "fed-1",
		FederationID: "fed-1",
	}, dag.ProposalPayload{Title: "child", Action: "a"})

	rep, err := f.verifier.Verify(ctx, child.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.Valid {
		t.Fatal("lineage through unauthorized ancestor accepted")
	}
	if rep.Failure.Kind != dag.KindUnauthorizedCreator {
		t.Errorf("expected UnauthorizedCreator, got %s", rep.Failure.Kind)
	}
	if rep.Failure.NodeID != rogue.ID {
		t.Errorf("failure should name the offending ancestor, got %s", rep.Failure.NodeID)
	}
}

func TestVerifyMissingAncestor(t *testing.T) {
	f := newFixture(t)
	rep, err := f.verifier.Verify(context.Background(), "bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.Valid || rep.Failure.Kind != dag.KindMissingParent {
		t.Errorf("expected MissingParent failure, got %+v", rep)
	}
}

func TestVerifyVoteQuorum(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	proposal := f.appendNode(t, f.alice, dag.Header{
		Type:         dag.TypeProposal,
		Timestamp:    2000,
		Parents:      []string{f.rootID},
		ScopeType:    dag.ScopeFederation,
		ScopeID:      "fed-1",
		FederationID: "fed-1",
	}, dag.ProposalPayload{Title: "t", Action: "a"})

	message, err := dag.EncodeNode(proposal)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	fullProof := dag.QuorumProof{
		RequiredRoles: []string{"admin"},
		Threshold:     dag.Threshold{Count: 2},
		Signers: []dag.ProofSigner{
			{Identity: f.alice.did, Role: "admin", Signature: identity.SignEd25519SHA256(message, f.alice.priv)},
			{Identity: f.bob.did, Role: "admin", Signature: identity.SignEd25519SHA256(message, f.bob.priv)},
		},
	}
	vote := f.appendNode(t, f.alice, dag.Header{
		Type:         dag.TypeVote,
		Timestamp:    3000,
		Parents:      []string{proposal.ID},
		ScopeType:    dag.ScopeFederation,
		ScopeID:      "fed-1",
		FederationID: "fed-1",
	}, dag.VotePayload{TargetID: proposal.ID, Approve: true, Proof: fullProof})

	rep, err := f.verifier.Verify(ctx, vote.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !rep.Valid {
		t.Fatalf("expected valid vote lineage, got %+v", rep.Failure)
	}

	// A vote whose proof carries only one of two required signatures fails,
	// even though the proof itself claims a weaker threshold.
	weakProof := dag.QuorumProof{
		RequiredRoles: []string{"admin"},
		Threshold:     dag.Threshold{Count: 1},
		Signers: []dag.ProofSigner{
			{Identity: f.alice.did, Role: "admin", Signature: identity.SignEd25519SHA256(message, f.alice.priv)},
		},
	}
	weakVote := f.appendNode(t, f.alice, dag.Header{
		Type:         dag.TypeVote,
		Timestamp:    4000,
		Parents:      []string{proposal.ID},
		ScopeType:    dag.ScopeFederation,
		ScopeID:      "fed-1",
		FederationID: "fed-1",
	}, dag.VotePayload{TargetID: proposal.ID, Approve: true, Proof: weakProof})

	rep, err = f.verifier.Verify(ctx, weakVote.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.Valid {
		t.Fatal("under-signed vote accepted")
	}
	if rep.Failure.Kind != dag.KindInsufficientQuorum {
		t.Errorf("expected InsufficientQuorum, got %s", rep.Failure.Kind)
	}
}

func TestVerifyDeadline(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	rep, err := f.verifier.Verify(ctx, f.rootID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.Valid || rep.Failure.Kind != dag.KindTimeout {
		t.Errorf("expected Timeout failure, got %+v", rep)
	}
}

func TestVerifyReflectsLateArrivingApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dave := newMember(t)

	// Dave's node arrives before the membership update that authorizes him.
	proposal := f.appendNode(t, dave, dag.Header{
		Type:         dag.TypeProposal,
		Timestamp:    5000,
		Parents:      []string{f.rootID},
		ScopeType:    dag.ScopeFederation,
		ScopeID:      "fed-1",
		FederationID: "fed-1",
	}, dag.ProposalPayload{Title: "t", Action: "a"})

	rep, err := f.verifier.Verify(ctx, proposal.ID)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if rep.Valid || rep.Failure.Kind != dag.KindUnauthorizedCreator {
		t.Fatalf("expected UnauthorizedCreator before activation, got %+v", rep)
	}

	// The update activating Dave is timestamped before his node, so once it
	// lands his node was authorized at creation time.
	update := f.appendNode(t, f.alice, dag.Header{
		Type:         dag.TypePolicyUpdate,
		Timestamp:    2000,
		Parents:      []string{f.rootID},
		ScopeType:    dag.ScopeFederation,
		ScopeID:      "fed-1",
		FederationID: "fed-1",
	}, dag.PolicyUpdatePayload{AddMembers: []dag.Member{{Identity: dave.did, Role: "admin"}}})
	message, err := dag.EncodeNode(update)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	f.appendNode(t, f.alice, dag.Header{
		Type:         dag.TypeVote,
		Timestamp:    2500,
		Parents:      []string{update.ID},
		ScopeType:    dag.ScopeFederation,
		ScopeID:      "fed-1",
		FederationID: "fed-1",
	}, dag.VotePayload{TargetID: update.ID, Approve: true, Proof: dag.QuorumProof{
		RequiredRoles: []string{"admin"},
		Threshold:     dag.Threshold{Count: 2},
		Signers: []dag.ProofSigner{
			{Identity: f.alice.did, Role: "admin", Signature: identity.SignEd25519SHA256(message, f.alice.priv)},
			{Identity: f.bob.did, Role: "admin", Signature: identity.SignEd25519SHA256(message, f.bob.priv)},
		},
	}})

	// The same verifier must pick up the new state: the earlier failure may
	// not stick.
	rep, err = f.verifier.Verify(ctx, proposal.ID)
	if err != nil {
		t.Fatalf("verify after activation: %v", err)
	}
	if !rep.Valid {
		t.Fatalf("earlier failure masked now-valid lineage: %+v", rep.Failure)
	}
}

func TestVerifyCachesResults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rep, err := f.verifier.Verify(ctx, f.rootID)
	if err != nil || !rep.Valid {
		t.Fatalf("first verify: %v %+v", err, rep)
	}
	if _, ok := f.verifier.cache.Load(f.rootID); !ok {
		t.Error("verified node not cached")
	}
	rep, err = f.verifier.Verify(ctx, f.rootID)
	if err != nil || !rep.Valid {
		t.Fatalf("cached verify: %v %+v", err, rep)
	}
}
