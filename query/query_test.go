package query

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"testing"

	"github.com/InterCooperative-Network/icn-v2-sub001/authority"
	"github.com/InterCooperative-Network/icn-v2-sub001/dag"
	"github.com/InterCooperative-Network/icn-v2-sub001/dagstore"
	"github.com/InterCooperative-Network/icn-v2-sub001/identity"
	"github.com/InterCooperative-Network/icn-v2-sub001/storage"
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
	svc   *Service
	store *dagstore.Store

	alice, bob member
	rootID     string
	proposalID string
	voteID     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := dagstore.New(storage.NewMemoryCAS(), dagstore.Options{})
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	f := &fixture{store: st, alice: newMember(t), bob: newMember(t)}
	f.svc = New(st, authority.New(st))

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

	proposal := f.appendNode(t, f.alice, dag.Header{
		Type:         dag.TypeProposal,
		Timestamp:    2000,
		Parents:      []string{root.ID},
		ScopeType:    dag.ScopeFederation,
		ScopeID:      "fed-1",
		FederationID: "fed-1",
	}, dag.ProposalPayload{Title: "upgrade", Action: "apply"})
	f.proposalID = proposal.ID

	message, err := dag.EncodeNode(proposal)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	vote := f.appendNode(t, f.bob, dag.Header{
		Type:         dag.TypeVote,
		Timestamp:    3000,
		Parents:      []string{proposal.ID},
		ScopeType:    dag.ScopeFederation,
		ScopeID:      "fed-1",
		FederationID: "fed-1",
	}, dag.VotePayload{
		TargetID: proposal.ID,
		Approve:  true,
		Proof: dag.QuorumProof{
			RequiredRoles: []string{"admin"},
			Threshold:     dag.Threshold{Count: 2},
			Signers: []dag.ProofSigner{
				{Identity: f.alice.did, Role: "admin", Signature: identity.SignEd25519SHA256(message, f.alice.priv)},
				{Identity: f.bob.did, Role: "admin", Signature: identity.SignEd25519SHA256(message, f.bob.priv)},
			},
		},
	})
	f.voteID = vote.ID
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

func TestScopeViewPagination(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.Scope(ctx, "fed-1", Page{})
	if err != nil {
		t.Fatalf("scope: %v", err)
	}
	if view.Total != 3 || len(view.Nodes) != 3 {
		t.Fatalf("expected 3 nodes, got %+v", view)
	}
	// Deterministic order, oldest first.
	if view.Nodes[0].ID != f.rootID || view.Nodes[2].ID != f.voteID {
		t.Errorf("ordering wrong: %v", []string{view.Nodes[0].ID, view.Nodes[1].ID, view.Nodes[2].ID})
	}
	if len(view.Heads) != 1 || view.Heads[0] != f.voteID {
		t.Errorf("heads: %v", view.Heads)
	}

	page, err := f.svc.Scope(ctx, "fed-1", Page{Offset: 1, Limit: 1})
	if err != nil {
		t.Fatalf("scope page: %v", err)
	}
	if page.Total != 3 || len(page.Nodes) != 1 || page.Nodes[0].ID != f.proposalID {
		t.Errorf("pagination wrong: %+v", page)
	}

	empty, err := f.svc.Scope(ctx, "fed-1", Page{Offset: 10})
	if err != nil {
		t.Fatalf("scope past end: %v", err)
	}
	if len(empty.Nodes) != 0 || empty.Total != 3 {
		t.Errorf("past-end page: %+v", empty)
	}
}

func TestNodeLookup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	env, err := f.svc.Node(ctx, f.proposalID)
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	if env == nil || env.Type != dag.TypeProposal || env.Author != f.alice.did {
		t.Errorf("envelope: %+v", env)
	}

	missing, err := f.svc.Node(ctx, "bafkreihdwdcefgh4dqkjv67uzcmw7ojee6xedzdetojuzjevtenxquvyku")
	if err != nil {
		t.Fatalf("missing node: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for absent node")
	}
}

func TestPolicyInspection(t *testing.T) {
	f := newFixture(t)
	insp, err := f.svc.Policy(context.Background(), "fed-1")
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	if insp.Active.Version != 0 || len(insp.Trail) != 1 {
		t.Errorf("inspection: %+v", insp)
	}
	if insp.Active.Members[f.bob.did] != "admin" {
		t.Errorf("members: %v", insp.Active.Members)
	}
}

func TestQuorumCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	check, err := f.svc.Quorum(ctx, f.voteID)
	if err != nil {
		t.Fatalf("quorum: %v", err)
	}
	if !check.Report.Satisfied || check.TargetID != f.proposalID {
		t.Errorf("check: %+v", check)
	}

	if _, err := f.svc.Quorum(ctx, f.proposalID); err == nil {
		t.Error("expected rejection for node without quorum proof")
	}
}

func TestActivityLog(t *testing.T) {
	f := newFixture(t)
	entries, total, err := f.svc.Activity(context.Background(), "fed-1", Page{})
	if err != nil {
		t.Fatalf("activity: %v", err)
	}
	if total != 3 || len(entries) != 3 {
		t.Fatalf("entries: %d/%d", len(entries), total)
	}
	if entries[1].Summary != "proposal: upgrade" {
		t.Errorf("summary: %q", entries[1].Summary)
	}
	if entries[2].Summary != "approved "+f.proposalID {
		t.Errorf("vote summary: %q", entries[2].Summary)
	}
}

func TestFederationOverview(t *testing.T) {
	f := newFixture(t)
	ov, err := f.svc.Federation(context.Background(), "fed-1")
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if len(ov.Scopes) != 1 || ov.Scopes[0].Nodes != 3 {
		t.Errorf("overview: %+v", ov)
	}
	if ov.Scopes[0].Members[f.alice.did] != "admin" {
		t.Errorf("members: %v", ov.Scopes[0].Members)
	}

	if _, err := f.svc.Federation(context.Background(), "fed-unknown"); err == nil {
		t.Error("expected unknown federation rejection")
	}
}
