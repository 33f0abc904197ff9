// Package lineage verifies that a DAG node and its full ancestry are
// authentic and were authorized when created.
//
// Verification walks parents iteratively with an explicit work list rather
// than recursing, so pathological depth cannot blow the stack, and a visited
// set turns any cycle into a hard integrity failure instead of a hang.
package lineage

import (
	"context"
	"sync"

	"github.com/InterCooperative-Network/icn-v2-sub001/authority"
	"github.com/InterCooperative-Network/icn-v2-sub001/dag"
	"github.com/InterCooperative-Network/icn-v2-sub001/dagstore"
	"github.com/InterCooperative-Network/icn-v2-sub001/identity"
	"github.com/InterCooperative-Network/icn-v2-sub001/quorum"
)

// EvalMode selects which point in time authorization is evaluated at.
type EvalMode int

const (
	// EvalCreationTime checks each ancestor against the authority that was
	// active when that ancestor was created. This is the default: history
	// stays valid even after members are later removed.
	EvalCreationTime EvalMode = iota
	// EvalVerificationTime additionally requires every author in the lineage
	// to still hold a role now. Used by callers enforcing live standing.
	EvalVerificationTime
)

// Report is the outcome of verifying one node's lineage.
type Report struct {
	NodeID string `json:"nodeId"`
	// Checked counts distinct nodes visited, the target included.
	Checked int  `json:"checked"`
	Valid   bool `json:"valid"`
	// Failure carries the first verification error encountered; nil when
	// Valid.
	Failure *dag.Error `json:"failure,omitempty"`
}

// Verifier checks node lineages against a store and an authority resolver.
// Creation-time check successes are cached by content id: a node whose id,
// signature, creation-time authorization and quorum all held stays held in
// an append-only store, so ok entries never need invalidation. Failures are
// never cached, since the activating nodes (membership updates, approving
// votes) may arrive later. Verification-time mode is never cached at all:
// "still holds a role now" is not a stable fact.
type Verifier struct {
	Store     *dagstore.Store
	Authority *authority.Resolver
	Identity  identity.Resolver
	Mode      EvalMode

	cache sync.Map // node id -> struct{}, creation-time checks passed
}

// New returns a Verifier in EvalCreationTime mode.
func New(store *dagstore.Store, auth *authority.Resolver, opts ...Option) *Verifier {
	v := &Verifier{Store: store, Authority: auth, Identity: identity.SelfCertifying{}}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithMode sets the authorization evaluation mode.
func WithMode(m EvalMode) Option {
	return func(v *Verifier) { v.Mode = m }
}

// WithIdentityResolver overrides the default self-certifying DID resolver.
func WithIdentityResolver(ir identity.Resolver) Option {
	return func(v *Verifier) { v.Identity = ir }
}

// Verify checks the node identified by id and every ancestor reachable from
// it. It returns a Report; verification failures land in the report, while
// the error return is reserved for infrastructure faults (storage errors,
// context cancellation before any result).
func (v *Verifier) Verify(ctx context.Context, id string) (*Report, error) {
	rep := &Report{NodeID: id}

	type frame struct {
		id   string
		from string // child that referenced id, for cycle reporting
	}
	work := []frame{{id: id}}
	visited := map[string]bool{}
	inPath := map[string]bool{}

	for len(work) > 0 {
		if err := ctx.Err(); err != nil {
			rep.Failure = dag.WrapError(dag.KindTimeout, "ICN-LIN-001", "verification deadline exceeded", err).AtNode(id)
			return rep, nil
		}
		f := work[len(work)-1]
		work = work[:len(work)-1]

		if f.id == "" { // path marker: leaving a node
			delete(inPath, f.from)
			continue
		}
		if inPath[f.id] {
			rep.Failure = dag.NewError(dag.KindCycleDetected, "ICN-LIN-002",
				"parent cycle via "+f.from).AtNode(f.id)
			return rep, nil
		}
		if visited[f.id] {
			continue
		}
		visited[f.id] = true
		rep.Checked++

		n, err := v.Store.Get(ctx, f.id)
		if err != nil {
			return nil, err
		}
		if n == nil {
			rep.Failure = dag.NewError(dag.KindMissingParent, "ICN-LIN-003",
				"ancestor not present in store").AtNode(f.id)
			return rep, nil
		}

		// The cache memoizes per-node check successes only; ancestry is
		// still traversed, so a cached-ok node under a bad ancestor cannot
		// mask the ancestor's failure.
		if _, ok := v.cache.Load(f.id); !ok {
			if ferr := v.checkNode(ctx, n); ferr != nil {
				rep.Failure = ferr
				return rep, nil
			}
			if v.Mode == EvalCreationTime {
				v.cache.Store(f.id, struct{}{})
			}
		}

		inPath[f.id] = true
		work = append(work, frame{id: "", from: f.id})
		for _, p := range n.Header.Parents {
			work = append(work, frame{id: p, from: f.id})
		}
	}

	rep.Valid = true
	return rep, nil
}

// checkNode runs the per-node verification battery: content id, signature,
// creator authorization and, for votes, the embedded quorum proof.
func (v *Verifier) checkNode(ctx context.Context, n *dag.Node) *dag.Error {
	if err := dag.VerifyID(n); err != nil {
		return asDAGError(err, n.ID)
	}
	if err := dag.VerifySignature(n, v.Identity); err != nil {
		return asDAGError(err, n.ID)
	}
	if err := v.Authority.AuthorizedCreator(ctx, n); err != nil {
		return asDAGError(err, n.ID)
	}
	if v.Mode == EvalVerificationTime && !n.IsRoot() {
		auth, err := v.Authority.EffectiveAuthority(ctx, n.Header.ScopeID, authority.AsOfLatest)
		if err != nil {
			return asDAGError(err, n.ID)
		}
		if _, ok := auth[n.Header.Author]; !ok {
			return dag.NewError(dag.KindUnauthorizedCreator, "ICN-LIN-004",
				"author "+n.Header.Author+" no longer holds a role in "+n.Header.ScopeID).AtNode(n.ID)
		}
	}
	if n.CarriesQuorumProof() {
		if err := v.checkVote(ctx, n); err != nil {
			return err
		}
	}
	return nil
}

// checkVote validates a vote's quorum proof against the authority that was
// active when the vote's target was created, so a vote can never be approved
// by members the target itself would introduce.
func (v *Verifier) checkVote(ctx context.Context, n *dag.Node) *dag.Error {
	payload, err := dag.DecodePayload(n)
	if err != nil {
		return asDAGError(err, n.ID)
	}
	vp := payload.(*dag.VotePayload)
	target, err := v.Store.Get(ctx, vp.TargetID)
	if err != nil {
		return asDAGError(err, n.ID)
	}
	if target == nil {
		return dag.NewError(dag.KindMissingParent, "ICN-LIN-005",
			"vote target "+vp.TargetID+" not present in store").AtNode(n.ID)
	}
	auth, err := v.Authority.EffectiveAuthorityAt(ctx, target.Header.ScopeID, target.ID)
	if err != nil {
		return asDAGError(err, n.ID)
	}
	governing, err := v.Authority.ActivePolicy(ctx, target.Header.ScopeID, target.Header.Timestamp-1)
	if err != nil {
		return asDAGError(err, n.ID)
	}
	message, err := dag.EncodeNode(target)
	if err != nil {
		return asDAGError(err, n.ID)
	}
	rep := quorum.Validate(authority.GoverningProof(vp.Proof, governing.Quorum), message, auth, v.Identity)
	if !rep.Satisfied {
		e := dag.NewError(dag.KindInsufficientQuorum, "ICN-LIN-006",
			"quorum not satisfied for target "+vp.TargetID).AtNode(n.ID)
		if len(rep.Reasons) > 0 {
			e.Message += ": " + rep.Reasons[0]
		}
		return e
	}
	return nil
}

func asDAGError(err error, nodeID string) *dag.Error {
	if de, ok := err.(*dag.Error); ok {
		return de
	}
	return dag.WrapError(dag.KindInternal, "ICN-LIN-009", "verification failed", err).AtNode(nodeID)
}
