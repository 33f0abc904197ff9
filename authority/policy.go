// Package authority derives scope authorization state from DAG content.
//
// A scope's membership is never persisted as a side table: it is folded from
// the scope's creation node and its chain of approved PolicyUpdate nodes, so
// authorization state is itself part of the verifiable history. Resolution is
// always relative to a point in time ("as of"), because verifying a
// historical node must reproduce what was authorized when that node was
// created, not what is authorized now.
package authority

import (
	"context"
	"math"
	"sort"

	"github.com/InterCooperative-Network/icn-v2-sub001/dag"
	"github.com/InterCooperative-Network/icn-v2-sub001/quorum"
)

// PolicyVersion is one resolved state of a scope's policy lineage.
type PolicyVersion struct {
	ScopeID string `json:"scopeId"`
	// Version is 0 for the creation node's initial policy and increments per
	// activated update.
	Version int `json:"version"`
	// Members maps identity to role.
	Members map[string]string `json:"members"`
	Quorum  dag.QuorumRule    `json:"quorum"`
	// ParentScopes lists scopes authority is inherited from.
	ParentScopes []string `json:"parentScopes,omitempty"`
	// UpdateID is the PolicyUpdate node that produced this version; empty
	// for version 0.
	UpdateID string `json:"updateId,omitempty"`
	// ApprovalID is the Vote node whose quorum proof activated UpdateID;
	// empty for version 0.
	ApprovalID string `json:"approvalId,omitempty"`
	// ActivatedAt is the approval timestamp (the creation node's timestamp
	// for version 0).
	ActivatedAt int64 `json:"activatedAt"`
}

// PolicyTrail is the full lineage of activated versions for a scope, oldest
// first. Used by policy inspection tooling.
type PolicyTrail struct {
	ScopeID  string          `json:"scopeId"`
	Versions []PolicyVersion `json:"versions"`
}

// ActivePolicy resolves the policy version active for a scope at asOf (unix
// milliseconds). Pass AsOfLatest for the present state.
//
// A PolicyUpdate activates only when an approving Vote node referencing it
// as parent satisfies quorum under the previously active policy: updates are
// self-referential but never self-authorizing. Updates whose approval never
// satisfied quorum are skipped, not errors.
func (r *Resolver) ActivePolicy(ctx context.Context, scopeID string, asOf int64) (*PolicyVersion, error) {
	trail, err := r.PolicyTrail(ctx, scopeID, asOf)
	if err != nil {
		return nil, err
	}
	v := trail.Versions[len(trail.Versions)-1]
	return &v, nil
}

// AsOfLatest selects the newest activated policy version.
const AsOfLatest = int64(math.MaxInt64)

// PolicyTrail resolves every policy version activated up to asOf, oldest
// first. The trail always contains at least version 0.
func (r *Resolver) PolicyTrail(ctx context.Context, scopeID string, asOf int64) (*PolicyTrail, error) {
	base, err := r.creationVersion(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	if base.ActivatedAt > asOf {
		return nil, dag.NewError(dag.KindPolicy, "ICN-POL-003", "scope "+scopeID+" did not exist at the requested time")
	}

	trail := &PolicyTrail{ScopeID: scopeID, Versions: []PolicyVersion{*base}}
	current := base

	for _, appr := range r.approvals(ctx, scopeID) {
		if appr.activatedAt > asOf {
			break
		}
		// Quorum is evaluated under the authority produced by the policy
		// active before this update, including inherited ancestors as of the
		// update's creation.
		auth, err := r.effectiveAt(ctx, scopeID, appr.update.Header.Timestamp, current, nil)
		if err != nil {
			return nil, err
		}
		message, err := dag.EncodeNode(appr.update)
		if err != nil {
			return nil, err
		}
		// The governing rule is the previous policy's, never the one embedded
		// in the proof: a proof declaring a weaker threshold must not lower
		// the bar.
		rep := quorum.Validate(GoverningProof(appr.proof, current.Quorum), message, auth, r.Identity)
		if !rep.Satisfied {
			continue
		}

		next := applyUpdate(current, appr)
		trail.Versions = append(trail.Versions, *next)
		current = next
	}
	return trail, nil
}

// GoverningProof substitutes the scope policy's quorum rule for the
// thresholds a proof declares about itself. The proof keeps its signers; the
// rule under which they are counted comes from the policy.
func GoverningProof(proof dag.QuorumProof, rule dag.QuorumRule) dag.QuorumProof {
	if len(rule.RequiredRoles) == 0 && rule.Threshold == (dag.Threshold{}) {
		return proof
	}
	proof.RequiredRoles = rule.RequiredRoles
	proof.Threshold = rule.Threshold
	return proof
}

type approval struct {
	update      *dag.Node
	vote        *dag.Node
	proof       dag.QuorumProof
	activatedAt int64
}

// approvals returns candidate (PolicyUpdate, approving Vote) pairs for a
// scope, ordered by approval time then vote id for determinism.
func (r *Resolver) approvals(ctx context.Context, scopeID string) []approval {
	var out []approval
	for _, vid := range r.Store.ByType(scopeID, dag.TypeVote) {
		vote, err := r.Store.Get(ctx, vid)
		if err != nil || vote == nil {
			continue
		}
		var vp dag.VotePayload
		if payload, perr := dag.DecodePayload(vote); perr == nil {
			vp = *(payload.(*dag.VotePayload))
		} else {
			continue
		}
		if !vp.Approve || vp.TargetID == "" {
			continue
		}
		if !parentOf(vote, vp.TargetID) {
			// A vote must reference its target as parent; anything else is
			// not an activation.
			continue
		}
		target, err := r.Store.Get(ctx, vp.TargetID)
		if err != nil || target == nil || target.Header.Type != dag.TypePolicyUpdate {
			continue
		}
		if target.Header.ScopeID != scopeID {
			continue
		}
		out = append(out, approval{
			update:      target,
			vote:        vote,
			proof:       vp.Proof,
			activatedAt: vote.Header.Timestamp,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].activatedAt != out[j].activatedAt {
			return out[i].activatedAt < out[j].activatedAt
		}
		return out[i].vote.ID < out[j].vote.ID
	})
	return out
}

func (r *Resolver) creationVersion(ctx context.Context, scopeID string) (*PolicyVersion, error) {
	for _, typ := range []dag.NodeType{dag.TypeFederationCreation, dag.TypeCooperativeCreation} {
		ids := r.Store.ByType(scopeID, typ)
		if len(ids) == 0 {
			continue
		}
		n, err := r.Store.Get(ctx, ids[0])
		if err != nil {
			return nil, err
		}
		if n == nil {
			continue
		}
		payload, err := dag.DecodePayload(n)
		if err != nil {
			return nil, err
		}
		v := &PolicyVersion{
			ScopeID:     scopeID,
			Version:     0,
			Members:     map[string]string{},
			ActivatedAt: n.Header.Timestamp,
		}
		switch p := payload.(type) {
		case *dag.FederationCreationPayload:
			for _, m := range p.Members {
				v.Members[m.Identity] = m.Role
			}
			v.Quorum = p.Quorum
		case *dag.CooperativeCreationPayload:
			for _, m := range p.Members {
				v.Members[m.Identity] = m.Role
			}
			v.Quorum = p.Quorum
			v.ParentScopes = append([]string(nil), p.ParentScopes...)
		}
		return v, nil
	}
	return nil, dag.NewError(dag.KindPolicy, "ICN-POL-001", "no creation node for scope "+scopeID)
}

func applyUpdate(prev *PolicyVersion, appr approval) *PolicyVersion {
	next := &PolicyVersion{
		ScopeID:      prev.ScopeID,
		Version:      prev.Version + 1,
		Members:      make(map[string]string, len(prev.Members)),
		Quorum:       prev.Quorum,
		ParentScopes: append([]string(nil), prev.ParentScopes...),
		UpdateID:     appr.update.ID,
		ApprovalID:   appr.vote.ID,
		ActivatedAt:  appr.activatedAt,
	}
	for id, role := range prev.Members {
		next.Members[id] = role
	}
	payload, err := dag.DecodePayload(appr.update)
	if err != nil {
		return next
	}
	up := payload.(*dag.PolicyUpdatePayload)
	for _, rm := range up.RemoveMembers {
		delete(next.Members, rm)
	}
	for _, m := range up.AddMembers {
		next.Members[m.Identity] = m.Role
	}
	if up.Quorum != nil {
		next.Quorum = *up.Quorum
	}
	return next
}

func parentOf(n *dag.Node, id string) bool {
	for _, p := range n.Header.Parents {
		if p == id {
			return true
		}
	}
	return false
}
