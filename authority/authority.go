package authority

import (
	"context"

	"github.com/InterCooperative-Network/icn-v2-sub001/dag"
	"github.com/InterCooperative-Network/icn-v2-sub001/dagstore"
	"github.com/InterCooperative-Network/icn-v2-sub001/identity"
	"github.com/InterCooperative-Network/icn-v2-sub001/trustpolicy"
)

// Resolver answers authorization questions against an append-only DAG store.
// Trust is optional; when set it supplies the bootstrap allowlist for
// federation roots, which have no prior scope to authorize them.
type Resolver struct {
	Store    *dagstore.Store
	Identity identity.Resolver
	Trust    *trustpolicy.Policy
}

// New returns a Resolver backed by store. The identity resolver defaults to
// self-certifying DIDs.
func New(store *dagstore.Store, opts ...Option) *Resolver {
	r := &Resolver{Store: store, Identity: identity.SelfCertifying{}}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithIdentityResolver overrides the default self-certifying DID resolver.
func WithIdentityResolver(ir identity.Resolver) Option {
	return func(r *Resolver) { r.Identity = ir }
}

// WithTrustPolicy supplies the bootstrap trust anchor used to authorize
// federation roots.
func WithTrustPolicy(p *trustpolicy.Policy) Option {
	return func(r *Resolver) { r.Trust = p }
}

// EffectiveAuthority resolves who may act within a scope at asOf (unix
// milliseconds) and with what role. The result is the scope's own active
// membership merged with the membership inherited from its parent scopes,
// own entries winning on conflict.
func (r *Resolver) EffectiveAuthority(ctx context.Context, scopeID string, asOf int64) (map[string]string, error) {
	return r.effectiveAt(ctx, scopeID, asOf, nil, nil)
}

// EffectiveAuthorityAt resolves authority as of the creation of the node
// identified by asOfNodeID. The node's own creation is excluded: authority
// reflects the state the node's creator saw, so a node can never authorize
// itself. An empty id resolves present-day authority.
func (r *Resolver) EffectiveAuthorityAt(ctx context.Context, scopeID, asOfNodeID string) (map[string]string, error) {
	asOf := AsOfLatest
	if asOfNodeID != "" {
		n, err := r.Store.Get(ctx, asOfNodeID)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, dag.NewError(dag.KindStorage, "ICN-AUTH-010", "as-of node not found").AtNode(asOfNodeID)
		}
		// Strictly before the node's own timestamp. Concurrent updates with
		// the same timestamp are excluded on the side of caution.
		asOf = n.Header.Timestamp - 1
	}
	return r.EffectiveAuthority(ctx, scopeID, asOf)
}

// effectiveAt merges inherited and own membership. own may carry a
// pre-resolved policy version for scopeID to break the mutual recursion with
// the policy fold; visited guards against parent-scope cycles.
func (r *Resolver) effectiveAt(ctx context.Context, scopeID string, asOf int64, own *PolicyVersion, visited map[string]bool) (map[string]string, error) {
	if visited == nil {
		visited = map[string]bool{}
	}
	if visited[scopeID] {
		return nil, dag.NewError(dag.KindCycleDetected, "ICN-AUTH-011", "parent scope cycle at "+scopeID)
	}
	visited[scopeID] = true

	if own == nil {
		p, err := r.ActivePolicy(ctx, scopeID, asOf)
		if err != nil {
			return nil, err
		}
		own = p
	}

	merged := map[string]string{}
	for _, parent := range own.ParentScopes {
		inherited, err := r.effectiveAt(ctx, parent, asOf, nil, visited)
		if err != nil {
			// A missing or not-yet-created parent contributes nothing; the
			// child's own membership still stands.
			if dag.IsKind(err, dag.KindPolicy) {
				continue
			}
			return nil, err
		}
		for id, role := range inherited {
			merged[id] = role
		}
	}
	for id, role := range own.Members {
		merged[id] = role
	}
	return merged, nil
}

// AuthorizedCreator reports whether creator held any role in scopeID as of
// the given time. Federation roots are the base case: with no prior scope to
// consult, the trust policy's bootstrap section decides.
func (r *Resolver) AuthorizedCreator(ctx context.Context, n *dag.Node) error {
	if n.IsRoot() && n.Header.Type == dag.TypeFederationCreation {
		if r.Trust == nil {
			return dag.NewError(dag.KindUnauthorizedCreator, "ICN-AUTH-001",
				"federation root requires a bootstrap trust policy").AtNode(n.ID)
		}
		if !r.Trust.IsBootstrap(n.Header.ScopeID, n.Header.Author) {
			return dag.NewError(dag.KindUnauthorizedCreator, "ICN-AUTH-002",
				"author "+n.Header.Author+" is not a bootstrap identity for scope "+n.Header.ScopeID).AtNode(n.ID)
		}
		return nil
	}

	// Cooperative creation is authorized by the parent scopes it attaches
	// to, not by the scope it creates.
	scopes := []string{n.Header.ScopeID}
	if n.Header.Type == dag.TypeCooperativeCreation {
		payload, err := dag.DecodePayload(n)
		if err != nil {
			return err
		}
		cp := payload.(*dag.CooperativeCreationPayload)
		if len(cp.ParentScopes) == 0 {
			return dag.NewError(dag.KindUnauthorizedCreator, "ICN-AUTH-003",
				"cooperative creation without parent scopes").AtNode(n.ID)
		}
		scopes = cp.ParentScopes
	}

	asOf := n.Header.Timestamp - 1
	for _, scope := range scopes {
		auth, err := r.EffectiveAuthority(ctx, scope, asOf)
		if err != nil {
			if dag.IsKind(err, dag.KindPolicy) {
				continue
			}
			return err
		}
		if _, ok := auth[n.Header.Author]; ok {
			return nil
		}
	}
	return dag.NewError(dag.KindUnauthorizedCreator, "ICN-AUTH-004",
		"author "+n.Header.Author+" held no role in scope as of node creation").AtNode(n.ID)
}
