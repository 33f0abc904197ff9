// Package query is the read-only inspection surface over the DAG: scope
// views, policy trails, quorum checks and federation overviews, all shaped
// for JSON output.
package query

import (
	"context"

	"github.com/InterCooperative-Network/icn-v2-sub001/authority"
	"github.com/InterCooperative-Network/icn-v2-sub001/dag"
	"github.com/InterCooperative-Network/icn-v2-sub001/dagstore"
	"github.com/InterCooperative-Network/icn-v2-sub001/identity"
	"github.com/InterCooperative-Network/icn-v2-sub001/model"
	"github.com/InterCooperative-Network/icn-v2-sub001/quorum"
)

// Service answers read queries. It never mutates the store.
type Service struct {
	Store     *dagstore.Store
	Authority *authority.Resolver
	Identity  identity.Resolver
}

// New returns a query Service over the given store and authority resolver.
func New(store *dagstore.Store, auth *authority.Resolver) *Service {
	return &Service{Store: store, Authority: auth, Identity: identity.SelfCertifying{}}
}

// Page bounds a paginated listing. A zero Limit means DefaultPageSize.
type Page struct {
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
}

// DefaultPageSize bounds listings when the caller does not.
const DefaultPageSize = 100

func (p Page) slice(ids []string) ([]string, int) {
	total := len(ids)
	limit := p.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if p.Offset >= total {
		return nil, total
	}
	end := p.Offset + limit
	if end > total {
		end = total
	}
	return ids[p.Offset:end], total
}

// ScopeView is one page of a scope's nodes in deterministic order, oldest
// first.
type ScopeView struct {
	ScopeID string               `json:"scopeId"`
	Total   int                  `json:"total"`
	Offset  int                  `json:"offset"`
	Nodes   []model.NodeEnvelope `json:"nodes"`
	Heads   []string             `json:"heads"`
}

// Scope returns a paginated view of the nodes in a scope.
func (s *Service) Scope(ctx context.Context, scopeID string, page Page) (*ScopeView, error) {
	ids, total := page.slice(s.Store.ByScope(scopeID))
	view := &ScopeView{
		ScopeID: scopeID,
		Total:   total,
		Offset:  page.Offset,
		Heads:   s.Store.Heads(scopeID),
	}
	for _, id := range ids {
		n, err := s.Store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if n == nil {
			continue
		}
		view.Nodes = append(view.Nodes, model.Envelope(n))
	}
	return view, nil
}

// Node returns a single node's envelope, or nil when absent.
func (s *Service) Node(ctx context.Context, id string) (*model.NodeEnvelope, error) {
	n, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, nil
	}
	env := model.Envelope(n)
	return &env, nil
}

// PolicyInspection pairs a scope's currently active policy with its full
// activation trail.
type PolicyInspection struct {
	ScopeID string                    `json:"scopeId"`
	Active  authority.PolicyVersion   `json:"active"`
	Trail   []authority.PolicyVersion `json:"trail"`
}

// Policy resolves the active policy and activation trail for a scope.
func (s *Service) Policy(ctx context.Context, scopeID string) (*PolicyInspection, error) {
	trail, err := s.Authority.PolicyTrail(ctx, scopeID, authority.AsOfLatest)
	if err != nil {
		return nil, err
	}
	return &PolicyInspection{
		ScopeID: scopeID,
		Active:  trail.Versions[len(trail.Versions)-1],
		Trail:   trail.Versions,
	}, nil
}

// QuorumCheck reports whether a vote node's embedded proof satisfies quorum
// against the authority active when its target was created.
type QuorumCheck struct {
	VoteID   string        `json:"voteId"`
	TargetID string        `json:"targetId"`
	Report   quorum.Report `json:"report"`
}

// Quorum re-evaluates the quorum proof carried by the vote node id.
func (s *Service) Quorum(ctx context.Context, voteID string) (*QuorumCheck, error) {
	n, err := s.Store.Get(ctx, voteID)
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, dag.NewError(dag.KindStorage, "ICN-QRY-001", "node not found").AtNode(voteID)
	}
	if !n.CarriesQuorumProof() {
		return nil, dag.NewError(dag.KindPolicy, "ICN-QRY-002", "node carries no quorum proof").AtNode(voteID)
	}
	payload, err := dag.DecodePayload(n)
	if err != nil {
		return nil, err
	}
	vp := payload.(*dag.VotePayload)
	target, err := s.Store.Get(ctx, vp.TargetID)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, dag.NewError(dag.KindMissingParent, "ICN-QRY-003", "vote target not present").AtNode(vp.TargetID)
	}
	auth, err := s.Authority.EffectiveAuthorityAt(ctx, target.Header.ScopeID, target.ID)
	if err != nil {
		return nil, err
	}
	governing, err := s.Authority.ActivePolicy(ctx, target.Header.ScopeID, target.Header.Timestamp-1)
	if err != nil {
		return nil, err
	}
	message, err := dag.EncodeNode(target)
	if err != nil {
		return nil, err
	}
	return &QuorumCheck{
		VoteID:   voteID,
		TargetID: vp.TargetID,
		Report:   quorum.Validate(authority.GoverningProof(vp.Proof, governing.Quorum), message, auth, s.Identity),
	}, nil
}

// ActivityEntry is one line of a scope's activity log.
type ActivityEntry struct {
	ID        string       `json:"id"`
	Type      dag.NodeType `json:"type"`
	Author    string       `json:"author"`
	Timestamp int64        `json:"timestamp"`
	Summary   string       `json:"summary"`
}

// Activity returns a paginated human-oriented log of scope activity, oldest
// first.
func (s *Service) Activity(ctx context.Context, scopeID string, page Page) ([]ActivityEntry, int, error) {
	ids, total := page.slice(s.Store.ByScope(scopeID))
	entries := make([]ActivityEntry, 0, len(ids))
	for _, id := range ids {
		n, err := s.Store.Get(ctx, id)
		if err != nil {
			return nil, 0, err
		}
		if n == nil {
			continue
		}
		entries = append(entries, ActivityEntry{
			ID:        n.ID,
			Type:      n.Header.Type,
			Author:    n.Header.Author,
			Timestamp: n.Header.Timestamp,
			Summary:   summarize(n),
		})
	}
	return entries, total, nil
}

// ScopeSummary is one member scope within a federation overview.
type ScopeSummary struct {
	ScopeID   string            `json:"scopeId"`
	ScopeType dag.ScopeType     `json:"scopeType"`
	Nodes     int               `json:"nodes"`
	Heads     []string          `json:"heads"`
	Members   map[string]string `json:"members,omitempty"`
}

// Overview is the top-level federation snapshot.
type Overview struct {
	FederationID string         `json:"federationId"`
	Scopes       []ScopeSummary `json:"scopes"`
}

// Federation summarizes every scope belonging to a federation: node counts,
// current heads and active membership per scope.
func (s *Service) Federation(ctx context.Context, federationID string) (*Overview, error) {
	ov := &Overview{FederationID: federationID}
	for _, scopeID := range s.Store.Scopes() {
		ids := s.Store.ByScope(scopeID)
		if len(ids) == 0 {
			continue
		}
		first, err := s.Store.Get(ctx, ids[0])
		if err != nil {
			return nil, err
		}
		if first == nil || first.Header.FederationID != federationID {
			continue
		}
		sum := ScopeSummary{
			ScopeID:   scopeID,
			ScopeType: first.Header.ScopeType,
			Nodes:     len(ids),
			Heads:     s.Store.Heads(scopeID),
		}
		if p, err := s.Authority.ActivePolicy(ctx, scopeID, authority.AsOfLatest); err == nil {
			sum.Members = p.Members
		}
		ov.Scopes = append(ov.Scopes, sum)
	}
	if len(ov.Scopes) == 0 {
		return nil, dag.NewError(dag.KindPolicy, "ICN-QRY-004", "unknown federation "+federationID)
	}
	return ov, nil
}

func summarize(n *dag.Node) string {
	payload, err := dag.DecodePayload(n)
	if err != nil {
		return string(n.Header.Type)
	}
	switch p := payload.(type) {
	case *dag.FederationCreationPayload:
		return "federation " + p.Name + " created"
	case *dag.CooperativeCreationPayload:
		return "cooperative " + p.Name + " created"
	case *dag.ProposalPayload:
		return "proposal: " + p.Title
	case *dag.VotePayload:
		if p.Approve {
			return "approved " + p.TargetID
		}
		return "rejected " + p.TargetID
	case *dag.PolicyUpdatePayload:
		return "policy update proposed"
	case *dag.ResourcePolicyPayload:
		return "resource policy for " + p.Resource
	case *dag.DispatchReceiptPayload:
		return "dispatch " + p.JobID + " to " + p.Worker
	case *dag.RevocationPayload:
		return "revoked " + string(p.TargetKind) + " " + p.Target
	default:
		return string(n.Header.Type)
	}
}
