package dag

import "encoding/json"

// Member binds an identity to a role inside a scope.
type Member struct {
	Identity string `json:"identity"`
	Role     string `json:"role"`
}

// Threshold expresses a quorum requirement as an absolute signer count or a
// fraction of the role-eligible authority set. Exactly one of Count or
// Fraction is set; fractions are carried as "num/den" strings so canonical
// encoding never introduces floats.
type Threshold struct {
	Count    int    `json:"count,omitempty"`
	Fraction string `json:"fraction,omitempty"`
}

// QuorumRule names the signer roles that may approve a decision and the
// threshold they must meet.
type QuorumRule struct {
	RequiredRoles []string  `json:"requiredRoles"`
	Threshold     Threshold `json:"threshold"`
}

// ProofSigner is one entry of a quorum proof: an identity attesting the
// target payload, the role it claims, and its signature over the target's
// canonical bytes.
type ProofSigner struct {
	Identity  string `json:"identity"`
	Role      string `json:"role"`
	Signature string `json:"signature"` // base64
}

// QuorumProof is embedded evidence that enough authorized signers approved a
// governance decision. Signatures are over the canonical encoding of the
// node identified by the proof's enclosing Vote payload target.
type QuorumProof struct {
	RequiredRoles []string      `json:"requiredRoles"`
	Threshold     Threshold     `json:"threshold"`
	Signers       []ProofSigner `json:"signers"`
}

// FederationCreationPayload is the root operation of a federation scope.
// Its author must be a recognized bootstrap authority per the trust policy.
type FederationCreationPayload struct {
	Name    string     `json:"name"`
	Members []Member   `json:"members"`
	Quorum  QuorumRule `json:"quorum"`
}

// CooperativeCreationPayload creates a child scope. The header's ScopeID is
// the new cooperative scope; ParentScopes lists the scopes authority is
// inherited from.
type CooperativeCreationPayload struct {
	Name         string     `json:"name"`
	ParentScopes []string   `json:"parentScopes"`
	Members      []Member   `json:"members"`
	Quorum       QuorumRule `json:"quorum"`
}

// ProposalPayload is a governance proposal; its execution is recorded by an
// approving Vote node referencing it as parent.
type ProposalPayload struct {
	Title  string          `json:"title"`
	Action string          `json:"action"`
	Body   json.RawMessage `json:"body,omitempty"`
}

// VotePayload approves (or rejects) a target Proposal or PolicyUpdate node.
// Approving votes carry the quorum proof attesting the target.
type VotePayload struct {
	TargetID string      `json:"targetId"`
	Approve  bool        `json:"approve"`
	Proof    QuorumProof `json:"proof"`
}

// PolicyUpdatePayload changes a scope's membership and/or quorum rule. The
// update takes effect only once an approving Vote referencing it satisfies
// quorum under the previously active policy.
type PolicyUpdatePayload struct {
	AddMembers    []Member    `json:"addMembers,omitempty"`
	RemoveMembers []string    `json:"removeMembers,omitempty"`
	Quorum        *QuorumRule `json:"quorum,omitempty"`
}

// ResourcePolicyPayload declares resource rules for a scope. The body is
// opaque to the verifier.
type ResourcePolicyPayload struct {
	Resource string          `json:"resource"`
	Body     json.RawMessage `json:"body,omitempty"`
}

// DispatchReceiptPayload records a completed compute dispatch.
type DispatchReceiptPayload struct {
	JobID      string `json:"jobId"`
	Worker     string `json:"worker"`
	Capability string `json:"capability,omitempty"`
	ResultCID  string `json:"resultCid,omitempty"`
}

// RevocationTarget classifies what a Revocation node revokes.
type RevocationTarget string

const (
	RevokeIdentity RevocationTarget = "identity"
	RevokeScope    RevocationTarget = "scope"
	RevokeNode     RevocationTarget = "node"
)

// RevocationPayload withdraws trust from an identity, scope, or node after
// the fact. Revocations are themselves DAG nodes, so revocation state is part
// of the verifiable history.
type RevocationPayload struct {
	TargetKind RevocationTarget `json:"targetKind"`
	Target     string           `json:"target"`
	Reason     string           `json:"reason,omitempty"`
}

// DecodePayload unmarshals a node's payload into its type-specific struct.
// Unknown node types are rejected; the variant set is closed.
func DecodePayload(n *Node) (any, error) {
	var out any
	switch n.Header.Type {
	case TypeFederationCreation:
		out = new(FederationCreationPayload)
	case TypeCooperativeCreation:
		out = new(CooperativeCreationPayload)
	case TypeProposal:
		out = new(ProposalPayload)
	case TypeVote:
		out = new(VotePayload)
	case TypePolicyUpdate:
		out = new(PolicyUpdatePayload)
	case TypeResourcePolicy:
		out = new(ResourcePolicyPayload)
	case TypeDispatchReceipt:
		out = new(DispatchReceiptPayload)
	case TypeRevocation:
		out = new(RevocationPayload)
	default:
		return nil, NewError(KindEncoding, "ICN-ENC-020", "unknown node type "+string(n.Header.Type))
	}
	if err := json.Unmarshal(payloadOrEmpty(n.Payload), out); err != nil {
		return nil, WrapError(KindEncoding, "ICN-ENC-021", "payload does not match node type", err)
	}
	return out, nil
}

func payloadOrEmpty(p json.RawMessage) json.RawMessage {
	if len(p) == 0 {
		return json.RawMessage("{}")
	}
	return p
}
