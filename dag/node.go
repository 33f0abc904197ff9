// Package dag defines the immutable node model of the federation trust graph
// and its single canonical-encoding choke point.
//
// A node is created once, signed by its author, content-addressed by the
// digest of its canonical encoding, and never mutated afterwards. Everything
// else in this module (storage, authority derivation, lineage verification,
// credentials) is a consumer of this package's invariants.
package dag

import "encoding/json"

// FormatTag versions the canonical node encoding. Any change to the encoding
// rules is a breaking protocol change and must bump this tag.
const FormatTag = "icn-dag/1"

// NodeType is the closed set of operation kinds recorded in the graph.
//
// The set is deliberately closed: the lineage verifier must know exhaustively
// which types carry quorum proofs or policy semantics.
type NodeType string

const (
	TypeFederationCreation  NodeType = "FederationCreation"
	TypeCooperativeCreation NodeType = "CooperativeCreation"
	TypeProposal            NodeType = "Proposal"
	TypeVote                NodeType = "Vote"
	TypeResourcePolicy      NodeType = "ResourcePolicy"
	TypePolicyUpdate        NodeType = "PolicyUpdate"
	TypeDispatchReceipt     NodeType = "DispatchReceipt"
	TypeRevocation          NodeType = "Revocation"
)

// KnownType reports whether t is a member of the closed node-type set.
func KnownType(t NodeType) bool {
	switch t {
	case TypeFederationCreation, TypeCooperativeCreation, TypeProposal,
		TypeVote, TypeResourcePolicy, TypePolicyUpdate,
		TypeDispatchReceipt, TypeRevocation:
		return true
	}
	return false
}

// ScopeType classifies authorization namespaces.
type ScopeType string

const (
	ScopeFederation  ScopeType = "federation"
	ScopeCooperative ScopeType = "cooperative"
	ScopeCommunity   ScopeType = "community"
)

// Header carries the structural fields of a node. It is part of the signed,
// content-addressed scope; see Encode.
type Header struct {
	Format       string    `json:"format"`
	Type         NodeType  `json:"type"`
	Timestamp    int64     `json:"timestamp"` // unix milliseconds
	Parents      []string  `json:"parents"`   // parent CIDs, sorted ascending
	ScopeType    ScopeType `json:"scopeType"`
	ScopeID      string    `json:"scopeId"`
	FederationID string    `json:"federationId"`
	Author       string    `json:"author"` // DID of the creator identity
}

// Node is an immutable signed operation record.
//
// Invariant: ID == cidutil.CIDv1RawSHA256(Encode(Header, Payload)), and
// Signature verifies against Author's public key over the same canonical
// bytes. Nodes violating either invariant are rejected, never stored.
type Node struct {
	ID        string          `json:"id"`
	Header    Header          `json:"header"`
	Payload   json.RawMessage `json:"payload"`
	Signature string          `json:"signature"` // base64 over canonical bytes
}

// IsRoot reports whether the node declares no parents.
func (n *Node) IsRoot() bool {
	return len(n.Header.Parents) == 0
}

// CarriesQuorumProof reports whether this node type embeds a quorum proof
// that lineage verification must validate.
func (n *Node) CarriesQuorumProof() bool {
	return n.Header.Type == TypeVote
}
