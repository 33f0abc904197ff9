// Package model defines the external wire shapes: the node envelope returned
// by queries and daemons, and the coded error surface.
package model

import (
	"encoding/json"
	"errors"

	"github.com/InterCooperative-Network/icn-v2-sub001/dag"
)

// NodeEnvelope is the externally visible rendering of a DAG node. It is a
// projection: consumers must not re-derive the content id from it, as field
// order and omissions differ from the canonical encoding.
type NodeEnvelope struct {
	ID           string          `json:"id"`
	Type         dag.NodeType    `json:"type"`
	Timestamp    int64           `json:"timestamp"`
	Author       string          `json:"author"`
	ScopeType    dag.ScopeType   `json:"scopeType"`
	ScopeID      string          `json:"scopeId"`
	FederationID string          `json:"federationId,omitempty"`
	Parents      []string        `json:"parents,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	Signature    string          `json:"signature"`
}

// Envelope projects a node into its wire shape.
func Envelope(n *dag.Node) NodeEnvelope {
	return NodeEnvelope{
		ID:           n.ID,
		Type:         n.Header.Type,
		Timestamp:    n.Header.Timestamp,
		Author:       n.Header.Author,
		ScopeType:    n.Header.ScopeType,
		ScopeID:      n.Header.ScopeID,
		FederationID: n.Header.FederationID,
		Parents:      append([]string(nil), n.Header.Parents...),
		Payload:      append(json.RawMessage(nil), n.Payload...),
		Signature:    n.Signature,
	}
}

// CodedError is the JSON error surface for CLI and daemon output.
type CodedError struct {
	Kind    string `json:"kind"`
	RuleID  string `json:"ruleId,omitempty"`
	NodeID  string `json:"nodeId,omitempty"`
	Message string `json:"message"`
}

// Coded flattens any error into the external error shape, preserving the
// structured kind and rule id when present.
func Coded(err error) *CodedError {
	if err == nil {
		return nil
	}
	ce := &CodedError{Kind: string(dag.KindInternal), Message: err.Error()}
	if k := dag.ErrKind(err); k != "" {
		ce.Kind = string(k)
	}
	ce.RuleID = dag.RuleID(err)
	var de *dag.Error
	if errors.As(err, &de) {
		ce.NodeID = de.NodeID
	}
	return ce
}
