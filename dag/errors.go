package dag

import (
	"encoding/json"
	"errors"
)

// Kind is a stable category for programmatic error handling.
//
// These categories are intended to remain stable across versions.
// Callers should branch on Kind/RuleID rather than matching error strings.
//
// NOTE: Error() strings are intentionally kept human-readable and may evolve.
// Use errors.As to extract *Error for structured handling.
type Kind string

const (
	// Append/verify failure categories. These mirror the externally visible
	// outcome taxonomy: operators must be able to distinguish "bad data"
	// (signature, authority, quorum) from "impossible data" (id mismatch,
	// cycles), which can only arise from tampering or corruption.
	KindIDMismatch          Kind = "IdMismatch"
	KindMissingParent       Kind = "MissingParent"
	KindInvalidSignature    Kind = "InvalidSignature"
	KindUnauthorizedCreator Kind = "UnauthorizedCreator"
	KindCycleDetected       Kind = "CycleDetected"
	KindInsufficientQuorum  Kind = "InsufficientQuorum"
	KindRevokedCredential   Kind = "RevokedCredential"
	KindTimeout             Kind = "Timeout"

	// Ambient categories.
	KindEncoding Kind = "Encoding"
	KindCrypto   Kind = "Crypto"
	KindStorage  Kind = "Storage"
	KindPolicy   Kind = "Policy"
	KindInternal Kind = "Internal"
)

// Error is the module's structured error type.
//
// RuleID is a stable identifier (e.g., ICN-ENC-001, ICN-STORE-102,
// ICN-LIN-201) that names the violated invariant or validation rule.
//
// NodeID, when set, names the node at which the check failed; for lineage
// failures this is the offending ancestor, not necessarily the node the
// caller asked about.
//
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	NodeID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.NodeID != "" {
		return e.Message + " (node " + e.NodeID + ")"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// NewError constructs a structured error.
func NewError(kind Kind, ruleID, msg string) *Error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

// WrapError constructs a structured error wrapping a cause.
func WrapError(kind Kind, ruleID, msg string, cause error) *Error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// AtNode returns a copy of e annotated with the node id it concerns.
func (e *Error) AtNode(id string) *Error {
	if e == nil {
		return nil
	}
	cp := *e
	cp.NodeID = id
	return &cp
}

// MarshalJSON flattens the wrapped cause to a string so structured errors
// survive a trip through report JSON.
func (e *Error) MarshalJSON() ([]byte, error) {
	type wire struct {
		Kind    Kind   `json:"kind"`
		RuleID  string `json:"ruleId"`
		NodeID  string `json:"nodeId,omitempty"`
		Message string `json:"message"`
		Cause   string `json:"cause,omitempty"`
	}
	w := wire{Kind: e.Kind, RuleID: e.RuleID, NodeID: e.NodeID, Message: e.Message}
	if e.Cause != nil {
		w.Cause = e.Cause.Error()
	}
	return json.Marshal(w)
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}

// ErrKind returns the Kind for a structured error, or "" if unknown.
func ErrKind(err error) Kind {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Kind
}
