// Package quorum validates embedded quorum proofs against an effective
// authority set.
//
// Validation is pure: the authority set is supplied by the caller (the
// lineage verifier or policy resolver), so this package never reads the DAG
// and never depends on evaluation time.
package quorum

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/InterCooperative-Network/icn-v2-sub001/dag"
	"github.com/InterCooperative-Network/icn-v2-sub001/identity"
)

// Report is the outcome of validating one quorum proof.
//
// Partial or invalid signatures are reported, not fatal: a signer whose
// signature fails or whose role does not match is excluded from ActualValid
// with a reason, and the threshold comparison proceeds over the rest.
type Report struct {
	// Required lists the identities eligible to sign (role-matching members
	// of the authority set), sorted.
	Required []string `json:"required"`
	// ActualValid lists the signers whose signature verified and whose
	// claimed role is held in the authority set, sorted, duplicates removed.
	ActualValid []string `json:"actualValid"`
	// Needed is the resolved threshold in absolute signers.
	Needed    int  `json:"needed"`
	Satisfied bool `json:"satisfied"`
	// Reasons records per-signer exclusions, in proof order.
	Reasons []string `json:"reasons,omitempty"`
}

// Validate checks a quorum proof.
//
// message is the canonical encoding of the payload being attested (the
// target node's canonical bytes). authority maps identity to the role it
// holds in the scope's effective authority. Duplicate signers count once.
func Validate(proof dag.QuorumProof, message []byte, authority map[string]string, resolver identity.Resolver) Report {
	var rep Report

	required := roleEligible(authority, proof.RequiredRoles)
	rep.Required = sortedKeys(required)

	valid := make(map[string]struct{})
	for _, s := range proof.Signers {
		if _, dup := valid[s.Identity]; dup {
			rep.Reasons = append(rep.Reasons, s.Identity+": duplicate signer")
			continue
		}
		heldRole, member := authority[s.Identity]
		if !member {
			rep.Reasons = append(rep.Reasons, s.Identity+": not in effective authority")
			continue
		}
		if s.Role != "" && s.Role != heldRole {
			rep.Reasons = append(rep.Reasons, s.Identity+": claimed role "+s.Role+" not held")
			continue
		}
		if len(proof.RequiredRoles) > 0 && !contains(proof.RequiredRoles, heldRole) {
			rep.Reasons = append(rep.Reasons, s.Identity+": role "+heldRole+" not required for this decision")
			continue
		}
		if err := identity.Verify(resolver, s.Identity, message, s.Signature); err != nil {
			rep.Reasons = append(rep.Reasons, s.Identity+": signature invalid")
			continue
		}
		valid[s.Identity] = struct{}{}
	}
	rep.ActualValid = sortedKeys(valid)

	needed, err := Needed(proof.Threshold, len(required))
	if err != nil {
		rep.Reasons = append(rep.Reasons, "threshold: "+err.Error())
		rep.Satisfied = false
		return rep
	}
	rep.Needed = needed
	rep.Satisfied = len(rep.ActualValid) >= needed
	return rep
}

// Needed resolves a threshold to an absolute signer count. A fraction is
// evaluated against the role-eligible authority size, rounding up. An empty
// threshold defaults to a single signer.
func Needed(t dag.Threshold, eligible int) (int, error) {
	if t.Count > 0 && t.Fraction != "" {
		return 0, fmt.Errorf("threshold declares both count and fraction")
	}
	if t.Count > 0 {
		return t.Count, nil
	}
	if t.Fraction == "" {
		return 1, nil
	}
	numStr, denStr, ok := strings.Cut(t.Fraction, "/")
	if !ok {
		return 0, fmt.Errorf("invalid fraction %q", t.Fraction)
	}
	num, err := strconv.Atoi(numStr)
	if err != nil || num < 1 {
		return 0, fmt.Errorf("invalid fraction numerator %q", numStr)
	}
	den, err := strconv.Atoi(denStr)
	if err != nil || den < 1 || num > den {
		return 0, fmt.Errorf("invalid fraction denominator %q", denStr)
	}
	// ceil(eligible * num / den)
	return (eligible*num + den - 1) / den, nil
}

func roleEligible(authority map[string]string, requiredRoles []string) map[string]struct{} {
	out := make(map[string]struct{}, len(authority))
	for id, role := range authority {
		if len(requiredRoles) == 0 || contains(requiredRoles, role) {
			out[id] = struct{}{}
		}
	}
	return out
}

func contains(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
