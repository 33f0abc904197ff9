// Package credential verifies portable dispatch credentials against the DAG
// they were anchored in.
//
// A credential is a signed JSON document a worker can present outside the
// network. Verification is fail-closed and always produces a full report:
// every check runs even after the first failure, so an operator sees the
// complete standing of a credential rather than only the first defect.
package credential

import (
	"context"
	"encoding/json"
	"time"

	"github.com/InterCooperative-Network/icn-v2-sub001/authority"
	"github.com/InterCooperative-Network/icn-v2-sub001/dag"
	"github.com/InterCooperative-Network/icn-v2-sub001/identity"
	"github.com/InterCooperative-Network/icn-v2-sub001/lineage"
	"github.com/InterCooperative-Network/icn-v2-sub001/trustpolicy"
)

// Format tags the credential wire shape.
const Format = "icn-credential/1"

// Credential is the portable dispatch credential document.
type Credential struct {
	Format     string `json:"format"`
	Issuer     string `json:"issuer"`
	Subject    string `json:"subject"`
	Capability string `json:"capability"`
	ScopeID    string `json:"scopeId"`
	// AnchorID is the DispatchReceipt node the credential attests to.
	AnchorID string `json:"anchorId"`
	IssuedAt int64  `json:"issuedAt"`
	// ExpiresAt of zero means the credential does not expire.
	ExpiresAt int64  `json:"expiresAt,omitempty"`
	Signature string `json:"signature"`
}

// SigningBytes returns the canonical bytes the issuer signs: the credential
// document with the signature field cleared.
func (c *Credential) SigningBytes() ([]byte, error) {
	body := *c
	body.Signature = ""
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, dag.WrapError(dag.KindEncoding, "ICN-CRED-001", "encode credential body", err)
	}
	return dag.CanonicalJSON(raw)
}

// Report is the outcome of verifying a credential. OverallValid is the
// conjunction of every individual check.
type Report struct {
	IssuerIdentity  string `json:"issuerIdentity"`
	SubjectIdentity string `json:"subjectIdentity"`
	SignatureValid  bool   `json:"signatureValid"`
	IsTrusted       bool   `json:"isTrusted"`
	IsRevoked       bool   `json:"isRevoked"`
	IsExpired       bool   `json:"isExpired"`
	CapabilityMatch bool   `json:"capabilityMatch"`
	LineageVerified bool   `json:"lineageVerified"`
	// PolicyVersion is the scope's active policy version at verification
	// time, or -1 when the scope could not be resolved.
	PolicyVersion int        `json:"policyVersion"`
	OverallValid  bool       `json:"overallValid"`
	Error         *dag.Error `json:"error,omitempty"`
	// Timestamp is when the verification ran, unix milliseconds.
	Timestamp int64 `json:"timestamp"`
}

// Verifier checks credentials against the DAG and a trust policy.
type Verifier struct {
	Authority *authority.Resolver
	Lineage   *lineage.Verifier
	Trust     *trustpolicy.Policy
	Identity  identity.Resolver

	// Now is overridable for tests.
	Now func() time.Time
}

// New returns a credential Verifier sharing the given authority resolver and
// lineage verifier.
func New(auth *authority.Resolver, lin *lineage.Verifier, trust *trustpolicy.Policy) *Verifier {
	return &Verifier{
		Authority: auth,
		Lineage:   lin,
		Trust:     trust,
		Identity:  identity.SelfCertifying{},
		Now:       time.Now,
	}
}

// VerifyJSON parses and verifies a raw credential document.
func (v *Verifier) VerifyJSON(ctx context.Context, raw []byte) (*Report, error) {
	var c Credential
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, dag.WrapError(dag.KindEncoding, "ICN-CRED-002", "parse credential", err)
	}
	if c.Format != Format {
		return nil, dag.NewError(dag.KindEncoding, "ICN-CRED-003", "unsupported credential format "+c.Format)
	}
	return v.Verify(ctx, &c)
}

// Verify runs the full check battery and returns a populated report. The
// error return is for infrastructure faults only; verification outcomes,
// including hard failures, land in the report.
func (v *Verifier) Verify(ctx context.Context, c *Credential) (*Report, error) {
	now := v.Now().UnixMilli()
	rep := &Report{
		IssuerIdentity:  c.Issuer,
		SubjectIdentity: c.Subject,
		PolicyVersion:   -1,
		Timestamp:       now,
	}

	rep.IsExpired = c.ExpiresAt != 0 && c.ExpiresAt <= now
	if rep.IsExpired {
		rep.setFailure(dag.NewError(dag.KindRevokedCredential, "ICN-CRED-010", "credential expired"))
	}

	if msg, err := c.SigningBytes(); err != nil {
		rep.setFailure(asDAGError(err))
	} else if err := identity.Verify(v.Identity, c.Issuer, msg, c.Signature); err != nil {
		rep.setFailure(dag.WrapError(dag.KindInvalidSignature, "ICN-CRED-011", "issuer signature invalid", err))
	} else {
		rep.SignatureValid = true
	}

	rep.IsTrusted = v.trusted(c)
	if !rep.IsTrusted {
		rep.setFailure(dag.NewError(dag.KindUnauthorizedCreator, "ICN-CRED-012",
			"issuer "+c.Issuer+" not trusted for scope "+c.ScopeID))
	}

	revoked, err := v.revoked(ctx, c, now)
	if err != nil {
		return nil, err
	}
	rep.IsRevoked = revoked
	if revoked {
		rep.setFailure(dag.NewError(dag.KindRevokedCredential, "ICN-CRED-013", "credential revoked"))
	}

	if p, err := v.Authority.ActivePolicy(ctx, c.ScopeID, authority.AsOfLatest); err == nil {
		rep.PolicyVersion = p.Version
	}

	rep.CapabilityMatch = v.anchorMatches(ctx, c, rep)

	lrep, err := v.Lineage.Verify(ctx, c.AnchorID)
	if err != nil {
		return nil, err
	}
	rep.LineageVerified = lrep.Valid
	if !lrep.Valid {
		rep.setFailure(lrep.Failure)
	}

	rep.OverallValid = rep.SignatureValid && rep.IsTrusted && !rep.IsRevoked &&
		!rep.IsExpired && rep.CapabilityMatch && rep.LineageVerified
	return rep, nil
}

// trusted reports whether the trust policy grants the issuer a level that
// may issue dispatch credentials. The trust policy is authoritative here:
// scope membership alone never makes an issuer trusted, and of the four
// levels only Full carries issuing authority.
func (v *Verifier) trusted(c *Credential) bool {
	if v.Trust == nil {
		return false
	}
	level, ok := v.Trust.LevelOf(c.Issuer)
	return ok && level == trustpolicy.LevelFull
}

// revoked scans the scope's Revocation nodes for one covering the issuer,
// the subject or the anchor itself, effective at or before now.
func (v *Verifier) revoked(ctx context.Context, c *Credential, now int64) (bool, error) {
	for _, id := range v.Authority.Store.ByType(c.ScopeID, dag.TypeRevocation) {
		n, err := v.Authority.Store.Get(ctx, id)
		if err != nil {
			return false, err
		}
		if n == nil || n.Header.Timestamp > now {
			continue
		}
		payload, err := dag.DecodePayload(n)
		if err != nil {
			continue
		}
		rv := payload.(*dag.RevocationPayload)
		switch rv.TargetKind {
		case dag.RevokeIdentity:
			if rv.Target == c.Issuer || rv.Target == c.Subject {
				return true, nil
			}
		case dag.RevokeNode:
			if rv.Target == c.AnchorID {
				return true, nil
			}
		case dag.RevokeScope:
			if rv.Target == c.ScopeID {
				return true, nil
			}
		}
	}
	return false, nil
}

// anchorMatches checks that the anchoring DispatchReceipt grants exactly
// what the credential claims.
func (v *Verifier) anchorMatches(ctx context.Context, c *Credential, rep *Report) bool {
	n, err := v.Authority.Store.Get(ctx, c.AnchorID)
	if err != nil || n == nil {
		rep.setFailure(dag.NewError(dag.KindMissingParent, "ICN-CRED-014",
			"anchor node not present in store").AtNode(c.AnchorID))
		return false
	}
	if n.Header.Type != dag.TypeDispatchReceipt {
		rep.setFailure(dag.NewError(dag.KindPolicy, "ICN-CRED-015",
			"anchor is not a dispatch receipt").AtNode(c.AnchorID))
		return false
	}
	payload, err := dag.DecodePayload(n)
	if err != nil {
		rep.setFailure(asDAGError(err))
		return false
	}
	dr := payload.(*dag.DispatchReceiptPayload)
	if dr.Worker != c.Subject || dr.Capability != c.Capability {
		rep.setFailure(dag.NewError(dag.KindPolicy, "ICN-CRED-016",
			"anchor worker or capability does not match credential").AtNode(c.AnchorID))
		return false
	}
	return true
}

// setFailure records the first failure; later ones are dropped so the report
// points at the earliest defect in check order.
func (r *Report) setFailure(e *dag.Error) {
	if r.Error == nil {
		r.Error = e
	}
}

func asDAGError(err error) *dag.Error {
	if de, ok := err.(*dag.Error); ok {
		return de
	}
	return dag.WrapError(dag.KindInternal, "ICN-CRED-019", "credential verification failed", err)
}
