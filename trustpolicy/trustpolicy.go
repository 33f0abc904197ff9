// Package trustpolicy implements parsing for the federation trust policy
// document: a declarative list of trusted identities with trust levels,
// designated policy administrators, and federation bootstrap authorities.
//
// The policy is a read-only input to authorization; it is never mutated by
// the core. Policies are content-addressed so reports can bind to the exact
// policy version they were evaluated under.
package trustpolicy

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/InterCooperative-Network/icn-v2-sub001/cidutil"
)

const (
	Preamble  = "-----BEGIN ICN TRUST POLICY-----"
	Postamble = "-----END ICN TRUST POLICY-----"
)

// Level is a trust level assigned to an identity.
type Level string

const (
	LevelFull             Level = "Full"
	LevelManifestProvider Level = "ManifestProvider"
	LevelRequestor        Level = "Requestor"
	LevelWorker           Level = "Worker"
)

// KnownLevel reports whether l is a recognized trust level.
func KnownLevel(l Level) bool {
	switch l {
	case LevelFull, LevelManifestProvider, LevelRequestor, LevelWorker:
		return true
	}
	return false
}

// Entry binds an identity to its trust level.
type Entry struct {
	Identity string
	Level    Level
}

// BootstrapEntry designates an identity allowed to author root nodes for a
// federation scope.
type BootstrapEntry struct {
	Scope    string
	Identity string
}

type Policy struct {
	Meta      map[string]string
	Trust     []Entry
	Admins    []string
	Bootstrap []BootstrapEntry
}

// PolicyCID returns the content identifier of canonical policy bytes.
func PolicyCID(policyBytes []byte) string {
	return cidutil.CIDv1RawSHA256(policyBytes)
}

// Parse parses a trust policy from bytes.
//
// The format is strict by design: BOM, CR line endings, and trailing
// whitespace are rejected so canonical policy bytes have exactly one
// representation.
func Parse(data []byte) (*Policy, error) {
	if bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		return nil, errors.New("BOM not allowed")
	}
	if bytes.Contains(data, []byte("\r")) {
		return nil, errors.New("CR line endings not allowed")
	}
	for _, line := range bytes.Split(data, []byte("\n")) {
		if len(line) > 0 && (line[len(line)-1] == ' ' || line[len(line)-1] == '\t') {
			return nil, errors.New("trailing whitespace forbidden")
		}
	}

	if !bytes.HasPrefix(data, []byte(Preamble)) {
		return nil, errors.New("missing trust policy preamble")
	}
	if !bytes.HasSuffix(bytes.TrimSpace(data), []byte(Postamble)) {
		return nil, errors.New("missing trust policy postamble")
	}

	sections := map[string]bool{"META": true, "TRUST": true, "ADMINS": true, "BOOTSTRAP": true}
	reader := bufio.NewReader(bytes.NewReader(data))
	var currSection string
	meta := make(map[string]string)
	var trust []Entry
	var admins []string
	var bootstrap []BootstrapEntry
	for {
		line, err := reader.ReadString('\n')
		if err != nil && err.Error() != "EOF" {
			return nil, err
		}
		line = strings.TrimSpace(line)
		if sections[line] {
			currSection = line
			continue
		}
		if currSection == "META" && strings.Contains(line, ": ") {
			kv := strings.SplitN(line, ": ", 2)
			meta[kv[0]] = kv[1]
		}
		if currSection == "TRUST" && strings.HasPrefix(line, "Identity: ") {
			id := strings.TrimPrefix(line, "Identity: ")
			levelLine, _ := reader.ReadString('\n')
			levelLine = strings.TrimSpace(levelLine)
			if !strings.HasPrefix(levelLine, "Level: ") {
				return nil, errors.New("expected Level after Identity")
			}
			level := Level(strings.TrimPrefix(levelLine, "Level: "))
			if !KnownLevel(level) {
				return nil, fmt.Errorf("unknown trust level %q", level)
			}
			trust = append(trust, Entry{Identity: id, Level: level})
		}
		if currSection == "ADMINS" && strings.HasPrefix(line, "Identity: ") {
			admins = append(admins, strings.TrimPrefix(line, "Identity: "))
		}
		if currSection == "BOOTSTRAP" && strings.HasPrefix(line, "Scope: ") {
			scope := strings.TrimPrefix(line, "Scope: ")
			idLine, _ := reader.ReadString('\n')
			idLine = strings.TrimSpace(idLine)
			if !strings.HasPrefix(idLine, "Identity: ") {
				return nil, errors.New("expected Identity after Scope")
			}
			bootstrap = append(bootstrap, BootstrapEntry{
				Scope:    scope,
				Identity: strings.TrimPrefix(idLine, "Identity: "),
			})
		}
		if err != nil {
			break
		}
	}
	return &Policy{Meta: meta, Trust: trust, Admins: admins, Bootstrap: bootstrap}, nil
}

// LevelOf returns the trust level assigned to an identity.
func (p *Policy) LevelOf(identity string) (Level, bool) {
	for _, e := range p.Trust {
		if e.Identity == identity {
			return e.Level, true
		}
	}
	return "", false
}

// IsAdmin reports whether identity is a designated policy administrator.
func (p *Policy) IsAdmin(identity string) bool {
	for _, a := range p.Admins {
		if a == identity {
			return true
		}
	}
	return false
}

// IsBootstrap reports whether identity may author root nodes for scope.
//
// An entry with Scope "*" recognizes the identity for every federation
// scope.
func (p *Policy) IsBootstrap(scope, identity string) bool {
	for _, b := range p.Bootstrap {
		if b.Identity != identity {
			continue
		}
		if b.Scope == scope || b.Scope == "*" {
			return true
		}
	}
	return false
}
