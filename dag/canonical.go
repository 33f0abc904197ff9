package dag

import (
	"bytes"
	"encoding/json"
	"io"
	"sort"
	"strconv"

	"github.com/ipfs/go-cid"

	"github.com/InterCooperative-Network/icn-v2-sub001/cidutil"
)

// Encode is the single mandatory canonicalization choke point for DAG nodes.
//
// It produces the byte string used both for content-address derivation and
// for signature scope: a canonical JSON document
//
//	{"header":{...},"payload":{...}}
//
// with object keys sorted bytewise, numbers emitted exactly as parsed
// (json.Number, never float re-rendering), no HTML escaping, and no insignificant
// whitespace. Two independent implementations must produce byte-identical
// output for identical logical content.
//
// All hashing, signing, CID derivation, and store ingestion MUST pass through
// Encode.
func Encode(h Header, payload json.RawMessage) ([]byte, error) {
	if h.Format == "" {
		h.Format = FormatTag
	}
	if h.Format != FormatTag {
		return nil, NewError(KindEncoding, "ICN-ENC-001", "unsupported format tag "+h.Format)
	}
	if !KnownType(h.Type) {
		return nil, NewError(KindEncoding, "ICN-ENC-002", "unknown node type "+string(h.Type))
	}
	if h.Timestamp <= 0 {
		return nil, NewError(KindEncoding, "ICN-ENC-003", "missing or non-positive timestamp")
	}
	if h.ScopeID == "" {
		return nil, NewError(KindEncoding, "ICN-ENC-004", "missing scope id")
	}
	if h.Author == "" {
		return nil, NewError(KindEncoding, "ICN-ENC-005", "missing author identity")
	}
	parents := append([]string(nil), h.Parents...)
	sort.Strings(parents)
	for i := 1; i < len(parents); i++ {
		if parents[i] == parents[i-1] {
			return nil, NewError(KindEncoding, "ICN-ENC-006", "duplicate parent id "+parents[i])
		}
	}
	h.Parents = parents

	hb, err := json.Marshal(h)
	if err != nil {
		return nil, WrapError(KindEncoding, "ICN-ENC-007", "header marshal failed", err)
	}

	var doc bytes.Buffer
	doc.WriteString(`{"header":`)
	doc.Write(hb)
	doc.WriteString(`,"payload":`)
	doc.Write(payloadOrEmpty(payload))
	doc.WriteString(`}`)

	return CanonicalJSON(doc.Bytes())
}

// EncodeNode returns the canonical bytes of an existing node's header and
// payload (the signature scope; the id and signature fields are never part
// of it).
func EncodeNode(n *Node) ([]byte, error) {
	return Encode(n.Header, n.Payload)
}

// DeriveID returns the content id of canonical bytes.
func DeriveID(canonical []byte) (cid.Cid, error) {
	id, err := cidutil.CIDv1RawSHA256CID(canonical)
	if err != nil {
		return cid.Undef, WrapError(KindEncoding, "ICN-ENC-010", "cid derivation failed", err)
	}
	return id, nil
}

// CanonicalJSON re-encodes a JSON document in canonical form: sorted object
// keys, json.Number-preserved numerics, compact output, no HTML escaping.
//
// A UTF-8 BOM is rejected outright, matching the strictness of the trust
// policy parser: canonical inputs have exactly one byte representation.
func CanonicalJSON(data []byte) ([]byte, error) {
	if bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}) {
		return nil, NewError(KindEncoding, "ICN-ENC-011", "BOM not allowed")
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := decodeValue(dec)
	if err != nil {
		return nil, WrapError(KindEncoding, "ICN-ENC-012", "invalid JSON", err)
	}
	// Trailing content after the document is not canonical.
	if _, err := dec.Token(); err != io.EOF {
		return nil, NewError(KindEncoding, "ICN-ENC-013", "trailing content after JSON document")
	}
	var out bytes.Buffer
	if err := writeCanonical(&out, v); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func writeCanonical(out *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case nil:
		out.WriteString("null")
	case bool:
		if t {
			out.WriteString("true")
		} else {
			out.WriteString("false")
		}
	case json.Number:
		out.WriteString(t.String())
	case string:
		b, err := encodeJSONString(t)
		if err != nil {
			return err
		}
		out.Write(b)
	case []any:
		out.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				out.WriteByte(',')
			}
			if err := writeCanonical(out, e); err != nil {
				return err
			}
		}
		out.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				out.WriteByte(',')
			}
			kb, err := encodeJSONString(k)
			if err != nil {
				return err
			}
			out.Write(kb)
			out.WriteByte(':')
			if err := writeCanonical(out, t[k]); err != nil {
				return err
			}
		}
		out.WriteByte('}')
	default:
		return NewError(KindEncoding, "ICN-ENC-014", "unsupported JSON value of type "+strconv.Quote(typeName(v)))
	}
	return nil
}

func encodeJSONString(s string) ([]byte, error) {
	enc := &bytes.Buffer{}
	e := json.NewEncoder(enc)
	e.SetEscapeHTML(false)
	if err := e.Encode(s); err != nil {
		return nil, WrapError(KindEncoding, "ICN-ENC-015", "string encode failed", err)
	}
	// Encoder appends a newline; strip it.
	return bytes.TrimRight(enc.Bytes(), "\n"), nil
}

func typeName(v any) string {
	switch v.(type) {
	case float64:
		return "float64"
	default:
		return "unknown"
	}
}
