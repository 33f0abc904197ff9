package dag

import (
	"bytes"
	"encoding/json"
	"testing"
)

func testHeader() Header {
	return Header{
		Format:       FormatTag,
		Type:         TypeProposal,
		Timestamp:    1700000000000,
		ScopeType:    ScopeCooperative,
		ScopeID:      "coop-a",
		FederationID: "fed-1",
		Author:       "did:icn:ed25519:AAAA",
	}
}

func TestCanonicalJSONSortsKeys(t *testing.T) {
	got, err := CanonicalJSON([]byte(`{"b":1,"a":{"z":true,"y":null}}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	want := `{"a":{"y":null,"z":true},"b":1}`
	if string(got) != want {
		t.Errorf("canonical form mismatch:\n got %s\nwant %s", got, want)
	}
}

func TestCanonicalJSONPreservesNumbers(t *testing.T) {
	// Large integers and high-precision decimals must survive bytewise;
	// float re-rendering would corrupt them.
	in := `{"big":9007199254740993,"dec":0.30000000000000004}`
	got, err := CanonicalJSON([]byte(in))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != in {
		t.Errorf("numbers not preserved:\n got %s\nwant %s", got, in)
	}
}

func TestCanonicalJSONNoHTMLEscaping(t *testing.T) {
	got, err := CanonicalJSON([]byte(`{"s":"a<b>&c"}`))
	if err != nil {
		t.Fatalf("canonicalize: %v", err)
	}
	if string(got) != `{"s":"a<b>&c"}` {
		t.Errorf("HTML escaping leaked into canonical form: %s", got)
	}
}

func TestCanonicalJSONRejectsBOM(t *testing.T) {
	bom := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{}`)...)
	if _, err := CanonicalJSON(bom); err == nil {
		t.Fatal("expected BOM rejection")
	} else if RuleID(err) != "ICN-ENC-011" {
		t.Errorf("expected ICN-ENC-011, got %s", RuleID(err))
	}
}

func TestCanonicalJSONRejectsTrailingContent(t *testing.T) {
	if _, err := CanonicalJSON([]byte(`{} {}`)); err == nil {
		t.Fatal("expected trailing content rejection")
	} else if RuleID(err) != "ICN-ENC-013" {
		t.Errorf("expected ICN-ENC-013, got %s", RuleID(err))
	}
}

func TestEncodeDeterministic(t *testing.T) {
	h := testHeader()
	h.Parents = []string{"bafyB", "bafyA"}
	payload := json.RawMessage(`{"title":"t","action":"a"}`)

	a, err := Encode(h, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// Parent order in the input must not affect the canonical bytes.
	h2 := testHeader()
	h2.Parents = []string{"bafyA", "bafyB"}
	b, err := Encode(h2, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(a, b) {
		t.Error("encoding depends on input parent order")
	}

	id1, err := DeriveID(a)
	if err != nil {
		t.Fatalf("derive id: %v", err)
	}
	id2, _ := DeriveID(b)
	if id1.String() != id2.String() {
		t.Error("content ids differ for identical logical content")
	}
}

func TestEncodeValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Header)
		ruleID string
	}{
		{"bad format", func(h *Header) { h.Format = "other/9" }, "ICN-ENC-001"},
		{"unknown type", func(h *Header) { h.Type = "Unknown" }, "ICN-ENC-002"},
		{"zero timestamp", func(h *Header) { h.Timestamp = 0 }, "ICN-ENC-003"},
		{"missing scope", func(h *Header) { h.ScopeID = "" }, "ICN-ENC-004"},
		{"missing author", func(h *Header) { h.Author = "" }, "ICN-ENC-005"},
		{"duplicate parents", func(h *Header) { h.Parents = []string{"bafyA", "bafyA"} }, "ICN-ENC-006"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := testHeader()
			tc.mutate(&h)
			_, err := Encode(h, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if RuleID(err) != tc.ruleID {
				t.Errorf("expected %s, got %s", tc.ruleID, RuleID(err))
			}
			if !IsKind(err, KindEncoding) {
				t.Errorf("expected Encoding kind, got %s", ErrKind(err))
			}
		})
	}
}

func TestDecodePayloadClosedSet(t *testing.T) {
	n := &Node{Header: testHeader(), Payload: json.RawMessage(`{"title":"t"}`)}
	p, err := DecodePayload(n)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if pp, ok := p.(*ProposalPayload); !ok || pp.Title != "t" {
		t.Errorf("unexpected payload: %#v", p)
	}

	n.Header.Type = "Mystery"
	if _, err := DecodePayload(n); err == nil {
		t.Fatal("expected unknown type rejection")
	}
}
