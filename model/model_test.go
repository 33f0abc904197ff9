package model_test

import (
	"fmt"
	"testing"

	"github.com/InterCooperative-Network/icn-v2-sub001/dag"
	"github.com/InterCooperative-Network/icn-v2-sub001/model"
)

func TestCodedPreservesStructuredFields(t *testing.T) {
	inner := &dag.Error{
		Kind:    dag.KindMissingParent,
		RuleID:  "ICN-STORE-012",
		NodeID:  "bafyexample",
		Message: "parent not present",
	}
	ce := model.Coded(fmt.Errorf("append: %w", inner))
	if ce.Kind != string(dag.KindMissingParent) {
		t.Errorf("kind = %q", ce.Kind)
	}
	if ce.RuleID != "ICN-STORE-012" {
		t.Errorf("ruleId = %q", ce.RuleID)
	}
	if ce.NodeID != "bafyexample" {
		t.Errorf("nodeId = %q", ce.NodeID)
	}
}

func TestCodedPlainError(t *testing.T) {
	ce := model.Coded(fmt.Errorf("boom"))
	if ce.Kind != string(dag.KindInternal) {
		t.Errorf("kind = %q", ce.Kind)
	}
	if ce.Message != "boom" {
		t.Errorf("message = %q", ce.Message)
	}
	if ce.RuleID != "" || ce.NodeID != "" {
		t.Errorf("expected empty ruleId/nodeId, got %q/%q", ce.RuleID, ce.NodeID)
	}
	if model.Coded(nil) != nil {
		t.Errorf("Coded(nil) should be nil")
	}
}
