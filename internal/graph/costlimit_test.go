package graph

import (
	"testing"

	"github.com/couchcryptid/graphql-cost-guard/internal/cost"
	"github.com/couchcryptid/graphql-cost-guard/internal/guard"
)

func TestCostLimitValidate(t *testing.T) {
	if err := (CostLimit{}).Validate(nil); err == nil {
		t.Error("expected error for unset Guard")
	}

	g := guard.New(cost.NewEstimator(nil), nil, 100, 0, 1.0, nil, nil)
	if err := (CostLimit{Guard: g}).Validate(nil); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCostLimitExtensionName(t *testing.T) {
	if got := (CostLimit{}).ExtensionName(); got != "CostLimit" {
		t.Errorf("ExtensionName() = %q, want CostLimit", got)
	}
}
