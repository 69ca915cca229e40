package graph

import (
	"context"
	"fmt"

	"github.com/99designs/gqlgen/graphql"

	"github.com/couchcryptid/graphql-cost-guard/internal/guard"
)

// CostLimit rejects operations whose estimated execution cost exceeds the
// guard's budget, before any resolver runs. Estimation failures let the
// operation through so a pricing bug cannot take down query traffic.
type CostLimit struct {
	Guard *guard.Guard
}

var _ interface {
	graphql.HandlerExtension
	graphql.OperationInterceptor
} = CostLimit{}

// ExtensionName implements graphql.HandlerExtension.
func (c CostLimit) ExtensionName() string {
	return "CostLimit"
}

// Validate implements graphql.HandlerExtension.
func (c CostLimit) Validate(graphql.ExecutableSchema) error {
	if c.Guard == nil {
		return fmt.Errorf("CostLimit: Guard must be set")
	}
	return nil
}

// InterceptOperation implements graphql.OperationInterceptor.
func (c CostLimit) InterceptOperation(ctx context.Context, next graphql.OperationHandler) graphql.ResponseHandler {
	oc := graphql.GetOperationContext(ctx)
	decision, err := c.Guard.Check(ctx, oc.RawQuery, oc.Variables)
	if err != nil || decision.Allowed {
		return next(ctx)
	}
	graphql.AddErrorf(ctx, "operation cost %d exceeds maximum allowed cost of %d", decision.Cost, decision.Threshold)
	return func(ctx context.Context) *graphql.Response {
		return graphql.ErrorResponse(ctx, "operation cost %d exceeds maximum allowed cost of %d", decision.Cost, decision.Threshold)
	}
}
