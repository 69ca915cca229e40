package cost

import (
	"errors"

	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/validator"
)

// MutationSurcharge is the fixed cost added once per mutation operation,
// reflecting the heavier backend work of writes.
const MutationSurcharge = 10

// TypeResolver supplies the schema directives declared for a field. The
// default implementation reads the definition the validator attached to each
// field; hosts holding schema metadata elsewhere can substitute their own.
type TypeResolver interface {
	Directives(field *ast.Field) ast.DirectiveList
}

type definitionResolver struct{}

func (definitionResolver) Directives(field *ast.Field) ast.DirectiveList {
	if field.Definition == nil {
		return nil
	}
	return field.Definition.Directives
}

// Estimator prices GraphQL documents before execution. Every field costs its
// per-item cost multiplied by the pagination counts of its enclosing fields,
// mutually exclusive fragment branches count only their most expensive
// member, and each mutation operation carries a fixed surcharge.
//
// An Estimator is stateless after construction and safe for concurrent use.
type Estimator struct {
	costs    map[string]int
	resolver TypeResolver
}

// NewEstimator returns an Estimator using the given directive cost table.
// A field whose definition carries a directive named in the table costs that
// amount per item instead of the default 1.
func NewEstimator(directiveCosts map[string]int) *Estimator {
	return NewEstimatorWithResolver(directiveCosts, definitionResolver{})
}

// NewEstimatorWithResolver is NewEstimator with a custom directive source.
func NewEstimatorWithResolver(directiveCosts map[string]int, resolver TypeResolver) *Estimator {
	return &Estimator{costs: directiveCosts, resolver: resolver}
}

// Estimate parses and validates queryText against schema, then prices the
// resulting document. Syntax and validation failures are returned as-is with
// a zero cost.
func (e *Estimator) Estimate(schema *ast.Schema, queryText string, vars map[string]interface{}) (int, gqlerror.List) {
	doc, errs := gqlparser.LoadQuery(schema, queryText)
	if len(errs) > 0 {
		return 0, errs
	}
	return e.EstimateDocument(schema, doc, vars)
}

// EstimateDocument prices every operation in a validated document and sums
// the results. Problems are collected across the whole document rather than
// short-circuited, so one pass reports everything wrong with a request; any
// error makes the cost unusable and 0 is returned alongside the list.
func (e *Estimator) EstimateDocument(schema *ast.Schema, doc *ast.QueryDocument, vars map[string]interface{}) (int, gqlerror.List) {
	total := 0
	var errs gqlerror.List
	for _, op := range doc.Operations {
		opCost, opErrs := e.estimateOperation(schema, op, vars)
		errs = append(errs, opErrs...)
		total = safeAdd(total, opCost)
	}
	if len(errs) > 0 {
		return 0, errs
	}
	return total, nil
}

func (e *Estimator) estimateOperation(schema *ast.Schema, op *ast.OperationDefinition, vars map[string]interface{}) (int, gqlerror.List) {
	switch op.Operation {
	case ast.Query, ast.Mutation:
	default:
		return 0, gqlerror.List{errUnsupportedOperation(op)}
	}

	w := &walker{est: e}

	// Coercion failures are reported but do not stop the walk: pagination
	// variables resolve leniently, so the rest of the operation can still
	// surface its own problems in the same pass.
	coerced, err := validator.VariableValues(schema, op, vars)
	if err != nil {
		w.errs = append(w.errs, asGQLError(err))
	}
	w.vars = coerced

	if op.Operation == ast.Mutation {
		w.total = MutationSurcharge
	}
	w.total = safeAdd(w.total, w.walkFieldSet(op.SelectionSet))
	return w.total, w.errs
}

func (e *Estimator) itemCost(field *ast.Field) int {
	for _, d := range e.resolver.Directives(field) {
		if c, ok := e.costs[d.Name]; ok {
			return c
		}
	}
	return 1
}

// walker threads the running operation total and collected problems through
// one traversal. The factors stack mirrors the chain of enclosing fields
// only, never fragments, so fragment wrappers leave multipliers untouched.
type walker struct {
	est     *Estimator
	vars    map[string]interface{}
	factors []int
	total   int
	errs    gqlerror.List
}

// walkField prices one field and everything below it. The field's own cost
// is returned for the caller to aggregate; costs of nested plain fields fold
// straight into the walker total, and only the winning fragment branch among
// the field's children is added here.
func (w *walker) walkField(field *ast.Field) int {
	mult, errs := fieldMultiplier(field, w.vars)
	w.errs = append(w.errs, errs...)

	own := safeMul(w.pathFactor(), w.est.itemCost(field))

	w.factors = append(w.factors, mult)
	branchMax := w.walkFieldSet(field.SelectionSet)
	w.factors = w.factors[:len(w.factors)-1]

	w.total = safeAdd(w.total, branchMax)
	return own
}

// walkFieldSet prices the direct children of a field or operation root.
// Plain fields always execute and fold into the running total, while
// type-conditioned branches are mutually exclusive at runtime, so only the
// most expensive branch aggregate is returned for the caller to add once.
func (w *walker) walkFieldSet(set ast.SelectionSet) int {
	branchMax := 0
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			w.total = safeAdd(w.total, w.walkField(s))
		case *ast.InlineFragment:
			branchMax = max(branchMax, w.branchAggregate(s.SelectionSet))
		case *ast.FragmentSpread:
			if s.Definition != nil {
				branchMax = max(branchMax, w.branchAggregate(s.Definition.SelectionSet))
			}
		}
	}
	return branchMax
}

// branchAggregate reconciles one type-conditioned branch: direct child
// fields execute together and sum, nested branches compete and only the most
// expensive one counts. Fields nested deeper inside the branch's fields are
// priced by walkField as usual.
func (w *walker) branchAggregate(set ast.SelectionSet) int {
	sum := 0
	nestedMax := 0
	for _, sel := range set {
		switch s := sel.(type) {
		case *ast.Field:
			sum = safeAdd(sum, w.walkField(s))
		case *ast.InlineFragment:
			nestedMax = max(nestedMax, w.branchAggregate(s.SelectionSet))
		case *ast.FragmentSpread:
			if s.Definition != nil {
				nestedMax = max(nestedMax, w.branchAggregate(s.Definition.SelectionSet))
			}
		}
	}
	return safeAdd(sum, nestedMax)
}

func (w *walker) pathFactor() int {
	factor := 1
	for _, m := range w.factors {
		factor = safeMul(factor, m)
	}
	return factor
}

func asGQLError(err error) *gqlerror.Error {
	var gqlErr *gqlerror.Error
	if errors.As(err, &gqlErr) {
		return gqlErr
	}
	return gqlerror.Errorf("%s", err.Error())
}

const maxInt = int(^uint(0) >> 1)

// safeAdd is a saturating add that ignores negative operands, keeping the
// running cost non-negative and capped at maxInt instead of wrapping.
func safeAdd(a, b int) int {
	if a < 0 {
		if b < 0 {
			return 0
		}
		return b
	}
	if b < 0 {
		return a
	}
	if sum := a + b; sum >= a {
		return sum
	}
	return maxInt
}

// safeMul is the multiplicative counterpart of safeAdd.
func safeMul(a, b int) int {
	if a < 0 {
		if b < 0 {
			return 1
		}
		return b
	}
	if b < 0 {
		return a
	}
	if a != 0 && b > maxInt/a {
		return maxInt
	}
	return a * b
}
