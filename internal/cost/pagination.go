package cost

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

const (
	argFirst = "first"
	argLast  = "last"
)

// Factor computes the multiplier a chain of enclosing selections imposes on
// a node nested under it. Only fields participate: inline fragments and
// fragment spreads are grouping constructs that fan nothing out, so a field
// wrapped in fragments keeps the multiplier of its nearest field ancestors.
// Each field in the chain contributes the product of its first and last
// arguments, resolved against vars; fields without either contribute 1.
func Factor(ancestors []ast.Selection, vars map[string]interface{}) (int, gqlerror.List) {
	factor := 1
	var errs gqlerror.List
	for _, sel := range ancestors {
		field, ok := sel.(*ast.Field)
		if !ok {
			continue
		}
		mult, fieldErrs := fieldMultiplier(field, vars)
		errs = append(errs, fieldErrs...)
		factor = safeMul(factor, mult)
	}
	return factor, errs
}

// fieldMultiplier scans a single field's arguments for pagination counts.
// A field providing both first and last is reported once as a conflict, but
// both values still multiply so the estimate stays pessimistic.
func fieldMultiplier(field *ast.Field, vars map[string]interface{}) (int, gqlerror.List) {
	mult := 1
	seen := 0
	var errs gqlerror.List
	for _, arg := range field.Arguments {
		if arg.Name != argFirst && arg.Name != argLast {
			continue
		}
		seen++
		count, ok, err := resolveCount(arg, vars)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			mult = safeMul(mult, count)
		}
	}
	if seen > 1 {
		errs = append(errs, errConflictingPagination(field))
	}
	return mult, errs
}

// resolveCount extracts the integer value of one pagination argument.
// Variables resolve leniently: an absent or non-integer variable simply
// contributes nothing, since an argument named first is not guaranteed to be
// a pagination count in every schema. Inline literals that fail to parse as
// integers are reported, because a count was clearly intended.
func resolveCount(arg *ast.Argument, vars map[string]interface{}) (int, bool, *gqlerror.Error) {
	if arg.Value == nil {
		return 0, false, nil
	}
	if arg.Value.Kind == ast.Variable {
		raw, ok := vars[arg.Value.Raw]
		if !ok {
			return 0, false, nil
		}
		n, ok := asInt(raw)
		return n, ok, nil
	}
	n, err := strconv.Atoi(arg.Value.Raw)
	if err != nil {
		return 0, false, errMalformedPagination(arg)
	}
	return n, true, nil
}

// asInt reports whether a coerced variable value is integer-valued. The
// coercion layer yields int64 for GraphQL Ints, but callers may also pass
// raw JSON-decoded variables, so float64 and json.Number are accepted when
// they carry whole numbers.
func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		if math.Trunc(n) != n || math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, false
		}
		return int(i), true
	default:
		return 0, false
	}
}
