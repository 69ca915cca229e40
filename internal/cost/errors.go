package cost

import (
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Error codes carried in the "code" extension of estimation errors, so hosts
// can discriminate failure kinds without parsing messages. Syntax, validation,
// and variable coercion errors come from gqlparser and keep its native form.
const (
	CodeUnsupportedOperation  = "UNSUPPORTED_OPERATION_KIND"
	CodeConflictingPagination = "CONFLICTING_PAGINATION_ARGUMENTS"
	CodeMalformedPagination   = "MALFORMED_PAGINATION_VALUE"
)

func errUnsupportedOperation(op *ast.OperationDefinition) *gqlerror.Error {
	return costErr(
		fmt.Sprintf("operation %s: kind %s cannot be priced, only query and mutation are supported", opName(op), op.Operation),
		CodeUnsupportedOperation, op.Position)
}

func errConflictingPagination(field *ast.Field) *gqlerror.Error {
	return costErr(
		fmt.Sprintf("field %s: first and last cannot both be provided", field.Name),
		CodeConflictingPagination, field.Position)
}

func errMalformedPagination(arg *ast.Argument) *gqlerror.Error {
	return costErr(
		fmt.Sprintf("argument %s: %q is not a valid pagination count", arg.Name, arg.Value.Raw),
		CodeMalformedPagination, arg.Position)
}

// costErr builds a positioned error carrying a machine-readable code.
func costErr(msg, code string, pos *ast.Position) *gqlerror.Error {
	err := &gqlerror.Error{
		Message:    msg,
		Extensions: map[string]interface{}{"code": code},
	}
	if pos != nil {
		err.Locations = append(err.Locations, gqlerror.Location{Line: pos.Line, Column: pos.Column})
	}
	return err
}

func opName(op *ast.OperationDefinition) string {
	if op.Name == "" {
		return "(anonymous)"
	}
	return op.Name
}
