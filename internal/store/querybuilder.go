package store

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/graphql-cost-guard/internal/model"
)

// buildWhereSQL joins the clauses into a WHERE fragment (empty string if no clauses).
func buildWhereSQL(clauses []string) string {
	if len(clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(clauses, " AND ")
}

// buildWhereClause constructs the WHERE clause and args from a filter.
// Returns the clauses, args, and the next parameter index.
// idx tracks the PostgreSQL positional parameter number ($1, $2, …).
func buildWhereClause(filter *model.DecisionFilter) ([]string, []any, int) {
	var where []string
	var args []any
	idx := 1

	// Time bounds
	if filter.Since != nil {
		where = append(where, fmt.Sprintf("decided_at >= $%d", idx))
		args = append(args, *filter.Since)
		idx++
	}
	if filter.Until != nil {
		where = append(where, fmt.Sprintf("decided_at <= $%d", idx))
		args = append(args, *filter.Until)
		idx++
	}

	// Outcome filters
	if filter.Allowed != nil {
		where = append(where, fmt.Sprintf("allowed = $%d", idx))
		args = append(args, *filter.Allowed)
		idx++
	}
	if filter.FromCache != nil {
		where = append(where, fmt.Sprintf("from_cache = $%d", idx))
		args = append(args, *filter.FromCache)
		idx++
	}
	if len(filter.Kinds) > 0 {
		where = append(where, fmt.Sprintf("operation_kind = ANY($%d)", idx))
		args = append(args, kindDBValues(filter.Kinds))
		idx++
	}
	if filter.MinCost != nil {
		where = append(where, fmt.Sprintf("cost >= $%d", idx))
		args = append(args, *filter.MinCost)
		idx++
	}

	return where, args, idx
}

// kindDBValues converts a slice of OperationKind enums to their lowercase DB values.
func kindDBValues(kinds []model.OperationKind) []string {
	vals := make([]string, len(kinds))
	for i, k := range kinds {
		vals[i] = strings.ToLower(string(k))
	}
	return vals
}

// sortColumn maps validated DecisionSortField enum values to SQL column names.
func sortColumn(sf model.DecisionSortField) string {
	switch sf {
	case model.DecisionSortDecidedAt:
		return "decided_at"
	case model.DecisionSortCost:
		return "cost"
	default:
		return "decided_at"
	}
}
