// Package filter translates AIP-160 filter expressions over the transaction
// index into SQL WHERE fragments.
package filter

import (
	"fmt"
	"strings"
	"time"

	"go.einride.tech/aip/filtering"
	expr "google.golang.org/genproto/googleapis/api/expr/v1alpha1"
)

// Condition is a SQL WHERE fragment with positional parameters.
type Condition struct {
	Clause string
	Params []any
}

// Empty reports whether the condition matches everything.
func (c Condition) Empty() bool { return c.Clause == "" }

type field struct {
	column string
	typ    *expr.Type
}

var fields = map[string]field{
	"kind":           {column: "kind", typ: filtering.TypeString},
	"source_id":      {column: "source_id", typ: filtering.TypeString},
	"destination_id": {column: "destination_id", typ: filtering.TypeString},
	"initiator_id":   {column: "initiator_id", typ: filtering.TypeString},
	"rule_id":        {column: "rule_id", typ: filtering.TypeString},
	"amount":         {column: "amount", typ: filtering.TypeInt},
	"ts":             {column: "ts", typ: filtering.TypeTimestamp},
}

var operators = map[string]string{
	filtering.FunctionEquals:        "=",
	filtering.FunctionNotEquals:     "!=",
	filtering.FunctionLessThan:      "<",
	filtering.FunctionLessEquals:    "<=",
	filtering.FunctionGreaterThan:   ">",
	filtering.FunctionGreaterEquals: ">=",
}

// Declarations returns the identifiers a transaction filter may reference.
func Declarations() (*filtering.Declarations, error) {
	opts := []filtering.DeclarationOption{filtering.DeclareStandardFunctions()}
	for name, f := range fields {
		opts = append(opts, filtering.DeclareIdent(name, f.typ))
	}
	return filtering.NewDeclarations(opts...)
}

// ParseTransactionFilter parses an AIP-160 filter. An empty filter yields an
// empty condition.
func ParseTransactionFilter(raw string) (Condition, error) {
	if strings.TrimSpace(raw) == "" {
		return Condition{}, nil
	}
	decls, err := Declarations()
	if err != nil {
		return Condition{}, fmt.Errorf("create declarations: %w", err)
	}
	parsed, err := filtering.ParseFilterString(raw, decls)
	if err != nil {
		return Condition{}, fmt.Errorf("parse filter: %w", err)
	}
	if parsed.CheckedExpr == nil {
		return Condition{}, nil
	}
	return translate(parsed.CheckedExpr.GetExpr())
}

func translate(e *expr.Expr) (Condition, error) {
	call := e.GetCallExpr()
	if call == nil {
		return Condition{}, fmt.Errorf("unsupported expression %T", e.GetExprKind())
	}
	switch call.GetFunction() {
	case filtering.FunctionAnd, filtering.FunctionFuzzyAnd:
		return join(call.GetArgs(), "AND")
	case filtering.FunctionOr:
		return join(call.GetArgs(), "OR")
	case filtering.FunctionNot:
		if len(call.GetArgs()) != 1 {
			return Condition{}, fmt.Errorf("NOT requires 1 argument")
		}
		inner, err := translate(call.GetArgs()[0])
		if err != nil {
			return Condition{}, err
		}
		return Condition{Clause: "NOT " + inner.Clause, Params: inner.Params}, nil
	}
	op, ok := operators[call.GetFunction()]
	if !ok {
		return Condition{}, fmt.Errorf("unsupported function: %s", call.GetFunction())
	}
	return compare(call.GetArgs(), op)
}

func join(args []*expr.Expr, op string) (Condition, error) {
	if len(args) < 2 {
		return Condition{}, fmt.Errorf("%s requires at least 2 arguments", op)
	}
	parts := make([]string, 0, len(args))
	var params []any
	for _, arg := range args {
		c, err := translate(arg)
		if err != nil {
			return Condition{}, err
		}
		parts = append(parts, c.Clause)
		params = append(params, c.Params...)
	}
	return Condition{Clause: "(" + strings.Join(parts, " "+op+" ") + ")", Params: params}, nil
}

func compare(args []*expr.Expr, op string) (Condition, error) {
	if len(args) != 2 {
		return Condition{}, fmt.Errorf("comparison requires 2 arguments")
	}
	ident := args[0].GetIdentExpr()
	if ident == nil {
		return Condition{}, fmt.Errorf("left side of comparison must be a field")
	}
	f, ok := fields[ident.GetName()]
	if !ok {
		return Condition{}, fmt.Errorf("unknown field: %s", ident.GetName())
	}
	value, err := literal(args[1])
	if err != nil {
		return Condition{}, fmt.Errorf("field %s: %w", ident.GetName(), err)
	}
	if raw, ok := value.(string); ok && f.typ == filtering.TypeTimestamp {
		if value, err = millis(raw); err != nil {
			return Condition{}, fmt.Errorf("field %s: %w", ident.GetName(), err)
		}
	}
	return Condition{Clause: f.column + " " + op + " ?", Params: []any{value}}, nil
}

// literal extracts a constant; timestamps become unix milliseconds to match
// the ts column.
func literal(e *expr.Expr) (any, error) {
	if call := e.GetCallExpr(); call != nil {
		if call.GetFunction() != filtering.FunctionTimestamp || len(call.GetArgs()) != 1 {
			return nil, fmt.Errorf("unsupported function in value position: %s", call.GetFunction())
		}
		return millis(call.GetArgs()[0].GetConstExpr().GetStringValue())
	}
	c := e.GetConstExpr()
	if c == nil {
		return nil, fmt.Errorf("expected constant, got %T", e.GetExprKind())
	}
	switch v := c.GetConstantKind().(type) {
	case *expr.Constant_StringValue:
		return v.StringValue, nil
	case *expr.Constant_Int64Value:
		return v.Int64Value, nil
	case *expr.Constant_Uint64Value:
		return int64(v.Uint64Value), nil
	default:
		return nil, fmt.Errorf("unsupported constant type %T", v)
	}
}

func millis(raw string) (int64, error) {
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", raw)
	}
	return ts.UTC().UnixMilli(), nil
}
