package store

import (
	"fmt"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/pathstore/internal/expr"
)

// Op is a comparison operator in a collection query.
type Op string

const (
	OpEqual            Op = "=="
	OpNotEqual         Op = "!="
	OpLess             Op = "<"
	OpLessOrEqual      Op = "<="
	OpGreater          Op = ">"
	OpGreaterOrEqual   Op = ">="
	OpArrayContains    Op = "array-contains"
	OpArrayContainsAny Op = "array-contains-any"
	OpIn               Op = "in"
	OpNotIn            Op = "not-in"
)

// maxInOperands is the DynamoDB limit on IN list size.
const maxInOperands = 100

var comparisons = map[Op]string{
	OpEqual:          "=",
	OpLess:           "<",
	OpLessOrEqual:    "<=",
	OpGreater:        ">",
	OpGreaterOrEqual: ">=",
}

// Condition compares a field against Value.
// For in, not-in and array-contains-any, Value must be a slice or array.
type Condition struct {
	Op    Op
	Value any
}

// FieldFilter applies every condition to one field.
// Dotted names ("address.city") address nested map fields.
type FieldFilter struct {
	Field      string
	Conditions []Condition
}

// Where is shorthand for a single-condition filter.
func Where(field string, op Op, value any) FieldFilter {
	return FieldFilter{Field: field, Conditions: []Condition{{Op: op, Value: value}}}
}

// compileFilters renders filters as one AND-combined filter expression.
// It returns "" when there are no conditions.
func compileFilters(b *expr.Builder, filters []FieldFilter) (string, error) {
	var clauses []string
	for _, f := range filters {
		if f.Field == "" {
			return "", fmt.Errorf("%w: empty field name", ErrInvalidQuery)
		}
		for _, c := range f.Conditions {
			clause, err := compileCondition(b, f.Field, c)
			if err != nil {
				return "", err
			}
			clauses = append(clauses, clause)
		}
	}
	return expr.And(clauses...), nil
}

func compileCondition(b *expr.Builder, field string, c Condition) (string, error) {
	if cmp, ok := comparisons[c.Op]; ok {
		v, err := marshalOperand(c.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", b.Path(field), cmp, b.Value(v)), nil
	}

	switch c.Op {
	case OpNotEqual:
		v, err := marshalOperand(c.Value)
		if err != nil {
			return "", err
		}
		path := b.Path(field)
		return fmt.Sprintf("attribute_exists(%s) AND %s <> %s", path, path, b.Value(v)), nil

	case OpArrayContains:
		v, err := marshalOperand(c.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("contains(%s, %s)", b.Path(field), b.Value(v)), nil

	case OpArrayContainsAny:
		items, err := marshalList(c.Op, c.Value)
		if err != nil {
			return "", err
		}
		path := b.Path(field)
		ors := make([]string, len(items))
		for i, item := range items {
			ors[i] = fmt.Sprintf("contains(%s, %s)", path, b.Value(item))
		}
		return expr.Or(ors...), nil

	case OpIn, OpNotIn:
		items, err := marshalList(c.Op, c.Value)
		if err != nil {
			return "", err
		}
		path := b.Path(field)
		in := fmt.Sprintf("%s IN (%s)", path, joinPlaceholders(b, items))
		if c.Op == OpIn {
			return in, nil
		}
		return fmt.Sprintf("attribute_exists(%s) AND NOT (%s)", path, in), nil
	}

	return "", fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, c.Op)
}

func marshalOperand(value any) (types.AttributeValue, error) {
	v, err := attributevalue.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return v, nil
}

// marshalList marshals a slice operand and returns its elements.
func marshalList(op Op, value any) ([]types.AttributeValue, error) {
	v, err := marshalOperand(value)
	if err != nil {
		return nil, err
	}
	list, ok := v.(*types.AttributeValueMemberL)
	if !ok {
		return nil, fmt.Errorf("%w: %q requires a list operand", ErrInvalidQuery, op)
	}
	if len(list.Value) == 0 {
		return nil, fmt.Errorf("%w: %q requires a non-empty list", ErrInvalidQuery, op)
	}
	if len(list.Value) > maxInOperands {
		return nil, fmt.Errorf("%w: %q accepts at most %d values", ErrInvalidQuery, op, maxInOperands)
	}
	return list.Value, nil
}

func joinPlaceholders(b *expr.Builder, items []types.AttributeValue) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += b.Value(item)
	}
	return out
}
