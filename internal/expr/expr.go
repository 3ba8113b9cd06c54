// Package expr allocates placeholders for DynamoDB expressions.
//
// User field names never appear inline in an expression: each one is bound to
// a "#fN" name placeholder and each operand to a ":vN" value placeholder.
package expr

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Builder accumulates placeholder bindings for one request.
type Builder struct {
	names  map[string]string
	values map[string]types.AttributeValue
	nextN  int
	nextV  int
}

// New returns an empty Builder.
func New() *Builder {
	return &Builder{
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
	}
}

// Name binds a literal attribute name and returns its placeholder.
// Dots are not interpreted: "a.b" is a single top-level attribute.
func (b *Builder) Name(attr string) string {
	placeholder := fmt.Sprintf("#f%d", b.nextN)
	b.nextN++
	b.names[placeholder] = attr
	return placeholder
}

// Path binds a dotted field path ("address.city") and returns the
// document path expression ("#f0.#f1").
func (b *Builder) Path(field string) string {
	parts := strings.Split(field, ".")
	out := make([]string, len(parts))
	for i, part := range parts {
		out[i] = b.Name(part)
	}
	return strings.Join(out, ".")
}

// Value binds an operand and returns its placeholder.
func (b *Builder) Value(av types.AttributeValue) string {
	placeholder := fmt.Sprintf(":v%d", b.nextV)
	b.nextV++
	b.values[placeholder] = av
	return placeholder
}

// BindName registers a fixed placeholder such as "#pk".
func (b *Builder) BindName(placeholder, attr string) {
	b.names[placeholder] = attr
}

// BindValue registers a fixed value placeholder such as ":pk".
func (b *Builder) BindValue(placeholder string, av types.AttributeValue) {
	b.values[placeholder] = av
}

// Names returns the name bindings, or nil when none were made.
func (b *Builder) Names() map[string]string {
	if len(b.names) == 0 {
		return nil
	}
	return b.names
}

// Values returns the value bindings, or nil when none were made.
// DynamoDB rejects an empty ExpressionAttributeValues map.
func (b *Builder) Values() map[string]types.AttributeValue {
	if len(b.values) == 0 {
		return nil
	}
	return b.values
}

// And joins clauses with AND, parenthesizing each when there is more than one.
func And(clauses ...string) string {
	return join(clauses, " AND ")
}

// Or joins clauses with OR, parenthesizing each when there is more than one.
func Or(clauses ...string) string {
	return join(clauses, " OR ")
}

func join(clauses []string, sep string) string {
	var nonEmpty []string
	for _, c := range clauses {
		if c != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	if len(nonEmpty) == 1 {
		return nonEmpty[0]
	}
	for i, c := range nonEmpty {
		nonEmpty[i] = "(" + c + ")"
	}
	return strings.Join(nonEmpty, sep)
}
