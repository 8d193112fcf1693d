// Package eval parses and evaluates RSQL-style boolean predicates over
// attribute groups. The grammar supports conjunction (";" or " and "),
// disjunction ("," or " or "), parenthesised groups, and comparison nodes
// of the form selector, operator, argument list.
package eval

import "fmt"

// Kind discriminates expression node variants.
type Kind int

const (
	KindAnd Kind = iota
	KindOr
	KindComparison
)

// Operator is a canonical comparison operator. The alternative spellings
// =gt=, =ge=, =lt= and =le= are normalized to their symbol forms at parse
// time.
type Operator string

const (
	OpEq  Operator = "=="
	OpNe  Operator = "!="
	OpGt  Operator = ">"
	OpGe  Operator = ">="
	OpLt  Operator = "<"
	OpLe  Operator = "<="
	OpIn  Operator = "=in="
	OpOut Operator = "=out="
)

// Node is one expression tree node. And/Or nodes carry Operands; comparison
// nodes carry Selector, Op and Args.
type Node struct {
	Kind     Kind
	Operands []*Node

	Selector string
	Op       Operator
	Args     []string
}

// Error reports a malformed operator/operand combination encountered while
// evaluating an otherwise well-formed expression.
type Error struct {
	msg string
}

func (e *Error) Error() string { return e.msg }

func evalErrorf(format string, args ...any) *Error {
	return &Error{msg: fmt.Sprintf(format, args...)}
}
