package eval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/routegrid/routegrid/internal/domain"
	"github.com/routegrid/routegrid/internal/domain/attribute"
)

// Cache stores parsed expression trees keyed by their source text. Parsed
// nodes are immutable, so a shared cache entry is safe for concurrent use.
type Cache interface {
	Get(expression string) (*Node, bool)
	Set(expression string, node *Node)
}

// Evaluator evaluates predicates against attribute groups. A nil cache is
// valid and simply reparses on every call.
type Evaluator struct {
	cache Cache
}

// New creates an Evaluator backed by the given parse cache.
func New(cache Cache) *Evaluator {
	return &Evaluator{cache: cache}
}

// Parse returns the node tree for the expression, consulting the cache first.
func (e *Evaluator) Parse(expression string) (*Node, error) {
	if e.cache != nil {
		if node, ok := e.cache.Get(expression); ok {
			return node, nil
		}
	}
	node, err := Parse(expression)
	if err != nil {
		return nil, err
	}
	if e.cache != nil {
		e.cache.Set(expression, node)
	}
	return node, nil
}

// Validate parses the expression and checks the statically checkable
// operator/argument arity rules, so malformed predicates are rejected when a
// queue or plan is created rather than during reconciliation.
func (e *Evaluator) Validate(expression string) error {
	node, err := e.Parse(expression)
	if err != nil {
		return err
	}
	return validateNode(node)
}

func validateNode(n *Node) error {
	switch n.Kind {
	case KindAnd, KindOr:
		for _, operand := range n.Operands {
			if err := validateNode(operand); err != nil {
				return err
			}
		}
		return nil
	case KindComparison:
		switch n.Op {
		case OpIn, OpOut:
			return nil
		default:
			if len(n.Args) != 1 {
				return fmt.Errorf("%w: operator %q takes exactly one argument, got %d",
					domain.ErrBadValue, n.Op, len(n.Args))
			}
			return nil
		}
	default:
		return fmt.Errorf("%w: unexpected node kind %d", domain.ErrInternal, n.Kind)
	}
}

// Evaluate parses the expression and evaluates it against the group. The
// result is a pure function of (expression, group). Malformed operator and
// operand combinations fail with *Error.
func (e *Evaluator) Evaluate(expression string, group attribute.Group) (bool, error) {
	node, err := e.Parse(expression)
	if err != nil {
		return false, err
	}
	return EvaluateNode(node, group)
}

// EvaluateNode evaluates a parsed node tree against the group.
func EvaluateNode(n *Node, group attribute.Group) (bool, error) {
	switch n.Kind {
	case KindAnd:
		// Left to right, stop at the first false operand.
		result := true
		for _, operand := range n.Operands {
			if !result {
				break
			}
			v, err := EvaluateNode(operand, group)
			if err != nil {
				return false, err
			}
			result = result && v
		}
		return result, nil
	case KindOr:
		// Left to right, stop at the first true operand.
		result := false
		for _, operand := range n.Operands {
			if result {
				break
			}
			v, err := EvaluateNode(operand, group)
			if err != nil {
				return false, err
			}
			result = result || v
		}
		return result, nil
	case KindComparison:
		return compare(n.Selector, n.Op, n.Args, group)
	default:
		return false, fmt.Errorf("%w: unexpected node kind %d", domain.ErrInternal, n.Kind)
	}
}

func compare(selector string, op Operator, args []string, group attribute.Group) (bool, error) {
	attrs := group.Get(selector)

	if len(attrs) == 0 {
		// A missing selector means "does not satisfy", not an error.
		switch op {
		case OpEq, OpGt, OpGe, OpLt, OpLe:
			if err := assertSingleArgument(op, args); err != nil {
				return false, err
			}
			return false, nil
		case OpNe:
			if err := assertSingleArgument(op, args); err != nil {
				return false, err
			}
			return true, nil
		case OpIn:
			return false, nil
		case OpOut:
			return true, nil
		default:
			return false, evalErrorf("unsupported operator %q", op)
		}
	}

	// The argument parse type follows the first matched attribute.
	typ := attrs[0].Type

	switch op {
	case OpEq:
		want, err := parseSingleArgument(op, args, typ)
		if err != nil {
			return false, err
		}
		return containsValue(attrs, want), nil
	case OpNe:
		want, err := parseSingleArgument(op, args, typ)
		if err != nil {
			return false, err
		}
		return !containsValue(attrs, want), nil
	case OpGt, OpGe, OpLt, OpLe:
		c, err := compareSingleElement(attrs, args, op)
		if err != nil {
			return false, err
		}
		switch op {
		case OpGt:
			return c > 0, nil
		case OpGe:
			return c >= 0, nil
		case OpLt:
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case OpIn, OpOut:
		if err := assertSingleAttribute(op, attrs); err != nil {
			return false, err
		}
		values, err := parseArguments(args, typ)
		if err != nil {
			return false, err
		}
		member := valuesContain(values, attrs[0].Value())
		if op == OpIn {
			return member, nil
		}
		return !member, nil
	default:
		return false, evalErrorf("unsupported operator %q", op)
	}
}

func containsValue(attrs []attribute.Attribute, want any) bool {
	for _, a := range attrs {
		if a.Value() == want {
			return true
		}
	}
	return false
}

func valuesContain(values []any, want any) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

// parseArgument converts an expression argument to the attribute's declared
// type. A double that fails to parse indicates malformed data, surfaced as an
// internal error rather than an evaluation failure.
func parseArgument(arg string, typ attribute.Type) (any, error) {
	switch typ {
	case attribute.TypeString:
		return arg, nil
	case attribute.TypeDouble:
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: cannot parse %q as double", domain.ErrInternal, arg)
		}
		return f, nil
	case attribute.TypeBoolean:
		return strings.EqualFold(arg, "true"), nil
	default:
		return nil, fmt.Errorf("%w: unexpected attribute type %q", domain.ErrInternal, typ)
	}
}

func parseSingleArgument(op Operator, args []string, typ attribute.Type) (any, error) {
	if err := assertSingleArgument(op, args); err != nil {
		return nil, err
	}
	return parseArgument(args[0], typ)
}

func parseArguments(args []string, typ attribute.Type) ([]any, error) {
	values := make([]any, 0, len(args))
	for _, arg := range args {
		v, err := parseArgument(arg, typ)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// compareSingleElement orders the single matched attribute against the single
// argument. Ordering operators reject multi-valued selectors and argument
// lists.
func compareSingleElement(attrs []attribute.Attribute, args []string, op Operator) (int, error) {
	if err := assertSingleArgument(op, args); err != nil {
		return 0, err
	}
	if err := assertSingleAttribute(op, attrs); err != nil {
		return 0, err
	}
	return orderAgainst(attrs[0], args[0])
}

func orderAgainst(attr attribute.Attribute, arg string) (int, error) {
	switch attr.Type {
	case attribute.TypeString:
		return strings.Compare(attr.String, arg), nil
	case attribute.TypeDouble:
		f, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: cannot parse %q as double", domain.ErrInternal, arg)
		}
		switch {
		case attr.Double < f:
			return -1, nil
		case attr.Double > f:
			return 1, nil
		default:
			return 0, nil
		}
	case attribute.TypeBoolean:
		return boolOrder(attr.Boolean) - boolOrder(strings.EqualFold(arg, "true")), nil
	default:
		return 0, fmt.Errorf("%w: unexpected attribute type %q for %q", domain.ErrInternal, attr.Type, attr.Name)
	}
}

func boolOrder(b bool) int {
	if b {
		return 1
	}
	return 0
}

func assertSingleArgument(op Operator, args []string) error {
	if len(args) != 1 {
		return evalErrorf("invalid argument count for operator %q: expected 1, found %d", op, len(args))
	}
	return nil
}

func assertSingleAttribute(op Operator, attrs []attribute.Attribute) error {
	if len(attrs) != 1 {
		return evalErrorf("invalid attribute count for operator %q: expected 1, found %d", op, len(attrs))
	}
	return nil
}
