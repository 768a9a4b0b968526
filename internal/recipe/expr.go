// File: internal/recipe/expr.go
// Guard-expression grammar for assert.expr steps. Deliberately small and
// explicitly parsed: identifiers, literals, field/index access into the
// provided namespaces, comparisons, boolean connectives, unary not/minus,
// and a fixed set of functions. There is no assignment, no arithmetic, no
// method calls and no way to reach outside the namespace maps.
package recipe

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// EvalExpr parses and evaluates a guard expression against the given
// namespaces (conventionally STATE and CTX). An optional ${...} wrapper is
// stripped first. The boolean connectives short-circuit: the unreached
// operand is parsed but never evaluated.
func EvalExpr(expr string, env map[string]any) (any, error) {
	src := strings.TrimSpace(expr)
	if strings.HasPrefix(src, "${") && strings.HasSuffix(src, "}") {
		src = strings.TrimSpace(src[2 : len(src)-1])
	}
	if src == "" {
		return nil, fmt.Errorf("empty expression")
	}
	p := &exprParser{env: env}
	if err := p.lex(src); err != nil {
		return nil, err
	}
	val, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() {
		return nil, fmt.Errorf("unexpected token %q after expression", p.peek().text)
	}
	return val, nil
}

// EvalPredicate evaluates the expression and reduces it to a boolean via
// truthiness.
func EvalPredicate(expr string, env map[string]any) (bool, error) {
	val, err := EvalExpr(expr, env)
	if err != nil {
		return false, err
	}
	return truthy(val), nil
}

// --- lexer ---

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokNumber
	tokString
	tokOp
	tokEOF
)

type token struct {
	kind tokenKind
	text string
}

type exprParser struct {
	env    map[string]any
	tokens []token
	pos    int
	// mute suppresses value evaluation inside the unreached side of a
	// short-circuited connective. The side is still parsed, so syntax
	// errors surface regardless.
	mute int
}

var exprOps = []string{"==", "!=", "<=", ">=", "&&", "||", "<", ">", "!", "(", ")", "[", "]", ".", ",", "-"}

func (p *exprParser) lex(src string) error {
	runes := []rune(src)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '\'' || r == '"':
			quote := r
			j := i + 1
			for j < len(runes) && runes[j] != quote {
				j++
			}
			if j >= len(runes) {
				return fmt.Errorf("unterminated string literal")
			}
			p.tokens = append(p.tokens, token{tokString, string(runes[i+1 : j])})
			i = j + 1
		case unicode.IsDigit(r):
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			p.tokens = append(p.tokens, token{tokNumber, string(runes[i:j])})
			i = j
		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			p.tokens = append(p.tokens, token{tokIdent, string(runes[i:j])})
			i = j
		default:
			matched := false
			for _, op := range exprOps {
				if strings.HasPrefix(string(runes[i:]), op) {
					p.tokens = append(p.tokens, token{tokOp, op})
					i += len(op)
					matched = true
					break
				}
			}
			if !matched {
				return fmt.Errorf("unexpected character %q", string(r))
			}
		}
	}
	p.tokens = append(p.tokens, token{tokEOF, ""})
	return nil
}

func (p *exprParser) peek() token { return p.tokens[p.pos] }

func (p *exprParser) next() token {
	t := p.tokens[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *exprParser) atEnd() bool { return p.peek().kind == tokEOF }

func (p *exprParser) acceptOp(op string) bool {
	if t := p.peek(); t.kind == tokOp && t.text == op {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) acceptIdent(word string) bool {
	if t := p.peek(); t.kind == tokIdent && t.text == word {
		p.pos++
		return true
	}
	return false
}

func (p *exprParser) expectOp(op string) error {
	if !p.acceptOp(op) {
		return fmt.Errorf("expected %q, found %q", op, p.peek().text)
	}
	return nil
}

// --- parser/evaluator ---

func (p *exprParser) parseOr() (any, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("||") || p.acceptIdent("or") {
		decided := truthy(left)
		if decided {
			p.mute++
		}
		right, err := p.parseAnd()
		if decided {
			p.mute--
		}
		if err != nil {
			return nil, err
		}
		if decided {
			left = true
		} else {
			left = truthy(right)
		}
	}
	return left, nil
}

func (p *exprParser) parseAnd() (any, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptOp("&&") || p.acceptIdent("and") {
		decided := !truthy(left)
		if decided {
			p.mute++
		}
		right, err := p.parseNot()
		if decided {
			p.mute--
		}
		if err != nil {
			return nil, err
		}
		if decided {
			left = false
		} else {
			left = truthy(right)
		}
	}
	return left, nil
}

func (p *exprParser) parseNot() (any, error) {
	if p.acceptOp("!") || p.acceptIdent("not") {
		val, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return !truthy(val), nil
	}
	return p.parseComparison()
}

var comparisonOps = []string{"==", "!=", "<=", ">=", "<", ">"}

func (p *exprParser) parseComparison() (any, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for _, op := range comparisonOps {
		if p.acceptOp(op) {
			right, err := p.parseTerm()
			if err != nil {
				return nil, err
			}
			if p.mute > 0 {
				return nil, nil
			}
			return compare(op, left, right)
		}
	}
	return left, nil
}

func (p *exprParser) parseTerm() (any, error) {
	val, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for {
		switch {
		case p.acceptOp("."):
			field := p.next()
			if field.kind != tokIdent {
				return nil, fmt.Errorf("expected field name after '.', found %q", field.text)
			}
			if p.mute > 0 {
				val = nil
				continue
			}
			val, err = access(val, field.text)
			if err != nil {
				return nil, err
			}
		case p.acceptOp("["):
			idx, err2 := p.parseOr()
			if err2 != nil {
				return nil, err2
			}
			if err2 := p.expectOp("]"); err2 != nil {
				return nil, err2
			}
			if p.mute > 0 {
				val = nil
				continue
			}
			val, err = index(val, idx)
			if err != nil {
				return nil, err
			}
		default:
			return val, nil
		}
	}
}

func (p *exprParser) parsePrimary() (any, error) {
	t := p.peek()
	switch {
	case t.kind == tokNumber:
		p.next()
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", t.text)
		}
		return f, nil
	case t.kind == tokString:
		p.next()
		return t.text, nil
	case t.kind == tokOp && t.text == "-":
		p.next()
		val, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		n, ok := asNumber(val)
		if !ok {
			if p.mute > 0 {
				return nil, nil
			}
			return nil, fmt.Errorf("unary minus needs a number, got %T", val)
		}
		return -n, nil
	case t.kind == tokOp && t.text == "(":
		p.next()
		val, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return val, nil
	case t.kind == tokIdent:
		p.next()
		switch t.text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null", "none":
			return nil, nil
		}
		// Function call or namespace lookup.
		if p.peek().kind == tokOp && p.peek().text == "(" {
			return p.parseCall(t.text)
		}
		val, ok := p.env[t.text]
		if !ok {
			if p.mute > 0 {
				return nil, nil
			}
			return nil, fmt.Errorf("unknown identifier %q", t.text)
		}
		return val, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", t.text)
	}
}

func (p *exprParser) parseCall(name string) (any, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	var args []any
	if !p.acceptOp(")") {
		for {
			arg, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, arg)
			if p.acceptOp(",") {
				continue
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			break
		}
	}
	if p.mute > 0 {
		return nil, nil
	}
	return callFunction(name, args)
}

// --- value helpers ---

func access(val any, field string) (any, error) {
	m, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("cannot access field %q on %T", field, val)
	}
	out, ok := m[field]
	if !ok {
		return nil, fmt.Errorf("field %q not present", field)
	}
	return out, nil
}

func index(val, idx any) (any, error) {
	switch c := val.(type) {
	case map[string]any:
		key, ok := idx.(string)
		if !ok {
			return nil, fmt.Errorf("map index must be a string, got %T", idx)
		}
		out, ok := c[key]
		if !ok {
			return nil, fmt.Errorf("key %q not present", key)
		}
		return out, nil
	case []any:
		n, ok := asNumber(idx)
		if !ok {
			return nil, fmt.Errorf("list index must be a number, got %T", idx)
		}
		i := int(n)
		if i < 0 || i >= len(c) {
			return nil, fmt.Errorf("index %d out of range (len %d)", i, len(c))
		}
		return c[i], nil
	default:
		return nil, fmt.Errorf("cannot index into %T", val)
	}
}

func compare(op string, left, right any) (any, error) {
	if op == "==" || op == "!=" {
		eq := looseEqual(left, right)
		if op == "!=" {
			return !eq, nil
		}
		return eq, nil
	}

	ln, lok := asNumber(left)
	rn, rok := asNumber(right)
	if lok && rok {
		switch op {
		case "<":
			return ln < rn, nil
		case "<=":
			return ln <= rn, nil
		case ">":
			return ln > rn, nil
		case ">=":
			return ln >= rn, nil
		}
	}
	ls, lsok := left.(string)
	rs, rsok := right.(string)
	if lsok && rsok {
		switch op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}
	return nil, fmt.Errorf("cannot order %T against %T", left, right)
}

func looseEqual(a, b any) bool {
	if an, ok := asNumber(a); ok {
		if bn, ok := asNumber(b); ok {
			return an == bn
		}
		return false
	}
	return a == b
}

func asNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

func truthy(v any) bool {
	switch c := v.(type) {
	case nil:
		return false
	case bool:
		return c
	case string:
		return c != ""
	case []any:
		return len(c) > 0
	case map[string]any:
		return len(c) > 0
	default:
		if n, ok := asNumber(v); ok {
			return n != 0
		}
		return true
	}
}

func callFunction(name string, args []any) (any, error) {
	switch name {
	case "len":
		if len(args) != 1 {
			return nil, fmt.Errorf("len takes exactly one argument")
		}
		switch c := args[0].(type) {
		case string:
			return float64(len(c)), nil
		case []any:
			return float64(len(c)), nil
		case map[string]any:
			return float64(len(c)), nil
		default:
			return nil, fmt.Errorf("len of %T not supported", args[0])
		}
	case "min", "max":
		nums, err := numericArgs(name, args)
		if err != nil {
			return nil, err
		}
		out := nums[0]
		for _, n := range nums[1:] {
			if (name == "min" && n < out) || (name == "max" && n > out) {
				out = n
			}
		}
		return out, nil
	case "sum":
		nums, err := numericArgs(name, args)
		if err != nil {
			return nil, err
		}
		var total float64
		for _, n := range nums {
			total += n
		}
		return total, nil
	case "sorted":
		if len(args) != 1 {
			return nil, fmt.Errorf("sorted takes exactly one argument")
		}
		list, ok := args[0].([]any)
		if !ok {
			return nil, fmt.Errorf("sorted takes a list, got %T", args[0])
		}
		out := append([]any(nil), list...)
		var sortErr error
		sort.SliceStable(out, func(i, j int) bool {
			less, err := compare("<", out[i], out[j])
			if err != nil {
				sortErr = err
				return false
			}
			return less.(bool)
		})
		if sortErr != nil {
			return nil, sortErr
		}
		return out, nil
	case "any", "all":
		if len(args) != 1 {
			return nil, fmt.Errorf("%s takes exactly one argument", name)
		}
		list, ok := args[0].([]any)
		if !ok {
			return nil, fmt.Errorf("%s takes a list, got %T", name, args[0])
		}
		if name == "any" {
			for _, v := range list {
				if truthy(v) {
					return true, nil
				}
			}
			return false, nil
		}
		for _, v := range list {
			if !truthy(v) {
				return false, nil
			}
		}
		return true, nil
	default:
		return nil, fmt.Errorf("unknown function %q", name)
	}
}

// numericArgs flattens a single-list argument and coerces everything to
// numbers.
func numericArgs(name string, args []any) ([]float64, error) {
	values := args
	if len(args) == 1 {
		if list, ok := args[0].([]any); ok {
			values = list
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s needs at least one value", name)
	}
	out := make([]float64, 0, len(values))
	for _, v := range values {
		n, ok := asNumber(v)
		if !ok {
			return nil, fmt.Errorf("%s needs numbers, got %T", name, v)
		}
		out = append(out, n)
	}
	return out, nil
}
