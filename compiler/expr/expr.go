// Package expr compiles SpecQL value and condition expressions into SQL
// with operator/function allow-lists and injection screening. Identifiers
// are rewritten through a caller-supplied mapping so the same compiler
// serves validate guards, where predicates and insert values.
package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Rewrite maps an identifier to its SQL form. Returning false rejects the
// identifier as unknown.
type Rewrite func(ident string) (string, bool)

var safeOperators = map[string]struct{}{
	"=": {}, "!=": {}, "<": {}, ">": {}, "<=": {}, ">=": {},
	"AND": {}, "OR": {}, "NOT": {}, "IN": {}, "LIKE": {}, "ILIKE": {},
	"IS": {}, "IS NOT": {}, "+": {}, "-": {}, "*": {}, "/": {}, "||": {},
}

var safeFunctions = map[string]struct{}{
	"UPPER": {}, "LOWER": {}, "TRIM": {}, "LENGTH": {}, "COALESCE": {},
	"NOW": {}, "CURRENT_DATE": {}, "CURRENT_TIME": {}, "EXTRACT": {},
	"SUBSTRING": {}, "POSITION": {}, "CONCAT": {},
}

var dangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i);\s*--`),
	regexp.MustCompile(`(?i);\s*/\*`),
	regexp.MustCompile(`(?i)union\s+select`),
	regexp.MustCompile(`(?i)exec\s*\(`),
	regexp.MustCompile(`(?i)xp_\w+`),
	regexp.MustCompile(`(?i);\s*drop\s+`),
	regexp.MustCompile(`(?i);\s*delete\s+from`),
	regexp.MustCompile(`(?i);\s*update\s+`),
	regexp.MustCompile(`(?i);\s*insert\s+`),
}

// binary operators ordered by binding strength, loosest first, so splitting
// happens at the outermost operator.
var binaryOps = []string{"OR", "AND", "IS NOT", "IS", "IN", "ILIKE", "LIKE", "!=", "<=", ">=", "=", "<", ">", "||", "+", "-", "*", "/"}

// Compile validates expression and returns its SQL form with identifiers
// rewritten.
func Compile(expression string, rewrite Rewrite) (string, error) {
	if strings.TrimSpace(expression) == "" {
		return "", fmt.Errorf("empty expression")
	}
	if err := screen(expression); err != nil {
		return "", err
	}
	node, err := parse(strings.TrimSpace(expression))
	if err != nil {
		return "", err
	}
	return node.sql(rewrite)
}

func screen(expression string) error {
	for _, p := range dangerousPatterns {
		if p.MatchString(expression) {
			return fmt.Errorf("expression matches blocked pattern %s", p.String())
		}
	}
	if strings.ContainsAny(expression, "\\\x00\n\r") {
		return fmt.Errorf("expression contains control characters")
	}
	return nil
}

type node interface {
	sql(rewrite Rewrite) (string, error)
}

type binaryNode struct {
	op          string
	left, right node
}

type unaryNode struct {
	op      string
	operand node
}

type funcNode struct {
	name string
	args []node
}

type identNode struct{ name string }

type literalNode struct{ value string }

type groupNode struct{ inner node }

func parse(expression string) (node, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		return nil, fmt.Errorf("empty subexpression")
	}

	if wrapped(expression) {
		inner, err := parse(expression[1 : len(expression)-1])
		if err != nil {
			return nil, err
		}
		return groupNode{inner: inner}, nil
	}

	if op, left, right, ok := splitBinary(expression); ok {
		l, err := parse(left)
		if err != nil {
			return nil, err
		}
		r, err := parse(right)
		if err != nil {
			return nil, err
		}
		return binaryNode{op: op, left: l, right: r}, nil
	}

	upper := strings.ToUpper(expression)
	if strings.HasPrefix(upper, "NOT ") {
		operand, err := parse(expression[4:])
		if err != nil {
			return nil, err
		}
		return unaryNode{op: "NOT", operand: operand}, nil
	}

	if name, args, ok := splitCall(expression); ok {
		fn := strings.ToUpper(name)
		if _, safe := safeFunctions[fn]; !safe {
			return nil, fmt.Errorf("function %q not allowed", name)
		}
		parsed := make([]node, 0, len(args))
		for _, a := range args {
			n, err := parse(a)
			if err != nil {
				return nil, err
			}
			parsed = append(parsed, n)
		}
		return funcNode{name: fn, args: parsed}, nil
	}

	if isLiteral(expression) {
		return literalNode{value: expression}, nil
	}
	return identNode{name: expression}, nil
}

// wrapped reports whether the whole expression is one parenthesized group.
func wrapped(s string) bool {
	if !strings.HasPrefix(s, "(") || !strings.HasSuffix(s, ")") {
		return false
	}
	depth := 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}

// splitBinary finds the loosest-binding top-level operator and splits there.
func splitBinary(s string) (op, left, right string, ok bool) {
	for _, candidate := range binaryOps {
		if idx := topLevelIndex(s, candidate); idx >= 0 {
			l := strings.TrimSpace(s[:idx])
			r := strings.TrimSpace(s[idx+len(candidate):])
			if l == "" || r == "" {
				continue
			}
			return candidate, l, r, true
		}
	}
	return "", "", "", false
}

// topLevelIndex locates candidate outside parentheses and quotes. Word
// operators must be whitespace-delimited.
func topLevelIndex(s string, candidate string) int {
	wordOp := candidate[0] >= 'A' && candidate[0] <= 'Z'
	upper := strings.ToUpper(s)
	needle := candidate
	if wordOp {
		needle = " " + candidate + " "
	}
	depth := 0
	inQuote := false
	for i := 0; i+len(needle) <= len(s); i++ {
		switch s[i] {
		case '\'':
			inQuote = !inQuote
			continue
		case '(':
			if !inQuote {
				depth++
			}
			continue
		case ')':
			if !inQuote {
				depth--
			}
			continue
		}
		if inQuote || depth != 0 {
			continue
		}
		if upper[i:i+len(needle)] == needle {
			if wordOp {
				return i + 1
			}
			// Symbol operators: skip when part of a longer operator.
			if candidate == "=" && i > 0 && (s[i-1] == '!' || s[i-1] == '<' || s[i-1] == '>') {
				continue
			}
			if (candidate == "<" || candidate == ">") && i+1 < len(s) && s[i+1] == '=' {
				continue
			}
			return i
		}
	}
	return -1
}

func splitCall(s string) (name string, args []string, ok bool) {
	open := strings.Index(s, "(")
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return "", nil, false
	}
	name = strings.TrimSpace(s[:open])
	for _, r := range name {
		if !isIdentRune(r) {
			return "", nil, false
		}
	}
	inner := s[open+1 : len(s)-1]
	if strings.TrimSpace(inner) == "" {
		return name, nil, true
	}
	depth := 0
	inQuote := false
	start := 0
	for i := 0; i < len(inner); i++ {
		switch inner[i] {
		case '\'':
			inQuote = !inQuote
		case '(':
			if !inQuote {
				depth++
			}
		case ')':
			if !inQuote {
				depth--
			}
		case ',':
			if !inQuote && depth == 0 {
				args = append(args, strings.TrimSpace(inner[start:i]))
				start = i + 1
			}
		}
	}
	args = append(args, strings.TrimSpace(inner[start:]))
	return name, args, true
}

func isIdentRune(r rune) bool {
	return r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

func isLiteral(s string) bool {
	if strings.HasPrefix(s, "'") && strings.HasSuffix(s, "'") && len(s) >= 2 {
		return true
	}
	if _, err := strconv.ParseFloat(s, 64); err == nil {
		return true
	}
	switch strings.ToUpper(s) {
	case "TRUE", "FALSE", "NULL":
		return true
	}
	return false
}

func (n binaryNode) sql(rewrite Rewrite) (string, error) {
	if _, ok := safeOperators[n.op]; !ok {
		return "", fmt.Errorf("operator %q not allowed", n.op)
	}
	l, err := n.left.sql(rewrite)
	if err != nil {
		return "", err
	}
	r, err := n.right.sql(rewrite)
	if err != nil {
		return "", err
	}
	return l + " " + n.op + " " + r, nil
}

func (n unaryNode) sql(rewrite Rewrite) (string, error) {
	operand, err := n.operand.sql(rewrite)
	if err != nil {
		return "", err
	}
	return n.op + " " + operand, nil
}

func (n funcNode) sql(rewrite Rewrite) (string, error) {
	args := make([]string, 0, len(n.args))
	for _, a := range n.args {
		s, err := a.sql(rewrite)
		if err != nil {
			return "", err
		}
		args = append(args, s)
	}
	return n.name + "(" + strings.Join(args, ", ") + ")", nil
}

func (n identNode) sql(rewrite Rewrite) (string, error) {
	if mapped, ok := rewrite(n.name); ok {
		return mapped, nil
	}
	return "", fmt.Errorf("unknown field or variable %q", n.name)
}

func (n literalNode) sql(Rewrite) (string, error) { return n.value, nil }

func (n groupNode) sql(rewrite Rewrite) (string, error) {
	inner, err := n.inner.sql(rewrite)
	if err != nil {
		return "", err
	}
	return "(" + inner + ")", nil
}
