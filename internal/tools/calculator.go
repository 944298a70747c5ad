package tools

import (
	"context"
	"errors"
	"math"
	"regexp"
	"strconv"
)

const (
	maxExpressionLength = 256
	maxExpressionDepth  = 32

	invalidExpression = "Invalid expression"
)

var (
	disallowedChars = regexp.MustCompile(`[^0-9+\-*/().%\s]`)

	errSyntax    = errors.New("syntax error")
	errTooLong   = errors.New("expression too long")
	errTooDeep   = errors.New("expression nested too deeply")
	errNotFinite = errors.New("result is not a finite number")
)

// Calculate returns the calculate tool.
func Calculate() *Tool {
	return &Tool{
		Name:        "calculate",
		Description: "Evaluate an arithmetic expression using + - * / % and parentheses",
		Parameters: []Parameter{
			{Name: "expression", Type: "string", Description: "Arithmetic expression, e.g. (2 + 3) * 4", Required: true},
		},
		Execute: func(ctx context.Context, args map[string]any) (map[string]any, error) {
			expr, _ := args["expression"].(string)
			value, err := Evaluate(Sanitize(expr))
			if err != nil {
				return map[string]any{"expression": expr, "error": invalidExpression}, nil
			}
			return map[string]any{"expression": expr, "result": value}, nil
		},
	}
}

// Sanitize strips every character outside digits, whitespace and + - * / % ( ) .
func Sanitize(expr string) string {
	return disallowedChars.ReplaceAllString(expr, "")
}

// Evaluate computes an arithmetic expression over decimal numbers with
// + - * / %, unary signs and parentheses.
//
//	expr   = term { ("+" | "-") term }
//	term   = unary { ("*" | "/" | "%") unary }
//	unary  = ("+" | "-") unary | primary
//	primary = number | "(" expr ")"
func Evaluate(expr string) (float64, error) {
	if len(expr) > maxExpressionLength {
		return 0, errTooLong
	}

	p := &parser{src: expr}
	v, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return 0, errSyntax
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errNotFinite
	}
	return v, nil
}

type parser struct {
	src   string
	pos   int
	depth int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\n', '\r', '\f', '\v':
			p.pos++
		default:
			return
		}
	}
}

func (p *parser) peek() byte {
	p.skipSpace()
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxExpressionDepth {
		return errTooDeep
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *parser) parseTerm() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	for {
		op := p.peek()
		if op != '*' && op != '/' && op != '%' {
			return left, nil
		}
		p.pos++
		right, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		switch op {
		case '*':
			left *= right
		case '/':
			left /= right
		case '%':
			left = math.Mod(left, right)
		}
	}
}

func (p *parser) parseUnary() (float64, error) {
	switch p.peek() {
	case '+', '-':
		op := p.src[p.pos]
		p.pos++
		if err := p.enter(); err != nil {
			return 0, err
		}
		v, err := p.parseUnary()
		p.leave()
		if err != nil {
			return 0, err
		}
		if op == '-' {
			v = -v
		}
		return v, nil
	default:
		return p.parsePrimary()
	}
}

func (p *parser) parsePrimary() (float64, error) {
	c := p.peek()
	if c == '(' {
		p.pos++
		if err := p.enter(); err != nil {
			return 0, err
		}
		v, err := p.parseExpr()
		p.leave()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, errSyntax
		}
		p.pos++
		return v, nil
	}
	return p.parseNumber()
}

func (p *parser) parseNumber() (float64, error) {
	p.skipSpace()
	start := p.pos
	sawDigit, sawDot := false, false
	for ; p.pos < len(p.src); p.pos++ {
		c := p.src[p.pos]
		if c >= '0' && c <= '9' {
			sawDigit = true
			continue
		}
		if c == '.' && !sawDot {
			sawDot = true
			continue
		}
		break
	}
	if !sawDigit {
		return 0, errSyntax
	}
	v, err := strconv.ParseFloat(p.src[start:p.pos], 64)
	if err != nil {
		return 0, errSyntax
	}
	return v, nil
}
