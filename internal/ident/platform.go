package ident

import (
	"strings"

	"github.com/pkg/errors"
)

// CfgSet is the compiler-introspection result supplied by the caller: a
// target name plus a set of `key` and `key=value` cfg entries. Evaluation
// of a PlatformExpr is a pure function of a CfgSet; unknown cfg keys
// evaluate to false (spec.md §4.A).
type CfgSet struct {
	TargetName string
	Flags      map[string]bool              // bare `cfg(name)` entries, e.g. "unix"
	KeyValues  map[string]map[string]bool   // `cfg(key = "value")` entries
}

// PlatformExpr is a parsed `cfg(...)` expression or a literal target
// triple. It is evaluated against a CfgSet.
type PlatformExpr interface {
	Eval(CfgSet) bool
	String() string
}

type literalTriple string

func (t literalTriple) Eval(c CfgSet) bool { return c.TargetName == string(t) }
func (t literalTriple) String() string     { return string(t) }

type cfgName string

func (n cfgName) Eval(c CfgSet) bool { return c.Flags[string(n)] }
func (n cfgName) String() string     { return string(n) }

type cfgKeyValue struct{ key, value string }

func (kv cfgKeyValue) Eval(c CfgSet) bool {
	vs, ok := c.KeyValues[kv.key]
	return ok && vs[kv.value]
}
func (kv cfgKeyValue) String() string { return kv.key + " = \"" + kv.value + "\"" }

type cfgAll []PlatformExpr

func (a cfgAll) Eval(c CfgSet) bool {
	for _, e := range a {
		if !e.Eval(c) {
			return false
		}
	}
	return true
}
func (a cfgAll) String() string { return "all(" + joinExprs(a) + ")" }

type cfgAny []PlatformExpr

func (a cfgAny) Eval(c CfgSet) bool {
	for _, e := range a {
		if e.Eval(c) {
			return true
		}
	}
	return false
}
func (a cfgAny) String() string { return "any(" + joinExprs(a) + ")" }

type cfgNot struct{ inner PlatformExpr }

func (n cfgNot) Eval(c CfgSet) bool { return !n.inner.Eval(c) }
func (n cfgNot) String() string     { return "not(" + n.inner.String() + ")" }

func joinExprs(es []PlatformExpr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// ParsePlatformExpr parses either a literal target triple (e.g.
// "x86_64-unknown-linux-gnu") or a `cfg(...)` boolean expression built
// from all/any/not, `key = "value"`, and bare names.
func ParsePlatformExpr(s string) (PlatformExpr, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "cfg(") {
		if s == "" {
			return nil, errors.New("empty platform expression")
		}
		return literalTriple(s), nil
	}
	if !strings.HasSuffix(s, ")") {
		return nil, errors.Errorf("malformed cfg() expression %q", s)
	}
	p := &cfgParser{s: s[len("cfg(") : len(s)-1]}
	e, err := p.parseExpr()
	if err != nil {
		return nil, errors.Wrapf(err, "parsing %q", s)
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, errors.Errorf("trailing input in cfg expression %q", s)
	}
	return e, nil
}

type cfgParser struct {
	s   string
	pos int
}

func (p *cfgParser) skipSpace() {
	for p.pos < len(p.s) && (p.s[p.pos] == ' ' || p.s[p.pos] == '\t') {
		p.pos++
	}
}

func (p *cfgParser) parseExpr() (PlatformExpr, error) {
	p.skipSpace()
	if strings.HasPrefix(p.s[p.pos:], "all(") {
		return p.parseCombinator("all(", func(es []PlatformExpr) PlatformExpr { return cfgAll(es) })
	}
	if strings.HasPrefix(p.s[p.pos:], "any(") {
		return p.parseCombinator("any(", func(es []PlatformExpr) PlatformExpr { return cfgAny(es) })
	}
	if strings.HasPrefix(p.s[p.pos:], "not(") {
		p.pos += len("not(")
		inner, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		return cfgNot{inner: inner}, nil
	}
	return p.parseAtom()
}

func (p *cfgParser) parseCombinator(prefix string, build func([]PlatformExpr) PlatformExpr) (PlatformExpr, error) {
	p.pos += len(prefix)
	var items []PlatformExpr
	for {
		p.skipSpace()
		if p.pos < len(p.s) && p.s[p.pos] == ')' {
			p.pos++
			break
		}
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, e)
		p.skipSpace()
		if p.pos < len(p.s) && p.s[p.pos] == ',' {
			p.pos++
			continue
		}
	}
	return build(items), nil
}

func (p *cfgParser) parseAtom() (PlatformExpr, error) {
	start := p.pos
	for p.pos < len(p.s) && p.s[p.pos] != ',' && p.s[p.pos] != ')' && p.s[p.pos] != '=' {
		p.pos++
	}
	name := strings.TrimSpace(p.s[start:p.pos])
	p.skipSpace()
	if p.pos < len(p.s) && p.s[p.pos] == '=' {
		p.pos++
		p.skipSpace()
		if p.pos >= len(p.s) || p.s[p.pos] != '"' {
			return nil, errors.New("expected quoted value after '='")
		}
		p.pos++
		vstart := p.pos
		for p.pos < len(p.s) && p.s[p.pos] != '"' {
			p.pos++
		}
		if p.pos >= len(p.s) {
			return nil, errors.New("unterminated quoted value")
		}
		value := p.s[vstart:p.pos]
		p.pos++
		return cfgKeyValue{key: name, value: value}, nil
	}
	if name == "" {
		return nil, errors.New("expected cfg name")
	}
	return cfgName(name), nil
}

func (p *cfgParser) expect(b byte) error {
	if p.pos >= len(p.s) || p.s[p.pos] != b {
		return errors.Errorf("expected %q at position %d", string(b), p.pos)
	}
	p.pos++
	return nil
}
