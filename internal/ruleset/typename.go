package ruleset

import (
	"fmt"
	"strings"

	"modpatch/internal/host"
	"modpatch/internal/meta"
)

// parseType reads the type syntax used in rule files:
//
//	[Scope]Namespace.Name<Arg,...>[]&
//
// The scope prefix is optional for types the host catalog knows; generic
// arguments, array and byref suffixes are optional too.
func parseType(cat *host.Catalog, s string) (*meta.TypeRef, error) {
	p := &typeParser{cat: cat, src: strings.TrimSpace(s)}
	if p.src == "" {
		return nil, fmt.Errorf("empty type name")
	}
	t, err := p.ref()
	if err != nil {
		return nil, fmt.Errorf("type %q: %w", s, err)
	}
	if p.pos != len(p.src) {
		return nil, fmt.Errorf("type %q: unexpected %q", s, p.src[p.pos:])
	}
	return t, nil
}

type typeParser struct {
	cat *host.Catalog
	src string
	pos int
}

func (p *typeParser) peek(c byte) bool {
	return p.pos < len(p.src) && p.src[p.pos] == c
}

func (p *typeParser) ref() (*meta.TypeRef, error) {
	scope := ""
	if p.peek('[') {
		end := strings.IndexByte(p.src[p.pos:], ']')
		if end < 0 {
			return nil, fmt.Errorf("unterminated scope")
		}
		scope = strings.TrimSpace(p.src[p.pos+1 : p.pos+end])
		if scope == "" {
			return nil, fmt.Errorf("empty scope")
		}
		p.pos += end + 1
	}
	start := p.pos
	for p.pos < len(p.src) && !strings.ContainsRune("<>,[]& ", rune(p.src[p.pos])) {
		p.pos++
	}
	name := p.src[start:p.pos]
	if name == "" || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return nil, fmt.Errorf("bad name %q", name)
	}
	t, err := p.named(scope, name)
	if err != nil {
		return nil, err
	}
	if p.peek('<') {
		p.pos++
		var args []*meta.TypeRef
		for {
			for p.peek(' ') {
				p.pos++
			}
			a, err := p.ref()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if p.peek(',') {
				p.pos++
				continue
			}
			if !p.peek('>') {
				return nil, fmt.Errorf("expected '>'")
			}
			p.pos++
			break
		}
		t = meta.Generic(t, args...)
	}
	for {
		switch {
		case strings.HasPrefix(p.src[p.pos:], "[]"):
			p.pos += 2
			t = meta.ArrayOf(t)
		case p.peek('&'):
			p.pos++
			t = meta.ByRefOf(t)
		default:
			return t, nil
		}
	}
}

// named resolves an unscoped name through the catalog. Scoped names are
// checked only when the scope belongs to the host.
func (p *typeParser) named(scope, name string) (*meta.TypeRef, error) {
	if scope == "" {
		return p.cat.Ref(name)
	}
	t := meta.Named(scope, name)
	if p.cat.HasScope(scope) {
		if _, owner, ok := p.cat.Type(name); !ok || owner != scope {
			return nil, fmt.Errorf("host type %s not found in scope %s", name, scope)
		}
	}
	return t, nil
}
