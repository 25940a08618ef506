// Package ruleset loads TOML rule tables describing one host upgrade and
// turns them into rewrite rules, a facade registry and the access guard's
// reserved namespaces.
package ruleset

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"modpatch/internal/facade"
	"modpatch/internal/guard"
	"modpatch/internal/host"
	"modpatch/internal/match"
	"modpatch/internal/meta"
	"modpatch/internal/rewrite"
	"modpatch/internal/rules"
)

// DefaultFacadeScope is the scope facades are published under when a
// [[facade]] entry names none.
const DefaultFacadeScope = "Compat"

// ErrEmpty is returned for a rule file that declares no rules.
var ErrEmpty = errors.New("rule table declares no rules")

// EntryError points at the offending entry of a rule file.
type EntryError struct {
	File  string
	Table string
	Index int
	Err   error
}

func (e *EntryError) Error() string {
	return fmt.Sprintf("%s: %s[%d]: %v", e.File, e.Table, e.Index, e.Err)
}

func (e *EntryError) Unwrap() error { return e.Err }

// Set is a validated rule table. Build returns fresh rule instances on
// every call so concurrent passes never share a rule.
type Set struct {
	Name     string
	Path     string
	Facades  *facade.Registry
	Reserved []string

	builders []func() (rewrite.Rule, error)
}

// Load parses path and validates every entry against cat. Facades are
// installed into cat, so cat must not be in use by a running pass.
func Load(path string, cat *host.Catalog) (*Set, error) {
	var t table
	md, err := toml.DecodeFile(path, &t)
	if err := checkDecoded(path, md, err); err != nil {
		return nil, err
	}
	return compile(path, &t, cat)
}

// Parse is Load for an in-memory table; name stands in for the file path
// in error messages.
func Parse(name, data string, cat *host.Catalog) (*Set, error) {
	var t table
	md, err := toml.Decode(data, &t)
	if err := checkDecoded(name, md, err); err != nil {
		return nil, err
	}
	return compile(name, &t, cat)
}

func checkDecoded(name string, md toml.MetaData, err error) error {
	if err != nil {
		return fmt.Errorf("%s: failed to parse TOML: %w", name, err)
	}
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}
	keys := make([]string, len(undecoded))
	for i, k := range undecoded {
		keys[i] = k.String()
	}
	return fmt.Errorf("%s: unknown keys: %s", name, strings.Join(keys, ", "))
}

type compiler struct {
	path string
	cat  *host.Catalog
	set  *Set
}

func (c *compiler) entry(table string, idx int, err error) error {
	return &EntryError{File: c.path, Table: table, Index: idx, Err: err}
}

func compile(path string, t *table, cat *host.Catalog) (*Set, error) {
	c := &compiler{
		path: path,
		cat:  cat,
		set: &Set{
			Name:     strings.TrimSpace(t.Meta.Name),
			Path:     path,
			Facades:  facade.NewRegistry(),
			Reserved: guard.New(t.Meta.Reserved...).Reserved(),
		},
	}
	if err := c.facades(t.Facade); err != nil {
		return nil, err
	}
	if err := c.set.Facades.Install(cat); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	// rules run in this order: scope moves first so later rules see the
	// current host scope
	steps := []func(*table) error{
		c.retargets,
		c.replaceTypes,
		c.replaceMembers,
		c.redirects,
		c.finds,
		c.missing,
	}
	for _, step := range steps {
		if err := step(t); err != nil {
			return nil, err
		}
	}
	if len(c.set.builders) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	return c.set, nil
}

func (c *compiler) add(b func() (rewrite.Rule, error)) {
	c.set.builders = append(c.set.builders, b)
}

func (c *compiler) facades(fs []facadeTable) error {
	for i, f := range fs {
		if f.Name == "" || f.Host == "" {
			return c.entry("facade", i, errors.New("name and host are required"))
		}
		hostRef, err := c.cat.Ref(f.Host)
		if err != nil {
			return c.entry("facade", i, err)
		}
		scope := f.Scope
		if scope == "" {
			scope = DefaultFacadeScope
		}
		b := facade.NewBuilder(scope, f.Name, hostRef)
		for j, m := range f.Method {
			old, target, err := c.shim(hostRef, m)
			if err != nil {
				return c.entry("facade", i, fmt.Errorf("method[%d]: %w", j, err))
			}
			b.Method(old, target)
		}
		built, err := b.Build(c.cat)
		if err != nil {
			return c.entry("facade", i, err)
		}
		if err := c.set.Facades.Register(built); err != nil {
			return c.entry("facade", i, err)
		}
	}
	return nil
}

func (c *compiler) shim(hostRef *meta.TypeRef, m facadeMethod) (*meta.MethodRef, *meta.MethodRef, error) {
	if m.Name == "" || m.Return == "" {
		return nil, nil, errors.New("name and return are required")
	}
	ret, err := parseType(c.cat, m.Return)
	if err != nil {
		return nil, nil, err
	}
	params, err := c.types(m.Params)
	if err != nil {
		return nil, nil, err
	}
	old := &meta.MethodRef{DeclaringType: hostRef, Name: m.Name, HasThis: !m.Static, Return: ret, Params: params}

	target := old.Copy()
	if m.Target != "" {
		target.Name = m.Target
	}
	if m.TargetReturn != "" {
		if target.Return, err = parseType(c.cat, m.TargetReturn); err != nil {
			return nil, nil, err
		}
	}
	if m.TargetParams != nil {
		if target.Params, err = c.types(m.TargetParams); err != nil {
			return nil, nil, err
		}
	}
	return old, target, nil
}

func (c *compiler) types(names []string) ([]*meta.TypeRef, error) {
	out := make([]*meta.TypeRef, 0, len(names))
	for _, n := range names {
		t, err := parseType(c.cat, n)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (c *compiler) retargets(t *table) error {
	for i, r := range t.RetargetScope {
		if r.From == "" || r.To == "" || r.From == r.To {
			return c.entry("retarget_scope", i, errors.New("from and to must be distinct scopes"))
		}
		if !c.cat.HasScope(r.To) {
			return c.entry("retarget_scope", i, fmt.Errorf("scope %s is not a host scope", r.To))
		}
		from, to := r.From, r.To
		c.add(func() (rewrite.Rule, error) { return rules.NewScopeRetarget(from, to), nil })
	}
	return nil
}

func (c *compiler) replaceTypes(t *table) error {
	for i, r := range t.ReplaceType {
		if r.From == "" || r.To == "" {
			return c.entry("replace_type", i, errors.New("from and to are required"))
		}
		to, err := parseType(c.cat, r.To)
		if err != nil {
			return c.entry("replace_type", i, err)
		}
		if !c.cat.ResolveType(to) {
			return c.entry("replace_type", i, fmt.Errorf("replacement %s does not resolve", to))
		}
		var when []*meta.TypeRef
		for _, s := range r.WhenArgs {
			a, err := parseType(c.cat, s)
			if err != nil {
				return c.entry("replace_type", i, fmt.Errorf("when_args: %w", err))
			}
			when = append(when, a)
		}
		c.add(func() (rewrite.Rule, error) {
			var opts []match.Option
			if r.Scope != "" {
				opts = append(opts, match.InScope(r.Scope))
			}
			rule := rules.NewTypeRename(match.Type(r.From, opts...), meta.CloneTypeRef(to))
			if r.PlatformOnly {
				rule.PlatformOnly()
			}
			if len(when) > 0 {
				args := make([]*meta.TypeRef, len(when))
				for j, a := range when {
					args[j] = meta.CloneTypeRef(a)
				}
				only := match.Type(r.From, append(opts, match.Strict(args...))...)
				rule.When(only.Matches)
			}
			return rule, nil
		})
	}
	return nil
}

func (c *compiler) replaceMembers(t *table) error {
	for i, r := range t.ReplaceMember {
		if r.Type == "" || r.Name == "" {
			return c.entry("replace_member", i, errors.New("type and name are required"))
		}
		if r.ToType == "" && (r.ToName == "" || r.ToName == r.Name) {
			return c.entry("replace_member", i, errors.New("to_type or a new to_name is required"))
		}
		var toType *meta.TypeRef
		if r.ToType != "" {
			var err error
			if toType, err = parseType(c.cat, r.ToType); err != nil {
				return c.entry("replace_member", i, err)
			}
		}
		var ctor func(string, string, *meta.TypeRef, string) *rules.MemberReplace
		switch r.Kind {
		case "", "method":
			ctor = rules.NewMethodReplace
		case "field":
			ctor = rules.NewFieldReplace
		default:
			return c.entry("replace_member", i, fmt.Errorf("kind %q (expected: method|field)", r.Kind))
		}
		c.add(func() (rewrite.Rule, error) {
			return ctor(r.Type, r.Name, meta.CloneTypeRef(toType), r.ToName), nil
		})
	}
	return nil
}

func (c *compiler) redirects(t *table) error {
	for i, r := range t.Redirect {
		f, ok := c.set.Facades.Lookup(r.Facade)
		if !ok {
			return c.entry("redirect", i, fmt.Errorf("facade %q is not declared", r.Facade))
		}
		if r.Type != "" && r.Type != f.Substitutes().DefinitionName() {
			return c.entry("redirect", i, fmt.Errorf("facade %s stands in for %s, not %s",
				f.Name(), f.Substitutes().DefinitionName(), r.Type))
		}
		members := append([]string(nil), r.Members...)
		c.add(func() (rewrite.Rule, error) { return rules.NewFacadeRedirect(f, members...), nil })
	}
	return nil
}

func (c *compiler) finds(t *table) error {
	for i, f := range t.Find {
		if f.Type == "" {
			return c.entry("find", i, errors.New("type is required"))
		}
		sev, err := rewrite.ParseOutcome(f.Severity)
		if err != nil {
			return c.entry("find", i, err)
		}
		if !sev.Incompatible() {
			return c.entry("find", i, fmt.Errorf("severity must be warning or fatal, got %s", sev))
		}
		c.add(func() (rewrite.Rule, error) {
			if len(f.Members) > 0 {
				return rules.NewMemberFinder(f.Type, f.Members, sev, f.Message)
			}
			return rules.NewTypeFinder(f.Type, sev, f.Message)
		})
	}
	return nil
}

func (c *compiler) missing(t *table) error {
	if t.Missing == nil {
		return nil
	}
	scopes := append([]string(nil), t.Missing.Scopes...)
	if len(scopes) == 0 {
		scopes = c.cat.Scopes()
	}
	c.add(func() (rewrite.Rule, error) { return rules.NewMissingReferenceFinder(scopes...), nil })
	return nil
}

// Build returns a fresh, ordered set of rule instances.
func (s *Set) Build() ([]rewrite.Rule, error) {
	out := make([]rewrite.Rule, 0, len(s.builders))
	for _, b := range s.builders {
		r, err := b()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", s.Path, err)
		}
		out = append(out, r)
	}
	return out, nil
}

// Len is the number of rules Build returns.
func (s *Set) Len() int { return len(s.builders) }

// Guard returns an access guard over the reserved namespaces.
func (s *Set) Guard() *guard.Guard { return guard.New(s.Reserved...) }
