package rewrite

import (
	"fmt"
	"strings"

	"modpatch/internal/facade"
	"modpatch/internal/host"
	"modpatch/internal/match"
	"modpatch/internal/meta"
	"modpatch/internal/trace"
)

// Rule is one compatibility rewrite. Implementations must be idempotent:
// running a rule over its own output reports Unchanged. The error return
// is reserved for defects; incompatibilities are outcomes.
type Rule interface {
	Name() string
	// Matchers pre-filters the sites the rule is offered. A rule with no
	// matchers is offered every site.
	Matchers() []match.Matcher
	RewriteSignature(ctx *Context, site *TypeSite) (Outcome, error)
	RewriteInstruction(ctx *Context, site *InstructionSite) (Outcome, error)
}

// PlatformScoped is implemented by rules that only apply to modules built
// for a different platform variant of the host.
type PlatformScoped interface {
	PlatformVariantOnly() bool
}

// Context is handed to rules for every site of one pass. It is not safe
// for concurrent use.
type Context struct {
	Module  *meta.Module
	Catalog *host.Catalog
	Facades *facade.Registry

	tracer trace.Tracer
	parent uint64
	rule   string
	site   string
	notes  []string
	memo   map[memoKey]*memoEntry
}

type memoKey struct {
	walker *Walker
	ref    any
}

type memoEntry struct {
	out     any
	outcome Outcome
	note    string
	done    bool

	// changed marks a node rewritten in place or replaced; credited
	// holds the sites that already reported it.
	changed  bool
	credited map[string]bool
}

func (e *memoEntry) finish(ctx *Context, out any, outcome Outcome, note string, changed bool) {
	e.out, e.outcome, e.done, e.note = out, outcome, true, note
	e.changed = changed
	if changed {
		e.credited = map[string]bool{ctx.site: true}
	}
}

func newContext(mod *meta.Module, cat *host.Catalog, facades *facade.Registry, tracer trace.Tracer) *Context {
	if cat == nil {
		cat = host.NewCatalog()
	}
	if facades == nil {
		facades = facade.NewRegistry()
	}
	if tracer == nil {
		tracer = trace.Nop
	}
	return &Context{
		Module:  mod,
		Catalog: cat,
		Facades: facades,
		tracer:  tracer,
		memo:    make(map[memoKey]*memoEntry),
	}
}

// Rule returns the name of the rule currently running.
func (c *Context) Rule() string { return c.rule }

// Site describes the site currently being rewritten.
func (c *Context) Site() string { return c.site }

// Explain attaches a message to the current site's result.
func (c *Context) Explain(format string, args ...any) {
	c.notes = append(c.notes, fmt.Sprintf(format, args...))
}

// Defect builds a defect for the current rule and site.
func (c *Context) Defect(kind DefectKind, err error) *DefectError {
	return &DefectError{Kind: kind, Module: c.Module.Name, Rule: c.rule, Site: c.site, Err: err}
}

func (c *Context) enter(rule, site string) {
	c.rule = rule
	c.site = site
	c.notes = c.notes[:0]
}

func (c *Context) takeNotes() string {
	if len(c.notes) == 0 {
		return ""
	}
	msg := strings.Join(c.notes, "; ")
	c.notes = c.notes[:0]
	return msg
}

// NewTestContext builds a context for exercising a rule outside a
// dispatcher run.
func NewTestContext(mod *meta.Module, cat *host.Catalog, facades *facade.Registry) *Context {
	return newContext(mod, cat, facades, nil)
}

// Notes returns the messages explained so far without clearing them.
func (c *Context) Notes() []string {
	return append([]string(nil), c.notes...)
}
