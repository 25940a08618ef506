package rewrite

import (
	"errors"
	"fmt"

	"modpatch/internal/facade"
	"modpatch/internal/host"
	"modpatch/internal/match"
	"modpatch/internal/meta"
	"modpatch/internal/trace"
)

// DefaultMaxSiteIterations bounds how often the rule list is re-run on a
// site that keeps changing.
const DefaultMaxSiteIterations = 4

// Options configures a Dispatcher.
type Options struct {
	// PlatformVariant enables rules that only apply to modules built for
	// another platform variant of the host.
	PlatformVariant   bool
	MaxSiteIterations int
	Catalog           *host.Catalog
	Facades           *facade.Registry
	Tracer            trace.Tracer
}

// Dispatcher runs an ordered rule list over every site of a module.
// A Dispatcher may be reused for several modules, one at a time.
type Dispatcher struct {
	rules []Rule
	opts  Options
}

// NewDispatcher keeps the rules that are eligible under opts, in order.
func NewDispatcher(rules []Rule, opts Options) *Dispatcher {
	if opts.MaxSiteIterations <= 0 {
		opts.MaxSiteIterations = DefaultMaxSiteIterations
	}
	if opts.Tracer == nil {
		opts.Tracer = trace.Nop
	}
	active := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if ps, ok := r.(PlatformScoped); ok && ps.PlatformVariantOnly() && !opts.PlatformVariant {
			continue
		}
		active = append(active, r)
	}
	return &Dispatcher{rules: active, opts: opts}
}

// Rules returns the active rules in run order.
func (d *Dispatcher) Rules() []Rule {
	return append([]Rule(nil), d.rules...)
}

// Rewrite mutates mod in place. Incompatibilities are reported through
// the result; the error is non-nil only for malformed input or a defect,
// in which case mod must be discarded.
func (d *Dispatcher) Rewrite(mod *meta.Module) (*ModuleResult, error) {
	if mod == nil {
		return nil, fmt.Errorf("%w: nil module", ErrInvalidInput)
	}
	if err := meta.Validate(mod); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	ctx := newContext(mod, d.opts.Catalog, d.opts.Facades, d.opts.Tracer)
	span := trace.Begin(ctx.tracer, trace.ScopeModule, "rewrite "+mod.Name, 0)
	res := &ModuleResult{Module: mod.Name}

	err := d.rewriteModule(ctx, span.ID(), mod, res)
	if err == nil {
		err = d.check(ctx, mod)
	}
	if err != nil {
		trace.Point(ctx.tracer, trace.ScopeError, "defect", err.Error(), span.ID())
		span.End("defect")
		return nil, err
	}
	span.WithExtra("outcome", res.Outcome.String()).End("")
	return res, nil
}

func (d *Dispatcher) rewriteModule(ctx *Context, parent uint64, mod *meta.Module, res *ModuleResult) error {
	ctx.parent = parent
	for _, t := range mod.AllTypes() {
		typeName := t.FullName()
		tr := MethodResult{Type: typeName}
		if err := d.typeSites(ctx, t, &tr); err != nil {
			return err
		}
		res.add(tr)

		for _, m := range t.Methods {
			mr := MethodResult{Type: typeName, Method: m.Name}
			span := trace.Begin(ctx.tracer, trace.ScopeMethod, mr.Name(), parent)
			ctx.parent = span.ID()
			err := d.methodSites(ctx, typeName+"::"+m.Name, m, &mr)
			span.WithExtra("outcome", mr.Outcome.String()).End("")
			if err != nil {
				return err
			}
			res.add(mr)
		}
		ctx.parent = parent
	}
	return nil
}

func (d *Dispatcher) typeSites(ctx *Context, t *meta.TypeDef, res *MethodResult) error {
	owner := t.FullName()
	var sites []*TypeSite
	if t.BaseType != nil {
		sites = append(sites, newTypeSite(SiteBaseType, owner, 0, "", &t.BaseType))
	}
	for i := range t.Interfaces {
		sites = append(sites, newTypeSite(SiteInterface, owner, i, "", &t.Interfaces[i]))
	}
	sites = appendConstraintSites(sites, SiteTypeConstraint, owner, t.GenericParams)
	for _, f := range t.Fields {
		sites = append(sites, newTypeSite(SiteFieldType, owner, 0, f.Name, &f.Type))
	}
	for _, s := range sites {
		if err := d.signatureSite(ctx, s, res); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) methodSites(ctx *Context, owner string, m *meta.MethodDef, res *MethodResult) error {
	sites := []*TypeSite{newTypeSite(SiteReturn, owner, 0, "", &m.Return)}
	for i, p := range m.Params {
		sites = append(sites, newTypeSite(SiteParam, owner, i, p.Name, &p.Type))
	}
	sites = appendConstraintSites(sites, SiteMethodConstraint, owner, m.GenericParams)
	if m.Body != nil {
		for _, l := range m.Body.Locals {
			sites = append(sites, newTypeSite(SiteLocal, owner, l.Index, "", &l.Type))
		}
	}
	for _, s := range sites {
		if err := d.signatureSite(ctx, s, res); err != nil {
			return err
		}
	}
	if m.Body == nil {
		return nil
	}
	for i, in := range m.Body.Instructions {
		if _, ok := in.RefOperand(); !ok {
			continue
		}
		site := &InstructionSite{Method: owner, Index: i, Instruction: in}
		if err := d.instructionSite(ctx, m.Body, site, res); err != nil {
			return err
		}
	}
	return nil
}

func appendConstraintSites(sites []*TypeSite, kind SiteKind, owner string, params []*meta.GenericParam) []*TypeSite {
	for _, p := range params {
		for j := range p.Constraints {
			sites = append(sites, newTypeSite(kind, owner, j, p.Name, &p.Constraints[j]))
		}
	}
	return sites
}

// siteLog collects one result per rule for a site across iterations.
type siteLog struct {
	site     string
	kind     SiteKind
	original string
	results  []SiteResult
}

func (l *siteLog) record(rule string, o Outcome, note string) {
	if o == Unchanged && note == "" {
		return
	}
	for i := range l.results {
		r := &l.results[i]
		if r.Rule != rule {
			continue
		}
		r.Outcome = Worst(r.Outcome, o)
		if note != "" {
			r.Message = note
		}
		return
	}
	l.results = append(l.results, SiteResult{
		Site:     l.site,
		Kind:     l.kind,
		Rule:     rule,
		Outcome:  o,
		Original: l.original,
		Message:  note,
	})
}

func (l *siteLog) flush(res *MethodResult, final string) {
	for _, r := range l.results {
		if r.Outcome == Rewritten && final != r.Original {
			r.Replacement = final
		}
		res.add(r)
	}
}

func (d *Dispatcher) signatureSite(ctx *Context, site *TypeSite, res *MethodResult) error {
	if site.Ref() == nil {
		return nil
	}
	log := &siteLog{site: site.String(), kind: site.Kind, original: site.Ref().FullName()}
	err := d.iterate(ctx, func() (bool, error) {
		changed := false
		for _, r := range d.rules {
			if !offered(r, site.Ref()) {
				continue
			}
			ctx.enter(r.Name(), log.site)
			o, err := r.RewriteSignature(ctx, site)
			if err != nil {
				return false, ctx.wrap(err)
			}
			log.record(r.Name(), o, ctx.takeNotes())
			changed = changed || o == Rewritten
		}
		return changed, nil
	})
	if err != nil {
		return err
	}
	final := site.Ref().FullName()
	d.traceSite(ctx, log, final)
	log.flush(res, final)
	return nil
}

func (d *Dispatcher) instructionSite(ctx *Context, body *meta.Body, site *InstructionSite, res *MethodResult) error {
	ref, _ := site.Instruction.RefOperand()
	log := &siteLog{site: site.String(), kind: SiteInstruction, original: ref.FullName()}
	count := len(body.Instructions)
	err := d.iterate(ctx, func() (bool, error) {
		changed := false
		for _, r := range d.rules {
			operand, ok := site.Instruction.RefOperand()
			if !ok || !offered(r, operand) {
				continue
			}
			ctx.enter(r.Name(), log.site)
			op := site.Instruction.Op
			o, err := r.RewriteInstruction(ctx, site)
			if err != nil {
				return false, ctx.wrap(err)
			}
			if site.Instruction.Op != op || len(body.Instructions) != count || body.Instructions[site.Index] != site.Instruction {
				return false, ctx.Defect(DefectOpcodeChanged, fmt.Errorf("%w: %s at IL_%04x", ErrOpcodeChanged, op, site.Index))
			}
			log.record(r.Name(), o, ctx.takeNotes())
			changed = changed || o == Rewritten
		}
		return changed, nil
	})
	if err != nil {
		return err
	}
	final := log.original
	if ref, ok := site.Instruction.RefOperand(); ok {
		final = ref.FullName()
	}
	d.traceSite(ctx, log, final)
	log.flush(res, final)
	return nil
}

// iterate re-runs pass while it reports a change, up to the iteration cap.
func (d *Dispatcher) iterate(ctx *Context, pass func() (bool, error)) error {
	for i := 1; ; i++ {
		changed, err := pass()
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		if i >= d.opts.MaxSiteIterations {
			return ctx.Defect(DefectRewriteLoop, fmt.Errorf("%w after %d iterations", ErrRewriteLoop, i))
		}
	}
}

func (d *Dispatcher) traceSite(ctx *Context, log *siteLog, final string) {
	if !ctx.tracer.Enabled() {
		return
	}
	for _, r := range log.results {
		detail := r.Rule + ": " + log.original
		if r.Outcome == Rewritten {
			detail += " -> " + final
		}
		if r.Message != "" {
			detail += " (" + r.Message + ")"
		}
		trace.Point(ctx.tracer, trace.ScopeSite, r.Outcome.String()+" "+log.site, detail, ctx.parent)
	}
}

// check runs the post-pass invariants: no facade is constructed and the
// module is still well formed.
func (d *Dispatcher) check(ctx *Context, mod *meta.Module) error {
	for _, t := range mod.AllTypes() {
		for _, m := range t.Methods {
			if m.Body == nil {
				continue
			}
			for i, in := range m.Body.Instructions {
				if in.Op != meta.OpNewObj {
					continue
				}
				ctor, ok := in.Operand.(*meta.MethodRef)
				if !ok || !ctx.Facades.IsFacade(ctor.DeclaringType) {
					continue
				}
				return &DefectError{
					Kind:   DefectFacadeConstructed,
					Module: mod.Name,
					Site:   (&InstructionSite{Method: t.FullName() + "::" + m.Name, Index: i, Instruction: in}).String(),
					Err:    fmt.Errorf("%w: %s", facade.ErrFacadeConstructed, ctor.DeclaringType.FullName()),
				}
			}
		}
	}
	if err := meta.Validate(mod); err != nil {
		return &DefectError{Kind: DefectInvalidModule, Module: mod.Name, Err: err}
	}
	return nil
}

// wrap turns a rule error into a defect attributed to the current site.
func (c *Context) wrap(err error) error {
	var d *DefectError
	if errors.As(err, &d) {
		if d.Module == "" {
			d.Module = c.Module.Name
		}
		if d.Rule == "" {
			d.Rule = c.rule
		}
		if d.Site == "" {
			d.Site = c.site
		}
		return d
	}
	kind := DefectRuleFailed
	if errors.Is(err, meta.ErrBadImport) {
		kind = DefectBadImport
	}
	return c.Defect(kind, err)
}

// offered reports whether r wants to see ref.
func offered(r Rule, ref meta.Ref) bool {
	ms := r.Matchers()
	if len(ms) == 0 {
		return true
	}
	for _, m := range ms {
		if Mentions(m, ref) {
			return true
		}
	}
	return false
}

// Mentions reports whether m matches ref or any reference nested in it.
func Mentions(m match.Matcher, ref meta.Ref) bool {
	seen := make(map[*meta.GenericParam]bool)
	var typ func(t *meta.TypeRef, depth int) bool
	typ = func(t *meta.TypeRef, depth int) bool {
		if t == nil || depth > 64 {
			return false
		}
		if m.Matches(t) {
			return true
		}
		switch t.Kind {
		case meta.RefGenericInst:
			for _, a := range t.Args {
				if typ(a, depth+1) {
					return true
				}
			}
		case meta.RefArray, meta.RefByRef:
			return typ(t.Elem, depth+1)
		case meta.RefGenericParam:
			if t.Param == nil || seen[t.Param] {
				return false
			}
			seen[t.Param] = true
			for _, c := range t.Param.Constraints {
				if typ(c, depth+1) {
					return true
				}
			}
		}
		return false
	}
	switch r := ref.(type) {
	case *meta.TypeRef:
		return typ(r, 0)
	case *meta.FieldRef:
		return m.Matches(r) || typ(r.DeclaringType, 0) || typ(r.Type, 0)
	case *meta.MethodRef:
		if m.Matches(r) || typ(r.DeclaringType, 0) || typ(r.Return, 0) {
			return true
		}
		for _, p := range r.Params {
			if typ(p, 0) {
				return true
			}
		}
		for _, a := range r.GenericArgs {
			if typ(a, 0) {
				return true
			}
		}
	}
	return false
}
