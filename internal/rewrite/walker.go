package rewrite

import (
	"fmt"
	"slices"

	"modpatch/internal/match"
	"modpatch/internal/meta"
)

// Walker replaces every reference a matcher identifies with Replacement,
// descending into generic arguments, generic parameter constraints and
// array or byref elements.
//
// Results are memoized per pass by reference identity, so aliased or
// self-referencing graphs are visited once and walking the output again
// reports Unchanged.
type Walker struct {
	Matcher     match.Matcher
	Replacement *meta.TypeRef
	// Map derives the replacement from the matched reference when
	// Replacement is nil.
	Map func(ref *meta.TypeRef) *meta.TypeRef
	// ShouldRewrite vetoes individual matches; nil accepts every match.
	ShouldRewrite func(ref meta.Ref) bool
}

// NewWalker returns a walker replacing matches of m with replacement.
func NewWalker(m match.Matcher, replacement *meta.TypeRef) *Walker {
	return &Walker{Matcher: m, Replacement: replacement}
}

// Walk returns the reference to store where ref was found together with
// the outcome. The returned reference equals ref when nothing changed or
// when the change was applied in place.
func (w *Walker) Walk(ctx *Context, ref *meta.TypeRef) (*meta.TypeRef, Outcome, error) {
	if ref == nil {
		return nil, Unchanged, nil
	}
	key := memoKey{walker: w, ref: ref}
	if e, ok := ctx.memo[key]; ok {
		if !e.done {
			// cycle through constraints: the outer visit owns the result
			return ref, Unchanged, nil
		}
		return e.out.(*meta.TypeRef), revisit(ctx, e), nil
	}
	e := &memoEntry{}
	ctx.memo[key] = e

	mark := len(ctx.notes)
	out, outcome, err := w.walk(ctx, ref)
	if err != nil {
		delete(ctx.memo, key)
		return nil, Unchanged, err
	}
	note := ""
	if len(ctx.notes) > mark {
		note = ctx.notes[len(ctx.notes)-1]
	}
	// a placeholder is never edited itself, only its parameter's constraints
	e.finish(ctx, out, outcome, note, outcome == Rewritten && ref.Kind != meta.RefGenericParam)
	return out, outcome, nil
}

// revisit reports a memoized result. A changed node is Rewritten once for
// every site that holds it, whether it was replaced or edited in place;
// the same site seeing it again has settled.
func revisit(ctx *Context, e *memoEntry) Outcome {
	if e.outcome >= Warning {
		if e.note != "" {
			ctx.Explain("%s", e.note)
		}
		return e.outcome
	}
	if !e.changed || e.credited[ctx.site] {
		return Unchanged
	}
	e.credited[ctx.site] = true
	return Rewritten
}

func (w *Walker) walk(ctx *Context, ref *meta.TypeRef) (*meta.TypeRef, Outcome, error) {
	if w.Matcher.Matches(ref) && (w.ShouldRewrite == nil || w.ShouldRewrite(ref)) {
		return w.replace(ctx, ref)
	}
	switch ref.Kind {
	case meta.RefGenericInst:
		return w.walkArgs(ctx, ref)
	case meta.RefGenericParam:
		outcome, err := w.walkParam(ctx, ref.Param)
		return ref, outcome, err
	case meta.RefArray, meta.RefByRef:
		elem, outcome, err := w.Walk(ctx, ref.Elem)
		if err != nil || elem == ref.Elem {
			return ref, outcome, err
		}
		if !ctx.Module.IsImported(ref) {
			ref.Elem = elem
			return ref, outcome, nil
		}
		cp := *ref
		cp.Elem = elem
		return w.reimport(ctx, ref, &cp, outcome)
	default:
		return ref, Unchanged, nil
	}
}

func (w *Walker) replace(ctx *Context, ref *meta.TypeRef) (*meta.TypeRef, Outcome, error) {
	target := w.Replacement
	if target == nil && w.Map != nil {
		target = w.Map(ref)
	}
	if target == nil {
		return nil, Unchanged, ctx.Defect(DefectRuleFailed, fmt.Errorf("no replacement for %s", ref.FullName()))
	}
	outcome := Rewritten
	if ref.Kind == meta.RefGenericInst && target.Kind == meta.RefNamed {
		args := make([]*meta.TypeRef, len(ref.Args))
		for i, a := range ref.Args {
			na, o, err := w.Walk(ctx, a)
			if err != nil {
				return nil, Unchanged, err
			}
			args[i] = na
			outcome = Worst(outcome, o)
		}
		target = &meta.TypeRef{
			Kind:      meta.RefGenericInst,
			Scope:     target.Scope,
			Namespace: target.Namespace,
			Name:      target.Name,
			Args:      args,
		}
	}
	if !ctx.Catalog.ResolveType(target) {
		ctx.Explain("%s: replacement %s is not provided by the host", ref.FullName(), target.FullName())
		return ref, Fatal, nil
	}
	h, err := ctx.Module.Import(target)
	if err != nil {
		return nil, Unchanged, ctx.Defect(DefectBadImport, fmt.Errorf("replacement for %s: %w", ref.FullName(), err))
	}
	if h == ref {
		return ref, Unchanged, nil
	}
	return h, outcome, nil
}

func (w *Walker) walkArgs(ctx *Context, ref *meta.TypeRef) (*meta.TypeRef, Outcome, error) {
	outcome := Unchanged
	var changed []*meta.TypeRef
	for i, a := range ref.Args {
		na, o, err := w.Walk(ctx, a)
		if err != nil {
			return nil, Unchanged, err
		}
		outcome = Worst(outcome, o)
		if na == a {
			continue
		}
		if changed == nil {
			changed = slices.Clone(ref.Args)
		}
		changed[i] = na
	}
	if changed == nil {
		return ref, outcome, nil
	}
	if !ctx.Module.IsImported(ref) {
		copy(ref.Args, changed)
		return ref, outcome, nil
	}
	cp := *ref
	cp.Args = changed
	return w.reimport(ctx, ref, &cp, outcome)
}

// reimport registers a changed copy of an import handle. Handles are shared
// between sites and are never edited in place.
func (w *Walker) reimport(ctx *Context, orig, changed *meta.TypeRef, outcome Outcome) (*meta.TypeRef, Outcome, error) {
	h, err := ctx.Module.Import(changed)
	if err != nil {
		return nil, Unchanged, ctx.Defect(DefectBadImport, fmt.Errorf("rewritten %s: %w", orig.FullName(), err))
	}
	return h, outcome, nil
}

func (w *Walker) walkParam(ctx *Context, p *meta.GenericParam) (Outcome, error) {
	if p == nil {
		return Unchanged, nil
	}
	key := memoKey{walker: w, ref: p}
	if e, ok := ctx.memo[key]; ok {
		if !e.done {
			return Unchanged, nil
		}
		return revisit(ctx, e), nil
	}
	e := &memoEntry{}
	ctx.memo[key] = e
	outcome := Unchanged
	for i, c := range p.Constraints {
		nc, o, err := w.Walk(ctx, c)
		if err != nil {
			delete(ctx.memo, key)
			return Unchanged, err
		}
		p.Constraints[i] = nc
		outcome = Worst(outcome, o)
	}
	e.finish(ctx, nil, outcome, "", false)
	return outcome, nil
}

// WalkField applies the walker to the declaring type and field type of f.
// A changed reference is returned as a copy; f itself is never edited.
func (w *Walker) WalkField(ctx *Context, f *meta.FieldRef) (*meta.FieldRef, Outcome, error) {
	if f == nil {
		return nil, Unchanged, nil
	}
	key := memoKey{walker: w, ref: f}
	if e, ok := ctx.memo[key]; ok && e.done {
		return e.out.(*meta.FieldRef), revisit(ctx, e), nil
	}
	decl, o1, err := w.Walk(ctx, f.DeclaringType)
	if err != nil {
		return nil, Unchanged, err
	}
	typ, o2, err := w.Walk(ctx, f.Type)
	if err != nil {
		return nil, Unchanged, err
	}
	out := f
	if decl != f.DeclaringType || typ != f.Type {
		out = f.Copy()
		out.DeclaringType = decl
		out.Type = typ
	}
	outcome := Worst(o1, o2)
	e := &memoEntry{}
	e.finish(ctx, out, outcome, lastNote(ctx), outcome == Rewritten)
	ctx.memo[key] = e
	return out, outcome, nil
}

// WalkMethod applies the walker to every type slot of mr: declaring type,
// return type, parameters and generic arguments. A changed reference is
// returned as a copy.
func (w *Walker) WalkMethod(ctx *Context, mr *meta.MethodRef) (*meta.MethodRef, Outcome, error) {
	if mr == nil {
		return nil, Unchanged, nil
	}
	key := memoKey{walker: w, ref: mr}
	if e, ok := ctx.memo[key]; ok && e.done {
		return e.out.(*meta.MethodRef), revisit(ctx, e), nil
	}
	outcome := Unchanged
	var out *meta.MethodRef
	slot := func(cur *meta.TypeRef, set func(*meta.MethodRef, *meta.TypeRef)) error {
		n, o, err := w.Walk(ctx, cur)
		if err != nil {
			return err
		}
		outcome = Worst(outcome, o)
		if n != cur {
			if out == nil {
				out = mr.Copy()
			}
			set(out, n)
		}
		return nil
	}
	if err := slot(mr.DeclaringType, func(m *meta.MethodRef, t *meta.TypeRef) { m.DeclaringType = t }); err != nil {
		return nil, Unchanged, err
	}
	if err := slot(mr.Return, func(m *meta.MethodRef, t *meta.TypeRef) { m.Return = t }); err != nil {
		return nil, Unchanged, err
	}
	for i, p := range mr.Params {
		if err := slot(p, func(m *meta.MethodRef, t *meta.TypeRef) { m.Params[i] = t }); err != nil {
			return nil, Unchanged, err
		}
	}
	for i, a := range mr.GenericArgs {
		if err := slot(a, func(m *meta.MethodRef, t *meta.TypeRef) { m.GenericArgs[i] = t }); err != nil {
			return nil, Unchanged, err
		}
	}
	if out == nil {
		out = mr
	}
	e := &memoEntry{}
	e.finish(ctx, out, outcome, lastNote(ctx), outcome == Rewritten)
	ctx.memo[key] = e
	return out, outcome, nil
}

// WalkOperand dispatches on the operand shape of an instruction.
func (w *Walker) WalkOperand(ctx *Context, operand any) (any, Outcome, error) {
	switch op := operand.(type) {
	case *meta.TypeRef:
		return w.Walk(ctx, op)
	case *meta.FieldRef:
		return w.WalkField(ctx, op)
	case *meta.MethodRef:
		return w.WalkMethod(ctx, op)
	default:
		return operand, Unchanged, nil
	}
}

func lastNote(ctx *Context) string {
	if len(ctx.notes) == 0 {
		return ""
	}
	return ctx.notes[len(ctx.notes)-1]
}
