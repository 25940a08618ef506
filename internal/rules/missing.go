package rules

import (
	"slices"

	"modpatch/internal/host"
	"modpatch/internal/match"
	"modpatch/internal/meta"
	"modpatch/internal/rewrite"
)

// maxRefDepth bounds walks over malformed self-referencing graphs.
const maxRefDepth = 64

// MissingReferenceFinder reports references into host scopes that neither
// the host catalog nor a facade can satisfy. It runs last so that it sees
// what the other rules left behind.
type MissingReferenceFinder struct {
	scopes []string
}

// NewMissingReferenceFinder checks references into scopes; with no scopes
// it checks every host scope in the catalog.
func NewMissingReferenceFinder(scopes ...string) *MissingReferenceFinder {
	return &MissingReferenceFinder{scopes: scopes}
}

func (r *MissingReferenceFinder) Name() string { return "missing-reference" }

// Matchers is empty: every site is checked.
func (r *MissingReferenceFinder) Matchers() []match.Matcher { return nil }

func (r *MissingReferenceFinder) RewriteSignature(ctx *rewrite.Context, site *rewrite.TypeSite) (rewrite.Outcome, error) {
	if missing := r.firstMissing(ctx.Catalog, site.Ref(), 0); missing != nil {
		ctx.Explain("%s is missing from the host", missing.FullName())
		return rewrite.Fatal, nil
	}
	return rewrite.Unchanged, nil
}

func (r *MissingReferenceFinder) RewriteInstruction(ctx *rewrite.Context, site *rewrite.InstructionSite) (rewrite.Outcome, error) {
	switch op := site.Instruction.Operand.(type) {
	case *meta.TypeRef:
		if missing := r.firstMissing(ctx.Catalog, op, 0); missing != nil {
			ctx.Explain("%s is missing from the host", missing.FullName())
			return rewrite.Fatal, nil
		}
	case *meta.FieldRef:
		if r.typesMissing(ctx, op.DeclaringType, op.Type) {
			return rewrite.Fatal, nil
		}
		if r.checked(ctx.Catalog, op.DeclaringType) {
			_, ok := ctx.Catalog.ResolveField(op)
			if !ok && !ctx.Facades.ResolveField(op, ctx.Catalog) {
				ctx.Explain("field %s is missing from the host", op.FullName())
				return rewrite.Fatal, nil
			}
		}
	case *meta.MethodRef:
		slots := append([]*meta.TypeRef{op.DeclaringType, op.Return}, op.Params...)
		if r.typesMissing(ctx, append(slots, op.GenericArgs...)...) {
			return rewrite.Fatal, nil
		}
		if r.checked(ctx.Catalog, op.DeclaringType) {
			_, ok := ctx.Catalog.ResolveMethod(op)
			if !ok && !ctx.Facades.ResolveMethod(op, ctx.Catalog) {
				ctx.Explain("method %s is missing from the host", op.Signature())
				return rewrite.Fatal, nil
			}
		}
	}
	return rewrite.Unchanged, nil
}

func (r *MissingReferenceFinder) typesMissing(ctx *rewrite.Context, ts ...*meta.TypeRef) bool {
	for _, t := range ts {
		if missing := r.firstMissing(ctx.Catalog, t, 0); missing != nil {
			ctx.Explain("%s is missing from the host", missing.FullName())
			return true
		}
	}
	return false
}

// checked reports whether t lives in a scope this finder is responsible
// for.
func (r *MissingReferenceFinder) checked(cat *host.Catalog, t *meta.TypeRef) bool {
	if t == nil || !cat.Owns(t) {
		return false
	}
	for t.Kind == meta.RefArray || t.Kind == meta.RefByRef {
		t = t.Elem
	}
	return len(r.scopes) == 0 || slices.Contains(r.scopes, t.Scope)
}

func (r *MissingReferenceFinder) firstMissing(cat *host.Catalog, t *meta.TypeRef, depth int) *meta.TypeRef {
	if t == nil || depth > maxRefDepth {
		return nil
	}
	switch t.Kind {
	case meta.RefNamed, meta.RefGenericInst:
		if r.checked(cat, t) {
			def, scope, ok := cat.Type(t.DefinitionName())
			if !ok || scope != t.Scope {
				return t
			}
			if t.Kind == meta.RefGenericInst && len(def.GenericParams) != len(t.Args) {
				return t
			}
		}
		for _, a := range t.Args {
			if m := r.firstMissing(cat, a, depth+1); m != nil {
				return m
			}
		}
	case meta.RefArray, meta.RefByRef:
		return r.firstMissing(cat, t.Elem, depth+1)
	}
	return nil
}
