package rules

import (
	"modpatch/internal/match"
	"modpatch/internal/meta"
	"modpatch/internal/rewrite"
)

// TypeRename replaces every reference to one type with another, including
// references nested in generic arguments, constraints and element types.
type TypeRename struct {
	name         string
	matcher      match.Matcher
	walker       *rewrite.Walker
	platformOnly bool
}

// NewTypeRename returns a rule replacing matches of from with to.
func NewTypeRename(from *match.TypeMatcher, to *meta.TypeRef) *TypeRename {
	return &TypeRename{
		name:    "replace-type " + from.Name() + " -> " + to.FullName(),
		matcher: from,
		walker:  rewrite.NewWalker(from, to),
	}
}

// PlatformOnly restricts the rename to platform-variant modules.
func (r *TypeRename) PlatformOnly() *TypeRename {
	r.platformOnly = true
	return r
}

// When restricts the rename to matches accepted by pred. Declined matches
// are left in place but their generic arguments are still walked.
func (r *TypeRename) When(pred func(meta.Ref) bool) *TypeRename {
	r.walker.ShouldRewrite = pred
	return r
}

func (r *TypeRename) Name() string { return r.name }

func (r *TypeRename) Matchers() []match.Matcher { return []match.Matcher{r.matcher} }

// PlatformVariantOnly implements rewrite.PlatformScoped.
func (r *TypeRename) PlatformVariantOnly() bool { return r.platformOnly }

func (r *TypeRename) RewriteSignature(ctx *rewrite.Context, site *rewrite.TypeSite) (rewrite.Outcome, error) {
	return walkSignature(ctx, r.walker, site)
}

func (r *TypeRename) RewriteInstruction(ctx *rewrite.Context, site *rewrite.InstructionSite) (rewrite.Outcome, error) {
	return walkInstruction(ctx, r.walker, site)
}

// ScopeRetarget moves references from one scope to another without
// changing type names. It only applies to platform-variant modules, whose
// references point at the platform-specific host scope.
type ScopeRetarget struct {
	from, to string
	matcher  match.Matcher
	walker   *rewrite.Walker
}

// NewScopeRetarget returns a rule moving references from scope from to
// scope to.
func NewScopeRetarget(from, to string) *ScopeRetarget {
	m := match.Scope(from)
	w := &rewrite.Walker{
		Matcher: m,
		Map: func(ref *meta.TypeRef) *meta.TypeRef {
			return meta.Named(to, ref.DefinitionName())
		},
	}
	return &ScopeRetarget{from: from, to: to, matcher: m, walker: w}
}

func (r *ScopeRetarget) Name() string { return "retarget-scope " + r.from + " -> " + r.to }

func (r *ScopeRetarget) Matchers() []match.Matcher { return []match.Matcher{r.matcher} }

// PlatformVariantOnly implements rewrite.PlatformScoped.
func (r *ScopeRetarget) PlatformVariantOnly() bool { return true }

func (r *ScopeRetarget) RewriteSignature(ctx *rewrite.Context, site *rewrite.TypeSite) (rewrite.Outcome, error) {
	return walkSignature(ctx, r.walker, site)
}

func (r *ScopeRetarget) RewriteInstruction(ctx *rewrite.Context, site *rewrite.InstructionSite) (rewrite.Outcome, error) {
	return walkInstruction(ctx, r.walker, site)
}

func walkSignature(ctx *rewrite.Context, w *rewrite.Walker, site *rewrite.TypeSite) (rewrite.Outcome, error) {
	out, outcome, err := w.Walk(ctx, site.Ref())
	if err != nil {
		return rewrite.Unchanged, err
	}
	if out != site.Ref() {
		site.Set(out)
	}
	return outcome, nil
}

func walkInstruction(ctx *rewrite.Context, w *rewrite.Walker, site *rewrite.InstructionSite) (rewrite.Outcome, error) {
	out, outcome, err := w.WalkOperand(ctx, site.Instruction.Operand)
	if err != nil {
		return rewrite.Unchanged, err
	}
	if out != site.Instruction.Operand {
		site.Replace(out)
	}
	return outcome, nil
}
