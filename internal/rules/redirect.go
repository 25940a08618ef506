package rules

import (
	"fmt"

	"modpatch/internal/facade"
	"modpatch/internal/match"
	"modpatch/internal/meta"
	"modpatch/internal/rewrite"
)

// FacadeRedirect points method references on a host type at a facade that
// still offers the old shapes. Only the declaring type changes; name and
// signature stay as the mod compiled them. Constructors are never
// redirected since facades cannot be instantiated.
type FacadeRedirect struct {
	facade  *facade.Facade
	matcher *match.TypeMatcher
}

// NewFacadeRedirect redirects calls to the named members of the facade's
// host type, or to all of its methods when members is empty.
func NewFacadeRedirect(f *facade.Facade, members ...string) *FacadeRedirect {
	host := f.Substitutes()
	opts := []match.Option{match.Methods(), match.InScope(host.Scope)}
	if len(members) > 0 {
		opts = append(opts, match.Members(members...))
	}
	return &FacadeRedirect{
		facade:  f,
		matcher: match.Type(host.DefinitionName(), opts...),
	}
}

func (r *FacadeRedirect) Name() string {
	return "redirect " + r.matcher.Name() + " -> " + r.facade.Name()
}

func (r *FacadeRedirect) Matchers() []match.Matcher { return []match.Matcher{r.matcher} }

// RewriteSignature leaves signatures alone: values keep their host type
// and only member lookups go through the facade.
func (r *FacadeRedirect) RewriteSignature(*rewrite.Context, *rewrite.TypeSite) (rewrite.Outcome, error) {
	return rewrite.Unchanged, nil
}

func (r *FacadeRedirect) RewriteInstruction(ctx *rewrite.Context, site *rewrite.InstructionSite) (rewrite.Outcome, error) {
	mr, ok := site.Instruction.Operand.(*meta.MethodRef)
	if !ok || mr.IsCtor() || !r.matcher.Matches(mr) {
		return rewrite.Unchanged, nil
	}
	if mr.DeclaringType.Kind != meta.RefNamed {
		// facades are never generic; the instantiation's arguments would be lost
		ctx.Explain("%s: cannot redirect a call on %s to facade %s", mr.FullName(), mr.DeclaringType, r.facade.Name())
		return rewrite.Fatal, nil
	}
	redirected := mr.Copy()
	redirected.DeclaringType = r.facade.Ref()
	if !ctx.Facades.ResolveMethod(redirected, ctx.Catalog) {
		ctx.Explain("%s: facade %s offers no %s", mr.FullName(), r.facade.Name(), mr.Signature())
		return rewrite.Fatal, nil
	}
	decl, err := ctx.Module.Import(r.facade.Ref())
	if err != nil {
		return rewrite.Unchanged, ctx.Defect(rewrite.DefectBadImport, fmt.Errorf("facade %s: %w", r.facade.Name(), err))
	}
	redirected.DeclaringType = decl
	site.Replace(redirected)
	return rewrite.Rewritten, nil
}
