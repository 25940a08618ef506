package rules

import (
	"fmt"

	"modpatch/internal/match"
	"modpatch/internal/meta"
	"modpatch/internal/rewrite"
)

// MemberReplace points references to a renamed or moved member at its
// current location. The instruction keeps its opcode; only the operand is
// swapped.
type MemberReplace struct {
	matcher *match.TypeMatcher
	toType  *meta.TypeRef
	toName  string
	field   bool
}

// NewMethodReplace rewrites calls to typeName::name into calls to
// toType::toName. A nil toType keeps the declaring type; an empty toName
// keeps the name.
func NewMethodReplace(typeName, name string, toType *meta.TypeRef, toName string) *MemberReplace {
	return &MemberReplace{
		matcher: match.Type(typeName, match.Members(name), match.Methods()),
		toType:  toType,
		toName:  toName,
	}
}

// NewFieldReplace is NewMethodReplace for field accesses.
func NewFieldReplace(typeName, name string, toType *meta.TypeRef, toName string) *MemberReplace {
	return &MemberReplace{
		matcher: match.Type(typeName, match.Members(name), match.Fields()),
		toType:  toType,
		toName:  toName,
		field:   true,
	}
}

func (r *MemberReplace) Name() string {
	to := r.toName
	if r.toType != nil {
		to = r.toType.FullName() + "::" + to
	}
	return "replace-member " + r.matcher.Name() + " -> " + to
}

func (r *MemberReplace) Matchers() []match.Matcher { return []match.Matcher{r.matcher} }

func (r *MemberReplace) RewriteSignature(*rewrite.Context, *rewrite.TypeSite) (rewrite.Outcome, error) {
	return rewrite.Unchanged, nil
}

func (r *MemberReplace) RewriteInstruction(ctx *rewrite.Context, site *rewrite.InstructionSite) (rewrite.Outcome, error) {
	switch op := site.Instruction.Operand.(type) {
	case *meta.MethodRef:
		if r.field || !r.matcher.Matches(op) {
			return rewrite.Unchanged, nil
		}
		return r.method(ctx, site, op)
	case *meta.FieldRef:
		if !r.field || !r.matcher.Matches(op) {
			return rewrite.Unchanged, nil
		}
		return r.fieldRef(ctx, site, op)
	default:
		return rewrite.Unchanged, nil
	}
}

func (r *MemberReplace) method(ctx *rewrite.Context, site *rewrite.InstructionSite, mr *meta.MethodRef) (rewrite.Outcome, error) {
	out := mr.Copy()
	r.retarget(&out.DeclaringType, &out.Name)
	if sameMember(out.DeclaringType, out.Name, mr.DeclaringType, mr.Name) {
		return rewrite.Unchanged, nil
	}
	if _, ok := ctx.Catalog.ResolveMethod(out); !ok {
		ctx.Explain("%s: replacement %s is not provided by the host", mr.FullName(), out.FullName())
		return rewrite.Fatal, nil
	}
	imported, err := ctx.Module.ImportMethod(out)
	if err != nil {
		return rewrite.Unchanged, ctx.Defect(rewrite.DefectBadImport, fmt.Errorf("replacement for %s: %w", mr.FullName(), err))
	}
	if imported == mr {
		return rewrite.Unchanged, nil
	}
	site.Replace(imported)
	return rewrite.Rewritten, nil
}

func (r *MemberReplace) fieldRef(ctx *rewrite.Context, site *rewrite.InstructionSite, fr *meta.FieldRef) (rewrite.Outcome, error) {
	out := fr.Copy()
	r.retarget(&out.DeclaringType, &out.Name)
	if sameMember(out.DeclaringType, out.Name, fr.DeclaringType, fr.Name) {
		return rewrite.Unchanged, nil
	}
	if _, ok := ctx.Catalog.ResolveField(out); !ok {
		ctx.Explain("%s: replacement %s is not provided by the host", fr.FullName(), out.FullName())
		return rewrite.Fatal, nil
	}
	imported, err := ctx.Module.ImportField(out)
	if err != nil {
		return rewrite.Unchanged, ctx.Defect(rewrite.DefectBadImport, fmt.Errorf("replacement for %s: %w", fr.FullName(), err))
	}
	if imported == fr {
		return rewrite.Unchanged, nil
	}
	site.Replace(imported)
	return rewrite.Rewritten, nil
}

func (r *MemberReplace) retarget(decl **meta.TypeRef, name *string) {
	if r.toType != nil {
		*decl = r.toType
	}
	if r.toName != "" {
		*name = r.toName
	}
}

func sameMember(declA *meta.TypeRef, nameA string, declB *meta.TypeRef, nameB string) bool {
	return nameA == nameB && declA.Scope == declB.Scope && meta.Equal(declA, declB)
}
