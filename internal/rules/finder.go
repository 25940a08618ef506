package rules

import (
	"fmt"

	"modpatch/internal/match"
	"modpatch/internal/meta"
	"modpatch/internal/rewrite"
)

// Finder flags uses of a known incompatible type or member without
// changing anything.
type Finder struct {
	name     string
	matcher  match.Matcher
	severity rewrite.Outcome
	message  string
}

// NewTypeFinder reports every reference to typeName, nested ones included.
func NewTypeFinder(typeName string, severity rewrite.Outcome, message string) (*Finder, error) {
	return newFinder("find-type "+typeName, match.Type(typeName), severity, message)
}

// NewMemberFinder reports references to the named members of typeName.
func NewMemberFinder(typeName string, members []string, severity rewrite.Outcome, message string) (*Finder, error) {
	m := match.Type(typeName, match.Members(members...))
	return newFinder("find-member "+m.Name(), m, severity, message)
}

func newFinder(name string, m match.Matcher, severity rewrite.Outcome, message string) (*Finder, error) {
	if !severity.Incompatible() {
		return nil, fmt.Errorf("%s: severity must be warning or fatal, got %s", name, severity)
	}
	return &Finder{name: name, matcher: m, severity: severity, message: message}, nil
}

func (f *Finder) Name() string { return f.name }

func (f *Finder) Matchers() []match.Matcher { return []match.Matcher{f.matcher} }

func (f *Finder) RewriteSignature(ctx *rewrite.Context, site *rewrite.TypeSite) (rewrite.Outcome, error) {
	return f.report(ctx, site.Ref()), nil
}

func (f *Finder) RewriteInstruction(ctx *rewrite.Context, site *rewrite.InstructionSite) (rewrite.Outcome, error) {
	ref, ok := site.Instruction.RefOperand()
	if !ok {
		return rewrite.Unchanged, nil
	}
	return f.report(ctx, ref), nil
}

func (f *Finder) report(ctx *rewrite.Context, ref meta.Ref) rewrite.Outcome {
	if ref == nil || !rewrite.Mentions(f.matcher, ref) {
		return rewrite.Unchanged
	}
	if f.message != "" {
		ctx.Explain("%s: %s", ref.FullName(), f.message)
	} else {
		ctx.Explain("%s is not supported by this host", ref.FullName())
	}
	return f.severity
}
