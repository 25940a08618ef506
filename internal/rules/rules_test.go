package rules

import (
	"errors"
	"strings"
	"testing"

	"modpatch/internal/facade"
	"modpatch/internal/host"
	"modpatch/internal/match"
	"modpatch/internal/meta"
	"modpatch/internal/meta/metatest"
	"modpatch/internal/rewrite"
)

func hostRef(name string) *meta.TypeRef { return meta.Named("Host", name) }

func batch() *meta.TypeRef { return hostRef("Game.Batch") }

func single() *meta.TypeRef { return meta.Named("System", "System.Single") }

// hostCatalog models a host where Game.OldType became Game.NewType,
// Renderer.Draw(Batch) became Render(Batch, Single) and Score.value became
// Score.points.
func hostCatalog() *host.Catalog {
	renderer := metatest.Class("Game.Renderer",
		metatest.Method("Render", metatest.Void(), batch(), single()),
		metatest.Method("Clear", metatest.Void()),
	)
	score := metatest.Class("Game.Score")
	score.Fields = []*meta.FieldDef{{Name: "points", Type: metatest.Int()}}
	cat := host.NewCatalog()
	cat.AddModule(metatest.Module("Host",
		metatest.Class("Game.NewType"),
		metatest.Class("Game.Batch"),
		metatest.Class("Game.Other"),
		renderer,
		score,
	))
	return cat
}

func oldDraw(decl *meta.TypeRef) *meta.MethodRef {
	return &meta.MethodRef{
		DeclaringType: decl,
		Name:          "Draw",
		HasThis:       true,
		Return:        metatest.Void(),
		Params:        []*meta.TypeRef{batch()},
	}
}

func rendererFacade(t *testing.T, cat *host.Catalog) (*facade.Facade, *facade.Registry) {
	t.Helper()
	render := &meta.MethodRef{
		DeclaringType: hostRef("Game.Renderer"),
		Name:          "Render",
		HasThis:       true,
		Return:        metatest.Void(),
		Params:        []*meta.TypeRef{batch(), single()},
	}
	f, err := facade.NewBuilder("Compat", "Compat.RendererFacade", hostRef("Game.Renderer")).
		Method(oldDraw(hostRef("Game.Renderer")), render).
		Build(cat)
	if err != nil {
		t.Fatalf("build facade: %v", err)
	}
	reg := facade.NewRegistry()
	if err := reg.Register(f); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Install(cat)
	return f, reg
}

func run(t *testing.T, mod *meta.Module, opts rewrite.Options, rules ...rewrite.Rule) *rewrite.ModuleResult {
	t.Helper()
	if opts.Catalog == nil {
		opts.Catalog = hostCatalog()
	}
	res, err := rewrite.NewDispatcher(rules, opts).Rewrite(mod)
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	return res
}

func TestRenameKeepsCallsBoundToOwnMethods(t *testing.T) {
	// Foo(OldType) is declared by the mod and called from Main; after the
	// rename both the declaration and the call must agree on NewType.
	foo := metatest.Method("Foo", metatest.Void(), hostRef("Game.OldType"))
	main := metatest.WithBody(metatest.Method("Main", metatest.Void()),
		metatest.Call(meta.Named("Mod", "Mod.Program"), "Foo", metatest.Void(), hostRef("Game.OldType")),
		metatest.Ins(meta.OpRet, nil),
	)
	program := metatest.Class("Mod.Program", foo, main)
	mod := metatest.Module("Mod", program)

	res := run(t, mod, rewrite.Options{}, NewTypeRename(match.Type("Game.OldType"), hostRef("Game.NewType")))

	call := main.Body.Instructions[0].Operand.(*meta.MethodRef)
	if foo.Params[0].Type.FullName() != "Game.NewType" || call.Params[0].FullName() != "Game.NewType" {
		t.Fatalf("declaration and call disagree:\n%s", meta.Dump(mod))
	}
	if !meta.SameShape(call, foo.RefOn(call.DeclaringType)) {
		t.Fatalf("call no longer binds to Foo: %s vs %s", call.Signature(), foo.RefOn(call.DeclaringType).Signature())
	}
	if main.Body.Instructions[0].Op != meta.OpCall {
		t.Fatalf("opcode changed")
	}
	if res.Outcome != rewrite.Rewritten {
		t.Fatalf("outcome = %s", res.Outcome)
	}
}

func TestRenameLeavesUnrelatedFieldRefsAlone(t *testing.T) {
	count := &meta.FieldRef{DeclaringType: hostRef("Game.Other"), Name: "count", Type: metatest.Int()}
	tick := metatest.WithBody(metatest.Method("Tick", metatest.Void(), hostRef("Game.OldType")),
		metatest.Ins(meta.OpLdArg, int64(0)),
		metatest.Ins(meta.OpLdFld, count),
		metatest.Ins(meta.OpPop, nil),
		metatest.Ins(meta.OpRet, nil),
	)
	mod := metatest.Module("Mod", metatest.Class("Mod.Program", tick))

	res := run(t, mod, rewrite.Options{}, NewTypeRename(match.Type("Game.OldType"), hostRef("Game.NewType")))

	if tick.Body.Instructions[1].Operand != count {
		t.Fatalf("unrelated field reference was replaced")
	}
	if count.DeclaringType.FullName() != "Game.Other" {
		t.Fatalf("unrelated field reference was edited")
	}
	mr, _ := res.Method("Mod.Program", "Tick")
	for _, s := range mr.Sites {
		if s.Kind == rewrite.SiteInstruction {
			t.Fatalf("no instruction should be reported: %+v", s)
		}
	}
}

func TestRenameWhenDeclinesOtherInstantiations(t *testing.T) {
	cat := hostCatalog()
	replacement := metatest.Class("Game.Replacement")
	replacement.GenericParams = []*meta.GenericParam{metatest.Param("Game.Replacement", "T", 0)}
	cat.AddModule(metatest.Module("Host", metatest.Class("Game.OldType"), replacement))

	ints := metatest.Method("Ints", metatest.Void(), meta.Generic(hostRef("Game.Target"), metatest.Int()))
	olds := metatest.Method("Olds", metatest.Void(), meta.Generic(hostRef("Game.Target"), hostRef("Game.OldType")))
	mod := metatest.Module("Mod", metatest.Class("Mod.Program", ints, olds))

	only := match.Type("Game.Target", match.Strict(hostRef("Game.OldType")))
	rule := NewTypeRename(match.Type("Game.Target"), hostRef("Game.Replacement")).When(only.Matches)
	res := run(t, mod, rewrite.Options{Catalog: cat}, rule)

	if got := ints.Params[0].Type.FullName(); got != "Game.Target<System.Int32>" {
		t.Fatalf("declined site was rewritten to %s", got)
	}
	if got := olds.Params[0].Type.FullName(); got != "Game.Replacement<Game.OldType>" {
		t.Fatalf("accepted site = %s", got)
	}
	if mr, ok := res.Method("Mod.Program", "Ints"); ok && mr.Outcome != rewrite.Unchanged {
		t.Fatalf("declined method outcome = %s", mr.Outcome)
	}
	mr, ok := res.Method("Mod.Program", "Olds")
	if !ok || mr.Outcome != rewrite.Rewritten {
		t.Fatalf("accepted method not rewritten: %+v", mr)
	}
}

func TestRenameIsIdempotent(t *testing.T) {
	list := meta.Named("System", "System.List")
	tick := metatest.WithLocals(metatest.Method("Tick", meta.Generic(list, hostRef("Game.OldType"))),
		meta.ByRefOf(hostRef("Game.OldType")),
	)
	mod := metatest.Module("Mod", metatest.Class("Mod.Program", tick))
	rule := NewTypeRename(match.Type("Game.OldType"), hostRef("Game.NewType"))

	first := run(t, mod, rewrite.Options{}, rule)
	dump := meta.Dump(mod)
	second := run(t, mod, rewrite.Options{}, rule)

	if first.Outcome != rewrite.Rewritten || second.Outcome != rewrite.Unchanged {
		t.Fatalf("outcomes %s then %s", first.Outcome, second.Outcome)
	}
	if meta.Dump(mod) != dump {
		t.Fatalf("second pass changed the module")
	}
}

func TestFacadeRedirectKeepsShape(t *testing.T) {
	cat := hostCatalog()
	f, reg := rendererFacade(t, cat)
	draw := oldDraw(hostRef("Game.Renderer"))
	ctor := &meta.MethodRef{DeclaringType: hostRef("Game.Renderer"), Name: meta.CtorName, HasThis: true, Return: metatest.Void()}
	paint := metatest.WithBody(metatest.Method("Paint", metatest.Void()),
		metatest.Ins(meta.OpNewObj, ctor),
		metatest.Ins(meta.OpLdNull, nil),
		metatest.Ins(meta.OpCallVirt, draw),
		metatest.Ins(meta.OpRet, nil),
	)
	mod := metatest.Module("Mod", metatest.Class("Mod.Program", paint))

	res := run(t, mod, rewrite.Options{Catalog: cat, Facades: reg}, NewFacadeRedirect(f, "Draw"))

	got := paint.Body.Instructions[2].Operand.(*meta.MethodRef)
	if got.DeclaringType.FullName() != "Compat.RendererFacade" {
		t.Fatalf("call not redirected: %s", got)
	}
	if got.Name != draw.Name || !meta.SameShape(got, draw) || paint.Body.Instructions[2].Op != meta.OpCallVirt {
		t.Fatalf("redirect changed the member shape: %s", got.Signature())
	}
	if !reg.ResolveMethod(got, cat) {
		t.Fatalf("redirected call does not resolve against the facade")
	}
	if paint.Body.Instructions[0].Operand != ctor {
		t.Fatalf("constructors must never be redirected")
	}
	if res.Count(rewrite.Rewritten) != 1 {
		t.Fatalf("expected one rewritten site, got %d", res.Count(rewrite.Rewritten))
	}
}

func TestFacadeRedirectKeepsInstantiatedCalls(t *testing.T) {
	cat := hostCatalog()
	f, reg := rendererFacade(t, cat)
	draw := oldDraw(meta.Generic(hostRef("Game.Renderer"), batch()))
	paint := metatest.WithBody(metatest.Method("Paint", metatest.Void()),
		metatest.Ins(meta.OpLdNull, nil),
		metatest.Ins(meta.OpCallVirt, draw),
		metatest.Ins(meta.OpRet, nil),
	)
	mod := metatest.Module("Mod", metatest.Class("Mod.Program", paint))

	res := run(t, mod, rewrite.Options{Catalog: cat, Facades: reg}, NewFacadeRedirect(f, "Draw"))

	if paint.Body.Instructions[1].Operand != draw {
		t.Fatalf("call on an instantiation was redirected to %s", paint.Body.Instructions[1].Operand)
	}
	if got := draw.DeclaringType.FullName(); got != "Game.Renderer<Game.Batch>" {
		t.Fatalf("declaring type edited to %s", got)
	}
	if res.Outcome != rewrite.Fatal {
		t.Fatalf("outcome = %s", res.Outcome)
	}
}

func TestFacadeRedirectUnknownShapeIsFatal(t *testing.T) {
	cat := hostCatalog()
	f, reg := rendererFacade(t, cat)
	flush := &meta.MethodRef{DeclaringType: hostRef("Game.Renderer"), Name: "Flush", HasThis: true, Return: metatest.Void()}
	paint := metatest.WithBody(metatest.Method("Paint", metatest.Void()),
		metatest.Ins(meta.OpLdNull, nil),
		metatest.Ins(meta.OpCallVirt, flush),
		metatest.Ins(meta.OpRet, nil),
	)
	mod := metatest.Module("Mod", metatest.Class("Mod.Program", paint))

	res := run(t, mod, rewrite.Options{Catalog: cat, Facades: reg}, NewFacadeRedirect(f))

	if res.Outcome != rewrite.Fatal || paint.Body.Instructions[1].Operand != flush {
		t.Fatalf("expected untouched fatal site, got %s", res.Outcome)
	}
	fatal := res.Sites(rewrite.Fatal)
	if len(fatal) != 1 || !strings.Contains(fatal[0].Message, "Flush") {
		t.Fatalf("unexpected fatal report %+v", fatal)
	}
}

func TestMemberReplace(t *testing.T) {
	value := &meta.FieldRef{DeclaringType: hostRef("Game.Score"), Name: "value", Type: metatest.Int()}
	flush := &meta.MethodRef{DeclaringType: hostRef("Game.Renderer"), Name: "Wipe", HasThis: true, Return: metatest.Void()}
	tick := metatest.WithBody(metatest.Method("Tick", metatest.Void()),
		metatest.Ins(meta.OpLdNull, nil),
		metatest.Ins(meta.OpLdFld, value),
		metatest.Ins(meta.OpPop, nil),
		metatest.Ins(meta.OpLdNull, nil),
		metatest.Ins(meta.OpCallVirt, flush),
		metatest.Ins(meta.OpRet, nil),
	)
	mod := metatest.Module("Mod", metatest.Class("Mod.Program", tick))

	res := run(t, mod, rewrite.Options{},
		NewFieldReplace("Game.Score", "value", nil, "points"),
		NewMethodReplace("Game.Renderer", "Wipe", nil, "Clear"),
	)

	if f := tick.Body.Instructions[1].Operand.(*meta.FieldRef); f.Name != "points" || tick.Body.Instructions[1].Op != meta.OpLdFld {
		t.Fatalf("field not replaced: %s", f)
	}
	if m := tick.Body.Instructions[4].Operand.(*meta.MethodRef); m.Name != "Clear" {
		t.Fatalf("method not replaced: %s", m)
	}
	if res.Count(rewrite.Rewritten) != 2 {
		t.Fatalf("expected two rewritten sites, got %d", res.Count(rewrite.Rewritten))
	}

	missing := NewMethodReplace("Game.Renderer", "Clear", nil, "Erase")
	res = run(t, mod, rewrite.Options{}, missing)
	if res.Outcome != rewrite.Fatal {
		t.Fatalf("replacement missing from the host must be fatal, got %s", res.Outcome)
	}
}

func TestFindersReportWithoutChanging(t *testing.T) {
	removed := hostRef("Game.Removed")
	tick := metatest.Method("Tick", metatest.Void(), meta.ArrayOf(removed))
	mod := metatest.Module("Mod", metatest.Class("Mod.Program", tick))
	before := meta.Dump(mod)

	warn, err := NewTypeFinder("Game.Removed", rewrite.Warning, "use Game.NewType")
	if err != nil {
		t.Fatalf("finder: %v", err)
	}
	res := run(t, mod, rewrite.Options{}, warn)
	if res.Outcome != rewrite.Warning || !res.Loadable() {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if got := res.Sites(rewrite.Warning)[0].Message; !strings.Contains(got, "use Game.NewType") {
		t.Fatalf("message = %q", got)
	}
	if meta.Dump(mod) != before {
		t.Fatalf("finder must not change the module")
	}
	if _, err := NewMemberFinder("Game.Removed", []string{"X"}, rewrite.Rewritten, ""); err == nil {
		t.Fatalf("finders only report incompatibilities")
	}
}

func TestMissingReferenceFinder(t *testing.T) {
	gone := &meta.MethodRef{DeclaringType: hostRef("Game.Renderer"), Name: "Draw", HasThis: true, Return: metatest.Void(), Params: []*meta.TypeRef{batch()}}
	clearCall := &meta.MethodRef{DeclaringType: hostRef("Game.Renderer"), Name: "Clear", HasThis: true, Return: metatest.Void()}
	tick := metatest.WithBody(metatest.Method("Tick", metatest.Void(), hostRef("Game.OldType"), meta.Named("Other", "Lib.Thing")),
		metatest.Ins(meta.OpLdNull, nil),
		metatest.Ins(meta.OpCallVirt, clearCall),
		metatest.Ins(meta.OpLdNull, nil),
		metatest.Ins(meta.OpLdNull, nil),
		metatest.Ins(meta.OpCallVirt, gone),
		metatest.Ins(meta.OpRet, nil),
	)
	mod := metatest.Module("Mod", metatest.Class("Mod.Program", tick))

	res := run(t, mod, rewrite.Options{}, NewMissingReferenceFinder())

	var got []string
	for _, s := range res.Sites(rewrite.Fatal) {
		got = append(got, s.Original)
	}
	want := []string{"Game.OldType", "Game.Renderer::Draw"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("fatal originals = %v, want %v", got, want)
	}
}

func TestMissingReferenceFinderAcceptsRedirectedCalls(t *testing.T) {
	cat := hostCatalog()
	f, reg := rendererFacade(t, cat)
	paint := metatest.WithBody(metatest.Method("Paint", metatest.Void()),
		metatest.Ins(meta.OpLdNull, nil),
		metatest.Ins(meta.OpLdNull, nil),
		metatest.Ins(meta.OpCallVirt, oldDraw(hostRef("Game.Renderer"))),
		metatest.Ins(meta.OpRet, nil),
	)
	mod := metatest.Module("Mod", metatest.Class("Mod.Program", paint))

	res := run(t, mod, rewrite.Options{Catalog: cat, Facades: reg}, NewFacadeRedirect(f, "Draw"), NewMissingReferenceFinder("Host"))
	if res.Outcome != rewrite.Rewritten {
		t.Fatalf("redirected call should resolve, got %s: %+v", res.Outcome, res.Sites(rewrite.Warning))
	}
}

func TestScopeRetargetOnlyForPlatformVariants(t *testing.T) {
	build := func() (*meta.Module, *meta.MethodDef) {
		tick := metatest.Method("Tick", meta.Named("Host.Windows", "Game.Batch"), meta.Named("Host.Windows", "Game.Lost"))
		return metatest.Module("Mod", metatest.Class("Mod.Program", tick)), tick
	}
	rule := NewScopeRetarget("Host.Windows", "Host")

	mod, tick := build()
	res := run(t, mod, rewrite.Options{}, rule)
	if res.Outcome != rewrite.Unchanged || tick.Return.Scope != "Host.Windows" {
		t.Fatalf("retarget must not run for native modules")
	}

	mod, tick = build()
	res = run(t, mod, rewrite.Options{PlatformVariant: true}, rule)
	if tick.Return.Scope != "Host" || tick.Return.FullName() != "Game.Batch" {
		t.Fatalf("return not retargeted: %s", meta.QualifiedName(tick.Return))
	}
	if res.Outcome != rewrite.Fatal || tick.Params[0].Type.Scope != "Host.Windows" {
		t.Fatalf("type missing from the target scope must be fatal and untouched")
	}
}

func TestDefectsAbortThePass(t *testing.T) {
	bad := NewTypeRename(match.Type("Game.OldType"), &meta.TypeRef{Kind: meta.RefNamed})
	mod := metatest.Module("Mod", metatest.Class("Mod.Program", metatest.Method("Tick", hostRef("Game.OldType"))))
	_, err := rewrite.NewDispatcher([]rewrite.Rule{bad}, rewrite.Options{}).Rewrite(mod)
	if !errors.Is(err, rewrite.ErrDefect) || !errors.Is(err, meta.ErrBadImport) {
		t.Fatalf("unimportable replacement must be a defect, got %v", err)
	}
}
