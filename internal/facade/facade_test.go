package facade

import (
	"errors"
	"testing"

	"modpatch/internal/host"
	"modpatch/internal/meta"
	"modpatch/internal/meta/metatest"
)

func single() *meta.TypeRef { return meta.Named("System", "System.Single") }
func batch() *meta.TypeRef  { return meta.Named("Host", "Game.Batch") }

func catalog() *host.Catalog {
	renderer := metatest.Class("Game.Renderer",
		metatest.Method("Render", metatest.Int(), batch(), single()),
		metatest.Method("Clear", metatest.Void()),
	)
	cat := host.NewCatalog()
	cat.AddModule(metatest.Module("Host", renderer, metatest.Class("Game.Batch")))
	return cat
}

func renderRef() *meta.MethodRef {
	return &meta.MethodRef{
		DeclaringType: meta.Named("Host", "Game.Renderer"),
		Name:          "Render",
		HasThis:       true,
		Return:        metatest.Int(),
		Params:        []*meta.TypeRef{batch(), single()},
	}
}

func oldDraw() *meta.MethodRef {
	return &meta.MethodRef{
		DeclaringType: meta.Named("Host", "Game.Renderer"),
		Name:          "Draw",
		HasThis:       true,
		Return:        metatest.Void(),
		Params:        []*meta.TypeRef{batch()},
	}
}

func buildFacade(t *testing.T) (*Facade, *host.Catalog) {
	t.Helper()
	cat := catalog()
	f, err := NewBuilder("Compat", "Compat.RendererFacade", meta.Named("Host", "Game.Renderer")).
		Method(oldDraw(), renderRef()).
		Build(cat)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return f, cat
}

func TestBuildGeneratesForwarder(t *testing.T) {
	f, _ := buildFacade(t)
	def := f.Def()
	if !def.Synthetic || def.BaseType.DefinitionName() != "Game.Renderer" {
		t.Fatalf("facade must derive from the host type: %s", meta.Dump(metatest.Module("X", def)))
	}
	draw := def.Method("Draw")
	if draw == nil {
		t.Fatalf("old shape not re-declared")
	}
	want := []meta.OpCode{meta.OpLdArg, meta.OpLdArg, meta.OpLdc, meta.OpCallVirt, meta.OpPop, meta.OpRet}
	got := draw.Body.Instructions
	if len(got) != len(want) {
		t.Fatalf("forwarder has %d instructions, want %d:\n%s", len(got), len(want), meta.Dump(metatest.Module("X", def)))
	}
	for i, op := range want {
		if got[i].Op != op {
			t.Fatalf("instruction %d = %s, want %s", i, got[i].Op, op)
		}
	}
	if got[2].Operand != float64(0) {
		t.Fatalf("missing float argument should default to 0, got %v", got[2].Operand)
	}
	if err := meta.Validate(metatest.Module("X", def)); err != nil {
		t.Fatalf("facade definition invalid: %v", err)
	}
}

func TestConstructAlwaysFails(t *testing.T) {
	f, _ := buildFacade(t)
	v, err := f.Construct()
	if v != nil {
		t.Fatalf("Construct returned an instance: %v", v)
	}
	if !errors.Is(err, ErrFacadeConstructed) {
		t.Fatalf("expected ErrFacadeConstructed, got %v", err)
	}
	ctor := f.Def().Method(meta.CtorName)
	last := ctor.Body.Instructions[len(ctor.Body.Instructions)-1]
	if last.Op != meta.OpThrow {
		t.Fatalf("constructor body must end in throw, got %s", last.Op)
	}
}

func TestBuildRejectsUnknownTarget(t *testing.T) {
	cat := catalog()
	target := renderRef()
	target.Name = "Paint"
	_, err := NewBuilder("Compat", "Compat.RendererFacade", meta.Named("Host", "Game.Renderer")).
		Method(oldDraw(), target).
		Build(cat)
	if !errors.Is(err, ErrUnresolvedTarget) {
		t.Fatalf("expected ErrUnresolvedTarget, got %v", err)
	}
}

func TestBuildRejectsGenericHost(t *testing.T) {
	cat := catalog()
	pool := metatest.Class("Game.Pool", metatest.Method("Take", metatest.Int()))
	pool.GenericParams = []*meta.GenericParam{metatest.Param("Game.Pool", "T", 0)}
	cat.AddModule(metatest.Module("Host", pool))
	take := &meta.MethodRef{DeclaringType: meta.Named("Host", "Game.Pool"), Name: "Take", HasThis: true, Return: metatest.Int()}
	old := take.Copy()
	old.Name = "Get"

	for _, hostType := range []*meta.TypeRef{
		meta.Named("Host", "Game.Pool"),
		meta.Generic(meta.Named("Host", "Game.Pool"), batch()),
	} {
		_, err := NewBuilder("Compat", "Compat.PoolFacade", hostType).Method(old, take).Build(cat)
		if !errors.Is(err, ErrGenericHost) {
			t.Fatalf("%s: expected ErrGenericHost, got %v", hostType, err)
		}
	}
}

func TestBuildRejectsDuplicateShape(t *testing.T) {
	_, err := NewBuilder("Compat", "Compat.RendererFacade", meta.Named("Host", "Game.Renderer")).
		Method(oldDraw(), renderRef()).
		Method(oldDraw(), renderRef()).
		Build(catalog())
	if err == nil {
		t.Fatalf("expected duplicate shape error")
	}
}

func TestRegistryResolvesOldAndInheritedShapes(t *testing.T) {
	f, cat := buildFacade(t)
	reg := NewRegistry()
	if err := reg.Register(f); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := reg.Register(f); !errors.Is(err, ErrDuplicateFacade) {
		t.Fatalf("expected ErrDuplicateFacade, got %v", err)
	}

	draw := oldDraw()
	draw.DeclaringType = f.Ref()
	if !reg.ResolveMethod(draw, cat) {
		t.Fatalf("old shape should resolve against the facade")
	}
	clearRef := &meta.MethodRef{DeclaringType: f.Ref(), Name: "Clear", HasThis: true, Return: metatest.Void()}
	if !reg.ResolveMethod(clearRef, cat) {
		t.Fatalf("unchanged host member should resolve through the facade base")
	}
	missing := clearRef.Copy()
	missing.Name = "Explode"
	if reg.ResolveMethod(missing, cat) {
		t.Fatalf("unknown member must not resolve")
	}
	if !reg.IsFacade(f.Ref()) || reg.IsFacade(meta.Named("Host", "Game.Renderer")) {
		t.Fatalf("IsFacade mismatch")
	}
	if got := reg.ForHost("Game.Renderer"); len(got) != 1 || got[0] != f {
		t.Fatalf("ForHost = %v", got)
	}

	reg.Install(cat)
	if _, ok := cat.ResolveMethod(draw); !ok {
		t.Fatalf("installed facade should resolve through the catalog")
	}
}
