package host

import (
	"errors"
	"testing"

	"modpatch/internal/meta"
	"modpatch/internal/meta/metatest"
)

func hostModule() *meta.Module {
	batch := meta.Named("Host", "Game.Batch")
	base := metatest.Class("Game.Entity",
		metatest.Method("Update", metatest.Void()),
	)
	base.Fields = []*meta.FieldDef{{Name: "Id", Type: metatest.Int()}}

	renderer := metatest.Class("Game.Renderer",
		metatest.Method("Render", metatest.Void(), batch, meta.Named("System", "System.Single")),
	)
	renderer.BaseType = meta.Named("Host", "Game.Entity")

	tp := &meta.GenericParam{Name: "T", Position: 0, Owner: "Game.Cache"}
	cache := metatest.Class("Game.Cache",
		metatest.Method("Get", meta.ParamRef(tp), metatest.Int()),
	)
	cache.GenericParams = []*meta.GenericParam{tp}

	return metatest.Module("Host", base, renderer, cache, metatest.Class("Game.Batch"))
}

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	c := NewCatalog()
	if err := c.AddModule(hostModule()); err != nil {
		t.Fatalf("add host: %v", err)
	}
	return c
}

func TestResolveType(t *testing.T) {
	c := newCatalog(t)
	cache := meta.Named("Host", "Game.Cache")
	tests := []struct {
		name string
		ref  *meta.TypeRef
		want bool
	}{
		{"host type", meta.Named("Host", "Game.Batch"), true},
		{"missing host type", meta.Named("Host", "Game.Removed"), false},
		{"wrong scope", meta.Named("Host", "System.Int32"), false},
		{"foreign scope", meta.Named("System", "System.Int32"), true},
		{"generic arity", meta.Generic(cache, metatest.Int()), true},
		{"generic bad arity", meta.Generic(cache, metatest.Int(), metatest.Int()), false},
		{"generic bad arg", meta.Generic(cache, meta.Named("Host", "Game.Removed")), false},
		{"array of missing", meta.ArrayOf(meta.Named("Host", "Game.Removed")), false},
	}
	for _, tt := range tests {
		if got := c.ResolveType(tt.ref); got != tt.want {
			t.Errorf("%s: ResolveType(%s) = %v, want %v", tt.name, tt.ref, got, tt.want)
		}
	}
}

func TestResolveMethodWalksBaseTypes(t *testing.T) {
	c := newCatalog(t)
	renderer := meta.Named("Host", "Game.Renderer")
	update := &meta.MethodRef{DeclaringType: renderer, Name: "Update", HasThis: true, Return: metatest.Void()}
	if _, ok := c.ResolveMethod(update); !ok {
		t.Fatalf("inherited method not resolved")
	}
	render := &meta.MethodRef{
		DeclaringType: renderer, Name: "Render", HasThis: true, Return: metatest.Void(),
		Params: []*meta.TypeRef{meta.Named("Host", "Game.Batch"), meta.Named("System", "System.Single")},
	}
	if _, ok := c.ResolveMethod(render); !ok {
		t.Fatalf("declared method not resolved")
	}
	oldShape := render.Copy()
	oldShape.Params = oldShape.Params[:1]
	if _, ok := c.ResolveMethod(oldShape); ok {
		t.Fatalf("old signature should not resolve against the current type")
	}
}

func TestResolveMethodSubstitutesTypeArgs(t *testing.T) {
	c := newCatalog(t)
	inst := meta.Generic(meta.Named("Host", "Game.Cache"), meta.Named("Host", "Game.Batch"))
	get := &meta.MethodRef{DeclaringType: inst, Name: "Get", HasThis: true, Return: meta.Named("Host", "Game.Batch"), Params: []*meta.TypeRef{metatest.Int()}}
	if _, ok := c.ResolveMethod(get); !ok {
		t.Fatalf("method on generic instance not resolved")
	}
	wrong := get.Copy()
	wrong.Return = metatest.Int()
	if _, ok := c.ResolveMethod(wrong); ok {
		t.Fatalf("return type mismatch should not resolve")
	}
}

func TestResolveField(t *testing.T) {
	c := newCatalog(t)
	id := &meta.FieldRef{DeclaringType: meta.Named("Host", "Game.Renderer"), Name: "Id", Type: metatest.Int()}
	if _, ok := c.ResolveField(id); !ok {
		t.Fatalf("inherited field not resolved")
	}
	id.Type = meta.Named("System", "System.String")
	if _, ok := c.ResolveField(id); ok {
		t.Fatalf("field type mismatch should not resolve")
	}
}

func TestRefAndScopes(t *testing.T) {
	c := newCatalog(t)
	ref, err := c.Ref("Game.Batch")
	if err != nil || ref.Scope != "Host" {
		t.Fatalf("Ref = %v, %v", ref, err)
	}
	if _, err := c.Ref("Game.Nope"); err == nil {
		t.Fatalf("expected error for unknown type")
	}
	if !c.Owns(meta.ArrayOf(ref)) || c.Owns(metatest.Int()) {
		t.Fatalf("ownership by scope is wrong")
	}
	if got := c.Scopes(); len(got) != 1 || got[0] != "Host" {
		t.Fatalf("Scopes = %v", got)
	}
}

func TestDuplicateTypeIsRejected(t *testing.T) {
	c := newCatalog(t)
	batch, _, _ := c.Type("Game.Batch")
	if err := c.AddType("Host", batch); err != nil {
		t.Fatalf("re-adding the same definition: %v", err)
	}

	err := c.AddModule(metatest.Module("Host.Windows", metatest.Class("Game.Batch"), metatest.Class("Game.Window")))
	if !errors.Is(err, ErrDuplicateType) {
		t.Fatalf("expected ErrDuplicateType, got %v", err)
	}
	if _, scope, _ := c.Type("Game.Batch"); scope != "Host" {
		t.Fatalf("duplicate replaced the original registration: scope %s", scope)
	}
	if _, scope, ok := c.Type("Game.Window"); !ok || scope != "Host.Windows" {
		t.Fatalf("non-conflicting type was not registered")
	}
	if !c.ResolveType(meta.Named("Host", "Game.Batch")) {
		t.Fatalf("original registration no longer resolves")
	}
}
