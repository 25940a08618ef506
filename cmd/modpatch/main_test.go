package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"modpatch/internal/meta"
	mt "modpatch/internal/meta/metatest"
	"modpatch/internal/modfile"
)

const rulesTOML = `
[meta]
name = "1.5 to 1.6"
reserved = ["Host.Internal"]

[[replace_type]]
from = "Game.OldType"
to = "Game.NewType"

[[redirect]]
type = "Host.Game"
facade = "Compat.GameFacade"
members = ["Draw"]

[[find]]
type = "Host.Removed"
severity = "fatal"
message = "removed in 1.6"

[[facade]]
name = "Compat.GameFacade"
host = "Host.Game"

  [[facade.method]]
  name = "Draw"
  return = "[System]System.Void"
  params = ["Host.Batch"]
  target = "Render"
  target_params = ["Host.Batch", "[System]System.Single"]
`

type fixture struct {
	dir   string
	host  string
	rules string
	good  string
	bad   string
	sneak string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	f := fixture{
		dir:   dir,
		host:  filepath.Join(dir, "host.mpch"),
		rules: filepath.Join(dir, "rules.toml"),
		good:  filepath.Join(dir, "good.mpch"),
		bad:   filepath.Join(dir, "bad.mpch"),
		sneak: filepath.Join(dir, "sneaky.mpch"),
	}
	batch := func() *meta.TypeRef { return meta.Named("Host", "Host.Batch") }

	hostMod := mt.Module("Host",
		mt.Class("Host.Game", mt.Method("Render", mt.Void(), batch(), meta.Named(mt.System, "System.Single"))),
		mt.Class("Host.Batch"),
		mt.Class("Game.NewType"),
	)
	good := mt.Module("Good", mt.Class("Good.Main",
		mt.WithBody(mt.Method("Run", mt.Void(), meta.Named("Host", "Game.OldType")),
			mt.Call(meta.Named("Host", "Host.Game"), "Draw", mt.Void(), batch()),
			mt.Ins(meta.OpRet, nil),
		)))
	bad := mt.Module("Bad", mt.Class("Bad.Main",
		mt.Method("Run", mt.Void(), meta.Named("Host", "Host.Removed"))))
	sneaky := mt.Module("Sneaky", mt.Class("Sneaky.Main",
		mt.WithBody(mt.Method("Run", mt.Void()),
			mt.Call(meta.Named("Host", "Host.Internal.Saves"), "Wipe", mt.Void()),
			mt.Ins(meta.OpRet, nil),
		)))

	require.NoError(t, modfile.Save(f.host, hostMod))
	require.NoError(t, modfile.Save(f.good, good))
	require.NoError(t, modfile.Save(f.bad, bad))
	require.NoError(t, modfile.Save(f.sneak, sneaky))
	require.NoError(t, os.WriteFile(f.rules, []byte(rulesTOML), 0o600))
	return f
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetErr(&buf)
	root.SetArgs(append([]string{"--color", "off"}, args...))
	err := root.Execute()
	return buf.String(), err
}

func TestRewriteWritesLoadableModules(t *testing.T) {
	f := newFixture(t)
	outDir := filepath.Join(f.dir, "out")

	out, err := run(t, "rewrite", "--host", f.host, "--rules", f.rules, "--out", outDir, "--timings", f.good)
	require.NoError(t, err, out)
	require.Contains(t, out, "1 module(s)")
	require.Contains(t, out, "rewritten")
	require.Contains(t, out, "timings:")

	m, err := modfile.Load(filepath.Join(outDir, "good.mpch"))
	require.NoError(t, err)
	method := m.FindType("Good.Main").Methods[0]
	require.Equal(t, "Game.NewType", method.Params[0].Type.FullName())
	call := method.Body.Instructions[0].Operand.(*meta.MethodRef)
	require.Equal(t, "Compat.GameFacade", call.DeclaringType.FullName())
}

func TestRewriteFailsOnFatalModule(t *testing.T) {
	f := newFixture(t)
	outDir := filepath.Join(f.dir, "out")

	out, err := run(t, "rewrite", "--host", f.host, "--rules", f.rules, "--out", outDir, f.good, f.bad)
	require.ErrorIs(t, err, errIncompatible)
	require.Contains(t, out, "CMP2002")
	require.Contains(t, out, "removed in 1.6")

	_, err = os.Stat(filepath.Join(outDir, "good.mpch"))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(outDir, "bad.mpch"))
	require.True(t, os.IsNotExist(err), "fatal modules must not be written")
}

func TestRewriteDeniesReservedNamespace(t *testing.T) {
	f := newFixture(t)
	out, err := run(t, "rewrite", "--host", f.host, "--rules", f.rules, f.sneak)
	require.ErrorIs(t, err, errIncompatible)
	require.Contains(t, out, "CMP2003")
	require.Contains(t, out, "Host.Internal")
}

func TestRewriteReportsUnreadableModule(t *testing.T) {
	f := newFixture(t)
	out, err := run(t, "rewrite", "--host", f.host, "--rules", f.rules, filepath.Join(f.dir, "nope.mpch"))
	require.ErrorIs(t, err, errIncompatible)
	require.Contains(t, out, "INP4003")
}

func TestRewriteUsesCache(t *testing.T) {
	f := newFixture(t)
	cacheDir := filepath.Join(f.dir, "cache")
	args := []string{"rewrite", "--host", f.host, "--rules", f.rules, "--cache", cacheDir, f.good}

	out, err := run(t, args...)
	require.NoError(t, err, out)
	require.NotContains(t, out, "from cache")

	out, err = run(t, args...)
	require.NoError(t, err, out)
	require.Contains(t, out, "from cache")
}

func TestRulesListsDispatchOrder(t *testing.T) {
	f := newFixture(t)
	out, err := run(t, "rules", "--host", f.host, f.rules)
	require.NoError(t, err, out)
	require.Contains(t, out, "1.5 to 1.6: 3 rule(s), 1 facade(s)")
	require.Contains(t, out, "facade Compat.GameFacade")
	require.Contains(t, out, "reserved: [Host.Internal]")
}

func TestInspectChecksGuard(t *testing.T) {
	f := newFixture(t)
	out, err := run(t, "inspect", "--reserved", "Host.Internal", f.good)
	require.NoError(t, err, out)
	require.Contains(t, out, "module Good")

	out, err = run(t, "inspect", "--dump=false", "--reserved", "Host.Internal", f.sneak)
	require.ErrorIs(t, err, errIncompatible)
	require.Contains(t, out, "CMP2003")
	require.NotContains(t, out, "module Sneaky")
}

func TestVersionJSON(t *testing.T) {
	out, err := run(t, "version", "--format", "json")
	require.NoError(t, err)
	require.Contains(t, out, `"tool": "modpatch"`)

	_, err = run(t, "version", "--format", "yaml")
	require.Error(t, err)
}

func TestRewriteTraceAndProfiles(t *testing.T) {
	f := newFixture(t)
	tracePath := filepath.Join(f.dir, "run.ndjson")
	cpu := filepath.Join(f.dir, "cpu.pprof")

	out, err := run(t, "--trace", tracePath, "--trace-mode", "stream", "--cpu-profile", cpu,
		"rewrite", "--host", f.host, "--rules", f.rules, "--quiet", f.good)
	require.NoError(t, err, out)
	require.NotContains(t, out, "module(s)")

	data, err := os.ReadFile(tracePath)
	require.NoError(t, err)
	require.Contains(t, string(data), `"name":"rewrite Good"`)
	_, err = os.Stat(cpu)
	require.NoError(t, err)
}
