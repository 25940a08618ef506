package trace

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelShouldEmit(t *testing.T) {
	cases := []struct {
		level Level
		scope Scope
		want  bool
	}{
		{LevelOff, ScopeDriver, false},
		{LevelError, ScopeModule, false},
		{LevelError, ScopeError, true},
		{LevelPhase, ScopeModule, true},
		{LevelPhase, ScopeMethod, false},
		{LevelDetail, ScopeMethod, true},
		{LevelDetail, ScopeSite, false},
		{LevelDebug, ScopeSite, true},
	}
	for _, tc := range cases {
		if got := tc.level.ShouldEmit(tc.scope); got != tc.want {
			t.Fatalf("%s.ShouldEmit(%s) = %v, want %v", tc.level, tc.scope, got, tc.want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	for _, s := range []string{"off", "error", "phase", "detail", "debug"} {
		l, err := ParseLevel(s)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", s, err)
		}
		if l.String() != s {
			t.Fatalf("round trip %q -> %q", s, l.String())
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestStreamTracerSpans(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDetail, FormatText)

	outer := Begin(tr, ScopeModule, "rewrite", 0)
	inner := Begin(tr, ScopeMethod, "Mod.Foo::Run", outer.ID())
	Point(tr, ScopeSite, "hidden", "", inner.ID())
	inner.WithExtra("outcome", "rewritten").End("")
	outer.End("done")

	out := buf.String()
	for _, want := range []string{"→ rewrite", "→ Mod.Foo::Run", "{outcome=rewritten}", "← rewrite (done)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("trace output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("site events must be filtered at detail level:\n%s", out)
	}
}

func TestNDJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	tr := NewStreamTracer(&buf, LevelDebug, FormatNDJSON)
	Point(tr, ScopeSite, "rewrite-site", "Mod.Foo::Run param 0", 7)
	line := buf.String()
	if !strings.HasPrefix(line, "{") || !strings.HasSuffix(line, "}\n") {
		t.Fatalf("not a JSON line: %q", line)
	}
	if !strings.Contains(line, `"parent_id":7`) || !strings.Contains(line, `"scope":"site"`) {
		t.Fatalf("unexpected JSON event: %s", line)
	}
}

func TestRingKeepsLatestEvents(t *testing.T) {
	ring := NewRingTracer(2, LevelDebug)
	for _, name := range []string{"a", "b", "c"} {
		Point(ring, ScopeSite, name, "", 0)
	}
	snap := ring.Snapshot()
	if len(snap) != 2 || snap[0].Name != "b" || snap[1].Name != "c" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	multi := NewMultiTracer(LevelDebug, NewStreamTracer(&bytes.Buffer{}, LevelDebug, FormatText), ring)
	if r, ok := Ring(multi); !ok || r != ring {
		t.Fatalf("Ring should find the buffer inside a multi tracer")
	}
}

func TestNopSpan(t *testing.T) {
	span := Begin(Nop, ScopeModule, "x", 0)
	if span.ID() != 0 {
		t.Fatalf("nop span should have no id")
	}
	if d := span.End(""); d != 0 {
		t.Fatalf("nop span should report zero duration")
	}
}

func TestNewWritesBufferedNDJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.ndjson")
	tr, err := New(Config{Level: LevelPhase, Mode: ModeBoth, OutputPath: path, RingSize: 8})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	Begin(tr, ScopeModule, "rewrite Mod", 0).End("")
	if _, ok := Ring(tr); !ok {
		t.Fatalf("both mode should keep a ring")
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], `"kind":"end"`) {
		t.Fatalf("unexpected trace file:\n%s", data)
	}
}

func TestParseModeAndContext(t *testing.T) {
	m, err := ParseMode("RING")
	if err != nil || m != ModeRing {
		t.Fatalf("ParseMode(RING) = %v, %v", m, err)
	}
	if _, err := ParseMode(""); err == nil {
		t.Fatalf("expected error for empty mode")
	}
	if FromContext(context.Background()) != Nop {
		t.Fatalf("empty context should yield Nop")
	}
	ring := NewRingTracer(1, LevelDebug)
	if FromContext(WithTracer(context.Background(), ring)) != Tracer(ring) {
		t.Fatalf("tracer not carried by context")
	}
}
