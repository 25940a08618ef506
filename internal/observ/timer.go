// Package observ times the steps of a batch for --timings.
package observ

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Phase is one timed step. A name of the form "kind subject" is grouped
// under kind in reports.
type Phase struct {
	Name  string
	Began time.Time
	Took  time.Duration
	Note  string
	done  bool
}

// Kind is the first word of the phase name.
func (p Phase) Kind() string {
	kind, _, _ := strings.Cut(p.Name, " ")
	return kind
}

// Timer collects phases. Parallel module passes record into one timer.
type Timer struct {
	mu     sync.Mutex
	phases []Phase
	now    func() time.Time
}

func NewTimer() *Timer { return &Timer{now: time.Now} }

// Begin opens a phase; the returned handle is passed to End.
func (t *Timer) Begin(name string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.phases = append(t.phases, Phase{Name: name, Began: t.now()})
	return len(t.phases) - 1
}

// End closes the phase once. Unknown handles are ignored.
func (t *Timer) End(handle int, note string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if handle < 0 || handle >= len(t.phases) || t.phases[handle].done {
		return
	}
	p := &t.phases[handle]
	p.Took = t.now().Sub(p.Began)
	p.Note = note
	p.done = true
}

// Time runs fn as one phase; a failing fn is noted as such.
func (t *Timer) Time(name string, fn func() error) error {
	h := t.Begin(name)
	err := fn()
	if err != nil {
		t.End(h, "failed")
		return err
	}
	t.End(h, "")
	return nil
}

// Entry is one line of a report.
type Entry struct {
	Name   string
	Millis float64
	Note   string
}

// Report is a snapshot of the finished phases. Sum exceeds Wall when
// modules were rewritten in parallel.
type Report struct {
	Phases []Entry
	// Kinds sums phases per kind, in order of first appearance.
	Kinds  []Entry
	SumMS  float64
	WallMS float64
}

func (t *Timer) Report() Report {
	t.mu.Lock()
	defer t.mu.Unlock()
	var (
		r          Report
		sum        time.Duration
		first, end time.Time
	)
	byKind := make(map[string]int)
	for _, p := range t.phases {
		if !p.done {
			continue
		}
		r.Phases = append(r.Phases, Entry{Name: p.Name, Millis: millis(p.Took), Note: p.Note})
		sum += p.Took
		if first.IsZero() || p.Began.Before(first) {
			first = p.Began
		}
		if fin := p.Began.Add(p.Took); fin.After(end) {
			end = fin
		}
		i, ok := byKind[p.Kind()]
		if !ok {
			i = len(r.Kinds)
			byKind[p.Kind()] = i
			r.Kinds = append(r.Kinds, Entry{Name: p.Kind()})
		}
		r.Kinds[i].Millis += millis(p.Took)
	}
	r.SumMS = millis(sum)
	if !first.IsZero() {
		r.WallMS = millis(end.Sub(first))
	}
	return r
}

// Summary renders the report for the terminal.
func (t *Timer) Summary() string {
	r := t.Report()
	var sb strings.Builder
	sb.WriteString("timings:\n")
	for _, e := range r.Phases {
		writeEntry(&sb, "  ", e)
	}
	if len(r.Kinds) > 1 {
		sb.WriteString("  by kind:\n")
		for _, e := range r.Kinds {
			writeEntry(&sb, "    ", e)
		}
	}
	writeEntry(&sb, "  ", Entry{Name: "sum", Millis: r.SumMS})
	writeEntry(&sb, "  ", Entry{Name: "wall", Millis: r.WallMS})
	return sb.String()
}

func writeEntry(sb *strings.Builder, indent string, e Entry) {
	fmt.Fprintf(sb, "%s%-*s %8.2f ms", indent, 32-len(indent), e.Name, e.Millis)
	if e.Note != "" {
		sb.WriteString("  (" + e.Note + ")")
	}
	sb.WriteByte('\n')
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
