// Package driver rewrites batches of independent modules in parallel and
// turns each pass into diagnostics.
package driver

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"modpatch/internal/diag"
	"modpatch/internal/guard"
	"modpatch/internal/meta"
	"modpatch/internal/observ"
	"modpatch/internal/rewrite"
	"modpatch/internal/trace"
)

// RuleFactory builds a fresh rule list. It is called once per module so
// passes never share rule instances.
type RuleFactory func() ([]rewrite.Rule, error)

// Job is one module to rewrite.
type Job struct {
	// Path identifies the module in diagnostics and output.
	Path   string
	Module *meta.Module
}

// Options configure a batch.
type Options struct {
	Jobs           int
	MaxDiagnostics int
	// HostPlatform is the platform variant of the running host. Modules
	// built for another variant get platform-scoped rules.
	HostPlatform string
	// Verbose reports rewritten sites as INFO diagnostics.
	Verbose bool

	Rewrite rewrite.Options
	Rules   RuleFactory
	Guard   *guard.Guard

	Cache    *Cache
	RulesKey string
	Timer    *observ.Timer
}

// Result is the outcome for one job. Err is set when the pass aborted on a
// defect or malformed input; Module must then be discarded.
type Result struct {
	Path   string
	Module *meta.Module
	Pass   *rewrite.ModuleResult
	Bag    *diag.Bag
	Denied int
	Cached bool
	Err    error
}

// Loadable reports whether the module may be loaded.
func (r *Result) Loadable() bool {
	return r.Err == nil && r.Denied == 0 && r.Pass != nil && r.Pass.Loadable()
}

// Outcome is the worst outcome of the pass; Fatal when the pass aborted.
func (r *Result) Outcome() rewrite.Outcome {
	if r.Err != nil || r.Pass == nil || r.Denied > 0 {
		return rewrite.Fatal
	}
	return r.Pass.Outcome
}

// IsPlatformVariant reports whether mod was built for another platform
// variant than host.
func IsPlatformVariant(mod *meta.Module, host string) bool {
	return mod.Platform != "" && host != "" && mod.Platform != host
}

// RewriteAll rewrites every job on up to opts.Jobs goroutines. Per-module
// failures land in Result.Err; the returned error is reserved for
// cancellation and rule factory failures, which stop the batch.
func RewriteAll(ctx context.Context, jobs []Job, opts Options) ([]Result, error) {
	if opts.Rules == nil {
		return nil, errors.New("driver: no rule factory")
	}
	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results, nil
	}
	workers := opts.Jobs
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	tracer := opts.Rewrite.Tracer
	if tracer == nil {
		tracer = trace.FromContext(ctx)
	}
	span := trace.Begin(tracer, trace.ScopeDriver, "rewrite-all", 0)
	span.WithExtra("modules", fmt.Sprint(len(jobs)))
	defer span.End("")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(min(workers, len(jobs)))
	for i, job := range jobs {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			res, err := rewriteOne(job, opts, tracer)
			results[i] = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func rewriteOne(job Job, opts Options, tracer trace.Tracer) (Result, error) {
	res := Result{Path: job.Path, Module: job.Module, Bag: diag.NewBag(opts.MaxDiagnostics)}
	reporter := diag.NewDedupReporter(diag.BagReporter{Bag: res.Bag})
	name := job.Path
	if job.Module != nil {
		name = job.Module.Name
	}
	if job.Module == nil {
		res.Err = fmt.Errorf("%w: nil module", rewrite.ErrInvalidInput)
		diag.FromError(reporter, name, res.Err)
		return res, nil
	}

	if opts.Guard != nil {
		denials := opts.Guard.CheckModule(job.Module)
		res.Denied = len(denials)
		diag.FromDenials(reporter, name, denials)
	}

	ropts := opts.Rewrite
	ropts.Tracer = tracer
	ropts.PlatformVariant = ropts.PlatformVariant || IsPlatformVariant(job.Module, opts.HostPlatform)

	var key Key
	if opts.Cache != nil {
		var err error
		if key, err = CacheKey(job.Module, opts.RulesKey, ropts.PlatformVariant, ropts.MaxSiteIterations); err == nil {
			if entry, ok, _ := opts.Cache.Get(key); ok {
				res.Cached = true
				res.Pass = entry.Result
				if entry.Module != nil {
					res.Module = entry.Module
				}
				diag.FromResult(reporter, res.Pass, opts.Verbose)
				return res, nil
			}
		}
	}

	rules, err := opts.Rules()
	if err != nil {
		return res, fmt.Errorf("%s: building rules: %w", job.Path, err)
	}

	phase := -1
	if opts.Timer != nil {
		phase = opts.Timer.Begin("rewrite " + name)
	}
	pass, err := rewrite.NewDispatcher(rules, ropts).Rewrite(job.Module)
	if opts.Timer != nil {
		note := ""
		if err != nil {
			note = "aborted"
		}
		opts.Timer.End(phase, note)
	}
	if err != nil {
		res.Err = err
		diag.FromError(reporter, name, err)
		return res, nil
	}
	res.Pass = pass
	diag.FromResult(reporter, pass, opts.Verbose)

	if opts.Cache != nil && key != (Key{}) {
		var rewritten *meta.Module
		if pass.Outcome >= rewrite.Rewritten {
			rewritten = job.Module
		}
		if err := opts.Cache.Put(key, pass, rewritten); err != nil {
			res.Bag.Add(diag.Diagnostic{
				Severity: diag.SevWarning,
				Code:     diag.InpInfo,
				Module:   name,
				Message:  "outcome cache not updated: " + err.Error(),
			})
		}
	}
	return res, nil
}

// Summary counts results per outcome.
type Summary struct {
	Total     int
	Unchanged int
	Rewritten int
	Warning   int
	Fatal     int
	Defects   int
	Cached    int
}

// Summarize folds results into counts.
func Summarize(results []Result) Summary {
	var s Summary
	for i := range results {
		r := &results[i]
		s.Total++
		if r.Cached {
			s.Cached++
		}
		if errors.Is(r.Err, rewrite.ErrDefect) {
			s.Defects++
		}
		switch r.Outcome() {
		case rewrite.Unchanged:
			s.Unchanged++
		case rewrite.Rewritten:
			s.Rewritten++
		case rewrite.Warning:
			s.Warning++
		case rewrite.Fatal:
			s.Fatal++
		}
	}
	return s
}
