package main

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"modpatch/internal/diag"
	"modpatch/internal/driver"
	"modpatch/internal/host"
	"modpatch/internal/modfile"
	"modpatch/internal/observ"
	"modpatch/internal/rewrite"
	"modpatch/internal/ruleset"
	"modpatch/internal/version"
)

type rewriteFlags struct {
	hosts         []string
	rules         string
	platform      string
	jobs          int
	out           string
	maxIterations int
	cache         string
	dropCache     bool
	verbose       bool
}

func newRewriteCmd() *cobra.Command {
	var f rewriteFlags
	cmd := &cobra.Command{
		Use:   "rewrite [flags] MODULE...",
		Short: "Rewrite mod modules against the current host",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRewrite(cmd, f, args)
		},
	}
	cmd.Flags().StringArrayVar(&f.hosts, "host", nil, "host module file (repeatable)")
	cmd.Flags().StringVar(&f.rules, "rules", "", "rule table (TOML)")
	cmd.Flags().StringVar(&f.platform, "platform-variant", "", "platform variant of the running host")
	cmd.Flags().IntVar(&f.jobs, "jobs", 0, "max parallel modules (0=auto)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "directory for rewritten modules")
	cmd.Flags().IntVar(&f.maxIterations, "max-iterations", rewrite.DefaultMaxSiteIterations, "re-checks per site before a rewrite loop is reported")
	cmd.Flags().StringVar(&f.cache, "cache", "", "outcome cache directory (auto for the user cache dir)")
	cmd.Flags().BoolVar(&f.dropCache, "drop-cache", false, "clear the outcome cache before rewriting")
	cmd.Flags().BoolVarP(&f.verbose, "verbose", "v", false, "report every rewritten site")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("rules")
	return cmd
}

func runRewrite(cmd *cobra.Command, f rewriteFlags, args []string) error {
	g, err := readGlobalFlags(cmd)
	if err != nil {
		return err
	}
	tracer, cleanup, err := setupTracing(cmd)
	if err != nil {
		return err
	}
	defer cleanup()
	stopProfiling, err := setupProfiling(cmd)
	if err != nil {
		return err
	}
	defer stopProfiling()

	timer := observ.NewTimer()
	cat, hostKey, err := loadHost(timer, f.hosts)
	if err != nil {
		return err
	}

	var set *ruleset.Set
	if err := timer.Time("load rules", func() error {
		var lerr error
		set, lerr = ruleset.Load(f.rules, cat)
		return lerr
	}); err != nil {
		return err
	}
	rulesKey, err := rulesFingerprint(f.rules, hostKey)
	if err != nil {
		return err
	}
	logger.Info("rules loaded", "name", set.Name, "rules", set.Len(), "facades", set.Facades.Len())

	out := cmd.OutOrStdout()
	jobs := make([]driver.Job, 0, len(args))
	failed := 0
	for _, path := range args {
		var job driver.Job
		err := timer.Time("load "+filepath.Base(path), func() error {
			m, lerr := modfile.Load(path)
			job = driver.Job{Path: path, Module: m}
			return lerr
		})
		if err != nil {
			failed++
			fmt.Fprintln(out, diag.Diagnostic{
				Severity: diag.SevError,
				Code:     diag.InpModuleFile,
				Module:   path,
				Message:  err.Error(),
			}.Line())
			continue
		}
		jobs = append(jobs, job)
	}

	cache, err := openCache(f.cache, f.dropCache)
	if err != nil {
		return err
	}

	results, err := driver.RewriteAll(cmd.Context(), jobs, driver.Options{
		Jobs:           f.jobs,
		MaxDiagnostics: g.maxDiagnostics,
		HostPlatform:   f.platform,
		Verbose:        f.verbose,
		Rewrite: rewrite.Options{
			MaxSiteIterations: f.maxIterations,
			Catalog:           cat,
			Facades:           set.Facades,
		},
		Rules:    set.Build,
		Guard:    set.Guard(),
		Cache:    cache,
		RulesKey: rulesKey,
		Timer:    timer,
	})
	if err != nil {
		return err
	}

	defects := false
	for i := range results {
		r := &results[i]
		printDiagnostics(out, r.Bag, g.quiet)
		if errors.Is(r.Err, rewrite.ErrDefect) {
			defects = true
		}
	}
	if f.out != "" {
		if err := writeModules(timer, f.out, results); err != nil {
			return err
		}
	}

	summary := driver.Summarize(results)
	if !g.quiet {
		printSummary(out, summary, failed)
	}
	if g.timings {
		fmt.Fprint(out, timer.Summary())
	}
	if defects {
		dumpTraceRing(cmd, tracer)
	}
	if summary.Fatal > 0 || failed > 0 {
		return errIncompatible
	}
	return nil
}

// loadHost reads every host module into a catalog and returns the catalog
// with a digest over the host contents.
func loadHost(timer *observ.Timer, paths []string) (*host.Catalog, string, error) {
	cat := host.NewCatalog()
	h := sha256.New()
	for _, path := range paths {
		err := timer.Time("load host "+filepath.Base(path), func() error {
			m, err := modfile.Load(path)
			if err != nil {
				return err
			}
			sum, err := modfile.Sum(m)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			h.Write(sum[:])
			if err := cat.AddModule(m); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			logger.Debug("host module loaded", "scope", m.Name, "types", len(m.AllTypes()))
			return nil
		})
		if err != nil {
			return nil, "", err
		}
	}
	return cat, hex.EncodeToString(h.Sum(nil)), nil
}

// rulesFingerprint identifies the rule table, host and tool version for the
// outcome cache.
func rulesFingerprint(rulesPath, hostKey string) (string, error) {
	data, err := os.ReadFile(rulesPath)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write(data)
	io.WriteString(h, "\x00"+hostKey+"\x00"+version.Version)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func openCache(dir string, drop bool) (*driver.Cache, error) {
	if dir == "" {
		return nil, nil
	}
	if strings.EqualFold(dir, "auto") {
		var err error
		if dir, err = driver.DefaultCacheDir(); err != nil {
			return nil, err
		}
	}
	cache, err := driver.OpenCache(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	if drop {
		if err := cache.DropAll(); err != nil {
			return nil, fmt.Errorf("failed to clear cache: %w", err)
		}
	}
	logger.Debug("outcome cache", "dir", cache.Dir())
	return cache, nil
}

// writeModules saves every loadable module under dir, keeping file names.
func writeModules(timer *observ.Timer, dir string, results []driver.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return timer.Time("write modules", func() error {
		for i := range results {
			r := &results[i]
			if !r.Loadable() {
				logger.Warn("not written", "module", r.Path, "outcome", r.Outcome())
				continue
			}
			dst := filepath.Join(dir, filepath.Base(r.Path))
			if err := modfile.Save(dst, r.Module); err != nil {
				return err
			}
			logger.Info("written", "module", r.Path, "to", dst)
		}
		return nil
	})
}
