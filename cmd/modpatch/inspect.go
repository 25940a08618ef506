package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"modpatch/internal/diag"
	"modpatch/internal/guard"
	"modpatch/internal/host"
	"modpatch/internal/meta"
	"modpatch/internal/modfile"
	"modpatch/internal/ruleset"
)

type inspectFlags struct {
	hosts    []string
	rules    string
	reserved []string
	dump     bool
}

func newInspectCmd() *cobra.Command {
	var f inspectFlags
	cmd := &cobra.Command{
		Use:   "inspect [flags] MODULE...",
		Short: "Print a module and check it against the access guard",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, f, args)
		},
	}
	cmd.Flags().StringArrayVar(&f.hosts, "host", nil, "host module file (repeatable, needed with --rules)")
	cmd.Flags().StringVar(&f.rules, "rules", "", "rule table whose reserved namespaces apply")
	cmd.Flags().StringArrayVar(&f.reserved, "reserved", nil, "reserved host namespace (repeatable)")
	cmd.Flags().BoolVar(&f.dump, "dump", true, "print the module contents")
	return cmd
}

func runInspect(cmd *cobra.Command, f inspectFlags, args []string) error {
	g, err := readGlobalFlags(cmd)
	if err != nil {
		return err
	}
	reserved := f.reserved
	if f.rules != "" {
		cat := host.NewCatalog()
		for _, path := range f.hosts {
			m, err := modfile.Load(path)
			if err != nil {
				return err
			}
			if err := cat.AddModule(m); err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
		}
		set, err := ruleset.Load(f.rules, cat)
		if err != nil {
			return err
		}
		reserved = append(reserved, set.Reserved...)
	}
	gd := guard.New(reserved...)

	out := cmd.OutOrStdout()
	bad := 0
	for _, path := range args {
		m, err := modfile.Load(path)
		if err != nil {
			return err
		}
		if f.dump {
			fmt.Fprint(out, meta.Dump(m))
		}
		bag := diag.NewBag(g.maxDiagnostics)
		reporter := diag.BagReporter{Bag: bag}
		if err := meta.Validate(m); err != nil {
			diag.ReportError(reporter, diag.InpInvalidModule, m.Name, "", err.Error()).Emit()
		}
		diag.FromDenials(reporter, m.Name, gd.CheckModule(m))
		if bag.HasErrors() {
			bad++
		}
		printDiagnostics(out, bag, g.quiet)
	}
	if bad > 0 {
		return errIncompatible
	}
	return nil
}
