package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"modpatch/internal/host"
	"modpatch/internal/meta"
	"modpatch/internal/modfile"
	"modpatch/internal/ruleset"
)

func newRulesCmd() *cobra.Command {
	var hosts []string
	cmd := &cobra.Command{
		Use:   "rules [flags] RULES.toml",
		Short: "Validate a rule table and list its rules in dispatch order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat := host.NewCatalog()
			for _, path := range hosts {
				m, err := modfile.Load(path)
				if err != nil {
					return err
				}
				if err := cat.AddModule(m); err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
			}
			set, err := ruleset.Load(args[0], cat)
			if err != nil {
				return err
			}
			rules, err := set.Build()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %d rule(s), %d facade(s)\n", set.Name, len(rules), set.Facades.Len())
			for i, r := range rules {
				fmt.Fprintf(out, "%3d  %s\n", i+1, r.Name())
			}
			for _, f := range set.Facades.Facades() {
				fmt.Fprintf(out, "facade %s : %s\n", f.Name(), meta.QualifiedName(f.Substitutes()))
				for _, s := range f.Shims() {
					fmt.Fprintf(out, "  %s -> %s\n", meta.FormatOperand(s.Old), meta.FormatOperand(s.Target))
				}
			}
			if len(set.Reserved) > 0 {
				fmt.Fprintf(out, "reserved: %v\n", set.Reserved)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&hosts, "host", nil, "host module file (repeatable)")
	return cmd
}
