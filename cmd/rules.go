package cmd

import (
	"fmt"
	"math"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/newhook/diaglog/internal/catalog"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "List the effective classification rules",
	Long: `List the rules that will be used for classification, in evaluation
order, followed by any entries of the rule source that were skipped.`,
	Args: cobra.NoArgs,
	RunE: runRules,
}

func runRules(cmd *cobra.Command, args []string) error {
	c := catalog.Load(cfg.Rules.Path)
	out := cmd.OutOrStdout()

	fmt.Fprintf(out, "Source: %s\n", c.Source())
	if reason := c.FallbackReason(); reason != nil {
		fmt.Fprintf(out, "Using built-in rules: %v\n", reason)
	}
	fmt.Fprintln(out)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tNAME\tTYPE\tSCOPE\tCOLOR")
	for _, r := range c.Rules() {
		rank := "-"
		if n := c.Rank(r.Type); n != math.MaxInt {
			rank = fmt.Sprintf("%d", n)
		}
		color := r.Color
		if color == "" {
			color = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", rank, r.Name, r.Type, r.Scope, color)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write rules: %w", err)
	}

	if skipped := c.Skipped(); len(skipped) > 0 {
		fmt.Fprintf(out, "\nSkipped %d entries:\n", len(skipped))
		for _, s := range skipped {
			name := s.Name
			if name == "" {
				name = "(unnamed)"
			}
			fmt.Fprintf(out, "  #%d %s: %s\n", s.Index, name, s.Reason)
		}
	}
	return nil
}
