package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/newhook/diaglog/internal/engine"
	"github.com/newhook/diaglog/internal/render"
)

var failuresCmd = &cobra.Command{
	Use:   "failures FILE",
	Short: "Summarize test outcomes and indexed failures",
	Args:  cobra.ExactArgs(1),
	RunE:  runFailures,
}

func runFailures(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	input, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}
	return reportFailures(ctx, startEngine(ctx), input, cmd.OutOrStdout())
}

// reportFailures runs input and writes the outcome table, final sections,
// failure index and anomalies.
func reportFailures(ctx context.Context, e *engine.Engine, input []byte, w io.Writer) error {
	res, err := processLog(ctx, e, input, nil)
	if err != nil {
		return err
	}
	meta := res.Meta

	fmt.Fprint(w, render.Outcomes(meta.Order, meta.Outcomes))
	if sections := render.FinalSections(meta.FinalSections); sections != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, sections)
	}
	fmt.Fprintln(w)
	fmt.Fprint(w, render.FailuresIndex(meta.FailuresIndex, meta.Records))
	if len(meta.Anomalies) > 0 {
		fmt.Fprintln(w)
		fmt.Fprint(w, render.Anomalies(meta.Anomalies))
	}
	fmt.Fprintf(w, "\n%d lines in %.0fms (%.0f lines/s, cache hit rate %.0f%%)\n",
		res.Complete.TotalLines, res.Complete.TotalTimeMS, res.Complete.LinesPerSecond, res.Complete.CacheHitRate*100)
	return nil
}
