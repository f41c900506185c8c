package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newhook/diaglog/internal/model"
	"github.com/newhook/diaglog/internal/render"
)

var (
	flagPrintWidth       int
	flagPrintLineNumbers bool
	flagPrintTest        string
	flagPrintFailures    bool
	flagPrintOutline     bool
)

var printCmd = &cobra.Command{
	Use:   "print FILE",
	Short: "Print a log with its classification colors",
	Args:  cobra.ExactArgs(1),
	RunE:  runPrint,
}

func init() {
	printCmd.Flags().IntVarP(&flagPrintWidth, "width", "w", 0, "truncate lines to this width (0 disables)")
	printCmd.Flags().BoolVarP(&flagPrintLineNumbers, "line-numbers", "n", true, "show source line numbers")
	printCmd.Flags().StringVarP(&flagPrintTest, "test", "t", "", "only print test cases whose id contains this text")
	printCmd.Flags().BoolVar(&flagPrintFailures, "failures-only", false, "only print failed test cases and final sections")
	printCmd.Flags().BoolVar(&flagPrintOutline, "outline", false, "print each test case's phases and folds instead of its lines")
}

func runPrint(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	input, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	res, err := processLog(ctx, startEngine(ctx), input, nil)
	if err != nil {
		return err
	}

	r := render.New(render.Options{Width: flagPrintWidth, LineNumbers: flagPrintLineNumbers})
	records := res.Meta.Records
	out := cmd.OutOrStdout()

	if flagPrintOutline {
		for i, rec := range records {
			if !rec.IsTestCaseHeader || !keepTestCase(rec) {
				continue
			}
			fmt.Fprintln(out, r.Record(rec))
			fmt.Fprint(out, r.Folds(res.Meta.FoldGroups[i], records))
		}
		return nil
	}

	keep := true
	for _, rec := range records {
		switch {
		case rec.IsTestCaseHeader:
			keep = keepTestCase(rec)
		case rec.IsFinalSectionHeader:
			keep = flagPrintTest == ""
		}
		if keep {
			fmt.Fprintln(out, r.Record(rec))
		}
	}
	return nil
}

func keepTestCase(rec model.Record) bool {
	if flagPrintFailures && rec.Outcome != model.OutcomeFailed {
		return false
	}
	return flagPrintTest == "" || strings.Contains(rec.CurrentTestCase, flagPrintTest)
}
