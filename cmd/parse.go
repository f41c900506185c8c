package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/newhook/diaglog/internal/engine"
	dlsignal "github.com/newhook/diaglog/internal/signal"
)

var (
	flagParseOutput  string
	flagParseBatches bool
)

var parseCmd = &cobra.Command{
	Use:   "parse FILE",
	Short: "Classify a log and print protocol messages as NDJSON",
	Long: `Classify a log and print every protocol message as one JSON object per
line: start progress, record batches, processing progress, meta and
complete. Use "-" to read the log from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	parseCmd.Flags().StringVarP(&flagParseOutput, "output", "o", "", "write messages to this file instead of stdout")
	parseCmd.Flags().BoolVar(&flagParseBatches, "batches", true, "include record batches")
}

func runParse(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	input, err := readInput(cmd, args[0])
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if flagParseOutput != "" {
		f, err := os.Create(flagParseOutput)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	e := startEngine(ctx)
	_, err = processLog(ctx, e, input, func(m engine.Message) error {
		if m.Type == engine.TypeBatch && !flagParseBatches {
			return nil
		}
		dlsignal.BlockSignals()
		defer dlsignal.UnblockSignals()
		if err := enc.Encode(m); err != nil {
			return fmt.Errorf("failed to write message: %w", err)
		}
		return nil
	})
	if flushErr := bw.Flush(); flushErr != nil && err == nil {
		err = fmt.Errorf("failed to write output: %w", flushErr)
	}
	return err
}
