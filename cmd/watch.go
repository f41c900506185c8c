package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/newhook/diaglog/internal/engine"
	"github.com/newhook/diaglog/internal/logging"
	"github.com/newhook/diaglog/internal/watcher"
)

var watchCmd = &cobra.Command{
	Use:   "watch FILE",
	Short: "Re-run the failure summary whenever the log or rule source changes",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := GetContext()
	logPath := args[0]
	if logPath == "-" {
		return fmt.Errorf("watch needs a file, not stdin")
	}

	paths := []string{logPath}
	if cfg.Rules.Path != "" {
		paths = append(paths, cfg.Rules.Path)
	}
	w, err := watcher.New(watcher.Config{Paths: paths, DebounceDur: cfg.Watch.GetDebounce()})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Start(); err != nil {
		_ = w.Stop()
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer func() { _ = w.Stop() }()

	e := startEngine(ctx)
	return watchLoop(ctx, e, w, logPath, cfg.Rules.Path, cmd.OutOrStdout())
}

// watchLoop reports once, then again after every change notification.
// Changes to rulesPath reload the catalog first.
func watchLoop(ctx context.Context, e *engine.Engine, w *watcher.Watcher, logPath, rulesPath string, out io.Writer) error {
	changes := make(chan []string, 1)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(changes)
		sub := w.Broker().Subscribe(gctx)
		for {
			select {
			case <-gctx.Done():
				return nil
			case evt, ok := <-sub:
				if !ok {
					return nil
				}
				if evt.Payload.Type != watcher.FileChanged {
					continue
				}
				// Coalesce with a notification that has not been handled yet.
				select {
				case pending := <-changes:
					changes <- append(pending, evt.Payload.Paths...)
				default:
					changes <- evt.Payload.Paths
				}
			}
		}
	})

	g.Go(func() error {
		rulesAbs := ""
		if rulesPath != "" {
			rulesAbs, _ = filepath.Abs(rulesPath)
		}
		report := func() error {
			input, err := readFile(logPath)
			if err != nil {
				logging.Warn("failed to read watched log", "path", logPath, "error", err)
				return nil
			}
			fmt.Fprintf(out, "==> %s\n", logPath)
			if err := reportFailures(gctx, e, input, out); err != nil && gctx.Err() == nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			return nil
		}

		if err := report(); err != nil {
			return err
		}
		for paths := range changes {
			if rulesAbs != "" && slices.Contains(paths, rulesAbs) {
				c := e.ReloadCatalog(rulesPath)
				if reason := c.FallbackReason(); reason != nil {
					fmt.Fprintf(out, "rule source unusable, using built-in rules: %v\n", reason)
				}
			}
			if err := report(); err != nil {
				return err
			}
		}
		return nil
	})

	return g.Wait()
}
