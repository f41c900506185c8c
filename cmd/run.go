package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/newhook/diaglog/internal/engine"
)

// runResult is what a completed run delivered.
type runResult struct {
	Meta     *engine.Meta
	Complete *engine.Complete
}

// errCancelled reports a run whose channel closed before it completed.
var errCancelled = errors.New("run cancelled")

// processLog runs input through the engine, validating the message order.
// onMessage, when set, sees every message as it arrives; batch payloads are
// only valid during the call.
func processLog(ctx context.Context, e *engine.Engine, input []byte, onMessage func(engine.Message) error) (*runResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	out, err := e.Process(runCtx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to start run: %w", err)
	}

	var (
		checker engine.ProtocolChecker
		res     runResult
		runErr  error
	)
	for m := range out {
		if runErr != nil {
			continue
		}
		if err := checker.Observe(m); err != nil {
			runErr = fmt.Errorf("protocol violation: %w", err)
			cancel()
			continue
		}
		if onMessage != nil {
			if err := onMessage(m); err != nil {
				runErr = err
				cancel()
				continue
			}
		}
		switch m.Type {
		case engine.TypeMeta:
			res.Meta = m.Meta
		case engine.TypeComplete:
			res.Complete = m.Complete
		case engine.TypeError:
			runErr = fmt.Errorf("run failed: %s", m.Error)
		}
	}
	if runErr != nil {
		return nil, runErr
	}
	if err := checker.Done(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", errCancelled, ctx.Err())
		}
		return nil, err
	}
	return &res, nil
}
