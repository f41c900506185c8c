// Package signal ties context cancellation to SIGINT and SIGTERM.
package signal

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

var (
	mu sync.Mutex
	// blockCount tracks nested BlockSignals calls.
	blockCount int
	// pendingCancel holds a cancel func to call once signals are unblocked.
	pendingCancel context.CancelFunc
)

// WithSignalCancel returns a context that is cancelled when SIGINT or
// SIGTERM is received. The cancel function releases the signal handler.
func WithSignalCancel(parent context.Context) (context.Context, context.CancelFunc) {
	return withNotify(parent, func(c chan<- os.Signal) {
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	})
}

func withNotify(parent context.Context, notify func(chan<- os.Signal)) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	notify(sigChan)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case <-sigChan:
			mu.Lock()
			if blockCount > 0 {
				pendingCancel = cancel
				mu.Unlock()
				return
			}
			mu.Unlock()
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// BlockSignals defers signal cancellation until UnblockSignals. Calls nest.
func BlockSignals() {
	mu.Lock()
	defer mu.Unlock()
	blockCount++
}

// UnblockSignals re-enables signal cancellation and runs any cancellation
// received while blocked.
func UnblockSignals() {
	mu.Lock()
	defer mu.Unlock()
	if blockCount > 0 {
		blockCount--
	}
	if blockCount == 0 && pendingCancel != nil {
		pendingCancel()
		pendingCancel = nil
	}
}
