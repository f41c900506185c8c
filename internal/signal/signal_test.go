package signal

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fakeNotify(ch *chan<- os.Signal) func(chan<- os.Signal) {
	return func(c chan<- os.Signal) { *ch = c }
}

func TestWithSignalCancel_CancelsOnSignal(t *testing.T) {
	var sig chan<- os.Signal
	ctx, cancel := withNotify(context.Background(), fakeNotify(&sig))
	defer cancel()

	sig <- syscall.SIGINT

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		require.Fail(t, "context not cancelled on signal")
	}
}

func TestWithSignalCancel_BlockedUntilUnblock(t *testing.T) {
	var sig chan<- os.Signal
	ctx, cancel := withNotify(context.Background(), fakeNotify(&sig))
	defer cancel()

	BlockSignals()
	BlockSignals()
	sig <- syscall.SIGTERM

	select {
	case <-ctx.Done():
		require.Fail(t, "context cancelled while signals were blocked")
	case <-time.After(50 * time.Millisecond):
	}

	UnblockSignals()
	require.NoError(t, ctx.Err(), "nested block should still hold")

	UnblockSignals()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		require.Fail(t, "pending cancellation not run on unblock")
	}
}

func TestWithSignalCancel_ParentCancel(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := WithSignalCancel(parent)
	defer cancel()

	cancelParent()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		require.Fail(t, "child context not cancelled with parent")
	}
}
