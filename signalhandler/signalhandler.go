package signalhandler

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"imagededup/logging"
)

// SetupHandler returns a context that is cancelled on SIGINT or SIGTERM. A
// run in progress stops after the current image and still flushes its
// outputs. Calling the returned cancel function releases the handler.
func SetupHandler(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	// Create a channel to receive OS signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logging.LogWarning("signal received, stopping after the current image", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}
