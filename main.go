package main

import (
	"context"
	"os"

	"imagededup/cmd"
	"imagededup/signalhandler"
)

func main() {
	// Cancel the run on SIGINT/SIGTERM so partial results are flushed
	ctx, cancel := signalhandler.SetupHandler(context.Background())

	err := cmd.RootCommand().ExecuteContext(ctx)
	cancel()

	os.Exit(cmd.ExitCode(err))
}
