package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mpislabs/draftflow"
	"github.com/mpislabs/draftflow/cmd/draftflow/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.New().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error [%s]: %s\n", draftflow.CodeOf(err), draftflow.PublicMessage(err))
		os.Exit(1)
	}
}
