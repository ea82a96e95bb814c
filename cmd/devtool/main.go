package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/rudderlabs/rudder-tunnel/cmd/devtool/commands"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := &cli.App{
		Name:     "devtool",
		Usage:    "helpers for working on rudder-tunnel locally",
		Commands: commands.DefaultList,
	}
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Println(err)
		cancel()
		os.Exit(1)
	}
}
