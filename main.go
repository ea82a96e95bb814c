package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	_ "go.uber.org/automaxprocs"

	"github.com/rudderlabs/rudder-go-kit/config"

	"github.com/rudderlabs/rudder-tunnel/runner"
)

var (
	version                    = "Not an official release. Get the latest release from the github repo."
	commit, buildDate, builtBy string
)

func main() {
	// a missing .env file is fine, the environment is used as is
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	r := runner.New(runner.ReleaseInfo{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
		BuiltBy:   builtBy,
	}, config.New(config.WithEnvPrefix("RTUNNEL")))
	exitCode := r.Run(ctx, os.Args)
	cancel()
	os.Exit(exitCode)
}
