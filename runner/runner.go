package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	svcMetric "github.com/rudderlabs/rudder-go-kit/stats/metric"

	"github.com/rudderlabs/rudder-tunnel/demo"
	"github.com/rudderlabs/rudder-tunnel/repl"
	"github.com/rudderlabs/rudder-tunnel/tunnel"
	"github.com/rudderlabs/rudder-tunnel/tunnel/ngrok"
)

// ReleaseInfo holds the release information
type ReleaseInfo struct {
	Version   string
	Commit    string
	BuildDate string
	BuiltBy   string
}

type Opt func(*Runner)

func WithStdio(stdin io.Reader, stdout io.Writer) Opt {
	return func(r *Runner) {
		r.stdin = stdin
		r.stdout = stdout
	}
}

// WithProvider replaces the ngrok provider.
func WithProvider(provider tunnel.Provider) Opt {
	return func(r *Runner) {
		r.provider = provider
	}
}

// Runner is responsible for running the application
type Runner struct {
	releaseInfo   ReleaseInfo
	conf          *config.Config
	loggerFactory *logger.Factory
	logger        logger.Logger
	stdin         io.Reader
	stdout        io.Writer
	provider      tunnel.Provider
}

// New creates and initializes a new Runner
func New(releaseInfo ReleaseInfo, conf *config.Config, opts ...Opt) *Runner {
	// log lines would be interleaved with the prompt
	if !conf.IsSet("LOG_LEVEL") {
		conf.Set("LOG_LEVEL", "WARN")
	}
	if !conf.IsSet("enableStats") {
		conf.Set("enableStats", false)
	}

	loggerFactory := logger.NewFactory(conf)
	r := &Runner{
		releaseInfo:   releaseInfo,
		conf:          conf,
		loggerFactory: loggerFactory,
		logger:        loggerFactory.NewLogger().Child("runner"),
		stdin:         os.Stdin,
		stdout:        os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run runs the application and returns the exit code
func (r *Runner) Run(ctx context.Context, args []string) int {
	app := &cli.App{
		Name:      "rudder-tunnel",
		Usage:     "expose local ports on the internet through ngrok tunnels",
		Version:   r.releaseInfo.Version,
		Writer:    r.stdout,
		ErrWriter: r.stdout,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "demo-port",
				Usage: "default port of the demo command",
				Value: 3000,
			},
			&cli.StringFlag{
				Name:  "region",
				Usage: "ngrok region used when a tunnel does not specify one",
			},
			&cli.BoolFlag{
				Name:  "no-color",
				Usage: "disable colored output",
			},
			&cli.DurationFlag{
				Name:  "shutdown-timeout",
				Usage: "how long to wait for tunnels to close on interrupt",
				Value: r.conf.GetDuration("Tunnel.shutdownTimeout", 5, time.Second),
			},
		},
		Action: r.session,
	}

	err := app.RunContext(ctx, args)
	r.loggerFactory.Sync()
	if err != nil {
		r.logger.Errorw("fatal error", "error", err)
		_, _ = fmt.Fprintf(r.stdout, "Fatal error: %v\n", err)
		return 1
	}
	return 0
}

func (r *Runner) session(c *cli.Context) error {
	ctx := c.Context

	if c.IsSet("demo-port") {
		if err := tunnel.ValidatePort(c.Int("demo-port")); err != nil {
			return err
		}
		r.conf.Set("Demo.defaultPort", c.Int("demo-port"))
	}
	if c.IsSet("region") {
		r.conf.Set("Ngrok.region", c.String("region"))
	}
	shutdownTimeout := c.Duration("shutdown-timeout")

	statsOptions := []stats.Option{
		stats.WithServiceName("rudder-tunnel"),
		stats.WithServiceVersion(r.releaseInfo.Version),
	}
	for histogramName, buckets := range customBuckets {
		statsOptions = append(statsOptions, stats.WithHistogramBuckets(histogramName, buckets))
	}
	statsFactory := stats.NewStats(r.conf, r.loggerFactory, svcMetric.Instance, statsOptions...)
	if err := statsFactory.Start(ctx, stats.DefaultGoRoutineFactory); err != nil {
		return fmt.Errorf("starting stats: %w", err)
	}
	defer statsFactory.Stop()

	provider := r.provider
	if provider == nil {
		provider = ngrok.New(r.conf, r.logger)
	}
	registry := tunnel.NewRegistry(r.conf, r.logger, statsFactory, provider,
		tunnel.WithEchoStarter(func(port int) (tunnel.DemoServer, error) {
			return demo.Start(port, r.logger, demo.WithStats(statsFactory))
		}),
	)

	console := repl.NewConsole(r.stdout, c.Bool("no-color") || !isTerminal(r.stdout))
	dispatcher := repl.NewDispatcher(r.conf, r.logger, registry, console)
	loop := repl.NewLoop(r.stdin, isTerminal(r.stdin), console, dispatcher, r.logger)

	console.Banner(registry.AuthConfigured(), r.conf.GetInt("Demo.defaultPort", 3000))

	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		console.Notice("\n\nShutting down...")
		r.teardown(registry, shutdownTimeout)
		return nil
	default:
		r.teardown(registry, shutdownTimeout)
		return err
	}
}

// teardown makes a single bounded attempt at closing everything.
func (r *Runner) teardown(registry *tunnel.Registry, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	start := time.Now()
	if err := registry.CloseAll(ctx); err != nil {
		r.logger.Warnw("closing tunnels on shutdown", "error", err, "elapsed", time.Since(start).String())
		return
	}
	r.logger.Infow("tunnels closed on shutdown", "elapsed", time.Since(start).String())
}

func isTerminal(v interface{}) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
