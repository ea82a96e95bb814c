package repl

import (
	"context"
	"errors"
	"fmt"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/rudderlabs/rudder-tunnel/tunnel"
)

// ErrExit is returned once the exit command tore everything down.
var ErrExit = errors.New("exit requested")

type registry interface {
	Create(ctx context.Context, port int, opts tunnel.Options) (tunnel.CreateResult, error)
	Close(ctx context.Context, port int) (bool, error)
	CloseAll(ctx context.Context) error
	List() []tunnel.Session
	StartDemo(ctx context.Context, port int) (bool, error)
}

type Dispatcher struct {
	registry registry
	console  *Console
	logger   logger.Logger

	config struct {
		demoPort int
	}
}

func NewDispatcher(conf *config.Config, log logger.Logger, registry registry, console *Console) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		console:  console,
		logger:   log.Child("dispatcher"),
	}
	d.config.demoPort = conf.GetInt("Demo.defaultPort", 3000)
	return d
}

// Execute runs a single command. Provider failures are reported on the console and
// do not end the session; only ErrExit and context errors are returned.
func (d *Dispatcher) Execute(ctx context.Context, cmd Command) error {
	switch cmd := cmd.(type) {
	case nil:
		return nil
	case Create:
		d.create(ctx, cmd.Port, cmd.Options)
	case Demo:
		d.demo(ctx, cmd.Port)
	case Close:
		d.close(ctx, cmd.Port)
	case List:
		d.console.Sessions(d.registry.List())
	case Exit:
		d.console.Notice("\nShutting down...")
		if err := d.registry.CloseAll(ctx); err != nil {
			d.logger.Warnw("closing tunnels on exit", "error", err)
			d.console.Error(err)
		}
		d.console.Notice("All tunnels closed")
		return ErrExit
	case Help:
		d.console.Help(d.config.demoPort)
	case Unknown:
		d.console.Error(fmt.Errorf("command not recognized: %s", cmd.Name))
		d.console.Info(`Type "help" to list the available commands`)
	default:
		panic(fmt.Sprintf("unhandled command %T", cmd))
	}
	return ctx.Err()
}

func (d *Dispatcher) create(ctx context.Context, port int, opts tunnel.Options) {
	d.console.Info("Creating tunnel for localhost:%d...", port)
	res, err := d.registry.Create(ctx, port, opts)
	if err != nil {
		d.console.Error(err)
		return
	}
	if res.Existing {
		d.console.Notice("Tunnel already exists for port %d: %s", port, res.URL)
		return
	}
	d.console.Created(port, res.URL)
}

func (d *Dispatcher) demo(ctx context.Context, port int) {
	if port == 0 {
		port = d.config.demoPort
	}
	started, err := d.registry.StartDemo(ctx, port)
	if err != nil {
		d.console.Error(err)
		return
	}
	if started {
		d.console.Success("✓ Demo server started on port %d", port)
	} else {
		d.console.Notice("Demo server is already running")
	}
	d.create(ctx, port, tunnel.Options{})
}

func (d *Dispatcher) close(ctx context.Context, port int) {
	closed, err := d.registry.Close(ctx, port)
	if err != nil {
		d.console.Error(err)
		return
	}
	if !closed {
		d.console.Notice("No active tunnel on port %d", port)
		return
	}
	d.console.Notice("Tunnel closed for port %d", port)
}
