package repl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/rudder-tunnel/tunnel"
)

type fakeProvider struct {
	mu          sync.Mutex
	connectErr  error
	connects    []int
	disconnects []string
	kills       int
}

func (p *fakeProvider) Connect(_ context.Context, port int, _ tunnel.Options) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.connectErr != nil {
		return "", p.connectErr
	}
	p.connects = append(p.connects, port)
	return fmt.Sprintf("https://%d-%d.ngrok.app", port, len(p.connects)), nil
}

func (p *fakeProvider) Disconnect(_ context.Context, publicURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnects = append(p.disconnects, publicURL)
	return nil
}

func (p *fakeProvider) Kill(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kills++
	return nil
}

type fakeDemo struct {
	port    int
	stopped bool
}

func (d *fakeDemo) Port() int { return d.port }

func (d *fakeDemo) Shutdown(context.Context) error {
	d.stopped = true
	return nil
}

type testEnv struct {
	provider *fakeProvider
	registry *tunnel.Registry
	demos    []*fakeDemo
	out      *bytes.Buffer
	console  *Console
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv(tunnel.AuthTokenKey, "")

	env := &testEnv{
		provider: &fakeProvider{},
		out:      &bytes.Buffer{},
	}
	env.registry = tunnel.NewRegistry(config.New(), logger.NOP, stats.NOP, env.provider,
		tunnel.WithEchoStarter(func(port int) (tunnel.DemoServer, error) {
			d := &fakeDemo{port: port}
			env.demos = append(env.demos, d)
			return d, nil
		}),
	)
	env.console = NewConsole(env.out, true)
	return env
}

func (env *testEnv) loop(in io.Reader) *Loop {
	dispatcher := NewDispatcher(config.New(), logger.NOP, env.registry, env.console)
	return NewLoop(in, false, env.console, dispatcher, logger.NOP)
}

func TestLoop(t *testing.T) {
	ctx := context.Background()

	t.Run("session scenario", func(t *testing.T) {
		env := newTestEnv(t)
		script := strings.Join([]string{
			"create 8080",
			"create 8080",
			"close 8080",
			"close 8080",
			"demo",
			"list",
			"exit",
			"create 9999", // never read
		}, "\n")

		require.NoError(t, env.loop(strings.NewReader(script)).Run(ctx))

		require.Equal(t, []int{8080, 3000}, env.provider.connects)
		require.Equal(t, []string{"https://8080-1.ngrok.app"}, env.provider.disconnects)
		require.Equal(t, 1, env.provider.kills)
		require.Empty(t, env.registry.List())
		require.Len(t, env.demos, 1)
		require.True(t, env.demos[0].stopped)

		out := env.out.String()
		require.Contains(t, out, "Public URL: https://8080-1.ngrok.app")
		require.Contains(t, out, "Tunnel already exists for port 8080: https://8080-1.ngrok.app")
		require.Contains(t, out, "Tunnel closed for port 8080")
		require.Contains(t, out, "No active tunnel on port 8080")
		require.Contains(t, out, "Demo server started on port 3000")
		require.Contains(t, out, "https://3000-2.ngrok.app")
		require.Contains(t, out, "Active tunnels:")
		require.Contains(t, out, "All tunnels closed")
	})

	t.Run("validation errors never reach the provider", func(t *testing.T) {
		env := newTestEnv(t)
		script := "create 0\ncreate 65536\ncreate abc\nclose\ndemo 0\n"

		require.NoError(t, env.loop(strings.NewReader(script)).Run(ctx))

		require.Empty(t, env.provider.connects)
		require.Empty(t, env.demos)
		out := env.out.String()
		require.Equal(t, 4, strings.Count(out, "invalid port"), out)
		require.Contains(t, out, "missing port")
	})

	t.Run("provider errors are reported and the loop goes on", func(t *testing.T) {
		env := newTestEnv(t)
		env.provider.connectErr = errors.New("authentication failed")

		require.NoError(t, env.loop(strings.NewReader("create 8080\nlist\n")).Run(ctx))

		require.Contains(t, env.out.String(), "Error: creating tunnel for port 8080: authentication failed")
		require.Contains(t, env.out.String(), "No active tunnels")
		require.Equal(t, 1, env.provider.kills, "end of input closes everything")
	})

	t.Run("unknown commands", func(t *testing.T) {
		env := newTestEnv(t)

		require.NoError(t, env.loop(strings.NewReader("open 80\n\nhelp\nquit\n")).Run(ctx))

		out := env.out.String()
		require.Contains(t, out, "command not recognized: open")
		require.Contains(t, out, "Commands:")
	})

	t.Run("second demo reuses the running server", func(t *testing.T) {
		env := newTestEnv(t)

		require.NoError(t, env.loop(strings.NewReader("demo 4000\ndemo 4000\nexit\n")).Run(ctx))

		require.Len(t, env.demos, 1)
		require.Equal(t, []int{4000}, env.provider.connects)
		require.Contains(t, env.out.String(), "Demo server is already running")
	})

	t.Run("help reflects the configured demo port", func(t *testing.T) {
		env := newTestEnv(t)
		conf := config.New()
		conf.Set("Demo.defaultPort", 4000)
		dispatcher := NewDispatcher(conf, logger.NOP, env.registry, env.console)

		l := NewLoop(strings.NewReader("help\ndemo\nexit\n"), false, env.console, dispatcher, logger.NOP)
		require.NoError(t, l.Run(ctx))

		require.Contains(t, env.out.String(), "(default port: 4000)")
		require.NotContains(t, env.out.String(), "(default port: 3000)")
		require.Equal(t, []int{4000}, env.provider.connects)
	})

	t.Run("cancelled context", func(t *testing.T) {
		env := newTestEnv(t)
		pr, pw := io.Pipe()
		defer func() { _ = pw.Close() }()

		ctx, cancel := context.WithCancel(ctx)
		cancel()

		require.ErrorIs(t, env.loop(pr).Run(ctx), context.Canceled)
		require.Zero(t, env.provider.kills)
	})

	t.Run("panics are fatal", func(t *testing.T) {
		env := newTestEnv(t)
		l := NewLoop(strings.NewReader("list\n"), false, env.console, panicking{}, logger.NOP)

		err := l.Run(ctx)
		require.ErrorIs(t, err, ErrFatal)
		require.ErrorContains(t, err, "boom")
	})
}

type panicking struct{}

func (panicking) Execute(context.Context, Command) error {
	panic("boom")
}
