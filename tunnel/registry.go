package tunnel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samber/lo"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
)

// AuthTokenKey is looked up on every create so that changes take effect without a restart.
const AuthTokenKey = "NGROK_AUTH_TOKEN"

type Opt func(*Registry)

func WithNow(now func() time.Time) Opt {
	return func(r *Registry) {
		r.now = now
	}
}

func WithEchoStarter(start EchoStarter) Opt {
	return func(r *Registry) {
		r.startEcho = start
	}
}

// Registry is the single authority over open tunnels, keyed by local port.
// Mutating operations are serialized, so the registry may be shared between the
// command loop and the interrupt handler.
type Registry struct {
	conf      *config.Config
	logger    logger.Logger
	stats     stats.Stats
	provider  Provider
	startEcho EchoStarter
	now       func() time.Time

	sem      chan struct{}
	sessions map[int]Session
	demo     DemoServer
}

func NewRegistry(conf *config.Config, log logger.Logger, statsFactory stats.Stats, provider Provider, opts ...Opt) *Registry {
	r := &Registry{
		conf:     conf,
		logger:   log.Child("registry"),
		stats:    statsFactory,
		provider: provider,
		now:      time.Now,
		sem:      make(chan struct{}, 1),
		sessions: make(map[int]Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Registry) lock(ctx context.Context) error {
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) unlock() {
	<-r.sem
}

// AuthConfigured reports whether an auth token is currently configured.
func (r *Registry) AuthConfigured() bool {
	return r.authToken() != ""
}

func (r *Registry) authToken() string {
	return r.conf.GetString(AuthTokenKey, "")
}

// Create opens a tunnel for port unless one is already registered, in which case the
// existing url is returned and the provider is not contacted.
func (r *Registry) Create(ctx context.Context, port int, opts Options) (CreateResult, error) {
	if err := ValidatePort(port); err != nil {
		return CreateResult{}, err
	}
	if err := opts.validate(); err != nil {
		return CreateResult{}, err
	}
	if err := r.lock(ctx); err != nil {
		return CreateResult{}, err
	}
	defer r.unlock()

	if s, ok := r.sessions[port]; ok {
		r.logger.Infow("tunnel already exists", "port", port, "url", s.URL)
		r.createStat("existing").Increment()
		return CreateResult{URL: s.URL, Existing: true}, nil
	}

	if token := r.authToken(); token != "" {
		opts.AuthToken = token
	}

	r.logger.Infow("creating tunnel", "port", port, "proto", opts.Proto, "region", opts.Region)
	start := r.now()
	url, err := r.provider.Connect(ctx, port, opts)
	if err != nil {
		r.logger.Warnw("creating tunnel", "port", port, "error", err)
		r.createStat("failed").Increment()
		return CreateResult{}, fmt.Errorf("creating tunnel for port %d: %w", port, err)
	}
	r.stats.NewStat("tunnel_connect_latency", stats.TimerType).Since(start)

	r.sessions[port] = Session{
		Port:      port,
		URL:       url,
		Options:   opts.Redacted(),
		CreatedAt: r.now(),
	}
	r.createStat("created").Increment()
	r.reportActive()
	r.logger.Infow("tunnel created", "port", port, "url", url)

	return CreateResult{URL: url}, nil
}

// Close disconnects the tunnel registered for port. It returns false when there is
// nothing to close. The mapping is dropped only once the provider confirmed the
// disconnect, so a failed close can be retried.
func (r *Registry) Close(ctx context.Context, port int) (bool, error) {
	if err := r.lock(ctx); err != nil {
		return false, err
	}
	defer r.unlock()

	s, ok := r.sessions[port]
	if !ok {
		r.closeStat("missing").Increment()
		return false, nil
	}

	if err := r.provider.Disconnect(ctx, s.URL); err != nil {
		r.logger.Warnw("closing tunnel", "port", port, "url", s.URL, "error", err)
		r.closeStat("failed").Increment()
		return false, fmt.Errorf("closing tunnel for port %d: %w", port, err)
	}
	delete(r.sessions, port)

	r.closeStat("closed").Increment()
	r.reportActive()
	r.logger.Infow("tunnel closed", "port", port, "url", s.URL)
	return true, nil
}

// CloseAll kills every remote tunnel, forgets all sessions and stops the demo server.
// Local state is cleared even when the kill fails.
func (r *Registry) CloseAll(ctx context.Context) error {
	if err := r.lock(ctx); err != nil {
		return err
	}
	defer r.unlock()

	var errs []error
	if err := r.provider.Kill(ctx); err != nil {
		orphaned := r.sortedSessions()
		r.logger.Warnw("killing tunnels failed, remote sessions may be orphaned",
			"error", err,
			"ports", lo.Map(orphaned, func(s Session, _ int) int { return s.Port }),
			"urls", lo.Map(orphaned, func(s Session, _ int) string { return s.URL }),
		)
		r.stats.NewStat("tunnel_orphaned_sessions", stats.CountType).Count(len(orphaned))
		errs = append(errs, fmt.Errorf("killing tunnels: %w", err))
	}
	clear(r.sessions)
	r.reportActive()

	if r.demo != nil {
		if err := r.demo.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stopping demo server: %w", err))
		}
		r.demo = nil
	}

	r.logger.Infow("all tunnels closed")
	return errors.Join(errs...)
}

// List returns the open sessions ordered by port.
func (r *Registry) List() []Session {
	r.sem <- struct{}{}
	defer r.unlock()
	return r.sortedSessions()
}

func (r *Registry) sortedSessions() []Session {
	ports := lo.Keys(r.sessions)
	slices.Sort(ports)
	return lo.Map(ports, func(port int, _ int) Session {
		return r.sessions[port]
	})
}

// StartDemo starts the demo echo server on port. It returns false if one is already running.
func (r *Registry) StartDemo(ctx context.Context, port int) (bool, error) {
	if err := ValidatePort(port); err != nil {
		return false, err
	}
	if r.startEcho == nil {
		return false, errors.New("demo server is not available")
	}
	if err := r.lock(ctx); err != nil {
		return false, err
	}
	defer r.unlock()

	if r.demo != nil {
		return false, nil
	}
	srv, err := r.startEcho(port)
	if err != nil {
		return false, fmt.Errorf("starting demo server on port %d: %w", port, err)
	}
	r.demo = srv
	r.logger.Infow("demo server started", "port", port)
	return true, nil
}

// DemoPort returns the port of the running demo server.
func (r *Registry) DemoPort() (int, bool) {
	r.sem <- struct{}{}
	defer r.unlock()
	if r.demo == nil {
		return 0, false
	}
	return r.demo.Port(), true
}

func (r *Registry) createStat(status string) stats.Measurement {
	return r.stats.NewTaggedStat("tunnel_create", stats.CountType, stats.Tags{"status": status})
}

func (r *Registry) closeStat(status string) stats.Measurement {
	return r.stats.NewTaggedStat("tunnel_close", stats.CountType, stats.Tags{"status": status})
}

func (r *Registry) reportActive() {
	r.stats.NewStat("tunnels_active", stats.GaugeType).Gauge(len(r.sessions))
}
