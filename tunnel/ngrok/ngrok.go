// Package ngrok implements tunnel.Provider on top of the ngrok agent SDK.
package ngrok

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"

	ngrokgo "golang.ngrok.com/ngrok"
	ngrokconfig "golang.ngrok.com/ngrok/config"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/rudderlabs/rudder-tunnel/tunnel"
)

type forward struct {
	port      int
	session   ngrokgo.Session
	forwarder ngrokgo.Forwarder
}

func (f *forward) close() error {
	return errors.Join(f.forwarder.Close(), f.session.Close())
}

// Provider opens one ngrok agent session per tunnel, so that every tunnel can carry
// its own auth token and region.
type Provider struct {
	logger logger.Logger

	config struct {
		backendHost string
		region      string
	}

	mu       sync.Mutex
	forwards map[string]*forward // public url -> forward
}

func New(conf *config.Config, log logger.Logger) *Provider {
	p := &Provider{
		logger:   log.Child("ngrok"),
		forwards: make(map[string]*forward),
	}
	p.config.backendHost = conf.GetString("Ngrok.backendHost", "localhost")
	p.config.region = conf.GetString("Ngrok.region", "")
	return p
}

func (p *Provider) Connect(ctx context.Context, port int, opts tunnel.Options) (string, error) {
	backend, err := backendURL(p.config.backendHost, port, opts.Proto)
	if err != nil {
		return "", err
	}
	tunnelConfig, err := endpointConfig(backend, opts)
	if err != nil {
		return "", err
	}

	if opts.Region == "" {
		opts.Region = p.config.region
	}
	session, err := ngrokgo.Connect(ctx, connectOptions(opts)...)
	if err != nil {
		return "", fmt.Errorf("connecting to ngrok: %w", err)
	}
	forwarder, err := session.ListenAndForward(ctx, backend, tunnelConfig)
	if err != nil {
		_ = session.Close()
		return "", fmt.Errorf("starting ngrok tunnel to %s: %w", backend, err)
	}

	publicURL := forwarder.URL()
	p.mu.Lock()
	p.forwards[publicURL] = &forward{port: port, session: session, forwarder: forwarder}
	p.mu.Unlock()

	p.logger.Debugw("ngrok tunnel started", "url", publicURL, "backend", backend.String(), "id", forwarder.ID())
	return publicURL, nil
}

func (p *Provider) Disconnect(_ context.Context, publicURL string) error {
	p.mu.Lock()
	f, ok := p.forwards[publicURL]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", tunnel.ErrUnknownURL, publicURL)
	}

	if err := f.close(); err != nil {
		return fmt.Errorf("closing ngrok tunnel %s: %w", publicURL, err)
	}

	p.mu.Lock()
	delete(p.forwards, publicURL)
	p.mu.Unlock()
	return nil
}

// Kill closes every session opened by the provider. Sessions are forgotten even if
// closing them fails.
func (p *Provider) Kill(_ context.Context) error {
	p.mu.Lock()
	forwards := p.forwards
	p.forwards = make(map[string]*forward)
	p.mu.Unlock()

	var errs []error
	for publicURL, f := range forwards {
		if err := f.close(); err != nil {
			errs = append(errs, fmt.Errorf("closing ngrok tunnel %s for port %d: %w", publicURL, f.port, err))
		}
	}
	return errors.Join(errs...)
}

func backendURL(host string, port int, proto string) (*url.URL, error) {
	scheme := tunnel.ProtoHTTP
	if proto == tunnel.ProtoTCP {
		scheme = tunnel.ProtoTCP
	}
	return url.Parse(scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port)))
}

func connectOptions(opts tunnel.Options) []ngrokgo.ConnectOption {
	var connectOpts []ngrokgo.ConnectOption
	if opts.AuthToken != "" {
		connectOpts = append(connectOpts, ngrokgo.WithAuthtoken(opts.AuthToken))
	}
	if opts.Region != "" {
		connectOpts = append(connectOpts, ngrokgo.WithRegion(opts.Region))
	}
	return connectOpts
}

func endpointConfig(backend *url.URL, opts tunnel.Options) (ngrokconfig.Tunnel, error) {
	if opts.Proto == tunnel.ProtoTCP {
		tcpOpts := []ngrokconfig.TCPEndpointOption{
			ngrokconfig.WithForwardsTo(backend.Host),
		}
		if opts.Metadata != "" {
			tcpOpts = append(tcpOpts, ngrokconfig.WithMetadata(opts.Metadata))
		}
		return ngrokconfig.TCPEndpoint(tcpOpts...), nil
	}

	httpOpts := []ngrokconfig.HTTPEndpointOption{
		ngrokconfig.WithForwardsTo(backend.Host),
	}
	if opts.Domain != "" {
		httpOpts = append(httpOpts, ngrokconfig.WithDomain(opts.Domain))
	}
	if opts.BasicAuth != "" {
		user, pass, ok := strings.Cut(opts.BasicAuth, ":")
		if !ok {
			return nil, fmt.Errorf("%w: auth must be user:pass", tunnel.ErrInvalidOption)
		}
		httpOpts = append(httpOpts, ngrokconfig.WithBasicAuth(user, pass))
	}
	if opts.Metadata != "" {
		httpOpts = append(httpOpts, ngrokconfig.WithMetadata(opts.Metadata))
	}
	return ngrokconfig.HTTPEndpoint(httpOpts...), nil
}
