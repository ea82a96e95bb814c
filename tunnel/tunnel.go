package tunnel

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidPort = errors.New("invalid port, expected a number between 1 and 65535")
	ErrUnknownURL  = errors.New("unknown tunnel url")
)

const (
	minPort = 1
	maxPort = 65535
)

// Provider is the remote tunnel service sessions are opened against.
//
//go:generate mockgen -destination=mock_provider_test.go -package=tunnel github.com/rudderlabs/rudder-tunnel/tunnel Provider
type Provider interface {
	// Connect opens a tunnel to the local port and returns its public url.
	Connect(ctx context.Context, port int, opts Options) (string, error)
	// Disconnect closes the tunnel previously returned for publicURL.
	Disconnect(ctx context.Context, publicURL string) error
	// Kill closes every tunnel the provider knows about.
	Kill(ctx context.Context) error
}

// DemoServer is a live demo echo server.
type DemoServer interface {
	Port() int
	Shutdown(ctx context.Context) error
}

// EchoStarter binds a demo echo server on port.
type EchoStarter func(port int) (DemoServer, error)

type Session struct {
	Port      int
	URL       string
	Options   Options
	CreatedAt time.Time
}

type CreateResult struct {
	URL string
	// Existing is set when the port was already tunneled and no new tunnel was opened.
	Existing bool
}

// ParsePort parses a decimal tcp port.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPort, s)
	}
	if err := ValidatePort(port); err != nil {
		return 0, err
	}
	return port, nil
}

// ValidatePort checks that port is within the tcp port range.
func ValidatePort(port int) error {
	if port < minPort || port > maxPort {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}
	return nil
}
