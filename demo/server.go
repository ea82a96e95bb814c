// Package demo runs a small http server reflecting requests as json, useful to try a
// tunnel end to end.
package demo

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	kithttputil "github.com/rudderlabs/rudder-go-kit/httputil"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

type Opt func(*Server)

func WithNow(now func() time.Time) Opt {
	return func(s *Server) {
		s.now = now
	}
}

// WithStats records request metrics through the stat middleware.
func WithStats(stat stats.Stats) Opt {
	return func(s *Server) {
		s.stats = stat
	}
}

type Server struct {
	port   int
	logger logger.Logger
	stats  stats.Stats
	now    func() time.Time

	cancel context.CancelFunc
	g      *errgroup.Group
}

// Start binds the demo server on port and serves it in the background.
func Start(port int, log logger.Logger, opts ...Opt) (*Server, error) {
	s := &Server{
		logger: log.Child("demo"),
		stats:  stats.NOP,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listening on port %d: %w", port, err)
	}
	s.port = l.Addr().(*net.TCPAddr).Port

	srv := &http.Server{
		Handler:           StatMiddleware(s.stats)(Handler(s.logger, s.now)),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.g, ctx = errgroup.WithContext(ctx)
	s.g.Go(func() error {
		return kithttputil.Serve(ctx, srv, l, shutdownTimeout)
	})

	s.logger.Infow("demo server listening", "port", s.port)
	return s, nil
}

func (s *Server) Port() int {
	return s.port
}

// Shutdown stops the server and waits for it to release the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		s.logger.Infow("demo server stopped", "port", s.port)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
