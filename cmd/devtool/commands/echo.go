package commands

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/urfave/cli/v2"

	kithttputil "github.com/rudderlabs/rudder-go-kit/httputil"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/rudderlabs/rudder-tunnel/demo"
)

var DefaultList []*cli.Command

func init() {
	DefaultList = append(DefaultList, ECHO())
}

func ECHO() *cli.Command {
	c := &cli.Command{
		Name:  "echo",
		Usage: "spin up the demo server without a tunnel",
		Subcommands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "serve requests reflecting them back as json",
				Action: EchoRun,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "port",
						Usage: "specify the port to listen on",
						Value: 3000,
					},
					&cli.BoolFlag{
						Name:    "verbose",
						Aliases: []string{"v"},
						Usage:   "print every request",
						Value:   false,
					},
				},
			},
		},
	}

	return c
}

func EchoRun(c *cli.Context) error {
	port := c.Int("port")

	var handler http.Handler = demo.Handler(logger.NOP, time.Now)
	if c.Bool("verbose") {
		handler = middleware.Logger(handler)
	}

	l, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return err
	}

	fmt.Printf("listening on: http://localhost:%d \n", port)
	httpWebServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       720 * time.Second,
		MaxHeaderBytes:    524288,
	}
	return kithttputil.Serve(c.Context, httpWebServer, l, 5*time.Second)
}
