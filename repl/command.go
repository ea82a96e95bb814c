package repl

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rudderlabs/rudder-tunnel/tunnel"
)

var ErrMissingPort = errors.New("missing port")

// Command is one of the commands understood by the prompt. The set is closed: every
// implementation lives in this file.
type Command interface {
	command()
}

type (
	Create struct {
		Port    int
		Options tunnel.Options
	}
	// Demo starts the demo server and tunnels it. A zero Port means the default port.
	Demo struct {
		Port int
	}
	Close struct {
		Port int
	}
	List    struct{}
	Exit    struct{}
	Help    struct{}
	Unknown struct {
		Name string
	}
)

func (Create) command()  {}
func (Demo) command()    {}
func (Close) command()   {}
func (List) command()    {}
func (Exit) command()    {}
func (Help) command()    {}
func (Unknown) command() {}

// Parse turns a line of input into a command. Blank lines yield a nil command.
// Arguments are validated here so that invalid input never reaches the registry.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "create":
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: usage: create <port> [key=value ...]", ErrMissingPort)
		}
		port, err := tunnel.ParsePort(args[0])
		if err != nil {
			return nil, err
		}
		opts, err := parseOptions(args[1:])
		if err != nil {
			return nil, err
		}
		return Create{Port: port, Options: opts}, nil
	case "demo":
		if len(args) == 0 {
			return Demo{}, nil
		}
		port, err := tunnel.ParsePort(args[0])
		if err != nil {
			return nil, err
		}
		return Demo{Port: port}, nil
	case "close":
		if len(args) == 0 {
			return nil, fmt.Errorf("%w: usage: close <port>", ErrMissingPort)
		}
		port, err := tunnel.ParsePort(args[0])
		if err != nil {
			return nil, err
		}
		return Close{Port: port}, nil
	case "list":
		return List{}, nil
	case "exit", "quit":
		return Exit{}, nil
	case "help", "?":
		return Help{}, nil
	default:
		return Unknown{Name: fields[0]}, nil
	}
}

func parseOptions(args []string) (tunnel.Options, error) {
	config := make(tunnel.Config, len(args))
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		if !ok || key == "" {
			return tunnel.Options{}, fmt.Errorf("%w: expected key=value, got %q", tunnel.ErrInvalidOption, arg)
		}
		config[strings.ToLower(key)] = value
	}
	return tunnel.OptionsFromConfig(config)
}
