package tunnel

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownOption  = errors.New("unknown option")
	ErrUnexpectedType = errors.New("unexpected type")
	ErrInvalidOption  = errors.New("invalid option")
)

const (
	ProtoHTTP = "http"
	ProtoTCP  = "tcp"
)

const (
	optProto     = "proto"
	optDomain    = "domain"
	optBasicAuth = "auth"
	optRegion    = "region"
	optMetadata  = "metadata"
	optAuthToken = "authtoken"
)

type (
	Config map[string]interface{}

	// Options are passed to the provider when a tunnel is opened.
	Options struct {
		Proto     string
		Domain    string
		BasicAuth string // user:pass
		Region    string
		Metadata  string
		AuthToken string
	}
)

// OptionsFromConfig reads tunnel options out of a loosely typed config, e.g. the
// key=value pairs following a create command.
func OptionsFromConfig(config Config) (Options, error) {
	var opts Options

	for key := range config {
		switch key {
		case optProto, optDomain, optBasicAuth, optRegion, optMetadata, optAuthToken:
		default:
			return Options{}, fmt.Errorf("%w: %s", ErrUnknownOption, key)
		}
	}

	fields := []struct {
		key string
		dst *string
	}{
		{optProto, &opts.Proto},
		{optDomain, &opts.Domain},
		{optBasicAuth, &opts.BasicAuth},
		{optRegion, &opts.Region},
		{optMetadata, &opts.Metadata},
		{optAuthToken, &opts.AuthToken},
	}
	for _, f := range fields {
		val, err := readString(f.key, config)
		if err != nil {
			return Options{}, err
		}
		*f.dst = val
	}
	opts.Proto = strings.ToLower(opts.Proto)

	if err := opts.validate(); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func (o Options) validate() error {
	switch o.Proto {
	case "", ProtoHTTP, ProtoTCP:
	default:
		return fmt.Errorf("%w: proto must be %s or %s, got %q", ErrInvalidOption, ProtoHTTP, ProtoTCP, o.Proto)
	}
	if o.BasicAuth != "" {
		user, pass, ok := strings.Cut(o.BasicAuth, ":")
		if !ok || user == "" || pass == "" {
			return fmt.Errorf("%w: auth must be user:pass", ErrInvalidOption)
		}
	}
	if o.Proto == ProtoTCP && (o.Domain != "" || o.BasicAuth != "") {
		return fmt.Errorf("%w: domain and auth are only supported for %s tunnels", ErrInvalidOption, ProtoHTTP)
	}
	return nil
}

// Redacted returns a copy safe to keep around and print.
func (o Options) Redacted() Options {
	if o.AuthToken != "" {
		o.AuthToken = "***"
	}
	if user, _, ok := strings.Cut(o.BasicAuth, ":"); ok {
		o.BasicAuth = user + ":***"
	}
	return o
}

// readString returns an empty string for absent keys.
func readString(key string, config Config) (string, error) {
	val, ok := config[key]
	if !ok {
		return "", nil
	}

	resp, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s expected string", ErrUnexpectedType, key)
	}
	return strings.TrimSpace(resp), nil
}
