package tunnel

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOptionsFromConfig(t *testing.T) {
	testCases := []struct {
		name      string
		config    Config
		want      Options
		wantError error
	}{
		{
			name:   "empty config",
			config: Config{},
			want:   Options{},
		},
		{
			name: "http options",
			config: Config{
				optProto:     "HTTP",
				optDomain:    "demo.ngrok.app",
				optBasicAuth: "user:pass",
				optRegion:    "eu",
				optMetadata:  "from-repl",
			},
			want: Options{
				Proto:     ProtoHTTP,
				Domain:    "demo.ngrok.app",
				BasicAuth: "user:pass",
				Region:    "eu",
				Metadata:  "from-repl",
			},
		},
		{
			name:   "tcp",
			config: Config{optProto: "tcp"},
			want:   Options{Proto: ProtoTCP},
		},
		{
			name:      "unknown key",
			config:    Config{"subdomain": "demo"},
			wantError: ErrUnknownOption,
		},
		{
			name:      "non string value",
			config:    Config{optRegion: 1},
			wantError: ErrUnexpectedType,
		},
		{
			name:      "unsupported proto",
			config:    Config{optProto: "udp"},
			wantError: ErrInvalidOption,
		},
		{
			name:      "basic auth without password",
			config:    Config{optBasicAuth: "user"},
			wantError: ErrInvalidOption,
		},
		{
			name:      "domain on tcp tunnel",
			config:    Config{optProto: "tcp", optDomain: "demo.ngrok.app"},
			wantError: ErrInvalidOption,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			opts, err := OptionsFromConfig(tc.config)
			if tc.wantError != nil {
				require.ErrorIs(t, err, tc.wantError)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, opts)
		})
	}
}

func TestOptionsRedacted(t *testing.T) {
	opts := Options{AuthToken: "secret", BasicAuth: "user:pass", Region: "us"}
	require.Equal(t, Options{AuthToken: "***", BasicAuth: "user:***", Region: "us"}, opts.Redacted())
	require.Equal(t, Options{}, Options{}.Redacted())
}
