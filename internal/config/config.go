// Package config handles the parsing and validation of application configuration
// from command-line arguments and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/woozymasta/legacyping/internal/logger"
	"github.com/woozymasta/legacyping/internal/vars"
)

// Config represents the complete application flags configuration.
type Config struct {
	// betteralign:ignore

	Query     Query         `group:"Query Options" env-namespace:"LEGACYPING"`
	Server    Server        `group:"Server Options" env-namespace:"LEGACYPING"`
	Poller    Poller        `group:"Poller Options" namespace:"poll" env-namespace:"LEGACYPING_POLL"`
	Storage   Storage       `group:"Storage Options" namespace:"db" env-namespace:"LEGACYPING_DB"`
	GeoIP     GeoIP         `group:"GeoIP Options" namespace:"geoip" env-namespace:"LEGACYPING_GEOIP"`
	RateLimit RateLimit     `group:"Rate Limit Options" namespace:"rate-limit" env-namespace:"LEGACYPING_RATE_LIMIT"`
	Logger    logger.Config `group:"Logger Options" namespace:"log" env-namespace:"LEGACYPING_LOG"`

	Args struct {
		Targets []string `positional-arg-name:"HOST[:PORT]" description:"Servers to query once and print"`
	} `positional-args:"yes"`

	FakeListen string `long:"fake-listen" hidden:"true"`

	Version bool `short:"v" long:"version" description:"Print version and build info"`
}

// Query holds options of the one-shot query mode.
type Query struct {
	// betteralign:ignore

	Timeout time.Duration `short:"T" long:"timeout" env:"TIMEOUT" description:"Timeout for the whole exchange, connect included" default:"1s"`
	JSON    bool          `short:"j" long:"json" env:"JSON" description:"Print results as JSON lines"`
	Plain   bool          `short:"p" long:"plain" env:"PLAIN" description:"Strip formatting codes from MOTD"`
}

// Server holds web server configuration.
type Server struct {
	// betteralign:ignore

	Serve        bool     `short:"s" long:"serve" env:"SERVE" description:"Run HTTP API and background poller"`
	Address      string   `short:"l" long:"address" env:"LISTEN_ADDRESS" description:"Server listen address" default:":8080"`
	AuthToken    string   `short:"t" long:"auth-token" env:"AUTH_TOKEN" description:"Admin authentication token"`
	AllowedHosts []string `long:"allowed-host" env:"ALLOWED_HOSTS" description:"Hosts allowed for live queries (all if empty)" env-delim:","`
	TrustProxy   bool     `long:"trust-proxy" env:"TRUST_PROXY" description:"Trust X-Forwarded-For headers"`
}

// Poller holds background polling configuration.
type Poller struct {
	// betteralign:ignore

	Targets  []string      `long:"target" env:"TARGETS" description:"Servers polled in serve mode" env-delim:","`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Interval between poll rounds" default:"1m"`
	Workers  int           `long:"workers" env:"WORKERS" description:"Concurrent queries per round" default:"10"`
	Rate     float64       `long:"rate" env:"RATE" description:"Max queries started per second (0 = unlimited)" default:"20"`
}

// Storage holds database configuration.
type Storage struct {
	// betteralign:ignore

	Path         string        `short:"d" long:"path" env:"PATH" description:"Path to SQLite database" default:"legacyping.db"`
	PruneSamples time.Duration `long:"prune-samples" description:"Delete samples older than duration and exit"`
	PruneOffline bool          `long:"prune-offline" description:"Delete servers never seen online and exit"`
}

// GeoIP holds MaxMind GeoIP configuration.
type GeoIP struct {
	// betteralign:ignore

	Path     string        `short:"g" long:"path" env:"PATH" description:"Path to MMDB file (empty disables lookup)" default:"legacyping.mmdb"`
	URL      string        `long:"url" env:"URL" description:"URL to download MMDB" default:"https://git.io/GeoLite2-Country.mmdb"`
	Interval time.Duration `long:"interval" env:"INTERVAL" description:"Update interval check" default:"24h"`
}

// RateLimit holds API rate limiting configuration.
type RateLimit struct {
	// betteralign:ignore

	HardLimitCount int           `long:"hard-count" env:"HARD_COUNT" description:"Per IP live query limit: requests count" default:"30"`
	HardLimitWin   time.Duration `long:"hard-window" env:"HARD_WINDOW" description:"Per IP live query limit: window duration" default:"1m"`
	SoftLimitDur   time.Duration `long:"soft" env:"SOFT" description:"Ignore check requests for a target queued within duration" default:"30s"`
}

// Maintenance reports whether a maintenance task was requested.
func (c *Config) Maintenance() bool {
	return c.Storage.PruneSamples > 0 || c.Storage.PruneOffline
}

// Parse reads the configuration from flags and environment variables.
// It terminates the application if the configuration is invalid or if the help flag is invoked.
func Parse() *Config {
	cfg, err := ParseArgs(os.Args[1:])
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}

	if cfg.Version {
		vars.Print()
		os.Exit(0)
	}

	return cfg
}

// ParseArgs parses args and validates the result.
// Help and parse errors are printed by go-flags itself.
func ParseArgs(args []string) (*Config, error) {
	var cfg Config
	parser := flags.NewParser(&cfg, flags.Default)
	parser.NamespaceDelimiter = "-"
	parser.Usage = "[OPTIONS] [HOST[:PORT]...]"

	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}

	if cfg.Version {
		return &cfg, nil
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.FakeListen != "", c.Maintenance():
		return nil
	case c.Server.Serve:
		if c.Server.AuthToken == "" {
			return errors.New("required flag `-t, --auth-token' or environment variable `LEGACYPING_AUTH_TOKEN` was not specified")
		}
		if c.Poller.Workers <= 0 {
			return fmt.Errorf("poll workers must be positive, got %d", c.Poller.Workers)
		}
		if c.Poller.Interval <= 0 {
			return fmt.Errorf("poll interval must be positive, got %s", c.Poller.Interval)
		}
	case len(c.Args.Targets) == 0:
		return errors.New("no targets given, pass HOST[:PORT] arguments or use --serve")
	}

	if c.Query.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Query.Timeout)
	}

	return nil
}
