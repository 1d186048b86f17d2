// Package config loads the process configuration of the query executor.
//
// Every setting can be given as a command line flag, as an EXECUTOR_*
// environment variable or in a TOML file named by --config. A flag set on the
// command line wins over the environment, which wins over the file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"

	"github.com/kroma-labs/sentinel-executor/limits"
	"github.com/kroma-labs/sentinel-executor/logging"
	"github.com/kroma-labs/sentinel-executor/parse"
)

// EnvPrefix prefixes the environment variable of every setting.
const EnvPrefix = "EXECUTOR_"

// Flag names.
const (
	FlagConfig                  = "config"
	FlagDatabaseURL             = "database-url"
	FlagHost                    = "host"
	FlagPort                    = "port"
	FlagQueryTimeout            = "query-timeout"
	FlagMaxTransactionTimeout   = "max-transaction-timeout"
	FlagMaxResponseSize         = "max-response-size"
	FlagLogLevel                = "log-level"
	FlagLogFormat               = "log-format"
	FlagGracefulShutdownTimeout = "graceful-shutdown-timeout"
	FlagOTLPEndpoint            = "otlp-endpoint"
	FlagRateLimit               = "rate-limit"
)

var (
	ErrMissingDatabaseURL = errors.New("database url is required")
	ErrNonPositiveTimeout = errors.New("must be greater than zero")
)

// Config is the validated process configuration.
type Config struct {
	DatabaseURL string
	Host        string
	Port        int

	// Limits are the server-wide defaults requests may override.
	Limits limits.ResourceLimits

	LogLevel  logging.Level
	LogFormat logging.Format

	// GracefulShutdownTimeout bounds how long in-flight requests and open
	// transactions are given to finish once a shutdown signal arrives.
	GracefulShutdownTimeout time.Duration

	// OTLPEndpoint, when set, exports spans over OTLP/gRPC.
	OTLPEndpoint string

	// RateLimit is the number of requests per second the server admits.
	// Zero disables limiting.
	RateLimit int
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

type setting struct {
	flag  string
	value string
	usage string
}

func defaults() []setting {
	lim := limits.Default()
	return []setting{
		{FlagDatabaseURL, "", "database connection URL"},
		{FlagHost, "0.0.0.0", "address to listen on"},
		{FlagPort, "8080", "port to listen on"},
		{FlagQueryTimeout, strconv.FormatInt(lim.QueryTimeout.Milliseconds(), 10),
			"query timeout (milliseconds or ISO 8601 duration)"},
		{FlagMaxTransactionTimeout, strconv.FormatInt(lim.MaxTransactionTimeout.Milliseconds(), 10),
			"maximum interactive transaction timeout (milliseconds or ISO 8601 duration)"},
		{FlagMaxResponseSize, strconv.FormatInt(lim.MaxResponseSize, 10),
			"maximum response size (bytes, or with a unit such as 10MiB)"},
		{FlagLogLevel, logging.LevelInfo.String(), "minimum log level (debug|query|info|warn|error|off)"},
		{FlagLogFormat, string(logging.FormatText), "log format (text|json)"},
		{FlagGracefulShutdownTimeout, "10000",
			"graceful shutdown timeout (milliseconds or ISO 8601 duration)"},
		{FlagOTLPEndpoint, "", "OTLP/gRPC endpoint to export spans to"},
		{FlagRateLimit, "0", "requests per second to admit, 0 disables limiting"},
	}
}

// EnvName returns the environment variable consulted for flag.
func EnvName(flag string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

// RegisterFlags adds every setting to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FlagConfig, "", "path to a TOML configuration file")
	for _, s := range defaults() {
		fs.String(s.flag, s.value, fmt.Sprintf("%s [$%s]", s.usage, EnvName(s.flag)))
	}
}

// Load resolves the configuration from fs, the environment looked up through
// lookupEnv and the optional configuration file. A nil lookupEnv reads the
// process environment.
func Load(fs *pflag.FlagSet, lookupEnv func(string) (string, bool)) (Config, error) {
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}

	values := make(map[string]string)
	for _, s := range defaults() {
		values[s.flag] = s.value
	}

	path, err := resolve(fs, lookupEnv, FlagConfig, "")
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		file, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		for k, v := range file {
			values[k] = v
		}
	}

	for _, s := range defaults() {
		v, err := resolve(fs, lookupEnv, s.flag, values[s.flag])
		if err != nil {
			return Config{}, err
		}
		values[s.flag] = v
	}

	return build(values)
}

// resolve returns the flag value when it was set explicitly, else the
// environment value, else fallback.
func resolve(fs *pflag.FlagSet, lookupEnv func(string) (string, bool), flag, fallback string) (string, error) {
	if fs != nil && fs.Changed(flag) {
		return fs.GetString(flag)
	}
	if v, ok := lookupEnv(EnvName(flag)); ok && v != "" {
		return v, nil
	}
	return fallback, nil
}

// readFile reads a TOML file keyed by flag name. Underscores are accepted in
// place of dashes.
func readFile(path string) (map[string]string, error) {
	var data map[string]any
	if _, err := toml.DecodeFile(path, &data); err != nil {
		return nil, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}

	known := make(map[string]bool)
	for _, s := range defaults() {
		known[s.flag] = true
	}

	out := make(map[string]string, len(data))
	for k, v := range data {
		key := strings.ReplaceAll(k, "_", "-")
		if !known[key] {
			return nil, fmt.Errorf("%s: unknown setting %q", path, k)
		}
		switch v := v.(type) {
		case string:
			out[key] = v
		case int64, float64, bool:
			out[key] = fmt.Sprint(v)
		default:
			return nil, fmt.Errorf("%s: setting %q must be a scalar", path, k)
		}
	}
	return out, nil
}

func build(values map[string]string) (Config, error) {
	cfg := Config{
		DatabaseURL:  strings.TrimSpace(values[FlagDatabaseURL]),
		Host:         values[FlagHost],
		OTLPEndpoint: values[FlagOTLPEndpoint],
	}
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("%w: set --%s or $%s",
			ErrMissingDatabaseURL, FlagDatabaseURL, EnvName(FlagDatabaseURL))
	}

	port, err := parse.NonNegativeInt(values[FlagPort])
	if err != nil || port > 65535 {
		return Config{}, invalid(FlagPort, values[FlagPort], err)
	}
	cfg.Port = int(port)

	queryTimeout, err := parse.Duration(values[FlagQueryTimeout])
	if err != nil {
		return Config{}, invalid(FlagQueryTimeout, values[FlagQueryTimeout], err)
	}
	maxTxTimeout, err := parse.Duration(values[FlagMaxTransactionTimeout])
	if err != nil {
		return Config{}, invalid(FlagMaxTransactionTimeout, values[FlagMaxTransactionTimeout], err)
	}
	maxResponseSize, err := parse.Size(values[FlagMaxResponseSize])
	if err != nil {
		return Config{}, invalid(FlagMaxResponseSize, values[FlagMaxResponseSize], err)
	}
	cfg.Limits = limits.Default().
		WithQueryTimeout(queryTimeout).
		WithMaxTransactionTimeout(maxTxTimeout).
		WithMaxResponseSize(maxResponseSize)

	if cfg.LogLevel, err = logging.ParseLogLevel(values[FlagLogLevel]); err != nil {
		return Config{}, invalid(FlagLogLevel, values[FlagLogLevel], err)
	}
	if cfg.LogFormat, err = logging.ParseFormat(values[FlagLogFormat]); err != nil {
		return Config{}, invalid(FlagLogFormat, values[FlagLogFormat], err)
	}

	if cfg.GracefulShutdownTimeout, err = parse.Duration(values[FlagGracefulShutdownTimeout]); err != nil {
		return Config{}, invalid(FlagGracefulShutdownTimeout, values[FlagGracefulShutdownTimeout], err)
	}
	if cfg.GracefulShutdownTimeout <= 0 {
		// a zero grace period would force every shutdown
		return Config{}, invalid(FlagGracefulShutdownTimeout, values[FlagGracefulShutdownTimeout], ErrNonPositiveTimeout)
	}

	rate, err := parse.NonNegativeInt(values[FlagRateLimit])
	if err != nil {
		return Config{}, invalid(FlagRateLimit, values[FlagRateLimit], err)
	}
	cfg.RateLimit = int(rate)

	return cfg, nil
}

func invalid(flag, value string, err error) error {
	if err == nil {
		return fmt.Errorf("invalid --%s %q", flag, value)
	}
	return fmt.Errorf("invalid --%s %q: %w", flag, value, err)
}
