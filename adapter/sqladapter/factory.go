package sqladapter

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/rs/zerolog/log"

	"github.com/kroma-labs/sentinel-executor/adapter"
)

var _ adapter.Factory = (*Factory)(nil)

// Factory opens pools for one connection URL.
type Factory struct {
	provider   adapter.Provider
	driverName string
	dsn        string
	poolSize   int
	info       adapter.ConnectionInfo
	opts       []Option
}

// ProtocolTable returns the factory constructors for every provider this
// package supports. opts apply to every adapter they connect.
func ProtocolTable(opts ...Option) adapter.ProtocolTable {
	fn := func(u *url.URL) (adapter.Factory, error) {
		return NewFactory(u, opts...)
	}
	return adapter.ProtocolTable{
		adapter.ProviderPostgres:  fn,
		adapter.ProviderMySQL:     fn,
		adapter.ProviderSQLServer: fn,
	}
}

// NewFactory translates u into a driver DSN. u is expected to have been
// normalized by adapter.CreateAdapter.
func NewFactory(u *url.URL, opts ...Option) (*Factory, error) {
	provider, ok := adapter.ProviderForScheme(u.Scheme)
	if !ok {
		return nil, fmt.Errorf("%w: %s", adapter.ErrUnsupportedProtocol, u.Scheme)
	}

	// work on a copy, the caller's URL keeps its parameters
	cp := *u
	q := cp.Query()

	poolSize := 0
	if v := q.Get("connection_limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: connection_limit must be a non-negative integer", adapter.ErrInvalidDatabaseURL)
		}
		poolSize = n
	}
	q.Del("connection_limit")

	f := &Factory{provider: provider, poolSize: poolSize}

	switch provider {
	case adapter.ProviderPostgres:
		f.driverName = "postgres"
		f.info = adapter.ConnectionInfo{
			SchemaName:            q.Get("schema"),
			MaxBindValues:         32766,
			SupportsRelationJoins: true,
		}
		f.dsn = postgresDSN(&cp, q)
		f.opts = append([]Option{WithDBSystem("postgresql"), WithDBName(strings.TrimPrefix(cp.Path, "/"))}, opts...)

	case adapter.ProviderMySQL:
		dsn, err := mysqlDSN(&cp, q)
		if err != nil {
			return nil, err
		}
		f.driverName = "mysql"
		f.dsn = dsn
		f.info = adapter.ConnectionInfo{
			SchemaName:            strings.TrimPrefix(cp.Path, "/"),
			MaxBindValues:         65535,
			SupportsRelationJoins: strings.EqualFold(cp.Scheme, "mysql"),
		}
		f.opts = append([]Option{WithDBSystem("mysql"), WithDBName(f.info.SchemaName)}, opts...)

	case adapter.ProviderSQLServer:
		f.driverName = "sqlserver"
		cp.RawQuery = q.Encode()
		f.dsn = cp.String()
		f.info = adapter.ConnectionInfo{
			SchemaName:    q.Get("schema"),
			MaxBindValues: 2098,
		}
		f.opts = append([]Option{WithDBSystem("mssql"), WithDBName(q.Get("database"))}, opts...)
	}

	return f, nil
}

func (f *Factory) Provider() adapter.Provider {
	return f.provider
}

// Connect opens the pool and pings it, retrying with exponential backoff
// until the configured attempts or timeout run out.
func (f *Factory) Connect(ctx context.Context) (adapter.Adapter, error) {
	cfg := newConfig(f.opts...)

	db, err := sqlx.Open(f.driverName, f.dsn)
	if err != nil {
		return nil, err
	}
	if f.poolSize > 0 {
		db.SetMaxOpenConns(f.poolSize)
	}

	retryOpts := []backoff.RetryOption{
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn().
				Err(adapter.SanitizeError(err)).
				Str("provider", string(f.provider)).
				Dur("retry_in", next).
				Msg("Database not reachable yet")
		}),
	}
	if cfg.ConnectAttempts > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxTries(cfg.ConnectAttempts))
	}
	if cfg.ConnectTimeout > 0 {
		retryOpts = append(retryOpts, backoff.WithMaxElapsedTime(cfg.ConnectTimeout))
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, db.PingContext(ctx)
	}, retryOpts...)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to %s: %w", f.provider, err)
	}

	return New(db, f.provider, f.info, f.opts...)
}

// postgresDSN keeps the URL form lib/pq accepts. The normalized no-verify
// mode maps to lib/pq's require, which encrypts without verifying.
func postgresDSN(u *url.URL, q url.Values) string {
	if q.Get("sslmode") == adapter.SSLModeNoVerify {
		q.Set("sslmode", "require")
	}
	if schema := q.Get("schema"); schema != "" {
		q.Del("schema")
		q.Set("search_path", schema)
	}
	u.Scheme = "postgres"
	u.RawQuery = q.Encode()
	return u.String()
}

// mysqlDSN converts a mysql:// URL into a go-sql-driver DSN.
func mysqlDSN(u *url.URL, q url.Values) (string, error) {
	cfg := mysql.NewConfig()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = net.JoinHostPort(u.Hostname(), "3306")
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.ParseTime = true
	if u.User != nil {
		cfg.User = u.User.Username()
		cfg.Passwd, _ = u.User.Password()
	}

	switch q.Get("sslaccept") {
	case "":
	case "accept_invalid_certs":
		cfg.TLSConfig = "skip-verify"
	case "strict":
		cfg.TLSConfig = "true"
	default:
		return "", fmt.Errorf("%w: unknown sslaccept %q", adapter.ErrInvalidDatabaseURL, q.Get("sslaccept"))
	}

	if v := q.Get("connect_timeout"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil {
			return "", fmt.Errorf("%w: connect_timeout must be an integer", adapter.ErrInvalidDatabaseURL)
		}
		cfg.Timeout = time.Duration(secs) * time.Second
	}

	return cfg.FormatDSN(), nil
}
