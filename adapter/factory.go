package adapter

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrInvalidDatabaseURL    = errors.New("invalid database URL")
	ErrUnsupportedProtocol   = errors.New("unsupported protocol")
	ErrCustomTLSCertificates = errors.New("custom TLS certificates are not supported")
)

// SSLModeNoVerify is the normalized postgres mode for an encrypted connection
// without certificate verification.
const SSLModeNoVerify = "no-verify"

// FactoryFunc builds a factory from a normalized connection URL.
type FactoryFunc func(u *url.URL) (Factory, error)

// ProtocolTable maps each supported provider to its factory constructor.
type ProtocolTable map[Provider]FactoryFunc

var schemes = map[string]Provider{
	"postgres":   ProviderPostgres,
	"postgresql": ProviderPostgres,
	"mysql":      ProviderMySQL,
	"mariadb":    ProviderMySQL,
	"sqlserver":  ProviderSQLServer,
}

// ProviderForScheme returns the provider serving a URL scheme.
func ProviderForScheme(scheme string) (Provider, bool) {
	p, ok := schemes[strings.ToLower(scheme)]
	return p, ok
}

// CreateAdapter selects the factory for rawURL from table. The returned
// factory, and every adapter and transaction it produces, sanitize the errors
// they return.
func CreateAdapter(rawURL string, table ProtocolTable) (Factory, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Scheme == "" || (u.Host == "" && u.Opaque == "" && u.Path == "") {
		return nil, ErrInvalidDatabaseURL
	}

	provider, ok := ProviderForScheme(u.Scheme)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, u.Scheme)
	}
	newFactory, ok := table[provider]
	if !ok || newFactory == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProtocol, u.Scheme)
	}

	if provider == ProviderPostgres {
		if err := normalizePostgresTLS(u); err != nil {
			return nil, err
		}
	}

	f, err := newFactory(u)
	if err != nil {
		return nil, SanitizeError(err)
	}
	return &sanitizingFactory{inner: f}, nil
}

// normalizePostgresTLS rewrites sslmode in place. prefer, require and
// no-verify all become no-verify; verify-ca and verify-full are kept.
func normalizePostgresTLS(u *url.URL) error {
	q := u.Query()
	for _, key := range []string{"sslcert", "sslkey", "sslrootcert"} {
		if q.Has(key) {
			return fmt.Errorf("%w: %s", ErrCustomTLSCertificates, key)
		}
	}

	switch strings.ToLower(q.Get("sslmode")) {
	case "prefer", "require", SSLModeNoVerify:
		q.Set("sslmode", SSLModeNoVerify)
		u.RawQuery = q.Encode()
	}
	return nil
}
