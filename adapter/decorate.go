package adapter

import "context"

// Compile-time interface checks.
var (
	_ Factory                = (*sanitizingFactory)(nil)
	_ Adapter                = (*sanitizingAdapter)(nil)
	_ ConnectionInfoProvider = (*sanitizingAdapter)(nil)
	_ Pinger                 = (*sanitizingAdapter)(nil)
	_ Transaction            = (*sanitizingTransaction)(nil)
)

type sanitizingFactory struct {
	inner Factory
}

func (f *sanitizingFactory) Provider() Provider {
	return f.inner.Provider()
}

func (f *sanitizingFactory) Connect(ctx context.Context) (Adapter, error) {
	a, err := f.inner.Connect(ctx)
	if err != nil {
		return nil, SanitizeError(err)
	}
	return &sanitizingAdapter{inner: a}, nil
}

type sanitizingAdapter struct {
	inner Adapter
}

func (a *sanitizingAdapter) Provider() Provider {
	return a.inner.Provider()
}

func (a *sanitizingAdapter) QueryRaw(ctx context.Context, q Query) (*ResultSet, error) {
	rs, err := a.inner.QueryRaw(ctx, q)
	return rs, SanitizeError(err)
}

func (a *sanitizingAdapter) ExecuteRaw(ctx context.Context, q Query) (int64, error) {
	n, err := a.inner.ExecuteRaw(ctx, q)
	return n, SanitizeError(err)
}

func (a *sanitizingAdapter) ExecuteScript(ctx context.Context, script string) error {
	return SanitizeError(a.inner.ExecuteScript(ctx, script))
}

func (a *sanitizingAdapter) StartTransaction(ctx context.Context, isolation IsolationLevel) (Transaction, error) {
	tx, err := a.inner.StartTransaction(ctx, isolation)
	if err != nil {
		return nil, SanitizeError(err)
	}
	return &sanitizingTransaction{inner: tx}, nil
}

func (a *sanitizingAdapter) Dispose() error {
	return SanitizeError(a.inner.Dispose())
}

func (a *sanitizingAdapter) ConnectionInfo(ctx context.Context) ConnectionInfo {
	return ConnectionInfoOf(ctx, a.inner)
}

// Ping succeeds without a round trip when the wrapped adapter cannot ping.
func (a *sanitizingAdapter) Ping(ctx context.Context) error {
	if p, ok := a.inner.(Pinger); ok {
		return SanitizeError(p.Ping(ctx))
	}
	return nil
}

type sanitizingTransaction struct {
	inner Transaction
}

func (t *sanitizingTransaction) Provider() Provider {
	return t.inner.Provider()
}

func (t *sanitizingTransaction) QueryRaw(ctx context.Context, q Query) (*ResultSet, error) {
	rs, err := t.inner.QueryRaw(ctx, q)
	return rs, SanitizeError(err)
}

func (t *sanitizingTransaction) ExecuteRaw(ctx context.Context, q Query) (int64, error) {
	n, err := t.inner.ExecuteRaw(ctx, q)
	return n, SanitizeError(err)
}

func (t *sanitizingTransaction) Commit(ctx context.Context) error {
	return SanitizeError(t.inner.Commit(ctx))
}

func (t *sanitizingTransaction) Rollback(ctx context.Context) error {
	return SanitizeError(t.inner.Rollback(ctx))
}
