// Package txmanager owns interactive transactions: it opens them on the
// shared adapter, hands out ids, serializes the operations issued against
// each id and rolls back transactions that outlive their timeout.
package txmanager

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/kroma-labs/sentinel-executor/adapter"
	"github.com/kroma-labs/sentinel-executor/logging"
)

const (
	DefaultMaxWait = 2 * time.Second
	DefaultTimeout = 5 * time.Second

	// closedHistory is how many finished transactions are remembered so a
	// late commit reports "closed" rather than "not found".
	closedHistory = 1024
)

// State of a transaction.
type State int

const (
	StateActive State = iota
	StateCommitted
	StateRolledBack
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCommitted:
		return "committed"
	case StateRolledBack:
		return "rolled back"
	case StateTimedOut:
		return "expired"
	default:
		return "unknown"
	}
}

// Options for a new transaction. Zero durations use the manager defaults.
type Options struct {
	MaxWait        time.Duration
	Timeout        time.Duration
	IsolationLevel string
}

// Info identifies a started transaction.
type Info struct {
	ID string `json:"id"`
}

// ParseIsolationLevel validates a client-supplied isolation level. The empty
// string selects the database default.
func ParseIsolationLevel(s string) (adapter.IsolationLevel, error) {
	switch level := adapter.IsolationLevel(s); level {
	case adapter.IsolationDefault,
		adapter.IsolationReadUncommitted,
		adapter.IsolationReadCommitted,
		adapter.IsolationRepeatableRead,
		adapter.IsolationSnapshot,
		adapter.IsolationSerializable:
		return level, nil
	default:
		return "", InvalidIsolationLevelError(s)
	}
}

// Manager tracks the open transactions of one adapter.
type Manager struct {
	adapter adapter.Adapter
	maxWait time.Duration
	timeout time.Duration

	mu     sync.Mutex
	open   map[string]*transaction
	closed map[string]*transaction
	order  []string
}

// Option configures a Manager.
type Option func(*Manager)

// WithDefaults sets the maxWait and timeout used when a request omits them.
func WithDefaults(maxWait, timeout time.Duration) Option {
	return func(m *Manager) {
		if maxWait > 0 {
			m.maxWait = maxWait
		}
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// New returns a Manager opening transactions on a.
func New(a adapter.Adapter, opts ...Option) *Manager {
	m := &Manager{
		adapter: a,
		maxWait: DefaultMaxWait,
		timeout: DefaultTimeout,
		open:    make(map[string]*transaction),
		closed:  make(map[string]*transaction),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type transaction struct {
	id        string
	tx        adapter.Transaction
	startedAt time.Time
	timeout   time.Duration
	timer     *time.Timer

	// op is held for the duration of every operation on tx.
	op sync.Mutex

	mu    sync.Mutex
	state State
}

func (t *transaction) currentState() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// checkUsable returns the error for operation on a transaction that is no
// longer active.
func (t *transaction) checkUsable(operation string) error {
	switch st := t.currentState(); st {
	case StateActive:
		return nil
	case StateTimedOut:
		return ExecutionTimeoutError(t.id, operation, t.timeout, time.Since(t.startedAt))
	default:
		return ClosedError(t.id, operation, st)
	}
}

// StartTransaction opens a transaction, waiting at most opts.MaxWait for the
// adapter. A transaction that arrives after maxWait is rolled back.
func (m *Manager) StartTransaction(ctx context.Context, opts Options) (Info, error) {
	isolation, err := ParseIsolationLevel(opts.IsolationLevel)
	if err != nil {
		return Info{}, err
	}

	maxWait := opts.MaxWait
	if maxWait <= 0 {
		maxWait = m.maxWait
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = m.timeout
	}

	ch := make(chan startResult, 1)
	go func() {
		tx, err := m.adapter.StartTransaction(ctx, isolation)
		ch <- startResult{tx: tx, err: err}
	}()

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	var r startResult
	select {
	case r = <-ch:
	case <-timer.C:
		go discardLate(ch)
		return Info{}, StartTimeoutError(maxWait)
	case <-ctx.Done():
		go discardLate(ch)
		return Info{}, ctx.Err()
	}
	if r.err != nil {
		return Info{}, r.err
	}

	t := &transaction{
		id:        uuid.NewString(),
		tx:        r.tx,
		startedAt: time.Now(),
		timeout:   timeout,
	}

	// t.timer is set before t is reachable through m.open
	m.mu.Lock()
	t.timer = time.AfterFunc(timeout, func() { m.expire(t) })
	m.open[t.id] = t
	m.mu.Unlock()

	logging.Debug(ctx, "transaction started",
		logging.String("transactionId", t.id),
		logging.Duration("timeout", timeout),
	)
	return Info{ID: t.id}, nil
}

type startResult struct {
	tx  adapter.Transaction
	err error
}

// discardLate rolls back a transaction whose start outlived the caller.
func discardLate(ch <-chan startResult) {
	r := <-ch
	if r.tx == nil {
		return
	}
	if err := r.tx.Rollback(context.Background()); err != nil {
		log.Warn().Err(adapter.SanitizeError(err)).Msg("Rollback of late transaction failed")
	}
}

// GetTransaction returns a Queryable bound to the open transaction id. Every
// call through it is serialized with other operations on the same id.
func (m *Manager) GetTransaction(id, operation string) (adapter.Queryable, error) {
	t, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := t.checkUsable(operation); err != nil {
		return nil, err
	}
	return &handle{t: t}, nil
}

// CommitTransaction commits id.
func (m *Manager) CommitTransaction(ctx context.Context, id string) error {
	return m.finish(ctx, id, "commit", StateCommitted)
}

// RollbackTransaction rolls id back.
func (m *Manager) RollbackTransaction(ctx context.Context, id string) error {
	return m.finish(ctx, id, "rollback", StateRolledBack)
}

// CancelAll rolls back every open transaction concurrently.
func (m *Manager) CancelAll(ctx context.Context) error {
	m.mu.Lock()
	open := make([]*transaction, 0, len(m.open))
	for _, t := range m.open {
		open = append(open, t)
	}
	m.mu.Unlock()

	var g errgroup.Group
	for _, t := range open {
		g.Go(func() error {
			t.op.Lock()
			defer t.op.Unlock()
			return m.close(ctx, t, "rollback", StateRolledBack)
		})
	}
	return g.Wait()
}

// OpenCount returns the number of open transactions.
func (m *Manager) OpenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.open)
}

func (m *Manager) lookup(id string) (*transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.open[id]; ok {
		return t, nil
	}
	if t, ok := m.closed[id]; ok {
		return t, nil
	}
	return nil, NotFoundError(id)
}

func (m *Manager) finish(ctx context.Context, id, operation string, target State) error {
	t, err := m.lookup(id)
	if err != nil {
		return err
	}
	if err := t.checkUsable(operation); err != nil {
		return err
	}
	if !t.op.TryLock() {
		return InUseError(id, operation)
	}
	defer t.op.Unlock()

	if err := t.checkUsable(operation); err != nil {
		return err
	}
	return m.close(ctx, t, operation, target)
}

// close ends t. The caller holds t.op.
func (m *Manager) close(ctx context.Context, t *transaction, operation string, target State) error {
	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		return nil
	}
	t.state = target
	t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
	}

	var err error
	if target == StateCommitted {
		err = t.tx.Commit(ctx)
	} else {
		err = t.tx.Rollback(ctx)
	}
	if err != nil && target == StateCommitted {
		// a failed commit leaves nothing to roll back on the client side
		t.mu.Lock()
		t.state = StateRolledBack
		t.mu.Unlock()
	}

	m.forget(t)

	if err != nil {
		return driverError(t.id, operation, err)
	}
	logging.Debug(ctx, "transaction closed",
		logging.String("transactionId", t.id),
		logging.String("state", t.currentState().String()),
	)
	return nil
}

// expire rolls back t once its timeout elapsed, after any in-flight
// operation finishes.
func (m *Manager) expire(t *transaction) {
	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		return
	}
	t.state = StateTimedOut
	t.mu.Unlock()

	t.op.Lock()
	defer t.op.Unlock()

	if err := t.tx.Rollback(context.Background()); err != nil {
		log.Warn().
			Err(adapter.SanitizeError(err)).
			Str("transaction_id", t.id).
			Msg("Rollback of expired transaction failed")
	}
	m.forget(t)
}

func (m *Manager) forget(t *transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.open[t.id]; !ok {
		return
	}
	delete(m.open, t.id)

	m.closed[t.id] = t
	m.order = append(m.order, t.id)
	if len(m.order) > closedHistory {
		delete(m.closed, m.order[0])
		m.order = m.order[1:]
	}
}

// handle is the Queryable handed out for one transaction.
type handle struct {
	t *transaction
}

func (h *handle) Provider() adapter.Provider {
	return h.t.tx.Provider()
}

func (h *handle) QueryRaw(ctx context.Context, q adapter.Query) (*adapter.ResultSet, error) {
	h.t.op.Lock()
	defer h.t.op.Unlock()

	if err := h.t.checkUsable("query"); err != nil {
		return nil, err
	}
	return h.t.tx.QueryRaw(ctx, q)
}

func (h *handle) ExecuteRaw(ctx context.Context, q adapter.Query) (int64, error) {
	h.t.op.Lock()
	defer h.t.op.Unlock()

	if err := h.t.checkUsable("query"); err != nil {
		return 0, err
	}
	return h.t.tx.ExecuteRaw(ctx, q)
}
