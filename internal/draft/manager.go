package draft

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	apperrors "github.com/alexjbarnes/inspect-sync/internal/errors"
	"github.com/alexjbarnes/inspect-sync/internal/models"
	"github.com/google/uuid"
)

type sessionEntry struct {
	session *Session
	cancel  context.CancelFunc
	done    chan struct{}
}

// Manager is the registry of open sessions. Sessions for existing records
// are keyed by durable UID so opening a record by local id or by UID
// yields the same session; new drafts are keyed by their navigation id or
// a generated key.
type Manager struct {
	opts     Options
	bg       *Background
	resolver *IdentityResolver
	logger   *slog.Logger
	runCtx   context.Context

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

// NewManager creates a manager. Session dispatchers run until ctx is done
// or their session is closed.
func NewManager(ctx context.Context, opts Options) *Manager {
	return &Manager{
		opts:     opts,
		bg:       NewBackground(opts.Logger),
		resolver: NewIdentityResolver(opts.Store, opts.Logger),
		logger:   opts.Logger,
		runCtx:   ctx,
		sessions: make(map[string]*sessionEntry),
	}
}

// Background returns the runner used for final syncs.
func (m *Manager) Background() *Background {
	return m.bg
}

// Open returns the session for hint, creating it and starting its
// dispatcher if none is open.
func (m *Manager) Open(hint models.IdentityHint) *Session {
	hint = m.boundHint(hint)
	key := m.keyFor(hint)

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.lookupLocked(key); ok {
		return e.session
	}

	s := NewSession(key, hint, m.opts, m.bg)

	ctx, cancel := context.WithCancel(m.runCtx)
	e := &sessionEntry{session: s, cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(e.done)
		_ = s.Run(ctx)
	}()

	m.sessions[key] = e

	m.logger.Debug("session opened", slog.String("session", key))

	return s
}

// boundHint swaps a navigation key that an earlier session already turned
// into a record for that record's UID.
func (m *Manager) boundHint(hint models.IdentityHint) models.IdentityHint {
	keys, ok := m.opts.Store.(KeyIndex)
	if !ok || !bindableKey(hint.NavigationID) || m.resolver.lookupUID(hint.NavigationID) != 0 {
		return hint
	}

	uid, err := keys.UIDForKey(hint.NavigationID)
	if err != nil {
		m.logger.Debug("navigation key lookup failed",
			slog.String("key", hint.NavigationID),
			slog.String("error", err.Error()),
		)

		return hint
	}

	if uid != "" && m.resolver.lookupUID(uid) != 0 {
		hint.NavigationID = uid
	}

	return hint
}

func (m *Manager) keyFor(hint models.IdentityHint) string {
	if uid, ok := m.resolver.ResolveUID(hint); ok {
		return uid
	}

	if hint.NavigationID != "" {
		return hint.NavigationID
	}

	return "draft-" + uuid.NewString()
}

// Lookup returns an open session by key, or by the durable UID it has
// acquired since opening.
func (m *Manager) Lookup(key string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.lookupLocked(key)
	if !ok {
		return nil, false
	}

	return e.session, true
}

func (m *Manager) lookupLocked(key string) (*sessionEntry, bool) {
	if e, ok := m.sessions[key]; ok {
		return e, true
	}

	for _, e := range m.sessions {
		if e.session.Hint().CachedUID == key {
			return e, true
		}
	}

	return nil, false
}

// Keys returns the keys of all open sessions, sorted.
func (m *Manager) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, len(m.sessions))
	for k := range m.sessions {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

// detach removes a session from the registry and stops its dispatcher.
func (m *Manager) detach(key string) (*Session, error) {
	m.mu.Lock()

	e, ok := m.lookupLocked(key)
	if ok {
		delete(m.sessions, e.session.Key())
	}

	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%s: %w", key, apperrors.ErrSessionNotFound)
	}

	e.cancel()
	<-e.done

	return e.session, nil
}

// CloseSession closes a session: its dispatcher stops, a final reconcile
// runs, and with finalSync a background sync starts. The returned func
// cancels that sync before its local save begins.
func (m *Manager) CloseSession(ctx context.Context, key string, finalSync bool) (context.CancelFunc, error) {
	s, err := m.detach(key)
	if err != nil {
		return nil, err
	}

	cancel := s.Close(ctx, finalSync)

	m.logger.Debug("session closed",
		slog.String("session", s.Key()),
		slog.Bool("final_sync", finalSync),
	)

	return cancel, nil
}

// SyncEvent syncs the record hint refers to, using its open session if
// there is one.
func (m *Manager) SyncEvent(ctx context.Context, hint models.IdentityHint) models.SyncAttemptResult {
	hint = m.boundHint(hint)
	key := m.keyFor(hint)

	if s, ok := m.Lookup(key); ok {
		return s.Sync(ctx)
	}

	s := m.Open(hint)
	defer func() {
		if _, err := m.CloseSession(ctx, s.Key(), false); err != nil {
			m.logger.Debug("closing sync session", slog.String("error", err.Error()))
		}
	}()

	return s.Sync(ctx)
}

// DeleteEvent removes the record hint refers to. Any open session for it
// is discarded without a final reconcile so the record is not recreated.
func (m *Manager) DeleteEvent(hint models.IdentityHint) (bool, error) {
	res := m.resolver.Resolve(m.boundHint(hint))
	if res.Mode != ModeEdit {
		return false, nil
	}

	uid, err := m.opts.Store.UIDFor(res.LocalID)
	if err != nil {
		return false, fmt.Errorf("deleting event %d: %w", res.LocalID, err)
	}

	if s, err := m.detach(uid); err == nil {
		s.closed.Store(true)
	}

	ok, err := m.opts.Store.Delete(res.LocalID, uid)
	if err != nil {
		return false, fmt.Errorf("deleting event %d: %w", res.LocalID, err)
	}

	return ok, nil
}

// Shutdown closes every open session, starting final syncs when
// Options.SyncOnClose is set, then waits for background work to finish
// or ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	for _, key := range m.Keys() {
		if _, err := m.CloseSession(ctx, key, m.opts.SyncOnClose); err != nil {
			m.logger.Debug("closing session", slog.String("error", err.Error()))
		}
	}

	if err := m.bg.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for background syncs: %w", err)
	}

	return nil
}
