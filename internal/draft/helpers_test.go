package draft

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	apperrors "github.com/alexjbarnes/inspect-sync/internal/errors"
	"github.com/alexjbarnes/inspect-sync/internal/models"
	"github.com/alexjbarnes/inspect-sync/internal/state"
	"github.com/stretchr/testify/require"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func testState(t *testing.T) *state.State {
	t.Helper()
	s, err := state.LoadAt(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// memStore is an in-memory DurableStore. UIDs are "evt-<id>".
type memStore struct {
	mu         sync.Mutex
	records    map[int64]models.EventDraft
	uids       map[string]int64
	synced     map[int64]time.Time
	keys       map[string]string
	next       int64
	upserts    int
	failUpsert error
}

func newMemStore() *memStore {
	return &memStore{
		records: make(map[int64]models.EventDraft),
		uids:    make(map[string]int64),
		synced:  make(map[int64]time.Time),
		keys:    make(map[string]string),
	}
}

func (m *memStore) Upsert(d models.EventDraft) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUpsert != nil {
		return 0, m.failUpsert
	}

	m.upserts++

	if d.LocalID == 0 {
		m.next++
		d.LocalID = m.next
		d.DurableUID = fmt.Sprintf("evt-%d", d.LocalID)
		m.uids[d.DurableUID] = d.LocalID
	} else {
		existing, ok := m.records[d.LocalID]
		if !ok {
			return 0, apperrors.ErrEventNotFound
		}
		d.DurableUID = existing.DurableUID
	}

	m.records[d.LocalID] = d.Clone()

	return d.LocalID, nil
}

func (m *memStore) UIDFor(id int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id].DurableUID, nil
}

func (m *memStore) LocalIDForUID(uid string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uids[uid], nil
}

func (m *memStore) Load(id int64) (*models.EventDraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	c := d.Clone()
	return &c, nil
}

func (m *memStore) Delete(id int64, uid string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.records[id]
	if !ok || (uid != "" && d.DurableUID != uid) {
		return false, nil
	}
	delete(m.records, id)
	delete(m.uids, d.DurableUID)
	for k, uid := range m.keys {
		if uid == d.DurableUID {
			delete(m.keys, k)
		}
	}
	return true, nil
}

func (m *memStore) MarkSynced(uploaded models.EventDraft, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.records[uploaded.LocalID]
	if !ok {
		return false, apperrors.ErrEventNotFound
	}
	if !reflect.DeepEqual(d, uploaded) {
		return false, nil
	}
	m.synced[uploaded.LocalID] = at
	return true, nil
}

func (m *memStore) BindKey(key, uid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = uid
	return nil
}

func (m *memStore) UIDForKey(key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.keys[key], nil
}

func (m *memStore) isSynced(id int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.synced[id]
	return ok
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *memStore) upsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

func (m *memStore) setFailUpsert(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failUpsert = err
}

// recordingTarget is a PersistTarget that records callbacks.
type recordingTarget struct {
	mu        sync.Mutex
	hint      models.IdentityHint
	inserted  []int64
	committed []PersistResult
}

func (r *recordingTarget) Hint() models.IdentityHint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hint
}

func (r *recordingTarget) Inserted(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inserted = append(r.inserted, id)
	r.hint.CachedLocalID = id
}

func (r *recordingTarget) Committed(res PersistResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, res)
	r.hint.CachedLocalID = res.LocalID
	r.hint.CachedUID = res.UID
}

// stubTarget is a SyncTarget with canned answers.
type stubTarget struct {
	uid     string
	ok      bool
	saved   PersistResult
	saveErr error

	mu    sync.Mutex
	saves int
}

func (s *stubTarget) ResolveUID() (string, bool) {
	return s.uid, s.ok
}

func (s *stubTarget) SaveForSync(context.Context) (PersistResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	return s.saved, s.saveErr
}

func (s *stubTarget) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func newStubTarget(uid string) *stubTarget {
	return &stubTarget{
		uid: uid,
		ok:  true,
		saved: PersistResult{
			LocalID: 42,
			UID:     uid,
			Draft:   models.EventDraft{LocalID: 42, DurableUID: uid, Location: "Pier 4"},
		},
	}
}

func textDraft(location string) models.EventDraft {
	return models.EventDraft{Location: location, Description: "Spalling on soffit"}
}
