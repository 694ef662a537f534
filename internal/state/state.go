package state

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/alexjbarnes/inspect-sync/internal/errors"
	"github.com/alexjbarnes/inspect-sync/internal/models"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	// stateDirPerm is the permission mode for the state directory.
	stateDirPerm = fs.FileMode(0o700)

	// stateFilePerm is the permission mode for the state database file.
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	appBucket    = []byte("app")
	eventsBucket = []byte("events")
	uidsBucket   = []byte("uids")
	keysBucket   = []byte("keys")
	deviceKey    = []byte("device_id")
)

// State wraps a bbolt database holding event records. It is the only
// writer of the durable store and the authority for local ids (bucket
// sequence) and durable UIDs (random UUIDs assigned on first insert).
type State struct {
	db     *bolt.DB
	now    func() time.Time
	newUID func() string
}

// Load opens the state database at ~/.inspect-sync/state.db, creating it
// if it does not exist.
func Load() (*State, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}

	return LoadAt(path)
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. Useful for tests that need an isolated database.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		app, err := tx.CreateBucketIfNotExists(appBucket)
		if err != nil {
			return err
		}

		if app.Get(deviceKey) == nil {
			if err := app.Put(deviceKey, []byte(uuid.NewString())); err != nil {
				return err
			}
		}

		if _, err := tx.CreateBucketIfNotExists(eventsBucket); err != nil {
			return err
		}

		if _, err := tx.CreateBucketIfNotExists(uidsBucket); err != nil {
			return err
		}

		_, err = tx.CreateBucketIfNotExists(keysBucket)

		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db, now: time.Now, newUID: uuid.NewString}, nil
}

// DefaultPath returns ~/.inspect-sync/state.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".inspect-sync", "state.db"), nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// DeviceID returns the random identifier generated when the database was
// first created.
func (s *State) DeviceID() string {
	var id string

	_ = s.db.View(func(tx *bolt.Tx) error {
		id = string(tx.Bucket(appBucket).Get(deviceKey))
		return nil
	})

	return id
}

func idKey(id int64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, uint64(id))

	return k
}

func getRecord(b *bolt.Bucket, id int64) (*models.EventRecord, error) {
	v := b.Get(idKey(id))
	if v == nil {
		return nil, nil
	}

	rec := &models.EventRecord{}
	if err := json.Unmarshal(v, rec); err != nil {
		return nil, fmt.Errorf("decoding event %d: %w", id, err)
	}

	return rec, nil
}

func putRecord(b *bolt.Bucket, rec models.EventRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	return b.Put(idKey(rec.Draft.LocalID), data)
}

// Upsert writes the draft. A zero LocalID inserts a new record, assigning
// the next local id and a fresh durable UID. A non-zero LocalID updates
// that record and fails with ErrEventNotFound if it does not exist. The
// stored UID always wins over whatever UID the caller passed in. Lookup
// and write happen in one transaction.
func (s *State) Upsert(draft models.EventDraft) (int64, error) {
	var id int64

	err := s.db.Update(func(tx *bolt.Tx) error {
		events := tx.Bucket(eventsBucket)
		uids := tx.Bucket(uidsBucket)
		now := s.now()

		rec := models.EventRecord{CreatedAt: now}

		if draft.LocalID != 0 {
			existing, err := getRecord(events, draft.LocalID)
			if err != nil {
				return err
			}

			if existing == nil {
				return fmt.Errorf("local id %d: %w", draft.LocalID, apperrors.ErrEventNotFound)
			}

			rec.CreatedAt = existing.CreatedAt
			rec.SyncedAt = existing.SyncedAt
			draft.DurableUID = existing.Draft.DurableUID
		} else {
			seq, err := events.NextSequence()
			if err != nil {
				return err
			}

			draft.LocalID = int64(seq)
			draft.DurableUID = s.newUID()

			if err := uids.Put([]byte(draft.DurableUID), idKey(draft.LocalID)); err != nil {
				return err
			}
		}

		rec.Draft = draft.Clone()
		rec.UpdatedAt = now
		id = draft.LocalID

		return putRecord(events, rec)
	})
	if err != nil {
		return 0, fmt.Errorf("upserting event: %w", err)
	}

	return id, nil
}

// UIDFor returns the durable UID of a record, or "" if not found.
func (s *State) UIDFor(localID int64) (string, error) {
	var uid string

	err := s.db.View(func(tx *bolt.Tx) error {
		rec, err := getRecord(tx.Bucket(eventsBucket), localID)
		if err != nil || rec == nil {
			return err
		}

		uid = rec.Draft.DurableUID

		return nil
	})

	return uid, err
}

// LocalIDForUID returns the local id owning a durable UID, or 0 if the
// UID is unknown.
func (s *State) LocalIDForUID(uid string) (int64, error) {
	var id int64

	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(uidsBucket).Get([]byte(uid))
		if len(v) != 8 {
			return nil
		}

		id = int64(binary.BigEndian.Uint64(v))

		return nil
	})

	return id, err
}

// Load returns the stored draft for a local id, or nil if not found.
func (s *State) Load(localID int64) (*models.EventDraft, error) {
	rec, err := s.Record(localID)
	if err != nil || rec == nil {
		return nil, err
	}

	return &rec.Draft, nil
}

// Record returns the stored record for a local id, or nil if not found.
func (s *State) Record(localID int64) (*models.EventRecord, error) {
	var rec *models.EventRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = getRecord(tx.Bucket(eventsBucket), localID)

		return err
	})

	return rec, err
}

// Delete removes a record and its UID index entry. When uid is non-empty
// it must match the stored UID. Returns false if nothing was deleted.
func (s *State) Delete(localID int64, uid string) (bool, error) {
	deleted := false

	err := s.db.Update(func(tx *bolt.Tx) error {
		events := tx.Bucket(eventsBucket)

		rec, err := getRecord(events, localID)
		if err != nil || rec == nil {
			return err
		}

		if uid != "" && rec.Draft.DurableUID != uid {
			return nil
		}

		if err := tx.Bucket(uidsBucket).Delete([]byte(rec.Draft.DurableUID)); err != nil {
			return err
		}

		if err := unbindUID(tx.Bucket(keysBucket), rec.Draft.DurableUID); err != nil {
			return err
		}

		if err := events.Delete(idKey(localID)); err != nil {
			return err
		}

		deleted = true

		return nil
	})

	return deleted, err
}

// MarkSynced records that uploaded reached the remote service at the
// given time. If the stored draft no longer matches uploaded, an edit was
// saved while the upload was in flight: the record stays pending and
// false is returned.
func (s *State) MarkSynced(uploaded models.EventDraft, at time.Time) (bool, error) {
	want, err := json.Marshal(uploaded)
	if err != nil {
		return false, fmt.Errorf("encoding uploaded event %d: %w", uploaded.LocalID, err)
	}

	marked := false

	err = s.db.Update(func(tx *bolt.Tx) error {
		events := tx.Bucket(eventsBucket)

		rec, err := getRecord(events, uploaded.LocalID)
		if err != nil {
			return err
		}

		if rec == nil {
			return fmt.Errorf("local id %d: %w", uploaded.LocalID, apperrors.ErrEventNotFound)
		}

		have, err := json.Marshal(rec.Draft)
		if err != nil {
			return err
		}

		if !bytes.Equal(have, want) {
			return nil
		}

		// The stored version is the uploaded one, so it is synced even if
		// the clock moved backwards since it was written.
		if at.Before(rec.UpdatedAt) {
			at = rec.UpdatedAt
		}

		rec.SyncedAt = at
		marked = true

		return putRecord(events, *rec)
	})

	return marked, err
}

// BindKey remembers that the draft opened under a navigation key (such as
// a capture inbox directory name) became the record with this UID.
func (s *State) BindKey(key, uid string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(keysBucket).Put([]byte(key), []byte(uid))
	})
}

// UIDForKey returns the UID bound to a navigation key, or "" if none.
func (s *State) UIDForKey(key string) (string, error) {
	var uid string

	err := s.db.View(func(tx *bolt.Tx) error {
		uid = string(tx.Bucket(keysBucket).Get([]byte(key)))
		return nil
	})

	return uid, err
}

func unbindUID(keys *bolt.Bucket, uid string) error {
	var stale [][]byte

	err := keys.ForEach(func(k, v []byte) error {
		if string(v) == uid {
			stale = append(stale, bytes.Clone(k))
		}

		return nil
	})
	if err != nil {
		return err
	}

	for _, k := range stale {
		if err := keys.Delete(k); err != nil {
			return err
		}
	}

	return nil
}

// List returns all records ordered by local id.
func (s *State) List() ([]models.EventRecord, error) {
	var records []models.EventRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(eventsBucket).ForEach(func(_, v []byte) error {
			var rec models.EventRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}

			records = append(records, rec)

			return nil
		})
	})

	return records, err
}
