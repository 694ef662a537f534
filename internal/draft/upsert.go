package draft

import (
	"context"
	"fmt"
	"log/slog"

	apperrors "github.com/alexjbarnes/inspect-sync/internal/errors"
	"github.com/alexjbarnes/inspect-sync/internal/models"
	"golang.org/x/sync/semaphore"
)

// PersistResult describes one persist call. Skipped means another persist
// was in flight and nothing was written. On a failure after the record was
// written LocalID is still set so the caller can avoid inserting it again.
type PersistResult struct {
	Skipped  bool
	Mode     Mode
	LocalID  int64
	UID      string
	Draft    models.EventDraft
	Snapshot Snapshot
}

// PersistTarget supplies the identity hint for a persist and receives the
// identity the store assigned. The upserter calls it only while holding
// its guard, so a waiting persist always sees the outcome of the one
// before it.
type PersistTarget interface {
	// Hint returns the current identity hint.
	Hint() models.IdentityHint
	// Inserted is called as soon as a new record has a local id.
	Inserted(localID int64)
	// Committed is called after a fully successful persist.
	Committed(res PersistResult)
}

// Upserter is the only writer of the durable store for one session. At
// most one persist runs at a time; identity lookup and upsert happen
// together inside the guard.
type Upserter struct {
	store    DurableStore
	resolver *IdentityResolver
	logger   *slog.Logger
	guard    *semaphore.Weighted
}

// NewUpserter creates an upserter with its own in-flight guard.
func NewUpserter(store DurableStore, resolver *IdentityResolver, logger *slog.Logger) *Upserter {
	return &Upserter{
		store:    store,
		resolver: resolver,
		logger:   logger,
		guard:    semaphore.NewWeighted(1),
	}
}

// Persist writes the draft unless another persist is in flight, in which
// case it returns a Skipped result immediately.
func (u *Upserter) Persist(t PersistTarget, d models.EventDraft, assets []string) (PersistResult, error) {
	if !u.guard.TryAcquire(1) {
		u.logger.Debug("persist skipped, another persist in flight")
		return PersistResult{Skipped: true}, nil
	}
	defer u.guard.Release(1)

	return u.persist(t, d, assets)
}

// PersistWait writes the draft, waiting for any in-flight persist to
// finish first.
func (u *Upserter) PersistWait(ctx context.Context, t PersistTarget, d models.EventDraft, assets []string) (PersistResult, error) {
	if err := u.guard.Acquire(ctx, 1); err != nil {
		return PersistResult{}, fmt.Errorf("waiting for in-flight persist: %w", err)
	}
	defer u.guard.Release(1)

	return u.persist(t, d, assets)
}

func (u *Upserter) persist(t PersistTarget, d models.EventDraft, assets []string) (PersistResult, error) {
	res := u.resolver.Resolve(t.Hint())

	rec := d.Clone()
	rec.DigitalAssetFileIDs = stringSet(assets)
	rec.LocalID = res.LocalID

	if res.Mode == ModeNew {
		rec.DurableUID = ""
	}

	id, err := u.store.Upsert(rec)
	if err != nil {
		return PersistResult{Mode: res.Mode}, fmt.Errorf("%w: %w", apperrors.ErrPersistFailed, err)
	}

	out := PersistResult{Mode: res.Mode, LocalID: id}

	if res.Mode == ModeNew {
		t.Inserted(id)
	}

	uid, err := u.store.UIDFor(id)
	if err != nil {
		return out, fmt.Errorf("%w: reading back uid for %d: %w", apperrors.ErrPersistFailed, id, err)
	}

	if uid == "" {
		return out, fmt.Errorf("%w: store assigned no uid to %d", apperrors.ErrPersistFailed, id)
	}

	rec.LocalID = id
	rec.DurableUID = uid

	out.UID = uid
	out.Draft = rec
	out.Snapshot = SnapshotOf(rec, assets)

	t.Committed(out)

	u.logger.Debug("event persisted",
		slog.String("mode", res.Mode.String()),
		slog.Int64("local_id", id),
		slog.String("uid", uid),
	)

	return out, nil
}
