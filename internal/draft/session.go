package draft

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	apperrors "github.com/alexjbarnes/inspect-sync/internal/errors"
	"github.com/alexjbarnes/inspect-sync/internal/models"
)

const (
	// DefaultDebounce is how long facet changes must be quiet before the
	// dispatcher reconciles.
	DefaultDebounce = 500 * time.Millisecond

	// changeBuffer is the capacity of the facet-changed channel. When it
	// is full further events are dropped, which is safe because every
	// reconcile compares all facets.
	changeBuffer = 64
)

// Outcome says what one reconcile pass did.
type Outcome int

const (
	// OutcomeClean means nothing differed from the baseline.
	OutcomeClean Outcome = iota

	// OutcomeEmpty means the draft is new and has no content, so nothing
	// was written.
	OutcomeEmpty

	// OutcomeSkipped means another persist was in flight.
	OutcomeSkipped

	// OutcomeSaved means the draft was written and the baseline moved.
	OutcomeSaved

	// OutcomeFailed means the persist failed and the baseline is
	// unchanged.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeClean:
		return "clean"
	case OutcomeEmpty:
		return "empty"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSaved:
		return "saved"
	case OutcomeFailed:
		return "failed"
	}

	return fmt.Sprintf("outcome(%d)", int(o))
}

// Options holds what sessions share: collaborators and tuning.
type Options struct {
	Store    DurableStore
	Catalog  AssetCatalog
	Uploader Uploader
	Sync     SyncConfig
	Debounce time.Duration

	// SyncOnClose makes Manager.Shutdown start a final sync for every
	// session it closes.
	SyncOnClose bool

	Logger *slog.Logger
}

// Session is one editing session over one draft. It owns the current
// draft, the baseline, the identity hint, and the per-session persist and
// sync guards. Edits feed a single change stream that Run consumes.
type Session struct {
	key      string
	facets   *FacetStore
	assets   *AssetResolver
	resolver *IdentityResolver
	upserter *Upserter
	sync     *Orchestrator
	keys     KeyIndex
	bg       *Background
	logger   *slog.Logger
	debounce time.Duration
	changes  chan Facet
	closed   atomic.Bool

	hintMu sync.Mutex
	hint   models.IdentityHint
}

// NewSession opens a session for hint. If the hint names an existing
// record its stored values become both the current draft and the
// baseline.
func NewSession(key string, hint models.IdentityHint, opts Options, bg *Background) *Session {
	logger := opts.Logger.With(slog.String("session", key))
	resolver := NewIdentityResolver(opts.Store, logger)

	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	keys, _ := opts.Store.(KeyIndex)

	var initial models.EventDraft

	if res := resolver.Resolve(hint); res.Mode == ModeEdit {
		loaded, err := opts.Store.Load(res.LocalID)
		if err == nil && loaded != nil {
			initial = loaded.Clone()
			hint.CachedLocalID = initial.LocalID
			hint.CachedUID = initial.DurableUID
		}
	}

	s := &Session{
		key:      key,
		facets:   NewFacetStore(initial, SnapshotOf(initial, initial.DigitalAssetFileIDs)),
		assets:   NewAssetResolver(opts.Catalog, logger, initial.DigitalAssetFileIDs),
		resolver: resolver,
		upserter: NewUpserter(opts.Store, resolver, logger),
		sync:     NewOrchestrator(opts.Uploader, opts.Store, opts.Sync, logger),
		keys:     keys,
		bg:       bg,
		logger:   logger,
		debounce: debounce,
		changes:  make(chan Facet, changeBuffer),
		hint:     hint,
	}

	return s
}

// Key returns the session's registry key.
func (s *Session) Key() string {
	return s.key
}

// Current returns a copy of the draft being edited.
func (s *Session) Current() models.EventDraft {
	return s.facets.Current()
}

// Baseline returns the last persisted snapshot.
func (s *Session) Baseline() Snapshot {
	return s.facets.Baseline()
}

// Hint returns the session's identity hint, refined by every persist.
func (s *Session) Hint() models.IdentityHint {
	s.hintMu.Lock()
	defer s.hintMu.Unlock()

	return s.hint
}

// Inserted caches the local id of a freshly inserted record.
func (s *Session) Inserted(localID int64) {
	s.hintMu.Lock()
	defer s.hintMu.Unlock()

	s.hint.CachedLocalID = localID
}

// Committed moves the baseline to a persisted snapshot and caches the
// record's identity. A new record opened under a navigation key is bound
// to that key so later sessions for the key reopen it.
func (s *Session) Committed(res PersistResult) {
	s.hintMu.Lock()
	nav := s.hint.NavigationID
	s.hint.CachedLocalID = res.LocalID
	s.hint.CachedUID = res.UID
	s.hintMu.Unlock()

	s.facets.Commit(res.Snapshot, res.LocalID, res.UID)

	if res.Mode != ModeNew || s.keys == nil || !bindableKey(nav) || nav == res.UID {
		return
	}

	if err := s.keys.BindKey(nav, res.UID); err != nil {
		s.logger.Warn("binding navigation key failed",
			slog.String("key", nav),
			slog.String("uid", res.UID),
			slog.String("error", err.Error()),
		)
	}
}

// Edit applies fn to the draft and reports facet as changed.
func (s *Session) Edit(facet Facet, fn func(*models.EventDraft)) error {
	if s.closed.Load() {
		return apperrors.ErrSessionClosed
	}

	s.facets.Update(fn)
	s.notify(facet)

	return nil
}

// AttachMedia adds a finalized capture to the photo or audio facet.
// Attaching a path twice is a no-op.
func (s *Session) AttachMedia(facet Facet, path string) error {
	return s.Edit(facet, func(d *models.EventDraft) {
		switch facet {
		case FacetPhotos:
			if !slices.Contains(d.PhotoPaths, path) {
				d.PhotoPaths = append(d.PhotoPaths, path)
			}
		case FacetAudio:
			if !slices.Contains(d.AudioPaths, path) {
				d.AudioPaths = append(d.AudioPaths, path)
			}
		}
	})
}

// SelectAssets records an asset selection. An empty selection keeps the
// last known file ids unless forceClear is set.
func (s *Session) SelectAssets(fileIDs, nodeIDs []string, forceClear bool) error {
	err := s.Edit(FacetAssets, func(d *models.EventDraft) {
		d.DigitalAssetFileIDs = slices.Clone(fileIDs)
		d.DigitalAssetNodeIDs = slices.Clone(nodeIDs)
	})
	if err != nil {
		return err
	}

	s.assets.Apply(fileIDs, forceClear)

	return nil
}

// RemoveAsset removes one file from the effective asset selection.
func (s *Session) RemoveAsset(ctx context.Context, fileID string) error {
	return s.Edit(FacetAssets, func(d *models.EventDraft) {
		s.assets.Remove(ctx, d, fileID)
	})
}

// EffectiveFileIDs returns the asset file ids the draft currently
// resolves to.
func (s *Session) EffectiveFileIDs(ctx context.Context) []string {
	return s.assets.EffectiveFileIDs(ctx, s.facets.Current())
}

func (s *Session) notify(facet Facet) {
	select {
	case s.changes <- facet:
	default:
	}
}

// Run is the session's dispatcher. It collects facet-changed events and
// reconciles once changes have been quiet for the debounce interval.
// Failed or skipped passes are retried on a later tick. Run returns when
// ctx is done.
func (s *Session) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.debounce)
	defer ticker.Stop()

	pending := make(map[Facet]time.Time)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-s.changes:
			pending[f] = time.Now()
		case <-ticker.C:
			if len(pending) == 0 || !quiet(pending, s.debounce) {
				continue
			}

			outcome, err := s.Reconcile(ctx)
			if err != nil {
				s.logger.Warn("reconcile failed", slog.String("error", err.Error()))
			}

			if outcome == OutcomeSkipped || outcome == OutcomeFailed {
				continue
			}

			clear(pending)
		}
	}
}

func quiet(pending map[Facet]time.Time, d time.Duration) bool {
	now := time.Now()
	for _, t := range pending {
		if now.Sub(t) < d {
			return false
		}
	}

	return true
}

// Reconcile runs one pass: resolve assets, snapshot, diff against the
// baseline, and persist if anything changed. A busy persist guard yields
// OutcomeSkipped.
func (s *Session) Reconcile(ctx context.Context) (Outcome, error) {
	return s.reconcile(ctx, false)
}

// Save is an explicit save. It waits for any in-flight persist instead
// of skipping.
func (s *Session) Save(ctx context.Context) (Outcome, error) {
	return s.reconcile(ctx, true)
}

func (s *Session) reconcile(ctx context.Context, wait bool) (Outcome, error) {
	current := s.facets.Current()
	assets := s.assets.EffectiveFileIDs(ctx, current)

	cs := Diff(SnapshotOf(current, assets), s.facets.Baseline())
	if !cs.AnyDirty {
		return OutcomeClean, nil
	}

	if !cs.HasContent && s.resolver.Resolve(s.Hint()).Mode == ModeNew {
		return OutcomeEmpty, nil
	}

	s.logger.Debug("facets changed",
		slog.Any("facets", cs.DirtyFacets()),
		slog.Int("location_inserted", cs.Location.Inserted),
		slog.Int("location_deleted", cs.Location.Deleted),
		slog.Int("description_inserted", cs.Description.Inserted),
		slog.Int("description_deleted", cs.Description.Deleted),
	)

	var (
		res PersistResult
		err error
	)

	if wait {
		res, err = s.upserter.PersistWait(ctx, s, current, assets)
	} else {
		res, err = s.upserter.Persist(s, current, assets)
	}

	switch {
	case err != nil:
		return OutcomeFailed, err
	case res.Skipped:
		return OutcomeSkipped, nil
	}

	return OutcomeSaved, nil
}

// Sync saves the draft and uploads it. A draft that has never been
// persisted and has no content fails with "no identity".
func (s *Session) Sync(ctx context.Context) models.SyncAttemptResult {
	if _, err := s.Save(ctx); err != nil {
		s.logger.Warn("pre-sync save failed", slog.String("error", err.Error()))
	}

	return s.sync.Run(ctx, s)
}

// ResolveUID returns the durable UID of the session's record.
func (s *Session) ResolveUID() (string, bool) {
	return s.resolver.ResolveUID(s.Hint())
}

// SaveForSync unconditionally persists the current draft, waiting for any
// in-flight persist.
func (s *Session) SaveForSync(ctx context.Context) (PersistResult, error) {
	current := s.facets.Current()
	assets := s.assets.EffectiveFileIDs(ctx, current)

	return s.upserter.PersistWait(ctx, s, current, assets)
}

// Close ends the session with a final reconcile pass. With finalSync set
// it also starts a sync on the background runner that outlives the
// session. The returned func cancels that sync only if it has not yet
// begun its local save; it is a no-op when no sync was started.
func (s *Session) Close(ctx context.Context, finalSync bool) context.CancelFunc {
	s.closed.Store(true)

	outcome, err := s.Save(ctx)
	if err != nil {
		s.logger.Warn("final reconcile failed", slog.String("error", err.Error()))
	} else {
		s.logger.Debug("final reconcile", slog.String("outcome", outcome.String()))
	}

	if !finalSync {
		return func() {}
	}

	return s.bg.Go("final-sync:"+s.key, func(ctx context.Context) {
		res := s.sync.Run(ctx, s)
		s.logger.Info("final sync finished",
			slog.Bool("success", res.Success),
			slog.String("message", res.Message),
		)
	})
}
