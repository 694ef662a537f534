package draft

import (
	"log/slog"
	"strconv"

	"github.com/alexjbarnes/inspect-sync/internal/models"
)

// Mode says whether persisting a draft inserts a new record or updates an
// existing one.
type Mode int

const (
	ModeNew Mode = iota
	ModeEdit
)

func (m Mode) String() string {
	if m == ModeEdit {
		return "edit"
	}

	return "new"
}

// Resolution is the outcome of identity resolution. LocalID is zero for
// ModeNew.
type Resolution struct {
	Mode    Mode
	LocalID int64
}

// IdentityResolver turns an IdentityHint into a new/edit decision. Store
// failures are treated as "not found": resolving to a new record is
// recoverable, resolving to the wrong record overwrites it.
type IdentityResolver struct {
	store  DurableStore
	logger *slog.Logger
}

// NewIdentityResolver creates a resolver backed by the given store.
func NewIdentityResolver(store DurableStore, logger *slog.Logger) *IdentityResolver {
	return &IdentityResolver{store: store, logger: logger}
}

// Resolve picks the record a hint refers to. First match wins:
//  1. NavigationID parses as a local id that the store holds
//  2. NavigationID is a durable UID known to the store, whether or not it
//     looked numeric
//  3. no NavigationID: CachedUID is a durable UID known to the store
//  4. CachedLocalID that the store holds
//
// Anything else resolves to ModeNew.
func (r *IdentityResolver) Resolve(hint models.IdentityHint) Resolution {
	if hint.NavigationID != "" {
		if id, ok := parseLocalID(hint.NavigationID); ok && r.exists(id) {
			return Resolution{Mode: ModeEdit, LocalID: id}
		}

		if id := r.lookupUID(hint.NavigationID); id != 0 {
			return Resolution{Mode: ModeEdit, LocalID: id}
		}
	} else if hint.CachedUID != "" {
		if id := r.lookupUID(hint.CachedUID); id != 0 {
			return Resolution{Mode: ModeEdit, LocalID: id}
		}
	}

	if hint.CachedLocalID != 0 && r.exists(hint.CachedLocalID) {
		return Resolution{Mode: ModeEdit, LocalID: hint.CachedLocalID}
	}

	return Resolution{Mode: ModeNew}
}

// ResolveUID returns the durable UID the hint refers to: a navigation id
// that is a known UID, then a known cached UID, then the UID of whatever
// record Resolve picks.
func (r *IdentityResolver) ResolveUID(hint models.IdentityHint) (string, bool) {
	if hint.NavigationID != "" {
		if _, numeric := parseLocalID(hint.NavigationID); !numeric && r.lookupUID(hint.NavigationID) != 0 {
			return hint.NavigationID, true
		}
	}

	if hint.CachedUID != "" && r.lookupUID(hint.CachedUID) != 0 {
		return hint.CachedUID, true
	}

	res := r.Resolve(hint)
	if res.Mode != ModeEdit {
		return "", false
	}

	uid, err := r.store.UIDFor(res.LocalID)
	if err != nil {
		r.logger.Debug("uid lookup failed",
			slog.Int64("local_id", res.LocalID),
			slog.String("error", err.Error()),
		)

		return "", false
	}

	return uid, uid != ""
}

func (r *IdentityResolver) lookupUID(uid string) int64 {
	id, err := r.store.LocalIDForUID(uid)
	if err != nil {
		r.logger.Debug("local id lookup failed",
			slog.String("uid", uid),
			slog.String("error", err.Error()),
		)

		return 0
	}

	return id
}

func (r *IdentityResolver) exists(id int64) bool {
	d, err := r.store.Load(id)
	if err != nil {
		r.logger.Debug("record lookup failed",
			slog.Int64("local_id", id),
			slog.String("error", err.Error()),
		)

		return false
	}

	return d != nil
}

// parseLocalID reports whether s is a positive decimal local id.
func parseLocalID(s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}

	return id, true
}

// bindableKey reports whether a navigation id can be bound to a record: it
// is set and does not read as a local id.
func bindableKey(nav string) bool {
	if nav == "" {
		return false
	}

	_, numeric := parseLocalID(nav)

	return !numeric
}
