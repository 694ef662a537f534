// Package draft implements the reconciliation and sync core for event
// drafts edited offline: identity resolution, facet change detection,
// digital-asset id remapping, guarded local persistence, and remote upload
// orchestration with retries.
package draft

import (
	"context"
	"time"

	"github.com/alexjbarnes/inspect-sync/internal/models"
)

//go:generate mockgen -source=deps.go -destination=mock_deps_test.go -package=draft

// DurableStore is the local record store. It assigns local ids and
// durable UIDs; the core never invents either. Missing records are
// reported as zero values with a nil error.
type DurableStore interface {
	Upsert(draft models.EventDraft) (int64, error)
	UIDFor(localID int64) (string, error)
	LocalIDForUID(uid string) (int64, error)
	Load(localID int64) (*models.EventDraft, error)
	Delete(localID int64, uid string) (bool, error)
	MarkSynced(uploaded models.EventDraft, at time.Time) (bool, error)
}

// KeyIndex remembers which record a non-record navigation key, such as a
// capture inbox directory, turned into. Stores may implement it; sessions
// opened under a bound key then reopen that record.
type KeyIndex interface {
	BindKey(key, uid string) error
	UIDForKey(key string) (string, error)
}

// AssetCatalog expands digital-asset node selections into file ids and
// describes files. Implementations return empty results on failure.
type AssetCatalog interface {
	FileIDsForNodeIDs(ctx context.Context, nodeIDs []string) []string
	FileNamesFor(ctx context.Context, fileIDs []string) []string
	DetailsFor(ctx context.Context, fileIDs []string) []models.AssetDetail
}

// Uploader sends one event to the remote service. An error wrapping
// errors.ErrUploadRejected is permanent; any other error, or a result
// with Success false, is treated as transient.
type Uploader interface {
	Upload(ctx context.Context, uid string, draft models.EventDraft) (models.UploadResult, error)
}
