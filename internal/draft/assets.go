package draft

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/alexjbarnes/inspect-sync/internal/models"
)

// AssetResolver maps a draft's digital-asset selection onto the flat
// file-id space. It keeps the last non-empty resolution for the session
// so that a selection cleared in passing does not read as an intentional
// clear.
type AssetResolver struct {
	catalog AssetCatalog
	logger  *slog.Logger

	mu     sync.Mutex
	sticky []string
}

// NewAssetResolver creates a resolver. initial seeds the sticky set, e.g.
// with the file ids of a record loaded for editing. catalog may be nil,
// in which case node selections never expand.
func NewAssetResolver(catalog AssetCatalog, logger *slog.Logger, initial []string) *AssetResolver {
	return &AssetResolver{
		catalog: catalog,
		logger:  logger,
		sticky:  stringSet(initial),
	}
}

// EffectiveFileIDs returns the file ids the draft refers to: explicit file
// ids, else the expansion of its node ids, else the sticky set.
func (r *AssetResolver) EffectiveFileIDs(ctx context.Context, d models.EventDraft) []string {
	if ids := stringSet(d.DigitalAssetFileIDs); len(ids) > 0 {
		r.remember(ids)
		return ids
	}

	if nodes := stringSet(d.DigitalAssetNodeIDs); len(nodes) > 0 && r.catalog != nil {
		if ids := stringSet(r.catalog.FileIDsForNodeIDs(ctx, nodes)); len(ids) > 0 {
			r.remember(ids)
			return ids
		}

		r.logger.Debug("node selection expanded to no files, using last known set",
			slog.Int("nodes", len(nodes)),
		)
	}

	return r.Sticky()
}

// Apply records an explicit selection. A non-empty set replaces the
// sticky set. An empty set clears it only when forceClear is set;
// otherwise it is treated as transient and ignored.
func (r *AssetResolver) Apply(fileIDs []string, forceClear bool) {
	ids := stringSet(fileIDs)

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case len(ids) > 0:
		r.sticky = ids
	case forceClear:
		r.sticky = nil
	}
}

// Remove deletes one file from the draft's effective selection. The draft
// is rewritten to hold the explicit post-deletion file ids so the removal
// survives any later node expansion.
func (r *AssetResolver) Remove(ctx context.Context, d *models.EventDraft, fileID string) {
	post := slices.DeleteFunc(r.EffectiveFileIDs(ctx, *d), func(id string) bool {
		return id == fileID
	})

	d.DigitalAssetFileIDs = post
	d.DigitalAssetNodeIDs = nil

	r.Apply(post, len(post) == 0)
}

// Sticky returns a copy of the last known non-empty file-id set.
func (r *AssetResolver) Sticky() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.sticky)
}

func (r *AssetResolver) remember(ids []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sticky = slices.Clone(ids)
}
