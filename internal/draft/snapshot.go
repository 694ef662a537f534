package draft

import (
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/alexjbarnes/inspect-sync/internal/models"
	"golang.org/x/text/unicode/norm"
)

// Facet names one independently tracked part of a draft.
type Facet string

const (
	FacetText       Facet = "text"
	FacetPhotos     Facet = "photos"
	FacetAudio      Facet = "audio"
	FacetRisk       Facet = "risk"
	FacetAssets     Facet = "assets"
	FacetDefects    Facet = "defects"
	FacetStructural Facet = "structural"
)

// AllFacets lists every facet in a stable order.
var AllFacets = []Facet{
	FacetText,
	FacetPhotos,
	FacetAudio,
	FacetRisk,
	FacetAssets,
	FacetDefects,
	FacetStructural,
}

// Snapshot is the normalized, comparable form of a draft. Collections are
// sorted sets so ordering never registers as a change. Assets hold the
// effective file-id set, not whatever the draft happened to carry.
type Snapshot struct {
	Location    string
	Description string
	Photos      []string
	Audio       []string
	Risk        *models.RiskResult
	Structural  *models.StructuralDefectDetail
	Defects     []int64
	Assets      []string
}

// SnapshotOf normalizes d using assets as the effective file-id set. The
// result shares no memory with d.
func SnapshotOf(d models.EventDraft, assets []string) Snapshot {
	c := d.Clone()

	return Snapshot{
		Location:    normalizeText(c.Location),
		Description: normalizeText(c.Description),
		Photos:      pathSet(c.PhotoPaths),
		Audio:       pathSet(c.AudioPaths),
		Risk:        c.Risk,
		Structural:  c.StructuralDefect,
		Defects:     idSet(c.LinkedDefectIDs),
		Assets:      stringSet(assets),
	}
}

// Equal reports whether s and o hold the same value for facet f.
func (s Snapshot) Equal(f Facet, o Snapshot) bool {
	switch f {
	case FacetText:
		return s.Location == o.Location && s.Description == o.Description
	case FacetPhotos:
		return slices.Equal(s.Photos, o.Photos)
	case FacetAudio:
		return slices.Equal(s.Audio, o.Audio)
	case FacetRisk:
		return riskEqual(s.Risk, o.Risk)
	case FacetAssets:
		return slices.Equal(s.Assets, o.Assets)
	case FacetDefects:
		return slices.Equal(s.Defects, o.Defects)
	case FacetStructural:
		if s.Structural == nil || o.Structural == nil {
			return s.Structural == o.Structural
		}

		return *s.Structural == *o.Structural
	}

	return true
}

// HasContent reports whether any facet holds a value.
func (s Snapshot) HasContent() bool {
	return s.Location != "" ||
		s.Description != "" ||
		len(s.Photos) > 0 ||
		len(s.Audio) > 0 ||
		s.Risk != nil ||
		s.Structural != nil ||
		len(s.Defects) > 0 ||
		len(s.Assets) > 0
}

func riskEqual(a, b *models.RiskResult) bool {
	if a == nil || b == nil {
		return a == b
	}

	return a.Level == b.Level && a.Score == b.Score && maps.Equal(a.Answers, b.Answers)
}

func normalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// pathSet NFC-normalizes paths so the same file named on different
// platforms compares equal.
func pathSet(in []string) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		out = append(out, norm.NFC.String(p))
	}

	return stringSet(out)
}

func stringSet(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}

	slices.Sort(out)

	return slices.Compact(out)
}

func idSet(in []int64) []int64 {
	out := slices.Clone(in)
	slices.Sort(out)

	return slices.Compact(out)
}

// FacetStore holds the in-memory draft being edited and the baseline
// snapshot of what was last persisted. Every read returns a copy.
type FacetStore struct {
	mu       sync.Mutex
	current  models.EventDraft
	baseline Snapshot
}

// NewFacetStore seeds the store. For an existing record the baseline is
// the snapshot of the loaded values, so nothing starts dirty.
func NewFacetStore(initial models.EventDraft, baseline Snapshot) *FacetStore {
	return &FacetStore{current: initial.Clone(), baseline: baseline}
}

// Current returns a copy of the draft being edited.
func (f *FacetStore) Current() models.EventDraft {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.current.Clone()
}

// Update applies fn to the draft under the store lock.
func (f *FacetStore) Update(fn func(*models.EventDraft)) {
	f.mu.Lock()
	defer f.mu.Unlock()

	fn(&f.current)
}

// Baseline returns the last persisted snapshot.
func (f *FacetStore) Baseline() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.baseline
}

// Commit records a successful persist: the baseline moves to what was
// written and the draft picks up its store-assigned identity. Facet values
// edited since the persist began are left alone.
func (f *FacetStore) Commit(persisted Snapshot, localID int64, uid string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.baseline = persisted
	f.current.LocalID = localID
	f.current.DurableUID = uid
}
