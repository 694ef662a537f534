// Package models defines types shared across internal packages.
package models

import (
	"maps"
	"slices"
	"time"
)

// EventDraft is an inspection event while it is being edited. LocalID is
// assigned by the durable store on first insert and DurableUID is fetched
// back from the store immediately after; neither changes afterwards.
type EventDraft struct {
	LocalID             int64                   `json:"local_id"`
	DurableUID          string                  `json:"uid"`
	Location            string                  `json:"location"`
	Description         string                  `json:"description"`
	PhotoPaths          []string                `json:"photo_paths,omitempty"`
	AudioPaths          []string                `json:"audio_paths,omitempty"`
	Risk                *RiskResult             `json:"risk,omitempty"`
	StructuralDefect    *StructuralDefectDetail `json:"structural_defect,omitempty"`
	LinkedDefectIDs     []int64                 `json:"linked_defect_ids,omitempty"`
	DigitalAssetFileIDs []string                `json:"digital_asset_file_ids,omitempty"`
	DigitalAssetNodeIDs []string                `json:"digital_asset_node_ids,omitempty"`
}

// Clone returns a deep copy of the draft.
func (d EventDraft) Clone() EventDraft {
	out := d
	out.PhotoPaths = slices.Clone(d.PhotoPaths)
	out.AudioPaths = slices.Clone(d.AudioPaths)
	out.LinkedDefectIDs = slices.Clone(d.LinkedDefectIDs)
	out.DigitalAssetFileIDs = slices.Clone(d.DigitalAssetFileIDs)
	out.DigitalAssetNodeIDs = slices.Clone(d.DigitalAssetNodeIDs)

	if d.Risk != nil {
		r := *d.Risk
		r.Answers = maps.Clone(d.Risk.Answers)
		out.Risk = &r
	}

	if d.StructuralDefect != nil {
		sd := *d.StructuralDefect
		out.StructuralDefect = &sd
	}

	return out
}

// RiskResult is the outcome of a completed risk questionnaire.
type RiskResult struct {
	Level   string            `json:"level"`
	Score   float64           `json:"score"`
	Answers map[string]string `json:"answers,omitempty"`
}

// StructuralDefectDetail describes the defect observed on a structural
// element.
type StructuralDefectDetail struct {
	Element    string `json:"element"`
	DefectType string `json:"defect_type"`
	Severity   string `json:"severity"`
	Extent     string `json:"extent,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// EventRecord is an EventDraft as held by the durable store, with
// bookkeeping timestamps. SyncedAt is zero until the first successful
// upload.
type EventRecord struct {
	Draft     EventDraft `json:"draft"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	SyncedAt  time.Time  `json:"synced_at,omitzero"`
}

// Pending reports whether the record changed after its last upload.
func (r EventRecord) Pending() bool {
	return r.SyncedAt.IsZero() || r.UpdatedAt.After(r.SyncedAt)
}

// IdentityHint carries whatever identity the calling layer knows about the
// draft being edited. Empty strings and zero ids mean "not known".
type IdentityHint struct {
	NavigationID  string `json:"navigation_id,omitempty"`
	CachedLocalID int64  `json:"cached_local_id,omitempty"`
	CachedUID     string `json:"cached_uid,omitempty"`
}

// SyncAttemptResult is the terminal outcome of one sync orchestration.
type SyncAttemptResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// UploadResult is what the remote service reports for one upload attempt.
type UploadResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
