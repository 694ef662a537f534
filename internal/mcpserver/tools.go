// Package mcpserver registers MCP tools that expose inspection events.
// Reads go to the durable store; every write goes through a draft session
// so edits made here reconcile and sync exactly like edits from the
// capture inbox.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alexjbarnes/inspect-sync/internal/auth"
	"github.com/alexjbarnes/inspect-sync/internal/draft"
	apperrors "github.com/alexjbarnes/inspect-sync/internal/errors"
	"github.com/alexjbarnes/inspect-sync/internal/models"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// EventReader is the read side of the durable store.
type EventReader interface {
	List() ([]models.EventRecord, error)
	Record(localID int64) (*models.EventRecord, error)
	LocalIDForUID(uid string) (int64, error)
}

// DefectCatalog materializes linked defect ids for display.
type DefectCatalog interface {
	Materialize(ctx context.Context, ids []int64) []models.DefectRecord
}

// Deps holds what the tools need. Assets and Defects may be nil.
type Deps struct {
	Events   EventReader
	Sessions *draft.Manager
	Assets   draft.AssetCatalog
	Defects  DefectCatalog
	Logger   *slog.Logger
}

// RegisterTools adds all event tools to the given MCP server.
func RegisterTools(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "event_list",
		Description: "List stored inspection events with sync status. No media or linked records. Use this first to find event ids.",
	}, listHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "event_get",
		Description: "Get one event by local id or uid, with linked defects and digital asset details resolved from the catalogs.",
	}, getHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "event_edit",
		Description: "Create or edit an event. Omitted fields are left unchanged. The edit is saved locally before returning; set sync to upload it in the background afterwards.",
	}, editHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "event_sync",
		Description: "Save and upload one event now, retrying transient failures. Returns the final outcome.",
	}, syncHandler(d))

	mcp.AddTool(server, &mcp.Tool{
		Name:        "event_delete",
		Description: "Delete an event from local storage. Any open editing session for it is discarded.",
	}, deleteHandler(d))
}

// --- Input types ---
// The MCP SDK infers JSON schema from these struct types via jsonschema tags.

// ListInput holds parameters for event_list.
type ListInput struct {
	PendingOnly bool `json:"pending_only,omitempty" jsonschema:"only events with changes not yet uploaded"`
}

// GetInput holds parameters for event_get.
type GetInput struct {
	ID string `json:"id" jsonschema:"local id or uid of the event"`
}

// EditInput holds parameters for event_edit.
type EditInput struct {
	ID              string                         `json:"id,omitempty" jsonschema:"local id or uid of an existing event; omit to create a new one"`
	Location        *string                        `json:"location,omitempty" jsonschema:"new location text"`
	Description     *string                        `json:"description,omitempty" jsonschema:"new description text"`
	Risk            *models.RiskResult             `json:"risk,omitempty" jsonschema:"completed risk assessment"`
	ClearRisk       bool                           `json:"clear_risk,omitempty" jsonschema:"remove the risk assessment"`
	Structural      *models.StructuralDefectDetail `json:"structural,omitempty" jsonschema:"structural defect detail"`
	ClearStructural bool                           `json:"clear_structural,omitempty" jsonschema:"remove the structural defect detail"`
	LinkedDefectIDs []int64                        `json:"linked_defect_ids,omitempty" jsonschema:"replace the linked historical defect ids"`
	AssetFileIDs    []string                       `json:"asset_file_ids,omitempty" jsonschema:"replace the selected digital asset files"`
	AssetNodeIDs    []string                       `json:"asset_node_ids,omitempty" jsonschema:"replace the selected digital asset tree nodes"`
	ClearAssets     bool                           `json:"clear_assets,omitempty" jsonschema:"remove every selected digital asset"`
	RemoveAsset     string                         `json:"remove_asset,omitempty" jsonschema:"remove one digital asset file id from the selection"`
	Sync            bool                           `json:"sync,omitempty" jsonschema:"upload the event in the background after saving"`
}

// SyncInput holds parameters for event_sync.
type SyncInput struct {
	ID string `json:"id" jsonschema:"local id or uid of the event"`
}

// DeleteInput holds parameters for event_delete.
type DeleteInput struct {
	ID string `json:"id" jsonschema:"local id or uid of the event"`
}

// --- Output types ---

// EventSummary is one row of event_list.
type EventSummary struct {
	LocalID     int64  `json:"local_id"`
	UID         string `json:"uid"`
	Location    string `json:"location"`
	Photos      int    `json:"photos"`
	Audio       int    `json:"audio"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
	SyncedAt    string `json:"synced_at,omitempty"`
	Pending     bool   `json:"pending"`
	OpenSession bool   `json:"open_session"`
}

// ListResult is returned by event_list.
type ListResult struct {
	Total  int            `json:"total"`
	Events []EventSummary `json:"events"`
}

// DefectView is a linked defect as shown by event_get.
type DefectView struct {
	ID         int64  `json:"id"`
	UID        string `json:"uid"`
	Reference  string `json:"reference"`
	Title      string `json:"title"`
	Element    string `json:"element,omitempty"`
	Severity   string `json:"severity,omitempty"`
	RecordedAt string `json:"recorded_at"`
}

// GetResult is returned by event_get.
type GetResult struct {
	Summary    EventSummary         `json:"summary"`
	Event      models.EventDraft    `json:"event"`
	Defects    []DefectView         `json:"defects"`
	AssetNames []string             `json:"asset_names"`
	Assets     []models.AssetDetail `json:"assets"`
}

// EditResult is returned by event_edit.
type EditResult struct {
	LocalID     int64  `json:"local_id,omitempty"`
	UID         string `json:"uid,omitempty"`
	Outcome     string `json:"outcome"`
	SyncStarted bool   `json:"sync_started"`
}

// DeleteResult is returned by event_delete.
type DeleteResult struct {
	Deleted bool `json:"deleted"`
}

// --- Handlers ---

func listHandler(d Deps) mcp.ToolHandlerFor[ListInput, *ListResult] {
	return func(_ context.Context, _ *mcp.CallToolRequest, input ListInput) (*mcp.CallToolResult, *ListResult, error) {
		records, err := d.Events.List()
		if err != nil {
			return nil, nil, fmt.Errorf("listing events: %w", err)
		}

		result := &ListResult{Events: []EventSummary{}}

		for _, rec := range records {
			if input.PendingOnly && !rec.Pending() {
				continue
			}

			result.Events = append(result.Events, d.summarize(rec))
		}

		result.Total = len(result.Events)

		return textResult(result), result, nil
	}
}

func getHandler(d Deps) mcp.ToolHandlerFor[GetInput, *GetResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input GetInput) (*mcp.CallToolResult, *GetResult, error) {
		rec, err := d.find(input.ID)
		if err != nil {
			return nil, nil, err
		}

		event := rec.Draft
		if s, ok := d.Sessions.Lookup(rec.Draft.DurableUID); ok {
			event = s.Current()
		}

		result := &GetResult{
			Summary:    d.summarize(*rec),
			Event:      event,
			Defects:    []DefectView{},
			AssetNames: []string{},
			Assets:     []models.AssetDetail{},
		}

		if d.Defects != nil && len(event.LinkedDefectIDs) > 0 {
			for _, def := range d.Defects.Materialize(ctx, event.LinkedDefectIDs) {
				result.Defects = append(result.Defects, defectView(def))
			}
		}

		if d.Assets != nil && len(event.DigitalAssetFileIDs) > 0 {
			result.AssetNames = append(result.AssetNames, d.Assets.FileNamesFor(ctx, event.DigitalAssetFileIDs)...)
			result.Assets = append(result.Assets, d.Assets.DetailsFor(ctx, event.DigitalAssetFileIDs)...)
		}

		return textResult(result), result, nil
	}
}

func editHandler(d Deps) mcp.ToolHandlerFor[EditInput, *EditResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input EditInput) (*mcp.CallToolResult, *EditResult, error) {
		hint := models.IdentityHint{}

		if input.ID != "" {
			if _, open := d.Sessions.Lookup(input.ID); !open {
				if _, err := d.find(input.ID); err != nil {
					return nil, nil, err
				}
			}

			hint.NavigationID = input.ID
		}

		s := d.Sessions.Open(hint)

		if err := applyEdits(ctx, s, input); err != nil {
			return nil, nil, err
		}

		outcome, err := s.Save(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("saving event: %w", err)
		}

		// A draft that never reached the store has nothing to upload.
		saved := s.Hint()
		finalSync := input.Sync && saved.CachedUID != ""

		if _, err := d.Sessions.CloseSession(ctx, s.Key(), finalSync); err != nil {
			return nil, nil, fmt.Errorf("closing session: %w", err)
		}

		d.Logger.Info("event edited",
			slog.String("user_id", auth.RequestUserID(ctx)),
			slog.String("uid", saved.CachedUID),
			slog.String("outcome", outcome.String()),
			slog.Bool("sync", finalSync),
		)

		result := &EditResult{
			LocalID:     saved.CachedLocalID,
			UID:         saved.CachedUID,
			Outcome:     outcome.String(),
			SyncStarted: finalSync,
		}

		return textResult(result), result, nil
	}
}

type facetEdit struct {
	facet draft.Facet
	fn    func(*models.EventDraft)
}

// applyEdits applies each supplied field as an edit to its facet.
func applyEdits(ctx context.Context, s *draft.Session, input EditInput) error {
	var edits []facetEdit

	if input.Location != nil {
		edits = append(edits, facetEdit{draft.FacetText, func(e *models.EventDraft) { e.Location = *input.Location }})
	}

	if input.Description != nil {
		edits = append(edits, facetEdit{draft.FacetText, func(e *models.EventDraft) { e.Description = *input.Description }})
	}

	switch {
	case input.ClearRisk:
		edits = append(edits, facetEdit{draft.FacetRisk, func(e *models.EventDraft) { e.Risk = nil }})
	case input.Risk != nil:
		edits = append(edits, facetEdit{draft.FacetRisk, func(e *models.EventDraft) { e.Risk = input.Risk }})
	}

	switch {
	case input.ClearStructural:
		edits = append(edits, facetEdit{draft.FacetStructural, func(e *models.EventDraft) { e.StructuralDefect = nil }})
	case input.Structural != nil:
		edits = append(edits, facetEdit{draft.FacetStructural, func(e *models.EventDraft) { e.StructuralDefect = input.Structural }})
	}

	if input.LinkedDefectIDs != nil {
		edits = append(edits, facetEdit{draft.FacetDefects, func(e *models.EventDraft) { e.LinkedDefectIDs = input.LinkedDefectIDs }})
	}

	for _, e := range edits {
		if err := s.Edit(e.facet, e.fn); err != nil {
			return fmt.Errorf("editing %s: %w", e.facet, err)
		}
	}

	switch {
	case input.ClearAssets:
		if err := s.SelectAssets(nil, nil, true); err != nil {
			return fmt.Errorf("clearing assets: %w", err)
		}
	case input.AssetFileIDs != nil || input.AssetNodeIDs != nil:
		if err := s.SelectAssets(input.AssetFileIDs, input.AssetNodeIDs, false); err != nil {
			return fmt.Errorf("selecting assets: %w", err)
		}
	}

	if input.RemoveAsset != "" {
		if err := s.RemoveAsset(ctx, input.RemoveAsset); err != nil {
			return fmt.Errorf("removing asset: %w", err)
		}
	}

	return nil
}

func syncHandler(d Deps) mcp.ToolHandlerFor[SyncInput, *models.SyncAttemptResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input SyncInput) (*mcp.CallToolResult, *models.SyncAttemptResult, error) {
		res := d.Sessions.SyncEvent(ctx, models.IdentityHint{NavigationID: input.ID})

		d.Logger.Info("event sync requested",
			slog.String("user_id", auth.RequestUserID(ctx)),
			slog.String("id", input.ID),
			slog.Bool("success", res.Success),
		)

		return textResult(res), &res, nil
	}
}

func deleteHandler(d Deps) mcp.ToolHandlerFor[DeleteInput, *DeleteResult] {
	return func(ctx context.Context, _ *mcp.CallToolRequest, input DeleteInput) (*mcp.CallToolResult, *DeleteResult, error) {
		if _, err := d.find(input.ID); err != nil {
			return nil, nil, err
		}

		ok, err := d.Sessions.DeleteEvent(models.IdentityHint{NavigationID: input.ID})
		if err != nil {
			return nil, nil, err
		}

		d.Logger.Info("event deleted",
			slog.String("user_id", auth.RequestUserID(ctx)),
			slog.String("id", input.ID),
			slog.Bool("deleted", ok),
		)

		result := &DeleteResult{Deleted: ok}

		return textResult(result), result, nil
	}
}

// find loads a record by numeric local id or by durable UID.
func (d Deps) find(id string) (*models.EventRecord, error) {
	localID, err := strconv.ParseInt(id, 10, 64)
	if err != nil || localID <= 0 {
		localID, err = d.Events.LocalIDForUID(id)
		if err != nil {
			return nil, fmt.Errorf("looking up %q: %w", id, err)
		}
	}

	if localID == 0 {
		return nil, fmt.Errorf("%q: %w", id, apperrors.ErrEventNotFound)
	}

	rec, err := d.Events.Record(localID)
	if err != nil {
		return nil, fmt.Errorf("loading event %d: %w", localID, err)
	}

	if rec == nil {
		return nil, fmt.Errorf("%q: %w", id, apperrors.ErrEventNotFound)
	}

	return rec, nil
}

func (d Deps) summarize(rec models.EventRecord) EventSummary {
	_, open := d.Sessions.Lookup(rec.Draft.DurableUID)

	return EventSummary{
		LocalID:     rec.Draft.LocalID,
		UID:         rec.Draft.DurableUID,
		Location:    rec.Draft.Location,
		Photos:      len(rec.Draft.PhotoPaths),
		Audio:       len(rec.Draft.AudioPaths),
		CreatedAt:   formatTime(rec.CreatedAt),
		UpdatedAt:   formatTime(rec.UpdatedAt),
		SyncedAt:    formatTime(rec.SyncedAt),
		Pending:     rec.Pending(),
		OpenSession: open,
	}
}

func defectView(r models.DefectRecord) DefectView {
	return DefectView{
		ID:         r.ID,
		UID:        r.UID,
		Reference:  fmt.Sprintf("%s-%d", r.Project, r.Number),
		Title:      r.Title,
		Element:    r.Element,
		Severity:   r.Severity,
		RecordedAt: formatTime(r.RecordedAt),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}

	return t.UTC().Format(time.RFC3339)
}

// textResult builds a CallToolResult with JSON text content from any value.
// This provides the unstructured content alongside the structured output
// that the SDK populates automatically.
func textResult(v interface{}) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("error marshaling result: %v", err)}},
			IsError: true,
		}
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}
