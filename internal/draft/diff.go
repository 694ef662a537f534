package draft

import (
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// TextDelta counts runes inserted and deleted between two versions of a
// text field.
type TextDelta struct {
	Inserted int
	Deleted  int
}

// Changed reports whether the field differs at all.
func (d TextDelta) Changed() bool {
	return d.Inserted > 0 || d.Deleted > 0
}

// ChangeSet is the result of comparing a current snapshot to a baseline.
type ChangeSet struct {
	Dirty       map[Facet]bool
	AnyDirty    bool
	HasContent  bool
	Location    TextDelta
	Description TextDelta
}

// DirtyFacets returns the dirty facets in AllFacets order.
func (c ChangeSet) DirtyFacets() []Facet {
	var out []Facet

	for _, f := range AllFacets {
		if c.Dirty[f] {
			out = append(out, f)
		}
	}

	return out
}

// Diff compares current to baseline facet by facet. HasContent describes
// current only.
func Diff(current, baseline Snapshot) ChangeSet {
	cs := ChangeSet{
		Dirty:      make(map[Facet]bool, len(AllFacets)),
		HasContent: current.HasContent(),
	}

	for _, f := range AllFacets {
		dirty := !current.Equal(f, baseline)
		cs.Dirty[f] = dirty
		cs.AnyDirty = cs.AnyDirty || dirty
	}

	if cs.Dirty[FacetText] {
		cs.Location = textDelta(baseline.Location, current.Location)
		cs.Description = textDelta(baseline.Description, current.Description)
	}

	return cs
}

func textDelta(from, to string) TextDelta {
	if from == to {
		return TextDelta{}
	}

	dmp := diffmatchpatch.New()

	var d TextDelta

	for _, part := range dmp.DiffMain(from, to, false) {
		switch part.Type {
		case diffmatchpatch.DiffInsert:
			d.Inserted += utf8.RuneCountInString(part.Text)
		case diffmatchpatch.DiffDelete:
			d.Deleted += utf8.RuneCountInString(part.Text)
		case diffmatchpatch.DiffEqual:
		}
	}

	return d
}
