// Package catalog provides the read-only lookups the reconciliation core
// and host use to expand and display identifiers: digital assets loaded
// from a YAML document and historical defects held in SQLite. Lookups
// never return errors; a miss is an empty result.
package catalog

import (
	"context"
	"fmt"
	"os"
	"slices"

	"github.com/alexjbarnes/inspect-sync/internal/models"
	"gopkg.in/yaml.v3"
)

// assetDocument is the on-disk layout of the asset catalog.
type assetDocument struct {
	Nodes []assetNode `yaml:"nodes"`
}

type assetNode struct {
	ID       string               `yaml:"id"`
	Name     string               `yaml:"name"`
	Files    []models.AssetDetail `yaml:"files"`
	Children []assetNode          `yaml:"children"`
}

// Assets maps hierarchical node ids to the flat file ids beneath them.
// A node expands to its own files plus the files of every descendant.
type Assets struct {
	files     map[string]models.AssetDetail
	nodeFiles map[string][]string
}

// LoadAssets reads an asset catalog from a YAML file.
func LoadAssets(path string) (*Assets, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading asset catalog: %w", err)
	}

	return ParseAssets(data)
}

// ParseAssets builds an asset catalog from YAML bytes.
func ParseAssets(data []byte) (*Assets, error) {
	var doc assetDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing asset catalog: %w", err)
	}

	a := &Assets{
		files:     make(map[string]models.AssetDetail),
		nodeFiles: make(map[string][]string),
	}

	for _, n := range doc.Nodes {
		if _, err := a.addNode(n, ""); err != nil {
			return nil, err
		}
	}

	return a, nil
}

// addNode registers a node and its subtree, returning every file id in
// the subtree.
func (a *Assets) addNode(n assetNode, parent string) ([]string, error) {
	if n.ID == "" {
		return nil, fmt.Errorf("asset node under %q has no id", parent)
	}

	if _, dup := a.nodeFiles[n.ID]; dup {
		return nil, fmt.Errorf("duplicate asset node id %q", n.ID)
	}

	// Reserve the id before descending so a repeated id deeper in the
	// subtree is reported as a duplicate.
	a.nodeFiles[n.ID] = nil

	var ids []string

	for _, f := range n.Files {
		if f.FileID == "" {
			return nil, fmt.Errorf("asset file under node %q has no id", n.ID)
		}

		if _, dup := a.files[f.FileID]; dup {
			return nil, fmt.Errorf("duplicate asset file id %q", f.FileID)
		}

		f.NodeID = n.ID
		a.files[f.FileID] = f
		ids = append(ids, f.FileID)
	}

	for _, c := range n.Children {
		sub, err := a.addNode(c, n.ID)
		if err != nil {
			return nil, err
		}

		ids = append(ids, sub...)
	}

	slices.Sort(ids)
	a.nodeFiles[n.ID] = ids

	return ids, nil
}

// FileIDsForNodeIDs expands node ids into the sorted, de-duplicated set of
// file ids beneath them. Unknown node ids contribute nothing.
func (a *Assets) FileIDsForNodeIDs(_ context.Context, nodeIDs []string) []string {
	var out []string

	for _, id := range nodeIDs {
		out = append(out, a.nodeFiles[id]...)
	}

	slices.Sort(out)

	return slices.Compact(out)
}

// FileNamesFor returns display names for the known file ids, in the order
// given.
func (a *Assets) FileNamesFor(_ context.Context, fileIDs []string) []string {
	var names []string

	for _, id := range fileIDs {
		if f, ok := a.files[id]; ok {
			names = append(names, f.Name)
		}
	}

	return names
}

// DetailsFor returns the details of the known file ids, in the order given.
func (a *Assets) DetailsFor(_ context.Context, fileIDs []string) []models.AssetDetail {
	var details []models.AssetDetail

	for _, id := range fileIDs {
		if f, ok := a.files[id]; ok {
			details = append(details, f)
		}
	}

	return details
}
