package models

import "time"

// AssetDetail describes one digital asset file.
type AssetDetail struct {
	FileID    string `json:"file_id" yaml:"id"`
	NodeID    string `json:"node_id" yaml:"-"`
	Name      string `json:"name" yaml:"name"`
	MediaType string `json:"media_type,omitempty" yaml:"media_type"`
	Size      int64  `json:"size,omitempty" yaml:"size"`
}

// DefectRecord is a historical structural defect that an event can link to.
type DefectRecord struct {
	ID         int64     `json:"id"`
	UID        string    `json:"uid"`
	Project    string    `json:"project"`
	Number     int       `json:"number"`
	Title      string    `json:"title"`
	Element    string    `json:"element,omitempty"`
	Severity   string    `json:"severity,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
