package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/alexjbarnes/inspect-sync/internal/models"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// defectEntry is one record in a defect import document.
type defectEntry struct {
	UID        string    `yaml:"uid"`
	Project    string    `yaml:"project"`
	Number     int       `yaml:"number"`
	Title      string    `yaml:"title"`
	Element    string    `yaml:"element"`
	Severity   string    `yaml:"severity"`
	RecordedAt time.Time `yaml:"recorded_at"`
}

type defectDocument struct {
	Defects []defectEntry `yaml:"defects"`
}

// ImportDefects reads a YAML list of historical defects and adds each one
// to the catalog. Entries without a uid get a generated one. It stops at
// the first invalid or rejected entry and returns how many were added
// before it.
func ImportDefects(ctx context.Context, d *Defects, r io.Reader) (int, error) {
	var doc defectDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("parsing defect import: %w", err)
	}

	added := 0

	for i, e := range doc.Defects {
		if e.Project == "" || e.Number <= 0 || e.Title == "" {
			return added, fmt.Errorf("defect %d: missing project, number or title", i+1)
		}

		if e.UID == "" {
			e.UID = uuid.NewString()
		}

		if e.RecordedAt.IsZero() {
			e.RecordedAt = time.Now()
		}

		if _, err := d.Add(ctx, models.DefectRecord{
			UID:        e.UID,
			Project:    e.Project,
			Number:     e.Number,
			Title:      e.Title,
			Element:    e.Element,
			Severity:   e.Severity,
			RecordedAt: e.RecordedAt,
		}); err != nil {
			return added, err
		}

		added++
	}

	d.logger.Info("defects imported", slog.Int("count", added))

	return added, nil
}
