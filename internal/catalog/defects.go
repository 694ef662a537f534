package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexjbarnes/inspect-sync/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

const defectsSchema = `
CREATE TABLE IF NOT EXISTS defects (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	uid         TEXT NOT NULL UNIQUE,
	project     TEXT NOT NULL,
	number      INTEGER NOT NULL,
	title       TEXT NOT NULL,
	element     TEXT NOT NULL DEFAULT '',
	severity    TEXT NOT NULL DEFAULT '',
	recorded_at TEXT NOT NULL,
	UNIQUE (project, number)
);
`

const defectColumns = "id, uid, project, number, title, element, severity, recorded_at"

// Defects is the historical defect catalog. Events link to its records by
// id; the catalog only turns those ids into display objects and plays no
// part in event identity.
type Defects struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenDefects opens or creates the SQLite defect catalog at path.
func OpenDefects(path string, logger *slog.Logger) (*Defects, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening defect catalog: %w", err)
	}

	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(defectsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing defect catalog: %w", err)
	}

	return &Defects{db: db, logger: logger}, nil
}

// Close closes the database.
func (d *Defects) Close() error {
	return d.db.Close()
}

// Add inserts a defect record and returns its id. Used to import
// historical records.
func (d *Defects) Add(ctx context.Context, rec models.DefectRecord) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO defects (uid, project, number, title, element, severity, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.UID, rec.Project, rec.Number, rec.Title, rec.Element, rec.Severity,
		rec.RecordedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("inserting defect %s/%d: %w", rec.Project, rec.Number, err)
	}

	return res.LastInsertId()
}

// ByID returns the defect with the given id, or nil.
func (d *Defects) ByID(ctx context.Context, id int64) *models.DefectRecord {
	return d.queryOne(ctx, "WHERE id = ?", id)
}

// ByProjectNumber returns the defect numbered number within project, or nil.
func (d *Defects) ByProjectNumber(ctx context.Context, project string, number int) *models.DefectRecord {
	return d.queryOne(ctx, "WHERE project = ? AND number = ?", project, number)
}

// ByUID returns the defect with the given UID, or nil.
func (d *Defects) ByUID(ctx context.Context, uid string) *models.DefectRecord {
	return d.queryOne(ctx, "WHERE uid = ?", uid)
}

// Materialize resolves linked defect ids into records, in the order given.
// Ids with no record are skipped.
func (d *Defects) Materialize(ctx context.Context, ids []int64) []models.DefectRecord {
	var out []models.DefectRecord

	for _, id := range ids {
		if rec := d.ByID(ctx, id); rec != nil {
			out = append(out, *rec)
		}
	}

	return out
}

func (d *Defects) queryOne(ctx context.Context, where string, args ...any) *models.DefectRecord {
	row := d.db.QueryRowContext(ctx, "SELECT "+defectColumns+" FROM defects "+where, args...)

	var (
		rec        models.DefectRecord
		recordedAt string
	)

	err := row.Scan(&rec.ID, &rec.UID, &rec.Project, &rec.Number, &rec.Title,
		&rec.Element, &rec.Severity, &recordedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}

	if err != nil {
		d.logger.Warn("defect lookup failed",
			slog.String("where", where),
			slog.String("error", err.Error()),
		)

		return nil
	}

	rec.RecordedAt, _ = time.Parse(time.RFC3339, recordedAt)

	return &rec
}
