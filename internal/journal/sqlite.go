package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/aurumdesk/riskgate/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS trajectories (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	lineage       TEXT NOT NULL,
	ts            TEXT NOT NULL,
	round         INTEGER NOT NULL,
	rejected_plan TEXT NOT NULL,
	breaches      TEXT NOT NULL,
	revised_plan  TEXT
);
CREATE INDEX IF NOT EXISTS idx_trajectories_lineage ON trajectories(lineage);
`

// SQLite persists trajectory entries to a local database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (and initializes) the journal database at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// Append inserts one entry. Plans and breaches are stored as JSON so the
// record stays self-describing for downstream consumers.
func (j *SQLite) Append(ctx context.Context, entry models.TrajectoryEntry) error {
	rejected, err := json.Marshal(entry.RejectedPlan)
	if err != nil {
		return fmt.Errorf("encoding rejected plan: %w", err)
	}
	breaches, err := json.Marshal(entry.Breaches)
	if err != nil {
		return fmt.Errorf("encoding breaches: %w", err)
	}

	var revised interface{}
	if entry.RevisedPlan != nil {
		data, err := json.Marshal(entry.RevisedPlan)
		if err != nil {
			return fmt.Errorf("encoding revised plan: %w", err)
		}
		revised = string(data)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO trajectories (lineage, ts, round, rejected_plan, breaches, revised_plan)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.Lineage, entry.Timestamp.UTC().Format(time.RFC3339Nano), entry.Round,
		string(rejected), string(breaches), revised,
	)
	return err
}

// List returns all entries for a lineage in append order.
func (j *SQLite) List(ctx context.Context, lineage string) ([]models.TrajectoryEntry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT lineage, ts, round, rejected_plan, breaches, revised_plan
		FROM trajectories WHERE lineage = ? ORDER BY id`, lineage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TrajectoryEntry
	for rows.Next() {
		var (
			entry    models.TrajectoryEntry
			ts       string
			rejected string
			breaches string
			revised  sql.NullString
		)
		if err := rows.Scan(&entry.Lineage, &ts, &entry.Round, &rejected, &breaches, &revised); err != nil {
			return nil, err
		}
		if entry.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parsing timestamp %q: %w", ts, err)
		}
		if err := json.Unmarshal([]byte(rejected), &entry.RejectedPlan); err != nil {
			return nil, fmt.Errorf("decoding rejected plan: %w", err)
		}
		if err := json.Unmarshal([]byte(breaches), &entry.Breaches); err != nil {
			return nil, fmt.Errorf("decoding breaches: %w", err)
		}
		if revised.Valid {
			var plan models.Plan
			if err := json.Unmarshal([]byte(revised.String), &plan); err != nil {
				return nil, fmt.Errorf("decoding revised plan: %w", err)
			}
			entry.RevisedPlan = &plan
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (j *SQLite) Close() error {
	return j.db.Close()
}
