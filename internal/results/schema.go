package results

import (
	"context"
	"database/sql"
	"fmt"
)

const createRacesTableSQL = `
CREATE TABLE IF NOT EXISTS races (
	id                 INTEGER PRIMARY KEY,
	season             INTEGER NOT NULL,
	location           TEXT    NOT NULL,
	file_last_modified TEXT,
	created_at         TEXT    DEFAULT CURRENT_TIMESTAMP,
	UNIQUE (season, location)
)`

const createResultsTableSQL = `
CREATE TABLE IF NOT EXISTS results (
	id                     INTEGER PRIMARY KEY,
	season                 INTEGER NOT NULL,
	location               TEXT    NOT NULL,
	event_id               TEXT,
	event_name             TEXT,
	name                   TEXT    NOT NULL,
	nationality            TEXT,
	gender                 TEXT,
	division               TEXT,
	age_group              TEXT,
	total_time             REAL,
	run_time               REAL,
	work_time              REAL,
	roxzone_time           REAL,
	run1_time              REAL,
	run2_time              REAL,
	run3_time              REAL,
	run4_time              REAL,
	run5_time              REAL,
	run6_time              REAL,
	run7_time              REAL,
	run8_time              REAL,
	skierg_time            REAL,
	sled_push_time         REAL,
	sled_pull_time         REAL,
	burpee_broad_jump_time REAL,
	row_erg_time           REAL,
	farmers_carry_time     REAL,
	sandbag_lunges_time    REAL,
	wall_balls_time        REAL,
	created_at             TEXT    DEFAULT CURRENT_TIMESTAMP
)`

const createResultsIndexSQL = `
CREATE INDEX IF NOT EXISTS idx_results_race_name ON results (season, location, name)`

// EnsureSchema creates the results tables when they do not exist. The sync
// job owns the schema in production; this keeps fresh databases and tests
// usable.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range []string{createRacesTableSQL, createResultsTableSQL, createResultsIndexSQL} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure results schema: %w", err)
		}
	}
	return nil
}
