// Package results reads race results from the SQLite database maintained by
// the results sync job.
package results

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	lev "github.com/agnivade/levenshtein"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
	_ "modernc.org/sqlite"
)

var ErrRaceNotFound = errors.New("race not found")

// NotFoundError is returned when no athlete in the race matches a name.
// Suggestions holds the closest names in the same race.
type NotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("athlete %q not found", e.Name)
	}
	return fmt.Sprintf("athlete %q not found, did you mean: %s", e.Name, strings.Join(e.Suggestions, ", "))
}

// Is lets callers match with errors.Is(err, ErrAthleteNotFound).
func (e *NotFoundError) Is(target error) bool {
	return target == ErrAthleteNotFound
}

var ErrAthleteNotFound = errors.New("athlete not found")

const maxSuggestions = 5

// Repository is the read side of the results database.
type Repository interface {
	FindAthlete(ctx context.Context, season int, location, name string) (*models.RaceResult, error)
	Race(ctx context.Context, season int, location string) ([]*models.RaceResult, error)
	RaceVersion(ctx context.Context, season int, location string) (string, error)
	History(ctx context.Context, name string, limit int) ([]*models.RaceResult, error)
}

// SQLiteRepository implements Repository on a modernc.org/sqlite database.
type SQLiteRepository struct {
	db *sql.DB
}

// Open opens the results database at path and verifies connectivity.
func Open(path string) (*SQLiteRepository, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("results db path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &SQLiteRepository{db: db}, nil
}

// NewRepository wraps an existing handle.
func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) DB() *sql.DB { return r.db }

func (r *SQLiteRepository) Close() error { return r.db.Close() }

func (r *SQLiteRepository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

var resultColumns = strings.Join(append([]string{
	"id", "season", "location", "COALESCE(event_id, '')", "COALESCE(event_name, '')", "name",
	"COALESCE(nationality, '')", "COALESCE(gender, '')", "COALESCE(division, '')", "COALESCE(age_group, '')",
}, fieldColumns()...), ", ")

func fieldColumns() []string {
	cols := make([]string, len(models.StatsFields))
	for i, f := range models.StatsFields {
		cols[i] = string(f)
	}
	return cols
}

func scanResult(row interface{ Scan(...any) error }) (*models.RaceResult, error) {
	var res models.RaceResult
	times := make([]sql.NullFloat64, len(models.StatsFields))
	dest := []any{
		&res.ID, &res.Season, &res.Location, &res.EventID, &res.EventName, &res.Name,
		&res.Nationality, &res.Gender, &res.Division, &res.AgeGroup,
	}
	for i := range times {
		dest = append(dest, &times[i])
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	for i, f := range models.StatsFields {
		if times[i].Valid {
			setField(&res, f, times[i].Float64)
		}
	}
	return &res, nil
}

func setField(res *models.RaceResult, f models.Field, v float64) {
	switch f {
	case models.FieldTotal:
		res.TotalTime = models.Float(v)
	case models.FieldRun:
		res.RunTime = models.Float(v)
	case models.FieldWork:
		res.WorkTime = models.Float(v)
	case models.FieldRoxzone:
		res.RoxzoneTime = models.Float(v)
	}
	for i, s := range models.Runs {
		if s.Field() == f {
			res.RunTimes[i] = models.Float(v)
		}
	}
	for i, s := range models.Stations {
		if s.Field() == f {
			res.StationTimes[i] = models.Float(v)
		}
	}
}

func (r *SQLiteRepository) query(ctx context.Context, q string, args ...any) ([]*models.RaceResult, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.RaceResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// FindAthlete returns the athlete's result in one race. An exact match wins;
// otherwise the first case-insensitive substring match is used. When neither
// matches, the error carries the closest names by edit distance.
func (r *SQLiteRepository) FindAthlete(ctx context.Context, season int, location, name string) (*models.RaceResult, error) {
	name = strings.TrimSpace(name)
	found, err := r.query(ctx,
		`SELECT `+resultColumns+` FROM results WHERE season = ? AND location = ? AND name = ? LIMIT 1`,
		season, location, name)
	if err != nil {
		return nil, fmt.Errorf("find athlete: %w", err)
	}
	if len(found) > 0 {
		return found[0], nil
	}

	found, err = r.query(ctx,
		`SELECT `+resultColumns+` FROM results WHERE season = ? AND location = ? AND name LIKE ? ORDER BY id LIMIT 1`,
		season, location, "%"+name+"%")
	if err != nil {
		return nil, fmt.Errorf("find athlete: %w", err)
	}
	if len(found) > 0 {
		return found[0], nil
	}

	names, err := r.raceNames(ctx, season, location)
	if err != nil {
		return nil, err
	}
	return nil, &NotFoundError{Name: name, Suggestions: Suggest(name, names, maxSuggestions)}
}

func (r *SQLiteRepository) raceNames(ctx context.Context, season int, location string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT DISTINCT name FROM results WHERE season = ? AND location = ?`, season, location)
	if err != nil {
		return nil, fmt.Errorf("list race names: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan name: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Suggest returns up to limit candidates ordered by edit distance to name,
// ignoring case. Candidates further than half the name's length are dropped.
func Suggest(name string, candidates []string, limit int) []string {
	type scored struct {
		name string
		dist int
	}
	target := strings.ToLower(name)
	maxDist := len([]rune(target))/2 + 1

	var ranked []scored
	for _, c := range candidates {
		d := lev.ComputeDistance(target, strings.ToLower(c))
		if d <= maxDist {
			ranked = append(ranked, scored{c, d})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].dist != ranked[j].dist {
			return ranked[i].dist < ranked[j].dist
		}
		return ranked[i].name < ranked[j].name
	})
	out := make([]string, 0, limit)
	for i := 0; i < len(ranked) && i < limit; i++ {
		out = append(out, ranked[i].name)
	}
	return out
}

// Race returns every result of one race.
func (r *SQLiteRepository) Race(ctx context.Context, season int, location string) ([]*models.RaceResult, error) {
	out, err := r.query(ctx,
		`SELECT `+resultColumns+` FROM results WHERE season = ? AND location = ? ORDER BY id`,
		season, location)
	if err != nil {
		return nil, fmt.Errorf("list race results: %w", err)
	}
	return out, nil
}

// RaceVersion returns the race's file_last_modified marker. It changes each
// time the sync job re-imports the race.
func (r *SQLiteRepository) RaceVersion(ctx context.Context, season int, location string) (string, error) {
	var v sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT file_last_modified FROM races WHERE season = ? AND location = ?`, season, location).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRaceNotFound
	}
	if err != nil {
		return "", fmt.Errorf("race version: %w", err)
	}
	if !v.Valid || v.String == "" {
		return "unversioned", nil
	}
	return v.String, nil
}

// History returns the athlete's results across races, newest season first.
func (r *SQLiteRepository) History(ctx context.Context, name string, limit int) ([]*models.RaceResult, error) {
	if limit <= 0 {
		limit = 10
	}
	out, err := r.query(ctx,
		`SELECT `+resultColumns+` FROM results WHERE name = ? ORDER BY season DESC, id DESC LIMIT ?`,
		name, limit)
	if err != nil {
		return nil, fmt.Errorf("athlete history: %w", err)
	}
	return out, nil
}

// ImportRace replaces the results of one race inside a transaction and
// stamps the race with version.
func (r *SQLiteRepository) ImportRace(ctx context.Context, season int, location, version string, rows []*models.RaceResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO races (season, location, file_last_modified) VALUES (?, ?, ?)
		 ON CONFLICT (season, location) DO UPDATE SET file_last_modified = excluded.file_last_modified`,
		season, location, version); err != nil {
		return fmt.Errorf("upsert race: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM results WHERE season = ? AND location = ?`, season, location); err != nil {
		return fmt.Errorf("clear race results: %w", err)
	}

	cols := append([]string{"season", "location", "event_id", "event_name", "name", "nationality", "gender", "division", "age_group"}, fieldColumns()...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (`+strings.Join(cols, ", ")+`) VALUES (`+placeholders+`)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, res := range rows {
		args := []any{season, location, res.EventID, res.EventName, res.Name, res.Nationality, res.Gender, res.Division, res.AgeGroup}
		for _, f := range models.StatsFields {
			if v, ok := res.Value(f); ok {
				args = append(args, v)
			} else {
				args = append(args, nil)
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert result %q: %w", res.Name, err)
		}
	}
	return tx.Commit()
}
