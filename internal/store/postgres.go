package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- API Keys ---

const apiKeyColumns = `id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at`

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+apiKeyColumns+` FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountAPIKeys(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM api_keys WHERE deleted_at IS NULL`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count api keys: %w", err)
	}
	return n, nil
}

// --- Reports ---

const reportColumns = `id, created_by, season, location, athlete_name, gender, division, title, status,
	progress, current_step, sections, data_ids, introduction, conclusion, error_message, completed_at, created_at, updated_at`

func scanReport(row pgx.Row) (*models.Report, error) {
	var r models.Report
	err := row.Scan(&r.ID, &r.CreatedBy, &r.Season, &r.Location, &r.AthleteName, &r.Gender, &r.Division,
		&r.Title, &r.Status, &r.Progress, &r.CurrentStep, &r.Sections, &r.DataIDs, &r.Introduction, &r.Conclusion,
		&r.ErrorMessage, &r.CompletedAt, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if r.Sections == nil {
		r.Sections = []models.ReportSection{}
	}
	if r.DataIDs == nil {
		r.DataIDs = []string{}
	}
	return &r, nil
}

func (s *PostgresStore) CreateReport(ctx context.Context, r *models.Report) error {
	if r.Sections == nil {
		r.Sections = []models.ReportSection{}
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO reports (id, created_by, season, location, athlete_name, gender, division, title,
		     status, progress, current_step, sections, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		r.ID, r.CreatedBy, r.Season, r.Location, r.AthleteName, r.Gender, r.Division, r.Title,
		r.Status, r.Progress, r.CurrentStep, r.Sections, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create report: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	r, err := scanReport(s.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) FindLatestReport(ctx context.Context, season int, location, athleteName string) (*models.Report, error) {
	r, err := scanReport(s.pool.QueryRow(ctx,
		`SELECT `+reportColumns+` FROM reports
		 WHERE season = $1 AND location = $2 AND athlete_name = $3
		 ORDER BY created_at DESC LIMIT 1`, season, location, athleteName))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find report: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListReports(ctx context.Context, filter ReportFilter) ([]*models.Report, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	argIdx := 1

	if filter.AthleteName != "" {
		where = append(where, fmt.Sprintf("athlete_name = $%d", argIdx))
		args = append(args, filter.AthleteName)
		argIdx++
	}
	if filter.CreatedBy != nil {
		where = append(where, fmt.Sprintf("created_by = $%d", argIdx))
		args = append(args, *filter.CreatedBy)
		argIdx++
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, filter.Status)
		argIdx++
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM reports WHERE `+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count reports: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	query := fmt.Sprintf(`SELECT %s FROM reports WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		reportColumns, whereClause, argIdx, argIdx+1)
	args = append(args, limit, (page-1)*limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []*models.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, total, rows.Err()
}

var validTransitions = map[string][]string{
	models.ReportStatusPending:    {models.ReportStatusGenerating, models.ReportStatusError},
	models.ReportStatusGenerating: {models.ReportStatusCompleted, models.ReportStatusError},
}

func (s *PostgresStore) UpdateReportStatus(ctx context.Context, id uuid.UUID, status string, opts ...ReportUpdateOption) error {
	params := &reportUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}

	// Fetch current status
	var currentStatus string
	err := s.pool.QueryRow(ctx, `SELECT status FROM reports WHERE id = $1`, id).Scan(&currentStatus)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get report status: %w", err)
	}

	// Validate transition
	valid := false
	for _, a := range validTransitions[currentStatus] {
		if a == status {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
	}

	now := time.Now().UTC()
	query := `UPDATE reports SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	set := func(column string, v any) {
		query += fmt.Sprintf(", %s = $%d", column, argIdx)
		args = append(args, v)
		argIdx++
	}

	if status == models.ReportStatusCompleted || status == models.ReportStatusError {
		set("completed_at", now)
	}
	if status == models.ReportStatusCompleted {
		set("progress", 100)
	}
	if params.ErrorMessage != nil {
		set("error_message", *params.ErrorMessage)
	}
	if params.Content != nil {
		sections := params.Content.Sections
		if sections == nil {
			sections = []models.ReportSection{}
		}
		set("title", params.Content.Title)
		set("sections", sections)
		dataIDs := params.Content.DataIDs
		if dataIDs == nil {
			dataIDs = []string{}
		}
		set("data_ids", dataIDs)
		set("introduction", params.Content.Introduction)
		set("conclusion", params.Content.Conclusion)
	}
	if params.Gender != nil {
		set("gender", *params.Gender)
		set("division", *params.Division)
	}
	if params.Progress != nil && status != models.ReportStatusCompleted {
		set("progress", *params.Progress)
	}
	if params.Step != nil {
		set("current_step", *params.Step)
	}

	query += fmt.Sprintf(" WHERE id = $1 AND status = $%d", argIdx)
	args = append(args, currentStatus)

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update report status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Lost a race with another writer.
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, currentStatus, status)
	}
	return nil
}

func (s *PostgresStore) UpdateReportProgress(ctx context.Context, id uuid.UUID, progress int, step string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET progress = $2, current_step = $3, updated_at = NOW()
		 WHERE id = $1 AND status = 'generating'`, id, progress, step)
	if err != nil {
		return fmt.Errorf("update report progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetReport returns a terminal report to pending and clears its content.
// Snapshots of the previous run are kept.
func (s *PostgresStore) ResetReport(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE reports SET status = 'pending', progress = 0, current_step = '', title = '',
		     sections = '[]', data_ids = '[]', introduction = '', conclusion = '', error_message = NULL,
		     completed_at = NULL, updated_at = NOW()
		 WHERE id = $1 AND status IN ('completed', 'error', 'pending')`, id)
	if err != nil {
		return fmt.Errorf("reset report: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM reports WHERE id = $1)`, id).Scan(&exists); err != nil {
			return fmt.Errorf("reset report: %w", err)
		}
		if !exists {
			return ErrNotFound
		}
		return fmt.Errorf("%w: generating -> pending", ErrInvalidTransition)
	}
	return nil
}

// --- Data Snapshots ---

func (s *PostgresStore) CreateSnapshot(ctx context.Context, snap *models.DataSnapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO data_snapshots (id, report_id, data_type, content, checksum, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		snap.ID, snap.ReportID, snap.DataType, []byte(snap.Content), snap.Checksum, snap.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSnapshot(ctx context.Context, id uuid.UUID) (*models.DataSnapshot, error) {
	var snap models.DataSnapshot
	var content []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, report_id, data_type, content, checksum, created_at FROM data_snapshots WHERE id = $1`, id,
	).Scan(&snap.ID, &snap.ReportID, &snap.DataType, &content, &snap.Checksum, &snap.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	snap.Content = content
	return &snap, nil
}

func (s *PostgresStore) ListSnapshotsByReport(ctx context.Context, reportID uuid.UUID) ([]*models.DataSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, report_id, data_type, content, checksum, created_at
		 FROM data_snapshots WHERE report_id = $1 ORDER BY created_at`, reportID)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*models.DataSnapshot
	for rows.Next() {
		var snap models.DataSnapshot
		var content []byte
		if err := rows.Scan(&snap.ID, &snap.ReportID, &snap.DataType, &content, &snap.Checksum, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		snap.Content = content
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
