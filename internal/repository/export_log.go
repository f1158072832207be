package repository

import (
	"context"
	"errors"
	"time"

	"github.com/cloo-solutions/discover/internal/domain"
	"github.com/cloo-solutions/discover/internal/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrExportLogNotFound = domain.NewDomainError(domain.ErrCodeNotFound, "export log not found")

const exportLogColumns = `id, scope, fields, size, outcome, records, query_latency_ms, build_latency_ms, COALESCE(object_key, ''), created_at`

type ExportLogPage = pagination.PageResult[*domain.ExportLog]

// ExportLogRepository stores the audit trail of exports.
type ExportLogRepository struct {
	pool *pgxpool.Pool
}

func NewExportLogRepository(pool *pgxpool.Pool) *ExportLogRepository {
	return &ExportLogRepository{pool: pool}
}

func (r *ExportLogRepository) Create(ctx context.Context, entry *domain.ExportLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Fields == nil {
		entry.Fields = []string{}
	}
	_, err := r.pool.Exec(ctx,
		`INSERT INTO export_logs (id, scope, fields, size, outcome, records, query_latency_ms, build_latency_ms, object_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		entry.ID,
		entry.Scope,
		entry.Fields,
		entry.Size,
		string(entry.Outcome),
		entry.Records,
		entry.QueryLatencyMS,
		entry.BuildLatencyMS,
		nullableString(entry.ObjectKey),
		entry.CreatedAt,
	)
	return err
}

func (r *ExportLogRepository) GetByID(ctx context.Context, id string) (*domain.ExportLog, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+exportLogColumns+` FROM export_logs WHERE id = $1`, id)
	entry, err := scanExportLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrExportLogNotFound
		}
		return nil, err
	}
	return entry, nil
}

// ListWithCursor returns entries newest first.
func (r *ExportLogRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*ExportLogPage, error) {
	limit = pagination.ClampLimit(limit)

	var rows pgx.Rows
	var err error
	if cursor != nil {
		rows, err = r.pool.Query(ctx,
			`SELECT `+exportLogColumns+` FROM export_logs
			 WHERE (created_at, id) < ($1, $2)
			 ORDER BY created_at DESC, id DESC
			 LIMIT $3`,
			cursor.Timestamp, cursor.LastID, limit+1,
		)
	} else {
		rows, err = r.pool.Query(ctx,
			`SELECT `+exportLogColumns+` FROM export_logs
			 ORDER BY created_at DESC, id DESC
			 LIMIT $1`,
			limit+1,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := []*domain.ExportLog{}
	for rows.Next() {
		entry, err := scanExportLog(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return pagination.Page(entries, limit, func(e *domain.ExportLog) string { return e.ID },
		func(e *domain.ExportLog) time.Time { return e.CreatedAt }), nil
}

// DeleteOlderThan removes entries created before cutoff and returns the
// archive object keys they referenced.
func (r *ExportLogRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`DELETE FROM export_logs WHERE created_at < $1 RETURNING COALESCE(object_key, '')`,
		cutoff,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		if key != "" {
			keys = append(keys, key)
		}
	}
	return keys, rows.Err()
}

func scanExportLog(row pgx.Row) (*domain.ExportLog, error) {
	var e domain.ExportLog
	var outcome string
	err := row.Scan(
		&e.ID,
		&e.Scope,
		&e.Fields,
		&e.Size,
		&outcome,
		&e.Records,
		&e.QueryLatencyMS,
		&e.BuildLatencyMS,
		&e.ObjectKey,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Outcome = domain.ExportOutcome(outcome)
	return &e, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
