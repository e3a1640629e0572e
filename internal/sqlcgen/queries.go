package sqlcgen

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX matches the minimal interface needed from pgxpool.Pool or pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

const insertSyncRun = `-- name: InsertSyncRun :one
INSERT INTO sync_runs (map_name, mode, status)
VALUES ($1, $2, $3)
RETURNING id, map_name, mode, status, stats, started_at, completed_at, last_error
`

type InsertSyncRunParams struct {
	MapName string
	Mode    string
	Status  string
}

func (q *Queries) InsertSyncRun(ctx context.Context, arg InsertSyncRunParams) (SyncRun, error) {
	row := q.db.QueryRow(ctx, insertSyncRun, arg.MapName, arg.Mode, arg.Status)
	return scanSyncRun(row)
}

const finishSyncRun = `-- name: FinishSyncRun :one
UPDATE sync_runs
SET status = $2,
    mode = $3,
    stats = COALESCE($4, stats),
    completed_at = $5,
    last_error = $6
WHERE id = $1
RETURNING id, map_name, mode, status, stats, started_at, completed_at, last_error
`

type FinishSyncRunParams struct {
	ID          string
	Status      string
	Mode        string
	Stats       map[string]any
	CompletedAt *time.Time
	LastError   *string
}

func (q *Queries) FinishSyncRun(ctx context.Context, arg FinishSyncRunParams) (SyncRun, error) {
	row := q.db.QueryRow(ctx, finishSyncRun, arg.ID, arg.Status, arg.Mode, arg.Stats, arg.CompletedAt, arg.LastError)
	return scanSyncRun(row)
}

const getLatestSyncRun = `-- name: GetLatestSyncRun :one
SELECT id, map_name, mode, status, stats, started_at, completed_at, last_error
FROM sync_runs
ORDER BY started_at DESC
LIMIT 1
`

func (q *Queries) GetLatestSyncRun(ctx context.Context) (SyncRun, error) {
	row := q.db.QueryRow(ctx, getLatestSyncRun)
	return scanSyncRun(row)
}

const getSyncRun = `-- name: GetSyncRun :one
SELECT id, map_name, mode, status, stats, started_at, completed_at, last_error
FROM sync_runs
WHERE id = $1
`

func (q *Queries) GetSyncRun(ctx context.Context, id string) (SyncRun, error) {
	row := q.db.QueryRow(ctx, getSyncRun, id)
	return scanSyncRun(row)
}

const listSyncRuns = `-- name: ListSyncRuns :many
SELECT id, map_name, mode, status, stats, started_at, completed_at, last_error
FROM sync_runs
ORDER BY started_at DESC
LIMIT $1
`

func (q *Queries) ListSyncRuns(ctx context.Context, limit int32) ([]SyncRun, error) {
	rows, err := q.db.Query(ctx, listSyncRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []SyncRun
	for rows.Next() {
		i, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func scanSyncRun(row pgx.Row) (SyncRun, error) {
	var i SyncRun
	err := row.Scan(
		&i.ID,
		&i.MapName,
		&i.Mode,
		&i.Status,
		&i.Stats,
		&i.StartedAt,
		&i.CompletedAt,
		&i.LastError,
	)
	return i, err
}
