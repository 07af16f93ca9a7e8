package generations

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"studio-backend/internal/engines"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectColumns = `
SELECT id, user_id, engine, kind, prompt, params, status, result_url, storage_key, mime_type,
       task_id, cost, error_code, error_message, request_id, created_at, updated_at, completed_at
FROM generations`

// Create inserts a new generation.
func (r *PGRepo) Create(ctx context.Context, g Generation) error {
	const query = `
INSERT INTO generations (id, user_id, engine, kind, prompt, params, status, cost, request_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`
	params, err := json.Marshal(g.Params)
	if err != nil {
		return fmt.Errorf("marshal params: %w", err)
	}
	_, err = r.DB.ExecContext(ctx, query,
		g.ID,
		g.UserID,
		g.Engine,
		string(g.Kind),
		g.Prompt,
		params,
		g.Status,
		g.Cost,
		nullableString(g.RequestID),
		g.CreatedAt,
	)
	return err
}

// Get returns a live generation owned by userID.
func (r *PGRepo) Get(ctx context.Context, userID, id string) (Generation, error) {
	query := selectColumns + `
WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
LIMIT 1`
	return scanGeneration(r.DB.QueryRowContext(ctx, query, id, userID))
}

// GetByID returns a live generation by id.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Generation, error) {
	query := selectColumns + `
WHERE id = $1 AND deleted_at IS NULL
LIMIT 1`
	return scanGeneration(r.DB.QueryRowContext(ctx, query, id))
}

// List returns the user's live generations, newest first.
func (r *PGRepo) List(ctx context.Context, userID string, filter ListFilter) ([]Generation, error) {
	query := selectColumns + `
WHERE user_id = $1 AND deleted_at IS NULL AND ($2 = '' OR kind = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`
	rows, err := r.DB.QueryContext(ctx, query, userID, string(filter.Kind), filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Generation{}
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// Claim moves the generation to processing in one statement so that two
// workers cannot both win.
func (r *PGRepo) Claim(ctx context.Context, id string, staleBefore time.Time) (Generation, error) {
	const query = `
UPDATE generations
SET status = 'processing', updated_at = now()
WHERE id = $1 AND deleted_at IS NULL
  AND (status = 'queued' OR (status = 'processing' AND updated_at < $2))
RETURNING id, user_id, engine, kind, prompt, params, status, result_url, storage_key, mime_type,
          task_id, cost, error_code, error_message, request_id, created_at, updated_at, completed_at`
	g, err := scanGeneration(r.DB.QueryRowContext(ctx, query, id, staleBefore))
	if errors.Is(err, ErrNotFound) {
		return Generation{}, ErrNotClaimable
	}
	return g, err
}

// Complete records a successful outcome.
func (r *PGRepo) Complete(ctx context.Context, id string, c Completion) error {
	const query = `
UPDATE generations
SET status = 'completed', result_url = $2, storage_key = $3, mime_type = $4, task_id = $5,
    cost = $6, error_code = NULL, error_message = NULL, completed_at = $7, updated_at = now()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query,
		id,
		nullableString(c.ResultURL),
		nullableString(c.StorageKey),
		nullableString(c.MIMEType),
		nullableString(c.TaskID),
		c.Cost,
		c.CompletedAt,
	)
	return checkAffected(res, err)
}

// Fail records a failed outcome. Failed generations cost nothing.
func (r *PGRepo) Fail(ctx context.Context, id, code, message string) error {
	const query = `
UPDATE generations
SET status = 'failed', error_code = $2, error_message = $3, cost = 0, completed_at = now(), updated_at = now()
WHERE id = $1`
	res, err := r.DB.ExecContext(ctx, query, id, code, message)
	return checkAffected(res, err)
}

// SoftDelete hides a user's generation.
func (r *PGRepo) SoftDelete(ctx context.Context, userID, id string) error {
	const query = `
UPDATE generations
SET deleted_at = now(), updated_at = now()
WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL`
	res, err := r.DB.ExecContext(ctx, query, id, userID)
	return checkAffected(res, err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGeneration(row rowScanner) (Generation, error) {
	var g Generation
	var kind string
	var params []byte
	var resultURL, storageKey, mimeType, taskID sql.NullString
	var errorCode, errorMessage, requestID sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(
		&g.ID,
		&g.UserID,
		&g.Engine,
		&kind,
		&g.Prompt,
		&params,
		&g.Status,
		&resultURL,
		&storageKey,
		&mimeType,
		&taskID,
		&g.Cost,
		&errorCode,
		&errorMessage,
		&requestID,
		&g.CreatedAt,
		&g.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Generation{}, ErrNotFound
		}
		return Generation{}, err
	}
	g.Kind = engines.Kind(kind)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &g.Params); err != nil {
			return Generation{}, fmt.Errorf("decode params for %s: %w", g.ID, err)
		}
	}
	g.ResultURL = resultURL.String
	g.StorageKey = storageKey.String
	g.MIMEType = mimeType.String
	g.TaskID = taskID.String
	g.ErrorCode = errorCode.String
	g.ErrorMessage = errorMessage.String
	g.RequestID = requestID.String
	if completedAt.Valid {
		t := completedAt.Time
		g.CompletedAt = &t
	}
	return g, nil
}

func checkAffected(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
