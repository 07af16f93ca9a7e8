package inbox

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

const selectMessage = `
SELECT id, user_id, email, subject, body, status, reply, replied_by, created_at, read_at, replied_at
FROM support_messages`

func (r *PGRepo) Create(ctx context.Context, msg Message) error {
	const query = `
INSERT INTO support_messages (id, user_id, email, subject, body, status, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.DB.ExecContext(ctx, query, msg.ID, msg.UserID, msg.Email, msg.Subject, msg.Body, msg.Status, msg.CreatedAt)
	return err
}

func (r *PGRepo) Get(ctx context.Context, id string) (Message, error) {
	query := selectMessage + `
WHERE id = $1 AND deleted_at IS NULL
LIMIT 1`
	return scanMessage(r.DB.QueryRowContext(ctx, query, id))
}

func (r *PGRepo) ListByUser(ctx context.Context, userID string, limit int) ([]Message, error) {
	query := selectMessage + `
WHERE user_id = $1 AND deleted_at IS NULL
ORDER BY created_at DESC
LIMIT $2`
	return r.query(ctx, query, userID, limit)
}

func (r *PGRepo) List(ctx context.Context, status string, limit, offset int) ([]Message, error) {
	query := selectMessage + `
WHERE deleted_at IS NULL AND ($1 = '' OR status = $1)
ORDER BY created_at DESC
LIMIT $2 OFFSET $3`
	return r.query(ctx, query, status, limit, offset)
}

func (r *PGRepo) MarkRead(ctx context.Context, id string, at time.Time) error {
	const query = `
UPDATE support_messages
SET read_at = COALESCE(read_at, $2),
    status = CASE WHEN status = 'open' THEN 'read' ELSE status END
WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.DB.ExecContext(ctx, query, id, at)
	return checkAffected(res, err)
}

func (r *PGRepo) Reply(ctx context.Context, id, reply, repliedBy string, at time.Time) error {
	const query = `
UPDATE support_messages
SET reply = $2, replied_by = $3, replied_at = $4, read_at = COALESCE(read_at, $4), status = 'replied'
WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.DB.ExecContext(ctx, query, id, reply, repliedBy, at)
	return checkAffected(res, err)
}

func (r *PGRepo) SoftDelete(ctx context.Context, id string, at time.Time) error {
	const query = `
UPDATE support_messages
SET deleted_at = $2
WHERE id = $1 AND deleted_at IS NULL`
	res, err := r.DB.ExecContext(ctx, query, id, at)
	return checkAffected(res, err)
}

func (r *PGRepo) query(ctx context.Context, query string, args ...any) ([]Message, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (Message, error) {
	var msg Message
	var reply, repliedBy sql.NullString
	var readAt, repliedAt sql.NullTime
	err := row.Scan(&msg.ID, &msg.UserID, &msg.Email, &msg.Subject, &msg.Body, &msg.Status,
		&reply, &repliedBy, &msg.CreatedAt, &readAt, &repliedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Message{}, ErrNotFound
		}
		return Message{}, err
	}
	msg.Reply = reply.String
	msg.RepliedBy = repliedBy.String
	if readAt.Valid {
		t := readAt.Time
		msg.ReadAt = &t
	}
	if repliedAt.Valid {
		t := repliedAt.Time
		msg.RepliedAt = &t
	}
	return msg, nil
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
