package message

import (
	"PShare/module/chat/model"
	"PShare/tools/errs"
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var pgSchema = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id         TEXT PRIMARY KEY,
		room_id    TEXT NOT NULL,
		from_id    TEXT NOT NULL,
		to_id      TEXT NOT NULL,
		body       TEXT NOT NULL,
		read       BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS messages_room_created ON messages (room_id, created_at, id)`,
	`CREATE INDEX IF NOT EXISTS messages_to_unread ON messages (to_id, room_id) WHERE NOT read`,
	`CREATE INDEX IF NOT EXISTS messages_from ON messages (from_id, created_at DESC)`,
}

const pgColumns = `id, room_id, from_id, to_id, body, read, created_at`

// PostgresStore persists messages in a single table through a pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate creates the table and indexes when missing.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	for _, stmt := range pgSchema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Insert(ctx context.Context, m *model.Message) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (`+pgColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.RoomID, m.From, m.To, m.Text, m.Read, m.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateID.WrapMsg("", "id", m.ID)
	}
	return err
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*model.Message, error) {
	m, err := scanMessage(s.pool.QueryRow(ctx, `SELECT `+pgColumns+` FROM messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, errs.ErrNotFound.WrapMsg("message", "id", id)
	}
	return m, err
}

func (s *PostgresStore) ListRoom(ctx context.Context, roomID string, limit int) ([]*model.Message, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if limit > 0 {
		rows, err = s.pool.Query(ctx, `
			SELECT `+pgColumns+` FROM (
				SELECT `+pgColumns+` FROM messages WHERE room_id = $1
				ORDER BY created_at DESC, id DESC LIMIT $2
			) recent ORDER BY created_at, id`, roomID, limit)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+pgColumns+` FROM messages WHERE room_id = $1 ORDER BY created_at, id`, roomID)
	}
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func (s *PostgresStore) LastPerRoom(ctx context.Context, userID string) ([]*model.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ON (room_id) `+pgColumns+`
		FROM messages WHERE from_id = $1 OR to_id = $1
		ORDER BY room_id, created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, err
	}
	return collectMessages(rows)
}

func (s *PostgresStore) UnreadByRoom(ctx context.Context, userID string) (map[string]int64, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT room_id, count(*) FROM messages WHERE to_id = $1 AND NOT read GROUP BY room_id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var roomID string
		var n int64
		if err := rows.Scan(&roomID, &n); err != nil {
			return nil, err
		}
		out[roomID] = n
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkRoomRead(ctx context.Context, roomID, recipientID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET read = TRUE WHERE room_id = $1 AND to_id = $2 AND NOT read`, roomID, recipientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) MarkOneRead(ctx context.Context, id, recipientID string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE messages SET read = TRUE WHERE id = $1 AND to_id = $2 AND NOT read`, id, recipientID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	m, err := s.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if m.To != recipientID {
		return false, errs.ErrAuthorization.WrapMsg("not the recipient", "messageId", id)
	}
	return false, nil
}

func scanMessage(row pgx.Row) (*model.Message, error) {
	var m model.Message
	if err := row.Scan(&m.ID, &m.RoomID, &m.From, &m.To, &m.Text, &m.Read, &m.CreatedAt); err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	return &m, nil
}

func collectMessages(rows pgx.Rows) ([]*model.Message, error) {
	defer rows.Close()
	var out []*model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
