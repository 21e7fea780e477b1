package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/g1mliii/anchored/internal/common"
	"github.com/g1mliii/anchored/internal/cryptox"
	"github.com/g1mliii/anchored/internal/models"
	"github.com/g1mliii/anchored/internal/server/migrations"
)

// PostgresRepository stores notes in Postgres. Encrypted field records are
// kept as JSONB blobs; the server only ever moves them around.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

const noteColumns = `id, user_id, url, domain, title_encrypted, content_encrypted,
	tags_encrypted, content_hash, created_at, updated_at, is_deleted, deleted_at`

func (r *PostgresRepository) List(ctx context.Context, userID string) ([]*models.EncryptedNote, error) {
	query := `SELECT ` + noteColumns + `
		FROM notes WHERE user_id = $1 AND NOT is_deleted
		ORDER BY updated_at DESC`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select notes: %w", err)
	}
	defer rows.Close()

	var result []*models.EncryptedNote
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *PostgresRepository) GetByID(ctx context.Context, userID, id string) (*models.EncryptedNote, error) {
	query := `SELECT ` + noteColumns + ` FROM notes WHERE user_id = $1 AND id = $2`
	row := r.db.QueryRowContext(ctx, query, userID, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	return n, err
}

func (r *PostgresRepository) Upsert(ctx context.Context, note *models.EncryptedNote) error {
	title, content, tags, err := encodeFields(note)
	if err != nil {
		return err
	}

	// The WHERE clause makes redelivery idempotent per (id, updatedAt) and
	// keeps one user from clobbering another's row on an id collision.
	query := `INSERT INTO notes (` + noteColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			url = excluded.url,
			domain = excluded.domain,
			title_encrypted = excluded.title_encrypted,
			content_encrypted = excluded.content_encrypted,
			tags_encrypted = excluded.tags_encrypted,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at,
			is_deleted = excluded.is_deleted,
			deleted_at = excluded.deleted_at
		WHERE notes.user_id = excluded.user_id
			AND excluded.updated_at > notes.updated_at`
	_, err = r.db.ExecContext(ctx, query,
		note.ID, note.UserID, note.URL, note.Domain, title, content, tags,
		note.ContentHash, note.CreatedAt, note.UpdatedAt, note.IsDeleted, note.DeletedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert note: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Replace(ctx context.Context, note *models.EncryptedNote) error {
	title, content, tags, err := encodeFields(note)
	if err != nil {
		return err
	}

	query := `UPDATE notes SET
			url = $3, domain = $4, title_encrypted = $5, content_encrypted = $6,
			tags_encrypted = $7, content_hash = $8, updated_at = $9,
			is_deleted = $10, deleted_at = $11
		WHERE id = $1 AND user_id = $2`
	result, err := r.db.ExecContext(ctx, query,
		note.ID, note.UserID, note.URL, note.Domain, title, content, tags,
		note.ContentHash, note.UpdatedAt, note.IsDeleted, note.DeletedAt)
	if err != nil {
		return fmt.Errorf("failed to replace note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkDeleted(ctx context.Context, userID, id string, deletedAt time.Time) error {
	query := `UPDATE notes SET is_deleted = true, deleted_at = $3, updated_at = $3
		WHERE id = $1 AND user_id = $2 AND NOT is_deleted`
	if _, err := r.db.ExecContext(ctx, query, id, userID, deletedAt); err != nil {
		return fmt.Errorf("failed to tombstone note: %w", err)
	}
	return nil
}

func (r *PostgresRepository) PurgeTombstones(ctx context.Context, userID string, olderThan time.Time) (int64, error) {
	query := `DELETE FROM notes WHERE user_id = $1 AND is_deleted AND deleted_at < $2`
	result, err := r.db.ExecContext(ctx, query, userID, olderThan)
	if err != nil {
		return 0, fmt.Errorf("failed to purge tombstones: %w", err)
	}
	return result.RowsAffected()
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (*models.EncryptedNote, error) {
	var n models.EncryptedNote
	var title, content, tags []byte
	var deletedAt sql.NullTime
	err := row.Scan(&n.ID, &n.UserID, &n.URL, &n.Domain, &title, &content, &tags,
		&n.ContentHash, &n.CreatedAt, &n.UpdatedAt, &n.IsDeleted, &deletedAt)
	if err != nil {
		return nil, err
	}
	if deletedAt.Valid {
		n.DeletedAt = &deletedAt.Time
	}
	if n.TitleEncrypted, err = decodeField(title); err != nil {
		return nil, err
	}
	if n.ContentEncrypted, err = decodeField(content); err != nil {
		return nil, err
	}
	if n.TagsEncrypted, err = decodeField(tags); err != nil {
		return nil, err
	}
	return &n, nil
}

func encodeFields(note *models.EncryptedNote) (title, content, tags []byte, err error) {
	if title, err = encodeField(note.TitleEncrypted); err != nil {
		return
	}
	if content, err = encodeField(note.ContentEncrypted); err != nil {
		return
	}
	tags, err = encodeField(note.TagsEncrypted)
	return
}

func encodeField(f *cryptox.EncryptedField) ([]byte, error) {
	if f == nil {
		return nil, nil
	}
	return json.Marshal(f)
}

func decodeField(raw []byte) (*cryptox.EncryptedField, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var f cryptox.EncryptedField
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("corrupt encrypted field: %w", err)
	}
	return &f, nil
}
