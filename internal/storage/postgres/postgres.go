package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/ButyrinIA/lostfound/internal/models"
	"github.com/ButyrinIA/lostfound/internal/storage"
)

// postsChannel is the NOTIFY channel signalled after every post write.
const postsChannel = "found_posts_changed"

const schema = `
	CREATE TABLE IF NOT EXISTS found_posts (
		id TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
		text TEXT NOT NULL,
		image_ref TEXT,
		author_id TEXT NOT NULL,
		author_email TEXT NOT NULL,
		author_name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		like_count INTEGER NOT NULL DEFAULT 0,
		liked_by TEXT[] NOT NULL DEFAULT '{}',
		CONSTRAINT found_posts_not_empty CHECK (text <> '' OR image_ref IS NOT NULL)
	);
	CREATE INDEX IF NOT EXISTS idx_found_posts_created_at ON found_posts(created_at DESC, id DESC);
	CREATE TABLE IF NOT EXISTS found_admins (
		subject_id TEXT PRIMARY KEY,
		is_admin BOOLEAN NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);
`

const postColumns = `id, text, image_ref, author_id, author_email, author_name, created_at, like_count, liked_by`

type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func New(ctx context.Context, dsn string, logger *zap.Logger) (*PostgresStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	cfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheStatement

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &PostgresStorage{pool: pool, logger: logger}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var p models.Post
	if err := row.Scan(&p.ID, &p.Text, &p.ImageRef, &p.AuthorID, &p.AuthorEmail, &p.AuthorName, &p.CreatedAt, &p.LikeCount, &p.LikedBy); err != nil {
		return nil, err
	}
	if p.LikedBy == nil {
		p.LikedBy = []string{}
	}
	return &p, nil
}

func (s *PostgresStorage) CreatePost(ctx context.Context, post *models.Post) (string, error) {
	if post.LikedBy == nil {
		post.LikedBy = []string{}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO found_posts (text, image_ref, author_id, author_email, author_name, like_count, liked_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		post.Text, post.ImageRef, post.AuthorID, post.AuthorEmail, post.AuthorName, post.LikeCount, post.LikedBy,
	).Scan(&post.ID, &post.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("failed to insert post: %w", err)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, postsChannel, post.ID); err != nil {
		return "", fmt.Errorf("failed to notify: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit post: %w", err)
	}
	return post.ID, nil
}

func (s *PostgresStorage) GetPost(ctx context.Context, id string) (*models.Post, error) {
	p, err := scanPost(s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM found_posts WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get post: %w", err)
	}
	return p, nil
}

func (s *PostgresStorage) DeletePost(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM found_posts WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete post: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrPostNotFound
	}
	if _, err := tx.Exec(ctx, `SELECT pg_notify($1, $2)`, postsChannel, id); err != nil {
		return fmt.Errorf("failed to notify: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PostgresStorage) ListPosts(ctx context.Context, limit int, cursor *string) (*models.PaginatedPosts, error) {
	limit = storage.ClampLimit(limit)

	// Курсор: id последнего поста предыдущей страницы
	query := `
		SELECT ` + postColumns + `
		FROM found_posts
		WHERE ($1::TEXT IS NULL OR (created_at, id) < (SELECT created_at, id FROM found_posts WHERE id = $1))
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := s.pool.Query(ctx, query, cursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]*models.Post, 0, limit+1)
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	var nextCursor *string
	if len(posts) > limit {
		posts = posts[:limit]
		nextCursor = new(string)
		*nextCursor = posts[limit-1].ID
	}

	return &models.PaginatedPosts{
		Posts:      posts,
		NextCursor: nextCursor,
	}, nil
}

// SubscribePosts takes one connection out of the pool, keeps it in LISTEN
// mode for the life of the subscription and re-reads the newest posts on
// every notification.
func (s *PostgresStorage) SubscribePosts(ctx context.Context, limit int) (<-chan models.FeedSnapshot, error) {
	limit = storage.ClampLimit(limit)

	pooled, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	// соединение в режиме LISTEN не возвращается в пул
	conn := pooled.Hijack()
	if _, err := conn.Exec(ctx, `LISTEN `+postsChannel); err != nil {
		conn.Close(context.Background())
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	ch := make(chan models.FeedSnapshot, 1)
	go func() {
		defer close(ch)
		defer conn.Close(context.Background())

		for {
			page, err := s.ListPosts(ctx, limit, nil)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				s.logger.Warn("feed_snapshot_failed", zap.Error(err))
				storage.Offer(ch, models.FeedSnapshot{Err: err})
			} else {
				storage.Offer(ch, models.FeedSnapshot{Posts: page.Posts})
			}

			if _, err := conn.WaitForNotification(ctx); err != nil {
				if ctx.Err() == nil {
					s.logger.Warn("feed_listen_failed", zap.Error(err))
					storage.Offer(ch, models.FeedSnapshot{Err: fmt.Errorf("feed subscription failed: %w", err)})
				}
				return
			}
		}
	}()

	return ch, nil
}

func (s *PostgresStorage) LookupAdmin(ctx context.Context, subjectID string) (*models.AdminRecord, error) {
	rec := models.AdminRecord{SubjectID: subjectID}
	err := s.pool.QueryRow(ctx, `SELECT is_admin, updated_at FROM found_admins WHERE subject_id=$1`, subjectID).
		Scan(&rec.IsAdmin, &rec.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up admin: %w", err)
	}
	return &rec, nil
}

func (s *PostgresStorage) SetAdmin(ctx context.Context, subjectID string, isAdmin bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO found_admins (subject_id, is_admin, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (subject_id) DO UPDATE SET is_admin = EXCLUDED.is_admin, updated_at = EXCLUDED.updated_at`,
		subjectID, isAdmin)
	if err != nil {
		return fmt.Errorf("failed to set admin: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
