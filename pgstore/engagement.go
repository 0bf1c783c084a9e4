package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bloggyhq/bloggy"
	"github.com/jmoiron/sqlx"
)

func membershipTable(kind bloggy.Membership) string {
	if kind == bloggy.ReadLater {
		return "read_later"
	}

	return "bookmarks"
}

// queries runs the engagement reads on either the database or a transaction.
type queries struct {
	q sqlx.ExtContext
}

func (e queries) ArticleExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, e.q, &exists, "SELECT EXISTS(SELECT 1 FROM articles WHERE slug = $1)", slug)
	if err != nil {
		return false, fmt.Errorf("ArticleExists: %w", err)
	}

	return exists, nil
}

func (e queries) FindVote(ctx context.Context, userID int64, slug string) (bloggy.Direction, bool, error) {
	return e.findVote(ctx, "SELECT direction FROM votes WHERE user_id = $1 AND article_slug = $2", userID, slug)
}

func (e queries) findVote(ctx context.Context, query string, userID int64, slug string) (bloggy.Direction, bool, error) {
	var d bloggy.Direction
	err := sqlx.GetContext(ctx, e.q, &d, query, userID, slug)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("FindVote: %w", err)
	}

	return d, true, nil
}

func (e queries) HasMembership(ctx context.Context, kind bloggy.Membership, userID int64, slug string) (bool, error) {
	var exists bool
	query := "SELECT EXISTS(SELECT 1 FROM " + membershipTable(kind) + " WHERE user_id = $1 AND article_slug = $2)"
	err := sqlx.GetContext(ctx, e.q, &exists, query, userID, slug)
	if err != nil {
		return false, fmt.Errorf("HasMembership: %w", err)
	}

	return exists, nil
}

// engagementTx is the unit of work handed to the tracker. Row locks taken through it are
// held until the transaction ends.
type engagementTx struct {
	queries
	tx *sqlx.Tx
}

func (t *engagementTx) LockArticleCounters(ctx context.Context, slug string) (bloggy.VoteCounters, error) {
	var counters bloggy.VoteCounters
	err := t.tx.GetContext(ctx, &counters, "SELECT upvote_count, downvote_count FROM articles WHERE slug = $1 FOR UPDATE", slug)
	if errors.Is(err, sql.ErrNoRows) {
		return counters, bloggy.NotFound("article", slug)
	}
	if err != nil {
		return counters, fmt.Errorf("LockArticleCounters: %w", err)
	}

	return counters, nil
}

func (t *engagementTx) LockVote(ctx context.Context, userID int64, slug string) (bloggy.Direction, bool, error) {
	return t.findVote(ctx, "SELECT direction FROM votes WHERE user_id = $1 AND article_slug = $2 FOR UPDATE", userID, slug)
}

func (t *engagementTx) InsertVote(ctx context.Context, userID int64, slug string, d bloggy.Direction) error {
	now := time.Now()
	_, err := t.tx.ExecContext(ctx,
		"INSERT INTO votes (user_id, article_slug, direction, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)",
		userID, slug, d, now, now)
	if err != nil {
		return fmt.Errorf("InsertVote: %w", err)
	}

	return nil
}

func (t *engagementTx) UpdateVote(ctx context.Context, userID int64, slug string, d bloggy.Direction) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE votes SET direction = $3, updated_at = $4 WHERE user_id = $1 AND article_slug = $2",
		userID, slug, d, time.Now())
	if err != nil {
		return fmt.Errorf("UpdateVote: %w", err)
	}

	return nil
}

func (t *engagementTx) AddToCounters(ctx context.Context, slug string, up int64, down int64) (bloggy.VoteCounters, error) {
	var counters bloggy.VoteCounters
	err := t.tx.GetContext(ctx, &counters,
		"UPDATE articles SET upvote_count = upvote_count + $2, downvote_count = downvote_count + $3 WHERE slug = $1 RETURNING upvote_count, downvote_count",
		slug, up, down)
	if err != nil {
		return counters, fmt.Errorf("AddToCounters: %w", err)
	}

	return counters, nil
}

func (t *engagementTx) AddMembership(ctx context.Context, kind bloggy.Membership, userID int64, slug string) (bool, error) {
	query := "INSERT INTO " + membershipTable(kind) + " (user_id, article_slug, added_at) VALUES ($1, $2, $3) ON CONFLICT (user_id, article_slug) DO NOTHING"
	res, err := t.tx.ExecContext(ctx, query, userID, slug, time.Now())
	if err != nil {
		return false, fmt.Errorf("AddMembership: %w", err)
	}

	return affected(res)
}

func (t *engagementTx) RemoveMembership(ctx context.Context, kind bloggy.Membership, userID int64, slug string) (bool, error) {
	query := "DELETE FROM " + membershipTable(kind) + " WHERE user_id = $1 AND article_slug = $2"
	res, err := t.tx.ExecContext(ctx, query, userID, slug)
	if err != nil {
		return false, fmt.Errorf("RemoveMembership: %w", err)
	}

	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}

	return n > 0, nil
}

// RunInTx runs fn inside a transaction, committing it if fn succeeds and rolling it back
// otherwise. Contention errors are returned as ConflictRetry errors.
func (s *PGStore) RunInTx(ctx context.Context, fn func(tx bloggy.EngagementTx) error) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mapTxError(fmt.Errorf("begin: %w", err))
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = mapTxError(fmt.Errorf("commit: %w", cerr))
		}
	}()

	if s.lockTimeout > 0 {
		// SET does not take bind parameters
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", s.lockTimeout.Milliseconds())
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return mapTxError(fmt.Errorf("lock_timeout: %w", err))
		}
	}

	return mapTxError(fn(&engagementTx{queries: queries{q: tx}, tx: tx}))
}

func (s *PGStore) ArticleExists(ctx context.Context, slug string) (bool, error) {
	return queries{q: s.db}.ArticleExists(ctx, slug)
}

func (s *PGStore) FindVote(ctx context.Context, userID int64, slug string) (bloggy.Direction, bool, error) {
	return queries{q: s.db}.FindVote(ctx, userID, slug)
}

func (s *PGStore) HasMembership(ctx context.Context, kind bloggy.Membership, userID int64, slug string) (bool, error) {
	return queries{q: s.db}.HasMembership(ctx, kind, userID, slug)
}
