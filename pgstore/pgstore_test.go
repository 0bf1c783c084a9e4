package pgstore

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bloggyhq/bloggy"
	qt "github.com/frankban/quicktest"
	"github.com/google/go-cmp/cmp"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

func newMockStore(c *qt.C, opts ...Option) (*PGStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() {
		c.Check(mock.ExpectationsWereMet(), qt.IsNil)
		_ = db.Close()
	})

	return NewWithDB(sqlx.NewDb(db, "postgres"), opts...), mock
}

func castVote(store *PGStore, userID int64, slug string, d bloggy.Direction) (*bloggy.VoteResult, error) {
	var res *bloggy.VoteResult
	err := store.RunInTx(context.Background(), func(tx bloggy.EngagementTx) error {
		var err error
		res, err = bloggy.ApplyVote(context.Background(), tx, userID, slug, d)
		return err
	})

	return res, err
}

func countersRows(up int64, down int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"upvote_count", "downvote_count"}).AddRow(up, down)
}

var (
	lockArticle = regexp.QuoteMeta("SELECT upvote_count, downvote_count FROM articles WHERE slug = $1 FOR UPDATE")
	lockVote    = regexp.QuoteMeta("SELECT direction FROM votes WHERE user_id = $1 AND article_slug = $2 FOR UPDATE")
	addCounters = regexp.QuoteMeta("UPDATE articles SET upvote_count = upvote_count + $2")
)

func TestVoteTransactions(t *testing.T) {
	c := qt.New(t)

	c.Run("first vote inserts the row and increments one counter", func(c *qt.C) {
		store, mock := newMockStore(c)
		mock.ExpectBegin()
		mock.ExpectQuery(lockArticle).WithArgs("hello").WillReturnRows(countersRows(3, 1))
		mock.ExpectQuery(lockVote).WithArgs(int64(7), "hello").WillReturnRows(sqlmock.NewRows([]string{"direction"}))
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO votes")).
			WithArgs(int64(7), "hello", "up", sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(addCounters).WithArgs("hello", int64(1), int64(0)).WillReturnRows(countersRows(4, 1))
		mock.ExpectCommit()

		res, err := castVote(store, 7, "hello", bloggy.Up)
		c.Assert(err, qt.IsNil)
		c.Assert(res.Outcome, qt.Equals, bloggy.VoteCreated)
		c.Assert(res.State, qt.Equals, bloggy.Voted(bloggy.Up))
		c.Assert(res.Counters, qt.Equals, bloggy.VoteCounters{Upvotes: 4, Downvotes: 1})
	})

	c.Run("switching moves one unit between counters", func(c *qt.C) {
		store, mock := newMockStore(c)
		mock.ExpectBegin()
		mock.ExpectQuery(lockArticle).WithArgs("hello").WillReturnRows(countersRows(4, 1))
		mock.ExpectQuery(lockVote).WithArgs(int64(7), "hello").WillReturnRows(sqlmock.NewRows([]string{"direction"}).AddRow("up"))
		mock.ExpectExec(regexp.QuoteMeta("UPDATE votes SET direction = $3")).
			WithArgs(int64(7), "hello", "down", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(addCounters).WithArgs("hello", int64(-1), int64(1)).WillReturnRows(countersRows(3, 2))
		mock.ExpectCommit()

		res, err := castVote(store, 7, "hello", bloggy.Down)
		c.Assert(err, qt.IsNil)
		c.Assert(res.Outcome, qt.Equals, bloggy.VoteSwitched)
		c.Assert(res.Counters, qt.Equals, bloggy.VoteCounters{Upvotes: 3, Downvotes: 2})
	})

	c.Run("repeating a vote writes nothing", func(c *qt.C) {
		store, mock := newMockStore(c)
		mock.ExpectBegin()
		mock.ExpectQuery(lockArticle).WithArgs("hello").WillReturnRows(countersRows(3, 2))
		mock.ExpectQuery(lockVote).WithArgs(int64(7), "hello").WillReturnRows(sqlmock.NewRows([]string{"direction"}).AddRow("down"))
		mock.ExpectCommit()

		res, err := castVote(store, 7, "hello", bloggy.Down)
		c.Assert(err, qt.IsNil)
		c.Assert(res.Outcome, qt.Equals, bloggy.VoteUnchanged)
		c.Assert(res.Counters, qt.Equals, bloggy.VoteCounters{Upvotes: 3, Downvotes: 2})
	})

	c.Run("missing article rolls back", func(c *qt.C) {
		store, mock := newMockStore(c)
		mock.ExpectBegin()
		mock.ExpectQuery(lockArticle).WithArgs("nope").WillReturnRows(sqlmock.NewRows([]string{"upvote_count", "downvote_count"}))
		mock.ExpectRollback()

		_, err := castVote(store, 7, "nope", bloggy.Up)
		c.Assert(bloggy.IsNotFound(err), qt.IsTrue, qt.Commentf("got %v", err))
	})

	c.Run("serialization failures become conflicts", func(c *qt.C) {
		store, mock := newMockStore(c)
		mock.ExpectBegin()
		mock.ExpectQuery(lockArticle).WithArgs("hello").WillReturnError(&pq.Error{Code: "40001"})
		mock.ExpectRollback()

		_, err := castVote(store, 7, "hello", bloggy.Up)
		c.Assert(bloggy.IsConflictRetry(err), qt.IsTrue, qt.Commentf("got %v", err))
	})

	c.Run("lock timeouts become conflicts", func(c *qt.C) {
		store, mock := newMockStore(c, WithLockTimeout(250*time.Millisecond))
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta("SET LOCAL lock_timeout = 250")).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(lockArticle).WithArgs("hello").WillReturnRows(countersRows(0, 0))
		mock.ExpectQuery(lockVote).WithArgs(int64(7), "hello").WillReturnError(&pq.Error{Code: "55P03"})
		mock.ExpectRollback()

		_, err := castVote(store, 7, "hello", bloggy.Up)
		c.Assert(bloggy.IsConflictRetry(err), qt.IsTrue, qt.Commentf("got %v", err))
	})

	c.Run("other errors are left alone", func(c *qt.C) {
		store, mock := newMockStore(c)
		mock.ExpectBegin()
		mock.ExpectQuery(lockArticle).WithArgs("hello").WillReturnError(&pq.Error{Code: "42P01"})
		mock.ExpectRollback()

		_, err := castVote(store, 7, "hello", bloggy.Up)
		c.Assert(err, qt.IsNotNil)
		c.Assert(bloggy.IsConflictRetry(err), qt.IsFalse)
	})
}

func TestMembershipTransactions(t *testing.T) {
	c := qt.New(t)

	apply := func(store *PGStore, kind bloggy.Membership, present bool) (bool, error) {
		var changed bool
		err := store.RunInTx(context.Background(), func(tx bloggy.EngagementTx) error {
			var err error
			changed, err = bloggy.ApplyMembership(context.Background(), tx, kind, 7, "hello", present)
			return err
		})
		return changed, err
	}

	exists := regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM articles WHERE slug = $1)")

	c.Run("adding a bookmark twice inserts once", func(c *qt.C) {
		store, mock := newMockStore(c)
		for _, affected := range []int64{1, 0} {
			mock.ExpectBegin()
			mock.ExpectQuery(exists).WithArgs("hello").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
			mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookmarks (user_id, article_slug, added_at)")).
				WithArgs(int64(7), "hello", sqlmock.AnyArg()).
				WillReturnResult(sqlmock.NewResult(0, affected))
			mock.ExpectCommit()
		}

		changed, err := apply(store, bloggy.Bookmarks, true)
		c.Assert(err, qt.IsNil)
		c.Assert(changed, qt.IsTrue)

		changed, err = apply(store, bloggy.Bookmarks, true)
		c.Assert(err, qt.IsNil)
		c.Assert(changed, qt.IsFalse)
	})

	c.Run("read later removal uses its own table", func(c *qt.C) {
		store, mock := newMockStore(c)
		mock.ExpectBegin()
		mock.ExpectQuery(exists).WithArgs("hello").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM read_later WHERE user_id = $1 AND article_slug = $2")).
			WithArgs(int64(7), "hello").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		changed, err := apply(store, bloggy.ReadLater, false)
		c.Assert(err, qt.IsNil)
		c.Assert(changed, qt.IsFalse)
	})

	c.Run("missing article", func(c *qt.C) {
		store, mock := newMockStore(c)
		mock.ExpectBegin()
		mock.ExpectQuery(exists).WithArgs("hello").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectRollback()

		_, err := apply(store, bloggy.Bookmarks, true)
		c.Assert(bloggy.IsNotFound(err), qt.IsTrue)
	})
}

func TestReads(t *testing.T) {
	c := qt.New(t)
	createdAt := time.Date(2021, 3, 4, 10, 0, 0, 0, time.UTC)
	articleColumns := []string{
		"slug", "title", "excerpt", "content", "image_url", "upvote_count", "downvote_count",
		"category_name", "author_username", "created_at", "updated_at", "author_name",
	}

	c.Run("ListArticles", func(c *qt.C) {
		store, mock := newMockStore(c)
		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY articles.created_at DESC LIMIT $1 OFFSET $2")).
			WithArgs(5, 10).
			WillReturnRows(sqlmock.NewRows(articleColumns).AddRow(
				"hello-world", "Hello World", "hi", "# Hi", "", 3, 1, "go", "jane", createdAt, createdAt, "Jane Doe",
			))

		articles, err := store.ListArticles(context.Background(), 2, 5)
		c.Assert(err, qt.IsNil)

		want := []*bloggy.Article{{
			Slug: "hello-world", Title: "Hello World", Excerpt: "hi", Content: "# Hi",
			Upvotes: 3, Downvotes: 1, CategoryName: "go", AuthorUsername: "jane", AuthorName: "Jane Doe",
			CreatedAt: createdAt, UpdatedAt: createdAt,
		}}
		if diff := cmp.Diff(want, articles); diff != "" {
			c.Fatalf("mismatch (-want +got):\n%s", diff)
		}
	})

	c.Run("FindArticle not found", func(c *qt.C) {
		store, mock := newMockStore(c)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE articles.slug = $1")).
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows(articleColumns))

		_, err := store.FindArticle(context.Background(), "nope")
		c.Assert(bloggy.IsNotFound(err), qt.IsTrue)
	})

	c.Run("SearchArticles escapes wildcards", func(c *qt.C) {
		store, mock := newMockStore(c)
		mock.ExpectQuery(regexp.QuoteMeta("WHERE articles.title ILIKE $1")).
			WithArgs(`%100\%%`, 10).
			WillReturnRows(sqlmock.NewRows(articleColumns))

		articles, err := store.SearchArticles(context.Background(), "100%", 10)
		c.Assert(err, qt.IsNil)
		c.Assert(articles, qt.HasLen, 0)
	})

	c.Run("Find non-existing user", func(c *qt.C) {
		store, mock := newMockStore(c)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM users WHERE name = $1")).
			WithArgs("non-existing").
			WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

		user, err := store.FindUserByLogin(context.Background(), "non-existing")
		c.Assert(err, qt.IsNil)
		c.Assert(user, qt.IsNil)
	})

	c.Run("Subscribe twice", func(c *qt.C) {
		store, mock := newMockStore(c)
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO subscribers")).
			WithArgs("a@example.com", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 0))

		subscribed, err := store.Subscribe(context.Background(), "a@example.com")
		c.Assert(err, qt.IsNil)
		c.Assert(subscribed, qt.IsFalse)
	})

	c.Run("DeleteComment of someone else", func(c *qt.C) {
		store, mock := newMockStore(c)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM comments WHERE id = $1 AND article_slug = $2 AND user_id = $3")).
			WithArgs(int64(3), "hello", int64(9)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := store.DeleteComment(context.Background(), "hello", 3, 9)
		c.Assert(bloggy.IsNotFound(err), qt.IsTrue)
	})
}

func TestInsertArticleZeroesCounters(t *testing.T) {
	c := qt.New(t)
	store, mock := newMockStore(c)

	article := bloggy.NewArticle("Hello World", "hi", "# Hi", "go", "jane")
	article.Upvotes, article.Downvotes = 3, 1

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO articles (slug, title, excerpt, content, image_url, category_name, author_username, created_at, updated_at) VALUES")).
		WithArgs("hello-world", "Hello World", "hi", "# Hi", "", "go", "jane", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	c.Assert(store.InsertArticle(context.Background(), article), qt.IsNil)
}

func TestCountVotes(t *testing.T) {
	c := qt.New(t)
	store, mock := newMockStore(c)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM votes WHERE article_slug = $1 AND direction = $2")).
		WithArgs("hello-world", "down").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	n, err := store.CountVotes(context.Background(), "hello-world", bloggy.Down)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, int64(2))
}
