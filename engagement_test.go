package bloggy

import (
	"context"
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/rs/zerolog"
)

type votePair struct {
	user int64
	slug string
}

// fakeTx is an in memory unit of work that records the calls it gets.
type fakeTx struct {
	counters    map[string]VoteCounters
	votes       map[votePair]Direction
	memberships map[Membership]map[votePair]bool
	calls       []string
}

// newFakeTx starts with up and down votes on slug, cast by users numbered from 100.
func newFakeTx(slug string, up int64, down int64) *fakeTx {
	f := &fakeTx{
		counters:    map[string]VoteCounters{slug: {}},
		votes:       map[votePair]Direction{},
		memberships: map[Membership]map[votePair]bool{Bookmarks: {}, ReadLater: {}},
	}
	for i := int64(0); i < up+down; i++ {
		d := Up
		if i >= up {
			d = Down
		}
		f.castVote(100+i, slug, d)
	}
	return f
}

func (f *fakeTx) castVote(userID int64, slug string, d Direction) {
	f.votes[votePair{userID, slug}] = d
	up, down := d.deltas()
	c := f.counters[slug]
	c.Upvotes += up
	c.Downvotes += down
	f.counters[slug] = c
}

// countVotes counts the stored votes on slug per direction.
func (f *fakeTx) countVotes(slug string) VoteCounters {
	var c VoteCounters
	for p, d := range f.votes {
		if p.slug != slug {
			continue
		}
		if d == Up {
			c.Upvotes++
		} else {
			c.Downvotes++
		}
	}
	return c
}

func (f *fakeTx) ArticleExists(ctx context.Context, slug string) (bool, error) {
	_, ok := f.counters[slug]
	return ok, nil
}

func (f *fakeTx) FindVote(ctx context.Context, userID int64, slug string) (Direction, bool, error) {
	d, ok := f.votes[votePair{userID, slug}]
	return d, ok, nil
}

func (f *fakeTx) HasMembership(ctx context.Context, kind Membership, userID int64, slug string) (bool, error) {
	return f.memberships[kind][votePair{userID, slug}], nil
}

func (f *fakeTx) LockArticleCounters(ctx context.Context, slug string) (VoteCounters, error) {
	f.calls = append(f.calls, "lock article")
	c, ok := f.counters[slug]
	if !ok {
		return VoteCounters{}, NotFound("article", slug)
	}
	return c, nil
}

func (f *fakeTx) LockVote(ctx context.Context, userID int64, slug string) (Direction, bool, error) {
	f.calls = append(f.calls, "lock vote")
	return f.FindVote(ctx, userID, slug)
}

func (f *fakeTx) InsertVote(ctx context.Context, userID int64, slug string, d Direction) error {
	f.calls = append(f.calls, "insert vote")
	f.votes[votePair{userID, slug}] = d
	return nil
}

func (f *fakeTx) UpdateVote(ctx context.Context, userID int64, slug string, d Direction) error {
	f.calls = append(f.calls, "update vote")
	f.votes[votePair{userID, slug}] = d
	return nil
}

func (f *fakeTx) AddToCounters(ctx context.Context, slug string, up int64, down int64) (VoteCounters, error) {
	f.calls = append(f.calls, "add counters")
	c := f.counters[slug]
	c.Upvotes += up
	c.Downvotes += down
	f.counters[slug] = c
	return c, nil
}

func (f *fakeTx) AddMembership(ctx context.Context, kind Membership, userID int64, slug string) (bool, error) {
	p := votePair{userID, slug}
	if f.memberships[kind][p] {
		return false, nil
	}
	f.memberships[kind][p] = true
	return true, nil
}

func (f *fakeTx) RemoveMembership(ctx context.Context, kind Membership, userID int64, slug string) (bool, error) {
	p := votePair{userID, slug}
	if !f.memberships[kind][p] {
		return false, nil
	}
	delete(f.memberships[kind], p)
	return true, nil
}

// fakeStore runs every unit of work on the same fakeTx, failing the first failures ones.
type fakeStore struct {
	*fakeTx
	failures int
	runs     int
}

func (s *fakeStore) RunInTx(ctx context.Context, fn func(tx EngagementTx) error) error {
	s.runs++
	if s.failures > 0 {
		s.failures--
		return ConflictRetry(errors.New("could not serialize access"))
	}
	return fn(s.fakeTx)
}

func TestApplyVote(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		previous Direction
		vote     Direction
		want     VoteCounters
		outcome  VoteOutcome
		calls    []string
	}{
		{"first upvote", 0, Up, VoteCounters{4, 1}, VoteCreated, []string{"lock article", "lock vote", "insert vote", "add counters"}},
		{"first downvote", 0, Down, VoteCounters{3, 2}, VoteCreated, []string{"lock article", "lock vote", "insert vote", "add counters"}},
		{"switch to down", Up, Down, VoteCounters{2, 2}, VoteSwitched, []string{"lock article", "lock vote", "update vote", "add counters"}},
		{"switch to up", Down, Up, VoteCounters{4, 0}, VoteSwitched, []string{"lock article", "lock vote", "update vote", "add counters"}},
		{"repeat up", Up, Up, VoteCounters{3, 1}, VoteUnchanged, []string{"lock article", "lock vote"}},
		{"repeat down", Down, Down, VoteCounters{3, 1}, VoteUnchanged, []string{"lock article", "lock vote"}},
	}

	for _, tt := range tests {
		c.Run(tt.name, func(c *qt.C) {
			up, down := int64(3), int64(1)
			switch tt.previous {
			case Up:
				up--
			case Down:
				down--
			}
			tx := newFakeTx("a", up, down)
			if tt.previous != 0 {
				tx.castVote(1, "a", tt.previous)
			}
			c.Assert(tx.counters["a"], qt.Equals, tx.countVotes("a"))

			res, err := ApplyVote(ctx, tx, 1, "a", tt.vote)
			c.Assert(err, qt.IsNil)
			c.Assert(res.Counters, qt.Equals, tt.want)
			c.Assert(res.Outcome, qt.Equals, tt.outcome)
			c.Assert(res.State, qt.Equals, Voted(tt.vote))
			c.Assert(tx.counters["a"], qt.Equals, tt.want)
			c.Assert(tx.counters["a"], qt.Equals, tx.countVotes("a"))
			c.Assert(tx.votes[votePair{1, "a"}], qt.Equals, tt.vote)
			c.Assert(tx.calls, qt.DeepEquals, tt.calls)
		})
	}

	c.Run("invalid direction touches nothing", func(c *qt.C) {
		tx := newFakeTx("a", 3, 1)
		_, err := ApplyVote(ctx, tx, 1, "a", Direction(0))
		var bad *BadRequestError
		c.Assert(err, qt.ErrorAs, &bad)
		c.Assert(tx.calls, qt.HasLen, 0)
	})

	c.Run("missing article", func(c *qt.C) {
		tx := newFakeTx("a", 3, 1)
		_, err := ApplyVote(ctx, tx, 1, "b", Up)
		c.Assert(IsNotFound(err), qt.IsTrue)
		c.Assert(tx.votes, qt.HasLen, 4)
	})
}

func TestApplyMembership(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	tx := newFakeTx("a", 0, 0)

	changed, err := ApplyMembership(ctx, tx, Bookmarks, 1, "a", true)
	c.Assert(err, qt.IsNil)
	c.Assert(changed, qt.IsTrue)

	changed, err = ApplyMembership(ctx, tx, Bookmarks, 1, "a", true)
	c.Assert(err, qt.IsNil)
	c.Assert(changed, qt.IsFalse)

	// the lists are independent
	c.Assert(tx.memberships[ReadLater], qt.HasLen, 0)

	changed, err = ApplyMembership(ctx, tx, ReadLater, 1, "a", false)
	c.Assert(err, qt.IsNil)
	c.Assert(changed, qt.IsFalse)

	changed, err = ApplyMembership(ctx, tx, Bookmarks, 1, "a", false)
	c.Assert(err, qt.IsNil)
	c.Assert(changed, qt.IsTrue)

	_, err = ApplyMembership(ctx, tx, Bookmarks, 1, "nope", true)
	c.Assert(IsNotFound(err), qt.IsTrue)
}

func TestTracker(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	user := &User{ID: 1, Name: "jane"}

	c.Run("anonymous users are unauthorized", func(c *qt.C) {
		tracker := NewTracker(&fakeStore{fakeTx: newFakeTx("a", 0, 0)}, zerolog.Nop())

		_, err := tracker.CastVote(ctx, nil, "a", Up)
		c.Assert(IsUnauthorized(err), qt.IsTrue)
		_, err = tracker.SetBookmark(ctx, nil, "a", true)
		c.Assert(IsUnauthorized(err), qt.IsTrue)
		_, err = tracker.SetReadLater(ctx, nil, "a", true)
		c.Assert(IsUnauthorized(err), qt.IsTrue)
		_, err = tracker.GetEngagement(ctx, nil, "a")
		c.Assert(IsUnauthorized(err), qt.IsTrue)
	})

	c.Run("engagement reflects every operation", func(c *qt.C) {
		tracker := NewTracker(&fakeStore{fakeTx: newFakeTx("a", 0, 0)}, zerolog.Nop())

		e, err := tracker.GetEngagement(ctx, user, "a")
		c.Assert(err, qt.IsNil)
		c.Assert(*e, qt.Equals, Engagement{})

		_, err = tracker.CastVote(ctx, user, "a", Down)
		c.Assert(err, qt.IsNil)
		scheduled, err := tracker.SetReadLater(ctx, user, "a", true)
		c.Assert(err, qt.IsNil)
		c.Assert(scheduled, qt.IsTrue)

		e, err = tracker.GetEngagement(ctx, user, "a")
		c.Assert(err, qt.IsNil)
		c.Assert(*e, qt.Equals, Engagement{Vote: Voted(Down), Scheduled: true})

		_, err = tracker.GetEngagement(ctx, user, "b")
		c.Assert(IsNotFound(err), qt.IsTrue)
	})

	c.Run("conflicts are returned as is", func(c *qt.C) {
		tracker := NewTracker(&fakeStore{fakeTx: newFakeTx("a", 0, 0), failures: 1}, zerolog.Nop())

		_, err := tracker.CastVote(ctx, user, "a", Up)
		c.Assert(IsConflictRetry(err), qt.IsTrue)
	})
}

func TestRetryOnConflict(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	user := &User{ID: 1, Name: "jane"}
	retryBackoff = 0

	c.Run("retries until success", func(c *qt.C) {
		store := &fakeStore{fakeTx: newFakeTx("a", 0, 0), failures: 2}
		s := &Server{config: &ServerConfig{VoteRetries: 2}, tracker: NewTracker(store, zerolog.Nop())}

		var res *VoteResult
		err := s.retryOnConflict(ctx, func() error {
			var err error
			res, err = s.tracker.CastVote(ctx, user, "a", Up)
			return err
		})
		c.Assert(err, qt.IsNil)
		c.Assert(store.runs, qt.Equals, 3)
		c.Assert(res.Counters, qt.Equals, VoteCounters{Upvotes: 1})
	})

	c.Run("gives up after the configured retries", func(c *qt.C) {
		store := &fakeStore{fakeTx: newFakeTx("a", 0, 0), failures: 5}
		s := &Server{config: &ServerConfig{VoteRetries: 2}, tracker: NewTracker(store, zerolog.Nop())}

		err := s.retryOnConflict(ctx, func() error {
			_, err := s.tracker.CastVote(ctx, user, "a", Up)
			return err
		})
		c.Assert(IsConflictRetry(err), qt.IsTrue)
		c.Assert(store.runs, qt.Equals, 3)
	})

	c.Run("other errors are not retried", func(c *qt.C) {
		calls := 0
		s := &Server{config: &ServerConfig{VoteRetries: 5}}
		err := s.retryOnConflict(ctx, func() error {
			calls++
			return NotFound("article", "a")
		})
		c.Assert(IsNotFound(err), qt.IsTrue)
		c.Assert(calls, qt.Equals, 1)
	})
}
