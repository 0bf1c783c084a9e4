package bloggy

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// VoteCounters are the denormalized vote totals stored on an article.
type VoteCounters struct {
	Upvotes   int64 `json:"upvote_count" db:"upvote_count"`
	Downvotes int64 `json:"downvote_count" db:"downvote_count"`
}

// Membership designates one of the per-user article sets. Both sets have the same shape
// and are stored independently.
type Membership int

const (
	Bookmarks Membership = iota
	ReadLater
)

func (m Membership) String() string {
	if m == ReadLater {
		return "read_later"
	}

	return "bookmark"
}

// VoteOutcome tells what a vote did to the stored state.
type VoteOutcome string

const (
	VoteCreated   VoteOutcome = "created"
	VoteSwitched  VoteOutcome = "switched"
	VoteUnchanged VoteOutcome = "unchanged"
)

type VoteResult struct {
	State    VoteState    `json:"vote_state"`
	Counters VoteCounters `json:"counters"`
	Outcome  VoteOutcome  `json:"-"`
}

// Engagement is the combination of a user's vote, bookmark and read-later membership for one article.
type Engagement struct {
	Vote       VoteState `json:"vote_state"`
	Bookmarked bool      `json:"bookmarked"`
	Scheduled  bool      `json:"scheduled"`
}

// EngagementReader performs the read-only existence checks. None of them lock anything.
type EngagementReader interface {
	ArticleExists(ctx context.Context, slug string) (bool, error)
	FindVote(ctx context.Context, userID int64, slug string) (Direction, bool, error)
	HasMembership(ctx context.Context, kind Membership, userID int64, slug string) (bool, error)
}

// EngagementTx is a unit of work. Writes made through it are all committed or all discarded.
type EngagementTx interface {
	EngagementReader

	// LockArticleCounters locks the article row until the end of the unit of work and returns
	// its counters. It fails with a NotFoundError if the article does not exist.
	LockArticleCounters(ctx context.Context, slug string) (VoteCounters, error)
	// LockVote returns the current vote of the user on the article, locking its row if any.
	LockVote(ctx context.Context, userID int64, slug string) (Direction, bool, error)
	InsertVote(ctx context.Context, userID int64, slug string, d Direction) error
	UpdateVote(ctx context.Context, userID int64, slug string, d Direction) error
	// AddToCounters shifts the article counters by the given amounts and returns the new values.
	AddToCounters(ctx context.Context, slug string, up int64, down int64) (VoteCounters, error)
	// AddMembership and RemoveMembership report whether a row was actually inserted or deleted.
	AddMembership(ctx context.Context, kind Membership, userID int64, slug string) (bool, error)
	RemoveMembership(ctx context.Context, kind Membership, userID int64, slug string) (bool, error)
}

// EngagementStore hands out units of work.
type EngagementStore interface {
	EngagementReader

	// RunInTx calls fn with a fresh unit of work. The unit of work is committed if fn returns
	// nil and rolled back otherwise, including when fn panics.
	RunInTx(ctx context.Context, fn func(tx EngagementTx) error) error
}

// ApplyVote records a vote of userID on the article within tx, keeping the article counters
// equal to the number of votes in each direction.
func ApplyVote(ctx context.Context, tx EngagementTx, userID int64, slug string, d Direction) (*VoteResult, error) {
	if !d.Valid() {
		return nil, BadRequest(fmt.Errorf("invalid vote direction %d", d))
	}

	counters, err := tx.LockArticleCounters(ctx, slug)
	if err != nil {
		return nil, err
	}

	previous, voted, err := tx.LockVote(ctx, userID, slug)
	if err != nil {
		return nil, err
	}

	up, down := d.deltas()
	outcome := VoteCreated

	switch {
	case !voted:
		err = tx.InsertVote(ctx, userID, slug, d)
	case previous == d:
		return &VoteResult{State: Voted(d), Counters: counters, Outcome: VoteUnchanged}, nil
	default:
		// a decrement only happens on the counter the previous vote incremented
		prevUp, prevDown := previous.deltas()
		up, down = up-prevUp, down-prevDown
		outcome = VoteSwitched
		err = tx.UpdateVote(ctx, userID, slug, d)
	}
	if err != nil {
		return nil, err
	}

	counters, err = tx.AddToCounters(ctx, slug, up, down)
	if err != nil {
		return nil, err
	}

	return &VoteResult{State: Voted(d), Counters: counters, Outcome: outcome}, nil
}

// ApplyMembership adds the article to, or removes it from, one of the user's sets. It returns
// whether the set changed.
func ApplyMembership(ctx context.Context, tx EngagementTx, kind Membership, userID int64, slug string, present bool) (bool, error) {
	exists, err := tx.ArticleExists(ctx, slug)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, NotFound("article", slug)
	}

	if present {
		return tx.AddMembership(ctx, kind, userID, slug)
	}

	return tx.RemoveMembership(ctx, kind, userID, slug)
}

// A Tracker keeps the engagement of users with articles consistent. All its operations are
// idempotent, so a request handler can call them again after a ConflictRetryError.
type Tracker struct {
	store  EngagementStore
	logger zerolog.Logger
}

func NewTracker(store EngagementStore, logger zerolog.Logger) *Tracker {
	return &Tracker{store: store, logger: logger}
}

// CastVote votes for the article in direction d on behalf of user.
func (t *Tracker) CastVote(ctx context.Context, user *User, slug string, d Direction) (*VoteResult, error) {
	if user == nil {
		return nil, Unauthorized("vote " + slug)
	}

	var res *VoteResult
	err := t.store.RunInTx(ctx, func(tx EngagementTx) error {
		var err error
		res, err = ApplyVote(ctx, tx, user.ID, slug, d)
		return err
	})
	if err != nil {
		recordEngagementError("vote", err)
		return nil, err
	}

	engagementTransitions.WithLabelValues("vote", string(res.Outcome)).Inc()
	t.logger.Debug().
		Int64("user_id", user.ID).
		Str("slug", slug).
		Str("direction", d.String()).
		Str("outcome", string(res.Outcome)).
		Int64("upvotes", res.Counters.Upvotes).
		Int64("downvotes", res.Counters.Downvotes).
		Msg("vote")

	return res, nil
}

// SetBookmark makes the bookmark of the article by user present or absent and returns whether
// the article is bookmarked afterwards.
func (t *Tracker) SetBookmark(ctx context.Context, user *User, slug string, present bool) (bool, error) {
	return t.setMembership(ctx, Bookmarks, user, slug, present)
}

// SetReadLater does the same as SetBookmark on the read later list, returning whether the
// article is scheduled afterwards.
func (t *Tracker) SetReadLater(ctx context.Context, user *User, slug string, present bool) (bool, error) {
	return t.setMembership(ctx, ReadLater, user, slug, present)
}

func (t *Tracker) setMembership(ctx context.Context, kind Membership, user *User, slug string, present bool) (bool, error) {
	if user == nil {
		return false, Unauthorized(kind.String() + " " + slug)
	}

	var changed bool
	err := t.store.RunInTx(ctx, func(tx EngagementTx) error {
		var err error
		changed, err = ApplyMembership(ctx, tx, kind, user.ID, slug, present)
		return err
	})
	if err != nil {
		recordEngagementError(kind.String(), err)
		return false, err
	}

	outcome := "unchanged"
	if changed && present {
		outcome = "added"
	} else if changed {
		outcome = "removed"
	}
	engagementTransitions.WithLabelValues(kind.String(), outcome).Inc()
	t.logger.Debug().
		Int64("user_id", user.ID).
		Str("slug", slug).
		Str("list", kind.String()).
		Str("outcome", outcome).
		Msg("membership")

	return present, nil
}

// GetEngagement returns the engagement of user with the article.
func (t *Tracker) GetEngagement(ctx context.Context, user *User, slug string) (*Engagement, error) {
	if user == nil {
		return nil, Unauthorized("engagement " + slug)
	}

	exists, err := t.store.ArticleExists(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, NotFound("article", slug)
	}

	e := &Engagement{}
	d, voted, err := t.store.FindVote(ctx, user.ID, slug)
	if err != nil {
		return nil, err
	}
	if voted {
		e.Vote = Voted(d)
	}

	e.Bookmarked, err = t.store.HasMembership(ctx, Bookmarks, user.ID, slug)
	if err != nil {
		return nil, err
	}

	e.Scheduled, err = t.store.HasMembership(ctx, ReadLater, user.ID, slug)
	if err != nil {
		return nil, err
	}

	return e, nil
}
