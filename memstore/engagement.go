package memstore

import (
	"context"
	"fmt"
	"time"

	"github.com/bloggyhq/bloggy"
)

func (s *MemStore) articleExists(slug string) bool {
	_, ok := s.articles[slug]
	return ok
}

func (s *MemStore) findVote(userID int64, slug string) (bloggy.Direction, bool) {
	v, ok := s.votes[pairKey{userID, slug}]
	if !ok {
		return 0, false
	}

	return v.Direction, true
}

func (s *MemStore) hasMembership(kind bloggy.Membership, userID int64, slug string) bool {
	_, ok := s.memberships[kind][pairKey{userID, slug}]
	return ok
}

func (s *MemStore) ArticleExists(ctx context.Context, slug string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.articleExists(slug), nil
}

func (s *MemStore) FindVote(ctx context.Context, userID int64, slug string) (bloggy.Direction, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.findVote(userID, slug)
	return d, ok, nil
}

func (s *MemStore) HasMembership(ctx context.Context, kind bloggy.Membership, userID int64, slug string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.hasMembership(kind, userID, slug), nil
}

// RunInTx holds the write lock while fn runs. Writes made through the unit of work are
// journaled and undone, newest first, if fn fails or panics.
func (s *MemStore) RunInTx(ctx context.Context, fn func(tx bloggy.EngagementTx) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{store: s}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
		if err != nil {
			tx.rollback()
		}
	}()

	return fn(tx)
}

// memTx runs with the store write lock held, it must not lock again.
type memTx struct {
	store *MemStore
	undo  []func()
}

func (tx *memTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *memTx) ArticleExists(ctx context.Context, slug string) (bool, error) {
	return tx.store.articleExists(slug), nil
}

func (tx *memTx) FindVote(ctx context.Context, userID int64, slug string) (bloggy.Direction, bool, error) {
	d, ok := tx.store.findVote(userID, slug)
	return d, ok, nil
}

func (tx *memTx) HasMembership(ctx context.Context, kind bloggy.Membership, userID int64, slug string) (bool, error) {
	return tx.store.hasMembership(kind, userID, slug), nil
}

func (tx *memTx) LockArticleCounters(ctx context.Context, slug string) (bloggy.VoteCounters, error) {
	a, ok := tx.store.articles[slug]
	if !ok {
		return bloggy.VoteCounters{}, bloggy.NotFound("article", slug)
	}

	return a.Counters(), nil
}

func (tx *memTx) LockVote(ctx context.Context, userID int64, slug string) (bloggy.Direction, bool, error) {
	return tx.FindVote(ctx, userID, slug)
}

func (tx *memTx) InsertVote(ctx context.Context, userID int64, slug string, d bloggy.Direction) error {
	key := pairKey{userID, slug}
	if _, ok := tx.store.votes[key]; ok {
		return fmt.Errorf("InsertVote: user %d already voted on %q", userID, slug)
	}

	now := time.Now()
	tx.store.votes[key] = &bloggy.Vote{UserID: userID, ArticleSlug: slug, Direction: d, CreatedAt: now, UpdatedAt: now}
	tx.undo = append(tx.undo, func() { delete(tx.store.votes, key) })

	return nil
}

func (tx *memTx) UpdateVote(ctx context.Context, userID int64, slug string, d bloggy.Direction) error {
	v, ok := tx.store.votes[pairKey{userID, slug}]
	if !ok {
		return fmt.Errorf("UpdateVote: %w", bloggy.NotFound("vote", slug))
	}

	previous := *v
	v.Direction = d
	v.UpdatedAt = time.Now()
	tx.undo = append(tx.undo, func() { *v = previous })

	return nil
}

func (tx *memTx) AddToCounters(ctx context.Context, slug string, up int64, down int64) (bloggy.VoteCounters, error) {
	a, ok := tx.store.articles[slug]
	if !ok {
		return bloggy.VoteCounters{}, bloggy.NotFound("article", slug)
	}
	if a.Upvotes+up < 0 || a.Downvotes+down < 0 {
		return a.Counters(), fmt.Errorf("AddToCounters: counters of %q would become negative", slug)
	}

	previous := a.Counters()
	a.Upvotes += up
	a.Downvotes += down
	tx.undo = append(tx.undo, func() { a.Upvotes, a.Downvotes = previous.Upvotes, previous.Downvotes })

	return a.Counters(), nil
}

func (tx *memTx) AddMembership(ctx context.Context, kind bloggy.Membership, userID int64, slug string) (bool, error) {
	set := tx.store.memberships[kind]
	key := pairKey{userID, slug}
	if _, ok := set[key]; ok {
		return false, nil
	}

	set[key] = time.Now()
	tx.undo = append(tx.undo, func() { delete(set, key) })

	return true, nil
}

func (tx *memTx) RemoveMembership(ctx context.Context, kind bloggy.Membership, userID int64, slug string) (bool, error) {
	set := tx.store.memberships[kind]
	key := pairKey{userID, slug}
	addedAt, ok := set[key]
	if !ok {
		return false, nil
	}

	delete(set, key)
	tx.undo = append(tx.undo, func() { set[key] = addedAt })

	return true, nil
}
