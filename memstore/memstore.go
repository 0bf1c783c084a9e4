// Package memstore keeps everything in memory. It serves local runs without a database and
// the handler tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bloggyhq/bloggy"
)

type pairKey struct {
	userID int64
	slug   string
}

// MemStore stores records in maps guarded by a single RWMutex. Units of work hold the write
// lock from start to end, so they never interleave.
type MemStore struct {
	mu sync.RWMutex

	articles     map[string]*bloggy.Article
	categories   map[string]*bloggy.Category
	authors      map[string]*bloggy.Author
	comments     []*bloggy.Comment
	users        map[int64]*bloggy.User
	userIDs      map[string]int64
	testimonials []*bloggy.Testimonial
	subscribers  map[string]*bloggy.Subscriber
	newsletters  []*bloggy.Newsletter
	contacts     []*bloggy.ContactMessage
	votes        map[pairKey]*bloggy.Vote
	memberships  map[bloggy.Membership]map[pairKey]time.Time

	lastID int64
}

// New returns an empty MemStore.
func New() *MemStore {
	return &MemStore{
		articles:    map[string]*bloggy.Article{},
		categories:  map[string]*bloggy.Category{},
		authors:     map[string]*bloggy.Author{},
		users:       map[int64]*bloggy.User{},
		userIDs:     map[string]int64{},
		subscribers: map[string]*bloggy.Subscriber{},
		votes:       map[pairKey]*bloggy.Vote{},
		memberships: map[bloggy.Membership]map[pairKey]time.Time{
			bloggy.Bookmarks: {},
			bloggy.ReadLater: {},
		},
	}
}

// Connect does nothing, there is nothing to connect to.
func (s *MemStore) Connect() error {
	return nil
}

func (s *MemStore) nextID() int64 {
	s.lastID++
	return s.lastID
}

func (s *MemStore) withAuthor(a *bloggy.Article) *bloggy.Article {
	cp := *a
	if author, ok := s.authors[a.AuthorUsername]; ok {
		cp.AuthorName = author.Name
	}

	return &cp
}

// newestFirst sorts articles by creation date, newest first, breaking ties with slugs.
func newestFirst(articles []*bloggy.Article) {
	sort.Slice(articles, func(i, j int) bool {
		if articles[i].CreatedAt.Equal(articles[j].CreatedAt) {
			return articles[i].Slug < articles[j].Slug
		}
		return articles[i].CreatedAt.After(articles[j].CreatedAt)
	})
}

func (s *MemStore) filterArticles(keep func(a *bloggy.Article) bool) []*bloggy.Article {
	articles := []*bloggy.Article{}
	for _, a := range s.articles {
		if keep(a) {
			articles = append(articles, s.withAuthor(a))
		}
	}
	newestFirst(articles)

	return articles
}

func paginate(n int, page int, perPage int) (int, int) {
	start := page * perPage
	if start > n || start < 0 {
		start = n
	}
	end := start + perPage
	if end > n {
		end = n
	}

	return start, end
}

func (s *MemStore) ListArticles(ctx context.Context, page int, perPage int) ([]*bloggy.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	articles := s.filterArticles(func(*bloggy.Article) bool { return true })
	start, end := paginate(len(articles), page, perPage)

	return articles[start:end], nil
}

func (s *MemStore) CountArticles(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.articles)), nil
}

func (s *MemStore) SearchArticles(ctx context.Context, query string, limit int) ([]*bloggy.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query = strings.ToLower(query)
	articles := s.filterArticles(func(a *bloggy.Article) bool {
		return strings.Contains(strings.ToLower(a.Title), query)
	})
	if len(articles) > limit {
		articles = articles[:limit]
	}

	return articles, nil
}

func (s *MemStore) ListArticlesByCategory(ctx context.Context, category string) ([]*bloggy.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterArticles(func(a *bloggy.Article) bool { return a.CategoryName == category }), nil
}

func (s *MemStore) ListArticlesByAuthor(ctx context.Context, username string) ([]*bloggy.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterArticles(func(a *bloggy.Article) bool { return a.AuthorUsername == username }), nil
}

func (s *MemStore) ListRelatedArticles(ctx context.Context, article *bloggy.Article, limit int) ([]*bloggy.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	articles := s.filterArticles(func(a *bloggy.Article) bool {
		return a.CategoryName == article.CategoryName && a.Slug != article.Slug
	})
	if len(articles) > limit {
		articles = articles[:limit]
	}

	return articles, nil
}

func (s *MemStore) FindArticle(ctx context.Context, slug string) (*bloggy.Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.articles[slug]
	if !ok {
		return nil, bloggy.NotFound("article", slug)
	}

	return s.withAuthor(a), nil
}

func (s *MemStore) InsertArticle(ctx context.Context, article *bloggy.Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.articles[article.Slug]; ok {
		return fmt.Errorf("InsertArticle: duplicate slug %q", article.Slug)
	}
	if _, ok := s.categories[article.CategoryName]; !ok {
		return fmt.Errorf("InsertArticle: %w", bloggy.NotFound("category", article.CategoryName))
	}
	if _, ok := s.authors[article.AuthorUsername]; !ok {
		return fmt.Errorf("InsertArticle: %w", bloggy.NotFound("author", article.AuthorUsername))
	}

	cp := *article
	cp.Upvotes, cp.Downvotes = 0, 0
	s.articles[article.Slug] = &cp

	return nil
}

func (s *MemStore) countArticles(keep func(a *bloggy.Article) bool) int64 {
	var n int64
	for _, a := range s.articles {
		if keep(a) {
			n++
		}
	}

	return n
}

func (s *MemStore) category(c *bloggy.Category) *bloggy.Category {
	cp := *c
	cp.ArticleCount = s.countArticles(func(a *bloggy.Article) bool { return a.CategoryName == c.Name })

	return &cp
}

func (s *MemStore) ListCategories(ctx context.Context) ([]*bloggy.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	categories := []*bloggy.Category{}
	for _, c := range s.categories {
		categories = append(categories, s.category(c))
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })

	return categories, nil
}

func (s *MemStore) FindCategory(ctx context.Context, name string) (*bloggy.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[name]
	if !ok {
		return nil, bloggy.NotFound("category", name)
	}

	return s.category(c), nil
}

func (s *MemStore) InsertCategory(ctx context.Context, category *bloggy.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[category.Name]; ok {
		return fmt.Errorf("InsertCategory: duplicate name %q", category.Name)
	}

	cp := *category
	s.categories[category.Name] = &cp

	return nil
}

func (s *MemStore) author(a *bloggy.Author) *bloggy.Author {
	cp := *a
	cp.ArticleCount = s.countArticles(func(art *bloggy.Article) bool { return art.AuthorUsername == a.Username })

	return &cp
}

func (s *MemStore) ListAuthors(ctx context.Context) ([]*bloggy.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	authors := []*bloggy.Author{}
	for _, a := range s.authors {
		authors = append(authors, s.author(a))
	}
	sort.Slice(authors, func(i, j int) bool { return authors[i].Username < authors[j].Username })

	return authors, nil
}

func (s *MemStore) FindAuthor(ctx context.Context, username string) (*bloggy.Author, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.authors[username]
	if !ok {
		return nil, bloggy.NotFound("author", username)
	}

	return s.author(a), nil
}

func (s *MemStore) InsertAuthor(ctx context.Context, author *bloggy.Author) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.authors[author.Username]; ok {
		return fmt.Errorf("InsertAuthor: duplicate username %q", author.Username)
	}

	cp := *author
	s.authors[author.Username] = &cp

	return nil
}

func (s *MemStore) ListComments(ctx context.Context, slug string, page int, perPage int) ([]*bloggy.Comment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comments := []*bloggy.Comment{}
	// comments are appended in insertion order, walk them backwards for newest first
	for i := len(s.comments) - 1; i >= 0; i-- {
		c := s.comments[i]
		if c.ArticleSlug != slug {
			continue
		}
		cp := *c
		if u, ok := s.users[c.UserID]; ok {
			cp.Author = u.Name
			cp.AvatarURL = u.AvatarURL
		}
		comments = append(comments, &cp)
	}
	sort.SliceStable(comments, func(i, j int) bool { return comments[i].CreatedAt.After(comments[j].CreatedAt) })

	start, end := paginate(len(comments), page, perPage)

	return comments[start:end], nil
}

func (s *MemStore) CountComments(ctx context.Context, slug string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, c := range s.comments {
		if c.ArticleSlug == slug {
			n++
		}
	}

	return n, nil
}

func (s *MemStore) InsertComment(ctx context.Context, comment *bloggy.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.articles[comment.ArticleSlug]; !ok {
		return fmt.Errorf("InsertComment: %w", bloggy.NotFound("article", comment.ArticleSlug))
	}

	comment.ID = s.nextID()
	cp := *comment
	s.comments = append(s.comments, &cp)

	return nil
}

func (s *MemStore) DeleteComment(ctx context.Context, slug string, commentID int64, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range s.comments {
		if c.ID == commentID && c.ArticleSlug == slug && c.UserID == userID {
			s.comments = append(s.comments[:i], s.comments[i+1:]...)
			return nil
		}
	}

	return bloggy.NotFound("comment", fmt.Sprint(commentID))
}

func (s *MemStore) FindUserByLogin(ctx context.Context, login string) (*bloggy.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.userIDs[login]
	if !ok {
		return nil, nil
	}

	cp := *s.users[id]
	return &cp, nil
}

func (s *MemStore) CreateOrUpdateUser(ctx context.Context, login string, email string, avatarURL string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if id, ok := s.userIDs[login]; ok {
		u := s.users[id]
		u.LastLoginAt = now
		u.AvatarURL = avatarURL
		return id, nil
	}

	id := s.nextID()
	s.users[id] = &bloggy.User{
		ID:          id,
		Name:        login,
		Email:       email,
		AvatarURL:   avatarURL,
		CreatedAt:   now,
		LastLoginAt: now,
	}
	s.userIDs[login] = id

	return id, nil
}

func (s *MemStore) UpdateUser(ctx context.Context, user *bloggy.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[user.ID]
	if !ok {
		return bloggy.NotFound("user", user.Name)
	}
	u.Email = user.Email
	u.Settings = user.Settings

	return nil
}

func (s *MemStore) ListTestimonials(ctx context.Context, page int, perPage int) ([]*bloggy.Testimonial, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	testimonials := make([]*bloggy.Testimonial, 0, len(s.testimonials))
	for _, t := range s.testimonials {
		cp := *t
		testimonials = append(testimonials, &cp)
	}
	sort.SliceStable(testimonials, func(i, j int) bool {
		return testimonials[i].CreatedAt.After(testimonials[j].CreatedAt)
	})
	start, end := paginate(len(testimonials), page, perPage)

	return testimonials[start:end], nil
}

func (s *MemStore) CountTestimonials(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.testimonials)), nil
}

func (s *MemStore) InsertTestimonial(ctx context.Context, testimonial *bloggy.Testimonial) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *testimonial
	s.testimonials = append(s.testimonials, &cp)

	return nil
}

func (s *MemStore) Subscribe(ctx context.Context, email string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscribers[email]; ok {
		return false, nil
	}
	s.subscribers[email] = &bloggy.Subscriber{ID: s.nextID(), Email: email, SubscribedAt: time.Now()}

	return true, nil
}

func (s *MemStore) InsertNewsletter(ctx context.Context, newsletter *bloggy.Newsletter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	newsletter.ID = s.nextID()
	cp := *newsletter
	s.newsletters = append(s.newsletters, &cp)

	return nil
}

func (s *MemStore) InsertContactMessage(ctx context.Context, message *bloggy.ContactMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	message.ID = s.nextID()
	cp := *message
	s.contacts = append(s.contacts, &cp)

	return nil
}

// ContactMessages returns the messages received through the contact form, oldest first.
func (s *MemStore) ContactMessages() []bloggy.ContactMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := make([]bloggy.ContactMessage, 0, len(s.contacts))
	for _, m := range s.contacts {
		messages = append(messages, *m)
	}

	return messages
}

func savedNewestFirst(articles []*bloggy.SavedArticle) {
	sort.Slice(articles, func(i, j int) bool {
		if articles[i].AddedAt.Equal(articles[j].AddedAt) {
			return articles[i].Slug < articles[j].Slug
		}
		return articles[i].AddedAt.After(articles[j].AddedAt)
	})
}

func (s *MemStore) ListMembership(ctx context.Context, kind bloggy.Membership, userID int64) ([]*bloggy.SavedArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	articles := []*bloggy.SavedArticle{}
	for key, addedAt := range s.memberships[kind] {
		if key.userID != userID {
			continue
		}
		if a, ok := s.articles[key.slug]; ok {
			articles = append(articles, &bloggy.SavedArticle{Article: *s.withAuthor(a), AddedAt: addedAt})
		}
	}
	savedNewestFirst(articles)

	return articles, nil
}

func (s *MemStore) CountVotes(ctx context.Context, slug string, d bloggy.Direction) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for key, v := range s.votes {
		if key.slug == slug && v.Direction == d {
			n++
		}
	}

	return n, nil
}

func (s *MemStore) ListVotedArticles(ctx context.Context, userID int64, d bloggy.Direction) ([]*bloggy.SavedArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	articles := []*bloggy.SavedArticle{}
	for key, v := range s.votes {
		if key.userID != userID || v.Direction != d {
			continue
		}
		if a, ok := s.articles[key.slug]; ok {
			articles = append(articles, &bloggy.SavedArticle{Article: *s.withAuthor(a), AddedAt: v.UpdatedAt})
		}
	}
	savedNewestFirst(articles)

	return articles, nil
}
