package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bloggyhq/bloggy"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// A PGStore is responsible of interacting with the storage layer using a Postgresql database.
type PGStore struct {
	dbString    string
	db          *sqlx.DB
	lockTimeout time.Duration
}

type Option func(*PGStore)

// WithLockTimeout bounds how long an engagement transaction waits for a row lock before
// failing with a ConflictRetryError. Zero means waiting forever.
func WithLockTimeout(d time.Duration) Option {
	return func(s *PGStore) {
		s.lockTimeout = d
	}
}

// New returns a PGStore configured for a given address string, using the "user=postgres dbname=bloggy ..." format.
func New(addr string, opts ...Option) *PGStore {
	s := &PGStore{
		dbString: addr,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// NewWithDB returns a PGStore using an already opened connection. Connect must not be called on it.
func NewWithDB(db *sqlx.DB, opts ...Option) *PGStore {
	s := New("", opts...)
	s.db = db

	return s
}

// Connect establish a connection with the database using the address given at initialization.
func (s *PGStore) Connect() error {
	db, err := sqlx.Connect("postgres", s.dbString)
	if err != nil {
		return err
	}

	s.db = db

	return nil
}

// DB returns the existing connection, making it suitable to perform requests not already supported by
// the store interface. If called while not connected, it will return nil.
func (s *PGStore) DB() *sqlx.DB {
	return s.db
}

const selectArticles = "SELECT articles.*, authors.name AS author_name FROM articles JOIN authors ON articles.author_username = authors.username "

// https://www.citusdata.com/blog/2016/03/30/five-ways-to-paginate/
func (s *PGStore) ListArticles(ctx context.Context, page int, perPage int) ([]*bloggy.Article, error) {
	articles := []*bloggy.Article{}
	err := s.db.SelectContext(ctx, &articles, selectArticles+"ORDER BY articles.created_at DESC LIMIT $1 OFFSET $2", perPage, page*perPage)
	if err != nil {
		return nil, fmt.Errorf("ListArticles: %w", err)
	}

	return articles, nil
}

func (s *PGStore) CountArticles(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM articles")
	if err != nil {
		return 0, fmt.Errorf("CountArticles: %w", err)
	}

	return count, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchArticles returns the articles whose title contains query, ignoring case.
func (s *PGStore) SearchArticles(ctx context.Context, query string, limit int) ([]*bloggy.Article, error) {
	articles := []*bloggy.Article{}
	pattern := "%" + likeEscaper.Replace(query) + "%"
	err := s.db.SelectContext(ctx, &articles, selectArticles+"WHERE articles.title ILIKE $1 ORDER BY articles.created_at DESC LIMIT $2", pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("SearchArticles: %w", err)
	}

	return articles, nil
}

func (s *PGStore) ListArticlesByCategory(ctx context.Context, category string) ([]*bloggy.Article, error) {
	articles := []*bloggy.Article{}
	err := s.db.SelectContext(ctx, &articles, selectArticles+"WHERE articles.category_name = $1 ORDER BY articles.created_at DESC", category)
	if err != nil {
		return nil, fmt.Errorf("ListArticlesByCategory: %w", err)
	}

	return articles, nil
}

func (s *PGStore) ListArticlesByAuthor(ctx context.Context, username string) ([]*bloggy.Article, error) {
	articles := []*bloggy.Article{}
	err := s.db.SelectContext(ctx, &articles, selectArticles+"WHERE articles.author_username = $1 ORDER BY articles.created_at DESC", username)
	if err != nil {
		return nil, fmt.Errorf("ListArticlesByAuthor: %w", err)
	}

	return articles, nil
}

func (s *PGStore) ListRelatedArticles(ctx context.Context, article *bloggy.Article, limit int) ([]*bloggy.Article, error) {
	articles := []*bloggy.Article{}
	err := s.db.SelectContext(ctx, &articles,
		selectArticles+"WHERE articles.category_name = $1 AND articles.slug <> $2 ORDER BY articles.created_at DESC LIMIT $3",
		article.CategoryName, article.Slug, limit)
	if err != nil {
		return nil, fmt.Errorf("ListRelatedArticles: %w", err)
	}

	return articles, nil
}

func (s *PGStore) FindArticle(ctx context.Context, slug string) (*bloggy.Article, error) {
	article := bloggy.Article{}
	err := s.db.GetContext(ctx, &article, selectArticles+"WHERE articles.slug = $1", slug)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bloggy.NotFound("article", slug)
	}
	if err != nil {
		return nil, fmt.Errorf("FindArticle: %w", err)
	}

	return &article, nil
}

// InsertArticle stores a new article with zeroed vote counters, whatever the given ones are.
func (s *PGStore) InsertArticle(ctx context.Context, article *bloggy.Article) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO articles (slug, title, excerpt, content, image_url, category_name, author_username, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)",
		article.Slug, article.Title, article.Excerpt, article.Content, article.ImageURL,
		article.CategoryName, article.AuthorUsername, article.CreatedAt, article.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("InsertArticle: %w", err)
	}

	return nil
}

const selectCategories = "SELECT categories.*, COUNT(articles.slug) AS article_count FROM categories LEFT JOIN articles ON articles.category_name = categories.name "

func (s *PGStore) ListCategories(ctx context.Context) ([]*bloggy.Category, error) {
	categories := []*bloggy.Category{}
	err := s.db.SelectContext(ctx, &categories, selectCategories+"GROUP BY categories.name ORDER BY categories.name")
	if err != nil {
		return nil, fmt.Errorf("ListCategories: %w", err)
	}

	return categories, nil
}

func (s *PGStore) FindCategory(ctx context.Context, name string) (*bloggy.Category, error) {
	category := bloggy.Category{}
	err := s.db.GetContext(ctx, &category, selectCategories+"WHERE categories.name = $1 GROUP BY categories.name", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bloggy.NotFound("category", name)
	}
	if err != nil {
		return nil, fmt.Errorf("FindCategory: %w", err)
	}

	return &category, nil
}

func (s *PGStore) InsertCategory(ctx context.Context, category *bloggy.Category) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO categories (name, description, image_url, created_at) VALUES ($1, $2, $3, $4)",
		category.Name, category.Description, category.ImageURL, category.CreatedAt)
	if err != nil {
		return fmt.Errorf("InsertCategory: %w", err)
	}

	return nil
}

const selectAuthors = "SELECT authors.*, COUNT(articles.slug) AS article_count FROM authors LEFT JOIN articles ON articles.author_username = authors.username "

func (s *PGStore) ListAuthors(ctx context.Context) ([]*bloggy.Author, error) {
	authors := []*bloggy.Author{}
	err := s.db.SelectContext(ctx, &authors, selectAuthors+"GROUP BY authors.username ORDER BY authors.username")
	if err != nil {
		return nil, fmt.Errorf("ListAuthors: %w", err)
	}

	return authors, nil
}

func (s *PGStore) FindAuthor(ctx context.Context, username string) (*bloggy.Author, error) {
	author := bloggy.Author{}
	err := s.db.GetContext(ctx, &author, selectAuthors+"WHERE authors.username = $1 GROUP BY authors.username", username)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bloggy.NotFound("author", username)
	}
	if err != nil {
		return nil, fmt.Errorf("FindAuthor: %w", err)
	}

	return &author, nil
}

func (s *PGStore) InsertAuthor(ctx context.Context, author *bloggy.Author) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO authors (username, name, description, image_url, facebook, instagram, twitter) VALUES ($1, $2, $3, $4, $5, $6, $7)",
		author.Username, author.Name, author.Description, author.ImageURL, author.Facebook, author.Instagram, author.Twitter)
	if err != nil {
		return fmt.Errorf("InsertAuthor: %w", err)
	}

	return nil
}

func (s *PGStore) ListComments(ctx context.Context, slug string, page int, perPage int) ([]*bloggy.Comment, error) {
	comments := []*bloggy.Comment{}
	err := s.db.SelectContext(ctx, &comments,
		"SELECT comments.*, users.name AS author, users.avatar_url FROM comments JOIN users ON comments.user_id = users.id WHERE comments.article_slug = $1 ORDER BY comments.created_at DESC, comments.id DESC LIMIT $2 OFFSET $3",
		slug, perPage, page*perPage)
	if err != nil {
		return nil, fmt.Errorf("ListComments: %w", err)
	}

	return comments, nil
}

func (s *PGStore) CountComments(ctx context.Context, slug string) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM comments WHERE article_slug = $1", slug)
	if err != nil {
		return 0, fmt.Errorf("CountComments: %w", err)
	}

	return count, nil
}

func (s *PGStore) InsertComment(ctx context.Context, comment *bloggy.Comment) error {
	var id int64
	err := s.db.GetContext(ctx, &id, "INSERT INTO comments (article_slug, content, user_id, created_at) VALUES ($1, $2, $3, $4) RETURNING id",
		comment.ArticleSlug, comment.Content, comment.UserID, comment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("InsertComment: %w", err)
	}

	comment.ID = id

	return nil
}

func (s *PGStore) DeleteComment(ctx context.Context, slug string, commentID int64, userID int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM comments WHERE id = $1 AND article_slug = $2 AND user_id = $3", commentID, slug, userID)
	if err != nil {
		return fmt.Errorf("DeleteComment: %w", err)
	}

	deleted, err := affected(res)
	if err != nil {
		return fmt.Errorf("DeleteComment: %w", err)
	}
	if !deleted {
		return bloggy.NotFound("comment", fmt.Sprint(commentID))
	}

	return nil
}

func (s *PGStore) FindUserByLogin(ctx context.Context, name string) (*bloggy.User, error) {
	user := bloggy.User{}
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE name = $1", name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindUserByLogin: %w", err)
	}

	return &user, nil
}

func (s *PGStore) CreateOrUpdateUser(ctx context.Context, login string, email string, avatarURL string) (int64, error) {
	var id int64
	now := time.Now()
	err := s.db.GetContext(ctx, &id,
		"INSERT INTO users (name, email, avatar_url, created_at, last_login_at) VALUES ($1, $2, $3, $4, $4) ON CONFLICT (name) DO UPDATE SET last_login_at = $4, avatar_url = $3 RETURNING id",
		login, email, avatarURL, now)
	if err != nil {
		return 0, fmt.Errorf("CreateOrUpdateUser: %w", err)
	}

	return id, nil
}

func (s *PGStore) UpdateUser(ctx context.Context, user *bloggy.User) error {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET email = $2, settings = $3 WHERE id = $1", user.ID, user.Email, user.Settings)
	if err != nil {
		return fmt.Errorf("UpdateUser: %w", err)
	}

	updated, err := affected(res)
	if err != nil {
		return fmt.Errorf("UpdateUser: %w", err)
	}
	if !updated {
		return bloggy.NotFound("user", user.Name)
	}

	return nil
}

func (s *PGStore) ListTestimonials(ctx context.Context, page int, perPage int) ([]*bloggy.Testimonial, error) {
	testimonials := []*bloggy.Testimonial{}
	err := s.db.SelectContext(ctx, &testimonials, "SELECT * FROM testimonials ORDER BY created_at DESC LIMIT $1 OFFSET $2", perPage, page*perPage)
	if err != nil {
		return nil, fmt.Errorf("ListTestimonials: %w", err)
	}

	return testimonials, nil
}

func (s *PGStore) CountTestimonials(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM testimonials")
	if err != nil {
		return 0, fmt.Errorf("CountTestimonials: %w", err)
	}

	return count, nil
}

func (s *PGStore) InsertTestimonial(ctx context.Context, testimonial *bloggy.Testimonial) error {
	_, err := s.db.ExecContext(ctx, "INSERT INTO testimonials (name, image_url, description, content, created_at) VALUES ($1, $2, $3, $4, $5)",
		testimonial.Name, testimonial.ImageURL, testimonial.Description, testimonial.Content, testimonial.CreatedAt)
	if err != nil {
		return fmt.Errorf("InsertTestimonial: %w", err)
	}

	return nil
}

func (s *PGStore) Subscribe(ctx context.Context, email string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "INSERT INTO subscribers (email, subscribed_at) VALUES ($1, $2) ON CONFLICT (email) DO NOTHING", email, time.Now())
	if err != nil {
		return false, fmt.Errorf("Subscribe: %w", err)
	}

	return affected(res)
}

func (s *PGStore) InsertNewsletter(ctx context.Context, newsletter *bloggy.Newsletter) error {
	var id int64
	err := s.db.GetContext(ctx, &id, "INSERT INTO newsletters (subject, message, created_at) VALUES ($1, $2, $3) RETURNING id",
		newsletter.Subject, newsletter.Message, newsletter.CreatedAt)
	if err != nil {
		return fmt.Errorf("InsertNewsletter: %w", err)
	}

	newsletter.ID = id

	return nil
}

func (s *PGStore) InsertContactMessage(ctx context.Context, message *bloggy.ContactMessage) error {
	var id int64
	err := s.db.GetContext(ctx, &id, "INSERT INTO contact_messages (name, email, subject, message, sent_at) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		message.Name, message.Email, message.Subject, message.Message, message.SentAt)
	if err != nil {
		return fmt.Errorf("InsertContactMessage: %w", err)
	}

	message.ID = id

	return nil
}

// ListMembership returns the articles of one of the user's sets, most recently added first.
func (s *PGStore) ListMembership(ctx context.Context, kind bloggy.Membership, userID int64) ([]*bloggy.SavedArticle, error) {
	table := membershipTable(kind)
	articles := []*bloggy.SavedArticle{}
	err := s.db.SelectContext(ctx, &articles,
		"SELECT articles.*, authors.name AS author_name, "+table+".added_at FROM "+table+
			" JOIN articles ON "+table+".article_slug = articles.slug JOIN authors ON articles.author_username = authors.username"+
			" WHERE "+table+".user_id = $1 ORDER BY "+table+".added_at DESC",
		userID)
	if err != nil {
		return nil, fmt.Errorf("ListMembership: %w", err)
	}

	return articles, nil
}

// CountVotes returns how many users currently vote on the article in direction d.
func (s *PGStore) CountVotes(ctx context.Context, slug string, d bloggy.Direction) (int64, error) {
	var n int64
	err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM votes WHERE article_slug = $1 AND direction = $2", slug, d)
	if err != nil {
		return 0, fmt.Errorf("CountVotes: %w", err)
	}

	return n, nil
}

// ListVotedArticles returns the articles the user voted on in direction d, most recent vote first.
func (s *PGStore) ListVotedArticles(ctx context.Context, userID int64, d bloggy.Direction) ([]*bloggy.SavedArticle, error) {
	articles := []*bloggy.SavedArticle{}
	err := s.db.SelectContext(ctx, &articles,
		"SELECT articles.*, authors.name AS author_name, votes.updated_at AS added_at FROM votes"+
			" JOIN articles ON votes.article_slug = articles.slug JOIN authors ON articles.author_username = authors.username"+
			" WHERE votes.user_id = $1 AND votes.direction = $2 ORDER BY votes.updated_at DESC",
		userID, d)
	if err != nil {
		return nil, fmt.Errorf("ListVotedArticles: %w", err)
	}

	return articles, nil
}
