package bloggy

import "context"

// Store is the storage layer. Lookups of a single record by key fail with a NotFoundError
// when there is none, except FindUserByLogin which returns a nil user.
type Store interface {
	EngagementStore

	Connect() error

	ListArticles(ctx context.Context, page int, perPage int) ([]*Article, error)
	CountArticles(ctx context.Context) (int64, error)
	SearchArticles(ctx context.Context, query string, limit int) ([]*Article, error)
	ListArticlesByCategory(ctx context.Context, category string) ([]*Article, error)
	ListArticlesByAuthor(ctx context.Context, username string) ([]*Article, error)
	ListRelatedArticles(ctx context.Context, article *Article, limit int) ([]*Article, error)
	FindArticle(ctx context.Context, slug string) (*Article, error)
	InsertArticle(ctx context.Context, article *Article) error

	ListCategories(ctx context.Context) ([]*Category, error)
	FindCategory(ctx context.Context, name string) (*Category, error)
	InsertCategory(ctx context.Context, category *Category) error

	ListAuthors(ctx context.Context) ([]*Author, error)
	FindAuthor(ctx context.Context, username string) (*Author, error)
	InsertAuthor(ctx context.Context, author *Author) error

	ListComments(ctx context.Context, slug string, page int, perPage int) ([]*Comment, error)
	CountComments(ctx context.Context, slug string) (int64, error)
	InsertComment(ctx context.Context, comment *Comment) error
	// DeleteComment deletes the comment only if it belongs to the article and was written by userID.
	DeleteComment(ctx context.Context, slug string, commentID int64, userID int64) error

	FindUserByLogin(ctx context.Context, login string) (*User, error)
	CreateOrUpdateUser(ctx context.Context, login string, email string, avatarURL string) (int64, error)
	UpdateUser(ctx context.Context, user *User) error

	ListTestimonials(ctx context.Context, page int, perPage int) ([]*Testimonial, error)
	CountTestimonials(ctx context.Context) (int64, error)
	InsertTestimonial(ctx context.Context, testimonial *Testimonial) error

	// Subscribe registers the email and returns false if it already was.
	Subscribe(ctx context.Context, email string) (bool, error)
	InsertNewsletter(ctx context.Context, newsletter *Newsletter) error
	InsertContactMessage(ctx context.Context, message *ContactMessage) error

	ListMembership(ctx context.Context, kind Membership, userID int64) ([]*SavedArticle, error)
	ListVotedArticles(ctx context.Context, userID int64, d Direction) ([]*SavedArticle, error)
}
