package bloggy

import (
	"strings"
	"time"
	"unicode"
)

type Article struct {
	Slug           string    `db:"slug"`
	Title          string    `db:"title"`
	Excerpt        string    `db:"excerpt"`
	Content        string    `db:"content"`
	ImageURL       string    `db:"image_url"`
	Upvotes        int64     `db:"upvote_count"`
	Downvotes      int64     `db:"downvote_count"`
	CategoryName   string    `db:"category_name"`
	AuthorUsername string    `db:"author_username"`
	AuthorName     string    `db:"author_name"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// SavedArticle is an article as it appears in one of a user's lists, along with the time it was added.
type SavedArticle struct {
	Article
	AddedAt time.Time `db:"added_at"`
}

func NewArticle(title string, excerpt string, content string, category string, author string) *Article {
	now := NowFunc()
	return &Article{
		Slug:           Slugify(title),
		Title:          title,
		Excerpt:        excerpt,
		Content:        content,
		CategoryName:   category,
		AuthorUsername: author,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (a *Article) Counters() VoteCounters {
	return VoteCounters{Upvotes: a.Upvotes, Downvotes: a.Downvotes}
}

// GetScore and Age make articles rankable.
func (a *Article) GetScore() int64 {
	return a.Upvotes - a.Downvotes
}

func (a *Article) Age() time.Time {
	return a.CreatedAt
}

// Slugify turns a title into a lowercase, dash separated identifier made of ASCII letters and digits.
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}

	slug := strings.TrimSuffix(b.String(), "-")
	if len(slug) > 256 {
		slug = strings.TrimSuffix(slug[:256], "-")
	}

	return slug
}
