package bloggy

import (
	"strings"
	"time"
)

const maxCommentLength = 2048

type Comment struct {
	ID          int64     `db:"id"`
	ArticleSlug string    `db:"article_slug"`
	Content     string    `db:"content"`
	UserID      int64     `db:"user_id"`
	Author      string    `db:"author"`
	AvatarURL   string    `db:"avatar_url"`
	CreatedAt   time.Time `db:"created_at"`
}

func NewComment(articleSlug string, content string, userID int64) *Comment {
	return &Comment{
		ArticleSlug: articleSlug,
		Content:     strings.TrimSpace(content),
		UserID:      userID,
		CreatedAt:   NowFunc(),
	}
}

// Validate reports the invalid fields of the comment, if any.
func (c *Comment) Validate() error {
	if c.Content == "" || len(c.Content) > maxCommentLength {
		return UnprocessableEntity("comment")
	}

	return nil
}

// Excerpt is a short version of the comment content, for listings.
func (c *Comment) Excerpt() string {
	runes := []rune(c.Content)
	if len(runes) <= 10 {
		return c.Content
	}

	return string(runes[:10]) + "..."
}

// CanDelete tells if the given user is allowed to delete the comment.
func (c *Comment) CanDelete(u *User) bool {
	return u != nil && u.ID == c.UserID
}
