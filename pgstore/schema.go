package pgstore

import (
	"context"
	"fmt"
)

// CreateSchema creates all tables needed by the application.
// Safe to call multiple times - uses IF NOT EXISTS.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Tables lists every table of the schema, in an order suitable for truncating them.
var Tables = []string{
	"votes",
	"bookmarks",
	"read_later",
	"comments",
	"articles",
	"categories",
	"authors",
	"users",
	"testimonials",
	"subscribers",
	"newsletters",
	"contact_messages",
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id BIGSERIAL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    email TEXT NOT NULL DEFAULT '',
    avatar_url TEXT NOT NULL DEFAULT '',
    settings JSONB NOT NULL DEFAULT '{}',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_login_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS authors (
    username VARCHAR(32) PRIMARY KEY,
    name VARCHAR(64) NOT NULL,
    description VARCHAR(255) NOT NULL,
    image_url TEXT NOT NULL DEFAULT '',
    facebook VARCHAR(255) NOT NULL DEFAULT '',
    instagram VARCHAR(255) NOT NULL DEFAULT '',
    twitter VARCHAR(255) NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS categories (
    name VARCHAR(32) PRIMARY KEY,
    description VARCHAR(128) NOT NULL,
    image_url TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS articles (
    slug VARCHAR(256) PRIMARY KEY,
    title VARCHAR(256) NOT NULL,
    excerpt VARCHAR(512) NOT NULL,
    content TEXT NOT NULL,
    image_url TEXT NOT NULL DEFAULT '',
    upvote_count BIGINT NOT NULL DEFAULT 0 CHECK (upvote_count >= 0),
    downvote_count BIGINT NOT NULL DEFAULT 0 CHECK (downvote_count >= 0),
    category_name VARCHAR(32) NOT NULL REFERENCES categories(name) ON DELETE CASCADE,
    author_username VARCHAR(32) NOT NULL REFERENCES authors(username) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_articles_created_at ON articles(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category_name);
CREATE INDEX IF NOT EXISTS idx_articles_author ON articles(author_username);

CREATE TABLE IF NOT EXISTS comments (
    id BIGSERIAL PRIMARY KEY,
    article_slug VARCHAR(256) NOT NULL REFERENCES articles(slug) ON DELETE CASCADE,
    content VARCHAR(2048) NOT NULL,
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_comments_article ON comments(article_slug, created_at DESC);

CREATE TABLE IF NOT EXISTS votes (
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    article_slug VARCHAR(256) NOT NULL REFERENCES articles(slug) ON DELETE CASCADE,
    direction VARCHAR(4) NOT NULL CHECK (direction IN ('up', 'down')),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, article_slug)
);

CREATE TABLE IF NOT EXISTS bookmarks (
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    article_slug VARCHAR(256) NOT NULL REFERENCES articles(slug) ON DELETE CASCADE,
    added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, article_slug)
);

CREATE TABLE IF NOT EXISTS read_later (
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    article_slug VARCHAR(256) NOT NULL REFERENCES articles(slug) ON DELETE CASCADE,
    added_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (user_id, article_slug)
);

CREATE TABLE IF NOT EXISTS testimonials (
    name VARCHAR(32) PRIMARY KEY,
    image_url TEXT NOT NULL DEFAULT '',
    description VARCHAR(128) NOT NULL,
    content VARCHAR(200) NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS subscribers (
    id BIGSERIAL PRIMARY KEY,
    email VARCHAR(64) NOT NULL UNIQUE,
    subscribed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS newsletters (
    id BIGSERIAL PRIMARY KEY,
    subject VARCHAR(255) NOT NULL,
    message TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS contact_messages (
    id BIGSERIAL PRIMARY KEY,
    name VARCHAR(64) NOT NULL,
    email VARCHAR(64) NOT NULL,
    subject VARCHAR(64) NOT NULL,
    message VARCHAR(640) NOT NULL,
    sent_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
