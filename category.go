package bloggy

import "time"

type Category struct {
	Name         string    `db:"name"`
	Description  string    `db:"description"`
	ImageURL     string    `db:"image_url"`
	ArticleCount int64     `db:"article_count"`
	CreatedAt    time.Time `db:"created_at"`
}

type Author struct {
	Username     string `db:"username"`
	Name         string `db:"name"`
	Description  string `db:"description"`
	ImageURL     string `db:"image_url"`
	Facebook     string `db:"facebook"`
	Instagram    string `db:"instagram"`
	Twitter      string `db:"twitter"`
	ArticleCount int64  `db:"article_count"`
}
