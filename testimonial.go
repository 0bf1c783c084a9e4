package bloggy

import "time"

type Testimonial struct {
	Name        string    `db:"name"`
	ImageURL    string    `db:"image_url"`
	Description string    `db:"description"`
	Content     string    `db:"content"`
	CreatedAt   time.Time `db:"created_at"`
}
