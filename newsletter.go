package bloggy

import (
	"net/mail"
	"strings"
	"time"
)

// Subscriber is an email address registered to receive newsletters.
type Subscriber struct {
	ID           int64     `db:"id"`
	Email        string    `db:"email"`
	SubscribedAt time.Time `db:"subscribed_at"`
}

type Newsletter struct {
	ID        int64     `db:"id"`
	Subject   string    `db:"subject"`
	Message   string    `db:"message"`
	CreatedAt time.Time `db:"created_at"`
}

// ContactMessage is what visitors send through the contact form.
type ContactMessage struct {
	ID      int64     `db:"id"`
	Name    string    `db:"name"`
	Email   string    `db:"email"`
	Subject string    `db:"subject"`
	Message string    `db:"message"`
	SentAt  time.Time `db:"sent_at"`
}

// NormalizeEmail trims and lowercases an email address, returning false if it isn't one.
func NormalizeEmail(email string) (string, bool) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || len(email) > 64 {
		return "", false
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", false
	}

	return email, true
}

// Validate reports every invalid field of the message at once.
func (m *ContactMessage) Validate() error {
	var invalid []string

	m.Name = strings.TrimSpace(m.Name)
	if m.Name == "" || len(m.Name) > 64 {
		invalid = append(invalid, "name")
	}

	if email, ok := NormalizeEmail(m.Email); ok {
		m.Email = email
	} else {
		invalid = append(invalid, "email")
	}

	m.Subject = strings.TrimSpace(m.Subject)
	if m.Subject == "" || len(m.Subject) > 64 {
		invalid = append(invalid, "subject")
	}

	m.Message = strings.TrimSpace(m.Message)
	if m.Message == "" || len(m.Message) > 640 {
		invalid = append(invalid, "message")
	}

	if len(invalid) > 0 {
		return UnprocessableEntity(invalid...)
	}

	return nil
}
