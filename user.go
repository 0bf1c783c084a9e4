package bloggy

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type UserSettings struct {
	ReceiveNewsletter bool `json:"receive_newsletter,omitempty"`
}

func (us UserSettings) Value() (driver.Value, error) {
	return json.Marshal(us)
}

func (us *UserSettings) Scan(value interface{}) error {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("can't decode user settings")
	}

	return json.Unmarshal(b, us)
}

type User struct {
	ID          int64        `db:"id"`
	Name        string       `db:"name"`
	Email       string       `db:"email"`
	AvatarURL   string       `db:"avatar_url"`
	CreatedAt   time.Time    `db:"created_at"`
	Settings    UserSettings `db:"settings"`
	LastLoginAt time.Time    `db:"last_login_at"`
}
