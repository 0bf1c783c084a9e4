package bloggy

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// Direction is the side a vote was cast on. Only Up and Down are valid; the zero value is
// not a direction and never reaches storage.
type Direction int8

const (
	Up   Direction = 1
	Down Direction = -1
)

// ParseDirection reads a direction from its textual form, as found in URLs and in the votes table.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "up":
		return Up, nil
	case "down":
		return Down, nil
	}

	return 0, fmt.Errorf("unknown vote direction %q", s)
}

func (d Direction) Valid() bool {
	return d == Up || d == Down
}

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	}

	return "invalid"
}

// deltas returns how much a single vote in direction d contributes to each counter.
func (d Direction) deltas() (up int64, down int64) {
	if d == Up {
		return 1, 0
	}

	return 0, 1
}

// Value stores the direction as 'up' or 'down'.
func (d Direction) Value() (driver.Value, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("cannot store vote direction %d", d)
	}

	return d.String(), nil
}

func (d *Direction) Scan(value interface{}) error {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("can't decode vote direction from %T", value)
	}

	parsed, err := ParseDirection(s)
	if err != nil {
		return err
	}

	*d = parsed
	return nil
}

// VoteState is what a user sees of their own vote on an article: either no vote at all, or a
// vote in one direction. The zero value is the unvoted state.
type VoteState struct {
	direction Direction
}

// Unvoted is the state of a user who never voted on an article.
var Unvoted = VoteState{}

// Voted returns the state of a user who voted in direction d.
func Voted(d Direction) VoteState {
	return VoteState{direction: d}
}

// Direction returns the direction of the vote, and false if there is none.
func (s VoteState) Direction() (Direction, bool) {
	return s.direction, s.direction.Valid()
}

func (s VoteState) Upvoted() bool   { return s.direction == Up }
func (s VoteState) Downvoted() bool { return s.direction == Down }

func (s VoteState) String() string {
	if !s.direction.Valid() {
		return "none"
	}

	return s.direction.String()
}

// MarshalText lets the state be rendered as "none", "up" or "down" in JSON responses.
func (s VoteState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Vote is the row recording that a user voted on an article. There is at most one per
// (user, article) pair.
type Vote struct {
	UserID      int64     `db:"user_id"`
	ArticleSlug string    `db:"article_slug"`
	Direction   Direction `db:"direction"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}
