package authentication

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	SessionKey = "bloggy-session"

	userValue  = "user"
	stateValue = "state"
)

// ErrStateMismatch is returned when the state given back by the provider isn't the one sent
// when starting the authentication.
var ErrStateMismatch = errors.New("no state match; possible csrf OR cookies not enabled")

// Session wraps the cookie session shared by all providers.
type Session struct {
	store sessions.Store
}

func NewSession(store sessions.Store) *Session {
	return &Session{store: store}
}

// CurrentUser returns the user stored in the session, or nil if there is none.
func (s *Session) CurrentUser(req *http.Request) (*User, error) {
	session, err := s.store.Get(req, SessionKey)
	if err != nil {
		return nil, err
	}

	b, ok := session.Values[userValue].([]byte)
	if !ok {
		return nil, nil
	}

	var u User
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, err
	}

	return &u, nil
}

// SaveUser stores u in the session.
func (s *Session) SaveUser(res http.ResponseWriter, req *http.Request, u *User) error {
	session, err := s.store.Get(req, SessionKey)
	if err != nil {
		return err
	}

	b, err := json.Marshal(u)
	if err != nil {
		return err
	}

	session.Values[userValue] = b
	delete(session.Values, stateValue)

	return session.Save(req, res)
}

// NewState generates a random state, stores it in the session and returns it.
func (s *Session) NewState(res http.ResponseWriter, req *http.Request) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	state := base64.URLEncoding.EncodeToString(b)

	session, err := s.store.Get(req, SessionKey)
	if err != nil {
		return "", err
	}
	session.Values[stateValue] = state

	if err := session.Save(req, res); err != nil {
		return "", err
	}

	return state, nil
}

// CheckState compares the state sent back by the provider with the one in the session.
func (s *Session) CheckState(req *http.Request) error {
	session, err := s.store.Get(req, SessionKey)
	if err != nil {
		return err
	}

	expected, ok := session.Values[stateValue].(string)
	if !ok || expected == "" || req.URL.Query().Get("state") != expected {
		return ErrStateMismatch
	}

	return nil
}

// Destroy expires the session cookie.
func (s *Session) Destroy(res http.ResponseWriter, req *http.Request) error {
	session, err := s.store.Get(req, SessionKey)
	if err != nil {
		return err
	}

	session.Options.MaxAge = -1
	delete(session.Values, userValue)

	return session.Save(req, res)
}
