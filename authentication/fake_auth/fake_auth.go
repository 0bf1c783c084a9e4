// Package fake_auth authenticates anyone without asking anything, handing out a new user on
// each login. It serves local development and tests.
package fake_auth

import (
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/bloggyhq/bloggy/authentication"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
)

type Handler struct {
	session   *authentication.Session
	logger    zerolog.Logger
	serverUrl string

	mu      sync.Mutex
	counter int // used to return a different user for each auth
}

func New(sessionStore sessions.Store, logger zerolog.Logger) *Handler {
	return &Handler{
		session: authentication.NewSession(sessionStore),
		logger:  logger,
	}
}

func (h *Handler) SetServerURL(url string) {
	h.serverUrl = url
}

// LoadUserData returns the next fake user.
func (h *Handler) LoadUserData() *authentication.User {
	h.mu.Lock()
	h.counter++
	n := h.counter
	h.mu.Unlock()

	login := "fakeLogin" + strconv.Itoa(n)
	return &authentication.User{
		Login:     login,
		Email:     login + "@example.com",
		AvatarURL: "https://www.placecage.com/g/200/200",
	}
}

func (h *Handler) CurrentUser(req *http.Request) (*authentication.User, error) {
	return h.session.CurrentUser(req)
}

func (h *Handler) Start(res http.ResponseWriter, req *http.Request) {
	state, err := h.session.NewState(res, req)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to save state")
		http.Error(res, "cannot save cookies", http.StatusInternalServerError)
		return
	}

	http.Redirect(res, req, h.serverUrl+"/oauth/authorize?state="+url.QueryEscape(state), http.StatusFound)
}

func (h *Handler) Callback(res http.ResponseWriter, req *http.Request, beforeWriteCallback func(*authentication.User) error) {
	if err := h.session.CheckState(req); err != nil {
		http.Error(res, err.Error(), http.StatusBadRequest)
		return
	}

	u := h.LoadUserData()
	if err := beforeWriteCallback(u); err != nil {
		h.logger.Error().Err(err).Str("login", u.Login).Msg("OAuth callback failed")
		http.Error(res, "failed to execute oauth callback", http.StatusInternalServerError)
		return
	}

	if err := h.session.SaveUser(res, req, u); err != nil {
		http.Error(res, "cannot save cookies", http.StatusInternalServerError)
		return
	}

	h.logger.Debug().Str("login", u.Login).Msg("fake login")
	http.Redirect(res, req, "/", http.StatusFound)
}

func (h *Handler) Destroy(res http.ResponseWriter, req *http.Request) {
	if err := h.session.Destroy(res, req); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to destroy session")
	}

	http.Redirect(res, req, "/", http.StatusFound)
}
