package github_auth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/bloggyhq/bloggy/authentication"
	"github.com/google/go-github/github"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://github.com/login/oauth/authorize",
	TokenURL: "https://github.com/login/oauth/access_token",
}

type Handler struct {
	session     *authentication.Session
	oauthConfig *oauth2.Config
	apiBaseURL  *url.URL
	logger      zerolog.Logger
}

type Option func(*Handler)

// WithEndpoint replaces the GitHub OAuth endpoint, to authenticate against GitHub Enterprise.
func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(h *Handler) {
		h.oauthConfig.Endpoint = endpoint
	}
}

// WithAPIBaseURL replaces the base URL of the GitHub API. It must end with a slash.
func WithAPIBaseURL(u *url.URL) Option {
	return func(h *Handler) {
		h.apiBaseURL = u
	}
}

func New(sessionStore sessions.Store, clientID string, clientSecret string, redirectURL string, logger zerolog.Logger, opts ...Option) *Handler {
	h := &Handler{
		session: authentication.NewSession(sessionStore),
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     Endpoint,
			RedirectURL:  redirectURL,
			Scopes:       []string{"read:user", "user:email"},
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

// LoadUserData fetches the profile and the primary email of the user owning the token.
func (h *Handler) LoadUserData(ctx context.Context, token *oauth2.Token) (*authentication.User, error) {
	client := github.NewClient(h.oauthConfig.Client(ctx, token))
	if h.apiBaseURL != nil {
		client.BaseURL = h.apiBaseURL
	}

	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, err
	}

	u := &authentication.User{
		Login:     user.GetLogin(),
		AvatarURL: user.GetAvatarURL(),
		Email:     user.GetEmail(),
	}

	// the public email is often empty, the primary one is always there
	emails, _, err := client.Users.ListEmails(ctx, nil)
	if err != nil {
		h.logger.Warn().Err(err).Str("login", u.Login).Msg("Failed to list emails")
		return u, nil
	}
	for _, e := range emails {
		if e.GetPrimary() && e.GetVerified() {
			u.Email = e.GetEmail()
			break
		}
	}

	return u, nil
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

	http.Redirect(res, req, h.oauthConfig.AuthCodeURL(state), http.StatusFound)
}

func (h *Handler) Callback(res http.ResponseWriter, req *http.Request, beforeWriteCallback func(*authentication.User) error) {
	if err := h.session.CheckState(req); err != nil {
		h.logger.Warn().Err(err).Msg("OAuth callback rejected")
		http.Error(res, err.Error(), http.StatusBadRequest)
		return
	}

	token, err := h.oauthConfig.Exchange(req.Context(), req.URL.Query().Get("code"))
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to exchange code")
		http.Error(res, "there was an issue getting your token", http.StatusInternalServerError)
		return
	}

	if !token.Valid() {
		http.Error(res, "retrieved invalid token", http.StatusBadRequest)
		return
	}

	u, err := h.LoadUserData(req.Context(), token)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load user data")
		http.Error(res, "couldn't load user data from Github", http.StatusInternalServerError)
		return
	}

	if err := beforeWriteCallback(u); err != nil {
		h.logger.Error().Err(err).Str("login", u.Login).Msg("OAuth callback failed")
		http.Error(res, "failed to execute oauth callback", http.StatusInternalServerError)
		return
	}

	if err := h.session.SaveUser(res, req, u); err != nil {
		h.logger.Error().Err(err).Msg("Failed to save session")
		http.Error(res, "could not save session", http.StatusInternalServerError)
		return
	}

	http.Redirect(res, req, "/", http.StatusFound)
}

func (h *Handler) Destroy(res http.ResponseWriter, req *http.Request) {
	if err := h.session.Destroy(res, req); err != nil {
		h.logger.Warn().Err(err).Msg("Failed to destroy session")
	}

	http.Redirect(res, req, "/", http.StatusFound)
}
