package google_auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bloggyhq/bloggy/authentication"
	"github.com/gorilla/sessions"
	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

var Endpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.google.com/o/oauth2/auth",
	TokenURL: "https://oauth2.googleapis.com/token",
}

const UserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// profile holds the claims of the userinfo endpoint that are kept.
type profile struct {
	Subject       string `mapstructure:"sub"`
	Name          string `mapstructure:"name"`
	Email         string `mapstructure:"email"`
	EmailVerified bool   `mapstructure:"email_verified"`
	Picture       string `mapstructure:"picture"`
}

type Handler struct {
	session     *authentication.Session
	oauthConfig *oauth2.Config
	userInfoURL string
	logger      zerolog.Logger
}

type Option func(*Handler)

func WithEndpoint(endpoint oauth2.Endpoint) Option {
	return func(h *Handler) {
		h.oauthConfig.Endpoint = endpoint
	}
}

func WithUserInfoURL(u string) Option {
	return func(h *Handler) {
		h.userInfoURL = u
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
			Scopes:       []string{"openid", "email", "profile"},
		},
		userInfoURL: UserInfoURL,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(h)
	}

	return h
}

// LoadUserData reads the profile of the token owner. Google accounts have no login, the
// verified email is used instead.
func (h *Handler) LoadUserData(ctx context.Context, token *oauth2.Token) (*authentication.User, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", h.userInfoURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.oauthConfig.Client(ctx, token).Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo: unexpected status %d", resp.StatusCode)
	}

	claims := map[string]interface{}{}
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}

	var p profile
	if err := mapstructure.Decode(claims, &p); err != nil {
		return nil, fmt.Errorf("userinfo: %w", err)
	}

	if p.Email == "" || !p.EmailVerified {
		return nil, fmt.Errorf("userinfo: account %q has no verified email", p.Subject)
	}

	return &authentication.User{
		Login:     p.Email,
		Email:     p.Email,
		AvatarURL: p.Picture,
	}, nil
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

	http.Redirect(res, req, h.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusFound)
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

	u, err := h.LoadUserData(req.Context(), token)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to load user data")
		http.Error(res, "couldn't load user data from Google", http.StatusInternalServerError)
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
