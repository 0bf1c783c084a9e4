package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bloggyhq/bloggy"
	"github.com/bloggyhq/bloggy/authentication"
	"github.com/bloggyhq/bloggy/authentication/fake_auth"
	"github.com/bloggyhq/bloggy/authentication/github_auth"
	"github.com/bloggyhq/bloggy/authentication/google_auth"
	"github.com/bloggyhq/bloggy/memstore"
	"github.com/bloggyhq/bloggy/pgstore"
	"github.com/gorilla/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	LogLevel           string  `json:"log_level"`
	LogFormat          string  `json:"log_format"`
	Store              string  `json:"store"`
	DatabaseName       string  `json:"database_name"`
	DatabaseUser       string  `json:"database_user"`
	DatabaseHost       string  `json:"database_host"`
	DatabasePassword   string  `json:"database_password"`
	AuthProvider       string  `json:"auth_provider"`
	GithubClientID     string  `json:"github_client_id"`
	GithubClientSecret string  `json:"github_client_secret"`
	GoogleClientID     string  `json:"google_client_id"`
	GoogleClientSecret string  `json:"google_client_secret"`
	OAuthRedirectURL   string  `json:"oauth_redirect_url"`
	ServerSecret       string  `json:"server_secret"`
	ArticlesPerPage    int     `json:"articles_per_page"`
	CommentsPerPage    int     `json:"comments_per_page"`
	LockTimeoutMS      int     `json:"lock_timeout_ms"`
	VoteRetries        int     `json:"vote_retries"`
	EngagementRate     float64 `json:"engagement_rate"`
	EngagementBurst    int     `json:"engagement_burst"`
	SlackWebhookURL    string  `json:"slack_webhook_url"`
	SiteURL            string  `json:"site_url"`
	Addr               string  `json:"addr"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:         "info",
		LogFormat:        "json",
		Store:            "postgres",
		DatabaseName:     "bloggy",
		DatabaseUser:     "postgres",
		DatabasePassword: "postgres",
		DatabaseHost:     "127.0.0.1",
		AuthProvider:     "github",
		OAuthRedirectURL: "http://localhost:8080/oauth/authorize",
		ArticlesPerPage:  5,
		CommentsPerPage:  5,
		LockTimeoutMS:    2000,
		VoteRetries:      3,
		EngagementRate:   5,
		EngagementBurst:  10,
		SiteURL:          "http://localhost:8080",
		Addr:             "localhost:8080",
	}
}

// Load reads config.json from the working directory, if any, and then the environment.
func (c *Config) Load() error {
	return c.LoadFrom("config.json")
}

// LoadFrom reads the JSON file at path, if it exists, then applies the environment overrides
// and validates the result.
func (c *Config) LoadFrom(path string) error {
	f, err := os.Open(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	if err == nil {
		defer f.Close()
		if err := json.NewDecoder(f).Decode(c); err != nil {
			return fmt.Errorf("cannot decode %s: %w", path, err)
		}
	}

	for env, dst := range map[string]*string{
		"LOG_LEVEL":            &c.LogLevel,
		"LOG_FORMAT":           &c.LogFormat,
		"STORE":                &c.Store,
		"DATABASE_NAME":        &c.DatabaseName,
		"DATABASE_USER":        &c.DatabaseUser,
		"DATABASE_HOST":        &c.DatabaseHost,
		"DATABASE_PASSWORD":    &c.DatabasePassword,
		"AUTH_PROVIDER":        &c.AuthProvider,
		"GITHUB_CLIENT_ID":     &c.GithubClientID,
		"GITHUB_CLIENT_SECRET": &c.GithubClientSecret,
		"GOOGLE_CLIENT_ID":     &c.GoogleClientID,
		"GOOGLE_CLIENT_SECRET": &c.GoogleClientSecret,
		"OAUTH_REDIRECT_URL":   &c.OAuthRedirectURL,
		"SERVER_SECRET":        &c.ServerSecret,
		"SLACK_WEBHOOK_URL":    &c.SlackWebhookURL,
		"SITE_URL":             &c.SiteURL,
		"ADDR":                 &c.Addr,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}

	for env, dst := range map[string]*int{
		"ARTICLES_PER_PAGE": &c.ArticlesPerPage,
		"COMMENTS_PER_PAGE": &c.CommentsPerPage,
		"LOCK_TIMEOUT_MS":   &c.LockTimeoutMS,
		"VOTE_RETRIES":      &c.VoteRetries,
		"ENGAGEMENT_BURST":  &c.EngagementBurst,
	} {
		if v := os.Getenv(env); v != "" {
			vi, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", env, err)
			}
			*dst = vi
		}
	}

	if v := os.Getenv("ENGAGEMENT_RATE"); v != "" {
		vf, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid ENGAGEMENT_RATE: %w", err)
		}
		c.EngagementRate = vf
	}

	return c.Validate()
}

func (c *Config) Validate() error {
	if c.ServerSecret == "" {
		return fmt.Errorf("missing config 'server secret'")
	}

	switch c.Store {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}

	switch c.AuthProvider {
	case "github":
		if c.GithubClientID == "" || c.GithubClientSecret == "" {
			return fmt.Errorf("missing config 'github client id' or 'github client secret'")
		}
	case "google":
		if c.GoogleClientID == "" || c.GoogleClientSecret == "" {
			return fmt.Errorf("missing config 'google client id' or 'google client secret'")
		}
	case "fake":
	default:
		return fmt.Errorf("unknown auth provider %q", c.AuthProvider)
	}

	if c.VoteRetries < 0 {
		return fmt.Errorf("vote retries cannot be negative")
	}

	return nil
}

// DatabaseURL is the lib/pq connection string.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"user=%v dbname=%v sslmode=disable password=%v host=%v",
		c.DatabaseUser,
		c.DatabaseName,
		c.DatabasePassword,
		c.DatabaseHost,
	)
}

func (c *Config) ServerConfig() *bloggy.ServerConfig {
	return &bloggy.ServerConfig{
		Addr:            c.Addr,
		ArticlesPerPage: c.ArticlesPerPage,
		CommentsPerPage: c.CommentsPerPage,
		VoteRetries:     c.VoteRetries,
		EngagementRate:  c.EngagementRate,
		EngagementBurst: c.EngagementBurst,
	}
}

func SetupLogger(cfg *Config) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Str("input", cfg.LogLevel).Msg("Cannot parse log level")
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogFormat == "" || cfg.LogFormat == "json" {
		return zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	output := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	return zerolog.New(output).With().Timestamp().Logger()
}

// NewStore returns the configured store, connected and, for postgres, with its schema created.
func NewStore(ctx context.Context, cfg *Config) (bloggy.Store, error) {
	if cfg.Store == "memory" {
		return memstore.New(), nil
	}

	pg := pgstore.New(cfg.DatabaseURL(), pgstore.WithLockTimeout(time.Duration(cfg.LockTimeoutMS)*time.Millisecond))
	if err := pg.Connect(); err != nil {
		return nil, fmt.Errorf("cannot connect to database: %w", err)
	}

	if err := pg.CreateSchema(ctx); err != nil {
		return nil, err
	}

	return pg, nil
}

// NewAuthService returns the configured OAuth provider, its sessions signed with the server secret.
func NewAuthService(cfg *Config, logger zerolog.Logger) authentication.AuthService {
	store := sessions.NewCookieStore([]byte(cfg.ServerSecret))
	ll := logger.With().Str("component", cfg.AuthProvider+" auth").Logger()

	switch cfg.AuthProvider {
	case "google":
		return google_auth.New(store, cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.OAuthRedirectURL, ll)
	case "fake":
		h := fake_auth.New(store, ll)
		h.SetServerURL(cfg.SiteURL)
		return h
	default:
		return github_auth.New(store, cfg.GithubClientID, cfg.GithubClientSecret, cfg.OAuthRedirectURL, ll)
	}
}
