package bloggy

import (
	"context"
	"net/http"
	"time"

	"github.com/bloggyhq/bloggy/authentication"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type ServerConfig struct {
	Addr string
	// ArticlesPerPage and CommentsPerPage size the blog and comment pages.
	ArticlesPerPage int
	CommentsPerPage int
	// VoteRetries is how many times an engagement operation is attempted again after a conflict.
	VoteRetries int
	// EngagementRate and EngagementBurst limit engagement requests per user. A zero rate disables the limit.
	EngagementRate  float64
	EngagementBurst int
}

type Server struct {
	Logger          zerolog.Logger
	config          *ServerConfig
	store           Store
	tracker         *Tracker
	router          *httprouter.Router
	handler         http.Handler
	limiter         *limiterSet
	done            chan struct{}
	idleConnsClosed chan struct{}
	authService     authentication.AuthService
}

func NewServer(config *ServerConfig, logger zerolog.Logger, store Store, authService authentication.AuthService) *Server {
	if config.ArticlesPerPage <= 0 {
		config.ArticlesPerPage = 5
	}
	if config.CommentsPerPage <= 0 {
		config.CommentsPerPage = 5
	}
	if config.VoteRetries < 0 {
		config.VoteRetries = 0
	}

	return &Server{
		config:          config,
		store:           store,
		tracker:         NewTracker(store, logger.With().Str("component", "tracker").Logger()),
		authService:     authService,
		router:          httprouter.New(),
		limiter:         newLimiterSet(config.EngagementRate, config.EngagementBurst),
		Logger:          logger,
		done:            make(chan struct{}),
		idleConnsClosed: make(chan struct{}),
	}
}

// Tracker returns the engagement tracker used by the handlers.
func (s *Server) Tracker() *Tracker {
	return s.tracker
}

func (s *Server) Prepare() error {
	// database
	err := s.store.Connect()
	if err != nil {
		return err
	}

	t, err := parseTemplates()
	if err != nil {
		return err
	}

	// routes
	withMiddlewares(func(m middleware) {
		s.router.GET("/", m(s.HandleIndex(t)))
		s.router.POST("/newsletter", m(s.HandleSubscribe(t)))
		s.router.GET("/about", m(s.HandleStatic(t, "about.html")))
		s.router.GET("/privacy_policy", m(s.HandleStatic(t, "privacy_policy.html")))
		s.router.GET("/contact", m(s.HandleContact(t)))
		s.router.POST("/contact", m(s.HandleContactAction(t)))

		s.router.GET("/blog", m(s.HandleBlog(t)))
		s.router.GET("/blog/category/:name", m(s.HandleCategory(t)))
		s.router.GET("/blog/author/:username", m(s.HandleAuthor(t)))
		s.router.GET("/blog/article/:slug", m(s.HandleArticle(t)))
		s.router.GET("/blog/article/:slug/engagement", m(s.HandleEngagement()))
	}, s.loadSessionMiddleware(), s.loadUserMiddleware())

	withMiddlewares(func(m middleware) {
		s.router.POST("/blog/article/:slug/comments", m(s.HandleSubmitCommentAction(t)))
		s.router.DELETE("/blog/article/:slug/comments/:id", m(s.HandleDeleteCommentAction(t)))
		s.router.POST("/blog/article/:slug/comments/:id/delete", m(s.HandleDeleteCommentAction(t)))
	}, s.loadSessionMiddleware(), s.loadUserMiddleware(), s.requireUserMiddleware())

	withMiddlewares(func(m middleware) {
		s.router.POST("/blog/article/:slug/vote/:direction", m(s.HandleVoteAction(t)))
		s.router.POST("/blog/article/:slug/bookmark", m(s.HandleMembershipAction(t, Bookmarks, true)))
		s.router.DELETE("/blog/article/:slug/bookmark", m(s.HandleMembershipAction(t, Bookmarks, false)))
		s.router.POST("/blog/article/:slug/bookmark/delete", m(s.HandleMembershipAction(t, Bookmarks, false)))
		s.router.POST("/blog/article/:slug/read-later", m(s.HandleMembershipAction(t, ReadLater, true)))
		s.router.DELETE("/blog/article/:slug/read-later", m(s.HandleMembershipAction(t, ReadLater, false)))
		s.router.POST("/blog/article/:slug/read-later/delete", m(s.HandleMembershipAction(t, ReadLater, false)))
	}, s.loadSessionMiddleware(), s.loadUserMiddleware(), s.rateLimitMiddleware())

	withMiddlewares(func(m middleware) {
		s.router.GET("/accounts/settings", m(s.HandleSettings(t)))
		s.router.POST("/accounts/settings", m(s.HandleSettingsAction(t)))
		s.router.GET("/accounts/reading_list", m(s.HandleMembershipList(t, ReadLater)))
		s.router.GET("/accounts/saved_posts", m(s.HandleMembershipList(t, Bookmarks)))
		s.router.GET("/accounts/upvoted_posts", m(s.HandleVotedList(t, Up)))
		s.router.GET("/accounts/downvoted_posts", m(s.HandleVotedList(t, Down)))
	}, s.loadSessionMiddleware(), s.loadUserMiddleware(), s.loginRequiredMiddleware())

	s.router.GET("/oauth/start", s.HandleOAuthStart())
	s.router.GET("/oauth/authorize", s.HandleOAuthCallback())
	s.router.GET("/oauth/destroy", s.HandleOAuthDestroy())
	s.router.ServeFiles("/static/*filepath", staticFiles())
	s.router.Handler("GET", "/metrics", promhttp.Handler())
	s.router.MethodNotAllowed = http.HandlerFunc(func(res http.ResponseWriter, req *http.Request) {
		s.fail(res, req, MethodNotAllowed(req.Method, req.URL.Path))
	})

	s.handler = withHTTPMiddlewares(s.router,
		s.requestIDMiddleware(),
		s.accessLogMiddleware(),
		instrumentMiddleware(),
	)

	return nil
}

func (s *Server) Start() error {
	httpServer := http.Server{Addr: s.config.Addr, Handler: s}

	go func() {
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			// should probably bubble this up
			s.Logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	s.Logger.Info().Str("addr", s.config.Addr).Msg("Listening")
	<-s.done

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return err
	}
	close(s.idleConnsClosed)

	return nil
}

func (s *Server) Stop() {
	close(s.done)
	<-s.idleConnsClosed
}

func (s *Server) ServeHTTP(res http.ResponseWriter, req *http.Request) {
	if s.handler == nil {
		s.router.ServeHTTP(res, req)
		return
	}

	s.handler.ServeHTTP(res, req)
}
