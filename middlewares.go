package bloggy

import (
	"context"
	"net/http"
	"time"

	"github.com/bloggyhq/bloggy/authentication"
	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// middleware is a convenient type for declaring middlewares.
type middleware func(httprouter.Handle) httprouter.Handle

// httpMiddleware is a convenient type for declaring middlewares.
type httpMiddleware func(http.Handler) http.Handler

// contextKey is a type for storing values in each request context.
type contextKey string

// String returns a stringified context key.
func (k contextKey) String() string { return string(k) }

// ctxKeySession is the context key for storing the current user session in a context
var ctxKeySession = contextKey("session")

// ctxKeyUser is the context key for storing the current user record in a context
var ctxKeyUser = contextKey("user")

// ctxSession is a helper func to fetch the user session from the context.
func ctxSession(ctx context.Context) *authentication.User {
	v, _ := ctx.Value(ctxKeySession).(*authentication.User)
	return v
}

// ctxUser is a helper func to fetch the user record from the context.
func ctxUser(ctx context.Context) *User {
	v, _ := ctx.Value(ctxKeyUser).(*User)
	return v
}

// withMiddlewares is a helper function to declare routes with middlewares more easily.
// The caller declares its routes in the body on the f function, calling f's argument on its
// httprouter.Handle to wrap them.
func withMiddlewares(f func(middleware), middlewares ...middleware) {
	wrapper := func(handle httprouter.Handle) httprouter.Handle {
		h := handle
		for i := len(middlewares) - 1; i >= 0; i-- {
			m := middlewares[i]
			h = m(h)
		}
		return h
	}

	f(wrapper)
}

// withHTTPMiddlewares wraps h, the first middleware being the outermost one.
func withHTTPMiddlewares(h http.Handler, middlewares ...httpMiddleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}

	return h
}

// requestIDMiddleware tags each request with an id, taken from the X-Request-ID header when the
// client sent one, and stores a logger carrying it in the request context.
func (s *Server) requestIDMiddleware() httpMiddleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if _, err := uuid.Parse(id); err != nil {
				id = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", id)

			logger := s.Logger.With().Str("request_id", id).Logger()
			next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
		})
	}
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// accessLogMiddleware logs a line for each request, once it is served.
func (s *Server) accessLogMiddleware() httpMiddleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			zerolog.Ctx(r.Context()).Info().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", rec.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

func instrumentMiddleware() httpMiddleware {
	return func(next http.Handler) http.Handler {
		return promhttp.InstrumentHandlerCounter(httpRequests, next)
	}
}

// loadSessionMiddleware fetches the user session data through the AuthService
// and stores it in the request context. If there's no session it will assign nil in
// the context to thes session key.
func (s *Server) loadSessionMiddleware() middleware {
	return func(next httprouter.Handle) httprouter.Handle {
		return httprouter.Handle(func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
			userData, err := s.authService.CurrentUser(r)
			if err != nil {
				// an undecodable cookie is treated as no session at all
				zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Failed to fetch session data")
				userData = nil
			}

			ctx := context.WithValue(r.Context(), ctxKeySession, userData)
			next(w, r.WithContext(ctx), p)
		})
	}
}

// loadUserMiddleware fetches the user of the session from the database and stores it in the request
// context. If there's an error it will interrupt the middleware chain, returning an http error.
//
// Without a session, or with a session whose user is gone, the request goes on anonymously.
func (s *Server) loadUserMiddleware() middleware {
	return func(next httprouter.Handle) httprouter.Handle {
		return httprouter.Handle(func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
			session := ctxSession(r.Context())
			if session == nil {
				next(w, r, p)
				return
			}

			user, err := s.store.FindUserByLogin(r.Context(), session.Login)
			if err != nil {
				zerolog.Ctx(r.Context()).Error().Err(err).Msg("Failed to fetch user from db")
				http.Error(w, "Failed to fetch user from database", http.StatusInternalServerError)
				return
			}
			if user == nil {
				next(w, r, p)
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUser, user)
			next(w, r.WithContext(ctx), p)
		})
	}
}

// requireUserMiddleware halts the chain with an unauthorized error when there is no user.
func (s *Server) requireUserMiddleware() middleware {
	return func(next httprouter.Handle) httprouter.Handle {
		return httprouter.Handle(func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
			if ctxUser(r.Context()) == nil {
				s.fail(w, r, Unauthorized(r.URL.Path))
				return
			}

			next(w, r, p)
		})
	}
}

// loginRequiredMiddleware sends anonymous visitors to the login page.
func (s *Server) loginRequiredMiddleware() middleware {
	return func(next httprouter.Handle) httprouter.Handle {
		return httprouter.Handle(func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
			if ctxUser(r.Context()) == nil {
				http.Redirect(w, r, "/oauth/start", http.StatusFound)
				return
			}

			next(w, r, p)
		})
	}
}

// rateLimitMiddleware limits engagement requests per user, or per address for anonymous ones.
func (s *Server) rateLimitMiddleware() middleware {
	return func(next httprouter.Handle) httprouter.Handle {
		return httprouter.Handle(func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
			key := "addr:" + clientAddr(r)
			if u := ctxUser(r.Context()); u != nil {
				key = "user:" + u.Name
			}

			if !s.limiter.allow(key) {
				zerolog.Ctx(r.Context()).Warn().Str("key", key).Msg("Rate limit exceeded")
				http.Error(w, "Too many requests", http.StatusTooManyRequests)
				return
			}

			next(w, r, p)
		})
	}
}
