package bloggy

import (
	"bytes"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/bloggyhq/bloggy/authentication"
	"github.com/bloggyhq/bloggy/ranking"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

const (
	// recentArticles is how many of the latest articles compete for the featured spot.
	recentArticles  = 20
	latestArticles  = 4
	relatedArticles = 3
	searchResults   = 20
)

// isHTMX tells if the request was sent by htmx, in which case only a fragment of the page is rendered.
func isHTMX(req *http.Request) bool {
	return req.Header.Get("HX-Request") == "true"
}

func wantsJSON(req *http.Request) bool {
	return strings.Contains(req.Header.Get("Accept"), "application/json")
}

// fail responds with err. Errors implementing ErrorResponder respond by themselves, any other
// error is logged and answered with an internal server error.
func (s *Server) fail(res http.ResponseWriter, req *http.Request, err error) {
	var responder ErrorResponder
	if errors.As(err, &responder) && responder.RespondError(res, req) {
		zerolog.Ctx(req.Context()).Debug().Err(err).Msg("request failed")
		return
	}

	zerolog.Ctx(req.Context()).Error().Err(err).Str("path", req.URL.Path).Msg("request failed")
	http.Error(res, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// vars returns the template variables every page needs.
func (s *Server) vars(req *http.Request) map[string]interface{} {
	return map[string]interface{}{
		"Session": ctxSession(req.Context()),
		"User":    ctxUser(req.Context()),
	}
}

func (s *Server) render(res http.ResponseWriter, req *http.Request, t *template.Template, name string, vars map[string]interface{}) {
	s.renderStatus(res, req, http.StatusOK, t, name, vars)
}

// renderStatus renders the template to a buffer first, so a failing template doesn't leave a
// half written page behind.
func (s *Server) renderStatus(res http.ResponseWriter, req *http.Request, status int, t *template.Template, name string, vars map[string]interface{}) {
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, name, vars); err != nil {
		zerolog.Ctx(req.Context()).Error().Err(err).Str("template", name).Msg("Failed to render template")
		http.Error(res, "Failed to render template", http.StatusInternalServerError)
		return
	}

	res.Header().Set("Content-Type", "text/html; charset=utf-8")
	res.WriteHeader(status)
	_, _ = buf.WriteTo(res)
}

func (s *Server) renderJSON(res http.ResponseWriter, req *http.Request, v interface{}) {
	res.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(res).Encode(v); err != nil {
		zerolog.Ctx(req.Context()).Error().Err(err).Msg("Failed to encode response")
	}
}

// HandleOAuthStart handles requests starting the OAauth authentication process.
func (s *Server) HandleOAuthStart() httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		s.authService.Start(res, req)
	}
}

// HandleOAuthCallback handles requests of the OAuth provider redirecting the user back
// to Bloggy, after successfully authenticating them on its side. The user record is created
// on the first login.
func (s *Server) HandleOAuthCallback() httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		s.authService.Callback(res, req, func(u *authentication.User) error {
			_, err := s.store.CreateOrUpdateUser(req.Context(), u.Login, u.Email, u.AvatarURL)
			return err
		})
	}
}

// HandleOAuthDestroy handles requests destroying the current session.
func (s *Server) HandleOAuthDestroy() httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		s.authService.Destroy(res, req)
	}
}

// HandleIndex handles requests for the landing page. Testimonials are shown one at a time,
// htmx requests only get the testimonial of the requested page.
func (s *Server) HandleIndex(t *template.Template) httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		ctx := req.Context()

		total, err := s.store.CountTestimonials(ctx)
		if err != nil {
			s.fail(res, req, err)
			return
		}
		page := NewPage(req.URL.Query().Get("page"), 1, total)
		testimonials, err := s.store.ListTestimonials(ctx, page.Index(), page.PerPage)
		if err != nil {
			s.fail(res, req, err)
			return
		}

		vars := s.vars(req)
		vars["Testimonials"] = testimonials
		vars["TestimonialsPage"] = page

		if isHTMX(req) {
			s.render(res, req, t, "testimonials", vars)
			return
		}

		categories, err := s.store.ListCategories(ctx)
		if err != nil {
			s.fail(res, req, err)
			return
		}

		authors, err := s.store.ListAuthors(ctx)
		if err != nil {
			s.fail(res, req, err)
			return
		}

		recent, err := s.store.ListArticles(ctx, 0, recentArticles)
		if err != nil {
			s.fail(res, req, err)
			return
		}

		vars["Categories"] = categories
		vars["Authors"] = authors
		if len(recent) > 0 {
			vars["Latest"] = recent[0]
		}
		if featured, ok := ranking.Best(recent, ranking.DefaultGravity, ranking.DefaultTimebaseInHours, NowFunc()); ok {
			vars["Featured"] = featured
		}
		if len(recent) > latestArticles {
			recent = recent[:latestArticles]
		}
		vars["Articles"] = recent

		s.render(res, req, t, "index.html", vars)
	}
}

// HandleSubscribe handles the newsletter form of the landing page.
func (s *Server) HandleSubscribe(t *template.Template) httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		if err := req.ParseForm(); err != nil {
			s.fail(res, req, BadRequest(err))
			return
		}

		email, ok := NormalizeEmail(req.FormValue("email"))
		if !ok {
			http.Error(res, "Invalid email address", http.StatusBadRequest)
			return
		}

		created, err := s.store.Subscribe(req.Context(), email)
		if err != nil {
			s.fail(res, req, err)
			return
		}

		vars := s.vars(req)
		vars["Message"] = "You're already subscribed"
		if created {
			vars["Message"] = "Congrats! You're subscribed now"
			zerolog.Ctx(req.Context()).Info().Str("email", email).Msg("new subscriber")
		}

		s.render(res, req, t, "subscribed", vars)
	}
}

// HandleStatic handles pages without any data of their own.
func (s *Server) HandleStatic(t *template.Template, name string) httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		s.render(res, req, t, name, s.vars(req))
	}
}

func (s *Server) HandleContact(t *template.Template) httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		vars := s.vars(req)
		vars["Sent"] = req.URL.Query().Get("sent") == "1"
		vars["Form"] = &ContactMessage{}

		s.render(res, req, t, "contact.html", vars)
	}
}

// HandleContactAction stores the message sent through the contact form. When some fields are
// invalid, the form is rendered again along with the list of invalid fields.
func (s *Server) HandleContactAction(t *template.Template) httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		if err := req.ParseForm(); err != nil {
			s.fail(res, req, BadRequest(err))
			return
		}

		msg := &ContactMessage{
			Name:    req.FormValue("name"),
			Email:   req.FormValue("email"),
			Subject: req.FormValue("subject"),
			Message: req.FormValue("message"),
			SentAt:  NowFunc(),
		}

		if err := msg.Validate(); err != nil {
			var invalid *UnprocessableEntityError
			if !errors.As(err, &invalid) {
				s.fail(res, req, err)
				return
			}

			vars := s.vars(req)
			vars["Form"] = msg
			vars["Errors"] = invalid.Fields()
			name := "contact.html"
			if isHTMX(req) {
				name = "contact_form"
			}
			s.renderStatus(res, req, http.StatusUnprocessableEntity, t, name, vars)
			return
		}

		if err := s.store.InsertContactMessage(req.Context(), msg); err != nil {
			s.fail(res, req, err)
			return
		}

		if isHTMX(req) {
			s.render(res, req, t, "contact_success", s.vars(req))
			return
		}

		http.Redirect(res, req, "/contact?sent=1", http.StatusSeeOther)
	}
}
