package bloggy

import (
	"html/template"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

func (s *Server) HandleSettings(t *template.Template) httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		vars := s.vars(req)
		vars["Saved"] = req.URL.Query().Get("saved") == "1"

		s.render(res, req, t, "account_settings.html", vars)
	}
}

// HandleSettingsAction updates the email and newsletter preference of the current user.
// Opting in to the newsletter also subscribes the email.
func (s *Server) HandleSettingsAction(t *template.Template) httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		ctx := req.Context()

		if err := req.ParseForm(); err != nil {
			s.fail(res, req, BadRequest(err))
			return
		}

		email, ok := NormalizeEmail(req.FormValue("email"))
		if !ok {
			vars := s.vars(req)
			vars["Errors"] = []string{"email"}
			s.renderStatus(res, req, http.StatusUnprocessableEntity, t, "account_settings.html", vars)
			return
		}

		// the user from the context is shared with the templates, update a copy of it
		user := *ctxUser(ctx)
		user.Email = email
		user.Settings.ReceiveNewsletter = req.FormValue("receive_newsletter") == "on"

		if err := s.store.UpdateUser(ctx, &user); err != nil {
			s.fail(res, req, err)
			return
		}

		if user.Settings.ReceiveNewsletter {
			if _, err := s.store.Subscribe(ctx, user.Email); err != nil {
				s.fail(res, req, err)
				return
			}
		}

		http.Redirect(res, req, "/accounts/settings?saved=1", http.StatusSeeOther)
	}
}

// HandleMembershipList lists the articles of one of the lists of the current user.
func (s *Server) HandleMembershipList(t *template.Template, kind Membership) httprouter.Handle {
	title := "Saved posts"
	if kind == ReadLater {
		title = "Reading list"
	}

	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		articles, err := s.store.ListMembership(req.Context(), kind, ctxUser(req.Context()).ID)
		if err != nil {
			s.fail(res, req, err)
			return
		}

		vars := s.vars(req)
		vars["Title"] = title
		vars["Articles"] = articles
		s.render(res, req, t, "account_list.html", vars)
	}
}

func (s *Server) HandleVotedList(t *template.Template, d Direction) httprouter.Handle {
	title := "Upvoted posts"
	if d == Down {
		title = "Downvoted posts"
	}

	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		articles, err := s.store.ListVotedArticles(req.Context(), ctxUser(req.Context()).ID, d)
		if err != nil {
			s.fail(res, req, err)
			return
		}

		vars := s.vars(req)
		vars["Title"] = title
		vars["Articles"] = articles
		s.render(res, req, t, "account_list.html", vars)
	}
}
