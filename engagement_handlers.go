package bloggy

import (
	"context"
	"html/template"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog"
)

// retryBackoff is the base delay between two attempts of a conflicting operation.
var retryBackoff = 10 * time.Millisecond

// retryOnConflict calls op until it doesn't fail with a ConflictRetryError, at most
// VoteRetries more times. Tracker operations are idempotent, so calling them again is safe.
func (s *Server) retryOnConflict(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = op()
		if err == nil || !IsConflictRetry(err) || attempt >= s.config.VoteRetries {
			return err
		}

		zerolog.Ctx(ctx).Debug().Err(err).Int("attempt", attempt+1).Msg("retrying engagement operation")
		select {
		case <-ctx.Done():
			return err
		case <-time.After(retryBackoff * time.Duration(attempt+1)):
		}
	}
}

// HandleEngagement returns the engagement of the current user with the article as JSON.
func (s *Server) HandleEngagement() httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		engagement, err := s.tracker.GetEngagement(req.Context(), ctxUser(req.Context()), params.ByName("slug"))
		if err != nil {
			s.fail(res, req, err)
			return
		}

		s.renderJSON(res, req, engagement)
	}
}

// HandleVoteAction casts the vote of the current user. htmx requests get the updated ratings,
// JSON clients the vote result and anyone else is sent back to the article.
func (s *Server) HandleVoteAction(t *template.Template) httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		ctx := req.Context()
		slug := params.ByName("slug")

		d, err := ParseDirection(params.ByName("direction"))
		if err != nil {
			s.fail(res, req, BadRequest(err))
			return
		}

		var result *VoteResult
		err = s.retryOnConflict(ctx, func() error {
			var err error
			result, err = s.tracker.CastVote(ctx, ctxUser(ctx), slug, d)
			return err
		})
		if err != nil {
			s.fail(res, req, err)
			return
		}

		switch {
		case isHTMX(req):
			vars := s.vars(req)
			vars["Slug"] = slug
			vars["Vote"] = result.State
			vars["Counters"] = result.Counters
			s.render(res, req, t, "ratings", vars)
		case wantsJSON(req):
			s.renderJSON(res, req, result)
		default:
			http.Redirect(res, req, articlePath(slug), http.StatusSeeOther)
		}
	}
}

// HandleMembershipAction makes the article present in, or absent from, one of the lists of
// the current user.
func (s *Server) HandleMembershipAction(t *template.Template, kind Membership, present bool) httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		ctx := req.Context()
		slug := params.ByName("slug")

		set := s.tracker.SetBookmark
		fragment, key := "bookmark", "Bookmarked"
		if kind == ReadLater {
			set = s.tracker.SetReadLater
			fragment, key = "schedule", "Scheduled"
		}

		var state bool
		err := s.retryOnConflict(ctx, func() error {
			var err error
			state, err = set(ctx, ctxUser(ctx), slug, present)
			return err
		})
		if err != nil {
			s.fail(res, req, err)
			return
		}

		switch {
		case isHTMX(req):
			vars := s.vars(req)
			vars["Slug"] = slug
			vars[key] = state
			s.render(res, req, t, fragment, vars)
		case wantsJSON(req):
			s.renderJSON(res, req, map[string]bool{fragmentJSONKey(kind): state})
		default:
			http.Redirect(res, req, articlePath(slug), http.StatusSeeOther)
		}
	}
}

func fragmentJSONKey(kind Membership) string {
	if kind == ReadLater {
		return "scheduled"
	}

	return "bookmarked"
}
