package bloggy

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
)

func articlePath(slug string) string {
	return "/blog/article/" + slug
}

// HandleBlog handles the article listing. A non empty query parameter also lists the
// articles whose title matches it.
func (s *Server) HandleBlog(t *template.Template) httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		ctx := req.Context()
		query := strings.TrimSpace(req.URL.Query().Get("query"))
		vars := s.vars(req)
		vars["Query"] = query

		if query != "" {
			results, err := s.store.SearchArticles(ctx, query, searchResults)
			if err != nil {
				s.fail(res, req, err)
				return
			}
			vars["Results"] = results

			if isHTMX(req) {
				s.render(res, req, t, "search_results", vars)
				return
			}
		}

		total, err := s.store.CountArticles(ctx)
		if err != nil {
			s.fail(res, req, err)
			return
		}

		page := NewPage(req.URL.Query().Get("page"), s.config.ArticlesPerPage, total)
		articles, err := s.store.ListArticles(ctx, page.Index(), page.PerPage)
		if err != nil {
			s.fail(res, req, err)
			return
		}
		vars["Articles"] = articles
		vars["Page"] = page

		if isHTMX(req) {
			s.render(res, req, t, "posts", vars)
			return
		}

		latest, err := s.store.ListArticles(ctx, 0, 1)
		if err != nil {
			s.fail(res, req, err)
			return
		}
		if len(latest) > 0 {
			vars["Latest"] = latest[0]
		}

		categories, err := s.store.ListCategories(ctx)
		if err != nil {
			s.fail(res, req, err)
			return
		}
		vars["Categories"] = categories

		s.render(res, req, t, "blog.html", vars)
	}
}

func (s *Server) HandleCategory(t *template.Template) httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		ctx := req.Context()

		category, err := s.store.FindCategory(ctx, params.ByName("name"))
		if err != nil {
			s.fail(res, req, err)
			return
		}

		articles, err := s.store.ListArticlesByCategory(ctx, category.Name)
		if err != nil {
			s.fail(res, req, err)
			return
		}

		vars := s.vars(req)
		vars["Category"] = category
		vars["Articles"] = articles

		s.render(res, req, t, "category.html", vars)
	}
}

func (s *Server) HandleAuthor(t *template.Template) httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		ctx := req.Context()

		author, err := s.store.FindAuthor(ctx, params.ByName("username"))
		if err != nil {
			s.fail(res, req, err)
			return
		}

		articles, err := s.store.ListArticlesByAuthor(ctx, author.Username)
		if err != nil {
			s.fail(res, req, err)
			return
		}

		vars := s.vars(req)
		vars["Author"] = author
		vars["Articles"] = articles

		s.render(res, req, t, "author.html", vars)
	}
}

// commentVars fills vars with one page of the comments of the article.
func (s *Server) commentVars(ctx context.Context, vars map[string]interface{}, slug string, rawPage string) error {
	total, err := s.store.CountComments(ctx, slug)
	if err != nil {
		return err
	}

	page := NewPage(rawPage, s.config.CommentsPerPage, total)
	comments, err := s.store.ListComments(ctx, slug, page.Index(), page.PerPage)
	if err != nil {
		return err
	}

	vars["Slug"] = slug
	vars["Comments"] = comments
	vars["CommentsPage"] = page
	vars["CommentCount"] = total
	return nil
}

// HandleArticle handles the article page. htmx requests only get the requested page of comments.
func (s *Server) HandleArticle(t *template.Template) httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		ctx := req.Context()
		slug := params.ByName("slug")

		article, err := s.store.FindArticle(ctx, slug)
		if err != nil {
			s.fail(res, req, err)
			return
		}

		vars := s.vars(req)
		vars["Article"] = article
		if err := s.commentVars(ctx, vars, article.Slug, req.URL.Query().Get("page")); err != nil {
			s.fail(res, req, err)
			return
		}

		if isHTMX(req) {
			s.render(res, req, t, "comments", vars)
			return
		}

		engagement := &Engagement{}
		if user := ctxUser(ctx); user != nil {
			engagement, err = s.tracker.GetEngagement(ctx, user, article.Slug)
			if err != nil {
				s.fail(res, req, err)
				return
			}
		}
		vars["Engagement"] = engagement
		vars["Vote"] = engagement.Vote
		vars["Counters"] = article.Counters()
		vars["Bookmarked"] = engagement.Bookmarked
		vars["Scheduled"] = engagement.Scheduled

		related, err := s.store.ListRelatedArticles(ctx, article, relatedArticles)
		if err != nil {
			s.fail(res, req, err)
			return
		}
		vars["Related"] = related

		s.render(res, req, t, "article.html", vars)
	}
}

func (s *Server) HandleSubmitCommentAction(t *template.Template) httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		ctx := req.Context()
		user := ctxUser(ctx)

		if err := req.ParseForm(); err != nil {
			s.fail(res, req, BadRequest(err))
			return
		}

		article, err := s.store.FindArticle(ctx, params.ByName("slug"))
		if err != nil {
			s.fail(res, req, err)
			return
		}

		comment := NewComment(article.Slug, req.FormValue("comment"), user.ID)
		if err := comment.Validate(); err != nil {
			s.fail(res, req, err)
			return
		}

		if err := s.store.InsertComment(ctx, comment); err != nil {
			s.fail(res, req, err)
			return
		}

		s.Logger.Info().Int64("comment_id", comment.ID).Str("slug", article.Slug).Str("user", user.Name).Msg("comment posted")
		s.respondComments(res, req, t, article.Slug)
	}
}

// HandleDeleteCommentAction deletes a comment. Only its author can do so, for anyone else the
// comment doesn't exist.
func (s *Server) HandleDeleteCommentAction(t *template.Template) httprouter.Handle {
	return func(res http.ResponseWriter, req *http.Request, params httprouter.Params) {
		ctx := req.Context()
		user := ctxUser(ctx)
		slug := params.ByName("slug")

		id, err := strconv.ParseInt(params.ByName("id"), 10, 64)
		if err != nil {
			s.fail(res, req, BadRequest(errors.New("invalid comment id")))
			return
		}

		if err := s.store.DeleteComment(ctx, slug, id, user.ID); err != nil {
			s.fail(res, req, err)
			return
		}

		s.respondComments(res, req, t, slug)
	}
}

// respondComments answers a comment action, with the first page of comments for htmx or
// by redirecting to the article otherwise.
func (s *Server) respondComments(res http.ResponseWriter, req *http.Request, t *template.Template, slug string) {
	if !isHTMX(req) {
		http.Redirect(res, req, articlePath(slug)+"#comments", http.StatusSeeOther)
		return
	}

	vars := s.vars(req)
	if err := s.commentVars(req.Context(), vars, slug, "1"); err != nil {
		s.fail(res, req, err)
		return
	}

	s.render(res, req, t, "comments", vars)
}
