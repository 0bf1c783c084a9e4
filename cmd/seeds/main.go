package main

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/bloggyhq/bloggy"
	"github.com/bloggyhq/bloggy/cmd"
	"github.com/bloggyhq/bloggy/slackhook"
	"github.com/rs/zerolog/log"
)

var users = []string{"ada", "grace", "linus", "ken", "barbara"}

var categories = []*bloggy.Category{
	{Name: "go", Description: "Writing Go for a living"},
	{Name: "databases", Description: "Postgres, indexes and locks"},
	{Name: "web", Description: "Servers, browsers and everything in between"},
}

var authors = []*bloggy.Author{
	{Username: "jane", Name: "Jane Doe", Description: "Backend engineer", Twitter: "https://twitter.com/janedoe"},
	{Username: "sam", Name: "Sam Roe", Description: "Database tinkerer"},
}

var testimonials = []*bloggy.Testimonial{
	{Name: "Alice", Description: "Reader since day one", Content: "The posts on locking finally made transactions click for me."},
	{Name: "Bob", Description: "Gopher", Content: "Short, precise and always with working code."},
	{Name: "Carol", Description: "SRE", Content: "I send these to every new hire."},
}

var text = `Every request that changes a counter takes a lock on the article row first. Two votes on the same article
wait for each other while votes on other articles go through untouched. The vote row itself is locked next, so a user
switching sides twice in a row never sees a stale direction. Counters are only ever moved by the difference between the
old vote and the new one. A repeated vote is a no-op and never touches the counters. Bookmarks and the reading list are
plain sets, inserting twice does nothing. Deadlocks and lock timeouts surface as conflicts and the handler tries again.
The whole operation is idempotent which makes retrying safe. Markdown bodies are rendered with goldmark and comments get
their headings flattened. Sessions live in signed cookies and users come from GitHub or Google.`

// sentences splits text into short sentences usable as titles.
func sentences() []string {
	var res []string
	for _, s := range regexp.MustCompile(`[.!?]\s+`).Split(text, -1) {
		s = strings.Join(strings.Fields(s), " ")
		if len(s) > 60 {
			if idx := strings.LastIndex(s[:60], " "); idx > 0 {
				s = s[:idx]
			}
		}
		if s != "" {
			res = append(res, strings.TrimSuffix(s, "."))
		}
	}

	return res
}

func main() {
	cfg := cmd.DefaultConfig()
	err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot read configuration")
	}
	logger := cmd.SetupLogger(cfg)
	logger.Info().Msg("Seeding database")

	ctx := context.Background()
	store, err := cmd.NewStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Cannot setup store")
	}

	publisher := bloggy.NewPublisher(store, logger)
	if cfg.SlackWebhookURL != "" {
		notifier := slackhook.New(cfg.SlackWebhookURL, cfg.SiteURL, logger.With().Str("component", "slack").Logger())
		publisher.AddArticleHook(notifier.ArticlePublished)
	}

	for _, c := range categories {
		if err := store.InsertCategory(ctx, c); err != nil {
			logger.Fatal().Err(err).Str("category", c.Name).Msg("Cannot insert category")
		}
	}
	for _, a := range authors {
		if err := store.InsertAuthor(ctx, a); err != nil {
			logger.Fatal().Err(err).Str("author", a.Username).Msg("Cannot insert author")
		}
	}
	for i, t := range testimonials {
		t.CreatedAt = time.Now().Add(-time.Duration(i) * time.Hour)
		if err := store.InsertTestimonial(ctx, t); err != nil {
			logger.Fatal().Err(err).Str("testimonial", t.Name).Msg("Cannot insert testimonial")
		}
	}

	var readers []*bloggy.User
	for _, u := range users {
		id, err := store.CreateOrUpdateUser(ctx, u, u+"@example.com", "")
		if err != nil {
			logger.Fatal().Err(err).Str("user", u).Msg("Cannot create user")
		}
		readers = append(readers, &bloggy.User{ID: id, Name: u})
	}

	tracker := bloggy.NewTracker(store, logger.With().Str("component", "tracker").Logger())
	titles := sentences()
	for i, title := range titles {
		article := bloggy.NewArticle(
			title,
			titles[(i+1)%len(titles)],
			fmt.Sprintf("## %s\n\n%s", title, text),
			categories[i%len(categories)].Name,
			authors[i%len(authors)].Username,
		)
		article.CreatedAt = time.Now().Add(-time.Duration(i*7) * time.Hour)

		if err := publisher.PublishArticle(ctx, article); err != nil {
			logger.Fatal().Err(err).Str("title", title).Msg("Cannot publish article")
		}

		for _, reader := range readers {
			d := bloggy.Up
			if rand.Intn(4) == 0 {
				d = bloggy.Down
			}
			if _, err := tracker.CastVote(ctx, reader, article.Slug, d); err != nil {
				logger.Fatal().Err(err).Str("slug", article.Slug).Msg("Cannot vote")
			}
		}

		reader := readers[i%len(readers)]
		comment := bloggy.NewComment(article.Slug, titles[(i+2)%len(titles)], reader.ID)
		if err := store.InsertComment(ctx, comment); err != nil {
			logger.Fatal().Err(err).Str("slug", article.Slug).Msg("Cannot insert comment")
		}
	}

	logger.Info().Int("articles", len(titles)).Int("users", len(readers)).Msg("Seeded")
}
