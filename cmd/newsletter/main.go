// Command newsletter publishes a newsletter written in a markdown file. The first line of the
// file is the subject, the rest is the message.
package main

import (
	"context"
	"flag"
	"os"
	"strings"

	"github.com/bloggyhq/bloggy"
	"github.com/bloggyhq/bloggy/cmd"
	"github.com/bloggyhq/bloggy/slackhook"
	"github.com/rs/zerolog/log"
)

func main() {
	path := flag.String("file", "", "markdown file holding the newsletter")
	dryRun := flag.Bool("dry-run", false, "print the rendered newsletter without publishing it")
	flag.Parse()

	cfg := cmd.DefaultConfig()
	err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot read configuration")
	}
	logger := cmd.SetupLogger(cfg)

	if *path == "" {
		logger.Fatal().Msg("Missing -file")
	}

	b, err := os.ReadFile(*path)
	if err != nil {
		logger.Fatal().Err(err).Str("file", *path).Msg("Cannot read newsletter")
	}

	subject, message, _ := strings.Cut(string(b), "\n")
	newsletter := &bloggy.Newsletter{
		Subject: strings.TrimSpace(strings.TrimLeft(subject, "# ")),
		Message: strings.TrimSpace(message),
	}

	if *dryRun {
		os.Stdout.WriteString(bloggy.RenderMarkdown(newsletter.Message))
		return
	}

	ctx := context.Background()
	store, err := cmd.NewStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Cannot setup store")
	}

	publisher := bloggy.NewPublisher(store, logger)
	if cfg.SlackWebhookURL != "" {
		notifier := slackhook.New(cfg.SlackWebhookURL, cfg.SiteURL, logger.With().Str("component", "slack").Logger())
		publisher.AddNewsletterHook(notifier.NewsletterPublished)
	}

	if err := publisher.PublishNewsletter(ctx, newsletter); err != nil {
		logger.Fatal().Err(err).Msg("Cannot publish newsletter")
	}
}
