// Package slackhook announces new articles and newsletters on a Slack channel through an
// incoming webhook.
package slackhook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bloggyhq/bloggy"
	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

const (
	articleColor    = "#1a5fb4"
	newsletterColor = "#26a269"
	maxPreview      = 300
)

type Notifier struct {
	webhookURL string
	siteURL    string
	client     *http.Client
	logger     zerolog.Logger
}

type Option func(*Notifier)

// WithHTTPClient replaces the client used to call the webhook, which times out after 10 seconds by default.
func WithHTTPClient(client *http.Client) Option {
	return func(n *Notifier) {
		n.client = client
	}
}

// New returns a Notifier posting to webhookURL. Links in the messages point to siteURL.
func New(webhookURL string, siteURL string, logger zerolog.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		webhookURL: webhookURL,
		siteURL:    strings.TrimSuffix(siteURL, "/"),
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(n)
	}

	return n
}

// ArticlePublished is a bloggy.ArticleHook.
func (n *Notifier) ArticlePublished(ctx context.Context, article *bloggy.Article) error {
	link := n.siteURL + "/blog/article/" + article.Slug
	msg := &slack.WebhookMessage{
		Text: fmt.Sprintf("New article: <%s|%s>", link, article.Title),
		Attachments: []slack.Attachment{{
			Color:     articleColor,
			Fallback:  article.Title,
			Title:     article.Title,
			TitleLink: link,
			Text:      preview(article.Excerpt),
			Fields: []slack.AttachmentField{
				{Title: "Category", Value: article.CategoryName, Short: true},
				{Title: "Author", Value: article.AuthorUsername, Short: true},
			},
			Ts: json.Number(fmt.Sprint(article.CreatedAt.Unix())),
		}},
	}

	return n.post(ctx, msg)
}

// NewsletterPublished is a bloggy.NewsletterHook.
func (n *Notifier) NewsletterPublished(ctx context.Context, newsletter *bloggy.Newsletter) error {
	msg := &slack.WebhookMessage{
		Text: "Newsletter sent: " + newsletter.Subject,
		Attachments: []slack.Attachment{{
			Color:    newsletterColor,
			Fallback: newsletter.Subject,
			Title:    newsletter.Subject,
			Text:     preview(newsletter.Message),
			Ts:       json.Number(fmt.Sprint(newsletter.CreatedAt.Unix())),
		}},
	}

	return n.post(ctx, msg)
}

func (n *Notifier) post(ctx context.Context, msg *slack.WebhookMessage) error {
	if err := slack.PostWebhookCustomHTTPContext(ctx, n.webhookURL, n.client, msg); err != nil {
		return fmt.Errorf("slack webhook: %w", err)
	}

	n.logger.Debug().Str("text", msg.Text).Msg("posted to slack")
	return nil
}

func preview(s string) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= maxPreview {
		return string(runes)
	}

	return string(runes[:maxPreview]) + "..."
}
