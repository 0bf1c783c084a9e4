package bloggy

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// An ArticleHook is called after an article has been published.
type ArticleHook func(ctx context.Context, article *Article) error

// A NewsletterHook is called after a newsletter has been published.
type NewsletterHook func(ctx context.Context, newsletter *Newsletter) error

// Publisher stores new content and then runs the registered hooks. A failing hook doesn't
// unpublish anything; the remaining hooks still run and the failures are returned together.
type Publisher struct {
	store           Store
	logger          zerolog.Logger
	articleHooks    []ArticleHook
	newsletterHooks []NewsletterHook
}

func NewPublisher(store Store, logger zerolog.Logger) *Publisher {
	return &Publisher{store: store, logger: logger}
}

func (p *Publisher) AddArticleHook(h ArticleHook) {
	p.articleHooks = append(p.articleHooks, h)
}

func (p *Publisher) AddNewsletterHook(h NewsletterHook) {
	p.newsletterHooks = append(p.newsletterHooks, h)
}

// HookError gathers the errors of the hooks that failed.
type HookError struct {
	Errs []error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%d hook(s) failed, first: %v", len(e.Errs), e.Errs[0])
}

func (e *HookError) Unwrap() error {
	return e.Errs[0]
}

func (p *Publisher) PublishArticle(ctx context.Context, article *Article) error {
	if article.Slug == "" {
		article.Slug = Slugify(article.Title)
	}
	if article.Slug == "" {
		return UnprocessableEntity("title")
	}

	if err := p.store.InsertArticle(ctx, article); err != nil {
		return err
	}

	var errs []error
	for _, h := range p.articleHooks {
		if err := h(ctx, article); err != nil {
			p.logger.Warn().Err(err).Str("slug", article.Slug).Msg("article hook failed")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &HookError{Errs: errs}
	}

	p.logger.Info().Str("slug", article.Slug).Msg("article published")
	return nil
}

func (p *Publisher) PublishNewsletter(ctx context.Context, newsletter *Newsletter) error {
	if newsletter.Subject == "" {
		return UnprocessableEntity("subject")
	}
	if newsletter.CreatedAt.IsZero() {
		newsletter.CreatedAt = NowFunc()
	}

	if err := p.store.InsertNewsletter(ctx, newsletter); err != nil {
		return err
	}

	var errs []error
	for _, h := range p.newsletterHooks {
		if err := h(ctx, newsletter); err != nil {
			p.logger.Warn().Err(err).Int64("id", newsletter.ID).Msg("newsletter hook failed")
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &HookError{Errs: errs}
	}

	p.logger.Info().Int64("id", newsletter.ID).Str("subject", newsletter.Subject).Msg("newsletter published")
	return nil
}
