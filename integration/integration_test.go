//go:build integration

package integration

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/bloggyhq/bloggy"
	qt "github.com/frankban/quicktest"
	"github.com/rs/zerolog"
)

func TestPages(t *testing.T) {
	c := qt.New(t)

	c.Run("OK index and article pages", func(c *qt.C) {
		tc := newTestContext(c)

		resp, err := http.Get(tc.url("/"))
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()
		c.Assert(resp.StatusCode, qt.Equals, 200)
		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)
		c.Assert(doc.Find("title").Text(), qt.Equals, "Bloggy")
		c.Assert(doc.Find(".featured h3 a").AttrOr("href", ""), qt.Equals, "/blog/article/hello-world")

		resp, err = http.Get(tc.url("/blog/article/hello-world"))
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()
		c.Assert(resp.StatusCode, qt.Equals, 200)
	})

	c.Run("OK pagination", func(c *qt.C) {
		tc := newTestContext(c)
		for i := 0; i < 7; i++ {
			a := bloggy.NewArticle(fmt.Sprintf("Post %d", i), "hi", "body", "go", "jane")
			c.Assert(tc.pgStore.InsertArticle(tc.ctx, a), qt.IsNil)
		}

		resp, err := http.Get(tc.url("/blog?page=3"))
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()
		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)
		c.Assert(doc.Find("#posts .card").Length(), qt.Equals, 2)
		c.Assert(doc.Find(".pagination span").Text(), qt.Equals, "Page 3 of 3")
	})

	c.Run("OK search escapes wildcards", func(c *qt.C) {
		tc := newTestContext(c)

		articles, err := tc.pgStore.SearchArticles(tc.ctx, "hello", 10)
		c.Assert(err, qt.IsNil)
		c.Assert(articles, qt.HasLen, 1)

		articles, err = tc.pgStore.SearchArticles(tc.ctx, "%", 10)
		c.Assert(err, qt.IsNil)
		c.Assert(articles, qt.HasLen, 0)
	})
}

func TestEngagement(t *testing.T) {
	c := qt.New(t)

	c.Run("OK votes through http", func(c *qt.C) {
		tc := newTestContext(c)
		client := tc.newAuthenticatedClient()

		resp, err := client.PostForm(tc.url("/blog/article/hello-world/vote/up"), url.Values{})
		c.Assert(err, qt.IsNil)
		resp.Body.Close()
		c.Assert(resp.StatusCode, qt.Equals, 200)
		c.Assert(tc.counters("hello-world"), qt.Equals, bloggy.VoteCounters{Upvotes: 1})

		resp, err = client.PostForm(tc.url("/blog/article/hello-world/vote/down"), url.Values{})
		c.Assert(err, qt.IsNil)
		resp.Body.Close()
		c.Assert(tc.counters("hello-world"), qt.Equals, bloggy.VoteCounters{Downvotes: 1})

		resp, err = client.Get(tc.url("/accounts/downvoted_posts"))
		c.Assert(err, qt.IsNil)
		defer resp.Body.Close()
		doc, err := goquery.NewDocumentFromReader(resp.Body)
		c.Assert(err, qt.IsNil)
		c.Assert(doc.Find(".saved-articles a").Text(), qt.Equals, "Hello World")
	})

	c.Run("OK concurrent votes keep counters consistent", func(c *qt.C) {
		tc := newTestContext(c)
		tracker := bloggy.NewTracker(tc.pgStore, zerolog.Nop())

		var users []*bloggy.User
		for i := 0; i < 20; i++ {
			users = append(users, tc.createUser(fmt.Sprintf("user%d", i)))
		}

		var wg sync.WaitGroup
		for i, u := range users {
			wg.Add(1)
			go func(i int, u *bloggy.User) {
				defer wg.Done()
				// even users flip to down, odd users vote up twice
				directions := []bloggy.Direction{bloggy.Up, bloggy.Up}
				if i%2 == 0 {
					directions[1] = bloggy.Down
				}
				for _, d := range directions {
					for attempt := 0; ; attempt++ {
						_, err := tracker.CastVote(tc.ctx, u, "hello-world", d)
						if bloggy.IsConflictRetry(err) && attempt < 10 {
							continue
						}
						c.Check(err, qt.IsNil)
						break
					}
				}
			}(i, u)
		}
		wg.Wait()

		c.Assert(tc.counters("hello-world"), qt.Equals, bloggy.VoteCounters{Upvotes: 10, Downvotes: 10})

		up, err := tc.pgStore.CountVotes(tc.ctx, "hello-world", bloggy.Up)
		c.Assert(err, qt.IsNil)
		down, err := tc.pgStore.CountVotes(tc.ctx, "hello-world", bloggy.Down)
		c.Assert(err, qt.IsNil)
		c.Assert(tc.counters("hello-world"), qt.Equals, bloggy.VoteCounters{Upvotes: up, Downvotes: down})
	})

	c.Run("OK memberships are idempotent", func(c *qt.C) {
		tc := newTestContext(c)
		tracker := bloggy.NewTracker(tc.pgStore, zerolog.Nop())
		u := tc.createUser("alice")

		for i := 0; i < 2; i++ {
			ok, err := tracker.SetBookmark(tc.ctx, u, "hello-world", true)
			c.Assert(err, qt.IsNil)
			c.Assert(ok, qt.IsTrue)
		}

		saved, err := tc.pgStore.ListMembership(tc.ctx, bloggy.Bookmarks, u.ID)
		c.Assert(err, qt.IsNil)
		c.Assert(saved, qt.HasLen, 1)

		e, err := tracker.GetEngagement(tc.ctx, u, "hello-world")
		c.Assert(err, qt.IsNil)
		c.Assert(*e, qt.Equals, bloggy.Engagement{Bookmarked: true})

		ok, err := tracker.SetBookmark(tc.ctx, u, "hello-world", false)
		c.Assert(err, qt.IsNil)
		c.Assert(ok, qt.IsFalse)

		_, err = tracker.SetReadLater(tc.ctx, u, "nope", true)
		c.Assert(bloggy.IsNotFound(err), qt.IsTrue)
	})
}

func TestComments(t *testing.T) {
	c := qt.New(t)
	tc := newTestContext(c)
	alice := tc.newAuthenticatedClient()

	resp, err := alice.PostForm(tc.url("/blog/article/hello-world/comments"), url.Values{"comment": {"Nice **post**"}})
	c.Assert(err, qt.IsNil)
	defer resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, 200)

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	c.Assert(err, qt.IsNil)
	c.Assert(doc.Find("#comments h2").Text(), qt.Equals, "1 comments")
	id := strings.TrimPrefix(doc.Find(".comment").AttrOr("id", ""), "comment-")

	bob := tc.newAuthenticatedClient()
	resp, err = bob.PostForm(tc.url("/blog/article/hello-world/comments/"+id+"/delete"), url.Values{})
	c.Assert(err, qt.IsNil)
	resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, http.StatusNotFound)

	resp, err = alice.PostForm(tc.url("/blog/article/hello-world/comments/"+id+"/delete"), url.Values{})
	c.Assert(err, qt.IsNil)
	resp.Body.Close()
	c.Assert(resp.StatusCode, qt.Equals, 200)

	n, err := tc.pgStore.CountComments(tc.ctx, "hello-world")
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, int64(0))
}
