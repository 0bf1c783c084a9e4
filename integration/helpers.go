//go:build integration

package integration

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"github.com/bloggyhq/bloggy"
	"github.com/bloggyhq/bloggy/authentication/fake_auth"
	"github.com/bloggyhq/bloggy/pgstore"
	qt "github.com/frankban/quicktest"
	"github.com/gorilla/sessions"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
)

const defaultDBString = "user=postgres dbname=bloggy_test sslmode=disable password=postgres host=127.0.0.1"

func dbString() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}

	return defaultDBString
}

func truncateDatabase(db *sqlx.DB) {
	db.MustExec("TRUNCATE TABLE " + strings.Join(pgstore.Tables, ", ") + " RESTART IDENTITY CASCADE;")
}

// testingLogWriter is an output target for zerolog which will print on the testing logger.
type testingLogWriter struct {
	c *qt.C
}

// Write outputs on the passed bytes on the test logger
func (l *testingLogWriter) Write(p []byte) (n int, err error) {
	str := string(p[0 : len(p)-1]) // drop the final \n
	l.c.Log(str)
	return len(p), nil
}

// A struct to hold the server and its components.
// Provides a few helpers for convenience.
type testContext struct {
	c          *qt.C
	ctx        context.Context
	server     *bloggy.Server
	testServer *httptest.Server
	pgStore    *pgstore.PGStore
}

// newTestContext creates a server backed by the test database, with an empty schema and a
// single article, "Hello World", to engage with.
func newTestContext(c *qt.C) *testContext {
	tc := testContext{c: c, ctx: context.Background()}

	w := testingLogWriter{c}
	output := zerolog.ConsoleWriter{Out: &w, NoColor: true}
	logger := zerolog.New(output).Level(zerolog.InfoLevel)

	tc.pgStore = pgstore.New(dbString(), pgstore.WithLockTimeout(2*time.Second))
	sessionStore := sessions.NewCookieStore([]byte("test"))
	fakeAuth := fake_auth.New(sessionStore, logger)

	tc.server = bloggy.NewServer(
		&bloggy.ServerConfig{ArticlesPerPage: 3, CommentsPerPage: 3, VoteRetries: 5},
		logger,
		tc.pgStore,
		fakeAuth,
	)
	tc.c.Assert(tc.server.Prepare(), qt.IsNil, qt.Commentf("couldn't prepare the server"))
	tc.c.Assert(tc.pgStore.CreateSchema(tc.ctx), qt.IsNil)
	truncateDatabase(tc.pgStore.DB())

	tc.testServer = httptest.NewServer(tc.server)
	fakeAuth.SetServerURL(tc.testServer.URL)

	tc.c.Cleanup(func() {
		tc.testServer.Close()
		truncateDatabase(tc.pgStore.DB())
	})

	tc.c.Assert(tc.pgStore.InsertCategory(tc.ctx, &bloggy.Category{Name: "go", Description: "Gophers"}), qt.IsNil)
	tc.c.Assert(tc.pgStore.InsertAuthor(tc.ctx, &bloggy.Author{Username: "jane", Name: "Jane Doe", Description: "Writes Go"}), qt.IsNil)
	tc.c.Assert(tc.pgStore.InsertArticle(tc.ctx, bloggy.NewArticle("Hello World", "hi", "# Hello", "go", "jane")), qt.IsNil)

	return &tc
}

// url returns an url to the test server based on the given path
func (tc *testContext) url(path string) string {
	return tc.testServer.URL + path
}

func (tc *testContext) createUser(login string) *bloggy.User {
	id, err := tc.pgStore.CreateOrUpdateUser(tc.ctx, login, login+"@example.com", "")
	tc.c.Assert(err, qt.IsNil)

	return &bloggy.User{ID: id, Name: login}
}

func (tc *testContext) counters(slug string) bloggy.VoteCounters {
	a, err := tc.pgStore.FindArticle(tc.ctx, slug)
	tc.c.Assert(err, qt.IsNil)

	return a.Counters()
}

func (tc *testContext) newHTTPClient() *http.Client {
	jar, err := cookiejar.New(nil)
	tc.c.Assert(err, qt.IsNil)

	return &http.Client{
		Jar: jar,
	}
}

func (tc *testContext) newAuthenticatedClient() *http.Client {
	client := tc.newHTTPClient()
	resp, err := client.Get(tc.url("/oauth/start"))
	tc.c.Assert(err, qt.IsNil)
	defer resp.Body.Close()
	tc.c.Assert(resp.StatusCode, qt.Equals, 200)
	return client
}
