package authentication

import (
	"net/http"
	"net/http/httptest"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/gorilla/sessions"
)

// withCookies returns a request carrying the cookies set on res.
func withCookies(target string, res *httptest.ResponseRecorder) *http.Request {
	req := httptest.NewRequest("GET", target, nil)
	for _, cookie := range res.Result().Cookies() {
		req.AddCookie(cookie)
	}

	return req
}

func TestSession(t *testing.T) {
	c := qt.New(t)
	session := NewSession(sessions.NewCookieStore([]byte("test")))

	c.Run("no user without a cookie", func(c *qt.C) {
		u, err := session.CurrentUser(httptest.NewRequest("GET", "/", nil))
		c.Assert(err, qt.IsNil)
		c.Assert(u, qt.IsNil)
	})

	c.Run("saved user is read back", func(c *qt.C) {
		res := httptest.NewRecorder()
		want := &User{Login: "octocat", Email: "octocat@github.com", AvatarURL: "https://example.com/a.png"}
		c.Assert(session.SaveUser(res, httptest.NewRequest("GET", "/", nil), want), qt.IsNil)

		u, err := session.CurrentUser(withCookies("/", res))
		c.Assert(err, qt.IsNil)
		c.Assert(u, qt.DeepEquals, want)
	})

	c.Run("state", func(c *qt.C) {
		res := httptest.NewRecorder()
		state, err := session.NewState(res, httptest.NewRequest("GET", "/oauth/start", nil))
		c.Assert(err, qt.IsNil)
		c.Assert(state, qt.Not(qt.Equals), "")

		c.Assert(session.CheckState(withCookies("/oauth/authorize?state="+state, res)), qt.IsNil)
		c.Assert(session.CheckState(withCookies("/oauth/authorize?state=forged", res)), qt.Equals, ErrStateMismatch)
		c.Assert(session.CheckState(httptest.NewRequest("GET", "/oauth/authorize?state="+state, nil)), qt.Equals, ErrStateMismatch)
	})
}
