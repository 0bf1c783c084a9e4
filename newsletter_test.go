package bloggy

import (
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestNormalizeEmail(t *testing.T) {
	c := qt.New(t)

	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{" Jane@Example.com ", "jane@example.com", true},
		{"jane", "", false},
		{"", "", false},
		{"Jane <jane@example.com>", "", false},
		{strings.Repeat("a", 60) + "@example.com", "", false},
	}

	for _, tt := range tests {
		got, ok := NormalizeEmail(tt.in)
		c.Assert(ok, qt.Equals, tt.ok, qt.Commentf("%q", tt.in))
		c.Assert(got, qt.Equals, tt.want, qt.Commentf("%q", tt.in))
	}
}

func TestContactMessageValidate(t *testing.T) {
	c := qt.New(t)

	c.Run("valid", func(c *qt.C) {
		m := &ContactMessage{Name: " Jane ", Email: "JANE@example.com", Subject: "Hi", Message: "Hello there"}
		c.Assert(m.Validate(), qt.IsNil)
		c.Assert(m.Name, qt.Equals, "Jane")
		c.Assert(m.Email, qt.Equals, "jane@example.com")
	})

	c.Run("lists every invalid field", func(c *qt.C) {
		m := &ContactMessage{Name: "", Email: "nope", Subject: strings.Repeat("s", 65), Message: "ok"}
		err := m.Validate()

		var invalid *UnprocessableEntityError
		c.Assert(err, qt.ErrorAs, &invalid)
		c.Assert(invalid.Fields(), qt.DeepEquals, []string{"name", "email", "subject"})
		c.Assert(m.Email, qt.Equals, "nope")
	})
}
