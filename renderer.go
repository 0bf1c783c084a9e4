package bloggy

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"
)

type markdownSimplifier struct{}

// Transform will replace headings of any level by headings of the lowest level, effectively
// giving the appearance of having no headings at all. Comments are rendered that way so they
// cannot shout over the article.
func (m *markdownSimplifier) Transform(node *ast.Document, reader text.Reader, pc parser.Context) {
	for n := node.FirstChild(); n != nil; n = n.NextSibling() {
		if n.Kind() == ast.KindHeading {
			heading := n.(*ast.Heading)
			heading.Level = 6
		}
	}
}

var linkify = extension.NewLinkify(
	extension.WithLinkifyAllowedProtocols([][]byte{
		[]byte("http:"),
		[]byte("https:"),
	}),
)

var simplifier = markdownSimplifier{}

// commentMarkdown renders comments. Raw HTML is dropped, goldmark doesn't render it unless
// html.WithUnsafe is given.
var commentMarkdown = goldmark.New(
	goldmark.WithExtensions(linkify),
	goldmark.WithParserOptions(
		parser.WithASTTransformers(util.PrioritizedValue{Value: &simplifier, Priority: 100}),
	),
)

// articleMarkdown renders article and newsletter bodies, which are written by the staff.
var articleMarkdown = goldmark.New(
	goldmark.WithExtensions(linkify, extension.Table, extension.Strikethrough),
	goldmark.WithParserOptions(
		parser.WithAutoHeadingID(),
	),
)

func render(md goldmark.Markdown, body string) template.HTML {
	buf := bytes.NewBufferString("")
	err := md.Convert([]byte(body), buf)
	if err != nil {
		return template.HTML(template.HTMLEscapeString(err.Error()))
	}

	return template.HTML(buf.String())
}

// renderBody renders the markdown of an article.
func renderBody(body string) template.HTML {
	return render(articleMarkdown, body)
}

// renderComment renders the markdown of a comment, flattening its headings.
func renderComment(body string) template.HTML {
	return render(commentMarkdown, body)
}

// RenderMarkdown renders a markdown document the same way articles are rendered.
func RenderMarkdown(body string) string {
	return string(renderBody(body))
}
