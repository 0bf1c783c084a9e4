package bloggy

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed assets/templates/*.html
var templateFS embed.FS

//go:embed assets/static
var staticFS embed.FS

// parseTemplates parses every page and fragment into a single set. Pages are executed by file
// name, fragments by the name they define.
func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(helpers).ParseFS(templateFS, "assets/templates/*.html")
}

func staticFiles() http.FileSystem {
	sub, err := fs.Sub(staticFS, "assets/static")
	if err != nil {
		panic(err)
	}

	return http.FS(sub)
}
