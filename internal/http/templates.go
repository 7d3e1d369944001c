package httpapp

import (
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type Templates struct {
	NotFound *template.Template
}

func loadTemplates() (*Templates, error) {
	notFound, err := template.ParseFS(templateFS, "templates/notfound.html")
	if err != nil {
		return nil, err
	}
	return &Templates{NotFound: notFound}, nil
}
