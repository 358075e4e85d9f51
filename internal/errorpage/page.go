// Package errorpage renders the HTML body of failed render responses.
//
// The page is a Handlebars template receiving status, statusText, message
// and requestID. A custom template can replace the built-in one:
//
//	page, err := errorpage.Load("views/error.hbs")
//	body, err := page.Render(http.StatusNotFound, "template not found", requestID)
package errorpage

import (
	"fmt"
	"net/http"
	"os"

	"github.com/aymerick/raymond"
)

const defaultTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{status}} {{statusText}}</title></head>
<body>
<h1>{{status}} {{statusText}}</h1>
<p>{{message}}</p>
{{#if requestID}}<p><small>Request {{requestID}}</small></p>{{/if}}
</body>
</html>
`

// Page renders error pages
type Page struct {
	tmpl *raymond.Template
}

// New returns the built-in error page
func New() *Page {
	return &Page{tmpl: raymond.MustParse(defaultTemplate)}
}

// Load parses a Handlebars error page from path
func Load(path string) (*Page, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read error template: %w", err)
	}

	tmpl, err := raymond.Parse(string(source))
	if err != nil {
		return nil, fmt.Errorf("failed to parse error template: %w", err)
	}

	return &Page{tmpl: tmpl}, nil
}

// Render renders the page for an HTTP status
func (p *Page) Render(status int, message, requestID string) (string, error) {
	result, err := p.tmpl.Exec(map[string]interface{}{
		"status":     status,
		"statusText": http.StatusText(status),
		"message":    message,
		"requestID":  requestID,
	})
	if err != nil {
		return "", fmt.Errorf("error page execution failed: %w", err)
	}

	return result, nil
}
