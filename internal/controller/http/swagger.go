package http

import (
	"encoding/json"
	"html/template"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"
)

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
<div id="docs"></div>
<script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>
window.onload = () => SwaggerUIBundle({
  url: "{{.SpecURL}}",
  dom_id: "#docs",
  deepLinking: true,
  docExpansion: "list",
  filter: true,
  persistAuthorization: true
});
</script>
</body>
</html>`))

// SwaggerHandler serves the embedded OpenAPI document and a browsable UI for it
type SwaggerHandler struct {
	title string
	spec  []byte

	jsonOnce sync.Once
	jsonSpec []byte
	jsonErr  error
}

// NewSwaggerHandler creates a new Swagger handler
func NewSwaggerHandler(title string, spec []byte) *SwaggerHandler {
	return &SwaggerHandler{title: title, spec: spec}
}

// RegisterRoutes registers documentation routes
func (h *SwaggerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/docs", h.UI())
	r.Get("/openapi.yaml", h.Spec())
	r.Get("/openapi.json", h.SpecJSON())
}

// UI serves the Swagger UI page
func (h *SwaggerHandler) UI() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err := docsPage.Execute(w, map[string]string{
			"Title":   h.title,
			"SpecURL": "/openapi.yaml",
		})
		if err != nil {
			http.Error(w, "failed to render docs", http.StatusInternalServerError)
		}
	}
}

// Spec serves the OpenAPI document as written
func (h *SwaggerHandler) Spec() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		w.Write(h.spec)
	}
}

// SpecJSON serves the OpenAPI document converted to JSON, for tooling that only reads JSON
func (h *SwaggerHandler) SpecJSON() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.jsonOnce.Do(func() {
			h.jsonSpec, h.jsonErr = yamlToJSON(h.spec)
		})
		if h.jsonErr != nil {
			http.Error(w, "invalid openapi document", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(h.jsonSpec)
	}
}

func yamlToJSON(spec []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(spec, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}
