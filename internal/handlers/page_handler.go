package handlers

import (
	"embed"
	"html/template"
	"net/http"

	"github.com/ternarybob/arbor"
)

//go:embed pages/*.html
var pageFS embed.FS

// PageHandler serves the single-page web UI
type PageHandler struct {
	logger    arbor.ILogger
	templates *template.Template
}

// NewPageHandler creates a new PageHandler
func NewPageHandler(logger arbor.ILogger) *PageHandler {
	templates := template.Must(template.ParseFS(pageFS, "pages/*.html"))
	return &PageHandler{
		logger:    logger,
		templates: templates,
	}
}

// IndexHandler handles GET /
func (h *PageHandler) IndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if !RequireMethod(w, r, "GET") {
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, "index.html", nil); err != nil {
		h.logger.Error().Err(err).Msg("Failed to render index page")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
