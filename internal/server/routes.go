package server

import (
	"net/http"
	"strings"
)

// setupRoutes builds the route table
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Web UI
	mux.HandleFunc("/", s.app.PageHandler.IndexHandler)

	// Service endpoints
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)

	// Download submission
	mux.HandleFunc("/api/download", s.app.DownloadHandler.SubmitHandler) // POST

	// Task status and file delivery
	mux.HandleFunc("/api/status/", s.app.StatusHandler.GetTaskHandler)   // GET /{task_id}
	mux.HandleFunc("/api/file/", s.app.FileHandler.ServeTaskFileHandler) // GET /{task_id}/{filename}

	// Cache catalog
	mux.HandleFunc("/api/cache", s.app.CacheHandler.ListHandler) // GET
	mux.HandleFunc("/api/cache/", s.handleCacheRoutes)           // GET /{series}/{file}, DELETE /{series}

	return mux
}

// handleCacheRoutes dispatches /api/cache/{series} and /api/cache/{series}/{file}
func (s *Server) handleCacheRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/cache/")

	switch r.Method {
	case http.MethodDelete:
		if strings.Contains(rest, "/") {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		s.app.CacheHandler.DeleteSeriesHandler(w, r)
	case http.MethodGet:
		s.app.FileHandler.ServeCacheFileHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
