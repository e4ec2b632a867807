package server

import "net/http"

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// API routes
	mux.HandleFunc("/api/health", s.app.HealthHandler.ServeHTTP)
	mux.HandleFunc("/api/version", s.app.VersionHandler.ServeHTTP)
	mux.HandleFunc("/api/servers", s.app.ServersHandler.ServeHTTP)
	mux.HandleFunc("/api/tools", s.app.ToolsHandler.List)
	mux.HandleFunc("/api/tools/enabled", s.app.ToolsHandler.SetEnabled)
	mux.HandleFunc("/api/export/", s.app.ExportHandler.ServeHTTP)
	mux.HandleFunc("/api/search", s.app.SearchHandler.Search)
	mux.HandleFunc("/api/search/enabled", s.app.SearchHandler.SetEnabled)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.handleNotFound)

	// MCP endpoints: /mcp (combined) and /{prefix}/mcp (per spec)
	if s.app.MCPRouter != nil {
		mux.Handle("/", s.app.MCPRouter)
	}

	return mux
}

// handleNotFound returns a JSON 404 for unmatched API routes.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error":"Not Found","message":"The requested endpoint does not exist"}`))
}
