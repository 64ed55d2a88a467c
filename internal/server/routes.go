package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Login flow
	mux.HandleFunc("/api/login", s.app.LoginHandler.TriggerLoginHandler)          // POST - run one login flow
	mux.HandleFunc("/api/login/status", s.app.LoginHandler.GetLoginStatusHandler) // GET - current flow status

	// API routes - Cookie record
	mux.HandleFunc("/api/cookies", s.handleCookiesRoute) // GET (current record), POST (manual submission)

	// API routes - Scheduled refresh
	mux.HandleFunc("/api/refresh/status", s.app.SchedulerHandler.GetRefreshStatusHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleCookiesRoute routes /api/cookies requests by method
func (s *Server) handleCookiesRoute(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		s.app.CookieHandler.GetCookiesHandler(w, r)
	case "POST":
		s.app.CookieHandler.SubmitCookiesHandler(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
