package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Job submission (POST) and SSE log streaming (GET ?jobId=)
	mux.HandleFunc("/api/send", s.app.SendHandler.SubmitHandler)
	mux.HandleFunc("/api/send/logs", s.app.SSELogsHandler.StreamLogs)

	// API routes - WhatsApp session
	mux.HandleFunc("/api/whatsapp/status", s.app.WhatsAppHandler.StatusHandler)
	mux.HandleFunc("/api/whatsapp/qr", s.app.WhatsAppHandler.QRHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}
