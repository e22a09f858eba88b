// Package server wires HTTP handlers into a ServeMux via routing helpers.
package server

import "net/http"

// Routes returns a ServeMux with the WebSocket endpoint, the chat API, the
// health check and the test page.
func (g *Gateway) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", HealthHandler)
	mux.HandleFunc("GET /test", TestPageHandler)
	mux.HandleFunc("GET /ws/{channel}", g.WebSocketHandler)
	mux.HandleFunc("GET /api/chat/channels", g.authenticated(g.ChannelsHandler))
	mux.HandleFunc("GET /api/chat/stats", g.authenticated(g.StatsHandler))
	mux.HandleFunc("GET /api/chat/channels/{channel}/messages", g.authenticated(g.MessagesHandler))
	mux.HandleFunc("POST /api/chat/system", g.authenticated(g.SystemNoticeHandler))
	return mux
}
