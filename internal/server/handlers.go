// Package server exposes HTTP handlers: the WebSocket endpoint, the JSON
// introspection and notice API, health checks, and the built-in test page.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Tyrowin/ensemblechat/internal/auth"
	"github.com/Tyrowin/ensemblechat/internal/chat"
	"github.com/samber/lo"
)

const maxNoticeBody = 64 << 10

type channelsResponse struct {
	Channels []chat.ChannelName `json:"channels"`
}

type channelStatsResponse struct {
	Messages     int        `json:"messages"`
	ActiveUsers  int        `json:"active_users"`
	LastActivity *time.Time `json:"last_activity"`
}

type messagesResponse struct {
	Channel  chat.ChannelName `json:"channel"`
	Messages []outboundFrame  `json:"messages"`
}

type noticeRequest struct {
	Content string `json:"content"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, session auth.Session)

// authenticated resolves the tenant session before calling next.
func (g *Gateway) authenticated(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, err := g.sessions.FromRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, r, session)
	}
}

// ChannelsHandler lists the channels available to the caller's tenant.
func (g *Gateway) ChannelsHandler(w http.ResponseWriter, _ *http.Request, session auth.Session) {
	writeJSON(w, http.StatusOK, channelsResponse{Channels: g.hub.ActiveChannels(session.TenantID)})
}

// StatsHandler reports message count, live connections and last activity for
// every channel of the caller's tenant.
func (g *Gateway) StatsHandler(w http.ResponseWriter, _ *http.Request, session auth.Session) {
	stats := lo.MapValues(g.hub.ChannelStats(session.TenantID),
		func(s chat.ChannelStats, _ chat.ChannelName) channelStatsResponse {
			return channelStatsResponse{
				Messages:     s.MessageCount,
				ActiveUsers:  s.ActiveConnections,
				LastActivity: s.LastActivity,
			}
		})
	writeJSON(w, http.StatusOK, stats)
}

// MessagesHandler returns the recent history of one channel, oldest first.
func (g *Gateway) MessagesHandler(w http.ResponseWriter, r *http.Request, session auth.Session) {
	channel := chat.ChannelName(r.PathValue("channel"))

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	messages, err := g.hub.Recent(session.TenantID, channel, limit)
	if errors.Is(err, chat.ErrUnknownChannel) {
		writeError(w, http.StatusNotFound, "unknown channel")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	frames := lo.Map(messages, func(m chat.Message, _ int) outboundFrame {
		return messageFrame(channel, m)
	})
	writeJSON(w, http.StatusOK, messagesResponse{Channel: channel, Messages: frames})
}

// SystemNoticeHandler posts a system notice to every channel of the caller's
// tenant. Other services use it to announce finished imports, backups and the
// like.
func (g *Gateway) SystemNoticeHandler(w http.ResponseWriter, r *http.Request, session auth.Session) {
	var req noticeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxNoticeBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	err := g.hub.BroadcastSystem(r.Context(), session.TenantID, req.Content)
	if errors.Is(err, chat.ErrInvalidMessage) {
		writeError(w, http.StatusBadRequest, "content must not be empty or too long")
		return
	}
	if err != nil {
		g.log.Warn("System notice partially failed", "tenant", session.TenantID, "error", err)
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Ensemble chat server is running!")
}

// TestPageHandler serves an HTML page to join a channel, send messages and
// watch the live feed from a browser.
func TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	_, _ = fmt.Fprint(w, testPage)
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>Ensemble Chat Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { 
            border: 1px solid #ccc; 
            height: 300px; 
            padding: 10px; 
            overflow-y: scroll; 
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { 
            width: 300px; 
            padding: 5px; 
            margin-right: 10px;
        }
        button { 
            padding: 5px 15px; 
            background-color: #007cba; 
            color: white; 
            border: none; 
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status { 
            margin: 10px 0; 
            padding: 5px; 
            border-radius: 3px;
        }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Ensemble Chat Test</h1>
    
    <div id="status" class="status disconnected">Disconnected</div>
    
    <div>
        <select id="channelSelect">
            <option>general</option>
            <option>rehearsals</option>
            <option>performances</option>
            <option>technical</option>
            <option>administration</option>
        </select>
        <input type="text" id="tokenInput" placeholder="Token (optional in dev mode)">
    </div>

    <div>
        <input type="text" id="messageInput" placeholder="Type a message..." disabled>
        <button id="sendButton" onclick="sendMessage()" disabled>Send</button>
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    
    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const sendButton = document.getElementById('sendButton');
        const connectButton = document.getElementById('connectButton');
        const statusDiv = document.getElementById('status');

        function addMessage(message, type = 'info') {
            const messageElement = document.createElement('div');
            messageElement.style.margin = '5px 0';
            messageElement.style.padding = '3px';
            
            if (type === 'received') {
                const frame = JSON.parse(message);
                messageElement.style.color = frame.type === 'user' ? 'green' : 'gray';
                messageElement.textContent = '[' + frame.type + '] ' + (frame.user || '') + ': ' + frame.content;
            } else {
                messageElement.style.color = 'gray';
                messageElement.innerHTML = '<em>' + message + '</em>';
            }
            
            messagesDiv.appendChild(messageElement);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            if (connected) {
                statusDiv.textContent = 'Connected';
                statusDiv.className = 'status connected';
                messageInput.disabled = false;
                sendButton.disabled = false;
                connectButton.textContent = 'Disconnect';
            } else {
                statusDiv.textContent = 'Disconnected';
                statusDiv.className = 'status disconnected';
                messageInput.disabled = true;
                sendButton.disabled = true;
                connectButton.textContent = 'Connect';
            }
        }

        function connect() {
            const channel = document.getElementById('channelSelect').value;
            const token = document.getElementById('tokenInput').value;
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            let url = scheme + location.host + '/ws/' + encodeURIComponent(channel);
            if (token) {
                url += '?token=' + encodeURIComponent(token);
            }
            ws = new WebSocket(url);
            
            ws.onopen = function(event) {
                addMessage('Connected to ' + channel);
                updateStatus(true);
            };
            
            ws.onmessage = function(event) {
                addMessage(event.data, 'received');
            };
            
            ws.onclose = function(event) {
                addMessage('Connection closed');
                updateStatus(false);
                ws = null;
            };
            
            ws.onerror = function(error) {
                addMessage('Connection error: ' + error);
                updateStatus(false);
            };
        }

        function disconnect() {
            if (ws) {
                ws.close();
            }
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                disconnect();
            } else {
                connect();
            }
        }

        function sendMessage() {
            const message = messageInput.value.trim();
            if (message && ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify({content: message}));
                messageInput.value = '';
            }
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
