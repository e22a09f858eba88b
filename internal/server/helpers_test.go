package server

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/ensemblechat/internal/auth"
	"github.com/Tyrowin/ensemblechat/internal/chat"
	"github.com/Tyrowin/ensemblechat/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

const (
	testSecret = "gateway-test-secret"
	testOrigin = "http://localhost:8080"
)

var testLog = logs.GetLoggerFromLevel(slog.LevelDebug)

type testEnv struct {
	hub     *chat.Hub
	gateway *Gateway
	server  *httptest.Server
}

// newTestEnv starts a gateway over a real hub behind an httptest server.
// mutate adjusts the config before anything is built.
func newTestEnv(t *testing.T, mutate ...func(*config.Config)) *testEnv {
	t.Helper()

	cfg := config.Default()
	cfg.DevAuthBypass = false
	cfg.JWTSecret = testSecret
	cfg.AllowedOrigins = []string{testOrigin}
	for _, m := range mutate {
		m(&cfg)
	}

	hub := chat.NewHub(testLog, chat.Config{
		HistoryCapacity:  cfg.HistoryCapacity,
		ReplayLimit:      cfg.ReplayLimit,
		DeliveryTimeout:  cfg.DeliveryTimeout,
		MaxContentLength: cfg.MaxContentLength,
	})
	gateway := NewGateway(testLog, hub, auth.NewVerifier(cfg.JWTSecret, cfg.DevAuthBypass), cfg)
	srv := httptest.NewServer(gateway.Routes())

	t.Cleanup(func() {
		_ = gateway.Shutdown(2 * time.Second)
		srv.Close()
	})
	return &testEnv{hub: hub, gateway: gateway, server: srv}
}

func tokenFor(t *testing.T, tenant int64, username string) string {
	t.Helper()
	claims := auth.Claims{
		MandantID: lo.ToPtr(tenant),
		UserID:    lo.ToPtr(int64(len(username))),
		Username:  username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func (e *testEnv) wsURL(channel, token string) string {
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws/" + channel
	if token != "" {
		u += "?token=" + url.QueryEscape(token)
	}
	return u
}

// tryDial attempts an upgrade and returns the handshake status code.
func (e *testEnv) tryDial(channel, token, origin string) (*websocket.Conn, int, error) {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(e.wsURL(channel, token), header)
	status := 0
	if resp != nil {
		status = resp.StatusCode
		_ = resp.Body.Close()
	}
	return conn, status, err
}

// join dials the channel and consumes the welcome notice, which proves the
// connection is registered in the hub.
func (e *testEnv) join(t *testing.T, channel, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := e.tryDial(channel, token, testOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	welcome := readFrame(t, conn)
	require.Equal(t, string(chat.KindSystem), welcome.Type)
	require.Contains(t, welcome.Content, channel)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) outboundFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame outboundFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// requireSilent asserts that nothing arrives on conn for a short while. The
// connection is unusable afterwards.
func requireSilent(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var frame outboundFrame
	err := conn.ReadJSON(&frame)
	require.Error(t, err, "unexpected frame %+v", frame)
}

func sendContent(t *testing.T, conn *websocket.Conn, content string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(inboundFrame{Content: content}))
}

func (e *testEnv) request(t *testing.T, method, path, token string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
