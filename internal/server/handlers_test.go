package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Tyrowin/ensemblechat/internal/chat"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, env *testEnv, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	env.gateway.Routes().ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestHealthHandler(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/", "", "")

	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal("text/plain", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	req.NoError(err)
	req.Equal("Ensemble chat server is running!", string(body))
}

func TestRoutes_Unknown_Path(t *testing.T) {
	env := newTestEnv(t)

	w := serve(t, env, http.MethodGet, "/does-not-exist", "", "")

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestTestPageHandler(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	w := serve(t, env, http.MethodGet, "/test", "", "")

	req.Equal(http.StatusOK, w.Code)
	req.Equal("text/html", w.Header().Get("Content-Type"))
	req.Contains(w.Body.String(), "<!DOCTYPE html>")
	req.Contains(w.Body.String(), "/ws/")
}

func TestAPI_Requires_Session(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct{ method, target string }{
		{http.MethodGet, "/api/chat/channels"},
		{http.MethodGet, "/api/chat/stats"},
		{http.MethodGet, "/api/chat/channels/general/messages"},
		{http.MethodPost, "/api/chat/system"},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.target, func(t *testing.T) {
			w := serve(t, env, tc.method, tc.target, "", `{"content":"x"}`)
			require.Equal(t, http.StatusUnauthorized, w.Code)
			require.Equal(t, "application/json", w.Header().Get("Content-Type"))
			require.NotEmpty(t, decode[errorResponse](t, w).Error)
		})
	}
}

func TestChannelsHandler(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	w := serve(t, env, http.MethodGet, "/api/chat/channels", tokenFor(t, 42, "clara"), "")

	req.Equal(http.StatusOK, w.Code)
	req.Equal(chat.DefaultChannels, decode[channelsResponse](t, w).Channels)
}

func TestStatsHandler(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	token := tokenFor(t, 42, "clara")

	// Given one message in general and one live member in rehearsals
	_, err := env.hub.Publish(context.Background(), "42", "general", chat.UserMessage("bob", "hi"))
	req.NoError(err)
	env.join(t, "rehearsals", token)

	// When
	w := serve(t, env, http.MethodGet, "/api/chat/stats", token, "")

	// Then
	req.Equal(http.StatusOK, w.Code)
	stats := decode[map[chat.ChannelName]channelStatsResponse](t, w)
	req.Len(stats, len(chat.DefaultChannels))

	req.Equal(1, stats["general"].Messages)
	req.Equal(0, stats["general"].ActiveUsers)
	req.NotNil(stats["general"].LastActivity)

	req.Equal(0, stats["rehearsals"].Messages)
	req.Equal(1, stats["rehearsals"].ActiveUsers)
	req.Nil(stats["rehearsals"].LastActivity)
}

func TestStatsHandler_Scoped_To_Tenant(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	_, err := env.hub.Publish(context.Background(), "42", "general", chat.UserMessage("bob", "hi"))
	req.NoError(err)

	w := serve(t, env, http.MethodGet, "/api/chat/stats", tokenFor(t, 43, "dora"), "")

	stats := decode[map[chat.ChannelName]channelStatsResponse](t, w)
	req.Equal(0, stats["general"].Messages)
}

func TestMessagesHandler(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)
	token := tokenFor(t, 42, "clara")
	for i := range 3 {
		_, err := env.hub.Publish(context.Background(), "42", "technical",
			chat.UserMessage("bob", fmt.Sprintf("cue %d", i)))
		req.NoError(err)
	}

	w := serve(t, env, http.MethodGet, "/api/chat/channels/technical/messages?limit=2", token, "")

	req.Equal(http.StatusOK, w.Code)
	resp := decode[messagesResponse](t, w)
	req.Equal(chat.ChannelName("technical"), resp.Channel)
	req.Len(resp.Messages, 2)
	req.Equal("cue 1", resp.Messages[0].Content)
	req.Equal("cue 2", resp.Messages[1].Content)
	req.Equal("technical", resp.Messages[0].Channel)
}

func TestMessagesHandler_Empty_Channel(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	w := serve(t, env, http.MethodGet, "/api/chat/channels/general/messages", tokenFor(t, 42, "clara"), "")

	req.Equal(http.StatusOK, w.Code)
	req.JSONEq(`{"channel":"general","messages":[]}`, w.Body.String())
}

func TestMessagesHandler_Bad_Requests(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, 42, "clara")

	cases := []struct {
		name   string
		target string
		want   int
	}{
		{name: "unknown channel", target: "/api/chat/channels/lobby/messages", want: http.StatusNotFound},
		{name: "non numeric limit", target: "/api/chat/channels/general/messages?limit=ten", want: http.StatusBadRequest},
		{name: "zero limit", target: "/api/chat/channels/general/messages?limit=0", want: http.StatusBadRequest},
		{name: "negative limit", target: "/api/chat/channels/general/messages?limit=-3", want: http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(t, env, http.MethodGet, tc.target, token, "")
			require.Equal(t, tc.want, w.Code)
		})
	}
}

func TestSystemNoticeHandler(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t)

	w := serve(t, env, http.MethodPost, "/api/chat/system", tokenFor(t, 42, "clara"), `{"content":"import done"}`)

	req.Equal(http.StatusAccepted, w.Code)
	req.JSONEq(`{"status":"accepted"}`, w.Body.String())
	for channel, stats := range env.hub.ChannelStats("42") {
		req.Equal(1, stats.MessageCount, channel)
	}
	recent, err := env.hub.Recent("42", "administration", 0)
	req.NoError(err)
	req.Equal(chat.SystemAuthor, recent[0].Author)
}

func TestSystemNoticeHandler_Bad_Requests(t *testing.T) {
	env := newTestEnv(t)
	token := tokenFor(t, 42, "clara")

	cases := []struct {
		name string
		body string
	}{
		{name: "invalid json", body: `{"content":`},
		{name: "empty content", body: `{"content":""}`},
		{name: "blank content", body: `{"content":"  "}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(t, env, http.MethodPost, "/api/chat/system", token, tc.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
	require.Equal(t, 0, env.hub.ChannelStats("42")["general"].MessageCount)
}
