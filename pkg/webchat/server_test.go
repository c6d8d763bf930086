package webchat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/marionette/pkg/bridge"
	"github.com/go-go-golems/marionette/pkg/config"
	"github.com/go-go-golems/marionette/pkg/webhook"
)

func newTestServer(t *testing.T, src bridge.Source) (*Server, *httptest.Server) {
	t.Helper()
	settings := &config.Settings{
		Addr:           ":0",
		BridgeBuffer:   32,
		RequestTimeout: time.Minute,
		StreamDeadline: time.Minute,
	}
	srv, err := NewServer(context.Background(), settings, WithSource(src))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func TestServer_RequiresWebhookSettings(t *testing.T) {
	_, err := NewServer(context.Background(), &config.Settings{Addr: ":0"})
	require.Error(t, err)
	var cerr *config.ConfigurationError
	require.ErrorAs(t, err, &cerr)
}

func TestServer_Health(t *testing.T) {
	_, ts := newTestServer(t, &scriptedSource{})

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, "healthy", body["status"])
	require.NotEmpty(t, body["timestamp"])
}

func TestServer_IndexPage(t *testing.T) {
	_, ts := newTestServer(t, &scriptedSource{})

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}

func TestServer_ChatEndpointSuccess(t *testing.T) {
	src := &scriptedSource{lines: []string{
		`{"type":"start","metadata":{}}`,
		`{"type":"item","content":"rest ","metadata":{}}`,
		`{"type":"item","content":"mode","metadata":{}}`,
		`{"type":"end","metadata":{}}`,
	}}
	_, ts := newTestServer(t, src)

	body, _ := json.Marshal(ChatRequest{Message: "hello"})
	resp, err := http.Post(ts.URL+"/api/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cr ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cr))
	require.Equal(t, "success", cr.Status)
	require.Equal(t, "rest mode", cr.Message)
	// session id generated when the request carries none
	require.NotEmpty(t, cr.SessionID)
}

func TestServer_ChatEndpointKeepsClientSessionID(t *testing.T) {
	src := &scriptedSource{lines: []string{`{"type":"end","metadata":{}}`}}
	_, ts := newTestServer(t, src)

	body, _ := json.Marshal(ChatRequest{Message: "hello", SessionID: "fixed-id"})
	resp, err := http.Post(ts.URL+"/api/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var cr ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cr))
	require.Equal(t, "fixed-id", cr.SessionID)
}

func TestServer_ChatEndpointTransportError(t *testing.T) {
	src := &scriptedSource{err: &webhook.TransportError{Kind: webhook.ErrConnectionFailed}}
	_, ts := newTestServer(t, src)

	body, _ := json.Marshal(ChatRequest{Message: "hello"})
	resp, err := http.Post(ts.URL+"/api/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cr ChatResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cr))
	require.Equal(t, "error", cr.Status)
	require.Contains(t, cr.Message, "Error:")
}

func TestServer_ChatEndpointRejectsEmptyMessage(t *testing.T) {
	_, ts := newTestServer(t, &scriptedSource{})

	body, _ := json.Marshal(ChatRequest{Message: "   "})
	resp, err := http.Post(ts.URL+"/api/chat", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func wsURL(ts *httptest.Server, sessionID string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + sessionID
}

func readEnvelopesUntilTerminal(t *testing.T, conn *websocket.Conn) []Envelope {
	t.Helper()
	var out []Envelope
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var env Envelope
		require.NoError(t, json.Unmarshal(data, &env))
		out = append(out, env)
		if env.Type == EnvelopeComplete || env.Type == EnvelopeError {
			return out
		}
	}
}

func TestServer_WebSocketChatFlow(t *testing.T) {
	src := &scriptedSource{lines: []string{
		`{"type":"start","metadata":{}}`,
		`{"type":"item","content":"streamed ","metadata":{}}`,
		`{"type":"item","content":"reply","metadata":{}}`,
		`{"type":"end","metadata":{}}`,
	}}
	srv, ts := newTestServer(t, src)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "ws-sess"), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.Eventually(t, func() bool {
		_, ok := srv.registry.Get("ws-sess")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.WriteJSON(ChatRequest{Message: "hi", User: "tester"}))

	envs := readEnvelopesUntilTerminal(t, conn)
	require.Equal(t, EnvelopeAck, envs[0].Type)
	var contents []string
	for _, env := range envs {
		if env.Type == EnvelopeChunk {
			contents = append(contents, env.Content)
		}
	}
	require.Equal(t, []string{"streamed ", "reply"}, contents)
	last := envs[len(envs)-1]
	require.Equal(t, EnvelopeComplete, last.Type)
	require.Equal(t, "streamed reply", last.Message)
}

func TestServer_WebSocketErrorFlow(t *testing.T) {
	src := &scriptedSource{err: &webhook.TransportError{Kind: webhook.ErrTimeout}}
	_, ts := newTestServer(t, src)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "ws-err"), nil)
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.WriteJSON(ChatRequest{Message: "hi"}))

	envs := readEnvelopesUntilTerminal(t, conn)
	require.Equal(t, EnvelopeAck, envs[0].Type)
	last := envs[len(envs)-1]
	require.Equal(t, EnvelopeError, last.Type)
	for _, env := range envs {
		require.NotEqual(t, EnvelopeChunk, env.Type)
	}
}

func TestServer_SessionLifecycleAndListing(t *testing.T) {
	srv, ts := newTestServer(t, &scriptedSource{})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "listed"), nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return srv.registry.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get(ts.URL + "/api/sessions")
	require.NoError(t, err)
	var body struct {
		ActiveSessions []string `json:"active_sessions"`
		Count          int      `json:"count"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	_ = resp.Body.Close()
	require.Equal(t, 1, body.Count)
	require.Equal(t, []string{"listed"}, body.ActiveSessions)

	_ = conn.Close()
	require.Eventually(t, func() bool { return srv.registry.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_WebSocketMissingSessionID(t *testing.T) {
	_, ts := newTestServer(t, &scriptedSource{})

	resp, err := http.Get(ts.URL + "/ws/")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
