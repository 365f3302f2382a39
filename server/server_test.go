package server_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/melatron/crdt-rga/server"
)

type wsMsg struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
	Node    *struct {
		ID      string `json:"id"`
		Origin  string `json:"origin"`
		Char    string `json:"char"`
		Deleted bool   `json:"deleted"`
	} `json:"node,omitempty"`
}

func dial(t *testing.T, ts *httptest.Server, doc string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/" + doc
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, kind string) wsMsg {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))
	for {
		var msg wsMsg
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == kind {
			return msg
		}
	}
}

func TestWebsocketEditFlow(t *testing.T) {
	s, err := server.New(server.Options{Src: 100})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn := dial(t, ts, "notes")
	defer conn.Close()

	snap := readUntil(t, conn, "snapshot")
	assert.Equal(t, "", snap.Content)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "insert", "char": "H"}))
	ack := readUntil(t, conn, "ack")
	require.NotEmpty(t, ack.ID)

	// the session sees its own op come back as a node update too
	update := readUntil(t, conn, "node")
	assert.Equal(t, "H", update.Node.Char)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "insert", "char": "i", "after": ack.ID}))
	readUntil(t, conn, "ack")

	resp, err := http.Get(ts.URL + "/doc/notes")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, "Hi", string(body))
}

func TestWebsocketBroadcast(t *testing.T) {
	s, err := server.New(server.Options{Src: 100})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	alice := dial(t, ts, "shared")
	defer alice.Close()
	bob := dial(t, ts, "shared")
	defer bob.Close()
	readUntil(t, alice, "snapshot")
	readUntil(t, bob, "snapshot")

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "insert", "char": "X"}))

	update := readUntil(t, bob, "node")
	assert.Equal(t, "X", update.Node.Char)
	assert.False(t, update.Node.Deleted)
}

func TestWebsocketErrors(t *testing.T) {
	s, err := server.New(server.Options{Src: 100})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	conn := dial(t, ts, "errors")
	defer conn.Close()
	readUntil(t, conn, "snapshot")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "insert", "char": "toolong"}))
	msg := readUntil(t, conn, "error")
	assert.Contains(t, msg.Error, "one character")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "delete", "id": "not-an-id"}))
	msg = readUntil(t, conn, "error")
	assert.Contains(t, msg.Error, "bad node id")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "frobnicate"}))
	msg = readUntil(t, conn, "error")
	assert.Contains(t, msg.Error, "unknown op")
}

func TestDocNotFound(t *testing.T) {
	s, err := server.New(server.Options{Src: 100})
	require.NoError(t, err)
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/doc/ghost")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestZeroSrcRejected(t *testing.T) {
	_, err := server.New(server.Options{})
	assert.Error(t, err)
}
