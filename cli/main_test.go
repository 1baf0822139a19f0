package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEventsSavesQRAndStopsOnReady(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(Event{Type: TypeQR, Data: dataURLPrefix + "iVBORw0KGgo=", Ts: time.Now().UnixMilli()})
		_ = conn.WriteJSON(Event{Type: TypeReady, Data: "Whatsapp is ready!", Ts: time.Now().UnixMilli()})
		// Hold the connection open; the client must exit on ready by itself.
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	out := filepath.Join(t.TempDir(), "qr.png")
	client, err := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), out, true)
	require.NoError(t, err)
	defer client.Close()

	go client.ReadEvents()
	select {
	case <-client.done:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop after ready")
	}

	png, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG\r\n\x1a\n"), png)
}

func TestSaveQRRejectsOtherPayloads(t *testing.T) {
	c := &Client{qrOut: filepath.Join(t.TempDir(), "qr.png")}
	assert.Error(t, c.saveQR("not a data url"))
}
