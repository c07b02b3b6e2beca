package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/sheetscrape/console/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialSession(t *testing.T, server *httptest.Server, id string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/sessions/" + id + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg WSMessage
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func readView(t *testing.T, ws *websocket.Conn) models.View {
	t.Helper()
	msg := readMessage(t, ws)
	require.Equal(t, MsgTypeView, msg.Type)
	var v models.View
	require.NoError(t, json.Unmarshal(msg.Payload, &v))
	return v
}

func TestWebSocket_InitialViewAndPing(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.e)
	defer server.Close()

	id := env.createSession(t).SessionID
	ws := dialSession(t, server, id)

	v := readView(t, ws)
	assert.Equal(t, id, v.SessionID)
	assert.Equal(t, models.PhaseIdle, v.Phase)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: MsgTypePing}))
	assert.Equal(t, MsgTypePong, readMessage(t, ws).Type)

	require.NoError(t, ws.WriteJSON(WSMessage{Type: "upload:init"}))
	msg := readMessage(t, ws)
	assert.Equal(t, MsgTypeError, msg.Type)
	assert.Contains(t, string(msg.Payload), "INVALID_TYPE")
}

func TestWebSocket_PushesEveryChange(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.e)
	defer server.Close()

	id := env.createSession(t).SessionID
	ws := dialSession(t, server, id)
	readView(t, ws)

	require.Equal(t, http.StatusOK, env.selectFile(t, id, "urls.xlsx", []byte("x")).Code)
	assert.Equal(t, "urls.xlsx", readView(t, ws).FileName)

	rec := env.submit(id)
	require.Equal(t, http.StatusAccepted, rec.Code)
	accepted := decodeView(t, rec)

	var views []models.View
	for {
		v := readView(t, ws)
		views = append(views, v)
		if v.Phase == models.PhaseSuccess {
			break
		}
	}

	require.Len(t, views, 4)
	assert.True(t, views[0].Uploading)
	assert.False(t, views[0].Scraping)
	assert.True(t, views[1].Uploading && views[1].Scraping, "indicators overlap for one view")
	assert.Len(t, views[1].Indicators, 2)
	assert.False(t, views[2].Uploading)
	assert.True(t, views[2].Scraping)
	assert.False(t, views[3].InputDisabled)
	require.NotNil(t, views[3].Download)
	assert.Equal(t, "output.xlsx", views[3].Download.Name)
	for i := 1; i < len(views); i++ {
		assert.True(t, views[i].NewerThan(views[i-1]), "pushed views are in order")
	}
	assert.False(t, accepted.NewerThan(views[3]), "the submit response never supersedes the final view")
}

func TestWebSocket_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.e)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/sessions/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, echo.MIMEApplicationJSON, strings.Split(resp.Header.Get(echo.HeaderContentType), ";")[0])
}
