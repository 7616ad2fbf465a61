package app

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"chathub/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	cfg := config.DefaultConfig()
	cfg.Database.IdentityPath = filepath.Join(dir, "identity.db")
	cfg.Database.MessagesPath = filepath.Join(dir, "messages.db")
	cfg.Files.Dir = filepath.Join(dir, "uploads")
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = port
	cfg.Auth.AccessSecret = "access-secret-for-app-tests-0123456789"
	cfg.Auth.RefreshSecret = "refresh-secret-for-app-tests-0123456789"
	cfg.Auth.BcryptCost = 4
	return cfg
}

func startApp(t *testing.T) *Application {
	t.Helper()
	application, err := NewApplication(testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, application.Stop(ctx))
	})
	return application
}

func register(t *testing.T, addr, username string) string {
	t.Helper()
	body, err := json.Marshal(map[string]string{"username": username, "password": "correct horse battery"})
	require.NoError(t, err)
	resp, err := http.Post("http://"+addr+"/api/auth/register", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var out struct {
		Tokens struct {
			AccessToken string `json:"accessToken"`
		} `json:"tokens"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.Tokens.AccessToken)
	return out.Tokens.AccessToken
}

func dialAndJoin(t *testing.T, addr, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "join", "token": token}))
	awaitFrame(t, conn, "history")
	return conn
}

// awaitFrame reads until a frame of the wanted type arrives, skipping presence updates.
func awaitFrame(t *testing.T, conn *websocket.Conn, frameType string) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		if frame["type"] == frameType {
			return frame
		}
	}
}

func TestApplication_EndToEndGlobalMessage(t *testing.T) {
	application := startApp(t)
	addr := application.GetAddr()

	aliceToken := register(t, addr, "alice")
	bobToken := register(t, addr, "bob")

	alice := dialAndJoin(t, addr, aliceToken)
	bob := dialAndJoin(t, addr, bobToken)

	require.NoError(t, alice.WriteJSON(map[string]string{"type": "message", "text": "hello everyone"}))

	got := awaitFrame(t, bob, "message")
	assert.Equal(t, "hello everyone", got["text"])
	assert.Equal(t, "alice", got["username"])

	echo := awaitFrame(t, alice, "message")
	assert.Equal(t, got["messageId"], echo["messageId"])
}

func TestApplication_Health(t *testing.T) {
	application := startApp(t)

	resp, err := http.Get("http://" + application.GetAddr() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "healthy", health["status"])
}

func TestApplication_JoinRejectsBadToken(t *testing.T) {
	application := startApp(t)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+application.GetAddr()+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "join", "token": "not-a-token"}))
	frame := awaitFrame(t, conn, "auth_error")
	assert.NotEmpty(t, frame["message"])
}

func TestNewApplication_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.HTTP.Port = -1

	application, err := NewApplication(cfg, zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Nil(t, application)
	assert.True(t, strings.HasPrefix(err.Error(), "invalid configuration"))
}

func TestNewApplication_RequiresSecrets(t *testing.T) {
	cfg := testConfig(t)
	cfg.Auth.AccessSecret = ""

	_, err := NewApplication(cfg, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestApplication_StopClosesLiveSockets(t *testing.T) {
	application, err := NewApplication(testConfig(t), zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, application.Start(context.Background()))
	addr := application.GetAddr()

	conn := dialAndJoin(t, addr, register(t, addr, "alice"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, application.Stop(ctx))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err = conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway), "got %v", err)
}
