package ws

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/gogo/streamchat/internal/adapter/llm"
	"github.com/xiaot623/gogo/streamchat/internal/config"
	store "github.com/xiaot623/gogo/streamchat/internal/repository"
	"github.com/xiaot623/gogo/streamchat/internal/service"
	"github.com/xiaot623/gogo/streamchat/internal/transport/sink"
)

func mockReply(prompt string) string {
	return `[MOCK] Received your message: "` + prompt + `". This is a mock response.`
}

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	svc := service.New(db, db, llm.NewMockClient())
	srv := NewServer(config.Default(), svc)

	e := echo.New()
	e.GET("/ws/chat", srv.HandleWebSocket)
	ts := httptest.NewServer(e)
	t.Cleanup(func() {
		srv.CloseAll()
		ts.Close()
		svc.Wait()
		_ = db.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/chat"
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readTurn reads frames up to and including the next done frame.
func readTurn(t *testing.T, conn *websocket.Conn) (string, sink.Frame) {
	t.Helper()
	var text strings.Builder
	for {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var f sink.Frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read frame: %v", err)
		}
		if f.Done {
			return text.String(), f
		}
		text.WriteString(f.Content)
	}
}

func TestWebSocketTurn(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"sessionId":null,"content":"Hello"}`)))
	text, last := readTurn(t, conn)
	require.Equal(t, mockReply("Hello"), text)
	require.Nil(t, last.ErrorMessage)
	require.Empty(t, last.Content)
}

func TestWebSocketInvalidMessage(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	text, last := readTurn(t, conn)
	require.Empty(t, text)
	require.NotNil(t, last.ErrorMessage)
	require.Equal(t, "invalid message", *last.ErrorMessage)

	// The connection stays usable.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"content":"again"}`)))
	text, last = readTurn(t, conn)
	require.Equal(t, mockReply("again"), text)
	require.Nil(t, last.ErrorMessage)
}

func TestWebSocketUnknownConversation(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"sessionId":5,"content":"Hello"}`)))
	_, last := readTurn(t, conn)
	require.NotNil(t, last.ErrorMessage)
	require.Equal(t, "conversation not found or deleted: id=5", *last.ErrorMessage)
}

func TestWebSocketTurnsDoNotInterleave(t *testing.T) {
	_, url := newTestServer(t)
	conn := dial(t, url)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"content":"one"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"content":"two"}`)))

	first, _ := readTurn(t, conn)
	second, _ := readTurn(t, conn)
	require.Equal(t, mockReply("one"), first)
	require.Equal(t, mockReply("two"), second)
}

func TestWebSocketConnectionTracking(t *testing.T) {
	srv, url := newTestServer(t)
	conn := dial(t, url)

	require.Eventually(t, func() bool { return srv.ConnectionCount() == 1 }, time.Second, 10*time.Millisecond)

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()
	require.Eventually(t, func() bool { return srv.ConnectionCount() == 0 }, time.Second, 10*time.Millisecond)
}
