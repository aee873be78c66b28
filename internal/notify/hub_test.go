package notify

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nhle/bizops/internal/model"
)

func dialHub(t *testing.T, hub *Hub, userID string) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?user=" + userID
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ws.Close() })

	require.Eventually(t, func() bool { return hub.Connections(userID) == 1 },
		time.Second, 10*time.Millisecond)
	return ws
}

func TestHubPublishReachesOnlyOwner(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	alice := dialHub(t, hub, "alice")
	bob := dialHub(t, hub, "bob")

	hub.Publish(model.Notification{
		ID:      "n1",
		UserID:  "alice",
		Type:    model.NotificationTaskDue,
		Title:   "Overdue Task",
		Message: `Task "File report" is overdue.`,
	})

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(time.Second)))
	var got model.Notification
	require.NoError(t, alice.ReadJSON(&got))
	assert.Equal(t, "n1", got.ID)
	assert.Equal(t, model.NotificationTaskDue, got.Type)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err, "bob receives nothing")
}

func TestHubDropsClosedConnections(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	ws := dialHub(t, hub, "carol")

	require.NoError(t, ws.Close())
	require.Eventually(t, func() bool { return hub.Connections("carol") == 0 },
		time.Second, 10*time.Millisecond)

	// Publishing with no listeners is a no-op.
	hub.Publish(model.Notification{ID: "n2", UserID: "carol"})
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub([]string{"http://app.example"}, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(w, r, "dave")
	}))
	defer srv.Close()

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPublishNeverBlocksOnFullQueue(t *testing.T) {
	hub := NewHub(nil, zap.NewNop())
	// No writer drains this connection, as with a stalled client.
	c := hub.add("erin", nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < sendBuffer+10; i++ {
			hub.Publish(model.Notification{ID: "n" + strconv.Itoa(i), UserID: "erin"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish waited on a stalled connection")
	}

	assert.Len(t, c.send, sendBuffer)
	first := <-c.send
	assert.Equal(t, "n0", first.ID, "the oldest queued notifications are kept")
}
