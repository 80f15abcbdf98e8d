package fanout

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, ch <-chan []byte) Event {
	t.Helper()
	select {
	case data, ok := <-ch:
		require.True(t, ok, "channel closed")
		var ev Event
		require.NoError(t, json.Unmarshal(data, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertNothing(t *testing.T, ch <-chan []byte) {
	t.Helper()
	select {
	case data := <-ch:
		t.Fatalf("unexpected event %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDeliversToBoardSubscribers(t *testing.T) {
	h := NewHub(nil)

	a, cancelA := h.Subscribe("b1", "client-a")
	defer cancelA()
	b, cancelB := h.Subscribe("b1", "client-b")
	defer cancelB()
	other, cancelOther := h.Subscribe("b2", "client-c")
	defer cancelOther()

	h.Deliver(Event{Type: TypeChanged, BoardID: "b1", Version: 3})

	assert.Equal(t, int64(3), receive(t, a).Version)
	assert.Equal(t, int64(3), receive(t, b).Version)
	assertNothing(t, other)
}

func TestHubSkipsOriginator(t *testing.T) {
	h := NewHub(nil)

	origin, cancelOrigin := h.Subscribe("b1", "client-a")
	defer cancelOrigin()
	peer, cancelPeer := h.Subscribe("b1", "client-b")
	defer cancelPeer()

	require.NoError(t, h.Publish(context.Background(), Event{Type: TypeChanged, BoardID: "b1", Version: 4, Origin: "client-a"}))

	ev := receive(t, peer)
	assert.Equal(t, "client-a", ev.Origin)
	assertNothing(t, origin)
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	h := NewHub(nil)
	ch, cancel := h.Subscribe("b1", "")
	defer cancel()

	for i := range 100 {
		h.Deliver(Event{BoardID: "b1", Version: int64(i)})
	}

	assert.Len(t, ch, cap(ch))
	assert.Equal(t, int64(0), receive(t, ch).Version)
}

func TestHubCancel(t *testing.T) {
	h := NewHub(nil)
	ch, cancel := h.Subscribe("b1", "")
	assert.Equal(t, 1, h.Subscribers("b1"))

	cancel()
	cancel()

	assert.Zero(t, h.Subscribers("b1"))
	_, ok := <-ch
	assert.False(t, ok)

	// Delivering to a board with no subscribers is fine.
	h.Deliver(Event{BoardID: "b1"})
}

func TestServeSSE(t *testing.T) {
	h := NewHub(nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeSSE(w, r, "b1", r.URL.Query().Get("client_id"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?client_id=me", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, ": connected\n", line)

	// Own events are filtered, others arrive.
	h.Deliver(Event{Type: TypeChanged, BoardID: "b1", Version: 1, Origin: "me"})
	h.Deliver(Event{Type: TypeChanged, BoardID: "b1", Version: 2, Origin: "someone"})

	for {
		line, err = r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			break
		}
	}
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &ev))
	assert.Equal(t, int64(2), ev.Version)
	assert.Equal(t, "someone", ev.Origin)

	cancel()
	assert.Eventually(t, func() bool { return h.Subscribers("b1") == 0 }, 2*time.Second, 10*time.Millisecond)
}
