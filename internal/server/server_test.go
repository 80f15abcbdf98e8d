package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h0rv/kanban/internal/api"
	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/fanout"
	"github.com/h0rv/kanban/internal/persist/persisttest"
)

type testServer struct {
	t   *testing.T
	srv *httptest.Server
	hub *fanout.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	hub := fanout.NewHub(nil)
	s := New(persisttest.New(t), hub, nil, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, hub: hub}
}

// do sends a JSON request as user and decodes the response into out when given.
func (ts *testServer) do(method, path, user string, body, out any) int {
	ts.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(ts.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(api.HeaderUserID, user)
	}
	req.Header.Set(api.HeaderClientID, user+"-client")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type seeded struct {
	board      domain.Board
	todo, done domain.List
	card       domain.Card
}

func (ts *testServer) seed() seeded {
	ts.t.Helper()
	var sd seeded
	require.Equal(ts.t, http.StatusCreated, ts.do("POST", "/api/boards", "alice", api.TitleRequest{Title: "Roadmap"}, &sd.board))
	require.Equal(ts.t, http.StatusOK, ts.do("POST", "/api/boards/"+sd.board.ID+"/members", "alice",
		api.MemberRequest{UserID: "bob", Role: domain.RoleMember}, nil))

	var lr domain.ListReceipt
	require.Equal(ts.t, http.StatusCreated, ts.do("POST", "/api/boards/"+sd.board.ID+"/lists", "alice", api.TitleRequest{Title: "To Do"}, &lr))
	sd.todo = lr.List
	require.Equal(ts.t, http.StatusCreated, ts.do("POST", "/api/boards/"+sd.board.ID+"/lists", "alice", api.TitleRequest{Title: "Done"}, &lr))
	gate := true
	require.Equal(ts.t, http.StatusOK, ts.do("PATCH", "/api/lists/"+lr.List.ID, "alice", domain.ListPatch{RequiresApproval: &gate}, &lr))
	sd.done = lr.List

	var cr domain.CardReceipt
	require.Equal(ts.t, http.StatusCreated, ts.do("POST", "/api/lists/"+sd.todo.ID+"/cards", "bob", domain.NewCard{Title: "A"}, &cr))
	sd.card = cr.Card
	return sd
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	var out map[string]any
	assert.Equal(t, http.StatusOK, ts.do("GET", "/api/health", "", nil, &out))
	assert.Equal(t, true, out["ok"])
}

func TestRequiresUser(t *testing.T) {
	ts := newTestServer(t)
	var body api.ErrorBody
	assert.Equal(t, http.StatusUnauthorized, ts.do("GET", "/api/boards", "", nil, &body))
	assert.Equal(t, api.CodeUnauthorized, body.Code)
	assert.False(t, body.OK)
}

func TestBoardRoundTrip(t *testing.T) {
	ts := newTestServer(t)
	sd := ts.seed()

	var b domain.Board
	require.Equal(t, http.StatusOK, ts.do("GET", "/api/boards/"+sd.board.ID, "bob", nil, &b))
	require.Len(t, b.Lists, 2)
	assert.Equal(t, "To Do", b.Lists[0].Title)
	require.Len(t, b.Lists[0].Cards, 1)
	assert.Equal(t, sd.card.ID, b.Lists[0].Cards[0].ID)

	var boards []domain.BoardSummary
	require.Equal(t, http.StatusOK, ts.do("GET", "/api/boards", "bob", nil, &boards))
	require.Len(t, boards, 1)
	assert.Equal(t, domain.RoleMember, boards[0].Role)
}

func TestErrorMapping(t *testing.T) {
	ts := newTestServer(t)
	sd := ts.seed()

	var body api.ErrorBody
	status := ts.do("POST", "/api/cards/"+sd.card.ID+"/move", "bob", api.MoveRequest{TargetListID: sd.done.ID, Position: 0}, &body)
	assert.Equal(t, http.StatusUnprocessableEntity, status)
	assert.Equal(t, api.CodePolicyRejected, body.Code)
	assert.Contains(t, body.Reason, "requires approval")

	body = api.ErrorBody{}
	status = ts.do("PUT", "/api/lists/"+sd.todo.ID+"/cards/order", "bob", api.ReorderRequest{OrderedIDs: []string{"ghost"}}, &body)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, api.CodeStale, body.Code)

	body = api.ErrorBody{}
	assert.Equal(t, http.StatusNotFound, ts.do("GET", "/api/boards/nope", "bob", nil, &body))
	assert.Equal(t, api.CodeNotFound, body.Code)

	body = api.ErrorBody{}
	assert.Equal(t, http.StatusForbidden, ts.do("GET", "/api/boards/"+sd.board.ID, "mallory", nil, &body))
	assert.Equal(t, api.CodeForbidden, body.Code)

	body = api.ErrorBody{}
	assert.Equal(t, http.StatusBadRequest, ts.do("POST", "/api/boards", "bob", map[string]any{"bogus": 1}, &body))
	assert.Equal(t, api.CodeInvalid, body.Code)
}

func TestApproveThenMove(t *testing.T) {
	ts := newTestServer(t)
	sd := ts.seed()

	var cr domain.CardReceipt
	require.Equal(t, http.StatusOK, ts.do("POST", "/api/cards/"+sd.card.ID+"/approve", "alice", nil, &cr))
	assert.True(t, cr.Card.Approved)

	require.Equal(t, http.StatusOK, ts.do("POST", "/api/cards/"+sd.card.ID+"/move", "bob", api.MoveRequest{TargetListID: sd.done.ID, Position: 1000}, &cr))
	assert.Equal(t, sd.done.ID, cr.Card.ListID)
	assert.Equal(t, 1000.0, cr.Card.Position)
}

func TestSatellites(t *testing.T) {
	ts := newTestServer(t)
	sd := ts.seed()
	base := "/api/cards/" + sd.card.ID

	var cr api.CommentResponse
	require.Equal(t, http.StatusCreated, ts.do("POST", base+"/comments", "bob", api.CommentRequest{Body: "hi"}, &cr))
	assert.Equal(t, "bob", cr.Comment.AuthorID)

	var ir api.ChecklistItemResponse
	require.Equal(t, http.StatusCreated, ts.do("POST", base+"/checklist", "bob", api.TitleRequest{Title: "step"}, &ir))
	require.Equal(t, http.StatusOK, ts.do("PATCH", "/api/checklist/"+ir.Item.ID, "bob", api.ChecklistPatchRequest{Done: true}, &ir))
	assert.True(t, ir.Item.Done)

	var ar api.AttachmentResponse
	require.Equal(t, http.StatusCreated, ts.do("POST", base+"/attachments", "bob",
		api.AttachmentRequest{Name: "log.txt", URL: "https://example.com/log.txt", Size: 10}, &ar))
	assert.Greater(t, ar.Version, cr.Version)

	var comments []domain.Comment
	require.Equal(t, http.StatusOK, ts.do("GET", base+"/comments", "bob", nil, &comments))
	assert.Len(t, comments, 1)

	var b domain.Board
	require.Equal(t, http.StatusOK, ts.do("GET", "/api/boards/"+sd.board.ID, "bob", nil, &b))
	c := b.Lists[0].Cards[0]
	assert.Equal(t, 1, c.CommentCount)
	assert.Equal(t, 1, c.ChecklistDone)
	assert.Equal(t, 1, c.AttachmentCount)
}

func TestMutationsPublishExceptToOrigin(t *testing.T) {
	ts := newTestServer(t)
	sd := ts.seed()

	peer, cancelPeer := ts.hub.Subscribe(sd.board.ID, "alice-client")
	defer cancelPeer()
	origin, cancelOrigin := ts.hub.Subscribe(sd.board.ID, "bob-client")
	defer cancelOrigin()

	var rcpt domain.Receipt
	require.Equal(t, http.StatusOK, ts.do("PUT", "/api/lists/"+sd.todo.ID+"/cards/order", "bob",
		api.ReorderRequest{OrderedIDs: []string{sd.card.ID}}, &rcpt))

	select {
	case data := <-peer:
		var ev fanout.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		assert.Equal(t, fanout.TypeChanged, ev.Type)
		assert.Equal(t, rcpt.Version, ev.Version)
		assert.Equal(t, "bob-client", ev.Origin)
	case <-time.After(2 * time.Second):
		t.Fatal("peer not notified")
	}

	select {
	case data := <-origin:
		t.Fatalf("originator notified: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFailedMutationDoesNotPublish(t *testing.T) {
	ts := newTestServer(t)
	sd := ts.seed()

	peer, cancel := ts.hub.Subscribe(sd.board.ID, "alice-client")
	defer cancel()

	ts.do("POST", "/api/cards/"+sd.card.ID+"/move", "bob", api.MoveRequest{TargetListID: sd.done.ID}, nil)

	select {
	case data := <-peer:
		t.Fatalf("unexpected event %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestEventsRequireMembership(t *testing.T) {
	ts := newTestServer(t)
	sd := ts.seed()

	var body api.ErrorBody
	assert.Equal(t, http.StatusForbidden, ts.do("GET", "/api/boards/"+sd.board.ID+"/events", "mallory", nil, &body))
}
