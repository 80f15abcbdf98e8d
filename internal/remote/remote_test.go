package remote_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h0rv/kanban/internal/domain"
	"github.com/h0rv/kanban/internal/engine"
	"github.com/h0rv/kanban/internal/fanout"
	"github.com/h0rv/kanban/internal/persist/persisttest"
	"github.com/h0rv/kanban/internal/remote"
	"github.com/h0rv/kanban/internal/server"
	"github.com/h0rv/kanban/internal/store"
)

type fixture struct {
	srv        *httptest.Server
	alice, bob *remote.Client
	board      domain.Board
	todo, done domain.List
	card       domain.Card
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s := server.New(persisttest.New(t), fanout.NewHub(nil), nil, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	opts := []remote.Option{remote.WithBackoff(10*time.Millisecond, 50*time.Millisecond)}
	f := &fixture{
		srv:   srv,
		alice: remote.New(srv.URL, "alice", append(opts, remote.WithClientID("alice-tui"))...),
		bob:   remote.New(srv.URL, "bob", append(opts, remote.WithClientID("bob-tui"))...),
	}

	ctx := context.Background()
	var err error
	f.board, err = f.alice.CreateBoard(ctx, "Roadmap")
	require.NoError(t, err)
	_, err = f.alice.AddMember(ctx, f.board.ID, "bob", domain.RoleMember)
	require.NoError(t, err)

	lr, err := f.alice.CreateList(ctx, f.board.ID, "To Do")
	require.NoError(t, err)
	f.todo = lr.List
	lr, err = f.alice.CreateList(ctx, f.board.ID, "Done")
	require.NoError(t, err)
	gate := true
	lr, err = f.alice.UpdateList(ctx, lr.List.ID, domain.ListPatch{RequiresApproval: &gate})
	require.NoError(t, err)
	f.done = lr.List

	cr, err := f.bob.CreateCard(ctx, f.todo.ID, domain.NewCard{Title: "A"})
	require.NoError(t, err)
	f.card = cr.Card
	return f
}

func next(t *testing.T, ch <-chan remote.Signal) remote.Signal {
	t.Helper()
	select {
	case s, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for signal")
		return remote.Signal{}
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)
	assert.NoError(t, f.alice.Health(context.Background()))
}

func TestBoardRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.bob.GetBoard(ctx, f.board.ID)
	require.NoError(t, err)
	require.Len(t, b.Lists, 2)
	assert.Equal(t, []string{"To Do", "Done"}, []string{b.Lists[0].Title, b.Lists[1].Title})
	assert.True(t, b.Lists[1].RequiresApproval)
	require.Len(t, b.Lists[0].Cards, 1)

	boards, err := f.bob.ListBoards(ctx)
	require.NoError(t, err)
	require.Len(t, boards, 1)
	assert.Equal(t, domain.RoleMember, boards[0].Role)
}

func TestMoveCardInOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lr, err := f.alice.CreateList(ctx, f.board.ID, "Doing")
	require.NoError(t, err)
	p, err := f.bob.CreateCard(ctx, lr.List.ID, domain.NewCard{Title: "P"})
	require.NoError(t, err)

	r, err := f.bob.MoveCardInOrder(ctx, f.card.ID, lr.List.ID, []string{f.card.ID, p.Card.ID})
	require.NoError(t, err)
	assert.Equal(t, lr.List.ID, r.Card.ListID)
	assert.Equal(t, 1000.0, r.Card.Position)

	b, err := f.bob.GetBoard(ctx, f.board.ID)
	require.NoError(t, err)
	require.Len(t, b.Lists, 3)
	require.Len(t, b.Lists[2].Cards, 2)
	assert.Equal(t, p.Card.ID, b.Lists[2].Cards[1].ID)
	assert.Equal(t, 2000.0, b.Lists[2].Cards[1].Position)
	assert.Empty(t, b.Lists[0].Cards)
}

func TestErrorsMapToDomain(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.bob.MoveCard(ctx, f.card.ID, f.done.ID, 2000)
	pe, ok := domain.AsPolicy(err)
	require.True(t, ok, "got %v", err)
	assert.NotEmpty(t, pe.Reason)
	assert.Equal(t, domain.KindPolicy, domain.Classify(err))

	_, err = f.bob.MoveCard(ctx, "missing", f.done.ID, 2000)
	assert.ErrorIs(t, err, domain.ErrStale)

	_, err = f.bob.ReorderCards(ctx, f.todo.ID, []string{"x", "y"})
	assert.ErrorIs(t, err, domain.ErrStale)

	_, err = f.bob.DeleteBoard(ctx, f.board.ID)
	assert.Equal(t, domain.KindPolicy, domain.Classify(err))

	stranger := remote.New(f.srv.URL, "mallory")
	_, err = stranger.GetBoard(ctx, f.board.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	anon := remote.New(f.srv.URL, "")
	_, err = anon.ListBoards(ctx)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTransportFailureIsTransient(t *testing.T) {
	c := remote.New("http://127.0.0.1:1", "alice")
	_, err := c.GetBoard(context.Background(), "b1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTransient)
	assert.Equal(t, domain.KindTransient, domain.Classify(err))
}

func TestEngineRollsBackPolicyRejection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b, err := f.bob.GetBoard(ctx, f.board.ID)
	require.NoError(t, err)
	s := store.New()
	s.Load(b)
	e := engine.New(s, f.bob)

	before, err := s.CardPlacement(f.card.ID)
	require.NoError(t, err)

	out := e.Submit(ctx, engine.MoveCardIntent{CardID: f.card.ID, TargetListID: f.done.ID, Index: 0})
	require.Error(t, out.Err)
	assert.Equal(t, domain.KindPolicy, out.Kind)
	assert.False(t, out.Refetch)

	after, err := s.CardPlacement(f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Zero(t, e.Pending())

	// Once approved the same move goes through.
	_, err = f.alice.ApproveCard(ctx, f.card.ID)
	require.NoError(t, err)
	require.NoError(t, e.Refresh(ctx))

	out = e.Submit(ctx, engine.MoveCardIntent{CardID: f.card.ID, TargetListID: f.done.ID, Index: 0})
	require.NoError(t, out.Err)
	placed, err := s.CardPlacement(f.card.ID)
	require.NoError(t, err)
	assert.Equal(t, f.done.ID, placed.Container)

	fresh, err := f.alice.GetBoard(ctx, f.board.ID)
	require.NoError(t, err)
	assert.Equal(t, fresh.Version, out.Version)
	require.Len(t, fresh.Lists[1].Cards, 1)
	assert.Equal(t, f.card.ID, fresh.Lists[1].Cards[0].ID)
}

func TestSubscribeDeliversPeerChanges(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := f.alice.Subscribe(ctx, f.board.ID)
	require.True(t, next(t, sigs).Connected)

	r, err := f.bob.CreateCard(ctx, f.todo.ID, domain.NewCard{Title: "B"})
	require.NoError(t, err)

	s := next(t, sigs)
	assert.Equal(t, fanout.TypeChanged, s.Event.Type)
	assert.Equal(t, f.board.ID, s.Event.BoardID)
	assert.Equal(t, r.Version, s.Event.Version)
	assert.Equal(t, "bob-tui", s.Event.Origin)

	cancel()
	for range sigs {
	}
}

func TestSubscribeSkipsOwnChanges(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := f.alice.Subscribe(ctx, f.board.ID)
	require.True(t, next(t, sigs).Connected)

	_, err := f.alice.CreateCard(ctx, f.todo.ID, domain.NewCard{Title: "mine"})
	require.NoError(t, err)
	r, err := f.bob.CreateCard(ctx, f.todo.ID, domain.NewCard{Title: "theirs"})
	require.NoError(t, err)

	s := next(t, sigs)
	assert.Equal(t, r.Version, s.Event.Version)
}

func TestSubscribeReconnects(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := f.alice.Subscribe(ctx, f.board.ID)
	require.True(t, next(t, sigs).Connected)

	f.srv.CloseClientConnections()
	require.True(t, next(t, sigs).Connected)

	r, err := f.bob.CreateCard(ctx, f.todo.ID, domain.NewCard{Title: "after reconnect"})
	require.NoError(t, err)
	assert.Equal(t, r.Version, next(t, sigs).Event.Version)
}

func TestSubscribeStopsWhenForbidden(t *testing.T) {
	f := newFixture(t)
	stranger := remote.New(f.srv.URL, "mallory", remote.WithBackoff(time.Millisecond, time.Millisecond))

	sigs := stranger.Subscribe(context.Background(), f.board.ID)
	s := next(t, sigs)
	require.Error(t, s.Err)
	assert.True(t, errors.Is(s.Err, domain.ErrForbidden))

	_, ok := <-sigs
	assert.False(t, ok)
}

func TestSatellites(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c, _, err := f.bob.AddComment(ctx, f.card.ID, "looks good")
	require.NoError(t, err)
	assert.Equal(t, "bob", c.AuthorID)

	item, _, err := f.bob.AddChecklistItem(ctx, f.card.ID, "write tests")
	require.NoError(t, err)
	item, _, err = f.bob.SetChecklistItem(ctx, item.ID, true)
	require.NoError(t, err)
	assert.True(t, item.Done)

	_, _, err = f.bob.AddAttachment(ctx, f.card.ID, "design.pdf", "https://files.example.com/design.pdf", 1024)
	require.NoError(t, err)
	_, _, err = f.bob.AddAttachment(ctx, f.card.ID, "bad", "not a url", 1)
	assert.ErrorIs(t, err, domain.ErrInvalid)

	comments, err := f.alice.ListComments(ctx, f.card.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	items, err := f.alice.ListChecklist(ctx, f.card.ID)
	require.NoError(t, err)
	require.Len(t, items, 1)
	files, err := f.alice.ListAttachments(ctx, f.card.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)

	b, err := f.alice.GetBoard(ctx, f.board.ID)
	require.NoError(t, err)
	card := b.Lists[0].Cards[0]
	assert.Equal(t, 1, card.CommentCount)
	assert.Equal(t, 1, card.ChecklistDone)
	assert.Equal(t, 1, card.ChecklistCount)
	assert.Equal(t, 1, card.AttachmentCount)
}
