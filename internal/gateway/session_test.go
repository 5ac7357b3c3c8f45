package gateway

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomasbielik/precedent/internal/bus"
	"github.com/tomasbielik/precedent/internal/models"
	"github.com/tomasbielik/precedent/internal/store"
)

func dialSession(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	wsURL := strings.Replace(srv.URL, "http://", "ws://", 1)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readServerMessage(t *testing.T, conn *websocket.Conn) ServerMessage {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg ServerMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func TestSessionReplayThenLive(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b := bus.NewLocalBus(nil)

	research, err := st.CreateResearch(ctx, "premlčanie nároku na náhradu škody", "alice")
	require.NoError(t, err)
	require.NoError(t, st.AppendEvent(ctx, research.ID, models.Event{Type: "started", At: time.Now()}))
	require.NoError(t, st.AppendEvent(ctx, research.ID, models.Event{Type: "scoping", At: time.Now()}))

	conn := dialSession(t, NewHandler(NewRegistry(b, nil), st, nil))
	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "subscribe", ResearchID: research.ID}))

	ack := readServerMessage(t, conn)
	assert.Equal(t, "subscribed", ack.Type)
	assert.Equal(t, research.ID, ack.ResearchID)

	// Recorded history comes first, in append order.
	first := readServerMessage(t, conn)
	require.NotNil(t, first.Event)
	assert.Equal(t, "started", first.Event.Type)
	second := readServerMessage(t, conn)
	require.NotNil(t, second.Event)
	assert.Equal(t, "scoping", second.Event.Type)

	// Live events flow through after the replay.
	live := models.Event{
		Type: "searching",
		Data: map[string]any{"search_keyword": "premlčanie"},
		At:   time.Now(),
	}
	require.NoError(t, b.Publish(ctx, research.ID, live))

	update := readServerMessage(t, conn)
	assert.Equal(t, "update", update.Type)
	require.NotNil(t, update.Event)
	assert.Equal(t, "searching", update.Event.Type)
	assert.Equal(t, "premlčanie", update.Event.Data["search_keyword"])
}

// gatedStore parks GetResearch so a test can publish into the window between
// the live subscription opening and the history snapshot.
type gatedStore struct {
	store.Store
	entered chan struct{}
	gate    chan struct{}
}

func (g *gatedStore) GetResearch(ctx context.Context, id string) (*models.Research, error) {
	g.entered <- struct{}{}
	<-g.gate
	return g.Store.GetResearch(ctx, id)
}

func TestSessionEventDuringHandoffIsNotLost(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	b := bus.NewLocalBus(nil)

	research, err := mem.CreateResearch(ctx, "zodpovednosť za vady diela", "carol")
	require.NoError(t, err)

	gs := &gatedStore{Store: mem, entered: make(chan struct{}, 1), gate: make(chan struct{})}
	conn := dialSession(t, NewHandler(NewRegistry(b, nil), gs, nil))
	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "subscribe", ResearchID: research.ID}))

	// The session is now past the live subscription and parked on the
	// history snapshot. Anything published here must still be delivered.
	select {
	case <-gs.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("session never reached the history snapshot")
	}
	require.NoError(t, b.Publish(ctx, research.ID, models.Event{Type: "scoped", At: time.Now()}))
	close(gs.gate)

	assert.Equal(t, "subscribed", readServerMessage(t, conn).Type)
	update := readServerMessage(t, conn)
	assert.Equal(t, "update", update.Type)
	require.NotNil(t, update.Event)
	assert.Equal(t, "scoped", update.Event.Type)
}

func TestSessionSubscribeUnknownResearch(t *testing.T) {
	h := NewHandler(NewRegistry(bus.NewLocalBus(nil), nil), store.NewMemory(), nil)
	conn := dialSession(t, h)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "subscribe", ResearchID: "missing"}))

	msg := readServerMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "research not found", msg.Message)
}

func TestSessionUnsubscribeStopsUpdates(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	b := bus.NewLocalBus(nil)

	research, err := st.CreateResearch(ctx, "vyporiadanie bezpodielového spoluvlastníctva", "bob")
	require.NoError(t, err)

	conn := dialSession(t, NewHandler(NewRegistry(b, nil), st, nil))
	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "subscribe", ResearchID: research.ID}))
	assert.Equal(t, "subscribed", readServerMessage(t, conn).Type)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "unsubscribe", ResearchID: research.ID}))
	assert.Equal(t, "unsubscribed", readServerMessage(t, conn).Type)

	require.NoError(t, b.Publish(ctx, research.ID, models.Event{Type: "planning", At: time.Now()}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	var msg ServerMessage
	err = conn.ReadJSON(&msg)
	require.Error(t, err, "no update should arrive after unsubscribing")
}

func TestSessionRejectsUnknownAction(t *testing.T) {
	h := NewHandler(NewRegistry(bus.NewLocalBus(nil), nil), store.NewMemory(), nil)
	conn := dialSession(t, h)

	require.NoError(t, conn.WriteJSON(ClientMessage{Action: "shout", ResearchID: "whatever"}))

	msg := readServerMessage(t, conn)
	assert.Equal(t, "error", msg.Type)
	assert.Equal(t, "unknown action", msg.Message)
}
