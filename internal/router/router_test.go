package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pongarena/server/internal/config"
	"pongarena/server/internal/game"
	"pongarena/server/internal/gateway"
	"pongarena/server/internal/lobby"
	"pongarena/server/internal/logging"
	"pongarena/server/internal/protocol"
	"pongarena/server/internal/session"
)

type testServer struct {
	router   *Router
	registry *lobby.Registry
	server   *httptest.Server
	url      string
}

func newTestServer(t *testing.T, cfg *config.Config) *testServer {
	return newTestServerOpts(t, Options{Config: cfg})
}

func newTestServerOpts(t *testing.T, opts Options) *testServer {
	t.Helper()
	if opts.Config == nil {
		opts.Config = config.Default()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewTestLogger()
	}
	registry := opts.Registry
	if registry == nil {
		registry = lobby.NewRegistry()
		opts.Registry = registry
	}
	rt := New(opts)
	srv := httptest.NewServer(http.HandlerFunc(rt.ServeWS))
	t.Cleanup(srv.Close)
	return &testServer{
		router:   rt,
		registry: registry,
		server:   srv,
		url:      "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(ts.url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	//1.- Every fresh socket is greeted before anything else.
	frame := readFrame(t, conn, protocol.TypeConnection)
	if frame["type"] != protocol.TypeConnection {
		t.Fatalf("expected connection greeting, got %v", frame)
	}
	return conn
}

// readFrame reads frames until one of the wanted type arrives, skipping
// interleaved broadcasts such as lobbyList refreshes.
func readFrame(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		conn.SetReadDeadline(deadline)
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("waiting for %q frame: %v", want, err)
		}
		if frame["type"] == want {
			return frame
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, frame map[string]any) {
	t.Helper()
	if err := conn.WriteJSON(frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func createLobby(t *testing.T, conn *websocket.Conn, userID int64) string {
	t.Helper()
	send(t, conn, map[string]any{"type": protocol.TypeCreateLobby, "userId": userID})
	frame := readFrame(t, conn, protocol.TypeLobbyCreated)
	lobbyID, _ := frame["lobbyId"].(string)
	if lobbyID == "" {
		t.Fatalf("lobbyCreated frame without lobbyId: %v", frame)
	}
	return lobbyID
}

func TestCreateLobbyAssignsFirstSlot(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	send(t, conn, map[string]any{"type": protocol.TypeCreateLobby, "userId": 101})
	frame := readFrame(t, conn, protocol.TypeLobbyCreated)
	if frame["playerNumber"] != float64(1) {
		t.Fatalf("creator should hold slot 1, got %v", frame["playerNumber"])
	}

	list := readFrame(t, conn, protocol.TypeLobbyList)
	lobbies, _ := list["lobbies"].([]any)
	if len(lobbies) != 1 {
		t.Fatalf("expected one lobby in the list, got %v", list)
	}
}

func TestCreateLobbyRequiresUserID(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	send(t, conn, map[string]any{"type": protocol.TypeCreateLobby})
	frame := readFrame(t, conn, protocol.TypeError)
	if msg, _ := frame["message"].(string); !strings.Contains(msg, "userId") {
		t.Fatalf("unexpected error message: %v", frame)
	}
}

func TestUnknownFrameTypeAnswersError(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	send(t, conn, map[string]any{"type": "teleportBall"})
	frame := readFrame(t, conn, protocol.TypeError)
	if msg, _ := frame["message"].(string); !strings.Contains(msg, "unknown frame type") {
		t.Fatalf("unexpected error message: %v", frame)
	}

	//1.- The connection survives the bad frame.
	send(t, conn, map[string]any{"type": protocol.TypeGetLobbyList})
	readFrame(t, conn, protocol.TypeLobbyList)
}

func TestJoinLobbyNotifiesMembers(t *testing.T) {
	ts := newTestServer(t, nil)
	creator := ts.dial(t)
	joiner := ts.dial(t)

	lobbyID := createLobby(t, creator, 101)
	send(t, joiner, map[string]any{"type": protocol.TypeJoinLobby, "userId": 202, "lobbyId": lobbyID})

	joined := readFrame(t, joiner, protocol.TypeJoinedLobby)
	if joined["playerNumber"] != float64(2) {
		t.Fatalf("joiner should hold slot 2, got %v", joined)
	}
	notice := readFrame(t, creator, protocol.TypePlayerJoined)
	if notice["playerId"] != float64(202) || notice["playerCount"] != float64(2) {
		t.Fatalf("unexpected playerJoined broadcast: %v", notice)
	}
}

func TestJoinUnknownLobbyAnswersError(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	send(t, conn, map[string]any{"type": protocol.TypeJoinLobby, "userId": 202, "lobbyId": "no-such-lobby"})
	frame := readFrame(t, conn, protocol.TypeError)
	if msg, _ := frame["message"].(string); !strings.Contains(msg, "lobby not found") {
		t.Fatalf("unexpected error message: %v", frame)
	}
}

func TestStartGameIsCreatorOnly(t *testing.T) {
	ts := newTestServer(t, nil)
	creator := ts.dial(t)
	joiner := ts.dial(t)

	lobbyID := createLobby(t, creator, 101)
	send(t, joiner, map[string]any{"type": protocol.TypeJoinLobby, "userId": 202, "lobbyId": lobbyID})
	readFrame(t, joiner, protocol.TypeJoinedLobby)

	send(t, joiner, map[string]any{"type": protocol.TypeStartGame})
	frame := readFrame(t, joiner, protocol.TypeError)
	if msg, _ := frame["message"].(string); !strings.Contains(msg, "creator") {
		t.Fatalf("unexpected error message: %v", frame)
	}
}

func TestReadyThenStartBroadcastsInitGame(t *testing.T) {
	ts := newTestServer(t, nil)
	creator := ts.dial(t)
	joiner := ts.dial(t)

	lobbyID := createLobby(t, creator, 101)
	send(t, joiner, map[string]any{"type": protocol.TypeJoinLobby, "userId": 202, "lobbyId": lobbyID})
	readFrame(t, joiner, protocol.TypeJoinedLobby)

	//1.- Starting before everyone is ready must fail.
	send(t, creator, map[string]any{"type": protocol.TypeStartGame})
	readFrame(t, creator, protocol.TypeError)

	send(t, creator, map[string]any{"type": protocol.TypeReady, "ready": true})
	readFrame(t, creator, protocol.TypePlayerReady)
	send(t, joiner, map[string]any{"type": protocol.TypeReady, "ready": true})
	readFrame(t, joiner, protocol.TypeAllPlayersReady)

	send(t, creator, map[string]any{"type": protocol.TypeStartGame})
	init := readFrame(t, joiner, session.EventInit)
	state, _ := init["state"].(map[string]any)
	if state == nil || state["running"] != true {
		t.Fatalf("initGame should carry a running snapshot: %v", init)
	}
	//2.- The simulation loop follows up with periodic updates.
	readFrame(t, creator, session.EventUpdate)

	l, ok := ts.registry.Get(lobbyID)
	if !ok || l.Session().Phase() != session.PhaseRunning {
		t.Fatal("lobby session should be running after startGame")
	}
	l.Teardown()
}

func TestDisconnectPausesGameAndNotifiesLobby(t *testing.T) {
	ts := newTestServer(t, nil)
	creator := ts.dial(t)
	joiner := ts.dial(t)

	lobbyID := createLobby(t, creator, 101)
	send(t, joiner, map[string]any{"type": protocol.TypeJoinLobby, "userId": 202, "lobbyId": lobbyID})
	readFrame(t, joiner, protocol.TypeJoinedLobby)
	send(t, creator, map[string]any{"type": protocol.TypeReady, "ready": true})
	send(t, joiner, map[string]any{"type": protocol.TypeReady, "ready": true})
	readFrame(t, creator, protocol.TypeAllPlayersReady)
	send(t, creator, map[string]any{"type": protocol.TypeStartGame})
	readFrame(t, creator, session.EventInit)

	joiner.Close()

	notice := readFrame(t, creator, protocol.TypePlayerDisconnected)
	if notice["id"] != float64(202) || notice["playerCount"] != float64(1) {
		t.Fatalf("unexpected disconnect broadcast: %v", notice)
	}
	l, ok := ts.registry.Get(lobbyID)
	if !ok {
		t.Fatal("lobby must survive a single departure")
	}
	//1.- A one-player match freezes instead of finishing.
	if phase := l.Session().Phase(); phase != session.PhasePaused {
		t.Fatalf("session should be paused after a disconnect, got %v", phase)
	}
	l.Teardown()
}

func TestLeaveLastPlayerRemovesLobby(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	createLobby(t, conn, 101)
	send(t, conn, map[string]any{"type": protocol.TypeLeaveLobby})
	readFrame(t, conn, protocol.TypeLeftLobby)

	list := readFrame(t, conn, protocol.TypeLobbyList)
	if lobbies, _ := list["lobbies"].([]any); len(lobbies) != 0 {
		t.Fatalf("lobby list should be empty after last leave: %v", list)
	}
	if ts.registry.Len() != 0 {
		t.Fatalf("registry should be empty, holds %d", ts.registry.Len())
	}
}

func TestCreatorHandOffBroadcastsNewCreator(t *testing.T) {
	ts := newTestServer(t, nil)
	creator := ts.dial(t)
	joiner := ts.dial(t)

	lobbyID := createLobby(t, creator, 101)
	send(t, joiner, map[string]any{"type": protocol.TypeJoinLobby, "userId": 202, "lobbyId": lobbyID})
	readFrame(t, joiner, protocol.TypeJoinedLobby)

	send(t, creator, map[string]any{"type": protocol.TypeLeaveLobby})
	notice := readFrame(t, joiner, protocol.TypeNewCreator)
	if notice["creatorId"] != float64(202) {
		t.Fatalf("expected creator hand-off to 202, got %v", notice)
	}
}

func TestMovePaddleOutsideLobbyAnswersError(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	send(t, conn, map[string]any{"type": protocol.TypeMovePaddle, "direction": "up"})
	frame := readFrame(t, conn, protocol.TypeError)
	if msg, _ := frame["message"].(string); !strings.Contains(msg, "not in a lobby") {
		t.Fatalf("unexpected error message: %v", frame)
	}
}

func TestMovePaddleRejectsInvalidDirection(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	createLobby(t, conn, 101)
	send(t, conn, map[string]any{"type": protocol.TypeMovePaddle, "direction": "sideways"})
	frame := readFrame(t, conn, protocol.TypeError)
	if msg, _ := frame["message"].(string); !strings.Contains(msg, "invalid direction") {
		t.Fatalf("unexpected error message: %v", frame)
	}
}

func TestLobbyCreationIsRateLimited(t *testing.T) {
	cfg := config.Default()
	cfg.LobbyCreateBurst = 1
	cfg.LobbyCreateWindow = time.Hour
	ts := newTestServer(t, cfg)
	conn := ts.dial(t)

	createLobby(t, conn, 101)
	send(t, conn, map[string]any{"type": protocol.TypeLeaveLobby})
	readFrame(t, conn, protocol.TypeLeftLobby)

	send(t, conn, map[string]any{"type": protocol.TypeCreateLobby, "userId": 101})
	frame := readFrame(t, conn, protocol.TypeError)
	if msg, _ := frame["message"].(string); !strings.Contains(msg, "slow down") {
		t.Fatalf("unexpected error message: %v", frame)
	}
}

func TestMaxClientsRejectsExtraConnections(t *testing.T) {
	cfg := config.Default()
	cfg.MaxClients = 1
	ts := newTestServer(t, cfg)
	ts.dial(t)

	if _, resp, err := websocket.DefaultDialer.Dial(ts.url, nil); err == nil {
		t.Fatal("second connection should be rejected")
	} else if resp == nil || resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 handshake rejection, got %+v", resp)
	}
}

func TestStartTournamentRunsBracket(t *testing.T) {
	ts := newTestServer(t, nil)
	creator := ts.dial(t)
	joiner := ts.dial(t)

	send(t, creator, map[string]any{"type": protocol.TypeCreateTournament, "userId": 101})
	frame := readFrame(t, creator, protocol.TypeLobbyCreated)
	lobbyID, _ := frame["lobbyId"].(string)

	send(t, joiner, map[string]any{"type": protocol.TypeJoinLobby, "userId": 202, "lobbyId": lobbyID})
	readFrame(t, joiner, protocol.TypeJoinedLobby)
	send(t, creator, map[string]any{"type": protocol.TypeReady, "ready": true})
	send(t, joiner, map[string]any{"type": protocol.TypeReady, "ready": true})
	readFrame(t, creator, protocol.TypeAllPlayersReady)

	//1.- Only the creator may start the bracket.
	send(t, joiner, map[string]any{"type": protocol.TypeStartTournament})
	readFrame(t, joiner, protocol.TypeError)

	send(t, creator, map[string]any{"type": protocol.TypeStartTournament})
	started := readFrame(t, joiner, protocol.TypeTournamentStarted)
	if started["round"] != float64(1) {
		t.Fatalf("expected round 1 announcement, got %v", started)
	}
	pairings, _ := started["pairings"].([]any)
	if len(pairings) != 1 {
		t.Fatalf("two entrants pair into one match, got %v", started)
	}

	send(t, creator, map[string]any{"type": protocol.TypeGetTournamentInfo})
	info := readFrame(t, creator, protocol.TypeTournamentInfo)
	if info["status"] != "ongoing" {
		t.Fatalf("tournament should be ongoing, got %v", info)
	}
	l, _ := ts.registry.Get(lobbyID)
	l.Teardown()
}

// startTwoPlayerTournament drives the full create/join/ready/start exchange
// and returns once the round 1 announcement arrived.
func startTwoPlayerTournament(t *testing.T, ts *testServer) (creator, joiner *websocket.Conn, lobbyID string) {
	t.Helper()
	creator = ts.dial(t)
	joiner = ts.dial(t)

	send(t, creator, map[string]any{"type": protocol.TypeCreateTournament, "userId": 101})
	frame := readFrame(t, creator, protocol.TypeLobbyCreated)
	lobbyID, _ = frame["lobbyId"].(string)

	send(t, joiner, map[string]any{"type": protocol.TypeJoinLobby, "userId": 202, "lobbyId": lobbyID})
	readFrame(t, joiner, protocol.TypeJoinedLobby)
	send(t, creator, map[string]any{"type": protocol.TypeReady, "ready": true})
	send(t, joiner, map[string]any{"type": protocol.TypeReady, "ready": true})
	readFrame(t, creator, protocol.TypeAllPlayersReady)

	send(t, creator, map[string]any{"type": protocol.TypeStartTournament})
	readFrame(t, creator, protocol.TypeTournamentStarted)
	return creator, joiner, lobbyID
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTournamentPaddleCommandsReachPairing(t *testing.T) {
	ts := newTestServer(t, nil)
	creator, _, _ := startTwoPlayerTournament(t, ts)

	//1.- The creator registered first, so they steer paddle one.
	home := (game.FieldHeight - game.PaddleHeight) / 2
	deadline := time.Now().Add(3 * time.Second)
	moved := false
	for !moved && time.Now().Before(deadline) {
		for i := 0; i < 10; i++ {
			send(t, creator, map[string]any{"type": protocol.TypeMovePaddle, "direction": "up"})
		}
		update := readFrame(t, creator, session.EventUpdate)
		//2.- Every pairing broadcast identifies its players.
		if update["player1Id"] != float64(101) || update["player2Id"] != float64(202) {
			t.Fatalf("pairing frame lacks player ids: %v", update)
		}
		state, _ := update["state"].(map[string]any)
		paddle, _ := state["paddle1"].(map[string]any)
		if y, ok := paddle["y"].(float64); ok && y < float64(home) {
			moved = true
		}
	}
	if !moved {
		t.Fatal("paddle commands never reached the pairing session")
	}
}

func TestTournamentPauseResumeControlsPairings(t *testing.T) {
	ts := newTestServer(t, nil)
	creator, joiner, _ := startTwoPlayerTournament(t, ts)

	//1.- Only the creator may pause the bracket.
	send(t, joiner, map[string]any{"type": protocol.TypePauseGame})
	readFrame(t, joiner, protocol.TypeError)

	send(t, creator, map[string]any{"type": protocol.TypePauseGame})
	paused := readFrame(t, creator, session.EventPause)
	if state, _ := paused["state"].(map[string]any); state["paused"] != true {
		t.Fatalf("pause frame carries an unpaused snapshot: %v", paused)
	}

	send(t, creator, map[string]any{"type": protocol.TypeResumeGame})
	resumed := readFrame(t, creator, session.EventResume)
	if state, _ := resumed["state"].(map[string]any); state["running"] != true {
		t.Fatalf("resume frame carries a stopped snapshot: %v", resumed)
	}
}

func TestPauseBeforeTournamentStartAnswersError(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	send(t, conn, map[string]any{"type": protocol.TypeCreateTournament, "userId": 101})
	readFrame(t, conn, protocol.TypeLobbyCreated)

	send(t, conn, map[string]any{"type": protocol.TypePauseGame})
	frame := readFrame(t, conn, protocol.TypeError)
	if msg, _ := frame["message"].(string); !strings.Contains(msg, "not started") {
		t.Fatalf("unexpected error message: %v", frame)
	}
}

func TestStartTournamentTwiceAnswersError(t *testing.T) {
	ts := newTestServer(t, nil)
	creator, _, _ := startTwoPlayerTournament(t, ts)

	send(t, creator, map[string]any{"type": protocol.TypeStartTournament})
	frame := readFrame(t, creator, protocol.TypeError)
	if msg, _ := frame["message"].(string); !strings.Contains(msg, "already started") {
		t.Fatalf("unexpected error message: %v", frame)
	}
}

type recordingTournaments struct {
	gateway.NoopTournaments
	mu       sync.Mutex
	statuses []string
}

func (g *recordingTournaments) UpdateTournamentStatus(_ context.Context, _ int64, status string) error {
	g.mu.Lock()
	g.statuses = append(g.statuses, status)
	g.mu.Unlock()
	return nil
}

func (g *recordingTournaments) lastStatus() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.statuses) == 0 {
		return ""
	}
	return g.statuses[len(g.statuses)-1]
}

func TestEmptiedTournamentLobbyCancelsDurableRow(t *testing.T) {
	gw := &recordingTournaments{}
	ts := newTestServerOpts(t, Options{Tournaments: gw})
	conn := ts.dial(t)

	send(t, conn, map[string]any{"type": protocol.TypeCreateTournament, "userId": 101})
	frame := readFrame(t, conn, protocol.TypeLobbyCreated)
	lobbyID, _ := frame["lobbyId"].(string)

	//1.- Creation persists off the hot path; wait for the row binding.
	waitFor(t, "tournament row binding", func() bool {
		return ts.router.tournamentID(lobbyID) != 0
	})

	send(t, conn, map[string]any{"type": protocol.TypeLeaveLobby})
	readFrame(t, conn, protocol.TypeLeftLobby)

	waitFor(t, "cancelled status", func() bool {
		return gw.lastStatus() == gateway.TournamentStatusCancelled
	})
}

func TestGetTournamentInfoBeforeStartAnswersError(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	send(t, conn, map[string]any{"type": protocol.TypeCreateTournament, "userId": 101})
	readFrame(t, conn, protocol.TypeLobbyCreated)

	send(t, conn, map[string]any{"type": protocol.TypeGetTournamentInfo})
	frame := readFrame(t, conn, protocol.TypeError)
	if msg, _ := frame["message"].(string); !strings.Contains(msg, "not started") {
		t.Fatalf("unexpected error message: %v", frame)
	}
}
