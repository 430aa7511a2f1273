package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"pongarena/server/internal/config"
	"pongarena/server/internal/game"
	"pongarena/server/internal/gateway"
	"pongarena/server/internal/httpapi"
	"pongarena/server/internal/lobby"
	"pongarena/server/internal/logging"
	"pongarena/server/internal/protocol"
	"pongarena/server/internal/replay"
	"pongarena/server/internal/session"
	"pongarena/server/internal/tournament"
)

const persistTimeout = 5 * time.Second

// Options wires the router's collaborators.
type Options struct {
	Config      *config.Config
	Logger      *logging.Logger
	Registry    *lobby.Registry
	Identity    gateway.Identity
	Matches     gateway.Matches
	Tournaments gateway.Tournaments
	Monitor     *session.TickMonitor
	Context     context.Context
}

// Router binds websocket connections to players, decodes inbound frames,
// dispatches them to lobby and session operations and fans outbound frames
// back out. It is the only component that knows about transports.
type Router struct {
	cfg      *config.Config
	logger   *logging.Logger
	upgrader websocket.Upgrader
	registry *lobby.Registry
	identity gateway.Identity
	matches  gateway.Matches
	tstore   gateway.Tournaments
	monitor  *session.TickMonitor
	ctx      context.Context

	mu            sync.Mutex
	clients       map[*Client]struct{}
	schedulers    map[string]*tournament.Scheduler
	tournamentIDs map[string]int64
	seats         map[string]map[int64]pairingSeat

	broadcasts atomic.Int64
	started    time.Time
	startupErr error
}

// New constructs a router with defaults for any collaborator left unset.
func New(opts Options) *Router {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.L()
	}
	registry := opts.Registry
	if registry == nil {
		registry = lobby.NewRegistry()
	}
	identity := opts.Identity
	if identity == nil {
		identity = gateway.NoopIdentity{}
	}
	matches := opts.Matches
	if matches == nil {
		matches = &gateway.NoopMatches{}
	}
	tstore := opts.Tournaments
	if tstore == nil {
		tstore = &gateway.NoopTournaments{}
	}
	monitor := opts.Monitor
	if monitor == nil {
		monitor = session.NewTickMonitor()
	}
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}

	r := &Router{
		cfg:           cfg,
		logger:        logger,
		registry:      registry,
		identity:      identity,
		matches:       matches,
		tstore:        tstore,
		monitor:       monitor,
		ctx:           ctx,
		clients:       make(map[*Client]struct{}),
		schedulers:    make(map[string]*tournament.Scheduler),
		tournamentIDs: make(map[string]int64),
		seats:         make(map[string]map[int64]pairingSeat),
		started:       time.Now(),
	}
	r.upgrader = websocket.Upgrader{CheckOrigin: r.checkOrigin}
	return r
}

func (r *Router) checkOrigin(req *http.Request) bool {
	//1.- An empty allowlist keeps the development default of accepting all.
	if len(r.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := req.Header.Get("Origin")
	for _, allowed := range r.cfg.AllowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

// ServeWS upgrades one HTTP request and runs the client's pumps.
func (r *Router) ServeWS(w http.ResponseWriter, req *http.Request) {
	if r.cfg.MaxClients > 0 && r.ConnectedClients() >= r.cfg.MaxClients {
		http.Error(w, "server is full", http.StatusServiceUnavailable)
		return
	}
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}

	limiter := httpapi.NewSlidingWindowLimiter(r.cfg.LobbyCreateWindow, r.cfg.LobbyCreateBurst, nil)
	client := newClient(conn, limiter)
	r.mu.Lock()
	r.clients[client] = struct{}{}
	r.mu.Unlock()

	r.sendTo(client, protocol.ConnectionFrame{Type: protocol.TypeConnection})
	go r.writePump(client)
	go r.readPump(client)
}

func (r *Router) readPump(client *Client) {
	defer r.disconnect(client)

	client.conn.SetReadLimit(r.cfg.MaxPayloadBytes)
	deadline := 2 * r.cfg.PingInterval
	client.conn.SetReadDeadline(time.Now().Add(deadline))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, payload, err := client.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				r.logger.Debug("websocket read failed", logging.Error(err))
			}
			return
		}
		r.handleFrame(client, payload)
	}
}

func (r *Router) writePump(client *Client) {
	ticker := time.NewTicker(r.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		client.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-client.send:
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := client.conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		}
	}
}

// disconnect tears one socket down: the bound player leaves their lobby and
// the registry entry is purged.
func (r *Router) disconnect(client *Client) {
	r.mu.Lock()
	_, known := r.clients[client]
	delete(r.clients, client)
	r.mu.Unlock()
	if !known {
		return
	}
	r.leaveCurrentLobby(client, false)
	client.closeSend()
	client.conn.Close()
}

// handleFrame decodes and dispatches one inbound frame. Malformed payloads
// are logged and dropped; unknown types get an explicit error reply.
func (r *Router) handleFrame(client *Client, payload []byte) {
	frame, err := protocol.DecodeClientFrame(payload)
	if err != nil {
		if errors.Is(err, protocol.ErrUnknownType) {
			r.sendError(client, "unknown frame type")
			return
		}
		r.logger.Debug("dropping malformed frame", logging.Error(err))
		return
	}

	switch frame.Type {
	case protocol.TypeCreateLobby:
		r.handleCreateLobby(client, frame, lobby.KindMatch)
	case protocol.TypeCreateTournament:
		r.handleCreateLobby(client, frame, lobby.KindTournament)
	case protocol.TypeJoinLobby:
		r.handleJoinLobby(client, frame)
	case protocol.TypeLeaveLobby:
		r.handleLeaveLobby(client)
	case protocol.TypeGetLobbyList:
		r.sendTo(client, protocol.LobbyListFrame{Type: protocol.TypeLobbyList, Lobbies: r.registry.Summaries()})
	case protocol.TypeGetLobbyByID:
		r.handleGetLobbyByID(client, frame)
	case protocol.TypeReady:
		r.handleReady(client, frame)
	case protocol.TypeStartGame:
		r.handleStartGame(client)
	case protocol.TypePauseGame:
		r.handlePauseResume(client, true)
	case protocol.TypeResumeGame:
		r.handlePauseResume(client, false)
	case protocol.TypeMovePaddle:
		r.handleMovePaddle(client, frame)
	case protocol.TypeStartTournament:
		r.handleStartTournament(client)
	case protocol.TypeGetTournamentInfo:
		r.handleGetTournamentInfo(client)
	}
}

// resolveUsername validates the caller against the identity gateway. An
// unreachable gateway falls back to a synthetic name: in-memory state stays
// authoritative over persistence hiccups.
func (r *Router) resolveUsername(userID int64) (string, bool) {
	ctx, cancel := context.WithTimeout(r.ctx, persistTimeout)
	defer cancel()
	user, err := r.identity.FindUserByID(ctx, userID)
	if err == nil {
		return user.Username, true
	}
	if errors.Is(err, gateway.ErrNotFound) {
		return "", false
	}
	r.logger.Warn("identity lookup failed", logging.Int64("user_id", userID), logging.Error(err))
	return "player-" + strconv.FormatInt(userID, 10), true
}

func (r *Router) handleCreateLobby(client *Client, frame protocol.ClientFrame, kind lobby.Kind) {
	if frame.UserID == 0 {
		r.sendError(client, "userId is required")
		return
	}
	if client.LobbyID() != "" {
		r.sendError(client, "already in a lobby")
		return
	}
	if !client.limiter.Allow() {
		r.sendError(client, "too many lobbies created, slow down")
		return
	}
	username, ok := r.resolveUsername(frame.UserID)
	if !ok {
		r.sendError(client, "unknown user")
		return
	}

	var opts []lobby.Option
	if kind == lobby.KindTournament && frame.MaxPlayers > 1 {
		opts = append(opts, lobby.WithMaxPlayers(frame.MaxPlayers))
	}
	var l *lobby.Lobby
	opts = append(opts, lobby.WithSessionFactory(func() *session.Session {
		return r.newMatchSession(l)
	}))
	l = lobby.New(kind, opts...)
	if !r.registry.Add(l) {
		r.sendError(client, "could not create lobby")
		return
	}

	player, ok := l.AddPlayer(frame.UserID, username)
	if !ok {
		r.registry.Remove(l.ID())
		r.sendError(client, "could not join the new lobby")
		return
	}
	client.bindUser(frame.UserID)
	client.bindLobby(l.ID())

	//1.- Durable rows are written off the hot path, failures only logged.
	go r.persistLobbyCreated(l, frame.UserID, kind)

	r.sendTo(client, protocol.LobbyCreatedFrame{
		Type:         protocol.TypeLobbyCreated,
		LobbyID:      l.ID(),
		PlayerNumber: player.PlayerNumber,
	})
	r.broadcastLobbyList()
}

func (r *Router) persistLobbyCreated(l *lobby.Lobby, creatorID int64, kind lobby.Kind) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if kind == lobby.KindTournament {
		record, err := r.tstore.CreateTournament(ctx, l.ID(), creatorID, l.MaxPlayers(), l.Name())
		if err != nil {
			r.logger.Warn("tournament record creation failed", logging.String("lobby_id", l.ID()), logging.Error(err))
			return
		}
		r.mu.Lock()
		r.tournamentIDs[l.ID()] = record.ID
		r.mu.Unlock()
		if err := r.tstore.AddPlayerToTournament(ctx, record.ID, creatorID); err != nil {
			r.logger.Warn("tournament entrant persistence failed", logging.Error(err))
		}
		return
	}
	record, err := r.matches.CreateMatch(ctx, l.ID(), creatorID, l.MaxPlayers(), l.Name())
	if err != nil {
		r.logger.Warn("match record creation failed", logging.String("lobby_id", l.ID()), logging.Error(err))
		return
	}
	l.SetMatchID(record.ID)
}

func (r *Router) handleJoinLobby(client *Client, frame protocol.ClientFrame) {
	if frame.UserID == 0 {
		r.sendError(client, "userId is required")
		return
	}
	if current := client.LobbyID(); current != "" && current != frame.LobbyID {
		r.sendError(client, "already in a lobby")
		return
	}
	l, ok := r.registry.Get(frame.LobbyID)
	if !ok {
		r.sendError(client, "lobby not found")
		return
	}
	username, ok := r.resolveUsername(frame.UserID)
	if !ok {
		r.sendError(client, "unknown user")
		return
	}

	player, ok := l.AddPlayer(frame.UserID, username)
	if !ok {
		r.sendError(client, "lobby is full")
		return
	}
	client.bindUser(frame.UserID)
	client.bindLobby(l.ID())

	go r.persistPlayerJoined(l, frame.UserID)

	r.sendTo(client, protocol.JoinedLobbyFrame{
		Type:         protocol.TypeJoinedLobby,
		LobbyID:      l.ID(),
		PlayerNumber: player.PlayerNumber,
	})
	r.BroadcastToLobby(l.ID(), protocol.PlayerJoinedFrame{
		Type:        protocol.TypePlayerJoined,
		PlayerID:    frame.UserID,
		PlayerCount: l.PlayerCount(),
	})
	r.broadcastLobbyList()
}

func (r *Router) persistPlayerJoined(l *lobby.Lobby, userID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if l.Kind() == lobby.KindTournament {
		r.mu.Lock()
		tournamentID := r.tournamentIDs[l.ID()]
		r.mu.Unlock()
		if tournamentID == 0 {
			return
		}
		if err := r.tstore.AddPlayerToTournament(ctx, tournamentID, userID); err != nil {
			r.logger.Warn("tournament entrant persistence failed", logging.Error(err))
		}
		return
	}
	matchID := l.MatchID()
	if matchID == 0 {
		return
	}
	if err := r.matches.AddPlayerToMatch(ctx, matchID, userID); err != nil {
		r.logger.Warn("match player persistence failed", logging.Error(err))
	}
}

func (r *Router) handleLeaveLobby(client *Client) {
	if client.LobbyID() == "" {
		r.sendError(client, "not in a lobby")
		return
	}
	r.leaveCurrentLobby(client, true)
}

// leaveCurrentLobby removes the bound player from their lobby, hands the
// creator role off and deletes the lobby plus its durable row once empty.
func (r *Router) leaveCurrentLobby(client *Client, voluntary bool) {
	lobbyID := client.LobbyID()
	if lobbyID == "" {
		return
	}
	client.bindLobby("")
	l, ok := r.registry.Get(lobbyID)
	if !ok {
		return
	}
	userID := client.UserID()

	removed, newCreatorID := l.RemovePlayer(userID)
	if !removed {
		return
	}
	if voluntary {
		r.sendTo(client, protocol.LeftLobbyFrame{Type: protocol.TypeLeftLobby})
	}
	r.BroadcastToLobby(lobbyID, protocol.PlayerDisconnectedFrame{
		Type:        protocol.TypePlayerDisconnected,
		ID:          userID,
		PlayerCount: l.PlayerCount(),
	})
	if newCreatorID != 0 {
		r.BroadcastToLobby(lobbyID, protocol.NewCreatorFrame{
			Type:      protocol.TypeNewCreator,
			CreatorID: newCreatorID,
		})
	}

	if l.IsEmpty() {
		//1.- The registry owns deletion so the ticker cannot leak.
		r.registry.Remove(lobbyID)
		r.mu.Lock()
		sched := r.schedulers[lobbyID]
		tournamentID := r.tournamentIDs[lobbyID]
		delete(r.schedulers, lobbyID)
		delete(r.tournamentIDs, lobbyID)
		delete(r.seats, lobbyID)
		r.mu.Unlock()
		sched.Cancel()
		if l.Kind() == lobby.KindTournament {
			//2.- An abandoned bracket must not leave its durable row open.
			if tournamentID != 0 && sched.Status() != tournament.StatusCompleted {
				go r.persistTournamentCancelled(lobbyID, tournamentID)
			}
		} else {
			go r.deleteMatchRecord(lobbyID)
		}
	} else if l.Kind() == lobby.KindMatch {
		if matchID := l.MatchID(); matchID != 0 {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
				defer cancel()
				if err := r.matches.RemovePlayerFromMatch(ctx, matchID, userID); err != nil {
					r.logger.Warn("match player removal persistence failed", logging.Error(err))
				}
			}()
		}
	}
	r.broadcastLobbyList()
}

func (r *Router) deleteMatchRecord(lobbyID string) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if _, err := r.matches.DeleteMatchByLobbyID(ctx, lobbyID); err != nil {
		r.logger.Warn("match record deletion failed", logging.String("lobby_id", lobbyID), logging.Error(err))
	}
}

func (r *Router) handleGetLobbyByID(client *Client, frame protocol.ClientFrame) {
	l, ok := r.registry.Get(frame.LobbyID)
	if !ok {
		r.sendError(client, "lobby not found")
		return
	}
	r.sendTo(client, protocol.LobbyInfoFrame{Type: protocol.TypeLobbyInfo, Lobby: l.Summary()})
}

func (r *Router) handleReady(client *Client, frame protocol.ClientFrame) {
	l, ok := r.currentLobby(client)
	if !ok {
		r.sendError(client, "not in a lobby")
		return
	}
	readyCount, allReady, ok := l.SetPlayerReady(client.UserID(), frame.Ready)
	if !ok {
		r.sendError(client, "not a member of this lobby")
		return
	}
	r.BroadcastToLobby(l.ID(), protocol.PlayerReadyFrame{
		Type:       protocol.TypePlayerReady,
		PlayerID:   client.UserID(),
		Ready:      frame.Ready,
		ReadyCount: readyCount,
	})
	if allReady {
		r.BroadcastToLobby(l.ID(), protocol.AllPlayersReadyFrame{Type: protocol.TypeAllPlayersReady})
	}
}

func (r *Router) handleStartGame(client *Client) {
	l, ok := r.currentLobby(client)
	if !ok {
		r.sendError(client, "not in a lobby")
		return
	}
	if !l.IsCreator(client.UserID()) {
		r.sendError(client, "only the lobby creator can start the game")
		return
	}
	if _, ok := l.StartGame(r.ctx); !ok {
		r.sendError(client, "game cannot start: needs at least two players, all ready")
		return
	}
	if matchID := l.MatchID(); matchID != 0 {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			if err := r.matches.UpdateScore(ctx, matchID, 0, 0, 0); err != nil {
				r.logger.Warn("match start persistence failed", logging.Error(err))
			}
		}()
	}
	r.broadcastLobbyList()
}

func (r *Router) handlePauseResume(client *Client, pause bool) {
	l, ok := r.currentLobby(client)
	if !ok {
		r.sendError(client, "not in a lobby")
		return
	}
	if !l.IsCreator(client.UserID()) {
		if pause {
			r.sendError(client, "only the lobby creator can pause the game")
		} else {
			r.sendError(client, "only the lobby creator can resume the game")
		}
		return
	}
	if l.Kind() == lobby.KindTournament {
		//1.- A bracket pause freezes every live pairing at once.
		sessions := r.pairingSessions(l.ID())
		if len(sessions) == 0 {
			r.sendError(client, "game has not started")
			return
		}
		for _, sess := range sessions {
			if pause {
				sess.Pause()
			} else {
				sess.Resume()
			}
		}
		return
	}
	if l.Session() == nil {
		r.sendError(client, "game has not started")
		return
	}
	if pause {
		l.PauseGame()
	} else {
		l.ResumeGame()
	}
}

func (r *Router) handleMovePaddle(client *Client, frame protocol.ClientFrame) {
	l, ok := r.currentLobby(client)
	if !ok {
		r.sendError(client, "not in a lobby")
		return
	}
	direction := game.Direction(frame.Direction)
	if !direction.Valid() {
		r.sendError(client, "invalid direction")
		return
	}
	if l.Kind() == lobby.KindTournament {
		//1.- Entrants steer the paddle of their own live pairing; moves
		// without one (bye, eliminated, round gap) are dropped.
		if seat, ok := r.seat(l.ID(), client.UserID()); ok {
			seat.sess.MovePaddle(seat.number, direction)
		}
		return
	}
	player, ok := l.Player(client.UserID())
	if !ok {
		r.sendError(client, "not a member of this lobby")
		return
	}
	//2.- Moves outside a running session are dropped, never answered.
	l.Session().MovePaddle(player.PlayerNumber, direction)
}

// newMatchSession builds the session a lobby starts, wired to broadcast its
// snapshots to the lobby and to persist its final score.
func (r *Router) newMatchSession(l *lobby.Lobby) *session.Session {
	emit := func(event string, snapshot session.Snapshot) {
		r.BroadcastToLobby(l.ID(), protocol.NewState(event, snapshot))
	}
	opts := []session.Option{
		session.WithEngine(game.NewEngine(game.WithScoreLimit(r.cfg.ScoreLimit))),
		session.WithTickRate(r.cfg.TickRate),
		session.WithMonitor(r.monitor),
		session.WithLogger(r.logger),
		session.WithFinish(r.matchFinisher(l)),
	}
	if r.cfg.ReplayDir != "" {
		recorder, err := replay.NewRecorder(r.cfg.ReplayDir, l.ID(), nil)
		if err != nil {
			r.logger.Warn("replay recorder unavailable", logging.String("lobby_id", l.ID()), logging.Error(err))
		} else {
			opts = append(opts, session.WithRecorder(recorder))
		}
	}
	return session.NewSession(emit, opts...)
}

func (r *Router) matchFinisher(l *lobby.Lobby) session.FinishFunc {
	return func(result session.Result) {
		r.BroadcastToLobby(l.ID(), protocol.GameOverFrame{
			Type:     protocol.TypeGameOver,
			WinnerID: result.WinnerID,
			Score1:   result.Score1,
			Score2:   result.Score2,
		})
		matchID := l.MatchID()
		if matchID == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := r.matches.UpdateScore(ctx, matchID, result.Score1, result.Score2, result.WinnerID); err != nil {
			r.logger.Warn("final score persistence failed",
				logging.String("lobby_id", l.ID()), logging.Error(err))
		}
	}
}

func (r *Router) currentLobby(client *Client) (*lobby.Lobby, bool) {
	lobbyID := client.LobbyID()
	if lobbyID == "" {
		return nil, false
	}
	return r.registry.Get(lobbyID)
}

// sendError answers the requesting connection with an error frame.
func (r *Router) sendError(client *Client, message string) {
	r.sendTo(client, protocol.NewError(message))
}

func (r *Router) sendTo(client *Client, frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		r.logger.Error("frame marshal failed", logging.Error(err))
		return
	}
	if !client.enqueue(payload) {
		r.logger.Warn("dropping frame for slow client")
	}
}

// BroadcastToLobby fans one frame out to every socket sitting in the lobby.
func (r *Router) BroadcastToLobby(lobbyID string, frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		r.logger.Error("frame marshal failed", logging.Error(err))
		return
	}
	r.broadcasts.Add(1)
	r.mu.Lock()
	for client := range r.clients {
		if client.LobbyID() == lobbyID {
			client.enqueue(payload)
		}
	}
	r.mu.Unlock()
}

// BroadcastGlobal fans one frame out to every connected socket. Reserved
// for lobby discovery refreshes.
func (r *Router) BroadcastGlobal(frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		r.logger.Error("frame marshal failed", logging.Error(err))
		return
	}
	r.broadcasts.Add(1)
	r.mu.Lock()
	for client := range r.clients {
		client.enqueue(payload)
	}
	r.mu.Unlock()
}

func (r *Router) broadcastLobbyList() {
	r.BroadcastGlobal(protocol.LobbyListFrame{
		Type:    protocol.TypeLobbyList,
		Lobbies: r.registry.Summaries(),
	})
}

// ConnectedClients reports the number of registered sockets.
func (r *Router) ConnectedClients() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// OpenLobbies reports the number of registered lobbies.
func (r *Router) OpenLobbies() int {
	return r.registry.Len()
}

// StartupError reports a recorded boot failure, nil when healthy.
func (r *Router) StartupError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startupErr
}

// SetStartupError records a boot failure surfaced by /readyz.
func (r *Router) SetStartupError(err error) {
	r.mu.Lock()
	r.startupErr = err
	r.mu.Unlock()
}

// Uptime reports how long the router has been serving.
func (r *Router) Uptime() time.Duration {
	return time.Since(r.started)
}

// Stats feeds the metrics endpoint.
func (r *Router) Stats() (clients, lobbies, runningSessions int, broadcasts int64) {
	return r.ConnectedClients(), r.registry.Len(), r.registry.RunningSessions(), r.broadcasts.Load()
}

// Rehydrate restores open lobbies from the persistence gateway at startup so
// a restart does not orphan their durable rows.
func (r *Router) Rehydrate(ctx context.Context) error {
	records, err := r.matches.OpenLobbies(ctx)
	if err != nil {
		return err
	}
	restored := 0
	for _, record := range records {
		if _, exists := r.registry.Get(record.LobbyID); exists {
			continue
		}
		var l *lobby.Lobby
		l = lobby.New(lobby.KindMatch,
			lobby.WithID(record.LobbyID),
			lobby.WithName(record.Name),
			lobby.WithMaxPlayers(record.MaxPlayers),
			lobby.WithSessionFactory(func() *session.Session {
				return r.newMatchSession(l)
			}),
		)
		l.SetMatchID(record.ID)
		if r.registry.Add(l) {
			restored++
		}
	}
	if restored > 0 {
		r.logger.Info("restored open lobbies", logging.Int("count", restored))
	}
	return nil
}
