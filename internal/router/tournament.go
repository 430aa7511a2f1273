package router

import (
	"context"
	"errors"
	"strconv"

	"pongarena/server/internal/game"
	"pongarena/server/internal/gateway"
	"pongarena/server/internal/lobby"
	"pongarena/server/internal/logging"
	"pongarena/server/internal/protocol"
	"pongarena/server/internal/session"
	"pongarena/server/internal/tournament"
)

func (r *Router) handleStartTournament(client *Client) {
	l, ok := r.currentLobby(client)
	if !ok {
		r.sendError(client, "not in a lobby")
		return
	}
	if l.Kind() != lobby.KindTournament {
		r.sendError(client, "not a tournament lobby")
		return
	}
	if !l.IsCreator(client.UserID()) {
		r.sendError(client, "only the lobby creator can start the tournament")
		return
	}
	if !l.AllReady() {
		r.sendError(client, "tournament cannot start: needs at least two players, all ready")
		return
	}

	//1.- Check-and-insert under one lock: racing start frames must never
	// leave an unmapped scheduler ticking.
	sched := r.newScheduler(l)
	r.mu.Lock()
	if _, exists := r.schedulers[l.ID()]; exists {
		r.mu.Unlock()
		r.sendError(client, "tournament already started")
		return
	}
	r.schedulers[l.ID()] = sched
	r.mu.Unlock()

	for _, userID := range l.PlayerIDs() {
		sched.AddPlayer(userID)
	}

	if err := sched.Start(r.ctx); err != nil {
		r.mu.Lock()
		delete(r.schedulers, l.ID())
		r.mu.Unlock()
		if errors.Is(err, tournament.ErrNotEnoughPlayers) {
			r.sendError(client, "tournament needs at least two players")
			return
		}
		r.sendError(client, "tournament could not start")
		return
	}

	go r.persistTournamentStatus(l.ID(), gateway.TournamentStatusOngoing)
	r.broadcastLobbyList()
}

func (r *Router) handleGetTournamentInfo(client *Client) {
	l, ok := r.currentLobby(client)
	if !ok {
		r.sendError(client, "not in a lobby")
		return
	}
	r.mu.Lock()
	sched := r.schedulers[l.ID()]
	r.mu.Unlock()
	if sched == nil {
		r.sendError(client, "tournament has not started")
		return
	}
	round := sched.CurrentRound()
	r.sendTo(client, protocol.TournamentInfoFrame{
		Type:         protocol.TypeTournamentInfo,
		Status:       string(sched.Status()),
		Round:        round,
		Pairings:     pairingSummaries(sched.Pairings(round)),
		PlayerScores: scoresToWire(sched.PlayerScores()),
	})
}

// pairingSeat binds one tournament entrant to the live session driving their
// current pairing, so inbound paddle commands can reach it.
type pairingSeat struct {
	sess   *session.Session
	number int
}

func (r *Router) seatPlayers(lobbyID string, sess *session.Session, player1ID, player2ID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seats := r.seats[lobbyID]
	if seats == nil {
		seats = make(map[int64]pairingSeat)
		r.seats[lobbyID] = seats
	}
	seats[player1ID] = pairingSeat{sess: sess, number: 1}
	seats[player2ID] = pairingSeat{sess: sess, number: 2}
}

func (r *Router) unseatPlayers(lobbyID string, player1ID, player2ID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if seats := r.seats[lobbyID]; seats != nil {
		delete(seats, player1ID)
		delete(seats, player2ID)
	}
}

func (r *Router) seat(lobbyID string, userID int64) (pairingSeat, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seat, ok := r.seats[lobbyID][userID]
	return seat, ok
}

// pairingSessions lists the distinct live sessions seated in the lobby.
func (r *Router) pairingSessions(lobbyID string) []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[*session.Session]struct{})
	sessions := make([]*session.Session, 0, len(r.seats[lobbyID]))
	for _, seat := range r.seats[lobbyID] {
		if _, dup := seen[seat.sess]; dup {
			continue
		}
		seen[seat.sess] = struct{}{}
		sessions = append(sessions, seat.sess)
	}
	return sessions
}

// newScheduler wires a bracket for the lobby: every determined pairing gets a
// live session broadcasting to the lobby, every resolution is announced and
// mirrored to the durable store.
func (r *Router) newScheduler(l *lobby.Lobby) *tournament.Scheduler {
	var sched *tournament.Scheduler
	sched = tournament.NewScheduler(
		tournament.WithSessionFactory(func(player1ID, player2ID int64) *session.Session {
			sess := r.newPairingSession(l, player1ID, player2ID, func() *tournament.Scheduler { return sched })
			r.seatPlayers(l.ID(), sess, player1ID, player2ID)
			return sess
		}),
		tournament.OnRoundStarted(func(round int, pairings []tournament.Pairing) {
			r.BroadcastToLobby(l.ID(), protocol.TournamentStartedFrame{
				Type:     protocol.TypeTournamentStarted,
				Round:    round,
				Pairings: pairingSummaries(pairings),
			})
			go r.persistRound(l.ID(), round, pairings)
		}),
		tournament.OnMatchCompleted(func(round int, pairing tournament.Pairing) {
			r.BroadcastToLobby(l.ID(), protocol.MatchCompletedFrame{
				Type:     protocol.TypeMatchCompleted,
				Round:    round,
				WinnerID: pairing.WinnerID,
				Score1:   pairing.Score1,
				Score2:   pairing.Score2,
			})
			go r.persistPoints(l.ID(), pairing.WinnerID)
		}),
		tournament.OnCompleted(func(winnerID int64, scores map[int64]int) {
			r.BroadcastToLobby(l.ID(), protocol.TournamentCompletedFrame{
				Type:         protocol.TypeTournamentCompleted,
				WinnerID:     winnerID,
				PlayerScores: scoresToWire(scores),
			})
			go r.persistTournamentWinner(l.ID(), winnerID)
		}),
	)
	return sched
}

// newPairingSession builds the session driving one tournament pairing. Its
// state broadcasts carry the pairing's player ids and its result feeds
// straight back into the scheduler.
func (r *Router) newPairingSession(l *lobby.Lobby, player1ID, player2ID int64, scheduler func() *tournament.Scheduler) *session.Session {
	emit := func(event string, snapshot session.Snapshot) {
		r.BroadcastToLobby(l.ID(), protocol.NewPairingState(event, snapshot, player1ID, player2ID))
	}
	return session.NewSession(emit,
		session.WithEngine(game.NewEngine(game.WithScoreLimit(r.cfg.ScoreLimit))),
		session.WithTickRate(r.cfg.TickRate),
		session.WithMonitor(r.monitor),
		session.WithLogger(r.logger),
		session.WithFinish(func(result session.Result) {
			r.unseatPlayers(l.ID(), player1ID, player2ID)
			r.BroadcastToLobby(l.ID(), protocol.GameOverFrame{
				Type:     protocol.TypeGameOver,
				WinnerID: result.WinnerID,
				Score1:   result.Score1,
				Score2:   result.Score2,
			})
			sched := scheduler()
			if sched == nil {
				return
			}
			if err := sched.CompleteMatch(result.WinnerID, result.Score1, result.Score2); err != nil {
				r.logger.Warn("pairing resolution rejected",
					logging.String("lobby_id", l.ID()), logging.Error(err))
			}
		}),
	)
}

func (r *Router) tournamentID(lobbyID string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tournamentIDs[lobbyID]
}

func (r *Router) persistTournamentStatus(lobbyID, status string) {
	tournamentID := r.tournamentID(lobbyID)
	if tournamentID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.tstore.UpdateTournamentStatus(ctx, tournamentID, status); err != nil {
		r.logger.Warn("tournament status persistence failed",
			logging.String("lobby_id", lobbyID), logging.Error(err))
	}
}

func (r *Router) persistRound(lobbyID string, round int, pairings []tournament.Pairing) {
	tournamentID := r.tournamentID(lobbyID)
	if tournamentID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	for _, pairing := range pairings {
		if pairing.IsBye() {
			continue
		}
		if _, err := r.tstore.CreateTournamentMatch(ctx, tournamentID, round, pairing.Player1ID, pairing.Player2ID); err != nil {
			r.logger.Warn("pairing persistence failed",
				logging.String("lobby_id", lobbyID), logging.Error(err))
		}
	}
}

func (r *Router) persistPoints(lobbyID string, winnerID int64) {
	tournamentID := r.tournamentID(lobbyID)
	if tournamentID == 0 {
		return
	}
	r.mu.Lock()
	sched := r.schedulers[lobbyID]
	r.mu.Unlock()
	if sched == nil {
		return
	}
	points := sched.PlayerScores()[winnerID]
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.tstore.UpdateTournamentPoints(ctx, tournamentID, winnerID, points); err != nil {
		r.logger.Warn("points persistence failed",
			logging.String("lobby_id", lobbyID), logging.Error(err))
	}
}

func (r *Router) persistTournamentCancelled(lobbyID string, tournamentID int64) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.tstore.UpdateTournamentStatus(ctx, tournamentID, gateway.TournamentStatusCancelled); err != nil {
		r.logger.Warn("tournament cancellation persistence failed",
			logging.String("lobby_id", lobbyID), logging.Error(err))
	}
}

func (r *Router) persistTournamentWinner(lobbyID string, winnerID int64) {
	tournamentID := r.tournamentID(lobbyID)
	if tournamentID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := r.tstore.SetTournamentWinner(ctx, tournamentID, winnerID); err != nil {
		r.logger.Warn("winner persistence failed",
			logging.String("lobby_id", lobbyID), logging.Error(err))
	}
}

func pairingSummaries(pairings []tournament.Pairing) []protocol.PairingSummary {
	summaries := make([]protocol.PairingSummary, 0, len(pairings))
	for _, p := range pairings {
		summaries = append(summaries, protocol.PairingSummary{
			Player1ID:   p.Player1ID,
			Player2ID:   p.Player2ID,
			IsBye:       p.IsBye(),
			IsCompleted: p.Completed,
			WinnerID:    p.WinnerID,
		})
	}
	return summaries
}

func scoresToWire(scores map[int64]int) map[string]int {
	out := make(map[string]int, len(scores))
	for id, points := range scores {
		out[strconv.FormatInt(id, 10)] = points
	}
	return out
}
