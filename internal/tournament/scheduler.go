package tournament

import (
	"context"
	"errors"
	"sync"

	"pongarena/server/internal/session"
)

// Status is the lifecycle of a tournament.
type Status string

const (
	StatusPending   Status = "pending"
	StatusOngoing   Status = "ongoing"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// PointsPerWin is awarded to a pairing winner. Byes advance without points.
const PointsPerWin = 3

var (
	// ErrNotEnoughPlayers rejects starting with fewer than two entrants.
	ErrNotEnoughPlayers = errors.New("tournament: needs at least two players")
	// ErrWrongStatus rejects operations outside their valid lifecycle phase.
	ErrWrongStatus = errors.New("tournament: wrong status")
	// ErrNoSuchPairing rejects results that match no open pairing.
	ErrNoSuchPairing = errors.New("tournament: no open pairing for that winner")
)

// Pairing is one scheduled 1v1 match. Player2ID zero models a bye.
type Pairing struct {
	Player1ID int64
	Player2ID int64
	MatchID   int64
	Completed bool
	WinnerID  int64
	Score1    int
	Score2    int
}

// IsBye reports whether the pairing has only one determined player.
func (p Pairing) IsBye() bool {
	return p.Player2ID == 0
}

// SessionFactory builds the match session driving one pairing. The returned
// session is expected to report its result back via CompleteMatch; a nil
// return leaves the pairing to be resolved externally.
type SessionFactory func(player1ID, player2ID int64) *session.Session

// Scheduler builds bracket rounds from a roster, tracks per-round
// completion and advances winners until a single pairing resolves.
type Scheduler struct {
	mu       sync.Mutex
	status   Status
	roster   []int64
	rounds   [][]*Pairing
	scores   map[int64]int
	winner   int64
	ctx      context.Context
	factory  SessionFactory
	sessions []*session.Session

	onRoundStarted   func(round int, pairings []Pairing)
	onMatchCompleted func(round int, pairing Pairing)
	onCompleted      func(winnerID int64, scores map[int64]int)
}

// Option configures scheduler callbacks and wiring.
type Option func(*Scheduler)

// WithSessionFactory injects the constructor spun up per determined pairing.
func WithSessionFactory(factory SessionFactory) Option {
	return func(s *Scheduler) { s.factory = factory }
}

// OnRoundStarted registers the callback fired when a round's pairings exist.
func OnRoundStarted(fn func(round int, pairings []Pairing)) Option {
	return func(s *Scheduler) { s.onRoundStarted = fn }
}

// OnMatchCompleted registers the callback fired per resolved pairing.
func OnMatchCompleted(fn func(round int, pairing Pairing)) Option {
	return func(s *Scheduler) { s.onMatchCompleted = fn }
}

// OnCompleted registers the callback fired once the bracket resolves.
func OnCompleted(fn func(winnerID int64, scores map[int64]int)) Option {
	return func(s *Scheduler) { s.onCompleted = fn }
}

// NewScheduler builds an empty pending tournament.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		status: StatusPending,
		scores: make(map[int64]int),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// AddPlayer registers an entrant while the tournament is pending.
// Registration order is the seeding order. Duplicates are ignored.
func (s *Scheduler) AddPlayer(userID int64) bool {
	if s == nil || userID == 0 {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusPending {
		return false
	}
	for _, id := range s.roster {
		if id == userID {
			return false
		}
	}
	s.roster = append(s.roster, userID)
	return true
}

// Start seals the roster and generates Round 1. Every entrant appears in
// exactly one pairing; an odd roster gives the last entrant a bye.
func (s *Scheduler) Start(ctx context.Context) error {
	if s == nil {
		return ErrWrongStatus
	}
	s.mu.Lock()
	if s.status != StatusPending {
		s.mu.Unlock()
		return ErrWrongStatus
	}
	if len(s.roster) < 2 {
		s.mu.Unlock()
		return ErrNotEnoughPlayers
	}
	s.status = StatusOngoing
	s.ctx = ctx
	round := s.buildRoundLocked(s.roster)
	s.mu.Unlock()

	s.announceRound(len(s.rounds), round)
	s.launchPairings(round)
	//1.- A roster whose only real pairing was decided by byes can resolve
	// immediately.
	s.advanceIfComplete()
	return nil
}

// buildRoundLocked pairs the given ids in order and appends the new round.
func (s *Scheduler) buildRoundLocked(ids []int64) []*Pairing {
	var pairings []*Pairing
	for i := 0; i < len(ids); i += 2 {
		pairing := &Pairing{Player1ID: ids[i]}
		if i+1 < len(ids) {
			pairing.Player2ID = ids[i+1]
		} else {
			//1.- The odd entrant advances unopposed.
			pairing.Completed = true
			pairing.WinnerID = pairing.Player1ID
		}
		pairings = append(pairings, pairing)
	}
	s.rounds = append(s.rounds, pairings)
	return pairings
}

func (s *Scheduler) announceRound(round int, pairings []*Pairing) {
	if s.onRoundStarted == nil {
		return
	}
	copies := make([]Pairing, 0, len(pairings))
	for _, p := range pairings {
		copies = append(copies, *p)
	}
	s.onRoundStarted(round, copies)
}

// launchPairings spins one session per determined, unresolved pairing.
func (s *Scheduler) launchPairings(pairings []*Pairing) {
	if s.factory == nil {
		return
	}
	for _, p := range pairings {
		if p.Completed || p.IsBye() {
			continue
		}
		sess := s.factory(p.Player1ID, p.Player2ID)
		if sess == nil {
			continue
		}
		sess.SetPlayers(p.Player1ID, p.Player2ID)
		s.mu.Lock()
		s.sessions = append(s.sessions, sess)
		s.mu.Unlock()
		sess.Start(s.ctx)
	}
}

// CompleteMatch resolves the open pairing containing the winner, awards the
// win points and advances the bracket when the round is done.
func (s *Scheduler) CompleteMatch(winnerID int64, score1, score2 int) error {
	if s == nil {
		return ErrWrongStatus
	}
	s.mu.Lock()
	if s.status != StatusOngoing {
		s.mu.Unlock()
		return ErrWrongStatus
	}
	current := s.rounds[len(s.rounds)-1]
	var resolved *Pairing
	for _, p := range current {
		if p.Completed {
			continue
		}
		if p.Player1ID == winnerID || p.Player2ID == winnerID {
			resolved = p
			break
		}
	}
	if resolved == nil {
		s.mu.Unlock()
		return ErrNoSuchPairing
	}
	resolved.Completed = true
	resolved.WinnerID = winnerID
	resolved.Score1 = score1
	resolved.Score2 = score2
	s.scores[winnerID] += PointsPerWin
	round := len(s.rounds)
	pairing := *resolved
	s.mu.Unlock()

	if s.onMatchCompleted != nil {
		s.onMatchCompleted(round, pairing)
	}
	s.advanceIfComplete()
	return nil
}

// advanceIfComplete generates the next round, or finishes the tournament
// when the completed round held a single pairing.
func (s *Scheduler) advanceIfComplete() {
	for {
		s.mu.Lock()
		if s.status != StatusOngoing {
			s.mu.Unlock()
			return
		}
		current := s.rounds[len(s.rounds)-1]
		for _, p := range current {
			if !p.Completed {
				s.mu.Unlock()
				return
			}
		}

		//1.- A resolved one-pairing round decides the tournament.
		if len(current) == 1 {
			s.status = StatusCompleted
			s.winner = current[0].WinnerID
			winner := s.winner
			scores := copyScores(s.scores)
			onCompleted := s.onCompleted
			s.mu.Unlock()
			if onCompleted != nil {
				onCompleted(winner, scores)
			}
			return
		}

		//2.- Pair the round's winners in registration order.
		winners := make([]int64, 0, len(current))
		for _, p := range current {
			winners = append(winners, p.WinnerID)
		}
		next := s.buildRoundLocked(winners)
		round := len(s.rounds)
		s.mu.Unlock()

		s.announceRound(round, next)
		s.launchPairings(next)
		//3.- Loop again: byes may have completed the new round outright.
	}
}

// Cancel aborts a pending or ongoing tournament and stops every session it
// launched.
func (s *Scheduler) Cancel() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.status == StatusPending || s.status == StatusOngoing {
		s.status = StatusCancelled
	}
	sessions := s.sessions
	s.sessions = nil
	s.mu.Unlock()
	for _, sess := range sessions {
		sess.Stop()
	}
}

// Status reports the lifecycle phase.
func (s *Scheduler) Status() Status {
	if s == nil {
		return StatusPending
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Winner reports the tournament winner, zero until completed.
func (s *Scheduler) Winner() int64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.winner
}

// CurrentRound reports the 1-based number of the latest round, zero before
// the tournament starts.
func (s *Scheduler) CurrentRound() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rounds)
}

// Pairings returns copies of the given 1-based round's pairings.
func (s *Scheduler) Pairings(round int) []Pairing {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if round < 1 || round > len(s.rounds) {
		return nil
	}
	pairings := make([]Pairing, 0, len(s.rounds[round-1]))
	for _, p := range s.rounds[round-1] {
		pairings = append(pairings, *p)
	}
	return pairings
}

// PlayerScores returns a copy of the aggregate points table.
func (s *Scheduler) PlayerScores() map[int64]int {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyScores(s.scores)
}

// Roster returns the entrants in registration order.
func (s *Scheduler) Roster() []int64 {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	roster := make([]int64, len(s.roster))
	copy(roster, s.roster)
	return roster
}

func copyScores(scores map[int64]int) map[int64]int {
	out := make(map[int64]int, len(scores))
	for id, points := range scores {
		out[id] = points
	}
	return out
}
