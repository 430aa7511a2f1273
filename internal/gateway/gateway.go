package gateway

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound marks lookups that matched no durable row.
var ErrNotFound = errors.New("gateway: not found")

// Match lifecycle states mirrored in the durable store.
const (
	MatchStatusOpen     = "open"
	MatchStatusRunning  = "running"
	MatchStatusFinished = "finished"
)

// Tournament lifecycle states mirrored in the durable store.
const (
	TournamentStatusPending   = "pending"
	TournamentStatusOngoing   = "ongoing"
	TournamentStatusCompleted = "completed"
	TournamentStatusCancelled = "cancelled"
)

// User is the identity projection resolved for a connected player.
type User struct {
	ID       int64  `db:"id"`
	Username string `db:"username"`
	Role     string `db:"role"`
}

// MatchRecord is the durable projection of one lobby-backed match.
type MatchRecord struct {
	ID         int64     `db:"id"`
	LobbyID    string    `db:"lobby_id"`
	Name       string    `db:"name"`
	CreatorID  int64     `db:"creator_id"`
	Player1ID  int64     `db:"player1_id"`
	Player2ID  int64     `db:"player2_id"`
	MaxPlayers int       `db:"max_players"`
	Score1     int       `db:"score1"`
	Score2     int       `db:"score2"`
	WinnerID   int64     `db:"winner_id"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// TournamentRecord is the durable projection of one tournament.
type TournamentRecord struct {
	ID         int64     `db:"id"`
	LobbyID    string    `db:"lobby_id"`
	Name       string    `db:"name"`
	CreatorID  int64     `db:"creator_id"`
	MaxPlayers int       `db:"max_players"`
	Status     string    `db:"status"`
	WinnerID   int64     `db:"winner_id"`
	CreatedAt  time.Time `db:"created_at"`
}

// Identity resolves player identities. Implementations must return
// ErrNotFound (possibly wrapped) when the id is unknown.
type Identity interface {
	FindUserByID(ctx context.Context, id int64) (*User, error)
}

// Matches persists match outcomes. Every call is best-effort from the
// caller's point of view: failures are logged, never authoritative.
type Matches interface {
	CreateMatch(ctx context.Context, lobbyID string, creatorID int64, maxPlayers int, name string) (*MatchRecord, error)
	AddPlayerToMatch(ctx context.Context, matchID, playerID int64) error
	RemovePlayerFromMatch(ctx context.Context, matchID, playerID int64) error
	UpdateScore(ctx context.Context, matchID int64, score1, score2 int, winnerID int64) error
	DeleteMatchByLobbyID(ctx context.Context, lobbyID string) (bool, error)
	OpenLobbies(ctx context.Context) ([]MatchRecord, error)
}

// Tournaments persists tournament structure and scoring.
type Tournaments interface {
	CreateTournament(ctx context.Context, lobbyID string, creatorID int64, maxPlayers int, name string) (*TournamentRecord, error)
	AddPlayerToTournament(ctx context.Context, tournamentID, playerID int64) error
	CreateTournamentMatch(ctx context.Context, tournamentID int64, round int, player1ID, player2ID int64) (int64, error)
	UpdateTournamentStatus(ctx context.Context, tournamentID int64, status string) error
	UpdateTournamentPoints(ctx context.Context, tournamentID, playerID int64, points int) error
	SetTournamentWinner(ctx context.Context, tournamentID, winnerID int64) error
}
