package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"pongarena/server/internal/gateway"
)

// TournamentStore persists tournament structure and standings.
type TournamentStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewTournamentStore wraps the shared database handle.
func NewTournamentStore(db *sqlx.DB) *TournamentStore {
	return &TournamentStore{db: db, now: time.Now}
}

// CreateTournament inserts the pending tournament row backing a lobby.
func (s *TournamentStore) CreateTournament(ctx context.Context, lobbyID string, creatorID int64, maxPlayers int, name string) (*gateway.TournamentRecord, error) {
	record := &gateway.TournamentRecord{
		LobbyID:    lobbyID,
		Name:       name,
		CreatorID:  creatorID,
		MaxPlayers: maxPlayers,
		Status:     gateway.TournamentStatusPending,
		CreatedAt:  s.now().UTC(),
	}
	result, err := s.db.NamedExecContext(ctx, `INSERT INTO tournaments
        (lobby_id, name, creator_id, max_players, status, created_at)
        VALUES (:lobby_id, :name, :creator_id, :max_players, :status, :created_at)`,
		record)
	if err != nil {
		return nil, fmt.Errorf("create tournament for lobby %q: %w", lobbyID, err)
	}
	record.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create tournament for lobby %q: %w", lobbyID, err)
	}
	return record, nil
}

// AddPlayerToTournament registers an entrant with zero points.
func (s *TournamentStore) AddPlayerToTournament(ctx context.Context, tournamentID, playerID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO tournament_players (tournament_id, player_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
		tournamentID, playerID)
	if err != nil {
		return fmt.Errorf("add player %d to tournament %d: %w", playerID, tournamentID, err)
	}
	return nil
}

// CreateTournamentMatch inserts one scheduled pairing and returns its id.
func (s *TournamentStore) CreateTournamentMatch(ctx context.Context, tournamentID int64, round int, player1ID, player2ID int64) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO tournament_matches (tournament_id, round, player1_id, player2_id) VALUES (?, ?, ?, ?)",
		tournamentID, round, player1ID, player2ID)
	if err != nil {
		return 0, fmt.Errorf("create pairing in tournament %d: %w", tournamentID, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("create pairing in tournament %d: %w", tournamentID, err)
	}
	return id, nil
}

// UpdateTournamentStatus moves the tournament through its lifecycle.
func (s *TournamentStore) UpdateTournamentStatus(ctx context.Context, tournamentID int64, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE tournaments SET status = ? WHERE id = ?", status, tournamentID)
	if err != nil {
		return fmt.Errorf("update status of tournament %d: %w", tournamentID, err)
	}
	return nil
}

// UpdateTournamentPoints overwrites one entrant's aggregate points.
func (s *TournamentStore) UpdateTournamentPoints(ctx context.Context, tournamentID, playerID int64, points int) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tournament_players (tournament_id, player_id, points)
        VALUES (?, ?, ?)
        ON CONFLICT(tournament_id, player_id) DO UPDATE SET points = excluded.points`,
		tournamentID, playerID, points)
	if err != nil {
		return fmt.Errorf("update points of player %d in tournament %d: %w", playerID, tournamentID, err)
	}
	return nil
}

// SetTournamentWinner records the champion alongside the completed status.
func (s *TournamentStore) SetTournamentWinner(ctx context.Context, tournamentID, winnerID int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE tournaments SET winner_id = ?, status = ? WHERE id = ?",
		winnerID, gateway.TournamentStatusCompleted, tournamentID)
	if err != nil {
		return fmt.Errorf("set winner of tournament %d: %w", tournamentID, err)
	}
	return nil
}
