package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"pongarena/server/internal/gateway"
)

// MatchStore persists lobby-backed matches.
type MatchStore struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewMatchStore wraps the shared database handle.
func NewMatchStore(db *sqlx.DB) *MatchStore {
	return &MatchStore{db: db, now: time.Now}
}

// CreateMatch inserts the open match row backing a fresh lobby.
func (s *MatchStore) CreateMatch(ctx context.Context, lobbyID string, creatorID int64, maxPlayers int, name string) (*gateway.MatchRecord, error) {
	now := s.now().UTC()
	record := &gateway.MatchRecord{
		LobbyID:    lobbyID,
		Name:       name,
		CreatorID:  creatorID,
		Player1ID:  creatorID,
		MaxPlayers: maxPlayers,
		Status:     gateway.MatchStatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	result, err := s.db.NamedExecContext(ctx, `INSERT INTO matches
        (lobby_id, name, creator_id, player1_id, max_players, status, created_at, updated_at)
        VALUES (:lobby_id, :name, :creator_id, :player1_id, :max_players, :status, :created_at, :updated_at)`,
		record)
	if err != nil {
		return nil, fmt.Errorf("create match for lobby %q: %w", lobbyID, err)
	}
	record.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create match for lobby %q: %w", lobbyID, err)
	}
	return record, nil
}

// AddPlayerToMatch fills the lowest free player slot of the match row.
func (s *MatchStore) AddPlayerToMatch(ctx context.Context, matchID, playerID int64) error {
	//1.- Claim slot one first so the row mirrors the lobby's join order.
	result, err := s.db.ExecContext(ctx,
		"UPDATE matches SET player1_id = ?, updated_at = ? WHERE id = ? AND player1_id = 0",
		playerID, s.now().UTC(), matchID)
	if err != nil {
		return fmt.Errorf("add player %d to match %d: %w", playerID, matchID, err)
	}
	if affected, _ := result.RowsAffected(); affected > 0 {
		return nil
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE matches SET player2_id = ?, updated_at = ? WHERE id = ? AND player2_id = 0 AND player1_id != ?",
		playerID, s.now().UTC(), matchID, playerID)
	if err != nil {
		return fmt.Errorf("add player %d to match %d: %w", playerID, matchID, err)
	}
	return nil
}

// RemovePlayerFromMatch clears the slot bound to the player.
func (s *MatchStore) RemovePlayerFromMatch(ctx context.Context, matchID, playerID int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE matches SET
        player1_id = CASE WHEN player1_id = ? THEN 0 ELSE player1_id END,
        player2_id = CASE WHEN player2_id = ? THEN 0 ELSE player2_id END,
        updated_at = ?
        WHERE id = ?`,
		playerID, playerID, s.now().UTC(), matchID)
	if err != nil {
		return fmt.Errorf("remove player %d from match %d: %w", playerID, matchID, err)
	}
	return nil
}

// UpdateScore records the score pair; a non-zero winner finishes the match.
func (s *MatchStore) UpdateScore(ctx context.Context, matchID int64, score1, score2 int, winnerID int64) error {
	status := gateway.MatchStatusRunning
	if winnerID != 0 {
		status = gateway.MatchStatusFinished
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE matches SET score1 = ?, score2 = ?, winner_id = ?, status = ?, updated_at = ? WHERE id = ?",
		score1, score2, winnerID, status, s.now().UTC(), matchID)
	if err != nil {
		return fmt.Errorf("update score of match %d: %w", matchID, err)
	}
	return nil
}

// DeleteMatchByLobbyID removes the row backing an emptied lobby and reports
// whether one existed.
func (s *MatchStore) DeleteMatchByLobbyID(ctx context.Context, lobbyID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM matches WHERE lobby_id = ?", lobbyID)
	if err != nil {
		return false, fmt.Errorf("delete match of lobby %q: %w", lobbyID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete match of lobby %q: %w", lobbyID, err)
	}
	return affected > 0, nil
}

// OpenLobbies lists the match rows still waiting for players, oldest first.
func (s *MatchStore) OpenLobbies(ctx context.Context) ([]gateway.MatchRecord, error) {
	var records []gateway.MatchRecord
	err := s.db.SelectContext(ctx, &records,
		"SELECT * FROM matches WHERE status = ? ORDER BY created_at ASC, id ASC",
		gateway.MatchStatusOpen)
	if err != nil {
		return nil, fmt.Errorf("list open lobbies: %w", err)
	}
	return records, nil
}
