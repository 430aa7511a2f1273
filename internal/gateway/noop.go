package gateway

import (
	"context"
	"fmt"
	"sync/atomic"
)

// NoopIdentity resolves every id to a synthetic guest user. It backs tests
// and deployments that run without a user database.
type NoopIdentity struct{}

// FindUserByID fabricates a stable username from the id.
func (NoopIdentity) FindUserByID(_ context.Context, id int64) (*User, error) {
	if id <= 0 {
		return nil, ErrNotFound
	}
	return &User{ID: id, Username: fmt.Sprintf("player-%d", id), Role: "player"}, nil
}

// NoopMatches accepts every write and remembers nothing beyond an id counter.
type NoopMatches struct {
	nextID atomic.Int64
}

// CreateMatch hands out a fresh id without persisting anything.
func (m *NoopMatches) CreateMatch(_ context.Context, lobbyID string, creatorID int64, maxPlayers int, name string) (*MatchRecord, error) {
	return &MatchRecord{
		ID:         m.nextID.Add(1),
		LobbyID:    lobbyID,
		Name:       name,
		CreatorID:  creatorID,
		Player1ID:  creatorID,
		MaxPlayers: maxPlayers,
		Status:     MatchStatusOpen,
	}, nil
}

func (m *NoopMatches) AddPlayerToMatch(context.Context, int64, int64) error      { return nil }
func (m *NoopMatches) RemovePlayerFromMatch(context.Context, int64, int64) error { return nil }

func (m *NoopMatches) UpdateScore(context.Context, int64, int, int, int64) error { return nil }

// DeleteMatchByLobbyID reports no row deleted since nothing is stored.
func (m *NoopMatches) DeleteMatchByLobbyID(context.Context, string) (bool, error) {
	return false, nil
}

func (m *NoopMatches) OpenLobbies(context.Context) ([]MatchRecord, error) { return nil, nil }

// NoopTournaments accepts every write and remembers nothing beyond counters.
type NoopTournaments struct {
	nextID      atomic.Int64
	nextMatchID atomic.Int64
}

// CreateTournament hands out a fresh id without persisting anything.
func (t *NoopTournaments) CreateTournament(_ context.Context, lobbyID string, creatorID int64, maxPlayers int, name string) (*TournamentRecord, error) {
	return &TournamentRecord{
		ID:         t.nextID.Add(1),
		LobbyID:    lobbyID,
		Name:       name,
		CreatorID:  creatorID,
		MaxPlayers: maxPlayers,
		Status:     TournamentStatusPending,
	}, nil
}

func (t *NoopTournaments) AddPlayerToTournament(context.Context, int64, int64) error { return nil }

// CreateTournamentMatch hands out a fresh pairing id.
func (t *NoopTournaments) CreateTournamentMatch(context.Context, int64, int, int64, int64) (int64, error) {
	return t.nextMatchID.Add(1), nil
}

func (t *NoopTournaments) UpdateTournamentStatus(context.Context, int64, string) error { return nil }

func (t *NoopTournaments) UpdateTournamentPoints(context.Context, int64, int64, int) error {
	return nil
}

func (t *NoopTournaments) SetTournamentWinner(context.Context, int64, int64) error { return nil }
