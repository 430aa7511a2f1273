package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"pongarena/server/internal/session"
)

// Client frame types accepted over the websocket. The set is closed: anything
// else is answered with an error frame instead of tearing the connection down.
const (
	TypeCreateLobby       = "createLobby"
	TypeJoinLobby         = "joinLobby"
	TypeLeaveLobby        = "leaveLobby"
	TypeGetLobbyList      = "getLobbyList"
	TypeGetLobbyByID      = "getLobbyById"
	TypeReady             = "ready"
	TypeStartGame         = "startGame"
	TypePauseGame         = "pauseGame"
	TypeResumeGame        = "resumeGame"
	TypeMovePaddle        = "movePaddle"
	TypeCreateTournament  = "createTournament"
	TypeStartTournament   = "startTournament"
	TypeGetTournamentInfo = "getTournamentInfo"
)

// Server frame types pushed to clients.
const (
	TypeConnection          = "connection"
	TypeError               = "error"
	TypeLobbyCreated        = "lobbyCreated"
	TypeJoinedLobby         = "joinedLobby"
	TypeLeftLobby           = "leftLobby"
	TypePlayerJoined        = "playerJoined"
	TypePlayerDisconnected  = "playerDisconnected"
	TypeLobbyInfo           = "lobbyInfo"
	TypeLobbyList           = "lobbyList"
	TypePlayerReady         = "playerReady"
	TypeAllPlayersReady     = "allPlayersReady"
	TypeNewCreator          = "newCreator"
	TypeGameOver            = "gameOver"
	TypeTournamentStarted   = "tournamentStarted"
	TypeMatchCompleted      = "matchCompleted"
	TypeTournamentInfo      = "tournamentInfo"
	TypeTournamentCompleted = "tournamentCompleted"
)

var (
	// ErrMalformedFrame marks payloads that are not a JSON object with a type.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrUnknownType marks a well-formed frame carrying an unlisted type.
	ErrUnknownType = errors.New("unknown frame type")
)

// ClientFrame is the flat union of every inbound payload. Only the fields
// belonging to the decoded type are meaningful.
type ClientFrame struct {
	Type       string `json:"type"`
	UserID     int64  `json:"userId,omitempty"`
	LobbyID    string `json:"lobbyId,omitempty"`
	Ready      bool   `json:"ready,omitempty"`
	Direction  string `json:"direction,omitempty"`
	MaxPlayers int    `json:"maxPlayers,omitempty"`
}

var clientTypes = map[string]struct{}{
	TypeCreateLobby:       {},
	TypeJoinLobby:         {},
	TypeLeaveLobby:        {},
	TypeGetLobbyList:      {},
	TypeGetLobbyByID:      {},
	TypeReady:             {},
	TypeStartGame:         {},
	TypePauseGame:         {},
	TypeResumeGame:        {},
	TypeMovePaddle:        {},
	TypeCreateTournament:  {},
	TypeStartTournament:   {},
	TypeGetTournamentInfo: {},
}

// DecodeClientFrame parses one inbound text frame and validates its type
// against the closed client set.
func DecodeClientFrame(payload []byte) (ClientFrame, error) {
	var frame ClientFrame
	//1.- Reject anything that is not a JSON object carrying a type tag.
	if err := json.Unmarshal(payload, &frame); err != nil {
		return ClientFrame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if frame.Type == "" {
		return ClientFrame{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	//2.- An unlisted type is a caller error, not a transport failure.
	if _, ok := clientTypes[frame.Type]; !ok {
		return ClientFrame{}, fmt.Errorf("%w: %q", ErrUnknownType, frame.Type)
	}
	return frame, nil
}

// PlayerSummary is one slot of a lobby as shown in lobby listings.
type PlayerSummary struct {
	ID           int64 `json:"id"`
	PlayerNumber int   `json:"playerNumber"`
	IsReady      bool  `json:"isReady"`
}

// LobbySummary is the listing view of one lobby.
type LobbySummary struct {
	LobbyID        string          `json:"lobbyId"`
	Name           string          `json:"name"`
	CreatorID      int64           `json:"creatorId"`
	MaxPlayers     int             `json:"maxPlayers"`
	CurrentPlayers int             `json:"currentPlayers"`
	LobbyType      string          `json:"lobbyType"`
	IsStarted      bool            `json:"isStarted"`
	Players        []PlayerSummary `json:"players"`
}

// PairingSummary is one scheduled 1v1 match within a tournament round.
type PairingSummary struct {
	Player1ID   int64 `json:"player1Id"`
	Player2ID   int64 `json:"player2Id,omitempty"`
	IsBye       bool  `json:"isBye,omitempty"`
	IsCompleted bool  `json:"isCompleted"`
	WinnerID    int64 `json:"winnerId,omitempty"`
}

// ConnectionFrame greets a freshly upgraded socket.
type ConnectionFrame struct {
	Type   string `json:"type"`
	UserID int64  `json:"userId,omitempty"`
}

// ErrorFrame answers domain, authorization and unknown-type errors.
type ErrorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// LobbyCreatedFrame confirms lobby creation to its creator.
type LobbyCreatedFrame struct {
	Type         string `json:"type"`
	LobbyID      string `json:"lobbyId"`
	PlayerNumber int    `json:"playerNumber"`
}

// JoinedLobbyFrame confirms a join to the joining player.
type JoinedLobbyFrame struct {
	Type         string `json:"type"`
	LobbyID      string `json:"lobbyId"`
	PlayerNumber int    `json:"playerNumber"`
}

// LeftLobbyFrame confirms a voluntary leave.
type LeftLobbyFrame struct {
	Type string `json:"type"`
}

// PlayerJoinedFrame tells lobby members about a new arrival.
type PlayerJoinedFrame struct {
	Type        string `json:"type"`
	PlayerID    int64  `json:"playerId"`
	PlayerCount int    `json:"playerCount"`
}

// PlayerDisconnectedFrame tells lobby members about a departure.
type PlayerDisconnectedFrame struct {
	Type        string `json:"type"`
	ID          int64  `json:"id"`
	PlayerCount int    `json:"playerCount"`
}

// LobbyInfoFrame answers a getLobbyById request.
type LobbyInfoFrame struct {
	Type  string       `json:"type"`
	Lobby LobbySummary `json:"lobby"`
}

// LobbyListFrame answers getLobbyList and refreshes all clients.
type LobbyListFrame struct {
	Type    string         `json:"type"`
	Lobbies []LobbySummary `json:"lobbies"`
}

// StateFrame carries a session snapshot under a lifecycle event type
// (gameUpdate, initGame, resetGame, pauseGame, resumeGame). Tournament
// broadcasts carry the pairing's player ids so concurrent matches in one
// lobby stay distinguishable; plain 1v1 frames omit them.
type StateFrame struct {
	Type      string           `json:"type"`
	State     session.Snapshot `json:"state"`
	Player1ID int64            `json:"player1Id,omitempty"`
	Player2ID int64            `json:"player2Id,omitempty"`
}

// PlayerReadyFrame announces one readiness flip to the lobby.
type PlayerReadyFrame struct {
	Type       string `json:"type"`
	PlayerID   int64  `json:"playerId"`
	Ready      bool   `json:"ready"`
	ReadyCount int    `json:"readyCount"`
}

// AllPlayersReadyFrame fires once every present player is ready.
type AllPlayersReadyFrame struct {
	Type string `json:"type"`
}

// NewCreatorFrame announces the creator hand-off after the creator leaves.
type NewCreatorFrame struct {
	Type      string `json:"type"`
	CreatorID int64  `json:"creatorId"`
}

// GameOverFrame announces a finished match to the lobby.
type GameOverFrame struct {
	Type     string `json:"type"`
	WinnerID int64  `json:"winnerId"`
	Score1   int    `json:"score1"`
	Score2   int    `json:"score2"`
}

// TournamentStartedFrame announces the first round pairings.
type TournamentStartedFrame struct {
	Type     string           `json:"type"`
	Round    int              `json:"round"`
	Pairings []PairingSummary `json:"pairings"`
}

// MatchCompletedFrame announces one resolved tournament pairing.
type MatchCompletedFrame struct {
	Type     string `json:"type"`
	Round    int    `json:"round"`
	WinnerID int64  `json:"winnerId"`
	Score1   int    `json:"score1"`
	Score2   int    `json:"score2"`
}

// TournamentInfoFrame answers a getTournamentInfo request.
type TournamentInfoFrame struct {
	Type         string           `json:"type"`
	Status       string           `json:"status"`
	Round        int              `json:"round"`
	Pairings     []PairingSummary `json:"pairings"`
	PlayerScores map[string]int   `json:"playerScores"`
}

// TournamentCompletedFrame announces the overall winner.
type TournamentCompletedFrame struct {
	Type         string         `json:"type"`
	WinnerID     int64          `json:"winnerId"`
	PlayerScores map[string]int `json:"playerScores"`
}

// NewError builds the error frame for a human-readable message.
func NewError(message string) ErrorFrame {
	return ErrorFrame{Type: TypeError, Message: message}
}

// NewState wraps a snapshot under the given lifecycle event type.
func NewState(event string, snapshot session.Snapshot) StateFrame {
	return StateFrame{Type: event, State: snapshot}
}

// NewPairingState wraps a snapshot and tags it with the pairing's players.
func NewPairingState(event string, snapshot session.Snapshot, player1ID, player2ID int64) StateFrame {
	return StateFrame{Type: event, State: snapshot, Player1ID: player1ID, Player2ID: player2ID}
}
