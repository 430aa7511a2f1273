package lobby

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"pongarena/server/internal/protocol"
	"pongarena/server/internal/session"
)

// Kind separates 1v1 match lobbies from tournament waiting rooms.
type Kind string

const (
	KindMatch      Kind = "match"
	KindTournament Kind = "tournament"
)

// Default capacities per lobby kind.
const (
	DefaultMatchPlayers      = 2
	DefaultTournamentPlayers = 4
)

// Player is one occupied slot of a lobby.
type Player struct {
	UserID       int64
	Username     string
	PlayerNumber int
	Ready        bool
}

// SessionFactory builds the match session a lobby starts. Injected so the
// lobby stays transport-free while the router wires broadcasting in.
type SessionFactory func() *session.Session

// Lobby groups players before and during a match. Every mutating method runs
// under the lobby's own mutex, closing the check-and-update races that a
// shared map alone cannot.
type Lobby struct {
	mu         sync.Mutex
	id         string
	name       string
	kind       Kind
	creatorID  int64
	maxPlayers int
	started    bool
	players    []*Player
	sess       *session.Session
	matchID    int64
	createdAt  time.Time
	newSession SessionFactory
}

// Option configures a lobby at construction time.
type Option func(*Lobby)

// WithID overrides the generated lobby identifier.
func WithID(id string) Option {
	return func(l *Lobby) {
		if id != "" {
			l.id = id
		}
	}
}

// WithName overrides the default "Lobby <prefix>" display name.
func WithName(name string) Option {
	return func(l *Lobby) {
		if name != "" {
			l.name = name
		}
	}
}

// WithMaxPlayers overrides the kind's default capacity.
func WithMaxPlayers(max int) Option {
	return func(l *Lobby) {
		if max > 1 {
			l.maxPlayers = max
		}
	}
}

// WithSessionFactory injects the session constructor used by StartGame.
func WithSessionFactory(factory SessionFactory) Option {
	return func(l *Lobby) {
		if factory != nil {
			l.newSession = factory
		}
	}
}

// New builds an empty lobby of the given kind.
func New(kind Kind, opts ...Option) *Lobby {
	l := &Lobby{
		id:         uuid.NewString(),
		kind:       kind,
		maxPlayers: DefaultMatchPlayers,
		createdAt:  time.Now(),
		newSession: func() *session.Session { return session.NewSession(nil) },
	}
	if kind == KindTournament {
		l.maxPlayers = DefaultTournamentPlayers
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	//1.- Derive the default display name from the id prefix.
	if l.name == "" {
		prefix := l.id
		if len(prefix) > 6 {
			prefix = prefix[:6]
		}
		l.name = "Lobby " + prefix
	}
	return l
}

// ID reports the lobby identifier.
func (l *Lobby) ID() string {
	if l == nil {
		return ""
	}
	return l.id
}

// Name reports the display name.
func (l *Lobby) Name() string {
	if l == nil {
		return ""
	}
	return l.name
}

// Kind reports whether this is a match or tournament lobby.
func (l *Lobby) Kind() Kind {
	if l == nil {
		return ""
	}
	return l.kind
}

// CreatorID reports the current creator, zero while empty.
func (l *Lobby) CreatorID() int64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creatorID
}

// IsCreator reports whether the user holds the creator role.
func (l *Lobby) IsCreator(userID int64) bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.creatorID != 0 && l.creatorID == userID
}

// MaxPlayers reports the slot capacity.
func (l *Lobby) MaxPlayers() int {
	if l == nil {
		return 0
	}
	return l.maxPlayers
}

// MatchID reports the persisted match row backing this lobby, zero if none.
func (l *Lobby) MatchID() int64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.matchID
}

// SetMatchID records the persisted match row backing this lobby.
func (l *Lobby) SetMatchID(id int64) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.matchID = id
	l.mu.Unlock()
}

// AddPlayer claims the next free slot for the user. A full lobby returns
// (nil, false) and stays unchanged. Re-adding a present user returns the
// existing slot so a reconnect does not consume capacity.
func (l *Lobby) AddPlayer(userID int64, username string) (*Player, bool) {
	if l == nil || userID == 0 {
		return nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	//1.- A returning player reclaims their existing slot.
	for _, p := range l.players {
		if p.UserID == userID {
			return p, true
		}
	}
	if len(l.players) >= l.maxPlayers {
		return nil, false
	}

	//2.- Assign the lowest free player number so rejoin order stays stable.
	used := make(map[int]bool, len(l.players))
	for _, p := range l.players {
		used[p.PlayerNumber] = true
	}
	number := 1
	for used[number] {
		number++
	}

	player := &Player{UserID: userID, Username: username, PlayerNumber: number}
	l.players = append(l.players, player)
	if l.creatorID == 0 {
		l.creatorID = userID
	}
	return player, true
}

// RemovePlayer drops the user's slot. A running session is forced to Paused
// since a one-player match cannot proceed. When the creator leaves a
// non-empty lobby the longest-present remaining player inherits the role;
// the new creator id is returned, zero otherwise.
func (l *Lobby) RemovePlayer(userID int64) (removed bool, newCreatorID int64) {
	if l == nil {
		return false, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	index := -1
	for i, p := range l.players {
		if p.UserID == userID {
			index = i
			break
		}
	}
	if index < 0 {
		return false, 0
	}
	l.players = append(l.players[:index], l.players[index+1:]...)

	//1.- A one-player match cannot proceed; freeze instead of finishing.
	if l.sess != nil {
		l.sess.Pause()
	}

	//2.- Hand the creator role to the next player in join order.
	if l.creatorID == userID {
		l.creatorID = 0
		if len(l.players) > 0 {
			l.creatorID = l.players[0].UserID
			newCreatorID = l.creatorID
		}
	}
	return true, newCreatorID
}

// SetPlayerReady flips the readiness flag. The flip is idempotent and never
// starts the game by itself.
func (l *Lobby) SetPlayerReady(userID int64, ready bool) (readyCount int, allReady bool, ok bool) {
	if l == nil {
		return 0, false, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, p := range l.players {
		if p.UserID == userID {
			p.Ready = ready
			ok = true
		}
		if p.Ready {
			readyCount++
		}
	}
	if !ok {
		return 0, false, false
	}
	allReady = len(l.players) >= 2 && readyCount == len(l.players)
	return readyCount, allReady, true
}

// AllReady reports whether at least two players are present and every one
// of them flagged ready.
func (l *Lobby) AllReady() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.players) < 2 {
		return false
	}
	for _, p := range l.players {
		if !p.Ready {
			return false
		}
	}
	return true
}

// StartGame creates and starts the match session. It proceeds only for a
// match lobby with at least two players, all ready, not already started.
// Creator-only enforcement is the router's duty, not the lobby's.
func (l *Lobby) StartGame(ctx context.Context) (*session.Session, bool) {
	if l == nil {
		return nil, false
	}
	l.mu.Lock()
	if l.kind != KindMatch || l.started || len(l.players) < 2 {
		l.mu.Unlock()
		return nil, false
	}
	for _, p := range l.players {
		if !p.Ready {
			l.mu.Unlock()
			return nil, false
		}
	}

	//1.- Bind paddle numbers to identities before the first tick.
	sess := l.newSession()
	var player1ID, player2ID int64
	for _, p := range l.players {
		switch p.PlayerNumber {
		case 1:
			player1ID = p.UserID
		case 2:
			player2ID = p.UserID
		}
	}
	sess.SetPlayers(player1ID, player2ID)
	l.sess = sess
	l.started = true
	l.mu.Unlock()

	sess.Start(ctx)
	return sess, true
}

// PauseGame delegates to the owned session; a no-op without one.
func (l *Lobby) PauseGame() {
	if l == nil {
		return
	}
	l.Session().Pause()
}

// ResumeGame delegates to the owned session; a no-op without one.
func (l *Lobby) ResumeGame() {
	if l == nil {
		return
	}
	l.Session().Resume()
}

// Session reports the owned match session, nil before StartGame.
func (l *Lobby) Session() *session.Session {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sess
}

// Started reports whether the game has been started.
func (l *Lobby) Started() bool {
	if l == nil {
		return false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.started
}

// PlayerCount reports the number of occupied slots.
func (l *Lobby) PlayerCount() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.players)
}

// IsEmpty reports whether every slot is free.
func (l *Lobby) IsEmpty() bool {
	return l.PlayerCount() == 0
}

// Player looks up the slot bound to the user.
func (l *Lobby) Player(userID int64) (*Player, bool) {
	if l == nil {
		return nil, false
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, p := range l.players {
		if p.UserID == userID {
			return p, true
		}
	}
	return nil, false
}

// PlayerIDs reports every occupant's user id in join order.
func (l *Lobby) PlayerIDs() []int64 {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	ids := make([]int64, 0, len(l.players))
	for _, p := range l.players {
		ids = append(ids, p.UserID)
	}
	return ids
}

// Teardown stops the owned session, releasing its ticker goroutine.
func (l *Lobby) Teardown() {
	if l == nil {
		return
	}
	l.mu.Lock()
	sess := l.sess
	l.sess = nil
	l.started = false
	l.mu.Unlock()
	sess.Stop()
}

// Summary renders the listing view broadcast to clients.
func (l *Lobby) Summary() protocol.LobbySummary {
	if l == nil {
		return protocol.LobbySummary{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	summary := protocol.LobbySummary{
		LobbyID:        l.id,
		Name:           l.name,
		CreatorID:      l.creatorID,
		MaxPlayers:     l.maxPlayers,
		CurrentPlayers: len(l.players),
		LobbyType:      string(l.kind),
		IsStarted:      l.started,
		Players:        make([]protocol.PlayerSummary, 0, len(l.players)),
	}
	for _, p := range l.players {
		summary.Players = append(summary.Players, protocol.PlayerSummary{
			ID:           p.UserID,
			PlayerNumber: p.PlayerNumber,
			IsReady:      p.Ready,
		})
	}
	return summary
}
