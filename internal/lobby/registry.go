package lobby

import (
	"sort"
	"sync"

	"pongarena/server/internal/protocol"
	"pongarena/server/internal/session"
)

// Registry is the single owner of the lobbies map. Lobbies are created and
// deleted only through it so teardown cannot leak a ticking session.
type Registry struct {
	mu      sync.Mutex
	lobbies map[string]*Lobby
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{lobbies: make(map[string]*Lobby)}
}

// Add registers a lobby. Duplicate ids are rejected.
func (r *Registry) Add(l *Lobby) bool {
	if r == nil || l == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.lobbies[l.ID()]; exists {
		return false
	}
	r.lobbies[l.ID()] = l
	return true
}

// Get looks a lobby up by id.
func (r *Registry) Get(id string) (*Lobby, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.lobbies[id]
	return l, ok
}

// Remove deletes the lobby and tears its session down. It reports whether
// the id was present.
func (r *Registry) Remove(id string) bool {
	if r == nil {
		return false
	}
	r.mu.Lock()
	l, ok := r.lobbies[id]
	delete(r.lobbies, id)
	r.mu.Unlock()
	if !ok {
		return false
	}
	//1.- Stopping outside the registry lock keeps teardown from blocking Get.
	l.Teardown()
	return true
}

// Len reports the number of registered lobbies.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.lobbies)
}

// List returns every lobby ordered by creation time, oldest first.
func (r *Registry) List() []*Lobby {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	lobbies := make([]*Lobby, 0, len(r.lobbies))
	for _, l := range r.lobbies {
		lobbies = append(lobbies, l)
	}
	r.mu.Unlock()

	sort.Slice(lobbies, func(i, j int) bool {
		if lobbies[i].createdAt.Equal(lobbies[j].createdAt) {
			return lobbies[i].id < lobbies[j].id
		}
		return lobbies[i].createdAt.Before(lobbies[j].createdAt)
	})
	return lobbies
}

// Summaries renders the listing view of every lobby in creation order.
func (r *Registry) Summaries() []protocol.LobbySummary {
	lobbies := r.List()
	summaries := make([]protocol.LobbySummary, 0, len(lobbies))
	for _, l := range lobbies {
		summaries = append(summaries, l.Summary())
	}
	return summaries
}

// RunningSessions counts lobbies whose session is currently ticking.
func (r *Registry) RunningSessions() int {
	count := 0
	for _, l := range r.List() {
		if sess := l.Session(); sess != nil && sess.Phase() == session.PhaseRunning {
			count++
		}
	}
	return count
}
