package session

import (
	"context"
	"sync"
	"time"

	"pongarena/server/internal/game"
	"pongarena/server/internal/logging"
)

// Phase tracks the lifecycle of a match session.
type Phase int32

const (
	PhaseCreated Phase = iota
	PhaseRunning
	PhasePaused
	PhaseFinished
)

// String renders the phase for logs and status payloads.
func (p Phase) String() string {
	switch p {
	case PhaseCreated:
		return "created"
	case PhaseRunning:
		return "running"
	case PhasePaused:
		return "paused"
	case PhaseFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event names carried to clients alongside a snapshot.
const (
	EventInit   = "initGame"
	EventUpdate = "gameUpdate"
	EventReset  = "resetGame"
	EventPause  = "pauseGame"
	EventResume = "resumeGame"
)

// Snapshot is the broadcastable view of a session: the engine state plus the
// lifecycle flags clients render from.
type Snapshot struct {
	game.State
	Paused     bool `json:"paused"`
	Running    bool `json:"running"`
	GameIsOver bool `json:"gameIsOver"`
}

// Result summarises a finished match for persistence and bracket advancement.
type Result struct {
	Score1       int
	Score2       int
	WinnerNumber int
	WinnerID     int64
	LoserID      int64
}

// EmitFunc receives every lifecycle event and state broadcast of a session.
type EmitFunc func(event string, snapshot Snapshot)

// FinishFunc is invoked exactly once when a session reaches PhaseFinished.
type FinishFunc func(result Result)

// Recorder captures per-tick snapshots for replay archival. Implementations
// decide their own sampling cadence.
type Recorder interface {
	RecordSnapshot(tick uint64, snapshot Snapshot)
	RecordScore(tick uint64, score1, score2 int)
	Close() error
}

// Session owns one pong match: the engine, its fixed-rate ticker goroutine
// and the lifecycle state machine. All methods are safe for concurrent use.
type Session struct {
	mu        sync.Mutex
	engine    *game.Engine
	phase     Phase
	tick      uint64
	tickRate  float64
	player1ID int64
	player2ID int64

	emit     EmitFunc
	onFinish FinishFunc
	recorder Recorder
	monitor  *TickMonitor
	logger   *logging.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures optional session behaviour at construction time.
type Option func(*Session)

// WithTickRate overrides the default 60 Hz simulation rate.
func WithTickRate(rate float64) Option {
	return func(s *Session) {
		if rate > 0 {
			s.tickRate = rate
		}
	}
}

// WithEngine injects a pre-built engine, primarily for tests.
func WithEngine(engine *game.Engine) Option {
	return func(s *Session) {
		if engine != nil {
			s.engine = engine
		}
	}
}

// WithFinish registers the callback fired when the match ends.
func WithFinish(fn FinishFunc) Option {
	return func(s *Session) { s.onFinish = fn }
}

// WithRecorder attaches a replay recorder receiving every snapshot.
func WithRecorder(recorder Recorder) Option {
	return func(s *Session) { s.recorder = recorder }
}

// WithMonitor attaches a shared tick monitor for metrics.
func WithMonitor(monitor *TickMonitor) Option {
	return func(s *Session) { s.monitor = monitor }
}

// WithLogger overrides the global logger for this session.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSession builds an idle session in PhaseCreated.
func NewSession(emit EmitFunc, opts ...Option) *Session {
	if emit == nil {
		emit = func(string, Snapshot) {}
	}
	session := &Session{
		engine:   game.NewEngine(),
		phase:    PhaseCreated,
		tickRate: 60,
		emit:     emit,
		logger:   logging.L(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(session)
		}
	}
	return session
}

// SetPlayers records the identities bound to paddle one and paddle two.
func (s *Session) SetPlayers(player1ID, player2ID int64) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.player1ID = player1ID
	s.player2ID = player2ID
	s.mu.Unlock()
}

// Phase reports the current lifecycle phase.
func (s *Session) Phase() Phase {
	if s == nil {
		return PhaseCreated
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Snapshot captures the current broadcastable state.
func (s *Session) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:      s.engine.State(),
		Paused:     s.phase == PhasePaused,
		Running:    s.phase == PhaseRunning,
		GameIsOver: s.phase == PhaseFinished || s.engine.GameOver(),
	}
}

// Start transitions Created to Running and launches the ticker goroutine.
// Calls in any other phase are no-ops.
func (s *Session) Start(ctx context.Context) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.phase != PhaseCreated {
		s.mu.Unlock()
		return
	}
	//1.- Flip to Running before the loop starts so the first tick advances.
	s.phase = PhaseRunning
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	initial := s.snapshotLocked()
	s.mu.Unlock()

	//2.- Announce the fresh field before any movement is simulated.
	s.emit(EventInit, initial)
	go s.run(loopCtx)
}

// run drives the fixed timestep loop until cancellation or match end.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	interval := time.Duration(float64(time.Second) / s.tickRate)
	if interval <= 0 {
		interval = time.Second / 60
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	accumulator := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			//1.- Accumulate elapsed time and run fixed steps while catching up.
			accumulator += now.Sub(last)
			last = now
			for accumulator >= interval {
				started := time.Now()
				finished := s.step()
				s.monitor.Observe(time.Since(started))
				accumulator -= interval
				if finished {
					return
				}
			}
		}
	}
}

// step advances one tick and reports whether the match just finished.
func (s *Session) step() bool {
	s.mu.Lock()
	if s.phase != PhaseRunning {
		//1.- Paused and finished sessions keep their state frozen.
		s.mu.Unlock()
		return false
	}

	s.tick++
	result := s.engine.Step()
	snapshot := s.snapshotLocked()
	tick := s.tick

	if s.recorder != nil {
		s.recorder.RecordSnapshot(tick, snapshot)
		if result.ScoredBy != 0 {
			score1, score2 := s.engine.Scores()
			s.recorder.RecordScore(tick, score1, score2)
		}
	}

	if !result.GameOver {
		s.mu.Unlock()
		s.emit(EventUpdate, snapshot)
		return false
	}

	//2.- Latch the terminal phase and build the result while still locked.
	s.phase = PhaseFinished
	final := s.finalResultLocked()
	snapshot = s.snapshotLocked()
	onFinish := s.onFinish
	recorder := s.recorder
	s.recorder = nil
	s.mu.Unlock()

	s.emit(EventUpdate, snapshot)
	if recorder != nil {
		if err := recorder.Close(); err != nil {
			s.logger.Warn("replay recorder close failed", logging.Error(err))
		}
	}
	if onFinish != nil {
		//3.- Persistence and bracket advancement run off the tick goroutine.
		go onFinish(final)
	}
	return true
}

func (s *Session) finalResultLocked() Result {
	score1, score2 := s.engine.Scores()
	result := Result{Score1: score1, Score2: score2, WinnerNumber: s.engine.Winner()}
	switch result.WinnerNumber {
	case 1:
		result.WinnerID = s.player1ID
		result.LoserID = s.player2ID
	case 2:
		result.WinnerID = s.player2ID
		result.LoserID = s.player1ID
	}
	return result
}

// Pause freezes a running match. Calls in any other phase are no-ops.
func (s *Session) Pause() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.phase != PhaseRunning {
		s.mu.Unlock()
		return
	}
	s.phase = PhasePaused
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(EventPause, snapshot)
}

// Resume restarts a paused match with scores intact.
func (s *Session) Resume() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.phase != PhasePaused {
		s.mu.Unlock()
		return
	}
	s.phase = PhaseRunning
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(EventResume, snapshot)
}

// MovePaddle applies one movement command. Commands are dropped unless the
// session is running, so a paused or finished field cannot drift.
func (s *Session) MovePaddle(playerNumber int, direction game.Direction) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.phase != PhaseRunning {
		s.mu.Unlock()
		return
	}
	s.engine.MovePaddle(playerNumber, direction)
	s.mu.Unlock()
}

// Reset re-centers the ball and paddles without touching scores.
func (s *Session) Reset() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.phase == PhaseFinished {
		s.mu.Unlock()
		return
	}
	s.engine.Reset()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(EventReset, snapshot)
}

// ResetScores zeroes both scores, clearing any engine game-over latch.
func (s *Session) ResetScores() {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.phase == PhaseFinished {
		s.mu.Unlock()
		return
	}
	s.engine.ResetScores()
	snapshot := s.snapshotLocked()
	s.mu.Unlock()
	s.emit(EventUpdate, snapshot)
}

// Stop cancels the ticker goroutine and waits for it to exit. Safe to call
// repeatedly and on sessions that were never started.
func (s *Session) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.cancel = nil
	s.done = nil
	recorder := s.recorder
	s.recorder = nil
	finished := s.phase == PhaseFinished
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	//1.- A recorder on a finished session was already closed by the loop.
	if recorder != nil && !finished {
		if err := recorder.Close(); err != nil {
			s.logger.Warn("replay recorder close failed", logging.Error(err))
		}
	}
}
