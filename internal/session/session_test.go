package session

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"pongarena/server/internal/game"
)

type emitLog struct {
	mu     sync.Mutex
	events []string
	snaps  []Snapshot
}

func (l *emitLog) emit(event string, snapshot Snapshot) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.snaps = append(l.snaps, snapshot)
	l.mu.Unlock()
}

func (l *emitLog) first() (string, Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return "", Snapshot{}, false
	}
	return l.events[0], l.snaps[0], true
}

func (l *emitLog) last() (string, Snapshot, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.events) == 0 {
		return "", Snapshot{}, false
	}
	return l.events[len(l.events)-1], l.snaps[len(l.snaps)-1], true
}

func (l *emitLog) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

func seededEngine(opts ...game.Option) *game.Engine {
	opts = append([]game.Option{game.WithRand(rand.New(rand.NewSource(7)))}, opts...)
	return game.NewEngine(opts...)
}

func TestStartEmitsInitAndTransitionsToRunning(t *testing.T) {
	log := &emitLog{}
	s := NewSession(log.emit, WithEngine(seededEngine()))
	defer s.Stop()

	s.Start(context.Background())
	if s.Phase() != PhaseRunning {
		t.Fatalf("expected running phase, got %v", s.Phase())
	}
	event, snapshot, ok := log.first()
	if !ok || event != EventInit {
		t.Fatalf("expected %q as the first event, got %q", EventInit, event)
	}
	if !snapshot.Running || snapshot.Paused || snapshot.GameIsOver {
		t.Fatalf("unexpected lifecycle flags on the initial snapshot: %+v", snapshot)
	}

	//1.- Starting twice must not spawn a second loop or re-announce the field.
	s.Start(context.Background())
	if event, _, _ := log.first(); event != EventInit {
		t.Fatalf("unexpected event ordering after double start: %q", event)
	}
}

func TestStepBroadcastsGameUpdate(t *testing.T) {
	log := &emitLog{}
	s := NewSession(log.emit, WithEngine(seededEngine()))
	s.phase = PhaseRunning

	if finished := s.step(); finished {
		t.Fatal("first tick unexpectedly finished the match")
	}
	event, snapshot, ok := log.last()
	if !ok || event != EventUpdate {
		t.Fatalf("expected %q, got %q", EventUpdate, event)
	}
	if !snapshot.Running {
		t.Fatal("snapshot of a running session must report running")
	}
	if s.tick != 1 {
		t.Fatalf("expected tick counter 1, got %d", s.tick)
	}
}

func TestPausedSessionFreezesStateAndTicks(t *testing.T) {
	log := &emitLog{}
	s := NewSession(log.emit, WithEngine(seededEngine()))
	s.phase = PhaseRunning
	s.step()

	s.Pause()
	if s.Phase() != PhasePaused {
		t.Fatalf("expected paused phase, got %v", s.Phase())
	}
	event, snapshot, _ := log.last()
	if event != EventPause {
		t.Fatalf("expected %q, got %q", EventPause, event)
	}
	if !snapshot.Paused || snapshot.Running {
		t.Fatalf("pause snapshot carries wrong flags: %+v", snapshot)
	}

	//1.- Pausing again must be a silent no-op.
	before := log.count()
	s.Pause()
	if log.count() != before {
		t.Fatal("second pause emitted an event")
	}

	//2.- Ticks and paddle moves are dropped while paused.
	frozen := s.Snapshot()
	s.step()
	s.MovePaddle(1, game.DirectionUp)
	if s.Snapshot() != frozen {
		t.Fatal("paused session state drifted")
	}

	s.Resume()
	if s.Phase() != PhaseRunning {
		t.Fatalf("expected running after resume, got %v", s.Phase())
	}
	event, snapshot, _ = log.last()
	if event != EventResume {
		t.Fatalf("expected %q, got %q", EventResume, event)
	}
	if snapshot.Score1 != frozen.Score1 || snapshot.Score2 != frozen.Score2 {
		t.Fatal("resume must keep the scores intact")
	}
}

func TestMovePaddleIgnoredBeforeStart(t *testing.T) {
	s := NewSession(nil, WithEngine(seededEngine()))

	before := s.Snapshot()
	s.MovePaddle(1, game.DirectionUp)
	if s.Snapshot() != before {
		t.Fatal("paddle moved while the session was still in PhaseCreated")
	}
}

func TestMovePaddleAppliesWhileRunning(t *testing.T) {
	s := NewSession(nil, WithEngine(seededEngine()))
	s.phase = PhaseRunning

	before := s.Snapshot()
	s.MovePaddle(1, game.DirectionUp)
	after := s.Snapshot()
	if after.Paddle1.Y >= before.Paddle1.Y {
		t.Fatalf("paddle one did not move up: %v -> %v", before.Paddle1.Y, after.Paddle1.Y)
	}
	if after.Paddle2 != before.Paddle2 {
		t.Fatal("paddle two moved without a command")
	}
}

func TestFinishFiresCallbackOnceAndLatchesPhase(t *testing.T) {
	log := &emitLog{}
	results := make(chan Result, 2)
	s := NewSession(log.emit,
		WithEngine(seededEngine(game.WithScoreLimit(1))),
		WithFinish(func(r Result) { results <- r }),
	)
	s.SetPlayers(101, 202)
	s.phase = PhaseRunning

	//1.- Park both paddles at the top so the lane opens and a point falls.
	finished := false
	for tick := 0; tick < 50000 && !finished; tick++ {
		s.MovePaddle(1, game.DirectionUp)
		s.MovePaddle(2, game.DirectionUp)
		finished = s.step()
	}
	if !finished {
		t.Fatal("match never reached the score limit")
	}
	if s.Phase() != PhaseFinished {
		t.Fatalf("expected finished phase, got %v", s.Phase())
	}

	var result Result
	select {
	case result = <-results:
	case <-time.After(2 * time.Second):
		t.Fatal("finish callback never fired")
	}
	if result.WinnerNumber != 1 && result.WinnerNumber != 2 {
		t.Fatalf("result carries no winner: %+v", result)
	}
	if result.WinnerID == 0 || result.LoserID == 0 {
		t.Fatalf("result not mapped to player identities: %+v", result)
	}
	if result.WinnerID == result.LoserID {
		t.Fatalf("winner and loser collapsed to one identity: %+v", result)
	}

	event, snapshot, _ := log.last()
	if event != EventUpdate || !snapshot.GameIsOver {
		t.Fatalf("final broadcast missing the game-over flag: %q %+v", event, snapshot)
	}

	//2.- A finished session is inert: no more ticks, no second callback.
	frozen := s.Snapshot()
	s.step()
	s.Reset()
	s.ResetScores()
	if s.Snapshot() != frozen {
		t.Fatal("finished session state changed")
	}
	select {
	case <-results:
		t.Fatal("finish callback fired twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestResetRecentersWithoutTouchingScores(t *testing.T) {
	log := &emitLog{}
	s := NewSession(log.emit, WithEngine(seededEngine()))
	s.phase = PhaseRunning
	for i := 0; i < 5; i++ {
		s.step()
	}

	s.Reset()
	event, snapshot, _ := log.last()
	if event != EventReset {
		t.Fatalf("expected %q, got %q", EventReset, event)
	}
	if snapshot.Ball.X != game.FieldWidth/2 || snapshot.Ball.Y != game.FieldHeight/2 {
		t.Fatalf("ball not re-centered: (%v,%v)", snapshot.Ball.X, snapshot.Ball.Y)
	}
}

func TestStopIsIdempotentAndWaitsForLoopExit(t *testing.T) {
	s := NewSession(nil, WithEngine(seededEngine()), WithTickRate(240))
	s.Start(context.Background())

	//1.- Give the loop a moment to tick before tearing it down.
	time.Sleep(20 * time.Millisecond)
	s.Stop()
	s.Stop()

	//2.- Stopping a never-started session must not block or panic either.
	idle := NewSession(nil)
	idle.Stop()
}

type fakeRecorder struct {
	mu        sync.Mutex
	snapshots int
	scores    int
	closed    int
}

func (r *fakeRecorder) RecordSnapshot(uint64, Snapshot) {
	r.mu.Lock()
	r.snapshots++
	r.mu.Unlock()
}

func (r *fakeRecorder) RecordScore(uint64, int, int) {
	r.mu.Lock()
	r.scores++
	r.mu.Unlock()
}

func (r *fakeRecorder) Close() error {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
	return nil
}

func TestRecorderReceivesSnapshotsAndClosesOnStop(t *testing.T) {
	recorder := &fakeRecorder{}
	s := NewSession(nil, WithEngine(seededEngine()), WithRecorder(recorder))
	s.phase = PhaseRunning

	for i := 0; i < 3; i++ {
		s.step()
	}
	recorder.mu.Lock()
	snapshots := recorder.snapshots
	recorder.mu.Unlock()
	if snapshots != 3 {
		t.Fatalf("expected 3 recorded snapshots, got %d", snapshots)
	}

	s.Stop()
	recorder.mu.Lock()
	closed := recorder.closed
	recorder.mu.Unlock()
	if closed != 1 {
		t.Fatalf("expected exactly one close, got %d", closed)
	}
}

func TestTickMonitorAggregates(t *testing.T) {
	monitor := NewTickMonitor()
	monitor.Observe(2 * time.Millisecond)
	monitor.Observe(4 * time.Millisecond)

	stats := monitor.Snapshot()
	if stats.Samples != 2 {
		t.Fatalf("expected 2 samples, got %d", stats.Samples)
	}
	if stats.Average != 3*time.Millisecond {
		t.Fatalf("expected 3ms average, got %v", stats.Average)
	}
	if stats.Max != 4*time.Millisecond {
		t.Fatalf("expected 4ms max, got %v", stats.Max)
	}

	monitor.Reset()
	if monitor.Snapshot().Samples != 0 {
		t.Fatal("reset did not clear the samples")
	}
}
