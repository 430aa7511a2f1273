package tournament

import (
	"context"
	"errors"
	"testing"
)

func TestStartNeedsTwoPlayers(t *testing.T) {
	s := NewScheduler()
	s.AddPlayer(1)
	if err := s.Start(context.Background()); !errors.Is(err, ErrNotEnoughPlayers) {
		t.Fatalf("want ErrNotEnoughPlayers, got %v", err)
	}
	if s.Status() != StatusPending {
		t.Fatalf("failed start changed status to %v", s.Status())
	}
}

func TestAddPlayerRejectsDuplicatesAndLateEntries(t *testing.T) {
	s := NewScheduler()
	if !s.AddPlayer(1) || !s.AddPlayer(2) {
		t.Fatal("registration failed")
	}
	if s.AddPlayer(1) {
		t.Fatal("duplicate entrant accepted")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if s.AddPlayer(3) {
		t.Fatal("entrant accepted after start")
	}
}

func TestFourPlayerBracket(t *testing.T) {
	s := NewScheduler()
	for id := int64(1); id <= 4; id++ {
		s.AddPlayer(id)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	//1.- Round 1 pairs the roster in registration order: (1,2) and (3,4).
	round1 := s.Pairings(1)
	if len(round1) != 2 {
		t.Fatalf("expected 2 pairings in round 1, got %d", len(round1))
	}
	if round1[0].Player1ID != 1 || round1[0].Player2ID != 2 ||
		round1[1].Player1ID != 3 || round1[1].Player2ID != 4 {
		t.Fatalf("unexpected round 1 pairings: %+v", round1)
	}

	//2.- Round 2 must not exist until both pairings report completion.
	if err := s.CompleteMatch(1, 5, 2); err != nil {
		t.Fatalf("first result rejected: %v", err)
	}
	if s.CurrentRound() != 1 {
		t.Fatalf("round advanced early to %d", s.CurrentRound())
	}

	if err := s.CompleteMatch(4, 1, 5); err != nil {
		t.Fatalf("second result rejected: %v", err)
	}
	if s.CurrentRound() != 2 {
		t.Fatalf("round did not advance, still %d", s.CurrentRound())
	}

	//3.- The final pairs exactly the two recorded winners, in order.
	final := s.Pairings(2)
	if len(final) != 1 {
		t.Fatalf("expected a single final pairing, got %d", len(final))
	}
	if final[0].Player1ID != 1 || final[0].Player2ID != 4 {
		t.Fatalf("final not built from the winners: %+v", final[0])
	}

	if err := s.CompleteMatch(4, 2, 5); err != nil {
		t.Fatalf("final result rejected: %v", err)
	}
	if s.Status() != StatusCompleted {
		t.Fatalf("expected completed tournament, got %v", s.Status())
	}
	if s.Winner() != 4 {
		t.Fatalf("expected winner 4, got %d", s.Winner())
	}

	//4.- Three points per win: the champion won twice.
	scores := s.PlayerScores()
	if scores[4] != 2*PointsPerWin || scores[1] != PointsPerWin {
		t.Fatalf("unexpected points table: %v", scores)
	}
}

func TestOddRosterGetsABye(t *testing.T) {
	s := NewScheduler()
	for id := int64(1); id <= 3; id++ {
		s.AddPlayer(id)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	round1 := s.Pairings(1)
	if len(round1) != 2 {
		t.Fatalf("expected 2 pairings, got %d", len(round1))
	}
	bye := round1[1]
	if !bye.IsBye() || !bye.Completed || bye.WinnerID != 3 {
		t.Fatalf("third entrant did not receive a completed bye: %+v", bye)
	}
	//1.- A bye is an advance, not a win: no points awarded.
	if s.PlayerScores()[3] != 0 {
		t.Fatalf("bye awarded points: %v", s.PlayerScores())
	}

	if err := s.CompleteMatch(2, 5, 3); err != nil {
		t.Fatalf("result rejected: %v", err)
	}
	final := s.Pairings(2)
	if len(final) != 1 || final[0].Player1ID != 2 || final[0].Player2ID != 3 {
		t.Fatalf("unexpected final: %+v", final)
	}
}

func TestCompleteMatchRejectsUnknownWinner(t *testing.T) {
	s := NewScheduler()
	s.AddPlayer(1)
	s.AddPlayer(2)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := s.CompleteMatch(99, 5, 0); !errors.Is(err, ErrNoSuchPairing) {
		t.Fatalf("want ErrNoSuchPairing, got %v", err)
	}

	if err := s.CompleteMatch(2, 3, 5); err != nil {
		t.Fatalf("result rejected: %v", err)
	}
	//1.- Results after completion must be refused.
	if err := s.CompleteMatch(1, 5, 0); !errors.Is(err, ErrWrongStatus) {
		t.Fatalf("want ErrWrongStatus after completion, got %v", err)
	}
}

func TestCallbacksFireInBracketOrder(t *testing.T) {
	var rounds []int
	var completions []int64
	var champion int64
	s := NewScheduler(
		OnRoundStarted(func(round int, pairings []Pairing) {
			rounds = append(rounds, round)
		}),
		OnMatchCompleted(func(round int, pairing Pairing) {
			completions = append(completions, pairing.WinnerID)
		}),
		OnCompleted(func(winnerID int64, scores map[int64]int) {
			champion = winnerID
		}),
	)
	for id := int64(1); id <= 4; id++ {
		s.AddPlayer(id)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	s.CompleteMatch(2, 0, 5)
	s.CompleteMatch(3, 5, 0)
	s.CompleteMatch(2, 5, 4)

	if len(rounds) != 2 || rounds[0] != 1 || rounds[1] != 2 {
		t.Fatalf("round announcements wrong: %v", rounds)
	}
	if len(completions) != 3 {
		t.Fatalf("expected 3 match completions, got %v", completions)
	}
	if champion != 2 {
		t.Fatalf("expected champion 2, got %d", champion)
	}
}

func TestCancelFreezesTheBracket(t *testing.T) {
	s := NewScheduler()
	s.AddPlayer(1)
	s.AddPlayer(2)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	s.Cancel()
	if s.Status() != StatusCancelled {
		t.Fatalf("expected cancelled, got %v", s.Status())
	}
	if err := s.CompleteMatch(1, 5, 0); !errors.Is(err, ErrWrongStatus) {
		t.Fatalf("cancelled tournament accepted a result: %v", err)
	}
	//1.- Cancelling twice keeps the terminal state.
	s.Cancel()
	if s.Status() != StatusCancelled {
		t.Fatalf("double cancel changed status to %v", s.Status())
	}
}
