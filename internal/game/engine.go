package game

import (
	"math/rand"
	"time"
)

// Field and body dimensions shared with rendering clients.
const (
	FieldWidth  = 800.0
	FieldHeight = 600.0

	PaddleWidth  = 10.0
	PaddleHeight = 100.0
	PaddleSpeed  = 10.0
	paddleInset  = 20.0

	BallRadius = 10.0
	BallSpeed  = 3.0

	// SubSteps splits each tick into equal integration slices so a fast
	// ball cannot tunnel through a paddle within one tick.
	SubSteps = 4

	// DefaultScoreLimit ends the game once either side reaches it.
	DefaultScoreLimit = 5

	// deflection applied per unit of vertical offset between ball and paddle center.
	deflectionFactor = 0.05
)

// Direction is a paddle movement command.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Valid reports whether the direction is one of the two supported values.
func (d Direction) Valid() bool {
	return d == DirectionUp || d == DirectionDown
}

// StepResult describes what happened during a single tick.
type StepResult struct {
	WallHit     bool
	PaddleHit   bool
	ScoredBy    int // 1 or 2, zero when no point was scored
	GameOver    bool
	SubStepsRun int
}

// Engine holds the pure pong state. It performs no I/O and is mutated only
// through its exported methods; the caller is responsible for locking.
type Engine struct {
	width      float64
	height     float64
	ball       Ball
	paddle1    Paddle
	paddle2    Paddle
	score1     int
	score2     int
	scoreLimit int
	gameOver   bool
	winner     int
	rng        *rand.Rand
}

// Option configures optional engine behaviour at construction time.
type Option func(*Engine)

// WithScoreLimit overrides the default winning score.
func WithScoreLimit(limit int) Option {
	return func(e *Engine) {
		//1.- Ignore non-positive limits so the default stays coherent.
		if limit > 0 {
			e.scoreLimit = limit
		}
	}
}

// WithRand injects a deterministic random source, primarily for tests.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		if rng != nil {
			e.rng = rng
		}
	}
}

// NewEngine constructs a centered game with a randomized serve direction.
func NewEngine(opts ...Option) *Engine {
	engine := &Engine{
		width:      FieldWidth,
		height:     FieldHeight,
		scoreLimit: DefaultScoreLimit,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(engine)
		}
	}
	//1.- Home both paddles and serve the first ball from the center.
	engine.homePaddles()
	engine.serve()
	return engine
}

func (e *Engine) homePaddles() {
	e.paddle1 = Paddle{
		X:      paddleInset,
		Y:      (e.height - PaddleHeight) / 2,
		Width:  PaddleWidth,
		Height: PaddleHeight,
		Speed:  PaddleSpeed,
	}
	e.paddle2 = Paddle{
		X:      e.width - paddleInset - PaddleWidth,
		Y:      (e.height - PaddleHeight) / 2,
		Width:  PaddleWidth,
		Height: PaddleHeight,
		Speed:  PaddleSpeed,
	}
}

func (e *Engine) serve() {
	//1.- Recenter the ball with the base speed on both axes.
	e.ball = Ball{
		X:      e.width / 2,
		Y:      e.height / 2,
		SpeedX: BallSpeed,
		SpeedY: BallSpeed,
		Radius: BallRadius,
	}
	//2.- Flip each axis sign independently with even odds.
	if e.rng.Intn(2) == 0 {
		e.ball.SpeedX = -e.ball.SpeedX
	}
	if e.rng.Intn(2) == 0 {
		e.ball.SpeedY = -e.ball.SpeedY
	}
}

// Step advances the simulation by one tick split into SubSteps slices.
// A wall or scoring event aborts the remaining sub-steps of the tick.
func (e *Engine) Step() StepResult {
	var result StepResult
	if e == nil || e.gameOver {
		return result
	}

	for i := 0; i < SubSteps; i++ {
		result.SubStepsRun++
		e.ball.Integrate(1)

		//1.- Contain the ball vertically, reflecting off top and bottom walls.
		if e.ball.Y-e.ball.Radius <= 0 {
			e.ball.Y = e.ball.Radius
			e.ball.ReflectY()
			result.WallHit = true
			break
		}
		if e.ball.Y+e.ball.Radius >= e.height {
			e.ball.Y = e.height - e.ball.Radius
			e.ball.ReflectY()
			result.WallHit = true
			break
		}

		//2.- Bounce off a paddle only when travelling towards it, so one
		// contact reverses the horizontal speed exactly once.
		if e.ball.SpeedX < 0 && e.collides(&e.paddle1) {
			e.ball.X = e.paddle1.X + e.paddle1.Width + e.ball.Radius
			e.ball.ReflectX()
			e.ball.SpeedY += (e.ball.Y - e.paddle1.CenterY()) * deflectionFactor
			result.PaddleHit = true
		} else if e.ball.SpeedX > 0 && e.collides(&e.paddle2) {
			e.ball.X = e.paddle2.X - e.ball.Radius
			e.ball.ReflectX()
			e.ball.SpeedY += (e.ball.Y - e.paddle2.CenterY()) * deflectionFactor
			result.PaddleHit = true
		}

		//3.- Score when the ball leaves the field horizontally.
		if e.ball.X < 0 {
			result.ScoredBy = 2
			e.score2++
			if e.score2 >= e.scoreLimit {
				e.gameOver = true
				e.winner = 2
			} else {
				e.Reset()
			}
			break
		}
		if e.ball.X > e.width {
			result.ScoredBy = 1
			e.score1++
			if e.score1 >= e.scoreLimit {
				e.gameOver = true
				e.winner = 1
			} else {
				e.Reset()
			}
			break
		}
	}

	result.GameOver = e.gameOver
	return result
}

func (e *Engine) collides(p *Paddle) bool {
	return e.ball.X-e.ball.Radius <= p.X+p.Width &&
		e.ball.X+e.ball.Radius >= p.X &&
		e.ball.Y+e.ball.Radius >= p.Y &&
		e.ball.Y-e.ball.Radius <= p.Y+p.Height
}

// MovePaddle applies one movement command to the addressed player's paddle.
func (e *Engine) MovePaddle(playerNumber int, direction Direction) {
	if e == nil || !direction.Valid() {
		return
	}
	var paddle *Paddle
	switch playerNumber {
	case 1:
		paddle = &e.paddle1
	case 2:
		paddle = &e.paddle2
	default:
		return
	}
	if direction == DirectionUp {
		paddle.MoveUp()
	} else {
		paddle.MoveDown(e.height)
	}
}

// Reset re-centers the ball with a fresh serve and re-homes both paddles
// without touching the scores.
func (e *Engine) Reset() {
	if e == nil {
		return
	}
	e.serve()
	e.homePaddles()
}

// ResetScores zeroes both scores and clears the game-over latch.
func (e *Engine) ResetScores() {
	if e == nil {
		return
	}
	e.score1 = 0
	e.score2 = 0
	e.gameOver = false
	e.winner = 0
}

// Scores reports the current score pair.
func (e *Engine) Scores() (int, int) {
	if e == nil {
		return 0, 0
	}
	return e.score1, e.score2
}

// GameOver reports whether either side reached the score limit.
func (e *Engine) GameOver() bool {
	return e != nil && e.gameOver
}

// Winner reports the winning player number, or zero while undecided.
func (e *Engine) Winner() int {
	if e == nil {
		return 0
	}
	return e.winner
}

// ScoreLimit reports the configured winning score.
func (e *Engine) ScoreLimit() int {
	if e == nil {
		return 0
	}
	return e.scoreLimit
}

// BallState is the broadcastable view of the ball.
type BallState struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Radius float64 `json:"radius"`
}

// PaddleState is the broadcastable view of one paddle.
type PaddleState struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// State is the full serialisable engine state.
type State struct {
	Ball    BallState   `json:"ball"`
	Paddle1 PaddleState `json:"paddle1"`
	Paddle2 PaddleState `json:"paddle2"`
	Score1  int         `json:"score1"`
	Score2  int         `json:"score2"`
}

// State captures a copy of the engine suitable for broadcast.
func (e *Engine) State() State {
	if e == nil {
		return State{}
	}
	return State{
		Ball:    BallState{X: e.ball.X, Y: e.ball.Y, Radius: e.ball.Radius},
		Paddle1: PaddleState{X: e.paddle1.X, Y: e.paddle1.Y, W: e.paddle1.Width, H: e.paddle1.Height},
		Paddle2: PaddleState{X: e.paddle2.X, Y: e.paddle2.Y, W: e.paddle2.Width, H: e.paddle2.Height},
		Score1:  e.score1,
		Score2:  e.score2,
	}
}
