// Package engine advances the physics of a single match by one tick.
// Nothing in here performs I/O or reads the clock.
package engine

import "math"

// Side identifies one half of the board.
type Side string

const (
	P1 Side = "p1"
	P2 Side = "p2"
)

// Opponent returns the other side.
func (s Side) Opponent() Side {
	if s == P1 {
		return P2
	}
	return P1
}

// Valid reports whether s names a playable side.
func (s Side) Valid() bool { return s == P1 || s == P2 }

type EndReason string

const (
	EndNone         EndReason = ""
	EndCompleted    EndReason = "completed"
	EndDisconnected EndReason = "disconnected"
	EndExited       EndReason = "exited"
)

const (
	hitSpeedup      = 1.02
	maxAngleFactor  = 0.7
	maxServeAngle   = 0.8
	separationNudge = 1.0
	// cap relative to the serve speed, keeps the ball from tunnelling through a paddle
	maxSpeedFactor = 2.5
)

type Ball struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

type Paddle struct {
	Y float64 `json:"y"`
}

type Paddles struct {
	P1 Paddle `json:"p1"`
	P2 Paddle `json:"p2"`
}

type Score struct {
	P1 int `json:"p1"`
	P2 int `json:"p2"`
}

// Of returns the score for one side.
func (s Score) Of(side Side) int {
	if side == P1 {
		return s.P1
	}
	return s.P2
}

// Set overwrites the score for one side.
func (s *Score) Set(side Side, v int) {
	if side == P1 {
		s.P1 = v
		return
	}
	s.P2 = v
}

// State is the full mutable state of one match.
type State struct {
	Ball      Ball      `json:"ball"`
	Paddles   Paddles   `json:"paddles"`
	Score     Score     `json:"score"`
	Started   bool      `json:"started"`
	Over      bool      `json:"over"`
	Paused    bool      `json:"paused"`
	EndReason EndReason `json:"endReason,omitempty"`
	Winner    Side      `json:"winner,omitempty"`
}

// Input is the set of directional keys a side is holding.
type Input struct {
	Up   bool
	Down bool
}

type Inputs struct {
	P1 Input
	P2 Input
}

// Result is what Step hands back to the session driving it.
type Result struct {
	State     State
	Scored    bool
	ScoredBy  Side
	PaddleHit Side
}

// RandFunc returns a value in [0, 1). It is only consulted when a point
// is scored.
type RandFunc func() float64

// NewState places both paddles and the ball at the centre, serving toward
// the given side.
func NewState(s Settings, serveToward Side, rnd RandFunc) State {
	st := State{}
	mid := (s.Height - s.PaddleHeight) / 2
	st.Paddles.P1.Y = mid
	st.Paddles.P2.Y = mid
	serve(&st.Ball, s, serveToward, rnd)
	return st
}

// Step advances st by one tick. Paddles always move; the ball only moves
// while the match is started, not over and not paused.
func Step(st State, s Settings, in Inputs, rnd RandFunc) Result {
	next := st
	movePaddle(&next.Paddles.P1, in.P1, s)
	movePaddle(&next.Paddles.P2, in.P2, s)

	res := Result{}
	if !next.Started || next.Over || next.Paused {
		res.State = next
		return res
	}

	b := &next.Ball
	b.X += b.VX
	b.Y += b.VY

	if b.Y <= 0 {
		b.Y = 0
		b.VY = math.Abs(b.VY)
	} else if b.Y+s.BallSize >= s.Height {
		b.Y = s.Height - s.BallSize
		b.VY = -math.Abs(b.VY)
	}

	leftX := s.PaddleOffset
	rightX := s.Width - s.PaddleOffset - s.PaddleWidth
	switch {
	case b.VX < 0 && overlaps(*b, leftX, next.Paddles.P1.Y, s):
		deflect(b, leftX, next.Paddles.P1.Y, P1, s)
		res.PaddleHit = P1
	case b.VX > 0 && overlaps(*b, rightX, next.Paddles.P2.Y, s):
		deflect(b, rightX, next.Paddles.P2.Y, P2, s)
		res.PaddleHit = P2
	}

	var scorer Side
	if b.X < 0 {
		scorer = P2
	} else if b.X > s.Width {
		scorer = P1
	}
	if scorer != "" {
		next.Score.Set(scorer, next.Score.Of(scorer)+1)
		serve(b, s, scorer, rnd)
		res.Scored = true
		res.ScoredBy = scorer
		if next.Score.Of(scorer) >= s.WinScore {
			next.Over = true
			next.Winner = scorer
			next.EndReason = EndCompleted
		}
	}

	res.State = next
	return res
}

func movePaddle(p *Paddle, in Input, s Settings) {
	if in.Up && !in.Down {
		p.Y -= s.PaddleSpeed
	} else if in.Down && !in.Up {
		p.Y += s.PaddleSpeed
	}
	p.Y = clamp(p.Y, 0, s.Height-s.PaddleHeight)
}

func overlaps(b Ball, paddleX, paddleY float64, s Settings) bool {
	return b.X < paddleX+s.PaddleWidth &&
		b.X+s.BallSize > paddleX &&
		b.Y < paddleY+s.PaddleHeight &&
		b.Y+s.BallSize > paddleY
}

func deflect(b *Ball, paddleX, paddleY float64, side Side, s Settings) {
	speedX := math.Min(math.Abs(b.VX)*hitSpeedup, s.BaseSpeed()*maxSpeedFactor)

	center := paddleY + s.PaddleHeight/2
	offset := clamp((b.Y+s.BallSize/2-center)/(s.PaddleHeight/2), -1, 1)
	b.VY = offset * maxAngleFactor * speedX

	if side == P1 {
		b.VX = speedX
		b.X = paddleX + s.PaddleWidth + separationNudge
		return
	}
	b.VX = -speedX
	b.X = paddleX - s.BallSize - separationNudge
}

// serve re-centres the ball heading toward the given side with a random
// vertical component no larger than maxServeAngle of the serve speed.
func serve(b *Ball, s Settings, toward Side, rnd RandFunc) {
	speed := s.BaseSpeed()
	b.X = (s.Width - s.BallSize) / 2
	b.Y = (s.Height - s.BallSize) / 2
	b.VX = speed
	if toward == P1 {
		b.VX = -speed
	}
	r := 0.5
	if rnd != nil {
		r = rnd()
	}
	b.VY = (r*2 - 1) * maxServeAngle * speed
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
