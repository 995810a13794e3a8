package engine

import (
	"math"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedRand(v float64) RandFunc { return func() float64 { return v } }

func runningState(s Settings) State {
	st := NewState(s, P2, fixedRand(0.5))
	st.Started = true
	return st
}

func TestStepIsDeterministic(t *testing.T) {
	s := DefaultSettings()
	st := runningState(s)
	st.Ball.VY = 2.5
	in := Inputs{P1: Input{Up: true}, P2: Input{Down: true}}

	a, b := st, st
	for i := 0; i < 300; i++ {
		a = Step(a, s, in, fixedRand(0.3)).State
		b = Step(b, s, in, fixedRand(0.3)).State
	}
	assert.Equal(t, a, b)
}

func TestScoreOnLeftExitServesTowardP2(t *testing.T) {
	s := DefaultSettings()
	st := runningState(s)
	st.Ball = Ball{X: -5, Y: 10, VX: -1, VY: 0}

	res := Step(st, s, Inputs{}, fixedRand(0.99))

	require.True(t, res.Scored)
	assert.Equal(t, P2, res.ScoredBy)
	assert.Equal(t, Score{P1: 0, P2: 1}, res.State.Score)
	assert.Equal(t, (s.Width-s.BallSize)/2, res.State.Ball.X)
	assert.Equal(t, (s.Height-s.BallSize)/2, res.State.Ball.Y)
	assert.Greater(t, res.State.Ball.VX, 0.0)
	assert.LessOrEqual(t, math.Abs(res.State.Ball.VY), 0.8*s.BaseSpeed())
	assert.False(t, res.State.Over)
}

func TestScoreOnRightExitServesTowardP1(t *testing.T) {
	s := DefaultSettings()
	st := runningState(s)
	st.Ball = Ball{X: s.Width + 2, Y: 10, VX: 3, VY: 0}

	res := Step(st, s, Inputs{}, fixedRand(0))

	require.True(t, res.Scored)
	assert.Equal(t, P1, res.ScoredBy)
	assert.Less(t, res.State.Ball.VX, 0.0)
	assert.InDelta(t, -0.8*s.BaseSpeed(), res.State.Ball.VY, 1e-9)
}

func TestBallFrozenUntilStarted(t *testing.T) {
	s := DefaultSettings()
	st := NewState(s, P1, fixedRand(0.5))
	before := st.Ball

	res := Step(st, s, Inputs{P1: Input{Down: true}}, nil)
	assert.Equal(t, before, res.State.Ball)
	assert.Equal(t, st.Paddles.P1.Y+s.PaddleSpeed, res.State.Paddles.P1.Y)

	st.Started = true
	st.Paused = true
	res = Step(st, s, Inputs{}, nil)
	assert.Equal(t, before, res.State.Ball)
}

func TestPaddleClampedToBoard(t *testing.T) {
	s := DefaultSettings()
	st := NewState(s, P1, nil)
	for i := 0; i < 200; i++ {
		st = Step(st, s, Inputs{P1: Input{Up: true}, P2: Input{Down: true}}, nil).State
	}
	assert.Equal(t, 0.0, st.Paddles.P1.Y)
	assert.Equal(t, s.Height-s.PaddleHeight, st.Paddles.P2.Y)
}

func TestWallReflection(t *testing.T) {
	s := DefaultSettings()
	st := runningState(s)
	st.Ball = Ball{X: 400, Y: 1, VX: 2, VY: -3}

	res := Step(st, s, Inputs{}, nil)
	assert.Equal(t, 0.0, res.State.Ball.Y)
	assert.Equal(t, 3.0, res.State.Ball.VY)
}

func TestPaddleHitSpeedsUpAndAngles(t *testing.T) {
	s := DefaultSettings()
	st := runningState(s)
	st.Paddles.P1.Y = 200
	// ball centre lands a quarter paddle below the paddle centre
	centerY := st.Paddles.P1.Y + s.PaddleHeight/2 + s.PaddleHeight/4
	st.Ball = Ball{X: s.PaddleOffset + s.PaddleWidth + 2, Y: centerY - s.BallSize/2, VX: -6, VY: 0}

	res := Step(st, s, Inputs{}, nil)

	require.Equal(t, P1, res.PaddleHit)
	assert.InDelta(t, 6*1.02, res.State.Ball.VX, 1e-9)
	assert.InDelta(t, 0.5*0.7*6*1.02, res.State.Ball.VY, 1e-9)
	assert.Equal(t, s.PaddleOffset+s.PaddleWidth+1, res.State.Ball.X)

	// moving away from the paddle on the next tick, no second hit
	again := Step(res.State, s, Inputs{}, nil)
	assert.Empty(t, again.PaddleHit)
}

func TestReachingWinScoreEndsMatch(t *testing.T) {
	s := DefaultSettings()
	s.WinScore = 3
	st := runningState(s)

	for i := 0; i < s.WinScore; i++ {
		st.Ball = Ball{X: s.Width + 1, Y: 10, VX: 1}
		st = Step(st, s, Inputs{}, fixedRand(0.5)).State
	}

	assert.True(t, st.Over)
	assert.Equal(t, P1, st.Winner)
	assert.Equal(t, EndCompleted, st.EndReason)
	assert.Equal(t, 3, st.Score.P1)

	frozen := Step(st, s, Inputs{}, nil).State
	assert.Equal(t, st.Ball, frozen.Ball)
}

func TestWithDefaults(t *testing.T) {
	s := Settings{WinScore: 11, BallSpeed: "warp"}.WithDefaults()
	assert.Equal(t, 11, s.WinScore)
	assert.Equal(t, SpeedNormal, s.BallSpeed)
	assert.Equal(t, DefaultSettings().Width, s.Width)
	assert.Equal(t, DefaultSettings().PaddleOffset, s.PaddleOffset)

	assert.Equal(t, 5.0, Settings{PaddleOffset: 5}.WithDefaults().PaddleOffset)
}

func TestSettingsValidationMatchesDefaults(t *testing.T) {
	v := validator.New()

	assert.NoError(t, v.Struct(Settings{}))
	assert.NoError(t, v.Struct(DefaultSettings()))
	assert.NoError(t, v.Struct(Settings{PaddleOffset: 1}))
	assert.Error(t, v.Struct(Settings{PaddleOffset: 0.5}))
	assert.Error(t, v.Struct(Settings{PaddleOffset: 250}))
}
