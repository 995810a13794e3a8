package services

import (
	"testing"
	"time"

	"pong-arena/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRemote(t *testing.T, f *arenaFixture) (*Session, Participant, Participant) {
	t.Helper()
	alice := f.notifier.connect("c-alice", "alice")
	bob := f.notifier.connect("c-bob", "bob")
	id, reused, err := f.registry.CreateRemote(alice, bob, nil, RemoteOptions{MatchType: MatchTypeMatchmaking})
	require.NoError(t, err)
	require.False(t, reused)
	return f.session(t, id), alice, bob
}

func TestRemoteSessionStartsWhenBothReady(t *testing.T) {
	f := newArena()
	s, _, _ := newRemote(t, f)

	require.NoError(t, s.Ready("alice"))
	assert.False(t, s.Started())

	require.NoError(t, s.Ready("bob"))
	assert.True(t, s.Started())

	assert.ErrorIs(t, s.Ready("mallory"), ErrSideNotAllowed)
}

func TestLocalSessionStartsOnOwnerReady(t *testing.T) {
	f := newArena()
	owner := f.notifier.connect("c-alice", "alice")
	id, err := f.registry.CreateLocal(owner, engine.DefaultSettings())
	require.NoError(t, err)
	s := f.session(t, id)

	require.NoError(t, s.Ready("alice"))
	assert.True(t, s.Started())
	assert.False(t, f.locks.IsLocked("alice").Locked)
}

func TestSessionAutoStartsAfterGracePeriod(t *testing.T) {
	f := newArena()
	s, _, _ := newRemote(t, f)

	s.Step(f.clock.Advance(time.Second))
	assert.False(t, s.Started())

	s.Step(f.clock.Advance(2 * time.Second))
	assert.True(t, s.Started())
	assert.NotEmpty(t, f.notifier.connEvents("c-alice", EventMatchState))
	assert.NotEmpty(t, f.notifier.connEvents("c-bob", EventMatchState))
}

func TestInputEnforcesSides(t *testing.T) {
	f := newArena()
	s, _, _ := newRemote(t, f)

	assert.ErrorIs(t, s.Input("alice", engine.P1, "left", true), ErrInvalidPayload)
	assert.ErrorIs(t, s.Input("alice", engine.P2, KeyUp, true), ErrSideNotAllowed)
	assert.ErrorIs(t, s.Input("mallory", "", KeyUp, true), ErrSideNotAllowed)
	require.NoError(t, s.Input("bob", "", KeyDown, true))

	before := s.State().Paddles.P2.Y
	s.Step(f.clock.Now())
	assert.Greater(t, s.State().Paddles.P2.Y, before)

	require.NoError(t, s.Input("bob", engine.P2, KeyDown, false))
	after := s.State().Paddles.P2.Y
	s.Step(f.clock.Now())
	assert.Equal(t, after, s.State().Paddles.P2.Y)
}

func TestLocalOwnerDrivesBothPaddles(t *testing.T) {
	f := newArena()
	owner := f.notifier.connect("c-alice", "alice")
	id, err := f.registry.CreateLocal(owner, engine.DefaultSettings())
	require.NoError(t, err)
	s := f.session(t, id)

	require.NoError(t, s.Input("alice", engine.P1, KeyUp, true))
	require.NoError(t, s.Input("alice", engine.P2, KeyDown, true))

	start := s.State().Paddles
	s.Step(f.clock.Now())
	assert.Less(t, s.State().Paddles.P1.Y, start.P1.Y)
	assert.Greater(t, s.State().Paddles.P2.Y, start.P2.Y)
}

func TestScorePausesBallBeforeResuming(t *testing.T) {
	f := newArena()
	s, _, _ := newRemote(t, f)

	s.mu.Lock()
	s.state.Started = true
	s.state.Ball = engine.Ball{X: -5, Y: 10, VX: -1}
	s.mu.Unlock()

	s.Step(f.clock.Now())
	st := s.State()
	require.Equal(t, engine.Score{P2: 1}, st.Score)
	require.True(t, st.Paused)
	assert.Greater(t, st.Ball.VX, 0.0)
	served := st.Ball

	s.Step(f.clock.Advance(100 * time.Millisecond))
	assert.Equal(t, served, s.State().Ball)

	s.Step(f.clock.Advance(400 * time.Millisecond))
	assert.False(t, s.State().Paused)
	assert.NotEqual(t, served.X, s.State().Ball.X)
}

func TestReachingWinScoreFinishesMatch(t *testing.T) {
	f := newArena()
	s, _, _ := newRemote(t, f)

	s.mu.Lock()
	s.state.Started = true
	s.state.Score = engine.Score{P1: 4, P2: 2}
	s.state.Ball = engine.Ball{X: s.Settings.Width + 2, Y: 10, VX: 3}
	s.mu.Unlock()

	s.Step(f.clock.Now())

	require.True(t, s.IsOver())
	results := f.results.all()
	require.Len(t, results, 1)
	assert.Equal(t, engine.P1, results[0].Winner)
	assert.Equal(t, "alice", results[0].WinnerID)
	assert.Equal(t, "bob", results[0].LoserID)
	assert.Equal(t, engine.EndCompleted, results[0].EndReason)
	assert.Equal(t, engine.Score{P1: 5, P2: 2}, results[0].Score)
	assert.False(t, f.registry.Exists(s.ID))
	assert.False(t, f.locks.IsLocked("alice").Locked)
}

func TestForceEndAwardsOpponentOnce(t *testing.T) {
	f := newArena()
	var heard []MatchResult
	f.registry.OnResult(func(r MatchResult) { heard = append(heard, r) })
	s, _, _ := newRemote(t, f)
	require.True(t, f.locks.IsLocked("bob").Locked)

	require.True(t, s.ForceEnd(engine.EndDisconnected, engine.P1))
	assert.False(t, s.ForceEnd(engine.EndExited, engine.P2))
	s.Step(f.clock.Now())

	require.Len(t, heard, 1)
	assert.Equal(t, "bob", heard[0].WinnerID)
	assert.Equal(t, engine.EndDisconnected, heard[0].EndReason)
	assert.Equal(t, s.Settings.WinScore, heard[0].Score.P2)
	assert.Len(t, f.results.all(), 1)
	assert.False(t, f.locks.IsLocked("alice").Locked)
	assert.False(t, f.locks.IsLocked("bob").Locked)
}

func TestForceEndLocalHasNoWinner(t *testing.T) {
	f := newArena()
	owner := f.notifier.connect("c-alice", "alice")
	id, err := f.registry.CreateLocal(owner, engine.DefaultSettings())
	require.NoError(t, err)
	s := f.session(t, id)

	require.True(t, s.ForceEnd(engine.EndExited, engine.P1))

	assert.Empty(t, s.State().Winner)
	assert.Empty(t, f.results.all())
	assert.False(t, f.registry.Exists(id))
}
