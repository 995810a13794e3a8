package services

import (
	"testing"
	"time"

	"pong-arena/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRemoteReusesLiveSessionForPair(t *testing.T) {
	f := newArena()
	alice := f.notifier.connect("c-alice", "alice")
	bob := f.notifier.connect("c-bob", "bob")

	first, reused, err := f.registry.CreateRemote(alice, bob, nil, RemoteOptions{})
	require.NoError(t, err)
	require.False(t, reused)

	bobTab := f.notifier.connect("c-bob-2", "bob")
	second, reused, err := f.registry.CreateRemote(bobTab, alice, nil, RemoteOptions{})
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, f.registry.RoomCount())

	s := f.session(t, first)
	side, ok := s.SideOfConn("c-bob-2")
	require.True(t, ok)
	assert.Equal(t, engine.P2, side)
	assert.Equal(t, MatchTypeDirect, s.MatchType)
}

func TestCreateRemoteRejectsBusyOrSelfPairs(t *testing.T) {
	f := newArena()
	alice := f.notifier.connect("c-alice", "alice")
	bob := f.notifier.connect("c-bob", "bob")
	carol := f.notifier.connect("c-carol", "carol")

	_, _, err := f.registry.CreateRemote(alice, alice, nil, RemoteOptions{})
	assert.ErrorIs(t, err, ErrSelfPairing)

	_, _, err = f.registry.CreateRemote(alice, bob, nil, RemoteOptions{})
	require.NoError(t, err)

	_, _, err = f.registry.CreateRemote(carol, bob, nil, RemoteOptions{})
	assert.ErrorIs(t, err, ErrUserBusy)
	assert.False(t, f.locks.IsLocked("carol").Locked)
}

func TestCreateRemoteAfterFinishStartsFreshSession(t *testing.T) {
	f := newArena()
	alice := f.notifier.connect("c-alice", "alice")
	bob := f.notifier.connect("c-bob", "bob")

	first, _, err := f.registry.CreateRemote(alice, bob, nil, RemoteOptions{})
	require.NoError(t, err)
	f.session(t, first).ForceEnd(engine.EndExited, engine.P2)

	second, reused, err := f.registry.CreateRemote(alice, bob, nil, RemoteOptions{})
	require.NoError(t, err)
	assert.False(t, reused)
	assert.NotEqual(t, first, second)
}

func TestCreateLocalRefusesLockedUserAndReplacesPrevious(t *testing.T) {
	f := newArena()
	alice := f.notifier.connect("c-alice", "alice")

	first, err := f.registry.CreateLocal(alice, engine.Settings{WinScore: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, f.session(t, first).Settings.WinScore)

	second, err := f.registry.CreateLocal(alice, engine.Settings{})
	require.NoError(t, err)
	assert.False(t, f.registry.Exists(first))
	assert.True(t, f.registry.Exists(second))

	f.locks.SetTournamentLock("alice", true)
	_, err = f.registry.CreateLocal(alice, engine.Settings{})
	assert.ErrorIs(t, err, ErrUserBusy)
}

func TestDeleteProtectsYoungSessions(t *testing.T) {
	f := newArena()
	s, _, _ := newRemote(t, f)

	assert.ErrorIs(t, f.registry.Delete(s.ID), ErrSessionTooYoung)
	assert.True(t, f.registry.Exists(s.ID))

	f.clock.Advance(600 * time.Millisecond)
	require.NoError(t, f.registry.Delete(s.ID))
	assert.False(t, f.registry.Exists(s.ID))
	assert.False(t, f.locks.IsLocked("alice").Locked)
	assert.Empty(t, f.results.all())

	assert.ErrorIs(t, f.registry.Delete(s.ID), ErrRoomNotFound)
}

func TestLeaveEndsMatchAsExited(t *testing.T) {
	f := newArena()
	var heard []MatchResult
	f.registry.OnResult(func(r MatchResult) { heard = append(heard, r) })
	s, alice, _ := newRemote(t, f)

	assert.ErrorIs(t, f.registry.Leave("missing", alice), ErrRoomNotFound)
	require.NoError(t, f.registry.Leave(s.ID, alice))

	require.Len(t, heard, 1)
	assert.Equal(t, engine.EndExited, heard[0].EndReason)
	assert.Equal(t, "bob", heard[0].WinnerID)
}

func TestLeaveWithoutRoomLeavesConnectionSessions(t *testing.T) {
	f := newArena()
	_, _, bob := newRemote(t, f)

	require.NoError(t, f.registry.Leave("", bob))
	assert.Zero(t, f.registry.RoomCount())
	assert.ErrorIs(t, f.registry.Leave("", bob), ErrRoomNotFound)
}

func TestHandleDisconnectForfeits(t *testing.T) {
	f := newArena()
	s, _, _ := newRemote(t, f)

	f.registry.HandleDisconnect("c-unrelated")
	assert.True(t, f.registry.Exists(s.ID))

	f.registry.HandleDisconnect("c-alice")
	results := f.results.all()
	require.Len(t, results, 1)
	assert.Equal(t, engine.EndDisconnected, results[0].EndReason)
	assert.Equal(t, "bob", results[0].WinnerID)
	assert.False(t, f.registry.InSession("bob"))
}

func TestExpireStaleDropsIdleSessions(t *testing.T) {
	f := newArena(WithIdleTimeout(time.Minute))
	s, _, _ := newRemote(t, f)
	carol := f.notifier.connect("c-carol", "carol")
	dave := f.notifier.connect("c-dave", "dave")
	startedID, _, err := f.registry.CreateRemote(carol, dave, nil, RemoteOptions{})
	require.NoError(t, err)
	require.NoError(t, f.registry.Ready(startedID, "carol"))
	require.NoError(t, f.registry.Ready(startedID, "dave"))

	assert.Zero(t, f.registry.ExpireStale(f.clock.Advance(30*time.Second)))

	assert.Equal(t, 1, f.registry.ExpireStale(f.clock.Advance(31*time.Second)))
	assert.False(t, f.registry.Exists(s.ID))
	assert.True(t, f.registry.Exists(startedID))
	assert.False(t, f.locks.IsLocked("alice").Locked)
	assert.True(t, f.locks.IsLocked("carol").Locked)
}

func TestRegistryForwardsReadyAndInput(t *testing.T) {
	f := newArena()
	s, _, _ := newRemote(t, f)

	assert.ErrorIs(t, f.registry.Ready("missing", "alice"), ErrRoomNotFound)
	assert.ErrorIs(t, f.registry.Input("missing", "alice", "", KeyUp, true), ErrRoomNotFound)
	require.NoError(t, f.registry.Input(s.ID, "alice", "", KeyUp, true))
	assert.True(t, f.registry.InSession("alice"))

	status := f.registry.RoomStatus()
	require.Len(t, status, 1)
	assert.Equal(t, []string{"alice", "bob"}, status[0].Players)
	assert.False(t, status[0].Started)
}

func TestRoomStaysRegisteredUntilListenersRan(t *testing.T) {
	f := newArena()
	s, _, _ := newRemote(t, f)
	var seen []bool
	f.registry.OnResult(func(r MatchResult) {
		seen = append(seen, f.registry.Exists(r.RoomID))
		assert.False(t, f.locks.IsLocked("alice").Locked)
	})

	require.True(t, s.ForceEnd(engine.EndExited, engine.P1))

	assert.Equal(t, []bool{true}, seen)
	assert.False(t, f.registry.Exists(s.ID))
	assert.Zero(t, f.registry.RoomCount())
}
