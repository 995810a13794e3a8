package services

import (
	"testing"
	"time"

	"pong-arena/engine"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue(f *arenaFixture) *MatchmakingService {
	return NewMatchmakingService(f.registry, f.locks, f.notifier, WithQueueClock(f.clock.Now), WithQueueTimeout(30*time.Second))
}

func matchedRoom(t *testing.T, n *recordingNotifier, connID string) map[string]any {
	t.Helper()
	events := n.connEvents(connID, EventMatched)
	require.Len(t, events, 1, "expected one matched event for %s", connID)
	return events[0].Payload.(map[string]any)
}

func TestMatchmakingPairsTwoOldestEntries(t *testing.T) {
	f := newArena()
	q := newQueue(f)

	require.NoError(t, q.Join(f.notifier.connect("c-alice", "alice")))
	assert.Equal(t, 1, q.Len())
	require.Len(t, f.notifier.connEvents("c-alice", EventQueued), 1)

	require.NoError(t, q.Join(f.notifier.connect("c-bob", "bob")))
	assert.Zero(t, q.Len())

	a := matchedRoom(t, f.notifier, "c-alice")
	b := matchedRoom(t, f.notifier, "c-bob")
	assert.Equal(t, a["roomId"], b["roomId"])
	assert.Equal(t, engine.P1, a["side"])
	assert.Equal(t, "bob", a["opponentId"])
	assert.Equal(t, engine.P2, b["side"])

	s := f.session(t, a["roomId"].(string))
	assert.Equal(t, MatchTypeMatchmaking, s.MatchType)
	assert.True(t, f.locks.IsLocked("alice").Locked)
}

func TestMatchmakingJoinGuards(t *testing.T) {
	f := newArena()
	q := newQueue(f)
	alice := f.notifier.connect("c-alice", "alice")

	require.NoError(t, q.Join(alice))
	assert.ErrorIs(t, q.Join(alice), ErrAlreadyQueued)

	f.locks.SetTournamentLock("bob", true)
	assert.ErrorIs(t, q.Join(f.notifier.connect("c-bob", "bob")), ErrUserBusy)

	carol := f.notifier.connect("c-carol", "carol")
	_, err := f.registry.CreateLocal(carol, engine.Settings{})
	require.NoError(t, err)
	assert.ErrorIs(t, q.Join(carol), ErrAlreadyInRoom)
}

func TestMatchmakingSkipsDeadConnections(t *testing.T) {
	f := newArena()
	q := newQueue(f)

	require.NoError(t, q.Join(f.notifier.connect("c-alice", "alice")))
	f.notifier.disconnect("c-alice")
	require.NoError(t, q.Join(f.notifier.connect("c-bob", "bob")))

	assert.Equal(t, 1, q.Len())
	assert.Empty(t, f.notifier.connEvents("c-bob", EventMatched))

	require.NoError(t, q.Join(f.notifier.connect("c-carol", "carol")))
	assert.Zero(t, q.Len())
	assert.Equal(t, "carol", matchedRoom(t, f.notifier, "c-bob")["opponentId"])
}

func TestMatchmakingNeverPairsUserWithThemselves(t *testing.T) {
	f := newArena()
	q := newQueue(f)

	require.NoError(t, q.Join(f.notifier.connect("c-alice-1", "alice")))
	require.NoError(t, q.Join(f.notifier.connect("c-alice-2", "alice")))
	assert.Equal(t, 2, q.Len())
	assert.Zero(t, f.registry.RoomCount())

	require.NoError(t, q.Join(f.notifier.connect("c-bob", "bob")))
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, "bob", matchedRoom(t, f.notifier, "c-alice-1")["opponentId"])
	assert.Empty(t, f.notifier.connEvents("c-alice-2", EventMatched))
}

func TestMatchmakingRechecksLocksAtPairing(t *testing.T) {
	f := newArena()
	q := newQueue(f)

	require.NoError(t, q.Join(f.notifier.connect("c-alice", "alice")))
	f.locks.SetTournamentLock("alice", true)
	require.NoError(t, q.Join(f.notifier.connect("c-bob", "bob")))

	assert.Equal(t, 1, q.Len())
	assert.Len(t, f.notifier.connEvents("c-alice", EventMatchError), 1)
	assert.Empty(t, f.notifier.connEvents("c-bob", EventMatched))
	assert.Zero(t, f.registry.RoomCount())
}

func TestMatchmakingLeave(t *testing.T) {
	f := newArena()
	q := newQueue(f)

	require.NoError(t, q.Join(f.notifier.connect("c-alice", "alice")))
	assert.False(t, q.Leave("c-missing"))
	assert.True(t, q.Leave("c-alice"))
	assert.Zero(t, q.Len())
	assert.Len(t, f.notifier.connEvents("c-alice", EventQueueLeft), 1)
}

func TestMatchmakingExpiresAfterTimeout(t *testing.T) {
	f := newArena()
	q := newQueue(f)

	require.NoError(t, q.Join(f.notifier.connect("c-alice", "alice")))

	assert.Zero(t, q.ExpireStale(f.clock.Advance(29*time.Second)))
	assert.Equal(t, 1, q.ExpireStale(f.clock.Advance(time.Second)))
	assert.Zero(t, q.Len())
	assert.Len(t, f.notifier.connEvents("c-alice", EventQueueTimeout), 1)
}
