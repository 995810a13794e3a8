package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInvites(f *arenaFixture) *InviteService {
	return NewInviteService(f.registry, f.locks, f.notifier, WithInviteClock(f.clock.Now), WithInviteTimeout(30*time.Second))
}

func TestInviteSendGuards(t *testing.T) {
	f := newArena()
	inv := newInvites(f)
	alice := f.notifier.connect("c-alice", "alice")

	_, err := inv.Send(alice, "alice")
	assert.ErrorIs(t, err, ErrSelfInvite)

	_, err = inv.Send(alice, "bob")
	assert.ErrorIs(t, err, ErrTargetOffline)

	f.notifier.connect("c-bob", "bob")
	f.locks.SetTournamentLock("bob", true)
	_, err = inv.Send(alice, "bob")
	assert.ErrorIs(t, err, ErrOpponentBusy)

	f.locks.SetTournamentLock("alice", true)
	_, err = inv.Send(alice, "bob")
	assert.ErrorIs(t, err, ErrUserBusy)
	assert.Zero(t, inv.Pending())
}

func TestInviteAcceptRechecksLocks(t *testing.T) {
	f := newArena()
	inv := newInvites(f)
	alice := f.notifier.connect("c-alice", "alice")
	bob := f.notifier.connect("c-bob", "bob")
	f.notifier.connect("c-carol", "carol")

	_, err := inv.Send(alice, "bob")
	require.NoError(t, err)
	f.locks.SetTournamentLock("bob", true)

	_, err = inv.Accept(bob, "alice")
	assert.ErrorIs(t, err, ErrUserBusy)
	assert.False(t, f.locks.Get("bob").InMatch)
	assert.False(t, f.locks.IsLocked("alice").Locked)
	assert.Zero(t, f.registry.RoomCount())
	assert.Zero(t, inv.Pending())
	expired := f.notifier.userEvents("alice", EventInviteExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, "busy", expired[0].Payload.(map[string]any)["reason"])

	_, err = inv.Accept(bob, "alice")
	assert.ErrorIs(t, err, ErrInviteNotFound)

	f.locks.SetTournamentLock("bob", false)
	_, err = inv.Send(alice, "bob")
	require.NoError(t, err)
	f.locks.LockForMatch("alice", "carol")

	_, err = inv.Accept(bob, "alice")
	assert.ErrorIs(t, err, ErrOpponentBusy)
	assert.False(t, f.locks.Get("bob").InMatch)
	assert.Empty(t, f.locks.Get("bob").PendingInviteID)
	assert.Zero(t, f.registry.RoomCount())
}

func TestInviteOnePendingPerUser(t *testing.T) {
	f := newArena()
	inv := newInvites(f)
	alice := f.notifier.connect("c-alice", "alice")
	f.notifier.connect("c-bob", "bob")
	carol := f.notifier.connect("c-carol", "carol")

	sent, err := inv.Send(alice, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", sent.RecipientID)
	assert.Len(t, f.notifier.connEvents("c-alice", EventInviteSent), 1)
	assert.Len(t, f.notifier.userEvents("bob", EventInviteReceived), 1)

	_, err = inv.Send(carol, "bob")
	assert.ErrorIs(t, err, ErrOpponentBusy)
	assert.Equal(t, 1, inv.Pending())
}

func TestInviteAcceptCreatesDirectMatch(t *testing.T) {
	f := newArena()
	inv := newInvites(f)
	alice := f.notifier.connect("c-alice", "alice")
	bob := f.notifier.connect("c-bob", "bob")

	_, err := inv.Send(alice, "bob")
	require.NoError(t, err)

	roomID, err := inv.Accept(bob, "alice")
	require.NoError(t, err)

	s := f.session(t, roomID)
	assert.Equal(t, MatchTypeDirect, s.MatchType)
	p1, p2 := s.Participants()
	assert.Equal(t, alice, p1)
	assert.Equal(t, bob, p2)
	assert.Len(t, f.notifier.userEvents("alice", EventInviteConsumed), 1)
	assert.Len(t, f.notifier.connEvents("c-alice", EventMatched), 1)
	assert.Empty(t, f.locks.Get("alice").PendingInviteID)
	assert.True(t, f.locks.IsLocked("bob").Locked)
	assert.Zero(t, inv.Pending())

	again, err := inv.Accept(bob, "alice")
	require.NoError(t, err)
	assert.Equal(t, roomID, again)
	assert.Equal(t, 1, f.registry.RoomCount())
}

func TestInviteAcceptFollowsInviterToNewTab(t *testing.T) {
	f := newArena()
	inv := newInvites(f)
	alice := f.notifier.connect("c-alice", "alice")
	bob := f.notifier.connect("c-bob", "bob")

	_, err := inv.Send(alice, "bob")
	require.NoError(t, err)
	f.notifier.disconnect("c-alice")
	f.notifier.connect("c-alice-2", "alice")

	roomID, err := inv.Accept(bob, "alice")
	require.NoError(t, err)
	p1, _ := f.session(t, roomID).Participants()
	assert.Equal(t, "c-alice-2", p1.ConnID)
}

func TestInviteDecline(t *testing.T) {
	f := newArena()
	inv := newInvites(f)
	alice := f.notifier.connect("c-alice", "alice")
	bob := f.notifier.connect("c-bob", "bob")

	_, err := inv.Send(alice, "bob")
	require.NoError(t, err)

	require.NoError(t, inv.Decline(bob, "alice"))
	assert.ErrorIs(t, inv.Decline(bob, "alice"), ErrInviteNotFound)
	assert.Len(t, f.notifier.userEvents("alice", EventInviteDeclined), 1)
	assert.False(t, f.locks.IsBusyForInvite("alice"))
	assert.False(t, f.locks.IsBusyForInvite("bob"))

	_, err = inv.Accept(bob, "alice")
	assert.ErrorIs(t, err, ErrInviteNotFound)
}

func TestInviteExpiresAfterTimeout(t *testing.T) {
	f := newArena()
	inv := newInvites(f)
	alice := f.notifier.connect("c-alice", "alice")
	f.notifier.connect("c-bob", "bob")

	_, err := inv.Send(alice, "bob")
	require.NoError(t, err)

	assert.Zero(t, inv.ExpireStale(f.clock.Advance(29*time.Second)))
	assert.Equal(t, 1, inv.ExpireStale(f.clock.Advance(time.Second)))

	expired := f.notifier.userEvents("bob", EventInviteExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, "timeout", expired[0].Payload.(map[string]any)["reason"])
	assert.False(t, f.locks.IsBusyForInvite("alice"))
}

func TestInviteWithdrawOnDisconnect(t *testing.T) {
	f := newArena()
	inv := newInvites(f)
	alice := f.notifier.connect("c-alice", "alice")
	f.notifier.connect("c-bob", "bob")

	_, err := inv.Send(alice, "bob")
	require.NoError(t, err)

	assert.Equal(t, 1, inv.Withdraw("alice"))
	assert.Zero(t, inv.Withdraw("alice"))

	expired := f.notifier.userEvents("bob", EventInviteExpired)
	require.Len(t, expired, 1)
	assert.Equal(t, "withdrawn", expired[0].Payload.(map[string]any)["reason"])
	assert.Empty(t, f.notifier.userEvents("alice", EventInviteExpired))
	assert.False(t, f.locks.IsBusyForInvite("bob"))
}
