package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	To      string
	Event   string
	Payload any
}

// recordingNotifier stands in for the realtime hub.
type recordingNotifier struct {
	mu         sync.Mutex
	toConn     []sentEvent
	toUser     []sentEvent
	broadcasts []sentEvent
	connected  map[string]string // conn id -> user id
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{connected: make(map[string]string)}
}

func (n *recordingNotifier) connect(connID, userID string) Participant {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected[connID] = userID
	return Participant{ConnID: connID, UserID: userID}
}

func (n *recordingNotifier) disconnect(connID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.connected, connID)
}

func (n *recordingNotifier) SendToConn(connID, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toConn = append(n.toConn, sentEvent{To: connID, Event: event, Payload: payload})
}

func (n *recordingNotifier) SendToUser(userID, event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.toUser = append(n.toUser, sentEvent{To: userID, Event: event, Payload: payload})
}

func (n *recordingNotifier) Broadcast(event string, payload any) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcasts = append(n.broadcasts, sentEvent{Event: event, Payload: payload})
}

func (n *recordingNotifier) IsConnected(connID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.connected[connID]
	return ok
}

func (n *recordingNotifier) ConnForUser(userID string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for c, u := range n.connected {
		if u == userID {
			return c, true
		}
	}
	return "", false
}

func (n *recordingNotifier) connEvents(connID, event string) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.toConn {
		if e.To == connID && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) userEvents(userID, event string) []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentEvent
	for _, e := range n.toUser {
		if e.To == userID && e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (n *recordingNotifier) broadcastCount(event string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.broadcasts {
		if e.Event == event {
			c++
		}
	}
	return c
}

// fakeClock is advanced by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

type resultSink struct {
	mu      sync.Mutex
	results []MatchResult
}

func (s *resultSink) RecordMatchResult(r MatchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
}

func (s *resultSink) all() []MatchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]MatchResult(nil), s.results...)
}

type arenaFixture struct {
	notifier *recordingNotifier
	clock    *fakeClock
	locks    *ActivityLockService
	registry *SessionRegistry
	results  *resultSink
}

// newArena wires a registry whose sessions only advance when a test calls
// Step.
func newArena(opts ...RegistryOption) *arenaFixture {
	f := &arenaFixture{
		notifier: newRecordingNotifier(),
		clock:    newFakeClock(),
		results:  &resultSink{},
	}
	f.locks = NewActivityLockService(f.notifier)
	base := []RegistryOption{
		WithManualTicks(),
		WithRegistryClock(f.clock.Now),
		WithSessionOptions(WithSessionRand(func() float64 { return 0.25 })),
	}
	f.registry = NewSessionRegistry(context.Background(), f.notifier, f.locks, f.results, append(base, opts...)...)
	return f
}

func (f *arenaFixture) session(t *testing.T, id string) *Session {
	t.Helper()
	s, ok := f.registry.Get(id)
	require.True(t, ok, "session %s not registered", id)
	return s
}

type snapshotSink struct {
	mu     sync.Mutex
	latest map[string]*Tournament
}

func (s *snapshotSink) RecordTournament(t *Tournament) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		s.latest = make(map[string]*Tournament)
	}
	s.latest[t.ID] = t
}

func (s *snapshotSink) get(id string) *Tournament {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest[id]
}

type staticNames map[string]string

func (n staticNames) DisplayName(userID string) string { return n[userID] }
