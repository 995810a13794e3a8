package services

import (
	"sync"
	"time"

	"pong-arena/engine"
	"pong-arena/metrics"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultQueueTimeout = 30 * time.Second

type queueEntry struct {
	Participant
	JoinedAt  time.Time
	ExpiresAt time.Time
}

type MatchmakingOption func(*MatchmakingService)

func WithQueueClock(now func() time.Time) MatchmakingOption {
	return func(q *MatchmakingService) { q.now = now }
}

func WithQueueTimeout(d time.Duration) MatchmakingOption {
	return func(q *MatchmakingService) { q.timeout = d }
}

func WithQueueMetrics(m metrics.ArenaMetrics) MatchmakingOption {
	return func(q *MatchmakingService) { q.metrics = m }
}

// MatchmakingService pairs waiting connections first-in first-out.
type MatchmakingService struct {
	mu    sync.Mutex
	queue []queueEntry

	registry *SessionRegistry
	locks    *ActivityLockService
	notifier Notifier
	timeout  time.Duration
	now      func() time.Time
	metrics  metrics.ArenaMetrics
	log      zerolog.Logger
}

func NewMatchmakingService(registry *SessionRegistry, locks *ActivityLockService, notifier Notifier, opts ...MatchmakingOption) *MatchmakingService {
	q := &MatchmakingService{
		registry: registry,
		locks:    locks,
		notifier: notifier,
		timeout:  defaultQueueTimeout,
		now:      time.Now,
		metrics:  metrics.Noop(),
		log:      log.With().Str("component", "matchmaking").Logger(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *MatchmakingService) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// Join enqueues p and immediately tries to pair the queue.
func (q *MatchmakingService) Join(p Participant) error {
	if q.locks.IsLocked(p.UserID).Locked {
		return ErrUserBusy
	}
	if q.registry.InSession(p.UserID) {
		return ErrAlreadyInRoom
	}

	q.mu.Lock()
	for _, e := range q.queue {
		if e.ConnID == p.ConnID {
			q.mu.Unlock()
			return ErrAlreadyQueued
		}
	}
	now := q.now()
	q.queue = append(q.queue, queueEntry{Participant: p, JoinedAt: now, ExpiresAt: now.Add(q.timeout)})
	position := len(q.queue)
	q.mu.Unlock()

	q.notifier.SendToConn(p.ConnID, EventQueued, map[string]any{
		"position":  position,
		"expiresAt": now.Add(q.timeout),
	})
	q.sweep()
	q.metrics.SetQueueLength(q.Len())
	return nil
}

// Leave dequeues every entry of the connection. It reports whether an
// entry was removed.
func (q *MatchmakingService) Leave(connID string) bool {
	q.mu.Lock()
	removed := q.removeLocked(func(e queueEntry) bool { return e.ConnID == connID })
	q.mu.Unlock()
	if removed > 0 {
		q.notifier.SendToConn(connID, EventQueueLeft, map[string]any{})
		q.metrics.SetQueueLength(q.Len())
	}
	return removed > 0
}

// removeLocked drops matching entries. Caller holds mu.
func (q *MatchmakingService) removeLocked(match func(queueEntry) bool) int {
	kept := q.queue[:0]
	removed := 0
	for _, e := range q.queue {
		if match(e) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	q.queue = kept
	return removed
}

// ExpireStale drops entries whose timeout passed and tells their owners.
func (q *MatchmakingService) ExpireStale(now time.Time) int {
	var expired []queueEntry
	q.mu.Lock()
	q.removeLocked(func(e queueEntry) bool {
		if !now.Before(e.ExpiresAt) {
			expired = append(expired, e)
			return true
		}
		return false
	})
	q.mu.Unlock()

	for _, e := range expired {
		q.notifier.SendToConn(e.ConnID, EventQueueTimeout, map[string]any{
			"waitedSeconds": int(now.Sub(e.JoinedAt).Seconds()),
		})
	}
	if len(expired) > 0 {
		q.metrics.SetQueueLength(q.Len())
	}
	return len(expired)
}

// sweep pairs the two oldest entries while at least two are waiting.
func (q *MatchmakingService) sweep() {
	skipped := 0
	for {
		q.mu.Lock()
		if len(q.queue) < 2 || skipped >= len(q.queue) {
			q.mu.Unlock()
			return
		}
		a, b := q.queue[0], q.queue[1]
		q.queue = q.queue[2:]

		aAlive, bAlive := q.notifier.IsConnected(a.ConnID), q.notifier.IsConnected(b.ConnID)
		if !aAlive || !bAlive {
			// the survivor keeps its place, pairing resumes on the next join
			var survivors []queueEntry
			if aAlive {
				survivors = append(survivors, a)
			}
			if bAlive {
				survivors = append(survivors, b)
			}
			q.queue = append(survivors, q.queue...)
			q.mu.Unlock()
			return
		}
		if a.UserID == b.UserID {
			// same user from two tabs
			q.queue = append([]queueEntry{a}, q.queue...)
			q.queue = append(q.queue, b)
			skipped++
			q.mu.Unlock()
			continue
		}
		q.mu.Unlock()

		q.pair(a, b)
	}
}

func (q *MatchmakingService) pair(a, b queueEntry) {
	var free []queueEntry
	for _, e := range []queueEntry{a, b} {
		if q.locks.IsLocked(e.UserID).Locked {
			q.notifier.SendToConn(e.ConnID, EventMatchError, ErrUserBusy)
			continue
		}
		free = append(free, e)
	}
	if len(free) < 2 {
		q.mu.Lock()
		q.queue = append(free, q.queue...)
		q.mu.Unlock()
		return
	}

	roomID, _, err := q.registry.CreateRemote(a.Participant, b.Participant, nil, RemoteOptions{MatchType: MatchTypeMatchmaking})
	if err != nil {
		q.log.Warn().Err(err).Str("p1", a.UserID).Str("p2", b.UserID).Msg("pairing failed")
		for _, e := range free {
			q.notifier.SendToConn(e.ConnID, EventMatchError, err)
		}
		return
	}

	for _, m := range []struct {
		e    queueEntry
		side engine.Side
		opp  queueEntry
	}{{a, engine.P1, b}, {b, engine.P2, a}} {
		q.notifier.SendToConn(m.e.ConnID, EventMatched, map[string]any{
			"roomId":     roomID,
			"side":       m.side,
			"opponentId": m.opp.UserID,
		})
	}
	q.log.Info().Str("room_id", roomID).Str("p1", a.UserID).Str("p2", b.UserID).Msg("matchmaking pair created")
}
