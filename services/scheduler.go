package services

import (
	"time"

	"pong-arena/metrics"

	"github.com/go-co-op/gocron/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

// SchedulerConfig sets the cadence of the periodic arena jobs.
type SchedulerConfig struct {
	TournamentTick time.Duration
	TournamentHeal time.Duration
	QueueSweep     time.Duration
	InviteSweep    time.Duration
	SessionSweep   time.Duration
	GaugeRefresh   time.Duration
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		TournamentTick: time.Second,
		TournamentHeal: 10 * time.Second,
		QueueSweep:     time.Second,
		InviteSweep:    time.Second,
		SessionSweep:   5 * time.Second,
		GaugeRefresh:   5 * time.Second,
	}
}

// Jobs bundles the services driven by the scheduler.
type Jobs struct {
	Tournaments *TournamentService
	Matchmaking *MatchmakingService
	Invites     *InviteService
	Registry    *SessionRegistry
	Metrics     metrics.ArenaMetrics
}

// StartScheduler registers the periodic jobs and starts them. Every job
// runs in singleton mode so a slow run is never overlapped.
func StartScheduler(cfg SchedulerConfig, jobs Jobs) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, eris.Wrap(err, "failed to create scheduler")
	}
	if jobs.Metrics == nil {
		jobs.Metrics = metrics.Noop()
	}

	defs := []struct {
		name  string
		every time.Duration
		run   func()
	}{
		{"tournament-tick", cfg.TournamentTick, func() { jobs.Tournaments.Tick(time.Now()) }},
		{"tournament-heal", cfg.TournamentHeal, func() { jobs.Tournaments.Heal(time.Now()) }},
		{"queue-expiry", cfg.QueueSweep, func() { jobs.Matchmaking.ExpireStale(time.Now()) }},
		{"invite-expiry", cfg.InviteSweep, func() { jobs.Invites.ExpireStale(time.Now()) }},
		{"session-sweep", cfg.SessionSweep, func() {
			if n := jobs.Registry.ExpireStale(time.Now()); n > 0 {
				log.Info().Int("expired", n).Msg("[Scheduler] idle sessions removed")
			}
		}},
		{"gauges", cfg.GaugeRefresh, func() {
			jobs.Metrics.SetActiveRooms(jobs.Registry.RoomCount())
			jobs.Metrics.SetQueueLength(jobs.Matchmaking.Len())
		}},
	}

	for _, d := range defs {
		if d.every <= 0 {
			continue
		}
		_, err := sched.NewJob(
			gocron.DurationJob(d.every),
			gocron.NewTask(d.run),
			gocron.WithName(d.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, eris.Wrapf(err, "failed to register job %s", d.name)
		}
	}

	sched.Start()
	log.Info().Int("jobs", len(sched.Jobs())).Msg("[Scheduler] started")
	return sched, nil
}
