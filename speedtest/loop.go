package speedtest

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/s0up4200/qbitweb/qbittorrent"
)

const (
	// DefaultPollInterval is how often the loop re-checks torrent states
	// while waiting for pauses to take effect.
	DefaultPollInterval = 500 * time.Millisecond

	// DefaultMaxWait bounds the total pause-confirmation wait. The loop
	// proceeds at the ceiling rather than blocking on an uncooperative
	// instance.
	DefaultMaxWait = 10 * time.Second

	// fanOutLimit caps concurrent instance calls during the pause and
	// resume phases.
	fanOutLimit = 8
)

// InstanceSource lists the qBittorrent instances belonging to a user.
// Implemented by the relational store.
type InstanceSource interface {
	QbtInstances(ctx context.Context, userID int64) ([]qbittorrent.Instance, error)
}

// Measurer runs the external measurement once. Implemented by Runner.
type Measurer interface {
	Run(ctx context.Context) (*Result, error)
}

// pausedInstance records what the loop stopped on one instance so the
// resume phase restarts exactly that set, not everything.
type pausedInstance struct {
	inst   qbittorrent.Instance
	cookie string
	hashes []string
}

// Service orchestrates pause → confirm → measure → resume across all of a
// user's instances.
type Service struct {
	instances    InstanceSource
	auth         *qbittorrent.Auth
	client       *qbittorrent.Client
	measurer     Measurer
	pollInterval time.Duration
	maxWait      time.Duration
	logger       zerolog.Logger
}

// NewService wires the control loop. Zero durations fall back to defaults.
func NewService(instances InstanceSource, auth *qbittorrent.Auth, client *qbittorrent.Client, measurer Measurer, pollInterval, maxWait time.Duration, logger zerolog.Logger) *Service {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &Service{
		instances:    instances,
		auth:         auth,
		client:       client,
		measurer:     measurer,
		pollInterval: pollInterval,
		maxWait:      maxWait,
		logger:       logger.With().Str("component", "speedtest-loop").Logger(),
	}
}

// Run performs one full measurement cycle for the user.
//
// Instances that fail to authenticate or respond are logged and skipped,
// never fatal. Every instance whose torrents were stopped is resumed in a
// deferred path regardless of how the measurement ends, including on
// context cancellation and panics in the measurement step.
func (s *Service) Run(ctx context.Context, userID int64) (*Result, error) {
	instances, err := s.instances.QbtInstances(ctx, userID)
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int("instances", len(instances)).Msg("Pausing active torrents across all instances")
	paused := s.pauseActive(ctx, instances)

	// Resume must run no matter what happens below. The resume context is
	// detached so a cancelled request cannot leave torrents stopped.
	defer func() {
		resumeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		s.resumeAll(resumeCtx, paused)
	}()

	s.waitForPause(ctx, paused)

	s.logger.Info().Msg("Starting speedtest")
	return s.measurer.Run(ctx)
}

// pauseActive logs in to every instance, records its bandwidth-consuming
// torrents, and issues one stop command per instance with any.
func (s *Service) pauseActive(ctx context.Context, instances []qbittorrent.Instance) []pausedInstance {
	var mu sync.Mutex
	var paused []pausedInstance

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)

	for _, inst := range instances {
		inst := inst
		g.Go(func() error {
			login := s.auth.Login(ctx, inst)
			if !login.Success {
				s.logger.Warn().
					Int64("instance", inst.ID).
					Str("label", inst.Label).
					Str("reason", login.Reason).
					Msg("Skipping unreachable instance")
				return nil
			}

			torrents, err := s.client.Torrents(ctx, inst, login.Cookie)
			if err != nil {
				s.logger.Warn().Err(err).Int64("instance", inst.ID).Msg("Failed to fetch torrent list, skipping")
				return nil
			}

			var hashes []string
			for _, t := range torrents {
				if t.IsActive() {
					hashes = append(hashes, t.Hash)
				}
			}
			if len(hashes) == 0 {
				return nil
			}

			// Record before stopping: if the stop call fails midway the
			// resume phase still restarts everything we touched.
			mu.Lock()
			paused = append(paused, pausedInstance{inst: inst, cookie: login.Cookie, hashes: hashes})
			mu.Unlock()

			if err := s.client.StopTorrents(ctx, inst, login.Cookie, hashes); err != nil {
				s.logger.Warn().Err(err).Int64("instance", inst.ID).Msg("Stop command failed")
				return nil
			}

			s.logger.Info().
				Int64("instance", inst.ID).
				Str("label", inst.Label).
				Int("torrents", len(hashes)).
				Msg("Sent stop command")
			return nil
		})
	}
	g.Wait()

	return paused
}

// waitForPause polls torrent states until every recorded hash reports a
// paused-class state or the wait ceiling is hit.
func (s *Service) waitForPause(ctx context.Context, paused []pausedInstance) {
	if len(paused) == 0 {
		return
	}

	deadline := time.Now().Add(s.maxWait)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.pollInterval):
		}

		if s.allPaused(ctx, paused) {
			s.logger.Info().Msg("All torrents confirmed paused")
			return
		}
	}

	s.logger.Warn().Dur("waited", s.maxWait).Msg("Timeout waiting for torrents to pause, proceeding anyway")
}

func (s *Service) allPaused(ctx context.Context, paused []pausedInstance) bool {
	for _, p := range paused {
		torrents, err := s.client.Torrents(ctx, p.inst, p.cookie)
		if err != nil {
			// Unreachable mid-poll: do not hold up the run for it.
			continue
		}

		byHash := make(map[string]qbittorrent.Torrent, len(torrents))
		for _, t := range torrents {
			byHash[t.Hash] = t
		}
		for _, hash := range p.hashes {
			if t, ok := byHash[hash]; ok && !t.IsPaused() {
				return false
			}
		}
	}
	return true
}

// resumeAll restarts every recorded set. Failures are logged per instance;
// nothing here aborts.
func (s *Service) resumeAll(ctx context.Context, paused []pausedInstance) {
	if len(paused) == 0 {
		return
	}

	s.logger.Info().Msg("Resuming previously active torrents")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)

	for _, p := range paused {
		p := p
		g.Go(func() error {
			if err := s.client.StartTorrents(ctx, p.inst, p.cookie, p.hashes); err != nil {
				s.logger.Error().Err(err).
					Int64("instance", p.inst.ID).
					Int("torrents", len(p.hashes)).
					Msg("Failed to resume torrents")
				return nil
			}
			s.logger.Info().
				Int64("instance", p.inst.ID).
				Str("label", p.inst.Label).
				Int("torrents", len(p.hashes)).
				Msg("Resumed torrents")
			return nil
		})
	}
	g.Wait()
}
