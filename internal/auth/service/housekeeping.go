package service

import (
	"log/slog"
	"time"
)

// HousekeepingService periodically evicts idle and expired sessions from a
// SessionRegistry. Account locks are not touched, they expire lazily.
type HousekeepingService struct {
	Sessions *SessionRegistry
	Logger   *slog.Logger
	Interval time.Duration

	// Lifecycle: Stop closes stopCh, run closes doneCh on its way out.
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 minute.
func NewHousekeepingService(sessions *SessionRegistry, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HousekeepingService{
		Sessions: sessions,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. It does not block and should be
// called once the registry is in use. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop shuts the worker down. It blocks until any in-progress sweep has
// finished, and must be called at most once.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

// run is the worker loop. The registry starts empty, so the first sweep
// waits for the first tick.
func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup runs one sweep. The registry lock is released before logging.
func (s *HousekeepingService) cleanup() {
	evicted := s.Sessions.Sweep()
	if evicted > 0 {
		s.Logger.Info("evicted sessions", "evicted", evicted, "remaining", s.Sessions.Len())
		return
	}
	s.Logger.Debug("housekeeping sweep found nothing to evict")
}
