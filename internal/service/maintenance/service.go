package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vertextoedge/browser-shell/internal/port"
)

// Config contains maintenance service configuration
type Config struct {
	// Interval is how often to run cleanup tasks
	Interval time.Duration

	// TempFileMaxAge is the maximum age of abandoned .downloading files
	TempFileMaxAge time.Duration

	// HistoryMaxAge is how long finished downloads stay in history
	HistoryMaxAge time.Duration

	// SessionStart protects everything the current session created
	SessionStart time.Time
}

// DefaultConfig returns default maintenance configuration
func DefaultConfig() *Config {
	return &Config{
		Interval:       time.Hour,
		TempFileMaxAge: 24 * time.Hour,
		HistoryMaxAge:  30 * 24 * time.Hour,
	}
}

// Service handles periodic housekeeping of the download directory and history
type Service struct {
	config  *Config
	history port.DownloadRepository
	fs      port.FileSystem
	logger  *zap.Logger
	now     func() time.Time

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a new maintenance Service
func New(cfg *Config, history port.DownloadRepository, fs port.FileSystem, logger *zap.Logger) *Service {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Interval == 0 {
		cfg.Interval = time.Hour
	}
	if cfg.TempFileMaxAge == 0 {
		cfg.TempFileMaxAge = 24 * time.Hour
	}
	if cfg.HistoryMaxAge == 0 {
		cfg.HistoryMaxAge = 30 * 24 * time.Hour
	}
	if cfg.SessionStart.IsZero() {
		cfg.SessionStart = time.Now()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		config:  cfg,
		history: history,
		fs:      fs,
		logger:  logger,
		now:     time.Now,
	}
}

// Start runs cleanup once and then on every interval until ctx is done
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("maintenance service already running")
	}
	s.running = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.logger.Info("maintenance service started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("temp_file_max_age", s.config.TempFileMaxAge),
		zap.Duration("history_max_age", s.config.HistoryMaxAge))

	s.wg.Add(1)
	go s.maintenanceLoop(ctx)

	<-ctx.Done()
	s.wg.Wait()
	s.logger.Info("maintenance service stopped")
	return nil
}

// Stop stops the maintenance service
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	s.running = false
}

// RunOnce performs a single cleanup pass
func (s *Service) RunOnce() {
	s.cleanupTempFiles()
	s.pruneHistory()
}

func (s *Service) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	s.RunOnce()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// tempFileAge never reaches into the current session, so paused downloads keep their bytes
func (s *Service) tempFileAge() time.Duration {
	age := s.config.TempFileMaxAge
	if sinceStart := s.now().Sub(s.config.SessionStart); sinceStart > age {
		age = sinceStart
	}
	return age
}

// cleanupTempFiles removes abandoned temporary files from the download directory
func (s *Service) cleanupTempFiles() {
	if s.fs == nil {
		return
	}
	fileCount, err := s.fs.CleanOldTempFiles(s.tempFileAge())
	if err != nil {
		s.logger.Error("failed to cleanup old temp files", zap.Error(err))
	} else if fileCount > 0 {
		s.logger.Info("cleaned up old temp files", zap.Int("count", fileCount))
	}
}

// pruneHistory removes old finished downloads of earlier sessions
func (s *Service) pruneHistory() {
	if s.history == nil {
		return
	}
	cutoff := s.now().Add(-s.config.HistoryMaxAge)
	pruned, err := s.history.PruneDownloads(cutoff, s.config.SessionStart)
	if err != nil {
		s.logger.Error("failed to prune download history", zap.Error(err))
	} else if pruned > 0 {
		s.logger.Info("pruned download history", zap.Int("count", pruned))
	}
}
