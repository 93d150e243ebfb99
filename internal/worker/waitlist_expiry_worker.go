package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/studio-booking/internal/service"
	"github.com/prohmpiriya/studio-booking/pkg/logger"
)

// WaitlistExpiryWorkerConfig contains configuration for the waitlist expiry worker
type WaitlistExpiryWorkerConfig struct {
	// ScanInterval is the interval between scans for started classes
	ScanInterval time.Duration
	// BatchSize is the number of classes processed per scan
	BatchSize int
}

// DefaultWaitlistExpiryWorkerConfig returns default configuration
func DefaultWaitlistExpiryWorkerConfig() *WaitlistExpiryWorkerConfig {
	return &WaitlistExpiryWorkerConfig{
		ScanInterval: time.Minute,
		BatchSize:    50,
	}
}

// WaitlistExpiryWorker cancels the waitlist of classes that have started or
// left the scheduled state
type WaitlistExpiryWorker struct {
	waitlist service.WaitlistManager
	config   *WaitlistExpiryWorkerConfig
	log      *logger.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool

	// Stats
	totalExpired     int64
	lastScanTime     time.Time
	lastExpiredCount int
}

// NewWaitlistExpiryWorker creates a new waitlist expiry worker
func NewWaitlistExpiryWorker(waitlist service.WaitlistManager, config *WaitlistExpiryWorkerConfig) *WaitlistExpiryWorker {
	defaults := DefaultWaitlistExpiryWorkerConfig()
	if config == nil {
		config = defaults
	}
	if config.ScanInterval <= 0 {
		config.ScanInterval = defaults.ScanInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}

	return &WaitlistExpiryWorker{
		waitlist: waitlist,
		config:   config,
		log:      logger.Get(),
		stopCh:   make(chan struct{}),
	}
}

// Start starts the waitlist expiry worker
func (w *WaitlistExpiryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("waitlist expiry worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting waitlist expiry worker")

	w.wg.Add(1)
	go w.scan(ctx)

	return nil
}

// Stop stops the waitlist expiry worker
func (w *WaitlistExpiryWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping waitlist expiry worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Waitlist expiry worker stopped")
}

func (w *WaitlistExpiryWorker) scan(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce expires one batch and returns the number of entries cancelled
func (w *WaitlistExpiryWorker) RunOnce(ctx context.Context) int {
	expired, err := w.waitlist.ExpireStarted(ctx, w.config.BatchSize)

	w.mu.Lock()
	w.lastScanTime = time.Now()
	w.lastExpiredCount = expired
	w.totalExpired += int64(expired)
	w.mu.Unlock()

	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to expire waitlists: %v", err))
	}
	if expired > 0 {
		w.log.Info(fmt.Sprintf("Expired %d waitlist entries", expired))
	}
	return expired
}

// GetStats returns worker statistics
func (w *WaitlistExpiryWorker) GetStats() *WaitlistExpiryWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &WaitlistExpiryWorkerStats{
		IsRunning:        w.running,
		TotalExpired:     w.totalExpired,
		LastScanTime:     w.lastScanTime,
		LastExpiredCount: w.lastExpiredCount,
	}
}

// WaitlistExpiryWorkerStats contains worker statistics
type WaitlistExpiryWorkerStats struct {
	IsRunning        bool      `json:"is_running"`
	TotalExpired     int64     `json:"total_expired"`
	LastScanTime     time.Time `json:"last_scan_time"`
	LastExpiredCount int       `json:"last_expired_count"`
}
