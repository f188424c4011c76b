package machine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"sporespawn/config"
)

// IdleMonitor leaves voice channels whose queue has been empty too long
type IdleMonitor struct {
	config      *config.Config
	logger      *slog.Logger
	sessions    *SessionManager
	interval    time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          *sync.WaitGroup
	stopChannel chan struct{}
	stopOnce    sync.Once
}

// NewIdleMonitor creates a new IdleMonitor instance
func NewIdleMonitor(cfg *config.Config, sessions *SessionManager, wg *sync.WaitGroup) *IdleMonitor {
	ctx, cancel := context.WithCancel(context.Background())

	interval := time.Minute
	if t := cfg.Voice.IdleTimeout / 2; t > 0 && t < interval {
		interval = t
	}

	return &IdleMonitor{
		config:      cfg,
		logger:      slog.With("component", "idle-monitor"),
		sessions:    sessions,
		interval:    interval,
		ctx:         ctx,
		cancel:      cancel,
		wg:          wg,
		stopChannel: make(chan struct{}),
	}
}

// Start begins idle monitoring. It does nothing when no timeout is set.
func (m *IdleMonitor) Start() {
	timeout := m.config.Voice.IdleTimeout
	if timeout <= 0 {
		m.logger.Debug("Idle timeout disabled")
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		m.logger.Info("Starting idle monitoring", slog.Duration("timeout", timeout))

		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		for {
			select {
			case now := <-ticker.C:
				for _, guildID := range m.sessions.ReapIdle(m.ctx, now, timeout) {
					m.logger.Info("Left idle voice channel", slog.String("guild", guildID.String()))
				}
			case <-m.ctx.Done():
				m.logger.Info("Idle monitoring stopped")
				return
			case <-m.stopChannel:
				m.logger.Info("Idle monitoring stopped via stop channel")
				return
			}
		}
	}()
}

// Stop stops idle monitoring
func (m *IdleMonitor) Stop() {
	m.cancel()
	m.stopOnce.Do(func() { close(m.stopChannel) })
}

// SetContext updates the context for cancellation
func (m *IdleMonitor) SetContext(ctx context.Context) {
	m.cancel()
	m.ctx, m.cancel = context.WithCancel(ctx)
}
