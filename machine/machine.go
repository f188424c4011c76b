package machine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"sporespawn/config"
	"sporespawn/queue"
	"sporespawn/resolver"
)

// Machine represents the main application state
type Machine struct {
	config      *config.Config
	discord     *DiscordManager
	sessions    *SessionManager
	webhook     *WebhookManager
	idleMonitor *IdleMonitor
	logger      *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a new Machine instance
func New(cfg *config.Config) *Machine {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Machine{
		config: cfg,
		logger: slog.With("component", "machine"),
		ctx:    ctx,
		cancel: cancel,
	}

	if cfg.Discord.WebhookURL != "" {
		m.webhook = NewWebhookManager(cfg)
	}

	// The discord manager opens voice connections for the sessions and
	// dispatches commands to them.
	m.discord = NewDiscordManager(cfg)
	m.sessions = NewSessionManager(cfg, m.discord, resolver.New(cfg.Resolver.Timeout), m.announce)
	m.discord.sessions = m.sessions
	m.idleMonitor = NewIdleMonitor(cfg, m.sessions, &m.wg)

	return m
}

// Initialize sets up the machine components
func (m *Machine) Initialize() error {
	m.logger.Info("Initializing machine...")

	if err := m.discord.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize Discord: %w", err)
	}

	m.logger.Info("Machine initialized successfully")
	return nil
}

// Start begins all machine operations
func (m *Machine) Start() error {
	m.logger.Info("Starting machine operations...")

	m.idleMonitor.SetContext(m.ctx)
	m.idleMonitor.Start()

	if err := m.discord.Start(m.ctx); err != nil {
		return fmt.Errorf("failed to connect to Discord gateway: %w", err)
	}

	m.logger.Info("Machine started successfully")
	return nil
}

// Stop gracefully shuts down the machine
func (m *Machine) Stop() error {
	m.logger.Info("Stopping machine...")

	m.cancel()

	if m.idleMonitor != nil {
		m.idleMonitor.Stop()
	}

	// Leave voice before the gateway goes away.
	if m.sessions != nil {
		m.sessions.CloseAll(context.Background())
	}

	if m.discord != nil {
		m.discord.Stop()
	}

	m.wg.Wait()

	m.logger.Info("Machine stopped")
	return nil
}

// announce posts the now playing message. It runs off the polling goroutine.
func (m *Machine) announce(s *Session, song queue.Song) {
	text := nowPlayingMessage(song)

	var err error
	if m.webhook != nil {
		err = m.webhook.SendMessage(webhookUsername, text)
	} else {
		err = m.discord.SendMessage(s.TextChannelID, text)
	}
	if err != nil {
		m.logger.Error("Failed to announce song",
			slog.String("guild", s.GuildID.String()),
			slog.String("title", song.Title),
			slog.Any("error", err))
	}
}
