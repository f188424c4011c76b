package machine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"sporespawn/config"
	"sporespawn/decoder"
	"sporespawn/logger"
	"sporespawn/playback"
	"sporespawn/queue"
	"sporespawn/source"

	"github.com/disgoorg/disgo/voice"
	"github.com/disgoorg/snowflake/v2"
)

// VoiceConn is the part of a disgo voice connection a Session drives.
type VoiceConn interface {
	SetOpusFrameProvider(provider voice.OpusFrameProvider)
	SetSpeaking(ctx context.Context, flags voice.SpeakingFlags) error
	Close(ctx context.Context)
}

// VoiceConnector opens voice connections.
type VoiceConnector interface {
	Connect(ctx context.Context, guildID, channelID snowflake.ID) (VoiceConn, error)
}

// SongResolver turns a locator into a Song.
type SongResolver interface {
	Resolve(ctx context.Context, locator, requester string) (queue.Song, error)
}

// Announcer is told when a session starts playing a song.
type Announcer func(s *Session, song queue.Song)

var errNotJoined = errors.New("not connected to voice in this guild")

// Session is the playback state of one guild: one queue, one skip signal and
// at most one attached source feeding one voice connection.
type Session struct {
	GuildID        snowflake.ID
	VoiceChannelID snowflake.ID
	TextChannelID  snowflake.ID
	Queue          *queue.Queue
	Skip           *queue.Skip

	mu         sync.Mutex
	conn       VoiceConn
	source     *source.QueuedSource
	emptySince time.Time
}

// Playing reports whether a source is attached.
func (s *Session) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.source != nil
}

// SessionManager owns every guild's Session.
type SessionManager struct {
	config    *config.Config
	connector VoiceConnector
	resolver  SongResolver
	announce  Announcer
	logger    *slog.Logger

	startDecoder    func(ctx context.Context) source.StartFunc
	newOpusProvider func(src playback.FrameSource) (voice.OpusFrameProvider, error)

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[snowflake.ID]*Session

	// guildLocks serialize joining, leaving and enqueueing per guild.
	guildLocks map[snowflake.ID]*sync.Mutex
}

// NewSessionManager creates a SessionManager
func NewSessionManager(cfg *config.Config, connector VoiceConnector, resolver SongResolver, announce Announcer) *SessionManager {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		config:          cfg,
		connector:       connector,
		resolver:        resolver,
		announce:        announce,
		logger:          logger.WithComponent("sessions"),
		startDecoder:    decoderStarter(cfg),
		newOpusProvider: playback.NewOpusProvider,
		ctx:             ctx,
		cancel:          cancel,
		sessions:        make(map[snowflake.ID]*Session),
		guildLocks:      make(map[snowflake.ID]*sync.Mutex),
	}
}

// decoderStarter launches decoders with the configured executable and tuning.
// Decoders die with ctx.
func decoderStarter(cfg *config.Config) func(ctx context.Context) source.StartFunc {
	tuning := decoder.Tuning{Volume: cfg.Decoder.Volume, CacheSecs: cfg.Decoder.CacheSecs}
	return func(ctx context.Context) source.StartFunc {
		return func(locator string) (source.Decoder, error) {
			p, err := decoder.Start(ctx, locator, tuning, decoder.WithExec(cfg.Decoder.Exec))
			if err != nil {
				return nil, err
			}
			return p, nil
		}
	}
}

func (sm *SessionManager) guildLock(guildID snowflake.ID) *sync.Mutex {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	l, ok := sm.guildLocks[guildID]
	if !ok {
		l = &sync.Mutex{}
		sm.guildLocks[guildID] = l
	}
	return l
}

// Get returns the session for a guild, or nil.
func (sm *SessionManager) Get(guildID snowflake.ID) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.sessions[guildID]
}

// Join connects to a voice channel and starts a fresh queue for the guild.
// An existing session in the guild is torn down first.
func (sm *SessionManager) Join(ctx context.Context, guildID, voiceChannelID, textChannelID snowflake.ID) (*Session, error) {
	lock := sm.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	if old := sm.remove(guildID); old != nil {
		sm.teardown(ctx, old)
	}

	conn, err := sm.connector.Connect(ctx, guildID, voiceChannelID)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to voice channel: %w", err)
	}

	s := &Session{
		GuildID:        guildID,
		VoiceChannelID: voiceChannelID,
		TextChannelID:  textChannelID,
		Queue:          queue.New(),
		Skip:           &queue.Skip{},
		conn:           conn,
	}
	if err = sm.attach(ctx, s); err != nil {
		conn.Close(ctx)
		return nil, err
	}

	sm.mu.Lock()
	sm.sessions[guildID] = s
	sm.mu.Unlock()

	sm.logger.Info("Joined voice channel",
		slog.String("guild", guildID.String()),
		slog.String("channel", voiceChannelID.String()))
	return s, nil
}

// attach gives the session a new source and hands it to the voice connection.
func (sm *SessionManager) attach(ctx context.Context, s *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source != nil {
		return nil
	}

	src := source.New(s.Queue, s.Skip, sm.startDecoder(sm.ctx),
		source.WithLogger(logger.WithFields("component", "source", "guild", s.GuildID.String())),
		source.WithNotify(func(song queue.Song, _ source.Event) {
			if sm.announce != nil {
				// Never block the polling goroutine on chat I/O.
				go sm.announce(s, song)
			}
		}),
	)

	provider, err := sm.newOpusProvider(src)
	if err != nil {
		_ = src.Close()
		return fmt.Errorf("failed to create opus provider: %w", err)
	}

	s.conn.SetOpusFrameProvider(provider)
	if err = s.conn.SetSpeaking(ctx, voice.SpeakingFlagMicrophone); err != nil {
		sm.logger.Warn("Failed to set speaking flag", slog.Any("error", err))
	}
	s.source = src
	return nil
}

// detach stops feeding the voice connection and releases the source.
func (sm *SessionManager) detach(ctx context.Context, s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.source == nil {
		return
	}
	s.conn.SetOpusFrameProvider(nil)
	if err := s.conn.SetSpeaking(ctx, 0); err != nil {
		sm.logger.Debug("Failed to clear speaking flag", slog.Any("error", err))
	}
	if err := s.source.Close(); err != nil {
		sm.logger.Error("Failed to close source", slog.Any("error", err))
	}
	s.source = nil
	// A skip aimed at the stopped song must not hit it once it restarts.
	s.Skip.ConsumeIfSet()
}

func (sm *SessionManager) remove(guildID snowflake.ID) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	s := sm.sessions[guildID]
	delete(sm.sessions, guildID)
	return s
}

func (sm *SessionManager) teardown(ctx context.Context, s *Session) {
	sm.detach(ctx, s)
	s.conn.Close(ctx)
}

// Leave stops playback and disconnects from the guild's voice channel.
func (sm *SessionManager) Leave(ctx context.Context, guildID snowflake.ID) error {
	lock := sm.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	s := sm.remove(guildID)
	if s == nil {
		return errNotJoined
	}
	sm.teardown(ctx, s)
	sm.logger.Info("Left voice channel", slog.String("guild", guildID.String()))
	return nil
}

// CloseAll leaves every voice channel and kills any running decoder.
func (sm *SessionManager) CloseAll(ctx context.Context) {
	sm.mu.Lock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for id, s := range sm.sessions {
		sessions = append(sessions, s)
		delete(sm.sessions, id)
	}
	sm.mu.Unlock()

	for _, s := range sessions {
		sm.teardown(ctx, s)
	}
	sm.cancel()
}

// ReapIdle leaves every session whose queue has been empty for longer than
// timeout and returns the guilds it left.
func (sm *SessionManager) ReapIdle(ctx context.Context, now time.Time, timeout time.Duration) []snowflake.ID {
	sm.mu.Lock()
	sessions := make([]*Session, 0, len(sm.sessions))
	for _, s := range sm.sessions {
		sessions = append(sessions, s)
	}
	sm.mu.Unlock()

	var left []snowflake.ID
	for _, s := range sessions {
		if !s.idleFor(now, timeout) {
			continue
		}
		if sm.leaveIfCurrent(ctx, s) {
			left = append(left, s.GuildID)
		}
	}
	return left
}

func (s *Session) idleFor(now time.Time, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Queue.Len() > 0 {
		s.emptySince = time.Time{}
		return false
	}
	if s.emptySince.IsZero() {
		s.emptySince = now
		return false
	}
	return now.Sub(s.emptySince) >= timeout
}

// leaveIfCurrent leaves s unless it was already replaced or left.
func (sm *SessionManager) leaveIfCurrent(ctx context.Context, s *Session) bool {
	lock := sm.guildLock(s.GuildID)
	lock.Lock()
	defer lock.Unlock()

	if sm.Get(s.GuildID) != s {
		return false
	}
	sm.remove(s.GuildID)
	sm.teardown(ctx, s)
	return true
}
