package machine

import (
	"context"
	"errors"
	"log/slog"

	"sporespawn/queue"

	"github.com/disgoorg/snowflake/v2"
)

// The methods below implement the chat commands. Each returns the reply to
// show the user.

// JoinCommand joins voiceChannelID and announces into textChannelID.
func (sm *SessionManager) JoinCommand(ctx context.Context, guildID, voiceChannelID, textChannelID snowflake.ID) string {
	if _, err := sm.Join(ctx, guildID, voiceChannelID, textChannelID); err != nil {
		sm.logger.Error("Failed to join voice channel",
			slog.String("guild", guildID.String()),
			slog.String("channel", voiceChannelID.String()),
			slog.Any("error", err))
		return msgJoinFailed
	}
	return joinedMessage(voiceChannelID)
}

// PlayCommand resolves query and appends it to the guild's queue. A stopped
// session starts playing again.
func (sm *SessionManager) PlayCommand(ctx context.Context, guildID snowflake.ID, query, requester string) string {
	s := sm.Get(guildID)
	if s == nil {
		return msgNotJoined
	}

	song, err := sm.resolver.Resolve(ctx, query, requester)
	if err != nil {
		sm.logger.Info("Could not resolve song",
			slog.String("query", query),
			slog.String("requester", requester),
			slog.Any("error", err))
		return msgNotFound
	}

	lock := sm.guildLock(guildID)
	lock.Lock()
	defer lock.Unlock()

	// The session may have been left or replaced while resolving.
	if sm.Get(guildID) != s {
		return msgNotJoined
	}

	s.Queue.Enqueue(song)
	if err = sm.attach(ctx, s); err != nil {
		sm.logger.Error("Failed to resume playback", slog.Any("error", err))
	}

	sm.logger.Info("Enqueued song",
		slog.String("guild", guildID.String()),
		slog.String("title", song.Title),
		slog.String("requester", requester))
	return enqueuedMessage(song)
}

// SkipCommand ends the song that is playing.
func (sm *SessionManager) SkipCommand(guildID snowflake.ID) string {
	s := sm.Get(guildID)
	if s == nil {
		return msgNotJoined
	}
	if s.Queue.Len() == 0 {
		return msgNothingPlaying
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.source == nil {
		// Nothing polls a stopped session, so drop the front directly.
		s.Queue.PopFront()
	} else {
		s.Skip.Request()
	}
	return msgSkipped
}

// UndoCommand removes the most recently enqueued song unless it is playing.
func (sm *SessionManager) UndoCommand(guildID snowflake.ID) string {
	s := sm.Get(guildID)
	if s == nil {
		return msgNotJoined
	}
	song, err := s.Queue.RemoveLastIfNotOnlyEntry()
	if errors.Is(err, queue.ErrNothingToUndo) {
		return msgQueueEmpty
	}
	return removedMessage(song)
}

// ListCommand shows the songs waiting behind the one that is playing.
func (sm *SessionManager) ListCommand(guildID snowflake.ID) string {
	s := sm.Get(guildID)
	if s == nil {
		return msgNotJoined
	}
	pending := s.Queue.SnapshotPending()
	if len(pending) == 0 {
		return msgQueueEmpty
	}
	return queueListMessage(pending)
}

// NowCommand shows the song at the front of the queue.
func (sm *SessionManager) NowCommand(guildID snowflake.ID) string {
	s := sm.Get(guildID)
	if s == nil {
		return msgNotJoined
	}
	song, ok := s.Queue.Front()
	if !ok {
		return msgNothingPlaying
	}
	return nowPlayingMessage(song)
}

// StopCommand silences the guild but stays connected with the queue intact.
func (sm *SessionManager) StopCommand(ctx context.Context, guildID snowflake.ID) string {
	s := sm.Get(guildID)
	if s == nil {
		return msgNotJoined
	}
	sm.detach(ctx, s)
	return msgStopped
}

// LeaveCommand disconnects from the guild's voice channel.
func (sm *SessionManager) LeaveCommand(ctx context.Context, guildID snowflake.ID) string {
	if err := sm.Leave(ctx, guildID); err != nil {
		return msgNotJoined
	}
	return msgLeft
}
