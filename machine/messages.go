package machine

import (
	"fmt"
	"strings"

	"sporespawn/queue"
)

// Discord rejects message content longer than this.
const maxMessageLength = 2000

const (
	msgNotFound       = "Sorry, could not find that song"
	msgSkipped        = "Skipped to the next song"
	msgNothingPlaying = "No song is currently playing."
	msgQueueEmpty     = "The queue is already empty"
	msgNotInVoice     = "You must be in a voice channel"
	msgNotJoined      = "I'm not in a voice channel here, use /join first"
	msgGuildOnly      = "Commands only work inside a server"
	msgStopped        = "Stopped playback, the queue is kept"
	msgLeft           = "Left the voice channel"
	msgJoinFailed     = "Could not join your voice channel"
)

const helpText = `**Commands:**
/join - join your voice channel with an empty queue
/play <song> - enqueue a url or search term
/skip - skip the song that is playing
/undo - remove the most recently enqueued song
/list - show the songs waiting to play
/now - show the song that is playing
/stop - stop playback but keep the queue
/leave - stop playback and leave the voice channel
/help - show this message`

func nowPlayingMessage(song queue.Song) string {
	return fmt.Sprintf("Now Playing: %s requested by **%s**", song, song.Requester)
}

func enqueuedMessage(song queue.Song) string {
	return "Enqueued: " + song.String()
}

func removedMessage(song queue.Song) string {
	return fmt.Sprintf("Removed *%s* from the queue", song.Title)
}

func joinedMessage(channelID fmt.Stringer) string {
	return fmt.Sprintf("Joined <#%s>", channelID)
}

// queueListMessage renders the pending songs, cutting the list short once it
// would overflow a single message.
func queueListMessage(pending []queue.Song) string {
	var b strings.Builder
	b.WriteString("**Song queue:**\n")
	for i, song := range pending {
		line := fmt.Sprintf("%d. %s requested by **%s**\n", i+1, song, song.Requester)
		more := fmt.Sprintf("...and %d more\n", len(pending)-i)
		if b.Len()+len(line)+len(more) > maxMessageLength {
			b.WriteString(more)
			break
		}
		b.WriteString(line)
	}
	return b.String()
}
