package decoder

import (
	"strconv"
	"strings"
)

// Tuning holds the decoder settings that are not part of the PCM format.
type Tuning struct {
	Volume    int
	CacheSecs int
}

// DefaultTuning matches the values the bot has always shipped with.
var DefaultTuning = Tuning{Volume: 75, CacheSecs: 2}

// URI turns a locator into something mpv can open. Anything that is not an
// http(s) URL is handed to yt-dlp as a search query.
func URI(locator string) string {
	if strings.HasPrefix(locator, "http") {
		return locator
	}
	return "ytdl://" + locator
}

// Args builds the mpv command line for locator.
func Args(locator string, sampleRate, channels int, tuning Tuning) []string {
	layout := strconv.Itoa(channels)
	switch channels {
	case 1:
		layout = "mono"
	case 2:
		layout = "stereo"
	}

	return []string{
		URI(locator),
		"--really-quiet",
		"--ytdl-raw-options=default-search=ytsearch,format=bestaudio/best",
		"--no-video",
		"--o=-",
		"--of=s16le",
		"--audio-samplerate=" + strconv.Itoa(sampleRate),
		"--af=lavrresample",
		"--audio-channels=" + layout,
		"--audio-stream-silence=yes",
		"--audio-wait-open=1",
		"--volume=" + strconv.Itoa(tuning.Volume),
		"--cache=yes",
		"--cache-secs=" + strconv.Itoa(tuning.CacheSecs),
	}
}
