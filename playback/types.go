package playback

import (
	"sync"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
)

// FrameSource produces one frame of interleaved 16-bit PCM per call.
// ProduceFrame returns len(buf) for audio and 0 for silence.
type FrameSource interface {
	ProduceFrame(buf []int16) int
	IsStereo() bool
	Close() error
}

// Playback mixes streams onto the local speaker.
type Playback struct {
	mixer      *beep.Mixer
	ctrl       *beep.Ctrl
	volume     *effects.Volume
	mu         sync.Mutex
	closers    []func() error
	closed     bool
	sampleRate beep.SampleRate
}

// StreamSource represents different types of audio input sources
type StreamSource interface {
	GetStreamer() (beep.Streamer, beep.Format, error)
}
