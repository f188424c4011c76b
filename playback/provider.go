package playback

import (
	"log/slog"

	"github.com/disgoorg/audio/opus"
	"github.com/disgoorg/audio/pcm"
	"github.com/disgoorg/disgo/voice"
)

const (
	// SamplesPerFrame is one 20ms frame per channel at 48kHz.
	SamplesPerFrame = 960
	OpusSampleRate  = 48000
)

var _ pcm.FrameProvider = (*FrameProvider)(nil)

// FrameProvider adapts a FrameSource to the disgo audio pipeline, which
// asks for a frame every 20ms. Silent ticks become zeroed frames.
type FrameProvider struct {
	src    FrameSource
	buf    []int16
	logger *slog.Logger
}

func NewFrameProvider(src FrameSource) *FrameProvider {
	return &FrameProvider{
		src:    src,
		buf:    make([]int16, SamplesPerFrame*channels(src)),
		logger: slog.With("component", "frame-provider"),
	}
}

func (p *FrameProvider) ProvidePCMFrame() ([]int16, error) {
	if p.src.ProduceFrame(p.buf) == 0 {
		clear(p.buf)
	}
	return p.buf, nil
}

func (p *FrameProvider) Close() {
	if err := p.src.Close(); err != nil {
		p.logger.Error("Failed to close frame source", slog.Any("error", err))
	}
}

// NewOpusProvider encodes a FrameSource for a voice connection.
func NewOpusProvider(src FrameSource) (voice.OpusFrameProvider, error) {
	encoder, err := opus.NewEncoder(OpusSampleRate, channels(src), opus.ApplicationAudio)
	if err != nil {
		return nil, err
	}
	return pcm.NewOpusProvider(encoder, NewFrameProvider(src))
}

func channels(src FrameSource) int {
	if src.IsStereo() {
		return 2
	}
	return 1
}
