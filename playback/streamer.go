package playback

import (
	"errors"
	"sync/atomic"

	"github.com/gopxl/beep/v2"
)

var ErrAlreadyClosed = errors.New("already closed")
var SampleRate = beep.SampleRate(48000)

// SourceStreamer lets the beep speaker poll a FrameSource. Silent ticks are
// played as a frame of zeros so the speaker never runs dry.
type SourceStreamer struct {
	src    FrameSource
	stereo bool
	pcm    []int16
	pcmIdx int
	filled int
	closed atomic.Bool
}

var _ beep.Streamer = (*SourceStreamer)(nil)
var _ StreamSource = (*SourceStreamer)(nil)

func NewSourceStreamer(src FrameSource) *SourceStreamer {
	stereo := src.IsStereo()
	channels := 1
	if stereo {
		channels = 2
	}
	return &SourceStreamer{
		src:    src,
		stereo: stereo,
		pcm:    make([]int16, SamplesPerFrame*channels),
	}
}

func (s *SourceStreamer) Err() error {
	return nil
}

func (s *SourceStreamer) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}
	return s.src.Close()
}

func (s *SourceStreamer) Stream(samples [][2]float64) (n int, ok bool) {
	if s.closed.Load() {
		return 0, false
	}

	for n < len(samples) {
		if s.pcmIdx >= s.filled {
			if s.src.ProduceFrame(s.pcm) == 0 {
				clear(s.pcm)
			}
			s.filled = len(s.pcm)
			s.pcmIdx = 0
		}

		for ; n < len(samples) && s.pcmIdx < s.filled; n++ {
			left := float64(s.pcm[s.pcmIdx]) / 32767
			right := left
			if s.stereo {
				right = float64(s.pcm[s.pcmIdx+1]) / 32767
				s.pcmIdx += 2
			} else {
				s.pcmIdx++
			}
			samples[n][0] = left
			samples[n][1] = right
		}
	}

	return n, true
}

// GetStreamer implements StreamSource for SourceStreamer
func (s *SourceStreamer) GetStreamer() (beep.Streamer, beep.Format, error) {
	channels := 1
	if s.stereo {
		channels = 2
	}
	return s, beep.Format{SampleRate: SampleRate, NumChannels: channels, Precision: 2}, nil
}
