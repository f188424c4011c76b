package playback

import (
	"fmt"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/speaker"
)

// NewPlayback creates a new Playback instance
func NewPlayback(sampleRate beep.SampleRate) (*Playback, error) {
	// Initialize the speaker with the given sample rate
	err := speaker.Init(sampleRate, sampleRate.N(100*time.Millisecond))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize speaker: %w", err)
	}

	mixer := &beep.Mixer{}
	volume := &effects.Volume{Streamer: mixer, Base: 2}
	ctrl := &beep.Ctrl{Streamer: volume}

	playback := &Playback{
		mixer:      mixer,
		ctrl:       ctrl,
		volume:     volume,
		sampleRate: sampleRate,
	}

	// Start playing the mixer
	speaker.Play(ctrl)

	return playback, nil
}

// AddStream adds a new audio stream to the playback mixer
func (p *Playback) AddStream(source StreamSource) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("playback is closed")
	}

	streamer, format, err := source.GetStreamer()
	if err != nil {
		return fmt.Errorf("failed to get streamer: %w", err)
	}

	speaker.Lock()
	defer speaker.Unlock()

	// Resample if necessary to match the speaker's sample rate
	if format.SampleRate != p.sampleRate {
		p.mixer.Add(beep.Resample(4, format.SampleRate, p.sampleRate, streamer))
	} else {
		p.mixer.Add(streamer)
	}

	return nil
}

// AddSource streams a FrameSource through the speaker until the playback
// is closed. Closing the playback closes the source.
func (p *Playback) AddSource(src FrameSource) error {
	streamer := NewSourceStreamer(src)
	if err := p.AddStream(streamer); err != nil {
		return err
	}

	p.mu.Lock()
	p.closers = append(p.closers, streamer.Close)
	p.mu.Unlock()
	return nil
}

// SetVolume sets the gain in powers of two; 0 leaves the signal untouched
// and -1 halves it.
func (p *Playback) SetVolume(volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.closed {
		speaker.Lock()
		p.volume.Volume = volume
		p.volume.Silent = volume <= -10
		speaker.Unlock()
	}
}

// Close closes the playback and releases resources
func (p *Playback) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}

	p.closed = true

	speaker.Lock()
	p.mixer.Clear()
	speaker.Unlock()

	var firstErr error
	for _, closeFn := range p.closers {
		if err := closeFn(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.closers = nil

	// Close the speaker
	speaker.Close()

	return firstErr
}
