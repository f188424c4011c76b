package source

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sporespawn/queue"

	"golang.org/x/time/rate"
)

// State is the playback state of a QueuedSource.
type State int

const (
	// StateFresh is the state before the first tick.
	StateFresh State = iota
	// StateIdle means no track is streaming.
	StateIdle
	// StateStreaming means a decoder is producing samples for the front song.
	StateStreaming
)

func (s State) String() string {
	switch s {
	case StateFresh:
		return "fresh"
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Event identifies what a NotifyFunc is told about.
type Event int

const (
	// EventNowPlaying fires when a decoder was started for the front song.
	EventNowPlaying Event = iota
)

// Decoder produces interleaved PCM samples for one track.
type Decoder interface {
	// ReadSamples fills buf, blocking until it is full or the stream ends.
	ReadSamples(buf []int16) (int, error)
	// Close terminates the decoder. It must be safe to call more than once.
	Close() error
}

// StartFunc starts a decoder for a locator.
type StartFunc func(locator string) (Decoder, error)

// NotifyFunc is called on the polling goroutine and must return quickly.
type NotifyFunc func(song queue.Song, event Event)

// Option configures a QueuedSource.
type Option func(*QueuedSource)

// WithNotify sets the hook that is told when a song starts playing.
func WithNotify(fn NotifyFunc) Option {
	return func(s *QueuedSource) {
		s.notify = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *QueuedSource) {
		s.logger = logger
	}
}

// QueuedSource turns a Queue into a stream of PCM frames. The polling
// engine calls ProduceFrame once per tick; the command side only ever
// touches the Queue and the Skip.
type QueuedSource struct {
	queue  *queue.Queue
	skip   *queue.Skip
	start  StartFunc
	notify NotifyFunc
	logger *slog.Logger

	// failureLog throttles spawn failure logs; spawning is retried every tick.
	failureLog *rate.Limiter

	// mu serializes ticks with each other and with the state reset in Close.
	mu      sync.Mutex
	closed  atomic.Bool
	state   State
	current Decoder

	// live is the decoder still owed a Close. Whoever takes it closes it, so
	// Close can kill a decoder that a tick is blocked reading from.
	liveMu sync.Mutex
	live   Decoder
}

// New creates a QueuedSource in StateFresh.
func New(q *queue.Queue, skip *queue.Skip, start StartFunc, opts ...Option) *QueuedSource {
	s := &QueuedSource{
		queue:      q,
		skip:       skip,
		start:      start,
		logger:     slog.With("component", "source"),
		failureLog: rate.NewLimiter(rate.Every(5*time.Second), 1),
		state:      StateFresh,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsStereo reports whether frames are interleaved left/right.
func (s *QueuedSource) IsStereo() bool {
	// Decoders always emit interleaved stereo.
	return true
}

// State returns the current state.
func (s *QueuedSource) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ProduceFrame runs one tick. It returns len(buf) when buf holds a full
// frame of audio and 0 for silence; buf contents are meaningless on 0.
func (s *QueuedSource) ProduceFrame(buf []int16) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return 0
	}

	switch s.state {
	case StateFresh:
		return s.tickFresh()
	case StateIdle:
		return s.tickIdle()
	case StateStreaming:
		return s.tickStreaming(buf)
	default:
		return 0
	}
}

func (s *QueuedSource) tickFresh() int {
	s.state = StateIdle
	return 0
}

func (s *QueuedSource) tickIdle() int {
	song, ok := s.queue.Front()
	if !ok {
		return 0
	}

	dec, err := s.start(song.Locator)
	if err != nil {
		// The front song stays queued and is retried on the next tick.
		if s.failureLog.Allow() {
			s.logger.Error("Failed to start decoder",
				slog.String("title", song.Title),
				slog.String("locator", song.Locator),
				slog.Any("error", err))
		}
		return 0
	}

	s.current = dec
	s.liveMu.Lock()
	s.live = dec
	s.liveMu.Unlock()
	s.state = StateStreaming
	s.logger.Info("Now playing",
		slog.String("title", song.Title),
		slog.String("requester", song.Requester))

	if s.notify != nil {
		s.notify(song, EventNowPlaying)
	}
	return 0
}

func (s *QueuedSource) tickStreaming(buf []int16) int {
	if s.skip.ConsumeIfSet() {
		s.finishTrack("skipped", nil)
		return 0
	}

	n, err := s.current.ReadSamples(buf)
	if s.closed.Load() {
		// Close killed the decoder under this read. The song stays queued.
		s.current = nil
		s.state = StateIdle
		return 0
	}
	if err != nil || n < len(buf) {
		s.finishTrack("ended", err)
		return 0
	}
	return n
}

// finishTrack drops the front song and the decoder that was playing it.
// Clean ends and stream errors are handled the same way.
func (s *QueuedSource) finishTrack(reason string, err error) {
	song, _ := s.queue.PopFront()
	s.release()
	s.state = StateIdle

	attrs := []any{slog.String("title", song.Title), slog.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	s.logger.Debug("Track finished", attrs...)
}

func (s *QueuedSource) release() {
	s.current = nil
	s.closeLive()
}

// closeLive closes the live decoder unless someone already took it.
func (s *QueuedSource) closeLive() {
	s.liveMu.Lock()
	dec := s.live
	s.live = nil
	s.liveMu.Unlock()

	if dec == nil {
		return
	}
	if err := dec.Close(); err != nil {
		s.logger.Warn("Failed to release decoder", slog.Any("error", err))
	}
}

// Close detaches the source: the live decoder, if any, is released and
// every later tick is silent. The decoder is killed before Close waits for
// an in-flight tick, so a stalled read cannot hold Close up.
func (s *QueuedSource) Close() error {
	s.closed.Store(true)
	s.closeLive()

	s.mu.Lock()
	defer s.mu.Unlock()
	// A tick that was starting a decoder may have published it meanwhile.
	s.release()
	if s.state == StateStreaming {
		s.state = StateIdle
	}
	return nil
}
