package decoder

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/disgoorg/ffmpeg-audio"
)

const (
	// Exec is the default decoder executable.
	Exec       = "mpv"
	Channels   = 2
	SampleRate = 48000
	BufferSize = 65307
)

// ErrClosed is returned by ReadSamples once the process has been released.
var ErrClosed = errors.New("decoder closed")

// WithExec overrides the decoder executable.
func WithExec(path string) ffmpeg.ConfigOpt {
	return func(cfg *ffmpeg.Config) {
		cfg.Exec = path
	}
}

// Process is a running decoder that writes raw s16le PCM to its stdout.
// It is owned by exactly one reader and must be released with Close.
type Process struct {
	cmd    *exec.Cmd
	pipe   io.Closer
	reader *bufio.Reader
	raw    []byte

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// Start spawns the decoder for locator. Failing to spawn is reported as an
// error; the caller decides whether to retry.
func Start(ctx context.Context, locator string, tuning Tuning, opts ...ffmpeg.ConfigOpt) (*Process, error) {
	cfg := ffmpeg.DefaultConfig()
	cfg.Exec = Exec
	cfg.Channels = Channels
	cfg.SampleRate = SampleRate
	cfg.BufferSize = BufferSize
	cfg.Apply(opts)

	cmd := exec.CommandContext(ctx, cfg.Exec, Args(locator, cfg.SampleRate, cfg.Channels, tuning)...)
	p, err := newProcess(cmd, cfg.BufferSize)
	if err != nil {
		return nil, fmt.Errorf("start decoder %q: %w", cfg.Exec, err)
	}
	return p, nil
}

func newProcess(cmd *exec.Cmd, bufferSize int) (*Process, error) {
	// nil stdin/stderr are wired to the null device.
	cmd.Stdin = nil
	cmd.Stderr = nil
	setProcessGroup(cmd)

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err = cmd.Start(); err != nil {
		_ = pipe.Close()
		return nil, err
	}

	return &Process{
		cmd:    cmd,
		pipe:   pipe,
		reader: bufio.NewReaderSize(pipe, bufferSize),
	}, nil
}

// ReadSamples fills buf with interleaved samples. It blocks until buf is
// full or the stream ends. A stream that ends before any byte was read
// returns io.EOF; one that ends part way returns the decoded count together
// with an error wrapping io.ErrUnexpectedEOF.
func (p *Process) ReadSamples(buf []int16) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}

	size := len(buf) * 2
	if cap(p.raw) < size {
		p.raw = make([]byte, size)
	}
	raw := p.raw[:size]

	n, err := io.ReadFull(p.reader, raw)
	samples := n / 2
	for i := 0; i < samples; i++ {
		buf[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
	}

	switch {
	case err == nil:
		return samples, nil
	case errors.Is(err, io.EOF):
		return 0, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		return samples, fmt.Errorf("decoder stream ended mid-frame: %w", err)
	case errors.Is(err, os.ErrClosed):
		return samples, ErrClosed
	default:
		return samples, fmt.Errorf("error reading PCM data: %w", err)
	}
}

// Close kills the decoder and reaps it. Every call after the first returns
// the first call's result.
func (p *Process) Close() error {
	p.closeOnce.Do(func() {
		p.closed.Store(true)

		if err := killProcess(p.cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
			p.closeErr = fmt.Errorf("kill decoder: %w", err)
		}

		// Wait closes the stdout pipe as well.
		if err := p.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) && p.closeErr == nil {
				p.closeErr = fmt.Errorf("reap decoder: %w", err)
			}
		}
	})
	return p.closeErr
}

// Pid returns the operating system id of the decoder.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Exited reports whether the decoder has been reaped.
func (p *Process) Exited() bool {
	return p.cmd.ProcessState != nil
}
