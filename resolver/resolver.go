package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"sporespawn/queue"

	"github.com/lrstanley/go-ytdlp"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrNotFound is returned for every locator that cannot be turned into a Song.
var ErrNotFound = errors.New("could not find that song")

const printTemplate = "%(title)s\t%(duration_string)s\t%(webpage_url)s"

// Resolver looks up title and duration for a URL or search query with yt-dlp.
type Resolver struct {
	timeout time.Duration
	logger  *slog.Logger
	run     func(ctx context.Context, locator string) (string, error)
}

// New creates a Resolver. A zero timeout means no limit.
func New(timeout time.Duration) *Resolver {
	return &Resolver{
		timeout: timeout,
		logger:  slog.With("component", "resolver"),
		run:     runYTDLP,
	}
}

func runYTDLP(ctx context.Context, locator string) (string, error) {
	res, err := ytdlp.New().
		Print(printTemplate).
		NoPlaylist().
		NoWarnings().
		IgnoreConfig().
		Run(ctx, "--default-search", "ytsearch", locator)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// Resolve returns a Song for locator requested by requester.
func (r *Resolver) Resolve(ctx context.Context, locator, requester string) (queue.Song, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return queue.Song{}, fmt.Errorf("empty locator: %w", ErrNotFound)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	out, err := r.run(ctx, locator)
	if err != nil {
		r.logger.Debug("yt-dlp lookup failed",
			slog.String("locator", locator),
			slog.Any("error", err))
		return queue.Song{}, fmt.Errorf("resolve %q: %w", locator, ErrNotFound)
	}

	song, err := parse(out, locator, requester)
	if err != nil {
		return queue.Song{}, fmt.Errorf("resolve %q: %w", locator, err)
	}
	return song, nil
}

func parse(out, locator, requester string) (queue.Song, error) {
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.Split(strings.TrimSpace(line), "\t")
		if len(parts) < 2 {
			continue
		}

		title := normalize(parts[0])
		if title == "" || title == "NA" {
			continue
		}

		duration := strings.TrimSpace(parts[1])
		if duration == "" || duration == "NA" {
			duration = "?"
		}

		// Prefer the page yt-dlp picked so the decoder plays the same result.
		if len(parts) > 2 && strings.HasPrefix(parts[2], "http") {
			locator = strings.TrimSpace(parts[2])
		}

		return queue.Song{
			Locator:   locator,
			Title:     title,
			Requester: requester,
			Duration:  duration,
		}, nil
	}
	return queue.Song{}, ErrNotFound
}

// normalize composes the title and drops control characters that would break
// chat formatting.
func normalize(title string) string {
	t := transform.Chain(norm.NFC, runes.Remove(runes.In(unicode.Cc)))
	result, _, err := transform.String(t, title)
	if err != nil {
		return strings.TrimSpace(title)
	}
	return strings.TrimSpace(result)
}
