package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"os/user"
	"syscall"
	"time"

	"sporespawn/config"
	"sporespawn/decoder"
	"sporespawn/logger"
	"sporespawn/playback"
	"sporespawn/queue"
	"sporespawn/resolver"
	"sporespawn/source"

	"github.com/spf13/cobra"
)

// A second interrupt this soon after the first quits instead of skipping.
const quitWindow = time.Second

// localCmd plays songs through the local speaker
var localCmd = &cobra.Command{
	Use:   "local <locator>...",
	Short: "Play songs through the local speaker",
	Long: `Play one or more urls or search terms through the local speaker, in order.

Press Ctrl+C to skip the current song, twice quickly to quit. The command exits
once every song has played.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runLocal,
}

func init() {
	rootCmd.AddCommand(localCmd)
	localCmd.Flags().Bool("resolve", false, "look up titles and durations with yt-dlp before playing")
	localCmd.Flags().Float64("gain", 0, "speaker gain in powers of two, -10 or lower mutes")
}

func runLocal(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.ValidateDecoder(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	log := logger.WithComponent("local")

	resolve, _ := cmd.Flags().GetBool("resolve")
	gain, _ := cmd.Flags().GetFloat64("gain")

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	q := queue.New()
	for _, song := range localSongs(ctx, cfg, args, resolve, log) {
		q.Enqueue(song)
	}
	if q.Len() == 0 {
		return errors.New("nothing to play")
	}

	skip := &queue.Skip{}
	tuning := decoder.Tuning{Volume: cfg.Decoder.Volume, CacheSecs: cfg.Decoder.CacheSecs}
	start := func(locator string) (source.Decoder, error) {
		p, err := decoder.Start(ctx, locator, tuning, decoder.WithExec(cfg.Decoder.Exec))
		if err != nil {
			return nil, err
		}
		return p, nil
	}

	src := source.New(q, skip, start,
		source.WithLogger(logger.WithComponent("source")),
		source.WithNotify(func(song queue.Song, _ source.Event) {
			go fmt.Printf("Now Playing: %s\n", song)
		}),
	)

	pb, err := playback.NewPlayback(playback.SampleRate)
	if err != nil {
		return fmt.Errorf("failed to open speaker: %w", err)
	}
	defer pb.Close()
	pb.SetVolume(gain)

	if err := pb.AddSource(src); err != nil {
		return fmt.Errorf("failed to start playback: %w", err)
	}

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	var lastInterrupt time.Time
	for {
		select {
		case sig := <-signalChan:
			if sig != syscall.SIGINT || time.Since(lastInterrupt) < quitWindow {
				fmt.Println("\nQuitting")
				return nil
			}
			lastInterrupt = time.Now()
			if q.Len() > 0 {
				skip.Request()
				fmt.Println("\nSkipped to the next song")
			}
		case <-ticker.C:
			if q.Len() == 0 {
				log.Info("Queue finished")
				return nil
			}
		}
	}
}

// localSongs turns the command line into songs. Unresolvable arguments are
// dropped when resolving.
func localSongs(ctx context.Context, cfg *config.Config, args []string, resolve bool, log *slog.Logger) []queue.Song {
	requester := "local"
	if u, err := user.Current(); err == nil {
		requester = u.Username
	}

	if !resolve {
		songs := make([]queue.Song, 0, len(args))
		for _, arg := range args {
			songs = append(songs, queue.Song{Locator: arg, Title: arg, Requester: requester, Duration: "?"})
		}
		return songs
	}

	res := resolver.New(cfg.Resolver.Timeout)
	songs := make([]queue.Song, 0, len(args))
	for _, arg := range args {
		song, err := res.Resolve(ctx, arg, requester)
		if err != nil {
			log.Warn("Could not find song", slog.String("query", arg), slog.Any("error", err))
			continue
		}
		songs = append(songs, song)
	}
	return songs
}
