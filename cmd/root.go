package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sporespawn/config"
	"sporespawn/logger"
	"sporespawn/machine"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "sporespawn",
	Short: "A Discord music bot",
	Long: `Sporespawn is a Discord bot that plays music into voice channels.

Members join the bot to their voice channel and enqueue songs by url or search
term with slash commands. Each song is decoded by an external mpv process and
streamed as it plays, while the queue can be listed, skipped and undone.`,
	RunE: runServer,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().String("decoder", "mpv", "decoder executable")
	rootCmd.PersistentFlags().Int("volume", 75, "decoder volume (0-130)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json, pretty)")

	// Local flags for the server command
	rootCmd.Flags().String("discord-token", "", "Discord bot token")
	rootCmd.Flags().String("guild-id", "", "register commands to this guild only")
	rootCmd.Flags().String("discord-webhook", "", "Discord webhook URL for now playing announcements")
	rootCmd.Flags().Duration("idle-timeout", 0, "leave voice after the queue has been empty this long")

	// Bind flags to viper
	viper.BindPFlag("decoder.exec", rootCmd.PersistentFlags().Lookup("decoder"))
	viper.BindPFlag("decoder.volume", rootCmd.PersistentFlags().Lookup("volume"))
	viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logging.format", rootCmd.PersistentFlags().Lookup("log-format"))
	viper.BindPFlag("discord.token", rootCmd.Flags().Lookup("discord-token"))
	viper.BindPFlag("discord.guild_id", rootCmd.Flags().Lookup("guild-id"))
	viper.BindPFlag("discord.webhook_url", rootCmd.Flags().Lookup("discord-webhook"))
	viper.BindPFlag("voice.idle_timeout", rootCmd.Flags().Lookup("idle-timeout"))
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if verbose {
		viper.Set("logging.level", "debug")
	}
}

// runServer starts the bot
func runServer(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	// Setup logging
	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}

	// Create and initialize the machine
	m := machine.New(cfg)
	if err := m.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize machine: %w", err)
	}

	// Start the machine
	if err := m.Start(); err != nil {
		return fmt.Errorf("failed to start machine: %w", err)
	}

	// Setup graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	sig := <-signalChan
	fmt.Printf("\nReceived %s, shutting down gracefully...\n", sig)

	// Graceful shutdown
	if err := m.Stop(); err != nil {
		return fmt.Errorf("failed to stop machine gracefully: %w", err)
	}

	return nil
}
