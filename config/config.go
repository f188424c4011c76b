package config

import (
	"log/slog"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	// Discord configuration
	Discord DiscordConfig `mapstructure:"discord"`

	// Decoder process configuration
	Decoder DecoderConfig `mapstructure:"decoder"`

	// Resolver configuration
	Resolver ResolverConfig `mapstructure:"resolver"`

	// Voice session configuration
	Voice VoiceConfig `mapstructure:"voice"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// DiscordConfig holds Discord-specific configuration
type DiscordConfig struct {
	Token string `mapstructure:"token"`
	// GuildID registers commands to one guild instead of globally.
	GuildID string `mapstructure:"guild_id"`
	// WebhookURL receives now playing announcements when set.
	WebhookURL string `mapstructure:"webhook_url"`
}

// DecoderConfig holds the settings for the external decoder
type DecoderConfig struct {
	Exec      string `mapstructure:"exec"`
	Volume    int    `mapstructure:"volume"`
	CacheSecs int    `mapstructure:"cache_secs"`
}

// ResolverConfig holds track lookup configuration
type ResolverConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// VoiceConfig holds voice session configuration
type VoiceConfig struct {
	SelfDeaf bool `mapstructure:"self_deaf"`
	// IdleTimeout leaves a voice channel once its queue has been empty this
	// long. Zero keeps sessions open.
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text or pretty
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig() (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	// Set defaults. Every key needs one for AutomaticEnv to reach Unmarshal.
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.webhook_url", "")
	viper.SetDefault("decoder.exec", "mpv")
	viper.SetDefault("decoder.volume", 75)
	viper.SetDefault("decoder.cache_secs", 2)
	viper.SetDefault("resolver.timeout", "30s")
	viper.SetDefault("voice.self_deaf", true)
	viper.SetDefault("voice.idle_timeout", "0s")
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")

	// Read config file
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.sporespawn")
	viper.AddConfigPath("/etc/sporespawn")

	// Allow environment variables
	viper.SetEnvPrefix("SPORESPAWN")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Read the config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		slog.Debug("No config file found, using defaults and environment variables")
	} else {
		slog.Info("Using config file", slog.String("file", viper.ConfigFileUsed()))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return &ConfigError{Field: "discord.token", Message: "Discord token is required"}
	}
	if c.Discord.GuildID != "" {
		if _, err := snowflake.Parse(c.Discord.GuildID); err != nil {
			return &ConfigError{Field: "discord.guild_id", Message: "guild ID must be a snowflake"}
		}
	}
	if c.Voice.IdleTimeout < 0 {
		return &ConfigError{Field: "voice.idle_timeout", Message: "idle timeout must not be negative"}
	}
	return c.ValidateDecoder()
}

// ValidateDecoder validates only what local playback needs
func (c *Config) ValidateDecoder() error {
	if c.Decoder.Exec == "" {
		return &ConfigError{Field: "decoder.exec", Message: "decoder executable is required"}
	}
	if c.Decoder.Volume < 0 || c.Decoder.Volume > 130 {
		return &ConfigError{Field: "decoder.volume", Message: "volume must be between 0 and 130"}
	}
	if c.Decoder.CacheSecs < 0 {
		return &ConfigError{Field: "decoder.cache_secs", Message: "cache seconds must not be negative"}
	}
	return nil
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
