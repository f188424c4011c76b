package machine

import (
	"context"
	"fmt"
	"log/slog"

	"sporespawn/config"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/cache"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/disgoorg/snowflake/v2"
)

// DiscordManager handles all Discord bot operations
type DiscordManager struct {
	config   *config.Config
	client   bot.Client
	logger   *slog.Logger
	sessions *SessionManager
}

// NewDiscordManager creates a new DiscordManager instance
func NewDiscordManager(cfg *config.Config) *DiscordManager {
	return &DiscordManager{
		config: cfg,
		logger: slog.With("component", "discord"),
	}
}

// Initialize sets up the Discord bot client
func (d *DiscordManager) Initialize() error {
	d.logger.Info("Initializing Discord client")

	client, err := disgo.New(d.config.Discord.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(gateway.IntentGuilds|gateway.IntentGuildVoiceStates),
		),
		bot.WithCacheConfigOpts(
			cache.WithCaches(cache.FlagGuilds|cache.FlagChannels|cache.FlagVoiceStates),
		),
		bot.WithEventListenerFunc(d.commandListener),
	)
	if err != nil {
		return fmt.Errorf("failed to create Discord client: %w", err)
	}

	d.client = client

	if err = d.registerCommands(); err != nil {
		return fmt.Errorf("failed to register Discord commands: %w", err)
	}

	d.logger.Info("Discord client initialized successfully")
	return nil
}

func (d *DiscordManager) registerCommands() error {
	if d.config.Discord.GuildID == "" {
		_, err := d.client.Rest().SetGlobalCommands(d.client.ApplicationID(), getCommands())
		return err
	}
	guildID, err := snowflake.Parse(d.config.Discord.GuildID)
	if err != nil {
		return fmt.Errorf("invalid guild ID: %w", err)
	}
	_, err = d.client.Rest().SetGuildCommands(d.client.ApplicationID(), guildID, getCommands())
	return err
}

// Start opens the Discord gateway connection
func (d *DiscordManager) Start(ctx context.Context) error {
	if err := d.client.OpenGateway(ctx); err != nil {
		return fmt.Errorf("failed to connect to Discord gateway: %w", err)
	}
	return nil
}

// Stop closes the Discord connection
func (d *DiscordManager) Stop() {
	if d.client != nil {
		d.client.Close(context.Background())
	}
}

// Connect opens a voice connection in the given guild.
func (d *DiscordManager) Connect(ctx context.Context, guildID, channelID snowflake.ID) (VoiceConn, error) {
	conn := d.client.VoiceManager().CreateConn(guildID)
	if err := conn.Open(ctx, channelID, false, d.config.Voice.SelfDeaf); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return conn, nil
}

// SendMessage posts plain text to a channel.
func (d *DiscordManager) SendMessage(channelID snowflake.ID, content string) error {
	_, err := d.client.Rest().CreateMessage(channelID, discord.NewMessageCreateBuilder().
		SetContent(content).
		Build())
	if err != nil {
		return fmt.Errorf("failed to send Discord message: %w", err)
	}
	return nil
}

// getCommands returns the Discord slash commands
func getCommands() []discord.ApplicationCommandCreate {
	return []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:        "play",
			Description: "Enqueue a song",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "song",
					Description: "A url or something to search for",
					Required:    true,
				},
			},
		},
		discord.SlashCommandCreate{Name: "skip", Description: "Skip the song that is playing"},
		discord.SlashCommandCreate{Name: "undo", Description: "Remove the most recently enqueued song"},
		discord.SlashCommandCreate{Name: "list", Description: "Show the queue"},
		discord.SlashCommandCreate{Name: "now", Description: "Show the song that is playing"},
		discord.SlashCommandCreate{Name: "stop", Description: "Stop playback and keep the queue"},
		discord.SlashCommandCreate{Name: "join", Description: "Join your voice channel"},
		discord.SlashCommandCreate{Name: "leave", Description: "Leave the voice channel"},
		discord.SlashCommandCreate{Name: "help", Description: "Show the available commands"},
	}
}

// commandListener handles Discord slash commands
func (d *DiscordManager) commandListener(event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()
	user := event.User()

	d.logger.Debug("Received command",
		slog.String("command", data.CommandName()),
		slog.String("user", user.Username))

	if data.CommandName() == "help" {
		d.reply(event, helpText)
		return
	}

	guildID := event.GuildID()
	if guildID == nil {
		d.reply(event, msgGuildOnly)
		return
	}

	ctx := context.Background()
	switch data.CommandName() {
	case "join":
		voiceState, ok := d.client.Caches().VoiceState(*guildID, user.ID)
		if !ok || voiceState.ChannelID == nil {
			d.reply(event, msgNotInVoice)
			return
		}
		d.deferred(event, func() string {
			return d.sessions.JoinCommand(ctx, *guildID, *voiceState.ChannelID, event.Channel().ID())
		})
	case "play":
		query := data.String("song")
		d.deferred(event, func() string {
			return d.sessions.PlayCommand(ctx, *guildID, query, user.Username)
		})
	case "skip":
		d.reply(event, d.sessions.SkipCommand(*guildID))
	case "undo":
		d.reply(event, d.sessions.UndoCommand(*guildID))
	case "list":
		d.reply(event, d.sessions.ListCommand(*guildID))
	case "now":
		d.reply(event, d.sessions.NowCommand(*guildID))
	case "stop":
		d.reply(event, d.sessions.StopCommand(ctx, *guildID))
	case "leave":
		d.reply(event, d.sessions.LeaveCommand(ctx, *guildID))
	}
}

func (d *DiscordManager) reply(event *events.ApplicationCommandInteractionCreate, content string) {
	err := event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(content).
		Build())
	if err != nil {
		d.logger.Error("Failed to send Discord response", slog.Any("error", err))
	}
}

// deferred acknowledges the interaction and fills in the reply once work
// returns. Resolving and joining outlast the interaction deadline.
func (d *DiscordManager) deferred(event *events.ApplicationCommandInteractionCreate, work func() string) {
	if err := event.DeferCreateMessage(false); err != nil {
		d.logger.Error("Failed to defer Discord response", slog.Any("error", err))
		return
	}
	go func() {
		content := work()
		_, err := d.client.Rest().UpdateInteractionResponse(event.ApplicationID(), event.Token(),
			discord.NewMessageUpdateBuilder().SetContent(content).Build())
		if err != nil {
			d.logger.Error("Failed to update Discord response", slog.Any("error", err))
		}
	}()
}
