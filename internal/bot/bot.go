// Package bot hosts the Discord session, its slash commands, and the
// chat surface adapter the engine posts through.
package bot

import (
	"context"
	"fmt"
	"sync"

	"github.com/alpinn/mirrorbot/internal/apiclient"
	"github.com/alpinn/mirrorbot/internal/config"
	"github.com/alpinn/mirrorbot/internal/scheduler"
	"github.com/alpinn/mirrorbot/internal/store"
	"github.com/alpinn/mirrorbot/internal/syncer"
	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// Bot owns the Discord session and routes slash commands to the engine.
type Bot struct {
	session   *discordgo.Session
	guildID   string
	store     store.Store
	scheduler *scheduler.Scheduler
	syncer    *syncer.Synchronizer
	client    *apiclient.Client
	logger    zerolog.Logger

	mu              sync.Mutex
	runCtx          context.Context
	autoStatus      bool
	rebootRequested bool
	rebootChan      chan struct{}
}

// NewBot creates the bot and wires its event handlers. The engine is
// attached afterwards with AttachEngine, once the chat surface this bot
// provides has been wired into it.
func NewBot(cfg config.BotConfig, st store.Store, client *apiclient.Client, logger zerolog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	b := &Bot{
		session:    session,
		guildID:    cfg.GuildID,
		store:      st,
		client:     client,
		logger:     logger.With().Str("component", "Bot").Logger(),
		rebootChan: make(chan struct{}),
	}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onInteractionCreate)
	return b, nil
}

// AttachEngine wires the scheduler and synchronizer the commands drive.
// Must be called before Start.
func (b *Bot) AttachEngine(sched *scheduler.Scheduler, synchronizer *syncer.Synchronizer) {
	b.scheduler = sched
	b.syncer = synchronizer
}

// Surface returns the chat surface backed by this bot's session.
func (b *Bot) Surface() *DiscordSurface {
	return NewDiscordSurface(b.session)
}

// Start opens the session and blocks until ctx is cancelled. Command
// handlers run under ctx so in-flight work is cancelled on shutdown.
func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	b.runCtx = ctx
	b.mu.Unlock()

	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	b.logger.Info().Msg("Discord bot started")

	<-ctx.Done()

	b.logger.Info().Msg("Shutting down Discord bot")
	b.cleanupCommands()
	return b.session.Close()
}

// commandContext returns the context command handlers run under: the
// context passed to Start, or Background before the bot is started.
func (b *Bot) commandContext() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.runCtx != nil {
		return b.runCtx
	}
	return context.Background()
}

// RebootRequested reports whether an admin asked for a process restart.
func (b *Bot) RebootRequested() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rebootRequested
}

// Reboot signals when an admin asked for a restart. main uses it to shut
// down and exit with the restart code.
func (b *Bot) Reboot() <-chan struct{} {
	return b.rebootChan
}

func (b *Bot) requestReboot() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rebootRequested {
		return
	}
	b.rebootRequested = true
	close(b.rebootChan)
}

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info().
		Str("username", event.User.Username).
		Msg("Discord bot is ready")

	if err := b.registerCommands(); err != nil {
		b.logger.Error().Err(err).Msg("Failed to register commands")
	}
}

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	b.handleCommand(s, i)
}

func (b *Bot) registerCommands() error {
	b.logger.Info().Msg("Registering slash commands")
	for _, cmd := range commands {
		if _, err := b.session.ApplicationCommandCreate(b.session.State.User.ID, b.guildID, cmd); err != nil {
			return fmt.Errorf("failed to create command %s: %w", cmd.Name, err)
		}
	}
	b.logger.Info().Int("count", len(commands)).Msg("Registered all commands")
	return nil
}

func (b *Bot) cleanupCommands() {
	registered, err := b.session.ApplicationCommands(b.session.State.User.ID, b.guildID)
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to fetch commands for cleanup")
		return
	}
	for _, cmd := range registered {
		if err := b.session.ApplicationCommandDelete(b.session.State.User.ID, b.guildID, cmd.ID); err != nil {
			b.logger.Error().Err(err).Str("command", cmd.Name).Msg("Failed to delete command")
		}
	}
}

// updateAutoStatus refreshes the bot presence with the active binding count
// when auto-status is enabled.
func (b *Bot) updateAutoStatus(ctx context.Context) {
	b.mu.Lock()
	enabled := b.autoStatus
	b.mu.Unlock()

	if !enabled {
		if err := b.session.UpdateGameStatus(0, ""); err != nil {
			b.logger.Warn().Err(err).Msg("Failed to clear bot status")
		}
		return
	}

	jobs, err := b.store.GetJobs(ctx)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Failed to load jobs for status update")
		return
	}
	status := fmt.Sprintf("Mirroring %d endpoint binding(s)", len(jobs))
	if err := b.session.UpdateGameStatus(0, status); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to set bot status")
	}
}
