package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/alpinn/mirrorbot/internal/config"
	"github.com/alpinn/mirrorbot/internal/render"
	"github.com/alpinn/mirrorbot/internal/scheduler"
	"github.com/alpinn/mirrorbot/internal/store"
	"github.com/bwmarrin/discordgo"
)

// readOnlyCommands may be used without the administrator permission.
var readOnlyCommands = map[string]struct{}{
	"show-channels": {},
	"endpoints":     {},
	"show-config":   {},
	"help":          {},
}

func endpointChoices() []*discordgo.ApplicationCommandOptionChoice {
	names := config.EndpointNames()
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(names))
	for _, name := range names {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{Name: name, Value: name})
	}
	return choices
}

func endpointOption(required bool) *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionString,
		Name:        "endpoint",
		Description: "API endpoint name",
		Required:    required,
		Choices:     endpointChoices(),
	}
}

func channelOption() *discordgo.ApplicationCommandOption {
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionChannel,
		Name:        "channel",
		Description: "Target channel (defaults to the current one)",
		Required:    false,
	}
}

// Command definitions
var commands = []*discordgo.ApplicationCommand{
	{
		Name:        "set-channel",
		Description: "Mirror an endpoint into a channel",
		Options:     []*discordgo.ApplicationCommandOption{endpointOption(true), channelOption()},
	},
	{
		Name:        "unset-channel",
		Description: "Stop mirroring an endpoint into a channel",
		Options:     []*discordgo.ApplicationCommandOption{endpointOption(true), channelOption()},
	},
	{
		Name:        "show-channels",
		Description: "List the configured endpoint/channel bindings",
	},
	{
		Name:        "enable-endpoint",
		Description: "Enable polling for an endpoint",
		Options:     []*discordgo.ApplicationCommandOption{endpointOption(true)},
	},
	{
		Name:        "disable-endpoint",
		Description: "Disable polling for an endpoint",
		Options:     []*discordgo.ApplicationCommandOption{endpointOption(true)},
	},
	{
		Name:        "enable-all-endpoints",
		Description: "Enable polling for every endpoint",
	},
	{
		Name:        "auto-status",
		Description: "Toggle the bot presence showing active bindings",
	},
	{
		Name:        "refresh-all-now",
		Description: "Refresh every binding, one cooldown turn each",
	},
	{
		Name:        "refresh",
		Description: "Refresh one endpoint in this channel now",
		Options:     []*discordgo.ApplicationCommandOption{endpointOption(true)},
	},
	{
		Name:        "fetch",
		Description: "Fetch an endpoint once and show the result here",
		Options: []*discordgo.ApplicationCommandOption{
			endpointOption(true),
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "params",
				Description: "Query parameters, e.g. page=2 limit=5",
				Required:    false,
			},
		},
	},
	{
		Name:        "clear",
		Description: "Delete mirrored messages and their tracking records",
		Options: []*discordgo.ApplicationCommandOption{
			channelOption(),
			{
				Type:        discordgo.ApplicationCommandOptionBoolean,
				Name:        "all",
				Description: "Clear every channel instead of one",
				Required:    false,
			},
		},
	},
	{
		Name:        "endpoints",
		Description: "List the available API endpoints",
	},
	{
		Name:        "show-config",
		Description: "Show the current runtime configuration",
	},
	{
		Name:        "set-base-url",
		Description: "Change the API base URL",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "url",
				Description: "New base URL",
				Required:    true,
			},
		},
	},
	{
		Name:        "reboot",
		Description: "Restart the bot process",
	},
	{
		Name:        "help",
		Description: "Show command help",
	},
}

// handleCommand defers the response, runs the handler, and follows up with
// its result.
func (b *Bot) handleCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	name := i.ApplicationCommandData().Name

	if _, readOnly := readOnlyCommands[name]; !readOnly && !isAdmin(i) {
		b.respondEphemeral(s, i, "This command requires the administrator permission.")
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		b.logger.Error().Err(err).Str("command", name).Msg("Failed to defer interaction response")
		return
	}

	ctx := b.commandContext()
	options := i.ApplicationCommandData().Options

	var response string
	var cmdErr error

	switch name {
	case "set-channel":
		response, cmdErr = b.handleSetChannel(ctx, i, options)
	case "unset-channel":
		response, cmdErr = b.handleUnsetChannel(ctx, i, options)
	case "show-channels":
		response, cmdErr = b.handleShowChannels(ctx)
	case "enable-endpoint":
		response, cmdErr = b.handleToggleEndpoint(ctx, options, true)
	case "disable-endpoint":
		response, cmdErr = b.handleToggleEndpoint(ctx, options, false)
	case "enable-all-endpoints":
		response, cmdErr = b.handleEnableAllEndpoints(ctx)
	case "auto-status":
		response, cmdErr = b.handleAutoStatus(ctx)
	case "refresh-all-now":
		response, cmdErr = b.handleRefreshAll(ctx)
	case "refresh":
		response, cmdErr = b.handleRefresh(ctx, i, options)
	case "fetch":
		response, cmdErr = b.handleFetch(ctx, options)
	case "clear":
		response, cmdErr = b.handleClear(ctx, i, options)
	case "endpoints":
		response, cmdErr = b.handleEndpoints(ctx)
	case "show-config":
		response, cmdErr = b.handleShowConfig(ctx)
	case "set-base-url":
		response, cmdErr = b.handleSetBaseURL(options)
	case "reboot":
		response, cmdErr = b.handleReboot()
	case "help":
		response, cmdErr = b.handleHelp()
	default:
		response = "Unknown command"
	}

	if cmdErr != nil {
		response = fmt.Sprintf("Error: %v", cmdErr)
		b.logger.Error().Err(cmdErr).Str("command", name).Msg("Command execution failed")
	}

	if _, err := s.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{Content: response}); err != nil {
		b.logger.Error().Err(err).Msg("Failed to send follow-up message")
	}
}

func isAdmin(i *discordgo.InteractionCreate) bool {
	return i.Member != nil && i.Member.Permissions&discordgo.PermissionAdministrator != 0
}

func (b *Bot) respondEphemeral(s *discordgo.Session, i *discordgo.InteractionCreate, content string) {
	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Content: content,
			Flags:   discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("Failed to send ephemeral response")
	}
}

// optionMap indexes interaction options by name.
func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	indexed := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, option := range options {
		indexed[option.Name] = option
	}
	return indexed
}

// targetChannelID resolves the channel option, defaulting to the channel the
// command was invoked in.
func targetChannelID(i *discordgo.InteractionCreate, opts map[string]*discordgo.ApplicationCommandInteractionDataOption) string {
	if option, ok := opts["channel"]; ok {
		return option.Value.(string)
	}
	return i.ChannelID
}

func (b *Bot) handleSetChannel(ctx context.Context, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) (string, error) {
	opts := optionMap(options)
	endpoint := opts["endpoint"].StringValue()
	if _, err := config.EndpointByName(endpoint); err != nil {
		return "", err
	}
	channelID := targetChannelID(i, opts)

	if err := b.store.BindChannel(ctx, endpoint, channelID); err != nil {
		return "", err
	}
	b.updateAutoStatus(ctx)
	return fmt.Sprintf("Endpoint `%s` is now mirrored into <#%s>.", endpoint, channelID), nil
}

func (b *Bot) handleUnsetChannel(ctx context.Context, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) (string, error) {
	opts := optionMap(options)
	endpoint := opts["endpoint"].StringValue()
	channelID := targetChannelID(i, opts)

	if err := b.store.UnbindChannel(ctx, endpoint, channelID); err != nil {
		return "", err
	}
	b.updateAutoStatus(ctx)
	return fmt.Sprintf("Endpoint `%s` is no longer mirrored into <#%s>.", endpoint, channelID), nil
}

func (b *Bot) handleShowChannels(ctx context.Context) (string, error) {
	bindings, err := b.store.ListBindings(ctx)
	if err != nil {
		return "", err
	}
	if len(bindings) == 0 {
		return "No endpoint is bound to a channel yet. Use `/set-channel` to add one.", nil
	}

	var sb strings.Builder
	sb.WriteString("**Endpoint bindings**\n")
	for _, binding := range bindings {
		state := "enabled"
		if !binding.Enabled {
			state = "disabled"
		}
		fmt.Fprintf(&sb, "- `%s` → <#%s> (%s)\n", binding.Endpoint, binding.ChannelID, state)
	}
	return sb.String(), nil
}

func (b *Bot) handleToggleEndpoint(ctx context.Context, options []*discordgo.ApplicationCommandInteractionDataOption, enabled bool) (string, error) {
	endpoint := optionMap(options)["endpoint"].StringValue()
	if _, err := config.EndpointByName(endpoint); err != nil {
		return "", err
	}
	if err := b.store.SetEndpointEnabled(ctx, endpoint, enabled); err != nil {
		return "", err
	}
	b.updateAutoStatus(ctx)
	if enabled {
		return fmt.Sprintf("Polling enabled for endpoint `%s`.", endpoint), nil
	}
	return fmt.Sprintf("Polling disabled for endpoint `%s`.", endpoint), nil
}

func (b *Bot) handleEnableAllEndpoints(ctx context.Context) (string, error) {
	for _, name := range config.EndpointNames() {
		if err := b.store.SetEndpointEnabled(ctx, name, true); err != nil {
			return "", err
		}
	}
	b.updateAutoStatus(ctx)
	return "Polling enabled for every endpoint.", nil
}

func (b *Bot) handleAutoStatus(ctx context.Context) (string, error) {
	b.mu.Lock()
	b.autoStatus = !b.autoStatus
	enabled := b.autoStatus
	b.mu.Unlock()

	b.updateAutoStatus(ctx)
	if enabled {
		return "Auto-status enabled: the presence now shows active bindings.", nil
	}
	return "Auto-status disabled.", nil
}

func (b *Bot) handleRefreshAll(ctx context.Context) (string, error) {
	if err := b.scheduler.RefreshAll(ctx); err != nil {
		return "", err
	}
	return "Refreshed every binding.", nil
}

func (b *Bot) handleRefresh(ctx context.Context, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) (string, error) {
	endpoint := optionMap(options)["endpoint"].StringValue()

	bindings, err := b.store.ListBindings(ctx)
	if err != nil {
		return "", err
	}
	var job *store.Job
	for idx := range bindings {
		if bindings[idx].Endpoint == endpoint && bindings[idx].ChannelID == i.ChannelID {
			job = &bindings[idx]
			break
		}
	}
	if job == nil {
		return fmt.Sprintf("Endpoint `%s` is not mirrored into this channel.", endpoint), nil
	}

	err = b.scheduler.RefreshJob(ctx, *job)
	var cooldownErr *scheduler.CooldownError
	switch {
	case errors.As(err, &cooldownErr):
		return fmt.Sprintf("Cooldown active, wait another %ds.", int(cooldownErr.Remaining.Seconds())+1), nil
	case errors.Is(err, scheduler.ErrJobBusy):
		return fmt.Sprintf("Endpoint `%s` is already being refreshed.", endpoint), nil
	case err != nil:
		return "", err
	}
	return fmt.Sprintf("Endpoint `%s` refreshed.", endpoint), nil
}

// parseQueryPairs splits a raw option string like "page=2 limit=5" (spaces
// or & between pairs) into query parameters.
func parseQueryPairs(raw string) (map[string]string, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ' ' || r == '&'
	})
	if len(fields) == 0 {
		return nil, nil
	}
	params := make(map[string]string, len(fields))
	for _, field := range fields {
		key, value, found := strings.Cut(field, "=")
		if !found || key == "" {
			return nil, fmt.Errorf("invalid query parameter %q, expected key=value", field)
		}
		params[key] = value
	}
	return params, nil
}

func (b *Bot) handleFetch(ctx context.Context, options []*discordgo.ApplicationCommandInteractionDataOption) (string, error) {
	opts := optionMap(options)
	endpoint := opts["endpoint"].StringValue()

	var params map[string]string
	if option, ok := opts["params"]; ok {
		parsed, err := parseQueryPairs(option.StringValue())
		if err != nil {
			return "", err
		}
		params = parsed
	}

	value, err := b.scheduler.FetchOnce(ctx, endpoint, params)
	var cooldownErr *scheduler.CooldownError
	switch {
	case errors.As(err, &cooldownErr):
		return fmt.Sprintf("Cooldown active, wait another %ds.", int(cooldownErr.Remaining.Seconds())+1), nil
	case err != nil:
		return "", err
	}
	return render.EndpointMessage(endpoint, value), nil
}

func (b *Bot) handleClear(ctx context.Context, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) (string, error) {
	opts := optionMap(options)

	scope := store.ClearScope{ChannelID: targetChannelID(i, opts)}
	if option, ok := opts["all"]; ok && option.BoolValue() {
		scope = store.ClearScope{}
	}

	removed, err := b.syncer.Clear(ctx, scope)
	if err != nil {
		return "", err
	}
	if scope.ChannelID == "" {
		return fmt.Sprintf("Cleared %d mirrored message(s) across all channels. Bindings are kept.", removed), nil
	}
	return fmt.Sprintf("Cleared %d mirrored message(s) in <#%s>. Bindings are kept.", removed, scope.ChannelID), nil
}

func (b *Bot) handleEndpoints(ctx context.Context) (string, error) {
	bindings, err := b.store.ListBindings(ctx)
	if err != nil {
		return "", err
	}
	bound := make(map[string]int)
	for _, binding := range bindings {
		if binding.Enabled {
			bound[binding.Endpoint]++
		}
	}

	var sb strings.Builder
	sb.WriteString("**Available endpoints**\n")
	for _, spec := range config.Endpoints() {
		fmt.Fprintf(&sb, "- `%s` (`%s` mode, %d active binding(s))\n", spec.Name, spec.ItemMode, bound[spec.Name])
	}
	return sb.String(), nil
}

func (b *Bot) handleShowConfig(ctx context.Context) (string, error) {
	bindings, err := b.store.ListBindings(ctx)
	if err != nil {
		return "", err
	}
	active := 0
	for _, binding := range bindings {
		if binding.Enabled {
			active++
		}
	}

	var sb strings.Builder
	sb.WriteString("**Runtime configuration**\n")
	fmt.Fprintf(&sb, "- API base URL: `%s`\n", b.client.BaseURL())
	fmt.Fprintf(&sb, "- Endpoints: %d in catalog\n", len(config.Endpoints()))
	fmt.Fprintf(&sb, "- Bindings: %d total, %d active\n", len(bindings), active)
	return sb.String(), nil
}

func (b *Bot) handleSetBaseURL(options []*discordgo.ApplicationCommandInteractionDataOption) (string, error) {
	baseURL := strings.TrimSpace(optionMap(options)["url"].StringValue())
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		return "", fmt.Errorf("base URL must start with http:// or https://")
	}
	b.client.SetBaseURL(baseURL)
	return fmt.Sprintf("API base URL set to `%s`.", b.client.BaseURL()), nil
}

func (b *Bot) handleReboot() (string, error) {
	b.requestReboot()
	return "Reboot requested, the bot will restart shortly.", nil
}

func (b *Bot) handleHelp() (string, error) {
	var sb strings.Builder
	sb.WriteString("**Commands**\n")
	for _, cmd := range commands {
		fmt.Fprintf(&sb, "- `/%s` — %s\n", cmd.Name, cmd.Description)
	}
	return sb.String(), nil
}
