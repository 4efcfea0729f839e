package bot

import (
	"context"
	"errors"
	"net/http"

	"github.com/alpinn/mirrorbot/internal/chat"
	"github.com/bwmarrin/discordgo"
)

// DiscordSurface implements chat.Surface on a discordgo session.
type DiscordSurface struct {
	session *discordgo.Session
}

// NewDiscordSurface wraps a session as a chat surface.
func NewDiscordSurface(session *discordgo.Session) *DiscordSurface {
	return &DiscordSurface{session: session}
}

// Post sends a new channel message and returns its ID.
func (d *DiscordSurface) Post(ctx context.Context, channelID string, msg chat.Message) (string, error) {
	send := &discordgo.MessageSend{Content: msg.Content}
	if msg.ImageURL != "" {
		send.Embeds = []*discordgo.MessageEmbed{imageEmbed(msg.ImageURL)}
	}
	created, err := d.session.ChannelMessageSendComplex(channelID, send, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapDiscordError(err)
	}
	return created.ID, nil
}

// Edit replaces an existing message's content and image embed.
func (d *DiscordSurface) Edit(ctx context.Context, channelID, messageID string, msg chat.Message) error {
	edit := discordgo.NewMessageEdit(channelID, messageID).SetContent(msg.Content)
	embeds := []*discordgo.MessageEmbed{}
	if msg.ImageURL != "" {
		embeds = append(embeds, imageEmbed(msg.ImageURL))
	}
	edit.SetEmbeds(embeds)

	_, err := d.session.ChannelMessageEditComplex(edit, discordgo.WithContext(ctx))
	return mapDiscordError(err)
}

// Delete removes a message.
func (d *DiscordSurface) Delete(ctx context.Context, channelID, messageID string) error {
	return mapDiscordError(d.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

func imageEmbed(imageURL string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Image: &discordgo.MessageEmbedImage{URL: imageURL},
	}
}

// mapDiscordError translates REST failures for vanished messages into the
// engine's sentinel so reconciliation can recreate them.
func mapDiscordError(err error) error {
	if err == nil {
		return nil
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil && restErr.Message.Code == discordgo.ErrCodeUnknownMessage {
			return chat.ErrMessageNotFound
		}
		if restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
			return chat.ErrMessageNotFound
		}
	}
	return err
}
