package gateway

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
)

type discordSender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// DiscordGateway posts run summaries to a channel through the REST API.
type DiscordGateway struct {
	Session   *discordgo.Session
	ChannelID string

	sender discordSender
}

func NewDiscordGateway(token, channelID string) (*DiscordGateway, error) {
	if channelID == "" {
		return nil, fmt.Errorf("discord channel ID is required")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	return &DiscordGateway{Session: s, ChannelID: channelID, sender: s}, nil
}

func (d *DiscordGateway) Name() string {
	return "discord"
}

// Discord rejects messages over 2000 characters.
const discordMaxMessage = 2000

func (d *DiscordGateway) Notify(ctx context.Context, text string) error {
	if len(text) > discordMaxMessage {
		text = text[:discordMaxMessage-3] + "..."
	}
	_, err := d.sender.ChannelMessageSend(d.ChannelID, text, discordgo.WithContext(ctx))
	return err
}
