package commands

import (
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// ShowHelpCommand lists the available commands
func (b *Bot) ShowHelpCommand(m Message) {
	p := b.prefix
	embed := &discordgo.MessageEmbed{
		Title:       "Tarumae Radio",
		Description: "Here are all the available commands for the bot:",
		Color:       colorOK,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Tarumae Radio | Created by latoulicious",
		},
		Fields: []*discordgo.MessageEmbedField{
			{
				Name: "Radio Commands",
				Value: strings.Join([]string{
					"• `" + p + "play <url|name>` / `" + p + "p` - Relay a stream URL, HLS playlist or saved station",
					"• `" + p + "stations` - Pick a station from a menu",
					"• `" + p + "nowplaying` / `" + p + "np` - Show what is being relayed",
					"• `" + p + "stop` - Stop and leave the voice channel",
				}, "\n"),
			},
			{
				Name: "Station List",
				Value: strings.Join([]string{
					"• `" + p + "list` - List all stations",
					"• `" + p + "add \"<name>\" <url>` - Save a station",
					"• `" + p + "remove <name>` - Delete a saved station",
				}, "\n"),
			},
			{
				Name: "ℹInformation Commands",
				Value: strings.Join([]string{
					"• `" + p + "about` - Show bot info, uptime, and stats",
					"• `" + p + "help` / `" + p + "h` - Show this help message",
				}, "\n"),
			},
			{
				Name:  "💡 Tips",
				Value: "• Join a voice channel **before** using `" + p + "play`",
			},
		},
	}

	b.replyEmbed(m.ChannelID, embed)
}
