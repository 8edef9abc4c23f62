package handlers

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/TarumaeRadio/internal/commands"
)

// NewMessageHandler routes guild chat messages to the bot's commands.
func NewMessageHandler(bot *commands.Bot) func(s *discordgo.Session, m *discordgo.MessageCreate) {
	return func(s *discordgo.Session, m *discordgo.MessageCreate) {
		selfID := ""
		if s.State != nil && s.State.User != nil {
			selfID = s.State.User.ID
		}

		msg, ok := messageFromEvent(selfID, m)
		if !ok {
			return
		}

		// Check if the bot is mentioned
		if mentions(m, selfID) {
			s.ChannelMessageSend(m.ChannelID, "📻 I relay internet radio into voice channels. Try "+bot.Prefix()+"stations or "+bot.Prefix()+"help.")
			return
		}

		bot.Dispatch(context.Background(), msg)
	}
}

// messageFromEvent drops messages the bot must not answer: its own, other
// bots' and direct messages.
func messageFromEvent(selfID string, m *discordgo.MessageCreate) (commands.Message, bool) {
	if m == nil || m.Message == nil || m.Author == nil {
		return commands.Message{}, false
	}
	if m.Author.ID == selfID || m.Author.Bot || m.GuildID == "" {
		return commands.Message{}, false
	}
	return commands.Message{
		GuildID:   m.GuildID,
		ChannelID: m.ChannelID,
		AuthorID:  m.Author.ID,
		Content:   m.Content,
	}, true
}

func mentions(m *discordgo.MessageCreate, selfID string) bool {
	if selfID == "" {
		return false
	}
	for _, mention := range m.Mentions {
		if mention.ID == selfID {
			return true
		}
	}
	return false
}
