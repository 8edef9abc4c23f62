package handlers

import (
	"context"
	"log"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/TarumaeRadio/internal/commands"
)

// selection is a pick from the stations menu.
type selection struct {
	guildID   string
	channelID string
	userID    string
	value     string
}

// NewInteractionHandler plays the station picked in the stations menu.
func NewInteractionHandler(bot *commands.Bot) func(s *discordgo.Session, i *discordgo.InteractionCreate) {
	return func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		sel, ok := selectionFromInteraction(i)
		if !ok {
			return
		}

		// Joining voice can take longer than the interaction deadline.
		err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		})
		if err != nil {
			log.Printf("Error acknowledging interaction: %v", err)
			return
		}

		response := bot.SelectStation(context.Background(), sel.guildID, sel.channelID, sel.userID, sel.value)
		if _, err := s.InteractionResponseEdit(i.Interaction, &discordgo.WebhookEdit{
			Content: &response,
		}); err != nil {
			log.Printf("Error sending interaction response: %v", err)
		}
	}
}

func selectionFromInteraction(i *discordgo.InteractionCreate) (selection, bool) {
	if i == nil || i.Interaction == nil || i.Type != discordgo.InteractionMessageComponent {
		return selection{}, false
	}
	if i.GuildID == "" {
		return selection{}, false
	}

	data := i.MessageComponentData()
	if data.CustomID != commands.StationSelectID || len(data.Values) == 0 {
		return selection{}, false
	}

	var user *discordgo.User
	switch {
	case i.Member != nil && i.Member.User != nil:
		user = i.Member.User
	case i.User != nil:
		user = i.User
	default:
		return selection{}, false
	}
	if user.Bot {
		return selection{}, false
	}

	return selection{
		guildID:   i.GuildID,
		channelID: i.ChannelID,
		userID:    user.ID,
		value:     data.Values[0],
	}, true
}
