package handlers

import (
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/TarumaeRadio/internal/commands"
)

func messageCreate(guildID string, author *discordgo.User, content string) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID:   guildID,
		ChannelID: "text1",
		Author:    author,
		Content:   content,
	}}
}

func TestMessageFromEvent(t *testing.T) {
	user := &discordgo.User{ID: "u1"}

	msg, ok := messageFromEvent("self", messageCreate("g1", user, "!play Radio R"))
	require.True(t, ok)
	assert.Equal(t, commands.Message{GuildID: "g1", ChannelID: "text1", AuthorID: "u1", Content: "!play Radio R"}, msg)

	_, ok = messageFromEvent("self", messageCreate("g1", &discordgo.User{ID: "self"}, "!play x"))
	assert.False(t, ok, "own messages")

	_, ok = messageFromEvent("self", messageCreate("g1", &discordgo.User{ID: "b", Bot: true}, "!play x"))
	assert.False(t, ok, "other bots")

	_, ok = messageFromEvent("self", messageCreate("", user, "!play x"))
	assert.False(t, ok, "direct messages")

	_, ok = messageFromEvent("self", &discordgo.MessageCreate{})
	assert.False(t, ok)
}

func TestMentions(t *testing.T) {
	m := messageCreate("g1", &discordgo.User{ID: "u1"}, "hey")
	m.Mentions = []*discordgo.User{{ID: "other"}, {ID: "self"}}

	assert.True(t, mentions(m, "self"))
	assert.False(t, mentions(m, "nobody"))
	assert.False(t, mentions(m, ""))
}

func componentInteraction(customID string, values []string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type:      discordgo.InteractionMessageComponent,
		GuildID:   "g1",
		ChannelID: "text1",
		Member:    &discordgo.Member{User: &discordgo.User{ID: "u1"}},
		Data: discordgo.MessageComponentInteractionData{
			CustomID:      customID,
			ComponentType: discordgo.SelectMenuComponent,
			Values:        values,
		},
	}}
}

func TestSelectionFromInteraction(t *testing.T) {
	sel, ok := selectionFromInteraction(componentInteraction(commands.StationSelectID, []string{"Radio R"}))
	require.True(t, ok)
	assert.Equal(t, selection{guildID: "g1", channelID: "text1", userID: "u1", value: "Radio R"}, sel)

	_, ok = selectionFromInteraction(componentInteraction("other_menu", []string{"Radio R"}))
	assert.False(t, ok)

	_, ok = selectionFromInteraction(componentInteraction(commands.StationSelectID, nil))
	assert.False(t, ok)

	dm := componentInteraction(commands.StationSelectID, []string{"Radio R"})
	dm.GuildID = ""
	_, ok = selectionFromInteraction(dm)
	assert.False(t, ok)

	bot := componentInteraction(commands.StationSelectID, []string{"Radio R"})
	bot.Member.User.Bot = true
	_, ok = selectionFromInteraction(bot)
	assert.False(t, ok)

	_, ok = selectionFromInteraction(&discordgo.InteractionCreate{Interaction: &discordgo.Interaction{
		Type: discordgo.InteractionApplicationCommand,
	}})
	assert.False(t, ok)
}
