package commands

// StopCommand stops the relay and leaves the voice channel.
func (b *Bot) StopCommand(m Message) {
	b.forget(m.GuildID)
	b.presence.Stopped(m.GuildID)

	if b.sessions.Stop(m.GuildID) {
		b.reply(m.ChannelID, "🛑 Stopped.")
		return
	}
	b.reply(m.ChannelID, "ℹ️ Not in a voice channel.")
}
