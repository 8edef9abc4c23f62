package commands

import (
	"fmt"
	"runtime"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/TarumaeRadio/pkg/supervisor"
)

// AboutCommand displays bot information including uptime, memory usage and
// relay counts
func (b *Bot) AboutCommand(m Message) {
	uptimeStr := formatUptime(time.Since(b.startedAt))

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	memoryUsage := fmt.Sprintf("%.2f MB", float64(memStats.Alloc)/1024/1024)

	audible := 0
	sessions := b.sessions.Sessions()
	for _, st := range sessions {
		if st.State == supervisor.StateAudible {
			audible++
		}
	}

	embed := &discordgo.MessageEmbed{
		Title:     "Bot Information",
		Color:     colorOK,
		Timestamp: time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Created by latoulicious",
		},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Uptime", Value: uptimeStr, Inline: true},
			{Name: "Memory Usage", Value: memoryUsage, Inline: true},
			{Name: "Go Version", Value: runtime.Version(), Inline: true},
			{Name: "Platform", Value: fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH), Inline: true},
			{Name: "Sessions", Value: fmt.Sprintf("%d (%d audible)", len(sessions), audible), Inline: true},
			{Name: "Output Codec", Value: b.codec.String(), Inline: true},
		},
	}

	b.replyEmbed(m.ChannelID, embed)
}

// formatUptime formats the uptime duration into a human-readable string
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	} else if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}
