package presence

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/TarumaeRadio/pkg/pipeline"
)

// statusUpdater is the part of a Discord session presence needs.
type statusUpdater interface {
	UpdateStatusComplex(usd discordgo.UpdateStatusData) (err error)
}

// PresenceManager shows the station being relayed, or server statistics when
// nothing is playing.
type PresenceManager struct {
	session statusUpdater
	guilds  func() int
	logger  pipeline.Logger

	mu       sync.Mutex
	stations map[string]string
	current  string
}

// NewPresenceManager creates a presence manager on an open Discord session.
func NewPresenceManager(s *discordgo.Session, logger pipeline.Logger) *PresenceManager {
	return newPresenceManager(s, func() int {
		s.State.RLock()
		defer s.State.RUnlock()
		return len(s.State.Guilds)
	}, logger)
}

func newPresenceManager(s statusUpdater, guilds func() int, logger pipeline.Logger) *PresenceManager {
	if logger == nil {
		logger = pipeline.NullLogger()
	}
	return &PresenceManager{
		session:  s,
		guilds:   guilds,
		logger:   logger.With(pipeline.String("component", "presence")),
		stations: make(map[string]string),
	}
}

// Playing records that guildID relays label and refreshes the presence.
func (pm *PresenceManager) Playing(guildID, label string) {
	pm.mu.Lock()
	pm.stations[guildID] = label
	pm.mu.Unlock()
	pm.Refresh()
}

// Stopped clears guildID and refreshes the presence.
func (pm *PresenceManager) Stopped(guildID string) {
	pm.mu.Lock()
	_, ok := pm.stations[guildID]
	delete(pm.stations, guildID)
	pm.mu.Unlock()
	if ok {
		pm.Refresh()
	}
}

// Refresh pushes the presence for the current set of stations. Unchanged
// presences are not resent.
func (pm *PresenceManager) Refresh() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	activity := pm.activityLocked()
	key := fmt.Sprintf("%d|%s|%s", activity.Type, activity.Name, activity.State)
	if key == pm.current {
		return
	}

	err := pm.session.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status:     "online",
		Activities: []*discordgo.Activity{activity},
	})
	if err != nil {
		pm.logger.Warn("Failed to update bot presence", pipeline.Error(err))
		return
	}
	pm.current = key
}

// Reset forgets the last pushed presence so the next Refresh resends it,
// for example after a gateway reconnect.
func (pm *PresenceManager) Reset() {
	pm.mu.Lock()
	pm.current = ""
	pm.mu.Unlock()
}

func (pm *PresenceManager) activityLocked() *discordgo.Activity {
	switch len(pm.stations) {
	case 0:
		servers := pm.guilds()
		return &discordgo.Activity{
			Name:  "radio",
			Type:  discordgo.ActivityTypeWatching,
			State: "in " + strconv.Itoa(servers) + " servers",
		}
	case 1:
		for _, label := range pm.stations {
			return &discordgo.Activity{Name: label, Type: discordgo.ActivityTypeListening}
		}
	}

	labels := make([]string, 0, len(pm.stations))
	for _, label := range pm.stations {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return &discordgo.Activity{
		Name:  "radio in " + strconv.Itoa(len(pm.stations)) + " servers",
		Type:  discordgo.ActivityTypeListening,
		State: labels[0],
	}
}
