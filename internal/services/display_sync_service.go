package services

import (
	"github.com/rs/zerolog"

	"wifi-rtt-sync/internal/interfaces"
	"wifi-rtt-sync/internal/models"
	"wifi-rtt-sync/internal/mq"
	"wifi-rtt-sync/internal/mq/messages"
	"wifi-rtt-sync/internal/state"
)

// DisplaySyncService mirrors every display publish to the retained MQTT
// display topic, so UI clients that attach late still get the current
// list.
type DisplaySyncService struct {
	client       interfaces.IMqClient
	topicManager *mq.TopicManager
	display      *state.DisplayState
	logger       zerolog.Logger

	stop func()
}

func NewDisplaySyncService(client interfaces.IMqClient, topicManager *mq.TopicManager, display *state.DisplayState, logger zerolog.Logger) *DisplaySyncService {
	return &DisplaySyncService{
		client:       client,
		topicManager: topicManager,
		display:      display,
		logger:       logger,
	}
}

func (s *DisplaySyncService) Start() {
	updates, cancel := s.display.Subscribe()
	s.stop = cancel

	go func() {
		for entries := range updates {
			s.syncToMqtt(entries)
		}
	}()

	s.logger.Info().Msg("Display sync started")
}

func (s *DisplaySyncService) Stop() {
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
}

func (s *DisplaySyncService) syncToMqtt(entries []models.DisplayEntry) {
	topic := s.topicManager.GetDisplayTopic()

	message := messages.DisplayMessage{
		Entries: entries,
		Source:  "SYNC",
	}

	if err := s.client.PublishJson(topic, message); err != nil {
		s.logger.Error().Err(err).
			Str("topic", topic).
			Msg("Failed to publish display state to MQTT")
		return
	}

	s.logger.Debug().
		Int("entries", len(entries)).
		Msg("Display state synced to MQTT")
}
