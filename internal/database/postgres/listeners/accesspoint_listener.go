package listeners

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"wifi-rtt-sync/internal/interfaces"
	"wifi-rtt-sync/internal/mq"
)

// AccessPointTableListener republishes registry changes as MQTT events,
// so dashboards tracking the known-access-point inventory do not need a
// database connection.
type AccessPointTableListener struct {
	*BaseTableListener
	logger       zerolog.Logger
	mqttClient   interfaces.IMqClient
	topicManager *mq.TopicManager
}

func NewAccessPointTableListener(
	logger zerolog.Logger,
	mqttClient interfaces.IMqClient,
	topicManager *mq.TopicManager,
) *AccessPointTableListener {
	return &AccessPointTableListener{
		BaseTableListener: NewBaseTableListener("known_access_points"),
		logger:            logger,
		mqttClient:        mqttClient,
		topicManager:      topicManager,
	}
}

func (l *AccessPointTableListener) HandleChange(ctx context.Context, event *interfaces.TableChangeEvent) error {
	l.logger.Info().
		Str("operation", string(event.Operation)).
		Str("table", event.Table).
		Time("timestamp", event.Timestamp).
		Msg("Access point registry change detected")

	switch event.Operation {
	case interfaces.InsertOperation:
		return l.handleInsert(ctx, event)
	case interfaces.UpdateOperation:
		return l.handleUpdate(ctx, event)
	case interfaces.DeleteOperation:
		return l.handleDelete(ctx, event)
	default:
		return fmt.Errorf("unknown operation: %s", event.Operation)
	}
}

func (l *AccessPointTableListener) handleInsert(ctx context.Context, event *interfaces.TableChangeEvent) error {
	topic := l.topicManager.GetBaseTopic() + "/events/accesspoints/created"
	if err := l.mqttClient.PublishJson(topic, map[string]interface{}{
		"event":        "accesspoint_created",
		"access_point": event.NewData,
		"timestamp":    event.Timestamp,
	}); err != nil {
		l.logger.Error().Err(err).Msg("Failed to publish access point creation event")
	}

	return nil
}

func (l *AccessPointTableListener) handleUpdate(ctx context.Context, event *interfaces.TableChangeEvent) error {
	topic := l.topicManager.GetBaseTopic() + "/events/accesspoints/updated"
	if err := l.mqttClient.PublishJson(topic, map[string]interface{}{
		"event":     "accesspoint_updated",
		"old_data":  event.OldData,
		"new_data":  event.NewData,
		"timestamp": event.Timestamp,
	}); err != nil {
		l.logger.Error().Err(err).Msg("Failed to publish access point update event")
	}

	return nil
}

func (l *AccessPointTableListener) handleDelete(ctx context.Context, event *interfaces.TableChangeEvent) error {
	topic := l.topicManager.GetBaseTopic() + "/events/accesspoints/deleted"
	if err := l.mqttClient.PublishJson(topic, map[string]interface{}{
		"event":        "accesspoint_deleted",
		"deleted_data": event.OldData,
		"timestamp":    event.Timestamp,
	}); err != nil {
		l.logger.Error().Err(err).Msg("Failed to publish access point deletion event")
	}

	return nil
}
