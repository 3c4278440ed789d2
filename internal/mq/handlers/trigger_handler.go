package handlers

import (
	"context"
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"wifi-rtt-sync/internal/mq"
	"wifi-rtt-sync/internal/observability"
	"wifi-rtt-sync/internal/services"
)

// TriggerHandler turns messages on the display trigger topic into scan
// cycles. A trigger arriving while a cycle is active is dropped, the
// single-cycle invariant is owned by the scan service.
type TriggerHandler struct {
	scanService  *services.ScanService
	collector    *observability.Collector
	logger       zerolog.Logger
	handlerTopic string
	topicManager *mq.TopicManager
}

func NewTriggerHandler(topicManager *mq.TopicManager, scanService *services.ScanService, collector *observability.Collector, logger zerolog.Logger) *TriggerHandler {
	return &TriggerHandler{
		scanService:  scanService,
		collector:    collector,
		logger:       logger,
		topicManager: topicManager,
		handlerTopic: topicManager.GetDisplayTriggerTopic(),
	}
}

func (h *TriggerHandler) HandleMessage(client mqtt.Client, msg mqtt.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	h.logger.Debug().
		Str("topic", msg.Topic()).
		Msg("Display trigger received")

	err := h.scanService.Trigger(ctx)
	if errors.Is(err, services.ErrCycleActive) {
		h.collector.ObserveTriggerRejected()
		h.logger.Info().Msg("Trigger rejected, scan cycle already active")
		return
	}
	if err != nil {
		h.logger.Error().Err(err).Msg("Error running scan cycle")
		return
	}
}
