package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"wifi-rtt-sync/internal/models"
	"wifi-rtt-sync/internal/mq/messages"
)

// AgentClient talks to the scan agent that owns the Wi-Fi hardware. It
// implements the three collaborator contracts of the workflow: cached
// agent status, synchronous scan (request/response with correlation ID)
// and asynchronous ranging (one outcome per request).
type AgentClient struct {
	client  *Client
	topics  *TopicManager
	agentID string
	logger  zerolog.Logger

	mu             sync.Mutex
	statuses       map[string]models.AgentStatus
	pendingScan    map[string]chan *models.ScanSnapshot
	pendingRanging map[string]chan models.RangingOutcome
}

func NewAgentClient(client *Client, topics *TopicManager, agentID string, logger zerolog.Logger) *AgentClient {
	return &AgentClient{
		client:         client,
		topics:         topics,
		agentID:        agentID,
		logger:         logger,
		statuses:       make(map[string]models.AgentStatus),
		pendingScan:    make(map[string]chan *models.ScanSnapshot),
		pendingRanging: make(map[string]chan models.RangingOutcome),
	}
}

// Start subscribes to the retained status topic of every agent and to
// the result topics of the configured agent.
func (a *AgentClient) Start() error {
	if err := a.client.Subscribe(a.topics.GetAgentStatusTopic(), a.handleStatus); err != nil {
		return fmt.Errorf("error subscribing to agent status topic: %w", err)
	}

	if err := a.client.Subscribe(a.topics.GetScanResultTopic(a.agentID), a.handleScanResult); err != nil {
		return fmt.Errorf("error subscribing to scan result topic: %w", err)
	}

	if err := a.client.Subscribe(a.topics.GetRangingResultTopic(a.agentID), a.handleRangingResult); err != nil {
		return fmt.Errorf("error subscribing to ranging result topic: %w", err)
	}

	return nil
}

// Status returns the last status the configured agent reported. An agent
// that has never reported is indistinguishable from one that denied all
// grants, so the caller treats the error like a denial.
func (a *AgentClient) Status(ctx context.Context) (*models.AgentStatus, error) {
	a.mu.Lock()
	status, ok := a.statuses[a.agentID]
	a.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("agent %s has not reported a status yet", a.agentID)
	}

	return &status, nil
}

// Scan requests one snapshot from the agent and blocks until the
// matching result arrives or ctx expires.
func (a *AgentClient) Scan(ctx context.Context) (*models.ScanSnapshot, error) {
	requestID := uuid.New().String()
	resultChan := make(chan *models.ScanSnapshot, 1)

	a.mu.Lock()
	a.pendingScan[requestID] = resultChan
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		delete(a.pendingScan, requestID)
		a.mu.Unlock()
	}()

	request := messages.ScanRequestMessage{
		RequestID: requestID,
		Source:    "SYNC",
	}
	if err := a.client.PublishJsonTransient(a.topics.GetScanRequestTopic(a.agentID), request); err != nil {
		return nil, fmt.Errorf("error publishing scan request: %w", err)
	}

	a.logger.Debug().
		Str("agent_id", a.agentID).
		Str("request_id", requestID).
		Msg("Scan request sent")

	select {
	case snapshot := <-resultChan:
		return snapshot, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("scan request %s timed out: %w", requestID, ctx.Err())
	}
}

// Range issues one ranging request for the given BSSIDs. The returned
// channel delivers at most one outcome. When ctx ends before the agent
// answers, the pending request is dropped and a late answer is ignored.
func (a *AgentClient) Range(ctx context.Context, bssids []string) (<-chan models.RangingOutcome, error) {
	if len(bssids) == 0 {
		return nil, fmt.Errorf("ranging request needs at least one BSSID")
	}

	requestID := uuid.New().String()
	outcomeChan := make(chan models.RangingOutcome, 1)

	a.mu.Lock()
	a.pendingRanging[requestID] = outcomeChan
	a.mu.Unlock()

	request := messages.RangingRequestMessage{
		RequestID: requestID,
		BSSIDs:    bssids,
		Source:    "SYNC",
	}
	if err := a.client.PublishJsonTransient(a.topics.GetRangingRequestTopic(a.agentID), request); err != nil {
		a.takeRanging(requestID)
		return nil, fmt.Errorf("error publishing ranging request: %w", err)
	}

	a.logger.Debug().
		Str("agent_id", a.agentID).
		Str("request_id", requestID).
		Int("bssids", len(bssids)).
		Msg("Ranging request sent")

	go func() {
		<-ctx.Done()
		a.takeRanging(requestID)
	}()

	return outcomeChan, nil
}

func (a *AgentClient) handleStatus(client mqtt.Client, msg mqtt.Message) {
	topic := msg.Topic()
	payload := msg.Payload()

	if len(payload) == 0 {
		return
	}

	agentID, err := a.topics.ExtractAgentId(topic, AgentStatusTopicTemplate)
	if err != nil {
		a.logger.Error().Err(err).Str("topic", topic).Msg("Could not extract agent ID from status topic")
		return
	}

	var statusMessage messages.AgentStatusMessage
	if err := json.Unmarshal(payload, &statusMessage); err != nil {
		a.logger.Error().Err(err).
			Str("topic", topic).
			Str("payload", string(payload)).
			Msg("Could not parse agent status")
		return
	}

	a.mu.Lock()
	a.statuses[agentID] = statusMessage.Data
	a.mu.Unlock()

	a.logger.Debug().
		Str("agent_id", agentID).
		Str("platform", string(statusMessage.Data.Platform)).
		Msg("Agent status updated")
}

func (a *AgentClient) handleScanResult(client mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	if len(payload) == 0 {
		return
	}

	var result messages.ScanResultMessage
	if err := json.Unmarshal(payload, &result); err != nil {
		a.logger.Error().Err(err).
			Str("topic", msg.Topic()).
			Str("payload", string(payload)).
			Msg("Could not parse scan result")
		return
	}

	a.mu.Lock()
	resultChan, ok := a.pendingScan[result.RequestID]
	if ok {
		delete(a.pendingScan, result.RequestID)
	}
	a.mu.Unlock()

	if !ok {
		a.logger.Debug().
			Str("request_id", result.RequestID).
			Msg("Scan result for unknown request, dropping")
		return
	}

	accessPoints := result.AccessPoints
	if accessPoints == nil {
		accessPoints = []models.AccessPoint{}
	}

	resultChan <- &models.ScanSnapshot{
		RadioEnabled: result.RadioEnabled,
		RTTAvailable: result.RTTAvailable,
		AccessPoints: accessPoints,
	}
}

func (a *AgentClient) handleRangingResult(client mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	if len(payload) == 0 {
		return
	}

	var result messages.RangingResultMessage
	if err := json.Unmarshal(payload, &result); err != nil {
		a.logger.Error().Err(err).
			Str("topic", msg.Topic()).
			Str("payload", string(payload)).
			Msg("Could not parse ranging result")
		return
	}

	outcomeChan, ok := a.takeRanging(result.RequestID)
	if !ok {
		a.logger.Debug().
			Str("request_id", result.RequestID).
			Msg("Ranging result for unknown request, dropping")
		return
	}

	outcome := models.RangingOutcome{}
	if result.FailureCode != nil {
		outcome.Failure = &models.RangingFailure{Code: *result.FailureCode}
	} else {
		outcome.Results = result.Results
	}

	outcomeChan <- outcome
}

func (a *AgentClient) takeRanging(requestID string) (chan models.RangingOutcome, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	outcomeChan, ok := a.pendingRanging[requestID]
	if ok {
		delete(a.pendingRanging, requestID)
	}
	return outcomeChan, ok
}
