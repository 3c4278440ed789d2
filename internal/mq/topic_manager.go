package mq

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

type TopicManager struct {
	BaseTopic string
	logger    zerolog.Logger
}

func NewTopicManager(baseTopic string, logger zerolog.Logger) *TopicManager {
	return &TopicManager{
		BaseTopic: baseTopic,
		logger:    logger,
	}
}

const (
	AgentStatusTopicTemplate    = "%s/v1/agents/+/status"
	ScanRequestTopicTemplate    = "%s/v1/agents/+/scan/request"
	ScanResultTopicTemplate     = "%s/v1/agents/+/scan/result"
	RangingRequestTopicTemplate = "%s/v1/agents/+/ranging/request"
	RangingResultTopicTemplate  = "%s/v1/agents/+/ranging/result"
	DisplayTopicTemplate        = "%s/v1/display"
	DisplayTriggerTopicTemplate = "%s/v1/display/trigger"
)

func (m *TopicManager) GetAgentStatusTopic() string {
	return fmt.Sprintf(AgentStatusTopicTemplate, m.BaseTopic)
}

func (m *TopicManager) GetScanRequestTopic(agentID string) string {
	return m.forAgent(ScanRequestTopicTemplate, agentID)
}

func (m *TopicManager) GetScanResultTopic(agentID string) string {
	return m.forAgent(ScanResultTopicTemplate, agentID)
}

func (m *TopicManager) GetRangingRequestTopic(agentID string) string {
	return m.forAgent(RangingRequestTopicTemplate, agentID)
}

func (m *TopicManager) GetRangingResultTopic(agentID string) string {
	return m.forAgent(RangingResultTopicTemplate, agentID)
}

func (m *TopicManager) GetDisplayTopic() string {
	return fmt.Sprintf(DisplayTopicTemplate, m.BaseTopic)
}

func (m *TopicManager) GetDisplayTriggerTopic() string {
	return fmt.Sprintf(DisplayTriggerTopicTemplate, m.BaseTopic)
}

func (m *TopicManager) forAgent(template, agentID string) string {
	return strings.Replace(fmt.Sprintf(template, m.BaseTopic), "+", agentID, 1)
}

func (m *TopicManager) buildTopicRegex(template string) *regexp.Regexp {
	pattern := strings.ReplaceAll(template, "%s", m.BaseTopic)
	pattern = strings.ReplaceAll(pattern, "+", "([^/]+)")
	pattern = "^" + pattern + "$"

	return regexp.MustCompile(pattern)
}

func (m *TopicManager) ExtractIdFromTopic(topic, template string) (string, error) {
	regex := m.buildTopicRegex(template)
	matches := regex.FindStringSubmatch(topic)

	if len(matches) < 2 {
		return "", fmt.Errorf("could not extract ID from topic: %s", topic)
	}

	return matches[1], nil
}

func (m *TopicManager) ExtractAgentId(topic, template string) (string, error) {
	return m.ExtractIdFromTopic(topic, template)
}

func (m *TopicManager) GetBaseTopic() string {
	if strings.HasSuffix(m.BaseTopic, "/") {
		return m.BaseTopic[:len(m.BaseTopic)-1]
	}
	return m.BaseTopic
}
