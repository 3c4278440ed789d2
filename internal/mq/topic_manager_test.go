package mq

import "testing"

func TestAgentTopics(t *testing.T) {
	m := NewTopicManager("wifirtt", testLogger())

	if got := m.GetScanRequestTopic("kiosk-1"); got != "wifirtt/v1/agents/kiosk-1/scan/request" {
		t.Errorf("scan request topic = %s", got)
	}
	if got := m.GetRangingResultTopic("kiosk-1"); got != "wifirtt/v1/agents/kiosk-1/ranging/result" {
		t.Errorf("ranging result topic = %s", got)
	}
	if got := m.GetDisplayTopic(); got != "wifirtt/v1/display" {
		t.Errorf("display topic = %s", got)
	}
	if got := m.GetAgentStatusTopic(); got != "wifirtt/v1/agents/+/status" {
		t.Errorf("agent status topic = %s", got)
	}
}

func TestGetBaseTopicStripsTrailingSlash(t *testing.T) {
	if got := NewTopicManager("wifirtt", testLogger()).GetBaseTopic(); got != "wifirtt" {
		t.Errorf("base topic = %s, want wifirtt", got)
	}
	if got := NewTopicManager("wifirtt/", testLogger()).GetBaseTopic(); got != "wifirtt" {
		t.Errorf("base topic = %s, want wifirtt", got)
	}
}

func TestExtractAgentId(t *testing.T) {
	m := NewTopicManager("wifirtt", testLogger())

	id, err := m.ExtractAgentId("wifirtt/v1/agents/kiosk-1/status", AgentStatusTopicTemplate)
	if err != nil {
		t.Fatalf("ExtractAgentId failed: %v", err)
	}
	if id != "kiosk-1" {
		t.Errorf("agent id = %s, want kiosk-1", id)
	}

	if _, err := m.ExtractAgentId("otherbase/v1/agents/kiosk-1/status", AgentStatusTopicTemplate); err == nil {
		t.Error("expected error for topic outside base")
	}

	if _, err := m.ExtractAgentId("wifirtt/v1/agents/kiosk-1/scan/result", AgentStatusTopicTemplate); err == nil {
		t.Error("expected error for non-status topic")
	}
}
