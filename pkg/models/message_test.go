package models

import (
	"testing"
	"time"
)

func TestMessageType_Valid(t *testing.T) {
	tests := []struct {
		name string
		mt   MessageType
		want bool
	}{
		{"text is valid", MessageText, true},
		{"status_update is valid", MessageStatusUpdate, true},
		{"shutdown_request is valid", MessageShutdownRequest, true},
		{"shutdown_response is valid", MessageShutdownResponse, true},
		{"plan_submission is valid", MessagePlanSubmission, true},
		{"plan_approval is valid", MessagePlanApproval, true},
		{"task_assignment is valid", MessageTaskAssignment, true},
		{"broadcast is valid", MessageBroadcast, true},
		{"empty string is invalid", MessageType(""), false},
		{"unknown type is invalid", MessageType("unknown"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mt.Valid(); got != tt.want {
				t.Errorf("MessageType(%q).Valid() = %v, want %v", tt.mt, got, tt.want)
			}
		})
	}
}

func TestMessage_Fields(t *testing.T) {
	now := time.Now()

	msg := Message{
		ID:        "msg-1",
		From:      "agent-1",
		To:        BroadcastAgentID,
		Type:      MessageStatusUpdate,
		Content:   "starting task-42",
		Metadata:  map[string]string{"taskId": "task-42"},
		Timestamp: now,
	}

	if msg.From != "agent-1" {
		t.Errorf("Message.From = %q, want %q", msg.From, "agent-1")
	}
	if msg.To != BroadcastAgentID {
		t.Errorf("Message.To = %q, want %q", msg.To, BroadcastAgentID)
	}
	if msg.Type != MessageStatusUpdate {
		t.Errorf("Message.Type = %q, want %q", msg.Type, MessageStatusUpdate)
	}
	if msg.Metadata["taskId"] != "task-42" {
		t.Errorf("Message.Metadata[taskId] = %q, want %q", msg.Metadata["taskId"], "task-42")
	}
	if !msg.Timestamp.Equal(now) {
		t.Errorf("Message.Timestamp = %v, want %v", msg.Timestamp, now)
	}
}

func TestLeadAndBroadcastIDs_AreReservedAndDistinct(t *testing.T) {
	if LeadAgentID == BroadcastAgentID {
		t.Fatalf("LeadAgentID and BroadcastAgentID must be distinct, both are %q", LeadAgentID)
	}
	if LeadAgentID == "" || BroadcastAgentID == "" {
		t.Fatal("reserved agent IDs must not be empty")
	}
}
