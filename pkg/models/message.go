package models

import "time"

// MessageType identifies the kind of inter-agent message.
type MessageType string

const (
	MessageText              MessageType = "text"
	MessageStatusUpdate      MessageType = "status_update"
	MessageShutdownRequest   MessageType = "shutdown_request"
	MessageShutdownResponse  MessageType = "shutdown_response"
	MessagePlanSubmission    MessageType = "plan_submission"
	MessagePlanApproval      MessageType = "plan_approval"
	MessageTaskAssignment    MessageType = "task_assignment"
	MessageBroadcast         MessageType = "broadcast"
)

// Valid returns true if the message type is a known value.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageStatusUpdate, MessageShutdownRequest, MessageShutdownResponse,
		MessagePlanSubmission, MessagePlanApproval, MessageTaskAssignment, MessageBroadcast:
		return true
	default:
		return false
	}
}

// LeadAgentID is the reserved inbox id for the orchestrator.
const LeadAgentID = "lead"

// BroadcastAgentID is the reserved "to" value meaning all known agents.
const BroadcastAgentID = "*"

// Message is one append-only inbox entry.
type Message struct {
	ID        string            `json:"messageId"`
	From      string            `json:"fromAgentId"`
	To        string            `json:"toAgentId"`
	Type      MessageType       `json:"type"`
	Content   string            `json:"content"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}
