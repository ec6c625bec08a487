package mission

import "fmt"

// AgentStatus is the lifecycle state of an agent. Any status may follow any other.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "IDLE"
	AgentWorking AgentStatus = "WORKING"
	AgentWaiting AgentStatus = "WAITING"
	AgentError   AgentStatus = "ERROR"
	AgentOffline AgentStatus = "OFFLINE"
)

// AgentStatuses lists every agent status in declaration order.
var AgentStatuses = []AgentStatus{AgentIdle, AgentWorking, AgentWaiting, AgentError, AgentOffline}

// ParseAgentStatus returns the status for its raw value.
func ParseAgentStatus(s string) (AgentStatus, error) {
	switch st := AgentStatus(s); st {
	case AgentIdle, AgentWorking, AgentWaiting, AgentError, AgentOffline:
		return st, nil
	}
	return "", fmt.Errorf("unknown agent status %q", s)
}

// UnmarshalText rejects unknown raw values.
func (s *AgentStatus) UnmarshalText(b []byte) error {
	v, err := ParseAgentStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s AgentStatus) DisplayName() string {
	switch s {
	case AgentIdle:
		return "Idle"
	case AgentWorking:
		return "Working"
	case AgentWaiting:
		return "Waiting"
	case AgentError:
		return "Error"
	case AgentOffline:
		return "Offline"
	}
	panic(unknownEnum("agent status", string(s)))
}

// Color is the hex display color for the status.
func (s AgentStatus) Color() string {
	switch s {
	case AgentIdle:
		return "#6B7280"
	case AgentWorking:
		return "#10B981"
	case AgentWaiting:
		return "#F59E0B"
	case AgentError:
		return "#EF4444"
	case AgentOffline:
		return "#374151"
	}
	panic(unknownEnum("agent status", string(s)))
}

func (s AgentStatus) Icon() string {
	switch s {
	case AgentIdle:
		return "circle"
	case AgentWorking:
		return "circle.fill"
	case AgentWaiting:
		return "clock"
	case AgentError:
		return "exclamationmark.triangle"
	case AgentOffline:
		return "moon.fill"
	}
	panic(unknownEnum("agent status", string(s)))
}

// TaskStatus is a stage of the task pipeline. The order of TaskStatuses is
// informational only; MoveTo accepts any status.
type TaskStatus string

const (
	TaskPlanning   TaskStatus = "PLANNING"
	TaskInbox      TaskStatus = "INBOX"
	TaskAssigned   TaskStatus = "ASSIGNED"
	TaskInProgress TaskStatus = "IN_PROGRESS"
	TaskTesting    TaskStatus = "TESTING"
	TaskReview     TaskStatus = "REVIEW"
	TaskDone       TaskStatus = "DONE"
)

// TaskStatuses lists the pipeline in order.
var TaskStatuses = []TaskStatus{TaskPlanning, TaskInbox, TaskAssigned, TaskInProgress, TaskTesting, TaskReview, TaskDone}

func ParseTaskStatus(s string) (TaskStatus, error) {
	switch st := TaskStatus(s); st {
	case TaskPlanning, TaskInbox, TaskAssigned, TaskInProgress, TaskTesting, TaskReview, TaskDone:
		return st, nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

func (s *TaskStatus) UnmarshalText(b []byte) error {
	v, err := ParseTaskStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s TaskStatus) DisplayName() string {
	switch s {
	case TaskPlanning:
		return "Planning"
	case TaskInbox:
		return "Inbox"
	case TaskAssigned:
		return "Assigned"
	case TaskInProgress:
		return "In Progress"
	case TaskTesting:
		return "Testing"
	case TaskReview:
		return "Review"
	case TaskDone:
		return "Done"
	}
	panic(unknownEnum("task status", string(s)))
}

func (s TaskStatus) Color() string {
	switch s {
	case TaskPlanning:
		return "#9333EA"
	case TaskInbox:
		return "#3B82F6"
	case TaskAssigned:
		return "#F59E0B"
	case TaskInProgress:
		return "#10B981"
	case TaskTesting:
		return "#F97316"
	case TaskReview:
		return "#8B5CF6"
	case TaskDone:
		return "#6B7280"
	}
	panic(unknownEnum("task status", string(s)))
}

func (s TaskStatus) Icon() string {
	switch s {
	case TaskPlanning:
		return "brain"
	case TaskInbox:
		return "tray"
	case TaskAssigned:
		return "person.badge.plus"
	case TaskInProgress:
		return "gearshape.2"
	case TaskTesting:
		return "checkmark.seal"
	case TaskReview:
		return "eye"
	case TaskDone:
		return "checkmark.circle.fill"
	}
	panic(unknownEnum("task status", string(s)))
}

// TaskPriority orders tasks for humans; the model does not act on it.
type TaskPriority string

const (
	PriorityLow    TaskPriority = "LOW"
	PriorityMedium TaskPriority = "MEDIUM"
	PriorityHigh   TaskPriority = "HIGH"
	PriorityUrgent TaskPriority = "URGENT"
)

var TaskPriorities = []TaskPriority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

func ParseTaskPriority(s string) (TaskPriority, error) {
	switch p := TaskPriority(s); p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return p, nil
	}
	return "", fmt.Errorf("unknown task priority %q", s)
}

func (p *TaskPriority) UnmarshalText(b []byte) error {
	v, err := ParseTaskPriority(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p TaskPriority) DisplayName() string {
	switch p {
	case PriorityLow:
		return "Low"
	case PriorityMedium:
		return "Medium"
	case PriorityHigh:
		return "High"
	case PriorityUrgent:
		return "Urgent"
	}
	panic(unknownEnum("task priority", string(p)))
}

func (p TaskPriority) Icon() string {
	switch p {
	case PriorityLow:
		return "arrow.down.circle"
	case PriorityMedium:
		return "minus.circle"
	case PriorityHigh:
		return "arrow.up.circle"
	case PriorityUrgent:
		return "exclamationmark.triangle.fill"
	}
	panic(unknownEnum("task priority", string(p)))
}

func (p TaskPriority) Color() string {
	switch p {
	case PriorityLow:
		return "#6B7280"
	case PriorityMedium:
		return "#3B82F6"
	case PriorityHigh:
		return "#F59E0B"
	case PriorityUrgent:
		return "#EF4444"
	}
	panic(unknownEnum("task priority", string(p)))
}

// DeliverableType classifies a deliverable's content.
type DeliverableType string

const (
	DeliverableDocument DeliverableType = "DOCUMENT"
	DeliverableCode     DeliverableType = "CODE"
	DeliverableReport   DeliverableType = "REPORT"
	DeliverableData     DeliverableType = "DATA"
	DeliverableImage    DeliverableType = "IMAGE"
	DeliverableOther    DeliverableType = "OTHER"
)

var DeliverableTypes = []DeliverableType{DeliverableDocument, DeliverableCode, DeliverableReport, DeliverableData, DeliverableImage, DeliverableOther}

func ParseDeliverableType(s string) (DeliverableType, error) {
	switch d := DeliverableType(s); d {
	case DeliverableDocument, DeliverableCode, DeliverableReport, DeliverableData, DeliverableImage, DeliverableOther:
		return d, nil
	}
	return "", fmt.Errorf("unknown deliverable type %q", s)
}

func (d *DeliverableType) UnmarshalText(b []byte) error {
	v, err := ParseDeliverableType(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d DeliverableType) Icon() string {
	switch d {
	case DeliverableDocument:
		return "doc.text"
	case DeliverableCode:
		return "chevron.left.forwardslash.chevron.right"
	case DeliverableReport:
		return "chart.bar.doc.horizontal"
	case DeliverableData:
		return "tablecells"
	case DeliverableImage:
		return "photo"
	case DeliverableOther:
		return "paperclip"
	}
	panic(unknownEnum("deliverable type", string(d)))
}

// MessageType classifies an inter-agent message.
type MessageType string

const (
	MessageCommunication MessageType = "COMMUNICATION"
	MessageTaskClaim     MessageType = "TASK_CLAIM"
	MessageTaskHandoff   MessageType = "TASK_HANDOFF"
	MessageAgreement     MessageType = "AGREEMENT"
	MessageRefutation    MessageType = "REFUTATION"
	MessagePraise        MessageType = "PRAISE"
	MessageQuestion      MessageType = "QUESTION"
	MessageUpdate        MessageType = "UPDATE"
)

var MessageTypes = []MessageType{
	MessageCommunication, MessageTaskClaim, MessageTaskHandoff, MessageAgreement,
	MessageRefutation, MessagePraise, MessageQuestion, MessageUpdate,
}

func ParseMessageType(s string) (MessageType, error) {
	switch m := MessageType(s); m {
	case MessageCommunication, MessageTaskClaim, MessageTaskHandoff, MessageAgreement,
		MessageRefutation, MessagePraise, MessageQuestion, MessageUpdate:
		return m, nil
	}
	return "", fmt.Errorf("unknown message type %q", s)
}

func (m *MessageType) UnmarshalText(b []byte) error {
	v, err := ParseMessageType(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m MessageType) Icon() string {
	switch m {
	case MessageCommunication:
		return "message"
	case MessageTaskClaim:
		return "hand.raised"
	case MessageTaskHandoff:
		return "arrow.triangle.2.circlepath"
	case MessageAgreement:
		return "checkmark.circle"
	case MessageRefutation:
		return "xmark.circle"
	case MessagePraise:
		return "star.fill"
	case MessageQuestion:
		return "questionmark.circle"
	case MessageUpdate:
		return "info.circle"
	}
	panic(unknownEnum("message type", string(m)))
}

func (m MessageType) Color() string {
	switch m {
	case MessageCommunication:
		return "#3B82F6"
	case MessageTaskClaim:
		return "#F59E0B"
	case MessageTaskHandoff:
		return "#8B5CF6"
	case MessageAgreement:
		return "#10B981"
	case MessageRefutation:
		return "#EF4444"
	case MessagePraise:
		return "#FBBF24"
	case MessageQuestion:
		return "#06B6D4"
	case MessageUpdate:
		return "#6B7280"
	}
	panic(unknownEnum("message type", string(m)))
}

// Enum values only enter the model through Parse* or UnmarshalText, so an
// unknown value here means a caller built one by hand.
func unknownEnum(kind, v string) string {
	return fmt.Sprintf("mission: unknown %s %q", kind, v)
}
