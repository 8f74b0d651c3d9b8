package models

// NodeType is the fixed top-level category of a node. Types are closed;
// kinds within the action and trigger types are registry-extensible.
type NodeType string

const (
	NodeTypeTrigger NodeType = "trigger"
	NodeTypeLogic   NodeType = "logic"
	NodeTypeAction  NodeType = "action"
)

// Logic node kinds.
const (
	LogicKindCondition = "condition"
	LogicKindSwitch    = "switch"
	LogicKindLoop      = "loop"
	LogicKindMerge     = "merge"
	LogicKindDelay     = "delay"
	LogicKindWait      = "wait"
)

// Built-in action node kinds.
const (
	ActionKindAPICall      = "api_call"
	ActionKindPublishEvent = "publish_event"
	ActionKindFunction     = "function"
)

// Built-in trigger node kinds.
const (
	TriggerKindWebhook   = "webhook"
	TriggerKindScheduler = "scheduler"
	TriggerKindKafka     = "kafka"
)

// Port names shared across node kinds.
const (
	PortMain  = "main"
	PortTrue  = "true"
	PortFalse = "false"
	PortError = "error"
)

// WorkflowNode represents a node instance in a workflow definition.
type WorkflowNode struct {
	ID        string         `json:"id"       validate:"required"`
	Type      NodeType       `json:"type"     validate:"required"`
	Kind      string         `json:"kind"     validate:"required"`
	Config    map[string]any `json:"config"`
	Name      string         `json:"name"     validate:"required,min=1"`
	Enabled   bool           `json:"enabled"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

func (n *WorkflowNode) IsTriggerNode() bool {
	return n.Type == NodeTypeTrigger
}

func (n *WorkflowNode) IsLogicNode() bool {
	return n.Type == NodeTypeLogic
}

func (n *WorkflowNode) IsActionNode() bool {
	return n.Type == NodeTypeAction
}

// Connection connects two ports directly (fully normalized).
type Connection struct {
	ID         string `json:"id"`
	SourcePort string `json:"source_port" validate:"required"` // "{node_id}:{port_name}"
	TargetPort string `json:"target_port" validate:"required"` // "{node_id}:{port_name}"
}

// ParsePortID parses a port ID in format "{node_id}:{port_name}" into components.
func ParsePortID(portID string) (string, string, bool) {
	for i := range len(portID) {
		if portID[i] == ':' {
			return portID[:i], portID[i+1:], true
		}
	}

	return "", "", false
}

// MakePortID creates a port ID from node ID and port name.
func MakePortID(nodeID, portName string) string {
	return nodeID + ":" + portName
}
