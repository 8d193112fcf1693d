package messagequeue

// TaskEventPayload is the schema for all tasks.* subjects. Callback carries
// the task's caller-supplied callback address so downstream consumers can
// deliver completion notifications.
type TaskEventPayload struct {
	RouterRef string `json:"router_ref"`
	TaskRef   string `json:"task_ref"`
	QueueRef  string `json:"queue_ref,omitempty"`
	AgentRef  string `json:"agent_ref,omitempty"`
	State     string `json:"state"`
	Callback  string `json:"callback,omitempty"`
}

// AgentStatePayload is the schema for agents.state messages.
type AgentStatePayload struct {
	RouterRef string `json:"router_ref"`
	AgentRef  string `json:"agent_ref"`
	State     string `json:"state"`
}
