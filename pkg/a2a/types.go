package a2a

import (
	"encoding/json"
	"time"
)

const ProtocolVersion = "0.3.0"

type AgentCard struct {
	Name               string       `json:"name"`
	Description        string       `json:"description"`
	URL                string       `json:"url"`
	Version            string       `json:"version"`
	ProtocolVersion    string       `json:"protocolVersion"`
	Capabilities       Capabilities `json:"capabilities"`
	DefaultInputModes  []string     `json:"defaultInputModes,omitempty"`
	DefaultOutputModes []string     `json:"defaultOutputModes,omitempty"`
	Skills             []Skill      `json:"skills,omitempty"`
}

type Capabilities struct {
	Streaming         bool `json:"streaming"`
	PushNotifications bool `json:"pushNotifications"`
}

type Skill struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Examples    []string `json:"examples,omitempty"`
}

type TaskState string

const (
	TaskStatePending       TaskState = "pending"
	TaskStateWorking       TaskState = "working"
	TaskStateInputRequired TaskState = "input-required"
	TaskStateCompleted     TaskState = "completed"
	TaskStateFailed        TaskState = "failed"
	TaskStateCanceled      TaskState = "canceled"
)

// Terminal reports whether no further transitions are permitted from s.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCompleted, TaskStateFailed, TaskStateCanceled:
		return true
	}
	return false
}

type Task struct {
	ID        string     `json:"id"`
	ContextID string     `json:"contextId"`
	Status    TaskStatus `json:"status"`
	Messages  []Message  `json:"messages"`
	Artifacts []Artifact `json:"artifacts"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

type TaskStatus struct {
	State     TaskState `json:"state"`
	Timestamp time.Time `json:"timestamp"`
	Message   *Message  `json:"message,omitempty"`
}

const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

type Message struct {
	MessageID string `json:"messageId,omitempty"`
	Role      string `json:"role"`
	Parts     []Part `json:"parts"`
	ContextID string `json:"contextId,omitempty"`
	TaskID    string `json:"taskId,omitempty"`
}

const (
	PartTypeText = "text"
	PartTypeData = "data"
)

// Part is either a text part or a MIME-typed data part, discriminated by Type.
type Part struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
	MimeType string         `json:"mimeType,omitempty"`
}

// UnmarshalJSON accepts "kind" as an alias for "type" so that clients
// speaking newer protocol revisions are understood.
func (p *Part) UnmarshalJSON(b []byte) error {
	type plain Part
	var aux struct {
		plain
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*p = Part(aux.plain)
	if p.Type == "" {
		p.Type = aux.Kind
	}
	return nil
}

func TextPart(text string) Part {
	return Part{Type: PartTypeText, Text: text}
}

func DataPart(data map[string]any) Part {
	return Part{Type: PartTypeData, Data: data, MimeType: "application/json"}
}

// AgentText returns an agent-role message holding a single text part.
func AgentText(text string) *Message {
	return &Message{Role: RoleAgent, Parts: []Part{TextPart(text)}}
}

type Artifact struct {
	ArtifactID string `json:"artifactId"`
	Name       string `json:"name"`
	Parts      []Part `json:"parts"`
}

type Stats struct {
	Total         int `json:"total"`
	Pending       int `json:"pending"`
	Working       int `json:"working"`
	InputRequired int `json:"inputRequired"`
	Completed     int `json:"completed"`
	Failed        int `json:"failed"`
	Canceled      int `json:"canceled"`
}
