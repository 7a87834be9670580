package a2a

import "strings"

const (
	AgentName        = "TokenLens"
	agentDescription = "Token health analysis for Base and Solana. Send a token address and get live market data, a deterministic risk baseline and an AI health verdict."
)

// NewAgentCard builds the discovery document served at
// /.well-known/agent-card.json. baseURL is the externally reachable root
// of the service.
func NewAgentCard(baseURL, version string, skills []Skill) *AgentCard {
	if skills == nil {
		skills = []Skill{}
	}
	return &AgentCard{
		Name:               AgentName,
		Description:        agentDescription,
		URL:                strings.TrimRight(baseURL, "/") + "/a2a",
		Version:            version,
		ProtocolVersion:    ProtocolVersion,
		Capabilities:       Capabilities{Streaming: false, PushNotifications: false},
		DefaultInputModes:  []string{"text/plain", "application/json"},
		DefaultOutputModes: []string{"text/plain", "application/json"},
		Skills:             skills,
	}
}
