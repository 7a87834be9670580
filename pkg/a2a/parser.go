package a2a

import (
	"encoding/json"
	"regexp"
	"strings"
)

const (
	SkillTokenHealthCheck = "token-health-check"
	SkillRiskBaseline     = "risk-baseline"
)

const (
	ChainBase   = "Base"
	ChainSolana = "Solana"
)

var (
	// The first 40 hex digits after 0x are taken even when more follow.
	evmAddressRe    = regexp.MustCompile(`0x[a-fA-F0-9]{40}`)
	solanaAddressRe = regexp.MustCompile(`\b[1-9A-HJ-NP-Za-km-z]{32,44}\b`)
)

// Invocation is the skill call extracted from an inbound message. An empty
// SkillID means no skill could be determined.
type Invocation struct {
	SkillID string         `json:"skillId"`
	Input   map[string]any `json:"input"`
}

// ParseMessage extracts a skill invocation from msg. Structured data parts
// take precedence over JSON text, which takes precedence over addresses
// found in free text.
func ParseMessage(msg Message) Invocation {
	for _, p := range msg.Parts {
		if p.Type != PartTypeData || p.Data == nil {
			continue
		}
		if inv, ok := invocationFromPayload(p.Data); ok {
			return inv
		}
	}

	for _, p := range msg.Parts {
		if p.Type != PartTypeText {
			continue
		}
		text := strings.TrimSpace(p.Text)
		if text == "" {
			continue
		}

		var payload map[string]any
		if err := json.Unmarshal([]byte(text), &payload); err == nil {
			if inv, ok := invocationFromPayload(payload); ok {
				return inv
			}
		}

		if inv, ok := invocationFromText(text); ok {
			return inv
		}
	}

	return Invocation{}
}

// InferSkill decides which skill a loosely typed payload addresses. An
// explicit skillId wins; otherwise a tokenAddress selects the full health
// check when a devWallet is supplied and the risk baseline when it is not.
func InferSkill(payload map[string]any) string {
	if id, ok := payload["skillId"].(string); ok && id != "" {
		return id
	}
	if !hasValue(payload, "tokenAddress") {
		return ""
	}
	if hasValue(payload, "devWallet") {
		return SkillTokenHealthCheck
	}
	return SkillRiskBaseline
}

func invocationFromPayload(payload map[string]any) (Invocation, bool) {
	skillID := InferSkill(payload)
	if skillID == "" {
		return Invocation{}, false
	}

	if _, explicit := payload["skillId"].(string); explicit {
		if input, ok := payload["input"].(map[string]any); ok {
			return Invocation{SkillID: skillID, Input: input}, true
		}
	}
	return Invocation{SkillID: skillID, Input: payload}, true
}

func invocationFromText(text string) (Invocation, bool) {
	if addr := evmAddressRe.FindString(text); addr != "" {
		return Invocation{
			SkillID: SkillTokenHealthCheck,
			Input:   map[string]any{"tokenAddress": addr, "chain": ChainBase},
		}, true
	}
	if addr := solanaAddressRe.FindString(text); addr != "" {
		return Invocation{
			SkillID: SkillTokenHealthCheck,
			Input:   map[string]any{"tokenAddress": addr, "chain": ChainSolana},
		}, true
	}
	return Invocation{}, false
}

func hasValue(payload map[string]any, key string) bool {
	v, ok := payload[key]
	return ok && v != nil
}
