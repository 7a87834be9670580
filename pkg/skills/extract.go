package skills

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const (
	HealthGreen  = "GREEN"
	HealthYellow = "YELLOW"
	HealthRed    = "RED"
)

// Verdict is the model's assessment of a token.
type Verdict struct {
	Health         string   `json:"health"`
	RiskLevel      string   `json:"riskLevel"`
	Summary        string   `json:"summary"`
	Recommendation string   `json:"recommendation"`
	KeyPoints      []string `json:"keyPoints"`
	FailureModes   []string `json:"failureModes"`
}

// verdictSchema checks the shape of a candidate object. Allowed values
// are enforced afterwards by normalizeVerdict, which is case-insensitive.
var verdictSchema = mustSchema(`{
  "type": "object",
  "required": ["health"],
  "properties": {
    "health":         {"type": "string", "minLength": 1},
    "riskLevel":      {"type": "string"},
    "summary":        {"type": "string", "maxLength": 2000},
    "recommendation": {"type": "string"},
    "keyPoints":      {"type": "array", "items": {"type": "string"}},
    "failureModes":   {"type": "array", "items": {"type": "string"}}
  }
}`)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic("skills: invalid verdict schema: " + err.Error())
	}
	return schema
}

func matchesVerdictSchema(candidate []byte) bool {
	res, err := verdictSchema.Validate(gojsonschema.NewBytesLoader(candidate))
	return err == nil && res.Valid()
}

// extractVerdict pulls a verdict object out of a free text reply.
// Candidates are balanced-brace spans found by a string-aware scan. Of the
// candidates that fit verdictSchema and name a known health value, the one
// filling the most verdict fields wins, and a later candidate wins a tie.
// Replies often quote a partial example before the real answer.
func extractVerdict(reply string) (Verdict, bool) {
	text := stripCodeFences(reply)

	var (
		best      Verdict
		bestScore = -1
	)
	for start := 0; start < len(text); start++ {
		if text[start] != '{' {
			continue
		}
		end := matchBrace(text, start)
		if end < 0 {
			continue
		}

		candidate := []byte(text[start : end+1])
		if !matchesVerdictSchema(candidate) {
			continue
		}
		var v Verdict
		if err := json.Unmarshal(candidate, &v); err != nil {
			continue
		}
		if !normalizeVerdict(&v) {
			continue
		}
		if score := completeness(v); score >= bestScore {
			best, bestScore = v, score
		}
	}
	return best, bestScore >= 0
}

// completeness counts the populated fields of a normalized verdict.
func completeness(v Verdict) int {
	n := 0
	for _, set := range []bool{
		v.RiskLevel != "",
		strings.TrimSpace(v.Summary) != "",
		strings.TrimSpace(v.Recommendation) != "",
		len(v.KeyPoints) > 0,
		len(v.FailureModes) > 0,
	} {
		if set {
			n++
		}
	}
	return n
}

func stripCodeFences(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if strings.HasPrefix(strings.TrimSpace(l), "```") {
			continue
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}

// matchBrace returns the index of the brace closing the one at start, or
// -1. Braces inside JSON strings are ignored.
func matchBrace(s string, start int) int {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func normalizeVerdict(v *Verdict) bool {
	v.Health = strings.ToUpper(strings.TrimSpace(v.Health))
	switch v.Health {
	case HealthGreen, HealthYellow, HealthRed:
	default:
		return false
	}

	switch strings.ToLower(strings.TrimSpace(v.RiskLevel)) {
	case "low":
		v.RiskLevel = RiskLow
	case "moderate", "medium":
		v.RiskLevel = RiskModerate
	case "elevated", "high":
		v.RiskLevel = RiskElevated
	case "critical":
		v.RiskLevel = RiskCritical
	default:
		v.RiskLevel = ""
	}

	if v.KeyPoints == nil {
		v.KeyPoints = []string{}
	}
	if v.FailureModes == nil {
		v.FailureModes = []string{}
	}
	return true
}
