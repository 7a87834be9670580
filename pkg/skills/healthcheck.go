package skills

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/igorsilveira/tokenlens/pkg/a2a"
	"github.com/igorsilveira/tokenlens/pkg/llm"
	"github.com/igorsilveira/tokenlens/pkg/market"
	"github.com/igorsilveira/tokenlens/pkg/telemetry"
)

const DefaultLLMTimeout = 8 * time.Second

const fallbackSummary = "AI analysis is unavailable, so this is a neutral placeholder verdict. " +
	"It is not an assessment of the token. Review the market data and baseline risk signals before acting."

const healthSystemPrompt = `You are a token risk analyst. You receive live market data for one token and a deterministic baseline score.
Respond with exactly one JSON object and nothing else, using this shape:
{"health":"GREEN|YELLOW|RED","riskLevel":"Low|Moderate|Elevated|Critical","summary":"...","recommendation":"...","keyPoints":["..."],"failureModes":["..."]}
Keep the summary under 280 characters. Do not give financial advice.`

type HealthCheckConfig struct {
	Market     market.Source
	LLM        llm.Provider
	LLMTimeout time.Duration
	Now        func() time.Time
}

// HealthCheck combines the market snapshot, the baseline score and an LLM
// verdict. The verdict is best effort; market data is not.
type HealthCheck struct {
	market     market.Source
	llm        llm.Provider
	llmTimeout time.Duration
	now        func() time.Time
}

func NewHealthCheck(cfg HealthCheckConfig) *HealthCheck {
	h := &HealthCheck{
		market:     cfg.Market,
		llm:        cfg.LLM,
		llmTimeout: cfg.LLMTimeout,
		now:        cfg.Now,
	}
	if h.llmTimeout <= 0 {
		h.llmTimeout = DefaultLLMTimeout
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

func (s *HealthCheck) Card() a2a.Skill {
	return a2a.Skill{
		ID:          a2a.SkillTokenHealthCheck,
		Name:        "Token Health Check",
		Description: "Full health analysis of a token on Base or Solana: live market data, baseline risk score and an AI verdict with key points and failure modes.",
		Tags:        []string{"risk", "token", "defi", "ai", "analysis"},
		Examples: []string{
			"Is 0x4200000000000000000000000000000000000006 safe?",
			`{"tokenAddress":"So11111111111111111111111111111111111111112","chain":"Solana","devWallet":"9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"}`,
		},
	}
}

func (s *HealthCheck) Execute(ctx context.Context, input map[string]any) a2a.SkillResult {
	var in HealthCheckInput
	if err := decodeInput(input, &in); err != nil {
		return errorResult("%v", err)
	}
	address, chain, err := resolveTarget(in.TokenAddress, in.Chain)
	if err != nil {
		return errorResult("%v", err)
	}
	in.TokenAddress, in.Chain = address, chain
	if in.DevWallet != "" && !validAddress(in.DevWallet, chain) {
		return errorResult("invalid %s devWallet address %q", chain, in.DevWallet)
	}

	snap, errResult := fetchSnapshot(ctx, s.market, chain, address)
	if snap == nil {
		return errResult
	}

	baseline := ScoreRisk(*snap, s.now())
	verdict, aiAvailable := s.assess(ctx, in, snap, baseline)

	text := fmt.Sprintf("Token health for %s on %s: %s, %s risk. %s",
		tokenLabel(snap), chain, verdict.Health, verdict.RiskLevel, verdict.Summary)

	data := map[string]any{
		"skillId":      a2a.SkillTokenHealthCheck,
		"tokenAddress": address,
		"chain":        chain,
		"market":       snap,
		"baseline":     baseline,
		"verdict":      verdict,
		"aiAvailable":  aiAvailable,
	}
	if in.DevWallet != "" {
		data["devWallet"] = in.DevWallet
	}

	return a2a.SkillResult{Parts: []a2a.Part{
		a2a.TextPart(text),
		a2a.DataPart(toData(data)),
	}}
}

// assess asks the model for a verdict and falls back to the neutral one
// on any failure. The bool reports whether the model's verdict was used.
func (s *HealthCheck) assess(ctx context.Context, in HealthCheckInput, snap *market.Snapshot, baseline RiskScore) (Verdict, bool) {
	logger := telemetry.FromContext(ctx)
	if s.llm == nil {
		return fallbackVerdict(baseline), false
	}

	ctx, cancel := context.WithTimeout(ctx, s.llmTimeout)
	defer cancel()

	temp := 0.2
	reply, err := s.llm.Complete(ctx, llm.CompletionRequest{
		System:      healthSystemPrompt,
		Prompt:      buildHealthPrompt(in, snap, baseline),
		MaxTokens:   800,
		Temperature: &temp,
	})
	if err != nil {
		logger.Warn("llm verdict unavailable, using fallback",
			slog.String("provider", s.llm.Name()),
			slog.String("err", err.Error()),
		)
		return fallbackVerdict(baseline), false
	}

	verdict, ok := extractVerdict(reply)
	if !ok {
		logger.Warn("llm reply had no usable verdict, using fallback",
			slog.String("provider", s.llm.Name()),
			slog.Int("reply_len", len(reply)),
		)
		return fallbackVerdict(baseline), false
	}
	if verdict.RiskLevel == "" {
		verdict.RiskLevel = baseline.Level
	}
	if strings.TrimSpace(verdict.Summary) == "" {
		verdict.Summary = fmt.Sprintf("Baseline risk score is %d/100.", baseline.Score)
	}
	return verdict, true
}

func buildHealthPrompt(in HealthCheckInput, snap *market.Snapshot, baseline RiskScore) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Token: %s", in.TokenAddress)
	if snap.Name != "" || snap.Symbol != "" {
		fmt.Fprintf(&sb, " (%s, %s)", snap.Name, snap.Symbol)
	}
	fmt.Fprintf(&sb, "\nChain: %s\n", in.Chain)
	if in.DevWallet != "" {
		fmt.Fprintf(&sb, "Developer wallet: %s\n", in.DevWallet)
	}

	marketJSON, _ := json.MarshalIndent(snap, "", "  ")
	fmt.Fprintf(&sb, "\nMarket data:\n%s\n", marketJSON)

	fmt.Fprintf(&sb, "\nBaseline risk score: %d/100 (%s)\n", baseline.Score, baseline.Level)
	for _, sig := range baseline.Signals {
		fmt.Fprintf(&sb, "- %s: %s (+%d)\n", sig.Name, sig.Note, sig.Points)
	}
	sb.WriteString("\nAssess the token's health and answer with the JSON object only.")
	return sb.String()
}

func fallbackVerdict(baseline RiskScore) Verdict {
	points := make([]string, 0, len(baseline.Signals))
	for _, sig := range baseline.Signals {
		points = append(points, sig.Note)
	}
	return Verdict{
		Health:         HealthYellow,
		RiskLevel:      RiskModerate,
		Summary:        fallbackSummary,
		Recommendation: "Do your own research before trading this token.",
		KeyPoints:      points,
		FailureModes:   []string{},
	}
}
