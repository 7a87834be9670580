package skills

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/igorsilveira/tokenlens/pkg/a2a"
	"github.com/igorsilveira/tokenlens/pkg/market"
)

// RiskBaseline is the fast, deterministic skill: market snapshot plus
// additive score, no model call.
type RiskBaseline struct {
	market market.Source
	now    func() time.Time
}

func NewRiskBaseline(src market.Source, now func() time.Time) *RiskBaseline {
	if now == nil {
		now = time.Now
	}
	return &RiskBaseline{market: src, now: now}
}

func (s *RiskBaseline) Card() a2a.Skill {
	return a2a.Skill{
		ID:          a2a.SkillRiskBaseline,
		Name:        "Risk Baseline",
		Description: "Deterministic risk score for a token from liquidity, 24h volume, pair age and market cap to liquidity ratio. No AI call.",
		Tags:        []string{"risk", "token", "defi", "fast"},
		Examples: []string{
			`{"skillId":"risk-baseline","input":{"tokenAddress":"0x4200000000000000000000000000000000000006","chain":"Base"}}`,
		},
	}
}

func (s *RiskBaseline) Execute(ctx context.Context, input map[string]any) a2a.SkillResult {
	var in RiskBaselineInput
	if err := decodeInput(input, &in); err != nil {
		return errorResult("%v", err)
	}
	address, chain, err := resolveTarget(in.TokenAddress, in.Chain)
	if err != nil {
		return errorResult("%v", err)
	}

	snap, errResult := fetchSnapshot(ctx, s.market, chain, address)
	if snap == nil {
		return errResult
	}

	score := ScoreRisk(*snap, s.now())
	text := fmt.Sprintf("Risk baseline for %s on %s: %s (%d/100).", tokenLabel(snap), chain, score.Level, score.Score)

	return a2a.SkillResult{Parts: []a2a.Part{
		a2a.TextPart(text),
		a2a.DataPart(toData(map[string]any{
			"skillId":      a2a.SkillRiskBaseline,
			"tokenAddress": address,
			"chain":        chain,
			"market":       snap,
			"risk":         score,
		})),
	}}
}

// fetchSnapshot converts market failures into skill errors. A nil
// snapshot means the returned result carries the error.
func fetchSnapshot(ctx context.Context, src market.Source, chain, address string) (*market.Snapshot, a2a.SkillResult) {
	if src == nil {
		return nil, errorResult("market data source not configured")
	}
	snap, err := src.Snapshot(ctx, chain, address)
	switch {
	case errors.Is(err, market.ErrNotListed):
		return nil, errorResult("no trading pairs found for %s on %s", address, chain)
	case errors.Is(err, context.DeadlineExceeded):
		return nil, errorResult("market data request timed out")
	case err != nil:
		return nil, errorResult("market data unavailable: %v", err)
	}
	return snap, a2a.SkillResult{}
}

func tokenLabel(snap *market.Snapshot) string {
	if snap.Symbol != "" {
		return snap.Symbol
	}
	return snap.TokenAddress
}

// toData gives a part payload the shape clients will see on the wire.
func toData(v map[string]any) map[string]any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
