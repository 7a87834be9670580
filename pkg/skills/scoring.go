package skills

import (
	"fmt"
	"time"

	"github.com/igorsilveira/tokenlens/pkg/market"
)

const (
	RiskLow      = "Low"
	RiskModerate = "Moderate"
	RiskElevated = "Elevated"
	RiskCritical = "Critical"
)

// Signal is one scored input of the risk baseline.
type Signal struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Points int     `json:"points"`
	Note   string  `json:"note"`
}

type RiskScore struct {
	Score   int      `json:"score"`
	Level   string   `json:"level"`
	Signals []Signal `json:"signals"`
}

type tier struct {
	limit  float64
	points int
}

var (
	liquidityTiers = []tier{{10_000, 30}, {50_000, 15}}
	volumeTiers    = []tier{{1_000, 25}, {10_000, 10}}
	ageTiers       = []tier{{24, 20}, {24 * 7, 10}}
)

// mcapRatioTiers score ratios above each limit, checked in order.
var mcapRatioTiers = []tier{{50, 20}, {20, 10}}

// ScoreRisk computes the additive risk score of snap as of now. It is a
// pure function of its arguments.
func ScoreRisk(snap market.Snapshot, now time.Time) RiskScore {
	signals := []Signal{
		liquiditySignal(snap.LiquidityUSD),
		volumeSignal(snap.Volume24hUSD),
		ageSignal(snap.PairCreatedAt, now),
		mcapRatioSignal(snap.MarketCapUSD, snap.LiquidityUSD),
	}

	total := 0
	for _, s := range signals {
		total += s.Points
	}
	return RiskScore{Score: total, Level: RiskLevel(total), Signals: signals}
}

// RiskLevel maps a score to its band.
func RiskLevel(score int) string {
	switch {
	case score < 20:
		return RiskLow
	case score < 40:
		return RiskModerate
	case score < 60:
		return RiskElevated
	default:
		return RiskCritical
	}
}

func pointsBelow(v float64, tiers []tier) int {
	for _, t := range tiers {
		if v < t.limit {
			return t.points
		}
	}
	return 0
}

func liquiditySignal(liq float64) Signal {
	s := Signal{Name: "liquidity", Value: liq, Points: pointsBelow(liq, liquidityTiers)}
	switch s.Points {
	case 30:
		s.Note = fmt.Sprintf("Very thin liquidity (%s)", formatUSD(liq))
	case 15:
		s.Note = fmt.Sprintf("Low liquidity (%s)", formatUSD(liq))
	default:
		s.Note = fmt.Sprintf("Healthy liquidity (%s)", formatUSD(liq))
	}
	return s
}

func volumeSignal(vol float64) Signal {
	s := Signal{Name: "volume24h", Value: vol, Points: pointsBelow(vol, volumeTiers)}
	switch s.Points {
	case 25:
		s.Note = fmt.Sprintf("Almost no trading in 24h (%s)", formatUSD(vol))
	case 10:
		s.Note = fmt.Sprintf("Light 24h volume (%s)", formatUSD(vol))
	default:
		s.Note = fmt.Sprintf("Active 24h volume (%s)", formatUSD(vol))
	}
	return s
}

func ageSignal(created, now time.Time) Signal {
	if created.IsZero() {
		return Signal{Name: "pairAge", Value: -1, Note: "Pair age unknown"}
	}
	hours := now.Sub(created).Hours()
	if hours < 0 {
		hours = 0
	}
	s := Signal{Name: "pairAge", Value: hours, Points: pointsBelow(hours, ageTiers)}
	switch s.Points {
	case 20:
		s.Note = "Pair is less than 24 hours old"
	case 10:
		s.Note = fmt.Sprintf("Pair is %d days old", int(hours/24))
	default:
		s.Note = fmt.Sprintf("Pair has traded for %d days", int(hours/24))
	}
	return s
}

func mcapRatioSignal(mcap, liq float64) Signal {
	if liq <= 0 {
		return Signal{Name: "mcapToLiquidity", Value: -1, Points: mcapRatioTiers[0].points, Note: "No liquidity backing the market cap"}
	}
	ratio := mcap / liq
	s := Signal{Name: "mcapToLiquidity", Value: ratio}
	for _, t := range mcapRatioTiers {
		if ratio > t.limit {
			s.Points = t.points
			break
		}
	}
	switch s.Points {
	case 20:
		s.Note = fmt.Sprintf("Market cap is %.0fx liquidity", ratio)
	case 10:
		s.Note = fmt.Sprintf("Market cap is %.0fx liquidity, moderately stretched", ratio)
	default:
		s.Note = fmt.Sprintf("Market cap to liquidity ratio %.1fx", ratio)
	}
	return s
}

func formatUSD(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	whole := fmt.Sprintf("%.0f", v)
	var out []byte
	for i, c := range []byte(whole) {
		if i > 0 && (len(whole)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, c)
	}
	if neg {
		return "-$" + string(out)
	}
	return "$" + string(out)
}
