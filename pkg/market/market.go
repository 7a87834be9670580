package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/igorsilveira/tokenlens/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultBaseURL = "https://api.dexscreener.com"
	DefaultTimeout = 5 * time.Second

	maxBodyBytes = 2 << 20
)

// ErrNotListed is returned when no trading pair exists for the token on
// the requested chain.
var ErrNotListed = errors.New("market: token has no trading pairs")

// Snapshot is the market state of a token's deepest pool on one chain.
type Snapshot struct {
	Chain          string    `json:"chain"`
	TokenAddress   string    `json:"tokenAddress"`
	Name           string    `json:"name,omitempty"`
	Symbol         string    `json:"symbol,omitempty"`
	DEX            string    `json:"dex,omitempty"`
	PairAddress    string    `json:"pairAddress,omitempty"`
	PairURL        string    `json:"pairUrl,omitempty"`
	PriceUSD       float64   `json:"priceUsd"`
	LiquidityUSD   float64   `json:"liquidityUsd"`
	Volume24hUSD   float64   `json:"volume24hUsd"`
	MarketCapUSD   float64   `json:"marketCapUsd"`
	PriceChange24h float64   `json:"priceChange24h"`
	PairCreatedAt  time.Time `json:"pairCreatedAt,omitzero"`
	FetchedAt      time.Time `json:"fetchedAt"`
}

// Source provides market snapshots. Skills depend on this rather than on
// the HTTP client so tests can supply fixed data.
type Source interface {
	Snapshot(ctx context.Context, chain, address string) (*Snapshot, error)
}

type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	now        func() time.Time
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

func WithClock(now func() time.Time) Option {
	return func(cl *Client) { cl.now = now }
}

func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		timeout:    timeout,
		httpClient: &http.Client{},
		now:        time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type tokensResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	URL         string `json:"url"`
	PairAddress string `json:"pairAddress"`
	BaseToken   token  `json:"baseToken"`
	QuoteToken  token  `json:"quoteToken"`
	PriceNative string `json:"priceNative"`
	PriceUSD    string `json:"priceUsd"`
	Volume      struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Liquidity *struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	FDV           float64 `json:"fdv"`
	MarketCap     float64 `json:"marketCap"`
	PairCreatedAt int64   `json:"pairCreatedAt"`
}

type token struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Symbol  string `json:"symbol"`
}

func (p pair) liquidity() float64 {
	if p.Liquidity == nil {
		return 0
	}
	return p.Liquidity.USD
}

// chainIDs maps our chain names to DexScreener chain ids.
var chainIDs = map[string]string{
	"base":   "base",
	"solana": "solana",
}

func (c *Client) Snapshot(ctx context.Context, chain, address string) (*Snapshot, error) {
	chainID, ok := chainIDs[strings.ToLower(chain)]
	if !ok {
		return nil, fmt.Errorf("market: unsupported chain %q", chain)
	}

	ctx, span := telemetry.StartSpan(ctx, "market.snapshot",
		attribute.String("market.chain", chainID),
		attribute.String("market.token", address),
	)
	defer span.End()

	start := time.Now()
	snap, err := c.fetch(ctx, chainID, address)
	telemetry.Metrics.MarketLatency.Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		telemetry.Metrics.MarketRequests.WithLabelValues("ok").Inc()
	case errors.Is(err, ErrNotListed):
		telemetry.Metrics.MarketRequests.WithLabelValues("not_listed").Inc()
	default:
		telemetry.Metrics.MarketRequests.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return snap, err
}

func (c *Client) fetch(ctx context.Context, chainID, address string) (*Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.baseURL + "/latest/dex/tokens/" + url.PathEscape(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("market: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("market: reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("market: upstream returned %d", resp.StatusCode)
	}

	var parsed tokensResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("market: decoding response: %w", err)
	}

	best, asQuote, ok := deepestPair(parsed.Pairs, chainID, address)
	if !ok {
		return nil, ErrNotListed
	}
	return c.toSnapshot(best, chainID, address, asQuote), nil
}

// deepestPair picks the most liquid pair on the chain that has the token as
// its base. Pairs quoting the token are used only when no such pair exists,
// in which case asQuote is true.
func deepestPair(pairs []pair, chainID, address string) (best pair, asQuote, found bool) {
	var quoted pair
	var foundQuoted bool
	for _, p := range pairs {
		if p.ChainID != chainID {
			continue
		}
		switch {
		case sameAddress(chainID, p.BaseToken.Address, address):
			if !found || p.liquidity() > best.liquidity() {
				best, found = p, true
			}
		case sameAddress(chainID, p.QuoteToken.Address, address):
			if !foundQuoted || p.liquidity() > quoted.liquidity() {
				quoted, foundQuoted = p, true
			}
		}
	}
	if found {
		return best, false, true
	}
	return quoted, true, foundQuoted
}

// sameAddress compares hex addresses case-insensitively. Solana addresses
// are base58 and case-sensitive.
func sameAddress(chainID, a, b string) bool {
	if chainID == "solana" {
		return a == b
	}
	return strings.EqualFold(a, b)
}

func (c *Client) toSnapshot(p pair, chainID, address string, asQuote bool) *Snapshot {
	price, _ := strconv.ParseFloat(p.PriceUSD, 64)

	mcap := p.MarketCap
	if mcap == 0 {
		mcap = p.FDV
	}

	tok := p.BaseToken
	if asQuote {
		// Pair prices and caps describe the base token. The quote price is
		// derived from the base price in both units; the cap is unknown.
		tok = p.QuoteToken
		native, _ := strconv.ParseFloat(p.PriceNative, 64)
		if native > 0 {
			price /= native
		} else {
			price = 0
		}
		mcap = 0
	}

	snap := &Snapshot{
		Chain:          chainID,
		TokenAddress:   address,
		Name:           tok.Name,
		Symbol:         tok.Symbol,
		DEX:            p.DexID,
		PairAddress:    p.PairAddress,
		PairURL:        p.URL,
		PriceUSD:       price,
		LiquidityUSD:   p.liquidity(),
		Volume24hUSD:   p.Volume.H24,
		MarketCapUSD:   mcap,
		PriceChange24h: p.PriceChange.H24,
		FetchedAt:      c.now().UTC(),
	}
	if asQuote {
		snap.PriceChange24h = 0
	}
	if p.PairCreatedAt > 0 {
		snap.PairCreatedAt = time.UnixMilli(p.PairCreatedAt).UTC()
	}
	return snap
}
