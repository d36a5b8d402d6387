package broker

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"vigil/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
)

// BinanceConfig configures the Binance-backed broker.
type BinanceConfig struct {
	APIKey      string
	APISecret   string
	RESTBaseURL string
	HTTPTimeout time.Duration

	ProxyEnabled bool
	RESTProxyURL string
}

func (c *BinanceConfig) withDefaults() BinanceConfig {
	out := *c
	out.RESTBaseURL = strings.TrimSpace(out.RESTBaseURL)
	if out.RESTBaseURL == "" {
		out.RESTBaseURL = "https://fapi.binance.com"
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.RESTProxyURL = strings.TrimSpace(out.RESTProxyURL)
	return out
}

// BinanceBroker reads quotes and open futures positions through the
// go-binance SDK.
type BinanceBroker struct {
	cfg    BinanceConfig
	client *futures.Client
}

var _ Broker = (*BinanceBroker)(nil)

func NewBinanceBroker(cfg BinanceConfig) (*BinanceBroker, error) {
	final := cfg.withDefaults()
	client := futures.NewClient(final.APIKey, final.APISecret)
	client.BaseURL = final.RESTBaseURL
	httpClient := &http.Client{Timeout: final.HTTPTimeout}
	if final.ProxyEnabled && final.RESTProxyURL != "" {
		proxyURL, err := url.Parse(final.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		baseTransport, ok := http.DefaultTransport.(*http.Transport)
		if !ok || baseTransport == nil {
			return nil, fmt.Errorf("http DefaultTransport is not *http.Transport")
		}
		transport := baseTransport.Clone()
		transport.Proxy = http.ProxyURL(proxyURL)
		httpClient.Transport = transport
	}
	client.HTTPClient = httpClient
	return &BinanceBroker{cfg: final, client: client}, nil
}

// GetQuote merges the book ticker (bid/ask) with the 24h stats (last
// price, volume) for one symbol.
func (b *BinanceBroker) GetQuote(ctx context.Context, sym string) (Quote, error) {
	exchangeSym := symbol.Binance.ToExchange(sym)
	if exchangeSym == "" {
		return Quote{}, fmt.Errorf("binance: empty symbol")
	}
	books, err := b.client.NewListBookTickersService().Symbol(exchangeSym).Do(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("binance book ticker %s: %w", sym, err)
	}
	if len(books) == 0 {
		return Quote{}, fmt.Errorf("binance book ticker %s: empty response", sym)
	}
	stats, err := b.client.NewListPriceChangeStatsService().Symbol(exchangeSym).Do(ctx)
	if err != nil {
		return Quote{}, fmt.Errorf("binance 24h stats %s: %w", sym, err)
	}
	if len(stats) == 0 {
		return Quote{}, fmt.Errorf("binance 24h stats %s: empty response", sym)
	}
	quote := Quote{
		Symbol:    symbol.Normalize(sym),
		Bid:       parseFloat(books[0].BidPrice),
		Ask:       parseFloat(books[0].AskPrice),
		Last:      parseFloat(stats[0].LastPrice),
		Volume:    parseFloat(stats[0].Volume),
		UpdatedAt: time.Now(),
	}
	if quote.Last <= 0 {
		return Quote{}, fmt.Errorf("binance quote %s: non-positive last price", sym)
	}
	return quote, nil
}

// GetPositions maps non-flat futures position risk entries onto the
// neutral Position shape.
func (b *BinanceBroker) GetPositions(ctx context.Context) ([]Position, error) {
	risks, err := b.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance position risk: %w", err)
	}
	positions := make([]Position, 0, len(risks))
	for _, risk := range risks {
		qty := parseFloat(risk.PositionAmt)
		if qty == 0 {
			continue
		}
		entry := parseFloat(risk.EntryPrice)
		costBasis := entry * abs(qty)
		unrealized := parseFloat(risk.UnRealizedProfit)
		pos := Position{
			Symbol:        symbol.Binance.FromExchange(risk.Symbol),
			Qty:           qty,
			AvgEntryPrice: entry,
			UnrealizedPL:  unrealized,
			CostBasis:     costBasis,
		}
		if costBasis > 0 {
			pos.UnrealizedPLPercent = unrealized / costBasis * 100
		}
		positions = append(positions, pos)
	}
	return positions, nil
}

// IsMarketOpen reports venue reachability; perpetual futures trade
// around the clock, so a successful ping means open.
func (b *BinanceBroker) IsMarketOpen(ctx context.Context) (bool, error) {
	if err := b.client.NewPingService().Do(ctx); err != nil {
		return false, fmt.Errorf("binance ping: %w", err)
	}
	return true, nil
}

func parseFloat(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
