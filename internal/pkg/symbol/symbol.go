// Package symbol normalizes trading-pair notation between the internal
// "BASE/QUOTE" form and exchange-specific forms.
package symbol

import "strings"

// Symbol is a parsed trading pair.
type Symbol struct {
	Base  string
	Quote string
}

// Internal renders the canonical "BASE/QUOTE" form.
func (s Symbol) Internal() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + "/" + s.Quote
}

// Binance renders the concatenated exchange form (e.g. "BTCUSDT").
func (s Symbol) Binance() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

var knownQuotes = []string{"USDT", "USDC", "BUSD", "USD", "BTC", "ETH"}

// Parse accepts "BTC/USDT", "BTCUSDT" or "BTC/USDT:USDT" and returns
// the parsed pair. Unrecognized input yields a zero Symbol.
func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}
	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}
	if idx := strings.Index(s, "/"); idx >= 0 {
		return Symbol{Base: s[:idx], Quote: s[idx+1:]}
	}
	for _, quote := range knownQuotes {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{Base: strings.TrimSuffix(s, quote), Quote: quote}
		}
	}
	return Symbol{}
}

// Normalize upper-cases and trims sym, collapsing exchange notation to
// the internal form when it can be parsed. Unparseable symbols are
// returned trimmed and upper-cased so callers can still key maps on them.
func Normalize(sym string) string {
	parsed := Parse(sym)
	if internal := parsed.Internal(); internal != "" {
		return internal
	}
	return strings.ToUpper(strings.TrimSpace(sym))
}
