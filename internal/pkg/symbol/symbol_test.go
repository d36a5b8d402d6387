package symbol

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in    string
		base  string
		quote string
	}{
		{"BTC/USDT", "BTC", "USDT"},
		{"btc/usdt", "BTC", "USDT"},
		{"BTCUSDT", "BTC", "USDT"},
		{"ETH/USDT:USDT", "ETH", "USDT"},
		{"SOLUSDC", "SOL", "USDC"},
		{"", "", ""},
		{"USDT", "", ""},
	}
	for _, tc := range cases {
		got := Parse(tc.in)
		assert.Equal(t, tc.base, got.Base, tc.in)
		assert.Equal(t, tc.quote, got.Quote, tc.in)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "BTC/USDT", Normalize("btcusdt"))
	assert.Equal(t, "BTC/USDT", Normalize(" BTC/USDT "))
	assert.Equal(t, "AAPL", Normalize("aapl"))
}

func TestRender(t *testing.T) {
	s := Symbol{Base: "BTC", Quote: "USDT"}
	assert.Equal(t, "BTC/USDT", s.Internal())
	assert.Equal(t, "BTCUSDT", s.Binance())
	assert.Empty(t, Symbol{}.Internal())
}
