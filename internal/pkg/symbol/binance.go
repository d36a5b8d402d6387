package symbol

import "strings"

// BinanceConverter maps between internal and Binance notation.
type BinanceConverter struct{}

func (BinanceConverter) ToExchange(internal string) string {
	s := strings.ToUpper(strings.TrimSpace(internal))
	return strings.ReplaceAll(s, "/", "")
}

func (BinanceConverter) FromExchange(raw string) string {
	return Parse(raw).Internal()
}

// Binance is the shared converter instance.
var Binance = BinanceConverter{}
