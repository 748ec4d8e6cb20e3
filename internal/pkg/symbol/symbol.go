package symbol

import "strings"

// Symbol is a parsed trading pair. Watches are keyed by the exchange
// form (BTCUSDT) but operator input may arrive as BTC/USDT or btcusdt.
type Symbol struct {
	Base  string
	Quote string
}

func (s Symbol) Exchange() string {
	if s.Base == "" || s.Quote == "" {
		return ""
	}
	return s.Base + s.Quote
}

var quoteCurrencies = []string{"USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB"}

func Parse(s string) Symbol {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Symbol{}
	}

	if idx := strings.Index(s, ":"); idx >= 0 {
		s = s[:idx]
	}

	if parts := strings.SplitN(s, "/", 2); len(parts) == 2 {
		return Symbol{
			Base:  strings.TrimSpace(parts[0]),
			Quote: strings.TrimSpace(parts[1]),
		}
	}

	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(s, quote) && len(s) > len(quote) {
			return Symbol{
				Base:  s[:len(s)-len(quote)],
				Quote: quote,
			}
		}
	}

	return Symbol{}
}

// Normalize maps any accepted spelling onto the exchange form used as
// the registry key. Unparseable input falls back to uppercased trim so
// exotic pairs still round-trip.
func Normalize(s string) string {
	if sym := Parse(s); sym.Exchange() != "" {
		return sym.Exchange()
	}
	return strings.ToUpper(strings.TrimSpace(s))
}
