package sources

import (
	"strings"
)

// Symbol normalization maps trading pairs and mixed-case input to the
// canonical bare asset code the engine aggregates under. Quote suffixes
// are informational only; all prices are quoted in USD.

// NormalizeSymbol converts a symbol to its canonical oracle form
// Examples:
//   - "xlm" -> "XLM"
//   - "XLM/USD" -> "XLM"
//   - " btc/usdt " -> "BTC"
//   - "ETH" -> "ETH" (no change)
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if idx := strings.Index(s, "/"); idx >= 0 {
		s = s[:idx]
	}
	return s
}

// NormalizeSymbols normalizes a list of symbols, dropping empty entries
// and duplicates while preserving order of first appearance.
func NormalizeSymbols(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	result := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		normalized := NormalizeSymbol(symbol)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		result = append(result, normalized)
	}
	return result
}

// IsEquivalentSymbol checks if two symbols are equivalent after normalization
func IsEquivalentSymbol(symbol1, symbol2 string) bool {
	return NormalizeSymbol(symbol1) == NormalizeSymbol(symbol2)
}
