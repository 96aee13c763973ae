package sources

import (
	"reflect"
	"testing"
)

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"XLM", "XLM"},
		{"xlm", "XLM"},
		{"XLM/USD", "XLM"},
		{"xlm/usd", "XLM"},
		{" btc/usdt ", "BTC"},
		{"BTC/USDT/EXTRA", "BTC"},
		{"eth", "ETH"},
		{"", ""},
		{"  ", ""},
		{"/USD", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := NormalizeSymbol(tt.input)
			if got != tt.expected {
				t.Errorf("NormalizeSymbol(%q) = %q, expected %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalizeSymbols(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "dedupe equivalent symbols",
			input:    []string{"XLM", "xlm/usd", "BTC"},
			expected: []string{"XLM", "BTC"},
		},
		{
			name:     "drops empty entries",
			input:    []string{"", "ETH", "  "},
			expected: []string{"ETH"},
		},
		{
			name:     "preserves first-seen order",
			input:    []string{"btc", "eth", "BTC/USD", "xlm"},
			expected: []string{"BTC", "ETH", "XLM"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeSymbols(tt.input)
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("NormalizeSymbols(%v) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestIsEquivalentSymbol(t *testing.T) {
	if !IsEquivalentSymbol("XLM/USD", "xlm") {
		t.Error("Expected XLM/USD and xlm to be equivalent")
	}
	if IsEquivalentSymbol("XLM", "BTC") {
		t.Error("Expected XLM and BTC to differ")
	}
}
