package engine

import "strings"

// Pip multipliers convert a pip offset into price units: one pip equals
// 1/multiplier in price. Symbols not listed fall back to the generic
// four-decimal forex convention.
var defaultPipMultipliers = map[string]float64{
	"XAUUSD": 10,
	"GOLD":   10,
	"BTCUSD": 1,
	"EURUSD": 10000,
	"GBPUSD": 10000,
	"USDJPY": 100,
}

const genericPipMultiplier = 10000

// PipTable resolves per-symbol pip multipliers, with operator overrides
// taking precedence over the built-in defaults.
type PipTable struct {
	overrides map[string]float64
}

func NewPipTable(overrides map[string]float64) *PipTable {
	up := make(map[string]float64, len(overrides))
	for sym, mult := range overrides {
		if mult > 0 {
			up[strings.ToUpper(sym)] = mult
		}
	}
	return &PipTable{overrides: up}
}

// Multiplier returns the pip multiplier for a symbol.
func (t *PipTable) Multiplier(symbol string) float64 {
	sym := strings.ToUpper(symbol)
	if m, ok := t.overrides[sym]; ok {
		return m
	}
	if m, ok := defaultPipMultipliers[sym]; ok {
		return m
	}
	return genericPipMultiplier
}

// Offset converts a pip offset into price units for a symbol.
func (t *PipTable) Offset(symbol string, pips float64) float64 {
	return pips / t.Multiplier(symbol)
}
