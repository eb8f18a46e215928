package engine

import (
	"fmt"
	"math"

	"mt5-signal-bot/internal/ledger"
	"mt5-signal-bot/internal/rules"
)

// ErrInvalidRange reports an entry band whose prices are ordered the
// wrong way for the signal direction.
type ErrInvalidRange struct {
	Side   ledger.Side
	First  float64
	Second float64
}

func (e *ErrInvalidRange) Error() string {
	return fmt.Sprintf("invalid %s range %v/%v", e.Side, e.First, e.Second)
}

const (
	legsPerLayer = 4
	entryLayers  = 4
)

// EntrySignal is a fully extracted entry signal ready for planning.
type EntrySignal struct {
	Symbol    string
	Side      ledger.Side
	Entry     rules.PricePair
	TPs       []rules.PriceOrOpen
	StopLoss  float64 // 0 means the signal carried no stop
	LegVolume float64
}

// PlanLegs expands an entry signal into its ledger legs.
//
// A single entry price produces 4 legs at that price. A dual price band
// produces 16 legs across 4 equidistant layers, ordered worst fill first:
// for BUY the band runs from the first (higher) price down to the second,
// for SELL from the first (lower) price up. The 4-element take-profit
// block repeats per layer; a trailing "open" marker leaves the last
// take profit of each block unset.
func PlanLegs(sig EntrySignal) ([]ledger.Leg, error) {
	var entries []float64

	if sig.Entry.HasWorse {
		first, second := sig.Entry.Entry, sig.Entry.Worse
		switch sig.Side {
		case ledger.SideBuy:
			if first <= second {
				return nil, &ErrInvalidRange{Side: sig.Side, First: first, Second: second}
			}
		case ledger.SideSell:
			if first >= second {
				return nil, &ErrInvalidRange{Side: sig.Side, First: first, Second: second}
			}
		}

		step := math.Abs(second-first) / float64(entryLayers-1)
		for layer := 0; layer < entryLayers; layer++ {
			price := first - float64(layer)*step
			if sig.Side == ledger.SideSell {
				price = first + float64(layer)*step
			}
			price = math.Round(price*100) / 100
			for i := 0; i < legsPerLayer; i++ {
				entries = append(entries, price)
			}
		}
	} else {
		for i := 0; i < legsPerLayer; i++ {
			entries = append(entries, sig.Entry.Entry)
		}
	}

	block := tpBlock(sig.TPs)
	legs := make([]ledger.Leg, 0, len(entries))
	for i, entry := range entries {
		legs = append(legs, ledger.Leg{
			Index:      i,
			Symbol:     sig.Symbol,
			Side:       sig.Side,
			Volume:     sig.LegVolume,
			Entry:      entry,
			StopLoss:   sig.StopLoss,
			TakeProfit: block[i%legsPerLayer],
			Status:     ledger.LegPending,
		})
	}
	return legs, nil
}

// tpBlock normalizes the take-profit list to a 4-element block: the first
// four numeric targets, padded with the last one. An "open" marker in the
// list leaves the final slot unset (0) so that leg trails.
func tpBlock(tps []rules.PriceOrOpen) [legsPerLayer]float64 {
	var numeric []float64
	hasOpen := false
	for _, t := range tps {
		if t.Open {
			hasOpen = true
			continue
		}
		numeric = append(numeric, t.Price)
	}

	var block [legsPerLayer]float64
	if len(numeric) > 0 {
		for i := 0; i < legsPerLayer; i++ {
			if i < len(numeric) {
				block[i] = numeric[i]
			} else {
				block[i] = numeric[len(numeric)-1]
			}
		}
	}
	if hasOpen {
		block[legsPerLayer-1] = 0
	}
	return block
}
