package engine

import (
	"errors"
	"math"
	"testing"

	"mt5-signal-bot/internal/ledger"
	"mt5-signal-bot/internal/rules"
)

func tp(p float64) rules.PriceOrOpen { return rules.PriceOrOpen{Price: p} }
func tpOpen() rules.PriceOrOpen      { return rules.PriceOrOpen{Open: true} }

func TestPlanLegsSingleEntry(t *testing.T) {
	legs, err := PlanLegs(EntrySignal{
		Symbol:    "XAUUSD",
		Side:      ledger.SideBuy,
		Entry:     rules.PricePair{Entry: 3345},
		TPs:       []rules.PriceOrOpen{tp(3350), tp(3360), tp(3370), tpOpen()},
		StopLoss:  3330,
		LegVolume: 0.01,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(legs) != 4 {
		t.Fatalf("got %d legs, want 4", len(legs))
	}
	for i, leg := range legs {
		if leg.Index != i || leg.Entry != 3345 || leg.StopLoss != 3330 || leg.Volume != 0.01 {
			t.Errorf("leg %d = %+v", i, leg)
		}
		if leg.Status != ledger.LegPending {
			t.Errorf("leg %d status = %s", i, leg.Status)
		}
	}
	wantTPs := []float64{3350, 3360, 3370, 0}
	for i, leg := range legs {
		if leg.TakeProfit != wantTPs[i] {
			t.Errorf("leg %d tp = %v, want %v", i, leg.TakeProfit, wantTPs[i])
		}
	}
}

func TestPlanLegsDualEntryBuy(t *testing.T) {
	legs, err := PlanLegs(EntrySignal{
		Symbol:    "XAUUSD",
		Side:      ledger.SideBuy,
		Entry:     rules.PricePair{Entry: 3345, Worse: 3340, HasWorse: true},
		TPs:       []rules.PriceOrOpen{tp(3350), tp(3360)},
		StopLoss:  3330,
		LegVolume: 0.01,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(legs) != 16 {
		t.Fatalf("got %d legs, want 16", len(legs))
	}

	// 4 equidistant layers from the first (higher) price down to the
	// second, 4 legs each.
	wantLayers := []float64{3345, 3343.33, 3341.67, 3340}
	for i, leg := range legs {
		want := wantLayers[i/4]
		if math.Abs(leg.Entry-want) > 1e-9 {
			t.Errorf("leg %d entry = %v, want %v", i, leg.Entry, want)
		}
	}

	// TP block (two targets padded to four) repeats per layer.
	wantBlock := []float64{3350, 3360, 3360, 3360}
	for i, leg := range legs {
		if leg.TakeProfit != wantBlock[i%4] {
			t.Errorf("leg %d tp = %v, want %v", i, leg.TakeProfit, wantBlock[i%4])
		}
	}
}

func TestPlanLegsDualEntrySell(t *testing.T) {
	legs, err := PlanLegs(EntrySignal{
		Symbol:    "XAUUSD",
		Side:      ledger.SideSell,
		Entry:     rules.PricePair{Entry: 3360, Worse: 3366, HasWorse: true},
		TPs:       []rules.PriceOrOpen{tp(3350)},
		LegVolume: 0.01,
	})
	if err != nil {
		t.Fatal(err)
	}
	wantLayers := []float64{3360, 3362, 3364, 3366}
	for i, leg := range legs {
		if leg.Entry != wantLayers[i/4] {
			t.Errorf("leg %d entry = %v, want %v", i, leg.Entry, wantLayers[i/4])
		}
	}
}

func TestPlanLegsInvalidRange(t *testing.T) {
	cases := []struct {
		side  ledger.Side
		first float64
		worse float64
	}{
		{ledger.SideBuy, 3340, 3345},  // BUY band must run downward
		{ledger.SideBuy, 3345, 3345},  // equal prices are not a band
		{ledger.SideSell, 3366, 3360}, // SELL band must run upward
	}
	for _, c := range cases {
		_, err := PlanLegs(EntrySignal{
			Symbol:    "XAUUSD",
			Side:      c.side,
			Entry:     rules.PricePair{Entry: c.first, Worse: c.worse, HasWorse: true},
			LegVolume: 0.01,
		})
		var rangeErr *ErrInvalidRange
		if !errors.As(err, &rangeErr) {
			t.Errorf("%s %v/%v: err = %v, want ErrInvalidRange", c.side, c.first, c.worse, err)
		}
	}
}

func TestPlanLegsNoTPsLeavesTargetsUnset(t *testing.T) {
	legs, err := PlanLegs(EntrySignal{
		Symbol:    "XAUUSD",
		Side:      ledger.SideBuy,
		Entry:     rules.PricePair{Entry: 3345},
		LegVolume: 0.01,
	})
	if err != nil {
		t.Fatal(err)
	}
	for i, leg := range legs {
		if leg.TakeProfit != 0 {
			t.Errorf("leg %d tp = %v, want unset", i, leg.TakeProfit)
		}
	}
}

func TestResolveGroupKey(t *testing.T) {
	tests := []struct {
		name    string
		replyTo int64
		text    string
		want    string
		ok      bool
	}{
		{"reply link", 1001, "go risk free", "OPEN_1001", true},
		{"marker fallback", 0, "risk free [GK:OPEN_1001]", "OPEN_1001", true},
		{"reply link beats marker", 1002, "risk free [GK:OPEN_1001]", "OPEN_1002", true},
		{"bare numbers never resolve", 0, "close 1001 now", "", false},
		{"nothing", 0, "risk free", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveGroupKey(tt.replyTo, tt.text)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ResolveGroupKey = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}
