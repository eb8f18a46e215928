package engine

import (
	"testing"

	"mt5-signal-bot/internal/ledger"
)

func TestActionIDDeterministic(t *testing.T) {
	legs := []LegDelta{
		{LegIndex: 1, Ticket: 2, Symbol: "XAUUSD", Side: ledger.SideBuy, Volume: 0.01, Entry: 3345, StopLoss: 3330, TakeProfit: 3350},
		{LegIndex: 0, Ticket: 1, Symbol: "XAUUSD", Side: ledger.SideBuy, Volume: 0.01, Entry: 3345, StopLoss: 3330, TakeProfit: 3360},
	}

	first := NewActionID(ActionOpen, 1001, "OPEN_1001", legs)
	for i := 0; i < 50; i++ {
		if got := NewActionID(ActionOpen, 1001, "OPEN_1001", legs); got != first {
			t.Fatalf("run %d produced %s, first run %s", i, got, first)
		}
	}

	// Leg order must not matter.
	reversed := []LegDelta{legs[1], legs[0]}
	if got := NewActionID(ActionOpen, 1001, "OPEN_1001", reversed); got != first {
		t.Errorf("leg order changed the id: %s vs %s", got, first)
	}
}

func TestActionIDSensitivity(t *testing.T) {
	legs := []LegDelta{{LegIndex: 0, Symbol: "XAUUSD", Side: ledger.SideBuy, Volume: 0.01, Entry: 3345}}
	base := NewActionID(ActionOpen, 1001, "OPEN_1001", legs)

	if got := NewActionID(ActionModify, 1001, "OPEN_1001", legs); got == base {
		t.Error("type change kept the id")
	}
	if got := NewActionID(ActionOpen, 1002, "OPEN_1001", legs); got == base {
		t.Error("source message change kept the id")
	}
	changed := []LegDelta{{LegIndex: 0, Symbol: "XAUUSD", Side: ledger.SideBuy, Volume: 0.01, Entry: 3346}}
	if got := NewActionID(ActionOpen, 1001, "OPEN_1001", changed); got == base {
		t.Error("entry change kept the id")
	}
}

func TestNewActionAssignsID(t *testing.T) {
	a := NewAction(ActionCancel, 1001, "OPEN_1001", "XAUUSD", []LegDelta{{LegIndex: 0, Ticket: 5}})
	if a.ID == "" || a.Type != ActionCancel || a.GroupKey != "OPEN_1001" {
		t.Errorf("action = %+v", a)
	}
	if a.ID != NewActionID(ActionCancel, 1001, "OPEN_1001", a.Legs) {
		t.Error("id does not match its content")
	}
}

func TestPipTable(t *testing.T) {
	table := NewPipTable(map[string]float64{"xauusd": 20, "NAS100": 10})

	tests := []struct {
		symbol string
		want   float64
	}{
		{"XAUUSD", 20}, // override beats default
		{"NAS100", 10},
		{"GOLD", 10},
		{"BTCUSD", 1},
		{"USDJPY", 100},
		{"EURUSD", 10000},
		{"UNKNOWN", 10000},
	}
	for _, tt := range tests {
		if got := table.Multiplier(tt.symbol); got != tt.want {
			t.Errorf("Multiplier(%s) = %v, want %v", tt.symbol, got, tt.want)
		}
	}

	if got := NewPipTable(nil).Offset("XAUUSD", 1.0); got != 0.1 {
		t.Errorf("Offset(XAUUSD, 1.0) = %v, want 0.1", got)
	}
}
