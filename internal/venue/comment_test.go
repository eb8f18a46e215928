package venue

import (
	"context"
	"testing"

	"mt5-signal-bot/internal/ledger"
)

func TestEncodeComment(t *testing.T) {
	got := EncodeComment(1001, 3, "XAUUSD")
	if got != "1001_3:XAUUSD" {
		t.Errorf("EncodeComment = %q", got)
	}
}

func TestParsePositionComment(t *testing.T) {
	tests := []struct {
		comment string
		want    Tag
		ok      bool
	}{
		{"1001_3:XAUUSD", Tag{SourceMsgID: 1001, LegIndex: 3, Label: "XAUUSD"}, true},
		{"1001_0:GOLD+A", Tag{SourceMsgID: 1001, LegIndex: 0, Label: "GOLD+A"}, true},
		{"1001_3", Tag{}, false}, // positions always carry a label
		{"manual entry", Tag{}, false},
		{"", Tag{}, false},
	}
	for _, tt := range tests {
		got, ok := ParsePositionComment(tt.comment)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParsePositionComment(%q) = %+v, %v", tt.comment, got, ok)
		}
	}
}

func TestParseOrderComment(t *testing.T) {
	tests := []struct {
		comment string
		want    Tag
		ok      bool
	}{
		{"1001_3:XAUUSD", Tag{SourceMsgID: 1001, LegIndex: 3, Label: "XAUUSD"}, true},
		{"1001#7", Tag{SourceMsgID: 1001, LegIndex: 7}, true}, // truncated label
		{"1001_7", Tag{SourceMsgID: 1001, LegIndex: 7}, true},
		{"1001_7:lower", Tag{}, false}, // labels are uppercase
		{"junk", Tag{}, false},
	}
	for _, tt := range tests {
		got, ok := ParseOrderComment(tt.comment)
		if ok != tt.ok || got != tt.want {
			t.Errorf("ParseOrderComment(%q) = %+v, %v", tt.comment, got, ok)
		}
	}
}

func TestTagGroupKey(t *testing.T) {
	tag := Tag{SourceMsgID: 1001, LegIndex: 0}
	if tag.GroupKey() != ledger.GroupKey(1001) {
		t.Errorf("GroupKey mismatch: %q vs %q", tag.GroupKey(), ledger.GroupKey(1001))
	}
}

func TestBelongsToGroup(t *testing.T) {
	if !BelongsToGroup("1001_2:XAUUSD", 1001) {
		t.Error("position comment not recognized")
	}
	if !BelongsToGroup("1001#2", 1001) {
		t.Error("order comment not recognized")
	}
	if BelongsToGroup("1002_2:XAUUSD", 1001) {
		t.Error("foreign comment matched")
	}
	if BelongsToGroup("manual", 1001) {
		t.Error("untagged comment matched")
	}
}

func TestMockClientLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMockClient()

	ticket, err := m.PlaceOrder(ctx, OrderRequest{
		Symbol: "XAUUSD", Side: ledger.SideBuy, Volume: 0.01,
		Price: 3345, StopLoss: 3330, Comment: EncodeComment(1001, 0, "XAUUSD"),
	})
	if err != nil {
		t.Fatal(err)
	}

	orders, _ := m.Orders(ctx, "XAUUSD")
	if len(orders) != 1 || orders[0].Ticket != ticket {
		t.Fatalf("orders = %+v", orders)
	}

	if _, ok := m.Fill(ticket); !ok {
		t.Fatal("fill failed")
	}
	positions, _ := m.Positions(ctx, "XAUUSD")
	if len(positions) != 1 {
		t.Fatalf("positions = %+v", positions)
	}
	if positions[0].Side != ledger.SideBuy {
		t.Errorf("side = %s", positions[0].Side)
	}

	if err := m.ModifyPosition(ctx, ticket, 3346.77, 0); err != nil {
		t.Fatal(err)
	}
	positions, _ = m.Positions(ctx, "XAUUSD")
	if positions[0].StopLoss != 3346.77 {
		t.Errorf("stop loss = %v", positions[0].StopLoss)
	}

	if err := m.ClosePosition(ctx, ticket, 0.01); err != nil {
		t.Fatal(err)
	}
	positions, _ = m.Positions(ctx, "XAUUSD")
	if len(positions) != 0 {
		t.Errorf("position survived full close: %+v", positions)
	}
}
