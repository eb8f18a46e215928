package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"mt5-signal-bot/config"
	"mt5-signal-bot/internal/ledger"
	"mt5-signal-bot/internal/review"
	"mt5-signal-bot/internal/rules"
)

type fakeScheduler struct {
	mu     sync.Mutex
	groups []string
}

func (s *fakeScheduler) Schedule(groupKey string, _ int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = append(s.groups, groupKey)
	return true
}

func testEngineConfig() config.EngineConfig {
	return config.EngineConfig{
		DefaultSymbol:       "XAUUSD",
		DefaultLegVolume:    0.01,
		MaxLegs:             16,
		DefaultClosePercent: 50,
	}
}

func testBuilder(repo ledger.Repository, sched RiskFreeScheduler) *Builder {
	return NewBuilder(repo, testEngineConfig(), sched, zerolog.Nop())
}

func classify(t *testing.T, cat *rules.Catalog, text string) (*rules.Match, rules.SlotSet) {
	t.Helper()
	res := cat.MatchMessage(text)
	if res.Match == nil {
		t.Fatalf("no rule matched %q", text)
	}
	slots, err := cat.Extract(res.Match)
	if err != nil {
		t.Fatalf("slot extraction failed: %v", err)
	}
	return res.Match, slots
}

func loadCatalog(t *testing.T) *rules.Catalog {
	t.Helper()
	cat, err := rules.LoadFile("../../config/rules.yaml")
	if err != nil {
		t.Fatal(err)
	}
	return cat
}

func TestBuildOpenEntrySignal(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewMemoryRepository()
	b := testBuilder(repo, &fakeScheduler{})
	cat := loadCatalog(t)

	text := "BUY @ 3345/3340\nTP 3350\nTP 3360\nTP OPEN\nSL 3330"
	match, slots := classify(t, cat, text)
	res := b.Build(ctx, Inbound{ChatID: -100, MsgID: 1001, Text: text}, match, slots)

	if res.Rejection != nil {
		t.Fatalf("rejected: %+v", res.Rejection)
	}
	if len(res.Actions) != 1 {
		t.Fatalf("got %d actions", len(res.Actions))
	}
	a := res.Actions[0]
	if a.Type != ActionOpen || a.GroupKey != "OPEN_1001" || len(a.Legs) != 16 {
		t.Errorf("action = %+v", a)
	}
	for _, leg := range a.Legs {
		if leg.Comment == "" || leg.StopLoss != 3330 {
			t.Errorf("leg = %+v", leg)
		}
	}

	group, err := repo.Get(ctx, "OPEN_1001")
	if err != nil {
		t.Fatalf("group not persisted: %v", err)
	}
	if group.Side != ledger.SideBuy || len(group.Legs) != 16 {
		t.Errorf("group = %+v", group)
	}

	// Same message again yields the identical action id.
	res2 := b.Build(ctx, Inbound{ChatID: -100, MsgID: 1001, Text: text}, match, slots)
	if res2.Actions[0].ID != a.ID {
		t.Error("replay produced a different action id")
	}
}

func TestBuildOpenInvalidRange(t *testing.T) {
	ctx := context.Background()
	b := testBuilder(ledger.NewMemoryRepository(), &fakeScheduler{})
	cat := loadCatalog(t)

	text := "BUY @ 3340/3345\nSL 3330"
	match, slots := classify(t, cat, text)
	res := b.Build(ctx, Inbound{MsgID: 1001, Text: text}, match, slots)

	if res.Rejection == nil || res.Rejection.Reason != review.ReasonInvalidRange {
		t.Errorf("result = %+v, want INVALID_RANGE rejection", res)
	}
	if len(res.Actions) != 0 {
		t.Error("rejected signal still produced actions")
	}
}

func TestBuildModifyWithoutReference(t *testing.T) {
	ctx := context.Background()
	b := testBuilder(ledger.NewMemoryRepository(), &fakeScheduler{})
	cat := loadCatalog(t)

	text := "go risk free now"
	match, slots := classify(t, cat, text)
	res := b.Build(ctx, Inbound{MsgID: 2001, Text: text}, match, slots)

	if res.Rejection == nil || res.Rejection.Reason != review.ReasonMgmtNoQuoted {
		t.Errorf("result = %+v, want MGMT_NO_QUOTED", res)
	}
}

func TestBuildModifyUnknownGroup(t *testing.T) {
	ctx := context.Background()
	b := testBuilder(ledger.NewMemoryRepository(), &fakeScheduler{})
	cat := loadCatalog(t)

	text := "go risk free now"
	match, slots := classify(t, cat, text)
	res := b.Build(ctx, Inbound{MsgID: 2001, ReplyToMsgID: 999, Text: text}, match, slots)

	if res.Rejection == nil || res.Rejection.Reason != review.ReasonMgmtNoGroup {
		t.Errorf("result = %+v, want MGMT_NO_GK", res)
	}
}

func TestBuildRiskFreeSchedules(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewMemoryRepository()
	sched := &fakeScheduler{}
	b := testBuilder(repo, sched)
	cat := loadCatalog(t)

	seedLedgerGroup(t, repo, 1001)

	text := "go risk free now"
	match, slots := classify(t, cat, text)
	res := b.Build(ctx, Inbound{MsgID: 2001, ReplyToMsgID: 1001, Text: text}, match, slots)

	if !res.RiskFreeScheduled || res.Rejection != nil {
		t.Fatalf("result = %+v", res)
	}
	if len(sched.groups) != 1 || sched.groups[0] != "OPEN_1001" {
		t.Errorf("scheduled = %v", sched.groups)
	}
}

func TestBuildBreakEven(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewMemoryRepository()
	b := testBuilder(repo, &fakeScheduler{})
	cat := loadCatalog(t)

	seedLedgerGroup(t, repo, 1001)

	text := "move SL to BE"
	match, slots := classify(t, cat, text)
	res := b.Build(ctx, Inbound{MsgID: 2001, ReplyToMsgID: 1001, Text: text}, match, slots)

	if res.Rejection != nil {
		t.Fatalf("rejected: %+v", res.Rejection)
	}
	if len(res.Actions) != 1 || res.Actions[0].Type != ActionModify {
		t.Fatalf("actions = %+v", res.Actions)
	}
	// Only the filled leg moves; its new stop is its entry.
	legs := res.Actions[0].Legs
	if len(legs) != 1 || legs[0].StopLoss != 3345 {
		t.Errorf("legs = %+v", legs)
	}
}

func TestBuildMoveSL(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewMemoryRepository()
	b := testBuilder(repo, &fakeScheduler{})
	cat := loadCatalog(t)

	seedLedgerGroup(t, repo, 1001)

	text := "move SL to 3338"
	match, slots := classify(t, cat, text)
	res := b.Build(ctx, Inbound{MsgID: 2001, ReplyToMsgID: 1001, Text: text}, match, slots)

	if res.Rejection != nil {
		t.Fatalf("rejected: %+v", res.Rejection)
	}
	legs := res.Actions[0].Legs
	if len(legs) != 2 {
		t.Fatalf("legs = %+v", legs)
	}
	for _, l := range legs {
		if l.StopLoss != 3338 {
			t.Errorf("leg %d stop = %v", l.LegIndex, l.StopLoss)
		}
	}
}

func TestBuildMoveSLWithoutReferenceRule(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewMemoryRepository()
	b := testBuilder(repo, &fakeScheduler{})
	cat := loadCatalog(t)

	seedLedgerGroup(t, repo, 1001)

	text := "move SL to 3338"
	match, slots := classify(t, cat, text)
	relaxed := *match.Rule
	relaxed.RequiresReference = false
	match.Rule = &relaxed

	// One active group: the message lands on it without a reply link.
	res := b.Build(ctx, Inbound{MsgID: 2001, Text: text}, match, slots)
	if res.Rejection != nil {
		t.Fatalf("rejected: %+v", res.Rejection)
	}
	if len(res.Actions) != 1 || res.Actions[0].GroupKey != "OPEN_1001" {
		t.Fatalf("actions = %+v", res.Actions)
	}

	// A second active group makes the target ambiguous again.
	seedLedgerGroup(t, repo, 1002)
	res = b.Build(ctx, Inbound{MsgID: 2002, Text: text}, match, slots)
	if res.Rejection == nil || res.Rejection.Reason != review.ReasonMgmtNoQuoted {
		t.Errorf("result = %+v, want MGMT_NO_QUOTED", res)
	}
}

func TestBuildCancelTouchesPendingsOnly(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewMemoryRepository()
	b := testBuilder(repo, &fakeScheduler{})
	cat := loadCatalog(t)

	seedLedgerGroup(t, repo, 1001)

	text := "cancel the pending orders"
	match, slots := classify(t, cat, text)
	res := b.Build(ctx, Inbound{MsgID: 2001, ReplyToMsgID: 1001, Text: text}, match, slots)

	if res.Rejection != nil {
		t.Fatalf("rejected: %+v", res.Rejection)
	}
	if len(res.Actions) != 1 || res.Actions[0].Type != ActionCancel {
		t.Fatalf("actions = %+v", res.Actions)
	}
	legs := res.Actions[0].Legs
	if len(legs) != 1 || legs[0].LegIndex != 1 {
		t.Errorf("cancel legs = %+v, want only the pending leg", legs)
	}
}

func TestBuildClosePartialDefaultsPercent(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewMemoryRepository()
	b := testBuilder(repo, &fakeScheduler{})
	cat := loadCatalog(t)

	seedLedgerGroup(t, repo, 1001)

	text := "close half here"
	match, slots := classify(t, cat, text)
	res := b.Build(ctx, Inbound{MsgID: 2001, ReplyToMsgID: 1001, Text: text}, match, slots)

	if res.Rejection != nil {
		t.Fatalf("rejected: %+v", res.Rejection)
	}
	legs := res.Actions[0].Legs
	if len(legs) != 1 || legs[0].Volume != 0.005 {
		t.Errorf("close legs = %+v, want half of 0.01", legs)
	}
}

func TestBuildCloseAllCancelsAndCloses(t *testing.T) {
	ctx := context.Background()
	repo := ledger.NewMemoryRepository()
	b := testBuilder(repo, &fakeScheduler{})
	cat := loadCatalog(t)

	seedLedgerGroup(t, repo, 1001)

	text := "close all positions now"
	match, slots := classify(t, cat, text)
	res := b.Build(ctx, Inbound{MsgID: 2001, ReplyToMsgID: 1001, Text: text}, match, slots)

	if res.Rejection != nil {
		t.Fatalf("rejected: %+v", res.Rejection)
	}
	if len(res.Actions) != 2 {
		t.Fatalf("actions = %+v, want cancel plus close", res.Actions)
	}
	if res.Actions[0].Type != ActionCancel || res.Actions[1].Type != ActionCloseAll {
		t.Errorf("types = %s, %s", res.Actions[0].Type, res.Actions[1].Type)
	}
	if res.Actions[1].Legs[0].Volume != 0.01 {
		t.Errorf("close volume = %v", res.Actions[1].Legs[0].Volume)
	}
}

// seedLedgerGroup stores a two-leg group: leg 0 filled at 3345, leg 1
// still pending.
func seedLedgerGroup(t *testing.T, repo ledger.Repository, msgID int64) {
	t.Helper()
	group := &ledger.Group{
		Key:         ledger.GroupKey(msgID),
		SourceMsgID: msgID,
		ChatID:      -100,
		Symbol:      "XAUUSD",
		Side:        ledger.SideBuy,
		Legs: []ledger.Leg{
			{Index: 0, Symbol: "XAUUSD", Side: ledger.SideBuy, Volume: 0.01, Entry: 3345, StopLoss: 3330, TakeProfit: 3360, Ticket: 700001, Status: ledger.LegFilled},
			{Index: 1, Symbol: "XAUUSD", Side: ledger.SideBuy, Volume: 0.01, Entry: 3340, StopLoss: 3330, TakeProfit: 3360, Ticket: 700002, Status: ledger.LegPending},
		},
	}
	if err := repo.Save(context.Background(), group); err != nil {
		t.Fatal(err)
	}
}
