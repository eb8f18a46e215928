package rules

import (
	"errors"
	"testing"
)

func TestExtractEntrySignalSlots(t *testing.T) {
	cat := shippedCatalog(t)
	text := "BUY @ 3345.5/3340\nTP 3350\nTP 3360\nTP OPEN\nSL 3330"
	res := cat.MatchMessage(text)
	if res.Match == nil {
		t.Fatal("no match")
	}

	slots, err := cat.Extract(res.Match)
	if err != nil {
		t.Fatalf("Extract() error: %v", err)
	}

	if side := slots.Enum("side"); side != "BUY" {
		t.Errorf("side = %q", side)
	}

	pair, ok := slots.Pair("entry")
	if !ok {
		t.Fatal("entry pair missing")
	}
	if pair.Entry != 3345.5 || !pair.HasWorse || pair.Worse != 3340 {
		t.Errorf("entry = %+v", pair)
	}

	tps := slots.List("tps")
	if len(tps) != 3 {
		t.Fatalf("got %d take profits: %+v", len(tps), tps)
	}
	if tps[0].Price != 3350 || tps[1].Price != 3360 {
		t.Errorf("tp prices = %+v", tps)
	}
	if !tps[2].Open {
		t.Error("trailing TP OPEN marker not recognized")
	}

	sl, ok := slots.Price("sl")
	if !ok || sl != 3330 {
		t.Errorf("sl = %v (present %v)", sl, ok)
	}
}

func TestExtractSingleEntryNoWorse(t *testing.T) {
	cat := shippedCatalog(t)
	res := cat.MatchMessage("SELL @ 3360\nTP 3350\nSL 3372")
	if res.Match == nil {
		t.Fatal("no match")
	}
	slots, err := cat.Extract(res.Match)
	if err != nil {
		t.Fatal(err)
	}
	pair, _ := slots.Pair("entry")
	if pair.Entry != 3360 || pair.HasWorse {
		t.Errorf("entry = %+v, want single price", pair)
	}
}

func TestExtractPercent(t *testing.T) {
	cat := shippedCatalog(t)
	res := cat.MatchMessage("close 30% here")
	if res.Match == nil {
		t.Fatal("no match")
	}
	slots, err := cat.Extract(res.Match)
	if err != nil {
		t.Fatal(err)
	}
	pct, ok := slots.Percent("percent")
	if !ok || pct != 30 {
		t.Errorf("percent = %v (present %v)", pct, ok)
	}
}

func TestExtractPercentAbsentIsOmitted(t *testing.T) {
	cat := shippedCatalog(t)
	res := cat.MatchMessage("close half and run the rest")
	if res.Match == nil {
		t.Fatal("no match")
	}
	slots, err := cat.Extract(res.Match)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := slots["percent"]; ok {
		t.Error("absent optional slot must be omitted, not defaulted here")
	}
}

func TestExtractSlotValidationError(t *testing.T) {
	doc := `
dictionary_version: "v"
slots:
  percent:
    type: percentage
rules:
  - id: r1
    intent: CLOSE_PARTIAL
    priority: 1
    pattern: '(?i)close (?P<percent>\d+)%'
    required_slots: [percent]
`
	cat, err := Load([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	res := cat.MatchMessage("close 250% of it")
	if res.Match == nil {
		t.Fatal("no match")
	}
	_, err = cat.Extract(res.Match)
	if err == nil {
		t.Fatal("out-of-range percentage accepted")
	}
	var ve *SlotValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("error type = %T", err)
	}
	if ve.Slot != "percent" {
		t.Errorf("slot = %q", ve.Slot)
	}
}

func TestExtractMissingRequiredSlot(t *testing.T) {
	doc := `
dictionary_version: "v"
slots:
  sl:
    type: price
    pattern: '(?im)^SL (\d+(?:\.\d+)?)$'
rules:
  - id: r1
    intent: OPEN
    priority: 1
    scope: first_matching_block
    pattern: '(?i)\bBUY\b'
    required_slots: [sl]
`
	cat, err := Load([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	res := cat.MatchMessage("BUY gold now")
	if res.Match == nil {
		t.Fatal("no match")
	}
	if _, err := cat.Extract(res.Match); err == nil {
		t.Fatal("missing required slot accepted")
	}
}
