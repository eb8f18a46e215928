package rules

import (
	"errors"
	"testing"
)

const minimalDoc = `
dictionary_version: "test.1"
slots:
  side:
    type: enum
    values: [BUY, SELL]
  entry:
    type: price_pair
ignore:
  contains: ["join our vip"]
rules:
  - id: open_v1
    intent: OPEN
    priority: 100
    scope: first_matching_block
    pattern: '(?im)^(?P<side>BUY|SELL)\s*@\s*(?P<entry>\d+(?:\.\d+)?)'
    required_slots: [side, entry]
  - id: close_all_v1
    intent: CLOSE_ALL
    priority: 70
    pattern: '(?i)\bclose all\b'
    coexist: skip_if_entry_present
    requires_reference: true
`

func TestLoadValidDocument(t *testing.T) {
	cat, err := Load([]byte(minimalDoc))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cat.Version != "test.1" {
		t.Errorf("version = %q", cat.Version)
	}
	if len(cat.Rules) != 2 {
		t.Fatalf("got %d rules", len(cat.Rules))
	}
	// Sorted by priority descending.
	if cat.Rules[0].ID != "open_v1" || cat.Rules[1].ID != "close_all_v1" {
		t.Errorf("rule order = %s, %s", cat.Rules[0].ID, cat.Rules[1].ID)
	}
	if cat.Rules[1].Scope != ScopeWholeMessage {
		t.Errorf("scope default = %q, want whole_message", cat.Rules[1].Scope)
	}
	if !cat.Rules[1].RequiresReference {
		t.Error("requires_reference not carried")
	}
}

func TestLoadSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing version", `
rules:
  - {id: r1, intent: OPEN, priority: 1, pattern: 'x'}
`},
		{"empty rules", `
dictionary_version: "v"
rules: []
`},
		{"duplicate id", `
dictionary_version: "v"
rules:
  - {id: r1, intent: OPEN, priority: 1, pattern: 'x'}
  - {id: r1, intent: CANCEL, priority: 2, pattern: 'y'}
`},
		{"unknown intent", `
dictionary_version: "v"
rules:
  - {id: r1, intent: SHRUG, priority: 1, pattern: 'x'}
`},
		{"UNPARSED not declarable", `
dictionary_version: "v"
rules:
  - {id: r1, intent: UNPARSED, priority: 1, pattern: 'x'}
`},
		{"bad pattern", `
dictionary_version: "v"
rules:
  - {id: r1, intent: OPEN, priority: 1, pattern: '(['}
`},
		{"undeclared slot", `
dictionary_version: "v"
rules:
  - {id: r1, intent: OPEN, priority: 1, pattern: 'x', required_slots: [ghost]}
`},
		{"slot with no extraction path", `
dictionary_version: "v"
slots:
  sl:
    type: price
rules:
  - {id: r1, intent: OPEN, priority: 1, pattern: 'x', required_slots: [sl]}
`},
		{"list slot without pattern", `
dictionary_version: "v"
slots:
  tps:
    type: price_list_with_markers
rules:
  - {id: r1, intent: OPEN, priority: 1, pattern: 'x'}
`},
		{"enum without values", `
dictionary_version: "v"
slots:
  side:
    type: enum
rules:
  - {id: r1, intent: OPEN, priority: 1, pattern: 'x'}
`},
		{"unknown coexist policy", `
dictionary_version: "v"
rules:
  - {id: r1, intent: OPEN, priority: 1, pattern: 'x', coexist: maybe}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.doc))
			if err == nil {
				t.Fatal("Load() accepted malformed document")
			}
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Errorf("error type = %T, want *SchemaError", err)
			}
		})
	}
}

func TestShouldIgnore(t *testing.T) {
	cat, err := Load([]byte(minimalDoc))
	if err != nil {
		t.Fatal(err)
	}
	if phrase, ok := cat.ShouldIgnore("JOIN OUR VIP channel today"); !ok || phrase != "join our vip" {
		t.Errorf("ShouldIgnore missed, got (%q, %v)", phrase, ok)
	}
	if _, ok := cat.ShouldIgnore("BUY @ 3345"); ok {
		t.Error("ShouldIgnore dropped a signal")
	}
}

func TestHolderReloadKeepsOldOnError(t *testing.T) {
	cat, err := Load([]byte(minimalDoc))
	if err != nil {
		t.Fatal(err)
	}
	h := NewHolder(cat)
	if _, err := h.Reload("does-not-exist.yaml"); err == nil {
		t.Fatal("Reload() of missing file succeeded")
	}
	if h.Get() != cat {
		t.Error("failed reload replaced the active catalog")
	}
	if h.Version() != "test.1" {
		t.Errorf("Version() = %q", h.Version())
	}
}

func TestLoadShippedDocument(t *testing.T) {
	cat, err := LoadFile("../../config/rules.yaml")
	if err != nil {
		t.Fatalf("shipped rule document fails to load: %v", err)
	}
	if len(cat.Rules) == 0 {
		t.Fatal("shipped rule document has no rules")
	}
	for i := 1; i < len(cat.Rules); i++ {
		if cat.Rules[i].Priority > cat.Rules[i-1].Priority {
			t.Fatalf("rules not sorted by priority at %d", i)
		}
	}
}
