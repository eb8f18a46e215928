// Package rules implements the declarative signal-classification catalog:
// loading and validating the versioned YAML rule document, segmenting
// message text, matching rules by priority, and extracting typed slots.
package rules

import "regexp"

// Intent is the classified purpose of a message. Exactly one intent is
// produced per message; messages that match nothing are UNPARSED.
type Intent string

const (
	IntentOpen         Intent = "OPEN"
	IntentModify       Intent = "MODIFY"
	IntentClosePartial Intent = "CLOSE_PARTIAL"
	IntentCloseAll     Intent = "CLOSE_ALL"
	IntentCancel       Intent = "CANCEL"
	IntentUnparsed     Intent = "UNPARSED"
)

// Valid reports whether the intent may appear in a rule document.
// UNPARSED is a classification result, never a declared rule intent.
func (i Intent) Valid() bool {
	switch i {
	case IntentOpen, IntentModify, IntentClosePartial, IntentCloseAll, IntentCancel:
		return true
	}
	return false
}

// Scope controls which part of the message a rule pattern is applied to.
type Scope string

const (
	ScopeWholeMessage       Scope = "whole_message"
	ScopeFirstMatchingBlock Scope = "first_matching_block"
)

// CoexistPolicy breaks ties when two rules match the same message.
type CoexistPolicy string

const (
	CoexistNone               CoexistPolicy = "none"
	CoexistSkipIfEntryPresent CoexistPolicy = "skip_if_entry_present"
	CoexistPreferEntry        CoexistPolicy = "prefer_entry"
	CoexistPreferSelf         CoexistPolicy = "prefer_self"
)

// Variant disambiguates rules that share an intent but drive different
// behavior in the action builder (e.g. MODIFY via break-even vs move-SL).
type Variant string

const (
	VariantNone      Variant = ""
	VariantOpen      Variant = "open"
	VariantRiskFree  Variant = "risk_free"
	VariantBreakEven Variant = "break_even"
	VariantMoveSL    Variant = "move_sl"
	VariantSetTP     Variant = "set_tp"
	VariantTP2Hit    Variant = "tp2_hit"
)

// SlotType identifies the canonical parser for a slot.
type SlotType string

const (
	SlotPrice      SlotType = "price"
	SlotPricePair  SlotType = "price_pair"
	SlotPriceList  SlotType = "price_list_with_markers"
	SlotEnum       SlotType = "enum"
	SlotPercentage SlotType = "percentage"
)

// SlotSpec declares a named, typed slot at catalog level. Rules reference
// slots by name. A slot value is taken from the rule pattern's capture
// group of the same name when present; otherwise Pattern is applied to the
// matched block.
type SlotSpec struct {
	Name    string
	Type    SlotType
	Values  []string       // enum: allowed values, uppercased
	Pattern *regexp.Regexp // standalone extraction pattern, required for list slots
}

// RuleDefinition is one compiled classification rule. IDs are stable:
// a breaking change to a rule's meaning gets a new id with a bumped
// version suffix, never a reused one.
type RuleDefinition struct {
	ID                string
	Intent            Intent
	Variant           Variant
	Priority          int
	Scope             Scope
	Pattern           *regexp.Regexp
	RequiredSlots     []string
	OptionalSlots     []string
	Coexist           CoexistPolicy
	RequiresReference bool
}

// PriceOrOpen is one element of a price_list_with_markers slot: either a
// concrete price or the literal "open" marker (target left at discretion).
type PriceOrOpen struct {
	Open  bool
	Price float64
}

// PricePair is an (entry, worse) price pair, where Worse is the band edge
// logically further from market. Worse is optional in the source text.
type PricePair struct {
	Entry    float64
	Worse    float64
	HasWorse bool
}

// SlotValue is an extracted, typed slot value. Exactly one field group is
// populated according to Type. Values are immutable once extracted.
type SlotValue struct {
	Type    SlotType
	Price   float64
	Pair    PricePair
	List    []PriceOrOpen
	Enum    string
	Percent float64
}

// SlotSet maps slot name to its extracted value.
type SlotSet map[string]SlotValue

// Enum returns the enum value of a slot, or "" when absent.
func (s SlotSet) Enum(name string) string {
	if v, ok := s[name]; ok && v.Type == SlotEnum {
		return v.Enum
	}
	return ""
}

// Price returns the price value of a slot and whether it is present.
func (s SlotSet) Price(name string) (float64, bool) {
	v, ok := s[name]
	if !ok || v.Type != SlotPrice {
		return 0, false
	}
	return v.Price, true
}

// Pair returns the price-pair value of a slot and whether it is present.
func (s SlotSet) Pair(name string) (PricePair, bool) {
	v, ok := s[name]
	if !ok || v.Type != SlotPricePair {
		return PricePair{}, false
	}
	return v.Pair, true
}

// List returns the price-list value of a slot, or nil when absent.
func (s SlotSet) List(name string) []PriceOrOpen {
	if v, ok := s[name]; ok && v.Type == SlotPriceList {
		return v.List
	}
	return nil
}

// Percent returns the percentage value of a slot and whether it is present.
func (s SlotSet) Percent(name string) (float64, bool) {
	v, ok := s[name]
	if !ok || v.Type != SlotPercentage {
		return 0, false
	}
	return v.Percent, true
}
