package rules

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// SchemaError reports a malformed rule document. Catalog load is
// all-or-nothing: a schema error leaves no partial catalog behind.
type SchemaError struct {
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("rule document schema error at %s: %s", e.Field, e.Reason)
}

// Catalog is the immutable, compiled rule set. It is safe for concurrent
// readers without locking; reload replaces the whole catalog atomically
// through a Holder.
type Catalog struct {
	Version        string
	Slots          map[string]SlotSpec
	Rules          []*RuleDefinition // sorted by priority desc, then id asc
	IgnoreContains []string          // lowercased ignore-gate phrases
}

// document mirrors the YAML rule document layout.
type document struct {
	Version string             `yaml:"dictionary_version"`
	Slots   map[string]slotDoc `yaml:"slots"`
	Ignore  ignoreDoc          `yaml:"ignore"`
	Rules   []ruleDoc          `yaml:"rules"`
}

type slotDoc struct {
	Type    string   `yaml:"type"`
	Values  []string `yaml:"values"`
	Pattern string   `yaml:"pattern"`
}

type ignoreDoc struct {
	Contains []string `yaml:"contains"`
}

type ruleDoc struct {
	ID                string   `yaml:"id"`
	Intent            string   `yaml:"intent"`
	Variant           string   `yaml:"variant"`
	Priority          int      `yaml:"priority"`
	Scope             string   `yaml:"scope"`
	Pattern           string   `yaml:"pattern"`
	RequiredSlots     []string `yaml:"required_slots"`
	OptionalSlots     []string `yaml:"optional_slots"`
	Coexist           string   `yaml:"coexist"`
	RequiresReference bool     `yaml:"requires_reference"`
}

// Load parses and validates a rule document, compiling every pattern once.
func Load(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &SchemaError{Field: "document", Reason: err.Error()}
	}

	if doc.Version == "" {
		return nil, &SchemaError{Field: "dictionary_version", Reason: "missing"}
	}
	if len(doc.Rules) == 0 {
		return nil, &SchemaError{Field: "rules", Reason: "empty rule list"}
	}

	catalog := &Catalog{
		Version: doc.Version,
		Slots:   make(map[string]SlotSpec, len(doc.Slots)),
	}

	for name, sd := range doc.Slots {
		spec, err := compileSlot(name, sd)
		if err != nil {
			return nil, err
		}
		catalog.Slots[name] = spec
	}

	for _, phrase := range doc.Ignore.Contains {
		if trimmed := strings.TrimSpace(phrase); trimmed != "" {
			catalog.IgnoreContains = append(catalog.IgnoreContains, strings.ToLower(trimmed))
		}
	}

	seen := make(map[string]bool, len(doc.Rules))
	for i, rd := range doc.Rules {
		rule, err := compileRule(i, rd, catalog.Slots)
		if err != nil {
			return nil, err
		}
		if seen[rule.ID] {
			return nil, &SchemaError{
				Field:  fmt.Sprintf("rules[%d].id", i),
				Reason: fmt.Sprintf("duplicate rule id %q", rule.ID),
			}
		}
		seen[rule.ID] = true
		catalog.Rules = append(catalog.Rules, rule)
	}

	sort.SliceStable(catalog.Rules, func(a, b int) bool {
		if catalog.Rules[a].Priority != catalog.Rules[b].Priority {
			return catalog.Rules[a].Priority > catalog.Rules[b].Priority
		}
		return catalog.Rules[a].ID < catalog.Rules[b].ID
	})

	return catalog, nil
}

// LoadFile reads and loads a rule document from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule document %s: %w", path, err)
	}
	return Load(data)
}

func compileSlot(name string, sd slotDoc) (SlotSpec, error) {
	spec := SlotSpec{Name: name, Type: SlotType(sd.Type)}

	switch spec.Type {
	case SlotPrice, SlotPricePair, SlotPriceList, SlotEnum, SlotPercentage:
	default:
		return spec, &SchemaError{
			Field:  "slots." + name + ".type",
			Reason: fmt.Sprintf("unknown slot type %q", sd.Type),
		}
	}

	if spec.Type == SlotEnum {
		if len(sd.Values) == 0 {
			return spec, &SchemaError{Field: "slots." + name + ".values", Reason: "enum slot needs values"}
		}
		for _, v := range sd.Values {
			spec.Values = append(spec.Values, strings.ToUpper(v))
		}
	}

	if sd.Pattern != "" {
		re, err := regexp.Compile(sd.Pattern)
		if err != nil {
			return spec, &SchemaError{Field: "slots." + name + ".pattern", Reason: err.Error()}
		}
		if re.NumSubexp() < 1 {
			return spec, &SchemaError{Field: "slots." + name + ".pattern", Reason: "needs one capture group"}
		}
		spec.Pattern = re
	}

	if spec.Type == SlotPriceList && spec.Pattern == nil {
		return spec, &SchemaError{Field: "slots." + name, Reason: "list slot needs a pattern"}
	}

	return spec, nil
}

func compileRule(idx int, rd ruleDoc, slots map[string]SlotSpec) (*RuleDefinition, error) {
	field := func(sub string) string { return fmt.Sprintf("rules[%d].%s", idx, sub) }

	if rd.ID == "" {
		return nil, &SchemaError{Field: field("id"), Reason: "missing"}
	}

	intent := Intent(rd.Intent)
	if !intent.Valid() {
		return nil, &SchemaError{Field: field("intent"), Reason: fmt.Sprintf("undeclared intent %q", rd.Intent)}
	}

	scope := Scope(rd.Scope)
	if scope == "" {
		scope = ScopeWholeMessage
	}
	if scope != ScopeWholeMessage && scope != ScopeFirstMatchingBlock {
		return nil, &SchemaError{Field: field("scope"), Reason: fmt.Sprintf("unknown scope %q", rd.Scope)}
	}

	coexist := CoexistPolicy(rd.Coexist)
	if coexist == "" {
		coexist = CoexistNone
	}
	switch coexist {
	case CoexistNone, CoexistSkipIfEntryPresent, CoexistPreferEntry, CoexistPreferSelf:
	default:
		return nil, &SchemaError{Field: field("coexist"), Reason: fmt.Sprintf("unknown policy %q", rd.Coexist)}
	}

	if rd.Pattern == "" {
		return nil, &SchemaError{Field: field("pattern"), Reason: "missing"}
	}
	re, err := regexp.Compile(rd.Pattern)
	if err != nil {
		return nil, &SchemaError{Field: field("pattern"), Reason: err.Error()}
	}

	rule := &RuleDefinition{
		ID:                rd.ID,
		Intent:            intent,
		Variant:           Variant(rd.Variant),
		Priority:          rd.Priority,
		Scope:             scope,
		Pattern:           re,
		RequiredSlots:     rd.RequiredSlots,
		OptionalSlots:     rd.OptionalSlots,
		Coexist:           coexist,
		RequiresReference: rd.RequiresReference,
	}

	groups := make(map[string]bool)
	for _, name := range re.SubexpNames() {
		if name != "" {
			groups[name] = true
		}
	}

	for _, slotName := range append(append([]string{}, rd.RequiredSlots...), rd.OptionalSlots...) {
		spec, ok := slots[slotName]
		if !ok {
			return nil, &SchemaError{Field: field("slots"), Reason: fmt.Sprintf("undeclared slot %q", slotName)}
		}
		// Every referenced slot must be extractable: either the rule pattern
		// captures it by name, or the slot carries its own pattern.
		if spec.Pattern == nil && !groups[slotName] {
			return nil, &SchemaError{
				Field:  field("slots"),
				Reason: fmt.Sprintf("slot %q has no pattern and rule captures no group of that name", slotName),
			}
		}
	}

	return rule, nil
}

// ShouldIgnore reports whether the ignore gate drops this message before
// classification (promotional chatter, housekeeping notices).
func (c *Catalog) ShouldIgnore(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, phrase := range c.IgnoreContains {
		if strings.Contains(lower, phrase) {
			return phrase, true
		}
	}
	return "", false
}

// Holder publishes the active catalog. Readers are lock-free; Swap
// replaces the catalog atomically so a reload can never expose a
// partially-updated rule set.
type Holder struct {
	ptr atomic.Pointer[Catalog]
}

// NewHolder creates a holder with an initial catalog.
func NewHolder(c *Catalog) *Holder {
	h := &Holder{}
	h.ptr.Store(c)
	return h
}

// Get returns the active catalog.
func (h *Holder) Get() *Catalog {
	return h.ptr.Load()
}

// Version returns the active catalog version for diagnostics.
func (h *Holder) Version() string {
	return h.ptr.Load().Version
}

// Reload loads a rule document from disk and swaps it in. On error the
// previous catalog stays active.
func (h *Holder) Reload(path string) (string, error) {
	catalog, err := LoadFile(path)
	if err != nil {
		return "", err
	}
	h.ptr.Store(catalog)
	return catalog.Version, nil
}
