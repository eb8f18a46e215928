package rules

import (
	"fmt"
	"strconv"
	"strings"
)

// SlotValidationError reports a slot that matched structurally but failed
// typed validation. It is distinct from a plain no-match: the message is
// recognized, its payload is not trustworthy.
type SlotValidationError struct {
	Slot   string
	Raw    string
	Reason string
}

func (e *SlotValidationError) Error() string {
	return fmt.Sprintf("slot %q rejected value %q: %s", e.Slot, e.Raw, e.Reason)
}

// Extract pulls every slot the matched rule references out of the matched
// text. Required slots that cannot be found produce a SlotValidationError;
// optional slots that are absent are simply omitted from the set.
func (c *Catalog) Extract(m *Match) (SlotSet, error) {
	set := make(SlotSet)

	for _, name := range m.Rule.RequiredSlots {
		val, found, err := c.extractSlot(m, name)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, &SlotValidationError{Slot: name, Reason: "required slot not found"}
		}
		set[name] = val
	}

	for _, name := range m.Rule.OptionalSlots {
		val, found, err := c.extractSlot(m, name)
		if err != nil {
			return nil, err
		}
		if found {
			set[name] = val
		}
	}

	return set, nil
}

func (c *Catalog) extractSlot(m *Match, name string) (SlotValue, bool, error) {
	spec, ok := c.Slots[name]
	if !ok {
		return SlotValue{}, false, &SlotValidationError{Slot: name, Reason: "slot not declared"}
	}

	switch spec.Type {
	case SlotPrice:
		raw, ok := m.Groups[name]
		if !ok || raw == "" {
			if spec.Pattern == nil {
				return SlotValue{}, false, nil
			}
			sub := spec.Pattern.FindStringSubmatch(m.BlockText)
			if sub == nil {
				return SlotValue{}, false, nil
			}
			raw = sub[1]
		}
		p, err := parsePrice(name, raw)
		if err != nil {
			return SlotValue{}, false, err
		}
		return SlotValue{Type: SlotPrice, Price: p}, true, nil

	case SlotPricePair:
		raw, ok := m.Groups[name]
		if !ok || raw == "" {
			return SlotValue{}, false, nil
		}
		entry, err := parsePrice(name, raw)
		if err != nil {
			return SlotValue{}, false, err
		}
		pair := PricePair{Entry: entry}
		if worse, ok := m.Groups[name+"_worse"]; ok && worse != "" {
			w, err := parsePrice(name, worse)
			if err != nil {
				return SlotValue{}, false, err
			}
			pair.Worse = w
			pair.HasWorse = true
		}
		return SlotValue{Type: SlotPricePair, Pair: pair}, true, nil

	case SlotPriceList:
		subs := spec.Pattern.FindAllStringSubmatch(m.BlockText, -1)
		if len(subs) == 0 {
			return SlotValue{}, false, nil
		}
		list := make([]PriceOrOpen, 0, len(subs))
		for _, sub := range subs {
			token := strings.TrimSpace(sub[1])
			if strings.EqualFold(token, "open") {
				list = append(list, PriceOrOpen{Open: true})
				continue
			}
			p, err := parsePrice(name, token)
			if err != nil {
				return SlotValue{}, false, err
			}
			list = append(list, PriceOrOpen{Price: p})
		}
		return SlotValue{Type: SlotPriceList, List: list}, true, nil

	case SlotEnum:
		raw, ok := m.Groups[name]
		if !ok || raw == "" {
			if spec.Pattern == nil {
				return SlotValue{}, false, nil
			}
			sub := spec.Pattern.FindStringSubmatch(m.BlockText)
			if sub == nil {
				return SlotValue{}, false, nil
			}
			raw = sub[1]
		}
		upper := strings.ToUpper(strings.TrimSpace(raw))
		for _, allowed := range spec.Values {
			if upper == allowed {
				return SlotValue{Type: SlotEnum, Enum: upper}, true, nil
			}
		}
		return SlotValue{}, false, &SlotValidationError{Slot: name, Raw: raw, Reason: "value not in enum"}

	case SlotPercentage:
		raw, ok := m.Groups[name]
		if !ok || raw == "" {
			if spec.Pattern == nil {
				return SlotValue{}, false, nil
			}
			sub := spec.Pattern.FindStringSubmatch(m.BlockText)
			if sub == nil {
				return SlotValue{}, false, nil
			}
			raw = sub[1]
		}
		pct, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(raw), "%"), 64)
		if err != nil {
			return SlotValue{}, false, &SlotValidationError{Slot: name, Raw: raw, Reason: "not a number"}
		}
		if pct <= 0 || pct > 100 {
			return SlotValue{}, false, &SlotValidationError{Slot: name, Raw: raw, Reason: "percentage out of range (0, 100]"}
		}
		return SlotValue{Type: SlotPercentage, Percent: pct}, true, nil
	}

	return SlotValue{}, false, &SlotValidationError{Slot: name, Reason: "unsupported slot type"}
}

func parsePrice(slot, raw string) (float64, error) {
	p, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, &SlotValidationError{Slot: slot, Raw: raw, Reason: "not a number"}
	}
	if p <= 0 {
		return 0, &SlotValidationError{Slot: slot, Raw: raw, Reason: "price must be positive"}
	}
	return p, nil
}
