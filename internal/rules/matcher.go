package rules

import (
	"sort"
)

// Match records one rule firing against a cleaned message.
type Match struct {
	Rule       *RuleDefinition
	BlockIndex int               // -1 for whole-message scope
	BlockText  string            // text the slot patterns scan over
	Groups     map[string]string // named captures from the rule pattern
}

// MatchResult is the outcome of classifying one message.
type MatchResult struct {
	Match      *Match
	Ambiguous  bool     // true when an unresolvable tie forces UNPARSED
	Contenders []string // rule ids involved in the tie, for diagnostics
}

// MatchMessage classifies cleaned text against the catalog. Rules are
// evaluated in priority order (descending, id ascending on ties) and the
// first survivor of coexistence filtering wins. A tie between rules of
// equal priority but different intents and no coexistence policy is
// never guessed at; it surfaces as ambiguous.
func (c *Catalog) MatchMessage(text string) MatchResult {
	blocks := Segment(text)
	matches := c.collect(text, blocks)
	if len(matches) == 0 {
		return MatchResult{}
	}

	matches = filterCoexist(matches)
	if len(matches) == 0 {
		return MatchResult{}
	}

	top := matches[0]
	for _, m := range matches[1:] {
		if m.Rule.Priority != top.Rule.Priority {
			break
		}
		if m.Rule.Intent != top.Rule.Intent && top.Rule.Coexist == CoexistNone && m.Rule.Coexist == CoexistNone {
			ids := []string{top.Rule.ID, m.Rule.ID}
			return MatchResult{Ambiguous: true, Contenders: ids}
		}
	}

	return MatchResult{Match: top}
}

// collect gathers every structural match, already sorted by priority
// descending then rule id ascending.
func (c *Catalog) collect(text string, blocks []Block) []*Match {
	var matches []*Match
	for _, rule := range c.Rules {
		switch rule.Scope {
		case ScopeWholeMessage:
			if m := matchAgainst(rule, -1, text); m != nil {
				matches = append(matches, m)
			}
		case ScopeFirstMatchingBlock:
			for _, b := range blocks {
				if m := matchAgainst(rule, b.Index, b.Text); m != nil {
					matches = append(matches, m)
					break
				}
			}
		}
	}
	sort.SliceStable(matches, func(a, b int) bool {
		if matches[a].Rule.Priority != matches[b].Rule.Priority {
			return matches[a].Rule.Priority > matches[b].Rule.Priority
		}
		return matches[a].Rule.ID < matches[b].Rule.ID
	})
	return matches
}

func matchAgainst(rule *RuleDefinition, blockIdx int, text string) *Match {
	loc := rule.Pattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil
	}
	groups := make(map[string]string)
	for i, name := range rule.Pattern.SubexpNames() {
		if name == "" || 2*i >= len(loc) || loc[2*i] < 0 {
			continue
		}
		groups[name] = text[loc[2*i]:loc[2*i+1]]
	}
	return &Match{Rule: rule, BlockIndex: blockIdx, BlockText: text, Groups: groups}
}

// filterCoexist applies coexistence policies when entry and management
// rules both fire on the same message.
func filterCoexist(matches []*Match) []*Match {
	entryPresent := false
	for _, m := range matches {
		if m.Rule.Intent == IntentOpen {
			entryPresent = true
			break
		}
	}

	var selfWinner *Match
	for _, m := range matches {
		if m.Rule.Coexist == CoexistPreferSelf {
			selfWinner = m
			break
		}
	}
	if selfWinner != nil {
		return []*Match{selfWinner}
	}

	if !entryPresent {
		return matches
	}

	kept := matches[:0:0]
	for _, m := range matches {
		switch m.Rule.Coexist {
		case CoexistSkipIfEntryPresent, CoexistPreferEntry:
			// Entry rule takes the message; management phrasing inside an
			// entry signal describes the plan, not an instruction.
			continue
		default:
			kept = append(kept, m)
		}
	}
	return kept
}
