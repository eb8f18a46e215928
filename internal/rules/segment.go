package rules

import (
	"regexp"
	"strings"
)

// Block is one candidate text block of a message. Blocks are separated by
// blank lines; Index preserves original order.
type Block struct {
	Index int
	Text  string
}

var zeroWidthRe = regexp.MustCompile("[\u200B-\u200D\uFEFF]")

// Clean strips zero-width characters and emoji from message text while
// preserving newlines and all other whitespace, so that line-anchored
// patterns keep working on decorated signals.
func Clean(s string) string {
	if s == "" {
		return ""
	}
	s = zeroWidthRe.ReplaceAllString(s, "")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= 0x1F300 && r <= 0x1FAFF {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Segment splits cleaned message text into ordered blocks at blank-line
// boundaries. Lines containing only whitespace count as blank. Empty
// blocks are dropped.
func Segment(text string) []Block {
	cleaned := Clean(text)
	lines := strings.Split(cleaned, "\n")

	var blocks []Block
	var current []string

	flush := func() {
		if len(current) == 0 {
			return
		}
		blockText := strings.TrimRight(strings.Join(current, "\n"), " \t")
		if strings.TrimSpace(blockText) != "" {
			blocks = append(blocks, Block{Index: len(blocks), Text: blockText})
		}
		current = current[:0]
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	return blocks
}
