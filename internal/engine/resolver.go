package engine

import (
	"regexp"

	"mt5-signal-bot/internal/ledger"
)

// Management messages name their target group either through the reply
// link (the quoted message is the entry signal) or through an explicit
// [GK:OPEN_<id>] marker in the text. Bare numbers in the body are never
// treated as message ids; guessing a target is worse than not acting.
var gkMarkerRe = regexp.MustCompile(`\[GK:(OPEN_\d+)\]`)

// ResolveGroupKey derives the target group key for a management message.
// The reply link wins when both are present.
func ResolveGroupKey(replyToMsgID int64, text string) (string, bool) {
	if replyToMsgID > 0 {
		return ledger.GroupKey(replyToMsgID), true
	}
	if m := gkMarkerRe.FindStringSubmatch(text); m != nil {
		return m[1], true
	}
	return "", false
}
