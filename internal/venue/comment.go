package venue

import (
	"fmt"
	"regexp"
	"strconv"
)

// Comment tags tie venue tickets back to the signal group that created
// them. Positions carry "msgID_legIndex:LABEL"; pending orders carry
// "msgID_legIndex" or "msgID#legIndex", with an optional ":LABEL" suffix.
// The label is free-form uppercase (symbol or strategy marker).
var (
	positionCommentRe = regexp.MustCompile(`^(\d+)_(\d+):(.+)$`)
	orderCommentRe    = regexp.MustCompile(`^(\d+)[_#](\d+)(?::([A-Z0-9+]+))?$`)
)

// Tag identifies the group leg a ticket belongs to.
type Tag struct {
	SourceMsgID int64
	LegIndex    int
	Label       string
}

// GroupKey returns the ledger key the tag points at.
func (t Tag) GroupKey() string {
	return "OPEN_" + strconv.FormatInt(t.SourceMsgID, 10)
}

// EncodeComment builds the comment string stamped on every order this
// system places.
func EncodeComment(sourceMsgID int64, legIndex int, label string) string {
	return fmt.Sprintf("%d_%d:%s", sourceMsgID, legIndex, label)
}

// ParsePositionComment extracts the tag from a position comment.
func ParsePositionComment(comment string) (Tag, bool) {
	m := positionCommentRe.FindStringSubmatch(comment)
	if m == nil {
		return Tag{}, false
	}
	return buildTag(m[1], m[2], m[3])
}

// ParseOrderComment extracts the tag from a pending-order comment. Some
// terminals truncate the label, so it is optional here.
func ParseOrderComment(comment string) (Tag, bool) {
	m := orderCommentRe.FindStringSubmatch(comment)
	if m == nil {
		return Tag{}, false
	}
	return buildTag(m[1], m[2], m[3])
}

func buildTag(msgID, legIdx, label string) (Tag, bool) {
	id, err := strconv.ParseInt(msgID, 10, 64)
	if err != nil {
		return Tag{}, false
	}
	idx, err := strconv.Atoi(legIdx)
	if err != nil {
		return Tag{}, false
	}
	return Tag{SourceMsgID: id, LegIndex: idx, Label: label}, true
}

// BelongsToGroup reports whether a comment tags the given source message.
func BelongsToGroup(comment string, sourceMsgID int64) bool {
	if tag, ok := ParsePositionComment(comment); ok {
		return tag.SourceMsgID == sourceMsgID
	}
	if tag, ok := ParseOrderComment(comment); ok {
		return tag.SourceMsgID == sourceMsgID
	}
	return false
}
