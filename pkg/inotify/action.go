package inotify

import (
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Action is a bit set of file change kinds
type Action uint32

const (
	ActionCreated Action = 1 << iota
	ActionUpdated
	ActionDeleted
	ActionMovedFrom
	ActionAttributesModified

	AllActions = ActionCreated | ActionUpdated | ActionDeleted | ActionMovedFrom | ActionAttributesModified
)

var actionNames = []struct {
	action Action
	name   string
}{
	{ActionCreated, "CREATED"},
	{ActionUpdated, "UPDATED"},
	{ActionDeleted, "DELETED"},
	{ActionMovedFrom, "MOVED_FROM"},
	{ActionAttributesModified, "ATTRIBUTES_MODIFIED"},
}

// String returns the action names joined by "|"
func (a Action) String() string {
	var names []string
	for _, n := range actionNames {
		if a&n.action != 0 {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(names, "|")
}

// ParseAction parses one action name
func ParseAction(name string) (Action, bool) {
	for _, n := range actionNames {
		if strings.EqualFold(n.name, name) {
			return n.action, true
		}
	}
	return 0, false
}

// actionsFromOp splits an fsnotify op into single actions, in a fixed order
func actionsFromOp(op fsnotify.Op) []Action {
	var out []Action
	if op.Has(fsnotify.Create) {
		out = append(out, ActionCreated)
	}
	if op.Has(fsnotify.Write) {
		out = append(out, ActionUpdated)
	}
	if op.Has(fsnotify.Remove) {
		out = append(out, ActionDeleted)
	}
	if op.Has(fsnotify.Rename) {
		out = append(out, ActionMovedFrom)
	}
	if op.Has(fsnotify.Chmod) {
		out = append(out, ActionAttributesModified)
	}
	return out
}
