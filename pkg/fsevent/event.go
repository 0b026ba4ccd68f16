// Package fsevent defines the tagged filesystem-change notification stream
// consumed by the mirror engine, and an fsnotify-backed watcher producing it.
//
// The engine treats the watcher as a black box: it must tolerate duplicate
// and reordered notifications, so the adapter here only maps raw OS events to
// tags and never tries to be clever about ordering.
package fsevent

import (
	"fmt"
	"time"
)

// Kind classifies a notification.
type Kind int

const (
	// KindCreate reports a new file or directory.
	KindCreate Kind = iota
	// KindModify reports a content or metadata change.
	KindModify
	// KindRenameFrom reports the old path of a rename or move.
	KindRenameFrom
	// KindRenameTo reports the new path of a rename or move.
	KindRenameTo
	// KindRemove reports a deleted file or directory.
	KindRemove
	// KindAccess reports a read-only access. Always ignored.
	KindAccess
	// KindOther is anything the watcher could not classify.
	KindOther
)

func (k Kind) String() string {
	switch k {
	case KindCreate:
		return "create"
	case KindModify:
		return "modify"
	case KindRenameFrom:
		return "rename-from"
	case KindRenameTo:
		return "rename-to"
	case KindRemove:
		return "remove"
	case KindAccess:
		return "access"
	case KindOther:
		return "other"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is a single change notification. Paths are absolute. Time is the
// instant the notification was captured; statistics mode reports operation
// latency against it.
type Event struct {
	Kind  Kind
	Paths []string
	Time  time.Time
}
