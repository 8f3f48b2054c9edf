package core

import (
	"sort"
	"time"
)

// Timeline item kinds.
const (
	TimelineKindLog   = "log"
	TimelineKindEvent = "security_event"
)

// TimelineItem is one element of a correlation timeline: either a log entry
// or a security event sharing the queried correlation id.
type TimelineItem struct {
	Kind      string         `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Log       *LogEntry      `json:"log,omitempty"`
	Event     *SecurityEvent `json:"event,omitempty"`
}

// Summary renders a one-line description of the item.
func (t *TimelineItem) Summary() string {
	switch {
	case t.Log != nil:
		return t.Log.Action + " by " + t.Log.ActorID
	case t.Event != nil:
		return t.Event.EventType + " (" + t.Event.ThreatLevel + ") rule=" + t.Event.DetectionRule
	default:
		return ""
	}
}

// MergeTimeline combines log entries and security events into a single
// timeline ordered ascending by creation time. Background evaluation gives no
// write-side ordering across entries, so ordering is imposed here on read.
// Ties order logs before events, matching the causal direction.
func MergeTimeline(logs []LogEntry, events []SecurityEvent) []TimelineItem {
	items := make([]TimelineItem, 0, len(logs)+len(events))
	for i := range logs {
		items = append(items, TimelineItem{
			Kind:      TimelineKindLog,
			Timestamp: logs[i].CreatedAt,
			Log:       &logs[i],
		})
	}
	for i := range events {
		items = append(items, TimelineItem{
			Kind:      TimelineKindEvent,
			Timestamp: events[i].CreatedAt,
			Event:     &events[i],
		})
	}
	sort.SliceStable(items, func(a, b int) bool {
		if items[a].Timestamp.Equal(items[b].Timestamp) {
			return items[a].Kind == TimelineKindLog && items[b].Kind == TimelineKindEvent
		}
		return items[a].Timestamp.Before(items[b].Timestamp)
	})
	return items
}
