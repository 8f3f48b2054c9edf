package core

import "time"

// Trend bucket granularities.
const (
	BucketDay  = "day"
	BucketHour = "hour"
)

// LogFilters narrows log entry listings. Zero values mean "no constraint".
type LogFilters struct {
	Severity string     `json:"severity,omitempty"`
	Category string     `json:"category,omitempty"`
	ActorID  string     `json:"actor_id,omitempty"`
	Action   string     `json:"action,omitempty"`
	Query    string     `json:"q,omitempty"` // free text over details and metadata
	From     *time.Time `json:"from,omitempty"`
	To       *time.Time `json:"to,omitempty"`
	Limit    int        `json:"limit,omitempty"`
	Offset   int        `json:"offset,omitempty"`
}

// Normalize clamps pagination to sane bounds.
func (f *LogFilters) Normalize() {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Limit > 1000 {
		f.Limit = 1000
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

// TrendBucket is one time bucket of the trend query. Bucket is the formatted
// bucket start (2006-01-02 for day, 2006-01-02T15 for hour).
type TrendBucket struct {
	Bucket string `json:"bucket"`
	Count  int64  `json:"count"`
}

// LogStats summarizes log activity over a window.
type LogStats struct {
	Total        int64            `json:"total"`
	BySeverity   map[string]int64 `json:"by_severity"`
	ByCategory   map[string]int64 `json:"by_category"`
	UniqueActors int64            `json:"unique_actors"`
	UniqueIPs    int64            `json:"unique_ips"`
}
