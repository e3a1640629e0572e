package sqlcgen

import "time"

type SyncRun struct {
	ID          string
	MapName     string
	Mode        string
	Status      string
	Stats       map[string]any
	StartedAt   time.Time
	CompletedAt *time.Time
	LastError   *string
}
