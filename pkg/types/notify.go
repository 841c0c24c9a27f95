package types

import "time"

// NoticeLevel classifies a user-facing notification.
type NoticeLevel string

// Notification levels.
const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notifier surfaces short, non-blocking messages to the user (toasts in a
// browser, stderr lines in the CLI).
type Notifier interface {
	Notify(level NoticeLevel, message string)
}

// Outcome labels reported to a MetricsRecorder.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeStale   = "superseded"
)

// MetricsRecorder receives collection activity for export to a metrics
// backend.
type MetricsRecorder interface {
	ObserveFetch(resource, outcome string, d time.Duration)
	ObserveMutation(resource, op, outcome string)
	ObserveCacheFallback(resource string)
	ObservePush(resource, kind string)
}
