package notifier

import "time"

// Config controls the notification pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	SendTimeout     time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// Notification is one outbound message.
type Notification struct {
	Destination string
	Text        string
}

// HistoryItem is a recently sent notification, kept in memory for status
// output.
type HistoryItem struct {
	At          time.Time `json:"at"`
	Destination string    `json:"destination"`
	Text        string    `json:"text"`
}
